// Command kinefit selects an enzyme rate law for a kinetic dataset. It
// builds the requested general rate equation, walks the removal-code
// lattice stepwise, fits every candidate on the training split and reports
// the per-level result tables plus the held-out best table.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"kinefit/internal/blob"
	"kinefit/internal/dataset"
	"kinefit/internal/fit"
	"kinefit/internal/lattice"
	"kinefit/internal/results"
	"kinefit/internal/results/postgres"
	"kinefit/internal/results/sqlite"
	"kinefit/internal/selection"
	"kinefit/pkg/ratelaw"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

type options struct {
	dataPath     string
	family       string
	substrates   string
	products     string
	regulators   string
	bindingOrder int
	sites        int
	keq          float64
	direction    string
	minLevel     int
	maxLevel     int
	topFraction  float64
	restarts     int
	iterations   int
	workers      int
	seed         int64
	testFraction float64
	runID        string
	store        string
	sqlitePath   string
	postgresDSN  string
	export       bool
	tracePath    string
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("kinefit", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.dataPath, "data", "", "path to the rate measurement CSV")
	fs.StringVar(&opts.family, "family", "qssa", "rate equation family (qssa or mwc)")
	fs.StringVar(&opts.substrates, "substrates", "", "comma-separated substrate column names")
	fs.StringVar(&opts.products, "products", "", "comma-separated product column names (empty for irreversible)")
	fs.StringVar(&opts.regulators, "regulators", "", "comma-separated regulator column names")
	fs.IntVar(&opts.bindingOrder, "binding-order", 0, "maximum metabolites per binding term (0 for default)")
	fs.IntVar(&opts.sites, "sites", 0, "MWC subunit count (0 for default)")
	fs.Float64Var(&opts.keq, "keq", 1, "reaction equilibrium constant")
	fs.StringVar(&opts.direction, "direction", "reverse", "lattice walk direction (reverse or forward)")
	fs.IntVar(&opts.minLevel, "min-complexity", 0, "lowest complexity level to report (0 for space minimum)")
	fs.IntVar(&opts.maxLevel, "max-complexity", 0, "highest complexity level to report (0 for space maximum)")
	fs.Float64Var(&opts.topFraction, "top-fraction", 0.1, "fraction of each level scored on the held-out split")
	fs.IntVar(&opts.restarts, "restarts", 20, "optimizer restarts per candidate")
	fs.IntVar(&opts.iterations, "iterations", 400, "optimizer iterations per restart")
	fs.IntVar(&opts.workers, "workers", 0, "parallel candidate fits per level (0 for NumCPU)")
	fs.Int64Var(&opts.seed, "seed", 1, "base random seed for restarts and the data split")
	fs.Float64Var(&opts.testFraction, "test-fraction", 0.2, "fraction of rows held out per source")
	fs.StringVar(&opts.runID, "run", "", "run identifier (default derived from the wall clock)")
	fs.StringVar(&opts.store, "store", "memory", "result store driver (memory, sqlite or postgres)")
	fs.StringVar(&opts.sqlitePath, "sqlite-path", "", "sqlite database path")
	fs.StringVar(&opts.postgresDSN, "postgres-dsn", "", "postgres connection string")
	fs.BoolVar(&opts.export, "export", false, "export result tables as CSV through the configured blob store")
	fs.StringVar(&opts.tracePath, "trace", "", "write an operation trace as JSON lines to this file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, stdout); err != nil {
		fmt.Fprintf(stderr, "kinefit: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, opts options, stdout io.Writer) (err error) {
	if opts.dataPath == "" {
		return fmt.Errorf("missing required -data flag")
	}

	eq, err := ratelaw.New(ratelaw.EquationSpec{
		Family:       ratelaw.Family(opts.family),
		Substrates:   splitNames(opts.substrates),
		Products:     splitNames(opts.products),
		Regulators:   splitNames(opts.regulators),
		BindingOrder: opts.bindingOrder,
		Sites:        opts.sites,
	})
	if err != nil {
		return fmt.Errorf("build equation: %w", err)
	}

	train, test, err := loadData(opts, eq.MetabNames(), stdout)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeStore(); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}()

	metrics := selection.NewExpvarRecorder("kinefit")
	var tracer selection.Tracer
	if opts.tracePath != "" {
		traceFile, terr := os.Create(opts.tracePath)
		if terr != nil {
			return fmt.Errorf("open trace file: %w", terr)
		}
		defer func() {
			if cerr := traceFile.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close trace file: %w", cerr)
			}
		}()
		tracer = selection.NewJSONTracer(traceFile)
	}

	sel, err := selection.New(eq, train, test, selection.Options{
		Direction:     lattice.Direction(opts.direction),
		MinComplexity: opts.minLevel,
		MaxComplexity: opts.maxLevel,
		TopFraction:   opts.topFraction,
		Workers:       opts.workers,
		Fitter: fit.Config{
			Restarts:      opts.restarts,
			MaxIterations: opts.iterations,
			Seed:          opts.seed,
		},
		Keq:     opts.keq,
		RunID:   opts.runID,
		Store:   store,
		Metrics: metrics,
		Tracer:  tracer,
	})
	if err != nil {
		return err
	}

	run, err := sel.Run(ctx)
	if err != nil {
		return err
	}
	report(stdout, run)

	if opts.export {
		blobStore, berr := blob.Open(ctx)
		if berr != nil {
			return fmt.Errorf("open blob store: %w", berr)
		}
		infos, eerr := results.NewExporter(blobStore).ExportRun(ctx, run)
		if eerr != nil {
			return fmt.Errorf("export run: %w", eerr)
		}
		for _, info := range infos {
			fmt.Fprintf(stdout, "exported %s (%d bytes)\n", info.Key, info.Size)
		}
	}
	return nil
}

// loadData reads the CSV, reports rejected rows and splits by source.
func loadData(opts options, metabs []string, stdout io.Writer) (train, test *dataset.Dataset, err error) {
	f, err := os.Open(opts.dataPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open data: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close data: %w", cerr)
		}
	}()

	ds, rejected, err := dataset.ReadCSV(f, metabs)
	if err != nil {
		return nil, nil, fmt.Errorf("read data: %w", err)
	}
	for _, re := range rejected {
		fmt.Fprintf(stdout, "skipped %v\n", re)
	}
	if ds.Len() == 0 {
		return nil, nil, fmt.Errorf("no usable rows in %s", opts.dataPath)
	}

	train, test = dataset.Split(ds, opts.testFraction, opts.seed)
	fmt.Fprintf(stdout, "loaded %d rows (%d train, %d test, %d skipped)\n",
		ds.Len(), train.Len(), test.Len(), len(rejected))
	return train, test, nil
}

func openStore(ctx context.Context, opts options) (results.Store, func() error, error) {
	switch opts.store {
	case "memory":
		return results.NewMemory(), func() error { return nil }, nil
	case "sqlite":
		st, err := sqlite.NewStore(opts.sqlitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, st.Close, nil
	case "postgres":
		st, err := postgres.NewStore(ctx, opts.postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", opts.store)
	}
}

// report prints each persisted level table and the final best table.
func report(w io.Writer, run results.Run) {
	for _, table := range run.Levels {
		fmt.Fprintf(w, "level %d (%s): %d candidates\n", table.Level, table.Direction, len(table.Rows))
		for _, row := range table.Rows {
			if row.Failed {
				fmt.Fprintf(w, "  %s  failed: %s\n", row.Code, row.Error)
				continue
			}
			fmt.Fprintf(w, "  %s  train=%.6g  %s\n", row.Code, row.TrainLoss, formatParams(row.Params))
		}
	}
	fmt.Fprintf(w, "best table: %d rows\n", len(run.Best.Rows))
	for _, row := range run.Best.Rows {
		fmt.Fprintf(w, "  %s  level=%d  train=%.6g  test=%.6g\n", row.Code, row.Level, row.TrainLoss, row.TestLoss)
	}
}

func formatParams(params map[string]float64) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%.4g", name, params[name]))
	}
	return strings.Join(parts, " ")
}

func splitNames(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
