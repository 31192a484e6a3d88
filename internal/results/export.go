package results

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"kinefit/internal/blob"
)

// EncodeLevelCSV renders a level table as CSV. Fitted parameters are carried
// as a JSON object column since the free-parameter set varies per code.
func EncodeLevelCSV(t LevelTable) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"code", "complexity", "train_loss", "failed", "error", "params"}); err != nil {
		return nil, err
	}
	for _, row := range t.Rows {
		params, err := encodeParams(row.Params)
		if err != nil {
			return nil, err
		}
		record := []string{
			row.Code,
			strconv.Itoa(row.Complexity),
			formatFloat(row.TrainLoss),
			strconv.FormatBool(row.Failed),
			row.Error,
			params,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// EncodeBestCSV renders the best-candidates table as CSV.
func EncodeBestCSV(t BestTable) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"code", "level", "train_loss", "test_loss", "params"}); err != nil {
		return nil, err
	}
	for _, row := range t.Rows {
		params, err := encodeParams(row.Params)
		if err != nil {
			return nil, err
		}
		record := []string{
			row.Code,
			strconv.Itoa(row.Level),
			formatFloat(row.TrainLoss),
			formatFloat(row.TestLoss),
			params,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// jsonFloat renders a value for the params column. JSON has no literal for
// NaN or the infinities, so non-finite values become null instead of
// corrupting the object.
func jsonFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "null"
	}
	return formatFloat(v)
}

// encodeParams serializes a parameter mapping with stable key order.
func encodeParams(p map[string]float64) (string, error) {
	if len(p) == 0 {
		return "", nil
	}
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return "", err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(jsonFloat(p[name]))
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// Exporter writes CSV renditions of a run's tables to a blob store, one
// artifact per level table plus one for the best table.
type Exporter struct {
	store blob.Store
}

// NewExporter constructs an exporter over the given blob store.
func NewExporter(store blob.Store) *Exporter {
	return &Exporter{store: store}
}

// ExportRun renders and stores every table of the run, returning the stored
// artifact descriptors.
func (e *Exporter) ExportRun(ctx context.Context, run Run) ([]blob.Info, error) {
	var infos []blob.Info
	for _, level := range run.Levels {
		payload, err := EncodeLevelCSV(level)
		if err != nil {
			return infos, fmt.Errorf("encode level %d: %w", level.Level, err)
		}
		key := fmt.Sprintf("runs/%s/level_%02d.csv", run.ID, level.Level)
		info, err := e.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: "text/csv",
			Metadata:    map[string]string{"run_id": run.ID, "level": strconv.Itoa(level.Level)},
		})
		if err != nil {
			return infos, fmt.Errorf("store level %d: %w", level.Level, err)
		}
		infos = append(infos, info)
	}
	payload, err := EncodeBestCSV(run.Best)
	if err != nil {
		return infos, fmt.Errorf("encode best table: %w", err)
	}
	info, err := e.store.Put(ctx, fmt.Sprintf("runs/%s/best.csv", run.ID), bytes.NewReader(payload), blob.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"run_id": run.ID},
	})
	if err != nil {
		return infos, fmt.Errorf("store best table: %w", err)
	}
	return append(infos, info), nil
}
