package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Column names the ingestion contract requires beside the metabolite columns.
const (
	ColumnRate   = "Rate"
	ColumnSource = "source"
)

// RowError reports one rejected measurement row.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Line, e.Err) }

func (e RowError) Unwrap() error { return e.Err }

// ReadCSV ingests a measurement table. The header must contain Rate, source
// and one column per requested metabolite name; any further columns are
// ignored. Rows violating the positive-rate policy or with malformed numbers
// are rejected individually and reported in the returned slice; only a
// missing required column or an unreadable stream is fatal.
func ReadCSV(r io.Reader, metabs []string) (*Dataset, []RowError, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	rateCol, ok := index[ColumnRate]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrMissingColumn, ColumnRate)
	}
	sourceCol, ok := index[ColumnSource]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrMissingColumn, ColumnSource)
	}
	metabCols := make([]int, len(metabs))
	for i, name := range metabs {
		j, ok := index[name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
		metabCols[i] = j
	}

	d := New(metabs)
	var rejected []RowError
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", line, err)
		}
		rate, err := strconv.ParseFloat(record[rateCol], 64)
		if err != nil {
			rejected = append(rejected, RowError{Line: line, Err: fmt.Errorf("parse rate: %w", err)})
			continue
		}
		conc := make([]float64, len(metabCols))
		bad := false
		for i, col := range metabCols {
			v, err := strconv.ParseFloat(record[col], 64)
			if err != nil {
				rejected = append(rejected, RowError{Line: line, Err: fmt.Errorf("parse %s: %w", metabs[i], err)})
				bad = true
				break
			}
			conc[i] = v
		}
		if bad {
			continue
		}
		if err := d.Append(rate, record[sourceCol], conc); err != nil {
			rejected = append(rejected, RowError{Line: line, Err: err})
		}
	}
	return d, rejected, nil
}
