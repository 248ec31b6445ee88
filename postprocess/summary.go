package postprocess

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cepro/dercompliance/telemetry"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Columns selects the columns of a summary table.
type Columns struct {
	XAxis telemetry.Axis // no x columns are written when empty
	YAxis telemetry.Axis

	NumberTR     int
	MinMax       bool
	TimeAccuracy bool
}

// Names returns the CSV header, e.g. for volt-watt:
// V_MEAS, V_TARGET, P_MEAS, P_TARGET_MIN, P_TARGET, P_TARGET_MAX, P_TR_WITHIN_BOUNDS_BY_TR=1_PASSFAIL,
// P_TR_WITHIN_BOUNDS_BY_TR=4_PASSFAIL, P_TR_90PCT_BY_TR=1_PASSFAIL, STEP, FILENAME
func (c Columns) Names() []string {
	var names []string
	for _, col := range c.columns() {
		names = append(names, col.name)
	}
	return names
}

type column struct {
	name   string
	number func(row telemetry.ResultRow) float64
	text   func(row telemetry.ResultRow) string
}

func (c Columns) columns() []column {
	var cols []column
	if c.XAxis != "" {
		cols = append(cols,
			column{name: c.XAxis.MeasColumn(), number: func(r telemetry.ResultRow) float64 { return r.XMeas }},
			column{name: c.XAxis.TargetColumn(), number: func(r telemetry.ResultRow) float64 { return r.XTarget }},
		)
	}

	y := string(c.YAxis)
	cols = append(cols, column{name: c.YAxis.MeasColumn(), number: func(r telemetry.ResultRow) float64 { return r.YMeas }})
	if c.MinMax {
		cols = append(cols,
			column{name: y + "_TARGET_MIN", number: func(r telemetry.ResultRow) float64 { return r.YTargetMin }},
			column{name: y + "_TARGET", number: func(r telemetry.ResultRow) float64 { return r.YTarget }},
			column{name: y + "_TARGET_MAX", number: func(r telemetry.ResultRow) float64 { return r.YTargetMax }},
			column{name: y + "_TR_WITHIN_BOUNDS_BY_TR=1_PASSFAIL", text: func(r telemetry.ResultRow) string { return verdictRecord(r.WithinBoundsTR1) }},
			column{name: fmt.Sprintf("%s_TR_WITHIN_BOUNDS_BY_TR=%d_PASSFAIL", y, c.NumberTR), text: func(r telemetry.ResultRow) string { return verdictRecord(r.WithinBoundsTRN) }},
		)
	}
	if c.TimeAccuracy {
		cols = append(cols, column{name: y + "_TR_90PCT_BY_TR=1_PASSFAIL", text: func(r telemetry.ResultRow) string { return verdictRecord(r.Within90PctTR1) }})
	}

	cols = append(cols,
		column{name: "STEP", text: func(r telemetry.ResultRow) string { return r.Step }},
		column{name: "FILENAME", text: func(r telemetry.ResultRow) string { return r.Filename }},
	)
	return cols
}

// verdictRecord writes a missing verdict as NaN, as gota writes missing floats.
func verdictRecord(v telemetry.Verdict) string {
	if v == telemetry.VerdictNone {
		return "NaN"
	}
	return string(v)
}

// SummaryTable collects the result rows of a run and writes them out as the summary CSV. Rows are only ever
// appended.
type SummaryTable struct {
	lock    sync.Mutex
	columns Columns
	rows    []telemetry.ResultRow
}

func NewSummaryTable(columns Columns) *SummaryTable {
	return &SummaryTable{columns: columns}
}

func (s *SummaryTable) AppendRow(row telemetry.ResultRow) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

// Rows returns a copy of the rows appended so far.
func (s *SummaryTable) Rows() []telemetry.ResultRow {
	s.lock.Lock()
	defer s.lock.Unlock()
	rows := make([]telemetry.ResultRow, len(s.rows))
	copy(rows, s.rows)
	return rows
}

// DataFrame returns the table with the selected columns.
func (s *SummaryTable) DataFrame() dataframe.DataFrame {
	rows := s.Rows()

	var allSeries []series.Series
	for _, col := range s.columns.columns() {
		if col.number != nil {
			vals := make([]float64, len(rows))
			for i, row := range rows {
				vals[i] = col.number(row)
			}
			allSeries = append(allSeries, series.New(vals, series.Float, col.name))
			continue
		}
		vals := make([]string, len(rows))
		for i, row := range rows {
			vals[i] = col.text(row)
		}
		allSeries = append(allSeries, series.New(vals, series.String, col.name))
	}
	return dataframe.New(allSeries...)
}

// FlushTo writes every row so far to the CSV file at `path`, replacing the file.
func (s *SummaryTable) FlushTo(path string) error {
	df := s.DataFrame()
	if df.Err != nil {
		return fmt.Errorf("build summary: %w", df.Err)
	}

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return fmt.Errorf("create summary directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	err = df.WriteCSV(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("write summary: %w", err)
	}
	return file.Close()
}
