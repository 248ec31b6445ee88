package repository

import (
	"math"
	"time"

	"github.com/cepro/dercompliance/telemetry"
	"github.com/google/uuid"
)

// StoredResultRow represents a result row that is persisted to the SQLite database, and includes a count of upload
// attempts. Values that could not be evaluated are stored as NULL.
type StoredResultRow struct {
	ID        uuid.UUID `gorm:"primaryKey"`
	RunID     uuid.UUID `gorm:"index"`
	CreatedAt time.Time
	Standard  string
	Function  string
	XAxis     string
	YAxis     string

	XMeas      *float64
	XTarget    *float64
	YMeas      *float64
	YTarget    *float64
	YTargetMin *float64
	YTargetMax *float64

	WithinBoundsTR1 *string
	WithinBoundsTRN *string
	Within90PctTR1  *string

	Step     string
	Filename string

	UploadAttemptCount uint
}

// StoredRun records a test run, so that its result rows can be found again.
type StoredRun struct {
	ID        uuid.UUID `gorm:"primaryKey"`
	StartedAt time.Time
	Standard  string
	Function  string
	Mode      string // "run" or "reprocess"
}

func newStoredResultRow(row telemetry.ResultRow) StoredResultRow {
	return StoredResultRow{
		ID:              row.ID,
		RunID:           row.RunID,
		CreatedAt:       row.CreatedAt,
		Standard:        row.Standard,
		Function:        row.Function,
		XAxis:           string(row.XAxis),
		YAxis:           string(row.YAxis),
		XMeas:           pointerToFloat(row.XMeas),
		XTarget:         pointerToFloat(row.XTarget),
		YMeas:           pointerToFloat(row.YMeas),
		YTarget:         pointerToFloat(row.YTarget),
		YTargetMin:      pointerToFloat(row.YTargetMin),
		YTargetMax:      pointerToFloat(row.YTargetMax),
		WithinBoundsTR1: pointerToVerdict(row.WithinBoundsTR1),
		WithinBoundsTRN: pointerToVerdict(row.WithinBoundsTRN),
		Within90PctTR1:  pointerToVerdict(row.Within90PctTR1),
		Step:            row.Step,
		Filename:        row.Filename,
	}
}

// ResultRow converts the stored row back, with NULL values as NaN or no verdict.
func (s StoredResultRow) ResultRow() telemetry.ResultRow {
	return telemetry.ResultRow{
		ID:              s.ID,
		RunID:           s.RunID,
		CreatedAt:       s.CreatedAt,
		Standard:        s.Standard,
		Function:        s.Function,
		XAxis:           telemetry.Axis(s.XAxis),
		YAxis:           telemetry.Axis(s.YAxis),
		XMeas:           floatOrNaN(s.XMeas),
		XTarget:         floatOrNaN(s.XTarget),
		YMeas:           floatOrNaN(s.YMeas),
		YTarget:         floatOrNaN(s.YTarget),
		YTargetMin:      floatOrNaN(s.YTargetMin),
		YTargetMax:      floatOrNaN(s.YTargetMax),
		WithinBoundsTR1: verdictOrNone(s.WithinBoundsTR1),
		WithinBoundsTRN: verdictOrNone(s.WithinBoundsTRN),
		Within90PctTR1:  verdictOrNone(s.Within90PctTR1),
		Step:            s.Step,
		Filename:        s.Filename,
	}
}

func pointerToFloat(val float64) *float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return nil
	}
	return &val
}

func floatOrNaN(val *float64) float64 {
	if val == nil {
		return math.NaN()
	}
	return *val
}

func pointerToVerdict(v telemetry.Verdict) *string {
	if v == telemetry.VerdictNone {
		return nil
	}
	s := string(v)
	return &s
}

func verdictOrNone(s *string) telemetry.Verdict {
	if s == nil {
		return telemetry.VerdictNone
	}
	return telemetry.Verdict(*s)
}
