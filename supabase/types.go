package supabase

import (
	"time"

	"github.com/cepro/dercompliance/repository"
	"github.com/google/uuid"
)

// supabaseResultRow holds the json encoding schema for a result row in supabase.
type supabaseResultRow struct {
	ID        uuid.UUID `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Standard  string    `json:"standard"`
	Function  string    `json:"function"`
	XAxis     string    `json:"x_axis"`
	YAxis     string    `json:"y_axis"`

	XMeas      *float64 `json:"x_meas"`
	XTarget    *float64 `json:"x_target"`
	YMeas      *float64 `json:"y_meas"`
	YTarget    *float64 `json:"y_target"`
	YTargetMin *float64 `json:"y_target_min"`
	YTargetMax *float64 `json:"y_target_max"`

	WithinBoundsTR1 *string `json:"within_bounds_tr1"`
	WithinBoundsTRN *string `json:"within_bounds_trn"`
	Within90PctTR1  *string `json:"within_90pct_tr1"`

	Step     string `json:"step"`
	Filename string `json:"filename"`
}

func convertResultRows(rows []repository.StoredResultRow) []supabaseResultRow {
	converted := make([]supabaseResultRow, 0, len(rows))
	for _, row := range rows {
		converted = append(converted, supabaseResultRow{
			ID:              row.ID,
			RunID:           row.RunID,
			CreatedAt:       row.CreatedAt,
			Standard:        row.Standard,
			Function:        row.Function,
			XAxis:           row.XAxis,
			YAxis:           row.YAxis,
			XMeas:           row.XMeas,
			XTarget:         row.XTarget,
			YMeas:           row.YMeas,
			YTarget:         row.YTarget,
			YTargetMin:      row.YTargetMin,
			YTargetMax:      row.YTargetMax,
			WithinBoundsTR1: row.WithinBoundsTR1,
			WithinBoundsTRN: row.WithinBoundsTRN,
			Within90PctTR1:  row.Within90PctTR1,
			Step:            row.Step,
			Filename:        row.Filename,
		})
	}
	return converted
}
