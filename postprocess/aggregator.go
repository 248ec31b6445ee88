package postprocess

import (
	"log/slog"
	"math"
	"time"

	"github.com/cepro/dercompliance/criteria"
	"github.com/cepro/dercompliance/curves"
	"github.com/cepro/dercompliance/steps"
	"github.com/cepro/dercompliance/telemetry"
	"github.com/google/uuid"
)

// Options configures the evaluation of the steps of one test configuration.
type Options struct {
	RunID    uuid.UUID
	Standard string
	Function string
	Filename string // the dataset that the checkpoints were captured into

	ResponseTime time.Duration
	NumberTR     int // the index of the steady state checkpoint

	CalcMinMax       bool
	CalcTimeAccuracy bool
}

// Aggregator turns the checkpoints of a step into a result row.
type Aggregator struct {
	evaluator *criteria.Evaluator
	opts      Options
	logger    *slog.Logger
}

func NewAggregator(evaluator *criteria.Evaluator, opts Options) *Aggregator {
	return &Aggregator{
		evaluator: evaluator,
		opts:      opts,
		logger:    slog.Default().With("component", "aggregator", "file", opts.Filename),
	}
}

// Evaluate judges the response to `step` against the curve:
//   - the measured values come from the steady state checkpoint N;
//   - the y-value must lie within the target band at checkpoint 1 and at checkpoint N, where the band is the one
//     interpolated at checkpoint N's x-value;
//   - the y-value at checkpoint 1 must follow the open loop response from checkpoint 0 towards the target.
//
// A row is always returned. If checkpoint 1 or N is missing every derived value is NaN, and a criterion that cannot
// be evaluated because one of its inputs is NaN is left without a verdict.
func (a *Aggregator) Evaluate(step steps.Step, checkpoints []telemetry.Checkpoint, curve *curves.Curve) telemetry.ResultRow {
	logger := a.logger.With("step", step.Label)

	row := telemetry.NewResultRow(a.opts.RunID, step.Label, a.opts.Filename)
	row.Standard = a.opts.Standard
	row.Function = a.opts.Function
	row.XAxis = curve.XAxis
	row.YAxis = curve.YAxis

	first, okFirst := findCheckpoint(checkpoints, 1)
	last, okLast := findCheckpoint(checkpoints, a.opts.NumberTR)
	if !okFirst || !okLast {
		logger.Warn("Checkpoints missing, step cannot be evaluated", "tr1", okFirst, "trN", okLast)
		return row
	}

	row.XMeas = last.Value(curve.XAxis)
	row.XTarget = last.Target(curve.XAxis)
	row.YMeas = last.Value(curve.YAxis)

	band, err := a.evaluator.Interpolate(curve, row.XMeas)
	if err != nil {
		logger.Warn("Failed to interpolate target", "x", row.XMeas, "error", err)
	}
	row.YTarget = band.Value

	if a.opts.CalcMinMax {
		row.YTargetMin = band.Min
		row.YTargetMax = band.Max
		row.WithinBoundsTRN = withinBand(band, row.YMeas)
		row.WithinBoundsTR1 = withinBand(band, first.Value(curve.YAxis))
	}

	if a.opts.CalcTimeAccuracy {
		baseline, ok := findCheckpoint(checkpoints, 0)
		if ok {
			y0 := baseline.Value(curve.YAxis)
			y1 := first.Value(curve.YAxis)
			if !anyNaN(y0, y1, band.Value) {
				elapsed := first.Time.Sub(baseline.Time)
				env := criteria.TimeAccuracy(y0, y1, band.Value, elapsed, a.opts.ResponseTime, a.evaluator.MRA().For(curve.YAxis))
				row.Within90PctTR1 = env.Verdict
			}
		}
	}

	return row
}

func findCheckpoint(checkpoints []telemetry.Checkpoint, index int) (telemetry.Checkpoint, bool) {
	for _, checkpoint := range checkpoints {
		if checkpoint.Index == index {
			return checkpoint, true
		}
	}
	return telemetry.Checkpoint{}, false
}

func withinBand(band criteria.TargetBand, y float64) telemetry.Verdict {
	if anyNaN(band.Min, band.Max, y) {
		return telemetry.VerdictNone
	}
	return telemetry.VerdictOf(band.Contains(y))
}

func anyNaN(vals ...float64) bool {
	for _, val := range vals {
		if math.IsNaN(val) {
			return true
		}
	}
	return false
}
