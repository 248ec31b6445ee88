package postprocess

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cepro/dercompliance/criteria"
	"github.com/cepro/dercompliance/dataset"
	"github.com/cepro/dercompliance/steps"
	"github.com/cepro/dercompliance/telemetry"
	"golang.org/x/exp/slices"
)

// ErrMissingCheckpoint is returned when a checkpoint event cannot be found in a captured dataset.
var ErrMissingCheckpoint = errors.New("missing checkpoint")

// CheckpointsFromDataset recovers checkpoints 0 to n of a step from a captured dataset. Each checkpoint is the first
// row tagged "{step}_TR_{i}". Measured values are taken from the `{AXIS}_MEAS` columns, or aggregated from the
// per-phase channels when there are none, and targets from the `{AXIS}_TARGET` columns.
//
// The checkpoints that were found are always returned. If any were missing the error wraps ErrMissingCheckpoint.
func CheckpointsFromDataset(ds *dataset.Dataset, label string, n int, phases int) ([]telemetry.Checkpoint, error) {
	var checkpoints []telemetry.Checkpoint
	var missing []int

	for i := 0; i <= n; i++ {
		row, ok := ds.FirstEvent(fmt.Sprintf("%s_TR_%d", label, i))
		if !ok {
			missing = append(missing, i)
			continue
		}
		checkpoints = append(checkpoints, checkpointFromRow(row, label, i, phases))
	}

	if len(missing) > 0 {
		return checkpoints, fmt.Errorf("%w: %s has no rows for TR %v", ErrMissingCheckpoint, label, missing)
	}
	return checkpoints, nil
}

func checkpointFromRow(row dataset.Row, label string, index int, phases int) telemetry.Checkpoint {
	checkpoint := telemetry.Checkpoint{
		StepLabel: label,
		Index:     index,
		Time:      datasetTime(row.Time),
		Values:    make(map[telemetry.Axis]float64),
		Targets:   make(map[telemetry.Axis]float64),
	}
	for _, axis := range telemetry.Axes {
		val, ok := row.Values[axis.MeasColumn()]
		if !ok {
			val = telemetry.Aggregate(row.Values, axis, phases)
		}
		checkpoint.Values[axis] = val

		target, ok := row.Values[axis.TargetColumn()]
		if ok && !math.IsNaN(target) {
			checkpoint.Targets[axis] = target
		}
	}
	return checkpoint
}

// datasetTime converts the seconds of a dataset's TIME column into a time, relative to the zero time.
func datasetTime(seconds float64) time.Time {
	return time.Time{}.Add(time.Duration(seconds * float64(time.Second)))
}

var checkpointEventPattern = regexp.MustCompile(`^(.+)_TR_([0-9]+)$`)

// StepLabels returns the labels of the steps that have checkpoint events in the dataset, in order of appearance.
func StepLabels(ds *dataset.Dataset) []string {
	var labels []string
	for _, event := range ds.Events() {
		match := checkpointEventPattern.FindStringSubmatch(event)
		if match == nil {
			continue
		}
		if _, err := strconv.Atoi(match[2]); err != nil {
			continue
		}
		if !slices.Contains(labels, match[1]) {
			labels = append(labels, match[1])
		}
	}
	return labels
}

// SimulationStartEvent is tagged on the DAS when the HIL starts playing the ride-through conditions. Condition
// timings are relative to the first row with this tag.
const SimulationStartEvent = "VRT_START"

// RideThroughEvaluator checks that each ride-through condition was applied at the EUT terminals.
type RideThroughEvaluator struct {
	vNom    float64
	mra     criteria.MRA
	enabled []int // the phases that the conditions are applied to, 1-based
	opts    Options
}

// NewRideThroughEvaluator returns an evaluator for an EUT with `phases` phases, where the conditions were applied to
// the phase combination `enabled`, e.g. "AB". An empty combination means every phase.
func NewRideThroughEvaluator(vNom float64, mra criteria.MRA, phases int, enabled string, opts Options) *RideThroughEvaluator {
	return &RideThroughEvaluator{vNom: vNom, mra: mra, enabled: enabledPhases(enabled, phases), opts: opts}
}

func enabledPhases(combination string, phases int) []int {
	var enabled []int
	for _, phase := range strings.ToUpper(combination) {
		index := int(phase-'A') + 1
		if index >= 1 && index <= phases && !slices.Contains(enabled, index) {
			enabled = append(enabled, index)
		}
	}
	if len(enabled) == 0 {
		for phase := 1; phase <= phases; phase++ {
			enabled = append(enabled, phase)
		}
	}
	return enabled
}

// Evaluate returns one row per condition. The target is the residual voltage of the condition, within 1.5 MRA. The
// measured value is the mean voltage of the enabled phases over the condition's window, which must lie within the
// band at steady state, and every sample in the window must lie within it for the dynamic bounds criterion. There is
// no time accuracy criterion for ride-through.
func (e *RideThroughEvaluator) Evaluate(ds *dataset.Dataset, rideThroughSteps []steps.Step) ([]telemetry.ResultRow, error) {
	start, ok := ds.FirstEvent(SimulationStartEvent)
	if !ok {
		return nil, fmt.Errorf("%w: no %s event in dataset", ErrMissingCheckpoint, SimulationStartEvent)
	}
	margin := 1.5 * e.mra.V

	rows := make([]telemetry.ResultRow, 0, len(rideThroughSteps))
	for _, step := range rideThroughSteps {
		if step.Condition == nil {
			return nil, fmt.Errorf("%s is not a ride-through step", step.Label)
		}
		condition := step.Condition

		row := telemetry.NewResultRow(e.opts.RunID, step.Label, e.opts.Filename)
		row.Standard = e.opts.Standard
		row.Function = e.opts.Function
		row.YAxis = telemetry.AxisVoltage
		row.XTarget = condition.Residual * e.vNom
		row.YTarget = row.XTarget
		row.YTargetMin = row.YTarget - margin
		row.YTargetMax = row.YTarget + margin

		samples := e.voltages(ds.Window(start.Time+condition.Start, start.Time+condition.End))
		if len(samples) > 0 {
			row.YMeas = mean(samples)
			row.XMeas = row.YMeas
			band := criteria.TargetBand{Value: row.YTarget, Min: row.YTargetMin, Max: row.YTargetMax}
			row.WithinBoundsTRN = withinBand(band, row.YMeas)
			row.WithinBoundsTR1 = telemetry.VerdictPass
			for _, sample := range samples {
				if withinBand(band, sample) != telemetry.VerdictPass {
					row.WithinBoundsTR1 = telemetry.VerdictFail
					break
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// voltages returns the mean voltage of the enabled phases for each row of the window, skipping rows where any of
// them is missing.
func (e *RideThroughEvaluator) voltages(window *dataset.Dataset) []float64 {
	var samples []float64
	for _, row := range window.Rows() {
		total := 0.0
		for _, phase := range e.enabled {
			total += row.Value(telemetry.AxisVoltage.PhaseChannel(phase))
		}
		v := total / float64(len(e.enabled))
		if !math.IsNaN(v) {
			samples = append(samples, v)
		}
	}
	return samples
}

func mean(vals []float64) float64 {
	total := 0.0
	for _, val := range vals {
		total += val
	}
	return total / float64(len(vals))
}
