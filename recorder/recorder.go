package recorder

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cepro/dercompliance/steps"
	"github.com/cepro/dercompliance/telemetry"
	timeutils "github.com/cepro/dercompliance/time_utils"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Applier puts a step's setpoint into effect on the bench, returning the value that the EUT will see.
type Applier interface {
	Apply(axis telemetry.Axis, setpoint steps.Setpoint) (float64, error)
}

// DataAcquisition is the part of the DAS that the recorder uses.
type DataAcquisition interface {
	TagEvent(event string) error
	SetSoftChannel(name string, value float64) error
	ReadInstantaneous() (map[string]float64, error)
}

// Recorder applies steps and captures the response of the EUT at multiples of its response time.
//
// Each captured checkpoint is tagged on the DAS as "{step}_TR_{i}", so that the checkpoints can be found again in
// the captured dataset.
type Recorder struct {
	applier Applier
	das     DataAcquisition
	clock   timeutils.Clock
	phases  int
	logger  *slog.Logger
}

func New(applier Applier, das DataAcquisition, clock timeutils.Clock, phases int) *Recorder {
	return &Recorder{
		applier: applier,
		das:     das,
		clock:   clock,
		phases:  phases,
		logger:  slog.Default().With("component", "recorder"),
	}
}

// ApplyAndCapture takes a baseline checkpoint, applies the setpoints of `step` and then takes `n` further checkpoints
// at `tr` intervals after the step was applied. If the recorder falls behind, the late checkpoints are taken
// straight away rather than skipped.
//
// An error is returned if the step could not be applied. Failed readings are logged and give a checkpoint with no
// values, which is evaluated as NaN.
func (r *Recorder) ApplyAndCapture(step steps.Step, tr time.Duration, n int) ([]telemetry.Checkpoint, error) {
	logger := r.logger.With("step", step.Label)
	checkpoints := make([]telemetry.Checkpoint, 0, n+1)

	baseline, err := r.checkpoint(step.Label, 0, nil)
	if err != nil {
		return nil, err
	}
	checkpoints = append(checkpoints, baseline)

	targets := make(map[telemetry.Axis]float64, len(step.Setpoints))
	axes := maps.Keys(step.Setpoints)
	slices.Sort(axes)
	for _, axis := range axes {
		setpoint := step.Setpoints[axis]
		value, err := r.applier.Apply(axis, setpoint)
		if err != nil {
			return nil, fmt.Errorf("apply %s setpoint %s: %w", axis, setpoint, err)
		}
		targets[axis] = value
	}
	applied := r.clock.Now()
	logger.Info("Applied step", "setpoints", step.Setpoints)

	for _, axis := range axes {
		err := r.das.SetSoftChannel(axis.TargetColumn(), targets[axis])
		if err != nil {
			logger.Warn("Failed to set target channel", "axis", axis, "error", err)
		}
	}

	for i := 1; i <= n; i++ {
		slept := timeutils.SleepUntil(r.clock, applied.Add(time.Duration(i)*tr))
		if slept == 0 && i > 1 {
			logger.Warn("Checkpoint is late", "index", i)
		}
		checkpoint, err := r.checkpoint(step.Label, i, targets)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, checkpoint)
	}

	return checkpoints, nil
}

// checkpoint tags the DAS with the checkpoint's event and reads the current measurements.
func (r *Recorder) checkpoint(label string, index int, targets map[telemetry.Axis]float64) (telemetry.Checkpoint, error) {
	event := fmt.Sprintf("%s_TR_%d", label, index)
	err := r.das.TagEvent(event)
	if err != nil {
		return telemetry.Checkpoint{}, fmt.Errorf("tag event %s: %w", event, err)
	}

	checkpoint := telemetry.Checkpoint{
		StepLabel: label,
		Index:     index,
		Time:      r.clock.Now(),
		Values:    make(map[telemetry.Axis]float64),
		Targets:   targets,
	}

	channels, err := r.das.ReadInstantaneous()
	if err != nil {
		r.logger.Warn("Failed to read measurements", "event", event, "error", err)
		return checkpoint, nil
	}
	for _, axis := range telemetry.Axes {
		checkpoint.Values[axis] = telemetry.Aggregate(channels, axis, r.phases)
	}
	return checkpoint, nil
}
