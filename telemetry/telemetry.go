package telemetry

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Axis identifies a measured or commanded electrical quantity.
type Axis string

const (
	AxisVoltage       Axis = "V"
	AxisCurrent       Axis = "I"
	AxisActivePower   Axis = "P"
	AxisReactivePower Axis = "Q"
	AxisApparentPower Axis = "S"
	AxisFrequency     Axis = "F"
	AxisPowerFactor   Axis = "PF"
)

// Axes lists every axis in a fixed order.
var Axes = []Axis{
	AxisVoltage,
	AxisCurrent,
	AxisActivePower,
	AxisReactivePower,
	AxisApparentPower,
	AxisFrequency,
	AxisPowerFactor,
}

// channelRoots maps each axis onto the root name of its per-phase DAS channels, e.g. AC_VRMS_1, AC_VRMS_2.
var channelRoots = map[Axis]string{
	AxisVoltage:       "AC_VRMS",
	AxisCurrent:       "AC_IRMS",
	AxisActivePower:   "AC_P",
	AxisReactivePower: "AC_Q",
	AxisApparentPower: "AC_S",
	AxisFrequency:     "AC_FREQ",
	AxisPowerFactor:   "AC_PF",
}

// ParseAxis returns the Axis with the given short name (e.g. "V").
func ParseAxis(name string) (Axis, error) {
	axis := Axis(name)
	if _, ok := channelRoots[axis]; !ok {
		return "", fmt.Errorf("unknown measurement axis '%s'", name)
	}
	return axis, nil
}

// ChannelRoot returns the root of the DAS channel names for this axis.
func (a Axis) ChannelRoot() string {
	return channelRoots[a]
}

// PhaseChannel returns the DAS channel name for the given phase (1-based).
func (a Axis) PhaseChannel(phase int) string {
	return fmt.Sprintf("%s_%d", channelRoots[a], phase)
}

// MeasColumn returns the name of the aggregated measurement column, e.g. "V_MEAS".
func (a Axis) MeasColumn() string {
	return string(a) + "_MEAS"
}

// TargetColumn returns the name of the commanded target soft channel, e.g. "V_TARGET".
func (a Axis) TargetColumn() string {
	return string(a) + "_TARGET"
}

// Summed returns true if per-phase values of this axis are summed to give the total, rather than averaged.
func (a Axis) Summed() bool {
	switch a {
	case AxisActivePower, AxisReactivePower, AxisApparentPower, AxisCurrent:
		return true
	}
	return false
}

// Aggregate combines the per-phase channels of `axis` found in `channels` into a single value.
// Power and current are summed over the phases, everything else is averaged. NaN is returned if any phase is missing.
func Aggregate(channels map[string]float64, axis Axis, phases int) float64 {
	if phases < 1 {
		return math.NaN()
	}
	total := 0.0
	for phase := 1; phase <= phases; phase++ {
		val, ok := channels[axis.PhaseChannel(phase)]
		if !ok {
			return math.NaN()
		}
		total += val
	}
	if axis.Summed() {
		return total
	}
	return total / float64(phases)
}

// Checkpoint holds the measurements taken at one response-time multiple of a step.
// Index 0 is the baseline taken just before the step is applied.
type Checkpoint struct {
	StepLabel string
	Index     int
	Time      time.Time
	Values    map[Axis]float64

	// Targets holds the setpoints that were in force when the checkpoint was taken
	Targets map[Axis]float64
}

// Value returns the value of the given axis, or NaN if it was not measured.
func (c Checkpoint) Value(axis Axis) float64 {
	val, ok := c.Values[axis]
	if !ok {
		return math.NaN()
	}
	return val
}

// Target returns the setpoint of the given axis, or NaN if the axis was not commanded.
func (c Checkpoint) Target(axis Axis) float64 {
	val, ok := c.Targets[axis]
	if !ok {
		return math.NaN()
	}
	return val
}

// Verdict is the outcome of one pass/fail criterion. The zero value means the criterion could not be evaluated.
type Verdict string

const (
	VerdictNone Verdict = ""
	VerdictPass Verdict = "Pass"
	VerdictFail Verdict = "Fail"
)

// VerdictOf returns VerdictPass if `pass` is true, and VerdictFail otherwise.
func VerdictOf(pass bool) Verdict {
	if pass {
		return VerdictPass
	}
	return VerdictFail
}

// ResultRow holds the evaluation of a single step within a single test configuration.
// Rows are append-only: once written to a sink they are never altered.
type ResultRow struct {
	ID        uuid.UUID
	RunID     uuid.UUID
	CreatedAt time.Time
	Standard  string
	Function  string

	XAxis Axis
	YAxis Axis

	XMeas      float64
	XTarget    float64
	YMeas      float64
	YTarget    float64
	YTargetMin float64
	YTargetMax float64

	WithinBoundsTR1 Verdict // is the y-value within the target band at the first response time
	WithinBoundsTRN Verdict // is the y-value within the target band at steady state
	Within90PctTR1  Verdict // does the y-value follow the open loop response at the first response time

	Step     string
	Filename string
}

// NewResultRow returns a row with a fresh ID and every derived value set to NaN.
func NewResultRow(runID uuid.UUID, step, filename string) ResultRow {
	return ResultRow{
		ID:         uuid.New(),
		RunID:      runID,
		CreatedAt:  time.Now(),
		XMeas:      math.NaN(),
		XTarget:    math.NaN(),
		YMeas:      math.NaN(),
		YTarget:    math.NaN(),
		YTargetMin: math.NaN(),
		YTargetMax: math.NaN(),
		Step:       step,
		Filename:   filename,
	}
}
