package steps

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/cepro/dercompliance/cartesian"
	"github.com/cepro/dercompliance/config"
	"github.com/cepro/dercompliance/criteria"
	"github.com/cepro/dercompliance/curves"
	"github.com/cepro/dercompliance/imbalance"
	"github.com/cepro/dercompliance/telemetry"
)

// Setpoint is the value commanded on one axis by a step. It is either numeric, or symbolic where the value is only
// resolved when the step is applied (as for the imbalanced voltage cases).
type Setpoint struct {
	Value float64
	Case  imbalance.Case
}

// Symbolic returns true if the setpoint names an imbalance case rather than holding a value.
func (s Setpoint) Symbolic() bool {
	return s.Case != ""
}

func (s Setpoint) String() string {
	if s.Symbolic() {
		return string(s.Case)
	}
	return fmt.Sprintf("%g", s.Value)
}

// Step is one perturbation of a test procedure, e.g. "Step G".
type Step struct {
	Label     string
	Setpoints map[telemetry.Axis]Setpoint

	// Condition is only set on ride-through steps
	Condition *Condition
}

// Setpoint returns the setpoint for the given axis, and false if the step does not command that axis.
func (s Step) Setpoint(axis telemetry.Axis) (Setpoint, bool) {
	setpoint, ok := s.Setpoints[axis]
	return setpoint, ok
}

// Limits holds the EUT's nominal values and the range that setpoints are kept within.
type Limits struct {
	VNom  float64
	VLow  float64
	VHigh float64
	FNom  float64
	FLow  float64 // zero means there is no lower limit
	FHigh float64 // zero means there is no upper limit
}

// RideThroughRequest selects the ride-through test condition table and its ordering.
type RideThroughRequest struct {
	Mode        RideThroughMode
	Consecutive bool
	// Random draws the residual voltages from the permitted ranges using Rand, rather than using the figure values
	Random bool
	Rand   *rand.Rand
	// StartupTime is the time in seconds from the start of the simulation to the first condition
	StartupTime float64
}

// Request describes the step sequence to build.
type Request struct {
	Function   Function
	Profile    Profile
	Curve      *curves.Curve // not used by ride-through
	Limits     Limits
	MRA        criteria.MRA
	Imbalanced bool

	// FreqWattAbove selects the over-frequency test, and the under-frequency test when false
	FreqWattAbove bool

	RideThrough RideThroughRequest
}

// Build returns the ordered steps of the requested test procedure. Labels start at "Step G" and keep the value
// assigned before any steps were elided.
func Build(req Request) ([]Step, error) {
	if req.Function != RideThrough && req.Curve == nil {
		return nil, config.Invalidf("no curve given for %s steps", req.Function)
	}
	if !req.Profile.Supports(req.Function) {
		return nil, config.Invalidf("%s does not define %s steps", req.Profile.Standard, req.Function)
	}

	switch req.Function {
	case VoltWatt:
		if req.Imbalanced {
			return imbalanceSteps(req.Limits)
		}
		return voltWattSteps(req)
	case VoltVar:
		if req.Imbalanced {
			return imbalanceSteps(req.Limits)
		}
		return voltVarSteps(req)
	case FreqWatt:
		return freqWattSteps(req)
	case RideThrough:
		return rideThroughSteps(req)
	}
	return nil, config.Invalidf("unknown function '%s'", req.Function)
}

// labeler hands out step labels in alphabetical order from "Step G".
type labeler struct {
	next byte
}

func newLabeler() *labeler {
	return &labeler{next: 'G'}
}

func (l *labeler) label() (string, error) {
	if l.next > 'Z' {
		return "", config.Invalidf("too many steps, ran out of labels after 'Step Z'")
	}
	label := fmt.Sprintf("Step %c", l.next)
	l.next++
	return label, nil
}

// level is a step on a single axis before rounding and clamping
type level struct {
	label string
	value float64
}

// labelLevels gives each of the values a label, in order.
func labelLevels(values []float64) ([]level, error) {
	labels := newLabeler()
	levels := make([]level, 0, len(values))
	for _, value := range values {
		label, err := labels.label()
		if err != nil {
			return nil, err
		}
		levels = append(levels, level{label: label, value: value})
	}
	return levels, nil
}

// elide removes the levels with the given labels.
func elide(levels []level, labels ...string) []level {
	result := levels[:0]
	for _, lvl := range levels {
		keep := true
		for _, label := range labels {
			if lvl.label == label {
				keep = false
				break
			}
		}
		if keep {
			result = append(result, lvl)
		}
	}
	return result
}

// toSteps rounds each level to `places` decimal places and then clamps it to [low, high], logging any clamping.
func toSteps(levels []level, axis telemetry.Axis, places int32, low, high float64) []Step {
	steps := make([]Step, 0, len(levels))
	for _, lvl := range levels {
		value := cartesian.Round(lvl.value, places)
		if value > high {
			slog.Info("Step setpoint clamped to upper limit", "step", lvl.label, "axis", axis, "value", value, "limit", high)
			value = high
		} else if value < low {
			slog.Info("Step setpoint clamped to lower limit", "step", lvl.label, "axis", axis, "value", value, "limit", low)
			value = low
		}
		steps = append(steps, Step{
			Label:     lvl.label,
			Setpoints: map[telemetry.Axis]Setpoint{axis: {Value: value}},
		})
	}
	return steps
}

func imbalanceSteps(limits Limits) ([]Step, error) {
	setpoints := []Setpoint{
		{Case: imbalance.CaseA},
		{Value: limits.VNom},
		{Case: imbalance.CaseB},
		{Value: limits.VNom},
	}

	labels := newLabeler()
	steps := make([]Step, 0, len(setpoints))
	for _, setpoint := range setpoints {
		label, err := labels.label()
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{
			Label:     label,
			Setpoints: map[telemetry.Axis]Setpoint{telemetry.AxisVoltage: setpoint},
		})
	}
	return steps, nil
}

// sameLevel compares two values in physical units after rounding them as the setpoints are rounded.
func sameLevel(a, b float64) bool {
	return cartesian.Round(a, 2) == cartesian.Round(b, 2)
}

func orInf(limit float64, sign float64) float64 {
	if limit == 0 {
		return math.Inf(int(sign))
	}
	return limit
}
