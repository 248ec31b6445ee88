package steps

import (
	"math/rand"
	"strings"

	"github.com/cepro/dercompliance/cartesian"
	"github.com/cepro/dercompliance/config"
	"github.com/cepro/dercompliance/telemetry"
)

// RideThroughMode combines the direction of the voltage disturbance with the EUT's performance category.
type RideThroughMode string

const (
	LVCat2 RideThroughMode = "LV_CAT_2"
	LVCat3 RideThroughMode = "LV_CAT_3"
	HVCat2 RideThroughMode = "HV_CAT_2"
	HVCat3 RideThroughMode = "HV_CAT_3"
)

func ParseRideThroughMode(name string) (RideThroughMode, error) {
	mode := RideThroughMode(strings.ToUpper(name))
	switch mode {
	case LVCat2, LVCat3, HVCat2, HVCat3:
		return mode, nil
	}
	return "", config.Invalidf("unknown ride-through mode '%s'", name)
}

// maxConditions is the number of conditions that the HIL model accepts.
const maxConditions = 20

// Condition is one segment of a ride-through test signal.
type Condition struct {
	Name        string  // e.g. "B" or "D'"
	ID          float64 // 1 for A, 2 for B and so on, primes add 10 so that D' is 14
	MinDuration float64 // seconds
	Residual    float64 // per-unit voltage held for the duration
	Start       float64 // seconds from the start of the simulation
	End         float64
}

type conditionSpec struct {
	id       float64
	duration float64
	figure   float64 // residual voltage in the standard's figure
	low      float64 // range that random residual voltages are drawn from
	high     float64
}

type rideThroughTable struct {
	names       []string // in the order that random values are drawn
	conditions  map[string]conditionSpec
	consecutive []string
	independent []string
}

// tableFor returns the test conditions for the mode, where `m` is the voltage MRA in per-unit.
func tableFor(mode RideThroughMode, m float64) rideThroughTable {
	switch mode {
	case LVCat2:
		return rideThroughTable{
			names: []string{"A", "B", "C", "D", "D'", "E", "F"},
			conditions: map[string]conditionSpec{
				"A":  {1, 10, 0.94, 0.88 + 2*m, 1.0},
				"B":  {2, 0.16, 0.3 - 2*m, 0.0, 0.3 - 2*m},
				"C":  {3, 0.16, 0.45 - 2*m, 0.0, 0.45 - 2*m},
				"D":  {4, 2.68, 0.65, 0.45 + 2*m, 0.65 - 2*m},
				"D'": {14, 7.68, 0.67 + 2*m, 0.67, 0.88 - 2*m},
				"E":  {5, 2.0, 0.88, 0.65 + 2*m, 0.88 - 2*m},
				"F":  {6, 120, 0.94, 0.88 + 2*m, 1.0},
			},
			consecutive: []string{
				"A", "B", "C", "D", "E",
				"A", "B", "C", "D", "E", "F",
				"A", "B", "C", "D'", "F",
			},
			independent: []string{"A", "B", "C", "D", "E", "F"},
		}
	case LVCat3:
		return rideThroughTable{
			names: []string{"A", "B", "C", "C'", "D", "E"},
			conditions: map[string]conditionSpec{
				"A":  {1, 5, 0.94, 0.88 + 2*m, 1.0},
				"B":  {2, 1, 0.05 - 2*m, 0.0, 0.05 - 2*m},
				"C":  {3, 9, 0.5 - 2*m, 0.0, 0.5 - 2*m},
				"C'": {13, 9, 0.52 + 2*m, 0.52, 0.7 - 2*m},
				"D":  {4, 10, 0.7, 0.5 + 2*m, 0.7 - 2*m},
				"E":  {5, 120, 0.94, 0.88 + 2*m, 1.0},
			},
			consecutive: []string{
				"A", "B", "C", "D",
				"A", "B", "C", "D",
				"A", "B", "C", "D", "E",
				"A", "B", "C'", "D", "E",
			},
			independent: []string{"A", "B", "C", "D", "E"},
		}
	case HVCat2:
		return rideThroughTable{
			names: []string{"A", "B", "C", "D", "E"},
			conditions: map[string]conditionSpec{
				"A": {1, 10, 1.0, 1.0, 1.1 - 2*m},
				"B": {2, 0.2, 1.2 - 2*m, 1.18, 1.2},
				"C": {3, 0.3, 1.175, 1.155, 1.175},
				"D": {4, 0.5, 1.15, 1.13, 1.15},
				"E": {5, 120, 1.0, 1.0, 1.1 - 2*m},
			},
			consecutive: []string{
				"A", "B", "C", "D",
				"A", "B", "C", "D", "E",
			},
			independent: []string{"A", "B", "C", "D", "E"},
		}
	default:
		return rideThroughTable{
			names: []string{"A", "B", "B'", "C"},
			conditions: map[string]conditionSpec{
				"A":  {1, 5, 1.05, 1.0, 1.1 - 2*m},
				"B":  {2, 12, 1.2 - 2*m, 1.18, 1.2},
				"B'": {12, 12, 1.12, 1.12, 1.2},
				"C":  {3, 120, 1.05, 1.0, 1.1 - 2*m},
			},
			consecutive: []string{
				"A", "B",
				"A", "B",
				"A", "B", "C",
				"A", "B'", "C",
			},
			independent: []string{"A", "B", "C"},
		}
	}
}

// rideThroughSteps lays the conditions of the test signal end to end, starting once the EUT has had time to start up.
func rideThroughSteps(req Request) ([]Step, error) {
	rt := req.RideThrough
	if _, err := ParseRideThroughMode(string(rt.Mode)); err != nil {
		return nil, err
	}
	if rt.Random && rt.Rand == nil {
		return nil, config.Invalidf("random ride-through residuals need a random source")
	}

	table := tableFor(rt.Mode, req.MRA.V/req.Limits.VNom)

	residuals := make(map[string]float64, len(table.names))
	for _, name := range table.names {
		spec := table.conditions[name]
		residuals[name] = spec.figure
		if rt.Random {
			residuals[name] = spec.low + rt.Rand.Float64()*(spec.high-spec.low)
		}
	}

	sequence := table.independent
	if rt.Consecutive {
		sequence = table.consecutive
	}
	if len(sequence) > maxConditions {
		return nil, config.Invalidf("%d ride-through conditions is more than the %d the HIL accepts", len(sequence), maxConditions)
	}

	labels := newLabeler()
	steps := make([]Step, 0, len(sequence))
	start := rt.StartupTime
	for _, name := range sequence {
		label, err := labels.label()
		if err != nil {
			return nil, err
		}
		spec := table.conditions[name]
		condition := &Condition{
			Name:        name,
			ID:          spec.id,
			MinDuration: spec.duration,
			Residual:    residuals[name],
			Start:       start,
			End:         start + spec.duration,
		}
		start = condition.End

		steps = append(steps, Step{
			Label: label,
			Setpoints: map[telemetry.Axis]Setpoint{
				telemetry.AxisVoltage: {Value: cartesian.Round(condition.Residual*req.Limits.VNom, 2)},
			},
			Condition: condition,
		})
	}

	return steps, nil
}

// Parameter is a named model parameter on the HIL rig.
type Parameter struct {
	Name   string
	Values []float64
}

// RideThroughParameters encodes the conditions of the steps as the parameters of the HIL ride-through model. The
// condition lists are padded with zeros to the length the model expects.
func RideThroughParameters(steps []Step) ([]Parameter, error) {
	var ids, starts, ends, values []float64
	for _, step := range steps {
		if step.Condition == nil {
			return nil, config.Invalidf("%s is not a ride-through step", step.Label)
		}
		ids = append(ids, step.Condition.ID)
		starts = append(starts, step.Condition.Start)
		ends = append(ends, step.Condition.End)
		values = append(values, step.Condition.Residual)
	}
	if len(ids) > maxConditions {
		return nil, config.Invalidf("%d ride-through conditions is more than the %d the HIL accepts", len(ids), maxConditions)
	}

	return []Parameter{
		{Name: "MODE", Values: []float64{3.0}},
		{Name: "VRT_CONDITION", Values: pad(ids, maxConditions)},
		{Name: "VRT_START_TIMING", Values: pad(starts, maxConditions)},
		{Name: "VRT_END_TIMING", Values: pad(ends, maxConditions)},
		{Name: "VRT_VALUES", Values: pad(values, maxConditions)},
	}, nil
}

// PhaseParameters enables the ride-through on each of the phases in `phases`, e.g. "AB".
func PhaseParameters(phases string) []Parameter {
	var params []Parameter
	for _, phase := range strings.ToUpper(phases) {
		params = append(params, Parameter{Name: "VRT_PH" + string(phase) + "_ENABLE", Values: []float64{1.0}})
	}
	return params
}

// StopTime returns the simulation time at which the ride-through test is complete: 5 seconds after the last
// condition ends.
func StopTime(steps []Step) float64 {
	if len(steps) == 0 || steps[len(steps)-1].Condition == nil {
		return 0
	}
	return steps[len(steps)-1].Condition.End + 5
}

func pad(values []float64, length int) []float64 {
	padded := make([]float64, length)
	copy(padded, values)
	return padded
}

// NewRand returns a random source for ride-through residuals. A zero seed is replaced by a fixed one so that runs
// can be repeated.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = 1547
	}
	return rand.New(rand.NewSource(seed))
}
