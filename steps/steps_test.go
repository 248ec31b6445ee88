package steps

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cepro/dercompliance/config"
	"github.com/cepro/dercompliance/criteria"
	"github.com/cepro/dercompliance/curves"
	"github.com/cepro/dercompliance/imbalance"
	"github.com/cepro/dercompliance/telemetry"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// limits240 are the limits of a 240V EUT with a range of 0.88 to 1.1 pu
var limits240 = Limits{VNom: 240, VLow: 211.2, VHigh: 264, FNom: 50}

var mra240 = criteria.NewMRA(240, 3000)

// approx compares floats to within rounding noise
var approx = cmpopts.EquateApprox(0, 1e-9)

func mustCurve(t *testing.T, document, category string, id int) *curves.Curve {
	t.Helper()
	doc, err := curves.Load(strings.NewReader(document))
	require.NoError(t, err)
	curve, err := doc.Curve(category, id)
	require.NoError(t, err)
	return &curve
}

func voltWattDocument(v1, v2 string) string {
	return `{"name": "VW", "measured_values": ["V", "P"], "x_values": ["V"], "y_values": ["P"],
		"Category B": {"curve1": {"VALUES": {"V1": ` + v1 + `, "V2": ` + v2 + `, "P1": 1.0, "P2": 0.0}, "TR": 10}}}`
}

// voltages returns the label and voltage setpoint of each step
type labelled struct {
	Label string
	V     float64
}

func voltages(steps []Step) []labelled {
	var result []labelled
	for _, step := range steps {
		result = append(result, labelled{step.Label, step.Setpoints[telemetry.AxisVoltage].Value})
	}
	return result
}

func frequencies(steps []Step) []labelled {
	var result []labelled
	for _, step := range steps {
		result = append(result, labelled{step.Label, step.Setpoints[telemetry.AxisFrequency].Value})
	}
	return result
}

func TestVoltWattSteps(t *testing.T) {

	fullSweep := []labelled{
		{"Step G", 214.8}, {"Step H", 212.4}, {"Step I", 219.6}, {"Step J", 240}, {"Step K", 260.4},
		{"Step L", 264}, {"Step M", 260.4}, {"Step N", 264}, {"Step O", 260.4}, {"Step P", 240},
		{"Step Q", 219.6}, {"Step R", 212.4}, {"Step S", 214.8},
	}

	type subTest struct {
		name     string
		profile  Profile
		v1, v2   string
		expected []labelled
	}

	subTests := []subTest{
		{
			name:    "V2 at the upper limit",
			profile: IEEE1547dot1,
			v1:      "0.9", v2: "1.1",
			expected: fullSweep,
		},
		{
			name:    "V2 at the upper limit, repeated levels elided",
			profile: UL1741SB,
			v1:      "0.9", v2: "1.1",
			expected: fullSweep[1:12],
		},
		{
			name:    "V2 above the upper limit",
			profile: IEEE1547dot1,
			v1:      "1.06", v2: "1.12",
			expected: []labelled{
				{"Step G", 214.8}, {"Step H", 250.8}, {"Step I", 258}, {"Step J", 261.6},
				{"Step P", 261.6}, {"Step Q", 258}, {"Step R", 250.8}, {"Step S", 214.8},
			},
		},
		{
			name:    "V2 below the upper limit keeps every step",
			profile: UL1741SB,
			v1:      "1.06", v2: "1.08",
			expected: []labelled{
				{"Step G", 214.8}, {"Step H", 250.8}, {"Step I", 258}, {"Step J", 256.8}, {"Step K", 255.6},
				{"Step L", 262.8}, {"Step M", 260.4}, {"Step N", 262.8}, {"Step O", 255.6}, {"Step P", 256.8},
				{"Step Q", 258}, {"Step R", 250.8}, {"Step S", 214.8},
			},
		},
	}

	for _, subTest := range subTests {
		t.Run(subTest.name, func(t *testing.T) {
			steps, err := Build(Request{
				Function: VoltWatt,
				Profile:  subTest.profile,
				Curve:    mustCurve(t, voltWattDocument(subTest.v1, subTest.v2), "Category B", 1),
				Limits:   limits240,
				MRA:      mra240,
			})
			require.NoError(t, err)
			if diff := cmp.Diff(subTest.expected, voltages(steps), approx); diff != "" {
				t.Errorf("Steps mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVoltWattSymmetricSweep(t *testing.T) {
	steps, err := Build(Request{
		Function: VoltWatt,
		Profile:  IEEE1547dot1,
		Curve:    mustCurve(t, voltWattDocument("0.9", "1.1"), "Category B", 1),
		Limits:   limits240,
		MRA:      mra240,
	})
	require.NoError(t, err)

	first := steps[0].Setpoints[telemetry.AxisVoltage].Value
	last := steps[len(steps)-1].Setpoints[telemetry.AxisVoltage].Value
	assert.InDelta(t, limits240.VLow+1.5*mra240.V, first, 1e-9)
	assert.Equal(t, first, last)

	for _, step := range steps {
		v := step.Setpoints[telemetry.AxisVoltage].Value
		assert.GreaterOrEqual(t, v, limits240.VLow, step.Label)
		assert.LessOrEqual(t, v, limits240.VHigh, step.Label)
	}
}

func TestVoltVarSteps(t *testing.T) {
	curve, err := curves.NewCatalog(nil).Curve("IEEE1547dot1", "VV", "Category B", 1)
	require.NoError(t, err)

	steps, err := Build(Request{
		Function: VoltVar,
		Profile:  IEEE1547dot1,
		Curve:    &curve,
		Limits:   limits240,
		MRA:      mra240,
	})
	require.NoError(t, err)

	expected := []labelled{
		{"Step G", 241.2}, {"Step H", 248.4}, {"Step I", 252}, {"Step J", 255.6}, {"Step K", 262.8},
		{"Step L", 260.4}, {"Step M", 262.8}, {"Step N", 255.6}, {"Step O", 252}, {"Step P", 248.4},
		{"Step Q", 241.2}, {"Step R", 240}, {"Step S", 238.8}, {"Step T", 231.6}, {"Step U", 228},
		{"Step V", 224.4}, {"Step W", 217.2}, {"Step X", 214.8}, {"Step Y", 240},
	}
	if diff := cmp.Diff(expected, voltages(steps), approx); diff != "" {
		t.Errorf("Steps mismatch (-want +got):\n%s", diff)
	}
}

func TestFreqWattSteps(t *testing.T) {
	catalog := curves.NewCatalog(nil)
	above, err := catalog.Curve("EN50549-10", "FW", "Above", 1)
	require.NoError(t, err)
	under, err := catalog.Curve("EN50549-10", "FW", "Under", 1)
	require.NoError(t, err)

	type subTest struct {
		name     string
		curve    curves.Curve
		above    bool
		fHigh    float64
		expected []labelled
		invalid  bool
	}

	subTests := []subTest{
		{
			name:  "over-frequency",
			curve: above,
			above: true,
			expected: []labelled{
				{"Step G", 50.185}, {"Step H", 50.215}, {"Step I", 51.45}, {"Step J", 52.685}, {"Step K", 52.715},
				{"Step L", 52.685}, {"Step M", 51.45}, {"Step N", 50.215}, {"Step O", 50.185}, {"Step P", 50},
			},
		},
		{
			name:  "over-frequency with the far breakpoint above the limit",
			curve: above,
			above: true,
			fHigh: 52,
			expected: []labelled{
				{"Step G", 50.185}, {"Step H", 50.215}, {"Step I", 51.45},
				{"Step M", 51.45}, {"Step N", 50.215}, {"Step O", 50.185}, {"Step P", 50},
			},
		},
		{
			name:  "under-frequency",
			curve: under,
			above: false,
			expected: []labelled{
				{"Step G", 49.815}, {"Step H", 49.785}, {"Step I", 48.55}, {"Step J", 47.315}, {"Step K", 47.285},
				{"Step L", 47.315}, {"Step M", 48.55}, {"Step N", 49.785}, {"Step O", 49.815}, {"Step P", 50},
			},
		},
		{
			name:    "curve in the wrong direction",
			curve:   under,
			above:   true,
			invalid: true,
		},
	}

	for _, subTest := range subTests {
		t.Run(subTest.name, func(t *testing.T) {
			limits := limits240
			limits.FHigh = subTest.fHigh
			steps, err := Build(Request{
				Function:      FreqWatt,
				Profile:       EN50549,
				Curve:         &subTest.curve,
				Limits:        limits,
				MRA:           mra240,
				FreqWattAbove: subTest.above,
			})
			if subTest.invalid {
				assert.ErrorIs(t, err, config.ErrInvalid)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(subTest.expected, frequencies(steps), approx); diff != "" {
				t.Errorf("Steps mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestImbalanceSteps(t *testing.T) {
	steps, err := Build(Request{
		Function:   VoltWatt,
		Profile:    IEEE1547dot1,
		Curve:      mustCurve(t, voltWattDocument("1.06", "1.1"), "Category B", 1),
		Limits:     limits240,
		MRA:        mra240,
		Imbalanced: true,
	})
	require.NoError(t, err)

	expected := []Step{
		{Label: "Step G", Setpoints: map[telemetry.Axis]Setpoint{telemetry.AxisVoltage: {Case: imbalance.CaseA}}},
		{Label: "Step H", Setpoints: map[telemetry.Axis]Setpoint{telemetry.AxisVoltage: {Value: 240}}},
		{Label: "Step I", Setpoints: map[telemetry.Axis]Setpoint{telemetry.AxisVoltage: {Case: imbalance.CaseB}}},
		{Label: "Step J", Setpoints: map[telemetry.Axis]Setpoint{telemetry.AxisVoltage: {Value: 240}}},
	}
	if diff := cmp.Diff(expected, steps); diff != "" {
		t.Errorf("Steps mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, steps[0].Setpoints[telemetry.AxisVoltage].Symbolic())
	assert.Equal(t, "case_a", steps[0].Setpoints[telemetry.AxisVoltage].String())
}

func TestLabelsAreUniqueAndIncreasing(t *testing.T) {
	catalog := curves.NewCatalog(nil)

	requests := map[string]Request{}
	for _, profile := range []Profile{IEEE1547dot1, UL1741SB} {
		for id := 1; id <= 3; id++ {
			vw, err := catalog.Curve(profile.Standard, "VW", "Category B", id)
			require.NoError(t, err)
			vv, err := catalog.Curve(profile.Standard, "VV", "Category B", id)
			require.NoError(t, err)
			requests[fmt.Sprintf("%s VW curve%d", profile.Standard, id)] = Request{Function: VoltWatt, Profile: profile, Curve: &vw, Limits: limits240, MRA: mra240}
			requests[fmt.Sprintf("%s VV curve%d", profile.Standard, id)] = Request{Function: VoltVar, Profile: profile, Curve: &vv, Limits: limits240, MRA: mra240}
		}
	}
	for _, mode := range []RideThroughMode{LVCat2, LVCat3, HVCat2, HVCat3} {
		requests["VRT "+string(mode)] = Request{
			Function:    RideThrough,
			Profile:     IEEE1547dot1,
			Limits:      limits240,
			MRA:         mra240,
			RideThrough: RideThroughRequest{Mode: mode, Consecutive: true},
		}
	}

	for name, req := range requests {
		t.Run(name, func(t *testing.T) {
			steps, err := Build(req)
			require.NoError(t, err)
			require.NotEmpty(t, steps)
			for i := 1; i < len(steps); i++ {
				assert.Less(t, steps[i-1].Label, steps[i].Label)
			}
		})
	}
}

func TestLabelerRunsOut(t *testing.T) {
	labels := newLabeler()
	for i := 0; i < 20; i++ {
		_, err := labels.label()
		require.NoError(t, err)
	}
	_, err := labels.label()
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(Request{Function: VoltWatt, Profile: IEEE1547dot1, Limits: limits240, MRA: mra240})
	assert.ErrorIs(t, err, config.ErrInvalid, "missing curve")

	curve := mustCurve(t, voltWattDocument("1.06", "1.1"), "Category B", 1)
	_, err = Build(Request{Function: FreqWatt, Profile: IEEE1547dot1, Curve: curve, Limits: limits240, MRA: mra240})
	assert.ErrorIs(t, err, config.ErrInvalid, "function not in profile")

	_, err = ProfileFor("IEEE1547")
	assert.ErrorIs(t, err, config.ErrInvalid)

	profile, err := ProfileFor("UL1741SB")
	require.NoError(t, err)
	assert.Equal(t, "UL1741_summary.csv", profile.SummaryFilename)
}
