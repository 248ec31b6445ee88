package sim

import (
	"testing"
	"time"

	"github.com/cepro/dercompliance/bench"
	"github.com/cepro/dercompliance/steps"
	timeutils "github.com/cepro/dercompliance/time_utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNameplate = Nameplate{VNom: 240, PRated: 3000, SRated: 3000, VarRated: 1320, FNom: 50, Phases: 1}

func newTestPlant(t *testing.T, phases int) (*Plant, *timeutils.ManualClock, bench.Devices) {
	t.Helper()
	clock := timeutils.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	nameplate := testNameplate
	nameplate.Phases = phases
	plant := NewPlant(clock, nameplate, 100*time.Millisecond)
	return plant, clock, plant.Devices()
}

func TestVoltWattResponse(t *testing.T) {
	plant, clock, devices := newTestPlant(t, 1)

	require.NoError(t, devices.EUT.ApplyCurve(bench.CurveSettings{
		Function:     steps.VoltWatt,
		X:            []float64{1.06, 1.1},
		Y:            []float64{1.0, 0.2},
		ResponseTime: 10 * time.Second,
	}))
	require.NoError(t, devices.PV.SetPower(3000))
	require.NoError(t, devices.PV.PowerOn())

	clock.Advance(100 * time.Second)
	p, q := plant.Output()
	assert.InDelta(t, 3000, p, 1e-6)
	assert.Equal(t, 0.0, q)

	// 1.08 pu is half way down the curve, so the target is 0.6 pu
	require.NoError(t, devices.Grid.SetVoltage(259.2))
	clock.Advance(10 * time.Second)
	p, _ = plant.Output()
	assert.InDelta(t, 1920, p, 1e-6, "90% of the change is covered after one response time")

	clock.Advance(100 * time.Second)
	p, _ = plant.Output()
	assert.InDelta(t, 1800, p, 1e-6)
}

func TestVoltVarResponse(t *testing.T) {
	plant, clock, devices := newTestPlant(t, 1)

	require.NoError(t, devices.EUT.ApplyCurve(bench.CurveSettings{
		Function: steps.VoltVar,
		X:        []float64{0.92, 0.98, 1.02, 1.08},
		Y:        []float64{0.44, 0, 0, -0.44},
	}))
	require.NoError(t, devices.PV.SetPower(2000))
	require.NoError(t, devices.PV.PowerOn())
	require.NoError(t, devices.Grid.SetVoltage(259.2))

	clock.Advance(time.Second)
	p, q := plant.Output()
	assert.InDelta(t, 2000, p, 1e-9)
	assert.InDelta(t, -580.8, q, 1e-9)
}

func TestFreqWattRespectsAvailablePower(t *testing.T) {
	plant, clock, devices := newTestPlant(t, 1)

	require.NoError(t, devices.EUT.ApplyCurve(bench.CurveSettings{
		Function: steps.FreqWatt,
		X:        []float64{1.004, 1.054},
		Y:        []float64{1.0, 0.0},
	}))
	require.NoError(t, devices.PV.SetPower(600))
	require.NoError(t, devices.PV.PowerOn())

	clock.Advance(time.Second)
	p, _ := plant.Output()
	assert.InDelta(t, 600, p, 1e-9, "output is limited by the available power")

	require.NoError(t, devices.Grid.SetFrequency(52.7))
	clock.Advance(time.Second)
	p, _ = plant.Output()
	assert.InDelta(t, 0, p, 1e-9)
}

func TestCurveErrors(t *testing.T) {
	_, _, devices := newTestPlant(t, 1)
	assert.Error(t, devices.EUT.ApplyCurve(bench.CurveSettings{Function: steps.VoltWatt, X: []float64{1.0}, Y: []float64{1.0}}))
	assert.Error(t, devices.EUT.ApplyCurve(bench.CurveSettings{Function: steps.RideThrough, X: []float64{1, 2}, Y: []float64{1, 2}}))
}

func TestCapture(t *testing.T) {
	_, clock, devices := newTestPlant(t, 3)
	das := devices.DAS

	require.NoError(t, devices.PV.SetPower(3000))
	require.NoError(t, devices.PV.PowerOn())
	require.NoError(t, das.StartCapture())
	require.NoError(t, das.TagEvent("Step G_TR_0"))
	require.NoError(t, das.SetSoftChannel("V_TARGET", 240))

	clock.Advance(450 * time.Millisecond)
	require.NoError(t, das.TagEvent("Step G_TR_1"))
	clock.Advance(550 * time.Millisecond)
	reading, err := das.ReadInstantaneous()
	require.NoError(t, err)
	require.NoError(t, das.StopCapture())
	clock.Advance(time.Second)

	assert.Equal(t, 1000.0, reading["AC_P_3"], "power is split between the phases")
	assert.Equal(t, 240.0, reading["V_TARGET"])
	assert.InDelta(t, 1000.0/240.0, reading["AC_IRMS_1"], 1e-9)

	ds, err := das.Dataset()
	require.NoError(t, err)
	assert.Equal(t, 10, ds.Len(), "samples every 100ms until the capture stopped at 1s")

	row, ok := ds.FirstEvent("Step G_TR_1")
	require.True(t, ok)
	assert.InDelta(t, 0.5, row.Time, 1e-9)
	assert.Equal(t, 240.0, row.Value("V_TARGET"))
	assert.Equal(t, 50.0, row.Value("AC_FREQ_2"))
}

func TestHILRideThrough(t *testing.T) {
	_, clock, devices := newTestPlant(t, 3)
	hil := devices.HIL

	_, err := hil.SimulationTime()
	assert.Error(t, err, "not running yet")

	params := map[string][]float64{
		"VRT_CONDITION":    {1, 2, 0},
		"VRT_START_TIMING": {0, 5, 0},
		"VRT_END_TIMING":   {5, 10, 0},
		"VRT_VALUES":       {0.5, 0.9, 0},
		"VRT_PHA_ENABLE":   {1},
		"VRT_PHC_ENABLE":   {1},
	}
	for name, values := range params {
		require.NoError(t, hil.SetParameter(name, values))
	}
	require.NoError(t, hil.StartSimulation())

	type subTest struct {
		advance time.Duration
		phases  [3]float64
	}
	subTests := []subTest{
		{advance: 2 * time.Second, phases: [3]float64{120, 240, 120}},
		{advance: 4 * time.Second, phases: [3]float64{216, 240, 216}},
		{advance: 5 * time.Second, phases: [3]float64{240, 240, 240}},
	}
	for _, st := range subTests {
		clock.Advance(st.advance)
		reading, err := devices.DAS.ReadInstantaneous()
		require.NoError(t, err)
		assert.InDeltaSlice(t, st.phases[:], []float64{reading["AC_VRMS_1"], reading["AC_VRMS_2"], reading["AC_VRMS_3"]}, 1e-9)
	}

	simTime, err := hil.SimulationTime()
	require.NoError(t, err)
	assert.InDelta(t, 11.0, simTime, 1e-9)

	require.NoError(t, hil.StopSimulation())
	reading, err := devices.DAS.ReadInstantaneous()
	require.NoError(t, err)
	assert.Equal(t, 240.0, reading["AC_VRMS_1"])
}
