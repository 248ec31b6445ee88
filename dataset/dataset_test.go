package dataset

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/cepro/dercompliance/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSamples() []Sample {
	return []Sample{
		{Time: 0.0, Event: "", Channels: map[string]float64{"AC_VRMS_1": 240, "AC_P_1": 3000}},
		{Time: 0.5, Event: "Step G_TR_0", Channels: map[string]float64{"AC_VRMS_1": 240, "AC_P_1": 3000}},
		{Time: 1.0, Event: "Step G_TR_0", Channels: map[string]float64{"AC_VRMS_1": 250, "AC_P_1": 2900}},
		{Time: 2.0, Event: "Step G_TR_1", Channels: map[string]float64{"AC_VRMS_1": 250, "AC_P_1": 2100}},
		{Time: 2.5, Event: "Step G_TR_1", Channels: map[string]float64{"AC_VRMS_1": 250}},
	}
}

func TestFromSamples(t *testing.T) {
	ds, err := FromSamples(testSamples())
	require.NoError(t, err)

	assert.Equal(t, 5, ds.Len())
	assert.Equal(t, []string{"TIME", "EVENT", "AC_P_1", "AC_VRMS_1"}, ds.Names())
	assert.Equal(t, []string{"Step G_TR_0", "Step G_TR_1"}, ds.Events())

	power, err := ds.Column("AC_P_1")
	require.NoError(t, err)
	assert.Equal(t, []float64{3000, 3000, 2900, 2100}, power[:4])
	assert.True(t, math.IsNaN(power[4]), "missing channel")

	_, err = ds.Column("EVENT")
	assert.Error(t, err)
	_, err = ds.Column("AC_Q_1")
	assert.Error(t, err)
}

func TestFirstEvent(t *testing.T) {
	ds, err := FromSamples(testSamples())
	require.NoError(t, err)

	row, ok := ds.FirstEvent("Step G_TR_1")
	require.True(t, ok)
	assert.Equal(t, 2.0, row.Time)
	assert.Equal(t, "Step G_TR_1", row.Event)
	assert.Equal(t, 2100.0, row.Value("AC_P_1"))
	assert.True(t, math.IsNaN(row.Value("AC_Q_1")))

	_, ok = ds.FirstEvent("Step G_TR_4")
	assert.False(t, ok)
}

func TestCSVRoundTrip(t *testing.T) {
	ds, err := FromSamples(testSamples())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ds.WriteCSV(&buf))

	read, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, ds.Names(), read.Names())
	assert.Equal(t, ds.Len(), read.Len())

	row, ok := read.FirstEvent("Step G_TR_0")
	require.True(t, ok)
	assert.Equal(t, 0.5, row.Time)
	assert.Equal(t, 240.0, row.Value("AC_VRMS_1"))
}

func TestReadCSVRequiresColumns(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("TIME,AC_VRMS_1\n0,240\n"))
	assert.Error(t, err)
}

func TestWindow(t *testing.T) {
	ds, err := FromSamples(testSamples())
	require.NoError(t, err)

	window := ds.Window(0.5, 2.0)
	var times []float64
	for _, row := range window.Rows() {
		times = append(times, row.Time)
	}
	assert.Equal(t, []float64{0.5, 1.0}, times)
}

func TestWithMeasColumns(t *testing.T) {
	samples := []Sample{
		{Time: 0, Channels: map[string]float64{
			"AC_VRMS_1": 230, "AC_VRMS_2": 232, "AC_VRMS_3": 234,
			"AC_P_1": 1000, "AC_P_2": 1000, "AC_P_3": 1000,
		}},
	}
	ds, err := FromSamples(samples)
	require.NoError(t, err)

	withMeas := ds.WithMeasColumns([]telemetry.Axis{telemetry.AxisVoltage, telemetry.AxisActivePower, telemetry.AxisReactivePower}, 3)
	assert.Contains(t, withMeas.Names(), "V_MEAS")
	assert.Contains(t, withMeas.Names(), "P_MEAS")
	assert.NotContains(t, withMeas.Names(), "Q_MEAS")
	assert.NotContains(t, ds.Names(), "V_MEAS", "the original is not changed")

	row := withMeas.Rows()[0]
	assert.InDelta(t, 232, row.Value("V_MEAS"), 1e-9)
	assert.InDelta(t, 3000, row.Value("P_MEAS"), 1e-9)
}

func TestCurveIDFromFilename(t *testing.T) {

	type subTest struct {
		filename   string
		expectedID int
		expectedOK bool
	}

	subTests := []subTest{
		{"VW_CRV1_PWR_100.csv", 1, true},
		{"results/VV_CRV3_PWR_20.csv", 3, true},
		{"VRT_LV_CAT_2_91PCT_ABC.csv", 0, false},
	}

	for _, subTest := range subTests {
		t.Run(subTest.filename, func(t *testing.T) {
			id, ok := CurveIDFromFilename(subTest.filename)
			assert.Equal(t, subTest.expectedOK, ok)
			assert.Equal(t, subTest.expectedID, id)
		})
	}
}
