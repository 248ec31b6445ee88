package telemetry

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAggregate(t *testing.T) {

	channels := map[string]float64{
		"AC_VRMS_1": 230,
		"AC_VRMS_2": 231,
		"AC_VRMS_3": 232,
		"AC_P_1":    1000,
		"AC_P_2":    1100,
		"AC_P_3":    900,
	}

	type subTest struct {
		name     string
		axis     Axis
		phases   int
		expected float64
	}

	subTests := []subTest{
		{"Voltage averaged over three phases", AxisVoltage, 3, 231},
		{"Voltage on a single phase", AxisVoltage, 1, 230},
		{"Power summed over three phases", AxisActivePower, 3, 3000},
		{"Power summed over two phases", AxisActivePower, 2, 2100},
		{"Missing channel", AxisReactivePower, 3, math.NaN()},
		{"No phases", AxisVoltage, 0, math.NaN()},
	}

	for _, subTest := range subTests {
		t.Run(subTest.name, func(t *testing.T) {
			val := Aggregate(channels, subTest.axis, subTest.phases)
			if math.IsNaN(subTest.expected) {
				assert.True(t, math.IsNaN(val), "expected NaN, got %f", val)
				return
			}
			assert.InDelta(t, subTest.expected, val, 1e-9)
		})
	}
}

func TestAxisNames(t *testing.T) {
	axis, err := ParseAxis("Q")
	assert.NoError(t, err)
	assert.Equal(t, AxisReactivePower, axis)
	assert.Equal(t, "AC_Q_2", axis.PhaseChannel(2))
	assert.Equal(t, "Q_MEAS", axis.MeasColumn())
	assert.Equal(t, "Q_TARGET", axis.TargetColumn())

	_, err = ParseAxis("Z")
	assert.Error(t, err)
}

func TestNewResultRow(t *testing.T) {
	runID := uuid.New()
	row := NewResultRow(runID, "Step G", "VW_CRV1_PWR_100.csv")

	assert.Equal(t, runID, row.RunID)
	assert.NotEqual(t, uuid.Nil, row.ID)
	assert.True(t, math.IsNaN(row.YTarget))
	assert.Equal(t, VerdictNone, row.WithinBoundsTR1)

	checkpoint := Checkpoint{Values: map[Axis]float64{AxisVoltage: 230}}
	assert.Equal(t, 230.0, checkpoint.Value(AxisVoltage))
	assert.True(t, math.IsNaN(checkpoint.Value(AxisActivePower)))
}
