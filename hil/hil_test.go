package hil

import (
	"testing"

	"github.com/cepro/dercompliance/config"
	"github.com/cepro/dercompliance/modbus/modbustest"
	"github.com/cepro/dercompliance/steps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRig(t *testing.T) (*Rig, *modbustest.Server) {
	srv, err := modbustest.NewServer()
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	rig, err := New(srv.Addr, 1)
	require.NoError(t, err)
	t.Cleanup(func() { rig.Close() })
	return rig, srv
}

func TestRideThroughParameters(t *testing.T) {
	rig, srv := newTestRig(t)

	rtSteps := []steps.Step{
		{Label: "Step G", Condition: &steps.Condition{ID: 1, Start: 10, End: 20, Residual: 0.5}},
		{Label: "Step H", Condition: &steps.Condition{ID: 2, Start: 20, End: 20.25, Residual: 0.25}},
	}
	params, err := steps.RideThroughParameters(rtSteps)
	require.NoError(t, err)
	params = append(params, steps.PhaseParameters("ac")...)

	for _, param := range params {
		require.NoError(t, rig.SetParameter(param.Name, param.Values))
	}

	assert.Equal(t, 3.0, srv.Float(1000))
	assert.Equal(t, []float64{1, 2, 0}, srv.Floats(1002, 3))
	assert.Equal(t, []float64{10, 20, 0}, srv.Floats(1042, 3))
	assert.Equal(t, []float64{20, 20.25, 0}, srv.Floats(1082, 3))
	assert.Equal(t, []float64{0.5, 0.25, 0}, srv.Floats(1122, 3))
	assert.Equal(t, []float64{1, 0, 1}, []float64{srv.Float(1162), srv.Float(1164), srv.Float(1166)})
}

func TestSetParameterErrors(t *testing.T) {
	rig, srv := newTestRig(t)

	type subTest struct {
		name   string
		param  string
		values []float64
	}
	subTests := []subTest{
		{"unknown parameter", "VRT_SPEED", []float64{1}},
		{"no values", "MODE", nil},
		{"too many values", "MODE", []float64{1, 2}},
	}
	for _, st := range subTests {
		t.Run(st.name, func(t *testing.T) {
			err := rig.SetParameter(st.param, st.values)
			assert.ErrorIs(t, err, config.ErrInvalid)
		})
	}
	assert.Equal(t, 0, srv.Writes())
}

func TestSimulation(t *testing.T) {
	rig, srv := newTestRig(t)

	_, err := rig.SimulationTime()
	assert.Error(t, err, "simulation time before start")

	require.NoError(t, rig.StartSimulation())
	assert.Equal(t, uint16(1), srv.Register(1200))

	srv.SetFloat(1202, 12.5)
	secs, err := rig.SimulationTime()
	require.NoError(t, err)
	assert.Equal(t, 12.5, secs)

	require.NoError(t, rig.Close())
	assert.Equal(t, uint16(0), srv.Register(1200), "close stops the simulation")
}

func TestParameters(t *testing.T) {
	assert.Contains(t, Parameters(), "VRT_VALUES")
	assert.Len(t, Parameters(), 8)
}
