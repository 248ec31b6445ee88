package gridsim

import (
	"testing"

	"github.com/cepro/dercompliance/modbus/modbustest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSimulator(t *testing.T) (*Simulator, *modbustest.Server) {
	srv, err := modbustest.NewServer()
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	sim, err := New(srv.Addr, 1)
	require.NoError(t, err)
	t.Cleanup(func() { sim.Close() })
	return sim, srv
}

func TestSetVoltage(t *testing.T) {
	sim, srv := newTestSimulator(t)

	require.NoError(t, sim.SetVoltage(230))
	assert.Equal(t, []float64{230, 230, 230}, srv.Floats(100, 3))
	assert.Equal(t, []float64{0, -120, 120}, srv.Floats(106, 3))
}

func TestSetPhaseVoltages(t *testing.T) {
	sim, srv := newTestSimulator(t)

	require.NoError(t, sim.SetPhaseVoltages([3]float64{264, 240, 216}, [3]float64{0, -112.5, 125}))
	assert.Equal(t, []float64{264, 240, 216}, srv.Floats(100, 3))
	assert.Equal(t, []float64{0, -112.5, 125}, srv.Floats(106, 3))

	volts, _, err := sim.Setpoints()
	require.NoError(t, err)
	assert.Equal(t, [3]float64{264, 240, 216}, volts)
}

func TestSetFrequency(t *testing.T) {
	sim, srv := newTestSimulator(t)

	require.NoError(t, sim.SetFrequency(60.5))
	assert.Equal(t, 60.5, srv.Float(112))

	_, hz, err := sim.Setpoints()
	require.NoError(t, err)
	assert.Equal(t, 60.5, hz)
}
