package pvsim

import (
	"testing"

	"github.com/cepro/dercompliance/modbus/modbustest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPowerOn(t *testing.T) {
	srv, err := modbustest.NewServer()
	require.NoError(t, err)
	defer srv.Close()

	sim, err := New(srv.Addr, 1)
	require.NoError(t, err)
	defer sim.Close()

	require.NoError(t, sim.SetPower(1980))
	require.NoError(t, sim.PowerOn())
	assert.Equal(t, 1980.0, srv.Float(200))
	assert.Equal(t, uint16(1), srv.Register(202))

	assert.Error(t, sim.SetPower(-1))
	assert.Equal(t, 2, srv.Writes())
}
