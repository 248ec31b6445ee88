package modbusaccess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBlock = RegisterBlock{
	Name:         "Test",
	StartAddr:    100,
	NumRegisters: 6,
	Registers: map[string]Register{
		"Voltage": {StartAddr: 100, DataType: FloatType},
		"Enable":  {StartAddr: 102, DataType: Uint16Type},
		"Scale":   {StartAddr: 103, DataType: Int16Type},
		"Power": {StartAddr: 104, DataType: FloatType, ScalingFunc: func(scaler Scaler, val interface{}) interface{} {
			return val.(float64) * scaler.(float64)
		}},
	},
}

func TestPollBlock(t *testing.T) {
	client := NewFakeClient()
	client.Set(testBlock.Registers["Voltage"], 230.5)
	client.Set(testBlock.Registers["Enable"], uint16(1))
	client.Set(testBlock.Registers["Scale"], int16(-2))
	client.Set(testBlock.Registers["Power"], 1.5)

	metrics, err := PollBlocks(client, 1000.0, []RegisterBlock{testBlock})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"Voltage": 230.5,
		"Enable":  uint16(1),
		"Scale":   int16(-2),
		"Power":   1500.0,
	}, metrics)
}

func TestPollInto(t *testing.T) {
	client := NewFakeClient()
	client.Set(testBlock.Registers["Voltage"], 241.25)
	client.Set(testBlock.Registers["Enable"], uint16(1))
	client.Set(testBlock.Registers["Power"], 2.0)

	var status struct {
		Voltage float64
		Enable  uint16
		Power   float64
	}
	err := PollInto(client, 1000.0, []RegisterBlock{testBlock}, &status)
	require.NoError(t, err)
	assert.Equal(t, 241.25, status.Voltage)
	assert.Equal(t, uint16(1), status.Enable)
	assert.Equal(t, 2000.0, status.Power)
}

func TestPollBlockBadConfiguration(t *testing.T) {
	block := RegisterBlock{
		Name:         "Short",
		StartAddr:    100,
		NumRegisters: 1,
		Registers:    map[string]Register{"Voltage": {StartAddr: 100, DataType: FloatType}},
	}
	_, err := PollBlock(NewFakeClient(), nil, block)
	assert.Error(t, err)

	block.Registers = map[string]Register{"Voltage": {StartAddr: 99, DataType: Uint16Type}}
	_, err = PollBlock(NewFakeClient(), nil, block)
	assert.Error(t, err)
}

func TestWriteRegisters(t *testing.T) {
	client := NewFakeClient()

	err := WriteRegisters(client, testBlock, []string{"Enable", "Voltage"}, map[string]interface{}{
		"Voltage": 253.0,
		"Enable":  uint16(1),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, client.Writes)
	assert.Equal(t, 253.0, client.Get(testBlock.Registers["Voltage"]))
	assert.Equal(t, uint16(1), client.Get(testBlock.Registers["Enable"]))

	err = WriteRegisters(client, testBlock, []string{"Missing"}, nil)
	assert.Error(t, err)
}
