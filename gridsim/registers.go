package gridsim

import "github.com/cepro/dercompliance/modbus"

// The grid simulator takes its setpoints as float32 registers. Phase magnitudes and angles are three consecutive
// values each, phase A first.
var (
	phaseMagnitudes = modbus.Metric{StartAddr: 100, DataType: modbus.Float32Type}
	phaseAngles     = modbus.Metric{StartAddr: 106, DataType: modbus.Float32Type}
	frequency       = modbus.Metric{StartAddr: 112, DataType: modbus.Float32Type}
)

var statusBlock = modbus.MetricBlock{
	Name:         "Setpoints",
	StartAddr:    100,
	NumRegisters: 14,
	Metrics: map[string]modbus.Metric{
		"VoltageA":  {StartAddr: 100, DataType: modbus.Float32Type},
		"VoltageB":  {StartAddr: 102, DataType: modbus.Float32Type},
		"VoltageC":  {StartAddr: 104, DataType: modbus.Float32Type},
		"Frequency": {StartAddr: 112, DataType: modbus.Float32Type},
	},
}
