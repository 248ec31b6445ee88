package hil

import "github.com/cepro/dercompliance/modbus"

// parameter is a model parameter held as consecutive float32 registers.
type parameter struct {
	metric   modbus.Metric
	capacity int // number of values
}

func float32Param(addr uint16, capacity int) parameter {
	return parameter{metric: modbus.Metric{StartAddr: addr, DataType: modbus.Float32Type}, capacity: capacity}
}

var parameters = map[string]parameter{
	"MODE":             float32Param(1000, 1),
	"VRT_CONDITION":    float32Param(1002, 20),
	"VRT_START_TIMING": float32Param(1042, 20),
	"VRT_END_TIMING":   float32Param(1082, 20),
	"VRT_VALUES":       float32Param(1122, 20),
	"VRT_PHA_ENABLE":   float32Param(1162, 1),
	"VRT_PHB_ENABLE":   float32Param(1164, 1),
	"VRT_PHC_ENABLE":   float32Param(1166, 1),
}

var (
	control        = modbus.Metric{StartAddr: 1200, DataType: modbus.Uint16Type} // 1 runs the simulation, 0 stops it
	simulationTime = modbus.Metric{StartAddr: 1202, DataType: modbus.Float32Type} // seconds since the simulation started
)

const (
	controlStop = uint16(0)
	controlRun  = uint16(1)
)
