package eut

import (
	"fmt"

	"github.com/cepro/dercompliance/modbusaccess"
)

// maxPoints is the number of curve breakpoints the inverter accepts for each function.
const maxPoints = 4

// curveBlock lays out a grid support function: an enable flag, the number of points in use, the open loop response
// time in seconds and then the x and y breakpoints in percent of their reference values. Volt-var also has a
// reference voltage in percent of nominal.
func curveBlock(name string, start uint16, withVRef bool) modbusaccess.RegisterBlock {
	registers := map[string]modbusaccess.Register{
		"Ena":    {StartAddr: start, DataType: modbusaccess.Uint16Type},
		"NPt":    {StartAddr: start + 1, DataType: modbusaccess.Uint16Type},
		"RspTms": {StartAddr: start + 2, DataType: modbusaccess.FloatType},
	}
	pointsStart := start + 4
	if withVRef {
		registers["VRef"] = modbusaccess.Register{StartAddr: start + 4, DataType: modbusaccess.FloatType}
		pointsStart += 2
	}
	for i := 0; i < maxPoints; i++ {
		registers[pointName("X", i)] = modbusaccess.Register{StartAddr: pointsStart + uint16(2*i), DataType: modbusaccess.FloatType}
		registers[pointName("Y", i)] = modbusaccess.Register{StartAddr: pointsStart + uint16(2*(maxPoints+i)), DataType: modbusaccess.FloatType}
	}
	return modbusaccess.RegisterBlock{
		Name:         name,
		StartAddr:    start,
		NumRegisters: pointsStart - start + 4*maxPoints,
		Registers:    registers,
	}
}

func pointName(axis string, i int) string {
	return fmt.Sprintf("%s%d", axis, i+1)
}

var (
	voltWattBlock = curveBlock("VoltWatt", 300, false)
	voltVarBlock  = curveBlock("VoltVar", 400, true)
	freqWattBlock = curveBlock("FreqWatt", 500, false)
)

// stayConnectedBlock lays out a two point must-remain-connected curve.
func stayConnectedBlock(name string, start uint16) modbusaccess.RegisterBlock {
	return modbusaccess.RegisterBlock{
		Name:         name,
		StartAddr:    start,
		NumRegisters: 10,
		Registers: map[string]modbusaccess.Register{
			"Ena":    {StartAddr: start, DataType: modbusaccess.Uint16Type},
			"ActCrv": {StartAddr: start + 1, DataType: modbusaccess.Uint16Type},
			"Tms1":   {StartAddr: start + 2, DataType: modbusaccess.FloatType},
			"V1":     {StartAddr: start + 4, DataType: modbusaccess.FloatType},
			"Tms2":   {StartAddr: start + 6, DataType: modbusaccess.FloatType},
			"V2":     {StartAddr: start + 8, DataType: modbusaccess.FloatType},
		},
	}
}

var (
	highVoltageStayConnectedBlock = stayConnectedBlock("HVStayConnected", 600)
	lowVoltageStayConnectedBlock  = stayConnectedBlock("LVStayConnected", 620)
)

var stayConnectedRegisters = []string{"ActCrv", "Tms1", "V1", "Tms2", "V2", "Ena"}
