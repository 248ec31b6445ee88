package modbus

import (
	"encoding/binary"
	"math"
)

// DataType represents the different types of data that can be transferred over modbus.
type DataType struct {
	name          string                   // the name of the data type
	dataLength    uint16                   // the number of underlying bytes to represent the data type
	fromBytesFunc func([]byte) interface{} // function to convert the bytes to the concrete data type (used to read from modbus)
	toBytesFunc   func(interface{}) []byte // function to convert the concrete data type into bytes (used to write to modbus)
}

// Float32Type represents a 32 bit IEEE754 float, high word first.
var Float32Type = DataType{
	name:       "float32",
	dataLength: 4,
	fromBytesFunc: func(bytes []byte) interface{} {
		return float64(math.Float32frombits(binary.BigEndian.Uint32(bytes)))
	},
	toBytesFunc: func(val interface{}) []byte {
		bytes := make([]byte, 4)
		binary.BigEndian.PutUint32(bytes, math.Float32bits(float32(val.(float64))))
		return bytes
	},
}

// Uint16Type represents the 16 bit unsigned integer data type on Modbus.
var Uint16Type = DataType{
	name:       "uint16",
	dataLength: 2,
	fromBytesFunc: func(bytes []byte) interface{} {
		return binary.BigEndian.Uint16(bytes)
	},
	toBytesFunc: func(val interface{}) []byte {
		bytes := make([]byte, 2)
		binary.BigEndian.PutUint16(bytes, val.(uint16))
		return bytes
	},
}

// Scaler can be any object used to help scale modbus values, see `Metric.ScalingFunc`.
type Scaler interface{}

// valueScalingFunc is a prototype for a function that scales a modbus value.
type valueScalingFunc func(Scaler, interface{}) interface{}

// Metric is a value held on the modbus slave at the given address.
type Metric struct {
	StartAddr   uint16
	DataType    DataType
	ScalingFunc valueScalingFunc // a function to scale the recieved value to get it's 'true' value
}

// MetricBlock represents a contiguous block of modbus registers that are read in one chunk.
type MetricBlock struct {
	Name         string            // name of the block used for context/logging
	StartAddr    uint16            // the first register address of the block
	NumRegisters uint16            // the number of registers in this block
	Metrics      map[string]Metric // details of all the metrics of interest in this block, keyed by unique name
}

// registersToBytes lays out register values as big-endian bytes, in the order the device sent them.
func registersToBytes(regs []uint16) []byte {
	raw := make([]byte, len(regs)*2)
	for i, reg := range regs {
		binary.BigEndian.PutUint16(raw[i*2:], reg)
	}
	return raw
}

// bytesToRegisters is the inverse of registersToBytes. A trailing odd byte is dropped.
func bytesToRegisters(raw []byte) []uint16 {
	regs := make([]uint16, len(raw)/2)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(raw[i*2:])
	}
	return regs
}
