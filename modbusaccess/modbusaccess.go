// Package modbusaccess maps named values onto blocks of holding registers, for devices driven through a
// grid-x/modbus client.
package modbusaccess

import (
	"encoding/binary"
	"math"
)

// Type is the encoding of a value in one or more consecutive registers.
type Type struct {
	name          string
	dataLength    uint16 // bytes, always a whole number of registers
	fromBytesFunc func([]byte) interface{}
	toBytesFunc   func(interface{}) []byte
}

// FloatType is a float32, high word first. Values are exchanged as float64.
var FloatType = Type{
	name:       "float",
	dataLength: 4,
	fromBytesFunc: func(raw []byte) interface{} {
		return float64(math.Float32frombits(binary.BigEndian.Uint32(raw)))
	},
	toBytesFunc: func(val interface{}) []byte {
		return binary.BigEndian.AppendUint32(nil, math.Float32bits(float32(val.(float64))))
	},
}

// Uint16Type is a single unsigned register, as used for enables and counts.
var Uint16Type = Type{
	name:       "uint16",
	dataLength: 2,
	fromBytesFunc: func(raw []byte) interface{} {
		return binary.BigEndian.Uint16(raw)
	},
	toBytesFunc: func(val interface{}) []byte {
		return binary.BigEndian.AppendUint16(nil, val.(uint16))
	},
}

// Int16Type is a single signed register, as used for scale factors.
var Int16Type = Type{
	name:       "int16",
	dataLength: 2,
	fromBytesFunc: func(raw []byte) interface{} {
		return int16(binary.BigEndian.Uint16(raw))
	},
	toBytesFunc: func(val interface{}) []byte {
		return binary.BigEndian.AppendUint16(nil, uint16(val.(int16)))
	},
}

// Scaler is passed through to the scaling functions of registers, for scaling that depends on device settings such
// as transformer ratios.
type Scaler interface{}

type valueScalingFunc func(Scaler, interface{}) interface{}

// Register is a value at a fixed address on the device.
type Register struct {
	StartAddr   uint16
	DataType    Type
	ScalingFunc valueScalingFunc // converts the raw value to engineering units, nil if it is already in them
}

// RegisterBlock is a run of registers that is read in one request.
type RegisterBlock struct {
	Name         string
	StartAddr    uint16
	NumRegisters uint16
	Registers    map[string]Register
}
