package modbusaccess

import (
	"fmt"

	"github.com/grid-x/modbus"
)

// WriteRegister writes the given value to the given modbus register
func WriteRegister(client modbus.Client, register Register, val interface{}) error {
	if register.DataType.toBytesFunc == nil {
		return fmt.Errorf("write register %d: %s values cannot be written", register.StartAddr, register.DataType.name)
	}

	bytes := register.DataType.toBytesFunc(val)
	_, err := client.WriteMultipleRegisters(register.StartAddr, register.DataType.dataLength/2, bytes)
	if err != nil {
		return fmt.Errorf("write register %d: %w", register.StartAddr, err)
	}

	return nil
}

// WriteRegisters writes each of the values to its named register in `block`, in the order of `names`.
func WriteRegisters(client modbus.Client, block RegisterBlock, names []string, vals map[string]interface{}) error {
	for _, name := range names {
		register, ok := block.Registers[name]
		if !ok {
			return fmt.Errorf("block '%s' has no register '%s'", block.Name, name)
		}
		val, ok := vals[name]
		if !ok {
			continue
		}
		err := WriteRegister(client, register, val)
		if err != nil {
			return fmt.Errorf("write '%s': %w", name, err)
		}
	}
	return nil
}
