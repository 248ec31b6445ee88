package modbusaccess

import (
	"fmt"

	"github.com/grid-x/modbus"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/exp/maps"
)

// PollBlocks reads each of `blocks` in turn and merges their metrics, keyed by register name. The `scaler` is handed
// to the scaling functions of the registers.
func PollBlocks(client modbus.Client, scaler Scaler, blocks []RegisterBlock) (map[string]interface{}, error) {
	merged := make(map[string]interface{})
	for _, block := range blocks {
		metrics, err := PollBlock(client, scaler, block)
		if err != nil {
			return nil, fmt.Errorf("poll block '%s': %w", block.Name, err)
		}
		maps.Copy(merged, metrics)
	}
	return merged, nil
}

// PollInto polls `blocks` and decodes the metrics into the struct pointed to by `out`, matching register names to
// field names.
func PollInto(client modbus.Client, scaler Scaler, blocks []RegisterBlock, out interface{}) error {
	metrics, err := PollBlocks(client, scaler, blocks)
	if err != nil {
		return err
	}
	err = mapstructure.Decode(metrics, out)
	if err != nil {
		return fmt.Errorf("decode metrics: %w", err)
	}
	return nil
}

// PollBlock reads `block` in a single request and returns the value of each of its registers.
func PollBlock(client modbus.Client, scaler Scaler, block RegisterBlock) (map[string]interface{}, error) {
	err := block.validate()
	if err != nil {
		return nil, err
	}

	raw, err := client.ReadHoldingRegisters(block.StartAddr, block.NumRegisters)
	if err != nil {
		return nil, fmt.Errorf("read block: %w", err)
	}
	if len(raw) < int(block.NumRegisters)*2 {
		return nil, fmt.Errorf("short read: got %d bytes for %d registers", len(raw), block.NumRegisters)
	}

	metrics := make(map[string]interface{}, len(block.Registers))
	for name, register := range block.Registers {
		offset := register.offsetIn(block)
		val := register.DataType.fromBytesFunc(raw[offset : offset+int(register.DataType.dataLength)])
		if register.ScalingFunc != nil {
			val = register.ScalingFunc(scaler, val)
		}
		metrics[name] = val
	}
	return metrics, nil
}

// offsetIn returns the byte offset of the register within a read of `block`.
func (r Register) offsetIn(block RegisterBlock) int {
	return (int(r.StartAddr) - int(block.StartAddr)) * 2
}

// validate checks that every register lies inside the block.
func (b RegisterBlock) validate() error {
	for name, register := range b.Registers {
		offset := register.offsetIn(b)
		if offset < 0 {
			return fmt.Errorf("register '%s' at %d precedes block '%s'", name, register.StartAddr, b.Name)
		}
		if offset+int(register.DataType.dataLength) > int(b.NumRegisters)*2 {
			return fmt.Errorf("register '%s' at %d runs past the end of block '%s'", name, register.StartAddr, b.Name)
		}
	}
	return nil
}
