package modbus

import (
	"fmt"

	"github.com/simonvetter/modbus"
	"golang.org/x/exp/maps"
)

// PollBlocks reads each of `blocks` in turn and merges their values, keyed by metric name. The `scaler` is handed to
// the scaling functions of the metrics.
func (c *Client) PollBlocks(scaler Scaler, blocks []MetricBlock) (map[string]interface{}, error) {
	merged := make(map[string]interface{})
	for _, block := range blocks {
		vals, err := c.PollBlock(scaler, block)
		if err != nil {
			return nil, fmt.Errorf("poll block '%s': %w", block.Name, err)
		}
		maps.Copy(merged, vals)
	}
	return merged, nil
}

// PollBlock reads `block` in a single request and returns the value of each of its metrics.
func (c *Client) PollBlock(scaler Scaler, block MetricBlock) (map[string]interface{}, error) {
	for name, metric := range block.Metrics {
		if metric.StartAddr < block.StartAddr || metric.StartAddr+metric.DataType.dataLength/2 > block.StartAddr+block.NumRegisters {
			return nil, fmt.Errorf("metric '%s' at %d lies outside block '%s'", name, metric.StartAddr, block.Name)
		}
	}

	raw, err := c.readBytes(block.StartAddr, block.NumRegisters)
	if err != nil {
		return nil, fmt.Errorf("read block: %w", err)
	}

	vals := make(map[string]interface{}, len(block.Metrics))
	for name, metric := range block.Metrics {
		offset := int(metric.StartAddr-block.StartAddr) * 2
		val := metric.DataType.fromBytesFunc(raw[offset : offset+int(metric.DataType.dataLength)])
		if metric.ScalingFunc != nil {
			val = metric.ScalingFunc(scaler, val)
		}
		vals[name] = val
	}
	return vals, nil
}

// ReadFloat reads a single float metric.
func (c *Client) ReadFloat(metric Metric) (float64, error) {
	raw, err := c.readBytes(metric.StartAddr, metric.DataType.dataLength/2)
	if err != nil {
		return 0, fmt.Errorf("read register %d: %w", metric.StartAddr, err)
	}
	val, ok := metric.DataType.fromBytesFunc(raw).(float64)
	if !ok {
		return 0, fmt.Errorf("register %d is a %s, not a float", metric.StartAddr, metric.DataType.name)
	}
	return val, nil
}

func (c *Client) readBytes(addr, quantity uint16) ([]byte, error) {
	conn, err := c.connection()
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	regs, err := conn.ReadRegisters(addr, quantity, modbus.HOLDING_REGISTER)
	if err != nil {
		c.dropConnection()
		return nil, err
	}
	return registersToBytes(regs), nil
}
