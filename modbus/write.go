package modbus

import (
	"fmt"
)

// WriteMetric writes `val` to the registers of `metric`.
func (c *Client) WriteMetric(metric Metric, val interface{}) error {
	if metric.DataType.toBytesFunc == nil {
		return fmt.Errorf("register %d: %s values cannot be written", metric.StartAddr, metric.DataType.name)
	}
	return c.writeBytes(metric.StartAddr, metric.DataType.toBytesFunc(val))
}

// WriteFloats writes consecutive float32 values in a single request, starting at the address of `metric`.
func (c *Client) WriteFloats(metric Metric, vals []float64) error {
	raw := make([]byte, 0, len(vals)*4)
	for _, val := range vals {
		raw = append(raw, Float32Type.toBytesFunc(val)...)
	}
	return c.writeBytes(metric.StartAddr, raw)
}

func (c *Client) writeBytes(addr uint16, raw []byte) error {
	conn, err := c.connection()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	err = conn.WriteRegisters(addr, bytesToRegisters(raw))
	if err != nil {
		c.dropConnection()
		return fmt.Errorf("write register %d: %w", addr, err)
	}
	return nil
}
