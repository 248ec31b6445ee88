// Package pvsim drives a register-mapped PV (DC source) simulator over Modbus TCP.
package pvsim

import (
	"fmt"
	"log/slog"

	"github.com/cepro/dercompliance/bench"
	"github.com/cepro/dercompliance/modbus"
)

var (
	power  = modbus.Metric{StartAddr: 200, DataType: modbus.Float32Type} // W available at the maximum power point
	output = modbus.Metric{StartAddr: 202, DataType: modbus.Uint16Type}  // 1 enables the output
)

type Simulator struct {
	client *modbus.Client
	logger *slog.Logger
}

var _ bench.PVSimulator = (*Simulator)(nil)

func New(host string, unitID uint8) (*Simulator, error) {
	client, err := modbus.NewClient(host, unitID)
	if err != nil {
		return nil, err
	}
	return &Simulator{
		client: client,
		logger: slog.Default().With("component", "pvsim", "host", host),
	}, nil
}

func (s *Simulator) SetPower(watts float64) error {
	if watts < 0 {
		return fmt.Errorf("pv power must not be negative, got %g", watts)
	}
	s.logger.Debug("Setting power", "watts", watts)
	err := s.client.WriteMetric(power, watts)
	if err != nil {
		return fmt.Errorf("write power: %w", err)
	}
	return nil
}

func (s *Simulator) PowerOn() error {
	s.logger.Info("Enabling PV output")
	err := s.client.WriteMetric(output, uint16(1))
	if err != nil {
		return fmt.Errorf("enable output: %w", err)
	}
	return nil
}

func (s *Simulator) Close() error {
	return s.client.Close()
}
