// Package gridsim drives a register-mapped AC grid simulator over Modbus TCP.
package gridsim

import (
	"fmt"
	"log/slog"

	"github.com/cepro/dercompliance/bench"
	"github.com/cepro/dercompliance/modbus"
)

// balancedAngles are the phase angles of a balanced three phase supply, in degrees.
var balancedAngles = [3]float64{0, -120, 120}

type Simulator struct {
	client *modbus.Client
	logger *slog.Logger
}

var _ bench.GridSimulator = (*Simulator)(nil)

func New(host string, unitID uint8) (*Simulator, error) {
	client, err := modbus.NewClient(host, unitID)
	if err != nil {
		return nil, err
	}
	return &Simulator{
		client: client,
		logger: slog.Default().With("component", "gridsim", "host", host),
	}, nil
}

// SetVoltage sets every phase to `volts` with balanced angles.
func (s *Simulator) SetVoltage(volts float64) error {
	s.logger.Debug("Setting voltage", "volts", volts)
	return s.SetPhaseVoltages([3]float64{volts, volts, volts}, balancedAngles)
}

func (s *Simulator) SetPhaseVoltages(magnitudes, angles [3]float64) error {
	err := s.client.WriteFloats(phaseMagnitudes, magnitudes[:])
	if err != nil {
		return fmt.Errorf("write phase magnitudes: %w", err)
	}
	err = s.client.WriteFloats(phaseAngles, angles[:])
	if err != nil {
		return fmt.Errorf("write phase angles: %w", err)
	}
	return nil
}

func (s *Simulator) SetFrequency(hz float64) error {
	s.logger.Debug("Setting frequency", "hz", hz)
	err := s.client.WriteMetric(frequency, hz)
	if err != nil {
		return fmt.Errorf("write frequency: %w", err)
	}
	return nil
}

// Setpoints reads back the phase voltages and frequency that the simulator is currently set to.
func (s *Simulator) Setpoints() (volts [3]float64, hz float64, err error) {
	metrics, err := s.client.PollBlock(nil, statusBlock)
	if err != nil {
		return volts, 0, fmt.Errorf("poll setpoints: %w", err)
	}
	volts = [3]float64{metrics["VoltageA"].(float64), metrics["VoltageB"].(float64), metrics["VoltageC"].(float64)}
	return volts, metrics["Frequency"].(float64), nil
}

func (s *Simulator) Close() error {
	return s.client.Close()
}
