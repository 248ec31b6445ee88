package bench

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cepro/dercompliance/dataset"
	"github.com/cepro/dercompliance/imbalance"
	"github.com/cepro/dercompliance/steps"
	"github.com/cepro/dercompliance/telemetry"
)

// ErrEquipmentUnavailable is returned when a piece of equipment that the test cannot do without is not configured.
var ErrEquipmentUnavailable = errors.New("equipment unavailable")

// GridSimulator is the AC source that the EUT is connected to.
type GridSimulator interface {
	SetVoltage(volts float64) error
	// SetPhaseVoltages sets the magnitude (V) and angle (degrees) of each phase
	SetPhaseVoltages(magnitudes, angles [3]float64) error
	SetFrequency(hz float64) error
	Close() error
}

// PVSimulator is the DC source that supplies the EUT.
type PVSimulator interface {
	SetPower(watts float64) error
	PowerOn() error
	Close() error
}

// HIL is a hardware-in-the-loop rig that plays out a voltage waveform from model parameters.
type HIL interface {
	SetParameter(name string, values []float64) error
	StartSimulation() error
	StopSimulation() error
	// SimulationTime returns the number of seconds that the current simulation has been running for
	SimulationTime() (float64, error)
	Close() error
}

// CurveSettings configures a grid support function on the EUT. Breakpoints are in per-unit.
type CurveSettings struct {
	Function     steps.Function
	X            []float64
	Y            []float64
	VRef         float64 // only used by volt-var
	ResponseTime time.Duration
}

// StayConnected is a ride-through curve that the EUT must not trip within.
type StayConnected struct {
	Enable      bool
	ActiveCurve int
	Tms1        float64 // seconds
	V1          float64 // volts
	Tms2        float64
	V2          float64
}

// EUT is the equipment under test.
type EUT interface {
	ApplyCurve(settings CurveSettings) error
	ConfigureStayConnected(high, low StayConnected) error
	Close() error
}

// DataAcquisition samples the AC side of the EUT. Soft channels and the event tag are recorded alongside the
// measured channels of every sample.
type DataAcquisition interface {
	TagEvent(event string) error
	SetSoftChannel(name string, value float64) error
	ReadInstantaneous() (map[string]float64, error)
	StartCapture() error
	StopCapture() error
	Dataset() (*dataset.Dataset, error)
	Close() error
}

// Devices holds the equipment on the bench. Any of the simulators may be nil.
type Devices struct {
	Grid GridSimulator
	PV   PVSimulator
	HIL  HIL
	EUT  EUT
	DAS  DataAcquisition
}

// Nameplate holds the EUT values that the bench is set up with and returned to.
type Nameplate struct {
	VNom   float64
	VLow   float64
	VHigh  float64
	PRated float64
}

// Bench drives the equipment used by a test. It is passed to the parts of the test that need to command equipment,
// and is the only owner of the equipment handles.
type Bench struct {
	Devices

	nameplate Nameplate
	resolver  *imbalance.Resolver // nil unless testing with an imbalanced grid
	logger    *slog.Logger
}

func New(devices Devices, nameplate Nameplate, resolver *imbalance.Resolver) (*Bench, error) {
	if devices.EUT == nil {
		return nil, fmt.Errorf("no eut: %w", ErrEquipmentUnavailable)
	}
	if devices.DAS == nil {
		return nil, fmt.Errorf("no das: %w", ErrEquipmentUnavailable)
	}
	return &Bench{
		Devices:   devices,
		nameplate: nameplate,
		resolver:  resolver,
		logger:    slog.Default().With("component", "bench"),
	}, nil
}

// Init brings the bench up in the order HIL, grid, EUT, PV: the grid at nominal voltage, the EUT with its stay
// connected curves set to the voltage limits and the PV at rated power.
func (b *Bench) Init() error {
	if b.HIL != nil {
		b.logger.Info("HIL connected")
	}

	err := b.SetVoltage(b.nameplate.VNom)
	if err != nil {
		return fmt.Errorf("set nominal voltage: %w", err)
	}

	high := StayConnected{Enable: true, ActiveCurve: 0, Tms1: 3000, V1: b.nameplate.VHigh, Tms2: 0.16, V2: b.nameplate.VHigh}
	low := StayConnected{Enable: true, ActiveCurve: 0, Tms1: 3000, V1: b.nameplate.VLow, Tms2: 0.16, V2: b.nameplate.VLow}
	err = b.EUT.ConfigureStayConnected(high, low)
	if err != nil {
		return fmt.Errorf("configure stay connected: %w", err)
	}

	err = b.SetPowerLevel(1.0)
	if err != nil {
		return fmt.Errorf("set rated power: %w", err)
	}
	if b.PV != nil {
		err = b.PV.PowerOn()
		if err != nil {
			return fmt.Errorf("power on pv: %w", err)
		}
	}
	return nil
}

// Close returns the PV to rated power and the grid to nominal voltage, then releases every piece of equipment in the
// order PV, grid, HIL, EUT, DAS. All of the equipment is released even if some of it fails.
func (b *Bench) Close() error {
	var errs []error

	if b.PV != nil {
		if err := b.PV.SetPower(b.nameplate.PRated); err != nil {
			errs = append(errs, fmt.Errorf("reset pv power: %w", err))
		}
		if err := b.PV.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pv: %w", err))
		}
	}
	if b.Grid != nil {
		if err := b.Grid.SetVoltage(b.nameplate.VNom); err != nil {
			errs = append(errs, fmt.Errorf("reset grid voltage: %w", err))
		}
		if err := b.Grid.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close grid: %w", err))
		}
	}
	if b.HIL != nil {
		if err := b.HIL.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close hil: %w", err))
		}
	}
	if err := b.EUT.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close eut: %w", err))
	}
	if err := b.DAS.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close das: %w", err))
	}

	return errors.Join(errs...)
}

// SetVoltage sets all phases of the grid simulator to `volts`. Without a grid simulator this logs and does nothing.
func (b *Bench) SetVoltage(volts float64) error {
	if b.Grid == nil {
		b.logger.Warn("No grid simulator, voltage not set", "volts", volts)
		return nil
	}
	return b.Grid.SetVoltage(volts)
}

// SetFrequency sets the grid simulator frequency. Without a grid simulator this logs and does nothing.
func (b *Bench) SetFrequency(hz float64) error {
	if b.Grid == nil {
		b.logger.Warn("No grid simulator, frequency not set", "hz", hz)
		return nil
	}
	return b.Grid.SetFrequency(hz)
}

// SetPowerLevel sets the PV simulator to the given fraction of the EUT's rated power. Without a PV simulator this
// logs and does nothing.
func (b *Bench) SetPowerLevel(fraction float64) error {
	if b.PV == nil {
		b.logger.Warn("No PV simulator, power level not set", "fraction", fraction)
		return nil
	}
	return b.PV.SetPower(fraction * b.nameplate.PRated)
}

// SetImbalance applies an imbalanced grid case and returns the voltage that the EUT is expected to respond to.
func (b *Bench) SetImbalance(c imbalance.Case) (float64, error) {
	if b.resolver == nil {
		return 0, fmt.Errorf("imbalance %s requested without an imbalance mode", c)
	}
	phasors, err := b.resolver.Case(c)
	if err != nil {
		return 0, err
	}
	volts, err := b.resolver.Voltage(c)
	if err != nil {
		return 0, err
	}
	if b.Grid == nil {
		b.logger.Warn("No grid simulator, imbalance not set", "case", c)
		return volts, nil
	}
	err = b.Grid.SetPhaseVoltages(phasors.Mag, phasors.Ang)
	if err != nil {
		return 0, fmt.Errorf("set phase voltages: %w", err)
	}
	return volts, nil
}

// Apply commands a single setpoint of a step and returns the value that was put into effect, which for a symbolic
// imbalance case is the voltage that the EUT should respond to.
func (b *Bench) Apply(axis telemetry.Axis, setpoint steps.Setpoint) (float64, error) {
	switch axis {
	case telemetry.AxisVoltage:
		if setpoint.Symbolic() {
			return b.SetImbalance(setpoint.Case)
		}
		return setpoint.Value, b.SetVoltage(setpoint.Value)
	case telemetry.AxisFrequency:
		return setpoint.Value, b.SetFrequency(setpoint.Value)
	case telemetry.AxisActivePower:
		return setpoint.Value, b.SetPowerLevel(setpoint.Value)
	}
	b.logger.Warn("No equipment to apply setpoint", "axis", axis, "setpoint", setpoint)
	return setpoint.Value, nil
}
