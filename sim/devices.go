package sim

import (
	"errors"
	"fmt"

	"github.com/cepro/dercompliance/bench"
	"github.com/cepro/dercompliance/cartesian"
	"github.com/cepro/dercompliance/dataset"
	"github.com/cepro/dercompliance/steps"
	"golang.org/x/exp/slices"
)

// Grid is the simulated AC source.
type Grid struct {
	plant *Plant
}

func (g *Grid) SetVoltage(volts float64) error {
	g.plant.update(func() {
		g.plant.voltages = [3]float64{volts, volts, volts}
	})
	return nil
}

// SetPhaseVoltages sets the phase magnitudes. The model has no notion of phase angle so the angles are ignored.
func (g *Grid) SetPhaseVoltages(magnitudes, angles [3]float64) error {
	g.plant.update(func() {
		g.plant.voltages = magnitudes
	})
	return nil
}

func (g *Grid) SetFrequency(hz float64) error {
	g.plant.update(func() {
		g.plant.frequency = hz
	})
	return nil
}

func (g *Grid) Close() error {
	return nil
}

// PV is the simulated DC source.
type PV struct {
	plant *Plant
}

func (s *PV) SetPower(watts float64) error {
	s.plant.update(func() {
		s.plant.available = watts
	})
	return nil
}

func (s *PV) PowerOn() error {
	s.plant.update(func() {
		s.plant.pvOn = true
	})
	return nil
}

func (s *PV) Close() error {
	return nil
}

// EUT is the simulated inverter.
type EUT struct {
	plant *Plant
}

// ApplyCurve makes the given grid support function the active one.
func (e *EUT) ApplyCurve(settings bench.CurveSettings) error {
	if len(settings.X) != len(settings.Y) || len(settings.X) < 2 {
		return fmt.Errorf("curve needs matching x and y breakpoints, got %d and %d", len(settings.X), len(settings.Y))
	}

	np := e.plant.nameplate
	var xScale, yScale float64
	switch settings.Function {
	case steps.VoltWatt:
		xScale, yScale = np.VNom, np.PRated
	case steps.VoltVar:
		xScale, yScale = np.VNom, np.VarRated
	case steps.FreqWatt:
		xScale, yScale = np.FNom, np.PRated
	default:
		return fmt.Errorf("function '%s' is not simulated", settings.Function)
	}

	points := make([]cartesian.Point, len(settings.X))
	for i := range settings.X {
		points[i] = cartesian.Point{X: settings.X[i] * xScale, Y: settings.Y[i] * yScale}
	}

	e.plant.update(func() {
		e.plant.function = settings.Function
		e.plant.points = cartesian.NewCurve(points)
		e.plant.responseTime = settings.ResponseTime
	})
	e.plant.logger.Info("Applied curve", "function", settings.Function, "responseTime", settings.ResponseTime)
	return nil
}

// ConfigureStayConnected is accepted but has no effect: the simulated EUT never trips.
func (e *EUT) ConfigureStayConnected(high, low bench.StayConnected) error {
	e.plant.logger.Info("Configured stay connected", "high", high.V1, "low", low.V1)
	return nil
}

func (e *EUT) Close() error {
	return nil
}

// HIL plays the ride-through conditions out as grid voltages on the enabled phases.
type HIL struct {
	plant *Plant
}

func (h *HIL) SetParameter(name string, values []float64) error {
	h.plant.update(func() {
		h.plant.params[name] = slices.Clone(values)
	})
	return nil
}

func (h *HIL) StartSimulation() error {
	h.plant.update(func() {
		h.plant.hilRunning = true
		h.plant.hilStart = h.plant.last
	})
	return nil
}

func (h *HIL) StopSimulation() error {
	h.plant.update(func() {
		h.plant.hilRunning = false
	})
	return nil
}

// SimulationTime returns the seconds since the simulation was started.
func (h *HIL) SimulationTime() (float64, error) {
	var simTime float64
	var err error
	h.plant.update(func() {
		if !h.plant.hilRunning {
			err = errors.New("simulation is not running")
			return
		}
		simTime = h.plant.last.Sub(h.plant.hilStart).Seconds()
	})
	return simTime, err
}

func (h *HIL) Close() error {
	return h.StopSimulation()
}

// DAS samples the simulated EUT.
type DAS struct {
	plant *Plant
}

func (d *DAS) TagEvent(event string) error {
	d.plant.update(func() {
		d.plant.event = event
	})
	return nil
}

func (d *DAS) SetSoftChannel(name string, value float64) error {
	d.plant.update(func() {
		d.plant.soft[name] = value
	})
	return nil
}

func (d *DAS) ReadInstantaneous() (map[string]float64, error) {
	var channels map[string]float64
	d.plant.update(func() {
		channels = d.plant.channels()
	})
	return channels, nil
}

// StartCapture discards any previous capture and starts sampling from now.
func (d *DAS) StartCapture() error {
	d.plant.update(func() {
		d.plant.capturing = true
		d.plant.captureStart = d.plant.last
		d.plant.nextSample = d.plant.last
		d.plant.samples = nil
	})
	return nil
}

func (d *DAS) StopCapture() error {
	d.plant.update(func() {
		d.plant.capturing = false
	})
	return nil
}

// Dataset returns the samples of the last capture.
func (d *DAS) Dataset() (*dataset.Dataset, error) {
	var samples []dataset.Sample
	d.plant.update(func() {
		samples = slices.Clone(d.plant.samples)
	})
	return dataset.FromSamples(samples)
}

func (d *DAS) Close() error {
	return d.StopCapture()
}

// Ensure the devices satisfy the bench interfaces.
var (
	_ bench.GridSimulator   = (*Grid)(nil)
	_ bench.PVSimulator     = (*PV)(nil)
	_ bench.HIL             = (*HIL)(nil)
	_ bench.EUT             = (*EUT)(nil)
	_ bench.DataAcquisition = (*DAS)(nil)
)
