// Package hil drives a register-mapped hardware-in-the-loop rig over Modbus TCP. The rig runs a model that plays out
// ride-through voltage conditions from its parameters.
package hil

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/cepro/dercompliance/bench"
	"github.com/cepro/dercompliance/config"
	"github.com/cepro/dercompliance/modbus"
)

type Rig struct {
	client  *modbus.Client
	running bool
	logger  *slog.Logger
}

var _ bench.HIL = (*Rig)(nil)

func New(host string, unitID uint8) (*Rig, error) {
	client, err := modbus.NewClient(host, unitID)
	if err != nil {
		return nil, err
	}
	return &Rig{
		client: client,
		logger: slog.Default().With("component", "hil", "host", host),
	}, nil
}

// Parameters returns the names of the model parameters that can be set.
func Parameters() []string {
	names := make([]string, 0, len(parameters))
	for name := range parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetParameter writes the values of a model parameter. Fewer values than the parameter holds may be given.
func (r *Rig) SetParameter(name string, values []float64) error {
	param, ok := parameters[name]
	if !ok {
		return config.Invalidf("unknown hil parameter '%s'", name)
	}
	if len(values) == 0 || len(values) > param.capacity {
		return config.Invalidf("hil parameter '%s' takes 1 to %d values, got %d", name, param.capacity, len(values))
	}
	r.logger.Debug("Setting parameter", "name", name, "values", values)
	err := r.client.WriteFloats(param.metric, values)
	if err != nil {
		return fmt.Errorf("write parameter '%s': %w", name, err)
	}
	return nil
}

func (r *Rig) StartSimulation() error {
	r.logger.Info("Starting simulation")
	err := r.client.WriteMetric(control, controlRun)
	if err != nil {
		return fmt.Errorf("start simulation: %w", err)
	}
	r.running = true
	return nil
}

func (r *Rig) StopSimulation() error {
	r.logger.Info("Stopping simulation")
	err := r.client.WriteMetric(control, controlStop)
	if err != nil {
		return fmt.Errorf("stop simulation: %w", err)
	}
	r.running = false
	return nil
}

func (r *Rig) SimulationTime() (float64, error) {
	if !r.running {
		return 0, fmt.Errorf("simulation is not running")
	}
	secs, err := r.client.ReadFloat(simulationTime)
	if err != nil {
		return 0, fmt.Errorf("read simulation time: %w", err)
	}
	return secs, nil
}

// Close stops any running simulation and releases the connection.
func (r *Rig) Close() error {
	var stopErr error
	if r.running {
		stopErr = r.StopSimulation()
	}
	closeErr := r.client.Close()
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}
