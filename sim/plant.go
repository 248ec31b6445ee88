package sim

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cepro/dercompliance/bench"
	"github.com/cepro/dercompliance/cartesian"
	"github.com/cepro/dercompliance/dataset"
	"github.com/cepro/dercompliance/steps"
	timeutils "github.com/cepro/dercompliance/time_utils"
	"golang.org/x/exp/maps"
)

// Nameplate holds the ratings of the simulated EUT.
type Nameplate struct {
	VNom     float64
	PRated   float64
	SRated   float64
	VarRated float64
	FNom     float64
	Phases   int
}

// Plant is an in-process model of an EUT on a test bench. The EUT follows the active grid support function with a
// first-order response that reaches 90% of a change after the configured response time.
//
// The model has no goroutines of its own: its state is advanced up to the current time of the clock whenever one
// of its devices is called, and the DAS samples that fall within that interval are generated on the way.
type Plant struct {
	lock sync.Mutex

	clock          timeutils.Clock
	nameplate      Nameplate
	sampleInterval time.Duration
	logger         *slog.Logger

	// commanded by the simulators
	voltages  [3]float64
	frequency float64
	available float64 // W, the PV power that is available to the EUT
	pvOn      bool

	// the active grid support function
	function     steps.Function
	points       cartesian.Curve // in physical units
	responseTime time.Duration

	// response state as of `last`
	p    float64
	q    float64
	last time.Time

	// DAS state
	event        string
	soft         map[string]float64
	capturing    bool
	captureStart time.Time
	nextSample   time.Time
	samples      []dataset.Sample

	// HIL state
	params     map[string][]float64
	hilRunning bool
	hilStart   time.Time
}

// NewPlant returns a plant at nominal voltage and frequency with the PV off. `sampleInterval` is the period of the
// DAS samples that are recorded while capturing.
func NewPlant(clock timeutils.Clock, nameplate Nameplate, sampleInterval time.Duration) *Plant {
	if nameplate.Phases < 1 {
		nameplate.Phases = 1
	}
	if sampleInterval <= 0 {
		sampleInterval = 100 * time.Millisecond
	}
	return &Plant{
		clock:          clock,
		nameplate:      nameplate,
		sampleInterval: sampleInterval,
		logger:         slog.Default().With("component", "sim"),
		voltages:       [3]float64{nameplate.VNom, nameplate.VNom, nameplate.VNom},
		frequency:      nameplate.FNom,
		last:           clock.Now(),
		soft:           make(map[string]float64),
		params:         make(map[string][]float64),
	}
}

// Devices returns the simulated bench equipment, all backed by this plant.
func (p *Plant) Devices() bench.Devices {
	return bench.Devices{
		Grid: &Grid{plant: p},
		PV:   &PV{plant: p},
		HIL:  &HIL{plant: p},
		EUT:  &EUT{plant: p},
		DAS:  &DAS{plant: p},
	}
}

// Output returns the active and reactive power of the EUT at the current time.
func (p *Plant) Output() (float64, float64) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.advance(p.clock.Now())
	return p.p, p.q
}

// update advances the plant to now and then applies `change` to it, so that the change takes effect from now on.
func (p *Plant) update(change func()) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.advance(p.clock.Now())
	change()
}

// advance moves the response on to `now`, recording the DAS samples that are due before it. A sample due at exactly
// `now` is left for the next advance so that it picks up any change made at `now`, such as a new event tag.
func (p *Plant) advance(now time.Time) {
	if p.capturing {
		for p.nextSample.Before(now) {
			p.respond(p.nextSample)
			p.samples = append(p.samples, dataset.Sample{
				Time:     p.nextSample.Sub(p.captureStart).Seconds(),
				Event:    p.event,
				Channels: p.channels(),
			})
			p.nextSample = p.nextSample.Add(p.sampleInterval)
		}
	}
	p.respond(now)
}

// respond moves the output towards its target, which is held constant between commands.
func (p *Plant) respond(t time.Time) {
	dt := t.Sub(p.last)
	if dt <= 0 {
		return
	}
	p.last = t

	targetP, targetQ := p.target()
	if p.responseTime <= 0 {
		p.p, p.q = targetP, targetQ
		return
	}
	decay := math.Exp(-dt.Seconds() * math.Ln10 / p.responseTime.Seconds())
	p.p = targetP + (p.p-targetP)*decay
	p.q = targetQ + (p.q-targetQ)*decay
}

// target returns the steady state output for the present grid conditions.
func (p *Plant) target() (float64, float64) {
	available := 0.0
	if p.pvOn {
		available = math.Min(p.available, p.nameplate.PRated)
	}

	voltage := p.voltage(p.last)
	switch p.function {
	case steps.VoltWatt:
		y, _ := p.points.Interpolate(voltage, cartesian.PolicyClamp)
		return clamp(y, 0, available), 0
	case steps.VoltVar:
		y, _ := p.points.Interpolate(voltage, cartesian.PolicyClamp)
		return available, y
	case steps.FreqWatt:
		y, _ := p.points.Interpolate(p.frequency, cartesian.PolicyClamp)
		return clamp(y, 0, available), 0
	}
	return available, 0
}

// voltage returns the average of the phase voltages at time `t`.
func (p *Plant) voltage(t time.Time) float64 {
	phases := p.phaseVoltages(t)
	total := 0.0
	for i := 0; i < p.nameplate.Phases; i++ {
		total += phases[i]
	}
	return total / float64(p.nameplate.Phases)
}

// phaseVoltages returns the grid voltages, replaced by the ride-through waveform on the enabled phases while the HIL
// simulation is running.
func (p *Plant) phaseVoltages(t time.Time) [3]float64 {
	voltages := p.voltages
	if !p.hilRunning {
		return voltages
	}
	residual, ok := p.rideThroughResidual(t.Sub(p.hilStart).Seconds())
	if !ok {
		return voltages
	}
	for i, phase := range []string{"A", "B", "C"} {
		if enable := p.params["VRT_PH"+phase+"_ENABLE"]; len(enable) > 0 && enable[0] == 1 {
			voltages[i] = residual * p.nameplate.VNom
		}
	}
	return voltages
}

// rideThroughResidual returns the residual voltage of the condition that covers simulation time `simTime`.
func (p *Plant) rideThroughResidual(simTime float64) (float64, bool) {
	ids := p.params["VRT_CONDITION"]
	starts := p.params["VRT_START_TIMING"]
	ends := p.params["VRT_END_TIMING"]
	values := p.params["VRT_VALUES"]
	for i := range ids {
		if ids[i] == 0 || i >= len(starts) || i >= len(ends) || i >= len(values) {
			break
		}
		if starts[i] <= simTime && simTime < ends[i] {
			return values[i], true
		}
	}
	return 0, false
}

// channels returns the DAS channels as of the last time the plant was advanced to, including the soft channels.
func (p *Plant) channels() map[string]float64 {
	phases := p.nameplate.Phases
	voltages := p.phaseVoltages(p.last)
	pPhase := p.p / float64(phases)
	qPhase := p.q / float64(phases)
	sPhase := math.Hypot(pPhase, qPhase)
	pf := 1.0
	if sPhase > 0 {
		pf = pPhase / sPhase
	}

	channels := maps.Clone(p.soft)
	for i := 1; i <= phases; i++ {
		v := voltages[i-1]
		current := 0.0
		if v > 0 {
			current = sPhase / v
		}
		channels[channelName("AC_VRMS", i)] = v
		channels[channelName("AC_FREQ", i)] = p.frequency
		channels[channelName("AC_P", i)] = pPhase
		channels[channelName("AC_Q", i)] = qPhase
		channels[channelName("AC_S", i)] = sPhase
		channels[channelName("AC_IRMS", i)] = current
		channels[channelName("AC_PF", i)] = pf
	}
	return channels
}

func channelName(root string, phase int) string {
	return root + "_" + string(rune('0'+phase))
}

func clamp(val, low, high float64) float64 {
	return math.Max(low, math.Min(high, val))
}
