// Package acuvim2 acquires AC measurements of the EUT from an Acuvim II power meter.
package acuvim2

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cepro/dercompliance/bench"
	"github.com/cepro/dercompliance/dataset"
	"github.com/cepro/dercompliance/modbusaccess"
	timeutils "github.com/cepro/dercompliance/time_utils"
	"github.com/grid-x/modbus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Reading holds the meter values of interest, scaled to primary side units (V, A, W, var, VA).
type Reading struct {
	Frequency float64

	VoltagePhA float64
	VoltagePhB float64
	VoltagePhC float64

	CurrentPhA float64
	CurrentPhB float64
	CurrentPhC float64

	PowerPhAActive float64
	PowerPhBActive float64
	PowerPhCActive float64

	PowerPhAReactive float64
	PowerPhBReactive float64
	PowerPhCReactive float64

	PowerPhAApparent float64
	PowerPhBApparent float64
	PowerPhCApparent float64

	PowerFactorPhA float64
	PowerFactorPhB float64
	PowerFactorPhC float64
}

// Channels returns the reading as DAS channels for the first `phases` phases, e.g. AC_VRMS_1.
func (r Reading) Channels(phases int) map[string]float64 {
	perPhase := []struct {
		root string
		vals [3]float64
	}{
		{"AC_VRMS", [3]float64{r.VoltagePhA, r.VoltagePhB, r.VoltagePhC}},
		{"AC_IRMS", [3]float64{r.CurrentPhA, r.CurrentPhB, r.CurrentPhC}},
		{"AC_P", [3]float64{r.PowerPhAActive, r.PowerPhBActive, r.PowerPhCActive}},
		{"AC_Q", [3]float64{r.PowerPhAReactive, r.PowerPhBReactive, r.PowerPhCReactive}},
		{"AC_S", [3]float64{r.PowerPhAApparent, r.PowerPhBApparent, r.PowerPhCApparent}},
		{"AC_PF", [3]float64{r.PowerFactorPhA, r.PowerFactorPhB, r.PowerFactorPhC}},
		{"AC_FREQ", [3]float64{r.Frequency, r.Frequency, r.Frequency}},
	}

	channels := make(map[string]float64, len(perPhase)*phases)
	for _, channel := range perPhase {
		for i := 0; i < phases && i < 3; i++ {
			channels[channel.root+"_"+strconv.Itoa(i+1)] = channel.vals[i]
		}
	}
	return channels
}

// Meter is a DataAcquisition backed by an Acuvim II meter. While capturing, the meter is polled every sample
// interval and each reading is stored with the event tag and soft channels that were set at the time.
type Meter struct {
	pt1 float64 // installed potential transformer 1 rating
	pt2 float64 // installed potential transformer 2 rating
	ct1 float64 // installed current transformer 1 rating
	ct2 float64 // installed current transformer 2 rating

	phases         int
	sampleInterval time.Duration
	clock          timeutils.Clock

	handler *modbus.TCPClientHandler // nil when the client was given
	client  modbus.Client
	logger  *slog.Logger

	lock    sync.Mutex
	event   string
	soft    map[string]float64
	start   time.Time
	samples []dataset.Sample

	stopCapture context.CancelFunc
	captureDone chan struct{}
}

var _ bench.DataAcquisition = (*Meter)(nil)

// Config holds the meter's transformer ratios and sampling.
type Config struct {
	Host           string
	UnitID         uint8
	Pt1, Pt2       float64
	Ct1, Ct2       float64
	Phases         int
	SampleInterval time.Duration
}

func New(cfg Config) (*Meter, error) {
	handler := modbus.NewTCPClientHandler(cfg.Host)
	handler.Timeout = 10 * time.Second
	handler.SlaveID = cfg.UnitID

	slog.Info("Connecting to Acuvim meter", "host", cfg.Host)
	err := handler.Connect()
	if err != nil {
		return nil, fmt.Errorf("connect to meter: %w", err)
	}

	meter := newWithClient(modbus.NewClient(handler), cfg, timeutils.SystemClock{})
	meter.handler = handler
	return meter, nil
}

func newWithClient(client modbus.Client, cfg Config, clock timeutils.Clock) *Meter {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 100 * time.Millisecond
	}
	return &Meter{
		pt1:            cfg.Pt1,
		pt2:            cfg.Pt2,
		ct1:            cfg.Ct1,
		ct2:            cfg.Ct2,
		phases:         cfg.Phases,
		sampleInterval: cfg.SampleInterval,
		clock:          clock,
		client:         client,
		logger:         slog.Default().With("component", "acuvim2", "host", cfg.Host),
		soft:           make(map[string]float64),
	}
}

// Poll reads the meter once.
func (a *Meter) Poll() (Reading, error) {
	var reading Reading
	err := modbusaccess.PollInto(a.client, a, blocks, &reading)
	if err != nil {
		return Reading{}, fmt.Errorf("poll meter: %w", err)
	}
	return reading, nil
}

func (a *Meter) TagEvent(event string) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.event = event
	return nil
}

func (a *Meter) SetSoftChannel(name string, value float64) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.soft[name] = value
	return nil
}

// ReadInstantaneous polls the meter and returns its channels along with the soft channels.
func (a *Meter) ReadInstantaneous() (map[string]float64, error) {
	reading, err := a.Poll()
	if err != nil {
		return nil, err
	}
	channels := reading.Channels(a.phases)

	a.lock.Lock()
	defer a.lock.Unlock()
	maps.Copy(channels, a.soft)
	return channels, nil
}

// StartCapture discards any previous capture and starts polling in the background.
func (a *Meter) StartCapture() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.stopCapture != nil {
		return fmt.Errorf("capture already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.stopCapture = cancel
	a.captureDone = make(chan struct{})
	a.start = a.clock.Now()
	a.samples = nil

	go a.capture(ctx, a.captureDone)
	a.logger.Info("Started capture", "interval", a.sampleInterval)
	return nil
}

// capture loops polling the meter every sample interval until the context is cancelled.
func (a *Meter) capture(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reading, err := a.Poll()
			if err != nil {
				a.logger.Error("Failed to poll meter", "error", err)
				continue // try again next time
			}
			a.record(reading)
		}
	}
}

func (a *Meter) record(reading Reading) {
	channels := reading.Channels(a.phases)

	a.lock.Lock()
	defer a.lock.Unlock()
	maps.Copy(channels, a.soft)
	a.samples = append(a.samples, dataset.Sample{
		Time:     a.clock.Now().Sub(a.start).Seconds(),
		Event:    a.event,
		Channels: channels,
	})
}

// StopCapture stops polling and waits for any poll in progress to finish.
func (a *Meter) StopCapture() error {
	a.lock.Lock()
	stop, done := a.stopCapture, a.captureDone
	a.stopCapture = nil
	a.lock.Unlock()

	if stop == nil {
		return nil
	}
	stop()
	<-done
	a.logger.Info("Stopped capture")
	return nil
}

// Dataset returns the samples of the current or last capture.
func (a *Meter) Dataset() (*dataset.Dataset, error) {
	a.lock.Lock()
	samples := slices.Clone(a.samples)
	a.lock.Unlock()
	return dataset.FromSamples(samples)
}

func (a *Meter) Close() error {
	err := a.StopCapture()
	if a.handler != nil {
		if closeErr := a.handler.Close(); closeErr != nil {
			return closeErr
		}
	}
	return err
}
