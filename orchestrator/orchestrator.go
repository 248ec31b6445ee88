// Package orchestrator runs a compliance test over its whole configuration matrix: it brings the bench up, applies
// the steps of every matrix entry while capturing the EUT's response, evaluates the responses and releases the
// equipment however the run ends.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cepro/dercompliance/bench"
	"github.com/cepro/dercompliance/cartesian"
	"github.com/cepro/dercompliance/config"
	"github.com/cepro/dercompliance/criteria"
	"github.com/cepro/dercompliance/curves"
	"github.com/cepro/dercompliance/dataset"
	"github.com/cepro/dercompliance/postprocess"
	"github.com/cepro/dercompliance/recorder"
	"github.com/cepro/dercompliance/steps"
	"github.com/cepro/dercompliance/telemetry"
	timeutils "github.com/cepro/dercompliance/time_utils"
	"github.com/google/uuid"
)

// ErrEquipmentUnavailable is returned when the test needs equipment that is not on the bench.
var ErrEquipmentUnavailable = bench.ErrEquipmentUnavailable

// simulationPollInterval is how often the HIL is asked how far through the ride-through conditions it is.
const simulationPollInterval = time.Second

// ResultSink receives every result row as soon as it is evaluated.
type ResultSink interface {
	AppendRow(row telemetry.ResultRow) error
}

type Orchestrator struct {
	cfg       config.Config
	bench     *bench.Bench
	catalog   *curves.Catalog
	clock     timeutils.Clock
	sinks     []ResultSink
	runID     uuid.UUID
	profile   steps.Profile
	function  steps.Function
	evaluator *criteria.Evaluator
	summary   *postprocess.SummaryTable
	logger    *slog.Logger
}

// New returns an orchestrator that drives `b` according to `cfg`. Result rows go to the summary table of the run and
// then to each of `sinks`. `b` may be nil if the orchestrator is only used to reprocess earlier datasets.
func New(cfg config.Config, b *bench.Bench, catalog *curves.Catalog, clock timeutils.Clock, sinks ...ResultSink) (*Orchestrator, error) {
	cfg.ApplyDefaults()

	profile, err := steps.ProfileFor(cfg.Test.Standard)
	if err != nil {
		return nil, err
	}
	function := steps.Function(cfg.Test.Function)
	if !profile.Supports(function) {
		return nil, config.Invalidf("%s does not define %s tests", profile.Standard, function)
	}
	policy, err := cartesian.ParsePolicy(cfg.Test.InterpolationPolicy)
	if err != nil {
		return nil, err
	}

	evaluator := criteria.NewEvaluator(criteria.Nameplate{
		VNom:     cfg.EUT.VNom,
		PRated:   cfg.EUT.PRated,
		SRated:   cfg.EUT.SRated,
		VarRated: cfg.EUT.VarRated,
		FNom:     cfg.EUT.FNom,
	}, policy)

	x, y := axesOf(function)
	summary := postprocess.NewSummaryTable(postprocess.Columns{
		XAxis:        x,
		YAxis:        y,
		NumberTR:     cfg.Test.NumberTR,
		MinMax:       *cfg.Test.CalcMinMax,
		TimeAccuracy: *cfg.Test.CalcTimeAccuracy && function != steps.RideThrough,
	})

	runID := uuid.New()
	return &Orchestrator{
		cfg:       cfg,
		bench:     b,
		catalog:   catalog,
		clock:     clock,
		sinks:     sinks,
		runID:     runID,
		profile:   profile,
		function:  function,
		evaluator: evaluator,
		summary:   summary,
		logger:    slog.Default().With("component", "orchestrator", "run_id", runID, "function", function),
	}, nil
}

func (o *Orchestrator) RunID() uuid.UUID {
	return o.runID
}

// Summary returns the result rows of the run so far.
func (o *Orchestrator) Summary() *postprocess.SummaryTable {
	return o.summary
}

// SummaryPath is where the summary CSV of the run is written.
func (o *Orchestrator) SummaryPath() string {
	return filepath.Join(o.cfg.ResultsDir, o.profile.SummaryFilename)
}

// Run plans the test matrix, brings the bench up and runs each entry of the matrix in turn. The bench is closed on
// every return. The context is only checked between matrix entries.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	if o.bench == nil {
		return fmt.Errorf("no bench to run on: %w", ErrEquipmentUnavailable)
	}
	defer func() {
		closeErr := o.bench.Close()
		if closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close bench: %w", closeErr))
		}
	}()

	iterations, err := o.plan()
	if err != nil {
		return err
	}
	if o.function == steps.RideThrough && o.bench.HIL == nil {
		return fmt.Errorf("ride-through needs a hil: %w", ErrEquipmentUnavailable)
	}
	err = os.MkdirAll(o.cfg.ResultsDir, 0o755)
	if err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}

	o.logger.Info("Starting test run", "standard", o.profile.Standard, "iterations", len(iterations))

	err = o.bench.Init()
	if err != nil {
		return fmt.Errorf("init bench: %w", err)
	}

	for _, it := range iterations {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("Run cancelled", "before", it.key)
			return err
		}

		if o.function == steps.RideThrough {
			err = o.runRideThrough(it)
		} else {
			err = o.runCurve(it)
		}
		if err != nil {
			return fmt.Errorf("run %s: %w", it.key, err)
		}

		err = o.summary.FlushTo(o.SummaryPath())
		if err != nil {
			return fmt.Errorf("flush summary: %w", err)
		}
	}

	o.logger.Info("Test run complete", "rows", len(o.summary.Rows()), "summary", o.SummaryPath())
	return nil
}

// setUp puts the bench into the state that an iteration starts from and waits for the EUT to settle.
func (o *Orchestrator) setUp(it iteration) error {
	err := o.bench.SetVoltage(o.cfg.EUT.VNom)
	if err != nil {
		return fmt.Errorf("set nominal voltage: %w", err)
	}
	if o.function == steps.FreqWatt {
		err = o.bench.SetFrequency(o.cfg.EUT.FNom)
		if err != nil {
			return fmt.Errorf("set nominal frequency: %w", err)
		}
	}
	err = o.bench.SetPowerLevel(it.powerLevel)
	if err != nil {
		return fmt.Errorf("set power level: %w", err)
	}

	if it.curve != nil {
		err = o.bench.EUT.ApplyCurve(curveSettings(o.function, it.curve, it.responseTime))
		if err != nil {
			return fmt.Errorf("apply curve: %w", err)
		}
	}

	if o.cfg.Test.SettleTimeSecs > 0 {
		o.clock.Sleep(time.Duration(o.cfg.Test.SettleTimeSecs * float64(time.Second)))
	}
	return nil
}

func curveSettings(function steps.Function, curve *curves.Curve, tr time.Duration) bench.CurveSettings {
	settings := bench.CurveSettings{Function: function, ResponseTime: tr, VRef: 1.0}
	for _, pair := range curve.Pairs {
		settings.X = append(settings.X, pair.X)
		settings.Y = append(settings.Y, pair.Y)
	}
	if vRef, err := curve.Value("VRef"); err == nil {
		settings.VRef = vRef
	}
	return settings
}

// runCurve steps through the sequence of a curve test, evaluating each step as soon as it has been captured.
func (o *Orchestrator) runCurve(it iteration) error {
	logger := o.logger.With("loop", it.key)
	logger.Info("Starting iteration", "steps", len(it.steps), "responseTime", it.responseTime)

	err := o.setUp(it)
	if err != nil {
		return err
	}

	rec := recorder.New(o.bench, o.bench.DAS, o.clock, o.cfg.EUT.Phases())
	aggregator := postprocess.NewAggregator(o.evaluator, o.options(it))

	_, err = o.capture(it.filename, func() error {
		for _, step := range it.steps {
			checkpoints, err := rec.ApplyAndCapture(step, it.responseTime, o.cfg.Test.NumberTR)
			if err != nil {
				return fmt.Errorf("%s: %w", step.Label, err)
			}
			o.appendRow(aggregator.Evaluate(step, checkpoints, it.curve))
		}
		return nil
	})
	return err
}

// runRideThrough loads the conditions into the HIL and captures the whole simulation, evaluating each condition
// from the captured dataset once the simulation has finished.
func (o *Orchestrator) runRideThrough(it iteration) error {
	logger := o.logger.With("loop", it.key)
	logger.Info("Starting iteration", "conditions", len(it.steps), "phases", it.phases)

	err := o.setUp(it)
	if err != nil {
		return err
	}

	params, err := steps.RideThroughParameters(it.steps)
	if err != nil {
		return err
	}
	params = append(params, steps.Parameter{Name: "VRT_PHA_ENABLE", Values: []float64{0}},
		steps.Parameter{Name: "VRT_PHB_ENABLE", Values: []float64{0}},
		steps.Parameter{Name: "VRT_PHC_ENABLE", Values: []float64{0}})
	params = append(params, steps.PhaseParameters(it.phases)...)
	for _, param := range params {
		err = o.bench.HIL.SetParameter(param.Name, param.Values)
		if err != nil {
			return fmt.Errorf("set hil parameter '%s': %w", param.Name, err)
		}
	}

	stopTime := steps.StopTime(it.steps)
	ds, err := o.capture(it.filename, func() error {
		err := o.bench.DAS.TagEvent(postprocess.SimulationStartEvent)
		if err != nil {
			return fmt.Errorf("tag simulation start: %w", err)
		}
		err = o.bench.HIL.StartSimulation()
		if err != nil {
			return fmt.Errorf("start simulation: %w", err)
		}

		for {
			simTime, err := o.bench.HIL.SimulationTime()
			if err != nil {
				return fmt.Errorf("read simulation time: %w", err)
			}
			if simTime >= stopTime {
				break
			}
			logger.Debug("Simulation running", "simTime", simTime, "stopTime", stopTime)
			o.clock.Sleep(simulationPollInterval)
		}

		err = o.bench.HIL.StopSimulation()
		if err != nil {
			return fmt.Errorf("stop simulation: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	evaluator := postprocess.NewRideThroughEvaluator(o.cfg.EUT.VNom, o.evaluator.MRA(), o.cfg.EUT.Phases(), it.phases, o.options(it))
	rows, err := evaluator.Evaluate(ds, it.steps)
	if err != nil {
		return fmt.Errorf("evaluate ride-through: %w", err)
	}
	for _, row := range rows {
		o.appendRow(row)
	}
	return nil
}

// capture runs `run` while the DAS is capturing and saves the captured dataset, whether or not `run` succeeds.
func (o *Orchestrator) capture(filename string, run func() error) (*dataset.Dataset, error) {
	das := o.bench.DAS
	err := das.StartCapture()
	if err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}

	runErr := run()

	err = das.StopCapture()
	if err != nil {
		return nil, errors.Join(runErr, fmt.Errorf("stop capture: %w", err))
	}
	ds, err := das.Dataset()
	if err != nil {
		return nil, errors.Join(runErr, fmt.Errorf("export dataset: %w", err))
	}
	path := filepath.Join(o.cfg.ResultsDir, filename+".csv")
	err = ds.Save(path)
	if err != nil {
		return ds, errors.Join(runErr, fmt.Errorf("save dataset: %w", err))
	}
	o.logger.Info("Saved dataset", "path", path, "rows", ds.Len())

	return ds, runErr
}

func (o *Orchestrator) options(it iteration) postprocess.Options {
	return postprocess.Options{
		RunID:            o.runID,
		Standard:         o.profile.Standard,
		Function:         string(o.function),
		Filename:         it.filename,
		ResponseTime:     it.responseTime,
		NumberTR:         o.cfg.Test.NumberTR,
		CalcMinMax:       *o.cfg.Test.CalcMinMax,
		CalcTimeAccuracy: *o.cfg.Test.CalcTimeAccuracy,
	}
}

// appendRow adds the row to the summary and passes it on to the other sinks. A sink that fails to take the row is
// logged and does not stop the run.
func (o *Orchestrator) appendRow(row telemetry.ResultRow) {
	err := o.summary.AppendRow(row)
	if err != nil {
		o.logger.Error("Failed to append row to summary", "step", row.Step, "error", err)
	}
	for _, sink := range o.sinks {
		err := sink.AppendRow(row)
		if err != nil {
			o.logger.Error("Failed to append row to sink", "step", row.Step, "error", err)
		}
	}
}

// Reprocessor returns a reprocessor that evaluates the datasets of an earlier run of the same configuration into
// this run's summary.
func (o *Orchestrator) Reprocessor() *postprocess.Reprocessor {
	opts := postprocess.Options{
		RunID:            o.runID,
		Standard:         o.profile.Standard,
		Function:         string(o.function),
		NumberTR:         o.cfg.Test.NumberTR,
		CalcMinMax:       *o.cfg.Test.CalcMinMax,
		CalcTimeAccuracy: *o.cfg.Test.CalcTimeAccuracy,
	}
	return postprocess.NewReprocessor(o.evaluator, o.lookupCurve, opts, o.cfg.EUT.Phases(), o.summary)
}
