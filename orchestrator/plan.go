package orchestrator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cepro/dercompliance/config"
	"github.com/cepro/dercompliance/curves"
	"github.com/cepro/dercompliance/steps"
	"github.com/cepro/dercompliance/telemetry"
)

// allPowerLevels are the fractions of rated power that "All" expands to.
var allPowerLevels = []float64{1.0, 0.66, 0.2}

// rideThroughPowerLevels are the fractions of rated power of the named ride-through levels.
var rideThroughPowerLevels = map[string]float64{
	"low":  0.5,
	"high": 0.91,
}

// defaultResponseTimes are used for curves whose document gives no response time, keyed by curve id.
var defaultResponseTimes = map[int]time.Duration{
	1: 10 * time.Second,
	2: 60 * time.Second,
	3: 500 * time.Millisecond,
}

// iteration is one entry of the test matrix: a curve at a power level, or a ride-through mode at a power level on a
// phase combination.
type iteration struct {
	key          string // e.g. "CRV1_PWR0.66"
	filename     string // of the captured dataset, without extension
	powerLevel   float64
	curve        *curves.Curve // nil for ride-through
	responseTime time.Duration
	steps        []steps.Step

	phases string // ride-through only
}

// axesOf returns the x and y axis of the summary table for a function.
func axesOf(function steps.Function) (telemetry.Axis, telemetry.Axis) {
	switch function {
	case steps.VoltWatt:
		return telemetry.AxisVoltage, telemetry.AxisActivePower
	case steps.VoltVar:
		return telemetry.AxisVoltage, telemetry.AxisReactivePower
	case steps.FreqWatt:
		return telemetry.AxisFrequency, telemetry.AxisActivePower
	}
	return "", telemetry.AxisVoltage
}

// parsePowerLevels parses "All" or a comma separated list of fractions of rated power.
func parsePowerLevels(levels string) ([]float64, error) {
	if strings.EqualFold(strings.TrimSpace(levels), "all") {
		return allPowerLevels, nil
	}
	var fractions []float64
	for _, field := range strings.Split(levels, ",") {
		fraction, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil || fraction <= 0 || fraction > 1 {
			return nil, config.Invalidf("power level '%s' is not a fraction of rated power", field)
		}
		fractions = append(fractions, fraction)
	}
	return fractions, nil
}

// percent returns a power level as a whole percentage for use in filenames.
func percent(fraction float64) int {
	return int(math.Round(fraction * 100))
}

func validPhaseCombination(phases string) bool {
	if phases == "" {
		return false
	}
	for _, phase := range strings.ToUpper(phases) {
		if phase < 'A' || phase > 'C' {
			return false
		}
	}
	return true
}

// plan builds every iteration of the test matrix. It touches no equipment, so that configuration errors are found
// before the bench is brought up.
func (o *Orchestrator) plan() ([]iteration, error) {
	if o.function == steps.RideThrough {
		return o.planRideThrough()
	}
	return o.planCurves()
}

func (o *Orchestrator) planCurves() ([]iteration, error) {
	test := o.cfg.Test

	powerLevels, err := parsePowerLevels(test.PowerLevels)
	if err != nil {
		return nil, err
	}

	curveIDs := test.Curves
	if o.imbalanced() && (len(curveIDs) != 1 || curveIDs[0] != 1) {
		o.logger.Warn("Imbalanced grid tests only use curve 1", "configured", curveIDs)
		curveIDs = []int{1}
	}

	var iterations []iteration
	for _, id := range curveIDs {
		curve, tr, err := o.lookupCurve(id)
		if err != nil {
			return nil, err
		}

		sequence, err := steps.Build(steps.Request{
			Function:      o.function,
			Profile:       o.profile,
			Curve:         curve,
			Limits:        o.limits(),
			MRA:           o.evaluator.MRA(),
			Imbalanced:    o.imbalanced(),
			FreqWattAbove: !strings.EqualFold(test.FreqWattDirection, "under"),
		})
		if err != nil {
			return nil, fmt.Errorf("build steps for curve %d: %w", id, err)
		}

		for _, level := range powerLevels {
			iterations = append(iterations, iteration{
				key:          fmt.Sprintf("CRV%d_PWR%.2f", id, level),
				filename:     fmt.Sprintf("%s_CRV%d_PWR_%d", test.ScriptName, id, percent(level)),
				powerLevel:   level,
				curve:        curve,
				responseTime: tr,
				steps:        sequence,
			})
		}
	}
	return iterations, nil
}

// lookupCurve loads a curve of the configured function and returns it with its response time. The configured
// response time overrides the curve document's, and a configured droop reshapes a freq-watt curve.
func (o *Orchestrator) lookupCurve(id int) (*curves.Curve, time.Duration, error) {
	test := o.cfg.Test
	curve, err := o.catalog.Curve(test.Standard, string(o.function), test.Category, id)
	if err != nil {
		return nil, 0, err
	}
	if o.function == steps.FreqWatt && test.DroopPct > 0 {
		curve, err = curve.WithDroop(test.DroopPct)
		if err != nil {
			return nil, 0, err
		}
	}

	tr := curve.ResponseTime
	if tr <= 0 {
		tr = defaultResponseTimes[id]
	}
	if secs, ok := test.ResponseTimeSecs[id]; ok {
		tr = time.Duration(secs * float64(time.Second))
	}
	if tr <= 0 {
		return nil, 0, config.Invalidf("curve %d has no response time", id)
	}
	return &curve, tr, nil
}

func (o *Orchestrator) planRideThrough() ([]iteration, error) {
	rt := o.cfg.Test.RideThrough
	rand := steps.NewRand(rt.Seed)

	var iterations []iteration
	for _, modeName := range rt.Modes {
		mode, err := steps.ParseRideThroughMode(modeName)
		if err != nil {
			return nil, err
		}
		for _, levelName := range rt.PowerLevels {
			level, ok := rideThroughPowerLevels[strings.ToLower(levelName)]
			if !ok {
				return nil, config.Invalidf("ride-through power level '%s' is not low or high", levelName)
			}
			for _, phases := range rt.Phases {
				if !validPhaseCombination(phases) {
					return nil, config.Invalidf("'%s' is not a combination of phases A, B and C", phases)
				}
				sequence, err := steps.Build(steps.Request{
					Function: steps.RideThrough,
					Profile:  o.profile,
					Limits:   o.limits(),
					MRA:      o.evaluator.MRA(),
					RideThrough: steps.RideThroughRequest{
						Mode:        mode,
						Consecutive: rt.Consecutive,
						Random:      rt.Random,
						Rand:        rand,
						StartupTime: o.cfg.EUT.StartupTimeSecs,
					},
				})
				if err != nil {
					return nil, fmt.Errorf("build %s steps: %w", mode, err)
				}

				phases = strings.ToUpper(phases)
				iterations = append(iterations, iteration{
					key:        fmt.Sprintf("%s_PWR%.2f_%s", mode, level, phases),
					filename:   fmt.Sprintf("%s_%dPCT_%s", mode, percent(level), phases),
					powerLevel: level,
					steps:      sequence,
					phases:     phases,
				})
			}
		}
	}
	return iterations, nil
}

func (o *Orchestrator) limits() steps.Limits {
	e := o.cfg.EUT
	return steps.Limits{
		VNom:  e.VNom,
		VLow:  e.VLow,
		VHigh: e.VHigh,
		FNom:  e.FNom,
		FLow:  e.FLow,
		FHigh: e.FHigh,
	}
}

func (o *Orchestrator) imbalanced() bool {
	return o.cfg.Test.ImbalanceMode != ""
}
