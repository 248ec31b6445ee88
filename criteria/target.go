package criteria

import (
	"fmt"
	"math"

	"github.com/cepro/dercompliance/cartesian"
	"github.com/cepro/dercompliance/curves"
)

// Nameplate holds the EUT ratings that per-unit curve values are referenced to.
type Nameplate struct {
	VNom     float64
	PRated   float64
	SRated   float64
	VarRated float64
	FNom     float64
}

// Scale returns the physical value of 1 per-unit of the given reference.
func (n Nameplate) Scale(ref curves.RefUnit) (float64, error) {
	var scale float64
	switch ref {
	case curves.RefVNom:
		scale = n.VNom
	case curves.RefPRated:
		scale = n.PRated
	case curves.RefSRated:
		scale = n.SRated
	case curves.RefVarRated:
		scale = n.VarRated
	case curves.RefFNom:
		scale = n.FNom
	case curves.RefNone:
		return 1.0, nil
	default:
		return math.NaN(), fmt.Errorf("unknown reference unit '%s'", ref)
	}
	if scale == 0 {
		return math.NaN(), fmt.Errorf("nameplate has no value for '%s'", ref)
	}
	return scale, nil
}

// TargetBand is the expected y-value for a measured x-value, and the range that the measured y-value must lie within.
type TargetBand struct {
	Value float64
	Min   float64
	Max   float64
}

// Contains returns true if `y` lies within the band, inclusive.
func (b TargetBand) Contains(y float64) bool {
	return b.Min <= y && y <= b.Max
}

// Evaluator derives target bands from curves, in the physical units of an EUT.
type Evaluator struct {
	nameplate Nameplate
	mra       MRA
	policy    cartesian.Policy
}

// NewEvaluator returns an evaluator for the EUT with the given ratings. `policy` decides what happens for measured
// x-values outside the span of a curve.
func NewEvaluator(nameplate Nameplate, policy cartesian.Policy) *Evaluator {
	return &Evaluator{
		nameplate: nameplate,
		mra:       NewMRA(nameplate.VNom, nameplate.SRated),
		policy:    policy,
	}
}

func (e *Evaluator) MRA() MRA {
	return e.mra
}

func (e *Evaluator) Policy() cartesian.Policy {
	return e.policy
}

// Points returns the breakpoints of the curve in physical units.
func (e *Evaluator) Points(curve *curves.Curve) (cartesian.Curve, error) {
	xScale, err := e.nameplate.Scale(curve.XRefUnit)
	if err != nil {
		return cartesian.Curve{}, fmt.Errorf("scale %s axis: %w", curve.XAxis, err)
	}
	yScale, err := e.nameplate.Scale(curve.YRefUnit)
	if err != nil {
		return cartesian.Curve{}, fmt.Errorf("scale %s axis: %w", curve.YAxis, err)
	}

	points := make([]cartesian.Point, 0, len(curve.Pairs))
	for _, pair := range curve.Pairs {
		points = append(points, cartesian.Point{X: pair.X * xScale, Y: pair.Y * yScale})
	}
	return cartesian.NewCurve(points), nil
}

// Target returns the y-value of the curve at `x`, rounded to one decimal place.
func (e *Evaluator) Target(curve *curves.Curve, x float64) (float64, error) {
	points, err := e.Points(curve)
	if err != nil {
		return math.NaN(), err
	}
	return e.target(&points, x)
}

func (e *Evaluator) target(points *cartesian.Curve, x float64) (float64, error) {
	y, err := points.Interpolate(x, e.policy)
	if err != nil {
		return math.NaN(), err
	}
	return cartesian.Round(y, 1), nil
}

// Interpolate returns the target band at the measured value `x`. The bounds come from the curve evaluated 1.5 MRA
// either side of `x`, and are then widened by a further 1.5 MRA of the y-axis.
func (e *Evaluator) Interpolate(curve *curves.Curve, x float64) (TargetBand, error) {
	nan := TargetBand{Value: math.NaN(), Min: math.NaN(), Max: math.NaN()}

	points, err := e.Points(curve)
	if err != nil {
		return nan, err
	}

	xMargin := 1.5 * e.mra.For(curve.XAxis)
	yMargin := 1.5 * e.mra.For(curve.YAxis)

	value, err := e.target(&points, x)
	if err != nil {
		return nan, fmt.Errorf("interpolate target: %w", err)
	}
	lower, err := e.target(&points, x+xMargin)
	if err != nil {
		return nan, fmt.Errorf("interpolate target min: %w", err)
	}
	upper, err := e.target(&points, x-xMargin)
	if err != nil {
		return nan, fmt.Errorf("interpolate target max: %w", err)
	}

	// increasing curves give the lower bound on the other side of x
	if lower > upper {
		lower, upper = upper, lower
	}

	return TargetBand{
		Value: value,
		Min:   lower - yMargin,
		Max:   upper + yMargin,
	}, nil
}
