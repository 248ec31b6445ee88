package cartesian

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrOutsideDomain is returned when an x-value falls outside the horizontal span of a curve and the
// out-of-domain policy does not permit a value to be produced there.
var ErrOutsideDomain = errors.New("outside curve domain")

// Point represents a cartesian X,Y point
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Policy determines how a Curve is evaluated for x-values outside of its horizontal span.
type Policy string

const (
	PolicyClamp       Policy = "clamp"       // PolicyClamp holds the y-value of the nearest end point
	PolicyExtrapolate Policy = "extrapolate" // PolicyExtrapolate extends the nearest end segment using its gradient
	PolicyStrict      Policy = "strict"      // PolicyStrict returns ErrOutsideDomain
)

// ParsePolicy returns the Policy with the given name. An empty name gives PolicyClamp.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(name) {
	case "", PolicyClamp:
		return PolicyClamp, nil
	case PolicyExtrapolate, PolicyStrict:
		return Policy(name), nil
	}
	return "", fmt.Errorf("unknown interpolation policy '%s'", name)
}

// Curve is a piecewise-linear function defined by its Points, which are expected to be in ascending X order.
type Curve struct {
	Points []Point `json:"points"`
}

// NewCurve returns a Curve over a copy of the given points, sorted by X.
func NewCurve(points []Point) Curve {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].X < sorted[j].X
	})
	return Curve{Points: sorted}
}

// Domain returns the horizontal span of the curve.
func (c *Curve) Domain() (float64, float64) {
	if len(c.Points) == 0 {
		return math.NaN(), math.NaN()
	}
	return c.Points[0].X, c.Points[len(c.Points)-1].X
}

// Interpolate returns the y-value of the curve at `x`.
// Inside the horizontal span the value is found by linear interpolation between the two surrounding points, outside of it
// the given `policy` applies.
func (c *Curve) Interpolate(x float64, policy Policy) (float64, error) {
	n := len(c.Points)
	if n == 0 {
		return math.NaN(), errors.New("curve has no points")
	}
	if math.IsNaN(x) {
		return math.NaN(), fmt.Errorf("%w: x is NaN", ErrOutsideDomain)
	}

	first := c.Points[0]
	last := c.Points[n-1]

	if x < first.X || x > last.X {
		switch policy {
		case PolicyClamp, "":
			if x < first.X {
				return first.Y, nil
			}
			return last.Y, nil
		case PolicyExtrapolate:
			if n == 1 {
				return first.Y, nil
			}
			if x < first.X {
				return linearInterpolation(c.Points[0], c.Points[1], x), nil
			}
			return linearInterpolation(c.Points[n-2], c.Points[n-1], x), nil
		default:
			return math.NaN(), fmt.Errorf("%w: x=%g not within [%g, %g]", ErrOutsideDomain, x, first.X, last.X)
		}
	}

	// Loop over each pair of points in the curve
	for i := 0; i < n-1; i++ {
		p1 := c.Points[i]
		p2 := c.Points[i+1]

		// Check if x is 'within the vertical band' of the two current points
		if p1.X <= x && x <= p2.X {
			return linearInterpolation(p1, p2, x), nil
		}
	}

	// only reachable for a single point curve
	return first.Y, nil
}

// linearInterpolation returns the y-value at `x` given two points.
// Where the points share an x-value the y-value of the first point is used.
func linearInterpolation(p1, p2 Point, x float64) float64 {
	if p1.X == p2.X {
		return p1.Y
	}
	return p1.Y + (x-p1.X)*((p2.Y-p1.Y)/(p2.X-p1.X))
}
