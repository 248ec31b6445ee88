package steps

import (
	"math"

	"github.com/cepro/dercompliance/config"
	"github.com/cepro/dercompliance/telemetry"
)

// freqWattSteps moves the frequency across the breakpoint nearest nominal, on to the far breakpoint and back again,
// finishing at nominal frequency. For the over-frequency test the sweep goes upwards:
//
//	G  Fn-a        L  Ff-a
//	H  Fn+a        M  (Fn+Ff)/2
//	I  (Fn+Ff)/2   N  Fn+a
//	J  Ff-a        O  Fn-a
//	K  Ff+a        P  f_nom
//
// where Fn is the near breakpoint, Ff the far one and a is 1.5 times the frequency MRA. The under-frequency test
// mirrors this downwards.
func freqWattSteps(req Request) ([]Step, error) {
	lim := req.Limits
	curve := req.Curve
	if curve.XAxis != telemetry.AxisFrequency {
		return nil, config.Invalidf("freq-watt curve has x axis '%s'", curve.XAxis)
	}
	if len(curve.Pairs) != 2 {
		return nil, config.Invalidf("freq-watt curve%d needs two breakpoints, has %d", curve.ID, len(curve.Pairs))
	}

	near, far := curve.Pairs[0], curve.Pairs[1]
	if math.Abs(far.X-1.0) < math.Abs(near.X-1.0) {
		near, far = far, near
	}

	sign := 1.0
	if !req.FreqWattAbove {
		sign = -1.0
	}
	if (far.X-near.X)*sign <= 0 {
		return nil, config.Invalidf("freq-watt curve%d does not match the direction of the test", curve.ID)
	}

	a := 1.5 * req.MRA.F * sign
	fNear := near.X * lim.FNom
	fFar := far.X * lim.FNom
	mid := (fNear + fFar) / 2

	levels, err := labelLevels([]float64{
		fNear - a,
		fNear + a,
		mid,
		fFar - a,
		fFar + a,
		fFar - a,
		mid,
		fNear + a,
		fNear - a,
		lim.FNom,
	})
	if err != nil {
		return nil, err
	}

	low := orInf(lim.FLow, -1)
	high := orInf(lim.FHigh, 1)
	if fFar > high || fFar < low {
		levels = elide(levels, "Step J", "Step K", "Step L")
	}

	return toSteps(levels, telemetry.AxisFrequency, 3, low, high), nil
}
