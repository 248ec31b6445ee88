package steps

import (
	"github.com/cepro/dercompliance/config"
	"github.com/cepro/dercompliance/telemetry"
)

// voltWattSteps sweeps the voltage up through both breakpoints to the upper limit and back down again:
//
//	G  VL+a        M  VH-a
//	H  V1-a        N  V2+a
//	I  V1+a        O  V2-a
//	J  (V1+V2)/2   P  (V1+V2)/2
//	K  V2-a        Q  V1+a
//	L  V2+a        R  V1-a
//	               S  VL+a
//
// where a is 1.5 times the voltage MRA.
func voltWattSteps(req Request) ([]Step, error) {
	lim := req.Limits
	if req.Curve.XAxis != telemetry.AxisVoltage {
		return nil, config.Invalidf("volt-watt curve has x axis '%s'", req.Curve.XAxis)
	}
	p1, err := req.Curve.Pair(1)
	if err != nil {
		return nil, err
	}
	p2, err := req.Curve.Pair(2)
	if err != nil {
		return nil, err
	}

	a := 1.5 * req.MRA.V
	v1 := p1.X * lim.VNom
	v2 := p2.X * lim.VNom
	mid := (v1 + v2) / 2

	levels, err := labelLevels([]float64{
		lim.VLow + a,
		v1 - a,
		v1 + a,
		mid,
		v2 - a,
		v2 + a,
		lim.VHigh - a,
		v2 + a,
		v2 - a,
		mid,
		v1 + a,
		v1 - a,
		lim.VLow + a,
	})
	if err != nil {
		return nil, err
	}

	// never command the sweep above the EUT's upper limit
	if v2 > lim.VHigh {
		levels = elide(levels, "Step K", "Step L", "Step M", "Step N", "Step O")
	}

	// the sweep returns to the level it started at, which does not need judging twice when V2 sits at VH
	if req.Profile.ElideRepeatedLevels && sameLevel(v2, lim.VHigh) {
		levels = elide(levels, "Step S", "Step G")
	}

	return toSteps(levels, telemetry.AxisVoltage, 2, lim.VLow, lim.VHigh), nil
}
