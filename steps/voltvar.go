package steps

import (
	"github.com/cepro/dercompliance/config"
	"github.com/cepro/dercompliance/telemetry"
)

// voltVarSteps sweeps the voltage up through V3 and V4 to the upper limit, back down through VRef to V2 and V1 and
// the lower limit, and finally returns to VRef:
//
//	G  V3-a        N  V4-a        U  (V1+V2)/2
//	H  V3+a        O  (V3+V4)/2   V  V1+a
//	I  (V3+V4)/2   P  V3+a        W  V1-a
//	J  V4-a        Q  V3-a        X  VL+a
//	K  V4+a        R  VRef        Y  VRef
//	L  VH-a        S  V2+a
//	M  V4+a        T  V2-a
//
// where a is 1.5 times the voltage MRA.
func voltVarSteps(req Request) ([]Step, error) {
	lim := req.Limits
	if req.Curve.XAxis != telemetry.AxisVoltage {
		return nil, config.Invalidf("volt-var curve has x axis '%s'", req.Curve.XAxis)
	}

	var v [5]float64
	for i := 1; i <= 4; i++ {
		pair, err := req.Curve.Pair(i)
		if err != nil {
			return nil, err
		}
		v[i] = pair.X * lim.VNom
	}
	vRef := lim.VNom
	if ref, err := req.Curve.Value("VRef"); err == nil {
		vRef = ref * lim.VNom
	}

	a := 1.5 * req.MRA.V
	mid34 := (v[3] + v[4]) / 2
	mid12 := (v[1] + v[2]) / 2

	levels, err := labelLevels([]float64{
		v[3] - a,
		v[3] + a,
		mid34,
		v[4] - a,
		v[4] + a,
		lim.VHigh - a,
		v[4] + a,
		v[4] - a,
		mid34,
		v[3] + a,
		v[3] - a,
		vRef,
		v[2] + a,
		v[2] - a,
		mid12,
		v[1] + a,
		v[1] - a,
		lim.VLow + a,
		vRef,
	})
	if err != nil {
		return nil, err
	}

	if v[4] > lim.VHigh {
		levels = elide(levels, "Step K", "Step L", "Step M")
	} else if req.Profile.ElideRepeatedLevels && sameLevel(v[4], lim.VHigh) {
		levels = elide(levels, "Step L")
	}

	if v[1] < lim.VLow {
		levels = elide(levels, "Step W", "Step X")
	} else if req.Profile.ElideRepeatedLevels && sameLevel(v[1], lim.VLow) {
		levels = elide(levels, "Step X")
	}

	return toSteps(levels, telemetry.AxisVoltage, 2, lim.VLow, lim.VHigh), nil
}
