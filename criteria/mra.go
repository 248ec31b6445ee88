package criteria

import (
	"math"

	"github.com/cepro/dercompliance/telemetry"
)

// MRA holds the minimum required measurement accuracy for each measured quantity, in physical units.
type MRA struct {
	V  float64 // volts
	Q  float64 // var
	P  float64 // watts
	F  float64 // hertz
	T  float64 // seconds
	PF float64
}

// NewMRA returns the accuracies for an EUT with the given nameplate ratings.
func NewMRA(vNom, sRated float64) MRA {
	return MRA{
		V:  0.01 * vNom,
		Q:  0.05 * sRated,
		P:  0.05 * sRated,
		F:  0.01,
		T:  0.01,
		PF: 0.01,
	}
}

// For returns the accuracy of the given axis, or NaN if no accuracy is defined for it.
func (m MRA) For(axis telemetry.Axis) float64 {
	switch axis {
	case telemetry.AxisVoltage:
		return m.V
	case telemetry.AxisReactivePower:
		return m.Q
	case telemetry.AxisActivePower, telemetry.AxisApparentPower:
		return m.P
	case telemetry.AxisFrequency:
		return m.F
	case telemetry.AxisPowerFactor:
		return m.PF
	}
	return math.NaN()
}
