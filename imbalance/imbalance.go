package imbalance

import (
	"math"
	"math/cmplx"

	"github.com/cepro/dercompliance/cartesian"
	"github.com/cepro/dercompliance/config"
)

// Case identifies one of the two imbalanced voltage test cases.
type Case string

const (
	CaseA Case = "case_a" // phase A high, phases B and C low
	CaseB Case = "case_b" // phase A low, phases B and C high
)

// Mode selects which variant of the imbalanced voltage table is used.
type Mode string

const (
	ModeStd    Mode = "std"     // minimum magnitudes with the angles fixed at 120 degrees
	ModeFixMag Mode = "fix_mag" // minimum magnitudes with angles that keep the zero sequence at zero
	ModeFixAng Mode = "fix_ang" // zero sequence magnitudes with the angles fixed at 120 degrees
	ModeNotFix Mode = "not_fix" // zero sequence magnitudes and angles
)

// Response is the way that the EUT derives the voltage it responds to from the three phases.
type Response string

const (
	ResponseAverage          Response = "AVG_3PH_RMS"
	ResponsePositiveSequence Response = "POSITIVE_SEQUENCE_VOLTAGES"
	ResponseIndividual       Response = "INDIVIDUAL_PHASES_VOLTAGES"
)

// Phasors holds per-phase magnitudes in volts and angles in degrees, in the order A, B, C.
type Phasors struct {
	Mag [3]float64
	Ang [3]float64
}

// caseTable holds per-unit magnitudes and the angles for each case
type caseTable map[Case]Phasors

var tables = map[Mode]caseTable{
	ModeStd: {
		CaseA: {Mag: [3]float64{1.07, 0.91, 0.91}, Ang: [3]float64{0, -120, 120}},
		CaseB: {Mag: [3]float64{0.91, 1.07, 1.07}, Ang: [3]float64{0, -120, 120}},
	},
	ModeFixMag: {
		CaseA: {Mag: [3]float64{1.07, 0.91, 0.91}, Ang: [3]float64{0, -126.59, 126.59}},
		CaseB: {Mag: [3]float64{0.91, 1.07, 1.07}, Ang: [3]float64{0, -114.5, 114.5}},
	},
	ModeFixAng: {
		CaseA: {Mag: [3]float64{1.08, 0.91, 0.91}, Ang: [3]float64{0, -120, 120}},
		CaseB: {Mag: [3]float64{0.9, 1.08, 1.08}, Ang: [3]float64{0, -120, 120}},
	},
	ModeNotFix: {
		CaseA: {Mag: [3]float64{1.08, 0.91, 0.91}, Ang: [3]float64{0, -126.59, 126.59}},
		CaseB: {Mag: [3]float64{0.9, 1.08, 1.08}, Ang: [3]float64{0, -114.5, 114.5}},
	},
}

// Resolver turns the symbolic imbalance cases into per-phase voltages for a given nominal voltage.
type Resolver struct {
	mode     Mode
	response Response
	vNom     float64
}

// NewResolver returns a Resolver for the given table variant and EUT response type.
func NewResolver(mode Mode, response Response, vNom float64) (*Resolver, error) {
	if _, ok := tables[mode]; !ok {
		return nil, config.Invalidf("unknown imbalance mode '%s'", mode)
	}
	switch response {
	case ResponseAverage, ResponsePositiveSequence, ResponseIndividual:
	default:
		return nil, config.Invalidf("unknown imbalance response '%s'", response)
	}
	if vNom <= 0 {
		return nil, config.Invalidf("nominal voltage must be positive, got %g", vNom)
	}
	return &Resolver{
		mode:     mode,
		response: response,
		vNom:     vNom,
	}, nil
}

func (r *Resolver) Mode() Mode {
	return r.mode
}

func (r *Resolver) Response() Response {
	return r.response
}

// Case returns the per-phase magnitudes (in volts) and angles of the given case.
func (r *Resolver) Case(c Case) (Phasors, error) {
	pu, ok := tables[r.mode][c]
	if !ok {
		return Phasors{}, config.Invalidf("unknown imbalance case '%s'", c)
	}
	phasors := pu
	for i := range phasors.Mag {
		phasors.Mag[i] = pu.Mag[i] * r.vNom
	}
	return phasors, nil
}

// PhaseVoltages returns the per-phase voltage magnitudes of the given case.
func (r *Resolver) PhaseVoltages(c Case) ([3]float64, error) {
	phasors, err := r.Case(c)
	if err != nil {
		return [3]float64{}, err
	}
	return phasors.Mag, nil
}

// Voltage returns the single voltage that the EUT is expected to respond to for the given case, rounded to 2
// decimal places. For EUTs that respond to individual phases, the phase A voltage is returned.
func (r *Resolver) Voltage(c Case) (float64, error) {
	phasors, err := r.Case(c)
	if err != nil {
		return math.NaN(), err
	}

	switch r.response {
	case ResponsePositiveSequence:
		return cartesian.Round(PositiveSequence(phasors), 2), nil
	case ResponseIndividual:
		return cartesian.Round(phasors.Mag[0], 2), nil
	default:
		sum := phasors.Mag[0] + phasors.Mag[1] + phasors.Mag[2]
		return cartesian.Round(sum/3.0, 2), nil
	}
}

// alpha is the 120 degree rotation operator
var alpha = cmplx.Rect(1, 2*math.Pi/3)

// PositiveSequence returns the magnitude of the positive sequence component of the three phasors.
func PositiveSequence(p Phasors) float64 {
	var v [3]complex128
	for i := range v {
		v[i] = cmplx.Rect(p.Mag[i], p.Ang[i]*math.Pi/180)
	}
	return cmplx.Abs((v[0] + alpha*v[1] + alpha*alpha*v[2]) / 3)
}

// ZeroSequence returns the magnitude of the zero sequence component of the three phasors.
func ZeroSequence(p Phasors) float64 {
	var sum complex128
	for i := range p.Mag {
		sum += cmplx.Rect(p.Mag[i], p.Ang[i]*math.Pi/180)
	}
	return cmplx.Abs(sum / 3)
}
