package imbalance

import (
	"testing"

	"github.com/cepro/dercompliance/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCase(t *testing.T) {

	type subTest struct {
		mode        Mode
		c           Case
		expectedMag [3]float64
		expectedAng [3]float64
	}

	subTests := []subTest{
		{ModeStd, CaseA, [3]float64{256.8, 218.4, 218.4}, [3]float64{0, -120, 120}},
		{ModeStd, CaseB, [3]float64{218.4, 256.8, 256.8}, [3]float64{0, -120, 120}},
		{ModeFixMag, CaseA, [3]float64{256.8, 218.4, 218.4}, [3]float64{0, -126.59, 126.59}},
		{ModeFixAng, CaseB, [3]float64{216, 259.2, 259.2}, [3]float64{0, -120, 120}},
		{ModeNotFix, CaseB, [3]float64{216, 259.2, 259.2}, [3]float64{0, -114.5, 114.5}},
	}

	for _, subTest := range subTests {
		t.Run(string(subTest.mode)+" "+string(subTest.c), func(t *testing.T) {
			resolver, err := NewResolver(subTest.mode, ResponseAverage, 240)
			require.NoError(t, err)

			phasors, err := resolver.Case(subTest.c)
			require.NoError(t, err)
			assert.InDeltaSlice(t, subTest.expectedMag[:], phasors.Mag[:], 1e-9)
			assert.Equal(t, subTest.expectedAng, phasors.Ang)
		})
	}
}

func TestVoltage(t *testing.T) {

	type subTest struct {
		name     string
		mode     Mode
		response Response
		c        Case
		expected float64
		delta    float64
	}

	subTests := []subTest{
		{"average of case a", ModeStd, ResponseAverage, CaseA, 231.2, 1e-9},
		{"average of case b", ModeStd, ResponseAverage, CaseB, 244.0, 1e-9},
		{"positive sequence with fixed angles equals the average", ModeStd, ResponsePositiveSequence, CaseA, 231.2, 1e-9},
		{"positive sequence with zero sequence angles", ModeNotFix, ResponsePositiveSequence, CaseA, 231.04, 0.05},
		{"individual phases gives phase a", ModeFixAng, ResponseIndividual, CaseA, 259.2, 1e-9},
	}

	for _, subTest := range subTests {
		t.Run(subTest.name, func(t *testing.T) {
			resolver, err := NewResolver(subTest.mode, subTest.response, 240)
			require.NoError(t, err)

			v, err := resolver.Voltage(subTest.c)
			require.NoError(t, err)
			assert.InDelta(t, subTest.expected, v, subTest.delta)
		})
	}
}

func TestZeroSequence(t *testing.T) {
	resolver, err := NewResolver(ModeNotFix, ResponseAverage, 240)
	require.NoError(t, err)

	for _, c := range []Case{CaseA, CaseB} {
		phasors, err := resolver.Case(c)
		require.NoError(t, err)
		assert.Less(t, ZeroSequence(phasors), 0.01*240, "zero sequence of %s", c)
	}

	balanced := Phasors{Mag: [3]float64{240, 240, 240}, Ang: [3]float64{0, -120, 120}}
	assert.InDelta(t, 0, ZeroSequence(balanced), 1e-9)
	assert.InDelta(t, 240, PositiveSequence(balanced), 1e-9)
}

func TestResolverErrors(t *testing.T) {
	_, err := NewResolver("table_25", ResponseAverage, 240)
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = NewResolver(ModeStd, "PEAK", 240)
	assert.ErrorIs(t, err, config.ErrInvalid)

	resolver, err := NewResolver(ModeStd, ResponseAverage, 240)
	require.NoError(t, err)
	_, err = resolver.Voltage("case_c")
	assert.ErrorIs(t, err, config.ErrInvalid)
}
