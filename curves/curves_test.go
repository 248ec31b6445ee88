package curves

import (
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cepro/dercompliance/config"
	"github.com/cepro/dercompliance/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadValidation(t *testing.T) {

	type subTest struct {
		name        string
		document    string
		expectedErr string
	}

	subTests := []subTest{
		{
			name:        "missing name",
			document:    `{"measured_values": ["V"], "x_values": ["V"], "y_values": ["P"]}`,
			expectedErr: "'name'",
		},
		{
			name:        "missing measured values reported before x values",
			document:    `{"name": "VW", "y_values": ["P"]}`,
			expectedErr: "'measured_values'",
		},
		{
			name:        "missing x values",
			document:    `{"name": "VW", "measured_values": ["V"], "y_values": ["P"]}`,
			expectedErr: "'x_values'",
		},
		{
			name:        "missing y values",
			document:    `{"name": "VW", "measured_values": ["V"], "x_values": ["V"]}`,
			expectedErr: "'y_values'",
		},
		{
			name:        "not json",
			document:    `name: VW`,
			expectedErr: "decode curve document",
		},
	}

	for _, subTest := range subTests {
		t.Run(subTest.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(subTest.document))
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrInvalid)
			assert.Contains(t, err.Error(), subTest.expectedErr)
		})
	}
}

func TestDocumentCurve(t *testing.T) {
	doc, err := Load(strings.NewReader(`{
		"name": "VW",
		"measured_values": ["V", "P"],
		"x_values": ["V"],
		"y_values": {"P": "Active Power"},
		"Category B": {
			"curve1": {"VALUES": {"V2": 1.10, "P1": 1.0, "V1": 1.06, "P2": 0.2}, "TR": 10, "V": "v_nom", "P": "p_rated"},
			"curve2": {"VALUES": {"V1": 1.05, "V2": 1.10, "P1": 1.0}, "TR": 90}
		}
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"P"}, doc.YValues)
	assert.Equal(t, []string{"Category B"}, doc.Categories())

	curve, err := doc.Curve("Category B", 1)
	require.NoError(t, err)
	assert.Equal(t, telemetry.AxisVoltage, curve.XAxis)
	assert.Equal(t, telemetry.AxisActivePower, curve.YAxis)
	assert.Equal(t, RefVNom, curve.XRefUnit)
	assert.Equal(t, RefPRated, curve.YRefUnit)
	assert.Equal(t, 10*time.Second, curve.ResponseTime)
	assert.Equal(t, []Pair{{1, 1.06, 1.0}, {2, 1.10, 0.2}}, curve.Pairs)

	v2, err := curve.Value("V2")
	require.NoError(t, err)
	assert.Equal(t, 1.10, v2)

	_, err = curve.Value("V3")
	assert.ErrorIs(t, err, config.ErrInvalid)

	// curve2 is missing P2
	_, err = doc.Curve("Category B", 2)
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = doc.Curve("Category B", 3)
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = doc.Curve("Category A", 1)
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Contains(t, err.Error(), "'Category A'")
}

func TestEmbeddedCatalog(t *testing.T) {
	catalog := NewCatalog(nil)

	type subTest struct {
		standard     string
		function     string
		category     string
		id           int
		expectedY    telemetry.Axis
		expectedTR   time.Duration
		expectedSize int
	}

	subTests := []subTest{
		{"IEEE1547dot1", "VW", "Category B", 1, telemetry.AxisActivePower, 10 * time.Second, 2},
		{"UL1741SB", "VW", "Category B", 3, telemetry.AxisActivePower, 500 * time.Millisecond, 2},
		{"IEEE1547dot1", "VV", "Category B", 1, telemetry.AxisReactivePower, 5 * time.Second, 4},
		{"EN50549-10", "VW", "Category B", 2, telemetry.AxisActivePower, 60 * time.Second, 2},
		{"EN50549-10", "FW", "Above", 1, telemetry.AxisActivePower, 30 * time.Second, 2},
		{"EN50549-10", "FW", "Under", 1, telemetry.AxisActivePower, 30 * time.Second, 2},
	}

	for _, subTest := range subTests {
		t.Run(subTest.standard+" "+subTest.function, func(t *testing.T) {
			curve, err := catalog.Curve(subTest.standard, subTest.function, subTest.category, subTest.id)
			require.NoError(t, err)
			assert.Equal(t, subTest.expectedY, curve.YAxis)
			assert.Equal(t, subTest.expectedTR, curve.ResponseTime)
			assert.Len(t, curve.Pairs, subTest.expectedSize)
		})
	}

	_, err := catalog.Load("IEEE2030.5", "VW")
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = catalog.Load("IEEE1547dot1", "PF")
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestCatalogFromDirectory(t *testing.T) {
	fsys := fstest.MapFS{
		"EN50549/VW.json": &fstest.MapFile{Data: []byte(`{
			"name": "VW", "measured_values": ["V", "P"], "x_values": ["V"], "y_values": ["P"],
			"Category B": {"curve1": {"VALUES": {"V1": 1.08, "V2": 1.10, "P1": 1.0, "P2": 0.0}, "TR": 3}}
		}`)},
	}
	catalog := NewCatalog(fsys)

	curve, err := catalog.Curve("EN50549-10", "VW", "Category B", 1)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, curve.ResponseTime)
	assert.Equal(t, 1.08, curve.Pairs[0].X)

	// the document is cached
	delete(fsys, "EN50549/VW.json")
	_, err = catalog.Load("EN50549-10", "VW")
	assert.NoError(t, err)
}

func TestWithDroop(t *testing.T) {
	catalog := NewCatalog(nil)

	above, err := catalog.Curve("EN50549-10", "FW", "Above", 1)
	require.NoError(t, err)

	drooped, err := above.WithDroop(10)
	require.NoError(t, err)
	assert.InDelta(t, 1.004, drooped.Pairs[0].X, 1e-9)
	assert.InDelta(t, 1.104, drooped.Pairs[1].X, 1e-9)
	f2, _ := drooped.Value("F2")
	assert.InDelta(t, 1.104, f2, 1e-9)

	// the original curve is left untouched
	assert.InDelta(t, 1.054, above.Pairs[1].X, 1e-9)
	f2, _ = above.Value("F2")
	assert.InDelta(t, 1.054, f2, 1e-9)

	under, err := catalog.Curve("EN50549-10", "FW", "Under", 1)
	require.NoError(t, err)
	drooped, err = under.WithDroop(2)
	require.NoError(t, err)
	assert.InDelta(t, 0.976, drooped.Pairs[0].X, 1e-9)
	assert.InDelta(t, 0.996, drooped.Pairs[1].X, 1e-9)

	_, err = under.WithDroop(0)
	assert.ErrorIs(t, err, config.ErrInvalid)
}
