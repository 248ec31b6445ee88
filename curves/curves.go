package curves

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cepro/dercompliance/config"
	"github.com/cepro/dercompliance/telemetry"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// RefUnit names the nameplate rating that a per-unit curve value is multiplied by to give physical units.
type RefUnit string

const (
	RefVNom     RefUnit = "v_nom"
	RefPRated   RefUnit = "p_rated"
	RefSRated   RefUnit = "s_rated"
	RefVarRated RefUnit = "var_rated"
	RefFNom     RefUnit = "f_nom"
	RefNone     RefUnit = ""
)

// defaultRefUnits is used when a curve does not name the reference unit of an axis.
var defaultRefUnits = map[telemetry.Axis]RefUnit{
	telemetry.AxisVoltage:       RefVNom,
	telemetry.AxisActivePower:   RefPRated,
	telemetry.AxisApparentPower: RefSRated,
	telemetry.AxisReactivePower: RefVarRated,
	telemetry.AxisFrequency:     RefFNom,
	telemetry.AxisPowerFactor:   RefNone,
}

// Pair is one breakpoint of a curve, e.g. V1 and P1, in per-unit.
type Pair struct {
	Index int
	X     float64
	Y     float64
}

// Curve is one characteristic curve of a grid support function. It is not modified once loaded.
type Curve struct {
	Category     string
	ID           int
	XAxis        telemetry.Axis
	YAxis        telemetry.Axis
	XRefUnit     RefUnit
	YRefUnit     RefUnit
	Pairs        []Pair
	ResponseTime time.Duration

	values map[string]float64
}

// Value returns the per-unit value with the given key, e.g. "V1" or "VRef".
func (c *Curve) Value(key string) (float64, error) {
	val, ok := c.values[key]
	if !ok {
		return math.NaN(), config.Invalidf("curve%d of '%s' has no value '%s'", c.ID, c.Category, key)
	}
	return val, nil
}

// Pair returns the breakpoint with the given index, e.g. 2 for V2/P2.
func (c *Curve) Pair(index int) (Pair, error) {
	for _, pair := range c.Pairs {
		if pair.Index == index {
			return pair, nil
		}
	}
	return Pair{}, config.Invalidf("curve%d of '%s' has no breakpoint %d", c.ID, c.Category, index)
}

// WithDroop returns a copy of the curve where the breakpoint furthest from nominal (1.0 pu) is moved so that the
// slope between the two breakpoints corresponds to the given droop: the percentage change in x that gives a 100%
// change in y. The curve must have exactly two breakpoints.
func (c Curve) WithDroop(droopPct float64) (Curve, error) {
	if len(c.Pairs) != 2 {
		return Curve{}, config.Invalidf("droop needs a two point curve, curve%d has %d points", c.ID, len(c.Pairs))
	}
	if droopPct <= 0 {
		return Curve{}, config.Invalidf("droop must be positive, got %g", droopPct)
	}

	pairs := slices.Clone(c.Pairs)
	near, far := 0, 1
	if math.Abs(pairs[1].X-1.0) < math.Abs(pairs[0].X-1.0) {
		near, far = 1, 0
	}

	span := droopPct / 100 * math.Abs(pairs[near].Y-pairs[far].Y)
	if pairs[far].X > pairs[near].X {
		pairs[far].X = pairs[near].X + span
	} else {
		pairs[far].X = pairs[near].X - span
	}

	values := maps.Clone(c.values)
	values[fmt.Sprintf("%s%d", c.XAxis, pairs[far].Index)] = pairs[far].X

	c.Pairs = pairs
	c.values = values
	return c, nil
}

// Document holds all the curves for one grid support function, as read from a curve file.
type Document struct {
	Name           string   `mapstructure:"name"`
	MeasuredValues []string `mapstructure:"measured_values"`
	XValues        []string `mapstructure:"x_values"`
	YValues        []string `mapstructure:"y_values"`

	categories map[string]map[string]curveEntry
}

type curveEntry struct {
	Values map[string]float64     `mapstructure:"VALUES"`
	TR     float64                `mapstructure:"TR"`
	Refs   map[string]interface{} `mapstructure:",remain"`
}

// requiredKeys are checked in this order so that the first missing key is reported.
var requiredKeys = []string{"name", "measured_values", "x_values", "y_values"}

// Load reads a curve document in JSON form.
func Load(r io.Reader) (*Document, error) {
	var raw map[string]interface{}
	err := json.NewDecoder(r).Decode(&raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode curve document: %v", config.ErrInvalid, err)
	}

	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, config.Invalidf("curve document does not contain '%s' key", key)
		}
	}

	doc := &Document{
		categories: make(map[string]map[string]curveEntry),
	}
	err = decode(raw, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: decode curve document header: %v", config.ErrInvalid, err)
	}
	if len(doc.XValues) == 0 || len(doc.YValues) == 0 {
		return nil, config.Invalidf("curve document '%s' has empty x_values or y_values", doc.Name)
	}

	for key, val := range raw {
		if slices.Contains(requiredKeys, key) {
			continue
		}
		var entries map[string]curveEntry
		err = decode(val, &entries)
		if err != nil {
			return nil, fmt.Errorf("%w: decode '%s' of curve document '%s': %v", config.ErrInvalid, key, doc.Name, err)
		}
		doc.categories[key] = entries
	}

	return doc, nil
}

// decode uses mapstructure to fill `result` from the generic JSON value `input`.
func decode(input interface{}, result interface{}) error {
	decoderConfig := &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			axisListDecodeHookFunc(),
		),
		Result: result,
	}
	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// axisListDecodeHookFunc allows a list of axes to be given either as a list or as an object keyed by axis, which
// is how some of the curve files give `y_values`.
func axisListDecodeHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf([]string{}) || f.Kind() != reflect.Map {
			return data, nil
		}
		m, ok := data.(map[string]interface{})
		if !ok {
			return data, nil
		}
		keys := maps.Keys(m)
		slices.Sort(keys)
		return keys, nil
	}
}

// Categories returns the names of the categories in the document, e.g. "Category B".
func (d *Document) Categories() []string {
	keys := maps.Keys(d.categories)
	slices.Sort(keys)
	return keys
}

// Curve returns the curve with the given category and id.
func (d *Document) Curve(category string, id int) (Curve, error) {
	entries, ok := d.categories[category]
	if !ok {
		return Curve{}, config.Invalidf("curve document '%s' does not contain '%s' key", d.Name, category)
	}
	entry, ok := entries[fmt.Sprintf("curve%d", id)]
	if !ok {
		return Curve{}, config.Invalidf("curve document '%s' has no curve%d under '%s'", d.Name, id, category)
	}

	xAxis, err := telemetry.ParseAxis(d.XValues[0])
	if err != nil {
		return Curve{}, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	yAxis, err := telemetry.ParseAxis(d.YValues[0])
	if err != nil {
		return Curve{}, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	curve := Curve{
		Category:     category,
		ID:           id,
		XAxis:        xAxis,
		YAxis:        yAxis,
		XRefUnit:     refUnit(entry.Refs, xAxis),
		YRefUnit:     refUnit(entry.Refs, yAxis),
		ResponseTime: time.Duration(entry.TR * float64(time.Second)),
		values:       maps.Clone(entry.Values),
	}

	curve.Pairs, err = pairs(entry.Values, xAxis, yAxis)
	if err != nil {
		return Curve{}, fmt.Errorf("curve%d of '%s': %w", id, category, err)
	}

	return curve, nil
}

// pairs matches up the x and y breakpoints by their numeric suffix, e.g. V1 with P1.
func pairs(values map[string]float64, xAxis, yAxis telemetry.Axis) ([]Pair, error) {
	var result []Pair
	for key, x := range values {
		index, ok := breakpointIndex(key, xAxis)
		if !ok {
			continue
		}
		yKey := fmt.Sprintf("%s%d", yAxis, index)
		y, ok := values[yKey]
		if !ok {
			return nil, config.Invalidf("'%s' has no matching '%s'", key, yKey)
		}
		result = append(result, Pair{Index: index, X: x, Y: y})
	}
	if len(result) == 0 {
		return nil, config.Invalidf("no '%s' breakpoints", xAxis)
	}
	slices.SortFunc(result, func(a, b Pair) int {
		return a.Index - b.Index
	})
	return result, nil
}

// breakpointIndex returns the index of a breakpoint key such as "V2", and false if the key is not a breakpoint of
// the given axis.
func breakpointIndex(key string, axis telemetry.Axis) (int, bool) {
	suffix, found := strings.CutPrefix(key, string(axis))
	if !found || suffix == "" {
		return 0, false
	}
	index, err := strconv.Atoi(suffix)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

func refUnit(refs map[string]interface{}, axis telemetry.Axis) RefUnit {
	if name, ok := refs[string(axis)].(string); ok {
		return RefUnit(name)
	}
	return defaultRefUnits[axis]
}
