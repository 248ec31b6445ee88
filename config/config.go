package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

// ErrInvalid is wrapped by every error that is caused by bad configuration, including bad curve documents.
var ErrInvalid = errors.New("invalid configuration")

// Invalidf returns an error wrapping ErrInvalid with the given message.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

type DeviceConfig struct {
	Host             string    `json:"host" yaml:"host"`
	UnitID           uint8     `json:"unitID" yaml:"unitID"` // modbus unit id, defaults to 1
	ID               uuid.UUID `json:"id" yaml:"id"`
	PollIntervalSecs int       `json:"pollIntervalSecs" yaml:"pollIntervalSecs"`
}

// EUTConfig holds the nameplate ratings and limits of the equipment under test.
type EUTConfig struct {
	DeviceConfig `yaml:",inline"`
	PRated   float64 `json:"pRated" yaml:"pRated"`     // W
	SRated   float64 `json:"sRated" yaml:"sRated"`     // VA
	VarRated float64 `json:"varRated" yaml:"varRated"` // var
	VNom     float64 `json:"vNom" yaml:"vNom"`
	VLow     float64 `json:"vLow" yaml:"vLow"`
	VHigh    float64 `json:"vHigh" yaml:"vHigh"`
	VInNom   float64 `json:"vInNom" yaml:"vInNom"` // nominal DC input voltage
	FNom     float64 `json:"fNom" yaml:"fNom"`
	FLow     float64 `json:"fLow" yaml:"fLow"`
	FHigh    float64 `json:"fHigh" yaml:"fHigh"`

	// PhaseType is one of "Single phase", "Split phase" or "Three phase"
	PhaseType string `json:"phaseType" yaml:"phaseType"`

	StartupTimeSecs float64 `json:"startupTimeSecs" yaml:"startupTimeSecs"`
}

// Phases returns the number of AC phases of the EUT.
func (e EUTConfig) Phases() int {
	switch strings.ToLower(e.PhaseType) {
	case "single phase":
		return 1
	case "split phase":
		return 2
	}
	return 3
}

type DASConfig struct {
	DeviceConfig `yaml:",inline"`
	Pt1 float64 `json:"pt1" yaml:"pt1"`
	Pt2 float64 `json:"pt2" yaml:"pt2"`
	Ct1 float64 `json:"ct1" yaml:"ct1"`
	Ct2 float64 `json:"ct2" yaml:"ct2"`
	// SampleIntervalMs is the period at which the DAS is polled while capturing.
	SampleIntervalMs int `json:"sampleIntervalMs" yaml:"sampleIntervalMs"`
}

// BenchConfig describes the equipment on the test bench. Any of the simulators may be left out, in which case the
// associated setpoints are skipped.
type BenchConfig struct {
	// Simulated replaces the whole bench, including the DAS, with an in-process model of the EUT.
	Simulated bool `json:"simulated" yaml:"simulated"`

	Grid *DeviceConfig `json:"grid" yaml:"grid"`
	PV   *DeviceConfig `json:"pv" yaml:"pv"`
	HIL  *DeviceConfig `json:"hil" yaml:"hil"`
	DAS  *DASConfig    `json:"das" yaml:"das"`
}

type RideThroughConfig struct {
	// Modes is a subset of "LV_CAT_2", "LV_CAT_3", "HV_CAT_2", "HV_CAT_3"
	Modes []string `json:"modes" yaml:"modes"`
	// PowerLevels is a subset of "low" and "high"
	PowerLevels []string `json:"powerLevels" yaml:"powerLevels"`
	// Phases lists the phase combinations to test, e.g. "A", "AB", "ABC"
	Phases []string `json:"phases" yaml:"phases"`
	// Consecutive selects the consecutive test sequence rather than the independent one
	Consecutive bool `json:"consecutive" yaml:"consecutive"`
	// Random draws residual voltages from the allowed ranges rather than the figure values
	Random bool  `json:"random" yaml:"random"`
	Seed   int64 `json:"seed" yaml:"seed"`
}

// TestConfig selects the grid support function to test and the test matrix to run it over.
type TestConfig struct {
	// Standard is one of "IEEE1547dot1", "UL1741SB" or "EN50549-10"
	Standard string `json:"standard" yaml:"standard"`
	// Function is one of "VW", "VV", "FW" or "VRT"
	Function string `json:"function" yaml:"function"`
	Category string `json:"category" yaml:"category"`
	Curves   []int  `json:"curves" yaml:"curves"`
	// PowerLevels is "All" or a comma separated list of fractions of rated power, e.g. "1.0,0.2"
	PowerLevels string `json:"powerLevels" yaml:"powerLevels"`
	// ResponseTimeSecs overrides the response time from the curve document, keyed by curve id
	ResponseTimeSecs map[int]float64 `json:"responseTimeSecs" yaml:"responseTimeSecs"`
	NumberTR         int             `json:"numberTR" yaml:"numberTR"`

	// ImbalanceMode is empty for balanced tests, or one of "std", "fix_mag", "fix_ang", "not_fix"
	ImbalanceMode string `json:"imbalanceMode" yaml:"imbalanceMode"`
	// ImbalanceResponse is one of "AVG_3PH_RMS", "POSITIVE_SEQUENCE_VOLTAGES", "INDIVIDUAL_PHASES_VOLTAGES"
	ImbalanceResponse string `json:"imbalanceResponse" yaml:"imbalanceResponse"`

	// FreqWattDirection is "Above" or "Under"
	FreqWattDirection string  `json:"freqWattDirection" yaml:"freqWattDirection"`
	DroopPct          float64 `json:"droopPct" yaml:"droopPct"`

	// InterpolationPolicy is one of "clamp", "extrapolate" or "strict"
	InterpolationPolicy string `json:"interpolationPolicy" yaml:"interpolationPolicy"`
	CalcMinMax          *bool  `json:"calcMinMax" yaml:"calcMinMax"`
	CalcTimeAccuracy    *bool  `json:"calcTimeAccuracy" yaml:"calcTimeAccuracy"`

	RideThrough RideThroughConfig `json:"rideThrough" yaml:"rideThrough"`

	// ScriptName prefixes the dataset filenames
	ScriptName string `json:"scriptName" yaml:"scriptName"`

	// SettleTimeSecs is waited after the bench has been set up for each test configuration, before the first step
	SettleTimeSecs float64 `json:"settleTimeSecs" yaml:"settleTimeSecs"`
}

type SupabaseConfig struct {
	Url string `json:"url" yaml:"url"`
	// key is specified via env var
	Schema string `json:"schema" yaml:"schema"`
}

type DataPlatformConfig struct {
	Enabled            bool           `json:"enabled" yaml:"enabled"`
	UploadIntervalSecs int            `json:"uploadIntervalSecs" yaml:"uploadIntervalSecs"`
	Supabase           SupabaseConfig `json:"supabase" yaml:"supabase"`
}

type Config struct {
	EUT          EUTConfig          `json:"eut" yaml:"eut"`
	Bench        BenchConfig        `json:"bench" yaml:"bench"`
	Test         TestConfig         `json:"test" yaml:"test"`
	ResultsDir   string             `json:"resultsDir" yaml:"resultsDir"`
	CurvesDir    string             `json:"curvesDir" yaml:"curvesDir"`
	DatabasePath string             `json:"databasePath" yaml:"databasePath"`
	DataPlatform DataPlatformConfig `json:"dataPlatform" yaml:"dataPlatform"`
}

// Read loads the configuration at `path`, which is parsed as YAML if it has a .yaml/.yml extension and JSON
// otherwise. Defaults are filled in and the result is validated.
func Read(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &config)
	default:
		err = json.Unmarshal(content, &config)
	}
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	config.ApplyDefaults()
	err = config.Validate()
	if err != nil {
		return Config{}, err
	}

	return config, nil
}

// ApplyDefaults fills in any unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.ResultsDir == "" {
		c.ResultsDir = "results"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "results.sqlite"
	}
	if c.DataPlatform.UploadIntervalSecs == 0 {
		c.DataPlatform.UploadIntervalSecs = 60
	}
	if c.EUT.FNom == 0 {
		c.EUT.FNom = 60
	}
	if c.EUT.PhaseType == "" {
		c.EUT.PhaseType = "Single phase"
	}
	if c.EUT.VarRated == 0 {
		c.EUT.VarRated = 0.44 * c.EUT.SRated
	}
	if c.EUT.UnitID == 0 {
		c.EUT.UnitID = 1
	}
	if c.Bench.DAS != nil {
		if c.Bench.DAS.UnitID == 0 {
			c.Bench.DAS.UnitID = 1
		}
		if c.Bench.DAS.SampleIntervalMs == 0 {
			c.Bench.DAS.SampleIntervalMs = 100
		}
		if c.Bench.DAS.Pt2 == 0 {
			c.Bench.DAS.Pt1, c.Bench.DAS.Pt2 = 1, 1
		}
		if c.Bench.DAS.Ct2 == 0 {
			c.Bench.DAS.Ct1, c.Bench.DAS.Ct2 = 1, 1
		}
	}
	for _, device := range []*DeviceConfig{c.Bench.Grid, c.Bench.PV, c.Bench.HIL} {
		if device != nil && device.UnitID == 0 {
			device.UnitID = 1
		}
	}

	t := &c.Test
	if t.Category == "" {
		t.Category = "Category B"
	}
	if len(t.Curves) == 0 {
		t.Curves = []int{1}
	}
	if t.PowerLevels == "" {
		t.PowerLevels = "All"
	}
	if t.NumberTR == 0 {
		t.NumberTR = 4
	}
	if t.ImbalanceResponse == "" {
		t.ImbalanceResponse = "AVG_3PH_RMS"
	}
	if t.FreqWattDirection == "" {
		t.FreqWattDirection = "Above"
	}
	if t.InterpolationPolicy == "" {
		t.InterpolationPolicy = "clamp"
	}
	if t.CalcMinMax == nil {
		t.CalcMinMax = pointerToBool(true)
	}
	if t.CalcTimeAccuracy == nil {
		t.CalcTimeAccuracy = pointerToBool(true)
	}
	if t.ScriptName == "" {
		t.ScriptName = t.Function
	}

	rt := &t.RideThrough
	if len(rt.Modes) == 0 {
		rt.Modes = []string{"LV_CAT_2"}
	}
	if len(rt.PowerLevels) == 0 {
		rt.PowerLevels = []string{"high"}
	}
	if len(rt.Phases) == 0 {
		rt.Phases = []string{"ABC"}
	}
}

// Validate checks the configuration for errors that would otherwise only show up once equipment is being driven.
func (c *Config) Validate() error {
	e := c.EUT
	if e.VNom <= 0 {
		return Invalidf("eut vNom must be positive")
	}
	if e.VLow <= 0 || e.VHigh <= e.VLow {
		return Invalidf("eut voltage limits [%g, %g] are not a valid range", e.VLow, e.VHigh)
	}
	if e.PRated <= 0 || e.SRated <= 0 {
		return Invalidf("eut pRated and sRated must be positive")
	}
	if e.FLow != 0 && e.FHigh <= e.FLow {
		return Invalidf("eut frequency limits [%g, %g] are not a valid range", e.FLow, e.FHigh)
	}

	switch c.Test.Standard {
	case "IEEE1547dot1", "UL1741SB", "EN50549-10":
	default:
		return Invalidf("unsupported standard '%s'", c.Test.Standard)
	}

	switch c.Test.Function {
	case "VW", "VV", "FW", "VRT":
	default:
		return Invalidf("unsupported function '%s'", c.Test.Function)
	}

	for _, curve := range c.Test.Curves {
		if curve < 1 || curve > 3 {
			return Invalidf("curve %d is not one of 1, 2 or 3", curve)
		}
	}
	if c.Test.NumberTR < 2 {
		return Invalidf("numberTR must be at least 2, got %d", c.Test.NumberTR)
	}

	switch c.Test.ImbalanceMode {
	case "", "std", "fix_mag", "fix_ang", "not_fix":
	default:
		return Invalidf("unknown imbalance mode '%s'", c.Test.ImbalanceMode)
	}

	if !c.Bench.Simulated && c.Bench.DAS == nil {
		return Invalidf("a DAS must be configured unless the bench is simulated")
	}

	return nil
}

func pointerToBool(b bool) *bool {
	return &b
}
