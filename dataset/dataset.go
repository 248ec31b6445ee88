package dataset

import (
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"

	"github.com/cepro/dercompliance/telemetry"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	ColumnTime  = "TIME"  // seconds since the capture started
	ColumnEvent = "EVENT" // the event tag that was set on the DAS when the row was sampled
)

// Sample is one row captured by the DAS.
type Sample struct {
	Time     float64
	Event    string
	Channels map[string]float64
}

// Row is a single row of a dataset, with the numeric columns keyed by name.
type Row struct {
	Time   float64
	Event  string
	Values map[string]float64
}

// Value returns the value in the named column, or NaN if there is no such column.
func (r Row) Value(column string) float64 {
	val, ok := r.Values[column]
	if !ok {
		return math.NaN()
	}
	return val
}

// Dataset is the time series captured during one test configuration. It has a TIME column, an EVENT column and a
// numeric column for each DAS channel.
type Dataset struct {
	df dataframe.DataFrame
}

// FromSamples builds a dataset from the given samples. Channels that are missing from a sample are NaN in that row.
func FromSamples(samples []Sample) (*Dataset, error) {
	channelSet := make(map[string]struct{})
	for _, sample := range samples {
		for name := range sample.Channels {
			channelSet[name] = struct{}{}
		}
	}
	channels := maps.Keys(channelSet)
	slices.Sort(channels)

	times := make([]float64, len(samples))
	events := make([]string, len(samples))
	columns := make([][]float64, len(channels))
	for c := range columns {
		columns[c] = make([]float64, len(samples))
	}

	for i, sample := range samples {
		times[i] = sample.Time
		events[i] = sample.Event
		for c, name := range channels {
			val, ok := sample.Channels[name]
			if !ok {
				val = math.NaN()
			}
			columns[c][i] = val
		}
	}

	allSeries := []series.Series{
		series.New(times, series.Float, ColumnTime),
		series.New(events, series.String, ColumnEvent),
	}
	for c, name := range channels {
		allSeries = append(allSeries, series.New(columns[c], series.Float, name))
	}

	df := dataframe.New(allSeries...)
	if df.Err != nil {
		return nil, fmt.Errorf("create dataframe: %w", df.Err)
	}
	return &Dataset{df: df}, nil
}

// ReadCSV reads a dataset that was written by WriteCSV, or by any tool producing the same columns.
func ReadCSV(r io.Reader) (*Dataset, error) {
	df := dataframe.ReadCSV(r,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.Float),
		dataframe.WithTypes(map[string]series.Type{ColumnEvent: series.String}),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read csv: %w", df.Err)
	}
	names := df.Names()
	if !slices.Contains(names, ColumnTime) || !slices.Contains(names, ColumnEvent) {
		return nil, fmt.Errorf("dataset must have '%s' and '%s' columns", ColumnTime, ColumnEvent)
	}
	return &Dataset{df: df}, nil
}

// Open reads the dataset CSV file at `path`.
func Open(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()
	return ReadCSV(file)
}

// WriteCSV writes the dataset with a header row.
func (d *Dataset) WriteCSV(w io.Writer) error {
	return d.df.WriteCSV(w)
}

// Save writes the dataset to a CSV file at `path`, replacing any existing file.
func (d *Dataset) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset file: %w", err)
	}
	err = d.WriteCSV(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("write dataset: %w", err)
	}
	return file.Close()
}

func (d *Dataset) Len() int {
	return d.df.Nrow()
}

func (d *Dataset) Names() []string {
	return d.df.Names()
}

// Column returns the values of a numeric column.
func (d *Dataset) Column(name string) ([]float64, error) {
	if name == ColumnEvent || !slices.Contains(d.df.Names(), name) {
		return nil, fmt.Errorf("no numeric column '%s'", name)
	}
	return d.df.Col(name).Float(), nil
}

// Events returns the distinct event tags in the order they first appear.
func (d *Dataset) Events() []string {
	var events []string
	seen := make(map[string]bool)
	for _, event := range d.df.Col(ColumnEvent).Records() {
		if event == "" || event == "NaN" || seen[event] {
			continue
		}
		seen[event] = true
		events = append(events, event)
	}
	return events
}

// FirstEvent returns the earliest row that was tagged with `event`, and false if no row was.
func (d *Dataset) FirstEvent(event string) (Row, bool) {
	tagged := d.df.Filter(dataframe.F{Colname: ColumnEvent, Comparator: series.Eq, Comparando: event})
	if tagged.Err != nil || tagged.Nrow() == 0 {
		return Row{}, false
	}

	times := tagged.Col(ColumnTime).Float()
	first := 0
	for i, t := range times {
		if t < times[first] {
			first = i
		}
	}
	return rowOf(tagged, first), true
}

// Window returns the rows with start <= TIME < end.
func (d *Dataset) Window(start, end float64) *Dataset {
	df := d.df.
		Filter(dataframe.F{Colname: ColumnTime, Comparator: series.GreaterEq, Comparando: start}).
		Filter(dataframe.F{Colname: ColumnTime, Comparator: series.Less, Comparando: end})
	return &Dataset{df: df}
}

// Rows returns every row of the dataset.
func (d *Dataset) Rows() []Row {
	rows := make([]Row, d.df.Nrow())
	for i := range rows {
		rows[i] = rowOf(d.df, i)
	}
	return rows
}

func rowOf(df dataframe.DataFrame, i int) Row {
	row := Row{Values: make(map[string]float64, df.Ncol())}
	for _, name := range df.Names() {
		switch name {
		case ColumnEvent:
			row.Event = df.Col(name).Elem(i).String()
		case ColumnTime:
			row.Time = df.Col(name).Elem(i).Float()
		default:
			row.Values[name] = df.Col(name).Elem(i).Float()
		}
	}
	return row
}

// WithMeasColumns returns a copy of the dataset with an `{AXIS}_MEAS` column for each of the axes, aggregated from
// the per-phase channels. Axes that already have a MEAS column, or that have no phase channels, are left alone.
func (d *Dataset) WithMeasColumns(axes []telemetry.Axis, phases int) *Dataset {
	df := d.df
	names := df.Names()
	rows := d.Rows()

	for _, axis := range axes {
		if slices.Contains(names, axis.MeasColumn()) || !slices.Contains(names, axis.PhaseChannel(1)) {
			continue
		}
		values := make([]float64, len(rows))
		for i, row := range rows {
			values[i] = telemetry.Aggregate(row.Values, axis, phases)
		}
		df = df.Mutate(series.New(values, series.Float, axis.MeasColumn()))
	}
	return &Dataset{df: df}
}

var curveIDPattern = regexp.MustCompile(`_CRV([0-9]+)`)

// CurveIDFromFilename extracts the curve id that is encoded into dataset filenames, e.g. 2 from "VV_CRV2_PWR_100.csv".
func CurveIDFromFilename(filename string) (int, bool) {
	match := curveIDPattern.FindStringSubmatch(filename)
	if match == nil {
		return 0, false
	}
	id, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return id, true
}
