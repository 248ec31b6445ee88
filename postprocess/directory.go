package postprocess

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cepro/dercompliance/config"
	"github.com/cepro/dercompliance/criteria"
	"github.com/cepro/dercompliance/curves"
	"github.com/cepro/dercompliance/dataset"
	"github.com/cepro/dercompliance/steps"
	"github.com/cepro/dercompliance/telemetry"
)

// CurveLookup returns the curve with the given id, and the response time that it should be evaluated with.
type CurveLookup func(id int) (*curves.Curve, time.Duration, error)

// Reprocessor evaluates datasets that were captured by earlier runs, adding a row to the summary table for every
// step found in them.
type Reprocessor struct {
	evaluator *criteria.Evaluator
	lookup    CurveLookup
	opts      Options
	phases    int
	table     *SummaryTable
	logger    *slog.Logger
}

// NewReprocessor returns a reprocessor that appends to `table`. The filename and response time of `opts` are
// replaced for each dataset.
func NewReprocessor(evaluator *criteria.Evaluator, lookup CurveLookup, opts Options, phases int, table *SummaryTable) *Reprocessor {
	return &Reprocessor{
		evaluator: evaluator,
		lookup:    lookup,
		opts:      opts,
		phases:    phases,
		table:     table,
		logger:    slog.Default().With("component", "reprocessor"),
	}
}

// ProcessDirectory processes every CSV dataset in `dir` in name order, skipping the files named in `skip`.
func (r *Reprocessor) ProcessDirectory(dir string, skip ...string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return fmt.Errorf("list datasets: %w", err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if contains(skip, filepath.Base(path)) {
			continue
		}
		err := r.ProcessFile(path)
		if err != nil {
			return fmt.Errorf("process '%s': %w", path, err)
		}
	}
	return nil
}

// ProcessFile evaluates every step of the dataset at `path`. The curve is identified from the filename.
func (r *Reprocessor) ProcessFile(path string) error {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	curveID, ok := dataset.CurveIDFromFilename(name)
	if !ok {
		return config.Invalidf("dataset '%s' does not name its curve", name)
	}
	curve, tr, err := r.lookup(curveID)
	if err != nil {
		return fmt.Errorf("lookup curve %d: %w", curveID, err)
	}

	ds, err := dataset.Open(path)
	if err != nil {
		return err
	}
	ds = ds.WithMeasColumns(telemetry.Axes, r.phases)

	opts := r.opts
	opts.Filename = name
	opts.ResponseTime = tr
	aggregator := NewAggregator(r.evaluator, opts)

	labels := StepLabels(ds)
	r.logger.Info("Processing dataset", "file", name, "curve", curveID, "steps", len(labels))
	for _, label := range labels {
		checkpoints, err := CheckpointsFromDataset(ds, label, opts.NumberTR, r.phases)
		if errors.Is(err, ErrMissingCheckpoint) {
			r.logger.Warn("Dataset is missing checkpoints", "file", name, "error", err)
		} else if err != nil {
			return err
		}

		row := aggregator.Evaluate(steps.Step{Label: label}, checkpoints, curve)
		err = r.table.AppendRow(row)
		if err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
