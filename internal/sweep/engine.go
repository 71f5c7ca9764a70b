package sweep

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/throughput.report/internal/stats"
)

// DefaultTrialCount is the number of repetitions per point when unset.
const DefaultTrialCount = 10

// Options configures an Engine.
type Options struct {
	// TrialCount is the number of trials per point (default 10).
	TrialCount int
	// Levels are the confidence levels computed for every point
	// (default 0.99, 0.95).
	Levels []float64
	// Observer receives progress notifications; nil means none.
	Observer Observer
	// Shard restricts the engine to a subset of points.
	Shard Shard
	// Sink, when set, is called with each row as soon as it is computed, so
	// finished rows survive an interrupted sweep. A Sink error aborts.
	Sink func(Row) error
}

// Engine runs sweeps. It is single-threaded: trials never run concurrently.
type Engine struct {
	opts Options
}

// NewEngine validates opts and fills defaults.
func NewEngine(opts Options) (*Engine, error) {
	if opts.TrialCount == 0 {
		opts.TrialCount = DefaultTrialCount
	}
	if opts.TrialCount < 0 {
		return nil, fmt.Errorf("trial count must be positive, got %d", opts.TrialCount)
	}
	if len(opts.Levels) == 0 {
		opts.Levels = DefaultLevels
	}
	for _, l := range opts.Levels {
		if err := ValidateLevel(l); err != nil {
			return nil, err
		}
	}
	if err := opts.Shard.Validate(); err != nil {
		return nil, err
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	return &Engine{opts: opts}, nil
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// Summarize turns a trial set into a row. Fewer than two samples yield an
// incomplete row.
func Summarize(ts TrialSet, levels []float64) Row {
	iv, err := stats.Estimate(ts.Samples, levels...)
	if err != nil {
		return IncompleteRow(ts.Point, len(ts.Samples), ts.Invalid())
	}
	return Row{
		Point:      ts.Point,
		Mean:       iv.Mean,
		HalfWidths: iv.HalfWidths,
		Samples:    iv.N,
		Invalid:    ts.Invalid(),
	}
}

// RunSweep runs every point of the cartesian product of axes (restricted to
// the engine's shard) and returns one row per point, in generation order.
// On context cancellation the rows finished so far are returned together
// with the context error.
func (e *Engine) RunSweep(ctx context.Context, axes []Axis, run TrialFunc) (*Table, error) {
	if run == nil {
		return nil, errors.New("nil trial function")
	}
	all, err := Points(axes)
	if err != nil {
		return nil, err
	}

	var points []Point
	for i, p := range all {
		if e.opts.Shard.Contains(i) {
			points = append(points, p)
		}
	}

	table := NewTable(AxisNames(axes), e.opts.Levels)
	logf("starting sweep: %d points (shard %s of %d), %d trials each",
		len(points), e.opts.Shard, len(all), e.opts.TrialCount)

	incomplete := 0
	for idx, p := range points {
		ts, err := RunTrials(ctx, p, e.opts.TrialCount, run, e.opts.Observer)
		if err != nil {
			logf("sweep interrupted at point %d/%d: %v", idx+1, len(points), err)
			return table, err
		}
		for trial, reason := range ts.Failures {
			logf("trial %d at %s failed: %s", trial, p, reason)
		}

		row := Summarize(ts, e.opts.Levels)
		if row.Incomplete {
			incomplete++
		}
		if err := table.Append(row); err != nil {
			return table, err
		}
		if e.opts.Sink != nil {
			if err := e.opts.Sink(row); err != nil {
				return table, fmt.Errorf("storing row for %s: %w", p, err)
			}
		}
		e.opts.Observer.OnPoint(row, idx, len(points))
	}

	logf("sweep complete: %d rows, %d incomplete", len(table.Rows), incomplete)
	return table, nil
}
