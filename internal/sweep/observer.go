package sweep

import (
	"math"
	"strings"

	"github.com/banshee-data/throughput.report/internal/monitoring"
)

// Observer receives progress notifications from the engine. Implementations
// must not panic and should return quickly; they run on the sweep goroutine.
type Observer interface {
	// OnTrial is called after each trial at point.
	OnTrial(point Point, trial, trialCount int)
	// OnPoint is called after each point is summarised. index is zero-based
	// within the points this engine runs; total is their count.
	OnPoint(row Row, index, total int)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) OnTrial(Point, int, int) {}
func (NopObserver) OnPoint(Row, int, int)   {}

// MultiObserver fans notifications out to several observers. Nil entries are
// skipped.
type MultiObserver []Observer

func (m MultiObserver) OnTrial(p Point, trial, trialCount int) {
	for _, o := range m {
		if o != nil {
			o.OnTrial(p, trial, trialCount)
		}
	}
}

func (m MultiObserver) OnPoint(r Row, index, total int) {
	for _, o := range m {
		if o != nil {
			o.OnPoint(r, index, total)
		}
	}
}

// LogObserver writes progress through the monitoring logger.
type LogObserver struct {
	// Trials also logs every individual trial.
	Trials bool
	Levels []float64
}

var logf = monitoring.Component("sweep")

func (o LogObserver) OnTrial(p Point, trial, trialCount int) {
	if o.Trials {
		logf("trial %d/%d at %s", trial+1, trialCount, p)
	}
}

func (o LogObserver) OnPoint(r Row, index, total int) {
	if r.Incomplete {
		logf("point %d/%d %s: incomplete (%d valid, %d gaps)", index+1, total, r.Point, r.Samples, r.Invalid)
		return
	}
	var b strings.Builder
	for _, l := range o.Levels {
		if w, ok := r.Stat(LevelColumn(l)); ok && !math.IsNaN(w) {
			b.WriteString(" ")
			b.WriteString(LevelColumn(l))
			b.WriteString("=")
			b.WriteString(NumberValue(w).Text)
		}
	}
	logf("point %d/%d %s: mean=%.4g%s (n=%d, gaps=%d)", index+1, total, r.Point, r.Mean, b.String(), r.Samples, r.Invalid)
}
