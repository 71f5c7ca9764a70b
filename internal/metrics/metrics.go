// Package metrics exports sweep progress as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/banshee-data/throughput.report/internal/sweep"
)

// Observer is a sweep.Observer that counts trials and points.
type Observer struct {
	trialsRun prometheus.Counter
	trials    *prometheus.CounterVec
	points    *prometheus.CounterVec
	progress  prometheus.Gauge
}

// New registers the sweep metrics with reg. Registering twice with the same
// registry panics.
func New(reg prometheus.Registerer) *Observer {
	f := promauto.With(reg)
	return &Observer{
		trialsRun: f.NewCounter(prometheus.CounterOpts{
			Name: "sweep_trials_run_total",
			Help: "Number of trials executed.",
		}),
		trials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_trials_total",
			Help: "Number of summarised trials by outcome.",
		}, []string{"outcome"}),
		points: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_points_total",
			Help: "Number of summarised points by status.",
		}, []string{"status"}),
		progress: f.NewGauge(prometheus.GaugeOpts{
			Name: "sweep_progress_ratio",
			Help: "Fraction of this run's points that have been summarised.",
		}),
	}
}

func (o *Observer) OnTrial(sweep.Point, int, int) {
	o.trialsRun.Inc()
}

func (o *Observer) OnPoint(row sweep.Row, index, total int) {
	o.trials.WithLabelValues("valid").Add(float64(row.Samples))
	o.trials.WithLabelValues("gap").Add(float64(row.Invalid))
	if row.Incomplete {
		o.points.WithLabelValues("incomplete").Inc()
	} else {
		o.points.WithLabelValues("complete").Inc()
	}
	if total > 0 {
		o.progress.Set(float64(index+1) / float64(total))
	}
}
