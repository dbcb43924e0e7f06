package runner

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	runs     *prometheus.CounterVec
	samples  *prometheus.CounterVec
	active   prometheus.Gauge
	duration *prometheus.HistogramVec
}

// newMetrics creates run metrics and registers them with reg. A nil reg
// disables metrics.
func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	m := &metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echem",
			Name:      "runs_total",
			Help:      "Finished method runs by outcome.",
		}, []string{"method", "outcome"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echem",
			Name:      "samples_total",
			Help:      "Samples emitted by method runs.",
		}, []string{"method"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "echem",
			Name:      "run_active",
			Help:      "1 while a method run is in progress.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "echem",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of method runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"method"}),
	}
	reg.MustRegister(m.runs, m.samples, m.active, m.duration)
	return m
}
