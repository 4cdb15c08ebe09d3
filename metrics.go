package hotreload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hotreload"

// metrics of one Runtime. A nil registerer leaves them unregistered.
type metrics struct {
	rebuilds    *prometheus.CounterVec
	rebuildTime prometheus.Histogram
	calls       *prometheus.CounterVec
	generations prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		rebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebuilds_total",
			Help:      "Artifact rebuilds by result.",
		}, []string{"result"}),
		rebuildTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rebuild_duration_seconds",
			Help:      "Duration of successful artifact rebuilds.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "site_calls_total",
			Help:      "Reload-enabled site invocations by symbol and outcome.",
		}, []string{"symbol", "outcome"}),
		generations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generations_loaded",
			Help:      "Artifact generations loaded into the process.",
		}),
	}
}
