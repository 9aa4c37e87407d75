package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage tree.
type Metrics struct {
	SavesTotal   *prometheus.CounterVec
	SaveDuration prometheus.Histogram
	TreeNodes    prometheus.Gauge
	WalksTotal   *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "erqueue_triage_saves_total",
			Help: "Total triage tree saves by result.",
		}, []string{"result"}),
		SaveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "erqueue_triage_save_duration_seconds",
			Help:    "Duration of triage tree saves in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}),
		TreeNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "erqueue_triage_tree_nodes",
			Help: "Steps and options in the last saved triage tree.",
		}),
		WalksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "erqueue_triage_walks_total",
			Help: "Total decision-tree lookups by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.SavesTotal,
		m.SaveDuration,
		m.TreeNodes,
		m.WalksTotal,
	)

	return m
}

// Hooks returns ServiceHooks that update the corresponding metrics.
func (m *Metrics) Hooks() ServiceHooks {
	return ServiceHooks{
		OnSave: func(result string, duration float64, nodes int) {
			m.SavesTotal.WithLabelValues(result).Inc()
			if result == "ok" {
				m.SaveDuration.Observe(duration)
				m.TreeNodes.Set(float64(nodes))
			}
		},
		OnWalk: func(result string) {
			m.WalksTotal.WithLabelValues(result).Inc()
		},
	}
}
