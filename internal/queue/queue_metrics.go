package queue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/erqueue/internal/notify"
	"github.com/linnemanlabs/erqueue/internal/triage"
)

// Metrics holds Prometheus metrics for the patient queue.
type Metrics struct {
	AppendsTotal      *prometheus.CounterVec
	RemovalsTotal     prometheus.Counter
	Length            prometheus.Gauge
	NotifyErrorsTotal *prometheus.CounterVec
}

// NewMetrics registers and returns queue metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AppendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "erqueue_queue_appends_total",
			Help: "Total patients queued by triage label.",
		}, []string{"label"}),
		RemovalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "erqueue_queue_removals_total",
			Help: "Total patients called out of the queue.",
		}),
		Length: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "erqueue_queue_length",
			Help: "Patients waiting as of the last queue listing.",
		}),
		NotifyErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "erqueue_notify_errors_total",
			Help: "Queue events that failed to publish, by event type.",
		}, []string{"event"}),
	}

	reg.MustRegister(
		m.AppendsTotal,
		m.RemovalsTotal,
		m.Length,
		m.NotifyErrorsTotal,
	)

	return m
}

// Hooks returns ServiceHooks that update the corresponding metrics.
func (m *Metrics) Hooks() ServiceHooks {
	return ServiceHooks{
		OnAppend: func(label triage.Label) {
			m.AppendsTotal.WithLabelValues(string(label)).Inc()
		},
		OnRemove: func() {
			m.RemovalsTotal.Inc()
		},
		OnLength: func(n int) {
			m.Length.Set(float64(n))
		},
		OnNotifyError: func(eventType notify.EventType) {
			m.NotifyErrorsTotal.WithLabelValues(string(eventType)).Inc()
		},
	}
}
