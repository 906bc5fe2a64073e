package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the notice lifecycle: generation, dispatch outcomes,
// acknowledgments and reminders.
type Metrics struct {
	NoticesGenerated prometheus.Counter
	Transitions      *prometheus.CounterVec
	DispatchFailures prometheus.Counter
	DispatchDuration prometheus.Histogram
	RemindersSent    prometheus.Counter
}

// New registers notice metrics on reg. Tests pass prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		NoticesGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "crummey_notices_generated_total",
			Help: "Total number of notices created from contributions",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crummey_notice_transitions_total",
			Help: "Notice state transitions by target status",
		}, []string{"status"}),
		DispatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "crummey_notice_dispatch_failures_total",
			Help: "Dispatcher calls that failed or timed out",
		}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "crummey_notice_dispatch_duration_seconds",
			Help:    "Duration of dispatcher calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RemindersSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "crummey_notice_reminders_sent_total",
			Help: "Reminder emails sent before withdrawal deadlines",
		}),
	}
}

// AddGenerated records n newly persisted notices.
func (m *Metrics) AddGenerated(n int) {
	m.NoticesGenerated.Add(float64(n))
}

// IncrementTransition records a notice entering status.
func (m *Metrics) IncrementTransition(status string) {
	m.Transitions.WithLabelValues(status).Inc()
}

// ObserveDispatch records a dispatcher call started at start.
func (m *Metrics) ObserveDispatch(start time.Time, failed bool) {
	m.DispatchDuration.Observe(time.Since(start).Seconds())
	if failed {
		m.DispatchFailures.Inc()
	}
}

// IncrementReminders records one reminder sent.
func (m *Metrics) IncrementReminders() {
	m.RemindersSent.Inc()
}
