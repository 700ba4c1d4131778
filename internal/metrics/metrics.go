// Package metrics defines the Prometheus collectors exposed by the
// stepflow runtime.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the runtime collectors. A nil *Metrics is valid and
// records nothing, so core packages can take it as an optional dependency.
type Metrics struct {
	stepVisits  *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	submissions *prometheus.CounterVec
	enqueued    prometheus.Counter
}

// New creates and registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stepVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_step_visits_total",
				Help: "Total number of step visits",
			},
			[]string{"form", "step"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_transition_rejections_total",
				Help: "Rejected navigation transitions by kind",
			},
			[]string{"form", "kind"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_submissions_total",
				Help: "Submission pipeline outcomes",
			},
			[]string{"form", "outcome"},
		),
		enqueued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stepflow_dispatches_enqueued_total",
				Help: "Webhook dispatches queued for delivery",
			},
		),
	}
	reg.MustRegister(m.stepVisits, m.rejections, m.submissions, m.enqueued)
	return m
}

// StepVisit records entry into a step.
func (m *Metrics) StepVisit(form, step string) {
	if m == nil {
		return
	}
	m.stepVisits.WithLabelValues(form, step).Inc()
}

// Rejection records a rejected transition ("no_next_step" or "step_not_found").
func (m *Metrics) Rejection(form, kind string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(form, kind).Inc()
}

// Submission records a pipeline outcome ("accepted", "duplicate" or "rejected").
func (m *Metrics) Submission(form, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(form, outcome).Inc()
}

// DispatchEnqueued records a queued webhook dispatch.
func (m *Metrics) DispatchEnqueued() {
	if m == nil {
		return
	}
	m.enqueued.Inc()
}
