package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module. Tracks intake
// volume, transition outcomes, notification delivery, and critical path
// durations.
type Metrics struct {
	SubmissionsReceived *prometheus.CounterVec
	SubmissionConflicts prometheus.Counter
	Transitions         *prometheus.CounterVec
	TransitionFailures  *prometheus.CounterVec
	MessagesDispatched  *prometheus.CounterVec
	BulkItems           *prometheus.CounterVec

	SubmitDuration     prometheus.Histogram
	TransitionDuration prometheus.Histogram
	QueryDuration      prometheus.Histogram
}

// New creates a Metrics instance with all verification module metrics
// registered on the default registry.
func New() *Metrics {
	return &Metrics{
		SubmissionsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vetgate_submissions_received_total",
			Help: "Total verification submissions accepted, by user type",
		}, []string{"user_type"}),
		SubmissionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vetgate_submission_conflicts_total",
			Help: "Submissions refused because the user already had an active process",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vetgate_transitions_total",
			Help: "Completed review transitions, by action",
		}, []string{"action"}),
		TransitionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vetgate_transition_failures_total",
			Help: "Rejected review transitions, by failure code",
		}, []string{"code"}),
		MessagesDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vetgate_messages_dispatched_total",
			Help: "System messages recorded, by type and delivery outcome",
		}, []string{"type", "status"}),
		BulkItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vetgate_bulk_items_total",
			Help: "Bulk action items processed, by outcome",
		}, []string{"outcome"}),
		SubmitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vetgate_submit_duration_seconds",
			Help:    "Duration of Submit operations (upload and risk path)",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		TransitionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vetgate_transition_duration_seconds",
			Help:    "Duration of review transitions",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		QueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vetgate_queue_query_duration_seconds",
			Help:    "Duration of review queue queries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// All recording methods tolerate a nil receiver so unit tests can run
// without touching the default registry.

func (m *Metrics) RecordSubmission(userType string) {
	if m == nil {
		return
	}
	m.SubmissionsReceived.WithLabelValues(userType).Inc()
}

func (m *Metrics) RecordSubmissionConflict() {
	if m == nil {
		return
	}
	m.SubmissionConflicts.Inc()
}

func (m *Metrics) RecordTransition(action string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordTransitionFailure(code string) {
	if m == nil {
		return
	}
	m.TransitionFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) RecordMessage(msgType, status string) {
	if m == nil {
		return
	}
	m.MessagesDispatched.WithLabelValues(msgType, status).Inc()
}

func (m *Metrics) RecordBulkItem(outcome string) {
	if m == nil {
		return
	}
	m.BulkItems.WithLabelValues(outcome).Inc()
}

// ObserveSubmit records the duration of a Submit operation. Call with
// time.Now() at the start of the operation.
func (m *Metrics) ObserveSubmit(start time.Time) {
	if m == nil {
		return
	}
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}

// ObserveTransition records the duration of a transition.
func (m *Metrics) ObserveTransition(start time.Time) {
	if m == nil {
		return
	}
	m.TransitionDuration.Observe(time.Since(start).Seconds())
}

// ObserveQuery records the duration of a queue query.
func (m *Metrics) ObserveQuery(start time.Time) {
	if m == nil {
		return
	}
	m.QueryDuration.Observe(time.Since(start).Seconds())
}
