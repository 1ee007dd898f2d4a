package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutreachMetrics tracks scheduler and dispatcher pass activity.
type OutreachMetrics struct {
	passDuration *prometheus.HistogramVec
	enqueued     prometheus.Counter
	duplicates   prometheus.Counter
	completed    prometheus.Counter
	sent         prometheus.Counter
	sendFailures prometheus.Counter
	deadLettered prometheus.Counter
	stops        *prometheus.CounterVec
}

// NewOutreachMetrics registers the outreach metrics on the provided registerer.
func NewOutreachMetrics(reg prometheus.Registerer) *OutreachMetrics {
	if reg == nil {
		return &OutreachMetrics{}
	}
	passDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outreach_pass_duration_seconds",
		Help:    "Duration of scheduler and dispatcher passes in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"component"})
	enqueued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outreach_emails_enqueued_total",
		Help: "Outbox entries created by the scheduler.",
	})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outreach_enqueue_duplicates_total",
		Help: "Scheduler enqueue attempts deduped by the idempotency key.",
	})
	completed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outreach_sequences_completed_total",
		Help: "Leads whose sequence ran out of defined steps.",
	})
	sent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outreach_emails_sent_total",
		Help: "Emails confirmed sent by the dispatcher.",
	})
	sendFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outreach_send_failures_total",
		Help: "Provider send failures released back to the queue.",
	})
	deadLettered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outreach_emails_dead_lettered_total",
		Help: "Outbox entries parked after exhausting the retry budget.",
	})
	stops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_sequence_stops_total",
		Help: "Sequence stops by reason.",
	}, []string{"reason"})
	reg.MustRegister(passDuration, enqueued, duplicates, completed, sent, sendFailures, deadLettered, stops)
	return &OutreachMetrics{
		passDuration: passDuration,
		enqueued:     enqueued,
		duplicates:   duplicates,
		completed:    completed,
		sent:         sent,
		sendFailures: sendFailures,
		deadLettered: deadLettered,
		stops:        stops,
	}
}

// ObservePass records the duration of one scheduler or dispatcher pass.
func (m *OutreachMetrics) ObservePass(component string, duration time.Duration) {
	if m == nil || m.passDuration == nil {
		return
	}
	m.passDuration.WithLabelValues(normalizeLabel(component)).Observe(duration.Seconds())
}

// IncEnqueued counts a fresh outbox entry.
func (m *OutreachMetrics) IncEnqueued() {
	if m == nil || m.enqueued == nil {
		return
	}
	m.enqueued.Inc()
}

// IncDuplicate counts a deduped enqueue attempt.
func (m *OutreachMetrics) IncDuplicate() {
	if m == nil || m.duplicates == nil {
		return
	}
	m.duplicates.Inc()
}

// IncCompleted counts a lead reaching the end of its sequence.
func (m *OutreachMetrics) IncCompleted() {
	if m == nil || m.completed == nil {
		return
	}
	m.completed.Inc()
}

// IncSent counts a confirmed send.
func (m *OutreachMetrics) IncSent() {
	if m == nil || m.sent == nil {
		return
	}
	m.sent.Inc()
}

// IncSendFailure counts a released claim after a provider error.
func (m *OutreachMetrics) IncSendFailure() {
	if m == nil || m.sendFailures == nil {
		return
	}
	m.sendFailures.Inc()
}

// IncDeadLettered counts an entry moved to the DLQ.
func (m *OutreachMetrics) IncDeadLettered() {
	if m == nil || m.deadLettered == nil {
		return
	}
	m.deadLettered.Inc()
}

// IncStop counts a sequence stop for the given reason.
func (m *OutreachMetrics) IncStop(reason string) {
	if m == nil || m.stops == nil {
		return
	}
	m.stops.WithLabelValues(normalizeLabel(reason)).Inc()
}
