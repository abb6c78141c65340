package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics tracks gateway webhook processing outcomes.
type WebhookMetrics struct {
	received  *prometheus.CounterVec
	duplicate prometheus.Counter
	failed    *prometheus.CounterVec
}

// NewWebhookMetrics registers webhook counters on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Gateway webhook events accepted for processing.",
	}, []string{"event_type"})
	duplicate := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_webhook_duplicates_total",
		Help: "Webhook deliveries skipped as replays.",
	})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_failures_total",
		Help: "Webhook handler failures by event type.",
	}, []string{"event_type"})
	reg.MustRegister(received, duplicate, failed)
	return &WebhookMetrics{
		received:  received,
		duplicate: duplicate,
		failed:    failed,
	}
}

// IncReceived counts an accepted event.
func (w *WebhookMetrics) IncReceived(eventType string) {
	if w == nil || w.received == nil {
		return
	}
	w.received.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDuplicate counts a replayed delivery.
func (w *WebhookMetrics) IncDuplicate() {
	if w == nil || w.duplicate == nil {
		return
	}
	w.duplicate.Inc()
}

// IncFailed counts a handler failure.
func (w *WebhookMetrics) IncFailed(eventType string) {
	if w == nil || w.failed == nil {
		return
	}
	w.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// PayoutMetrics tracks settlement transfer outcomes.
type PayoutMetrics struct {
	attempts *prometheus.CounterVec
	amount   prometheus.Counter
}

// NewPayoutMetrics registers payout counters on the provided registerer.
func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_payout_attempts_total",
		Help: "Payout transfer attempts by outcome.",
	}, []string{"outcome"})
	amount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_paid_cents_total",
		Help: "Total cents transferred to sellers.",
	})
	reg.MustRegister(attempts, amount)
	return &PayoutMetrics{attempts: attempts, amount: amount}
}

// IncAttempt counts a transfer attempt outcome (paid, retried, failed).
func (p *PayoutMetrics) IncAttempt(outcome string) {
	if p == nil || p.attempts == nil {
		return
	}
	p.attempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddPaidCents accumulates the transferred amount.
func (p *PayoutMetrics) AddPaidCents(cents int64) {
	if p == nil || p.amount == nil || cents <= 0 {
		return
	}
	p.amount.Add(float64(cents))
}
