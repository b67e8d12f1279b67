package metrics

import "github.com/prometheus/client_golang/prometheus"

// Transition outcomes.
const (
	OutcomeApplied        = "applied"
	OutcomeAlreadyApplied = "already_applied"
	OutcomeRejected       = "rejected"
	OutcomeError          = "error"
)

// BookingMetrics counts booking transitions and settlement callbacks.
type BookingMetrics struct {
	transitions *prometheus.CounterVec
	settlements *prometheus.CounterVec
}

// NewBookingMetrics registers the booking metrics on reg. A nil registerer
// yields a no-op recorder.
func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	if reg == nil {
		return &BookingMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "booking_transitions_total",
		Help:      "Booking state machine transitions by outcome.",
	}, []string{"transition", "outcome"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_settlements_total",
		Help:      "Processor settlement callbacks by result.",
	}, []string{"result", "outcome"})
	reg.MustRegister(transitions, settlements)
	return &BookingMetrics{transitions: transitions, settlements: settlements}
}

// ObserveTransition counts one transition attempt.
func (m *BookingMetrics) ObserveTransition(transition, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(transition), outcome).Inc()
}

// ObserveSettlement counts one settlement callback; result is succeeded or
// failed as reported by the processor.
func (m *BookingMetrics) ObserveSettlement(result, outcome string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(result, outcome).Inc()
}
