package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Ledger operation and redemption outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeInsufficient = "insufficient"
	OutcomeNotFound     = "not_found"
	OutcomeInvalid      = "invalid"
	OutcomeAlreadyUsed  = "already_used"
	OutcomeError        = "error"
)

// Metrics holds the bot's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ledgerOps       *prometheus.CounterVec
	redemptions     *prometheus.CounterVec
	requests        *prometheus.CounterVec
	dispatches      *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	broadcasts      *prometheus.CounterVec
	sessionsReaped  prometheus.Counter
}

// New registers the collectors on reg (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storebot_ledger_operations_total",
			Help: "Credit ledger operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storebot_discount_redemptions_total",
			Help: "Discount code redemption attempts by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storebot_purchase_requests_total",
			Help: "Purchase request lifecycle transitions.",
		}, []string{"status"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storebot_conversation_dispatches_total",
			Help: "Conversation events dispatched by flow and result.",
		}, []string{"flow", "result"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storebot_conversation_dispatch_seconds",
			Help:    "Time spent handling one conversation event.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"flow"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storebot_broadcast_messages_total",
			Help: "Broadcast deliveries by result.",
		}, []string{"result"}),
		sessionsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storebot_sessions_reaped_total",
			Help: "Expired conversation sessions removed by the reaper.",
		}),
	}
	reg.MustRegister(
		m.ledgerOps,
		m.redemptions,
		m.requests,
		m.dispatches,
		m.dispatchLatency,
		m.broadcasts,
		m.sessionsReaped,
	)
	return m
}

func (m *Metrics) LedgerOp(op, outcome string) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) Redemption(outcome string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Request(status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(status).Inc()
}

// Dispatch records one handled conversation event.
func (m *Metrics) Dispatch(flow, result string, seconds float64) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(flow, result).Inc()
	m.dispatchLatency.WithLabelValues(flow).Observe(seconds)
}

func (m *Metrics) Broadcast(sent, failed int) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues("sent").Add(float64(sent))
	m.broadcasts.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) SessionsReaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsReaped.Add(float64(n))
}
