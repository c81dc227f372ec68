package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.LedgerOp("transfer", OutcomeOK)
	m.LedgerOp("transfer", OutcomeOK)
	m.LedgerOp("decrease", OutcomeInsufficient)
	m.Redemption(OutcomeAlreadyUsed)
	m.Broadcast(3, 1)
	m.SessionsReaped(2)
	m.SessionsReaped(0)

	require.Equal(t, 2.0, testutil.ToFloat64(m.ledgerOps.WithLabelValues("transfer", OutcomeOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ledgerOps.WithLabelValues("decrease", OutcomeInsufficient)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.redemptions.WithLabelValues(OutcomeAlreadyUsed)))
	require.Equal(t, 3.0, testutil.ToFloat64(m.broadcasts.WithLabelValues("sent")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.broadcasts.WithLabelValues("failed")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.sessionsReaped))
}

func TestNilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.LedgerOp("increase", OutcomeOK)
		m.Redemption(OutcomeOK)
		m.Request("approved")
		m.Dispatch("registration", "ok", 0.1)
		m.Broadcast(1, 1)
		m.SessionsReaped(5)
	})
}
