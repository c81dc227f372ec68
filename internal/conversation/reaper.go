package conversation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lojf/storebot/internal/metrics"
)

// Reaper is a store that needs periodic expiry sweeps.
type Reaper interface {
	Reap(now time.Time) int
}

// StartReaper sweeps expired sessions every interval until ctx is done.
func StartReaper(ctx context.Context, r Reaper, every time.Duration, log *zap.Logger, m *metrics.Metrics) {
	if r == nil || every <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := r.Reap(now); n > 0 {
					m.SessionsReaped(n)
					log.Debug("expired sessions reaped", zap.Int("count", n))
				}
			}
		}
	}()
}
