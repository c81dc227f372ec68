package broadcast

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lojf/storebot/internal/metrics"
)

var ErrEmptyMessage = errors.New("broadcast: message is empty")

// Directory lists every registered user id.
type Directory interface {
	IDs(ctx context.Context) ([]int64, error)
}

// Sender delivers one text message to a private chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type Tally struct {
	Sent   int
	Failed int
}

type Broadcaster struct {
	dir     Directory
	send    Sender
	limit   int
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(dir Directory, send Sender, concurrency int, log *zap.Logger, m *metrics.Metrics) *Broadcaster {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Broadcaster{dir: dir, send: send, limit: concurrency, log: log.Named("broadcast"), metrics: m}
}

// Send fans text out to every user except the sending admin. Each delivery is
// independent: failures are counted, never retried, and never stop the rest.
func (b *Broadcaster) Send(ctx context.Context, from int64, text string) (Tally, error) {
	if strings.TrimSpace(text) == "" {
		return Tally{}, ErrEmptyMessage
	}
	ids, err := b.dir.IDs(ctx)
	if err != nil {
		return Tally{}, err
	}

	var sent, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(b.limit)
	for _, id := range ids {
		if id == from {
			continue
		}
		id := id
		g.Go(func() error {
			if ctx.Err() != nil {
				failed.Add(1)
				return nil
			}
			if err := b.send.SendText(ctx, id, text); err != nil {
				failed.Add(1)
				b.log.Debug("broadcast delivery failed", zap.Int64("user_id", id), zap.Error(err))
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	t := Tally{Sent: int(sent.Load()), Failed: int(failed.Load())}
	b.metrics.Broadcast(t.Sent, t.Failed)
	b.log.Info("broadcast finished", zap.Int64("from", from), zap.Int("sent", t.Sent), zap.Int("failed", t.Failed))
	return t, nil
}
