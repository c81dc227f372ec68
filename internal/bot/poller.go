package bot

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Updater is the long-polling side of the Bot API.
type Updater interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

const maxPollBackoff = time.Minute

// Poll fetches updates until ctx is done. Each batch is handled concurrently
// across users and in arrival order per user.
func (b *Bot) Poll(ctx context.Context, src Updater, timeout time.Duration) {
	var offset int64
	backoff := time.Second
	for ctx.Err() == nil {
		ups, err := src.GetUpdates(ctx, offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Warn("get updates", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxPollBackoff)
			continue
		}
		backoff = time.Second
		for _, u := range ups {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
		}
		b.handleBatch(ctx, ups)
	}
}

func (b *Bot) handleBatch(ctx context.Context, ups []Update) {
	byUser := make(map[int64][]*Update)
	var order []int64
	for i := range ups {
		id := senderOf(&ups[i])
		if _, seen := byUser[id]; !seen {
			order = append(order, id)
		}
		byUser[id] = append(byUser[id], &ups[i])
	}

	var g errgroup.Group
	g.SetLimit(16)
	for _, id := range order {
		batch := byUser[id]
		g.Go(func() error {
			for _, u := range batch {
				b.Handle(ctx, u)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func senderOf(u *Update) int64 {
	switch {
	case u.Callback != nil && u.Callback.From != nil:
		return u.Callback.From.ID
	case u.Message != nil && u.Message.From != nil:
		return u.Message.From.ID
	}
	return 0
}
