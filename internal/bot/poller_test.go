package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lojf/storebot/internal/db/dbtest"
)

// scriptedUpdater serves one batch per call and cancels the poll once the
// script runs out.
type scriptedUpdater struct {
	mu      sync.Mutex
	batches [][]Update
	errs    []error
	offsets []int64
	cancel  context.CancelFunc
}

func (s *scriptedUpdater) GetUpdates(ctx context.Context, offset int64, _ time.Duration) ([]Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets = append(s.offsets, offset)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	if len(s.batches) == 0 {
		s.cancel()
		return nil, ctx.Err()
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

func textUpdate(id, from int64, text string) Update {
	return Update{UpdateID: id, Message: &Message{
		MessageID: id,
		From:      &User{ID: from, FirstName: "user"},
		Chat:      &Chat{ID: from, Type: "private"},
		Text:      text,
	}}
}

func TestPollAdvancesOffsetAndKeepsPerUserOrder(t *testing.T) {
	h := newHarness(t)
	dbtest.SeedUsers(t, h.db, map[int64]int64{aliceID: 500, bobID: 0})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &scriptedUpdater{
		cancel: cancel,
		batches: [][]Update{
			{
				textUpdate(10, aliceID, lblTransfer),
				textUpdate(11, bobID, "/balance"),
				textUpdate(12, aliceID, "22"),
				textUpdate(13, aliceID, "100"),
			},
			{textUpdate(20, bobID, "/balance")},
		},
	}

	h.bot.Poll(ctx, src, time.Second)

	require.Equal(t, []int64{0, 14, 21}, src.offsets)
	require.EqualValues(t, 400, dbtest.Balance(t, h.db, aliceID))
	require.EqualValues(t, 100, dbtest.Balance(t, h.db, bobID))
	h.requireIdle(aliceID)
}

func TestPollBacksOffOnErrors(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &scriptedUpdater{cancel: cancel, errs: []error{errors.New("bad gateway")}}

	done := make(chan struct{})
	go func() {
		h.bot.Poll(ctx, src, time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not stop")
	}
	require.Equal(t, []int64{0, 0}, src.offsets)
}
