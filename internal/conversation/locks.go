package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Locker serialises event handling per user.
type Locker interface {
	Lock(ctx context.Context, userID int64) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker. Entries are removed once nobody holds
// or waits for them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[int64]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[int64]*keyedEntry)}
}

func (k *KeyedMutex) Lock(_ context.Context, userID int64) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[userID]
	if !ok {
		e = &keyedEntry{}
		k.entries[userID] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, userID)
		}
		k.mu.Unlock()
	}, nil
}

func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker serialises users across bot replicas sharing a RedisStore.
type RedisLocker struct {
	client redis.UniversalClient
	script *redis.Script
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		prefix: "storebot:lock:",
		ttl:    ttl,
		retry:  25 * time.Millisecond,
	}
}

// Lock spins on SETNX until the lock is taken or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, userID int64) (func(), error) {
	key := fmt.Sprintf("%s%d", l.prefix, userID)
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// release even if the dispatch context is gone
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = l.script.Run(ctx, l.client, []string{key}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(errors.New("conversation: session lock busy"), ctx.Err())
		case <-time.After(l.retry):
		}
	}
}
