package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions as JSON with a native expiry, so abandoned flows
// disappear without a reaper. Scratch must be JSON-serialisable.
type RedisStore[S any] struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedisStore[S any](client redis.UniversalClient, ttl time.Duration) *RedisStore[S] {
	return &RedisStore[S]{client: client, ttl: ttl, prefix: "storebot:session:"}
}

func (r *RedisStore[S]) key(userID int64) string {
	return fmt.Sprintf("%s%d", r.prefix, userID)
}

func (r *RedisStore[S]) Load(ctx context.Context, userID int64) (*Session[S], error) {
	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s Session[S]
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore[S]) Save(ctx context.Context, s *Session[S]) error {
	s.UpdatedAt = time.Now()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return r.client.Set(ctx, r.key(s.UserID), data, r.ttl).Err()
}

func (r *RedisStore[S]) Delete(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, r.key(userID)).Err()
}
