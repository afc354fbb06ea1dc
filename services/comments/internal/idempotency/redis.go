package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/artist-portfolio/internal/platform/docstore"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisStore(dsn string, ttl time.Duration) *redisStore {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		opts = &redis.Options{Addr: dsn}
	}
	return &redisStore{
		client: redis.NewClient(opts),
		ttl:    ttl,
	}
}

func (s *redisStore) Claim(ctx context.Context, key, candidateID string) (string, error) {
	k := keyPrefix + key
	// A key can expire between SETNX and GET; one more round settles it.
	for range 2 {
		set, err := s.client.SetNX(ctx, k, candidateID, s.ttl).Result()
		if err != nil {
			return "", docstore.Unavailable(err)
		}
		if set {
			return candidateID, nil
		}
		id, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", docstore.Unavailable(err)
		}
		return id, nil
	}
	return "", docstore.Unavailable(errors.New("idempotency key churned"))
}

func (s *redisStore) Close() error { return s.client.Close() }
