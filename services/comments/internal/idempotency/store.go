// Package idempotency pins the document id of a comment submission to a
// client-supplied Idempotency-Key, so a retried submit lands on the same id
// instead of creating a duplicate.
//
// Primary backend: Redis SETNX with TTL (env REDIS_URL).
// Fallback: Postgres INSERT ... ON CONFLICT (env DATABASE_URL).
// If neither is available, an in-memory store is used (development only).
package idempotency

import (
	"context"
	"errors"
	"time"
)

const keyPrefix = "comments:submit:"

// Store binds idempotency keys to comment ids.
type Store interface {
	// Claim returns the id bound to key. The first caller binds candidateID;
	// later callers within the TTL get that same id back.
	Claim(ctx context.Context, key, candidateID string) (id string, err error)
	Close() error
}

// NewStore creates the best available idempotency store:
// Redis > Postgres > in-memory (dev fallback).
// When isProd is true, in-memory fallback is not allowed.
func NewStore(redisURL, databaseURL string, ttl time.Duration, isProd bool) (Store, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if redisURL != "" {
		return newRedisStore(redisURL, ttl), nil
	}
	if databaseURL != "" {
		return newPostgresStore(databaseURL, ttl), nil
	}
	if isProd {
		return nil, errors.New("production requires REDIS_URL or DATABASE_URL for idempotency; in-memory store is not allowed")
	}
	return newMemoryStore(ttl), nil
}
