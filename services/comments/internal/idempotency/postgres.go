package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/artist-portfolio/internal/platform/docstore"
)

const createTable = `CREATE TABLE IF NOT EXISTS comment_idempotency_keys (
	key        text        PRIMARY KEY,
	comment_id text        NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
)`

type postgresStore struct {
	dsn string
	ttl time.Duration

	mu sync.Mutex
	// pool is lazily initialised on first Claim call.
	pool *pgxpool.Pool
}

func newPostgresStore(dsn string, ttl time.Duration) *postgresStore {
	return &postgresStore{dsn: dsn, ttl: ttl}
}

func (s *postgresStore) ensurePool(ctx context.Context) (*pgxpool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		return s.pool, nil
	}
	pool, err := pgxpool.New(ctx, s.dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTable); err != nil {
		pool.Close()
		return nil, docstore.Unavailable(err)
	}
	s.pool = pool
	return pool, nil
}

// Claim inserts the binding, replacing it only when it has expired. When the
// insert is a no-op the live binding is read back.
func (s *postgresStore) Claim(ctx context.Context, key, candidateID string) (string, error) {
	pool, err := s.ensurePool(ctx)
	if err != nil {
		return "", err
	}

	const q = `INSERT INTO comment_idempotency_keys (key, comment_id, created_at)
	           VALUES ($1, $2, now())
	           ON CONFLICT (key) DO UPDATE
	             SET comment_id = EXCLUDED.comment_id, created_at = now()
	             WHERE comment_idempotency_keys.created_at < now() - make_interval(secs => $3)
	           RETURNING comment_id`

	var id string
	err = pool.QueryRow(ctx, q, keyPrefix+key, candidateID, s.ttl.Seconds()).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", docstore.Unavailable(err)
	}

	err = pool.QueryRow(ctx,
		`SELECT comment_id FROM comment_idempotency_keys WHERE key = $1`,
		keyPrefix+key).Scan(&id)
	if err != nil {
		return "", docstore.Unavailable(err)
	}
	return id, nil
}

func (s *postgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}
