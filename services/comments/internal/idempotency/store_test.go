package idempotency

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestMemoryStore_FirstClaimBindsCandidate(t *testing.T) {
	s := newMemoryStore(time.Hour)
	id, err := s.Claim(context.Background(), "k1", "c-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "c-1" {
		t.Fatalf("expected c-1, got %q", id)
	}
}

func TestMemoryStore_SecondClaimReturnsFirstID(t *testing.T) {
	s := newMemoryStore(time.Hour)
	ctx := context.Background()

	_, _ = s.Claim(ctx, "k2", "c-1")

	id, err := s.Claim(ctx, "k2", "c-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "c-1" {
		t.Fatalf("retry should reuse c-1, got %q", id)
	}
}

func TestMemoryStore_DifferentKeysAreIndependent(t *testing.T) {
	s := newMemoryStore(time.Hour)
	ctx := context.Background()

	_, _ = s.Claim(ctx, "kA", "c-A")

	id, err := s.Claim(ctx, "kB", "c-B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "c-B" {
		t.Fatalf("different keys should not collide, got %q", id)
	}
}

func TestMemoryStore_ExpiredKeyRebinds(t *testing.T) {
	s := newMemoryStore(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = s.Claim(ctx, "k", "c-1")
	now = now.Add(2 * time.Minute)

	id, _ := s.Claim(ctx, "k", "c-2")
	if id != "c-2" {
		t.Fatalf("expired key should rebind, got %q", id)
	}
}

func TestNewStore_FallsBackToMemory(t *testing.T) {
	s, err := NewStore("", "", 0, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.(*memoryStore); !ok {
		t.Fatalf("expected *memoryStore, got %T", s)
	}
}

func TestNewStore_ProdRejectsMemory(t *testing.T) {
	_, err := NewStore("", "", 0, true)
	if err == nil {
		t.Fatal("expected error in production without Redis or Postgres")
	}
}

func TestNewStore_PrefersRedis(t *testing.T) {
	s, err := NewStore("redis://localhost:6379/0", "postgres://localhost/db", time.Hour, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.(*redisStore); !ok {
		t.Fatalf("expected *redisStore, got %T", s)
	}
}

func TestNewStore_PostgresFallback(t *testing.T) {
	s, err := NewStore("", "postgres://localhost/db", time.Hour, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.(*postgresStore); !ok {
		t.Fatalf("expected *postgresStore, got %T", s)
	}
}

func TestRedisStore_Claim(t *testing.T) {
	if os.Getenv("INTEGRATION") == "" || testing.Short() {
		t.Skip("set INTEGRATION=1 to run against a Redis container")
	}
	ctx := context.Background()

	container, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	s := newRedisStore(uri, time.Minute)
	first, err := s.Claim(ctx, "k", "c-1")
	if err != nil || first != "c-1" {
		t.Fatalf("first claim = %q, %v", first, err)
	}
	second, err := s.Claim(ctx, "k", "c-2")
	if err != nil || second != "c-1" {
		t.Fatalf("second claim = %q, %v", second, err)
	}
}
