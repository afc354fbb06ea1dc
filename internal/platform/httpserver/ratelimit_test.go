package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func limited(rl *RateLimiter) http.Handler {
	return rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(h http.Handler, remote, forwarded string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = remote
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_AllowsBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := limited(rl)

	for i := 0; i < 3; i++ {
		if rec := hit(h, "1.2.3.4:1234", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := hit(h, "1.2.3.4:5555", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("4th request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", rec.Header().Get("Retry-After"))
	}

	now = now.Add(time.Second)
	if rec := hit(h, "1.2.3.4:1234", ""); rec.Code != http.StatusOK {
		t.Fatalf("after refill: expected 200, got %d", rec.Code)
	}
}

func TestRateLimiter_DifferentIPs(t *testing.T) {
	h := limited(NewRateLimiter(1, 1))

	if rec := hit(h, "1.1.1.1:1234", ""); rec.Code != http.StatusOK {
		t.Fatalf("IP1 first: expected 200, got %d", rec.Code)
	}
	if rec := hit(h, "2.2.2.2:1234", ""); rec.Code != http.StatusOK {
		t.Fatalf("IP2 first: expected 200, got %d", rec.Code)
	}
}

func TestRateLimiter_UsesFirstForwardedHop(t *testing.T) {
	h := limited(NewRateLimiter(1, 1))

	if rec := hit(h, "10.0.0.1:1", "9.9.9.9, 10.0.0.1"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	// Same visitor through another proxy.
	if rec := hit(h, "10.0.0.2:1", "9.9.9.9"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestRateLimiter_DropsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := limited(rl)

	hit(h, "1.1.1.1:1", "")
	hit(h, "2.2.2.2:1", "")
	now = now.Add(11 * time.Minute)
	hit(h, "3.3.3.3:1", "")

	rl.mu.Lock()
	n := len(rl.buckets)
	rl.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected idle buckets dropped, have %d", n)
	}
}
