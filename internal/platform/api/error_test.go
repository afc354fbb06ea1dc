package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWriteError_Envelope(t *testing.T) {
	rr := httptest.NewRecorder()
	BadRequest(rr, "VALIDATION_ERROR", "content must not be empty", "rid-1", map[string]any{"content": "empty"})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "VALIDATION_ERROR" || resp.Error.RequestID != "rid-1" {
		t.Fatalf("unexpected envelope: %+v", resp.Error)
	}
	if resp.Error.Details["content"] != "empty" {
		t.Fatalf("expected details to round-trip, got %v", resp.Error.Details)
	}
}

func TestServiceUnavailable(t *testing.T) {
	rr := httptest.NewRecorder()
	ServiceUnavailable(rr, "STORE_UNAVAILABLE", "try again later", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestInternal_OmitsDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	Internal(rr, "")

	var raw map[string]map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := raw["error"]["details"]; ok {
		t.Fatal("details should be omitted when empty")
	}
}

func TestValidation_Details(t *testing.T) {
	rr := httptest.NewRecorder()
	Validation(rr, "content: must not be empty", "content", "must not be empty", "rid-2")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "VALIDATION_ERROR" || resp.Error.Details["field"] != "content" {
		t.Fatalf("unexpected envelope: %+v", resp.Error)
	}
}

func TestRateLimited_RetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	RateLimited(rr, 2400*time.Millisecond, "rid-3")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}

	rr = httptest.NewRecorder()
	RateLimited(rr, 0, "rid-4")
	if got := rr.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After floor of 1, got %q", got)
	}
}
