package natsconn

import (
	"testing"
	"time"

	"github.com/example/artist-portfolio/internal/platform/config"
)

func source(t *testing.T) *config.Source {
	t.Helper()
	src, err := config.NewSource("")
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	return src
}

func TestOptionsFrom_Defaults(t *testing.T) {
	t.Setenv("NATS_URL", "")
	t.Setenv("NATS_MAX_RECONNECTS", "")
	t.Setenv("NATS_RECONNECT_WAIT", "")

	opts := OptionsFrom(source(t), "comments")
	if opts.URL != "nats://nats:4222" {
		t.Fatalf("unexpected url %q", opts.URL)
	}
	if opts.MaxReconnects != 5 || opts.ReconnectWait != 2*time.Second {
		t.Fatalf("unexpected reconnect policy: %+v", opts)
	}
	if opts.Name != "comments" {
		t.Fatalf("unexpected name %q", opts.Name)
	}
}

func TestOptionsFrom_Overrides(t *testing.T) {
	t.Setenv("NATS_URL", "nats://127.0.0.1:4223")
	t.Setenv("NATS_MAX_RECONNECTS", "9")
	t.Setenv("NATS_RECONNECT_WAIT", "250ms")

	opts := OptionsFrom(source(t), "comments")
	if opts.URL != "nats://127.0.0.1:4223" || opts.MaxReconnects != 9 || opts.ReconnectWait != 250*time.Millisecond {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestConnect_RequiresURL(t *testing.T) {
	if _, err := Connect(Options{}); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(Options{
		URL:           "nats://127.0.0.1:19999",
		ReconnectWait: 10 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected error connecting to an unreachable server")
	}
}
