package run

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.uber.org/zap"
)

func TestRun_ErrorExitCodeAndHooksInReverse(t *testing.T) {
	r := New(zap.NewNop())
	var order []string
	r.OnShutdown("first", func(context.Context) error { order = append(order, "first"); return nil })
	r.OnShutdown("second", func(context.Context) error { order = append(order, "second"); return errors.New("ignored") })

	code := r.run(context.Background(), func(context.Context) error { return errors.New("boom") })
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("expected hooks in reverse order, got %v", order)
	}
}

func TestRun_ServerClosedIsClean(t *testing.T) {
	r := New(zap.NewNop())
	if code := r.run(context.Background(), func(context.Context) error { return http.ErrServerClosed }); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
}

func TestRun_ParentCancelStopsStart(t *testing.T) {
	r := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		<-started
		cancel()
	}()
	code := r.run(ctx, func(c context.Context) error {
		close(started)
		<-c.Done()
		close(stopped)
		return nil
	})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	<-stopped
}
