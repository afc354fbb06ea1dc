package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Runner owns the process lifecycle: it runs the main loop until a signal
// or an error, then executes the registered shutdown hooks in reverse order.
type Runner struct {
	Logger          *zap.Logger
	ShutdownTimeout time.Duration

	hooks []hook
}

type hook struct {
	name string
	fn   func(context.Context) error
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log, ShutdownTimeout: 10 * time.Second}
}

// OnShutdown registers fn to run during shutdown. Hooks run last-in first-out.
func (r *Runner) OnShutdown(name string, fn func(context.Context) error) {
	r.hooks = append(r.hooks, hook{name: name, fn: fn})
}

func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.run(ctx, start)
}

func (r *Runner) run(ctx context.Context, start func(ctx context.Context) error) int {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- start(runCtx)
	}()

	code := 0
	select {
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.Logger.Error("service exited with error", zap.Error(err))
			code = 1
		}
	}
	cancel()
	r.shutdown()
	return code
}

func (r *Runner) shutdown() {
	c, cancel := context.WithTimeout(context.Background(), r.ShutdownTimeout)
	defer cancel()
	for i := len(r.hooks) - 1; i >= 0; i-- {
		h := r.hooks[i]
		if err := h.fn(c); err != nil {
			r.Logger.Warn("shutdown hook failed", zap.String("hook", h.name), zap.Error(err))
		}
	}
}

func Exit(code int) {
	os.Exit(code)
}
