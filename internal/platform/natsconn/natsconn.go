// Package natsconn opens the NATS connection used for comment events.
package natsconn

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/artist-portfolio/internal/platform/config"
)

type Options struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Logger        *zap.Logger
}

// OptionsFrom reads NATS_URL, NATS_MAX_RECONNECTS and NATS_RECONNECT_WAIT.
func OptionsFrom(src *config.Source, name string) Options {
	return Options{
		URL:           src.String("NATS_URL", "nats://nats:4222"),
		Name:          name,
		MaxReconnects: src.Int("NATS_MAX_RECONNECTS", 5),
		ReconnectWait: src.Duration("NATS_RECONNECT_WAIT", 2*time.Second),
	}
}

// Connect dials once and fails fast; reconnects only happen after a
// successful first connect.
func Connect(opts Options) (*nats.Conn, error) {
	if opts.URL == "" {
		return nil, errors.New("nats: URL is required")
	}
	if opts.MaxReconnects == 0 {
		opts.MaxReconnects = 5
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 2 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	natsOpts := []nats.Option{
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.RetryOnFailedConnect(false),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("nats connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			log.Warn("nats async error", fields...)
		}),
	}
	if opts.Name != "" {
		natsOpts = append(natsOpts, nats.Name(opts.Name))
	}

	nc, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", opts.URL, err)
	}
	return nc, nil
}
