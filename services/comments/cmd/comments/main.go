package main

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/example/artist-portfolio/internal/platform/auth"
	"github.com/example/artist-portfolio/internal/platform/config"
	"github.com/example/artist-portfolio/internal/platform/db"
	"github.com/example/artist-portfolio/internal/platform/docstore"
	"github.com/example/artist-portfolio/internal/platform/docstore/memstore"
	"github.com/example/artist-portfolio/internal/platform/docstore/mongostore"
	"github.com/example/artist-portfolio/internal/platform/docstore/pgstore"
	"github.com/example/artist-portfolio/internal/platform/httpserver"
	"github.com/example/artist-portfolio/internal/platform/logging"
	"github.com/example/artist-portfolio/internal/platform/natsconn"
	"github.com/example/artist-portfolio/internal/platform/run"
	"github.com/example/artist-portfolio/internal/platform/tracing"
	commentsconfig "github.com/example/artist-portfolio/services/comments/internal/config"
	"github.com/example/artist-portfolio/services/comments/internal/engagement"
	"github.com/example/artist-portfolio/services/comments/internal/grpcapi"
	"github.com/example/artist-portfolio/services/comments/internal/handlers"
	"github.com/example/artist-portfolio/services/comments/internal/idempotency"
	"github.com/example/artist-portfolio/services/comments/internal/live"
	"github.com/example/artist-portfolio/services/comments/internal/publisher"
	"github.com/example/artist-portfolio/services/comments/internal/store"
)

func main() {
	src, err := config.NewSource(".env")
	if err != nil {
		panic(err)
	}
	app, err := config.LoadFrom(src)
	if err != nil {
		panic(err)
	}
	log, err := logging.New(app.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := commentsconfig.Load(src)
	if err == nil {
		err = cfg.Validate(app.IsProduction())
	}
	if err != nil {
		log.Error("config", zap.Error(err))
		run.Exit(1)
	}

	runner := run.New(log)
	ctx := context.Background()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: app.ServiceName,
		Environment: app.Environment,
		Endpoint:    cfg.OTLPEndpoint,
		Headers:     cfg.OTLPHeaders,
	}, log)
	if err != nil {
		log.Error("tracing init", zap.Error(err))
		run.Exit(1)
	}
	runner.OnShutdown("tracing", shutdownTracing)

	docs, err := openDocstore(ctx, cfg, log)
	if err != nil {
		log.Error("docstore open", zap.String("backend", string(cfg.Backend)), zap.Error(err))
		run.Exit(1)
	}
	runner.OnShutdown("docstore", docs.Close)

	comments := store.NewDocCommentStore(docs)
	if err := comments.EnsureIndexes(ctx); err != nil {
		log.Error("ensure comment indexes", zap.Error(err))
		run.Exit(1)
	}

	idem, err := idempotency.NewStore(cfg.RedisURL, cfg.DatabaseURL, cfg.IdempotencyTTL, app.IsProduction())
	if err != nil {
		log.Error("idempotency store", zap.Error(err))
		run.Exit(1)
	}
	runner.OnShutdown("idempotency", func(context.Context) error { return idem.Close() })

	// Events are best effort; the service runs without NATS.
	natsOpts := natsconn.OptionsFrom(src, app.ServiceName)
	natsOpts.Logger = log
	nc, err := natsconn.Connect(natsOpts)
	if err != nil {
		log.Warn("nats connect failed, comment events disabled", zap.Error(err))
		nc = nil
	}
	pub, err := publisher.New(nc, log)
	if err != nil {
		log.Error("comment publisher", zap.Error(err))
		run.Exit(1)
	}
	if nc != nil {
		runner.OnShutdown("nats", func(context.Context) error { return nc.Drain() })
	}

	svc := engagement.New(comments, engagement.Options{
		Idempotency: idem,
		Publisher:   pub,
		Logger:      log,
		Retry: engagement.RetryPolicy{
			Attempts: cfg.RetryAttempts,
			Base:     cfg.RetryBase,
			Max:      cfg.RetryMax,
		},
	})

	verifier := auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}
	streams := live.New(svc, cfg.AllowedOrigins, log)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{Logger: log, ReadyFunc: ready(docs)})
	mountOpts := handlers.Options{
		Verifier: verifier,
		Streams:  handlers.Streams{Thread: streams.Thread(), All: streams.All()},
		Logger:   log,
	}
	if cfg.WritesPerMinute > 0 {
		mountOpts.WriteLimit = httpserver.NewRateLimiter(float64(cfg.WritesPerMinute)/60, cfg.WriteBurst).Middleware
	}
	handlers.Mount(r, svc, mountOpts)

	srv := httpserver.New(httpserver.Options{Addr: app.HTTP.Addr, ServiceName: app.ServiceName, Logger: log, Router: r})

	lis, err := net.Listen("tcp", app.GRPC.Addr)
	if err != nil {
		log.Error("grpc listen", zap.Error(err))
		run.Exit(1)
	}
	grpcSrv := grpc.NewServer()
	grpcapi.Register(grpcSrv, &grpcapi.CommentService{Svc: svc, Verifier: verifier, Log: log})
	reflection.Register(grpcSrv)

	runner.OnShutdown("grpc", func(ctx context.Context) error {
		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			grpcSrv.Stop()
		}
		return nil
	})
	runner.OnShutdown("http", srv.Shutdown)

	code := runner.WithSignals(func(ctx context.Context) error {
		errCh := make(chan error, 2)
		go func() {
			log.Info("grpc server starting", zap.String("addr", app.GRPC.Addr))
			errCh <- grpcSrv.Serve(lis)
		}()
		go func() { errCh <- srv.Start(log) }()

		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		}
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// openDocstore connects the configured backend and prepares its schema.
func openDocstore(ctx context.Context, cfg commentsconfig.Config, log *zap.Logger) (docstore.Store, error) {
	switch cfg.Backend {
	case commentsconfig.BackendMongo:
		client, err := db.OpenMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		log.Info("comments store: mongo", zap.String("database", cfg.MongoDatabase))
		return mongostore.New(client, cfg.MongoDatabase, log), nil
	case commentsconfig.BackendPostgres:
		pool, err := db.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s := pgstore.New(pool, log)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("comments store: postgres")
		return s, nil
	default:
		log.Warn("using in-memory comment store (development only)")
		return memstore.New(), nil
	}
}

// ready reports the store as unready while a cheap read fails.
func ready(docs docstore.Store) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := docs.Get(ctx, store.Collection, "readyz-check")
		if err == nil || errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return err
	}
}
