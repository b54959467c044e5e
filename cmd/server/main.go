package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"formvault/internal/intake"
	"formvault/internal/intake/service"
	"formvault/internal/intake/store"
	"formvault/internal/intake/uploads"
	"formvault/internal/outbox"
	outboxpg "formvault/internal/outbox/store/postgres"
	"formvault/internal/platform/config"
	"formvault/internal/platform/httpserver"
	"formvault/internal/platform/logger"
	"formvault/internal/platform/metrics"
	"formvault/internal/platform/middleware"
	platformpg "formvault/internal/platform/postgres"
	platformredis "formvault/internal/platform/redis"
	"formvault/internal/ratelimit"
	"formvault/pkg/platform/middleware/metadata"
	"formvault/pkg/platform/middleware/requesttime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run wires high-level dependencies, exposes the HTTP router and runs the
// server and outbox relay until SIGINT or SIGTERM. Business logic lives in
// internal/intake.
func run() error {
	flagSet := pflag.NewFlagSet("formvault", pflag.ContinueOnError)
	configPath := flagSet.String("config", os.Getenv("FORMVAULT_CONFIG"), "path to a YAML config file")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	files, err := uploads.New(cfg.Storage.UploadDir)
	if err != nil {
		return fmt.Errorf("prepare upload directory: %w", err)
	}

	var (
		repo service.Repository
		db   *sql.DB
	)
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set; using the in-memory store, data is lost on restart")
		repo = store.NewInMemoryStore()
	} else {
		db, err = platformpg.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := platformpg.EnsureSchema(ctx, db); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		repo = store.NewPostgres(db,
			store.WithTxTimeout(cfg.Database.TxTimeout),
			store.WithLockTimeout(cfg.Database.LockTimeout),
		)
	}

	svcOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(m),
	}
	var relay *outbox.Relay
	if len(cfg.Kafka.Brokers) > 0 {
		if db == nil {
			log.Warn("kafka brokers configured without a database; events are not published")
		} else {
			publisher, err := outbox.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			if err != nil {
				return fmt.Errorf("create kafka publisher: %w", err)
			}
			defer publisher.Close()

			events := outboxpg.New(db)
			svcOpts = append(svcOpts, service.WithEvents(events))
			relay = outbox.NewRelay(events, publisher,
				outbox.WithInterval(cfg.Kafka.OutboxInterval),
				outbox.WithBatchSize(cfg.Kafka.OutboxBatch),
				outbox.WithLogger(log),
				outbox.WithMetrics(m),
			)
		}
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.SubmitLimit > 0 {
		rdb, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		local := ratelimit.NewInMemoryLimiter(cfg.RateLimit.SubmitLimit, cfg.RateLimit.SubmitWindow)
		if rdb != nil {
			defer rdb.Close()
			shared := ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.SubmitLimit, cfg.RateLimit.SubmitWindow)
			limiter = ratelimit.NewFailoverLimiter(shared, local, log)
		} else {
			limiter = local
		}
	}

	svc := intake.NewService(repo, files, svcOpts...)
	h := intake.NewHandler(svc, files, log, m, intake.HandlerConfig{
		ThankYouURL:    cfg.Server.ThankYouURL,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})
	submitLimit := ratelimit.NewMiddleware(limiter, log, ratelimit.WithMetrics(m))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(log, m))
	r.Use(middleware.Recovery(log))
	h.Register(r, submitLimit.Handler)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if dir := cfg.Server.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(dir)))
		} else {
			log.Warn("static directory not found; form pages are not served", "static_dir", dir)
		}
	}

	srv := httpserver.New(cfg.Server.Addr, r)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting formvault", "addr", cfg.Server.Addr, "upload_dir", files.Root())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	return g.Wait()
}
