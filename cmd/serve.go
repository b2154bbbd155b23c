package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/autodist/internal/adapters/http/api"
	"github.com/okian/autodist/internal/adapters/mq/bus"
	"github.com/okian/autodist/internal/adapters/repository"
	service "github.com/okian/autodist/internal/app"
	"github.com/okian/autodist/internal/config"
	"github.com/okian/autodist/internal/domain/dedupe"
	"github.com/okian/autodist/internal/domain/distconfig"
	"github.com/okian/autodist/pkg/logger"
	"github.com/okian/autodist/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func migrate(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	store, err := repository.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, repository.WithLogger(log.Named("store")))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return store.Migrate(ctx)
}

// serve runs until ctx is cancelled or the listener fails.
func serve(ctx context.Context, cfg *config.Config, cfgPath string) error {
	log := logger.Get()

	store, err := repository.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, repository.WithLogger(log.Named("store")))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	m := metrics.NewManager()
	b := bus.New(
		bus.WithQueueSize(cfg.Bus.QueueSize),
		bus.WithWorkerCount(cfg.Bus.WorkerCount),
		bus.WithOutcomeBuffer(cfg.Bus.OutcomeBuffer),
		bus.WithLogger(log),
		bus.WithMetrics(m),
	)
	provider := distconfig.New(
		distconfig.WithStore(store),
		distconfig.WithInitial(cfg.Distribution),
		distconfig.WithLogger(log.Named("distconfig")),
		distconfig.WithMetrics(m),
	)
	svc := service.New(store,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithBus(b),
		service.WithConfigProvider(provider),
		service.WithWorkdayMinutes(cfg.WorkdayMinutes),
		service.WithExcludeAbsent(cfg.ExcludeAbsent),
		service.WithManagerRoles(cfg.ManagerRoles...),
		service.WithMaxRetries(cfg.MaxRetries),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	// Deliveries outlive the signal context so Close can drain them.
	b.Start(context.WithoutCancel(ctx))
	go drainOutcomes(ctx, b, log)

	if cfgPath != "" {
		w, err := config.Watch(ctx, cfgPath, log.Named("config"), func(ctx context.Context, c *config.Config) {
			if err := logger.SetLevelString(c.LogLevel); err != nil {
				log.Warn(ctx, "ignoring invalid log_level", logger.String("log_level", c.LogLevel))
			}
			_ = svc.Config().Apply(ctx, c.Distribution)
		})
		if err != nil {
			log.Warn(ctx, "config hot reload disabled", logger.Error(err))
		} else {
			defer func() { _ = w.Stop() }()
		}
	}

	apiServer := api.NewServer(api.Dependencies{
		Service: svc,
		Events:  b,
		Deduper: dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize)),
		Metrics: m,
		Logger:  log,
		Ready:   store.Ping,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Routes(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%w: %v", api.ErrServe, err)
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	log.Info(ctx, "shutting down")

	// Graceful shutdown with timeout: stop intake first, then drain the bus.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	if err := b.Close(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "bus shutdown failed", logger.Error(err))
	}
	svc.Stop()

	log.Info(shutdownCtx, "server stopped")
	return serveErr
}

// drainOutcomes consumes handler outcomes so the channel never fills. The bus
// already logs and counts failures.
func drainOutcomes(ctx context.Context, b *bus.Bus, log logger.Logger) {
	for o := range b.Outcomes() {
		log.Debug(ctx, "handler outcome",
			logger.String("event_id", o.Event.ID),
			logger.Duration("duration", o.Duration),
			logger.Error(o.Err))
	}
}
