package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"kidcash/internal/amqp"
	"kidcash/internal/backend"
	"kidcash/internal/cli"
	"kidcash/internal/config"
	"kidcash/internal/core"
	apphttp "kidcash/internal/http"
	klog "kidcash/internal/log"
	"kidcash/internal/middleware/ratelimit"
	"kidcash/internal/services"
	"kidcash/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()

	logger, logCloser := cli.SetupLogger(cfg, klog.ComponentApp)
	defer logCloser.Close()

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *klog.Logger) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("backend config: %w", err)
	}
	factory := backend.NewFactory(logger.WithComponent(klog.ComponentBackend).Logger)
	result, err := factory.CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("create %s backend: %w", backendCfg.Type, err)
	}
	defer func() {
		if err := result.Close(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	persistCfg := worker.DefaultPersisterConfig()
	persistCfg.FlushInterval = cfg.PersistInterval
	persistCfg.MaxRetries = cfg.PersistMaxRetries
	persister := worker.NewPersister(result.Store, persistCfg)

	deps := services.Deps{Reader: result.Store, Writer: persister}
	checks := map[string]apphttp.ReadyCheck{}
	if result.Ping != nil {
		checks["storage"] = result.Ping
	}

	var relay *worker.EventRelay
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// Events only feed the ledger export; the API keeps working without them.
			logger.Warn("AMQP unavailable, store events disabled", "error", err)
		} else {
			defer client.Close()
			relay = worker.NewEventRelay(client, worker.DefaultEventRelayConfig())
			deps.Publisher = relay
			checks["amqp"] = client.Ping
			logger.Info("AMQP publisher enabled", "exchange", cfg.AMQPExchange)
		}
	}

	finance := services.NewFinanceStore(deps)
	family := services.NewFamilyStore(deps, core.SeedDirectory())
	settings := services.NewSettingsStore(deps)

	loaders := []struct {
		name string
		load func(context.Context) error
	}{
		{klog.ComponentFinance, finance.Load},
		{klog.ComponentFamily, family.Load},
		{klog.ComponentSettings, settings.Load},
	}
	for _, l := range loaders {
		if err := l.load(ctx); err != nil {
			return fmt.Errorf("load %s store: %w", l.name, err)
		}
	}

	if err := persister.Start(ctx); err != nil {
		return fmt.Errorf("start persister: %w", err)
	}
	if relay != nil {
		if err := relay.Start(ctx); err != nil {
			return fmt.Errorf("start event relay: %w", err)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Finance:  finance,
		Family:   family,
		Settings: settings,
		Checks:   checks,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		Logger: logger,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting kidcash server",
			"port", cfg.Port,
			"backend", backendCfg.Type,
			"persist_interval", cfg.PersistInterval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		// Stop flushes whatever the last requests queued.
		if err := persister.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("persister shutdown: %w", err))
		}
		stats := persister.Stats()
		logger.Info("Persister stopped", "written", stats.Written, "dropped", stats.Dropped)
		if relay != nil {
			if err := relay.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("event relay shutdown: %w", err))
			}
			rs := relay.Stats()
			logger.Info("Event relay stopped", "published", rs.Published, "failed", rs.Failed, "dropped", rs.Dropped)
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
