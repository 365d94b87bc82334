package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tripsplit/internal/amqp"
	"tripsplit/internal/backend"
	"tripsplit/internal/cache"
	"tripsplit/internal/cli"
	apphttp "tripsplit/internal/http"
	"tripsplit/internal/log"
	"tripsplit/internal/metrics"
	"tripsplit/internal/services"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.ShutdownContext(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", "error", err)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
	}
	if res.Cleanup != nil {
		defer func() {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", "error", err)
			}
		}()
	}

	m := metrics.New()
	opts := services.Options{
		GlobalNetting: cfg.GlobalNetting,
		CacheTTL:      cfg.ReportCacheTTL,
		Metrics:       m,
		Logger:        logger.WithComponent(log.ComponentLedger),
	}

	// AMQP is optional; without it the worker relies on periodic exports
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			defer client.Close()
			opts.Publisher = client
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	svc := services.NewLedgerService(res.Store, opts)

	var ready func(context.Context) error
	if p, ok := res.Store.(pinger); ok {
		ready = p.Ping
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Metrics:            m,
		Logger:             logger.WithComponent(log.ComponentHTTP),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Currency:           cfg.Currency,
		Ready:              ready,
		Caches:             []cache.Cleaner{svc.ReportCache()},
	})

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting tripsplit server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"global_netting", cfg.GlobalNetting)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", "error", err, "port", cfg.Port)
	}
	<-shutdownDone
	logger.Info("Server stopped gracefully")
}
