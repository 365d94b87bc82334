package main

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"tripsplit/internal/amqp"
	"tripsplit/internal/backend"
	"tripsplit/internal/cli"
	"tripsplit/internal/ledger/google"
	"tripsplit/internal/log"
	"tripsplit/internal/metrics"
	"tripsplit/internal/services"
	"tripsplit/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting tripsplit-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend != string(backend.SQLiteBackend) {
		cli.Fatal(logger, "The worker reads the ledger written by the server and needs DATA_BACKEND=sqlite",
			"backend", cfg.DataBackend)
	}
	if cfg.GoogleSpreadsheetID == "" {
		cli.Fatal(logger, "Nothing to export - no GOOGLE_SPREADSHEET_ID provided")
	}

	ctx, stop := cli.ShutdownContext(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", "error", err)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", "error", err)
	}
	defer res.Cleanup()

	exporter, err := google.New(ctx, google.Options{
		SpreadsheetID:  cfg.GoogleSpreadsheetID,
		BalancesSheet:  cfg.GoogleBalancesSheet,
		BreakdownSheet: cfg.GoogleBreakdownSheet,
		Currency:       cfg.Currency,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to initialize Google Sheets exporter", "error", err)
	}
	logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	m := metrics.New()
	svc := services.NewLedgerService(res.Store, services.Options{
		GlobalNetting: cfg.GlobalNetting,
		CacheTTL:      cfg.ReportCacheTTL,
		Metrics:       m,
		Logger:        logger.WithComponent(log.ComponentLedger),
	})
	exportWorker := worker.NewExportWorker(svc, exporter, m)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, relying on periodic export", "error", err)
		} else {
			defer client.Close()
			g.Go(func() error {
				return client.ConsumeLedgerEvents(gctx, exportWorker.HandleEvent)
			})
		}
	} else {
		logger.Info("No AMQP_URL provided, relying on periodic export", "interval", cfg.ExportInterval)
	}

	g.Go(func() error {
		return exportWorker.Run(gctx, cfg.ExportInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
	}
	logger.Info("Worker shutdown complete")
}
