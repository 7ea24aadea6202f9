package main

import (
	"context"
	"errors"
	"os"

	"kidcash/internal/amqp"
	"kidcash/internal/cli"
	"kidcash/internal/core"
	klog "kidcash/internal/log"
	"kidcash/internal/sheets"
	gsheet "kidcash/internal/sheets/google"
	mem "kidcash/internal/sheets/memory"
	"kidcash/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()

	logger, logCloser := cli.SetupLogger(cfg, klog.ComponentWorker)
	defer logCloser.Close()

	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Worker configuration validation failed", "error", err)
		logCloser.Close()
		os.Exit(1)
	}

	logger.Info("Starting kidcash-worker")

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	var ledger sheets.Ledger
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			SheetName:     cfg.GoogleSheetName,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			logCloser.Close()
			os.Exit(1)
		}
		ledger = client
		logger.Info("Google Sheets ledger initialized",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
	} else {
		ledger = mem.New()
		logger.Info("Google Sheets disabled - exporting to the in-memory ledger")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
	defer amqpClient.Close()

	exporter := worker.NewLedgerExporter(ledger, core.SeedDirectory())

	logger.Info("Consuming store events", "queue", cfg.AMQPQueue)
	if err := amqpClient.Consume(ctx, exporter.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		amqpClient.Close()
		logCloser.Close()
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
