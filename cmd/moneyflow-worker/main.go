package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moneyflow/internal/amqp"
	"moneyflow/internal/cli"
	"moneyflow/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))

	logger.Info("Starting moneyflow-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	store := cli.OpenBackend(logger, cfg)
	defer store.Close()

	// AMQP is optional; without it the worker falls back to polling the
	// outbox table alone.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPEventQueue, cfg.AMQPRepairQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled - relying on outbox polling only")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repairWorker := worker.NewRepairWorker(store, store, cfg.RepairBatchSize)

	// On startup, drain any repairs that accumulated while the worker was
	// down.
	logger.Info("Performing startup repair check...")
	if err := repairWorker.StartupRepairCheck(ctx); err != nil {
		logger.Error("Failed startup repair check", "error", err)
		// Don't exit - continue with normal operation
	}

	if amqpClient != nil {
		go func() {
			if err := amqpClient.ConsumeRepairs(ctx, func(msg *amqp.BalanceRepairMessage) error {
				return repairWorker.HandleRepairMessage(ctx, msg)
			}); err != nil {
				if err != context.Canceled {
					logger.Error("Repair consumption failed", "error", err)
				}
				cancel()
			}
		}()
	}

	// Periodic outbox polling backs up the AMQP path.
	ticker := time.NewTicker(cfg.RepairInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := repairWorker.ProcessPendingRepairs(ctx); err != nil {
					logger.Error("Periodic repair run failed", "error", err)
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down worker...")
	cancel()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout reached")
	case <-time.After(5 * time.Second):
		logger.Info("Worker shutdown complete")
	}
}
