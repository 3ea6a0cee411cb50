// Package worker applies queued balance repairs. A repair is the second half
// of a two-phase mutation whose balance write failed after the entry write
// landed; applying it sets the parent balance to the recorded target, so
// replaying the same repair is harmless.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"moneyflow/internal/amqp"
	"moneyflow/internal/core"
	applog "moneyflow/internal/log"
	"moneyflow/internal/store"
)

// BalanceWriter is the slice of the store the worker needs.
type BalanceWriter interface {
	UpdateLoanBalance(ctx context.Context, userID, loanID string, balance core.Money) error
	UpdateDebtTotal(ctx context.Context, userID, debtID string, total core.Money) error
}

// RepairWorker consumes repair messages from AMQP and polls the outbox table
// as a backup in case messages are lost.
type RepairWorker struct {
	store     BalanceWriter
	queue     store.RepairQueue
	batchSize int
	log       *applog.Logger
}

func NewRepairWorker(s BalanceWriter, queue store.RepairQueue, batchSize int) *RepairWorker {
	return &RepairWorker{
		store:     s,
		queue:     queue,
		batchSize: batchSize,
		log: applog.New(applog.Config{
			Handler:   slog.Default().Handler(),
			Component: applog.ComponentWorker,
		}),
	}
}

// HandleRepairMessage processes a single balance repair message from AMQP.
func (w *RepairWorker) HandleRepairMessage(ctx context.Context, msg *amqp.BalanceRepairMessage) error {
	w.log.InfoContext(ctx, "Processing repair message",
		"entity", msg.Entity,
		applog.FieldEntityID, msg.EntityID,
		applog.FieldUserID, msg.UserID,
		applog.FieldTargetCents, msg.TargetCents)

	if err := w.apply(ctx, msg.UserID, msg.Entity, msg.EntityID, msg.TargetCents); err != nil {
		return fmt.Errorf("apply repair: %w", err)
	}

	return nil
}

// ProcessPendingRepairs applies any repairs still queued in the outbox.
// This is a backup mechanism in case AMQP messages are lost.
func (w *RepairWorker) ProcessPendingRepairs(ctx context.Context) error {
	pending, err := w.queue.PendingRepairs(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending repairs: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	w.log.InfoContext(ctx, "Processing pending repairs", "count", len(pending))

	for _, rep := range pending {
		if err := w.applyQueued(ctx, rep); err != nil {
			w.log.ErrorContext(ctx, "Failed to apply repair",
				applog.FieldRepairID, rep.ID,
				"entity", rep.Entity,
				applog.FieldEntityID, rep.EntityID,
				applog.FieldError, err)
		}
	}

	return nil
}

// StartupRepairCheck drains the outbox at worker startup with a larger batch.
// This recovers from missed AMQP messages or worker downtime.
func (w *RepairWorker) StartupRepairCheck(ctx context.Context) error {
	pending, err := w.queue.PendingRepairs(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending repairs for startup check: %w", err)
	}

	if len(pending) == 0 {
		w.log.InfoContext(ctx, "No pending repairs found on startup",
			applog.FieldOperation, applog.OpStartup)
		return nil
	}

	w.log.InfoContext(ctx, "Found pending repairs on startup, processing...",
		applog.FieldOperation, applog.OpStartup,
		"count", len(pending))

	successCount := 0
	errorCount := 0

	for _, rep := range pending {
		if err := w.applyQueued(ctx, rep); err != nil {
			w.log.ErrorContext(ctx, "Failed to apply repair during startup",
				applog.FieldRepairID, rep.ID,
				"entity", rep.Entity,
				applog.FieldEntityID, rep.EntityID,
				applog.FieldError, err)
			errorCount++
			continue
		}
		successCount++
	}

	w.log.InfoContext(ctx, "Startup repair check completed",
		applog.FieldOperation, applog.OpStartup,
		"total", len(pending),
		"applied", successCount,
		"errors", errorCount)

	return nil
}

func (w *RepairWorker) applyQueued(ctx context.Context, rep store.Repair) error {
	if err := w.apply(ctx, rep.UserID, rep.Entity, rep.EntityID, rep.TargetCents); err != nil {
		if markErr := w.queue.MarkRepairFailed(ctx, rep.ID); markErr != nil {
			w.log.ErrorContext(ctx, "Failed to mark repair as failed",
				applog.FieldRepairID, rep.ID, applog.FieldError, markErr)
		}
		return err
	}

	if err := w.queue.MarkRepairDone(ctx, rep.ID); err != nil {
		// The balance write landed; only the bookkeeping failed.
		w.log.ErrorContext(ctx, "Failed to mark repair as done",
			applog.FieldRepairID, rep.ID, applog.FieldError, err)
	}

	w.log.InfoContext(ctx, "Applied queued repair",
		applog.FieldRepairID, rep.ID,
		"entity", rep.Entity,
		applog.FieldEntityID, rep.EntityID,
		applog.FieldTargetCents, rep.TargetCents)

	return nil
}

func (w *RepairWorker) apply(ctx context.Context, userID, entity, entityID string, targetCents int64) error {
	target := core.Money{Cents: targetCents}

	switch entity {
	case store.RepairEntityLoan:
		if err := w.store.UpdateLoanBalance(ctx, userID, entityID, target); err != nil {
			return fmt.Errorf("update loan balance: %w", err)
		}
	case store.RepairEntityDebt:
		if err := w.store.UpdateDebtTotal(ctx, userID, entityID, target); err != nil {
			return fmt.Errorf("update debt total: %w", err)
		}
	default:
		return fmt.Errorf("unknown repair entity %q", entity)
	}

	return nil
}
