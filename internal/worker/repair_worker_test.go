package worker

import (
	"context"
	"strings"
	"testing"

	"moneyflow/internal/amqp"
	"moneyflow/internal/core"
	"moneyflow/internal/store"
	"moneyflow/internal/store/memory"
)

func seedLoan(t *testing.T, s *memory.Store, userID string, balanceCents int64) core.Loan {
	t.Helper()
	loan := core.Loan{
		ID:             "l1",
		Name:           "Car loan",
		OriginalAmount: core.Money{Cents: 100000},
		CurrentBalance: core.Money{Cents: balanceCents},
	}
	if err := s.InsertLoan(context.Background(), userID, loan); err != nil {
		t.Fatalf("seed loan: %v", err)
	}
	return loan
}

func loanBalance(t *testing.T, s *memory.Store, userID, loanID string) int64 {
	t.Helper()
	loans, err := s.Loans(context.Background(), userID)
	if err != nil {
		t.Fatalf("loans: %v", err)
	}
	for _, l := range loans {
		if l.ID == loanID {
			return l.CurrentBalance.Cents
		}
	}
	t.Fatalf("loan %s not found", loanID)
	return 0
}

func TestHandleRepairMessage(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedLoan(t, s, "u1", 100000)

	w := NewRepairWorker(s, s, 10)
	msg := amqp.NewBalanceRepairMessage(store.RepairEntityLoan, "l1", "u1", 70000)

	if err := w.HandleRepairMessage(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := loanBalance(t, s, "u1", "l1"); got != 70000 {
		t.Fatalf("expected balance 70000, got %d", got)
	}

	// A redelivered message sets the same target again.
	if err := w.HandleRepairMessage(ctx, msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if got := loanBalance(t, s, "u1", "l1"); got != 70000 {
		t.Fatalf("redelivery changed balance to %d", got)
	}
}

func TestHandleRepairMessageUnknownEntity(t *testing.T) {
	w := NewRepairWorker(memory.New(), memory.New(), 10)
	msg := &amqp.BalanceRepairMessage{Entity: "account", EntityID: "x", UserID: "u1"}

	err := w.HandleRepairMessage(context.Background(), msg)
	if err == nil || !strings.Contains(err.Error(), "unknown repair entity") {
		t.Fatalf("expected unknown entity error, got %v", err)
	}
}

func TestProcessPendingRepairs(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedLoan(t, s, "u1", 100000)

	if err := s.EnqueueRepair(ctx, store.Repair{
		UserID: "u1", Entity: store.RepairEntityLoan, EntityID: "l1", TargetCents: 70000,
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w := NewRepairWorker(s, s, 10)
	if err := w.ProcessPendingRepairs(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	if got := loanBalance(t, s, "u1", "l1"); got != 70000 {
		t.Fatalf("expected balance 70000, got %d", got)
	}
	pending, err := s.PendingRepairs(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected drained outbox, got %d pending", len(pending))
	}
}

func TestProcessPendingRepairsMarksFailures(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	// No loan seeded, so the balance write hits ErrNotFound.

	if err := s.EnqueueRepair(ctx, store.Repair{
		UserID: "u1", Entity: store.RepairEntityLoan, EntityID: "missing", TargetCents: 70000,
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w := NewRepairWorker(s, s, 10)
	if err := w.ProcessPendingRepairs(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	pending, err := s.PendingRepairs(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Attempts != 1 {
		t.Fatalf("expected 1 pending repair with 1 attempt, got %+v", pending)
	}
}

func TestStartupRepairCheck(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedLoan(t, s, "u1", 100000)

	for _, target := range []int64{90000, 70000} {
		if err := s.EnqueueRepair(ctx, store.Repair{
			UserID: "u1", Entity: store.RepairEntityLoan, EntityID: "l1", TargetCents: target,
		}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	w := NewRepairWorker(s, s, 10)
	if err := w.StartupRepairCheck(ctx); err != nil {
		t.Fatalf("startup check: %v", err)
	}

	// Repairs apply in order; the last target wins.
	if got := loanBalance(t, s, "u1", "l1"); got != 70000 {
		t.Fatalf("expected balance 70000, got %d", got)
	}
}
