package memory

import (
	"context"
	"errors"
	"testing"

	"moneyflow/internal/core"
	"moneyflow/internal/store"
)

func TestUserIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()

	e := core.Expense{ID: "e1", Amount: core.Money{Cents: 100}, Category: "Food", Date: core.NewDate(2024, 5, 1)}
	if err := s.InsertExpense(ctx, "alice", e); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.Expenses(ctx, "alice")
	if err != nil || len(got) != 1 {
		t.Fatalf("expected 1 expense for alice, got %d (err=%v)", len(got), err)
	}
	other, err := s.Expenses(ctx, "bob")
	if err != nil || len(other) != 0 {
		t.Fatalf("expected no expenses for bob, got %d (err=%v)", len(other), err)
	}
}

func TestInsertValidates(t *testing.T) {
	s := New()
	bad := core.Expense{ID: "e1", Amount: core.Money{Cents: 0}, Category: "Food", Date: core.NewDate(2024, 5, 1)}
	if err := s.InsertExpense(context.Background(), "u", bad); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoanPaymentAndBalance(t *testing.T) {
	s := New()
	ctx := context.Background()

	loan := core.Loan{ID: "l1", Name: "Car", OriginalAmount: core.Money{Cents: 1000}, CurrentBalance: core.Money{Cents: 1000}}
	if err := s.InsertLoan(ctx, "u", loan); err != nil {
		t.Fatalf("insert loan: %v", err)
	}
	p := core.LoanPayment{ID: "p1", Amount: core.Money{Cents: 300}, Date: core.NewDate(2024, 5, 1)}
	if err := s.InsertLoanPayment(ctx, "u", "l1", p); err != nil {
		t.Fatalf("insert payment: %v", err)
	}
	if err := s.UpdateLoanBalance(ctx, "u", "l1", core.Money{Cents: 700}); err != nil {
		t.Fatalf("update balance: %v", err)
	}

	loans, err := s.Loans(ctx, "u")
	if err != nil || len(loans) != 1 {
		t.Fatalf("expected 1 loan, got %d (err=%v)", len(loans), err)
	}
	if loans[0].CurrentBalance.Cents != 700 || len(loans[0].Payments) != 1 {
		t.Fatalf("unexpected loan state: %+v", loans[0])
	}

	if err := s.InsertLoanPayment(ctx, "u", "missing", p); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepairQueue(t *testing.T) {
	s := New()
	ctx := context.Background()

	r := store.Repair{UserID: "u", Entity: store.RepairEntityLoan, EntityID: "l1", TargetCents: 700}
	if err := s.EnqueueRepair(ctx, r); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pending, err := s.PendingRepairs(ctx, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected 1 pending repair, got %d (err=%v)", len(pending), err)
	}
	if pending[0].ID == 0 {
		t.Fatal("repair should get an id")
	}

	if err := s.MarkRepairFailed(ctx, pending[0].ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	pending, _ = s.PendingRepairs(ctx, 10)
	if pending[0].Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", pending[0].Attempts)
	}

	if err := s.MarkRepairDone(ctx, pending[0].ID); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	pending, _ = s.PendingRepairs(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("expected drained queue, got %d", len(pending))
	}
}
