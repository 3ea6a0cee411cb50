// Package store defines the persistence ports the ledger consumes and a
// factory over the concrete backends (memory, sqlite, postgres).
package store

import (
	"context"
	"errors"
	"time"

	"moneyflow/internal/core"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

type (
	ExpenseStore interface {
		Expenses(ctx context.Context, userID string) ([]core.Expense, error)
		InsertExpense(ctx context.Context, userID string, e core.Expense) error
	}

	IncomeStore interface {
		Income(ctx context.Context, userID string) ([]core.Income, error)
		InsertIncome(ctx context.Context, userID string, i core.Income) error
	}

	// LoanStore fetches loans with their payments attached. A payment insert
	// and the matching balance update are deliberately separate operations;
	// the ledger issues them in order and handles the gap between them.
	LoanStore interface {
		Loans(ctx context.Context, userID string) ([]core.Loan, error)
		InsertLoan(ctx context.Context, userID string, l core.Loan) error
		InsertLoanPayment(ctx context.Context, userID, loanID string, p core.LoanPayment) error
		UpdateLoanBalance(ctx context.Context, userID, loanID string, balance core.Money) error
	}

	DebtStore interface {
		Debts(ctx context.Context, userID string) ([]core.Debt, error)
		InsertDebt(ctx context.Context, userID string, d core.Debt) error
		InsertDebtTransaction(ctx context.Context, userID, debtID string, t core.DebtTransaction) error
		UpdateDebtTotal(ctx context.Context, userID, debtID string, total core.Money) error
	}

	// Store is the full persistence collaborator.
	Store interface {
		ExpenseStore
		IncomeStore
		LoanStore
		DebtStore
	}
)

// Repair entity kinds.
const (
	RepairEntityLoan = "loan"
	RepairEntityDebt = "debt"
)

// Repair is an outstanding second-phase balance write: the child row landed
// but the parent balance update failed. TargetCents is the balance value to
// re-issue, so applying a repair is idempotent.
type Repair struct {
	ID          int64
	UserID      string
	Entity      string // RepairEntityLoan or RepairEntityDebt
	EntityID    string
	TargetCents int64
	Attempts    int
	CreatedAt   time.Time
}

// RepairQueue is the outbox for failed second-phase writes.
type RepairQueue interface {
	EnqueueRepair(ctx context.Context, r Repair) error
	PendingRepairs(ctx context.Context, limit int) ([]Repair, error)
	MarkRepairDone(ctx context.Context, id int64) error
	MarkRepairFailed(ctx context.Context, id int64) error
}
