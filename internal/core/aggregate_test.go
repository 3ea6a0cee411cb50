package core

import (
	"testing"
	"time"
)

func TestMonthlyDataAt(t *testing.T) {
	expenses := []Expense{
		{ID: "e1", Amount: Money{Cents: 4000}, Category: "Food", Date: NewDate(2024, 5, 1)},
		{ID: "e2", Amount: Money{Cents: 1000}, Category: "Food", Date: NewDate(2024, 4, 30)},
	}
	income := []Income{
		{ID: "i1", Amount: Money{Cents: 9000}, Source: "Salary", Date: NewDate(2024, 5, 15)},
		{ID: "i2", Amount: Money{Cents: 500}, Source: "Other", Date: NewDate(2023, 5, 15)},
	}
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

	data := MonthlyDataAt(expenses, income, now)

	if data.Month != "2024-05" {
		t.Fatalf("expected month 2024-05, got %s", data.Month)
	}
	if len(data.Expenses) != 1 || data.Expenses[0].ID != "e1" {
		t.Fatalf("expected only e1 in month, got %+v", data.Expenses)
	}
	if data.TotalExpenses.Cents != 4000 {
		t.Fatalf("expected total expenses 4000, got %d", data.TotalExpenses.Cents)
	}
	if len(data.Income) != 1 || data.TotalIncome.Cents != 9000 {
		t.Fatalf("expected total income 9000, got %d", data.TotalIncome.Cents)
	}
	if data.NetIncome.Cents != 5000 {
		t.Fatalf("expected net income 5000, got %d", data.NetIncome.Cents)
	}
}

func TestMonthlyDataAtEmpty(t *testing.T) {
	data := MonthlyDataAt(nil, nil, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	if data.TotalExpenses.Cents != 0 || data.TotalIncome.Cents != 0 || data.NetIncome.Cents != 0 {
		t.Fatalf("expected zero totals, got %+v", data)
	}
	if data.Expenses == nil || data.Income == nil {
		t.Fatal("subsets should be empty, not nil")
	}
}

func TestTotalLoanBalance(t *testing.T) {
	loans := []Loan{
		{ID: "l1", CurrentBalance: Money{Cents: 70000}},
		{ID: "l2", CurrentBalance: Money{Cents: 30000}},
	}
	if got := TotalLoanBalance(loans); got.Cents != 100000 {
		t.Fatalf("expected 100000, got %d", got.Cents)
	}
	// Idempotent: folding again yields the same value.
	if got := TotalLoanBalance(loans); got.Cents != 100000 {
		t.Fatalf("expected 100000 on repeat, got %d", got.Cents)
	}
}

func TestTotalDebtBalance(t *testing.T) {
	debts := []Debt{
		{ID: "d1", TotalOwed: Money{Cents: 5000}},
		{ID: "d2", TotalOwed: Money{Cents: -2000}},
	}
	if got := TotalDebtBalance(debts); got.Cents != 3000 {
		t.Fatalf("expected 3000, got %d", got.Cents)
	}
}

func TestNextLoanBalance(t *testing.T) {
	// 1000 → pay 300 → 700 → pay 800 → clamped at 0.
	b := Money{Cents: 100000}
	b = NextLoanBalance(b, Money{Cents: 30000})
	if b.Cents != 70000 {
		t.Fatalf("expected 70000, got %d", b.Cents)
	}
	b = NextLoanBalance(b, Money{Cents: 80000})
	if b.Cents != 0 {
		t.Fatalf("expected clamp at 0, got %d", b.Cents)
	}
}

func TestNextDebtTotal(t *testing.T) {
	total := Money{Cents: 0}
	total = NextDebtTotal(total, Money{Cents: 5000})
	if total.Cents != 5000 {
		t.Fatalf("expected 5000, got %d", total.Cents)
	}
	total = NextDebtTotal(total, Money{Cents: -2000})
	if total.Cents != 3000 {
		t.Fatalf("expected 3000, got %d", total.Cents)
	}
	// No clamping for debts: a net negative total is legal.
	total = NextDebtTotal(total, Money{Cents: -10000})
	if total.Cents != -7000 {
		t.Fatalf("expected -7000, got %d", total.Cents)
	}
}
