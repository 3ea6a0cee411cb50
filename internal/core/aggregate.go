package core

import "time"

// MonthlyData is the derived per-month view over expenses and income. It is
// computed on demand and never stored.
type MonthlyData struct {
	Month         MonthKey
	Expenses      []Expense
	Income        []Income
	TotalExpenses Money
	TotalIncome   Money
	NetIncome     Money
}

// MonthlyDataAt filters expenses and income to the month containing now and
// sums them. Deterministic given its inputs; no side effects.
func MonthlyDataAt(expenses []Expense, income []Income, now time.Time) MonthlyData {
	month := MonthKeyAt(now)

	data := MonthlyData{
		Month:    month,
		Expenses: []Expense{},
		Income:   []Income{},
	}
	for _, e := range expenses {
		if e.Date.MonthKey() != month {
			continue
		}
		data.Expenses = append(data.Expenses, e)
		data.TotalExpenses.Cents += e.Amount.Cents
	}
	for _, i := range income {
		if i.Date.MonthKey() != month {
			continue
		}
		data.Income = append(data.Income, i)
		data.TotalIncome.Cents += i.Amount.Cents
	}
	data.NetIncome = Money{Cents: data.TotalIncome.Cents - data.TotalExpenses.Cents}
	return data
}

// TotalLoanBalance folds the current balances of all loans.
func TotalLoanBalance(loans []Loan) Money {
	var sum int64
	for _, l := range loans {
		sum += l.CurrentBalance.Cents
	}
	return Money{Cents: sum}
}

// TotalDebtBalance folds the signed totals of all debts. Positive means money
// owed to the user.
func TotalDebtBalance(debts []Debt) Money {
	var sum int64
	for _, d := range debts {
		sum += d.TotalOwed.Cents
	}
	return Money{Cents: sum}
}

// NextLoanBalance applies a payment to a loan balance, clamping at zero. A
// payment can never drive a balance negative.
func NextLoanBalance(current, payment Money) Money {
	next := current.Cents - payment.Cents
	if next < 0 {
		next = 0
	}
	return Money{Cents: next}
}

// NextDebtTotal applies a signed transaction amount to a debt total. Unlike
// loan balances there is no clamping.
func NextDebtTotal(current, amount Money) Money {
	return Money{Cents: current.Cents + amount.Cents}
}
