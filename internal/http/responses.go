package http

import (
	"moneyflow/internal/core"
)

// Wire types. Amounts travel as integer cents; dates as "YYYY-MM-DD".

type expenseJSON struct {
	ID          string `json:"id"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date"`
}

type incomeJSON struct {
	ID          string `json:"id"`
	AmountCents int64  `json:"amount_cents"`
	Source      string `json:"source"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date"`
}

type loanPaymentJSON struct {
	ID          string `json:"id"`
	AmountCents int64  `json:"amount_cents"`
	Date        string `json:"date"`
	Description string `json:"description,omitempty"`
}

type loanJSON struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	OriginalAmountCents int64             `json:"original_amount_cents"`
	CurrentBalanceCents int64             `json:"current_balance_cents"`
	InterestRate        *float64          `json:"interest_rate,omitempty"`
	MonthlyPaymentCents *int64            `json:"monthly_payment_cents,omitempty"`
	Payments            []loanPaymentJSON `json:"payments"`
}

type debtTransactionJSON struct {
	ID          string `json:"id"`
	AmountCents int64  `json:"amount_cents"`
	Date        string `json:"date"`
	Description string `json:"description,omitempty"`
}

type debtJSON struct {
	ID             string                `json:"id"`
	PersonName     string                `json:"person_name"`
	TotalOwedCents int64                 `json:"total_owed_cents"`
	Transactions   []debtTransactionJSON `json:"transactions"`
}

type monthSummaryJSON struct {
	Month              string        `json:"month"`
	TotalExpensesCents int64         `json:"total_expenses_cents"`
	TotalIncomeCents   int64         `json:"total_income_cents"`
	NetIncomeCents     int64         `json:"net_income_cents"`
	Expenses           []expenseJSON `json:"expenses"`
	Income             []incomeJSON  `json:"income"`
}

type balancesJSON struct {
	TotalLoanBalanceCents int64 `json:"total_loan_balance_cents"`
	TotalDebtBalanceCents int64 `json:"total_debt_balance_cents"`
}

func toExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:          e.ID,
		AmountCents: e.Amount.Cents,
		Category:    e.Category,
		Description: e.Description,
		Date:        e.Date.String(),
	}
}

func toIncomeJSON(i core.Income) incomeJSON {
	return incomeJSON{
		ID:          i.ID,
		AmountCents: i.Amount.Cents,
		Source:      i.Source,
		Description: i.Description,
		Date:        i.Date.String(),
	}
}

func toLoanPaymentJSON(p core.LoanPayment) loanPaymentJSON {
	return loanPaymentJSON{
		ID:          p.ID,
		AmountCents: p.Amount.Cents,
		Date:        p.Date.String(),
		Description: p.Description,
	}
}

func toLoanJSON(l core.Loan) loanJSON {
	out := loanJSON{
		ID:                  l.ID,
		Name:                l.Name,
		OriginalAmountCents: l.OriginalAmount.Cents,
		CurrentBalanceCents: l.CurrentBalance.Cents,
		InterestRate:        l.InterestRate,
		Payments:            make([]loanPaymentJSON, 0, len(l.Payments)),
	}
	if l.MonthlyPayment != nil {
		cents := l.MonthlyPayment.Cents
		out.MonthlyPaymentCents = &cents
	}
	for _, p := range l.Payments {
		out.Payments = append(out.Payments, toLoanPaymentJSON(p))
	}
	return out
}

func toDebtTransactionJSON(t core.DebtTransaction) debtTransactionJSON {
	return debtTransactionJSON{
		ID:          t.ID,
		AmountCents: t.Amount.Cents,
		Date:        t.Date.String(),
		Description: t.Description,
	}
}

func toDebtJSON(d core.Debt) debtJSON {
	out := debtJSON{
		ID:             d.ID,
		PersonName:     d.PersonName,
		TotalOwedCents: d.TotalOwed.Cents,
		Transactions:   make([]debtTransactionJSON, 0, len(d.Transactions)),
	}
	for _, t := range d.Transactions {
		out.Transactions = append(out.Transactions, toDebtTransactionJSON(t))
	}
	return out
}

func toMonthSummaryJSON(data core.MonthlyData) monthSummaryJSON {
	out := monthSummaryJSON{
		Month:              string(data.Month),
		TotalExpensesCents: data.TotalExpenses.Cents,
		TotalIncomeCents:   data.TotalIncome.Cents,
		NetIncomeCents:     data.NetIncome.Cents,
		Expenses:           make([]expenseJSON, 0, len(data.Expenses)),
		Income:             make([]incomeJSON, 0, len(data.Income)),
	}
	for _, e := range data.Expenses {
		out.Expenses = append(out.Expenses, toExpenseJSON(e))
	}
	for _, i := range data.Income {
		out.Income = append(out.Income, toIncomeJSON(i))
	}
	return out
}
