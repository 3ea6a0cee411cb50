// Package postgres is the Postgres-backed store, for deployments where the
// ledger is shared between devices. Schema setup is idempotent and applied
// on open.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"moneyflow/internal/core"
	"moneyflow/internal/store"

	_ "github.com/lib/pq"
)

// Repository implements store.Store and store.RepairQueue over Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(dsn string) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &Repository{db: db}
	if err := repo.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount_cents BIGINT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		entry_date DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_user ON expenses(user_id)`,
	`CREATE TABLE IF NOT EXISTS income (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount_cents BIGINT NOT NULL,
		source TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		entry_date DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_income_user ON income(user_id)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		original_cents BIGINT NOT NULL DEFAULT 0,
		balance_cents BIGINT NOT NULL DEFAULT 0,
		interest_rate DOUBLE PRECISION,
		monthly_payment_cents BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_user ON loans(user_id)`,
	`CREATE TABLE IF NOT EXISTS loan_payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		user_id TEXT NOT NULL,
		amount_cents BIGINT NOT NULL,
		entry_date DATE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loan_payments_user ON loan_payments(user_id)`,
	`CREATE TABLE IF NOT EXISTS debts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		person_name TEXT NOT NULL,
		total_owed_cents BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_debts_user ON debts(user_id)`,
	`CREATE TABLE IF NOT EXISTS debt_transactions (
		id TEXT PRIMARY KEY,
		debt_id TEXT NOT NULL REFERENCES debts(id),
		user_id TEXT NOT NULL,
		amount_cents BIGINT NOT NULL,
		entry_date DATE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_debt_transactions_user ON debt_transactions(user_id)`,
	`CREATE TABLE IF NOT EXISTS balance_repairs (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		target_cents BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_balance_repairs_status ON balance_repairs(status)`,
}

func (r *Repository) ensureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (r *Repository) Expenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount_cents, category, description, to_char(entry_date, 'YYYY-MM-DD')
		FROM expenses WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var e core.Expense
		var date string
		if err := rows.Scan(&e.ID, &e.Amount.Cents, &e.Category, &e.Description, &date); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("expense %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) InsertExpense(ctx context.Context, userID string, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (id, user_id, amount_cents, category, description, entry_date)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, userID, e.Amount.Cents, e.Category, e.Description, e.Date.String())
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

func (r *Repository) Income(ctx context.Context, userID string) ([]core.Income, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount_cents, source, description, to_char(entry_date, 'YYYY-MM-DD')
		FROM income WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query income: %w", err)
	}
	defer rows.Close()

	var out []core.Income
	for rows.Next() {
		var i core.Income
		var date string
		if err := rows.Scan(&i.ID, &i.Amount.Cents, &i.Source, &i.Description, &date); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		if i.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("income %s: %w", i.ID, err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (r *Repository) InsertIncome(ctx context.Context, userID string, i core.Income) error {
	if err := i.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO income (id, user_id, amount_cents, source, description, entry_date)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		i.ID, userID, i.Amount.Cents, i.Source, i.Description, i.Date.String())
	if err != nil {
		return fmt.Errorf("insert income: %w", err)
	}
	return nil
}

func (r *Repository) Loans(ctx context.Context, userID string) ([]core.Loan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, original_cents, balance_cents, interest_rate, monthly_payment_cents
		FROM loans WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query loans: %w", err)
	}
	defer rows.Close()

	var loans []core.Loan
	byID := make(map[string]int)
	for rows.Next() {
		var l core.Loan
		var rate sql.NullFloat64
		var monthly sql.NullInt64
		if err := rows.Scan(&l.ID, &l.Name, &l.OriginalAmount.Cents, &l.CurrentBalance.Cents, &rate, &monthly); err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		if rate.Valid {
			v := rate.Float64
			l.InterestRate = &v
		}
		if monthly.Valid {
			l.MonthlyPayment = &core.Money{Cents: monthly.Int64}
		}
		l.Payments = []core.LoanPayment{}
		byID[l.ID] = len(loans)
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := r.db.QueryContext(ctx, `
		SELECT id, loan_id, amount_cents, to_char(entry_date, 'YYYY-MM-DD'), description
		FROM loan_payments WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query loan payments: %w", err)
	}
	defer prows.Close()

	for prows.Next() {
		var p core.LoanPayment
		var loanID, date string
		if err := prows.Scan(&p.ID, &loanID, &p.Amount.Cents, &date, &p.Description); err != nil {
			return nil, fmt.Errorf("scan loan payment: %w", err)
		}
		if p.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("loan payment %s: %w", p.ID, err)
		}
		if i, ok := byID[loanID]; ok {
			loans[i].Payments = append(loans[i].Payments, p)
		}
	}
	return loans, prows.Err()
}

func (r *Repository) InsertLoan(ctx context.Context, userID string, l core.Loan) error {
	if err := l.Validate(); err != nil {
		return err
	}
	var rate sql.NullFloat64
	if l.InterestRate != nil {
		rate = sql.NullFloat64{Float64: *l.InterestRate, Valid: true}
	}
	var monthly sql.NullInt64
	if l.MonthlyPayment != nil {
		monthly = sql.NullInt64{Int64: l.MonthlyPayment.Cents, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO loans (id, user_id, name, original_cents, balance_cents, interest_rate, monthly_payment_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, userID, l.Name, l.OriginalAmount.Cents, l.CurrentBalance.Cents, rate, monthly)
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (r *Repository) InsertLoanPayment(ctx context.Context, userID, loanID string, p core.LoanPayment) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO loan_payments (id, loan_id, user_id, amount_cents, entry_date, description)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, loanID, userID, p.Amount.Cents, p.Date.String(), p.Description)
	if err != nil {
		return fmt.Errorf("insert loan payment: %w", err)
	}
	return nil
}

func (r *Repository) UpdateLoanBalance(ctx context.Context, userID, loanID string, balance core.Money) error {
	if balance.Cents < 0 {
		return core.ErrNegativeBalance
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE loans SET balance_cents = $1 WHERE id = $2 AND user_id = $3`,
		balance.Cents, loanID, userID)
	if err != nil {
		return fmt.Errorf("update loan balance: %w", err)
	}
	return oneRowAffected(res)
}

func (r *Repository) Debts(ctx context.Context, userID string) ([]core.Debt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, person_name, total_owed_cents
		FROM debts WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query debts: %w", err)
	}
	defer rows.Close()

	var debts []core.Debt
	byID := make(map[string]int)
	for rows.Next() {
		var d core.Debt
		if err := rows.Scan(&d.ID, &d.PersonName, &d.TotalOwed.Cents); err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		d.Transactions = []core.DebtTransaction{}
		byID[d.ID] = len(debts)
		debts = append(debts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	trows, err := r.db.QueryContext(ctx, `
		SELECT id, debt_id, amount_cents, to_char(entry_date, 'YYYY-MM-DD'), description
		FROM debt_transactions WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query debt transactions: %w", err)
	}
	defer trows.Close()

	for trows.Next() {
		var t core.DebtTransaction
		var debtID, date string
		if err := trows.Scan(&t.ID, &debtID, &t.Amount.Cents, &date, &t.Description); err != nil {
			return nil, fmt.Errorf("scan debt transaction: %w", err)
		}
		if t.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("debt transaction %s: %w", t.ID, err)
		}
		if i, ok := byID[debtID]; ok {
			debts[i].Transactions = append(debts[i].Transactions, t)
		}
	}
	return debts, trows.Err()
}

func (r *Repository) InsertDebt(ctx context.Context, userID string, d core.Debt) error {
	if err := d.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO debts (id, user_id, person_name, total_owed_cents)
		VALUES ($1, $2, $3, $4)`,
		d.ID, userID, d.PersonName, d.TotalOwed.Cents)
	if err != nil {
		return fmt.Errorf("insert debt: %w", err)
	}
	return nil
}

func (r *Repository) InsertDebtTransaction(ctx context.Context, userID, debtID string, t core.DebtTransaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO debt_transactions (id, debt_id, user_id, amount_cents, entry_date, description)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, debtID, userID, t.Amount.Cents, t.Date.String(), t.Description)
	if err != nil {
		return fmt.Errorf("insert debt transaction: %w", err)
	}
	return nil
}

func (r *Repository) UpdateDebtTotal(ctx context.Context, userID, debtID string, total core.Money) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE debts SET total_owed_cents = $1 WHERE id = $2 AND user_id = $3`,
		total.Cents, debtID, userID)
	if err != nil {
		return fmt.Errorf("update debt total: %w", err)
	}
	return oneRowAffected(res)
}

func (r *Repository) EnqueueRepair(ctx context.Context, rep store.Repair) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO balance_repairs (user_id, entity, entity_id, target_cents)
		VALUES ($1, $2, $3, $4)`,
		rep.UserID, rep.Entity, rep.EntityID, rep.TargetCents)
	if err != nil {
		return fmt.Errorf("enqueue repair: %w", err)
	}
	return nil
}

func (r *Repository) PendingRepairs(ctx context.Context, limit int) ([]store.Repair, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, entity, entity_id, target_cents, attempts, created_at
		FROM balance_repairs WHERE status = 'pending' ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending repairs: %w", err)
	}
	defer rows.Close()

	var out []store.Repair
	for rows.Next() {
		var rep store.Repair
		if err := rows.Scan(&rep.ID, &rep.UserID, &rep.Entity, &rep.EntityID,
			&rep.TargetCents, &rep.Attempts, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan repair: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *Repository) MarkRepairDone(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE balance_repairs SET status = 'done', updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark repair done: %w", err)
	}
	return oneRowAffected(res)
}

func (r *Repository) MarkRepairFailed(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE balance_repairs SET attempts = attempts + 1, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark repair failed: %w", err)
	}
	return oneRowAffected(res)
}

func oneRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
