// Package sqlite is the SQLite-backed store. The schema lives in embedded
// migrations and is applied on open.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"moneyflow/internal/core"
	"moneyflow/internal/store"

	_ "modernc.org/sqlite"
)

// Repository implements store.Store and store.RepairQueue over SQLite.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Expenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount_cents, category, description, entry_date
		FROM expenses WHERE user_id = ? ORDER BY created_at, id`, userID)
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
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, userID, e.Amount.Cents, e.Category, e.Description, e.Date.String())
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

func (r *Repository) Income(ctx context.Context, userID string) ([]core.Income, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount_cents, source, description, entry_date
		FROM income WHERE user_id = ? ORDER BY created_at, id`, userID)
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
		VALUES (?, ?, ?, ?, ?, ?)`,
		i.ID, userID, i.Amount.Cents, i.Source, i.Description, i.Date.String())
	if err != nil {
		return fmt.Errorf("insert income: %w", err)
	}
	return nil
}

func (r *Repository) Loans(ctx context.Context, userID string) ([]core.Loan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, original_cents, balance_cents, interest_rate, monthly_payment_cents
		FROM loans WHERE user_id = ? ORDER BY created_at, id`, userID)
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
		SELECT id, loan_id, amount_cents, entry_date, description
		FROM loan_payments WHERE user_id = ? ORDER BY created_at, id`, userID)
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
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
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
	if err := r.exists(ctx, "loans", loanID, userID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO loan_payments (id, loan_id, user_id, amount_cents, entry_date, description)
		VALUES (?, ?, ?, ?, ?, ?)`,
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
		`UPDATE loans SET balance_cents = ? WHERE id = ? AND user_id = ?`,
		balance.Cents, loanID, userID)
	if err != nil {
		return fmt.Errorf("update loan balance: %w", err)
	}
	return oneRowAffected(res)
}

func (r *Repository) Debts(ctx context.Context, userID string) ([]core.Debt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, person_name, total_owed_cents
		FROM debts WHERE user_id = ? ORDER BY created_at, id`, userID)
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
		SELECT id, debt_id, amount_cents, entry_date, description
		FROM debt_transactions WHERE user_id = ? ORDER BY created_at, id`, userID)
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
		VALUES (?, ?, ?, ?)`,
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
	if err := r.exists(ctx, "debts", debtID, userID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO debt_transactions (id, debt_id, user_id, amount_cents, entry_date, description)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, debtID, userID, t.Amount.Cents, t.Date.String(), t.Description)
	if err != nil {
		return fmt.Errorf("insert debt transaction: %w", err)
	}
	return nil
}

func (r *Repository) UpdateDebtTotal(ctx context.Context, userID, debtID string, total core.Money) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE debts SET total_owed_cents = ? WHERE id = ? AND user_id = ?`,
		total.Cents, debtID, userID)
	if err != nil {
		return fmt.Errorf("update debt total: %w", err)
	}
	return oneRowAffected(res)
}

func (r *Repository) EnqueueRepair(ctx context.Context, rep store.Repair) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO balance_repairs (user_id, entity, entity_id, target_cents)
		VALUES (?, ?, ?, ?)`,
		rep.UserID, rep.Entity, rep.EntityID, rep.TargetCents)
	if err != nil {
		return fmt.Errorf("enqueue repair: %w", err)
	}
	return nil
}

func (r *Repository) PendingRepairs(ctx context.Context, limit int) ([]store.Repair, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, entity, entity_id, target_cents, attempts, created_at
		FROM balance_repairs WHERE status = 'pending' ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending repairs: %w", err)
	}
	defer rows.Close()

	var out []store.Repair
	for rows.Next() {
		var rep store.Repair
		var created string
		if err := rows.Scan(&rep.ID, &rep.UserID, &rep.Entity, &rep.EntityID,
			&rep.TargetCents, &rep.Attempts, &created); err != nil {
			return nil, fmt.Errorf("scan repair: %w", err)
		}
		// CURRENT_TIMESTAMP stores "YYYY-MM-DD HH:MM:SS" text.
		if ts, err := time.Parse("2006-01-02 15:04:05", created); err == nil {
			rep.CreatedAt = ts.UTC()
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *Repository) MarkRepairDone(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE balance_repairs SET status = 'done', updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark repair done: %w", err)
	}
	return oneRowAffected(res)
}

func (r *Repository) MarkRepairFailed(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE balance_repairs SET attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark repair failed: %w", err)
	}
	return oneRowAffected(res)
}

func (r *Repository) exists(ctx context.Context, table, id, userID string) error {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM `+table+` WHERE id = ? AND user_id = ?`, id, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup %s: %w", table, err)
	}
	return nil
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
