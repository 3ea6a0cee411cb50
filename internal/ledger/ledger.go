// Package ledger owns a user session's four collections (expenses, income,
// loans, debts), keeps them in sync with the store, and derives monthly
// summaries and running balances from them.
//
// Every mutation issues its remote write(s) and waits for them before
// touching local state, so local state never leads the store. Two-phase
// mutations (loan payments, debt transactions) surface a distinct
// PartialMutationError when the balance write fails after the entry write
// landed, and hand the retry to the repair queue.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"moneyflow/internal/amqp"
	"moneyflow/internal/core"
	applog "moneyflow/internal/log"
	"moneyflow/internal/store"
)

// Publisher emits ledger events and balance repairs. *amqp.Client satisfies
// it; a nil publisher disables messaging.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error
	PublishBalanceRepair(ctx context.Context, msg *amqp.BalanceRepairMessage) error
}

// Ledger is the per-session aggregator and mutator. All methods are safe for
// concurrent use; a single mutex serializes loads and mutations so a reload
// can never race a mutation over the same collections.
type Ledger struct {
	store   store.Store
	repairs store.RepairQueue // optional outbox for failed second-phase writes
	events  Publisher         // optional

	now   func() time.Time
	newID func() string
	log   *applog.Logger

	mu       sync.Mutex
	userID   string
	expenses []core.Expense
	income   []core.Income
	loans    []core.Loan
	debts    []core.Debt
}

func New(s store.Store, repairs store.RepairQueue, events Publisher) *Ledger {
	return &Ledger{
		store:   s,
		repairs: repairs,
		events:  events,
		now:     time.Now,
		newID:   uuid.NewString,
		log: applog.New(applog.Config{
			Handler:   slog.Default().Handler(),
			Component: applog.ComponentLedger,
		}),
	}
}

// LoadAll replaces all four collections with the store's contents for
// userID. The four fetches run concurrently. A failed fetch leaves that
// collection empty and is reported as a LoadError; the others are kept. The
// returned error joins all per-collection failures and is nil on a clean
// load.
func (l *Ledger) LoadAll(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrNoSession
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked(ctx, userID)
}

func (l *Ledger) loadLocked(ctx context.Context, userID string) error {
	var (
		expenses []core.Expense
		income   []core.Income
		loans    []core.Loan
		debts    []core.Debt

		expErr, incErr, loanErr, debtErr error
	)

	// Fan out the four fetches; failures are collected per collection
	// rather than cancelling the group.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { expenses, expErr = l.store.Expenses(gctx, userID); return nil })
	g.Go(func() error { income, incErr = l.store.Income(gctx, userID); return nil })
	g.Go(func() error { loans, loanErr = l.store.Loans(gctx, userID); return nil })
	g.Go(func() error { debts, debtErr = l.store.Debts(gctx, userID); return nil })
	_ = g.Wait()

	var failures []*LoadError
	if expErr != nil {
		expenses = nil
		failures = append(failures, &LoadError{Collection: CollectionExpenses, Err: expErr})
	}
	if incErr != nil {
		income = nil
		failures = append(failures, &LoadError{Collection: CollectionIncome, Err: incErr})
	}
	if loanErr != nil {
		loans = nil
		failures = append(failures, &LoadError{Collection: CollectionLoans, Err: loanErr})
	}
	if debtErr != nil {
		debts = nil
		failures = append(failures, &LoadError{Collection: CollectionDebts, Err: debtErr})
	}

	l.userID = userID
	l.expenses = expenses
	l.income = income
	l.loans = loans
	l.debts = debts

	joined := make([]error, 0, len(failures))
	for _, f := range failures {
		l.log.WarnContext(ctx, "Collection load failed, falling back to empty",
			applog.FieldUserID, userID,
			applog.FieldCollection, string(f.Collection),
			applog.FieldError, f.Err)
		joined = append(joined, f)
	}

	return errors.Join(joined...)
}

// OnIdentityChanged reloads the session for a new user id, or clears it when
// the id is empty (logout).
func (l *Ledger) OnIdentityChanged(ctx context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if userID == "" {
		l.clearLocked()
		return nil
	}
	return l.loadLocked(ctx, userID)
}

func (l *Ledger) clearLocked() {
	l.userID = ""
	l.expenses = nil
	l.income = nil
	l.loans = nil
	l.debts = nil
}

// UserID returns the active session's user id, or "" when logged out.
func (l *Ledger) UserID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.userID
}

// Expenses returns a copy of the expense collection.
func (l *Ledger) Expenses() []core.Expense {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.Expense(nil), l.expenses...)
}

// Income returns a copy of the income collection.
func (l *Ledger) Income() []core.Income {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.Income(nil), l.income...)
}

// Loans returns a copy of the loan collection, payments included.
func (l *Ledger) Loans() []core.Loan {
	l.mu.Lock()
	defer l.mu.Unlock()
	loans := make([]core.Loan, len(l.loans))
	for i, loan := range l.loans {
		loan.Payments = append([]core.LoanPayment(nil), loan.Payments...)
		loans[i] = loan
	}
	return loans
}

// Debts returns a copy of the debt collection, transactions included.
func (l *Ledger) Debts() []core.Debt {
	l.mu.Lock()
	defer l.mu.Unlock()
	debts := make([]core.Debt, len(l.debts))
	for i, debt := range l.debts {
		debt.Transactions = append([]core.DebtTransaction(nil), debt.Transactions...)
		debts[i] = debt
	}
	return debts
}

// CurrentMonthData aggregates expenses and income for the month containing
// the current wall-clock time. Pure over session state and the clock.
func (l *Ledger) CurrentMonthData() core.MonthlyData {
	l.mu.Lock()
	defer l.mu.Unlock()
	return core.MonthlyDataAt(l.expenses, l.income, l.now())
}

// TotalLoanBalance folds the current balances of all loans.
func (l *Ledger) TotalLoanBalance() core.Money {
	l.mu.Lock()
	defer l.mu.Unlock()
	return core.TotalLoanBalance(l.loans)
}

// TotalDebtBalance folds the signed totals of all debts.
func (l *Ledger) TotalDebtBalance() core.Money {
	l.mu.Lock()
	defer l.mu.Unlock()
	return core.TotalDebtBalance(l.debts)
}

// AddExpense persists a new expense and appends it to the session on
// success. The id is assigned here; a caller-provided id is ignored.
func (l *Ledger) AddExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.userID == "" {
		return core.Expense{}, ErrNoSession
	}

	e.ID = l.newID()
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := l.store.InsertExpense(ctx, l.userID, e); err != nil {
		return core.Expense{}, &WriteError{Op: "add expense", Err: err}
	}

	l.expenses = append(l.expenses, e)
	l.publishEvent(ctx, amqp.EventExpenseAdded, e.ID, e.Amount.Cents)
	return e, nil
}

// AddIncome persists a new income entry and appends it to the session on
// success.
func (l *Ledger) AddIncome(ctx context.Context, in core.Income) (core.Income, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.userID == "" {
		return core.Income{}, ErrNoSession
	}

	in.ID = l.newID()
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	if err := l.store.InsertIncome(ctx, l.userID, in); err != nil {
		return core.Income{}, &WriteError{Op: "add income", Err: err}
	}

	l.income = append(l.income, in)
	l.publishEvent(ctx, amqp.EventIncomeAdded, in.ID, in.Amount.Cents)
	return in, nil
}

// AddLoan persists a new loan with no payments and prepends it to the
// session on success.
func (l *Ledger) AddLoan(ctx context.Context, loan core.Loan) (core.Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.userID == "" {
		return core.Loan{}, ErrNoSession
	}

	loan.ID = l.newID()
	loan.Payments = []core.LoanPayment{}
	if err := loan.Validate(); err != nil {
		return core.Loan{}, err
	}
	if err := l.store.InsertLoan(ctx, l.userID, loan); err != nil {
		return core.Loan{}, &WriteError{Op: "add loan", Err: err}
	}

	l.loans = append([]core.Loan{loan}, l.loans...)
	l.publishEvent(ctx, amqp.EventLoanAdded, loan.ID, loan.CurrentBalance.Cents)
	return loan, nil
}

// AddDebt persists a new debt for personName with a zero total and prepends
// it to the session on success.
func (l *Ledger) AddDebt(ctx context.Context, personName string) (core.Debt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.userID == "" {
		return core.Debt{}, ErrNoSession
	}

	debt := core.Debt{
		ID:           l.newID(),
		PersonName:   personName,
		Transactions: []core.DebtTransaction{},
	}
	if err := debt.Validate(); err != nil {
		return core.Debt{}, err
	}
	if err := l.store.InsertDebt(ctx, l.userID, debt); err != nil {
		return core.Debt{}, &WriteError{Op: "add debt", Err: err}
	}

	l.debts = append([]core.Debt{debt}, l.debts...)
	l.publishEvent(ctx, amqp.EventDebtAdded, debt.ID, 0)
	return debt, nil
}

// AddLoanPayment records a payment against a loan and decrements its balance,
// clamping at zero. The payment row is written first, then the balance; only
// after both land is local state updated. A failure of the balance write
// returns a PartialMutationError and enqueues the retry.
func (l *Ledger) AddLoanPayment(ctx context.Context, loanID string, amount core.Money, description string) (core.LoanPayment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.userID == "" {
		return core.LoanPayment{}, ErrNoSession
	}

	idx := -1
	for i := range l.loans {
		if l.loans[i].ID == loanID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return core.LoanPayment{}, &WriteError{Op: "add loan payment", Err: store.ErrNotFound}
	}

	payment := core.LoanPayment{
		ID:          l.newID(),
		Amount:      amount,
		Date:        core.DateOf(l.now()),
		Description: description,
	}
	if err := payment.Validate(); err != nil {
		return core.LoanPayment{}, err
	}

	if err := l.store.InsertLoanPayment(ctx, l.userID, loanID, payment); err != nil {
		return core.LoanPayment{}, &WriteError{Op: "add loan payment", Err: err}
	}

	next := core.NextLoanBalance(l.loans[idx].CurrentBalance, amount)
	if err := l.store.UpdateLoanBalance(ctx, l.userID, loanID, next); err != nil {
		perr := &PartialMutationError{
			Entity:      store.RepairEntityLoan,
			EntityID:    loanID,
			UserID:      l.userID,
			TargetCents: next.Cents,
			Err:         err,
		}
		l.enqueueRepair(ctx, perr)
		return core.LoanPayment{}, perr
	}

	l.loans[idx].Payments = append(l.loans[idx].Payments, payment)
	l.loans[idx].CurrentBalance = next
	l.publishEvent(ctx, amqp.EventLoanPayment, payment.ID, amount.Cents)
	return payment, nil
}

// AddDebtTransaction records a signed transaction against a debt and moves
// its running total by the same amount, with no clamping. Same two-phase
// shape and failure semantics as AddLoanPayment.
func (l *Ledger) AddDebtTransaction(ctx context.Context, debtID string, amount core.Money, description string) (core.DebtTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.userID == "" {
		return core.DebtTransaction{}, ErrNoSession
	}

	idx := -1
	for i := range l.debts {
		if l.debts[i].ID == debtID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return core.DebtTransaction{}, &WriteError{Op: "add debt transaction", Err: store.ErrNotFound}
	}

	txn := core.DebtTransaction{
		ID:          l.newID(),
		Amount:      amount,
		Date:        core.DateOf(l.now()),
		Description: description,
	}
	if err := txn.Validate(); err != nil {
		return core.DebtTransaction{}, err
	}

	if err := l.store.InsertDebtTransaction(ctx, l.userID, debtID, txn); err != nil {
		return core.DebtTransaction{}, &WriteError{Op: "add debt transaction", Err: err}
	}

	next := core.NextDebtTotal(l.debts[idx].TotalOwed, amount)
	if err := l.store.UpdateDebtTotal(ctx, l.userID, debtID, next); err != nil {
		perr := &PartialMutationError{
			Entity:      store.RepairEntityDebt,
			EntityID:    debtID,
			UserID:      l.userID,
			TargetCents: next.Cents,
			Err:         err,
		}
		l.enqueueRepair(ctx, perr)
		return core.DebtTransaction{}, perr
	}

	l.debts[idx].Transactions = append(l.debts[idx].Transactions, txn)
	l.debts[idx].TotalOwed = next
	l.publishEvent(ctx, amqp.EventDebtTransaction, txn.ID, amount.Cents)
	return txn, nil
}

func (l *Ledger) publishEvent(ctx context.Context, kind, entityID string, amountCents int64) {
	if l.events == nil {
		return
	}
	msg := amqp.NewLedgerEventMessage(kind, l.userID, entityID, amountCents)
	if err := l.events.PublishLedgerEvent(ctx, msg); err != nil {
		// Events are informational; the mutation already succeeded.
		l.log.ErrorContext(ctx, "Failed to publish ledger event",
			"kind", kind, applog.FieldEntityID, entityID, applog.FieldError, err)
	}
}

func (l *Ledger) enqueueRepair(ctx context.Context, perr *PartialMutationError) {
	if l.repairs != nil {
		rep := store.Repair{
			UserID:      perr.UserID,
			Entity:      perr.Entity,
			EntityID:    perr.EntityID,
			TargetCents: perr.TargetCents,
		}
		if err := l.repairs.EnqueueRepair(ctx, rep); err != nil {
			l.log.ErrorContext(ctx, "Failed to enqueue balance repair",
				"entity", perr.Entity, applog.FieldEntityID, perr.EntityID, applog.FieldError, err)
		}
	}
	if l.events != nil {
		msg := amqp.NewBalanceRepairMessage(perr.Entity, perr.EntityID, perr.UserID, perr.TargetCents)
		if err := l.events.PublishBalanceRepair(ctx, msg); err != nil {
			l.log.ErrorContext(ctx, "Failed to publish balance repair",
				"entity", perr.Entity, applog.FieldEntityID, perr.EntityID, applog.FieldError, err)
		}
	}
}
