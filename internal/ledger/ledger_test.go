package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"moneyflow/internal/amqp"
	"moneyflow/internal/core"
	"moneyflow/internal/store"
	"moneyflow/internal/store/memory"
)

// fakeStore wraps the memory store so individual operations can be forced to
// fail, simulating network or constraint errors from the remote store.
type fakeStore struct {
	*memory.Store
	failExpenses      bool
	failInsertExpense bool
	failLoanBalance   bool
	failDebtTotal     bool
}

var errBoom = errors.New("boom")

func (f *fakeStore) Expenses(ctx context.Context, userID string) ([]core.Expense, error) {
	if f.failExpenses {
		return nil, errBoom
	}
	return f.Store.Expenses(ctx, userID)
}

func (f *fakeStore) InsertExpense(ctx context.Context, userID string, e core.Expense) error {
	if f.failInsertExpense {
		return errBoom
	}
	return f.Store.InsertExpense(ctx, userID, e)
}

func (f *fakeStore) UpdateLoanBalance(ctx context.Context, userID, loanID string, balance core.Money) error {
	if f.failLoanBalance {
		return errBoom
	}
	return f.Store.UpdateLoanBalance(ctx, userID, loanID, balance)
}

func (f *fakeStore) UpdateDebtTotal(ctx context.Context, userID, debtID string, total core.Money) error {
	if f.failDebtTotal {
		return errBoom
	}
	return f.Store.UpdateDebtTotal(ctx, userID, debtID, total)
}

// recordingPublisher captures published messages.
type recordingPublisher struct {
	events  []*amqp.LedgerEventMessage
	repairs []*amqp.BalanceRepairMessage
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, msg *amqp.LedgerEventMessage) error {
	p.events = append(p.events, msg)
	return nil
}

func (p *recordingPublisher) PublishBalanceRepair(_ context.Context, msg *amqp.BalanceRepairMessage) error {
	p.repairs = append(p.repairs, msg)
	return nil
}

func newTestLedger(t *testing.T) (*Ledger, *fakeStore, *recordingPublisher) {
	t.Helper()
	fs := &fakeStore{Store: memory.New()}
	pub := &recordingPublisher{}
	l := New(fs, fs, pub)
	l.now = func() time.Time { return time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC) }
	if err := l.LoadAll(context.Background(), "u1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	return l, fs, pub
}

func TestLoadAllPartialFailure(t *testing.T) {
	ctx := context.Background()
	fs := &fakeStore{Store: memory.New()}

	seed := core.Income{ID: "i1", Amount: core.Money{Cents: 100}, Source: "Salary", Date: core.NewDate(2024, 5, 1)}
	if err := fs.Store.InsertIncome(ctx, "u1", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fs.failExpenses = true
	l := New(fs, nil, nil)

	err := l.LoadAll(ctx, "u1")
	if err == nil {
		t.Fatal("expected load error")
	}
	var lerr *LoadError
	if !errors.As(err, &lerr) || lerr.Collection != CollectionExpenses {
		t.Fatalf("expected expenses LoadError, got %v", err)
	}

	// Failed collection is empty, the others loaded normally.
	if got := l.Expenses(); len(got) != 0 {
		t.Fatalf("expected empty expenses, got %d", len(got))
	}
	if got := l.Income(); len(got) != 1 {
		t.Fatalf("expected 1 income entry, got %d", len(got))
	}
}

func TestLoadAllRequiresUser(t *testing.T) {
	l := New(&fakeStore{Store: memory.New()}, nil, nil)
	if err := l.LoadAll(context.Background(), ""); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestAddExpense(t *testing.T) {
	l, _, pub := newTestLedger(t)
	ctx := context.Background()

	e, err := l.AddExpense(ctx, core.Expense{
		Amount:   core.Money{Cents: 4000},
		Category: "Food",
		Date:     core.NewDate(2024, 5, 1),
	})
	if err != nil {
		t.Fatalf("add expense: %v", err)
	}
	if e.ID == "" {
		t.Fatal("expected assigned id")
	}
	if got := l.Expenses(); len(got) != 1 || got[0].ID != e.ID {
		t.Fatalf("expected expense in session, got %+v", got)
	}
	if len(pub.events) != 1 || pub.events[0].Kind != amqp.EventExpenseAdded {
		t.Fatalf("expected expense_added event, got %+v", pub.events)
	}
}

func TestAddExpenseWriteFailureLeavesStateUnchanged(t *testing.T) {
	l, fs, _ := newTestLedger(t)
	ctx := context.Background()

	before := len(l.Expenses())
	fs.failInsertExpense = true

	_, err := l.AddExpense(ctx, core.Expense{
		Amount:   core.Money{Cents: 4000},
		Category: "Food",
		Date:     core.NewDate(2024, 5, 1),
	})
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("expected WriteError, got %v", err)
	}
	if got := len(l.Expenses()); got != before {
		t.Fatalf("expenses length changed from %d to %d on failed write", before, got)
	}
}

func TestAddLoanPaymentClampsBalance(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	loan, err := l.AddLoan(ctx, core.Loan{
		Name:           "Car loan",
		OriginalAmount: core.Money{Cents: 100000},
		CurrentBalance: core.Money{Cents: 100000},
	})
	if err != nil {
		t.Fatalf("add loan: %v", err)
	}

	if _, err := l.AddLoanPayment(ctx, loan.ID, core.Money{Cents: 30000}, ""); err != nil {
		t.Fatalf("payment 300: %v", err)
	}
	if got := l.Loans()[0].CurrentBalance.Cents; got != 70000 {
		t.Fatalf("expected balance 70000, got %d", got)
	}

	// Overpayment clamps at zero rather than going negative.
	if _, err := l.AddLoanPayment(ctx, loan.ID, core.Money{Cents: 80000}, ""); err != nil {
		t.Fatalf("payment 800: %v", err)
	}
	got := l.Loans()[0]
	if got.CurrentBalance.Cents != 0 {
		t.Fatalf("expected clamped balance 0, got %d", got.CurrentBalance.Cents)
	}
	if len(got.Payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(got.Payments))
	}
	if got.Payments[1].Amount.Cents != 80000 {
		t.Fatalf("appended payment amount mismatch: %d", got.Payments[1].Amount.Cents)
	}
}

func TestAddLoanPaymentPartialFailure(t *testing.T) {
	l, fs, pub := newTestLedger(t)
	ctx := context.Background()

	loan, err := l.AddLoan(ctx, core.Loan{
		Name:           "Car loan",
		OriginalAmount: core.Money{Cents: 100000},
		CurrentBalance: core.Money{Cents: 100000},
	})
	if err != nil {
		t.Fatalf("add loan: %v", err)
	}

	fs.failLoanBalance = true
	_, err = l.AddLoanPayment(ctx, loan.ID, core.Money{Cents: 30000}, "")

	var perr *PartialMutationError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PartialMutationError, got %v", err)
	}
	if perr.Entity != store.RepairEntityLoan || perr.EntityID != loan.ID || perr.TargetCents != 70000 {
		t.Fatalf("unexpected repair data: %+v", perr)
	}

	// Local state must not reflect the half-applied mutation.
	got := l.Loans()[0]
	if got.CurrentBalance.Cents != 100000 || len(got.Payments) != 0 {
		t.Fatalf("local state mutated on partial failure: %+v", got)
	}

	// The retry landed in the outbox and on the wire.
	pending, err := fs.PendingRepairs(ctx, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected 1 queued repair, got %d (err=%v)", len(pending), err)
	}
	if pending[0].TargetCents != 70000 {
		t.Fatalf("expected repair target 70000, got %d", pending[0].TargetCents)
	}
	if len(pub.repairs) != 1 {
		t.Fatalf("expected 1 published repair, got %d", len(pub.repairs))
	}
}

func TestAddLoanPaymentUnknownLoan(t *testing.T) {
	l, _, _ := newTestLedger(t)
	_, err := l.AddLoanPayment(context.Background(), "missing", core.Money{Cents: 100}, "")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddDebtTransactionSignedTotal(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	debt, err := l.AddDebt(ctx, "Alice")
	if err != nil {
		t.Fatalf("add debt: %v", err)
	}
	if debt.TotalOwed.Cents != 0 {
		t.Fatalf("new debt should start at zero, got %d", debt.TotalOwed.Cents)
	}

	if _, err := l.AddDebtTransaction(ctx, debt.ID, core.Money{Cents: 5000}, "lent"); err != nil {
		t.Fatalf("lend: %v", err)
	}
	if got := l.Debts()[0].TotalOwed.Cents; got != 5000 {
		t.Fatalf("expected total 5000, got %d", got)
	}

	if _, err := l.AddDebtTransaction(ctx, debt.ID, core.Money{Cents: -2000}, "received"); err != nil {
		t.Fatalf("receive: %v", err)
	}
	got := l.Debts()[0]
	if got.TotalOwed.Cents != 3000 {
		t.Fatalf("expected total 3000, got %d", got.TotalOwed.Cents)
	}
	if len(got.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got.Transactions))
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("running total invariant broken: %v", err)
	}
}

func TestAddDebtTransactionPartialFailure(t *testing.T) {
	l, fs, _ := newTestLedger(t)
	ctx := context.Background()

	debt, err := l.AddDebt(ctx, "Alice")
	if err != nil {
		t.Fatalf("add debt: %v", err)
	}

	fs.failDebtTotal = true
	_, err = l.AddDebtTransaction(ctx, debt.ID, core.Money{Cents: 5000}, "lent")

	var perr *PartialMutationError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PartialMutationError, got %v", err)
	}
	if perr.Entity != store.RepairEntityDebt || perr.TargetCents != 5000 {
		t.Fatalf("unexpected repair data: %+v", perr)
	}
	if got := l.Debts()[0]; got.TotalOwed.Cents != 0 || len(got.Transactions) != 0 {
		t.Fatalf("local state mutated on partial failure: %+v", got)
	}
}

func TestCurrentMonthData(t *testing.T) {
	l, _, _ := newTestLedger(t) // clock fixed to 2024-05-20
	ctx := context.Background()

	for _, e := range []core.Expense{
		{Amount: core.Money{Cents: 4000}, Category: "Food", Date: core.NewDate(2024, 5, 1)},
		{Amount: core.Money{Cents: 1000}, Category: "Food", Date: core.NewDate(2024, 4, 30)},
	} {
		if _, err := l.AddExpense(ctx, e); err != nil {
			t.Fatalf("add expense: %v", err)
		}
	}
	if _, err := l.AddIncome(ctx, core.Income{
		Amount: core.Money{Cents: 9000}, Source: "Salary", Date: core.NewDate(2024, 5, 15),
	}); err != nil {
		t.Fatalf("add income: %v", err)
	}

	data := l.CurrentMonthData()
	if data.Month != "2024-05" {
		t.Fatalf("expected month 2024-05, got %s", data.Month)
	}
	if len(data.Expenses) != 1 || data.TotalExpenses.Cents != 4000 {
		t.Fatalf("expected 1 expense totalling 4000, got %d/%d", len(data.Expenses), data.TotalExpenses.Cents)
	}
	if data.TotalIncome.Cents != 9000 || data.NetIncome.Cents != 5000 {
		t.Fatalf("unexpected totals: %+v", data)
	}
}

func TestReadsAreIdempotent(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.AddLoan(ctx, core.Loan{Name: "x", CurrentBalance: core.Money{Cents: 500}}); err != nil {
		t.Fatalf("add loan: %v", err)
	}
	first := l.TotalLoanBalance()
	second := l.TotalLoanBalance()
	if first != second {
		t.Fatalf("reads differ: %v vs %v", first, second)
	}
}

func TestOnIdentityChanged(t *testing.T) {
	l, fs, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.AddExpense(ctx, core.Expense{
		Amount: core.Money{Cents: 100}, Category: "Food", Date: core.NewDate(2024, 5, 1),
	}); err != nil {
		t.Fatalf("add expense: %v", err)
	}

	// Another user's data is invisible after the switch.
	seed := core.Expense{ID: "x1", Amount: core.Money{Cents: 700}, Category: "Rent", Date: core.NewDate(2024, 5, 2)}
	if err := fs.Store.InsertExpense(ctx, "u2", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := l.OnIdentityChanged(ctx, "u2"); err != nil {
		t.Fatalf("switch identity: %v", err)
	}
	got := l.Expenses()
	if len(got) != 1 || got[0].ID != "x1" {
		t.Fatalf("expected only u2's expense, got %+v", got)
	}

	// Logout clears the session and blocks mutations.
	if err := l.OnIdentityChanged(ctx, ""); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if l.UserID() != "" || len(l.Expenses()) != 0 {
		t.Fatal("expected cleared session")
	}
	if _, err := l.AddExpense(ctx, core.Expense{
		Amount: core.Money{Cents: 100}, Category: "Food", Date: core.NewDate(2024, 5, 1),
	}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}
