// Package memory is the in-memory store backend. It backs tests and the
// default development configuration; nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"moneyflow/internal/core"
	"moneyflow/internal/store"
)

type userData struct {
	expenses []core.Expense
	income   []core.Income
	loans    []core.Loan
	debts    []core.Debt
}

// Store keeps every user's collections in maps guarded by one mutex. It
// implements store.Store and store.RepairQueue.
type Store struct {
	mu         sync.Mutex
	users      map[string]*userData
	repairs    []store.Repair
	nextRepair int64
}

func New() *Store {
	return &Store{users: make(map[string]*userData), nextRepair: 1}
}

// Close satisfies the backend contract; there is nothing to release.
func (s *Store) Close() error { return nil }

func (s *Store) user(userID string) *userData {
	u, ok := s.users[userID]
	if !ok {
		u = &userData{}
		s.users[userID] = u
	}
	return u
}

func (s *Store) Expenses(_ context.Context, userID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Expense(nil), s.user(userID).expenses...), nil
}

func (s *Store) InsertExpense(_ context.Context, userID string, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.expenses = append(u.expenses, e)
	return nil
}

func (s *Store) Income(_ context.Context, userID string) ([]core.Income, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Income(nil), s.user(userID).income...), nil
}

func (s *Store) InsertIncome(_ context.Context, userID string, i core.Income) error {
	if err := i.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.income = append(u.income, i)
	return nil
}

func (s *Store) Loans(_ context.Context, userID string) ([]core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loans := make([]core.Loan, len(s.user(userID).loans))
	for i, l := range s.user(userID).loans {
		l.Payments = append([]core.LoanPayment(nil), l.Payments...)
		loans[i] = l
	}
	return loans, nil
}

func (s *Store) InsertLoan(_ context.Context, userID string, l core.Loan) error {
	if err := l.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.loans = append(u.loans, l)
	return nil
}

func (s *Store) InsertLoanPayment(_ context.Context, userID, loanID string, p core.LoanPayment) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	for i := range u.loans {
		if u.loans[i].ID == loanID {
			u.loans[i].Payments = append(u.loans[i].Payments, p)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) UpdateLoanBalance(_ context.Context, userID, loanID string, balance core.Money) error {
	if balance.Cents < 0 {
		return core.ErrNegativeBalance
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	for i := range u.loans {
		if u.loans[i].ID == loanID {
			u.loans[i].CurrentBalance = balance
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) Debts(_ context.Context, userID string) ([]core.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	debts := make([]core.Debt, len(s.user(userID).debts))
	for i, d := range s.user(userID).debts {
		d.Transactions = append([]core.DebtTransaction(nil), d.Transactions...)
		debts[i] = d
	}
	return debts, nil
}

func (s *Store) InsertDebt(_ context.Context, userID string, d core.Debt) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.debts = append(u.debts, d)
	return nil
}

func (s *Store) InsertDebtTransaction(_ context.Context, userID, debtID string, t core.DebtTransaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	for i := range u.debts {
		if u.debts[i].ID == debtID {
			u.debts[i].Transactions = append(u.debts[i].Transactions, t)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) UpdateDebtTotal(_ context.Context, userID, debtID string, total core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	for i := range u.debts {
		if u.debts[i].ID == debtID {
			u.debts[i].TotalOwed = total
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) EnqueueRepair(_ context.Context, r store.Repair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextRepair
	s.nextRepair++
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.repairs = append(s.repairs, r)
	return nil
}

func (s *Store) PendingRepairs(_ context.Context, limit int) ([]store.Repair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Repair, 0, limit)
	for _, r := range s.repairs {
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) MarkRepairDone(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.repairs {
		if r.ID == id {
			s.repairs = append(s.repairs[:i], s.repairs[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) MarkRepairFailed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.repairs {
		if s.repairs[i].ID == id {
			s.repairs[i].Attempts++
			return nil
		}
	}
	return store.ErrNotFound
}
