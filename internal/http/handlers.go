package http

import (
	"net/http"
	"time"

	"moneyflow/internal/core"
	"moneyflow/internal/ledger"
	applog "moneyflow/internal/log"
)

type createExpenseRequest struct {
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

type createIncomeRequest struct {
	Amount      string `json:"amount"`
	Source      string `json:"source"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

type createLoanRequest struct {
	Name           string   `json:"name"`
	OriginalAmount string   `json:"original_amount"`
	CurrentBalance string   `json:"current_balance"`
	InterestRate   *float64 `json:"interest_rate"`
	MonthlyPayment string   `json:"monthly_payment"`
}

type createDebtRequest struct {
	PersonName string `json:"person_name"`
}

type createLoanPaymentRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type createDebtTransactionRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// parseEntryDate parses an optional "YYYY-MM-DD" value, defaulting to today.
func parseEntryDate(s string) (core.Date, error) {
	if s == "" {
		return core.DateOf(time.Now()), nil
	}
	return core.ParseDate(s)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, _ *http.Request, l *ledger.Ledger) {
	expenses := l.Expenses()
	out := make([]expenseJSON, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseJSON(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, l *ledger.Ledger) {
	var req createExpenseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_amount", "invalid amount")
		return
	}
	date, err := parseEntryDate(req.Date)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_date", "invalid date, expected YYYY-MM-DD")
		return
	}

	e, err := l.AddExpense(r.Context(), core.Expense{
		Amount:      core.Money{Cents: cents},
		Category:    sanitizeInput(req.Category),
		Description: sanitizeInput(req.Description),
		Date:        date,
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	s.invalidateSummaries(l.UserID())
	writeJSON(w, http.StatusCreated, toExpenseJSON(e))
}

func (s *Server) handleListIncome(w http.ResponseWriter, _ *http.Request, l *ledger.Ledger) {
	income := l.Income()
	out := make([]incomeJSON, 0, len(income))
	for _, i := range income {
		out = append(out, toIncomeJSON(i))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request, l *ledger.Ledger) {
	var req createIncomeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_amount", "invalid amount")
		return
	}
	date, err := parseEntryDate(req.Date)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_date", "invalid date, expected YYYY-MM-DD")
		return
	}

	in, err := l.AddIncome(r.Context(), core.Income{
		Amount:      core.Money{Cents: cents},
		Source:      sanitizeInput(req.Source),
		Description: sanitizeInput(req.Description),
		Date:        date,
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	s.invalidateSummaries(l.UserID())
	writeJSON(w, http.StatusCreated, toIncomeJSON(in))
}

func (s *Server) handleListLoans(w http.ResponseWriter, _ *http.Request, l *ledger.Ledger) {
	loans := l.Loans()
	out := make([]loanJSON, 0, len(loans))
	for _, loan := range loans {
		out = append(out, toLoanJSON(loan))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request, l *ledger.Ledger) {
	var req createLoanRequest
	if !decodeBody(w, r, &req) {
		return
	}

	originalCents, err := core.ParseDecimalToCents(req.OriginalAmount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_amount", "invalid original amount")
		return
	}

	// The balance starts at the original amount unless stated otherwise.
	balanceCents := originalCents
	if req.CurrentBalance != "" {
		balanceCents, err = core.ParseSignedDecimalToCents(req.CurrentBalance)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid_amount", "invalid current balance")
			return
		}
	}

	loan := core.Loan{
		Name:           sanitizeInput(req.Name),
		OriginalAmount: core.Money{Cents: originalCents},
		CurrentBalance: core.Money{Cents: balanceCents},
		InterestRate:   req.InterestRate,
	}
	if req.MonthlyPayment != "" {
		monthlyCents, err := core.ParseDecimalToCents(req.MonthlyPayment)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid_amount", "invalid monthly payment")
			return
		}
		loan.MonthlyPayment = &core.Money{Cents: monthlyCents}
	}

	created, err := l.AddLoan(r.Context(), loan)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLoanJSON(created))
}

func (s *Server) handleCreateLoanPayment(w http.ResponseWriter, r *http.Request, l *ledger.Ledger) {
	loanID := r.PathValue("id")

	var req createLoanPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_amount", "invalid amount")
		return
	}

	payment, err := l.AddLoanPayment(r.Context(), loanID, core.Money{Cents: cents}, sanitizeInput(req.Description))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	s.logs.LogMutation(r.Context(), l.UserID(), applog.OpCreate, loanID, cents)

	writeJSON(w, http.StatusCreated, toLoanPaymentJSON(payment))
}

func (s *Server) handleListDebts(w http.ResponseWriter, _ *http.Request, l *ledger.Ledger) {
	debts := l.Debts()
	out := make([]debtJSON, 0, len(debts))
	for _, d := range debts {
		out = append(out, toDebtJSON(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateDebt(w http.ResponseWriter, r *http.Request, l *ledger.Ledger) {
	var req createDebtRequest
	if !decodeBody(w, r, &req) {
		return
	}

	debt, err := l.AddDebt(r.Context(), sanitizeInput(req.PersonName))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDebtJSON(debt))
}

func (s *Server) handleCreateDebtTransaction(w http.ResponseWriter, r *http.Request, l *ledger.Ledger) {
	debtID := r.PathValue("id")

	var req createDebtTransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	// Signed: positive lends money out, negative records a repayment.
	cents, err := core.ParseSignedDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_amount", "invalid amount")
		return
	}

	txn, err := l.AddDebtTransaction(r.Context(), debtID, core.Money{Cents: cents}, sanitizeInput(req.Description))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	s.logs.LogMutation(r.Context(), l.UserID(), applog.OpCreate, debtID, cents)

	writeJSON(w, http.StatusCreated, toDebtTransactionJSON(txn))
}

// handleMonthSummary aggregates expenses and income for one month. The month
// query parameter takes "YYYY-MM"; absent, the current month is used.
func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request, l *ledger.Ledger) {
	at := time.Now()
	if v := r.URL.Query().Get("month"); v != "" {
		parsed, err := time.Parse("2006-01", v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid_month", "invalid month, expected YYYY-MM")
			return
		}
		at = parsed
	}

	month := core.MonthKeyAt(at)
	key := s.summaryCacheKey(l.UserID(), month)

	if data, found := s.summaryCache.Get(key); found {
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Summary cache hit",
			applog.FieldUserID, l.UserID(), applog.FieldMonth, string(month))
		writeJSON(w, http.StatusOK, toMonthSummaryJSON(data))
		return
	}

	data := core.MonthlyDataAt(l.Expenses(), l.Income(), at)
	s.summaryCache.Set(key, data)

	writeJSON(w, http.StatusOK, toMonthSummaryJSON(data))
}

// handleDropSession discards the caller's session and cached summaries. The
// next request rebuilds the session from the store, so a client can force a
// wholesale reload after switching identities.
func (s *Server) handleDropSession(w http.ResponseWriter, r *http.Request) {
	userID := sanitizeInput(r.Header.Get(userHeader))
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "no_session", "missing "+userHeader+" header")
		return
	}

	s.sessions.drop(userID)
	s.invalidateSummaries(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBalances(w http.ResponseWriter, _ *http.Request, l *ledger.Ledger) {
	writeJSON(w, http.StatusOK, balancesJSON{
		TotalLoanBalanceCents: l.TotalLoanBalance().Cents,
		TotalDebtBalanceCents: l.TotalDebtBalance().Cents,
	})
}
