package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	// MonthKey identifies a calendar month as "YYYY-MM".
	MonthKey string

	// Date carries calendar-day semantics; the time-of-day part is always
	// midnight UTC.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Expense struct {
		ID          string
		Amount      Money
		Category    string
		Description string
		Date        Date
	}

	Income struct {
		ID          string
		Amount      Money
		Source      string
		Description string
		Date        Date
	}

	// LoanPayment is an append-only child of a Loan. Its amount is always
	// positive and decreases the loan balance.
	LoanPayment struct {
		ID          string
		Amount      Money
		Date        Date
		Description string
	}

	Loan struct {
		ID             string
		Name           string
		OriginalAmount Money
		CurrentBalance Money // never negative
		InterestRate   *float64
		MonthlyPayment *Money
		Payments       []LoanPayment
	}

	// DebtTransaction is an append-only child of a Debt. A positive amount is
	// money lent (raises TotalOwed), a negative amount is a payment received.
	DebtTransaction struct {
		ID          string
		Amount      Money
		Date        Date
		Description string
	}

	Debt struct {
		ID           string
		PersonName   string
		TotalOwed    Money // running sum of transaction amounts, signed
		Transactions []DebtTransaction
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDate       = errors.New("invalid date")
	ErrEmptyCategory     = errors.New("empty category")
	ErrEmptySource       = errors.New("empty source")
	ErrEmptyName         = errors.New("empty name")
	ErrEmptyPersonName   = errors.New("empty person name")
	ErrNegativeBalance   = errors.New("negative balance")
	ErrTotalOwedMismatch = errors.New("total owed does not match transaction sum")
)

const maxDescriptionLen = 200

// NewDate builds a Date from year, month and day at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), int(u.Month()), u.Day())
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t.UTC()}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String renders the date as "YYYY-MM-DD".
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// MonthKey returns the "YYYY-MM" key of the date's month.
func (d Date) MonthKey() MonthKey {
	return MonthKey(d.Format("2006-01"))
}

// MonthKeyAt returns the month key for the wall-clock instant t.
func MonthKeyAt(t time.Time) MonthKey {
	return MonthKey(t.UTC().Format("2006-01"))
}

func (k MonthKey) Validate() error {
	if _, err := time.Parse("2006-01", string(k)); err != nil {
		return fmt.Errorf("invalid month key %q", string(k))
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func validDescription(s string) error {
	if len(s) > maxDescriptionLen {
		return fmt.Errorf("description too long (max %d characters)", maxDescriptionLen)
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if err := validDescription(e.Description); err != nil {
		return err
	}
	return e.Date.Validate()
}

func (i Income) Validate() error {
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(i.Source) == "" {
		return ErrEmptySource
	}
	if err := validDescription(i.Description); err != nil {
		return err
	}
	return i.Date.Validate()
}

func (p LoanPayment) Validate() error {
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if err := validDescription(p.Description); err != nil {
		return err
	}
	return p.Date.Validate()
}

func (l Loan) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return ErrEmptyName
	}
	if l.OriginalAmount.Cents < 0 {
		return ErrInvalidAmount
	}
	if l.CurrentBalance.Cents < 0 {
		return ErrNegativeBalance
	}
	if l.MonthlyPayment != nil && l.MonthlyPayment.Cents <= 0 {
		return ErrInvalidAmount
	}
	for _, p := range l.Payments {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("payment %s: %w", p.ID, err)
		}
	}
	return nil
}

func (t DebtTransaction) Validate() error {
	if t.Amount.Cents == 0 {
		return ErrInvalidAmount
	}
	if err := validDescription(t.Description); err != nil {
		return err
	}
	return t.Date.Validate()
}

func (d Debt) Validate() error {
	if strings.TrimSpace(d.PersonName) == "" {
		return ErrEmptyPersonName
	}
	var sum int64
	for _, t := range d.Transactions {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		sum += t.Amount.Cents
	}
	if sum != d.TotalOwed.Cents {
		return fmt.Errorf("%w: have %d, transactions sum to %d",
			ErrTotalOwedMismatch, d.TotalOwed.Cents, sum)
	}
	return nil
}
