package ledger

import (
	"errors"
	"fmt"
)

// Collection names one of the four user-owned collections.
type Collection string

const (
	CollectionExpenses Collection = "expenses"
	CollectionIncome   Collection = "income"
	CollectionLoans    Collection = "loans"
	CollectionDebts    Collection = "debts"
)

// ErrNoSession is returned when an operation runs before any user has been
// loaded.
var ErrNoSession = errors.New("no active user session")

// LoadError reports a failed fetch for one collection. The collection falls
// back to empty; the other collections are unaffected.
type LoadError struct {
	Collection Collection
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Collection, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// WriteError reports an aborted mutation. Local state is unchanged.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// PartialMutationError reports that the first write of a two-phase mutation
// landed but the balance update did not: the remote store now holds a child
// row whose effect is missing from the parent balance. It carries everything
// needed to retry the second write, and the ledger has already enqueued that
// retry where an outbox is available.
type PartialMutationError struct {
	Entity      string // "loan" or "debt"
	EntityID    string
	UserID      string
	TargetCents int64
	Err         error
}

func (e *PartialMutationError) Error() string {
	return fmt.Sprintf("%s %s: balance update failed after recording entry: %v",
		e.Entity, e.EntityID, e.Err)
}

func (e *PartialMutationError) Unwrap() error { return e.Err }
