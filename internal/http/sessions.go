package http

import (
	"context"
	"sync"

	"moneyflow/internal/ledger"
	applog "moneyflow/internal/log"
	"moneyflow/internal/store"
)

// sessionRegistry hands out one ledger per user id. The first request for a
// user loads their collections; later requests reuse the same session so
// mutations and reads see one consistent in-memory view.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*ledger.Ledger

	store   store.Store
	repairs store.RepairQueue
	events  ledger.Publisher
}

func newSessionRegistry(s store.Store, repairs store.RepairQueue, events ledger.Publisher) *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[string]*ledger.Ledger),
		store:    s,
		repairs:  repairs,
		events:   events,
	}
}

// get returns the session for userID, creating and loading it on first use.
// Per-collection load failures fall back to empty and are not fatal, so a
// session is always returned for a non-empty user id.
func (r *sessionRegistry) get(ctx context.Context, userID string) (*ledger.Ledger, error) {
	if userID == "" {
		return nil, ledger.ErrNoSession
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.sessions[userID]; ok {
		return l, nil
	}

	l := ledger.New(r.store, r.repairs, r.events)
	if err := l.LoadAll(ctx, userID); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Session loaded with partial data",
			applog.FieldUserID, userID,
			applog.FieldOperation, applog.OpLoad,
			applog.FieldError, err)
	}
	r.sessions[userID] = l
	return l, nil
}

// drop removes a user's session; the next request rebuilds it from the store.
func (r *sessionRegistry) drop(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}
