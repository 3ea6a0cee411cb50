package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"moneyflow/internal/ledger"
	applog "moneyflow/internal/log"
	"moneyflow/internal/store"
)

// userHeader carries the caller identity. The API trusts the header; real
// authentication happens at the edge proxy.
const userHeader = "X-User-ID"

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", applog.FieldError, err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeLedgerError maps ledger and store errors onto HTTP statuses. Partial
// mutation failures get their own code so clients can tell "nothing happened"
// from "the entry landed but the balance is stale until repaired".
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *ledger.PartialMutationError
	if errors.As(err, &perr) {
		s.logs.LogError(r.Context(), "Balance update failed after entry write", err,
			applog.ComponentLedger, applog.OpRepair,
			applog.NewFields().WithUser(perr.UserID).WithMutation(perr.EntityID, perr.TargetCents))
		writeError(w, http.StatusInternalServerError, "partial_mutation_failure",
			"entry recorded but balance update failed; a repair has been queued")
		return
	}

	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	if errors.Is(err, ledger.ErrNoSession) {
		writeError(w, http.StatusUnauthorized, "no_session", "missing user identity")
		return
	}

	var werr *ledger.WriteError
	if errors.As(err, &werr) {
		s.logs.LogError(r.Context(), "Storage write failed", err,
			applog.ComponentStore, applog.OpCreate, applog.NewFields())
		writeError(w, http.StatusBadGateway, "write_failure", "storage write failed; nothing was recorded")
		return
	}

	// Anything else is a validation failure from the domain types.
	writeError(w, http.StatusUnprocessableEntity, "validation_failure", err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return false
	}
	return true
}

// extractClientIP resolves the client address, preferring proxy headers.
func extractClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if i := strings.IndexByte(ip, ','); i > 0 {
			return strings.TrimSpace(ip[:i])
		}
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// sanitizeInput removes control characters and trims whitespace
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
