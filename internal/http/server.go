// Package http exposes the ledger over a JSON API. Identity arrives in the
// X-User-ID header; each user gets a session-scoped ledger that is created
// and loaded on first sight of their id.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"moneyflow/internal/cache"
	"moneyflow/internal/core"
	"moneyflow/internal/ledger"
	applog "moneyflow/internal/log"
	"moneyflow/internal/middleware/ratelimit"
	"moneyflow/internal/middleware/security"
	"moneyflow/internal/middleware/trace"
	"moneyflow/internal/store"
)

const (
	summaryCacheSize = 100
	summaryCacheTTL  = 5 * time.Minute
	cacheSweepEvery  = 10 * time.Minute
)

type Server struct {
	http.Server

	sessions *sessionRegistry

	// Cached month summaries, keyed "<user>:<YYYY-MM>". Mutations drop all
	// of the user's entries.
	summaryCache *cache.LRUCache[core.MonthlyData]
	cacheManager *cache.Manager

	limiter      *ratelimit.Limiter
	tracer       *trace.Middleware
	logs         *applog.StructuredLogger
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, st store.Store, repairs store.RepairQueue, events ledger.Publisher) *Server {
	mux := http.NewServeMux()

	httpLog := applog.New(applog.Config{
		Handler:   slog.Default().Handler(),
		Component: applog.ComponentHTTP,
	})

	s := &Server{
		sessions:     newSessionRegistry(st, repairs, events),
		summaryCache: cache.NewLRUCache[core.MonthlyData](summaryCacheSize, summaryCacheTTL),
		cacheManager: cache.NewManager(),
		limiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		tracer:       trace.NewMiddleware(extractClientIP),
		logs:         applog.NewStructuredLogger(httpLog),
	}

	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(cacheSweepEvery)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/expenses", s.withUser(s.handleListExpenses))
	mux.HandleFunc("POST /api/expenses", s.withUser(s.handleCreateExpense))

	mux.HandleFunc("GET /api/income", s.withUser(s.handleListIncome))
	mux.HandleFunc("POST /api/income", s.withUser(s.handleCreateIncome))

	mux.HandleFunc("GET /api/loans", s.withUser(s.handleListLoans))
	mux.HandleFunc("POST /api/loans", s.withUser(s.handleCreateLoan))
	mux.HandleFunc("POST /api/loans/{id}/payments", s.withUser(s.handleCreateLoanPayment))

	mux.HandleFunc("GET /api/debts", s.withUser(s.handleListDebts))
	mux.HandleFunc("POST /api/debts", s.withUser(s.handleCreateDebt))
	mux.HandleFunc("POST /api/debts/{id}/transactions", s.withUser(s.handleCreateDebtTransaction))

	mux.HandleFunc("GET /api/summary/month", s.withUser(s.handleMonthSummary))
	mux.HandleFunc("GET /api/summary/balances", s.withUser(s.handleBalances))

	mux.HandleFunc("DELETE /api/session", s.handleDropSession)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	requestLog := applog.Middleware(httpLog)
	requestID := applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})

	s.Server = http.Server{
		Addr:    addr,
		Handler: headers.Middleware(s.tracer.Middleware(requestLog(requestID(s.limitMutations(mux))))),
	}

	return s
}

// limitMutations rate-limits write requests only; reads stay unthrottled.
func (s *Server) limitMutations(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(extractClientIP, s.rejectRateLimited)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		applog.FieldClientIP, extractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "rate_limited",
		"rate limit exceeded, try again later")
}

// withUser resolves the caller's session from the identity header.
func (s *Server) withUser(next func(http.ResponseWriter, *http.Request, *ledger.Ledger)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := sanitizeInput(r.Header.Get(userHeader))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "no_session", "missing "+userHeader+" header")
			return
		}

		l, err := s.sessions.get(r.Context(), userID)
		if err != nil {
			s.writeLedgerError(w, r, err)
			return
		}
		next(w, r, l)
	}
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		m := s.tracer.GetMetrics()
		slog.Info("HTTP server shutting down",
			applog.FieldOperation, applog.OpShutdown,
			"total_requests", m.TotalRequests,
			"avg_response_us", m.AverageResponseTime)

		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) summaryCacheKey(userID string, month core.MonthKey) string {
	return userID + ":" + string(month)
}

func (s *Server) invalidateSummaries(userID string) {
	s.summaryCache.DeletePrefix(userID + ":")
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
