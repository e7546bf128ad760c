// Package httpapi wires the HTTP surface of the ledger service. Handlers stay
// thin and delegate business rules to the service layer.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/corefin/ledger/internal/config"
	"github.com/corefin/ledger/internal/service/account"
	"github.com/corefin/ledger/internal/service/allocation"
	"github.com/corefin/ledger/internal/service/balance"
	"github.com/corefin/ledger/internal/service/journal"
	"github.com/corefin/ledger/internal/service/period"
	"github.com/corefin/ledger/internal/service/posting"
	"github.com/corefin/ledger/internal/service/recurring"
	"github.com/corefin/ledger/internal/service/report"
)

// Readier reports backing-store connectivity for the readiness probe.
type Readier interface {
	Ready(ctx context.Context) error
}

// Deps carries everything the server routes to.
type Deps struct {
	Accounts    account.Service
	Periods     period.Service
	Entries     journal.Service
	Posting     posting.Service
	Reports     report.Service
	Recurring   recurring.Service
	Allocations allocation.Service
	// RebuildStore backs the balance-rebuild admin endpoint.
	RebuildStore balance.RebuildStore
	// Readier may be nil; readyz then always succeeds.
	Readier Readier
}

// Server wires handlers and middleware using chi.
type Server struct {
	deps      Deps
	projector *balance.Projector
	cfg       config.Config
	log       *slog.Logger
	rt        *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
func New(deps Deps, cfg config.Config, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)

	s := &Server{
		deps:      deps,
		projector: balance.NewProjector(cfg),
		cfg:       cfg,
		log:       logger,
		rt:        r,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints.
func (s *Server) routes() {
	// Accounts
	s.rt.With(s.validateCreateAccount()).Post("/v1/accounts", s.createAccount)
	s.rt.Get("/v1/accounts", s.listAccounts)
	s.rt.Get("/v1/accounts/tree", s.accountTree)
	s.rt.Get("/v1/accounts/{id}", s.getAccount)
	s.rt.Patch("/v1/accounts/{id}", s.updateAccount)
	s.rt.Delete("/v1/accounts/{id}", s.deleteAccount)
	s.rt.Get("/v1/accounts/{id}/balance", s.accountBalance)

	// Periods
	s.rt.Post("/v1/periods", s.openPeriod)
	s.rt.Get("/v1/periods", s.listPeriods)
	s.rt.Get("/v1/periods/resolve", s.resolvePeriod)
	s.rt.Post("/v1/periods/close", s.closePeriod)
	s.rt.Post("/v1/periods/{id}/reopen", s.reopenPeriod)

	// Journal entries and lifecycle
	s.rt.With(s.validateCreateEntry()).Post("/v1/entries", s.createEntry)
	s.rt.Get("/v1/entries", s.searchEntries)
	s.rt.Get("/v1/entries/{id}", s.getEntry)
	s.rt.Patch("/v1/entries/{id}", s.updateEntry)
	s.rt.Delete("/v1/entries/{id}", s.deleteEntry)
	s.rt.Post("/v1/entries/{id}/submit", s.submitEntry)
	s.rt.Post("/v1/entries/{id}/approve", s.approveEntry)
	s.rt.Post("/v1/entries/{id}/reject", s.rejectEntry)
	s.rt.Post("/v1/entries/{id}/post", s.postEntry)
	s.rt.Post("/v1/entries/{id}/reverse", s.reverseEntry)

	// Statements
	s.rt.Get("/v1/reports/trial-balance", s.trialBalance)
	s.rt.Get("/v1/reports/balance-sheet", s.balanceSheet)
	s.rt.Get("/v1/reports/income-statement", s.incomeStatement)
	s.rt.Get("/v1/reports/cash-flow", s.cashFlow)

	// Recurring templates
	s.rt.Post("/v1/recurring", s.createTemplate)
	s.rt.Get("/v1/recurring", s.listTemplates)
	s.rt.Get("/v1/recurring/due", s.dueTemplates)
	s.rt.Post("/v1/recurring/run", s.runRecurring)
	s.rt.Get("/v1/recurring/{id}", s.getTemplate)
	s.rt.Patch("/v1/recurring/{id}", s.updateTemplate)
	s.rt.Post("/v1/recurring/{id}/pause", s.pauseTemplate)
	s.rt.Post("/v1/recurring/{id}/resume", s.resumeTemplate)
	s.rt.Post("/v1/recurring/{id}/cancel", s.cancelTemplate)

	// Allocation rules
	s.rt.Post("/v1/allocations", s.createRule)
	s.rt.Get("/v1/allocations", s.listRules)
	s.rt.Get("/v1/allocations/{id}", s.getRule)
	s.rt.Patch("/v1/allocations/{id}", s.updateRule)
	s.rt.Post("/v1/allocations/{id}/apply", s.applyRule)

	// Admin
	s.rt.Post("/v1/admin/rebuild-balances", s.rebuildBalances)

	// Operational endpoints (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Method(http.MethodGet, "/metrics", metricsHandler())
}
