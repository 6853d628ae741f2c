// Package httptransport is the thin HTTP layer. Handlers delegate to the
// executor and collaborator services without embedding ledger logic, so
// transport concerns stay isolated.
package httptransport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tranchebook/internal/documents"
	"tranchebook/internal/executor"
	"tranchebook/internal/platform/metrics"
	"tranchebook/pkg/domain"
	"tranchebook/pkg/platform/middleware/admin"
	"tranchebook/pkg/platform/middleware/caller"
	"tranchebook/pkg/platform/middleware/metadata"
	request "tranchebook/pkg/platform/middleware/request"
	"tranchebook/pkg/platform/middleware/requesttime"
)

// Ledger is the read surface the transport exposes directly; mutations all
// go through the executor.
type Ledger interface {
	BalanceOf(ctx context.Context, holder domain.Address) (uint64, error)
	BalanceOfTranche(ctx context.Context, holder domain.Address, tranche domain.Tranche) (uint64, error)
	TotalSupply(ctx context.Context) (uint64, error)
	TranchesOf(ctx context.Context, holder domain.Address) ([]domain.Tranche, error)
}

// Operators is the authorization query surface.
type Operators interface {
	IsOperatorFor(ctx context.Context, op, holder domain.Address) (bool, error)
	IsOperatorForTranche(ctx context.Context, tranche domain.Tranche, op, holder domain.Address) (bool, error)
	DefaultOperators(ctx context.Context) ([]domain.Address, error)
	DefaultOperatorsByTranche(ctx context.Context, tranche domain.Tranche) ([]domain.Address, error)
}

// Handler handles all ledger endpoints.
type Handler struct {
	logger     *slog.Logger
	exec       *executor.Executor
	ledger     Ledger
	operators  Operators
	docs       *documents.Service
	metrics    *metrics.Metrics
	adminToken string
}

// New creates the HTTP handler. metrics and adminToken may be zero; an empty
// adminToken leaves issuance gated by the controller check alone.
func New(
	exec *executor.Executor,
	ledger Ledger,
	operators Operators,
	docs *documents.Service,
	logger *slog.Logger,
	m *metrics.Metrics,
	adminToken string,
) *Handler {
	return &Handler{
		logger:     logger,
		exec:       exec,
		ledger:     ledger,
		operators:  operators,
		docs:       docs,
		metrics:    m,
		adminToken: adminToken,
	}
}

// NewRouter wires all endpoints. Reads are open; mutations require a caller
// identity; issuance additionally accepts an admin token gate when one is
// configured.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(h.instrument)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// Read surface.
		r.Get("/supply", h.handleSupply)
		r.Get("/balances/{account}", h.handleBalance)
		r.Get("/balances/{account}/tranches", h.handleTranches)
		r.Get("/balances/{account}/tranches/{tranche}", h.handleTrancheBalance)
		r.Get("/accounts/{account}/default-tranches", h.handleGetDefaultTranches)
		r.Get("/issuances/issuable", h.handleIssuable)
		r.Get("/operators/check", h.handleOperatorCheck)
		r.Get("/operators/defaults", h.handleDefaultOperators)
		r.Get("/operators/defaults/{tranche}", h.handleDefaultOperatorsByTranche)
		r.Get("/documents/{name}", h.handleGetDocument)
		r.Post("/transfers/check", h.handleCheckTransfer)

		// Mutations need a verified caller.
		r.Group(func(r chi.Router) {
			r.Use(caller.RequireCaller(h.logger))

			r.Post("/transfers", h.handleTransfer)
			r.Post("/transfers/simple", h.handleSimpleTransfer)
			r.Post("/redemptions", h.handleRedeem)
			r.Put("/accounts/{account}/default-tranches", h.handleSetDefaultTranches)
			r.Post("/operators", h.handleAuthorizeOperator)
			r.Delete("/operators/{operator}", h.handleRevokeOperator)
			r.Post("/operators/tranche", h.handleAuthorizeOperatorByTranche)
			r.Delete("/operators/tranche/{tranche}/{operator}", h.handleRevokeOperatorByTranche)
			r.Put("/documents/{name}", h.handleSetDocument)

			r.Group(func(r chi.Router) {
				if h.adminToken != "" {
					r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
				}
				r.Post("/issuances", h.handleIssue)
				r.Post("/issuances/finalize", h.handleFinalizeIssuance)
			})
		})
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// instrument logs each request and feeds the transport metrics, labeled by
// chi route pattern so per-account paths do not explode cardinality.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		h.metrics.ObserveRequest(route, fmt.Sprintf("%d", ww.Status()), elapsed.Seconds())
		h.logger.InfoContext(r.Context(), "http request",
			"request_id", request.GetRequestID(r.Context()),
			"method", r.Method,
			"route", route,
			"status", ww.Status(),
			"duration_ms", elapsed.Milliseconds(),
			"client_ip", metadata.ClientIPFromRequest(r),
		)
	})
}
