package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tranchebook/pkg/domain"
	dErrors "tranchebook/pkg/domain-errors"
	"tranchebook/pkg/platform/httputil"
	"tranchebook/pkg/platform/middleware/caller"
	"tranchebook/pkg/requestcontext"
)

type balanceResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

type trancheBalance struct {
	Tranche string `json:"tranche"`
	Balance uint64 `json:"balance"`
}

type tranchesResponse struct {
	Account  string           `json:"account"`
	Tranches []trancheBalance `json:"tranches"`
}

type supplyResponse struct {
	TotalSupply uint64 `json:"total_supply"`
}

type defaultTranchesRequest struct {
	DefaultTranches []string `json:"default_tranches"`
}

type defaultTranchesResponse struct {
	Account         string   `json:"account"`
	DefaultTranches []string `json:"default_tranches"`
}

func (h *Handler) handleSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := h.ledger.TotalSupply(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "read total supply", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, supplyResponse{TotalSupply: supply})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := domain.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid account", err))
		return
	}

	balance, err := h.ledger.BalanceOf(r.Context(), account)
	if err != nil {
		h.writeServiceError(w, r, "read balance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balanceResponse{Account: account.String(), Balance: balance})
}

func (h *Handler) handleTranches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := domain.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid account", err))
		return
	}

	tranches, err := h.ledger.TranchesOf(ctx, account)
	if err != nil {
		h.writeServiceError(w, r, "read tranches", err)
		return
	}

	resp := tranchesResponse{Account: account.String(), Tranches: []trancheBalance{}}
	for _, t := range tranches {
		balance, err := h.ledger.BalanceOfTranche(ctx, account, t)
		if err != nil {
			h.writeServiceError(w, r, "read tranche balance", err)
			return
		}
		resp.Tranches = append(resp.Tranches, trancheBalance{Tranche: t.String(), Balance: balance})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleTrancheBalance(w http.ResponseWriter, r *http.Request) {
	account, err := domain.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid account", err))
		return
	}
	tranche, err := domain.ParseTranche(chi.URLParam(r, "tranche"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid tranche", err))
		return
	}

	balance, err := h.ledger.BalanceOfTranche(r.Context(), account, tranche)
	if err != nil {
		h.writeServiceError(w, r, "read tranche balance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, trancheBalance{Tranche: tranche.String(), Balance: balance})
}

func (h *Handler) handleGetDefaultTranches(w http.ResponseWriter, r *http.Request) {
	account, err := domain.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid account", err))
		return
	}

	seq, err := h.exec.GetDefaultTranches(r.Context(), account)
	if err != nil {
		h.writeServiceError(w, r, "read default tranches", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, defaultTranchesResponse{
		Account:         account.String(),
		DefaultTranches: trancheNames(seq),
	})
}

func (h *Handler) handleSetDefaultTranches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := domain.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid account", err))
		return
	}

	req, err := httputil.Decode[defaultTranchesRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	seq, err := parseTranches(req.DefaultTranches)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.exec.SetDefaultTranches(ctx, caller.GetCaller(ctx), account, seq); err != nil {
		h.writeServiceError(w, r, "set default tranches", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError logs and translates an error bubbling out of a service
// call. Coded domain errors pass through; anything else maps to an opaque
// internal error.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	ctx := r.Context()
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "failed to "+action,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "internal error"))
		return
	}
	h.logger.WarnContext(ctx, "rejected request to "+action,
		"request_id", requestcontext.RequestID(ctx),
		"code", string(code),
		"error", err.Error(),
	)
	httputil.WriteError(w, err)
}

func trancheNames(seq []domain.Tranche) []string {
	names := make([]string, 0, len(seq))
	for _, t := range seq {
		names = append(names, t.String())
	}
	return names
}

func parseTranches(names []string) ([]domain.Tranche, error) {
	seq := make([]domain.Tranche, 0, len(names))
	for _, name := range names {
		t, err := domain.ParseTranche(name)
		if err != nil {
			return nil, dErrors.Wrap(dErrors.CodeBadRequest, "invalid tranche "+name, err)
		}
		seq = append(seq, t)
	}
	return seq, nil
}
