package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tranchebook/pkg/domain"
	dErrors "tranchebook/pkg/domain-errors"
	"tranchebook/pkg/platform/httputil"
	"tranchebook/pkg/platform/middleware/caller"
)

type authorizeOperatorRequest struct {
	Operator string `json:"operator"`
	Tranche  string `json:"tranche,omitempty"`
}

type operatorCheckResponse struct {
	Authorized bool `json:"authorized"`
}

type defaultOperatorsResponse struct {
	Operators []string `json:"operators"`
}

func (h *Handler) handleAuthorizeOperator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[authorizeOperatorRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	op, err := domain.ParseAddress(req.Operator)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid operator", err))
		return
	}

	if err := h.exec.AuthorizeOperator(ctx, caller.GetCaller(ctx), op); err != nil {
		h.writeServiceError(w, r, "authorize operator", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokeOperator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	op, err := domain.ParseAddress(chi.URLParam(r, "operator"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid operator", err))
		return
	}

	if err := h.exec.RevokeOperator(ctx, caller.GetCaller(ctx), op); err != nil {
		h.writeServiceError(w, r, "revoke operator", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAuthorizeOperatorByTranche(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[authorizeOperatorRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	op, err := domain.ParseAddress(req.Operator)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid operator", err))
		return
	}
	tranche, err := domain.ParseTranche(req.Tranche)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid tranche", err))
		return
	}

	if err := h.exec.AuthorizeOperatorByTranche(ctx, caller.GetCaller(ctx), tranche, op); err != nil {
		h.writeServiceError(w, r, "authorize tranche operator", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokeOperatorByTranche(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tranche, err := domain.ParseTranche(chi.URLParam(r, "tranche"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid tranche", err))
		return
	}
	op, err := domain.ParseAddress(chi.URLParam(r, "operator"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid operator", err))
		return
	}

	if err := h.exec.RevokeOperatorByTranche(ctx, caller.GetCaller(ctx), tranche, op); err != nil {
		h.writeServiceError(w, r, "revoke tranche operator", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOperatorCheck answers authorization queries. With a tranche query
// parameter it checks tranche-scoped standing; without one it checks
// account-wide standing.
func (h *Handler) handleOperatorCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	op, err := domain.ParseAddress(r.URL.Query().Get("operator"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid operator", err))
		return
	}
	holder, err := domain.ParseAddress(r.URL.Query().Get("holder"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid holder", err))
		return
	}

	var authorized bool
	if raw := r.URL.Query().Get("tranche"); raw != "" {
		tranche, err := domain.ParseTranche(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid tranche", err))
			return
		}
		authorized, err = h.operators.IsOperatorForTranche(ctx, tranche, op, holder)
		if err != nil {
			h.writeServiceError(w, r, "check tranche operator", err)
			return
		}
	} else {
		authorized, err = h.operators.IsOperatorFor(ctx, op, holder)
		if err != nil {
			h.writeServiceError(w, r, "check operator", err)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, operatorCheckResponse{Authorized: authorized})
}

func (h *Handler) handleDefaultOperators(w http.ResponseWriter, r *http.Request) {
	ops, err := h.operators.DefaultOperators(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list default operators", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, defaultOperatorsResponse{Operators: addressNames(ops)})
}

func (h *Handler) handleDefaultOperatorsByTranche(w http.ResponseWriter, r *http.Request) {
	tranche, err := domain.ParseTranche(chi.URLParam(r, "tranche"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid tranche", err))
		return
	}
	ops, err := h.operators.DefaultOperatorsByTranche(r.Context(), tranche)
	if err != nil {
		h.writeServiceError(w, r, "list tranche default operators", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, defaultOperatorsResponse{Operators: addressNames(ops)})
}

func addressNames(addrs []domain.Address) []string {
	names := make([]string, 0, len(addrs))
	for _, a := range addrs {
		names = append(names, a.String())
	}
	return names
}
