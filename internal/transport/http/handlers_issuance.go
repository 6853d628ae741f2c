package httptransport

import (
	"net/http"

	"tranchebook/internal/executor"
	"tranchebook/pkg/domain"
	dErrors "tranchebook/pkg/domain-errors"
	"tranchebook/pkg/platform/httputil"
	"tranchebook/pkg/platform/middleware/caller"
)

type issueRequest struct {
	Holder  string `json:"holder"`
	Tranche string `json:"tranche"`
	Amount  uint64 `json:"amount"`
	Data    string `json:"data,omitempty"`
}

type issuableResponse struct {
	Issuable bool `json:"issuable"`
}

type redeemRequest struct {
	Holder       string `json:"holder,omitempty"`
	Tranche      string `json:"tranche"`
	Amount       uint64 `json:"amount"`
	Data         string `json:"data,omitempty"`
	OperatorData string `json:"operator_data,omitempty"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[issueRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p := executor.IssueParams{Amount: req.Amount, Data: []byte(req.Data)}
	if p.Holder, err = domain.ParseAddress(req.Holder); err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid holder", err))
		return
	}
	if p.Tranche, err = domain.ParseTranche(req.Tranche); err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid tranche", err))
		return
	}

	if err := h.exec.Issue(ctx, caller.GetCaller(ctx), p); err != nil {
		h.writeServiceError(w, r, "issue", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFinalizeIssuance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.exec.FinalizeIssuance(ctx, caller.GetCaller(ctx)); err != nil {
		h.writeServiceError(w, r, "finalize issuance", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleIssuable(w http.ResponseWriter, r *http.Request) {
	issuable, err := h.exec.Issuable(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "read issuable flag", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, issuableResponse{Issuable: issuable})
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[redeemRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p := executor.RedeemParams{
		Amount:       req.Amount,
		Data:         []byte(req.Data),
		OperatorData: []byte(req.OperatorData),
	}
	if req.Holder != "" {
		if p.Holder, err = domain.ParseAddress(req.Holder); err != nil {
			httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid holder", err))
			return
		}
	}
	if p.Tranche, err = domain.ParseTranche(req.Tranche); err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid tranche", err))
		return
	}

	if err := h.exec.Redeem(ctx, caller.GetCaller(ctx), p); err != nil {
		h.writeServiceError(w, r, "redeem", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
