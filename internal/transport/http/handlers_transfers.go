package httptransport

import (
	"fmt"
	"net/http"

	"tranchebook/internal/executor"
	"tranchebook/internal/validation"
	"tranchebook/pkg/domain"
	dErrors "tranchebook/pkg/domain-errors"
	"tranchebook/pkg/platform/httputil"
	"tranchebook/pkg/platform/middleware/caller"
)

type transferLeg struct {
	From         string `json:"from,omitempty"`
	To           string `json:"to"`
	Tranche      string `json:"tranche"`
	Amount       uint64 `json:"amount"`
	Data         string `json:"data,omitempty"`
	OperatorData string `json:"operator_data,omitempty"`
}

type transferRequest struct {
	Legs []transferLeg `json:"legs"`
}

type transferResponse struct {
	Destinations []string `json:"destinations"`
}

type simpleTransferRequest struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
	Data   string `json:"data,omitempty"`
}

type simpleTransferLeg struct {
	Tranche string `json:"tranche"`
	Amount  uint64 `json:"amount"`
}

type simpleTransferResponse struct {
	Legs []simpleTransferLeg `json:"legs"`
}

type checkRequest struct {
	Checks []transferLeg `json:"checks"`
}

type verdictResponse struct {
	Allowed     bool   `json:"allowed"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	Detail      string `json:"detail,omitempty"`
	Destination string `json:"destination,omitempty"`
}

type checkResponse struct {
	Verdicts []verdictResponse `json:"verdicts"`
}

// handleTransfer executes a tranche-aware send. A single leg goes through
// the plain send path; multiple legs execute atomically as a batch.
func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[transferRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(req.Legs) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "at least one leg required"))
		return
	}

	params := make([]executor.SendParams, 0, len(req.Legs))
	for i, leg := range req.Legs {
		p, err := sendParams(leg)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, fmt.Sprintf("leg %d", i), err))
			return
		}
		params = append(params, p)
	}

	who := caller.GetCaller(ctx)
	var destinations []domain.Tranche
	if len(params) == 1 {
		dest, err := h.exec.Send(ctx, who, params[0])
		if err != nil {
			h.writeServiceError(w, r, "execute transfer", err)
			return
		}
		destinations = []domain.Tranche{dest}
	} else {
		var err error
		destinations, err = h.exec.SendMulti(ctx, who, params)
		if err != nil {
			h.writeServiceError(w, r, "execute transfer batch", err)
			return
		}
	}

	httputil.WriteJSON(w, http.StatusOK, transferResponse{Destinations: trancheNames(destinations)})
}

// handleSimpleTransfer executes a tranche-unaware send resolved against the
// sender's default tranche sequence.
func (h *Handler) handleSimpleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[simpleTransferRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p := executor.TransferParams{Amount: req.Amount, Data: []byte(req.Data)}
	if p.To, err = domain.ParseAddress(req.To); err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid to address", err))
		return
	}
	if req.From != "" {
		if p.From, err = domain.ParseAddress(req.From); err != nil {
			httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid from address", err))
			return
		}
	}

	legs, err := h.exec.Transfer(ctx, caller.GetCaller(ctx), p)
	if err != nil {
		h.writeServiceError(w, r, "execute simple transfer", err)
		return
	}

	resp := simpleTransferResponse{Legs: make([]simpleTransferLeg, 0, len(legs))}
	for _, leg := range legs {
		resp.Legs = append(resp.Legs, simpleTransferLeg{Tranche: leg.Tranche.String(), Amount: leg.Amount})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleCheckTransfer runs the advisory validation engine without touching
// state. No caller identity is needed; the answer is a point-in-time
// advisory, not a commitment.
func (h *Handler) handleCheckTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.Decode[checkRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(req.Checks) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "at least one check required"))
		return
	}

	reqs := make([]validation.Request, 0, len(req.Checks))
	for i, c := range req.Checks {
		p, err := sendParams(c)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, fmt.Sprintf("check %d", i), err))
			return
		}
		if p.From.IsZero() {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("check %d: from address required", i)))
			return
		}
		reqs = append(reqs, validation.Request{
			From:    p.From,
			To:      p.To,
			Tranche: p.Tranche,
			Amount:  p.Amount,
			Data:    p.Data,
		})
	}

	var verdicts []validation.Verdict
	if len(reqs) == 1 {
		v, err := h.exec.CheckSend(ctx, reqs[0].From, reqs[0].To, reqs[0].Tranche, reqs[0].Amount, reqs[0].Data)
		if err != nil {
			h.writeServiceError(w, r, "check transfer", err)
			return
		}
		verdicts = []validation.Verdict{v}
	} else {
		var err error
		verdicts, err = h.exec.CheckSendMulti(ctx, reqs)
		if err != nil {
			h.writeServiceError(w, r, "check transfer batch", err)
			return
		}
	}

	resp := checkResponse{Verdicts: make([]verdictResponse, 0, len(verdicts))}
	for _, v := range verdicts {
		vr := verdictResponse{
			Allowed: v.Allowed(),
			Status:  fmt.Sprintf("0x%02X", byte(v.Status)),
			Reason:  string(v.Reason),
			Detail:  v.Detail,
		}
		if !v.Destination.IsZero() {
			vr.Destination = v.Destination.String()
		}
		resp.Verdicts = append(resp.Verdicts, vr)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func sendParams(leg transferLeg) (executor.SendParams, error) {
	p := executor.SendParams{
		Amount:       leg.Amount,
		Data:         []byte(leg.Data),
		OperatorData: []byte(leg.OperatorData),
	}

	var err error
	if leg.From != "" {
		if p.From, err = domain.ParseAddress(leg.From); err != nil {
			return p, fmt.Errorf("invalid from address: %w", err)
		}
	}
	if p.To, err = domain.ParseAddress(leg.To); err != nil {
		return p, fmt.Errorf("invalid to address: %w", err)
	}
	if p.Tranche, err = domain.ParseTranche(leg.Tranche); err != nil {
		return p, fmt.Errorf("invalid tranche: %w", err)
	}
	return p, nil
}
