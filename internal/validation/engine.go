// Package validation classifies proposed transfers. The engine consults the
// ledger and the external eligibility, restriction, lockup, and approval
// collaborators, then produces a structured verdict: status byte, blocking
// reason as data, and the resolved destination tranche. It never mutates
// state; the executor re-runs it under the write boundary before committing.
package validation

import (
	"context"
	"fmt"
	"time"

	"tranchebook/internal/approval"
	"tranchebook/internal/ledger"
	dErrors "tranchebook/pkg/domain-errors"
	"tranchebook/pkg/requestcontext"
)

// Engine evaluates transfer requests against the rule chain.
type Engine struct {
	store       ledger.Store
	eligibility EligibilityChecker
	restriction RestrictionChecker
	metadata    TrancheMetadata
	verifier    approval.Verifier
	destination DestinationPolicy

	// granularity is the minimum transferable unit; 0 or 1 disables the
	// constraint.
	granularity uint64
	// now, when set, overrides the request-scoped clock.
	now func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithGranularity sets the minimum transferable unit.
func WithGranularity(unit uint64) Option {
	return func(e *Engine) { e.granularity = unit }
}

// WithDestinationPolicy replaces the default same-as-source policy.
func WithDestinationPolicy(p DestinationPolicy) Option {
	return func(e *Engine) { e.destination = p }
}

// WithClock overrides the time source for lockup checks. Without it the
// engine reads the request-scoped time from the context, falling back to the
// wall clock outside a request.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine constructs an engine over the ledger and its collaborators.
func NewEngine(
	store ledger.Store,
	eligibility EligibilityChecker,
	restriction RestrictionChecker,
	metadata TrancheMetadata,
	verifier approval.Verifier,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:       store,
		eligibility: eligibility,
		restriction: restriction,
		metadata:    metadata,
		verifier:    verifier,
		destination: SameAsSource,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate runs the rule chain, in order: balance, instrument limits, party
// eligibility, lockup, granularity, then approval classification. The first
// failing rule decides the verdict. The returned error is reserved for
// collaborator or store failures; business blocks come back as data.
func (e *Engine) Validate(ctx context.Context, req Request) (Verdict, error) {
	if req.Amount == 0 {
		return blocked(StatusInsufficientBalance, dErrors.CodeInvalidAmount,
			"transfer amount must be positive"), nil
	}
	balance, err := e.store.BalanceOfTranche(ctx, req.From, req.Tranche)
	if err != nil {
		return Verdict{}, fmt.Errorf("source balance: %w", err)
	}
	if balance < req.Amount {
		return blocked(StatusInsufficientBalance, dErrors.CodeInsufficientBalance,
			fmt.Sprintf("balance %d in tranche %s is below %d", balance, req.Tranche, req.Amount)), nil
	}

	destination, err := e.destination(ctx, req)
	if err != nil {
		return Verdict{}, fmt.Errorf("destination policy: %w", err)
	}

	toBalance, err := e.store.BalanceOf(ctx, req.To)
	if err != nil {
		return Verdict{}, fmt.Errorf("receiver balance: %w", err)
	}
	ok, err := e.restriction.CheckInstrumentLimits(ctx, ProposedTransfer{
		From:        req.From,
		To:          req.To,
		FromTranche: req.Tranche,
		ToTranche:   destination,
		Amount:      req.Amount,
		NewHolder:   toBalance == 0,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("instrument limits: %w", err)
	}
	if !ok {
		return blocked(StatusTokenRestriction, dErrors.CodeTokenRestriction,
			"transfer would breach an instrument-level limit"), nil
	}

	if verdict, err := e.checkParties(ctx, req); err != nil || !verdict.Allowed() {
		return verdict, err
	}

	if end, has, err := e.metadata.LockupEnd(ctx, req.Tranche); err != nil {
		return Verdict{}, fmt.Errorf("tranche metadata: %w", err)
	} else if has && e.clock(ctx).Before(end) {
		return blocked(StatusLockupNotEnded, dErrors.CodeLockupNotEnded,
			fmt.Sprintf("tranche %s is locked until %s", req.Tranche, end.Format(time.RFC3339))), nil
	}

	if e.granularity > 1 && req.Amount%e.granularity != 0 {
		return blocked(StatusGranularity, dErrors.CodeGranularityViolation,
			fmt.Sprintf("amount %d is not a multiple of the %d-unit granularity", req.Amount, e.granularity)), nil
	}

	kind, err := e.verifier.Verify(ctx, req.Data)
	if err != nil {
		return Verdict{}, fmt.Errorf("approval verification: %w", err)
	}
	status := StatusUnrestricted
	switch kind {
	case approval.KindOnChain:
		status = StatusOnChainApproved
	case approval.KindOffChain:
		status = StatusOffChainApproved
	}
	return Verdict{Status: status, Destination: destination}, nil
}

func (e *Engine) clock(ctx context.Context) time.Time {
	if e.now != nil {
		return e.now()
	}
	return requestcontext.Now(ctx)
}

func (e *Engine) checkParties(ctx context.Context, req Request) (Verdict, error) {
	ok, err := e.eligibility.CheckEligible(ctx, req.From)
	if err != nil {
		return Verdict{}, fmt.Errorf("sender eligibility: %w", err)
	}
	if !ok {
		return blocked(StatusSenderNotEligible, dErrors.CodeSenderNotEligible,
			fmt.Sprintf("sender %s is not eligible", req.From)), nil
	}
	ok, err = e.eligibility.CheckEligible(ctx, req.To)
	if err != nil {
		return Verdict{}, fmt.Errorf("receiver eligibility: %w", err)
	}
	if !ok {
		return blocked(StatusReceiverNotEligible, dErrors.CodeReceiverNotEligible,
			fmt.Sprintf("receiver %s is not eligible", req.To)), nil
	}
	ok, err = e.eligibility.CheckPair(ctx, req.From, req.To)
	if err != nil {
		return Verdict{}, fmt.Errorf("pair eligibility: %w", err)
	}
	if !ok {
		return blocked(StatusIdentityRestriction, dErrors.CodeIdentityRestriction,
			fmt.Sprintf("transfer between %s and %s is restricted", req.From, req.To)), nil
	}
	// Parties pass; the caller continues the chain.
	return Verdict{Status: StatusUnrestricted}, nil
}
