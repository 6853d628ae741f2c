package validation

import (
	"context"
	"time"

	"tranchebook/pkg/domain"
)

// Request is a proposed transfer under evaluation.
type Request struct {
	From    domain.Address
	To      domain.Address
	Tranche domain.Tranche
	Amount  uint64
	// Data is the opaque payload attached to the transfer; the engine only
	// passes it to the approval verifier and the destination policy.
	Data []byte
}

// ProposedTransfer is the state delta handed to the restriction checker.
type ProposedTransfer struct {
	From        domain.Address
	To          domain.Address
	FromTranche domain.Tranche
	ToTranche   domain.Tranche
	Amount      uint64
	// NewHolder is true when To currently holds no balance at all, so the
	// transfer would raise the distinct-holder count.
	NewHolder bool
}

// EligibilityChecker answers identity questions about transfer parties. KYC
// oracles and allow/deny lists live behind this port.
type EligibilityChecker interface {
	// CheckEligible reports whether the account may hold or send the
	// instrument at all.
	CheckEligible(ctx context.Context, account domain.Address) (bool, error)
	// CheckPair reports whether a transfer between the two accounts passes
	// rules that apply to the pair as a whole, not either party alone.
	CheckPair(ctx context.Context, from, to domain.Address) (bool, error)
}

// RestrictionChecker enforces instrument-level caps (investor count,
// concentration limits) against the proposed post-transfer state.
type RestrictionChecker interface {
	CheckInstrumentLimits(ctx context.Context, proposed ProposedTransfer) (bool, error)
}

// TrancheMetadata exposes externally-owned tranche attributes. The ledger
// stores none of these; tranche keys are foreign keys into this store.
type TrancheMetadata interface {
	// LockupEnd returns the lockup expiry for a tranche and whether one is
	// attached at all.
	LockupEnd(ctx context.Context, tranche domain.Tranche) (time.Time, bool, error)
}

// NoMetadata is a TrancheMetadata with no lockups attached.
type NoMetadata struct{}

func (NoMetadata) LockupEnd(context.Context, domain.Tranche) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

// StaticLockups is a TrancheMetadata backed by a fixed table, for instruments
// whose lockup schedule is set at issuance.
type StaticLockups map[domain.Tranche]time.Time

func (s StaticLockups) LockupEnd(_ context.Context, tranche domain.Tranche) (time.Time, bool, error) {
	end, ok := s[tranche]
	return end, ok, nil
}
