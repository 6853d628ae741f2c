package validation

import (
	"fmt"

	"tranchebook/pkg/domain"
	dErrors "tranchebook/pkg/domain-errors"
)

// Status is the application status byte of a transfer check. Codes 0xA0-0xA2
// mean the transfer is allowed (with its approval classification); 0xA3-0xA9
// mean it is blocked, with the code naming the blocking rule.
type Status byte

const (
	StatusUnrestricted        Status = 0xA0
	StatusOnChainApproved     Status = 0xA1
	StatusOffChainApproved    Status = 0xA2
	StatusLockupNotEnded      Status = 0xA3
	StatusInsufficientBalance Status = 0xA4
	StatusSenderNotEligible   Status = 0xA5
	StatusReceiverNotEligible Status = 0xA6
	StatusIdentityRestriction Status = 0xA7
	StatusTokenRestriction    Status = 0xA8
	StatusGranularity         Status = 0xA9
)

// Allowed reports whether the status permits the transfer.
func (s Status) Allowed() bool {
	return s == StatusUnrestricted || s == StatusOnChainApproved || s == StatusOffChainApproved
}

func (s Status) String() string {
	switch s {
	case StatusUnrestricted:
		return "unrestricted"
	case StatusOnChainApproved:
		return "onchain_approved"
	case StatusOffChainApproved:
		return "offchain_approved"
	case StatusLockupNotEnded:
		return "lockup_not_ended"
	case StatusInsufficientBalance:
		return "insufficient_balance"
	case StatusSenderNotEligible:
		return "sender_not_eligible"
	case StatusReceiverNotEligible:
		return "receiver_not_eligible"
	case StatusIdentityRestriction:
		return "identity_restriction"
	case StatusTokenRestriction:
		return "token_restriction"
	case StatusGranularity:
		return "granularity_violation"
	default:
		return fmt.Sprintf("status(0x%02X)", byte(s))
	}
}

// Verdict is the structured outcome of a transfer check: a point-in-time
// advisory, not a commitment, since it can depend on externally mutable
// state (clocks, eligibility answers).
type Verdict struct {
	Status Status
	// Reason carries the blocking kind as data; empty when allowed.
	Reason dErrors.Code
	// Detail is a human-readable elaboration of Reason; never branch on it.
	Detail string
	// Destination is the tranche the amount would land in when allowed.
	Destination domain.Tranche
}

// Allowed reports whether the verdict permits the transfer.
func (v Verdict) Allowed() bool {
	return v.Status.Allowed()
}

// Err converts a blocking verdict into its coded domain error; nil when the
// verdict allows the transfer.
func (v Verdict) Err() error {
	if v.Allowed() {
		return nil
	}
	return dErrors.New(v.Reason, v.Detail)
}

func blocked(status Status, reason dErrors.Code, detail string) Verdict {
	return Verdict{Status: status, Reason: reason, Detail: detail}
}
