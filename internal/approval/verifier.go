// Package approval classifies the opaque data payload attached to a transfer
// as carrying an approval or not. The validation engine only asks "was an
// approval present and accepted?"; the payload wire format and any real
// signature scheme belong to the verifier implementation behind this port.
package approval

import "context"

// Kind is the approval classification of a transfer payload.
type Kind int

const (
	// KindNone: no recognized approval; the transfer stands on the
	// instrument's unrestricted rules alone.
	KindNone Kind = iota
	// KindOnChain: the payload references an approval recorded in ledger
	// state ahead of the transfer.
	KindOnChain
	// KindOffChain: the payload embeds an off-chain authorization accepted
	// by the verifier.
	KindOffChain
)

func (k Kind) String() string {
	switch k {
	case KindOnChain:
		return "onchain"
	case KindOffChain:
		return "offchain"
	default:
		return "none"
	}
}

// Verifier inspects a transfer payload. Unrecognized or invalid payloads
// yield KindNone, not an error; errors are reserved for infrastructure
// failures while checking.
type Verifier interface {
	Verify(ctx context.Context, data []byte) (Kind, error)
}

// None is a Verifier that recognizes no approvals.
type None struct{}

func (None) Verify(context.Context, []byte) (Kind, error) {
	return KindNone, nil
}
