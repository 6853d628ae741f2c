package domain

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// TrancheSize is the fixed width of a tranche key in bytes.
const TrancheSize = 32

// Tranche names a partition of a holder's balance. It is a fixed-size opaque
// key; eligibility metadata attached to a tranche (lockup dates, restriction
// rules) lives in external collaborators keyed by this value, never in the
// ledger itself.
//
// The zero value means "no tranche" and is rejected wherever a tranche is a
// required argument.
type Tranche [TrancheSize]byte

// NewTranche builds a tranche key from a short human-readable name by copying
// the name into the key left-aligned and zero-padding the rest. Names longer
// than TrancheSize bytes are rejected.
func NewTranche(name string) (Tranche, error) {
	var t Tranche
	if name == "" {
		return t, fmt.Errorf("tranche name must not be empty")
	}
	if len(name) > TrancheSize {
		return t, fmt.Errorf("tranche name exceeds %d bytes", TrancheSize)
	}
	copy(t[:], name)
	return t, nil
}

// ParseTranche accepts either a short name or a 64-character hex key.
func ParseTranche(s string) (Tranche, error) {
	if len(s) == TrancheSize*2 {
		raw, err := hex.DecodeString(s)
		if err == nil {
			var t Tranche
			copy(t[:], raw)
			if t.IsZero() {
				return t, fmt.Errorf("tranche key must not be all zero")
			}
			return t, nil
		}
	}
	return NewTranche(s)
}

// String renders the key as its name when it is printable ASCII padding,
// otherwise as hex. Round-trips through ParseTranche either way.
func (t Tranche) String() string {
	trimmed := bytes.TrimRight(t[:], "\x00")
	if len(trimmed) > 0 && isPrintable(trimmed) {
		return string(trimmed)
	}
	return hex.EncodeToString(t[:])
}

// Hex returns the full 64-character hex form of the key.
func (t Tranche) Hex() string {
	return hex.EncodeToString(t[:])
}

// IsZero returns true for the all-zero key.
func (t Tranche) IsZero() bool {
	return t == Tranche{}
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
