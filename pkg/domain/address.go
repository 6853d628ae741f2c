package domain

import (
	"fmt"
	"strings"
)

// Address identifies an account on the ledger. It is an opaque key: the
// ledger attaches no meaning to its contents beyond equality. Accounts have
// no independent lifecycle; an address exists once it holds a balance or an
// authorization entry.
type Address string

// MaxAddressLen bounds address keys so stores can index them predictably.
const MaxAddressLen = 128

// ParseAddress validates and returns an Address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("address must not be empty")
	}
	if len(s) > MaxAddressLen {
		return "", fmt.Errorf("address exceeds %d characters", MaxAddressLen)
	}
	return Address(s), nil
}

// String returns the string representation of the address.
func (a Address) String() string {
	return string(a)
}

// IsZero returns true if the address is empty.
func (a Address) IsZero() bool {
	return a == ""
}
