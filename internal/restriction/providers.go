// Package restriction ships the eligibility and instrument-limit
// collaborators consumed by the validation engine: an allow-all provider for
// unrestricted instruments, a static list for fixed investor registries, a
// redis-backed deny list for operationally managed blocks, and an investor
// count cap.
package restriction

import (
	"context"
	"sync"

	"tranchebook/internal/ledger"
	"tranchebook/internal/validation"
	"tranchebook/pkg/domain"
)

// AllowAll passes every account and every transfer. The default for
// instruments with no transfer restrictions.
type AllowAll struct{}

func (AllowAll) CheckEligible(context.Context, domain.Address) (bool, error) {
	return true, nil
}

func (AllowAll) CheckPair(context.Context, domain.Address, domain.Address) (bool, error) {
	return true, nil
}

func (AllowAll) CheckInstrumentLimits(context.Context, validation.ProposedTransfer) (bool, error) {
	return true, nil
}

// StaticList is an eligibility checker over a fixed deny set, with optional
// pairwise restrictions for party combinations that may not transact with
// each other regardless of individual standing.
type StaticList struct {
	mu              sync.RWMutex
	denied          map[domain.Address]struct{}
	restrictedPairs map[[2]domain.Address]struct{}
}

// NewStaticList builds an empty list; every account starts eligible.
func NewStaticList() *StaticList {
	return &StaticList{
		denied:          make(map[domain.Address]struct{}),
		restrictedPairs: make(map[[2]domain.Address]struct{}),
	}
}

// Deny marks an account ineligible.
func (l *StaticList) Deny(account domain.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.denied[account] = struct{}{}
}

// Allow restores an account's eligibility.
func (l *StaticList) Allow(account domain.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.denied, account)
}

// RestrictPair blocks transfers between two accounts in either direction.
func (l *StaticList) RestrictPair(a, b domain.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.restrictedPairs[pairKey(a, b)] = struct{}{}
}

func (l *StaticList) CheckEligible(_ context.Context, account domain.Address) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, denied := l.denied[account]
	return !denied, nil
}

func (l *StaticList) CheckPair(_ context.Context, from, to domain.Address) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, restricted := l.restrictedPairs[pairKey(from, to)]
	return !restricted, nil
}

func pairKey(a, b domain.Address) [2]domain.Address {
	if b < a {
		a, b = b, a
	}
	return [2]domain.Address{a, b}
}

// InvestorCap blocks transfers that would push the distinct-holder count past
// a maximum, the common cap for exempt offerings.
type InvestorCap struct {
	store ledger.Store
	max   int
}

// NewInvestorCap builds a cap checker; max <= 0 disables the cap.
func NewInvestorCap(store ledger.Store, max int) *InvestorCap {
	return &InvestorCap{store: store, max: max}
}

func (c *InvestorCap) CheckInstrumentLimits(ctx context.Context, proposed validation.ProposedTransfer) (bool, error) {
	if c.max <= 0 || !proposed.NewHolder {
		return true, nil
	}
	count, err := c.store.HolderCount(ctx)
	if err != nil {
		return false, err
	}
	// The sender may drop out when fully drained, but that is not knowable
	// cheaply here; the cap holds the conservative line.
	return count < c.max, nil
}
