// Package tranche maps tranche-unaware operations onto concrete tranches
// using the holder's configured default sequence.
package tranche

import (
	"context"
	"fmt"

	"tranchebook/internal/ledger"
	"tranchebook/pkg/domain"
	dErrors "tranchebook/pkg/domain-errors"
)

// Resolver plans allocations over a holder's default tranche sequence.
type Resolver struct {
	store ledger.Store
}

// NewResolver constructs a resolver over ledger state.
func NewResolver(store ledger.Store) *Resolver {
	return &Resolver{store: store}
}

// Leg is one tranche's share of a planned allocation.
type Leg struct {
	Tranche domain.Tranche
	Amount  uint64
}

// DefaultsOf returns the holder's configured default sequence. An empty
// sequence means tranche-unaware sends are disallowed for that holder.
func (r *Resolver) DefaultsOf(ctx context.Context, holder domain.Address) ([]domain.Tranche, error) {
	return r.store.DefaultTranches(ctx, holder)
}

// Plan walks the holder's default sequence in order, allocating as much as
// possible from each tranche's balance until amount is covered. If the
// sequence is exhausted with a remainder outstanding the whole plan fails
// with InsufficientDefaultTrancheBalance and nothing is committed.
func (r *Resolver) Plan(ctx context.Context, holder domain.Address, amount uint64) ([]Leg, error) {
	if amount == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidAmount, "amount must be positive")
	}
	defaults, err := r.store.DefaultTranches(ctx, holder)
	if err != nil {
		return nil, fmt.Errorf("load default tranches: %w", err)
	}
	if len(defaults) == 0 {
		return nil, dErrors.New(dErrors.CodeInsufficientDefaultTrancheBalance,
			fmt.Sprintf("holder %s has no default tranches configured", holder))
	}

	remaining := amount
	var legs []Leg
	for _, t := range defaults {
		if remaining == 0 {
			break
		}
		balance, err := r.store.BalanceOfTranche(ctx, holder, t)
		if err != nil {
			return nil, fmt.Errorf("balance of tranche %s: %w", t, err)
		}
		if balance == 0 {
			continue
		}
		take := balance
		if take > remaining {
			take = remaining
		}
		legs = append(legs, Leg{Tranche: t, Amount: take})
		remaining -= take
	}
	if remaining > 0 {
		return nil, dErrors.New(dErrors.CodeInsufficientDefaultTrancheBalance,
			fmt.Sprintf("default tranches of %s cover %d of %d requested", holder, amount-remaining, amount))
	}
	return legs, nil
}
