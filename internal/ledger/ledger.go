// Package ledger owns all partitioned balance state: per-tranche balances,
// total supply, default tranche sequences, operator authorization tables, and
// the issuance flag. It enforces the accounting invariants (no negative
// balances, supply equals the global balance sum, empty tranche entries are
// reclaimed) and nothing else: transfer eligibility, authorization decisions,
// and orchestration live in the packages above it.
package ledger

import (
	"context"

	"tranchebook/pkg/domain"
)

// Store is the authoritative ledger state. Mutating methods assume the caller
// holds the executor's write boundary; no two mutations interleave. View
// methods must read a consistent snapshot and may run concurrently.
type Store interface {
	// Balance views.
	BalanceOf(ctx context.Context, holder domain.Address) (uint64, error)
	BalanceOfTranche(ctx context.Context, holder domain.Address, tranche domain.Tranche) (uint64, error)
	TotalSupply(ctx context.Context) (uint64, error)
	// TranchesOf returns the holder's tranches with nonzero balance in
	// insertion order.
	TranchesOf(ctx context.Context, holder domain.Address) ([]domain.Tranche, error)
	// HolderCount returns the number of accounts with any nonzero balance.
	HolderCount(ctx context.Context) (int, error)

	// Balance mutations. Credit and Debit keep TotalSupply in step; Debit
	// fails with CodeInsufficientBalance and removes the tranche entry when
	// it reaches zero. MoveBetweenTranches is debit+credit on one holder as
	// a single unit.
	Credit(ctx context.Context, holder domain.Address, tranche domain.Tranche, amount uint64) error
	Debit(ctx context.Context, holder domain.Address, tranche domain.Tranche, amount uint64) error
	MoveBetweenTranches(ctx context.Context, holder domain.Address, from, to domain.Tranche, amount uint64) error

	// Default tranche sequence for tranche-unaware operations.
	DefaultTranches(ctx context.Context, holder domain.Address) ([]domain.Tranche, error)
	SetDefaultTranches(ctx context.Context, holder domain.Address, seq []domain.Tranche) error

	// Issuance flag: monotone true -> false. FinalizeIssuance reports
	// whether this call performed the transition (false means it was
	// already finalized; the flag never returns to true).
	Issuable(ctx context.Context) (bool, error)
	FinalizeIssuance(ctx context.Context) (bool, error)

	Authority
}

// Authority is the ledger-held operator authorization state, read by the
// operator resolver. Global and tranche-level default operators are fixed at
// system configuration time; the explicit layers are holder-mutable.
type Authority interface {
	GlobalOperators(ctx context.Context) ([]domain.Address, error)
	IsGlobalOperator(ctx context.Context, operator domain.Address) (bool, error)
	TrancheDefaultOperators(ctx context.Context, tranche domain.Tranche) ([]domain.Address, error)
	IsTrancheDefaultOperator(ctx context.Context, tranche domain.Tranche, operator domain.Address) (bool, error)

	// Explicit layers. The bool result pair is (granted, set): set=false
	// means the layer was never touched for that key and defaults apply.
	AccountGrant(ctx context.Context, holder, operator domain.Address) (bool, bool, error)
	SetAccountGrant(ctx context.Context, holder, operator domain.Address, granted bool) error
	TrancheGrant(ctx context.Context, holder domain.Address, tranche domain.Tranche, operator domain.Address) (bool, bool, error)
	SetTrancheGrant(ctx context.Context, holder domain.Address, tranche domain.Tranche, operator domain.Address, granted bool) error
}
