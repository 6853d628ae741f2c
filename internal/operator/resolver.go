// Package operator answers "can X act for Y?" over the ledger's three
// additive authorization layers: global default operators, per-tranche
// default operators, and explicit per-(holder, tranche) grants, plus the
// independent account-wide explicit layer.
//
// The layers form a precedence-ordered lookup, most specific first. An
// explicit entry for the exact (holder, tranche, operator) triple always
// wins; defaults apply only when that layer was never touched. Revoking an
// operator for one tranche of one holder masks exactly that pair and nothing
// else.
package operator

import (
	"context"
	"fmt"

	"tranchebook/internal/ledger"
	"tranchebook/pkg/domain"
	dErrors "tranchebook/pkg/domain-errors"
)

// Resolver reads the ledger's authorization tables. It holds no state of its
// own and never mutates; grant and revoke mutations go through the executor.
type Resolver struct {
	authority ledger.Authority
}

// NewResolver constructs a resolver over the ledger-held authorization state.
func NewResolver(authority ledger.Authority) *Resolver {
	return &Resolver{authority: authority}
}

// IsOperatorForTranche reports whether operator may act on holder's balance
// in the given tranche. Rule chain, most specific layer first:
//
//  1. An explicit per-(holder, tranche) entry decides outright.
//  2. Tranche-level default operators for this tranche qualify.
//  3. Global default operators qualify.
func (r *Resolver) IsOperatorForTranche(ctx context.Context, tranche domain.Tranche, op, holder domain.Address) (bool, error) {
	granted, set, err := r.authority.TrancheGrant(ctx, holder, tranche, op)
	if err != nil {
		return false, fmt.Errorf("tranche grant lookup: %w", err)
	}
	if set {
		return granted, nil
	}

	isDefault, err := r.authority.IsTrancheDefaultOperator(ctx, tranche, op)
	if err != nil {
		return false, fmt.Errorf("tranche default lookup: %w", err)
	}
	if isDefault {
		return true, nil
	}

	isGlobal, err := r.authority.IsGlobalOperator(ctx, op)
	if err != nil {
		return false, fmt.Errorf("global operator lookup: %w", err)
	}
	return isGlobal, nil
}

// IsOperatorFor reports whether operator may act on holder's whole balance,
// every tranche included. True for global default operators and for explicit
// account-wide grants that were not revoked.
func (r *Resolver) IsOperatorFor(ctx context.Context, op, holder domain.Address) (bool, error) {
	isGlobal, err := r.authority.IsGlobalOperator(ctx, op)
	if err != nil {
		return false, fmt.Errorf("global operator lookup: %w", err)
	}
	if isGlobal {
		return true, nil
	}

	granted, set, err := r.authority.AccountGrant(ctx, holder, op)
	if err != nil {
		return false, fmt.Errorf("account grant lookup: %w", err)
	}
	return set && granted, nil
}

// CanActOn combines both scopes for transfer authorization: an account-wide
// operator covers every tranche, a tranche-scoped operator covers its own.
func (r *Resolver) CanActOn(ctx context.Context, tranche domain.Tranche, op, holder domain.Address) (bool, error) {
	accountWide, err := r.IsOperatorFor(ctx, op, holder)
	if err != nil {
		return false, err
	}
	if accountWide {
		return true, nil
	}
	return r.IsOperatorForTranche(ctx, tranche, op, holder)
}

// Authorize records an account-wide grant of operator over holder.
func (r *Resolver) Authorize(ctx context.Context, holder, op domain.Address) error {
	return r.authority.SetAccountGrant(ctx, holder, op, true)
}

// Revoke removes operator's account-wide standing for holder. Revoking a
// global default operator is rejected with ForbiddenRevocation: their
// standing backs forced-transfer recovery and is not holder-controlled.
func (r *Resolver) Revoke(ctx context.Context, holder, op domain.Address) error {
	isGlobal, err := r.authority.IsGlobalOperator(ctx, op)
	if err != nil {
		return fmt.Errorf("global operator lookup: %w", err)
	}
	if isGlobal {
		return dErrors.New(dErrors.CodeForbiddenRevocation,
			fmt.Sprintf("operator %s is a global default operator and cannot be revoked by the holder", op))
	}
	return r.authority.SetAccountGrant(ctx, holder, op, false)
}

// AuthorizeByTranche records an explicit grant for the (holder, tranche) pair.
func (r *Resolver) AuthorizeByTranche(ctx context.Context, holder domain.Address, tranche domain.Tranche, op domain.Address) error {
	return r.authority.SetTrancheGrant(ctx, holder, tranche, op, true)
}

// RevokeByTranche masks operator for exactly the (holder, tranche) pair. This
// is allowed even for default operators: it overrides their standing for that
// pair only and leaves every other tranche of the holder untouched.
func (r *Resolver) RevokeByTranche(ctx context.Context, holder domain.Address, tranche domain.Tranche, op domain.Address) error {
	return r.authority.SetTrancheGrant(ctx, holder, tranche, op, false)
}

// DefaultOperators returns the global default operator list.
func (r *Resolver) DefaultOperators(ctx context.Context) ([]domain.Address, error) {
	return r.authority.GlobalOperators(ctx)
}

// DefaultOperatorsByTranche returns the default operator list for a tranche.
func (r *Resolver) DefaultOperatorsByTranche(ctx context.Context, tranche domain.Tranche) ([]domain.Address, error) {
	return r.authority.TrancheDefaultOperators(ctx, tranche)
}
