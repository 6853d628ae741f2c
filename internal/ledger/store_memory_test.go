package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"tranchebook/pkg/domain"
	dErrors "tranchebook/pkg/domain-errors"
)

type MemoryLedgerSuite struct {
	suite.Suite
	store *Memory
	ctx   context.Context

	primary   domain.Tranche
	secondary domain.Tranche
}

func (s *MemoryLedgerSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()

	var err error
	s.primary, err = domain.NewTranche("primary")
	s.Require().NoError(err)
	s.secondary, err = domain.NewTranche("secondary")
	s.Require().NoError(err)
}

func TestMemoryLedgerSuite(t *testing.T) {
	suite.Run(t, new(MemoryLedgerSuite))
}

const (
	alice = domain.Address("alice")
	bob   = domain.Address("bob")
)

func (s *MemoryLedgerSuite) TestCreditAndViews() {
	s.Require().NoError(s.store.Credit(s.ctx, alice, s.primary, 100))
	s.Require().NoError(s.store.Credit(s.ctx, alice, s.secondary, 50))

	total, err := s.store.BalanceOf(s.ctx, alice)
	s.Require().NoError(err)
	s.Equal(uint64(150), total)

	byTranche, err := s.store.BalanceOfTranche(s.ctx, alice, s.primary)
	s.Require().NoError(err)
	s.Equal(uint64(100), byTranche)

	supply, err := s.store.TotalSupply(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(150), supply)

	tranches, err := s.store.TranchesOf(s.ctx, alice)
	s.Require().NoError(err)
	s.Equal([]domain.Tranche{s.primary, s.secondary}, tranches)
}

func (s *MemoryLedgerSuite) TestDebit() {
	s.Require().NoError(s.store.Credit(s.ctx, alice, s.primary, 100))

	s.Run("rejects overdraw and leaves state unchanged", func() {
		err := s.store.Debit(s.ctx, alice, s.primary, 101)
		s.Require().Error(err)
		s.Equal(dErrors.CodeInsufficientBalance, dErrors.CodeOf(err))

		balance, err := s.store.BalanceOfTranche(s.ctx, alice, s.primary)
		s.Require().NoError(err)
		s.Equal(uint64(100), balance)
	})

	s.Run("rejects debit from unknown tranche", func() {
		err := s.store.Debit(s.ctx, alice, s.secondary, 1)
		s.Equal(dErrors.CodeInsufficientBalance, dErrors.CodeOf(err))
	})

	s.Run("reclaims tranche entry at zero", func() {
		s.Require().NoError(s.store.Debit(s.ctx, alice, s.primary, 100))

		tranches, err := s.store.TranchesOf(s.ctx, alice)
		s.Require().NoError(err)
		s.Empty(tranches)

		supply, err := s.store.TotalSupply(s.ctx)
		s.Require().NoError(err)
		s.Zero(supply)
	})
}

func (s *MemoryLedgerSuite) TestZeroAmountsRejected() {
	s.Equal(dErrors.CodeInvalidAmount, dErrors.CodeOf(s.store.Credit(s.ctx, alice, s.primary, 0)))
	s.Equal(dErrors.CodeInvalidAmount, dErrors.CodeOf(s.store.Debit(s.ctx, alice, s.primary, 0)))
	s.Equal(dErrors.CodeInvalidAmount, dErrors.CodeOf(s.store.MoveBetweenTranches(s.ctx, alice, s.primary, s.secondary, 0)))
}

func (s *MemoryLedgerSuite) TestMoveBetweenTranches() {
	s.Require().NoError(s.store.Credit(s.ctx, alice, s.primary, 100))

	s.Require().NoError(s.store.MoveBetweenTranches(s.ctx, alice, s.primary, s.secondary, 40))

	primary, err := s.store.BalanceOfTranche(s.ctx, alice, s.primary)
	s.Require().NoError(err)
	s.Equal(uint64(60), primary)

	secondary, err := s.store.BalanceOfTranche(s.ctx, alice, s.secondary)
	s.Require().NoError(err)
	s.Equal(uint64(40), secondary)

	// Supply is untouched by an intra-holder move.
	supply, err := s.store.TotalSupply(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(100), supply)

	s.Run("fails wholly on insufficient source", func() {
		err := s.store.MoveBetweenTranches(s.ctx, alice, s.primary, s.secondary, 61)
		s.Equal(dErrors.CodeInsufficientBalance, dErrors.CodeOf(err))

		primary, _ := s.store.BalanceOfTranche(s.ctx, alice, s.primary)
		s.Equal(uint64(60), primary)
	})
}

func (s *MemoryLedgerSuite) TestHolderCount() {
	count, err := s.store.HolderCount(s.ctx)
	s.Require().NoError(err)
	s.Zero(count)

	s.Require().NoError(s.store.Credit(s.ctx, alice, s.primary, 10))
	s.Require().NoError(s.store.Credit(s.ctx, bob, s.primary, 10))

	count, err = s.store.HolderCount(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, count)

	// An account drained to zero no longer counts as a holder.
	s.Require().NoError(s.store.Debit(s.ctx, bob, s.primary, 10))
	count, err = s.store.HolderCount(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *MemoryLedgerSuite) TestDefaultTranches() {
	seq := []domain.Tranche{s.secondary, s.primary}
	s.Require().NoError(s.store.SetDefaultTranches(s.ctx, alice, seq))

	got, err := s.store.DefaultTranches(s.ctx, alice)
	s.Require().NoError(err)
	s.Equal(seq, got)

	s.Require().NoError(s.store.SetDefaultTranches(s.ctx, alice, nil))
	got, err = s.store.DefaultTranches(s.ctx, alice)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *MemoryLedgerSuite) TestFinalizeIssuance() {
	issuable, err := s.store.Issuable(s.ctx)
	s.Require().NoError(err)
	s.True(issuable)

	changed, err := s.store.FinalizeIssuance(s.ctx)
	s.Require().NoError(err)
	s.True(changed)

	issuable, err = s.store.Issuable(s.ctx)
	s.Require().NoError(err)
	s.False(issuable)

	// Repeat finalization is a no-op, never a resurrection.
	changed, err = s.store.FinalizeIssuance(s.ctx)
	s.Require().NoError(err)
	s.False(changed)

	issuable, err = s.store.Issuable(s.ctx)
	s.Require().NoError(err)
	s.False(issuable)
}

func (s *MemoryLedgerSuite) TestAuthorityTables() {
	op := domain.Address("custodian")
	store := NewMemory(
		WithGlobalOperators(op),
		WithTrancheOperators(s.primary, bob),
	)

	isGlobal, err := store.IsGlobalOperator(s.ctx, op)
	s.Require().NoError(err)
	s.True(isGlobal)

	isTranche, err := store.IsTrancheDefaultOperator(s.ctx, s.primary, bob)
	s.Require().NoError(err)
	s.True(isTranche)

	isTranche, err = store.IsTrancheDefaultOperator(s.ctx, s.secondary, bob)
	s.Require().NoError(err)
	s.False(isTranche)

	s.Run("explicit layers record touched state", func() {
		_, set, err := store.AccountGrant(s.ctx, alice, bob)
		s.Require().NoError(err)
		s.False(set)

		s.Require().NoError(store.SetAccountGrant(s.ctx, alice, bob, true))
		granted, set, err := store.AccountGrant(s.ctx, alice, bob)
		s.Require().NoError(err)
		s.True(set)
		s.True(granted)

		s.Require().NoError(store.SetTrancheGrant(s.ctx, alice, s.primary, op, false))
		granted, set, err = store.TrancheGrant(s.ctx, alice, s.primary, op)
		s.Require().NoError(err)
		s.True(set)
		s.False(granted)

		// The other tranche stays untouched.
		_, set, err = store.TrancheGrant(s.ctx, alice, s.secondary, op)
		s.Require().NoError(err)
		s.False(set)
	})
}

// TestConservationInvariant exercises a mixed operation sequence and checks
// that the per-holder tranche sums and the total supply stay in agreement
// after every step.
func (s *MemoryLedgerSuite) TestConservationInvariant() {
	checkInvariants := func() {
		var global uint64
		for _, holder := range []domain.Address{alice, bob} {
			tranches, err := s.store.TranchesOf(s.ctx, holder)
			s.Require().NoError(err)
			var sum uint64
			for _, t := range tranches {
				b, err := s.store.BalanceOfTranche(s.ctx, holder, t)
				s.Require().NoError(err)
				s.NotZero(b)
				sum += b
			}
			total, err := s.store.BalanceOf(s.ctx, holder)
			s.Require().NoError(err)
			s.Equal(sum, total)
			global += sum
		}
		supply, err := s.store.TotalSupply(s.ctx)
		s.Require().NoError(err)
		s.Equal(global, supply)
	}

	s.Require().NoError(s.store.Credit(s.ctx, alice, s.primary, 100))
	checkInvariants()
	s.Require().NoError(s.store.Credit(s.ctx, bob, s.secondary, 25))
	checkInvariants()
	s.Require().NoError(s.store.MoveBetweenTranches(s.ctx, alice, s.primary, s.secondary, 30))
	checkInvariants()
	s.Require().NoError(s.store.Debit(s.ctx, alice, s.secondary, 30))
	checkInvariants()
	s.Require().NoError(s.store.Debit(s.ctx, bob, s.secondary, 25))
	checkInvariants()
	s.Error(s.store.Debit(s.ctx, alice, s.primary, 1000))
	checkInvariants()
}
