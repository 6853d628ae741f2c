package executor

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"tranchebook/internal/approval"
	"tranchebook/internal/events"
	"tranchebook/internal/ledger"
	"tranchebook/internal/operator"
	"tranchebook/internal/restriction"
	"tranchebook/internal/tranche"
	"tranchebook/internal/validation"
	"tranchebook/pkg/domain"
	dErrors "tranchebook/pkg/domain-errors"
)

const (
	controller = domain.Address("controller")
	alice      = domain.Address("alice")
	bob        = domain.Address("bob")
	carol      = domain.Address("carol")
	regulator  = domain.Address("regulator")
)

type ExecutorSuite struct {
	suite.Suite
	store    *ledger.Memory
	list     *restriction.StaticList
	verifier *approval.Reference
	sink     *events.MemorySink
	exec     *Executor
	ctx      context.Context

	primary   domain.Tranche
	secondary domain.Tranche
}

func (s *ExecutorSuite) SetupTest() {
	var err error
	s.primary, err = domain.NewTranche("primary")
	s.Require().NoError(err)
	s.secondary, err = domain.NewTranche("secondary")
	s.Require().NoError(err)

	s.store = ledger.NewMemory(ledger.WithGlobalOperators(regulator))
	s.list = restriction.NewStaticList()
	s.verifier = approval.NewReference([]byte("secret"))
	s.sink = events.NewMemorySink()

	resolver := operator.NewResolver(s.store)
	engine := validation.NewEngine(s.store, s.list, restriction.AllowAll{}, validation.NoMetadata{}, s.verifier,
		validation.WithDestinationPolicy(validation.DestinationFromData(validation.SameAsSource)))

	s.exec = New(
		s.store,
		resolver,
		tranche.NewResolver(s.store),
		engine,
		s.sink,
		controller,
		slog.New(slog.DiscardHandler),
		WithTicketConsumer(s.verifier),
	)
	s.ctx = context.Background()
}

func TestExecutorSuite(t *testing.T) {
	suite.Run(t, new(ExecutorSuite))
}

func (s *ExecutorSuite) issue(holder domain.Address, t domain.Tranche, amount uint64) {
	s.Require().NoError(s.exec.Issue(s.ctx, controller, IssueParams{Holder: holder, Tranche: t, Amount: amount}))
}

func (s *ExecutorSuite) balance(holder domain.Address, t domain.Tranche) uint64 {
	b, err := s.store.BalanceOfTranche(s.ctx, holder, t)
	s.Require().NoError(err)
	return b
}

func (s *ExecutorSuite) supply() uint64 {
	supply, err := s.store.TotalSupply(s.ctx)
	s.Require().NoError(err)
	return supply
}

// TestIssueTransferFinalize is the full lifecycle: issue, tranche-aware send
// with a routed destination, finalize, then a rejected late issuance.
func (s *ExecutorSuite) TestIssueTransferFinalize() {
	s.issue(alice, s.primary, 100)
	s.Equal(uint64(100), s.supply())

	issuable, err := s.exec.Issuable(s.ctx)
	s.Require().NoError(err)
	s.True(issuable)

	dest, err := s.exec.Send(s.ctx, alice, SendParams{
		To:      bob,
		Tranche: s.primary,
		Amount:  40,
		Data:    []byte("dest:secondary"),
	})
	s.Require().NoError(err)
	s.Equal(s.secondary, dest)

	s.Equal(uint64(60), s.balance(alice, s.primary))
	s.Equal(uint64(40), s.balance(bob, s.secondary))
	s.Equal(uint64(100), s.supply())

	s.Require().NoError(s.exec.FinalizeIssuance(s.ctx, controller))
	issuable, err = s.exec.Issuable(s.ctx)
	s.Require().NoError(err)
	s.False(issuable)

	err = s.exec.Issue(s.ctx, controller, IssueParams{Holder: alice, Tranche: s.primary, Amount: 1})
	s.Equal(dErrors.CodeIssuanceFinalized, dErrors.CodeOf(err))

	// Finalization is idempotent and permanent.
	s.Require().NoError(s.exec.FinalizeIssuance(s.ctx, controller))
	issuable, err = s.exec.Issuable(s.ctx)
	s.Require().NoError(err)
	s.False(issuable)
}

func (s *ExecutorSuite) TestIssueAuthorization() {
	err := s.exec.Issue(s.ctx, alice, IssueParams{Holder: alice, Tranche: s.primary, Amount: 10})
	s.Equal(dErrors.CodeNotAuthorized, dErrors.CodeOf(err))

	err = s.exec.FinalizeIssuance(s.ctx, alice)
	s.Equal(dErrors.CodeNotAuthorized, dErrors.CodeOf(err))
}

func (s *ExecutorSuite) TestSendAuthorization() {
	s.issue(alice, s.primary, 100)

	s.Run("stranger cannot move the balance", func() {
		_, err := s.exec.Send(s.ctx, bob, SendParams{From: alice, To: bob, Tranche: s.primary, Amount: 10})
		s.Equal(dErrors.CodeNotAuthorized, dErrors.CodeOf(err))
		s.Equal(uint64(100), s.balance(alice, s.primary))
	})

	s.Run("global operator can", func() {
		_, err := s.exec.Send(s.ctx, regulator, SendParams{From: alice, To: bob, Tranche: s.primary, Amount: 10})
		s.Require().NoError(err)
		s.Equal(uint64(90), s.balance(alice, s.primary))
	})

	s.Run("tranche-scoped grant covers its tranche only", func() {
		s.Require().NoError(s.exec.AuthorizeOperatorByTranche(s.ctx, alice, s.primary, carol))

		_, err := s.exec.Send(s.ctx, carol, SendParams{From: alice, To: bob, Tranche: s.primary, Amount: 5})
		s.Require().NoError(err)

		_, err = s.exec.Send(s.ctx, carol, SendParams{From: alice, To: bob, Tranche: s.secondary, Amount: 5})
		s.Equal(dErrors.CodeNotAuthorized, dErrors.CodeOf(err))
	})

	s.Run("revoked pair is masked", func() {
		s.Require().NoError(s.exec.RevokeOperatorByTranche(s.ctx, alice, s.primary, carol))
		_, err := s.exec.Send(s.ctx, carol, SendParams{From: alice, To: bob, Tranche: s.primary, Amount: 5})
		s.Equal(dErrors.CodeNotAuthorized, dErrors.CodeOf(err))
	})
}

func (s *ExecutorSuite) TestBlockedSendHasNoSideEffect() {
	s.issue(alice, s.primary, 100)
	s.list.Deny(bob)

	_, err := s.exec.Send(s.ctx, alice, SendParams{To: bob, Tranche: s.primary, Amount: 40})
	s.Equal(dErrors.CodeReceiverNotEligible, dErrors.CodeOf(err))

	s.Equal(uint64(100), s.balance(alice, s.primary))
	s.Equal(uint64(0), s.balance(bob, s.primary))
	s.Equal(uint64(100), s.supply())
	s.Empty(s.sink.ByType(events.TypeTransferred))
}

func (s *ExecutorSuite) TestInsufficientBalanceSend() {
	s.issue(alice, s.primary, 10)

	_, err := s.exec.Send(s.ctx, alice, SendParams{To: bob, Tranche: s.primary, Amount: 11})
	s.Equal(dErrors.CodeInsufficientBalance, dErrors.CodeOf(err))
	s.Equal(uint64(10), s.balance(alice, s.primary))
}

func (s *ExecutorSuite) TestSendMultiAtomicity() {
	s.issue(alice, s.primary, 50)

	s.Run("overdrawing batch fails wholly", func() {
		_, err := s.exec.SendMulti(s.ctx, alice, []SendParams{
			{To: bob, Tranche: s.primary, Amount: 30},
			{To: carol, Tranche: s.primary, Amount: 30},
		})
		s.Equal(dErrors.CodeInsufficientBalance, dErrors.CodeOf(err))
		s.Equal(uint64(50), s.balance(alice, s.primary))
		s.Empty(s.sink.ByType(events.TypeTransferred))
	})

	s.Run("ineligible leg fails the batch", func() {
		s.list.Deny(carol)
		defer s.list.Allow(carol)

		_, err := s.exec.SendMulti(s.ctx, alice, []SendParams{
			{To: bob, Tranche: s.primary, Amount: 10},
			{To: carol, Tranche: s.primary, Amount: 10},
		})
		s.Equal(dErrors.CodeReceiverNotEligible, dErrors.CodeOf(err))
		s.Equal(uint64(50), s.balance(alice, s.primary))
	})

	s.Run("valid batch commits every leg", func() {
		dests, err := s.exec.SendMulti(s.ctx, alice, []SendParams{
			{To: bob, Tranche: s.primary, Amount: 30},
			{To: carol, Tranche: s.primary, Amount: 20},
		})
		s.Require().NoError(err)
		s.Equal([]domain.Tranche{s.primary, s.primary}, dests)
		s.Equal(uint64(0), s.balance(alice, s.primary))
		s.Equal(uint64(30), s.balance(bob, s.primary))
		s.Equal(uint64(20), s.balance(carol, s.primary))
		s.Len(s.sink.ByType(events.TypeTransferred), 2)
	})
}

// TestTrancheUnawareTransfer pins the default-tranche allocation property:
// defaults [T1 T2] with balances 5 and 10 cover a send of 12 as 5 + 7, and
// the drained tranche entry disappears.
func (s *ExecutorSuite) TestTrancheUnawareTransfer() {
	s.issue(alice, s.primary, 5)
	s.issue(alice, s.secondary, 10)
	s.Require().NoError(s.exec.SetDefaultTranches(s.ctx, alice, alice, []domain.Tranche{s.primary, s.secondary}))

	legs, err := s.exec.Transfer(s.ctx, alice, TransferParams{To: bob, Amount: 12})
	s.Require().NoError(err)
	s.Equal([]tranche.Leg{
		{Tranche: s.primary, Amount: 5},
		{Tranche: s.secondary, Amount: 7},
	}, legs)

	s.Equal(uint64(0), s.balance(alice, s.primary))
	s.Equal(uint64(3), s.balance(alice, s.secondary))
	tranches, err := s.store.TranchesOf(s.ctx, alice)
	s.Require().NoError(err)
	s.Equal([]domain.Tranche{s.secondary}, tranches)

	s.Len(s.sink.ByType(events.TypeTransferred), 2)
}

// TestTrancheUnawareTransferRoutedDestination checks that the fungible-view
// path credits the tranche the destination policy resolves, exactly as the
// per-leg verdicts say.
func (s *ExecutorSuite) TestTrancheUnawareTransferRoutedDestination() {
	s.issue(alice, s.primary, 10)
	s.Require().NoError(s.exec.SetDefaultTranches(s.ctx, alice, alice, []domain.Tranche{s.primary}))

	legs, err := s.exec.Transfer(s.ctx, alice, TransferParams{
		To:     bob,
		Amount: 10,
		Data:   []byte("dest:secondary"),
	})
	s.Require().NoError(err)
	s.Equal([]tranche.Leg{{Tranche: s.primary, Amount: 10}}, legs)

	s.Equal(uint64(0), s.balance(bob, s.primary))
	s.Equal(uint64(10), s.balance(bob, s.secondary))

	transfers := s.sink.ByType(events.TypeTransferred)
	s.Require().Len(transfers, 1)
	s.Equal("primary", transfers[0].FromTranche)
	s.Equal("secondary", transfers[0].ToTranche)
}

func (s *ExecutorSuite) TestTrancheUnawareTransferShortfall() {
	s.issue(alice, s.primary, 5)
	s.Require().NoError(s.exec.SetDefaultTranches(s.ctx, alice, alice, []domain.Tranche{s.primary}))

	_, err := s.exec.Transfer(s.ctx, alice, TransferParams{To: bob, Amount: 12})
	s.Equal(dErrors.CodeInsufficientDefaultTrancheBalance, dErrors.CodeOf(err))
	s.Equal(uint64(5), s.balance(alice, s.primary))
	s.Empty(s.sink.ByType(events.TypeTransferred))
}

func (s *ExecutorSuite) TestTransferWithoutDefaultsDisallowed() {
	s.issue(alice, s.primary, 100)

	_, err := s.exec.Transfer(s.ctx, alice, TransferParams{To: bob, Amount: 1})
	s.Equal(dErrors.CodeInsufficientDefaultTrancheBalance, dErrors.CodeOf(err))
}

func (s *ExecutorSuite) TestRedeem() {
	s.issue(alice, s.primary, 100)

	s.Require().NoError(s.exec.Redeem(s.ctx, alice, RedeemParams{Tranche: s.primary, Amount: 30}))
	s.Equal(uint64(70), s.balance(alice, s.primary))
	s.Equal(uint64(70), s.supply())

	s.Run("operator redemption", func() {
		s.Require().NoError(s.exec.Redeem(s.ctx, regulator, RedeemParams{
			Holder:       alice,
			Tranche:      s.primary,
			Amount:       20,
			OperatorData: []byte("forced recovery"),
		}))
		s.Equal(uint64(50), s.balance(alice, s.primary))
		s.Equal(uint64(50), s.supply())

		burns := s.sink.ByType(events.TypeRedeemed)
		s.Require().Len(burns, 2)
		s.Equal(regulator, burns[1].Operator)
		s.Equal(alice, burns[1].Holder)
	})

	s.Run("stranger cannot redeem", func() {
		err := s.exec.Redeem(s.ctx, bob, RedeemParams{Holder: alice, Tranche: s.primary, Amount: 1})
		s.Equal(dErrors.CodeNotAuthorized, dErrors.CodeOf(err))
	})

	s.Run("overdraw fails with no side effect", func() {
		err := s.exec.Redeem(s.ctx, alice, RedeemParams{Tranche: s.primary, Amount: 51})
		s.Equal(dErrors.CodeInsufficientBalance, dErrors.CodeOf(err))
		s.Equal(uint64(50), s.supply())
	})
}

func (s *ExecutorSuite) TestOperatorLifecycleEvents() {
	s.Require().NoError(s.exec.AuthorizeOperator(s.ctx, alice, bob))
	s.Require().NoError(s.exec.RevokeOperator(s.ctx, alice, bob))

	authorized := s.sink.ByType(events.TypeOperatorAuthorized)
	s.Require().Len(authorized, 1)
	s.Equal(alice, authorized[0].Holder)
	s.Equal(bob, authorized[0].Operator)

	revoked := s.sink.ByType(events.TypeOperatorRevoked)
	s.Require().Len(revoked, 1)

	s.Run("global operator revocation is forbidden", func() {
		err := s.exec.RevokeOperator(s.ctx, alice, regulator)
		s.Equal(dErrors.CodeForbiddenRevocation, dErrors.CodeOf(err))
		s.Len(s.sink.ByType(events.TypeOperatorRevoked), 1)
	})
}

func (s *ExecutorSuite) TestSetDefaultTranchesAuthorization() {
	seq := []domain.Tranche{s.primary}

	err := s.exec.SetDefaultTranches(s.ctx, bob, alice, seq)
	s.Equal(dErrors.CodeNotAuthorized, dErrors.CodeOf(err))

	// A full-balance operator may manage the sequence.
	s.Require().NoError(s.exec.AuthorizeOperator(s.ctx, alice, bob))
	s.Require().NoError(s.exec.SetDefaultTranches(s.ctx, bob, alice, seq))

	got, err := s.exec.GetDefaultTranches(s.ctx, alice)
	s.Require().NoError(err)
	s.Equal(seq, got)
}

func (s *ExecutorSuite) TestCheckSendAdvisory() {
	s.issue(alice, s.primary, 100)
	s.list.Deny(bob)

	verdict, err := s.exec.CheckSend(s.ctx, alice, bob, s.primary, 40, nil)
	s.Require().NoError(err)
	s.False(verdict.Allowed())
	s.Equal(validation.StatusReceiverNotEligible, verdict.Status)

	// Advisory only: no state changed.
	s.Equal(uint64(100), s.balance(alice, s.primary))

	s.list.Allow(bob)
	verdict, err = s.exec.CheckSend(s.ctx, alice, bob, s.primary, 40, nil)
	s.Require().NoError(err)
	s.True(verdict.Allowed())
	s.Equal(s.primary, verdict.Destination)
}

func (s *ExecutorSuite) TestCheckSendMulti() {
	s.issue(alice, s.primary, 100)

	verdicts, err := s.exec.CheckSendMulti(s.ctx, []validation.Request{
		{From: alice, To: bob, Tranche: s.primary, Amount: 40},
		{From: alice, To: carol, Tranche: s.primary, Amount: 200},
	})
	s.Require().NoError(err)
	s.Require().Len(verdicts, 2)
	s.True(verdicts[0].Allowed())
	s.Equal(validation.StatusInsufficientBalance, verdicts[1].Status)
}

func (s *ExecutorSuite) TestApprovalTicketConsumedOnCommit() {
	s.issue(alice, s.primary, 100)
	s.verifier.RegisterTicket("deal-1")

	dest, err := s.exec.Send(s.ctx, alice, SendParams{
		To: bob, Tranche: s.primary, Amount: 10, Data: []byte("onchain:deal-1"),
	})
	s.Require().NoError(err)
	s.Equal(s.primary, dest)

	// The ticket is single-use: the same payload no longer classifies as
	// approved.
	verdict, err := s.exec.CheckSend(s.ctx, alice, bob, s.primary, 10, []byte("onchain:deal-1"))
	s.Require().NoError(err)
	s.Equal(validation.StatusUnrestricted, verdict.Status)
}

func (s *ExecutorSuite) TestTransferredEventCarriesFullParameterSet() {
	s.issue(alice, s.primary, 100)

	_, err := s.exec.Send(s.ctx, regulator, SendParams{
		From:         alice,
		To:           bob,
		Tranche:      s.primary,
		Amount:       25,
		Data:         []byte("memo"),
		OperatorData: []byte("case-42"),
	})
	s.Require().NoError(err)

	transfers := s.sink.ByType(events.TypeTransferred)
	s.Require().Len(transfers, 1)
	ev := transfers[0]
	s.Equal(regulator, ev.Operator)
	s.Equal(alice, ev.From)
	s.Equal(bob, ev.To)
	s.Equal("primary", ev.FromTranche)
	s.Equal("primary", ev.ToTranche)
	s.Equal(uint64(25), ev.Amount)
	s.Equal([]byte("memo"), ev.Data)
	s.Equal([]byte("case-42"), ev.OperatorData)
	s.NotZero(ev.ID)
	s.False(ev.At.IsZero())
}
