package tranche

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"tranchebook/internal/ledger"
	"tranchebook/pkg/domain"
	dErrors "tranchebook/pkg/domain-errors"
)

type PlanSuite struct {
	suite.Suite
	store    *ledger.Memory
	resolver *Resolver
	ctx      context.Context

	t1, t2, t3 domain.Tranche
}

const holder = domain.Address("holder")

func (s *PlanSuite) SetupTest() {
	s.store = ledger.NewMemory()
	s.resolver = NewResolver(s.store)
	s.ctx = context.Background()

	for name, dst := range map[string]*domain.Tranche{"t1": &s.t1, "t2": &s.t2, "t3": &s.t3} {
		t, err := domain.NewTranche(name)
		s.Require().NoError(err)
		*dst = t
	}
}

func TestPlanSuite(t *testing.T) {
	suite.Run(t, new(PlanSuite))
}

func (s *PlanSuite) TestGreedyInOrderAllocation() {
	s.Require().NoError(s.store.Credit(s.ctx, holder, s.t1, 5))
	s.Require().NoError(s.store.Credit(s.ctx, holder, s.t2, 10))
	s.Require().NoError(s.store.SetDefaultTranches(s.ctx, holder, []domain.Tranche{s.t1, s.t2}))

	legs, err := s.resolver.Plan(s.ctx, holder, 12)
	s.Require().NoError(err)
	s.Equal([]Leg{{Tranche: s.t1, Amount: 5}, {Tranche: s.t2, Amount: 7}}, legs)
}

func (s *PlanSuite) TestStopsOnceCovered() {
	s.Require().NoError(s.store.Credit(s.ctx, holder, s.t1, 50))
	s.Require().NoError(s.store.Credit(s.ctx, holder, s.t2, 50))
	s.Require().NoError(s.store.SetDefaultTranches(s.ctx, holder, []domain.Tranche{s.t1, s.t2}))

	legs, err := s.resolver.Plan(s.ctx, holder, 30)
	s.Require().NoError(err)
	s.Equal([]Leg{{Tranche: s.t1, Amount: 30}}, legs)
}

func (s *PlanSuite) TestSkipsEmptyTranches() {
	s.Require().NoError(s.store.Credit(s.ctx, holder, s.t3, 20))
	s.Require().NoError(s.store.SetDefaultTranches(s.ctx, holder, []domain.Tranche{s.t1, s.t3}))

	legs, err := s.resolver.Plan(s.ctx, holder, 20)
	s.Require().NoError(err)
	s.Equal([]Leg{{Tranche: s.t3, Amount: 20}}, legs)
}

func (s *PlanSuite) TestShortfallFailsWholly() {
	s.Require().NoError(s.store.Credit(s.ctx, holder, s.t1, 5))
	s.Require().NoError(s.store.SetDefaultTranches(s.ctx, holder, []domain.Tranche{s.t1}))

	_, err := s.resolver.Plan(s.ctx, holder, 12)
	s.Require().Error(err)
	s.Equal(dErrors.CodeInsufficientDefaultTrancheBalance, dErrors.CodeOf(err))
}

func (s *PlanSuite) TestEmptySequenceDisallowsSend() {
	s.Require().NoError(s.store.Credit(s.ctx, holder, s.t1, 100))

	_, err := s.resolver.Plan(s.ctx, holder, 1)
	s.Require().Error(err)
	s.Equal(dErrors.CodeInsufficientDefaultTrancheBalance, dErrors.CodeOf(err))
}

func (s *PlanSuite) TestZeroAmountRejected() {
	_, err := s.resolver.Plan(s.ctx, holder, 0)
	s.Equal(dErrors.CodeInvalidAmount, dErrors.CodeOf(err))
}
