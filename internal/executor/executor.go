// Package executor orchestrates every mutating ledger operation: authorize
// the caller, validate the move, mutate state, then notify. It owns the
// single-writer boundary, one mutex around all mutations, so the layers
// below never need their own cross-operation locking. Read-only queries and
// advisory checks bypass the lock and see consistent snapshots.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"tranchebook/internal/events"
	"tranchebook/internal/executor/metrics"
	"tranchebook/internal/ledger"
	"tranchebook/internal/operator"
	"tranchebook/internal/tranche"
	"tranchebook/internal/validation"
	"tranchebook/pkg/domain"
	dErrors "tranchebook/pkg/domain-errors"
)

// UnitOfWork brackets one mutating operation. The SQL implementation opens a
// transaction and carries it through context; the memory implementation just
// runs fn.
type UnitOfWork interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopUnitOfWork runs fn directly, for stores with no transaction concept.
type NopUnitOfWork struct{}

func (NopUnitOfWork) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// TicketConsumer retires single-use approval tickets after a transfer
// commits. Optional; the reference approval verifier implements it.
type TicketConsumer interface {
	Consume(ctx context.Context, data []byte)
}

// Executor is the single entry point for ledger mutations.
type Executor struct {
	mu sync.Mutex

	store     ledger.Store
	operators *operator.Resolver
	defaults  *tranche.Resolver
	engine    *validation.Engine
	publisher events.Publisher
	uow       UnitOfWork

	// controller is the only address allowed to issue and to finalize
	// issuance.
	controller domain.Address

	consumer TicketConsumer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option configures the Executor.
type Option func(*Executor)

// WithTicketConsumer wires post-commit approval ticket retirement.
func WithTicketConsumer(c TicketConsumer) Option {
	return func(e *Executor) { e.consumer = c }
}

// WithUnitOfWork replaces the no-op transaction bracket.
func WithUnitOfWork(u UnitOfWork) Option {
	return func(e *Executor) { e.uow = u }
}

// WithMetrics wires the prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// New constructs the executor.
func New(
	store ledger.Store,
	operators *operator.Resolver,
	defaults *tranche.Resolver,
	engine *validation.Engine,
	publisher events.Publisher,
	controller domain.Address,
	logger *slog.Logger,
	opts ...Option,
) *Executor {
	e := &Executor{
		store:      store,
		operators:  operators,
		defaults:   defaults,
		engine:     engine,
		publisher:  publisher,
		uow:        NopUnitOfWork{},
		controller: controller,
		logger:     logger,
		tracer:     otel.Tracer("tranchebook/executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SendParams is one transfer leg.
type SendParams struct {
	// From defaults to the caller when zero.
	From         domain.Address
	To           domain.Address
	Tranche      domain.Tranche
	Amount       uint64
	Data         []byte
	OperatorData []byte
}

// Send moves amount from one tranche of From to the policy-resolved
// destination tranche of To. Callers other than From must hold operator
// standing covering the source tranche. Returns the destination tranche.
func (e *Executor) Send(ctx context.Context, caller domain.Address, p SendParams) (domain.Tranche, error) {
	var destination domain.Tranche
	err := e.mutate(ctx, "send", func(ctx context.Context) error {
		verdict, err := e.sendLocked(ctx, caller, p)
		if err != nil {
			return err
		}
		destination = verdict.Destination
		return nil
	})
	return destination, err
}

// sendLocked authorizes, validates, and applies one leg. Callers hold the
// write lock.
func (e *Executor) sendLocked(ctx context.Context, caller domain.Address, p SendParams) (validation.Verdict, error) {
	from := p.From
	if from.IsZero() {
		from = caller
	}
	if err := e.requireSendAuthority(ctx, caller, from, p.Tranche); err != nil {
		return validation.Verdict{}, err
	}

	verdict, err := e.engine.Validate(ctx, validation.Request{
		From:    from,
		To:      p.To,
		Tranche: p.Tranche,
		Amount:  p.Amount,
		Data:    p.Data,
	})
	if err != nil {
		return validation.Verdict{}, fmt.Errorf("validate transfer: %w", err)
	}
	if !verdict.Allowed() {
		return verdict, verdict.Err()
	}

	if err := e.store.Debit(ctx, from, p.Tranche, p.Amount); err != nil {
		return verdict, err
	}
	if err := e.store.Credit(ctx, p.To, verdict.Destination, p.Amount); err != nil {
		return verdict, err
	}

	e.consumeTicket(ctx, p.Data)

	ev := events.New(events.TypeTransferred)
	ev.Operator = caller
	ev.From = from
	ev.To = p.To
	ev.FromTranche = p.Tranche.String()
	ev.ToTranche = verdict.Destination.String()
	ev.Amount = p.Amount
	ev.Data = p.Data
	ev.OperatorData = p.OperatorData
	e.emit(ctx, ev)
	return verdict, nil
}

// SendMulti executes a batch of legs atomically: every leg is validated
// against the batch's working state before any leg commits, and a failing
// leg fails the whole batch with no state change. Legs are validated against
// the pre-batch balances net of earlier legs' debits; credits made by
// earlier legs are not spendable within the same batch.
func (e *Executor) SendMulti(ctx context.Context, caller domain.Address, legs []SendParams) ([]domain.Tranche, error) {
	if len(legs) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "batch must contain at least one leg")
	}
	destinations := make([]domain.Tranche, len(legs))
	err := e.mutate(ctx, "send_multi", func(ctx context.Context) error {
		type plannedLeg struct {
			from        domain.Address
			destination domain.Tranche
		}
		planned := make([]plannedLeg, len(legs))

		// Working view of source balances across the batch.
		type key struct {
			holder  domain.Address
			tranche domain.Tranche
		}
		available := make(map[key]uint64)

		for i, p := range legs {
			from := p.From
			if from.IsZero() {
				from = caller
			}
			if err := e.requireSendAuthority(ctx, caller, from, p.Tranche); err != nil {
				return fmt.Errorf("leg %d: %w", i, err)
			}

			k := key{from, p.Tranche}
			if _, seen := available[k]; !seen {
				balance, err := e.store.BalanceOfTranche(ctx, from, p.Tranche)
				if err != nil {
					return fmt.Errorf("leg %d balance: %w", i, err)
				}
				available[k] = balance
			}
			if available[k] < p.Amount {
				return dErrors.New(dErrors.CodeInsufficientBalance,
					fmt.Sprintf("leg %d overdraws its source tranche within the batch", i))
			}

			verdict, err := e.engine.Validate(ctx, validation.Request{
				From:    from,
				To:      p.To,
				Tranche: p.Tranche,
				Amount:  p.Amount,
				Data:    p.Data,
			})
			if err != nil {
				return fmt.Errorf("leg %d validate: %w", i, err)
			}
			if !verdict.Allowed() {
				return fmt.Errorf("leg %d: %w", i, verdict.Err())
			}
			available[k] -= p.Amount
			planned[i] = plannedLeg{from: from, destination: verdict.Destination}
		}

		// All legs hold; apply and notify.
		for i, p := range legs {
			if err := e.store.Debit(ctx, planned[i].from, p.Tranche, p.Amount); err != nil {
				return fmt.Errorf("leg %d debit: %w", i, err)
			}
			if err := e.store.Credit(ctx, p.To, planned[i].destination, p.Amount); err != nil {
				return fmt.Errorf("leg %d credit: %w", i, err)
			}
			destinations[i] = planned[i].destination

			e.consumeTicket(ctx, p.Data)
			ev := events.New(events.TypeTransferred)
			ev.Operator = caller
			ev.From = planned[i].from
			ev.To = p.To
			ev.FromTranche = p.Tranche.String()
			ev.ToTranche = planned[i].destination.String()
			ev.Amount = p.Amount
			ev.Data = p.Data
			ev.OperatorData = p.OperatorData
			e.emit(ctx, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return destinations, nil
}

// TransferParams is a tranche-unaware transfer request.
type TransferParams struct {
	// From defaults to the caller when zero.
	From   domain.Address
	To     domain.Address
	Amount uint64
	Data   []byte
}

// Transfer is the fungible-view send: it walks From's default tranche
// sequence in order, draining each tranche until the amount is covered, and
// fails wholly when the sequence cannot cover it. Each drained leg credits
// the tranche the destination policy resolves for it, the same routing Send
// applies. Operator-initiated calls require account-wide standing, since any
// tranche may be touched.
func (e *Executor) Transfer(ctx context.Context, caller domain.Address, p TransferParams) ([]tranche.Leg, error) {
	var legs []tranche.Leg
	err := e.mutate(ctx, "transfer", func(ctx context.Context) error {
		from := p.From
		if from.IsZero() {
			from = caller
		}
		if caller != from {
			ok, err := e.operators.IsOperatorFor(ctx, caller, from)
			if err != nil {
				return fmt.Errorf("operator check: %w", err)
			}
			if !ok {
				return dErrors.New(dErrors.CodeNotAuthorized,
					fmt.Sprintf("%s is not an account-wide operator for %s", caller, from))
			}
		}

		plan, err := e.defaults.Plan(ctx, from, p.Amount)
		if err != nil {
			return err
		}

		destinations := make([]domain.Tranche, len(plan))
		for i, leg := range plan {
			verdict, err := e.engine.Validate(ctx, validation.Request{
				From:    from,
				To:      p.To,
				Tranche: leg.Tranche,
				Amount:  leg.Amount,
				Data:    p.Data,
			})
			if err != nil {
				return fmt.Errorf("validate leg %s: %w", leg.Tranche, err)
			}
			if !verdict.Allowed() {
				return verdict.Err()
			}
			destinations[i] = verdict.Destination
		}

		for i, leg := range plan {
			if err := e.store.Debit(ctx, from, leg.Tranche, leg.Amount); err != nil {
				return err
			}
			if err := e.store.Credit(ctx, p.To, destinations[i], leg.Amount); err != nil {
				return err
			}
			ev := events.New(events.TypeTransferred)
			ev.Operator = caller
			ev.From = from
			ev.To = p.To
			ev.FromTranche = leg.Tranche.String()
			ev.ToTranche = destinations[i].String()
			ev.Amount = leg.Amount
			ev.Data = p.Data
			e.emit(ctx, ev)
		}
		legs = plan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return legs, nil
}

// RedeemParams is a redemption (burn) request.
type RedeemParams struct {
	// Holder defaults to the caller when zero.
	Holder       domain.Address
	Tranche      domain.Tranche
	Amount       uint64
	Data         []byte
	OperatorData []byte
}

// Redeem burns amount from one tranche of Holder; total supply decreases.
func (e *Executor) Redeem(ctx context.Context, caller domain.Address, p RedeemParams) error {
	return e.mutate(ctx, "redeem", func(ctx context.Context) error {
		holder := p.Holder
		if holder.IsZero() {
			holder = caller
		}
		if err := e.requireSendAuthority(ctx, caller, holder, p.Tranche); err != nil {
			return err
		}
		if p.Amount == 0 {
			return dErrors.New(dErrors.CodeInvalidAmount, "redemption amount must be positive")
		}
		if err := e.store.Debit(ctx, holder, p.Tranche, p.Amount); err != nil {
			return err
		}

		ev := events.New(events.TypeRedeemed)
		ev.Operator = caller
		ev.Holder = holder
		ev.FromTranche = p.Tranche.String()
		ev.Amount = p.Amount
		ev.Data = p.Data
		ev.OperatorData = p.OperatorData
		e.emit(ctx, ev)
		return nil
	})
}

// IssueParams is an issuance (mint) request.
type IssueParams struct {
	Holder  domain.Address
	Tranche domain.Tranche
	Amount  uint64
	Data    []byte
}

// Issue mints amount into one tranche of Holder. Only the controller may
// issue, and only while issuance is not finalized.
func (e *Executor) Issue(ctx context.Context, caller domain.Address, p IssueParams) error {
	return e.mutate(ctx, "issue", func(ctx context.Context) error {
		if caller != e.controller {
			return dErrors.New(dErrors.CodeNotAuthorized,
				fmt.Sprintf("%s is not the instrument controller", caller))
		}
		issuable, err := e.store.Issuable(ctx)
		if err != nil {
			return fmt.Errorf("issuable: %w", err)
		}
		if !issuable {
			return dErrors.New(dErrors.CodeIssuanceFinalized, "issuance has been finalized")
		}
		if p.Amount == 0 {
			return dErrors.New(dErrors.CodeInvalidAmount, "issuance amount must be positive")
		}
		if err := e.store.Credit(ctx, p.Holder, p.Tranche, p.Amount); err != nil {
			return err
		}

		ev := events.New(events.TypeIssued)
		ev.Operator = caller
		ev.Holder = p.Holder
		ev.ToTranche = p.Tranche.String()
		ev.Amount = p.Amount
		ev.Data = p.Data
		e.emit(ctx, ev)
		return nil
	})
}

// Issuable reports whether further issuance is possible.
func (e *Executor) Issuable(ctx context.Context) (bool, error) {
	return e.store.Issuable(ctx)
}

// FinalizeIssuance permanently disables issuance. Controller-only. Repeat
// calls are no-ops: the flag never returns to true.
func (e *Executor) FinalizeIssuance(ctx context.Context, caller domain.Address) error {
	return e.mutate(ctx, "finalize_issuance", func(ctx context.Context) error {
		if caller != e.controller {
			return dErrors.New(dErrors.CodeNotAuthorized,
				fmt.Sprintf("%s is not the instrument controller", caller))
		}
		changed, err := e.store.FinalizeIssuance(ctx)
		if err != nil {
			return fmt.Errorf("finalize issuance: %w", err)
		}
		if changed {
			e.logger.Info("issuance finalized", "controller", caller)
		}
		return nil
	})
}

// CheckSend is the read-only advisory check: the verdict reflects state at
// call time and is not a commitment. It never mutates and takes no lock.
func (e *Executor) CheckSend(ctx context.Context, from, to domain.Address, t domain.Tranche, amount uint64, data []byte) (validation.Verdict, error) {
	ctx, span := e.tracer.Start(ctx, "executor.check_send")
	defer span.End()
	return e.engine.Validate(ctx, validation.Request{
		From:    from,
		To:      to,
		Tranche: t,
		Amount:  amount,
		Data:    data,
	})
}

// CheckSendMulti runs advisory checks for several prospective transfers
// concurrently. Each verdict is independent; batch interactions are only
// assessed by SendMulti itself.
func (e *Executor) CheckSendMulti(ctx context.Context, reqs []validation.Request) ([]validation.Verdict, error) {
	verdicts := make([]validation.Verdict, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			verdict, err := e.engine.Validate(ctx, req)
			if err != nil {
				return err
			}
			verdicts[i] = verdict
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return verdicts, nil
}

// SetDefaultTranches replaces holder's default sequence. The caller must be
// the holder or a full-balance operator.
func (e *Executor) SetDefaultTranches(ctx context.Context, caller, holder domain.Address, seq []domain.Tranche) error {
	return e.mutate(ctx, "set_default_tranches", func(ctx context.Context) error {
		if caller != holder {
			ok, err := e.operators.IsOperatorFor(ctx, caller, holder)
			if err != nil {
				return fmt.Errorf("operator check: %w", err)
			}
			if !ok {
				return dErrors.New(dErrors.CodeNotAuthorized,
					fmt.Sprintf("%s is not an account-wide operator for %s", caller, holder))
			}
		}
		return e.store.SetDefaultTranches(ctx, holder, seq)
	})
}

// GetDefaultTranches returns holder's default sequence.
func (e *Executor) GetDefaultTranches(ctx context.Context, holder domain.Address) ([]domain.Tranche, error) {
	return e.defaults.DefaultsOf(ctx, holder)
}

// AuthorizeOperator grants op account-wide standing over the caller.
func (e *Executor) AuthorizeOperator(ctx context.Context, caller, op domain.Address) error {
	return e.mutate(ctx, "authorize_operator", func(ctx context.Context) error {
		if err := e.operators.Authorize(ctx, caller, op); err != nil {
			return err
		}
		ev := events.New(events.TypeOperatorAuthorized)
		ev.Holder = caller
		ev.Operator = op
		e.emit(ctx, ev)
		return nil
	})
}

// RevokeOperator removes op's account-wide standing over the caller. Global
// default operators cannot be revoked.
func (e *Executor) RevokeOperator(ctx context.Context, caller, op domain.Address) error {
	return e.mutate(ctx, "revoke_operator", func(ctx context.Context) error {
		if err := e.operators.Revoke(ctx, caller, op); err != nil {
			return err
		}
		ev := events.New(events.TypeOperatorRevoked)
		ev.Holder = caller
		ev.Operator = op
		e.emit(ctx, ev)
		return nil
	})
}

// AuthorizeOperatorByTranche grants op standing over one tranche of the
// caller's balance.
func (e *Executor) AuthorizeOperatorByTranche(ctx context.Context, caller domain.Address, t domain.Tranche, op domain.Address) error {
	return e.mutate(ctx, "authorize_operator_by_tranche", func(ctx context.Context) error {
		if err := e.operators.AuthorizeByTranche(ctx, caller, t, op); err != nil {
			return err
		}
		ev := events.New(events.TypeOperatorAuthorized)
		ev.Holder = caller
		ev.Operator = op
		ev.Tranche = t.String()
		e.emit(ctx, ev)
		return nil
	})
}

// RevokeOperatorByTranche masks op for exactly the (caller, tranche) pair.
func (e *Executor) RevokeOperatorByTranche(ctx context.Context, caller domain.Address, t domain.Tranche, op domain.Address) error {
	return e.mutate(ctx, "revoke_operator_by_tranche", func(ctx context.Context) error {
		if err := e.operators.RevokeByTranche(ctx, caller, t, op); err != nil {
			return err
		}
		ev := events.New(events.TypeOperatorRevoked)
		ev.Holder = caller
		ev.Operator = op
		ev.Tranche = t.String()
		e.emit(ctx, ev)
		return nil
	})
}

// requireSendAuthority checks whether caller may move holder's balance in the
// given tranche.
func (e *Executor) requireSendAuthority(ctx context.Context, caller, holder domain.Address, t domain.Tranche) error {
	if caller == holder {
		return nil
	}
	ok, err := e.operators.CanActOn(ctx, t, caller, holder)
	if err != nil {
		return fmt.Errorf("operator check: %w", err)
	}
	if !ok {
		return dErrors.New(dErrors.CodeNotAuthorized,
			fmt.Sprintf("%s is not an operator for %s on tranche %s", caller, holder, t))
	}
	return nil
}

// mutate funnels a mutating operation through the write lock, the unit of
// work, tracing, and metrics.
func (e *Executor) mutate(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "executor."+operation)
	defer span.End()

	e.mu.Lock()
	err := e.uow.Run(ctx, fn)
	e.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		span.SetAttributes(attribute.String("outcome", outcome))
		e.metrics.ObserveOperation(operation, outcome, time.Since(start))
		return err
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	e.metrics.ObserveOperation(operation, outcome, time.Since(start))

	if supply, supplyErr := e.store.TotalSupply(ctx); supplyErr == nil {
		e.metrics.SetTotalSupply(supply)
	}
	return nil
}

func (e *Executor) consumeTicket(ctx context.Context, data []byte) {
	if e.consumer != nil {
		e.consumer.Consume(ctx, data)
	}
}

// emit publishes an event after a successful mutation. Publish failures are
// logged and swallowed: the ledger state has already committed.
func (e *Executor) emit(ctx context.Context, ev events.Event) {
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Error("event publish failed",
			"event_id", ev.ID,
			"type", ev.Type,
			"error", err,
		)
	}
}
