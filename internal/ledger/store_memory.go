package ledger

import (
	"context"
	"fmt"
	"sync"

	"tranchebook/pkg/domain"
	dErrors "tranchebook/pkg/domain-errors"
)

// Memory is the in-memory ledger store. It is the reference implementation of
// the accounting invariants and the store used by unit tests; the postgres
// store mirrors its semantics.
type Memory struct {
	mu sync.RWMutex

	holders map[domain.Address]*holderState
	supply  uint64
	// issuable is monotone: once false it never returns to true.
	issuable bool

	globalOps      []domain.Address
	globalOpSet    map[domain.Address]struct{}
	trancheOps     map[domain.Tranche][]domain.Address
	trancheOpSets  map[domain.Tranche]map[domain.Address]struct{}
}

type holderState struct {
	// order tracks live tranches in insertion order so TranchesOf is
	// deterministic.
	order    []domain.Tranche
	balances map[domain.Tranche]uint64

	defaults []domain.Tranche

	// Explicit grant layers: presence in the map means the layer was
	// touched; the value is granted (true) or revoked (false).
	accountGrants map[domain.Address]bool
	trancheGrants map[domain.Tranche]map[domain.Address]bool
}

// MemoryOption configures the memory store at construction.
type MemoryOption func(*Memory)

// WithGlobalOperators seeds the global default operator set. These operators
// are authorized for every holder and tranche and cannot be revoked
// account-wide by holders.
func WithGlobalOperators(ops ...domain.Address) MemoryOption {
	return func(m *Memory) {
		for _, op := range ops {
			if _, ok := m.globalOpSet[op]; ok {
				continue
			}
			m.globalOps = append(m.globalOps, op)
			m.globalOpSet[op] = struct{}{}
		}
	}
}

// WithTrancheOperators seeds the default operator set for one tranche.
func WithTrancheOperators(tranche domain.Tranche, ops ...domain.Address) MemoryOption {
	return func(m *Memory) {
		set, ok := m.trancheOpSets[tranche]
		if !ok {
			set = make(map[domain.Address]struct{})
			m.trancheOpSets[tranche] = set
		}
		for _, op := range ops {
			if _, dup := set[op]; dup {
				continue
			}
			m.trancheOps[tranche] = append(m.trancheOps[tranche], op)
			set[op] = struct{}{}
		}
	}
}

// NewMemory builds an empty, issuable ledger.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		holders:       make(map[domain.Address]*holderState),
		issuable:      true,
		globalOpSet:   make(map[domain.Address]struct{}),
		trancheOps:    make(map[domain.Tranche][]domain.Address),
		trancheOpSets: make(map[domain.Tranche]map[domain.Address]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) holder(addr domain.Address) *holderState {
	h, ok := m.holders[addr]
	if !ok {
		h = &holderState{
			balances:      make(map[domain.Tranche]uint64),
			accountGrants: make(map[domain.Address]bool),
			trancheGrants: make(map[domain.Tranche]map[domain.Address]bool),
		}
		m.holders[addr] = h
	}
	return h
}

func (m *Memory) BalanceOf(_ context.Context, holder domain.Address) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.holders[holder]
	if !ok {
		return 0, nil
	}
	var total uint64
	for _, amount := range h.balances {
		total += amount
	}
	return total, nil
}

func (m *Memory) BalanceOfTranche(_ context.Context, holder domain.Address, tranche domain.Tranche) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.holders[holder]
	if !ok {
		return 0, nil
	}
	return h.balances[tranche], nil
}

func (m *Memory) TotalSupply(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.supply, nil
}

func (m *Memory) TranchesOf(_ context.Context, holder domain.Address) ([]domain.Tranche, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.holders[holder]
	if !ok {
		return nil, nil
	}
	return append([]domain.Tranche(nil), h.order...), nil
}

func (m *Memory) HolderCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, h := range m.holders {
		if len(h.order) > 0 {
			count++
		}
	}
	return count, nil
}

func (m *Memory) Credit(_ context.Context, holder domain.Address, tranche domain.Tranche, amount uint64) error {
	if amount == 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "credit amount must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creditLocked(holder, tranche, amount)
	return nil
}

func (m *Memory) Debit(_ context.Context, holder domain.Address, tranche domain.Tranche, amount uint64) error {
	if amount == 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "debit amount must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debitLocked(holder, tranche, amount)
}

// MoveBetweenTranches shifts balance between two tranches of one holder as a
// single unit: supply is untouched and no intermediate state is observable.
func (m *Memory) MoveBetweenTranches(_ context.Context, holder domain.Address, from, to domain.Tranche, amount uint64) error {
	if amount == 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "move amount must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.debitLocked(holder, from, amount); err != nil {
		return err
	}
	m.creditLocked(holder, to, amount)
	return nil
}

func (m *Memory) creditLocked(holder domain.Address, tranche domain.Tranche, amount uint64) {
	h := m.holder(holder)
	if _, live := h.balances[tranche]; !live {
		h.order = append(h.order, tranche)
	}
	h.balances[tranche] += amount
	m.supply += amount
}

func (m *Memory) debitLocked(holder domain.Address, tranche domain.Tranche, amount uint64) error {
	h, ok := m.holders[holder]
	if !ok || h.balances[tranche] < amount {
		return dErrors.New(dErrors.CodeInsufficientBalance,
			fmt.Sprintf("balance of %s in tranche %s is below %d", holder, tranche, amount))
	}
	h.balances[tranche] -= amount
	m.supply -= amount
	if h.balances[tranche] == 0 {
		// Reclaim the entry so TranchesOf stays accurate.
		delete(h.balances, tranche)
		for i, t := range h.order {
			if t == tranche {
				h.order = append(h.order[:i], h.order[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (m *Memory) DefaultTranches(_ context.Context, holder domain.Address) ([]domain.Tranche, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.holders[holder]
	if !ok {
		return nil, nil
	}
	return append([]domain.Tranche(nil), h.defaults...), nil
}

func (m *Memory) SetDefaultTranches(_ context.Context, holder domain.Address, seq []domain.Tranche) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holder(holder).defaults = append([]domain.Tranche(nil), seq...)
	return nil
}

func (m *Memory) Issuable(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.issuable, nil
}

func (m *Memory) FinalizeIssuance(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.issuable {
		return false, nil
	}
	m.issuable = false
	return true, nil
}

func (m *Memory) GlobalOperators(_ context.Context) ([]domain.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Address(nil), m.globalOps...), nil
}

func (m *Memory) IsGlobalOperator(_ context.Context, operator domain.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.globalOpSet[operator]
	return ok, nil
}

func (m *Memory) TrancheDefaultOperators(_ context.Context, tranche domain.Tranche) ([]domain.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Address(nil), m.trancheOps[tranche]...), nil
}

func (m *Memory) IsTrancheDefaultOperator(_ context.Context, tranche domain.Tranche, operator domain.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.trancheOpSets[tranche][operator]
	return ok, nil
}

func (m *Memory) AccountGrant(_ context.Context, holder, operator domain.Address) (bool, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.holders[holder]
	if !ok {
		return false, false, nil
	}
	granted, set := h.accountGrants[operator]
	return granted, set, nil
}

func (m *Memory) SetAccountGrant(_ context.Context, holder, operator domain.Address, granted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holder(holder).accountGrants[operator] = granted
	return nil
}

func (m *Memory) TrancheGrant(_ context.Context, holder domain.Address, tranche domain.Tranche, operator domain.Address) (bool, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.holders[holder]
	if !ok {
		return false, false, nil
	}
	granted, set := h.trancheGrants[tranche][operator]
	return granted, set, nil
}

func (m *Memory) SetTrancheGrant(_ context.Context, holder domain.Address, tranche domain.Tranche, operator domain.Address, granted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.holder(holder)
	grants, ok := h.trancheGrants[tranche]
	if !ok {
		grants = make(map[domain.Address]bool)
		h.trancheGrants[tranche] = grants
	}
	grants[operator] = granted
	return nil
}
