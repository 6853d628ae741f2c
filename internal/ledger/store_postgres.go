package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"tranchebook/pkg/domain"
	dErrors "tranchebook/pkg/domain-errors"
	"tranchebook/pkg/platform/tx"
)

// Postgres persists ledger state in PostgreSQL. It is pure I/O plus the same
// accounting invariants as the memory store; orchestration and authorization
// decisions stay in the layers above. Mutations join the transaction carried
// in context (pkg/platform/tx) when the executor opened one.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ledger store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) q(ctx context.Context) querier {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *Postgres) BalanceOf(ctx context.Context, holder domain.Address) (uint64, error) {
	var total int64
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_holdings WHERE holder = $1
	`, holder.String()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", holder, err)
	}
	return uint64(total), nil
}

func (s *Postgres) BalanceOfTranche(ctx context.Context, holder domain.Address, tranche domain.Tranche) (uint64, error) {
	var amount int64
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT amount FROM ledger_holdings WHERE holder = $1 AND tranche = $2
	`, holder.String(), tranche.Hex()).Scan(&amount)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("balance of %s by tranche: %w", holder, err)
	}
	return uint64(amount), nil
}

func (s *Postgres) TotalSupply(ctx context.Context) (uint64, error) {
	var total int64
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_holdings
	`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total supply: %w", err)
	}
	return uint64(total), nil
}

func (s *Postgres) TranchesOf(ctx context.Context, holder domain.Address) ([]domain.Tranche, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT tranche FROM ledger_holdings WHERE holder = $1 ORDER BY pos
	`, holder.String())
	if err != nil {
		return nil, fmt.Errorf("tranches of %s: %w", holder, err)
	}
	defer rows.Close()

	var tranches []domain.Tranche
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan tranche: %w", err)
		}
		t, err := domain.ParseTranche(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt tranche key %q: %w", raw, err)
		}
		tranches = append(tranches, t)
	}
	return tranches, rows.Err()
}

func (s *Postgres) HolderCount(ctx context.Context) (int, error) {
	var count int
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT holder) FROM ledger_holdings
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("holder count: %w", err)
	}
	return count, nil
}

func (s *Postgres) Credit(ctx context.Context, holder domain.Address, tranche domain.Tranche, amount uint64) error {
	if amount == 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "credit amount must be positive")
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO ledger_holdings (holder, tranche, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (holder, tranche) DO UPDATE SET
			amount = ledger_holdings.amount + EXCLUDED.amount
	`, holder.String(), tranche.Hex(), int64(amount))
	if err != nil {
		return fmt.Errorf("credit %s: %w", holder, err)
	}
	return nil
}

func (s *Postgres) Debit(ctx context.Context, holder domain.Address, tranche domain.Tranche, amount uint64) error {
	if amount == 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "debit amount must be positive")
	}
	// The guarded UPDATE both enforces no-negative-balance and avoids a
	// read-modify-write race when callers skip the executor lock.
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE ledger_holdings SET amount = amount - $3
		WHERE holder = $1 AND tranche = $2 AND amount >= $3
	`, holder.String(), tranche.Hex(), int64(amount))
	if err != nil {
		return fmt.Errorf("debit %s: %w", holder, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit %s: %w", holder, err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeInsufficientBalance,
			fmt.Sprintf("balance of %s in tranche %s is below %d", holder, tranche, amount))
	}
	// Reclaim the entry at zero so tranche enumeration stays accurate.
	_, err = s.q(ctx).ExecContext(ctx, `
		DELETE FROM ledger_holdings WHERE holder = $1 AND tranche = $2 AND amount = 0
	`, holder.String(), tranche.Hex())
	if err != nil {
		return fmt.Errorf("reclaim tranche entry: %w", err)
	}
	return nil
}

func (s *Postgres) MoveBetweenTranches(ctx context.Context, holder domain.Address, from, to domain.Tranche, amount uint64) error {
	if err := s.Debit(ctx, holder, from, amount); err != nil {
		return err
	}
	return s.Credit(ctx, holder, to, amount)
}

func (s *Postgres) DefaultTranches(ctx context.Context, holder domain.Address) ([]domain.Tranche, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT tranche FROM ledger_default_tranches WHERE holder = $1 ORDER BY position
	`, holder.String())
	if err != nil {
		return nil, fmt.Errorf("default tranches of %s: %w", holder, err)
	}
	defer rows.Close()

	var tranches []domain.Tranche
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan default tranche: %w", err)
		}
		t, err := domain.ParseTranche(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt tranche key %q: %w", raw, err)
		}
		tranches = append(tranches, t)
	}
	return tranches, rows.Err()
}

func (s *Postgres) SetDefaultTranches(ctx context.Context, holder domain.Address, seq []domain.Tranche) error {
	q := s.q(ctx)
	if _, err := q.ExecContext(ctx, `
		DELETE FROM ledger_default_tranches WHERE holder = $1
	`, holder.String()); err != nil {
		return fmt.Errorf("clear default tranches: %w", err)
	}
	for i, t := range seq {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO ledger_default_tranches (holder, position, tranche)
			VALUES ($1, $2, $3)
		`, holder.String(), i, t.Hex()); err != nil {
			return fmt.Errorf("set default tranche %d: %w", i, err)
		}
	}
	return nil
}

func (s *Postgres) Issuable(ctx context.Context) (bool, error) {
	var issuable bool
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT issuable FROM ledger_instrument WHERE id = TRUE
	`).Scan(&issuable)
	if err != nil {
		if err == sql.ErrNoRows {
			return true, nil
		}
		return false, fmt.Errorf("issuable: %w", err)
	}
	return issuable, nil
}

func (s *Postgres) FinalizeIssuance(ctx context.Context) (bool, error) {
	// The guarded upsert makes the transition one-way at the database level.
	res, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO ledger_instrument (id, issuable) VALUES (TRUE, FALSE)
		ON CONFLICT (id) DO UPDATE SET issuable = FALSE
		WHERE ledger_instrument.issuable = TRUE
	`)
	if err != nil {
		return false, fmt.Errorf("finalize issuance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finalize issuance: %w", err)
	}
	return affected > 0, nil
}

func (s *Postgres) GlobalOperators(ctx context.Context) ([]domain.Address, error) {
	return s.operatorList(ctx, `SELECT operator FROM ledger_global_operators ORDER BY pos`)
}

func (s *Postgres) IsGlobalOperator(ctx context.Context, operator domain.Address) (bool, error) {
	var exists bool
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM ledger_global_operators WHERE operator = $1)
	`, operator.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("is global operator: %w", err)
	}
	return exists, nil
}

func (s *Postgres) TrancheDefaultOperators(ctx context.Context, tranche domain.Tranche) ([]domain.Address, error) {
	return s.operatorList(ctx, `
		SELECT operator FROM ledger_tranche_operators WHERE tranche = $1 ORDER BY pos
	`, tranche.Hex())
}

func (s *Postgres) IsTrancheDefaultOperator(ctx context.Context, tranche domain.Tranche, operator domain.Address) (bool, error) {
	var exists bool
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM ledger_tranche_operators WHERE tranche = $1 AND operator = $2)
	`, tranche.Hex(), operator.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("is tranche default operator: %w", err)
	}
	return exists, nil
}

func (s *Postgres) operatorList(ctx context.Context, query string, args ...any) ([]domain.Address, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	defer rows.Close()

	var operators []domain.Address
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan operator: %w", err)
		}
		operators = append(operators, domain.Address(raw))
	}
	return operators, rows.Err()
}

func (s *Postgres) AccountGrant(ctx context.Context, holder, operator domain.Address) (bool, bool, error) {
	var granted bool
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT granted FROM ledger_account_grants WHERE holder = $1 AND operator = $2
	`, holder.String(), operator.String()).Scan(&granted)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, false, nil
		}
		return false, false, fmt.Errorf("account grant: %w", err)
	}
	return granted, true, nil
}

func (s *Postgres) SetAccountGrant(ctx context.Context, holder, operator domain.Address, granted bool) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO ledger_account_grants (holder, operator, granted)
		VALUES ($1, $2, $3)
		ON CONFLICT (holder, operator) DO UPDATE SET granted = EXCLUDED.granted
	`, holder.String(), operator.String(), granted)
	if err != nil {
		return fmt.Errorf("set account grant: %w", err)
	}
	return nil
}

func (s *Postgres) TrancheGrant(ctx context.Context, holder domain.Address, tranche domain.Tranche, operator domain.Address) (bool, bool, error) {
	var granted bool
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT granted FROM ledger_tranche_grants
		WHERE holder = $1 AND tranche = $2 AND operator = $3
	`, holder.String(), tranche.Hex(), operator.String()).Scan(&granted)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, false, nil
		}
		return false, false, fmt.Errorf("tranche grant: %w", err)
	}
	return granted, true, nil
}

func (s *Postgres) SetTrancheGrant(ctx context.Context, holder domain.Address, tranche domain.Tranche, operator domain.Address, granted bool) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO ledger_tranche_grants (holder, tranche, operator, granted)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (holder, tranche, operator) DO UPDATE SET granted = EXCLUDED.granted
	`, holder.String(), tranche.Hex(), operator.String(), granted)
	if err != nil {
		return fmt.Errorf("set tranche grant: %w", err)
	}
	return nil
}
