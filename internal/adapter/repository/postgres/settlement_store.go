package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/lorefall/lorefall-backend/internal/domain"
)

// settlementStore implements domain.SettlementStore
type settlementStore struct {
	db *DB
}

// NewSettlementStore creates a new settlement store
func NewSettlementStore(db *DB) domain.SettlementStore {
	return &settlementStore{db: db}
}

// ApplySettlement applies every settlement write in one database
// transaction: the receipt row, all balance credits, the treasury credit,
// the domain's residual balances and the removal of the scheduled event.
// The receipt's primary key turns a replayed settlement into
// ErrAlreadyApplied before anything is credited; balance writes are additive
// so concurrent unrelated updates to the same user are tolerated.
func (s *settlementStore) ApplySettlement(ctx context.Context, settle *domain.Settlement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin settlement transaction: %w", err)
	}
	defer tx.Rollback()

	insertReceipt := `
		INSERT INTO distribution_receipts (distribution_id, domain_id, executed_at)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.ExecContext(ctx, insertReceipt, settle.DistributionID, settle.DomainID, settle.ExecutedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return domain.ErrAlreadyApplied
		}
		return fmt.Errorf("failed to insert settlement receipt: %w", err)
	}

	creditUser := `
		UPDATE users SET balance = balance + $2 WHERE id = $1
	`
	for _, credit := range settle.Credits {
		res, err := tx.ExecContext(ctx, creditUser, credit.UserID, credit.Amount.String())
		if err != nil {
			return fmt.Errorf("failed to credit user %s: %w", credit.UserID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check user credit: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("cannot credit unknown user %s", credit.UserID)
		}
	}

	if settle.TreasuryID != nil && settle.TreasuryAmount.IsPositive() {
		creditTreasury := `
			UPDATE alliances SET treasury_balance = treasury_balance + $2 WHERE id = $1
		`
		res, err := tx.ExecContext(ctx, creditTreasury, *settle.TreasuryID, settle.TreasuryAmount.String())
		if err != nil {
			return fmt.Errorf("failed to credit alliance treasury %s: %w", *settle.TreasuryID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check treasury credit: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("cannot credit unknown alliance %s", *settle.TreasuryID)
		}
	}

	updateDomain := `
		UPDATE domains
		SET point_balance = 0,
		    carryover_balance = $2,
		    points_last_accrued_at = $3,
		    last_executed_at = $4
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, updateDomain, settle.DomainID, settle.Carryover.String(), settle.AccruedAt, settle.ExecutedAt); err != nil {
		return fmt.Errorf("failed to update domain %s: %w", settle.DomainID, err)
	}

	deleteSchedule := `
		DELETE FROM scheduled_distributions WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, deleteSchedule, settle.DistributionID); err != nil {
		return fmt.Errorf("failed to delete scheduled distribution %s: %w", settle.DistributionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settlement: %w", err)
	}
	return nil
}
