package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lorefall/lorefall-backend/internal/domain"
)

// presenceOracle implements domain.PresenceOracle against the travel facts in
// the users table.
type presenceOracle struct {
	db *DB
}

// NewPresenceOracle creates a presence oracle backed by the database.
func NewPresenceOracle(db *DB) domain.PresenceOracle {
	return &presenceOracle{db: db}
}

// IsPresent reports whether the user's current location equals the domain and
// the user is not mid-transit. An unknown user is simply not present.
func (o *presenceOracle) IsPresent(ctx context.Context, userID, domainID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE id = $1 AND current_domain_id = $2 AND NOT in_transit
		)
	`

	var present bool
	if err := o.db.QueryRowContext(ctx, query, userID, domainID).Scan(&present); err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return present, nil
}
