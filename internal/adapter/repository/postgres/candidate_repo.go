package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lorefall/lorefall-backend/internal/domain"
)

// candidateRepository implements domain.CandidateRepository
type candidateRepository struct {
	db *DB
}

// NewCandidateRepository creates a new candidate repository
func NewCandidateRepository(db *DB) domain.CandidateRepository {
	return &candidateRepository{db: db}
}

// GetByID retrieves a candidate by user identity.
func (r *candidateRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.Candidate, error) {
	query := `
		SELECT id, alliance_id, balance
		FROM users
		WHERE id = $1
	`

	c, err := scanCandidate(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get candidate by ID: %w", err)
	}
	return c, nil
}

// ListByLocation retrieves all candidates currently located at the domain.
// Transit status is deliberately not filtered here; the presence oracle owns
// that distinction.
func (r *candidateRepository) ListByLocation(ctx context.Context, domainID uuid.UUID) ([]*domain.Candidate, error) {
	query := `
		SELECT id, alliance_id, balance
		FROM users
		WHERE current_domain_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, domainID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates by location: %w", err)
	}
	defer rows.Close()

	var candidates []*domain.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func scanCandidate(row rowScanner) (*domain.Candidate, error) {
	var c domain.Candidate
	var allianceID sql.NullString
	var balanceStr string

	if err := row.Scan(&c.UserID, &allianceID, &balanceStr); err != nil {
		return nil, err
	}

	if allianceID.Valid {
		id, err := uuid.Parse(allianceID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse alliance_id: %w", err)
		}
		c.AllianceID = &id
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	c.Balance = balance

	return &c, nil
}
