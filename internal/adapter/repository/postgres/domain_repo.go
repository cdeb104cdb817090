package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lorefall/lorefall-backend/internal/domain"
)

// domainRepository implements domain.DomainRepository
type domainRepository struct {
	db *DB
}

// NewDomainRepository creates a new domain repository
func NewDomainRepository(db *DB) domain.DomainRepository {
	return &domainRepository{db: db}
}

const domainColumns = `
	d.id, d.name, d.owner_user_id, d.point_balance, d.points_last_accrued_at,
	d.productivity_factor, d.carryover_balance, d.last_executed_at,
	s.id, s.due_at, s.scope, s.distribution_percent,
	s.alliance_contribution_percent, s.master_alliance_id,
	s.enemy_alliance_ids, s.rules
`

// GetByID retrieves a domain, including its scheduled distribution if any.
func (r *domainRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Domain, error) {
	query := `
		SELECT ` + domainColumns + `
		FROM domains d
		LEFT JOIN scheduled_distributions s ON s.domain_id = d.id
		WHERE d.id = $1
	`

	d, err := scanDomain(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get domain by ID: %w", err)
	}
	return d, nil
}

// ListDueForDistribution retrieves all domains whose scheduled distribution
// is due at or before now, oldest due time first.
func (r *domainRepository) ListDueForDistribution(ctx context.Context, now time.Time) ([]*domain.Domain, error) {
	query := `
		SELECT ` + domainColumns + `
		FROM domains d
		JOIN scheduled_distributions s ON s.domain_id = d.id
		WHERE s.due_at <= $1
		ORDER BY s.due_at
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due domains: %w", err)
	}
	defer rows.Close()

	var domains []*domain.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due domain: %w", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// Create creates a new domain.
func (r *domainRepository) Create(ctx context.Context, d *domain.Domain) error {
	if err := d.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO domains (id, name, owner_user_id, point_balance, points_last_accrued_at, productivity_factor, carryover_balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		d.ID,
		d.Name,
		d.OwnerUserID,
		d.PointBalance.String(),
		d.PointsLastAccruedAt,
		d.ProductivityFactor.String(),
		d.CarryoverBalance.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to create domain: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanDomain reads one joined domain/schedule row. The schedule columns are
// NULL when the domain has no live scheduled distribution.
func scanDomain(row rowScanner) (*domain.Domain, error) {
	var d domain.Domain
	var pointBalance, productivityFactor, carryover string
	var lastExecutedAt sql.NullTime

	var schedID sql.NullString
	var dueAt sql.NullTime
	var scope sql.NullString
	var distributionPercent, contributionPercent sql.NullInt64
	var masterAllianceID sql.NullString
	var enemyJSON, rulesJSON []byte

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.OwnerUserID,
		&pointBalance,
		&d.PointsLastAccruedAt,
		&productivityFactor,
		&carryover,
		&lastExecutedAt,
		&schedID,
		&dueAt,
		&scope,
		&distributionPercent,
		&contributionPercent,
		&masterAllianceID,
		&enemyJSON,
		&rulesJSON,
	)
	if err != nil {
		return nil, err
	}

	if d.PointBalance, err = decimal.NewFromString(pointBalance); err != nil {
		return nil, fmt.Errorf("failed to parse point_balance: %w", err)
	}
	if d.ProductivityFactor, err = decimal.NewFromString(productivityFactor); err != nil {
		return nil, fmt.Errorf("failed to parse productivity_factor: %w", err)
	}
	if d.CarryoverBalance, err = decimal.NewFromString(carryover); err != nil {
		return nil, fmt.Errorf("failed to parse carryover_balance: %w", err)
	}
	if lastExecutedAt.Valid {
		d.LastExecutedAt = &lastExecutedAt.Time
	}

	if !schedID.Valid {
		return &d, nil
	}

	sched := domain.ScheduledDistribution{
		DomainID:                    d.ID,
		DueAt:                       dueAt.Time,
		Scope:                       domain.DistributionScope(scope.String),
		DistributionPercent:         int(distributionPercent.Int64),
		AllianceContributionPercent: int(contributionPercent.Int64),
	}
	if sched.ID, err = uuid.Parse(schedID.String); err != nil {
		return nil, fmt.Errorf("failed to parse scheduled distribution ID: %w", err)
	}
	if masterAllianceID.Valid {
		allianceID, err := uuid.Parse(masterAllianceID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse master_alliance_id: %w", err)
		}
		sched.MasterAllianceID = &allianceID
	}
	if len(enemyJSON) > 0 {
		if err := json.Unmarshal(enemyJSON, &sched.EnemyAllianceIDs); err != nil {
			return nil, fmt.Errorf("failed to parse enemy_alliance_ids: %w", err)
		}
	}
	if err := json.Unmarshal(rulesJSON, &sched.Rules); err != nil {
		return nil, fmt.Errorf("failed to parse rule snapshot: %w", err)
	}

	d.Scheduled = &sched
	return &d, nil
}
