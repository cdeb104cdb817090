package overview

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lorefall/lorefall-backend/internal/domain"
	"github.com/lorefall/lorefall-backend/internal/usecase/accrual"
)

// DomainOverview represents the read-model summary of one domain
type DomainOverview struct {
	DomainID         uuid.UUID
	Name             string
	PointBalance     decimal.Decimal
	CarryoverBalance decimal.Decimal
	// ProjectedPool is what a distribution executing right now would draw
	// on: stored points plus carryover plus the accrual earned since the
	// last stamp.
	ProjectedPool  decimal.Decimal
	NextDueAt      *time.Time
	LastExecutedAt *time.Time
}

// OverviewService handles read-only domain summary queries
type OverviewService struct {
	DomainRepo domain.DomainRepository
}

// NewOverviewService creates a new OverviewService instance
func NewOverviewService(domainRepo domain.DomainRepository) *OverviewService {
	return &OverviewService{DomainRepo: domainRepo}
}

// GetDomainOverview loads one domain and computes its projected pool as of now.
// Logic:
//   - ProjectedPool: PointBalance + CarryoverBalance + pending accrual to now
//   - NextDueAt: the scheduled distribution's due time, if one is pending
//
// The projection runs on a copy; nothing is persisted.
func (s *OverviewService) GetDomainOverview(ctx context.Context, domainID uuid.UUID, now time.Time) (*DomainOverview, error) {
	dom, err := s.DomainRepo.GetByID(ctx, domainID)
	if err != nil {
		return nil, fmt.Errorf("failed to load domain %s: %w", domainID, err)
	}

	storedBalance := dom.PointBalance
	accrual.Accrue(dom, now)

	result := &DomainOverview{
		DomainID:         dom.ID,
		Name:             dom.Name,
		PointBalance:     storedBalance,
		CarryoverBalance: dom.CarryoverBalance,
		ProjectedPool:    dom.PointBalance.Add(dom.CarryoverBalance),
		LastExecutedAt:   dom.LastExecutedAt,
	}
	if dom.Scheduled != nil {
		dueAt := dom.Scheduled.DueAt
		result.NextDueAt = &dueAt
	}

	return result, nil
}
