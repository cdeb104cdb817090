package seeder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lorefall/lorefall-backend/internal/domain"
)

// Fixed UUIDs for the demo world, so repeated local runs stay addressable
var (
	DemoDomainID   = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	DemoMasterID   = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	DemoDeputyID   = uuid.MustParse("00000000-0000-0000-0000-000000000003")
	DemoAllianceID = uuid.MustParse("00000000-0000-0000-0000-000000000004")
)

// WorldStore is the write surface the demo seeder needs. The in-memory store
// satisfies it; candidate and alliance records otherwise belong to the game
// services and have no repository write path here.
type WorldStore interface {
	Domains() domain.DomainRepository
	PutCandidate(c *domain.Candidate, at uuid.UUID)
	PutAlliance(a *domain.Alliance)
}

// DemoSeeder populates a store with a small demo world: one domain with a
// distribution due on the first scan, its master alliance, and a handful of
// candidates covering the grouped and ungrouped classes. Used for local runs
// without a database.
type DemoSeeder struct {
	store WorldStore
}

// NewDemoSeeder creates a new DemoSeeder instance.
func NewDemoSeeder(store WorldStore) *DemoSeeder {
	return &DemoSeeder{store: store}
}

// Seed writes the demo world. It is not idempotent; call it once on an empty
// store.
func (s *DemoSeeder) Seed(ctx context.Context, now time.Time) error {
	s.store.PutAlliance(&domain.Alliance{
		ID:              DemoAllianceID,
		Name:            "Order of the Lantern",
		TreasuryBalance: decimal.Zero,
		CreatedAt:       now,
	})

	s.store.PutCandidate(&domain.Candidate{
		UserID:     DemoMasterID,
		AllianceID: &DemoAllianceID,
		Balance:    decimal.Zero,
	}, DemoDomainID)
	s.store.PutCandidate(&domain.Candidate{
		UserID:     DemoDeputyID,
		AllianceID: &DemoAllianceID,
		Balance:    decimal.Zero,
	}, DemoDomainID)
	for i := 0; i < 3; i++ {
		s.store.PutCandidate(&domain.Candidate{
			UserID:  uuid.New(),
			Balance: decimal.Zero,
		}, DemoDomainID)
	}

	dom := &domain.Domain{
		ID:                  DemoDomainID,
		Name:                "Demo Reach",
		OwnerUserID:         DemoMasterID,
		PointBalance:        decimal.RequireFromString("100.00"),
		PointsLastAccruedAt: now,
		ProductivityFactor:  decimal.NewFromInt(1),
		CarryoverBalance:    decimal.Zero,
		Scheduled: &domain.ScheduledDistribution{
			ID:       uuid.New(),
			DomainID: DemoDomainID,
			DueAt:    now,
			Scope:    domain.DistributionScopeAll,
			Rules: domain.RuleSnapshot{
				MasterUserID:              DemoMasterID,
				MasterPercent:             10,
				AdminPercents:             map[uuid.UUID]int{DemoDeputyID: 5},
				NonHostileAlliancePercent: 10,
				NoAlliancePercent:         20,
			},
			AllianceContributionPercent: 15,
			MasterAllianceID:            &DemoAllianceID,
		},
	}

	return s.store.Domains().Create(ctx, dom)
}
