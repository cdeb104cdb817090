package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DistributionScope controls how much of the accrued pool a scheduled
// distribution may touch.
type DistributionScope string

const (
	DistributionScopeAll     DistributionScope = "ALL"
	DistributionScopePartial DistributionScope = "PARTIAL"
)

// Domain represents a knowledge-accruing entity owned by a player.
// PointBalance grows monotonically between distributions and is zeroed only
// by settlement, never by the accrual tracker.
type Domain struct {
	ID                  uuid.UUID
	Name                string
	OwnerUserID         uuid.UUID
	PointBalance        decimal.Decimal // rounded to 2 decimal places
	PointsLastAccruedAt time.Time
	ProductivityFactor  decimal.Decimal // points accrued per elapsed minute
	CarryoverBalance    decimal.Decimal // undistributed remainder from previous cycles
	LastExecutedAt      *time.Time
	Scheduled           *ScheduledDistribution // at most one live instance
}

// Validate ensures the domain adheres to its invariants.
// Returns an error if validation fails.
func (d *Domain) Validate() error {
	if d.Name == "" {
		return errors.New("domain name cannot be empty")
	}
	if d.ProductivityFactor.LessThanOrEqual(decimal.Zero) {
		return errors.New("productivity factor must be positive")
	}
	if d.PointBalance.IsNegative() {
		return errors.New("point balance cannot be negative")
	}
	if d.CarryoverBalance.IsNegative() {
		return errors.New("carryover balance cannot be negative")
	}
	if d.Scheduled != nil && d.Scheduled.DomainID != d.ID {
		return errors.New("scheduled distribution must reference its own domain")
	}
	return nil
}

// ScheduledDistribution is created by the external lock-creation flow and
// consumed exactly once by this engine. Its RuleSnapshot and alliance facts
// are frozen at scheduling time; later edits to the live rule configuration
// must not affect an already-scheduled event.
type ScheduledDistribution struct {
	ID                          uuid.UUID // idempotency token for settlement
	DomainID                    uuid.UUID
	DueAt                       time.Time
	Rules                       RuleSnapshot
	Scope                       DistributionScope
	DistributionPercent         int // 0-100, meaningful only when Scope is PARTIAL
	AllianceContributionPercent int // 0-100
	MasterAllianceID            *uuid.UUID
	EnemyAllianceIDs            []uuid.UUID
}

// Due reports whether the distribution is ready to execute at now.
func (s *ScheduledDistribution) Due(now time.Time) bool {
	return !s.DueAt.After(now)
}

// EffectiveDistributionPercent returns the share of the pool this event may
// distribute: 100 unless the scope is PARTIAL.
func (s *ScheduledDistribution) EffectiveDistributionPercent() int {
	if s.Scope == DistributionScopePartial {
		return ClampPercent(s.DistributionPercent)
	}
	return 100
}

// IsEnemyAlliance reports whether the alliance was captured as hostile at
// scheduling time. Always false when no master alliance is set.
func (s *ScheduledDistribution) IsEnemyAlliance(allianceID uuid.UUID) bool {
	if s.MasterAllianceID == nil {
		return false
	}
	for _, id := range s.EnemyAllianceIDs {
		if id == allianceID {
			return true
		}
	}
	return false
}

// Validate ensures the scheduled distribution adheres to its invariants.
func (s *ScheduledDistribution) Validate() error {
	if s.ID == uuid.Nil {
		return errors.New("scheduled distribution ID is required")
	}
	if s.DomainID == uuid.Nil {
		return errors.New("scheduled distribution must reference a domain")
	}
	if s.DueAt.IsZero() {
		return errors.New("scheduled distribution due time is required")
	}
	if s.Scope != DistributionScopeAll && s.Scope != DistributionScopePartial {
		return errors.New("distribution scope must be ALL or PARTIAL")
	}
	return nil
}
