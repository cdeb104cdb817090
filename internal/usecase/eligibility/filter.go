package eligibility

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lorefall/lorefall-backend/internal/domain"
)

// Filter decides block/allow for recipient candidates against the frozen
// blacklists and enemy-alliance facts of a scheduled distribution, and
// answers presence checks for the conditional recipient classes through the
// external travel oracle.
type Filter struct {
	presence domain.PresenceOracle
}

// NewFilter creates a new Filter instance.
func NewFilter(presence domain.PresenceOracle) *Filter {
	return &Filter{presence: presence}
}

// IsBlocked reports whether the candidate is excluded from every rule class:
// invalid identity, blacklisted user, blacklisted alliance, or membership in
// an alliance captured as hostile while a master alliance is set.
func IsBlocked(c *domain.Candidate, sched *domain.ScheduledDistribution) bool {
	if c == nil || c.UserID == uuid.Nil {
		return true
	}
	if sched.Rules.IsUserBlacklisted(c.UserID) {
		return true
	}
	if c.AllianceID != nil {
		if sched.Rules.IsAllianceBlacklisted(*c.AllianceID) {
			return true
		}
		if sched.IsEnemyAlliance(*c.AllianceID) {
			return true
		}
	}
	return false
}

// Admit reports whether the candidate may participate in the given class for
// this distribution. Blocked candidates never participate; conditional
// classes additionally require the candidate to be present at the domain and
// not mid-transit.
func (f *Filter) Admit(ctx context.Context, c *domain.Candidate, class domain.RuleClass, sched *domain.ScheduledDistribution) (bool, error) {
	if IsBlocked(c, sched) {
		return false, nil
	}
	if !class.RequiresPresence() {
		return true, nil
	}

	present, err := f.presence.IsPresent(ctx, c.UserID, sched.DomainID)
	if err != nil {
		return false, fmt.Errorf("failed to check presence for user %s: %w", c.UserID, err)
	}
	return present, nil
}
