package domain

import (
	"github.com/google/uuid"
)

// RuleSnapshot is an immutable copy of a distribution rule configuration,
// captured at scheduling time. Percent fields are clamped into [0,100] on
// load rather than rejected. The engine deliberately does NOT validate that
// the class percentages sum to 100 or less; each class is evaluated
// independently against the distributable pool and the allocator clamps
// sequentially (see allocator.Compute).
type RuleSnapshot struct {
	MasterUserID              uuid.UUID         `json:"master_user_id"`
	MasterPercent             int               `json:"master_percent"`
	AdminPercents             map[uuid.UUID]int `json:"admin_percents,omitempty"`       // designated deputies, paid regardless of presence
	CustomUserPercents        map[uuid.UUID]int `json:"custom_user_percents,omitempty"` // named individuals, presence required
	NonHostileAlliancePercent int               `json:"non_hostile_alliance_percent"`
	SpecificAlliancePercents  map[uuid.UUID]int `json:"specific_alliance_percents,omitempty"`
	NoAlliancePercent         int               `json:"no_alliance_percent"`
	BlacklistUserIDs          []uuid.UUID       `json:"blacklist_user_ids,omitempty"`
	BlacklistAllianceIDs      []uuid.UUID       `json:"blacklist_alliance_ids,omitempty"`
}

// ClampPercent forces a percentage into the valid [0,100] range.
func ClampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Normalize clamps every percent field into [0,100]. Called once when the
// snapshot is loaded so downstream math can assume valid ranges.
func (s *RuleSnapshot) Normalize() {
	s.MasterPercent = ClampPercent(s.MasterPercent)
	s.NonHostileAlliancePercent = ClampPercent(s.NonHostileAlliancePercent)
	s.NoAlliancePercent = ClampPercent(s.NoAlliancePercent)
	for id, p := range s.AdminPercents {
		s.AdminPercents[id] = ClampPercent(p)
	}
	for id, p := range s.CustomUserPercents {
		s.CustomUserPercents[id] = ClampPercent(p)
	}
	for id, p := range s.SpecificAlliancePercents {
		s.SpecificAlliancePercents[id] = ClampPercent(p)
	}
}

// IsUserBlacklisted reports whether the user is excluded from every class.
func (s *RuleSnapshot) IsUserBlacklisted(userID uuid.UUID) bool {
	for _, id := range s.BlacklistUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsAllianceBlacklisted reports whether members of the alliance are excluded
// from every class.
func (s *RuleSnapshot) IsAllianceBlacklisted(allianceID uuid.UUID) bool {
	for _, id := range s.BlacklistAllianceIDs {
		if id == allianceID {
			return true
		}
	}
	return false
}
