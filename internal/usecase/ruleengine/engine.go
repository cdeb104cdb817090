package ruleengine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/lorefall/lorefall-backend/internal/domain"
	"github.com/lorefall/lorefall-backend/internal/usecase/eligibility"
)

// ErrMasterUnresolved signals that the master recipient no longer resolves to
// a valid, eligible identity. The caller degrades gracefully: the whole pool
// is folded into carryover and the scheduled event is cleared without
// crediting anyone.
var ErrMasterUnresolved = errors.New("master recipient is missing or ineligible")

// Engine resolves a frozen rule snapshot into per-class pool percentages and
// participant sets, and answers the read-only projection query used for
// pre-distribution estimates.
type Engine struct {
	candidates domain.CandidateRepository
	filter     *eligibility.Filter
}

// NewEngine creates a new Engine instance.
func NewEngine(candidates domain.CandidateRepository, filter *eligibility.Filter) *Engine {
	return &Engine{candidates: candidates, filter: filter}
}

// ProjectedMaxPercent returns the best-case percentage of a distribution the
// candidate could receive: 0 if blocked, otherwise the sum of every class
// percentage the candidate matches by identity or membership. The presence
// check is deliberately never applied; estimates are always best case.
// Deterministic and side-effect-free.
func ProjectedMaxPercent(c *domain.Candidate, sched *domain.ScheduledDistribution) int {
	if eligibility.IsBlocked(c, sched) {
		return 0
	}

	rules := &sched.Rules
	total := 0

	if c.UserID == rules.MasterUserID {
		total += rules.MasterPercent
	}
	if p, ok := rules.AdminPercents[c.UserID]; ok {
		total += p
	}
	if p, ok := rules.CustomUserPercents[c.UserID]; ok {
		total += p
	}

	if c.AllianceID != nil {
		// IsBlocked already excluded enemy-listed alliances, so any grouped
		// candidate reaching this point qualifies for the non-hostile share.
		total += rules.NonHostileAlliancePercent
		if p, ok := rules.SpecificAlliancePercents[*c.AllianceID]; ok {
			total += p
		}
	} else {
		total += rules.NoAlliancePercent
	}

	return total
}

// Resolve turns the scheduled distribution's rule snapshot into an ordered
// list of class allocations. Fixed classes resolve to singleton participants;
// group classes scan the candidates currently located at the domain, filtered
// by eligibility and the presence oracle. The order is deterministic: master,
// deputies by identity, named individuals by identity, non-hostile alliance,
// specific alliances by identity, no-alliance, alliance contribution.
func (e *Engine) Resolve(ctx context.Context, dom *domain.Domain, sched *domain.ScheduledDistribution) ([]domain.RuleClassAllocation, error) {
	rules := &sched.Rules

	master, err := e.candidates.GetByID(ctx, rules.MasterUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrMasterUnresolved
		}
		return nil, fmt.Errorf("failed to resolve master %s: %w", rules.MasterUserID, err)
	}
	if eligibility.IsBlocked(master, sched) {
		return nil, ErrMasterUnresolved
	}

	allocations := []domain.RuleClassAllocation{{
		Class:        domain.RuleClassMaster,
		Percent:      rules.MasterPercent,
		Participants: []uuid.UUID{master.UserID},
	}}

	for _, deputyID := range sortedKeys(rules.AdminPercents) {
		percent := rules.AdminPercents[deputyID]
		if percent == 0 {
			continue
		}
		deputy, err := e.lookup(ctx, deputyID)
		if err != nil {
			return nil, err
		}
		if deputy == nil || eligibility.IsBlocked(deputy, sched) {
			continue
		}
		allocations = append(allocations, domain.RuleClassAllocation{
			Class:        domain.RuleClassDeputy,
			Key:          deputyID,
			Percent:      percent,
			Participants: []uuid.UUID{deputyID},
		})
	}

	for _, userID := range sortedKeys(rules.CustomUserPercents) {
		percent := rules.CustomUserPercents[userID]
		if percent == 0 {
			continue
		}
		c, err := e.lookup(ctx, userID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		admitted, err := e.filter.Admit(ctx, c, domain.RuleClassCustomUser, sched)
		if err != nil {
			return nil, err
		}
		if !admitted {
			continue
		}
		allocations = append(allocations, domain.RuleClassAllocation{
			Class:        domain.RuleClassCustomUser,
			Key:          userID,
			Percent:      percent,
			Participants: []uuid.UUID{userID},
		})
	}

	local, err := e.candidates.ListByLocation(ctx, dom.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates at domain %s: %w", dom.ID, err)
	}

	if rules.NonHostileAlliancePercent > 0 {
		members, err := e.groupParticipants(ctx, local, domain.RuleClassNonHostileAlliance, sched, func(c *domain.Candidate) bool {
			return c.AllianceID != nil
		})
		if err != nil {
			return nil, err
		}
		if len(members) > 0 {
			allocations = append(allocations, domain.RuleClassAllocation{
				Class:        domain.RuleClassNonHostileAlliance,
				Percent:      rules.NonHostileAlliancePercent,
				Participants: members,
			})
		}
	}

	for _, allianceID := range sortedKeys(rules.SpecificAlliancePercents) {
		percent := rules.SpecificAlliancePercents[allianceID]
		if percent == 0 {
			continue
		}
		members, err := e.groupParticipants(ctx, local, domain.RuleClassSpecificAlliance, sched, func(c *domain.Candidate) bool {
			return c.AllianceID != nil && *c.AllianceID == allianceID
		})
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			continue
		}
		allocations = append(allocations, domain.RuleClassAllocation{
			Class:        domain.RuleClassSpecificAlliance,
			Key:          allianceID,
			Percent:      percent,
			Participants: members,
		})
	}

	if rules.NoAlliancePercent > 0 {
		members, err := e.groupParticipants(ctx, local, domain.RuleClassNoAlliance, sched, func(c *domain.Candidate) bool {
			return c.AllianceID == nil
		})
		if err != nil {
			return nil, err
		}
		if len(members) > 0 {
			allocations = append(allocations, domain.RuleClassAllocation{
				Class:        domain.RuleClassNoAlliance,
				Percent:      rules.NoAlliancePercent,
				Participants: members,
			})
		}
	}

	if sched.MasterAllianceID != nil && sched.AllianceContributionPercent > 0 {
		allocations = append(allocations, domain.RuleClassAllocation{
			Class:   domain.RuleClassAllianceContribution,
			Key:     *sched.MasterAllianceID,
			Percent: domain.ClampPercent(sched.AllianceContributionPercent),
		})
	}

	return allocations, nil
}

// lookup fetches a candidate, mapping ErrNotFound to nil so callers can skip
// stale rule entries instead of failing the whole distribution.
func (e *Engine) lookup(ctx context.Context, userID uuid.UUID) (*domain.Candidate, error) {
	c, err := e.candidates.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve candidate %s: %w", userID, err)
	}
	return c, nil
}

func (e *Engine) groupParticipants(ctx context.Context, local []*domain.Candidate, class domain.RuleClass, sched *domain.ScheduledDistribution, match func(*domain.Candidate) bool) ([]uuid.UUID, error) {
	var members []uuid.UUID
	for _, c := range local {
		if !match(c) {
			continue
		}
		admitted, err := e.filter.Admit(ctx, c, class, sched)
		if err != nil {
			return nil, err
		}
		if admitted {
			members = append(members, c.UserID)
		}
	}
	sortIDs(members)
	return members, nil
}

func sortedKeys[V any](m map[uuid.UUID]V) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortIDs(keys)
	return keys
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
}
