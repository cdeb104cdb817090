package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lorefall/lorefall-backend/internal/domain"
)

// Store is an in-memory implementation of the engine's persistence
// interfaces, used by tests and local runs without a database. The Domains,
// Candidates and Presence views expose the repository and oracle contracts;
// the Store itself is the SettlementStore.
type Store struct {
	mu        sync.RWMutex
	domains   map[uuid.UUID]*domain.Domain
	users     map[uuid.UUID]*domain.Candidate
	locations map[uuid.UUID]uuid.UUID // userID -> domainID currently at
	transit   map[uuid.UUID]bool      // userID -> mid-transit
	alliances map[uuid.UUID]*domain.Alliance
	receipts  map[uuid.UUID]time.Time // distributionID -> applied at
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		domains:   make(map[uuid.UUID]*domain.Domain),
		users:     make(map[uuid.UUID]*domain.Candidate),
		locations: make(map[uuid.UUID]uuid.UUID),
		transit:   make(map[uuid.UUID]bool),
		alliances: make(map[uuid.UUID]*domain.Alliance),
		receipts:  make(map[uuid.UUID]time.Time),
	}
}

// Domains returns the store's DomainRepository view.
func (s *Store) Domains() domain.DomainRepository { return domainView{s} }

// Candidates returns the store's CandidateRepository view.
func (s *Store) Candidates() domain.CandidateRepository { return candidateView{s} }

// Presence returns a presence oracle backed by the store's location and
// transit facts.
func (s *Store) Presence() domain.PresenceOracle { return presenceView{s} }

type domainView struct{ s *Store }

// GetByID retrieves a copy of a domain.
func (v domainView) GetByID(_ context.Context, id uuid.UUID) (*domain.Domain, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	d, ok := v.s.domains[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyDomain(d), nil
}

// ListDueForDistribution retrieves copies of all domains whose scheduled
// distribution is due at or before now.
func (v domainView) ListDueForDistribution(_ context.Context, now time.Time) ([]*domain.Domain, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	var due []*domain.Domain
	for _, d := range v.s.domains {
		if d.Scheduled != nil && d.Scheduled.Due(now) {
			due = append(due, copyDomain(d))
		}
	}
	return due, nil
}

// Create stores a new domain.
func (v domainView) Create(_ context.Context, d *domain.Domain) error {
	if err := d.Validate(); err != nil {
		return err
	}

	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if _, exists := v.s.domains[d.ID]; exists {
		return fmt.Errorf("domain %s already exists", d.ID)
	}
	v.s.domains[d.ID] = copyDomain(d)
	return nil
}

type candidateView struct{ s *Store }

// GetByID retrieves a copy of a candidate by user identity.
func (v candidateView) GetByID(_ context.Context, userID uuid.UUID) (*domain.Candidate, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	c, ok := v.s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cc := *c
	return &cc, nil
}

// ListByLocation retrieves copies of all candidates currently at the domain.
func (v candidateView) ListByLocation(_ context.Context, domainID uuid.UUID) ([]*domain.Candidate, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	var out []*domain.Candidate
	for userID, at := range v.s.locations {
		if at != domainID {
			continue
		}
		if c, ok := v.s.users[userID]; ok {
			cc := *c
			out = append(out, &cc)
		}
	}
	return out, nil
}

type presenceView struct{ s *Store }

// IsPresent reports whether the user is located at the domain and not
// mid-transit.
func (v presenceView) IsPresent(_ context.Context, userID, domainID uuid.UUID) (bool, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	return v.s.locations[userID] == domainID && !v.s.transit[userID], nil
}

// ApplySettlement applies all settlement writes atomically under one lock.
// A repeated distribution ID returns ErrAlreadyApplied without any change.
func (s *Store) ApplySettlement(_ context.Context, settle *domain.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, applied := s.receipts[settle.DistributionID]; applied {
		return domain.ErrAlreadyApplied
	}

	d, ok := s.domains[settle.DomainID]
	if !ok {
		return domain.ErrNotFound
	}

	for _, credit := range settle.Credits {
		c, ok := s.users[credit.UserID]
		if !ok {
			return fmt.Errorf("cannot credit unknown user %s", credit.UserID)
		}
		c.Balance = c.Balance.Add(credit.Amount)
	}

	if settle.TreasuryID != nil && settle.TreasuryAmount.IsPositive() {
		a, ok := s.alliances[*settle.TreasuryID]
		if !ok {
			return fmt.Errorf("cannot credit unknown alliance %s", *settle.TreasuryID)
		}
		a.TreasuryBalance = a.TreasuryBalance.Add(settle.TreasuryAmount)
	}

	d.PointBalance = decimal.Zero
	d.CarryoverBalance = settle.Carryover
	d.PointsLastAccruedAt = settle.AccruedAt
	executedAt := settle.ExecutedAt
	d.LastExecutedAt = &executedAt
	d.Scheduled = nil

	s.receipts[settle.DistributionID] = settle.ExecutedAt
	return nil
}

// PutCandidate upserts a candidate and records their current location.
// uuid.Nil clears the location.
func (s *Store) PutCandidate(c *domain.Candidate, at uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cc := *c
	s.users[c.UserID] = &cc
	if at == uuid.Nil {
		delete(s.locations, c.UserID)
	} else {
		s.locations[c.UserID] = at
	}
}

// Reschedule attaches a new scheduled distribution to an existing domain.
// Stands in for the external lock-creation flow in tests and local runs.
func (s *Store) Reschedule(domainID uuid.UUID, sched *domain.ScheduledDistribution) error {
	if err := sched.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.domains[domainID]
	if !ok {
		return domain.ErrNotFound
	}
	cc := *sched
	cc.EnemyAllianceIDs = append([]uuid.UUID(nil), sched.EnemyAllianceIDs...)
	cc.Rules = copyRules(&sched.Rules)
	d.Scheduled = &cc
	return nil
}

// SetInTransit marks a user as mid-transit; a traveling user is never
// present, whatever their recorded location.
func (s *Store) SetInTransit(userID uuid.UUID, inTransit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transit[userID] = inTransit
}

// PutAlliance upserts an alliance.
func (s *Store) PutAlliance(a *domain.Alliance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	aa := *a
	s.alliances[a.ID] = &aa
}

// Alliance returns a copy of an alliance, or nil when unknown.
func (s *Store) Alliance(id uuid.UUID) *domain.Alliance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alliances[id]
	if !ok {
		return nil
	}
	aa := *a
	return &aa
}

// Applied reports whether a settlement receipt exists for the distribution.
func (s *Store) Applied(distributionID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.receipts[distributionID]
	return ok
}

func copyDomain(d *domain.Domain) *domain.Domain {
	dd := *d
	if d.Scheduled != nil {
		sched := *d.Scheduled
		sched.EnemyAllianceIDs = append([]uuid.UUID(nil), d.Scheduled.EnemyAllianceIDs...)
		sched.Rules = copyRules(&d.Scheduled.Rules)
		dd.Scheduled = &sched
	}
	if d.LastExecutedAt != nil {
		at := *d.LastExecutedAt
		dd.LastExecutedAt = &at
	}
	return &dd
}

func copyRules(r *domain.RuleSnapshot) domain.RuleSnapshot {
	rr := *r
	rr.AdminPercents = copyPercents(r.AdminPercents)
	rr.CustomUserPercents = copyPercents(r.CustomUserPercents)
	rr.SpecificAlliancePercents = copyPercents(r.SpecificAlliancePercents)
	rr.BlacklistUserIDs = append([]uuid.UUID(nil), r.BlacklistUserIDs...)
	rr.BlacklistAllianceIDs = append([]uuid.UUID(nil), r.BlacklistAllianceIDs...)
	return rr
}

func copyPercents(m map[uuid.UUID]int) map[uuid.UUID]int {
	if m == nil {
		return nil
	}
	out := make(map[uuid.UUID]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
