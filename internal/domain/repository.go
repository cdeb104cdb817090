package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when the requested record does not
// exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyApplied is returned by SettlementStore.ApplySettlement when a
// settlement with the same distribution ID was applied before. Callers treat
// it as a successful no-op; it is what makes a replay after a partial failure
// safe.
var ErrAlreadyApplied = errors.New("settlement already applied")

// DomainRepository defines the interface for domain persistence operations.
type DomainRepository interface {
	// GetByID retrieves a domain, including its scheduled distribution if any.
	GetByID(ctx context.Context, id uuid.UUID) (*Domain, error)

	// ListDueForDistribution retrieves all domains whose scheduled
	// distribution has a due time at or before now.
	ListDueForDistribution(ctx context.Context, now time.Time) ([]*Domain, error)

	// Create creates a new domain.
	Create(ctx context.Context, d *Domain) error
}

// CandidateRepository supplies identity, membership and ledger facts for
// potential recipients. The engine only reads through this interface; balance
// credits go through the SettlementStore.
type CandidateRepository interface {
	// GetByID retrieves a candidate by user identity.
	GetByID(ctx context.Context, userID uuid.UUID) (*Candidate, error)

	// ListByLocation retrieves all candidates currently located at the
	// domain. Used to compute group participant sets.
	ListByLocation(ctx context.Context, domainID uuid.UUID) ([]*Candidate, error)
}

// SettlementStore applies a settlement as one atomic unit: recipient balance
// credits, the treasury credit, the domain's residual balances, the receipt
// row and the removal of the scheduled distribution. Balance writes are
// additive increments, never read-modify-write on a cached value.
type SettlementStore interface {
	ApplySettlement(ctx context.Context, s *Settlement) error
}

// PresenceOracle is the external travel subsystem's contract: true when the
// user's current location equals the domain and the user is not mid-transit.
type PresenceOracle interface {
	IsPresent(ctx context.Context, userID, domainID uuid.UUID) (bool, error)
}

// CreditNotice is the event emitted to the notification sink after a
// settlement has been applied.
type CreditNotice struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	DomainID    uuid.UUID `json:"domain_id"`
	Amount      string    `json:"amount"`             // decimal string, e.g. "6.67"
	Treasury    bool      `json:"treasury,omitempty"` // true for the alliance treasury credit
}

// NotificationSink receives credit notices after settlement. Delivery and
// ordering are entirely the sink's concern; the engine logs and ignores sink
// errors.
type NotificationSink interface {
	Notify(ctx context.Context, notice CreditNotice) error
}
