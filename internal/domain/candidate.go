package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Candidate is a potential recipient as seen by the rule engine: identity,
// current alliance membership and ledger balance. Identity and membership are
// owned by external systems; the balance is this engine's single write target.
type Candidate struct {
	UserID     uuid.UUID
	AllianceID *uuid.UUID // nil for ungrouped users
	Balance    decimal.Decimal
}

// Alliance holds a group's shared treasury. The treasury is credited only by
// the alliance-contribution branch of the allocator.
type Alliance struct {
	ID              uuid.UUID
	Name            string
	TreasuryBalance decimal.Decimal
	CreatedAt       time.Time
}
