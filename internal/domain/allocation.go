package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleClass identifies one of the seven recipient classes a rule snapshot
// can fund. Master, deputies and the alliance contribution are fixed classes
// (paid regardless of presence); the remaining four are conditional.
type RuleClass string

const (
	RuleClassMaster               RuleClass = "MASTER"
	RuleClassDeputy               RuleClass = "DEPUTY"
	RuleClassCustomUser           RuleClass = "CUSTOM_USER"
	RuleClassNonHostileAlliance   RuleClass = "NON_HOSTILE_ALLIANCE"
	RuleClassSpecificAlliance     RuleClass = "SPECIFIC_ALLIANCE"
	RuleClassNoAlliance           RuleClass = "NO_ALLIANCE"
	RuleClassAllianceContribution RuleClass = "ALLIANCE_CONTRIBUTION"
)

// RequiresPresence reports whether recipients of this class must pass the
// presence check to be paid. The two fixed recipient classes and the
// treasury contribution are paid regardless of presence.
func (c RuleClass) RequiresPresence() bool {
	switch c {
	case RuleClassMaster, RuleClassDeputy, RuleClassAllianceContribution:
		return false
	default:
		return true
	}
}

// RuleClassAllocation is the rule engine's resolution of a single class
// instance: the pool percentage it claims and the participants that share it.
// Key carries the per-entry identity (deputy user, named individual or
// specific alliance) and is uuid.Nil for the singleton classes.
type RuleClassAllocation struct {
	Class        RuleClass
	Key          uuid.UUID
	Percent      int
	Participants []uuid.UUID
}

// Credit is a single recipient balance increment produced by settlement.
type Credit struct {
	UserID uuid.UUID
	Amount decimal.Decimal
}

// Settlement is the atomic unit the settlement store applies: every recipient
// credit, the treasury credit, the domain's residual balances and the removal
// of the scheduled event marker. DistributionID doubles as the idempotency
// token; applying the same settlement twice must be a no-op.
type Settlement struct {
	DomainID       uuid.UUID
	DistributionID uuid.UUID
	Credits        []Credit
	TreasuryID     *uuid.UUID // alliance to credit, nil when no contribution
	TreasuryAmount decimal.Decimal
	Carryover      decimal.Decimal // becomes the domain's new carryover balance
	AccruedAt      time.Time       // accrual cutoff persisted with the settlement
	ExecutedAt     time.Time
}
