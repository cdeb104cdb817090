package allocator

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lorefall/lorefall-backend/internal/domain"
)

// Result is the allocator's output in minor units. The construction
// guarantees PerUser totals + Treasury + Carryover == the input pool exactly;
// nothing is fabricated and nothing is silently lost.
type Result struct {
	PerUser   map[uuid.UUID]int64
	Treasury  int64
	Carryover int64
}

// DistributedTotal returns the sum of all per-user credits.
func (r *Result) DistributedTotal() int64 {
	var total int64
	for _, amount := range r.PerUser {
		total += amount
	}
	return total
}

// ToMinorUnits converts a 2-decimal-place balance into integer minor units
// (hundredths). All allocation math happens in minor units to avoid
// floating-point drift; decimals exist only at the storage boundary.
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FromMinorUnits converts integer minor units back into a decimal balance.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Compute converts the resolved class allocations into exact per-recipient
// credits plus the alliance-treasury credit plus a carryover remainder.
//
// Logic (all integer minor-unit math):
//  1. distributable = floor(pool * distributionPercent / 100).
//  2. Each user-side class claims floor(distributable * percent / 100),
//     clamped to whatever of the distributable pool is still unclaimed. The
//     class order is the resolver's deterministic order, so a rule
//     configuration summing above 100% over-serves earlier classes and
//     starves later ones instead of overdrawing the pool.
//  3. A class pool splits evenly across its participants sorted by identity;
//     the remainder goes one minor unit at a time to the first participants
//     in sorted order, making the split reproducible.
//  4. The treasury contribution is clamped to the distributable pool minus
//     everything already credited to users.
//  5. carryover = pool - credited - treasury, non-negative by construction.
func Compute(poolMinor int64, distributionPercent int, allocations []domain.RuleClassAllocation) Result {
	if poolMinor < 0 {
		poolMinor = 0
	}

	distributable := poolMinor * int64(domain.ClampPercent(distributionPercent)) / 100
	remaining := distributable

	result := Result{PerUser: make(map[uuid.UUID]int64)}

	treasuryPercent := 0
	for _, alloc := range allocations {
		if alloc.Class == domain.RuleClassAllianceContribution {
			// The treasury branch runs after every user-side class, wherever
			// the resolver placed it.
			treasuryPercent = alloc.Percent
			continue
		}
		if len(alloc.Participants) == 0 {
			continue
		}

		classPool := distributable * int64(domain.ClampPercent(alloc.Percent)) / 100
		if classPool > remaining {
			classPool = remaining
		}
		if classPool == 0 {
			continue
		}

		splitEvenly(classPool, alloc.Participants, result.PerUser)
		remaining -= classPool
	}

	credited := result.DistributedTotal()

	treasury := distributable * int64(domain.ClampPercent(treasuryPercent)) / 100
	if max := distributable - credited; treasury > max {
		treasury = max
	}
	if treasury < 0 {
		treasury = 0
	}
	result.Treasury = treasury

	result.Carryover = poolMinor - credited - treasury
	return result
}

// splitEvenly divides a class pool across its participants with
// deterministic remainder assignment: participants are sorted by identity,
// each receives floor(pool/n), and the first (pool mod n) participants
// receive one extra minor unit.
func splitEvenly(pool int64, participants []uuid.UUID, credits map[uuid.UUID]int64) {
	sorted := make([]uuid.UUID, len(participants))
	copy(sorted, participants)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	n := int64(len(sorted))
	share := pool / n
	remainder := pool - share*n

	for i, id := range sorted {
		amount := share
		if int64(i) < remainder {
			amount++
		}
		credits[id] += amount
	}
}
