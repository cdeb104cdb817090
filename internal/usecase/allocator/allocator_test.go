package allocator

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorefall/lorefall-backend/internal/domain"
)

func TestCompute_WorkedExampleScenario(t *testing.T) {
	// Pool = 100.00, master 10%, one deputy 5%, no-alliance 20% split among
	// 3 eligible ungrouped candidates, scope = all.
	// Expected: master 10.00, deputy 5.00, 6.67/6.67/6.66 by sorted
	// identity, carryover 65.00.
	masterID := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	deputyID := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	user1 := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	user2 := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	user3 := uuid.MustParse("00000000-0000-0000-0000-000000000003")

	allocations := []domain.RuleClassAllocation{
		{Class: domain.RuleClassMaster, Percent: 10, Participants: []uuid.UUID{masterID}},
		{Class: domain.RuleClassDeputy, Key: deputyID, Percent: 5, Participants: []uuid.UUID{deputyID}},
		{Class: domain.RuleClassNoAlliance, Percent: 20, Participants: []uuid.UUID{user3, user1, user2}},
	}

	pool := ToMinorUnits(decimal.NewFromInt(100)) // 10000
	result := Compute(pool, 100, allocations)

	assert.Equal(t, int64(1000), result.PerUser[masterID], "master should receive 10.00")
	assert.Equal(t, int64(500), result.PerUser[deputyID], "deputy should receive 5.00")
	assert.Equal(t, int64(667), result.PerUser[user1], "first sorted participant gets the extra minor unit")
	assert.Equal(t, int64(667), result.PerUser[user2], "second sorted participant gets the extra minor unit")
	assert.Equal(t, int64(666), result.PerUser[user3])
	assert.Equal(t, int64(0), result.Treasury)
	assert.Equal(t, int64(6500), result.Carryover, "carryover should be 65.00")
}

func TestCompute_Conservation(t *testing.T) {
	// Awkward pool and percentages: the outputs must still sum to the input
	// pool exactly.
	masterID := uuid.New()
	allianceID := uuid.New()
	group := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	allocations := []domain.RuleClassAllocation{
		{Class: domain.RuleClassMaster, Percent: 13, Participants: []uuid.UUID{masterID}},
		{Class: domain.RuleClassNonHostileAlliance, Percent: 37, Participants: group},
		{Class: domain.RuleClassAllianceContribution, Key: allianceID, Percent: 11},
	}

	pool := int64(999_97) // 999.97
	result := Compute(pool, 100, allocations)

	assert.Equal(t, pool, result.DistributedTotal()+result.Treasury+result.Carryover,
		"no minor unit may be fabricated or lost")
	assert.GreaterOrEqual(t, result.Carryover, int64(0))
}

func TestCompute_ScopeClamp(t *testing.T) {
	// Partial scope at 40% of a 1000.00 pool: the distributable pool is
	// exactly 400.00, the remaining 600.00 reaches carryover untouched.
	masterID := uuid.New()
	allocations := []domain.RuleClassAllocation{
		{Class: domain.RuleClassMaster, Percent: 100, Participants: []uuid.UUID{masterID}},
	}

	pool := ToMinorUnits(decimal.NewFromInt(1000)) // 100000
	result := Compute(pool, 40, allocations)

	assert.Equal(t, int64(40000), result.PerUser[masterID], "master takes the whole 400.00 distributable pool")
	assert.Equal(t, int64(60000), result.Carryover)
}

func TestCompute_DeterministicRemainderAssignment(t *testing.T) {
	// Same participants and pool: the remainder lands on the same sorted
	// identities across repeated runs, whatever the input order.
	a := uuid.MustParse("11111111-0000-0000-0000-000000000000")
	b := uuid.MustParse("22222222-0000-0000-0000-000000000000")
	c := uuid.MustParse("33333333-0000-0000-0000-000000000000")

	orders := [][]uuid.UUID{{a, b, c}, {c, b, a}, {b, a, c}}
	for _, participants := range orders {
		allocations := []domain.RuleClassAllocation{
			{Class: domain.RuleClassNoAlliance, Percent: 100, Participants: participants},
		}
		result := Compute(1000, 100, allocations)

		assert.Equal(t, int64(334), result.PerUser[a])
		assert.Equal(t, int64(333), result.PerUser[b])
		assert.Equal(t, int64(333), result.PerUser[c])
	}
}

func TestCompute_OverAllocatedRulesNeverOverdrawPool(t *testing.T) {
	// Percent fields are not cross-validated to sum <= 100. Classes are
	// served in resolver order against whatever remains of the distributable
	// pool, so the later class is starved instead of the pool overdrawing.
	first := uuid.New()
	second := uuid.New()

	allocations := []domain.RuleClassAllocation{
		{Class: domain.RuleClassMaster, Percent: 80, Participants: []uuid.UUID{first}},
		{Class: domain.RuleClassNoAlliance, Percent: 50, Participants: []uuid.UUID{second}},
	}

	result := Compute(10000, 100, allocations)

	assert.Equal(t, int64(8000), result.PerUser[first])
	assert.Equal(t, int64(2000), result.PerUser[second], "second class is clamped to the remaining pool")
	assert.Equal(t, int64(0), result.Carryover)
	assert.Equal(t, int64(10000), result.DistributedTotal())
}

func TestCompute_TreasuryClamp(t *testing.T) {
	// The alliance contribution may never exceed what is left of the
	// distributable pool after the user-side classes.
	masterID := uuid.New()
	allianceID := uuid.New()

	allocations := []domain.RuleClassAllocation{
		{Class: domain.RuleClassMaster, Percent: 90, Participants: []uuid.UUID{masterID}},
		{Class: domain.RuleClassAllianceContribution, Key: allianceID, Percent: 20},
	}

	result := Compute(10000, 100, allocations)

	assert.Equal(t, int64(9000), result.PerUser[masterID])
	assert.Equal(t, int64(1000), result.Treasury, "treasury clamped from 2000 to the 1000 remaining")
	assert.Equal(t, int64(0), result.Carryover)
}

func TestCompute_TreasuryZeroWhenPoolExhausted(t *testing.T) {
	userID := uuid.New()
	allianceID := uuid.New()

	allocations := []domain.RuleClassAllocation{
		{Class: domain.RuleClassMaster, Percent: 100, Participants: []uuid.UUID{userID}},
		{Class: domain.RuleClassAllianceContribution, Key: allianceID, Percent: 50},
	}

	result := Compute(5000, 100, allocations)

	assert.Equal(t, int64(5000), result.PerUser[userID])
	assert.Equal(t, int64(0), result.Treasury)
	assert.Equal(t, int64(0), result.Carryover)
}

func TestCompute_EmptyAndNegativeInputs(t *testing.T) {
	result := Compute(-50, 100, nil)
	assert.Empty(t, result.PerUser)
	assert.Equal(t, int64(0), result.Treasury)
	assert.Equal(t, int64(0), result.Carryover)

	// A class with no participants claims nothing.
	result = Compute(10000, 100, []domain.RuleClassAllocation{
		{Class: domain.RuleClassNoAlliance, Percent: 50},
	})
	assert.Empty(t, result.PerUser)
	assert.Equal(t, int64(10000), result.Carryover)
}

func TestMinorUnitConversion(t *testing.T) {
	d := decimal.RequireFromString("123.45")
	minor := ToMinorUnits(d)
	require.Equal(t, int64(12345), minor)
	assert.True(t, FromMinorUnits(minor).Equal(d))

	assert.Equal(t, int64(0), ToMinorUnits(decimal.Zero))
	assert.True(t, FromMinorUnits(1).Equal(decimal.RequireFromString("0.01")))
}
