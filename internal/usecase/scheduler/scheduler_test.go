package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorefall/lorefall-backend/internal/adapter/notify"
	"github.com/lorefall/lorefall-backend/internal/adapter/repository/memory"
	"github.com/lorefall/lorefall-backend/internal/domain"
	"github.com/lorefall/lorefall-backend/internal/usecase/eligibility"
	"github.com/lorefall/lorefall-backend/internal/usecase/ruleengine"
	"github.com/lorefall/lorefall-backend/internal/usecase/settlement"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pipeline wires a full engine against the in-memory store.
type pipeline struct {
	store    *memory.Store
	executor *Executor
	sink     *notify.MemorySink
}

func newPipeline() *pipeline {
	store := memory.NewStore()
	sink := notify.NewMemorySink()
	logger := discardLogger()

	filter := eligibility.NewFilter(store.Presence())
	engine := ruleengine.NewEngine(store.Candidates(), filter)
	writer := settlement.NewWriter(store, sink, logger)
	executor := NewExecutor(store.Domains(), engine, writer, logger, nil)

	return &pipeline{store: store, executor: executor, sink: sink}
}

// seedDomain creates a domain with a resolvable master, a positive pool and a
// distribution due at dueAt.
func (p *pipeline) seedDomain(t *testing.T, name string, balance string, dueAt time.Time) (*domain.Domain, uuid.UUID) {
	t.Helper()

	masterID := uuid.New()
	dom := &domain.Domain{
		ID:                  uuid.New(),
		Name:                name,
		OwnerUserID:         masterID,
		PointBalance:        decimal.RequireFromString(balance),
		PointsLastAccruedAt: dueAt,
		ProductivityFactor:  decimal.NewFromInt(1),
		CarryoverBalance:    decimal.Zero,
	}
	dom.Scheduled = &domain.ScheduledDistribution{
		ID:       uuid.New(),
		DomainID: dom.ID,
		DueAt:    dueAt,
		Scope:    domain.DistributionScopeAll,
		Rules: domain.RuleSnapshot{
			MasterUserID:  masterID,
			MasterPercent: 50,
		},
	}

	require.NoError(t, p.store.Domains().Create(context.Background(), dom))
	p.store.PutCandidate(&domain.Candidate{UserID: masterID, Balance: decimal.Zero}, dom.ID)
	return dom, masterID
}

func TestExecutor_RunsFullDistribution(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	dom, masterID := p.seedDomain(t, "Ashenfell", "100.00", now)

	require.NoError(t, p.executor.Execute(ctx, dom.ID, now))

	master, err := p.store.Candidates().GetByID(ctx, masterID)
	require.NoError(t, err)
	assert.True(t, master.Balance.Equal(decimal.RequireFromString("50.00")), "got %s", master.Balance)

	after, err := p.store.Domains().GetByID(ctx, dom.ID)
	require.NoError(t, err)
	assert.Nil(t, after.Scheduled)
	assert.True(t, after.PointBalance.IsZero())
	assert.True(t, after.CarryoverBalance.Equal(decimal.RequireFromString("50.00")), "got %s", after.CarryoverBalance)
	assert.Len(t, p.sink.Notices(), 1)
}

func TestExecutor_AccruesUpToExecutionInstant(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	dueAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	dom, masterID := p.seedDomain(t, "Ashenfell", "0.00", dueAt)

	// Executed 10 minutes late at factor 1: the pool is the 10.00 accrued
	// since the last stamp, not zero.
	now := dueAt.Add(10 * time.Minute)
	require.NoError(t, p.executor.Execute(ctx, dom.ID, now))

	master, err := p.store.Candidates().GetByID(ctx, masterID)
	require.NoError(t, err)
	assert.True(t, master.Balance.Equal(decimal.RequireFromString("5.00")), "got %s", master.Balance)
}

func TestExecutor_NotDueIsNoOp(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	dom, _ := p.seedDomain(t, "Ashenfell", "100.00", now.Add(time.Hour))

	require.NoError(t, p.executor.Execute(ctx, dom.ID, now))

	after, err := p.store.Domains().GetByID(ctx, dom.ID)
	require.NoError(t, err)
	assert.NotNil(t, after.Scheduled, "a future distribution stays scheduled")
	assert.Empty(t, p.sink.Notices())
}

func TestExecutor_UnresolvedMasterFoldsPoolIntoCarryover(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	masterID := uuid.New() // never stored
	dom := &domain.Domain{
		ID:                  uuid.New(),
		Name:                "Duskmoor",
		OwnerUserID:         masterID,
		PointBalance:        decimal.RequireFromString("80.00"),
		PointsLastAccruedAt: now,
		ProductivityFactor:  decimal.NewFromInt(1),
		CarryoverBalance:    decimal.RequireFromString("20.00"),
	}
	dom.Scheduled = &domain.ScheduledDistribution{
		ID:       uuid.New(),
		DomainID: dom.ID,
		DueAt:    now,
		Scope:    domain.DistributionScopeAll,
		Rules:    domain.RuleSnapshot{MasterUserID: masterID, MasterPercent: 50},
	}
	require.NoError(t, p.store.Domains().Create(ctx, dom))

	require.NoError(t, p.executor.Execute(ctx, dom.ID, now))

	after, err := p.store.Domains().GetByID(ctx, dom.ID)
	require.NoError(t, err)
	assert.Nil(t, after.Scheduled, "the stale event must be cleared, not retried forever")
	assert.True(t, after.PointBalance.IsZero())
	assert.True(t, after.CarryoverBalance.Equal(decimal.RequireFromString("100.00")),
		"point balance and prior carryover both survive, got %s", after.CarryoverBalance)
	assert.Empty(t, p.sink.Notices())
}

func TestScan_ExecutesOnlyDueDomains(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	now := clock.Now()

	dueDom, _ := p.seedDomain(t, "Ashenfell", "100.00", now.Add(-time.Minute))
	futureDom, _ := p.seedDomain(t, "Duskmoor", "100.00", now.Add(time.Hour))

	sched, err := New(Config{
		Domains:  p.store.Domains(),
		Executor: p.executor,
		Logger:   discardLogger(),
		Clock:    clock,
	})
	require.NoError(t, err)

	sched.Scan(ctx)

	executed, err := p.store.Domains().GetByID(ctx, dueDom.ID)
	require.NoError(t, err)
	assert.Nil(t, executed.Scheduled)

	pending, err := p.store.Domains().GetByID(ctx, futureDom.ID)
	require.NoError(t, err)
	assert.NotNil(t, pending.Scheduled)
}

func TestScan_FailureDoesNotAbortRemainingDomains(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	now := clock.Now()

	p.seedDomain(t, "Ashenfell", "100.00", now)
	p.seedDomain(t, "Duskmoor", "100.00", now)

	// The first lease acquisition errors; the scan must still reach the
	// other domain. Listing order is not fixed, so assert on the count.
	lease := &stubLeaser{err: map[int]error{0: errors.New("lease backend down")}}
	sched, err := New(Config{
		Domains:  p.store.Domains(),
		Executor: p.executor,
		Logger:   discardLogger(),
		Clock:    clock,
		Lease:    lease,
	})
	require.NoError(t, err)

	sched.Scan(ctx)

	due, err := p.store.Domains().ListDueForDistribution(ctx, now)
	require.NoError(t, err)
	assert.Len(t, due, 1, "exactly one domain settles, the lease failure skips the other")
}

func TestScan_DeniedLeaseSkipsDomainWithoutError(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	dom, _ := p.seedDomain(t, "Ashenfell", "100.00", clock.Now())

	lease := &stubLeaser{denyAll: true}
	sched, err := New(Config{
		Domains:  p.store.Domains(),
		Executor: p.executor,
		Logger:   discardLogger(),
		Clock:    clock,
		Lease:    lease,
	})
	require.NoError(t, err)

	sched.Scan(ctx)

	after, err := p.store.Domains().GetByID(ctx, dom.ID)
	require.NoError(t, err)
	assert.NotNil(t, after.Scheduled, "a domain leased elsewhere is left for that instance")
	assert.Zero(t, lease.released, "a denied lease is never released")
}

func TestScan_AcquiredLeaseIsReleased(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	p.seedDomain(t, "Ashenfell", "100.00", clock.Now())

	lease := &stubLeaser{}
	sched, err := New(Config{
		Domains:  p.store.Domains(),
		Executor: p.executor,
		Logger:   discardLogger(),
		Clock:    clock,
		Lease:    lease,
	})
	require.NoError(t, err)

	sched.Scan(ctx)

	assert.Equal(t, 1, lease.acquired)
	assert.Equal(t, 1, lease.released)
}

func TestRun_TickTriggersScan(t *testing.T) {
	p := newPipeline()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))

	sched, err := New(Config{
		Domains:  p.store.Domains(),
		Executor: p.executor,
		Logger:   discardLogger(),
		Clock:    clock,
		Interval: time.Minute,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	// Wait for the immediate scan to pass and the ticker to be registered,
	// then schedule a distribution due one tick later.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	dom, _ := p.seedDomain(t, "Ashenfell", "100.00", clock.Now().Add(time.Minute))

	clock.Advance(time.Minute)

	assert.Eventually(t, func() bool {
		d, err := p.store.Domains().GetByID(ctx, dom.ID)
		return err == nil && d.Scheduled == nil
	}, 2*time.Second, 10*time.Millisecond, "the tick should execute the newly due domain")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestScan_SkipsWhileScanInFlight(t *testing.T) {
	p := newPipeline()
	sched, err := New(Config{
		Domains:  p.store.Domains(),
		Executor: p.executor,
		Logger:   discardLogger(),
		Clock:    clockwork.NewFakeClock(),
	})
	require.NoError(t, err)

	require.True(t, sched.beginScan())
	defer sched.endScan()

	// The guard is held: a concurrent Scan must return without touching the
	// repository. An executed scan would clear this schedule.
	ctx := context.Background()
	dom, _ := p.seedDomain(t, "Ashenfell", "100.00", time.Now().Add(-time.Hour))
	sched.Scan(ctx)

	after, err := p.store.Domains().GetByID(ctx, dom.ID)
	require.NoError(t, err)
	assert.NotNil(t, after.Scheduled)
}

// stubLeaser is a test double for the Leaser contract.
type stubLeaser struct {
	mu       sync.Mutex
	calls    int
	acquired int
	released int
	denyAll  bool
	err      map[int]error // call index -> error
}

func (l *stubLeaser) Acquire(_ context.Context, _ uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.calls
	l.calls++
	if err, ok := l.err[idx]; ok {
		return false, err
	}
	if l.denyAll {
		return false, nil
	}
	l.acquired++
	return true, nil
}

func (l *stubLeaser) Release(_ context.Context, _ uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.released++
	return nil
}
