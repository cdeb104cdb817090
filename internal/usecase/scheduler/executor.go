package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lorefall/lorefall-backend/internal/domain"
	"github.com/lorefall/lorefall-backend/internal/platform/metrics"
	"github.com/lorefall/lorefall-backend/internal/usecase/accrual"
	"github.com/lorefall/lorefall-backend/internal/usecase/allocator"
	"github.com/lorefall/lorefall-backend/internal/usecase/ruleengine"
	"github.com/lorefall/lorefall-backend/internal/usecase/settlement"
)

// Executor runs one domain's distribution end to end, in order: accrue,
// resolve, allocate, settle. No step interleaves with another domain's
// execution.
type Executor struct {
	domains domain.DomainRepository
	engine  *ruleengine.Engine
	writer  *settlement.Writer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewExecutor creates a new Executor instance.
func NewExecutor(domains domain.DomainRepository, engine *ruleengine.Engine, writer *settlement.Writer, logger *slog.Logger, m *metrics.Metrics) *Executor {
	return &Executor{
		domains: domains,
		engine:  engine,
		writer:  writer,
		logger:  logger,
		metrics: m,
	}
}

// Execute runs the distribution for a single domain if its scheduled event is
// due at now. The domain is reloaded first, so a concurrent settlement (or a
// replayed tick) observes the cleared schedule and becomes a no-op.
func (e *Executor) Execute(ctx context.Context, domainID uuid.UUID, now time.Time) error {
	dom, err := e.domains.GetByID(ctx, domainID)
	if err != nil {
		return fmt.Errorf("failed to load domain %s: %w", domainID, err)
	}

	sched := dom.Scheduled
	if sched == nil || !sched.Due(now) {
		return nil
	}
	sched.Rules.Normalize()

	// Accrue up to the exact execution instant before reading the pool.
	accrual.Accrue(dom, now)
	poolMinor := allocator.ToMinorUnits(dom.PointBalance.Add(dom.CarryoverBalance))

	allocations, err := e.engine.Resolve(ctx, dom, sched)
	if err != nil {
		if errors.Is(err, ruleengine.ErrMasterUnresolved) {
			e.metrics.IncSkipped()
			return e.writer.SkipToCarryover(ctx, dom, sched, poolMinor, now)
		}
		return fmt.Errorf("failed to resolve rules for domain %s: %w", dom.ID, err)
	}

	result := allocator.Compute(poolMinor, sched.EffectiveDistributionPercent(), allocations)

	if err := e.writer.Apply(ctx, dom, sched, result, now); err != nil {
		return err
	}

	distributed := result.DistributedTotal() + result.Treasury
	e.metrics.IncExecuted()
	e.metrics.AddPointsDistributed(distributed)
	e.logger.Info("distribution executed",
		"domain", dom.ID,
		"distribution", sched.ID,
		"pool", allocator.FromMinorUnits(poolMinor),
		"recipients", len(result.PerUser),
		"treasury", allocator.FromMinorUnits(result.Treasury),
		"carryover", allocator.FromMinorUnits(result.Carryover),
	)
	return nil
}
