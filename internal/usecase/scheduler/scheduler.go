package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/lorefall/lorefall-backend/internal/domain"
	"github.com/lorefall/lorefall-backend/internal/platform/metrics"
)

// DefaultTickInterval matches the source behavior of one scan per minute.
const DefaultTickInterval = 60 * time.Second

// Leaser is the external mutual-exclusion mechanism for multi-instance
// deployments: at most one engine instance may execute a given domain at a
// time. Within a single process the scheduler's own scan guard is enough and
// the leaser may be nil.
type Leaser interface {
	Acquire(ctx context.Context, domainID uuid.UUID) (bool, error)
	Release(ctx context.Context, domainID uuid.UUID) error
}

// Config holds the scheduler's dependencies and knobs.
type Config struct {
	Domains  domain.DomainRepository
	Executor *Executor
	Logger   *slog.Logger
	Clock    clockwork.Clock // defaults to the real clock
	Interval time.Duration   // defaults to DefaultTickInterval
	Lease    Leaser          // optional
	Metrics  *metrics.Metrics
}

// Validate fills defaults and rejects incomplete configurations.
func (cfg *Config) Validate() error {
	if cfg.Domains == nil {
		return errors.New("domain repository is required")
	}
	if cfg.Executor == nil {
		return errors.New("executor is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickInterval
	}
	return nil
}

// Scheduler drives the periodic scan for due distributions. Scans are
// serialized: a new tick never starts a scan while a previous one is still
// running, and due domains within one scan execute sequentially.
type Scheduler struct {
	cfg Config

	mu       sync.Mutex
	scanning bool
}

// New creates a new Scheduler instance.
func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{cfg: cfg}, nil
}

// Run scans once immediately, then on every tick until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cfg.Logger.Info("distribution scheduler started", "interval", s.cfg.Interval)

	s.Scan(ctx)

	ticker := s.cfg.Clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.cfg.Logger.Info("distribution scheduler stopped")
			return ctx.Err()
		case <-ticker.Chan():
			s.Scan(ctx)
		}
	}
}

// Scan executes every due domain exactly once. If a previous scan is still in
// flight the call returns immediately; the next tick picks the work up.
// Per-domain failures are logged and counted without aborting the remainder
// of the scan.
func (s *Scheduler) Scan(ctx context.Context) {
	if !s.beginScan() {
		s.cfg.Logger.Warn("previous scan still running, skipping tick")
		return
	}
	defer s.endScan()

	now := s.cfg.Clock.Now()
	started := time.Now()

	due, err := s.cfg.Domains.ListDueForDistribution(ctx, now)
	if err != nil {
		s.cfg.Logger.Error("failed to list due domains", "error", err)
		return
	}

	for _, dom := range due {
		if err := s.executeOne(ctx, dom.ID, now); err != nil {
			s.cfg.Metrics.IncFailures()
			s.cfg.Logger.Error("distribution execution failed",
				"domain", dom.ID, "error", err)
		}
	}

	s.cfg.Metrics.ObserveTick(time.Since(started).Seconds())
	if len(due) > 0 {
		s.cfg.Logger.Debug("scan finished", "due", len(due))
	}
}

// executeOne wraps a single domain execution with the optional lease and a
// panic guard, so one misbehaving domain cannot take down the scan.
func (s *Scheduler) executeOne(ctx context.Context, domainID uuid.UUID, now time.Time) (err error) {
	if s.cfg.Lease != nil {
		acquired, leaseErr := s.cfg.Lease.Acquire(ctx, domainID)
		if leaseErr != nil {
			return fmt.Errorf("failed to acquire lease for domain %s: %w", domainID, leaseErr)
		}
		if !acquired {
			s.cfg.Logger.Debug("domain leased by another instance, skipping", "domain", domainID)
			return nil
		}
		defer func() {
			if releaseErr := s.cfg.Lease.Release(ctx, domainID); releaseErr != nil {
				s.cfg.Logger.Error("failed to release domain lease",
					"domain", domainID, "error", releaseErr)
			}
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("distribution execution panicked for domain %s: %v", domainID, r)
		}
	}()

	return s.cfg.Executor.Execute(ctx, domainID, now)
}

func (s *Scheduler) beginScan() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanning {
		return false
	}
	s.scanning = true
	return true
}

func (s *Scheduler) endScan() {
	s.mu.Lock()
	s.scanning = false
	s.mu.Unlock()
}
