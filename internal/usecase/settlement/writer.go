package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lorefall/lorefall-backend/internal/domain"
	"github.com/lorefall/lorefall-backend/internal/usecase/allocator"
)

// Writer turns an allocator result into a persisted settlement: recipient
// balance credits, the alliance-treasury credit, the domain's residual
// balances and the removal of the scheduled event marker, all as one atomic
// store operation keyed by the distribution's ID so a replay after a partial
// failure cannot double-credit anyone.
type Writer struct {
	store  domain.SettlementStore
	sink   domain.NotificationSink // optional
	logger *slog.Logger
}

// NewWriter creates a new Writer instance. The sink may be nil when no
// notification transport is configured.
func NewWriter(store domain.SettlementStore, sink domain.NotificationSink, logger *slog.Logger) *Writer {
	return &Writer{store: store, sink: sink, logger: logger}
}

// Apply persists the allocator's output for one scheduled distribution and,
// on success, emits a credit notice per recipient plus one for the treasury.
// A settlement that was already applied is treated as a successful no-op and
// emits nothing.
func (w *Writer) Apply(ctx context.Context, dom *domain.Domain, sched *domain.ScheduledDistribution, result allocator.Result, now time.Time) error {
	s := &domain.Settlement{
		DomainID:       dom.ID,
		DistributionID: sched.ID,
		Credits:        creditsFromResult(result),
		TreasuryAmount: allocator.FromMinorUnits(result.Treasury),
		Carryover:      allocator.FromMinorUnits(result.Carryover),
		AccruedAt:      dom.PointsLastAccruedAt,
		ExecutedAt:     now,
	}
	if result.Treasury > 0 {
		s.TreasuryID = sched.MasterAllianceID
	}

	if err := w.store.ApplySettlement(ctx, s); err != nil {
		if errors.Is(err, domain.ErrAlreadyApplied) {
			w.logger.Warn("settlement already applied, skipping",
				"domain", dom.ID, "distribution", sched.ID)
			return nil
		}
		return fmt.Errorf("failed to apply settlement for domain %s: %w", dom.ID, err)
	}

	w.notify(ctx, dom, s)
	return nil
}

// SkipToCarryover handles the degraded path when the master recipient no
// longer resolves: nobody is credited, the whole pool is preserved as
// carryover and the scheduled event is cleared so it is not retried forever.
func (w *Writer) SkipToCarryover(ctx context.Context, dom *domain.Domain, sched *domain.ScheduledDistribution, poolMinor int64, now time.Time) error {
	s := &domain.Settlement{
		DomainID:       dom.ID,
		DistributionID: sched.ID,
		Carryover:      allocator.FromMinorUnits(poolMinor),
		AccruedAt:      dom.PointsLastAccruedAt,
		ExecutedAt:     now,
	}

	if err := w.store.ApplySettlement(ctx, s); err != nil {
		if errors.Is(err, domain.ErrAlreadyApplied) {
			return nil
		}
		return fmt.Errorf("failed to fold pool into carryover for domain %s: %w", dom.ID, err)
	}

	w.logger.Warn("distribution skipped, pool folded into carryover",
		"domain", dom.ID, "distribution", sched.ID, "carryover", s.Carryover)
	return nil
}

// notify emits credit notices to the sink. Sink failures are logged and never
// fail the settlement; its value is already durably applied.
func (w *Writer) notify(ctx context.Context, dom *domain.Domain, s *domain.Settlement) {
	if w.sink == nil {
		return
	}

	for _, credit := range s.Credits {
		notice := domain.CreditNotice{
			RecipientID: credit.UserID,
			DomainID:    dom.ID,
			Amount:      credit.Amount.StringFixed(2),
		}
		if err := w.sink.Notify(ctx, notice); err != nil {
			w.logger.Error("failed to notify recipient",
				"domain", dom.ID, "recipient", credit.UserID, "error", err)
		}
	}

	if s.TreasuryID != nil && s.TreasuryAmount.IsPositive() {
		notice := domain.CreditNotice{
			RecipientID: *s.TreasuryID,
			DomainID:    dom.ID,
			Amount:      s.TreasuryAmount.StringFixed(2),
			Treasury:    true,
		}
		if err := w.sink.Notify(ctx, notice); err != nil {
			w.logger.Error("failed to notify treasury credit",
				"domain", dom.ID, "alliance", *s.TreasuryID, "error", err)
		}
	}
}

// creditsFromResult flattens the per-user map into a slice ordered by
// identity, so the store applies and the sink observes credits in a stable
// order.
func creditsFromResult(result allocator.Result) []domain.Credit {
	credits := make([]domain.Credit, 0, len(result.PerUser))
	for userID, minor := range result.PerUser {
		if minor == 0 {
			continue
		}
		credits = append(credits, domain.Credit{
			UserID: userID,
			Amount: allocator.FromMinorUnits(minor),
		})
	}
	sort.Slice(credits, func(i, j int) bool {
		return credits[i].UserID.String() < credits[j].UserID.String()
	})
	return credits
}
