package overview

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorefall/lorefall-backend/internal/domain"
)

// MockDomainRepository is a mock implementation of DomainRepository for testing
type MockDomainRepository struct {
	mock.Mock
}

func (m *MockDomainRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Domain, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Domain), args.Error(1)
}

func (m *MockDomainRepository) ListDueForDistribution(ctx context.Context, now time.Time) ([]*domain.Domain, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Domain), args.Error(1)
}

func (m *MockDomainRepository) Create(ctx context.Context, d *domain.Domain) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func TestGetDomainOverview(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	domainID := uuid.New()
	dueAt := now.Add(30 * time.Minute)

	dom := &domain.Domain{
		ID:                  domainID,
		Name:                "Vexmarsh",
		OwnerUserID:         uuid.New(),
		PointBalance:        decimal.RequireFromString("40.00"),
		PointsLastAccruedAt: now.Add(-10 * time.Minute),
		ProductivityFactor:  decimal.NewFromInt(2),
		CarryoverBalance:    decimal.RequireFromString("15.00"),
		Scheduled: &domain.ScheduledDistribution{
			ID:       uuid.New(),
			DomainID: domainID,
			DueAt:    dueAt,
			Scope:    domain.DistributionScopeAll,
		},
	}

	repo := new(MockDomainRepository)
	repo.On("GetByID", ctx, domainID).Return(dom, nil)

	service := NewOverviewService(repo)
	overview, err := service.GetDomainOverview(ctx, domainID, now)
	require.NoError(t, err)

	assert.Equal(t, domainID, overview.DomainID)
	assert.Equal(t, "Vexmarsh", overview.Name)
	assert.True(t, overview.PointBalance.Equal(decimal.RequireFromString("40.00")),
		"reported balance is the stored one, got %s", overview.PointBalance)
	// 10 minutes at factor 2 adds 20.00: 40 + 20 + 15 carryover.
	assert.True(t, overview.ProjectedPool.Equal(decimal.RequireFromString("75.00")),
		"got %s", overview.ProjectedPool)
	require.NotNil(t, overview.NextDueAt)
	assert.Equal(t, dueAt, *overview.NextDueAt)
}

func TestGetDomainOverview_NoScheduledDistribution(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	domainID := uuid.New()

	dom := &domain.Domain{
		ID:                  domainID,
		Name:                "Vexmarsh",
		OwnerUserID:         uuid.New(),
		PointBalance:        decimal.Zero,
		PointsLastAccruedAt: now,
		ProductivityFactor:  decimal.NewFromInt(1),
		CarryoverBalance:    decimal.Zero,
	}

	repo := new(MockDomainRepository)
	repo.On("GetByID", ctx, domainID).Return(dom, nil)

	service := NewOverviewService(repo)
	overview, err := service.GetDomainOverview(ctx, domainID, now)
	require.NoError(t, err)
	assert.Nil(t, overview.NextDueAt)
}

func TestGetDomainOverview_UnknownDomain(t *testing.T) {
	ctx := context.Background()
	domainID := uuid.New()

	repo := new(MockDomainRepository)
	repo.On("GetByID", ctx, domainID).Return(nil, domain.ErrNotFound)

	service := NewOverviewService(repo)
	_, err := service.GetDomainOverview(ctx, domainID, time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
