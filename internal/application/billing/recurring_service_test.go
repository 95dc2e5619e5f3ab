package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/propms/backend/internal/domain/billing"
	"github.com/propms/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockBillRepo is a mock implementation of billing.BillRepository
type mockBillRepo struct {
	mock.Mock
}

func (m *mockBillRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Bill), args.Error(1)
}

func (m *mockBillRepo) FindByBillNumber(ctx context.Context, billNumber string) (*billing.Bill, error) {
	args := m.Called(ctx, billNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Bill), args.Error(1)
}

func (m *mockBillRepo) FindDueIssued(ctx context.Context, now time.Time) ([]billing.Bill, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Bill), args.Error(1)
}

func (m *mockBillRepo) FindActiveTemplates(ctx context.Context) ([]billing.Bill, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Bill), args.Error(1)
}

func (m *mockBillRepo) ExistsForPeriod(ctx context.Context, tenantID uuid.UUID, description string, periodStart time.Time) (bool, error) {
	args := m.Called(ctx, tenantID, description, periodStart)
	return args.Bool(0), args.Error(1)
}

func (m *mockBillRepo) Save(ctx context.Context, bill *billing.Bill) error {
	args := m.Called(ctx, bill)
	return args.Error(0)
}

func (m *mockBillRepo) CreateCloneAndAdvance(ctx context.Context, clone *billing.Bill, templateID uuid.UUID) error {
	args := m.Called(ctx, clone, templateID)
	return args.Error(0)
}

func (m *mockBillRepo) CountByStatus(ctx context.Context, status billing.BillStatus) (int64, error) {
	args := m.Called(ctx, status)
	return args.Get(0).(int64), args.Error(1)
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func newTemplate(t *testing.T, cycle billing.BillingCycle, anchor time.Time, cyclesDone int) billing.Bill {
	t.Helper()
	tmpl, err := billing.NewBillTemplate(
		uuid.New(),
		uuid.New(),
		"Monthly rent unit 4B",
		decimal.NewFromInt(1200),
		decimal.NewFromInt(50),
		cycle,
	)
	require.NoError(t, err)
	tmpl.CreatedAt = anchor
	tmpl.CyclesDone = cyclesDone
	return *tmpl
}

func issuedBill(t *testing.T, due time.Time) billing.Bill {
	t.Helper()
	tmpl := newTemplate(t, billing.CycleMonthly, date(2026, time.January, 1), 0)
	clone, err := tmpl.CloneForPeriod(date(2026, time.January, 1), billing.GenerateBillNumber(due))
	require.NoError(t, err)
	clone.DueDate = &due
	return *clone
}

func TestRecurringBillService_RunOverdueSweep(t *testing.T) {
	ctx := context.Background()
	now := date(2026, time.March, 1)

	t.Run("transitions past-due bills and leaves the rest", func(t *testing.T) {
		repo := new(mockBillRepo)
		service := NewRecurringBillService(repo, zap.NewNop())

		pastDue := issuedBill(t, date(2026, time.February, 28))
		repo.On("FindDueIssued", ctx, now).Return([]billing.Bill{pastDue}, nil)
		repo.On("Save", ctx, mock.MatchedBy(func(b *billing.Bill) bool {
			return b.Status == billing.BillStatusOverdue
		})).Return(nil)

		report, err := service.RunOverdueSweep(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, SweepReport{Scanned: 1, Transitioned: 1}, report)
		repo.AssertExpectations(t)
	})

	t.Run("no candidates is a no-op", func(t *testing.T) {
		repo := new(mockBillRepo)
		service := NewRecurringBillService(repo, zap.NewNop())

		repo.On("FindDueIssued", ctx, now).Return([]billing.Bill{}, nil)

		report, err := service.RunOverdueSweep(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, SweepReport{}, report)
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("failing row is counted and does not abort the sweep", func(t *testing.T) {
		repo := new(mockBillRepo)
		service := NewRecurringBillService(repo, zap.NewNop())

		first := issuedBill(t, date(2026, time.January, 31))
		second := issuedBill(t, date(2026, time.February, 15))
		repo.On("FindDueIssued", ctx, now).Return([]billing.Bill{first, second}, nil)
		repo.On("Save", ctx, mock.MatchedBy(func(b *billing.Bill) bool {
			return b.BillNumber == first.BillNumber
		})).Return(errors.New("connection reset"))
		repo.On("Save", ctx, mock.MatchedBy(func(b *billing.Bill) bool {
			return b.BillNumber == second.BillNumber
		})).Return(nil)

		report, err := service.RunOverdueSweep(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, SweepReport{Scanned: 2, Transitioned: 1, Failed: 1}, report)
	})

	t.Run("store unreachable propagates to the caller", func(t *testing.T) {
		repo := new(mockBillRepo)
		service := NewRecurringBillService(repo, zap.NewNop())

		repo.On("FindDueIssued", ctx, now).Return(nil, errors.New("dial tcp: connection refused"))

		_, err := service.RunOverdueSweep(ctx, now)
		assert.Error(t, err)
	})
}

func TestRecurringBillService_RunCycleCloner(t *testing.T) {
	ctx := context.Background()

	t.Run("clones the started period and advances the counter atomically", func(t *testing.T) {
		repo := new(mockBillRepo)
		service := NewRecurringBillService(repo, zap.NewNop())

		now := date(2026, time.February, 1)
		tmpl := newTemplate(t, billing.CycleMonthly, date(2026, time.January, 1), 1)
		nextStart := date(2026, time.February, 1)

		repo.On("FindActiveTemplates", ctx).Return([]billing.Bill{tmpl}, nil)
		repo.On("ExistsForPeriod", ctx, tmpl.TenantID, tmpl.Description, nextStart).Return(false, nil)
		repo.On("CreateCloneAndAdvance", ctx, mock.MatchedBy(func(b *billing.Bill) bool {
			return b.Status == billing.BillStatusIssued &&
				b.BillingPeriodStart.Equal(nextStart) &&
				b.BillingPeriodEnd.Equal(date(2026, time.February, 28)) &&
				b.BillNumber != ""
		}), tmpl.ID).Return(nil)

		report, err := service.RunCycleCloner(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, CloneReport{Templates: 1, Cloned: 1}, report)
		repo.AssertExpectations(t)
	})

	t.Run("period not started yet is skipped", func(t *testing.T) {
		repo := new(mockBillRepo)
		service := NewRecurringBillService(repo, zap.NewNop())

		now := date(2026, time.January, 15)
		tmpl := newTemplate(t, billing.CycleMonthly, date(2026, time.January, 1), 1)

		repo.On("FindActiveTemplates", ctx).Return([]billing.Bill{tmpl}, nil)

		report, err := service.RunCycleCloner(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, CloneReport{Templates: 1, Skipped: 1}, report)
		repo.AssertNotCalled(t, "CreateCloneAndAdvance", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("existing bill for the period is not duplicated", func(t *testing.T) {
		repo := new(mockBillRepo)
		service := NewRecurringBillService(repo, zap.NewNop())

		now := date(2026, time.March, 10)
		tmpl := newTemplate(t, billing.CycleMonthly, date(2026, time.January, 1), 2)
		nextStart := date(2026, time.March, 1)

		repo.On("FindActiveTemplates", ctx).Return([]billing.Bill{tmpl}, nil)
		repo.On("ExistsForPeriod", ctx, tmpl.TenantID, tmpl.Description, nextStart).Return(true, nil)

		report, err := service.RunCycleCloner(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, CloneReport{Templates: 1, Skipped: 1}, report)
		repo.AssertNotCalled(t, "CreateCloneAndAdvance", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("template missing its cycle is skipped without error", func(t *testing.T) {
		repo := new(mockBillRepo)
		service := NewRecurringBillService(repo, zap.NewNop())

		tmpl := newTemplate(t, billing.CycleMonthly, date(2026, time.January, 1), 0)
		tmpl.BillingCycle = nil

		repo.On("FindActiveTemplates", ctx).Return([]billing.Bill{tmpl}, nil)

		report, err := service.RunCycleCloner(ctx, date(2026, time.June, 1))
		require.NoError(t, err)
		assert.Equal(t, CloneReport{Templates: 1, Skipped: 1}, report)
	})

	t.Run("unrecognized cycle value is skipped without error", func(t *testing.T) {
		repo := new(mockBillRepo)
		service := NewRecurringBillService(repo, zap.NewNop())

		tmpl := newTemplate(t, billing.CycleMonthly, date(2026, time.January, 1), 0)
		bad := billing.BillingCycle("EVERY_3_DAYS")
		tmpl.BillingCycle = &bad

		repo.On("FindActiveTemplates", ctx).Return([]billing.Bill{tmpl}, nil)

		report, err := service.RunCycleCloner(ctx, date(2026, time.June, 1))
		require.NoError(t, err)
		assert.Equal(t, CloneReport{Templates: 1, Skipped: 1}, report)
	})

	t.Run("one failing template does not abort the batch", func(t *testing.T) {
		repo := new(mockBillRepo)
		service := NewRecurringBillService(repo, zap.NewNop())

		now := date(2026, time.February, 1)
		failing := newTemplate(t, billing.CycleMonthly, date(2026, time.January, 1), 0)
		healthy := newTemplate(t, billing.CycleWeekly, date(2026, time.January, 1), 1)
		healthy.Description = "Weekly cleaning fee"

		repo.On("FindActiveTemplates", ctx).Return([]billing.Bill{failing, healthy}, nil)
		repo.On("ExistsForPeriod", ctx, failing.TenantID, failing.Description, mock.Anything).Return(false, nil)
		repo.On("ExistsForPeriod", ctx, healthy.TenantID, healthy.Description, mock.Anything).Return(false, nil)
		repo.On("CreateCloneAndAdvance", ctx, mock.Anything, failing.ID).Return(errors.New("constraint violation"))
		repo.On("CreateCloneAndAdvance", ctx, mock.Anything, healthy.ID).Return(nil)

		report, err := service.RunCycleCloner(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, CloneReport{Templates: 2, Cloned: 1, Failed: 1}, report)
	})

	t.Run("losing the transactional race counts as a skip", func(t *testing.T) {
		repo := new(mockBillRepo)
		service := NewRecurringBillService(repo, zap.NewNop())

		now := date(2026, time.February, 1)
		tmpl := newTemplate(t, billing.CycleMonthly, date(2026, time.January, 1), 0)

		repo.On("FindActiveTemplates", ctx).Return([]billing.Bill{tmpl}, nil)
		repo.On("ExistsForPeriod", ctx, tmpl.TenantID, tmpl.Description, mock.Anything).Return(false, nil)
		repo.On("CreateCloneAndAdvance", ctx, mock.Anything, tmpl.ID).Return(shared.ErrAlreadyExists)

		report, err := service.RunCycleCloner(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, CloneReport{Templates: 1, Skipped: 1}, report)
	})

	t.Run("store unreachable propagates to the caller", func(t *testing.T) {
		repo := new(mockBillRepo)
		service := NewRecurringBillService(repo, zap.NewNop())

		repo.On("FindActiveTemplates", ctx).Return(nil, errors.New("dial tcp: connection refused"))

		_, err := service.RunCycleCloner(ctx, date(2026, time.February, 1))
		assert.Error(t, err)
	})
}
