package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/propms/backend/internal/domain/billing"
	"github.com/propms/backend/internal/domain/shared"
	"github.com/propms/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormBillRepository implements billing.BillRepository using GORM
type GormBillRepository struct {
	db *gorm.DB
}

// NewGormBillRepository creates a new GormBillRepository
func NewGormBillRepository(db *gorm.DB) *GormBillRepository {
	return &GormBillRepository{db: db}
}

// FindByID finds a bill by its ID
func (r *GormBillRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	var model models.BillModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByBillNumber finds a concrete bill by its unique number
func (r *GormBillRepository) FindByBillNumber(ctx context.Context, billNumber string) (*billing.Bill, error) {
	var model models.BillModel
	if err := r.db.WithContext(ctx).
		Where("bill_number = ?", billNumber).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindDueIssued returns all issued bills whose due date has passed
func (r *GormBillRepository) FindDueIssued(ctx context.Context, now time.Time) ([]billing.Bill, error) {
	var billModels []models.BillModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND due_date IS NOT NULL AND due_date < ?", billing.BillStatusIssued.String(), now).
		Order("due_date asc").
		Find(&billModels).Error; err != nil {
		return nil, err
	}
	return toDomainBills(billModels), nil
}

// FindActiveTemplates returns all recurring master rows
func (r *GormBillRepository) FindActiveTemplates(ctx context.Context) ([]billing.Bill, error) {
	var billModels []models.BillModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND is_recurring = ?", billing.BillStatusMaster.String(), true).
		Order("created_at asc").
		Find(&billModels).Error; err != nil {
		return nil, err
	}
	return toDomainBills(billModels), nil
}

// ExistsForPeriod reports whether a concrete bill already exists for the
// (tenant, description, period start) de-duplication key
func (r *GormBillRepository) ExistsForPeriod(ctx context.Context, tenantID uuid.UUID, description string, periodStart time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.BillModel{}).
		Where("tenant_id = ? AND description = ? AND billing_period_start = ?", tenantID, description, periodStart).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save creates or updates a single bill row
func (r *GormBillRepository) Save(ctx context.Context, bill *billing.Bill) error {
	model := models.BillModelFromDomain(bill)
	return r.db.WithContext(ctx).Save(model).Error
}

// CreateCloneAndAdvance inserts a concrete bill and increments the
// originating template's cycle counter in one transaction. The
// duplicate check re-runs inside the transaction so overlapping batch
// runs cannot both insert a bill for the same period; the unique index
// on the de-duplication key is the final guard.
func (r *GormBillRepository) CreateCloneAndAdvance(ctx context.Context, clone *billing.Bill, templateID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.BillModel{}).
			Where("tenant_id = ? AND description = ? AND billing_period_start = ?",
				clone.TenantID, clone.Description, clone.BillingPeriodStart).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return shared.ErrAlreadyExists
		}

		if err := tx.Create(models.BillModelFromDomain(clone)).Error; err != nil {
			if isUniqueViolation(err) {
				return shared.ErrAlreadyExists
			}
			return err
		}

		result := tx.Model(&models.BillModel{}).
			Where("id = ?", templateID).
			Updates(map[string]any{
				"cycles_done": gorm.Expr("cycles_done + 1"),
				"updated_at":  time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// CountByStatus counts bills in the given status
func (r *GormBillRepository) CountByStatus(ctx context.Context, status billing.BillStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BillModel{}).
		Where("status = ?", status.String()).
		Count(&count).Error
	return count, err
}

// toDomainBills converts persistence models to domain entities
func toDomainBills(billModels []models.BillModel) []billing.Bill {
	bills := make([]billing.Bill, len(billModels))
	for i := range billModels {
		bills[i] = *billModels[i].ToDomain()
	}
	return bills
}

// isUniqueViolation detects unique-constraint errors from both the
// Postgres driver and the SQLite driver used in tests
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
