package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BillRepository defines the persistence port for bill rows.
// Implementations must back ExistsForPeriod / CreateCloneAndAdvance
// with a transaction or unique constraint on
// (tenant_id, description, billing_period_start) so overlapping batch
// runs cannot create two concrete bills for the same period.
type BillRepository interface {
	// FindByID finds a bill by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Bill, error)

	// FindByBillNumber finds a concrete bill by its unique number
	FindByBillNumber(ctx context.Context, billNumber string) (*Bill, error)

	// FindDueIssued returns all issued bills whose due date has passed
	FindDueIssued(ctx context.Context, now time.Time) ([]Bill, error)

	// FindActiveTemplates returns all recurring master rows
	FindActiveTemplates(ctx context.Context) ([]Bill, error)

	// ExistsForPeriod reports whether a concrete bill already exists for
	// the (tenant, description, period start) de-duplication key
	ExistsForPeriod(ctx context.Context, tenantID uuid.UUID, description string, periodStart time.Time) (bool, error)

	// Save creates or updates a single bill row
	Save(ctx context.Context, bill *Bill) error

	// CreateCloneAndAdvance inserts a concrete bill and increments the
	// originating template's cycle counter in one transaction. It
	// returns shared.ErrAlreadyExists when a bill for the same period
	// was inserted concurrently, and applies neither write on failure.
	CreateCloneAndAdvance(ctx context.Context, clone *Bill, templateID uuid.UUID) error

	// CountByStatus counts bills in the given status
	CountByStatus(ctx context.Context, status BillStatus) (int64, error)
}
