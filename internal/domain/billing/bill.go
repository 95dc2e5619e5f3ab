package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/propms/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// BillStatus represents the lifecycle state of a bill row
type BillStatus string

const (
	// BillStatusMaster marks a recurring template that is never payable itself
	BillStatusMaster BillStatus = "MASTER"
	// BillStatusIssued marks a concrete bill awaiting payment
	BillStatusIssued BillStatus = "ISSUED"
	// BillStatusOverdue marks a concrete bill whose due date has passed
	BillStatusOverdue BillStatus = "OVERDUE"
	// BillStatusPaid and BillStatusCancelled are set by payment collaborators
	BillStatusPaid      BillStatus = "PAID"
	BillStatusCancelled BillStatus = "CANCELLED"
)

// AllBillStatuses returns all supported bill statuses
func AllBillStatuses() []BillStatus {
	return []BillStatus{
		BillStatusMaster,
		BillStatusIssued,
		BillStatusOverdue,
		BillStatusPaid,
		BillStatusCancelled,
	}
}

// IsValid checks if the status is a supported value
func (s BillStatus) IsValid() bool {
	switch s {
	case BillStatusMaster, BillStatusIssued, BillStatusOverdue, BillStatusPaid, BillStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of the status
func (s BillStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the bill can no longer change state
func (s BillStatus) IsTerminal() bool {
	return s == BillStatusPaid || s == BillStatusCancelled
}

// Bill is the aggregate root for a row in the bills table. Template
// rows (MASTER + recurring) carry the cycle and counter used by the
// cycle cloner; concrete rows carry the billed period and due date.
type Bill struct {
	shared.TenantAggregateRoot
	BillNumber         string
	Description        string
	TotalAmount        decimal.Decimal
	PenaltyAmount      decimal.Decimal
	Status             BillStatus
	IsRecurring        bool
	BillingCycle       *BillingCycle
	CyclesDone         int
	BillingPeriodStart *time.Time
	BillingPeriodEnd   *time.Time
	DueDate            *time.Time
	OverdueAt          *time.Time
}

// NewBillTemplate creates a recurring bill template. The creation
// timestamp becomes the anchor for all cycle arithmetic.
func NewBillTemplate(
	tenantID uuid.UUID,
	createdBy uuid.UUID,
	description string,
	totalAmount decimal.Decimal,
	penaltyAmount decimal.Decimal,
	cycle BillingCycle,
) (*Bill, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if strings.TrimSpace(description) == "" {
		return nil, shared.NewDomainError("INVALID_DESCRIPTION", "Bill description cannot be empty")
	}
	if totalAmount.IsNegative() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Bill amount cannot be negative")
	}
	if penaltyAmount.IsNegative() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Penalty amount cannot be negative")
	}
	if !cycle.IsValid() {
		return nil, shared.NewDomainError("INVALID_CYCLE", "Unsupported billing cycle")
	}

	c := cycle
	return &Bill{
		TenantAggregateRoot: shared.NewTenantAggregateRootWithCreator(tenantID, createdBy),
		Description:         strings.TrimSpace(description),
		TotalAmount:         totalAmount,
		PenaltyAmount:       penaltyAmount,
		Status:              BillStatusMaster,
		IsRecurring:         true,
		BillingCycle:        &c,
	}, nil
}

// IsTemplate returns true for recurring master rows
func (b *Bill) IsTemplate() bool {
	return b.Status == BillStatusMaster && b.IsRecurring
}

// CloneEligibility describes why a template is or is not cloneable
type CloneEligibility struct {
	Eligible bool
	Reason   string
}

// CloneEligibility reports whether the template carries everything the
// cycle cloner needs. Templates with gaps are skipped, never errored.
func (b *Bill) CloneEligibility() CloneEligibility {
	if !b.IsTemplate() {
		return CloneEligibility{Reason: "not a recurring master"}
	}
	if b.BillingCycle == nil {
		return CloneEligibility{Reason: "missing billing cycle"}
	}
	if !b.BillingCycle.IsValid() {
		return CloneEligibility{Reason: fmt.Sprintf("unrecognized billing cycle %q", b.BillingCycle.String())}
	}
	if b.CreatedAt.IsZero() {
		return CloneEligibility{Reason: "missing anchor date"}
	}
	return CloneEligibility{Eligible: true}
}

// NextPeriodStart computes the calendar date the next billing period
// begins: the anchor advanced by CyclesDone whole cycle units.
func (b *Bill) NextPeriodStart() (time.Time, error) {
	if e := b.CloneEligibility(); !e.Eligible {
		return time.Time{}, shared.NewDomainError("INVALID_TEMPLATE", e.Reason)
	}
	return b.BillingCycle.Advance(b.CreatedAt, b.CyclesDone), nil
}

// CloneForPeriod creates the concrete bill for the period beginning at
// start. The clone is issued immediately and carries the template's
// amount, penalty and description; its cycle column is left empty so
// it is never picked up as a template itself.
func (b *Bill) CloneForPeriod(start time.Time, billNumber string) (*Bill, error) {
	if e := b.CloneEligibility(); !e.Eligible {
		return nil, shared.NewDomainError("INVALID_TEMPLATE", e.Reason)
	}
	if billNumber == "" {
		return nil, shared.NewDomainError("INVALID_BILL_NUMBER", "Bill number cannot be empty")
	}

	periodEnd := b.BillingCycle.PeriodEnd(start)
	dueDate := b.BillingCycle.DueDate(start)

	clone := &Bill{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(b.TenantID),
		BillNumber:          billNumber,
		Description:         b.Description,
		TotalAmount:         b.TotalAmount,
		PenaltyAmount:       b.PenaltyAmount,
		Status:              BillStatusIssued,
		IsRecurring:         true,
		BillingPeriodStart:  &start,
		BillingPeriodEnd:    &periodEnd,
		DueDate:             &dueDate,
	}
	clone.CreatedBy = b.CreatedBy
	return clone, nil
}

// MarkOverdue transitions an issued bill whose due date has passed to
// OVERDUE and applies the penalty amount once. Bills due on or after
// now and bills in any other state are left untouched.
func (b *Bill) MarkOverdue(now time.Time) error {
	if b.Status != BillStatusIssued {
		return shared.ErrInvalidState
	}
	if b.DueDate == nil || !b.DueDate.Before(now) {
		return shared.ErrInvalidState
	}

	b.Status = BillStatusOverdue
	b.OverdueAt = &now
	if b.PenaltyAmount.IsPositive() {
		b.TotalAmount = b.TotalAmount.Add(b.PenaltyAmount)
	}
	b.Touch()
	return nil
}

// RecordClone advances the template's cycle counter after a concrete
// bill has been generated for the current period.
func (b *Bill) RecordClone() {
	b.CyclesDone++
	b.Touch()
}

// GenerateBillNumber builds a globally unique bill number from the
// generation time plus a short random suffix.
func GenerateBillNumber(now time.Time) string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:3]
	return fmt.Sprintf("B-%d-%02d-GEN-%03d%s", now.Year(), int(now.Month()), now.UnixMilli()%1000, random)
}
