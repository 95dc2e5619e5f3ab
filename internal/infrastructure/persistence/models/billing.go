package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/propms/backend/internal/domain/billing"
	"github.com/propms/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// BillModel is the persistence model for the Bill aggregate root.
// Template and concrete rows share the table; the composite unique
// index on (tenant_id, description, billing_period_start) is the
// de-duplication guard for clones. Template rows carry a null period
// start and never collide.
type BillModel struct {
	BaseModel
	Version            int             `gorm:"not null;default:1"`
	TenantID           uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_bills_dedup,priority:1"`
	CreatedBy          *uuid.UUID      `gorm:"type:uuid;index"`
	BillNumber         *string         `gorm:"type:varchar(50);uniqueIndex"`
	Description        string          `gorm:"type:varchar(500);not null;uniqueIndex:idx_bills_dedup,priority:2"`
	TotalAmount        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PenaltyAmount      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Status             string          `gorm:"type:varchar(20);not null;index"`
	IsRecurring        bool            `gorm:"not null;default:false;index"`
	BillingCycle       *string         `gorm:"type:varchar(20)"`
	CyclesDone         int             `gorm:"not null;default:0"`
	BillingPeriodStart *time.Time      `gorm:"uniqueIndex:idx_bills_dedup,priority:3"`
	BillingPeriodEnd   *time.Time
	DueDate            *time.Time `gorm:"index"`
	OverdueAt          *time.Time
}

// TableName returns the table name for GORM
func (BillModel) TableName() string {
	return "bills"
}

// ToDomain converts the persistence model to a domain Bill entity.
func (m *BillModel) ToDomain() *billing.Bill {
	b := &billing.Bill{
		TenantAggregateRoot: shared.TenantAggregateRoot{
			BaseAggregateRoot: shared.BaseAggregateRoot{
				BaseEntity: m.BaseModel.ToDomain(),
				Version:    m.Version,
			},
			TenantID:  m.TenantID,
			CreatedBy: m.CreatedBy,
		},
		Description:        m.Description,
		TotalAmount:        m.TotalAmount,
		PenaltyAmount:      m.PenaltyAmount,
		Status:             billing.BillStatus(m.Status),
		IsRecurring:        m.IsRecurring,
		CyclesDone:         m.CyclesDone,
		BillingPeriodStart: m.BillingPeriodStart,
		BillingPeriodEnd:   m.BillingPeriodEnd,
		DueDate:            m.DueDate,
		OverdueAt:          m.OverdueAt,
	}
	if m.BillNumber != nil {
		b.BillNumber = *m.BillNumber
	}
	if m.BillingCycle != nil {
		// Unrecognized stored values survive the round trip so the
		// domain can report them as a data-integrity gap.
		cycle := billing.BillingCycle(*m.BillingCycle)
		b.BillingCycle = &cycle
	}
	return b
}

// FromDomain populates the persistence model from a domain Bill entity.
func (m *BillModel) FromDomain(b *billing.Bill) {
	m.FromDomainBaseEntity(b.BaseEntity)
	m.Version = b.Version
	m.TenantID = b.TenantID
	m.CreatedBy = b.CreatedBy
	m.Description = b.Description
	m.TotalAmount = b.TotalAmount
	m.PenaltyAmount = b.PenaltyAmount
	m.Status = b.Status.String()
	m.IsRecurring = b.IsRecurring
	m.CyclesDone = b.CyclesDone
	m.BillingPeriodStart = b.BillingPeriodStart
	m.BillingPeriodEnd = b.BillingPeriodEnd
	m.DueDate = b.DueDate
	m.OverdueAt = b.OverdueAt

	m.BillNumber = nil
	if b.BillNumber != "" {
		number := b.BillNumber
		m.BillNumber = &number
	}
	m.BillingCycle = nil
	if b.BillingCycle != nil {
		cycle := b.BillingCycle.String()
		m.BillingCycle = &cycle
	}
}

// BillModelFromDomain creates a new persistence model from a domain Bill.
func BillModelFromDomain(b *billing.Bill) *BillModel {
	m := &BillModel{}
	m.FromDomain(b)
	return m
}
