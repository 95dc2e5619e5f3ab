package billing

import (
	"context"
	"errors"
	"time"

	"github.com/propms/backend/internal/domain/billing"
	"github.com/propms/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// SweepReport summarizes one overdue-sweep run
type SweepReport struct {
	Scanned      int `json:"scanned"`
	Transitioned int `json:"transitioned"`
	Failed       int `json:"failed"`
}

// CloneReport summarizes one cycle-cloner run
type CloneReport struct {
	Templates int `json:"templates"`
	Cloned    int `json:"cloned"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// RecurringBillService runs the two periodic billing batches: the
// overdue sweep and the cycle cloner. Both are single sequential
// passes over their candidate sets with no state carried between runs.
type RecurringBillService struct {
	bills  billing.BillRepository
	logger *zap.Logger
}

// NewRecurringBillService creates a new RecurringBillService
func NewRecurringBillService(bills billing.BillRepository, logger *zap.Logger) *RecurringBillService {
	return &RecurringBillService{
		bills:  bills,
		logger: logger,
	}
}

// RunOverdueSweep transitions every issued bill whose due date has
// passed to OVERDUE, applying the bill's penalty once. Each row is
// updated independently; a failing row is logged and the sweep
// continues. Re-running with no new candidates is a no-op.
func (s *RecurringBillService) RunOverdueSweep(ctx context.Context, now time.Time) (SweepReport, error) {
	report := SweepReport{}

	candidates, err := s.bills.FindDueIssued(ctx, now)
	if err != nil {
		return report, err
	}
	report.Scanned = len(candidates)

	for i := range candidates {
		bill := &candidates[i]
		if err := bill.MarkOverdue(now); err != nil {
			// Raced by a payment or another sweep between query and update.
			s.logger.Debug("Bill no longer eligible for overdue transition",
				zap.String("bill_number", bill.BillNumber),
			)
			continue
		}
		if err := s.bills.Save(ctx, bill); err != nil {
			report.Failed++
			s.logger.Error("Failed to persist overdue transition",
				zap.String("bill_id", bill.ID.String()),
				zap.String("bill_number", bill.BillNumber),
				zap.Error(err),
			)
			continue
		}
		report.Transitioned++
	}

	s.logger.Info("Overdue sweep completed",
		zap.Time("as_of", now),
		zap.Int("scanned", report.Scanned),
		zap.Int("transitioned", report.Transitioned),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// RunCycleCloner walks every recurring template, computes whether the
// next billing period has started, and clones a concrete bill for it.
// The clone insert and the template counter increment commit in one
// transaction per template; one malformed or failing template never
// aborts the batch.
func (s *RecurringBillService) RunCycleCloner(ctx context.Context, now time.Time) (CloneReport, error) {
	report := CloneReport{}

	templates, err := s.bills.FindActiveTemplates(ctx)
	if err != nil {
		return report, err
	}
	report.Templates = len(templates)

	for i := range templates {
		tmpl := &templates[i]
		cloned, err := s.cloneTemplate(ctx, tmpl, now)
		switch {
		case err != nil:
			report.Failed++
			s.logger.Error("Failed to clone billing template",
				zap.String("template_id", tmpl.ID.String()),
				zap.String("description", tmpl.Description),
				zap.Error(err),
			)
		case cloned:
			report.Cloned++
		default:
			report.Skipped++
		}
	}

	s.logger.Info("Cycle cloner completed",
		zap.Time("as_of", now),
		zap.Int("templates", report.Templates),
		zap.Int("cloned", report.Cloned),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// cloneTemplate processes a single template. It returns (true, nil)
// when a concrete bill was created, (false, nil) when the template was
// skipped, and a non-nil error only for transactional write failures.
func (s *RecurringBillService) cloneTemplate(ctx context.Context, tmpl *billing.Bill, now time.Time) (bool, error) {
	if e := tmpl.CloneEligibility(); !e.Eligible {
		s.logger.Warn("Skipping billing template",
			zap.String("template_id", tmpl.ID.String()),
			zap.String("reason", e.Reason),
		)
		return false, nil
	}

	nextStart, err := tmpl.NextPeriodStart()
	if err != nil {
		return false, err
	}
	if now.Before(nextStart) {
		return false, nil
	}

	exists, err := s.bills.ExistsForPeriod(ctx, tmpl.TenantID, tmpl.Description, nextStart)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	clone, err := tmpl.CloneForPeriod(nextStart, billing.GenerateBillNumber(now))
	if err != nil {
		return false, err
	}

	if err := s.bills.CreateCloneAndAdvance(ctx, clone, tmpl.ID); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// A concurrent run won the race inside the transaction.
			return false, nil
		}
		return false, err
	}

	s.logger.Info("Generated concrete bill from template",
		zap.String("template_id", tmpl.ID.String()),
		zap.String("bill_number", clone.BillNumber),
		zap.Time("period_start", nextStart),
	)
	return true, nil
}
