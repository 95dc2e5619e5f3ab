package handler

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	appbilling "github.com/propms/backend/internal/application/billing"
	"github.com/propms/backend/internal/domain/billing"
	"github.com/propms/backend/internal/infrastructure/scheduler"
	"github.com/propms/backend/internal/interfaces/http/dto"
	"github.com/propms/backend/internal/interfaces/http/middleware"
)

// BatchRunner triggers billing batch runs and exposes their state
type BatchRunner interface {
	RunSweepNow(ctx context.Context, asOf time.Time) (appbilling.SweepReport, error)
	RunClonerNow(ctx context.Context, asOf time.Time) (appbilling.CloneReport, error)
	Status() scheduler.Status
}

// BillingHandler handles billing batch administration endpoints
type BillingHandler struct {
	BaseHandler
	runner BatchRunner
	bills  billing.BillRepository
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(runner BatchRunner, bills billing.BillRepository) *BillingHandler {
	return &BillingHandler{
		runner: runner,
		bills:  bills,
	}
}

// RegisterRoutes registers billing administration routes
func (h *BillingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	billingGroup := rg.Group("/billing")
	{
		billingGroup.POST("/overdue-sweep/run", h.RunOverdueSweep)
		billingGroup.POST("/cycle-cloner/run", h.RunCycleCloner)
		billingGroup.GET("/scheduler/status", h.SchedulerStatus)
		billingGroup.GET("/bills/counts", h.BillCounts)
	}
}

// RunOverdueSweep triggers an overdue sweep run
func (h *BillingHandler) RunOverdueSweep(c *gin.Context) {
	asOf, ok := h.bindAsOf(c)
	if !ok {
		return
	}

	report, err := h.runner.RunSweepNow(c.Request.Context(), asOf)
	if err != nil {
		h.handleRunError(c, err)
		return
	}

	h.Success(c, dto.SweepRunResponse{
		AsOf:         asOf,
		Scanned:      report.Scanned,
		Transitioned: report.Transitioned,
		Failed:       report.Failed,
	})
}

// RunCycleCloner triggers a cycle cloner run
func (h *BillingHandler) RunCycleCloner(c *gin.Context) {
	asOf, ok := h.bindAsOf(c)
	if !ok {
		return
	}

	report, err := h.runner.RunClonerNow(c.Request.Context(), asOf)
	if err != nil {
		h.handleRunError(c, err)
		return
	}

	h.Success(c, dto.CloneRunResponse{
		AsOf:      asOf,
		Templates: report.Templates,
		Cloned:    report.Cloned,
		Skipped:   report.Skipped,
		Failed:    report.Failed,
	})
}

// SchedulerStatus reports scheduler state and the last run outcomes
func (h *BillingHandler) SchedulerStatus(c *gin.Context) {
	h.Success(c, h.runner.Status())
}

// BillCounts reports bill counts per status
func (h *BillingHandler) BillCounts(c *gin.Context) {
	statuses := billing.AllBillStatuses()
	counts := make(map[string]int64, len(statuses))
	for _, status := range statuses {
		count, err := h.bills.CountByStatus(c.Request.Context(), status)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		counts[string(status)] = count
	}
	h.Success(c, dto.BillCountsResponse{Counts: counts})
}

// bindAsOf reads the optional run request body and resolves the
// evaluation instant. The body may be absent entirely.
func (h *BillingHandler) bindAsOf(c *gin.Context) (time.Time, bool) {
	var req dto.TriggerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.HandleValidationError(c, err)
		return time.Time{}, false
	}
	if req.AsOf != nil {
		return *req.AsOf, true
	}
	return time.Now(), true
}

// handleRunError maps run lock conflicts to 409, everything else to
// the generic error handling
func (h *BillingHandler) handleRunError(c *gin.Context, err error) {
	if errors.Is(err, scheduler.ErrRunAlreadyInProgress) {
		h.Conflict(c, dto.ErrCodeRunInProgress, "A run of this batch is already in progress")
		return
	}
	h.HandleError(c, err)
}
