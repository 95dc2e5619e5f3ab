package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appbilling "github.com/propms/backend/internal/application/billing"
	"github.com/propms/backend/internal/domain/billing"
	"github.com/propms/backend/internal/infrastructure/scheduler"
	"github.com/propms/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBatchRunner struct {
	sweepReport appbilling.SweepReport
	cloneReport appbilling.CloneReport
	sweepErr    error
	cloneErr    error
	lastAsOf    time.Time
	status      scheduler.Status
}

func (r *fakeBatchRunner) RunSweepNow(ctx context.Context, asOf time.Time) (appbilling.SweepReport, error) {
	r.lastAsOf = asOf
	return r.sweepReport, r.sweepErr
}

func (r *fakeBatchRunner) RunClonerNow(ctx context.Context, asOf time.Time) (appbilling.CloneReport, error) {
	r.lastAsOf = asOf
	return r.cloneReport, r.cloneErr
}

func (r *fakeBatchRunner) Status() scheduler.Status {
	return r.status
}

type fakeBillRepo struct {
	counts   map[billing.BillStatus]int64
	countErr error
}

func (r *fakeBillRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	return nil, nil
}

func (r *fakeBillRepo) FindByBillNumber(ctx context.Context, billNumber string) (*billing.Bill, error) {
	return nil, nil
}

func (r *fakeBillRepo) FindDueIssued(ctx context.Context, now time.Time) ([]billing.Bill, error) {
	return nil, nil
}

func (r *fakeBillRepo) FindActiveTemplates(ctx context.Context) ([]billing.Bill, error) {
	return nil, nil
}

func (r *fakeBillRepo) ExistsForPeriod(ctx context.Context, tenantID uuid.UUID, description string, periodStart time.Time) (bool, error) {
	return false, nil
}

func (r *fakeBillRepo) Save(ctx context.Context, bill *billing.Bill) error {
	return nil
}

func (r *fakeBillRepo) CreateCloneAndAdvance(ctx context.Context, clone *billing.Bill, templateID uuid.UUID) error {
	return nil
}

func (r *fakeBillRepo) CountByStatus(ctx context.Context, status billing.BillStatus) (int64, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	return r.counts[status], nil
}

func newBillingTestContext(t *testing.T, method, path string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestBillingHandler_RunOverdueSweep(t *testing.T) {
	t.Run("returns the sweep report", func(t *testing.T) {
		runner := &fakeBatchRunner{sweepReport: appbilling.SweepReport{Scanned: 5, Transitioned: 3}}
		h := NewBillingHandler(runner, &fakeBillRepo{})

		c, w := newBillingTestContext(t, http.MethodPost, "/billing/overdue-sweep/run", nil)
		h.RunOverdueSweep(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(5), data["scanned"])
		assert.Equal(t, float64(3), data["transitioned"])
	})

	t.Run("honors an explicit as_of instant", func(t *testing.T) {
		runner := &fakeBatchRunner{}
		h := NewBillingHandler(runner, &fakeBillRepo{})

		asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		c, w := newBillingTestContext(t, http.MethodPost, "/billing/overdue-sweep/run", dto.TriggerRunRequest{AsOf: &asOf})
		h.RunOverdueSweep(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, runner.lastAsOf.Equal(asOf))
	})

	t.Run("run lock conflict maps to 409", func(t *testing.T) {
		runner := &fakeBatchRunner{sweepErr: scheduler.ErrRunAlreadyInProgress}
		h := NewBillingHandler(runner, &fakeBillRepo{})

		c, w := newBillingTestContext(t, http.MethodPost, "/billing/overdue-sweep/run", nil)
		h.RunOverdueSweep(c)

		assert.Equal(t, http.StatusConflict, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeRunInProgress, resp.Error.Code)
	})

	t.Run("unexpected failure maps to 500", func(t *testing.T) {
		runner := &fakeBatchRunner{sweepErr: errors.New("store unreachable")}
		h := NewBillingHandler(runner, &fakeBillRepo{})

		c, w := newBillingTestContext(t, http.MethodPost, "/billing/overdue-sweep/run", nil)
		h.RunOverdueSweep(c)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestBillingHandler_RunCycleCloner(t *testing.T) {
	t.Run("returns the clone report", func(t *testing.T) {
		runner := &fakeBatchRunner{cloneReport: appbilling.CloneReport{Templates: 4, Cloned: 2, Skipped: 2}}
		h := NewBillingHandler(runner, &fakeBillRepo{})

		c, w := newBillingTestContext(t, http.MethodPost, "/billing/cycle-cloner/run", nil)
		h.RunCycleCloner(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(4), data["templates"])
		assert.Equal(t, float64(2), data["cloned"])
		assert.Equal(t, float64(2), data["skipped"])
	})

	t.Run("run lock conflict maps to 409", func(t *testing.T) {
		runner := &fakeBatchRunner{cloneErr: scheduler.ErrRunAlreadyInProgress}
		h := NewBillingHandler(runner, &fakeBillRepo{})

		c, w := newBillingTestContext(t, http.MethodPost, "/billing/cycle-cloner/run", nil)
		h.RunCycleCloner(c)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestBillingHandler_SchedulerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	runner := &fakeBatchRunner{status: scheduler.Status{
		Running:       true,
		SweepSchedule: "0 * * * *",
		CloneSchedule: "0 2 * * *",
	}}
	h := NewBillingHandler(runner, &fakeBillRepo{})

	c, w := newBillingTestContext(t, http.MethodGet, "/billing/scheduler/status", nil)
	h.SchedulerStatus(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["running"])
	assert.Equal(t, "0 * * * *", data["sweep_schedule"])
}

func TestBillingHandler_BillCounts(t *testing.T) {
	t.Run("reports counts per status", func(t *testing.T) {
		repo := &fakeBillRepo{counts: map[billing.BillStatus]int64{
			billing.BillStatusMaster: 2,
			billing.BillStatusIssued: 7,
		}}
		h := NewBillingHandler(&fakeBatchRunner{}, repo)

		c, w := newBillingTestContext(t, http.MethodGet, "/billing/bills/counts", nil)
		h.BillCounts(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		data := resp.Data.(map[string]interface{})
		counts := data["counts"].(map[string]interface{})
		assert.Equal(t, float64(2), counts["MASTER"])
		assert.Equal(t, float64(7), counts["ISSUED"])
		assert.Equal(t, float64(0), counts["PAID"])
	})

	t.Run("store failure maps to 500", func(t *testing.T) {
		repo := &fakeBillRepo{countErr: errors.New("store unreachable")}
		h := NewBillingHandler(&fakeBatchRunner{}, repo)

		c, w := newBillingTestContext(t, http.MethodGet, "/billing/bills/counts", nil)
		h.BillCounts(c)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
