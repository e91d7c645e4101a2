package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/haulage/core/assignment"
	"github.com/kilianp07/haulage/core/capacity"
	"github.com/kilianp07/haulage/core/dispatch"
	"github.com/kilianp07/haulage/core/fleet"
	corejobs "github.com/kilianp07/haulage/core/jobs"
	"github.com/kilianp07/haulage/core/model"
	"github.com/kilianp07/haulage/core/notify"
	"github.com/kilianp07/haulage/core/reference"
)

type testAPI struct {
	h     *Handler
	inbox *notify.MemorySink
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	customers := reference.NewMemoryCustomers(
		model.Customer{ID: "c1", Name: "Acme", DocketID: model.DocketPtr(1)},
		model.Customer{ID: "c2", Name: "NoDocket"},
	)
	trucks := fleet.NewMemoryStore(model.Truck{ID: "t1", Name: "Truck 1", CapacityTonnes: 10, IsActive: true})
	alloc := reference.NewAllocator(customers, reference.NewMemoryCounterStore())
	m := dispatch.NewMachine(dispatch.Config{}, corejobs.NewMemoryStore(), assignment.NewMemoryStore(), trucks, alloc, nil, nil, nil, nil)
	inbox := &notify.MemorySink{}
	return &testAPI{h: NewHandler(m, inbox, nil), inbox: inbox}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	a.h.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) createJob(t *testing.T, weight float64) model.Job {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"customerId":       "c1",
		"deliveryLocation": "12 Dock Road",
		"weightKg":         weight,
		"requestedDate":    "2024-03-04T00:00:00Z",
		"timeSlotId":       "am",
		"actor":            "portal",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var j model.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &j))
	return j
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e))
	return e
}

func TestCreateAndGetJob(t *testing.T) {
	a := newTestAPI(t)
	j := a.createJob(t, 1200)
	assert.Equal(t, model.StatusPendingApproval, j.Status)
	assert.Equal(t, "first-am", j.TimeSlotID)
	parts, err := reference.Parse(j.ReferenceNumber)
	require.NoError(t, err)
	assert.Equal(t, 1, parts.DocketID)
	assert.Equal(t, 1, parts.Sequence)

	rr := a.do(t, http.MethodGet, "/api/jobs/"+j.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got model.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, j.ReferenceNumber, got.ReferenceNumber)
}

func TestCreateJobErrors(t *testing.T) {
	a := newTestAPI(t)
	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"unknown customer", map[string]any{"customerId": "nope", "deliveryLocation": "x", "requestedDate": "2024-03-04T00:00:00Z"}, http.StatusNotFound, "customer not found"},
		{"missing docket", map[string]any{"customerId": "c2", "deliveryLocation": "x", "requestedDate": "2024-03-04T00:00:00Z"}, http.StatusUnprocessableEntity, "customer has no docket id"},
		{"invalid job", map[string]any{"customerId": "c1"}, http.StatusBadRequest, "invalid job"},
		{"unknown field", map[string]any{"bogus": true}, http.StatusBadRequest, "bad request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := a.do(t, http.MethodPost, "/api/jobs", tt.body)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, decodeError(t, rr).Error)
		})
	}
}

func TestGetJobNotFound(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(t, http.MethodGet, "/api/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	e := decodeError(t, rr)
	assert.Equal(t, "job not found", e.Error)
	assert.Contains(t, e.Details, "missing")
}

func TestListJobsFilter(t *testing.T) {
	a := newTestAPI(t)
	j1 := a.createJob(t, 100)
	a.createJob(t, 200)
	rr := a.do(t, http.MethodPost, "/api/jobs/"+j1.ID+"/status", map[string]string{"status": "APPROVED", "actor": "d"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = a.do(t, http.MethodGet, "/api/jobs?status=APPROVED", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []model.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, j1.ID, list[0].ID)

	rr = a.do(t, http.MethodGet, "/api/jobs?status=LOST", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = a.do(t, http.MethodGet, "/api/jobs?from=2025-01-01", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]\n", rr.Body.String())
}

func TestAssignDriverAndPOD(t *testing.T) {
	a := newTestAPI(t)
	j := a.createJob(t, 8500)
	rr := a.do(t, http.MethodPost, "/api/jobs/"+j.ID+"/status", map[string]string{"status": "APPROVED", "actor": "d"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = a.do(t, http.MethodPut, "/api/jobs/"+j.ID+"/assignment", map[string]string{"truckId": "t1", "date": "2024-03-04", "timeSlotId": "first-am", "actor": "d"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res dispatch.AssignResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, model.StatusScheduled, res.Job.Status)
	assert.True(t, res.Warning.NearCapacity)
	assert.False(t, res.Warning.OverCapacity)

	rr = a.do(t, http.MethodGet, "/api/trucks/t1/capacity?date=2024-03-04&slot=am", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var warn capacity.Warning
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &warn))
	assert.InDelta(t, 0.85, warn.Utilization, 1e-9)
	assert.Equal(t, []string{j.ID}, warn.Jobs)

	rr = a.do(t, http.MethodPost, "/api/jobs/"+j.ID+"/driver-status", map[string]string{"status": "EN_ROUTE", "actor": "driver"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = a.do(t, http.MethodPost, "/api/jobs/"+j.ID+"/driver-status", map[string]string{"status": "FLYING", "actor": "driver"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	pod := map[string]any{"photos": []map[string]string{{"url": "s3://pod/1.jpg"}}, "actor": "driver", "idempotencyKey": "k1"}
	rr = a.do(t, http.MethodPost, "/api/jobs/"+j.ID+"/pod", pod)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var delivered model.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &delivered))
	assert.Equal(t, model.StatusDelivered, delivered.Status)
	assert.Equal(t, []string{"s3://pod/1.jpg"}, delivered.PODFiles)

	rr = a.do(t, http.MethodPost, "/api/jobs/"+j.ID+"/pod", pod)
	require.Equal(t, http.StatusOK, rr.Code)
	var again model.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &again))
	assert.Equal(t, delivered.Version, again.Version)

	rr = a.do(t, http.MethodPost, "/api/jobs/"+j.ID+"/pod", map[string]any{"actor": "driver"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAssignRejectsPendingJob(t *testing.T) {
	a := newTestAPI(t)
	j := a.createJob(t, 100)
	rr := a.do(t, http.MethodPut, "/api/jobs/"+j.ID+"/assignment", map[string]string{"truckId": "t1", "timeSlotId": "lunch"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "job cannot be assigned", decodeError(t, rr).Error)

	rr = a.do(t, http.MethodPut, "/api/jobs/"+j.ID+"/assignment", map[string]string{"truckId": "t9", "timeSlotId": "lunch"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.do(t, http.MethodPut, "/api/jobs/"+j.ID+"/assignment", map[string]string{"truckId": "t1"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnassign(t *testing.T) {
	a := newTestAPI(t)
	j := a.createJob(t, 100)
	a.do(t, http.MethodPost, "/api/jobs/"+j.ID+"/status", map[string]string{"status": "APPROVED"})
	rr := a.do(t, http.MethodPut, "/api/jobs/"+j.ID+"/assignment", map[string]string{"truckId": "t1", "date": "2024-03-04", "timeSlotId": "lunch"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = a.do(t, http.MethodDelete, "/api/jobs/"+j.ID+"/assignment?actor=d", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var got model.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, model.StatusApproved, got.Status)
	assert.Empty(t, got.TruckID)
}

func TestBulkStatusPartialFailure(t *testing.T) {
	a := newTestAPI(t)
	j1 := a.createJob(t, 100)
	j2 := a.createJob(t, 100)
	a.do(t, http.MethodPost, "/api/jobs/"+j1.ID+"/status", map[string]string{"status": "APPROVED"})
	a.do(t, http.MethodPost, "/api/jobs/"+j2.ID+"/status", map[string]string{"status": "APPROVED"})

	rr := a.do(t, http.MethodPost, "/api/jobs/bulk-status", map[string]any{
		"jobIds": []string{j1.ID, "missing", j2.ID},
		"action": "SCHEDULED",
		"actor":  "d",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp bulkResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "missing", resp.Results[1].JobID)
	assert.False(t, resp.Results[1].Success)

	rr = a.do(t, http.MethodPost, "/api/jobs/bulk-status", map[string]any{"jobIds": []string{j1.ID}, "action": "APPROVED"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid bulk action", decodeError(t, rr).Error)

	rr = a.do(t, http.MethodPost, "/api/jobs/bulk-status", map[string]any{"action": "SCHEDULED"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInvalidTransitionIsConflict(t *testing.T) {
	a := newTestAPI(t)
	j := a.createJob(t, 100)
	rr := a.do(t, http.MethodPost, "/api/jobs/"+j.ID+"/status", map[string]string{"status": "DELIVERED"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "invalid transition", decodeError(t, rr).Error)
}

func TestStatusReturnedStoresReason(t *testing.T) {
	a := newTestAPI(t)
	j := a.createJob(t, 100)
	a.do(t, http.MethodPost, "/api/jobs/"+j.ID+"/status", map[string]string{"status": "APPROVED"})
	rr := a.do(t, http.MethodPut, "/api/jobs/"+j.ID+"/assignment", map[string]string{"truckId": "t1", "date": "2024-03-04", "timeSlotId": "lunch"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = a.do(t, http.MethodPost, "/api/jobs/"+j.ID+"/driver-status", map[string]string{"status": "EN_ROUTE", "actor": "driver"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = a.do(t, http.MethodPost, "/api/jobs/"+j.ID+"/status", map[string]string{"status": "RETURNED", "reason": "refused at gate", "actor": "d"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var got model.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, model.StatusReturned, got.Status)
	assert.Equal(t, "refused at gate", got.ReturnReason)
}

func TestResolveWithoutProblem(t *testing.T) {
	a := newTestAPI(t)
	j := a.createJob(t, 100)
	rr := a.do(t, http.MethodPost, "/api/jobs/"+j.ID+"/resolve", map[string]string{"reason": "damaged", "actor": "d"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "no problem reported", decodeError(t, rr).Error)
}

func TestRunList(t *testing.T) {
	a := newTestAPI(t)
	late := a.createJob(t, 100)
	early := a.createJob(t, 100)
	for id, slot := range map[string]string{late.ID: "afternoon", early.ID: "first-am"} {
		a.do(t, http.MethodPost, "/api/jobs/"+id+"/status", map[string]string{"status": "APPROVED"})
		rr := a.do(t, http.MethodPut, "/api/jobs/"+id+"/assignment", map[string]string{"truckId": "t1", "date": "2024-03-05", "timeSlotId": slot})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}

	for _, path := range []string{
		"/api/trucks/t1/runlist?from=2024-03-04&to=2024-03-06",
		"/api/trucks/t1/runlist?week=2024-03-07",
	} {
		rr := a.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var list []model.Job
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
		require.Len(t, list, 2, path)
		assert.Equal(t, early.ID, list[0].ID)
		assert.Equal(t, late.ID, list[1].ID)
	}

	rr := a.do(t, http.MethodGet, "/api/trucks/t1/runlist?from=2024-03-04", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = a.do(t, http.MethodGet, "/api/trucks/nope/runlist?week=2024-03-04", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNotificationsEndpoints(t *testing.T) {
	a := newTestAPI(t)
	now := time.Now().UTC()
	require.NoError(t, a.inbox.Deliver(context.Background(), model.Notification{ID: "n1", UserID: "u1", Title: "old", CreatedAt: now.Add(-time.Minute)}))
	require.NoError(t, a.inbox.Deliver(context.Background(), model.Notification{ID: "n2", UserID: "u1", Title: "new", CreatedAt: now}))

	rr := a.do(t, http.MethodPost, "/api/notifications/n1/read", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = a.do(t, http.MethodGet, "/api/users/u1/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []model.Notification
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "n2", list[0].ID)

	rr = a.do(t, http.MethodGet, "/api/users/u2/notifications", nil)
	assert.Equal(t, "[]\n", rr.Body.String())
}
