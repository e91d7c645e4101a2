// Package jobs exposes the dispatch core over HTTP.
package jobs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/haulage/core/dispatch"
	corejobs "github.com/kilianp07/haulage/core/jobs"
	"github.com/kilianp07/haulage/core/logger"
	"github.com/kilianp07/haulage/core/model"
	"github.com/kilianp07/haulage/core/notify"
)

const dayLayout = "2006-01-02"

// Handler serves the job, truck and notification endpoints.
type Handler struct {
	machine *dispatch.Machine
	inbox   notify.Inbox
	log     logger.Logger
	mux     *http.ServeMux
}

// NewHandler returns the API handler. inbox may be nil, in which case the
// notification endpoints answer 404.
func NewHandler(m *dispatch.Machine, inbox notify.Inbox, log logger.Logger) *Handler {
	h := &Handler{machine: m, inbox: inbox, log: logger.OrNop(log), mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /api/jobs", h.createJob)
	h.mux.HandleFunc("GET /api/jobs", h.listJobs)
	h.mux.HandleFunc("POST /api/jobs/bulk-status", h.bulkStatus)
	h.mux.HandleFunc("GET /api/jobs/{id}", h.getJob)
	h.mux.HandleFunc("POST /api/jobs/{id}/status", h.applyStatus)
	h.mux.HandleFunc("POST /api/jobs/{id}/driver-status", h.driverStatus)
	h.mux.HandleFunc("POST /api/jobs/{id}/pod", h.submitPOD)
	h.mux.HandleFunc("POST /api/jobs/{id}/resolve", h.resolveProblem)
	h.mux.HandleFunc("PUT /api/jobs/{id}/assignment", h.assign)
	h.mux.HandleFunc("DELETE /api/jobs/{id}/assignment", h.unassign)
	h.mux.HandleFunc("GET /api/trucks/{id}/runlist", h.runList)
	h.mux.HandleFunc("GET /api/trucks/{id}/capacity", h.capacity)
	if inbox != nil {
		h.mux.HandleFunc("GET /api/users/{id}/notifications", h.notifications)
		h.mux.HandleFunc("POST /api/notifications/{id}/read", h.markRead)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) { h.mux.ServeHTTP(w, r) }

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// parseDay accepts a calendar day or an RFC3339 timestamp.
func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse(dayLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	var req dispatch.JobRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	j, err := h.machine.CreateJob(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.machine.Job(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := corejobs.Filter{
		CustomerID: q.Get("customer_id"),
		TruckID:    q.Get("truck_id"),
	}
	if s := q.Get("status"); s != "" {
		st, err := model.ParseJobStatus(s)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		f.Status = st
	}
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if s := q.Get(key); s != "" {
			t, err := parseDay(s)
			if err != nil {
				badRequest(w, err.Error())
				return
			}
			*dst = t
		}
	}
	list, err := h.machine.Jobs(r.Context(), f)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if list == nil {
		list = []model.Job{}
	}
	writeJSON(w, http.StatusOK, list)
}

type statusRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
	// Reason is kept as the return reason when a job is returned.
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) applyStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	st, err := model.ParseJobStatus(req.Status)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	j, err := h.machine.ApplyStatusWithReason(r.Context(), r.PathValue("id"), st, req.Reason, req.Actor)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

type bulkRequest struct {
	JobIDs []string `json:"jobIds"`
	Action string   `json:"action"`
	Actor  string   `json:"actor"`
}

type bulkResponse struct {
	Results   []dispatch.BulkResult `json:"results"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
}

func (h *Handler) bulkStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if len(req.JobIDs) == 0 {
		badRequest(w, "jobIds must not be empty")
		return
	}
	results, err := h.machine.BulkApplyStatus(r.Context(), req.JobIDs, model.JobStatus(req.Action), req.Actor)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	resp := bulkResponse{Results: results}
	for _, res := range results {
		if res.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) driverStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	st, err := model.ParseDriverStatus(req.Status)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	j, err := h.machine.ApplyDriverStatus(r.Context(), r.PathValue("id"), st, req.Actor)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handler) submitPOD(w http.ResponseWriter, r *http.Request) {
	var req dispatch.PODRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	req.JobID = r.PathValue("id")
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	j, err := h.machine.SubmitProofOfDelivery(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

type resolveRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

func (h *Handler) resolveProblem(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	j, err := h.machine.ResolveProblem(r.Context(), r.PathValue("id"), req.Reason, req.Actor)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

type assignRequest struct {
	TruckID    string `json:"truckId"`
	Date       string `json:"date,omitempty"`
	TimeSlotID string `json:"timeSlotId"`
	Actor      string `json:"actor"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.TruckID == "" || req.TimeSlotID == "" {
		badRequest(w, "truckId and timeSlotId are required")
		return
	}
	ar := dispatch.AssignRequest{JobID: r.PathValue("id"), TruckID: req.TruckID, TimeSlotID: req.TimeSlotID, Actor: req.Actor}
	if req.Date != "" {
		d, err := parseDay(req.Date)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		ar.Date = d
	}
	res, err := h.machine.AssignJob(r.Context(), ar)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) unassign(w http.ResponseWriter, r *http.Request) {
	j, err := h.machine.UnassignJob(r.Context(), r.PathValue("id"), r.URL.Query().Get("actor"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// runList serves either an explicit from/to range or the week containing
// the week parameter. Without parameters the current week is returned.
func (h *Handler) runList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	truckID := r.PathValue("id")
	var (
		list []model.Job
		err  error
	)
	if q.Get("from") != "" || q.Get("to") != "" {
		from, ferr := parseDay(q.Get("from"))
		to, terr := parseDay(q.Get("to"))
		if ferr != nil || terr != nil {
			badRequest(w, "from and to must both be dates")
			return
		}
		list, err = h.machine.RunList(r.Context(), truckID, from, to)
	} else {
		day := time.Now()
		if s := q.Get("week"); s != "" {
			if day, err = parseDay(s); err != nil {
				badRequest(w, err.Error())
				return
			}
		}
		list, err = h.machine.RunListForWeek(r.Context(), truckID, day)
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) capacity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	day, err := parseDay(q.Get("date"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	slot := q.Get("slot")
	if slot == "" {
		badRequest(w, "slot is required")
		return
	}
	warn, err := h.machine.BucketCapacity(r.Context(), r.PathValue("id"), model.Day(day), slot)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, warn)
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	list, err := h.inbox.ListForUser(r.Context(), r.PathValue("id"), unread)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if list == nil {
		list = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	if err := h.inbox.MarkRead(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
