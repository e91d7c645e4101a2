// Package dispatch serves the transition audit trail.
package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/haulage/core/dispatch/audit"
)

// Trail returns recorded transitions. Both audit.Store and the dispatch
// machine satisfy it.
type Trail interface {
	Query(ctx context.Context, q audit.Query) ([]audit.Record, error)
}

// TrailFunc adapts a function to Trail.
type TrailFunc func(ctx context.Context, q audit.Query) ([]audit.Record, error)

func (f TrailFunc) Query(ctx context.Context, q audit.Query) ([]audit.Record, error) { return f(ctx, q) }

// NewAuditHandler returns an HTTP handler exposing the audit trail via GET /api/dispatch/audit.
// Requests must include an Authorization header with "Bearer <token>" when token is non-empty.
func NewAuditHandler(trail Trail, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		q := audit.Query{
			JobID: r.URL.Query().Get("job_id"),
			Kind:  r.URL.Query().Get("kind"),
		}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			q.Limit = n
		}
		records, err := trail.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []audit.Record{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
