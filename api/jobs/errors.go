package jobs

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kilianp07/haulage/core/dispatch"
	"github.com/kilianp07/haulage/core/fleet"
	"github.com/kilianp07/haulage/core/logger"
	"github.com/kilianp07/haulage/core/reference"
)

// errorBody is returned for every failed request.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{dispatch.ErrJobNotFound, http.StatusNotFound, "job not found"},
	{reference.ErrCustomerNotFound, http.StatusNotFound, "customer not found"},
	{fleet.ErrTruckNotFound, http.StatusNotFound, "truck not found"},
	{reference.ErrMissingDocketID, http.StatusUnprocessableEntity, "customer has no docket id"},
	{reference.ErrInvalidDocketID, http.StatusUnprocessableEntity, "customer docket id is invalid"},
	{dispatch.ErrInvalidJob, http.StatusBadRequest, "invalid job"},
	{dispatch.ErrInvalidBulkAction, http.StatusBadRequest, "invalid bulk action"},
	{dispatch.ErrInvalidTransition, http.StatusConflict, "invalid transition"},
	{dispatch.ErrNotAssignable, http.StatusConflict, "job cannot be assigned"},
	{dispatch.ErrNoProblemReported, http.StatusConflict, "no problem reported"},
	{dispatch.ErrConcurrentUpdate, http.StatusConflict, "job is being updated concurrently"},
}

// writeError maps domain errors to a status code. Unknown errors are logged
// and reported with a generic message.
func writeError(w http.ResponseWriter, log logger.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeJSON(w, m.status, errorBody{Error: m.code, Details: err.Error()})
			return
		}
	}
	log.Errorf("request failed: %v", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

func badRequest(w http.ResponseWriter, details string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad request", Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
