package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/iago/assessment-dispatch/internal/domain"
)

func (api *API) JobStatus(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.PathValue("id"))
	if raw == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id is required")
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id must be a non-negative integer")
		return
	}

	result, ok := api.dispatcher.Result(domain.JobID(id))
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "job not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
