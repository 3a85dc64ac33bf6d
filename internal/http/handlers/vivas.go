package handlers

import (
	"net/http"

	"github.com/iago/assessment-dispatch/internal/domain"
)

func (api *API) GenerateViva(w http.ResponseWriter, r *http.Request) {
	var payload domain.VivaGeneratePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	id, err := api.dispatcher.SubmitVivaGenerate(r.Context(), &payload)
	api.writeSubmitted(w, r, id, err)
}

func (api *API) RegenerateViva(w http.ResponseWriter, r *http.Request) {
	var payload domain.VivaRegeneratePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	id, err := api.dispatcher.SubmitVivaRegenerate(r.Context(), &payload)
	api.writeSubmitted(w, r, id, err)
}
