package handlers

import (
	"net/http"

	"github.com/iago/assessment-dispatch/internal/domain"
)

func (api *API) GenerateRubric(w http.ResponseWriter, r *http.Request) {
	var payload domain.RubricGeneratePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	id, err := api.dispatcher.SubmitRubricGenerate(r.Context(), &payload)
	api.writeSubmitted(w, r, id, err)
}

func (api *API) ConvertRubric(w http.ResponseWriter, r *http.Request) {
	var payload domain.RubricConvertPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	id, err := api.dispatcher.SubmitRubricConvert(r.Context(), &payload)
	api.writeSubmitted(w, r, id, err)
}
