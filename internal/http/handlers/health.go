package handlers

import "net/http"

func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	state := api.dispatcher.Status().State
	status, code := "ok", http.StatusOK
	if !state.Accepting() {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "dispatcher": state})
}
