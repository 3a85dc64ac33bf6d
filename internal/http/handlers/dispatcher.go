package handlers

import (
	"math"
	"net/http"
	"time"

	"github.com/iago/assessment-dispatch/internal/domain"
)

// maxPollIntervalMS is the largest interval that still fits in a time.Duration.
const maxPollIntervalMS = math.MaxInt64 / int64(time.Millisecond)

type dispatcherStatus struct {
	State          domain.SubsystemState `json:"state"`
	QueueDepth     int                   `json:"queue_depth"`
	PollIntervalMS int64                 `json:"poll_interval_ms"`
	Suppressed     bool                  `json:"suppressed"`
	Synchronous    bool                  `json:"synchronous"`
}

type dispatcherUpdate struct {
	PollIntervalMS *int64 `json:"poll_interval_ms,omitempty"`
	Suppressed     *bool  `json:"suppressed,omitempty"`
}

func (api *API) DispatcherStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.currentStatus())
}

func (api *API) UpdateDispatcher(w http.ResponseWriter, r *http.Request) {
	var update dispatcherUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	if update.PollIntervalMS != nil {
		if *update.PollIntervalMS > maxPollIntervalMS {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "poll_interval_ms is too large")
			return
		}
		if err := api.dispatcher.SetPollInterval(time.Duration(*update.PollIntervalMS) * time.Millisecond); err != nil {
			api.writeDispatchError(w, r, err)
			return
		}
	}
	if update.Suppressed != nil {
		api.dispatcher.SetSuppressDispatch(*update.Suppressed)
	}
	writeJSON(w, http.StatusOK, api.currentStatus())
}

func (api *API) currentStatus() dispatcherStatus {
	status := api.dispatcher.Status()
	return dispatcherStatus{
		State:          status.State,
		QueueDepth:     status.QueueDepth,
		PollIntervalMS: status.PollInterval.Milliseconds(),
		Suppressed:     status.Suppressed,
		Synchronous:    status.Synchronous,
	}
}
