package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/iago/assessment-dispatch/internal/dispatch"
	"github.com/iago/assessment-dispatch/internal/domain"
	"github.com/iago/assessment-dispatch/internal/http/middleware"
	"github.com/iago/assessment-dispatch/internal/storage"
	"go.uber.org/zap"
)

var errInvalidPayload = errors.New("invalid payload")

// Dispatcher is the control surface the handlers drive.
type Dispatcher interface {
	SubmitVivaGenerate(ctx context.Context, payload *domain.VivaGeneratePayload) (domain.JobID, error)
	SubmitVivaRegenerate(ctx context.Context, payload *domain.VivaRegeneratePayload) (domain.JobID, error)
	SubmitRubricGenerate(ctx context.Context, payload *domain.RubricGeneratePayload) (domain.JobID, error)
	SubmitRubricConvert(ctx context.Context, payload *domain.RubricConvertPayload) (domain.JobID, error)
	Result(id domain.JobID) (domain.JobResult, bool)
	Status() dispatch.Status
	SetPollInterval(interval time.Duration) error
	SetSuppressDispatch(suppress bool)
}

type API struct {
	dispatcher Dispatcher
	storage    storage.Gateway
	log        *zap.SugaredLogger
}

func NewAPI(dispatcher Dispatcher, gateway storage.Gateway, logger *zap.SugaredLogger) *API {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &API{
		dispatcher: dispatcher,
		storage:    gateway,
		log:        logger,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

type acceptedResponse struct {
	JobID     domain.JobID     `json:"job_id"`
	Status    domain.JobStatus `json:"status"`
	StatusURL string           `json:"status_url"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}

// writeSubmitted answers a submit call. In synchronous mode the job already
// ran and its result is returned whole; otherwise the job was queued, however
// quickly the worker picked it up.
func (api *API) writeSubmitted(w http.ResponseWriter, r *http.Request, id domain.JobID, err error) {
	if id == dispatch.NoJob {
		api.writeDispatchError(w, r, err)
		return
	}

	if api.dispatcher.Status().Synchronous {
		if result, ok := api.dispatcher.Result(id); ok {
			writeJSON(w, http.StatusOK, result)
			return
		}
	}

	w.Header().Set("Location", "/v1/jobs/"+strconv.FormatInt(int64(id), 10))
	writeJSON(w, http.StatusAccepted, acceptedResponse{
		JobID:     id,
		Status:    domain.JobStatusQueued,
		StatusURL: "/v1/jobs/" + strconv.FormatInt(int64(id), 10),
	})
}

func (api *API) writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case domain.KindNotInitialized:
		writeError(w, r, http.StatusServiceUnavailable, "not_initialized", "dispatcher is not initialized")
	case domain.KindShuttingDown:
		writeError(w, r, http.StatusServiceUnavailable, "shutting_down", "dispatcher is shutting down")
	default:
		api.log.Errorw("dispatch request failed", "request_id", middleware.GetRequestID(r.Context()), "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "request failed")
	}
}
