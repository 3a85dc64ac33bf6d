package httpserver

import (
	"context"
	"net/http"

	"github.com/iago/assessment-dispatch/internal/http/handlers"
	"github.com/iago/assessment-dispatch/internal/http/middleware"
	"go.uber.org/zap"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *zap.SugaredLogger
	APIKey         string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter builds the API handler chain. Background work tied to the
// router stops when ctx is cancelled.
func NewRouter(ctx context.Context, deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", deps.API.Health)
	mux.HandleFunc("POST /v1/vivas/generate", deps.API.GenerateViva)
	mux.HandleFunc("POST /v1/vivas/regenerate", deps.API.RegenerateViva)
	mux.HandleFunc("GET /v1/vivas/export", deps.API.ExportViva)
	mux.HandleFunc("POST /v1/rubrics/generate", deps.API.GenerateRubric)
	mux.HandleFunc("POST /v1/rubrics/convert", deps.API.ConvertRubric)
	mux.HandleFunc("GET /v1/rubrics/export", deps.API.ExportRubric)
	mux.HandleFunc("GET /v1/jobs/{id}", deps.API.JobStatus)
	mux.HandleFunc("GET /v1/dispatcher", deps.API.DispatcherStatus)
	mux.HandleFunc("PUT /v1/dispatcher", deps.API.UpdateDispatcher)

	handler := http.Handler(mux)
	handler = middleware.Auth(deps.APIKey)(handler)
	handler = middleware.RateLimit(ctx, deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
