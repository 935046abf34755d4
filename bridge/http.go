package bridge

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/izavyalov-dev/octane-bridge/internal/observability"
	"github.com/izavyalov-dev/octane-bridge/protocol"
)

const requestTimeout = 30 * time.Second

// NewHTTPHandler exposes the service over the ALM-facing REST routes plus health and metrics.
func NewHTTPHandler(service *Service, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = observability.NewLogger("bridge.http")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", observability.MetricsHandler(gatherer))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/nga/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, service.Status(time.Now().UTC()))
		})

		r.Get("/jobs", func(w http.ResponseWriter, r *http.Request) {
			jobs, err := service.Jobs(r.Context())
			if err != nil {
				logger.Error("list jobs failed", "event", "list_jobs_failed", "error", err)
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, jobs)
		})

		r.Get("/jobs/{jobID}/builds/latest", func(w http.ResponseWriter, r *http.Request) {
			jobID := chi.URLParam(r, "jobID")
			node, err := service.Snapshot(r.Context(), jobID, r.URL.Query().Get("root"))
			if err != nil {
				if errors.Is(err, ErrJobNotFound) {
					writeError(w, http.StatusNotFound, err)
					return
				}
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, node)
		})
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			observability.WithRequest(logger, middleware.GetReqID(r.Context())).Info("http request",
				"event", "http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, protocol.ErrorResponse{Error: err.Error()})
}
