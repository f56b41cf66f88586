package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
	"github.com/vnykmshr/stagehand/pkg/metrics"
	"github.com/vnykmshr/stagehand/pkg/orchestrator"
	"github.com/vnykmshr/stagehand/pkg/ratelimit/bucket"
	"github.com/vnykmshr/stagehand/pkg/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ServerDeps are the handlers' collaborators.
type ServerDeps struct {
	Registrar  *Registrar
	Summarizer *Summarizer
	Store      store.Store

	// Gatherer backs GET /metrics. Nil means prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Limiter admits /api requests. Nil admits everything.
	Limiter bucket.Limiter

	// Metrics counts rejected requests. May be nil.
	Metrics *metrics.Registry

	Logger *slog.Logger
}

// Server is the HTTP surface:
//
//	POST /api/users       register a user
//	GET  /api/users/{id}  fetch a user
//	GET  /api/summary     last saved summary
//	POST /api/summary     compute a summary now
//	GET  /healthz         liveness
//	GET  /metrics         Prometheus exposition
type Server struct {
	deps ServerDeps
	mux  *http.ServeMux
}

// NewServer registers the routes.
func NewServer(deps ServerDeps) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.mux.Handle("POST /api/users", s.limit(s.handleRegister))
	s.mux.Handle("GET /api/users/{id}", s.limit(s.handleGetUser))
	s.mux.Handle("GET /api/summary", s.limit(s.handleGetSummary))
	s.mux.Handle("POST /api/summary", s.limit(s.handleRunSummary))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// limit refuses requests with 429 once the limiter's bucket is empty.
func (s *Server) limit(next http.HandlerFunc) http.Handler {
	if s.deps.Limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.deps.Limiter.Allow() {
			if s.deps.Metrics != nil {
				s.deps.Metrics.RejectedRequests.WithLabelValues(r.Pattern).Inc()
			}
			w.Header().Set("Retry-After", "1")
			s.writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next(w, r)
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	res := s.deps.Registrar.Execute(r.Context(), req)
	if !res.Success {
		s.writeError(w, res.Error, res.RequestID)
		return
	}
	w.Header().Set("X-Request-ID", res.RequestID)
	s.writeJSON(w, http.StatusCreated, res.Data)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := GetUser(r.Context(), s.deps.Store, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := LoadSummary(r.Context(), s.deps.Store)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	res := s.deps.Summarizer.Execute(r.Context(), SummaryRequest{AsOf: time.Now()})
	if !res.Success {
		s.writeError(w, res.Error, res.RequestID)
		return
	}
	w.Header().Set("X-Request-ID", res.RequestID)
	s.writeJSON(w, http.StatusOK, res.Data)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusFor maps a failure to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case gferrors.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmailTaken):
		return http.StatusConflict
	case gferrors.IsNotFound(err):
		return http.StatusNotFound
	case gferrors.IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error, requestID string) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.deps.Logger.Error("request failed",
			slog.String("request_id", requestID),
			slog.String("error", msg))
		msg = http.StatusText(status)
	}
	if stage, ok := orchestrator.FailedStage(err); ok && status != http.StatusInternalServerError {
		w.Header().Set("X-Failed-Stage", stage)
	}
	s.writeJSON(w, status, errorResponse{Error: msg, RequestID: requestID})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.deps.Logger.Warn("failed to write response", slog.String("error", err.Error()))
	}
}
