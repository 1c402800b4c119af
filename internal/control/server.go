package control

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/Iron-Ham/autoproducer/internal/logging"
	"github.com/Iron-Ham/autoproducer/internal/pipeline"
	"github.com/Iron-Ham/autoproducer/internal/resource"
)

// recentSamples is how many resource samples GET /status reports.
const recentSamples = 8

// Pipeline is the orchestrator surface the server controls.
type Pipeline interface {
	Status() pipeline.Snapshot
	History() []pipeline.Run
	Pause(reason string) error
	Resume(reason string) error
	RequestRestart(reason string) error
}

// Scheduler starts manual runs and reports the next daily run.
type Scheduler interface {
	TriggerChannel(channel, reason string) (string, error)
	NextFire() time.Time
}

// Resources reports the resource monitor's state.
type Resources interface {
	Paused() bool
	History() []resource.Sample
}

// Option configures a Server.
type Option func(*Server)

// WithScheduler enables POST /trigger and the next_fire status field.
func WithScheduler(s Scheduler) Option {
	return func(srv *Server) { srv.scheduler = s }
}

// WithResources adds resource monitor state to GET /status.
func WithResources(r Resources) Option {
	return func(srv *Server) { srv.resources = r }
}

// WithMetrics serves h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(srv *Server) { srv.metrics = h }
}

// WithShutdown enables POST /shutdown, which calls fn after responding.
func WithShutdown(fn func()) Option {
	return func(srv *Server) { srv.shutdown = fn }
}

// WithLogger sets the server's logger.
func WithLogger(l *logging.Logger) Option {
	return func(srv *Server) {
		if l != nil {
			srv.logger = l
		}
	}
}

// Server is the daemon's HTTP control API.
type Server struct {
	pipeline  Pipeline
	scheduler Scheduler
	resources Resources
	metrics   http.Handler
	shutdown  func()
	logger    *logging.Logger

	httpServer *http.Server
}

// NewServer creates a server for addr.
func NewServer(addr string, p Pipeline, opts ...Option) *Server {
	s := &Server{pipeline: p, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("control")

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.HandleFunc("GET /status", s.status)
	mux.HandleFunc("GET /history", s.history)
	mux.HandleFunc("POST /pause", s.pause)
	mux.HandleFunc("POST /resume", s.resume)
	mux.HandleFunc("POST /restart", s.restart)
	mux.HandleFunc("POST /trigger", s.trigger)
	mux.HandleFunc("POST /shutdown", s.stop)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		s.logger.Info("control API listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{Pipeline: s.pipeline.Status()}
	if s.scheduler != nil {
		next := s.scheduler.NextFire()
		resp.NextFire = &next
	}
	if s.resources != nil {
		resp.ResourcePaused = s.resources.Paused()
		samples := s.resources.History()
		if len(samples) > recentSamples {
			samples = samples[len(samples)-recentSamples:]
		}
		resp.Resources = samples
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	runs := s.pipeline.History()
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			httpError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		if limit < len(runs) {
			runs = runs[:limit]
		}
	}
	if runs == nil {
		runs = []pipeline.Run{}
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	s.signal(w, r, "pause", s.pipeline.Pause)
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	s.signal(w, r, "resume", s.pipeline.Resume)
}

func (s *Server) restart(w http.ResponseWriter, r *http.Request) {
	s.signal(w, r, "restart", s.pipeline.RequestRestart)
}

func (s *Server) signal(w http.ResponseWriter, r *http.Request, name string, fn func(string) error) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	if req.Reason == "" {
		req.Reason = "operator " + name
	}
	if err := fn(req.Reason); err != nil {
		s.logger.Warn("control signal rejected", "signal", name, "error", err)
		httpError(w, errors.UserMessage(err), statusFor(err))
		return
	}
	s.logger.Info("control signal accepted", "signal", name, "reason", req.Reason)
	respondJSON(w, http.StatusAccepted, ActionResponse{Accepted: true})
}

func (s *Server) trigger(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		httpError(w, "manual triggers are not available", http.StatusNotImplemented)
		return
	}
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	runID, err := s.scheduler.TriggerChannel(req.Channel, req.Reason)
	if err != nil {
		httpError(w, errors.UserMessage(err), statusFor(err))
		return
	}
	respondJSON(w, http.StatusAccepted, ActionResponse{Accepted: true, RunID: runID})
}

func (s *Server) stop(w http.ResponseWriter, _ *http.Request) {
	if s.shutdown == nil {
		httpError(w, "shutdown is not available", http.StatusNotImplemented)
		return
	}
	respondJSON(w, http.StatusAccepted, ActionResponse{Accepted: true})
	s.logger.Info("shutdown requested over control API")
	go s.shutdown()
}

func decodeAction(w http.ResponseWriter, r *http.Request) (ActionRequest, bool) {
	var req ActionRequest
	if r.Body == nil {
		return req, true
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req)
	if err != nil && err != io.EOF {
		httpError(w, "invalid request body", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrRunActive):
		return http.StatusConflict
	case errors.Is(err, errors.ErrNotStarted), errors.Is(err, errors.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func httpError(w http.ResponseWriter, message string, code int) {
	respondJSON(w, code, ErrorResponse{Error: message})
}
