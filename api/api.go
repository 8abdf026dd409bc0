// Package api exposes the HTTP management surface: ad-hoc playbook
// triggers, job state inspection, snapshots and health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/steward"
	"github.com/xraph/steward/jobstate"
	"github.com/xraph/steward/playbook"
)

// Unscheduler removes a scheduled job. scheduler.Scheduler satisfies
// this interface.
type Unscheduler interface {
	Unschedule(ctx context.Context, jobID string) error
}

// Submitter hands a run to the execution pool. runner.Pool satisfies
// this interface.
type Submitter interface {
	Submit(ctx context.Context, run *playbook.Run) error
}

// Snapshotter archives the current job states. archive.Snapshotter
// satisfies this interface.
type Snapshotter interface {
	Snapshot(ctx context.Context) (string, error)
}

// Pinger checks backend connectivity. docstore.Store satisfies this
// interface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the steward management API.
type Server struct {
	states    *jobstate.Store
	playbooks *playbook.Registry
	pool      Submitter
	sched     Unscheduler
	snapper   Snapshotter
	pinger    Pinger
	limiter   *rate.Limiter
	logger    *slog.Logger

	mux    *http.ServeMux
	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithUnscheduler enables DELETE /api/jobs/{id}.
func WithUnscheduler(u Unscheduler) Option {
	return func(s *Server) { s.sched = u }
}

// WithSnapshotter enables POST /api/snapshot.
func WithSnapshotter(sn Snapshotter) Option {
	return func(s *Server) { s.snapper = sn }
}

// WithPinger sets the backend checked by GET /healthz.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// WithRateLimit sets the request budget for mutating routes. The
// default allows 10 requests per second with a burst of 20.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) { s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates the management API over the given state store,
// playbook registry and run pool.
func NewServer(states *jobstate.Store, playbooks *playbook.Registry, pool Submitter, opts ...Option) *Server {
	s := &Server{
		states:    states,
		playbooks: playbooks,
		pool:      pool,
		limiter:   rate.NewLimiter(rate.Limit(10), 20),
		logger:    slog.Default(),
		mux:       http.NewServeMux(),
	}
	for _, o := range opts {
		o(s)
	}
	s.routes()
	return s
}

// Handler returns the assembled http.Handler, wrapped in request
// logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// ListenAndServe starts serving on addr. It blocks until the listener
// fails or Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/trigger", s.limited(s.handleTrigger))
	s.mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("DELETE /api/jobs/{id}", s.limited(s.handleDeleteJob))
	s.mux.HandleFunc("POST /api/snapshot", s.limited(s.handleSnapshot))
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /version", s.handleVersion)
}

// limited wraps mutating handlers in the shared rate limiter.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type triggerRequest struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params,omitempty"`
}

type triggerResponse struct {
	RunID    string `json:"run_id"`
	Playbook string `json:"playbook"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !s.playbooks.Has(req.Name) {
		writeError(w, http.StatusNotFound, "unknown playbook: "+req.Name)
		return
	}

	run := playbook.NewRun(req.Name, "", req.Params)
	if err := s.pool.Submit(r.Context(), run); err != nil {
		if errors.Is(err, steward.ErrPoolStopped) {
			writeError(w, http.StatusServiceUnavailable, "run pool is stopped")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, triggerResponse{
		RunID:    run.ID.String(),
		Playbook: run.Playbook,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	states, err := s.states.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if states == nil {
		states = []*jobstate.JobState{}
	}
	writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	st, ok, err := s.states.Get(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found: "+jobID)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		writeError(w, http.StatusNotImplemented, "scheduler is not configured")
		return
	}
	jobID := r.PathValue("id")
	if err := s.sched.Unschedule(r.Context(), jobID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapper == nil {
		writeError(w, http.StatusNotImplemented, "archiver is not configured")
		return
	}
	key, err := s.snapper.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": steward.Version})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
