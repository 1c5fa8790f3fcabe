// Package http exposes the conductor operations as a JSON API.
package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed openapi.yaml
var rawSpec []byte

// apiRouter resolves requests to the operations described in openapi.yaml.
var apiRouter = sync.OnceValues(func() (routers.Router, error) {
	doc, err := openapi3.NewLoader().LoadFromData(rawSpec)
	if err != nil {
		return nil, err
	}
	return legacy.NewRouter(doc)
})

// Sessions is the session registry surface served by the API.
type Sessions interface {
	StartSession(ctx context.Context, lot, expiry string, origin int, run *domain.Context) (*domain.Session, error)
	GetSession(origin int) (*domain.Session, error)
	PauseSession(ctx context.Context, lot string) error
	RestartSession(ctx context.Context, lot string) (*domain.Session, error)
	FinishSession(ctx context.Context, lot string) error
	Purge(ctx context.Context, lot string) error
	Load(ctx context.Context, lot string) (*domain.Session, error)
	List(ctx context.Context) ([]*domain.Session, error)
	History(ctx context.Context, lot string) ([]domain.Transition, error)
	Active() []*domain.Session
}

// Dispatcher is the input dispatcher surface served by the API.
type Dispatcher interface {
	Dispatch(ctx context.Context, n int) (*domain.Run, error)
	InputMap(ctx context.Context, n int) (domain.InputMap, error)
	Run(id string) (domain.Run, bool)
	Runs() []domain.Run
}

// Server serves the operations API.
type Server struct {
	sessions   Sessions
	dispatcher Dispatcher
	gatherer   prometheus.Gatherer
	version    string
	logger     *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics serves the gatherer's metrics on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewHandler creates the HTTP handler.
func NewHandler(sessions Sessions, dispatcher Dispatcher, opts ...Option) http.Handler {
	s := &Server{
		sessions:   sessions,
		dispatcher: dispatcher,
		version:    "dev",
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	router, err := apiRouter()
	if err != nil {
		panic("http: embedded openapi.yaml is invalid: " + err.Error())
	}

	r := chi.NewRouter()
	r.Use(s.validateRequests(router))
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.StartSession)
		r.Get("/{lot}", s.GetSession)
		r.Delete("/{lot}", s.PurgeSession)
		r.Get("/{lot}/history", s.GetHistory)
		r.Post("/{lot}/pause", s.PauseSession)
		r.Post("/{lot}/restart", s.RestartSession)
		r.Post("/{lot}/finish", s.FinishSession)
	})

	r.Route("/inputs/{n}", func(r chi.Router) {
		r.Get("/", s.GetInputMap)
		r.Get("/session", s.GetActiveSession)
		r.Post("/dispatch", s.DispatchInput)
	})

	r.Get("/runs", s.ListRuns)
	r.Get("/runs/{id}", s.GetRun)

	return enableCORS(r)
}

// validateRequests rejects requests whose parameters or body do not match
// openapi.yaml. Paths the document does not describe pass through.
func (s *Server) validateRequests(router routers.Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, params, err := router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: params,
				Route:      route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				s.writeError(w, domain.Wrap(domain.KindInvalidInput, err, "request does not match the API schema"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartRequest is the body of POST /sessions.
type StartRequest struct {
	Lot         string `json:"lot"`
	Expiry      string `json:"expiry"`
	OriginInput int    `json:"origin_input"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind,omitempty"`
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "conductor",
		"version": s.version,
	})
}

// ListSessions handles GET /sessions. Active sessions are returned unless
// ?all=true asks for every persisted record.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	var all *bool
	if err := runtime.BindQueryParameter("form", true, false, "all", r.URL.Query(), &all); err != nil {
		s.writeError(w, domain.Wrap(domain.KindInvalidInput, err, "invalid all parameter"))
		return
	}
	if all == nil || !*all {
		s.writeJSON(w, http.StatusOK, s.sessions.Active())
		return
	}
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

// StartSession handles POST /sessions, the manual start used by operators.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, domain.Wrap(domain.KindInvalidInput, err, "invalid request body"))
		return
	}
	if err := domain.ValidateManualLot(body.Lot); err != nil {
		s.writeError(w, err)
		return
	}
	session, err := s.sessions.StartSession(r.Context(), body.Lot, body.Expiry, body.OriginInput, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("Session started manually", "lot", session.Lot, "origin_input", session.OriginInput)
	s.writeJSON(w, http.StatusCreated, session)
}

// GetSession handles GET /sessions/{lot}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Load(r.Context(), chi.URLParam(r, "lot"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

// GetHistory handles GET /sessions/{lot}/history.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := s.sessions.History(r.Context(), chi.URLParam(r, "lot"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

// PauseSession handles POST /sessions/{lot}/pause.
func (s *Server) PauseSession(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.sessions.PauseSession)
}

// FinishSession handles POST /sessions/{lot}/finish.
func (s *Server) FinishSession(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.sessions.FinishSession)
}

// RestartSession handles POST /sessions/{lot}/restart.
func (s *Server) RestartSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.RestartSession(r.Context(), chi.URLParam(r, "lot"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

// PurgeSession handles DELETE /sessions/{lot}.
func (s *Server) PurgeSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Purge(r.Context(), chi.URLParam(r, "lot")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	lot := chi.URLParam(r, "lot")
	if err := fn(r.Context(), lot); err != nil {
		s.writeError(w, err)
		return
	}
	session, err := s.sessions.Load(r.Context(), lot)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

// GetInputMap handles GET /inputs/{n}.
func (s *Server) GetInputMap(w http.ResponseWriter, r *http.Request) {
	n, ok := s.inputParam(w, r)
	if !ok {
		return
	}
	im, err := s.dispatcher.InputMap(r.Context(), n)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, im)
}

// GetActiveSession handles GET /inputs/{n}/session.
func (s *Server) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	n, ok := s.inputParam(w, r)
	if !ok {
		return
	}
	session, err := s.sessions.GetSession(n)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

// DispatchInput handles POST /inputs/{n}/dispatch, the software equivalent
// of the input line going active.
func (s *Server) DispatchInput(w http.ResponseWriter, r *http.Request) {
	n, ok := s.inputParam(w, r)
	if !ok {
		return
	}
	run, err := s.dispatcher.Dispatch(r.Context(), n)
	if err != nil && run == nil {
		s.writeError(w, err)
		return
	}
	switch run.Status {
	case domain.RunQueued, domain.RunRunning:
		s.writeJSON(w, http.StatusAccepted, run)
	default:
		s.writeJSON(w, http.StatusOK, run)
	}
}

// ListRuns handles GET /runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.dispatcher.Runs())
}

// GetRun handles GET /runs/{id}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.dispatcher.Run(chi.URLParam(r, "id"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "run not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) inputParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	var n int
	err := runtime.BindStyledParameterWithOptions("simple", "n", chi.URLParam(r, "n"), &n,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		s.writeError(w, domain.Wrap(domain.KindInvalidInput, err, "input must be a number"))
		return 0, false
	}
	return n, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "kind", domain.KindOf(err), "err", err)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: domain.KindOf(err)})
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput, domain.KindEncoding:
		return http.StatusBadRequest
	case domain.KindNoInputMap, domain.KindSessionNotFound, domain.KindSessionNotActive, domain.KindPoolNotFound:
		return http.StatusNotFound
	case domain.KindSessionState, domain.KindSessionExists, domain.KindInputBusy:
		return http.StatusConflict
	case domain.KindQueueFull:
		return http.StatusServiceUnavailable
	case domain.KindDeviceUnreachable, domain.KindPrinter, domain.KindNoJobFields, domain.KindPoolExhausted:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
