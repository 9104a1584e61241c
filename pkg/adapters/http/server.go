// Package http exposes a Verifier as a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/attest"
	"github.com/aretw0/attest/internal/logging"
	"github.com/aretw0/attest/pkg/contacts"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Verifier is the subset of *attest.Verifier served over HTTP.
type Verifier interface {
	RunDecision(ctx context.Context, req attest.Request) (*domain.Result, error)
	LoadSession(ctx context.Context, id string) ([]domain.StepRecord, error)
	SessionSummary(ctx context.Context, id string) (*domain.SessionSummary, error)
	ListSessions(ctx context.Context) ([]domain.SessionSummary, error)
	Tools() []domain.ToolDefinition
}

// Server holds the handler dependencies.
type Server struct {
	verifier Verifier
	contacts *contacts.Directory
	metrics  http.Handler
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithContacts derives contact_found from the directory when a request omits it.
func WithContacts(d *contacts.Directory) Option {
	return func(s *Server) { s.contacts = d }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewHandler builds the router. The embedded OpenAPI document must load,
// so an error here is a build defect rather than a runtime condition.
func NewHandler(ctx context.Context, v Verifier, opts ...Option) (http.Handler, error) {
	s := &Server{verifier: v, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	doc, err := LoadSpec(ctx)
	if err != nil {
		return nil, err
	}
	val := &validator{doc: doc}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Get("/healthz", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(val.route(http.MethodPost, "/v1/decisions")).Post("/decisions", s.runDecision)
		r.With(val.route(http.MethodGet, "/v1/sessions")).Get("/sessions", s.listSessions)
		r.With(val.route(http.MethodGet, "/v1/sessions/{id}")).Get("/sessions/{id}", s.loadSession)
		r.With(val.route(http.MethodGet, "/v1/sessions/{id}/summary")).Get("/sessions/{id}/summary", s.sessionSummary)
		r.With(val.route(http.MethodGet, "/v1/tools")).Get("/tools", s.listTools)
	})
	return r, nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type decisionRequest struct {
	SessionID     string             `json:"session_id"`
	Certificate   domain.Certificate `json:"certificate"`
	Reply         *domain.Reply      `json:"reply"`
	ContactFound  *bool              `json:"contact_found"`
	MaxIterations int                `json:"max_iterations"`
}

type decisionResponse struct {
	TaskStatus domain.TaskStatus `json:"task_status"`
	Error      string            `json:"error,omitempty"`
	Result     *domain.Result    `json:"result,omitempty"`
}

func (s *Server) runDecision(w http.ResponseWriter, r *http.Request) {
	var body decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req := attest.Request{
		SessionID:     body.SessionID,
		Certificate:   body.Certificate,
		Reply:         body.Reply,
		MaxIterations: body.MaxIterations,
	}
	switch {
	case body.ContactFound != nil:
		req.ContactFound = *body.ContactFound
	case s.contacts != nil:
		_, req.ContactFound = s.contacts.Lookup(body.Certificate.UniversityName)
	default:
		// A reply implies the institution was reached.
		req.ContactFound = body.Reply != nil
	}

	res, err := s.verifier.RunDecision(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, decisionResponse{TaskStatus: domain.TaskCompleted, Result: res})
	case res != nil:
		s.logger.Error("Decision audit trail incomplete", "session_id", res.SessionID, "err", err)
		writeJSON(w, http.StatusInternalServerError, decisionResponse{
			TaskStatus: domain.TaskFailed,
			Error:      err.Error(),
			Result:     res,
		})
	case errors.Is(err, domain.ErrSessionExists):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, attest.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		s.logger.Error("Decision failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sums, err := s.verifier.ListSessions(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if sums == nil {
		sums = []domain.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, sums)
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) {
	recs, err := s.verifier.LoadSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) sessionSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.verifier.SessionSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) listTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.verifier.Tools())
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": strings.TrimSpace(attest.Version),
	})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.logger.Error("Request failed", "err", err)
	writeError(w, http.StatusInternalServerError, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
