// Package api exposes the distribution engine's operations surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	service "github.com/okian/autodist/internal/app"
	"github.com/okian/autodist/internal/domain/assignment"
	"github.com/okian/autodist/internal/domain/dedupe"
	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/logger"
	"github.com/okian/autodist/pkg/metrics"
)

// Service is the orchestrator surface the handlers drive.
type Service interface {
	PendingApprovals(ctx context.Context) ([]model.AssignmentApproval, error)
	ApproveAssignment(ctx context.Context, approvalID, managerID, overrideUserID string) (service.ApproveResult, error)
	RejectApproval(ctx context.Context, approvalID, managerID string) (service.RejectResult, error)

	ReassignTasksFromUser(ctx context.Context, userID string) (service.ReassignResult, error)
	ReassignAbsent(ctx context.Context, date string) ([]service.ReassignResult, error)
	CompleteTask(ctx context.Context, taskID, userID string, rating *float64) (service.CompletionResult, error)

	RegisterUser(ctx context.Context, u model.User) error
	MarkAbsent(ctx context.Context, userID, date string) error

	AllWorkloads(ctx context.Context) ([]model.WorkloadSnapshot, error)
	AllSkills(ctx context.Context) ([]service.WorkerSkills, error)
	CandidateScores(ctx context.Context, def model.TaskDefinition) ([]assignment.Candidate, error)
	DistributionLog(ctx context.Context, limit int) ([]model.DistributionLogEntry, error)
	DistributionConfig() model.DistributionConfig
	SetDistributionConfig(ctx context.Context, cfg model.DistributionConfig) error
	Stats(ctx context.Context) (service.Stats, error)
}

// EventEmitter publishes business events without waiting for handlers.
type EventEmitter interface {
	Emit(ctx context.Context, eventType model.EventType, payload model.Payload) (model.Event, error)
}

// Dependencies required by HTTP handlers.
type Dependencies struct {
	Service Service
	Events  EventEmitter
	Deduper dedupe.Deduper
	Metrics *metrics.Manager
	Logger  logger.Logger
	// Ready reports whether backing stores are reachable. Optional.
	Ready func(ctx context.Context) error
}

// Server wires HTTP routes for the operations API.
type Server struct {
	deps Dependencies
	log  logger.Logger

	healthHandler    *HealthHandler
	eventsHandler    *EventsHandler
	approvalsHandler *ApprovalsHandler
	workersHandler   *WorkersHandler
	viewsHandler     *ViewsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	if deps.Deduper == nil {
		deps.Deduper = dedupe.NewInMemoryDeduper()
	}
	log := logger.OrNop(deps.Logger).Named("http")
	v := validator.New()
	return &Server{
		deps:             deps,
		log:              log,
		healthHandler:    &HealthHandler{ready: deps.Ready, metrics: deps.Metrics},
		eventsHandler:    &EventsHandler{events: deps.Events, dedupe: deps.Deduper, metrics: deps.Metrics, log: log, validate: v},
		approvalsHandler: &ApprovalsHandler{svc: deps.Service, log: log, validate: v},
		workersHandler:   &WorkersHandler{svc: deps.Service, log: log, validate: v},
		viewsHandler:     &ViewsHandler{svc: deps.Service, log: log, validate: v},
	}
}

// Routes returns a router with every route and the shared middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.log))
	r.Use(MetricsMiddleware(s.deps.Metrics))
	s.Register(r)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/metrics", s.healthHandler.HandleMetrics)

	r.Post("/events", s.eventsHandler.HandlePostEvent)

	r.Route("/approvals", func(r chi.Router) {
		r.Get("/", s.approvalsHandler.HandleList)
		r.Post("/{id}/approve", s.approvalsHandler.HandleApprove)
		r.Post("/{id}/reject", s.approvalsHandler.HandleReject)
	})

	r.Put("/users/{id}", s.workersHandler.HandlePutUser)
	r.Post("/users/{id}/absences", s.workersHandler.HandleMarkAbsent)
	r.Post("/users/{id}/reassign", s.workersHandler.HandleReassignUser)
	r.Post("/absences/{date}/reassign", s.workersHandler.HandleReassignAbsent)
	r.Post("/tasks/{id}/complete", s.workersHandler.HandleCompleteTask)

	r.Get("/workloads", s.viewsHandler.HandleWorkloads)
	r.Get("/skills", s.viewsHandler.HandleSkills)
	r.Post("/candidates", s.viewsHandler.HandleCandidates)
	r.Get("/distribution-log", s.viewsHandler.HandleDistributionLog)
	r.Get("/distribution-config", s.viewsHandler.HandleGetConfig)
	r.Put("/distribution-config", s.viewsHandler.HandlePutConfig)
	r.Get("/stats", s.viewsHandler.HandleStats)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail writes err with the status it maps to. Internal errors are logged and
// not echoed to the client.
func fail(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.OrNop(log).Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Error(err))
		writeError(w, status, code, nil)
		return
	}
	writeError(w, status, code, err)
}

// decode reads a JSON body into v and validates it. An empty body is
// accepted when allowEmpty is set.
func decode(r *http.Request, v any, validate *validator.Validate, allowEmpty bool) error {
	var err error
	if r.Body == nil {
		err = io.EOF
	} else {
		err = json.NewDecoder(r.Body).Decode(v)
	}
	switch {
	case errors.Is(err, io.EOF) && allowEmpty:
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: empty body", ErrBadRequest)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
