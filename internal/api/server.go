// Package api exposes the scheduling and workflow engine over HTTP.
// All processing endpoints are synchronous: a process-jobs call runs a
// full poll cycle before responding, which keeps the engine drivable
// from cron, tests, and external schedulers alike.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/worklinehq/workline/internal/runner"
	"github.com/worklinehq/workline/internal/store"
	"github.com/worklinehq/workline/internal/validation"
	"github.com/worklinehq/workline/internal/workflow"
)

// CycleRunner runs one scheduled-job poll cycle. Satisfied by
// runner.Runner.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*runner.CycleResult, error)
}

// WorkflowDriver starts and advances workflow executions. Satisfied by
// workflow.Advancer.
type WorkflowDriver interface {
	Start(ctx context.Context, workflowID int64, initData map[string]any) (*store.WorkflowExecution, *workflow.Result, error)
	Advance(ctx context.Context, executionID int64) (*workflow.Result, error)
}

// Server wires the HTTP surface to the engine.
type Server struct {
	jobs      store.JobStore
	workflows store.WorkflowStore
	cycles    CycleRunner
	driver    WorkflowDriver
	validator *validation.JobValidator
	auth      *Auth
	logger    *slog.Logger
}

// NewServer builds the API server.
func NewServer(jobs store.JobStore, workflows store.WorkflowStore, cycles CycleRunner, driver WorkflowDriver, validator *validation.JobValidator, auth *Auth, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if auth == nil {
		auth = NewAuth("", "")
	}
	return &Server{
		jobs:      jobs,
		workflows: workflows,
		cycles:    cycles,
		driver:    driver,
		validator: validator,
		auth:      auth,
		logger:    logger,
	}
}

// Handler assembles the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(s.auth.Middleware)

		pr.Post("/scheduled-jobs", s.handleScheduleJob)
		pr.Get("/scheduled-jobs/{id}", s.handleGetJob)
		pr.Post("/process-jobs", s.handleProcessJobs)

		pr.Get("/workflows", s.handleListWorkflows)
		pr.Post("/workflows/{id}/start", s.handleStartWorkflow)
		pr.Post("/workflow-executions/{id}/advance", s.handleAdvanceExecution)
		pr.Get("/workflow-executions/{id}", s.handleGetExecution)
	})

	return r
}
