package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/worklinehq/workline/internal/store"
	"github.com/worklinehq/workline/pkg/schema"
)

// maxBodyBytes bounds request bodies; descriptors are small.
const maxBodyBytes = 1 << 20

func (s *Server) handleScheduleJob(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "failed to read request body").WithCause(err))
		return
	}

	req, err := s.validator.ParseScheduleJob(raw)
	if err != nil {
		writeError(w, err)
		return
	}

	at, err := req.EffectiveSchedule(time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}

	name := req.Name
	if name == "" {
		name = string(req.Kind) + " job"
	}

	job := &store.ScheduledJob{
		Name:           name,
		Kind:           req.Kind,
		Status:         schema.JobPending,
		ScheduledTime:  at,
		Descriptor:     req.Descriptor,
		RecurrenceRule: req.RecurrenceRule,
		MaxAttempts:    req.MaxAttempts,
		BackoffSeconds: req.BackoffSeconds,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := s.jobs.CreateJob(r.Context(), job); err != nil {
		writeError(w, err)
		return
	}

	// An idempotency-key collision is a silent no-op in the store; the
	// job keeps its zero ID.
	if job.IdempotencyKey != "" && job.ID == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"deduplicated":    true,
			"idempotency_key": job.IdempotencyKey,
		})
		return
	}

	s.logger.InfoContext(r.Context(), "job scheduled",
		slog.Int64("job_id", job.ID),
		slog.String("kind", string(job.Kind)),
		slog.Time("scheduled_time", job.ScheduledTime))

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":             job.ID,
		"status":         job.Status,
		"scheduled_time": job.ScheduledTime,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	withHistory := r.URL.Query().Get("history") == "true"
	detail, err := s.jobs.GetJobDetail(r.Context(), id, withHistory)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleProcessJobs(w http.ResponseWriter, r *http.Request) {
	result, err := s.cycles.RunCycle(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.workflows.ListWorkflows(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if workflows == nil {
		workflows = []*store.Workflow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": workflows})
}

func (s *Server) handleStartWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		InitData map[string]any `json:"init_data"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
			writeError(w, schema.NewError(schema.ErrCodeValidation, "request body is not valid JSON").WithCause(err))
			return
		}
	}

	exec, result, err := s.driver.Start(r.Context(), id, body.InitData)
	if err != nil {
		writeError(w, err)
		return
	}

	s.logger.InfoContext(r.Context(), "workflow started",
		slog.Int64("workflow_id", id),
		slog.Int64("execution_id", exec.ID))

	writeJSON(w, http.StatusCreated, map[string]any{
		"execution_id": exec.ID,
		"result":       result,
	})
}

func (s *Server) handleAdvanceExecution(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.driver.Advance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	detail, err := s.workflows.GetExecutionDetail(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
