package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/docforge/internal/core/domain"
	"github.com/vietddude/docforge/internal/processor"
	"github.com/vietddude/docforge/internal/queue"
	"github.com/vietddude/docforge/internal/recovery"
)

// Config holds API server settings.
type Config struct {
	Port        int
	SubmitRate  float64 // submissions per second per client, 0 = unlimited
	SubmitBurst int
}

// Server exposes the engine over HTTP: submission, query, control, batches,
// snapshots, and observability endpoints.
type Server struct {
	proc   *processor.Processor
	server *http.Server
	done   chan struct{}
}

// NewServer wires the routes.
func NewServer(proc *processor.Processor, cfg Config) *Server {
	mux := http.NewServeMux()
	s := &Server{
		proc: proc,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: mux,
		},
		done: make(chan struct{}),
	}

	limited := rateLimit(cfg.SubmitRate, cfg.SubmitBurst, s.done)
	mux.Handle("POST /jobs", limited(http.HandlerFunc(s.handleSubmit)))
	mux.Handle("POST /jobs/batch", limited(http.HandlerFunc(s.handleSubmitMany)))
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /jobs/{id}", s.handleCancelJob)
	mux.HandleFunc("POST /jobs/{id}/retry", s.handleRetryJob)

	mux.HandleFunc("GET /batches", s.handleListBatches)
	mux.HandleFunc("POST /batches", s.handleCreateBatch)
	mux.HandleFunc("GET /batches/{id}", s.handleGetBatch)

	mux.HandleFunc("GET /queue/metrics", s.handleQueueMetrics)
	mux.HandleFunc("POST /queue/pause", s.handlePause)
	mux.HandleFunc("POST /queue/resume", s.handleResume)
	mux.HandleFunc("POST /queue/clear", s.handleClear)
	mux.HandleFunc("POST /queue/degrade", s.handleDegrade)
	mux.HandleFunc("DELETE /queue/degrade", s.handleClearDegrade)

	mux.HandleFunc("GET /export", s.handleExport)
	mux.HandleFunc("POST /import", s.handleImport)

	mux.HandleFunc("GET /breakers", s.handleBreakers)
	mux.HandleFunc("GET /patterns", s.handlePatterns)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server and its background housekeeping.
func (s *Server) Stop(ctx context.Context) error {
	close(s.done)
	return s.server.Shutdown(ctx)
}

// submitRequest is the wire form of a job submission.
type submitRequest struct {
	Type             string            `json:"type"`
	Priority         string            `json:"priority,omitempty"`
	FileName         string            `json:"file_name"`
	FileType         string            `json:"file_type,omitempty"`
	FileSizeBytes    int64             `json:"file_size_bytes,omitempty"`
	MaxRetryAttempts int               `json:"max_retry_attempts,omitempty"`
	DependsOn        []string          `json:"depends_on,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
}

func (r *submitRequest) toSpec() (queue.JobSpec, error) {
	prio, err := domain.ParsePriority(r.Priority)
	if err != nil {
		return queue.JobSpec{}, err
	}
	return queue.JobSpec{
		Type:             domain.JobType(r.Type),
		Priority:         prio,
		FileName:         r.FileName,
		FileType:         r.FileType,
		FileSizeBytes:    r.FileSizeBytes,
		MaxRetryAttempts: r.MaxRetryAttempts,
		DependsOn:        r.DependsOn,
		Metadata:         r.Metadata,
		Tags:             r.Tags,
	}, nil
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	spec, err := req.toSpec()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.proc.Submit(spec)
	if err != nil {
		if errors.Is(err, domain.ErrQueueFull) {
			w.Header().Set("Retry-After", "30")
			writeError(w, http.StatusServiceUnavailable, "queue is full")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleSubmitMany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Jobs []submitRequest `json:"jobs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	specs := make([]queue.JobSpec, 0, len(req.Jobs))
	for _, j := range req.Jobs {
		spec, err := j.toSpec()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !domain.ValidJobType(spec.Type) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported job type %q", spec.Type))
			return
		}
		specs = append(specs, spec)
	}

	ids := s.proc.SubmitMany(specs)
	writeJSON(w, http.StatusCreated, map[string]any{
		"ids":      ids,
		"accepted": len(ids),
		"rejected": len(specs) - len(ids),
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.proc.Queue().List(filter))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job := s.proc.Queue().Get(r.PathValue("id"))
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if !s.proc.CancelJob(r.PathValue("id")) {
		writeError(w, http.StatusConflict, "job not found or already terminal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	if !s.proc.Queue().Retry(r.PathValue("id")) {
		writeError(w, http.StatusConflict, "job not failed or retry cap reached")
		return
	}
	s.proc.Trigger()
	writeJSON(w, http.StatusOK, map[string]bool{"retried": true})
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.proc.Queue().AllBatches())
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string   `json:"name"`
		JobIDs []string `json:"job_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := s.proc.Queue().CreateBatch(req.Name, req.JobIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b := s.proc.Queue().GetBatch(r.PathValue("id"))
	if b == nil {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleQueueMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.proc.Queue().Metrics())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.proc.Queue().Pause()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.proc.Queue().Resume()
	s.proc.Trigger()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.proc.Queue().Clear()
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (s *Server) handleDegrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.proc.Degrade(recovery.DegradationLevel(req.Level))
	writeJSON(w, http.StatusOK, map[string]string{"level": req.Level})
}

func (s *Server) handleClearDegrade(w http.ResponseWriter, r *http.Request) {
	s.proc.ClearDegradation()
	writeJSON(w, http.StatusOK, map[string]bool{"degraded": false})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := queue.MarshalSnapshot(s.proc.Queue().Export())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	snap, err := queue.UnmarshalSnapshot(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.proc.Queue().Import(snap); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.proc.Trigger()
	writeJSON(w, http.StatusOK, map[string]int{"jobs": len(snap.Jobs), "batches": len(snap.Batches)})
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.proc.Breakers().States())
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.proc.Patterns().Patterns())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	m := s.proc.Queue().Metrics()
	status := "healthy"
	code := http.StatusOK
	if m.ErrorRate > 0.5 && m.TotalJobs > 0 {
		status = "degraded"
	}
	writeJSON(w, code, map[string]any{
		"status":   status,
		"paused":   m.Paused,
		"jobs":     m.TotalJobs,
		"inflight": m.ByStatus[domain.JobStatusProcessing],
	})
}

func filterFromQuery(r *http.Request) (*domain.JobFilter, error) {
	q := r.URL.Query()
	filter := &domain.JobFilter{}

	if v := q.Get("status"); v != "" {
		filter.Statuses = []domain.JobStatus{domain.JobStatus(v)}
	}
	if v := q.Get("type"); v != "" {
		filter.Types = []domain.JobType{domain.JobType(v)}
	}
	if v := q.Get("priority"); v != "" {
		p, err := domain.ParsePriority(v)
		if err != nil {
			return nil, err
		}
		filter.Priorities = []domain.Priority{p}
	}
	if v := q.Get("file_type"); v != "" {
		filter.FileTypes = []string{v}
	}
	if v := q.Get("has_errors"); v != "" {
		b := v == "true"
		filter.HasErrors = &b
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid since: %w", err)
		}
		filter.CreatedAfter = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid until: %w", err)
		}
		filter.CreatedBefore = &t
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
