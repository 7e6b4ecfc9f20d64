// Package api is the REST gateway: it accepts task submissions with
// optional binary payloads, runs them through the input pipeline, and
// returns the terminal response envelope.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/artifact"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/envelope"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/metrics"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/security"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/task"
)

const (
	maxUploadSize  = 64 << 20 // 64MB multipart memory + file budget
	requestTimeout = 300 * time.Second
)

// Turns runs one conversation turn (implemented by agent.Responder).
type Turns interface {
	Respond(ctx context.Context, t *domain.TaskContext, payload []byte, filename string) envelope.Response
}

// ServerConfig configures the REST gateway.
type ServerConfig struct {
	Host          string
	Port          int
	Turns         Turns
	Tasks         *task.Executor
	Artifacts     *artifact.Store
	Roles         *security.RoleTable
	MetricsEnable bool
	Logger        *slog.Logger
}

// Server is the HTTP API front of the pipeline.
type Server struct {
	host      string
	port      int
	turns     Turns
	tasks     *task.Executor
	artifacts *artifact.Store
	roles     *security.RoleTable
	metricsOn bool
	logger    *slog.Logger
	server    *http.Server
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	return &Server{
		host:      cfg.Host,
		port:      cfg.Port,
		turns:     cfg.Turns,
		tasks:     cfg.Tasks,
		artifacts: cfg.Artifacts,
		roles:     cfg.Roles,
		metricsOn: cfg.MetricsEnable,
		logger:    cfg.Logger,
	}
}

// Start runs the HTTP server until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/assist", s.handleAssist)
	mux.HandleFunc("GET /api/v1/tasks/{id}", s.handleTaskStatus)
	mux.HandleFunc("GET /api/v1/artifacts/{id}", s.handleArtifact)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metricsOn {
		mux.Handle("GET /metrics", metrics.Collector.Handler())
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("api gateway starting", "host", s.host, "port", s.port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleAssist accepts one task submission. Multipart form fields:
// input_type, message, session_id, user_id, role, async; the binary
// payload rides in the "file" part.
func (s *Server) handleAssist(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	taskCtx := &domain.TaskContext{
		InputType: domain.InputType(r.FormValue("input_type")),
		SessionID: r.FormValue("session_id"),
		UserID:    r.FormValue("user_id"),
		Message:   r.FormValue("message"),
	}
	if taskCtx.InputType == "" {
		taskCtx.InputType = domain.InputText
	}

	if role := r.FormValue("role"); !s.roles.Allows(role, taskCtx.InputType) {
		writeError(w, http.StatusForbidden, fmt.Sprintf("role %q may not submit %s input", role, taskCtx.InputType))
		return
	}

	var payload []byte
	var filename string
	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		payload, err = io.ReadAll(io.LimitReader(file, maxUploadSize))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
			return
		}
		filename = header.Filename
	}

	metrics.Collector.CountTask(string(taskCtx.InputType))

	if r.FormValue("async") == "true" {
		id := s.tasks.Submit(context.WithoutCancel(r.Context()), taskCtx.UserID, func(ctx context.Context, progress func(int, string)) (envelope.Response, error) {
			progress(10, "processing input")
			resp := s.turns.Respond(ctx, taskCtx, payload, filename)
			progress(90, "finalizing")
			return resp, nil
		})
		writeJSON(w, http.StatusAccepted, map[string]any{"task_id": id})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	resp := s.turns.Respond(ctx, taskCtx, payload, filename)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tasks.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	rec, err := s.artifacts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Name))
	http.ServeFile(w, r, rec.Path)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"error": detail})
}
