// Package agent holds the thin orchestration that consumes a normalized
// task: it enriches the input through the modality router and asks the
// chat backend for the reply. The actual reasoning lives behind the chat
// capability and is not defined here.
package agent

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/artifact"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/backend"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/capability"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/envelope"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/input"

	"github.com/google/uuid"
)

const systemPrompt = "You are a helpful assistant. The user's input has been normalized: media content appears as bracketed text blocks before their message."

// ResponderConfig configures the turn orchestrator.
type ResponderConfig struct {
	Capabilities *capability.Registry
	Artifacts    *artifact.Store // optional; uploads are not persisted when nil
	AgentName    string
	Logger       *slog.Logger
}

// Responder runs one conversation turn end to end: route, enrich,
// complete, envelope.
type Responder struct {
	caps      *capability.Registry
	artifacts *artifact.Store
	agentName string
	logger    *slog.Logger
}

func NewResponder(cfg ResponderConfig) *Responder {
	if cfg.AgentName == "" {
		cfg.AgentName = "assistant"
	}
	return &Responder{
		caps:      cfg.Capabilities,
		artifacts: cfg.Artifacts,
		agentName: cfg.AgentName,
		logger:    cfg.Logger,
	}
}

// Respond enriches the task, generates the reply, and shapes the terminal
// response envelope. It never returns an error: backend failures degrade
// to an unsuccessful envelope that still carries the extracted input.
func (r *Responder) Respond(ctx context.Context, task *domain.TaskContext, payload []byte, filename string) envelope.Response {
	if task.SessionID == "" {
		task.SessionID = uuid.NewString()
	}

	// A per-turn recorder yields the tools_used list for the envelope.
	rec := capability.NewRecorder(r.caps)
	handlers := input.NewHandlers(rec, r.logger)
	router := input.NewRouter(handlers, r.logger)

	enriched := router.Route(ctx, task, payload, filename)

	var artifacts []domain.Artifact
	if r.artifacts != nil && len(payload) > 0 {
		saved, err := r.artifacts.Save(ctx, task.SessionID, filename, string(enriched.InputType), bytes.NewReader(payload))
		if err != nil {
			r.logger.Warn("cannot persist upload as artifact", "filename", filename, "err", err)
		} else {
			artifacts = append(artifacts, r.artifacts.Ref(saved))
		}
	}

	res := rec.Invoke(ctx, backend.OpChatComplete, map[string]any{
		"prompt": enriched.ExtractedText,
		"system": systemPrompt,
	})
	content := res.Text()
	if !res.Success {
		r.logger.Warn("chat completion failed", "session_id", task.SessionID, "err", res.Error)
	}

	return envelope.BuildResponse(
		task.SessionID,
		content,
		enriched.InputSummary,
		artifacts,
		r.agentName,
		rec.Ops(),
		res.Success,
	)
}
