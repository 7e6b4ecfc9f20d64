package input

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
)

// Router dispatches a task context to the modality handler matching its
// declared input type. Routing is deliberately fail-open: unrecognized
// types degrade to a text passthrough with a warning instead of aborting
// the pipeline.
type Router struct {
	handlers *Handlers
	logger   *slog.Logger
}

func NewRouter(handlers *Handlers, logger *slog.Logger) *Router {
	return &Router{handlers: handlers, logger: logger}
}

// Route enriches the task via exactly one modality handler. A missing
// payload is substituted with empty bytes so handlers never see nil.
func (r *Router) Route(ctx context.Context, task *domain.TaskContext, payload []byte, filename string) *domain.TaskContext {
	if payload == nil {
		payload = []byte{}
	}

	switch task.InputType {
	case domain.InputText:
		return r.handlers.Text(ctx, task)
	case domain.InputImage:
		return r.handlers.Image(ctx, task, payload, filename)
	case domain.InputVideo:
		return r.handlers.Video(ctx, task, payload, filename)
	case domain.InputAudio:
		return r.handlers.Audio(ctx, task, payload, filename)
	case domain.InputFile:
		return r.handlers.File(ctx, task, payload, filename)
	case domain.InputURL:
		return r.handlers.URL(ctx, task)
	case domain.InputCamera, domain.InputSpeech:
		// Live camera and live speech are handled per frame / per utterance
		// by the realtime layer; a task context only reaches the router for
		// these types when a client mislabels plain text.
		return r.passthrough(task, fmt.Sprintf("%s input is handled by the realtime layer", task.InputType))
	default:
		r.logger.Warn("unrecognized input type, degrading to text passthrough", "input_type", task.InputType)
		return r.passthrough(task, fmt.Sprintf("Unrecognized input type %q — treated as text", string(task.InputType)))
	}
}

func (r *Router) passthrough(task *domain.TaskContext, summary string) *domain.TaskContext {
	out := task.Clone()
	out.ExtractedText = task.Message
	out.MediaContent = nil
	out.InputSummary = summary
	return out
}
