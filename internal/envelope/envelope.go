// Package envelope shapes the two stable wire formats of the gateway: the
// terminal response of a request/response cycle and the typed push
// messages of the asynchronous cycle.
package envelope

import (
	"strings"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
)

// DefaultResponse substitutes for an empty response body.
const DefaultResponse = "Task completed."

// Push envelope types. The required fields per type are a contract with
// the client; BuildPush performs no validation beyond tagging, since
// recipients interpret fields by type.
const (
	PushStatus         = "status"          // message
	PushTranscript     = "transcript"      // text, is_final
	PushCameraAnalysis = "camera_analysis" // description
	PushTaskQueued     = "task_queued"     // task_id, estimated_seconds
	PushTaskProgress   = "task_progress"   // task_id, progress, message
	PushComplete       = "complete"        // response (a full Response)
	PushError          = "error"           // detail
)

// Response is the terminal envelope of one conversation turn.
type Response struct {
	SessionID      string            `json:"session_id"`
	Response       string            `json:"response"`
	InputProcessed *InputProcessed   `json:"input_processed"`
	Artifacts      []domain.Artifact `json:"artifacts"`
	AgentUsed      string            `json:"agent_used"`
	ToolsUsed      []string          `json:"tools_used"`
	Success        bool              `json:"success"`
}

// InputProcessed wraps the input summary when enrichment ran.
type InputProcessed struct {
	Summary string `json:"summary"`
}

// BuildResponse assembles the terminal response envelope. Empty content
// falls back to DefaultResponse, a missing agent name to "unknown", and
// artifact records get type/name fallbacks so the client never sees holes.
func BuildResponse(sessionID, content, summary string, artifacts []domain.Artifact, agent string, tools []string, success bool) Response {
	content = strings.TrimSpace(content)
	if content == "" {
		content = DefaultResponse
	}
	if agent == "" {
		agent = "unknown"
	}

	normalized := make([]domain.Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		if a.Type == "" {
			a.Type = "file"
		}
		if a.Name == "" {
			a.Name = a.ID
		}
		normalized = append(normalized, a)
	}

	var processed *InputProcessed
	if summary != "" {
		processed = &InputProcessed{Summary: summary}
	}
	if tools == nil {
		tools = []string{}
	}

	return Response{
		SessionID:      sessionID,
		Response:       content,
		InputProcessed: processed,
		Artifacts:      normalized,
		AgentUsed:      agent,
		ToolsUsed:      tools,
		Success:        success,
	}
}

// Push is a one-shot discriminated message for the persistent channel.
type Push map[string]any

// BuildPush tags the given fields with the envelope type. Field keys
// shadowing "type" are not allowed and are dropped.
func BuildPush(typ string, fields map[string]any) Push {
	p := make(Push, len(fields)+1)
	for k, v := range fields {
		if k == "type" {
			continue
		}
		p[k] = v
	}
	p["type"] = typ
	return p
}
