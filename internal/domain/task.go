package domain

import "fmt"

// InputType declares which modality a task context carries.
type InputType string

const (
	InputText   InputType = "text"
	InputImage  InputType = "image"
	InputVideo  InputType = "video"
	InputAudio  InputType = "audio"
	InputCamera InputType = "camera"
	InputSpeech InputType = "speech"
	InputFile   InputType = "file"
	InputURL    InputType = "url"
)

// MediaContent is the structured metadata a modality handler extracts
// from a binary payload. Only the fields relevant to the modality are set.
type MediaContent struct {
	Filename    string `json:"filename,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
	OCRText     string `json:"ocr_text,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
}

// TaskContext is the record that flows through the input pipeline. It is
// created per inbound request, enriched exactly once by exactly one modality
// handler, consumed by the responder, then discarded.
//
// Handlers enrich non-destructively: they return a copy that is a superset of
// the input. Caller-supplied fields that this subsystem does not interpret
// travel in Extra and are preserved unchanged.
type TaskContext struct {
	InputType InputType `json:"input_type"`
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Message   string    `json:"message,omitempty"`

	// Enrichment fields, populated by the modality handler.
	ExtractedText string         `json:"extracted_text,omitempty"`
	MediaContent  *MediaContent  `json:"media_content,omitempty"`
	InputSummary  string         `json:"input_summary,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// Clone returns a shallow copy with its own Extra map, so a handler can
// enrich without mutating the caller's record.
func (t *TaskContext) Clone() *TaskContext {
	cp := *t
	if t.Extra != nil {
		cp.Extra = make(map[string]any, len(t.Extra))
		for k, v := range t.Extra {
			cp.Extra[k] = v
		}
	}
	return &cp
}

// Summarize truncates long embedded text for one-line summaries.
func Summarize(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}

// FrameAnalysis is the minimal result of analyzing a single live camera
// frame. Frames are ephemeral and never become part of the conversation
// history, so there is no enriched task context for them.
type FrameAnalysis struct {
	Success     bool   `json:"success"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Artifact is a stored file referenced from a response envelope.
type Artifact struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	DownloadURL string `json:"download_url"`
}

func (a Artifact) String() string {
	return fmt.Sprintf("%s (%s)", a.Name, a.ID)
}
