// Package input normalizes heterogeneous user input (text, image, video,
// audio, camera frames, files, URLs) into a uniform enriched task context
// for the responder. Each modality handler enriches non-destructively and
// never raises: backend failures degrade to empty contributions.
package input

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/backend"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
)

// Dispatcher is the invoke side of the capability registry, narrowed so
// tests can stub backends.
type Dispatcher interface {
	Invoke(ctx context.Context, op string, args map[string]any) domain.Result
}

const summaryMax = 100

// Default filenames used when a payload arrives without a name hint.
const (
	defaultAudioName = "audio.mp3"
	defaultImageName = "image.jpg"
	defaultVideoName = "video.mp4"
	defaultFileName  = "upload.bin"
)

// Handlers holds the per-modality enrichment logic. All handlers share the
// same skeleton: spool the payload to a scoped temp file, invoke backends
// through the dispatcher, compose extracted text in fixed order, release
// the temp file on every exit path.
type Handlers struct {
	dispatch Dispatcher
	logger   *slog.Logger
}

func NewHandlers(dispatch Dispatcher, logger *slog.Logger) *Handlers {
	return &Handlers{dispatch: dispatch, logger: logger}
}

// spool writes the payload to a scoped temporary file and returns its path
// together with a cleanup func. The caller must defer cleanup; removal
// errors are suppressed since cleanup is best-effort and must never mask
// the handler's result.
func (h *Handlers) spool(payload []byte, filename string) (string, func(), error) {
	ext := filepath.Ext(filename)
	f, err := os.CreateTemp("", "mz-input-*"+ext)
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			h.logger.Debug("temp file cleanup failed", "path", path, "err", err)
		}
	}

	if _, err := f.Write(payload); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close temp file: %w", err)
	}
	return path, cleanup, nil
}

// invokeText runs one backend operation and returns its text output, or ""
// with a warning log when the operation fails. One failed operation never
// aborts a handler; the remaining operations still run.
func (h *Handlers) invokeText(ctx context.Context, op string, args map[string]any) string {
	res := h.dispatch.Invoke(ctx, op, args)
	if !res.Success {
		h.logger.Warn("backend operation failed, continuing with empty contribution", "op", op, "err", res.Error)
		return ""
	}
	return res.Text()
}

// contribution is one labeled backend result awaiting composition.
type contribution struct {
	label string
	text  string
}

// composeExtracted builds the final extracted_text: bracketed labels for
// non-empty contributions in the given fixed order, then the user message
// on its own trailing line. When nothing was extracted and no message
// exists, the modality fallback literal is substituted.
func composeExtracted(parts []contribution, message, fallback string) string {
	var lines []string
	for _, p := range parts {
		if p.text != "" {
			lines = append(lines, fmt.Sprintf("[%s: %s]", p.label, p.text))
		}
	}
	if message != "" {
		lines = append(lines, message)
	}
	if len(lines) == 0 {
		return fallback
	}
	return strings.Join(lines, "\n")
}

// hintFilename substitutes the modality default when no name was supplied.
func hintFilename(filename, def string) string {
	if filename == "" {
		return def
	}
	return filename
}

// Text is a pure passthrough: no payload, no backend.
func (h *Handlers) Text(_ context.Context, task *domain.TaskContext) *domain.TaskContext {
	out := task.Clone()
	out.InputType = domain.InputText
	out.ExtractedText = task.Message
	out.MediaContent = nil
	out.InputSummary = fmt.Sprintf("Text message (%d chars)", len(task.Message))
	return out
}

// Image runs description and OCR independently and composes both.
func (h *Handlers) Image(ctx context.Context, task *domain.TaskContext, payload []byte, filename string) *domain.TaskContext {
	filename = hintFilename(filename, defaultImageName)
	out := task.Clone()
	out.InputType = domain.InputImage

	var description, ocrText string
	path, cleanup, err := h.spool(payload, filename)
	if err != nil {
		h.logger.Warn("cannot spool image payload", "filename", filename, "err", err)
	} else {
		defer cleanup()
		args := map[string]any{"path": path, "filename": filename}
		description = h.invokeText(ctx, backend.OpImageDescribe, args)
		ocrText = h.invokeText(ctx, backend.OpImageOCR, args)
	}

	out.ExtractedText = composeExtracted([]contribution{
		{label: "Image description", text: description},
		{label: "Image text", text: ocrText},
	}, task.Message, "[Image uploaded — no content extracted]")
	out.MediaContent = &domain.MediaContent{
		Filename:    filename,
		Description: description,
		OCRText:     ocrText,
	}
	summary := description
	if summary == "" {
		summary = "no description"
	}
	out.InputSummary = fmt.Sprintf("Image upload (%s): %s", filename, domain.Summarize(summary, summaryMax))
	return out
}

// Audio transcribes the recording.
func (h *Handlers) Audio(ctx context.Context, task *domain.TaskContext, payload []byte, filename string) *domain.TaskContext {
	filename = hintFilename(filename, defaultAudioName)
	out := task.Clone()
	out.InputType = domain.InputAudio

	var transcript string
	path, cleanup, err := h.spool(payload, filename)
	if err != nil {
		h.logger.Warn("cannot spool audio payload", "filename", filename, "err", err)
	} else {
		defer cleanup()
		transcript = h.invokeText(ctx, backend.OpAudioTranscribe, map[string]any{"path": path, "filename": filename})
	}

	out.ExtractedText = composeExtracted([]contribution{
		{label: "Audio transcript", text: transcript},
	}, task.Message, "[Audio uploaded — transcription failed]")
	out.MediaContent = &domain.MediaContent{
		Filename:   filename,
		Transcript: transcript,
	}
	summary := transcript
	if summary == "" {
		summary = "transcription failed"
	}
	out.InputSummary = fmt.Sprintf("Audio upload (%s): %s", filename, domain.Summarize(summary, summaryMax))
	return out
}

// Video runs the combined scene + audio analysis.
func (h *Handlers) Video(ctx context.Context, task *domain.TaskContext, payload []byte, filename string) *domain.TaskContext {
	filename = hintFilename(filename, defaultVideoName)
	out := task.Clone()
	out.InputType = domain.InputVideo

	var analysis string
	path, cleanup, err := h.spool(payload, filename)
	if err != nil {
		h.logger.Warn("cannot spool video payload", "filename", filename, "err", err)
	} else {
		defer cleanup()
		analysis = h.invokeText(ctx, backend.OpVideoAnalyze, map[string]any{"path": path, "filename": filename})
	}

	out.ExtractedText = composeExtracted([]contribution{
		{label: "Video content", text: analysis},
	}, task.Message, "[Video uploaded — analysis failed]")
	out.MediaContent = &domain.MediaContent{
		Filename:    filename,
		Description: analysis,
	}
	summary := analysis
	if summary == "" {
		summary = "analysis failed"
	}
	out.InputSummary = fmt.Sprintf("Video upload (%s): %s", filename, domain.Summarize(summary, summaryMax))
	return out
}

// File extracts text locally for text-like documents; binary content is
// noted, not decoded. No backend round-trip is needed for this modality.
func (h *Handlers) File(ctx context.Context, task *domain.TaskContext, payload []byte, filename string) *domain.TaskContext {
	filename = hintFilename(filename, defaultFileName)
	out := task.Clone()
	out.InputType = domain.InputFile

	var content string
	path, cleanup, err := h.spool(payload, filename)
	if err != nil {
		h.logger.Warn("cannot spool file payload", "filename", filename, "err", err)
	} else {
		defer cleanup()
		if isTextFile(filename) {
			data, readErr := os.ReadFile(path)
			if readErr != nil {
				h.logger.Warn("cannot read spooled file", "filename", filename, "err", readErr)
			} else {
				content = strings.TrimSpace(string(data))
			}
		}
	}

	fallback := fmt.Sprintf("[File uploaded: %s (%d bytes) — content not extracted]", filename, len(payload))
	out.ExtractedText = composeExtracted([]contribution{
		{label: "File content", text: content},
	}, task.Message, fallback)
	out.MediaContent = &domain.MediaContent{
		Filename: filename,
		OCRText:  content,
	}
	out.InputSummary = fmt.Sprintf("File upload (%s, %d bytes)", filename, len(payload))
	return out
}

// URL fetches the page named in the message via the web backend.
func (h *Handlers) URL(ctx context.Context, task *domain.TaskContext) *domain.TaskContext {
	out := task.Clone()
	out.InputType = domain.InputURL

	url := firstURL(task.Message)
	var title, text string
	if url == "" {
		h.logger.Warn("url input without a url in the message")
	} else {
		res := h.dispatch.Invoke(ctx, backend.OpWebFetch, map[string]any{"url": url})
		if !res.Success {
			h.logger.Warn("backend operation failed, continuing with empty contribution", "op", backend.OpWebFetch, "err", res.Error)
		} else if page, ok := res.Output.(map[string]any); ok {
			title, _ = page["title"].(string)
			text, _ = page["text"].(string)
		}
	}

	out.ExtractedText = composeExtracted([]contribution{
		{label: "Web page", text: title},
		{label: "Page content", text: text},
	}, task.Message, "[URL provided — fetch failed]")
	out.MediaContent = &domain.MediaContent{
		URL:   url,
		Title: title,
	}
	summary := title
	if summary == "" {
		summary = "fetch failed"
	}
	out.InputSummary = fmt.Sprintf("URL (%s): %s", url, domain.Summarize(summary, summaryMax))
	return out
}

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".csv": true, ".json": true,
	".xml": true, ".yaml": true, ".yml": true, ".log": true,
	".go": true, ".py": true, ".js": true, ".html": true,
}

func isTextFile(filename string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(filename))]
}

// firstURL pulls the first http(s) token out of the message, falling back
// to the whole trimmed message.
func firstURL(message string) string {
	for _, tok := range strings.Fields(message) {
		if strings.HasPrefix(tok, "http://") || strings.HasPrefix(tok, "https://") {
			return tok
		}
	}
	return strings.TrimSpace(message)
}
