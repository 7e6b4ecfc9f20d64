package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/capability"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
)

// OpAudioTranscribe converts an audio file to text.
const OpAudioTranscribe = "audio.transcribe"

// SpeechConfig configures the speech-to-text backend.
type SpeechConfig struct {
	APIBase  string // e.g. "https://api.groq.com/openai/v1" or "https://api.openai.com/v1"
	APIKey   string
	Model    string // e.g. "whisper-large-v3" (Groq) or "whisper-1" (OpenAI)
	Language string // optional: ISO-639-1 language code
	Logger   *slog.Logger
}

// Speech transcribes audio using an OpenAI-compatible Whisper API.
type Speech struct {
	api      *apiClient
	model    string
	language string
	logger   *slog.Logger
}

func NewSpeech(cfg SpeechConfig) *Speech {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-large-v3"
	}
	return &Speech{
		api:      newAPIClient(cfg.APIBase, cfg.APIKey),
		model:    cfg.Model,
		language: cfg.Language,
		logger:   cfg.Logger,
	}
}

func (s *Speech) Name() string { return "speech" }

func (s *Speech) Operations() []domain.Operation {
	return []domain.Operation{
		{
			Name:        OpAudioTranscribe,
			Description: "Transcribe an audio recording to text",
			Parameters: capability.Parameters(map[string]capability.Param{
				"path":     {Type: "string", Description: "Path to the audio file"},
				"filename": {Type: "string", Description: "Original filename with extension"},
			}, []string{"path"}),
		},
	}
}

func (s *Speech) Invoke(ctx context.Context, op string, args map[string]any) domain.Result {
	if op != OpAudioTranscribe {
		return domain.Fail("speech backend has no operation " + op)
	}

	path := capability.ArgString(args, "path")
	filename := capability.ArgString(args, "filename")
	if filename == "" {
		filename = "audio.mp3"
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.Fail(fmt.Sprintf("open audio file: %v", err))
	}
	defer f.Close()

	text, err := s.Transcribe(ctx, f, filename)
	if err != nil {
		return domain.Fail(err.Error())
	}
	return domain.Ok(text)
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Transcribe converts audio data to text. filename should include the
// extension (e.g. "voice.ogg") so the API can sniff the container format.
func (s *Speech) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	fields := map[string]string{
		"model":           s.model,
		"response_format": "json",
	}
	if s.language != "" {
		fields["language"] = s.language
	}

	var result transcriptionResponse
	if err := s.api.postFile(ctx, "/audio/transcriptions", filename, audio, fields, &result); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	s.logger.Info("transcription complete",
		"text_len", len(result.Text),
		"language", result.Language,
		"duration", result.Duration,
	)
	return result.Text, nil
}
