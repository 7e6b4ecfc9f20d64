package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/capability"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
)

const (
	// OpImageDescribe produces a natural-language description of an image.
	OpImageDescribe = "image.describe"
	// OpImageOCR extracts visible text from an image.
	OpImageOCR = "image.ocr"
)

const (
	describePrompt = "Describe this image concisely for a conversational assistant. Focus on the main subject and anything a user would likely ask about."
	ocrPrompt      = "Extract all visible text from this image verbatim. Return only the text, or an empty response if there is none."
)

// VisionConfig configures the image understanding backend.
type VisionConfig struct {
	APIBase string
	APIKey  string
	Model   string
	Logger  *slog.Logger
}

// Vision describes images and extracts text from them through an
// OpenAI-compatible multimodal chat API.
type Vision struct {
	api    *apiClient
	model  string
	logger *slog.Logger
}

func NewVision(cfg VisionConfig) *Vision {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &Vision{
		api:    newAPIClient(cfg.APIBase, cfg.APIKey),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

func (v *Vision) Name() string { return "vision" }

func (v *Vision) Operations() []domain.Operation {
	params := capability.Parameters(map[string]capability.Param{
		"path": {Type: "string", Description: "Path to the image file"},
		"data": {Type: "string", Description: "Base64-encoded image bytes (alternative to path)"},
	}, nil)
	return []domain.Operation{
		{Name: OpImageDescribe, Description: "Describe the contents of an image", Parameters: params},
		{Name: OpImageOCR, Description: "Extract visible text from an image", Parameters: params},
	}
}

func (v *Vision) Invoke(ctx context.Context, op string, args map[string]any) domain.Result {
	var prompt string
	switch op {
	case OpImageDescribe:
		prompt = describePrompt
	case OpImageOCR:
		prompt = ocrPrompt
	default:
		return domain.Fail("vision backend has no operation " + op)
	}

	encoded := capability.ArgString(args, "data")
	if encoded == "" {
		path := capability.ArgString(args, "path")
		raw, err := os.ReadFile(path)
		if err != nil {
			return domain.Fail(fmt.Sprintf("read image file: %v", err))
		}
		encoded = base64.StdEncoding.EncodeToString(raw)
	}

	text, err := v.analyze(ctx, encoded, prompt)
	if err != nil {
		return domain.Fail(err.Error())
	}
	return domain.Ok(text)
}

func (v *Vision) analyze(ctx context.Context, b64 string, prompt string) (string, error) {
	msgs := []chatMessage{{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + b64}},
		},
	}}
	text, err := v.api.complete(ctx, v.model, msgs)
	if err != nil {
		return "", fmt.Errorf("vision analysis: %w", err)
	}
	v.logger.Debug("vision analysis complete", "text_len", len(text))
	return text, nil
}
