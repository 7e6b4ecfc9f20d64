package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/capability"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
)

// OpVideoAnalyze produces a combined scene + audio analysis of a video.
const OpVideoAnalyze = "video.analyze"

// MediaConfig configures the video analysis backend.
type MediaConfig struct {
	APIBase string // base URL of the media processing service
	APIKey  string
	Model   string
	Logger  *slog.Logger
}

// Media sends video files to the media processing service, which returns a
// single combined analysis of visual scenes and the audio track.
type Media struct {
	api    *apiClient
	model  string
	logger *slog.Logger
}

func NewMedia(cfg MediaConfig) *Media {
	return &Media{
		api:    newAPIClient(cfg.APIBase, cfg.APIKey),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

func (m *Media) Name() string { return "media" }

func (m *Media) Operations() []domain.Operation {
	return []domain.Operation{
		{
			Name:        OpVideoAnalyze,
			Description: "Analyze a video's visual content and audio track",
			Parameters: capability.Parameters(map[string]capability.Param{
				"path":     {Type: "string", Description: "Path to the video file"},
				"filename": {Type: "string", Description: "Original filename with extension"},
			}, []string{"path"}),
		},
	}
}

type videoAnalysisResponse struct {
	Text string `json:"text"`
}

func (m *Media) Invoke(ctx context.Context, op string, args map[string]any) domain.Result {
	if op != OpVideoAnalyze {
		return domain.Fail("media backend has no operation " + op)
	}

	path := capability.ArgString(args, "path")
	filename := capability.ArgString(args, "filename")
	if filename == "" {
		filename = "video.mp4"
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.Fail(fmt.Sprintf("open video file: %v", err))
	}
	defer f.Close()

	fields := map[string]string{"model": m.model}
	var result videoAnalysisResponse
	if err := m.api.postFile(ctx, "/video/analyses", filename, f, fields, &result); err != nil {
		return domain.Fail(fmt.Sprintf("video analysis: %v", err))
	}

	m.logger.Info("video analysis complete", "filename", filename, "text_len", len(result.Text))
	return domain.Ok(result.Text)
}
