package input

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/backend"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
)

// CameraFrame analyzes a single base64-encoded still image from a live
// camera feed. It is invoked directly by the realtime layer per frame, not
// through the router: frames are ephemeral and never enter the
// conversation history, so the result is a minimal analysis record rather
// than an enriched task context.
func (h *Handlers) CameraFrame(ctx context.Context, encoded string) domain.FrameAnalysis {
	// Browsers send data URIs; strip the prefix before decoding.
	if idx := strings.Index(encoded, ","); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	if _, err := base64.StdEncoding.DecodeString(encoded); err != nil {
		h.logger.Warn("camera frame decode failed", "err", err)
		return domain.FrameAnalysis{Success: false, Error: "invalid frame encoding: " + err.Error()}
	}

	res := h.dispatch.Invoke(ctx, backend.OpImageDescribe, map[string]any{"data": encoded})
	if !res.Success {
		return domain.FrameAnalysis{Success: false, Error: res.Error}
	}
	return domain.FrameAnalysis{Success: true, Description: res.Text()}
}
