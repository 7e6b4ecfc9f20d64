package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/envelope"
)

const writeTimeout = 10 * time.Second

// FrameAnalyzer analyzes one live camera frame (base64-encoded still).
type FrameAnalyzer interface {
	CameraFrame(ctx context.Context, encoded string) domain.FrameAnalysis
}

// TurnHandler runs a full conversation turn for an inbound message and
// returns the terminal response envelope.
type TurnHandler interface {
	Respond(ctx context.Context, task *domain.TaskContext, payload []byte, filename string) envelope.Response
}

// GatewayConfig configures the realtime WebSocket gateway.
type GatewayConfig struct {
	Port     int
	Path     string // endpoint path (default: /ws)
	Registry *Registry
	Frames   FrameAnalyzer
	Turns    TurnHandler
	Logger   *slog.Logger
}

// Gateway upgrades client connections, registers them with the connection
// registry, and translates inbound frames into pipeline calls whose
// results go back out as typed push envelopes.
type Gateway struct {
	port     int
	path     string
	registry *Registry
	frames   FrameAnalyzer
	turns    TurnHandler
	logger   *slog.Logger
	server   *http.Server
}

// clientFrame is the inbound JSON protocol.
type clientFrame struct {
	Type      string `json:"type"` // "message" | "camera_frame" | "speech_text"
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Data      string `json:"data,omitempty"` // base64 frame payload
	Text      string `json:"text,omitempty"` // speech transcript text
	IsFinal   bool   `json:"is_final,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the fronting proxy
	},
}

func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.Port == 0 {
		cfg.Port = 8081
	}
	return &Gateway{
		port:     cfg.Port,
		path:     cfg.Path,
		registry: cfg.Registry,
		frames:   cfg.Frames,
		turns:    cfg.Turns,
		logger:   cfg.Logger,
	}
}

// Start runs the WebSocket server until ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(g.path, g.handleUpgrade)

	g.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", g.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.logger.Info("realtime gateway starting", "port", g.port, "path", g.path)

	errCh := make(chan error, 1)
	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return g.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (g *Gateway) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	identity := r.URL.Query().Get("user_id")
	if identity == "" {
		identity = "anon-" + uuid.NewString()
	}

	wc := &wsConn{conn: conn}
	g.registry.Connect(identity, wc)
	g.registry.Send(identity, envelope.BuildPush(envelope.PushStatus, map[string]any{
		"message": "connected",
	}))

	defer func() {
		g.registry.Disconnect(identity)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Error("websocket read error", "identity", identity, "err", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			g.logger.Warn("invalid client frame", "identity", identity, "err", err)
			g.registry.Send(identity, envelope.BuildPush(envelope.PushError, map[string]any{
				"detail": "invalid frame: " + err.Error(),
			}))
			continue
		}

		g.handleFrame(r.Context(), identity, frame)
	}
}

func (g *Gateway) handleFrame(ctx context.Context, identity string, frame clientFrame) {
	switch frame.Type {
	case "camera_frame":
		analysis := g.frames.CameraFrame(ctx, frame.Data)
		if !analysis.Success {
			g.registry.Send(identity, envelope.BuildPush(envelope.PushError, map[string]any{
				"detail": analysis.Error,
			}))
			return
		}
		g.registry.Send(identity, envelope.BuildPush(envelope.PushCameraAnalysis, map[string]any{
			"description": analysis.Description,
		}))

	case "speech_text":
		// Echo partial and final transcripts so the client UI stays live;
		// a final utterance also runs a full conversation turn.
		g.registry.Send(identity, envelope.BuildPush(envelope.PushTranscript, map[string]any{
			"text":     frame.Text,
			"is_final": frame.IsFinal,
		}))
		if frame.IsFinal && frame.Text != "" {
			g.runTurn(ctx, identity, frame.SessionID, domain.InputSpeech, frame.Text)
		}

	case "message":
		g.runTurn(ctx, identity, frame.SessionID, domain.InputText, frame.Message)

	default:
		g.logger.Warn("unknown frame type", "identity", identity, "frame_type", frame.Type)
	}
}

func (g *Gateway) runTurn(ctx context.Context, identity, sessionID string, inputType domain.InputType, message string) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	task := &domain.TaskContext{
		InputType: inputType,
		SessionID: sessionID,
		UserID:    identity,
		Message:   message,
	}

	resp := g.turns.Respond(ctx, task, nil, "")
	g.registry.Send(identity, envelope.BuildPush(envelope.PushComplete, map[string]any{
		"response": resp,
	}))
}

// wsConn adapts a gorilla connection to the registry's Conn interface with
// serialized writes.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	c.conn.WriteMessage(websocket.CloseMessage, msg)
	return c.conn.Close()
}
