package agent

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/artifact"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/backend"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/capability"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/envelope"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestResponder(t *testing.T, handlers map[string]capability.Handler) *Responder {
	t.Helper()
	reg := capability.NewRegistry(testLogger())
	catalog := make([]domain.Operation, 0, len(handlers))
	for op := range handlers {
		catalog = append(catalog, domain.Operation{Name: op})
	}
	reg.Register(&capability.Func{CapName: "test", Catalog: catalog, Handlers: handlers})
	return NewResponder(ResponderConfig{Capabilities: reg, AgentName: "assistant", Logger: testLogger()})
}

func TestRespond_TextTurn(t *testing.T) {
	var seenPrompt string
	r := newTestResponder(t, map[string]capability.Handler{
		backend.OpChatComplete: func(_ context.Context, args map[string]any) (any, error) {
			seenPrompt = capability.ArgString(args, "prompt")
			return "sure, here is the answer", nil
		},
	})

	resp := r.Respond(context.Background(), &domain.TaskContext{
		InputType: domain.InputText,
		SessionID: "s1",
		Message:   "what time is it",
	}, nil, "")

	if !resp.Success {
		t.Fatal("expected a successful envelope")
	}
	if resp.Response != "sure, here is the answer" {
		t.Fatalf("unexpected response: %q", resp.Response)
	}
	if seenPrompt != "what time is it" {
		t.Fatalf("chat prompt should carry the extracted text, got %q", seenPrompt)
	}
	if len(resp.ToolsUsed) != 1 || resp.ToolsUsed[0] != backend.OpChatComplete {
		t.Fatalf("unexpected tools_used: %v", resp.ToolsUsed)
	}
	if resp.AgentUsed != "assistant" {
		t.Fatalf("unexpected agent: %q", resp.AgentUsed)
	}
}

func TestRespond_ImageTurnRecordsTools(t *testing.T) {
	r := newTestResponder(t, map[string]capability.Handler{
		backend.OpImageDescribe: func(context.Context, map[string]any) (any, error) { return "a cat", nil },
		backend.OpImageOCR:      func(context.Context, map[string]any) (any, error) { return "", nil },
		backend.OpChatComplete:  func(context.Context, map[string]any) (any, error) { return "that is a cat", nil },
	})

	resp := r.Respond(context.Background(), &domain.TaskContext{
		InputType: domain.InputImage,
		SessionID: "s1",
	}, []byte{0xff, 0xd8}, "cat.jpg")

	if !resp.Success {
		t.Fatal("expected success")
	}
	want := []string{backend.OpImageDescribe, backend.OpImageOCR, backend.OpChatComplete}
	if len(resp.ToolsUsed) != len(want) {
		t.Fatalf("tools_used = %v, want %v", resp.ToolsUsed, want)
	}
	for i, op := range want {
		if resp.ToolsUsed[i] != op {
			t.Fatalf("tools_used[%d] = %q, want %q", i, resp.ToolsUsed[i], op)
		}
	}
	if resp.InputProcessed == nil || resp.InputProcessed.Summary == "" {
		t.Fatal("image turn should report an input summary")
	}
}

func TestRespond_ChatFailureDegradesGracefully(t *testing.T) {
	r := newTestResponder(t, map[string]capability.Handler{})

	resp := r.Respond(context.Background(), &domain.TaskContext{
		InputType: domain.InputText,
		SessionID: "s1",
		Message:   "hello",
	}, nil, "")

	if resp.Success {
		t.Fatal("expected unsuccessful envelope when the chat backend is missing")
	}
	if resp.Response != envelope.DefaultResponse {
		t.Fatalf("failed turn should fall back to %q, got %q", envelope.DefaultResponse, resp.Response)
	}
	if resp.SessionID != "s1" {
		t.Fatalf("session id lost: %q", resp.SessionID)
	}
}

func TestRespond_GeneratesSessionID(t *testing.T) {
	r := newTestResponder(t, map[string]capability.Handler{
		backend.OpChatComplete: func(context.Context, map[string]any) (any, error) { return "hi", nil },
	})

	resp := r.Respond(context.Background(), &domain.TaskContext{
		InputType: domain.InputText,
		Message:   "hi",
	}, nil, "")

	if resp.SessionID == "" {
		t.Fatal("a missing session id must be generated")
	}
}

func TestRespond_PersistsUploadVerbatim(t *testing.T) {
	dir := t.TempDir()
	store, err := artifact.NewStore(artifact.StoreConfig{
		DBPath:      filepath.Join(dir, "artifacts.db"),
		ArtifactDir: filepath.Join(dir, "files"),
		BaseURL:     "http://127.0.0.1:8080",
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	reg := capability.NewRegistry(testLogger())
	reg.Register(&capability.Func{
		CapName: "test",
		Catalog: []domain.Operation{
			{Name: backend.OpImageDescribe},
			{Name: backend.OpImageOCR},
			{Name: backend.OpChatComplete},
		},
		Handlers: map[string]capability.Handler{
			backend.OpImageDescribe: func(context.Context, map[string]any) (any, error) { return "a chart", nil },
			backend.OpImageOCR:      func(context.Context, map[string]any) (any, error) { return "", nil },
			backend.OpChatComplete:  func(context.Context, map[string]any) (any, error) { return "looks like a chart", nil },
		},
	})
	r := NewResponder(ResponderConfig{Capabilities: reg, Artifacts: store, AgentName: "assistant", Logger: testLogger()})

	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0xfe, 0x07}
	resp := r.Respond(context.Background(), &domain.TaskContext{
		InputType: domain.InputImage,
		SessionID: "s1",
	}, payload, "chart.png")

	if len(resp.Artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %v", resp.Artifacts)
	}
	rec, err := store.Get(context.Background(), resp.Artifacts[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(rec.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatal("stored artifact bytes differ from the upload")
	}
}
