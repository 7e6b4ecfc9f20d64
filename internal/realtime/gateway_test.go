package realtime

import (
	"context"
	"testing"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/envelope"
)

type stubFrames struct {
	analysis domain.FrameAnalysis
	lastData string
}

func (s *stubFrames) CameraFrame(_ context.Context, encoded string) domain.FrameAnalysis {
	s.lastData = encoded
	return s.analysis
}

type stubTurns struct {
	last *domain.TaskContext
}

func (s *stubTurns) Respond(_ context.Context, t *domain.TaskContext, _ []byte, _ string) envelope.Response {
	s.last = t
	return envelope.BuildResponse(t.SessionID, "reply to "+t.Message, "", nil, "assistant", nil, true)
}

func newTestGateway(t *testing.T) (*Gateway, *stubFrames, *stubTurns, *stubConn) {
	t.Helper()
	reg := NewRegistry(testLogger())
	conn := &stubConn{}
	reg.Connect("user-1", conn)

	frames := &stubFrames{}
	turns := &stubTurns{}
	g := NewGateway(GatewayConfig{
		Registry: reg,
		Frames:   frames,
		Turns:    turns,
		Logger:   testLogger(),
	})
	return g, frames, turns, conn
}

func pushesOfType(conn *stubConn, typ string) []envelope.Push {
	var out []envelope.Push
	for _, p := range conn.writes {
		if p["type"] == typ {
			out = append(out, p)
		}
	}
	return out
}

func TestHandleFrame_CameraAnalysis(t *testing.T) {
	g, frames, _, conn := newTestGateway(t)
	frames.analysis = domain.FrameAnalysis{Success: true, Description: "a sunny street"}

	g.handleFrame(context.Background(), "user-1", clientFrame{Type: "camera_frame", Data: "base64data"})

	if frames.lastData != "base64data" {
		t.Fatalf("frame data not forwarded: %q", frames.lastData)
	}
	pushes := pushesOfType(conn, envelope.PushCameraAnalysis)
	if len(pushes) != 1 || pushes[0]["description"] != "a sunny street" {
		t.Fatalf("unexpected camera_analysis pushes: %v", pushes)
	}
}

func TestHandleFrame_CameraFailureBecomesErrorPush(t *testing.T) {
	g, frames, _, conn := newTestGateway(t)
	frames.analysis = domain.FrameAnalysis{Success: false, Error: "invalid frame encoding"}

	g.handleFrame(context.Background(), "user-1", clientFrame{Type: "camera_frame", Data: "!!"})

	errs := pushesOfType(conn, envelope.PushError)
	if len(errs) != 1 || errs[0]["detail"] != "invalid frame encoding" {
		t.Fatalf("unexpected error pushes: %v", errs)
	}
	if len(pushesOfType(conn, envelope.PushCameraAnalysis)) != 0 {
		t.Fatal("failed analysis must not push camera_analysis")
	}
}

func TestHandleFrame_PartialTranscriptNoTurn(t *testing.T) {
	g, _, turns, conn := newTestGateway(t)

	g.handleFrame(context.Background(), "user-1", clientFrame{Type: "speech_text", Text: "hel", IsFinal: false})

	tr := pushesOfType(conn, envelope.PushTranscript)
	if len(tr) != 1 || tr[0]["text"] != "hel" || tr[0]["is_final"] != false {
		t.Fatalf("unexpected transcript pushes: %v", tr)
	}
	if turns.last != nil {
		t.Fatal("a partial transcript must not run a turn")
	}
}

func TestHandleFrame_FinalTranscriptRunsTurn(t *testing.T) {
	g, _, turns, conn := newTestGateway(t)

	g.handleFrame(context.Background(), "user-1", clientFrame{Type: "speech_text", Text: "hello there", IsFinal: true, SessionID: "s1"})

	if turns.last == nil {
		t.Fatal("final transcript should run a turn")
	}
	if turns.last.InputType != domain.InputSpeech || turns.last.Message != "hello there" {
		t.Fatalf("unexpected turn task: %+v", turns.last)
	}
	if len(pushesOfType(conn, envelope.PushComplete)) != 1 {
		t.Fatal("turn result should arrive as a complete push")
	}
}

func TestHandleFrame_MessageRunsTurn(t *testing.T) {
	g, _, turns, conn := newTestGateway(t)

	g.handleFrame(context.Background(), "user-1", clientFrame{Type: "message", Message: "ping", SessionID: "s1"})

	if turns.last == nil || turns.last.Message != "ping" || turns.last.UserID != "user-1" {
		t.Fatalf("unexpected turn task: %+v", turns.last)
	}
	done := pushesOfType(conn, envelope.PushComplete)
	if len(done) != 1 {
		t.Fatalf("expected one complete push, got %d", len(done))
	}
	resp, ok := done[0]["response"].(envelope.Response)
	if !ok || resp.Response != "reply to ping" {
		t.Fatalf("unexpected response payload: %v", done[0]["response"])
	}
}

func TestHandleFrame_MessageWithoutSessionGetsOne(t *testing.T) {
	g, _, turns, _ := newTestGateway(t)

	g.handleFrame(context.Background(), "user-1", clientFrame{Type: "message", Message: "hi"})

	if turns.last.SessionID == "" {
		t.Fatal("a missing session id must be generated before the turn")
	}
}

func TestHandleFrame_UnknownTypeIgnored(t *testing.T) {
	g, _, turns, conn := newTestGateway(t)
	before := len(conn.writes)

	g.handleFrame(context.Background(), "user-1", clientFrame{Type: "telepathy"})

	if turns.last != nil {
		t.Fatal("unknown frame types must not run turns")
	}
	if len(conn.writes) != before {
		t.Fatal("unknown frame types must not push anything")
	}
}
