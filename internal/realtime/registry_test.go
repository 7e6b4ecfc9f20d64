package realtime

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/envelope"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubConn records writes and close reasons.
type stubConn struct {
	writes       []envelope.Push
	writeErr     error
	closeReasons []string
	closeErr     error
}

func (c *stubConn) WriteJSON(v any) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	if p, ok := v.(envelope.Push); ok {
		c.writes = append(c.writes, p)
	}
	return nil
}

func (c *stubConn) Close(reason string) error {
	c.closeReasons = append(c.closeReasons, reason)
	return c.closeErr
}

func TestRegistry_SendToConnected(t *testing.T) {
	r := NewRegistry(testLogger())
	conn := &stubConn{}
	r.Connect("user-1", conn)

	ok := r.Send("user-1", envelope.BuildPush(envelope.PushStatus, map[string]any{"message": "hi"}))
	if !ok {
		t.Fatal("send to a connected identity should report true")
	}
	if len(conn.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(conn.writes))
	}
	if conn.writes[0]["type"] != envelope.PushStatus {
		t.Fatalf("unexpected push type: %v", conn.writes[0]["type"])
	}
}

func TestRegistry_SendToAbsentIdentity(t *testing.T) {
	r := NewRegistry(testLogger())
	if r.Send("ghost", envelope.BuildPush(envelope.PushStatus, nil)) {
		t.Fatal("send to an absent identity must report false")
	}
}

func TestRegistry_ReplaceClosesOldConnection(t *testing.T) {
	r := NewRegistry(testLogger())
	first := &stubConn{}
	second := &stubConn{}

	r.Connect("user-1", first)
	r.Connect("user-1", second)

	if len(first.closeReasons) != 1 || first.closeReasons[0] != ReplacedReason {
		t.Fatalf("old connection close reasons = %v, want [%q]", first.closeReasons, ReplacedReason)
	}
	if r.ActiveCount() != 1 {
		t.Fatalf("expected exactly one live connection, got %d", r.ActiveCount())
	}

	r.Send("user-1", envelope.BuildPush(envelope.PushStatus, nil))
	if len(second.writes) != 1 || len(first.writes) != 0 {
		t.Fatal("pushes must reach the new connection only")
	}
}

func TestRegistry_ReplaceSwallowsCloseError(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Connect("user-1", &stubConn{closeErr: errors.New("already gone")})
	r.Connect("user-1", &stubConn{})

	if !r.IsConnected("user-1") {
		t.Fatal("replacement must succeed even when the old close fails")
	}
}

func TestRegistry_SendFailureDeregisters(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Connect("user-1", &stubConn{writeErr: errors.New("broken pipe")})

	if r.Send("user-1", envelope.BuildPush(envelope.PushStatus, nil)) {
		t.Fatal("failed transmission must report false")
	}
	if r.IsConnected("user-1") {
		t.Fatal("a broken connection must be deregistered")
	}
}

func TestRegistry_DisconnectIdempotent(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Connect("user-1", &stubConn{})

	r.Disconnect("user-1")
	r.Disconnect("user-1")
	r.Disconnect("never-seen")

	if r.ActiveCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", r.ActiveCount())
	}
}

func TestRegistry_IdentitiesIsolated(t *testing.T) {
	r := NewRegistry(testLogger())
	a := &stubConn{}
	b := &stubConn{}
	r.Connect("alice", a)
	r.Connect("bob", b)

	r.Send("alice", envelope.BuildPush(envelope.PushTranscript, map[string]any{"text": "x"}))

	if len(a.writes) != 1 || len(b.writes) != 0 {
		t.Fatal("a push for one identity must not leak to another")
	}
	if r.ActiveCount() != 2 {
		t.Fatalf("expected 2 live connections, got %d", r.ActiveCount())
	}
}

// stallingConn blocks inside Close until released, mimicking a peer whose
// close handshake hangs on a network write.
type stallingConn struct {
	entered chan struct{}
	release chan struct{}
	reasons []string
}

func (c *stallingConn) WriteJSON(any) error { return nil }

func (c *stallingConn) Close(reason string) error {
	c.reasons = append(c.reasons, reason)
	close(c.entered)
	<-c.release
	return nil
}

func TestRegistry_SlowReplaceDoesNotStallOtherIdentities(t *testing.T) {
	r := NewRegistry(testLogger())
	stalled := &stallingConn{entered: make(chan struct{}), release: make(chan struct{})}
	r.Connect("alice", stalled)
	bob := &stubConn{}
	r.Connect("bob", bob)

	reconnected := make(chan struct{})
	go func() {
		r.Connect("alice", &stubConn{})
		close(reconnected)
	}()
	<-stalled.entered

	sent := make(chan bool, 1)
	go func() {
		sent <- r.Send("bob", envelope.BuildPush(envelope.PushStatus, map[string]any{"message": "hi"}))
	}()

	select {
	case ok := <-sent:
		if !ok {
			t.Fatal("delivery to a healthy connection must succeed")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("delivery to an unrelated identity stalled behind a hung reconnect")
	}

	close(stalled.release)
	<-reconnected
	if len(stalled.reasons) != 1 || stalled.reasons[0] != ReplacedReason {
		t.Fatalf("old connection close reasons = %v", stalled.reasons)
	}
	if len(bob.writes) != 1 {
		t.Fatalf("expected 1 delivery to bob, got %d", len(bob.writes))
	}
}
