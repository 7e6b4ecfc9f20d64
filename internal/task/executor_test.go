package task

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/envelope"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/realtime"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// pushConn collects pushed envelopes on behalf of one registry identity.
type pushConn struct {
	mu     sync.Mutex
	pushes []envelope.Push
}

func (c *pushConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := v.(envelope.Push); ok {
		c.pushes = append(c.pushes, p)
	}
	return nil
}

func (c *pushConn) Close(string) error { return nil }

func (c *pushConn) byType(typ string) []envelope.Push {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []envelope.Push
	for _, p := range c.pushes {
		if p["type"] == typ {
			out = append(out, p)
		}
	}
	return out
}

func newTestExecutor(t *testing.T) (*Executor, *pushConn) {
	t.Helper()
	reg := realtime.NewRegistry(testLogger())
	conn := &pushConn{}
	reg.Connect("user-1", conn)
	return NewExecutor(ExecutorConfig{Workers: 2, EstimatedSeconds: 5, Registry: reg, Logger: testLogger()}), conn
}

func waitForStatus(t *testing.T, e *Executor, id string, want Status) Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if task, ok := e.Get(id); ok && task.Status == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := e.Get(id)
	t.Fatalf("task %s never reached %s, stuck at %s", id, want, task.Status)
	return Task{}
}

func TestExecutor_CompleteLifecycle(t *testing.T) {
	e, conn := newTestExecutor(t)

	id := e.Submit(context.Background(), "user-1", func(_ context.Context, progress func(int, string)) (envelope.Response, error) {
		progress(50, "halfway")
		return envelope.BuildResponse("s1", "all done", "", nil, "chat", nil, true), nil
	})

	task := waitForStatus(t, e, id, StatusComplete)
	if task.Progress != 100 {
		t.Fatalf("completed task progress = %d, want 100", task.Progress)
	}
	if task.Result == nil || task.Result.Response != "all done" {
		t.Fatalf("unexpected result: %+v", task.Result)
	}

	queued := conn.byType(envelope.PushTaskQueued)
	if len(queued) != 1 || queued[0]["task_id"] != id || queued[0]["estimated_seconds"] != 5 {
		t.Fatalf("unexpected task_queued push: %v", queued)
	}
	prog := conn.byType(envelope.PushTaskProgress)
	if len(prog) != 1 || prog[0]["progress"] != 50 || prog[0]["message"] != "halfway" {
		t.Fatalf("unexpected task_progress push: %v", prog)
	}
	if len(conn.byType(envelope.PushComplete)) != 1 {
		t.Fatal("expected one complete push")
	}
}

func TestExecutor_FailureLifecycle(t *testing.T) {
	e, conn := newTestExecutor(t)

	id := e.Submit(context.Background(), "user-1", func(context.Context, func(int, string)) (envelope.Response, error) {
		return envelope.Response{}, errors.New("backend exploded")
	})

	task := waitForStatus(t, e, id, StatusFailed)
	if task.Error != "backend exploded" {
		t.Fatalf("unexpected error: %q", task.Error)
	}

	errPushes := conn.byType(envelope.PushError)
	if len(errPushes) != 1 || errPushes[0]["detail"] != "backend exploded" {
		t.Fatalf("unexpected error push: %v", errPushes)
	}
	if len(conn.byType(envelope.PushComplete)) != 0 {
		t.Fatal("failed task must not push complete")
	}

	raw, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal failed task: %v", err)
	}
	if strings.Contains(string(raw), `"result"`) {
		t.Fatalf("failed task must not serialize an empty result: %s", raw)
	}
}

func TestExecutor_DisconnectedClientStillQueryable(t *testing.T) {
	reg := realtime.NewRegistry(testLogger())
	e := NewExecutor(ExecutorConfig{Workers: 1, Registry: reg, Logger: testLogger()})

	id := e.Submit(context.Background(), "nobody-home", func(context.Context, func(int, string)) (envelope.Response, error) {
		return envelope.BuildResponse("s1", "quiet success", "", nil, "chat", nil, true), nil
	})

	task := waitForStatus(t, e, id, StatusComplete)
	if task.Result == nil || task.Result.Response != "quiet success" {
		t.Fatalf("unexpected result: %+v", task.Result)
	}
}

func TestExecutor_GetUnknown(t *testing.T) {
	e, _ := newTestExecutor(t)
	if _, ok := e.Get("no-such-task"); ok {
		t.Fatal("unknown id should report false")
	}
}

func TestExecutor_CleanRemovesOnlyFinished(t *testing.T) {
	e, _ := newTestExecutor(t)

	release := make(chan struct{})
	running := e.Submit(context.Background(), "user-1", func(context.Context, func(int, string)) (envelope.Response, error) {
		<-release
		return envelope.Response{}, nil
	})
	done := e.Submit(context.Background(), "user-1", func(context.Context, func(int, string)) (envelope.Response, error) {
		return envelope.Response{}, nil
	})
	waitForStatus(t, e, done, StatusComplete)

	if removed := e.Clean(0); removed != 1 {
		t.Fatalf("expected 1 removed task, got %d", removed)
	}
	if _, ok := e.Get(running); !ok {
		t.Fatal("running task must survive cleanup")
	}

	close(release)
	waitForStatus(t, e, running, StatusComplete)
}
