package capability

import (
	"context"
	"sync"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
)

// Invoker is the dispatch side of the registry.
type Invoker interface {
	Invoke(ctx context.Context, op string, args map[string]any) domain.Result
}

// Recorder wraps an Invoker and remembers which operations were invoked
// during one request, in invocation order. The responder reports the list
// as tools_used in the response envelope.
type Recorder struct {
	inner Invoker
	mu    sync.Mutex
	ops   []string
}

func NewRecorder(inner Invoker) *Recorder {
	return &Recorder{inner: inner}
}

func (r *Recorder) Invoke(ctx context.Context, op string, args map[string]any) domain.Result {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
	return r.inner.Invoke(ctx, op, args)
}

// Ops returns the invoked operation names in order.
func (r *Recorder) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}
