package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
)

// Registry holds all processing backends and dispatches operation calls
// to them. It is the single boundary guaranteeing that callers never
// observe a raised fault from a backend: every invocation returns a
// tagged domain.Result, including for unknown operations and panicking
// handlers.
type Registry struct {
	mu     sync.RWMutex
	ops    map[string]domain.Capability // operation name -> owning capability
	caps   map[string]domain.Capability
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		ops:    make(map[string]domain.Capability),
		caps:   make(map[string]domain.Capability),
		logger: logger,
	}
}

// Register adds a capability and indexes its operation catalogue.
// A later registration of the same operation name wins.
func (r *Registry) Register(c domain.Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[c.Name()] = c
	for _, op := range c.Operations() {
		r.ops[op.Name] = c
		r.logger.Debug("registered operation", "capability", c.Name(), "op", op.Name)
	}
}

// Invoke dispatches an operation call to its backend. It never panics and
// never returns an error: unknown names, handler errors, and handler panics
// all come back as failure results.
func (r *Registry) Invoke(ctx context.Context, op string, args map[string]any) (res domain.Result) {
	r.mu.RLock()
	c, ok := r.ops[op]
	r.mu.RUnlock()
	if !ok {
		return domain.Fail(fmt.Sprintf("unknown operation: %s (available: %v)", op, r.OperationNames()))
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("operation panicked", "op", op, "panic", rec)
			res = domain.Fail(fmt.Sprintf("operation %s panicked: %v", op, rec))
		}
	}()

	res = c.Invoke(ctx, op, args)
	if !res.Success {
		r.logger.Warn("operation failed", "capability", c.Name(), "op", op, "err", res.Error)
	}
	return res
}

// Operations returns the flattened catalogue across all capabilities,
// in registration-map order.
func (r *Registry) Operations() []domain.Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var defs []domain.Operation
	for _, c := range r.caps {
		defs = append(defs, c.Operations()...)
	}
	return defs
}

func (r *Registry) OperationNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for n := range r.ops {
		names = append(names, n)
	}
	return names
}

// Param describes a single operation parameter.
type Param struct {
	Type        string
	Description string
}

// Parameters builds a JSON Schema "parameters" object for an operation.
func Parameters(properties map[string]Param, required []string) map[string]any {
	props := make(map[string]any)
	for name, p := range properties {
		props[name] = map[string]any{"type": p.Type, "description": p.Description}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ArgString extracts a string argument, tolerating missing keys.
func ArgString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return s
}

// Handler is the function a Func-based capability runs for one operation.
// A plain (value, error) pair is wrapped into a tagged Result by Invoke.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Func is a small building block for capabilities whose operations map
// directly to Go functions.
type Func struct {
	CapName  string
	Catalog  []domain.Operation
	Handlers map[string]Handler
}

func (f *Func) Name() string                   { return f.CapName }
func (f *Func) Operations() []domain.Operation { return f.Catalog }

func (f *Func) Invoke(ctx context.Context, op string, args map[string]any) domain.Result {
	h, ok := f.Handlers[op]
	if !ok {
		return domain.Fail("capability " + f.CapName + " has no operation " + op)
	}
	out, err := h(ctx, args)
	if err != nil {
		return domain.Fail(err.Error())
	}
	if r, ok := out.(domain.Result); ok {
		return r
	}
	return domain.Ok(out)
}
