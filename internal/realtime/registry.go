// Package realtime delivers asynchronous push envelopes to clients over
// persistent WebSocket connections, tracking at most one live connection
// per user identity.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/envelope"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/metrics"
)

// ReplacedReason is the close reason sent to a connection displaced by a
// newer one for the same identity.
const ReplacedReason = "replaced by new connection"

// Conn is one live push channel. Implementations must serialize their own
// writes; wsConn does this with a per-connection mutex.
type Conn interface {
	WriteJSON(v any) error
	Close(reason string) error
}

// Registry maps user identities to their single live connection. It is
// per-process state: cross-process delivery needs an external fan-out
// mechanism and is out of scope here.
type Registry struct {
	mu     sync.Mutex
	conns  map[string]Conn
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]Conn),
		logger: logger,
	}
}

// Connect installs conn as the live channel for identity. An existing
// connection for the same identity is closed with ReplacedReason; a fault
// from that close is swallowed — the old channel is already as good as
// dead.
func (r *Registry) Connect(identity string, conn Conn) {
	r.mu.Lock()
	old := r.conns[identity]
	r.conns[identity] = conn
	active := len(r.conns)
	metrics.Collector.SetActiveConnections(active)
	r.mu.Unlock()

	// The registry lock is not held across the close, which may stall on a
	// dead peer's network write; the connection's own write mutex serializes
	// the close against in-flight writes.
	if old != nil {
		if err := old.Close(ReplacedReason); err != nil {
			r.logger.Debug("close of replaced connection failed", "identity", identity, "err", err)
		}
		r.logger.Info("connection replaced", "identity", identity)
	}
	r.logger.Info("client connected", "identity", identity, "active", active)
}

// Disconnect removes the identity's entry. Removing an absent identity is
// a no-op.
func (r *Registry) Disconnect(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[identity]; ok {
		delete(r.conns, identity)
		metrics.Collector.SetActiveConnections(len(r.conns))
		r.logger.Info("client disconnected", "identity", identity, "active", len(r.conns))
	}
}

// Send transmits a push envelope to the identity's connection. "Not
// connected" is a normal outcome, reported as false. A transmission fault
// deregisters the identity — a broken channel is assumed permanently
// dead — and also returns false.
func (r *Registry) Send(identity string, push envelope.Push) bool {
	r.mu.Lock()
	conn, ok := r.conns[identity]
	r.mu.Unlock()
	if !ok {
		return false
	}

	// The registry lock is not held across the network write; the
	// connection serializes its own writes.
	if err := conn.WriteJSON(push); err != nil {
		r.logger.Warn("push delivery failed, deregistering", "identity", identity, "err", err)
		r.mu.Lock()
		// Only self-heal if the entry still refers to the broken conn; a
		// reconnect may have raced in between.
		if cur, ok := r.conns[identity]; ok && cur == conn {
			delete(r.conns, identity)
			metrics.Collector.SetActiveConnections(len(r.conns))
		}
		r.mu.Unlock()
		return false
	}
	if typ, ok := push["type"].(string); ok {
		metrics.Collector.CountPush(typ)
	}
	return true
}

// IsConnected reports whether the identity currently has a live channel.
func (r *Registry) IsConnected(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[identity]
	return ok
}

// ActiveCount returns the number of live connections.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
