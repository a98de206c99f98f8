package broadcast

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/loykin/tailserver/internal/metrics"
)

// Removal reasons, used in logs and as the clients_dropped_total label.
const (
	ReasonPeerClosed = "peer_closed"
	ReasonWriteError = "write_error"
	ReasonQueueFull  = "queue_full"
	ReasonShutdown   = "shutdown"
)

// Registry is the set of connected clients.
//
// Membership changes replace the snapshot slice instead of mutating it, so a
// broadcast can range over a snapshot while clients are added or removed.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	snap    []*Client
	closed  bool
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Add registers c. It returns false if c is already registered or the registry is closed.
func (r *Registry) Add(c *Client) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	if _, ok := r.clients[c]; ok {
		r.mu.Unlock()
		return false
	}
	r.clients[c] = struct{}{}
	snap := make([]*Client, len(r.snap), len(r.snap)+1)
	copy(snap, r.snap)
	r.snap = append(snap, c)
	n := len(r.snap)
	r.mu.Unlock()

	metrics.ClientConnected()
	r.logger.Info("client connected", "remote", c.RemoteAddr(), "clients", n)
	return true
}

// Remove unregisters and closes c. Removing a client that is not registered is a no-op
// and returns false.
func (r *Registry) Remove(c *Client, reason string) bool {
	r.mu.Lock()
	if _, ok := r.clients[c]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, c)
	r.snap = slices.DeleteFunc(slices.Clone(r.snap), func(x *Client) bool { return x == c })
	n := len(r.snap)
	r.mu.Unlock()

	c.Close()
	metrics.ClientDropped(reason)
	r.logger.Info("client disconnected", "remote", c.RemoteAddr(), "reason", reason, "clients", n)
	return true
}

// Snapshot returns the current members. The slice must not be modified.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snap)
}

// CloseAll removes and closes every client and rejects further Adds.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.closed = true
	snap := r.snap
	r.snap = nil
	clear(r.clients)
	r.mu.Unlock()

	for _, c := range snap {
		c.Close()
		metrics.ClientDropped(ReasonShutdown)
	}
	if len(snap) > 0 {
		r.logger.Info("closed all clients", "count", len(snap))
	}
}
