package broadcast

import (
	"errors"
	"log/slog"

	"github.com/loykin/tailserver/internal/metrics"
)

// Broadcaster delivers each line to every client registered at the time of the call.
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger
}

func NewBroadcaster(registry *Registry, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{registry: registry, logger: logger}
}

// Broadcast queues line, plus a newline, for each client. It never blocks:
// a client whose queue is full is dropped, so connected clients never see a gap.
func (b *Broadcaster) Broadcast(line string) {
	msg := line + "\n"
	delivered := 0
	for _, c := range b.registry.Snapshot() {
		switch err := c.Enqueue(msg); {
		case err == nil:
			delivered++
		case errors.Is(err, ErrQueueFull):
			b.logger.Warn("client queue full, dropping client", "remote", c.RemoteAddr(), "queue_size", c.QueueSize())
			b.registry.Remove(c, ReasonQueueFull)
		}
	}
	metrics.AddDelivered(delivered)
}
