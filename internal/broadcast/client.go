// Package broadcast fans lines out to connected clients without letting one
// slow or broken client hold up the others.
package broadcast

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/loykin/tailserver/internal/metrics"
)

const (
	DefaultQueueSize    = 1024
	DefaultWriteTimeout = 10 * time.Second
)

var (
	ErrQueueFull    = errors.New("client queue full")
	ErrClientClosed = errors.New("client closed")
)

// Client is one connected sink. Lines are queued by the broadcaster and written
// by the client's own WriteLoop, so a stalled socket only ever blocks itself.
type Client struct {
	conn         net.Conn
	queue        chan string
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
}

// NewClient wraps conn. queueSize <= 0 uses DefaultQueueSize; writeTimeout <= 0 disables write deadlines.
func NewClient(conn net.Conn, queueSize int, writeTimeout time.Duration) *Client {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Client{
		conn:         conn,
		queue:        make(chan string, queueSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// Enqueue adds an already terminated line without blocking. It returns
// ErrQueueFull when the queue has no room and ErrClientClosed once the client is closed.
func (c *Client) Enqueue(line string) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.queue <- line:
		return nil
	default:
		return ErrQueueFull
	}
}

// WriteLoop writes queued lines to the connection until the client is closed
// or a write fails. A failure after Close is not reported.
func (c *Client) WriteLoop() error {
	w := bufio.NewWriter(c.conn)
	for {
		select {
		case <-c.done:
			return nil
		case line := <-c.queue:
			if err := c.write(w, line); err != nil {
				select {
				case <-c.done:
					return nil
				default:
					return err
				}
			}
		}
	}
}

func (c *Client) write(w *bufio.Writer, line string) error {
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := w.WriteString(line); err != nil {
		return err
	}
	// batch whatever is already waiting into the same flush
	lines := 1
	for n := len(c.queue); n > 0; n-- {
		if _, err := w.WriteString(<-c.queue); err != nil {
			return err
		}
		lines++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	metrics.ObserveFlush(lines)
	return nil
}

// Close closes the connection and stops WriteLoop. Safe to call multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *Client) QueueSize() int { return cap(c.queue) }
