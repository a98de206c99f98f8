package server

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/loykin/tailserver/internal/broadcast"
	"github.com/loykin/tailserver/internal/tailer"
)

const DefaultHost = "0.0.0.0"

// Config holds the listener and per-client delivery options together with the
// options of the followed file.
type Config struct {
	Host         string
	Port         int
	QueueSize    int
	WriteTimeout time.Duration
	Follow       tailer.Config
}

func (c *Config) Default() {
	c.Host = DefaultHost
	c.QueueSize = broadcast.DefaultQueueSize
	c.WriteTimeout = broadcast.DefaultWriteTimeout
	c.Follow.Default()
}

// Validate checks the server options. Port 0 asks the system for a free port.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue-size must be > 0, got %d", c.QueueSize)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("write-timeout must be >= 0, got %s", c.WriteTimeout)
	}
	return c.Follow.Validate()
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
