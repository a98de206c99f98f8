package tailer

import (
	"time"

	"github.com/loykin/tailserver/internal/decoder"
)

const DefaultPollInterval = 200 * time.Millisecond

// Config controls how a single file is followed.
//
// Encoding names the text encoding of the file ("ascii", "utf-8", "latin1", ...).
// Notify wakes the poll loop on filesystem events in addition to the ticker.
type Config struct {
	Path         string
	PollInterval time.Duration
	Encoding     string
	MaxLineBytes int
	Notify       bool
}

func (c *Config) Default() {
	c.PollInterval = DefaultPollInterval
	c.Encoding = decoder.EncodingASCII
	c.MaxLineBytes = decoder.DefaultMaxLineBytes
	c.Notify = false
}

func (c *Config) Validate() error {
	if c.Path == "" {
		return &InvalidConfigError{Field: "logfile", Reason: "path is required"}
	}
	if c.PollInterval <= 0 {
		return &InvalidConfigError{Field: "poll-interval", Reason: "must be > 0"}
	}
	if c.MaxLineBytes < 0 {
		return &InvalidConfigError{Field: "max-line-bytes", Reason: "must be >= 0"}
	}
	if _, err := decoder.Lookup(c.Encoding); err != nil {
		return &InvalidConfigError{Field: "encoding", Reason: err.Error()}
	}
	return nil
}
