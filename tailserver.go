// Package tailserver provides a small root-level API for embedding the server.
//
// Instead of importing internal subpackages, consumers can just:
//
//	import "github.com/loykin/tailserver"
//
// and then use tailserver.DefaultConfig and tailserver.NewServer directly.
package tailserver

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/tailserver/internal/decoder"
	"github.com/loykin/tailserver/internal/file_tracker"
	"github.com/loykin/tailserver/internal/metrics"
	"github.com/loykin/tailserver/internal/server"
)

// Config re-exports server.Config. This is a type alias, so it's fully
// compatible with the underlying type.
type Config = server.Config

// Server re-exports server.Server so callers can keep the concrete type.
type Server = server.Server

// Option re-exports server.Option.
type Option = server.Option

// FileID identifies a file by device and inode.
type FileID = file_tracker.FileID

// Encoding names accepted by Config.Follow.Encoding besides the WHATWG labels.
const (
	EncodingASCII = decoder.EncodingASCII
	EncodingUTF8  = decoder.EncodingUTF8
)

// DefaultConfig returns a Config with defaults applied. Follow.Path must still be set.
func DefaultConfig() Config {
	var cfg Config
	cfg.Default()
	return cfg
}

// NewServer constructs a Server. Call Run (or Serve) to start it.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	return server.New(cfg, opts...)
}

// WithLogger sets the logger used by the server and its follower.
func WithLogger(l *slog.Logger) Option { return server.WithLogger(l) }

// GetFileIDFromPath returns the identity used to detect file replacement.
func GetFileIDFromPath(path string) (FileID, error) { return file_tracker.GetFileIDFromPath(path) }

// StartMetrics registers tailserver metrics on the default Prometheus registry and starts an HTTP server.
// It returns a stop function to gracefully shut down the metrics server.
func StartMetrics(addr string) (func() error, error) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}
	srv, err := metrics.Start(addr)
	if err != nil {
		return nil, err
	}
	return srv.Stop, nil
}
