// Package server accepts TCP clients and streams every line appended to the
// followed file to all of them.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/loykin/tailserver/internal/broadcast"
	"github.com/loykin/tailserver/internal/tailer"
)

// ErrAlreadyStarted is returned by Serve when the server was already started once.
var ErrAlreadyStarted = errors.New("server already started")

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithFollowerOptions passes options through to the file follower.
func WithFollowerOptions(opts ...tailer.Option) Option {
	return func(s *Server) { s.followerOpts = append(s.followerOpts, opts...) }
}

type Server struct {
	cfg          Config
	logger       *slog.Logger
	followerOpts []tailer.Option

	registry    *broadcast.Registry
	broadcaster *broadcast.Broadcaster
	follower    *tailer.Follower

	started atomic.Bool
	ready   chan struct{}
	addr    net.Addr
	conns   sync.WaitGroup
}

// New validates cfg and wires the follower to the broadcaster. Nothing is
// opened or bound until Run or Serve.
func New(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry = broadcast.NewRegistry(s.logger)
	s.broadcaster = broadcast.NewBroadcaster(s.registry, s.logger)

	followerOpts := append([]tailer.Option{tailer.WithLogger(s.logger)}, s.followerOpts...)
	f, err := tailer.New(cfg.Follow, s.broadcaster.Broadcast, followerOpts...)
	if err != nil {
		return nil, err
	}
	s.follower = f
	return s, nil
}

// Run binds the configured address and serves until ctx is cancelled.
// Failing to bind is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve follows the file and accepts clients on ln until ctx is cancelled.
// On return the listener, the file and every client connection are closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.started.CompareAndSwap(false, true) {
		_ = ln.Close()
		return ErrAlreadyStarted
	}
	s.addr = ln.Addr()
	close(s.ready)
	s.logger.Info("serving", "addr", s.addr.String(), "logfile", s.cfg.Follow.Path)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.follower.Run(gctx)
	})
	g.Go(func() error {
		return s.acceptLoop(gctx, ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down", "clients", s.registry.Len())
		_ = ln.Close()
		s.registry.CloseAll()
		return nil
	})

	err := g.Wait()
	s.conns.Wait()
	s.logger.Info("server stopped", "addr", s.addr.String())
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = 0

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed: %w", err)
			}
			delay := bo.NextBackOff()
			s.logger.Warn("accept failed, retrying", "error", err, "delay", delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		bo.Reset()

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handle(conn)
		}()
	}
}

// handle registers the connection and blocks until the peer goes away or the
// client is dropped elsewhere.
func (s *Server) handle(conn net.Conn) {
	c := broadcast.NewClient(conn, s.cfg.QueueSize, s.cfg.WriteTimeout)
	if !s.registry.Add(c) {
		c.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := c.WriteLoop(); err != nil {
			s.logger.Debug("client write failed", "remote", c.RemoteAddr(), "error", err)
			s.registry.Remove(c, broadcast.ReasonWriteError)
		}
	}()

	// the read side only detects disconnects; anything the client sends is discarded
	_, _ = io.Copy(io.Discard, conn)
	s.registry.Remove(c, broadcast.ReasonPeerClosed)
	<-writerDone
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the listening address. It is nil until Ready is closed.
func (s *Server) Addr() net.Addr {
	select {
	case <-s.ready:
		return s.addr
	default:
		return nil
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int { return s.registry.Len() }

// FollowerState returns the state of the file follower.
func (s *Server) FollowerState() tailer.State { return s.follower.State() }
