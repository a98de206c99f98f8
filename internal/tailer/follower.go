// Package tailer follows a single growing file and emits each complete line once.
package tailer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/spf13/afero"

	"github.com/loykin/tailserver/internal/decoder"
	"github.com/loykin/tailserver/internal/metrics"
	"github.com/loykin/tailserver/internal/watcher"
)

const readChunkSize = 32 * 1024

// State is the lifecycle position of a Follower.
type State int32

const (
	Initializing State = iota
	Following
	Reopening
	Terminated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Following:
		return "following"
	case Reopening:
		return "reopening"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type Option func(*Follower)

// WithFs replaces the filesystem the follower reads from.
func WithFs(fs afero.Fs) Option {
	return func(f *Follower) { f.fs = fs }
}

// WithClock replaces the clock that drives the poll ticker.
func WithClock(c clock.Clock) Option {
	return func(f *Follower) { f.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Follower) { f.logger = l }
}

// Follower owns the read cursor of one file. Content present when it starts is
// skipped; everything appended afterwards is decoded into lines and passed to
// the onLine callback in file order. Truncation and replacement of the file
// reset the cursor to the start of the new content.
type Follower struct {
	cfg    Config
	fs     afero.Fs
	clock  clock.Clock
	logger *slog.Logger
	onLine func(string)

	// mu serializes polls; everything below it is owned by the poll.
	mu       sync.Mutex
	file     afero.File
	offset   int64
	detector watcher.Detector
	dec      *decoder.Decoder
	chunk    []byte

	state atomic.Int32
	pos   atomic.Int64
}

// New validates cfg and creates a Follower. Nothing is opened until the first poll.
func New(cfg Config, onLine func(string), opts ...Option) (*Follower, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	enc, err := decoder.Lookup(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	if onLine == nil {
		onLine = func(string) {}
	}
	f := &Follower{
		cfg:    cfg,
		fs:     afero.NewOsFs(),
		clock:  clock.New(),
		logger: slog.Default(),
		onLine: onLine,
		dec:    decoder.New(enc, cfg.MaxLineBytes),
		chunk:  make([]byte, readChunkSize),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("path", cfg.Path)
	return f, nil
}

// State returns the current lifecycle state.
func (f *Follower) State() State { return State(f.state.Load()) }

// Offset returns the number of bytes consumed from the current file.
func (f *Follower) Offset() int64 { return f.pos.Load() }

// Run polls until ctx is cancelled, then releases the file handle.
// It returns nil on cancellation and ErrStopped if the follower was already closed.
func (f *Follower) Run(ctx context.Context) error {
	if f.State() == Terminated {
		return ErrStopped
	}
	defer func() { _ = f.Close() }()

	var wake <-chan struct{}
	if f.cfg.Notify {
		n, err := watcher.NewNotifier(f.cfg.Path, f.logger)
		if err != nil {
			f.logger.Warn("file notifications unavailable, polling only", "error", err)
		} else {
			defer func() { _ = n.Close() }()
			wake = n.C()
		}
	}

	ticker := f.clock.Ticker(f.cfg.PollInterval)
	defer ticker.Stop()

	if err := f.Poll(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-wake:
		}
		if err := f.Poll(); err != nil {
			if errors.Is(err, ErrStopped) {
				return nil
			}
			return err
		}
	}
}

// Poll runs one step of the state machine. Missing or unreadable files are
// retried on the next call; only a closed follower yields an error.
func (f *Follower) Poll() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.State() {
	case Initializing:
		f.initialize()
	case Following:
		f.follow()
	case Reopening:
		f.reopen()
	case Terminated:
		return ErrStopped
	}
	return nil
}

// Close releases the file handle. Further polls return ErrStopped.
func (f *Follower) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.State() == Terminated {
		return nil
	}
	f.setState(Terminated)
	return f.closeFile()
}

func (f *Follower) initialize() {
	file, info, err := f.open()
	if err != nil {
		// the file will be read from its beginning once it shows up
		f.logger.Warn("file not available, waiting for it", "error", err)
		f.setState(Reopening)
		return
	}
	f.file = file
	f.setOffset(info.Size())
	f.detector.Observe(info)
	f.setState(Following)
	f.logger.Info("following file", "offset", f.offset, "encoding", f.dec.Encoding())
}

func (f *Follower) follow() {
	info, err := f.fs.Stat(f.cfg.Path)
	switch f.detector.Check(info, err) {
	case watcher.Unreadable:
		metrics.IncUnreadable()
		f.logger.Debug("file unreadable, retrying", "error", err)
		return
	case watcher.Rotated:
		reason := f.detector.Reason()
		metrics.IncRotations(reason)
		f.logger.Info("file rotated, reopening", "reason", reason, "offset", f.offset)
		_ = f.closeFile()
		// a partial line from the previous file never joins the new one
		f.dec.Reset()
		f.setState(Reopening)
		f.reopen()
		return
	}
	f.readTo(info.Size())
}

func (f *Follower) reopen() {
	file, info, err := f.open()
	if err != nil {
		metrics.IncReopenFailures()
		f.logger.Debug("reopen failed, retrying", "error", err)
		return
	}
	f.file = file
	f.setOffset(0)
	f.detector.Observe(info)
	f.setState(Following)
	f.logger.Info("reopened file", "size", info.Size())
	f.readTo(info.Size())
}

func (f *Follower) open() (afero.File, os.FileInfo, error) {
	file, err := f.fs.Open(f.cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	return file, info, nil
}

// readTo consumes bytes from the current offset up to size and emits the completed lines.
func (f *Follower) readTo(size int64) {
	for f.offset < size {
		want := min(int64(len(f.chunk)), size-f.offset)
		n, err := f.file.ReadAt(f.chunk[:want], f.offset)
		if n > 0 {
			f.setOffset(f.offset + int64(n))
			metrics.AddBytes(n)
			f.emit(f.chunk[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				f.logger.Debug("read failed, retrying", "offset", f.offset, "error", err)
			}
			break
		}
		if n == 0 {
			break
		}
	}
	f.detector.SetSize(f.offset)
}

func (f *Follower) emit(b []byte) {
	count := 0
	for line := range f.dec.Feed(b) {
		f.onLine(line)
		count++
	}
	metrics.IncLines(count)
}

func (f *Follower) closeFile() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

func (f *Follower) setState(s State) { f.state.Store(int32(s)) }

func (f *Follower) setOffset(off int64) {
	f.offset = off
	f.pos.Store(off)
}
