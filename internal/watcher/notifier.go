package watcher

import (
	"errors"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Notifier wakes a poll loop early when the followed file's directory changes.
// It only shortens latency: every decision is still made from a fresh stat.
type Notifier struct {
	w      *fsnotify.Watcher
	name   string
	c      chan struct{}
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// NewNotifier watches the directory containing path, so that creations and renames
// of the file itself are reported too.
func NewNotifier(path string, logger *slog.Logger) (*Notifier, error) {
	if path == "" {
		return nil, errors.New("notifier requires a path")
	}
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	n := &Notifier{
		w:      w,
		name:   filepath.Base(path),
		c:      make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go n.loop()
	return n, nil
}

// C delivers a coalesced signal whenever the file may have changed.
func (n *Notifier) C() <-chan struct{} { return n.c }

func (n *Notifier) loop() {
	defer close(n.done)
	for {
		select {
		case ev, ok := <-n.w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != n.name {
				continue
			}
			select {
			case n.c <- struct{}{}:
			default:
			}
		case err, ok := <-n.w.Errors:
			if !ok {
				return
			}
			n.logger.Warn("file notification error", "error", err)
		}
	}
}

// Close stops watching. Safe to call multiple times.
func (n *Notifier) Close() error {
	var err error
	n.once.Do(func() {
		err = n.w.Close()
		<-n.done
	})
	return err
}
