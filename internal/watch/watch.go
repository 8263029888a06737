// Package watch reports changes to an asset library file.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses the burst of events one save produces.
const DefaultDebounce = 150 * time.Millisecond

// Watcher reports when one file was written, created or replaced.
// It watches the parent directory so editors that save by rename are seen.
type Watcher struct {
	path     string
	debounce time.Duration
	w        *fsnotify.Watcher
	changes  chan string
	log      *zap.Logger
}

// New starts watching path. debounce <= 0 uses DefaultDebounce.
func New(path string, debounce time.Duration, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:     filepath.Clean(abs),
		debounce: debounce,
		w:        w,
		changes:  make(chan string, 1),
		log:      log.With(zap.String("path", abs)),
	}, nil
}

// Changes delivers the file path once per settled change. A pending change
// is not duplicated while the receiver is busy.
func (w *Watcher) Changes() <-chan string { return w.changes }

// Run forwards events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.log.Debug("library event", zap.Stringer("op", ev.Op))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			select {
			case w.changes <- w.path:
				w.log.Info("asset library changed")
			default:
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.w.Close()
}
