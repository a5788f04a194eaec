// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

// Package watch observes the plugin directory and emits normalized change
// events for the lifecycle manager.
package watch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// Kind classifies a normalized filesystem event.
type Kind int

// Normalized event kinds.
const (
	// KindReload means the artifact at Path was created or modified and
	// should be (re)loaded.
	KindReload Kind = iota
	// KindUnload means the artifact at Path was removed or renamed away and
	// should be unloaded immediately.
	KindUnload
	// KindError carries a watcher error; watching continues.
	KindError
)

// String returns the kind name for logs.
func (k Kind) String() string {
	switch k {
	case KindReload:
		return "reload"
	case KindUnload:
		return "unload"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one normalized change notification.
type Event struct {
	Kind Kind
	Path string
	Err  error
}

// Config configures a Watcher.
type Config struct {
	// Dir is the plugin directory to observe. Subdirectories are not scanned.
	Dir string

	// Pattern is a glob matched against artifact base names, e.g. "*.plugin"
	// or "*.so". Required.
	Pattern string

	// IgnoreNames are base names never reported (case-insensitive), used to
	// keep the shared SDK support artifact from triggering self-reload.
	IgnoreNames []string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Watcher observes one directory and emits normalized events.
//
// Event mapping: Create and Write become reload; Remove becomes unload;
// Rename reports unload of the old name (the new name arrives as its own
// Create); Chmod is ignored. Watcher errors are emitted as KindError and
// watching continues.
type Watcher struct {
	dir     string
	pattern glob.Glob
	ignore  map[string]struct{}
	logger  *slog.Logger

	fsw    *fsnotify.Watcher
	events chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a Watcher. Start must be called before events flow.
func New(cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch: dir is required")
	}
	if cfg.Pattern == "" {
		return nil, fmt.Errorf("watch: pattern is required")
	}
	g, err := glob.Compile(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("watch: invalid pattern %q: %w", cfg.Pattern, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ignore := make(map[string]struct{}, len(cfg.IgnoreNames))
	for _, name := range cfg.IgnoreNames {
		ignore[strings.ToLower(name)] = struct{}{}
	}
	return &Watcher{
		dir:     cfg.Dir,
		pattern: g,
		ignore:  ignore,
		logger:  logger,
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
	}, nil
}

// Events returns the normalized event stream. The channel is closed by Close.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start attaches the underlying filesystem watcher and begins emitting
// events. The directory must exist.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch: add %s: %w", w.dir, err)
	}
	w.fsw = fsw
	go w.pump()
	return nil
}

// pump translates fsnotify events until the watcher closes.
func (w *Watcher) pump() {
	defer close(w.events)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "dir", w.dir, "error", err)
			w.emit(Event{Kind: KindError, Err: err})
		}
	}
}

// handle normalizes one raw event.
func (w *Watcher) handle(ev fsnotify.Event) {
	if !w.Wants(ev.Name) {
		return
	}
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		w.emit(Event{Kind: KindReload, Path: ev.Name})
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		// A rename away frees the old name; the destination shows up as a
		// separate Create and is loaded unconditionally.
		w.emit(Event{Kind: KindUnload, Path: ev.Name})
	}
}

// Wants reports whether the path is an artifact this watcher cares about:
// the base name matches the pattern and is not an ignored name.
func (w *Watcher) Wants(path string) bool {
	base := filepath.Base(path)
	if _, skip := w.ignore[strings.ToLower(base)]; skip {
		return false
	}
	return w.pattern.Match(base)
}

// emit delivers an event unless the watcher is shutting down.
func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

// Close stops watching and closes the event channel. Idempotent.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		if w.fsw != nil {
			err = w.fsw.Close()
		} else {
			close(w.events)
		}
	})
	return err
}
