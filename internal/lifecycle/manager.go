// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

// Package lifecycle orchestrates plugin load, unload, and hot-swap. The
// manager owns the watcher and debouncer, drives isolated domains, and in
// the web shape keeps the route registry in step with the loaded set.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"

	"github.com/plugmesh/plugmesh/internal/debounce"
	"github.com/plugmesh/plugmesh/internal/domain"
	"github.com/plugmesh/plugmesh/internal/watch"
	"github.com/plugmesh/plugmesh/pkg/errutil"
)

// Error codes owned by the manager.
const (
	CodeResourceUnavailable = "RESOURCE_UNAVAILABLE"
	CodeConstructionError   = "CONSTRUCTION_ERROR"
	CodeDisposalError       = "DISPOSAL_ERROR"
)

// ErrAlreadyDisposed is returned by operations on a disposed manager.
var ErrAlreadyDisposed = errors.New("lifecycle: manager already disposed")

// DefaultGracePeriod bounds how long a hot-swapped instance keeps serving
// in-flight requests before disposal.
const DefaultGracePeriod = 30 * time.Second

// Handle is one loaded plugin.
type Handle struct {
	canonical string
	source    string
	domain    *domain.Domain
	instance  Instance
	name      string
	version   string
}

// pendingDisposal is a hot-swapped-out instance awaiting its grace deadline.
type pendingDisposal struct {
	deadline time.Time
	instance Instance
	domain   *domain.Domain
}

// Config configures a Manager.
type Config struct {
	// Dir is the watched plugin directory; created by Start if missing.
	Dir string

	// Pattern matches artifact base names (glob), e.g. "*.plugin".
	Pattern string

	// IgnoreNames are artifact base names never loaded (the shared SDK
	// support artifact).
	IgnoreNames []string

	// Adapter binds the manager to a host shape. Required.
	Adapter Adapter

	// EnableHotSwap keeps hot-swapped-out instances alive for GracePeriod.
	// When false, a reload disposes the old instance immediately.
	EnableHotSwap bool

	// GracePeriod defaults to DefaultGracePeriod.
	GracePeriod time.Duration

	// DebounceDelay defaults to debounce.DefaultDelay.
	DebounceDelay time.Duration

	// Factory creates plugin clients; defaults to real go-plugin clients.
	Factory domain.ClientFactory

	// Metrics defaults to unregistered no-op instruments.
	Metrics *Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// now is the clock; tests override it.
	now func() time.Time
}

// Manager owns the plugin registry and the change pipeline.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	deb     *debounce.Debouncer
	watcher *watch.Watcher

	// regMu guards loaded. Lock order: regMu before pendMu, never reverse.
	regMu  sync.Mutex
	loaded map[string]*Handle

	// pendMu guards pending.
	pendMu  sync.Mutex
	pending []pendingDisposal

	ctx    context.Context
	cancel context.CancelFunc
	pumpWG sync.WaitGroup

	stateMu  sync.Mutex
	started  bool
	disposed bool
}

// NewManager creates a manager. Call Start to begin loading.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, oops.Code(CodeResourceUnavailable).New("plugin directory is required")
	}
	if cfg.Adapter == nil {
		return nil, errors.New("lifecycle: adapter is required")
	}
	if cfg.Pattern == "" {
		cfg.Pattern = "*.plugin"
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Manager{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.now,
		loaded:  make(map[string]*Handle),
	}, nil
}

// Start creates the plugin directory if missing, schedules a load for every
// existing artifact, and attaches the watcher. Idempotent.
func (m *Manager) Start(ctx context.Context) error {
	m.stateMu.Lock()
	if m.disposed {
		m.stateMu.Unlock()
		return ErrAlreadyDisposed
	}
	if m.started {
		m.stateMu.Unlock()
		return nil
	}
	m.started = true
	m.stateMu.Unlock()

	if err := os.MkdirAll(m.cfg.Dir, 0o750); err != nil {
		return oops.Code(CodeResourceUnavailable).
			With("dir", m.cfg.Dir).
			Wrap(err)
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.deb = debounce.New(m.cfg.DebounceDelay, m.logger)

	w, err := watch.New(watch.Config{
		Dir:         m.cfg.Dir,
		Pattern:     m.cfg.Pattern,
		IgnoreNames: m.cfg.IgnoreNames,
		Logger:      m.logger,
	})
	if err != nil {
		return oops.Code(CodeResourceUnavailable).Wrap(err)
	}

	// Pick up artifacts that were present before the watcher attached.
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return oops.Code(CodeResourceUnavailable).
			With("dir", m.cfg.Dir).
			Wrap(err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(m.cfg.Dir, entry.Name())
		if !w.Wants(path) {
			continue
		}
		m.scheduleReload(path)
	}

	if err := w.Start(); err != nil {
		return oops.Code(CodeResourceUnavailable).Wrap(err)
	}
	m.watcher = w

	m.pumpWG.Add(1)
	go m.pump()

	m.logger.Info("plugin manager started",
		"dir", m.cfg.Dir,
		"pattern", m.cfg.Pattern,
		"hot_swap", m.cfg.EnableHotSwap,
		"grace_period", m.cfg.GracePeriod.String())
	return nil
}

// pump dispatches normalized watcher events until the watcher closes.
func (m *Manager) pump() {
	defer m.pumpWG.Done()
	for ev := range m.watcher.Events() {
		switch ev.Kind {
		case watch.KindReload:
			m.scheduleReload(ev.Path)
		case watch.KindUnload:
			m.Unload(ev.Path)
		case watch.KindError:
			// Already logged by the watcher; it keeps running.
		}
	}
}

// scheduleReload debounces a reload for the artifact. Bursts within the
// quiet period collapse to a single reload.
func (m *Manager) scheduleReload(path string) {
	key := canonicalPath(path)
	m.deb.Schedule(key, func() {
		m.Reload(path)
	})
}

// LoadedPlugins returns a snapshot of plugin name → artifact file name.
func (m *Manager) LoadedPlugins() (map[string]string, error) {
	m.stateMu.Lock()
	if m.disposed {
		m.stateMu.Unlock()
		return nil, ErrAlreadyDisposed
	}
	m.stateMu.Unlock()

	m.regMu.Lock()
	defer m.regMu.Unlock()
	out := make(map[string]string, len(m.loaded))
	for _, h := range m.loaded {
		out[h.name] = filepath.Base(h.source)
	}
	return out, nil
}

// Reload loads the artifact at path, hot-swapping any live instance under
// the same canonical key. With hot-swap enabled the old instance moves to
// the pending-disposal queue and survives until its grace deadline; without
// it the old instance is disposed immediately.
func (m *Manager) Reload(path string) {
	m.stateMu.Lock()
	if m.disposed {
		m.stateMu.Unlock()
		return
	}
	m.stateMu.Unlock()

	key := canonicalPath(path)

	m.regMu.Lock()
	if old, ok := m.loaded[key]; ok {
		delete(m.loaded, key)
		m.cfg.Adapter.Deactivate(old.instance)
		if m.cfg.EnableHotSwap {
			// In-flight requests still hold the old instance; disposal
			// waits out the grace period.
			m.pendMu.Lock()
			m.pending = append(m.pending, pendingDisposal{
				deadline: m.now().Add(m.cfg.GracePeriod),
				instance: old.instance,
				domain:   old.domain,
			})
			m.pendMu.Unlock()
			m.metrics.HotSwaps.Inc()
			m.logger.Info("hot-swapping plugin",
				"plugin", old.name,
				"artifact", filepath.Base(path),
				"grace_period", m.cfg.GracePeriod.String())
		} else {
			m.disposeInstance(old.name, old.instance)
			old.domain.Unload()
			m.reclaim()
		}
		m.metrics.Active.Set(float64(len(m.loaded)))
	}

	if err := m.tryLoadLocked(path, key); err != nil {
		errutil.LogWarn(m.logger, "plugin load failed", err)
	}
	if m.cfg.EnableHotSwap {
		m.processPendingDisposals()
	}
	m.regMu.Unlock()
}

// tryLoadLocked loads one artifact. Caller holds regMu. Failures between
// domain creation and activation unload the partial domain; after a
// successful install the handle is fully visible or not at all.
func (m *Manager) tryLoadLocked(path, key string) error {
	ctx := m.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := domain.LoadFromPath(ctx, path, m.cfg.Factory, m.logger)
	if err != nil {
		m.metrics.LoadFailures.Inc()
		return oops.With("artifact", filepath.Base(path)).Wrap(err)
	}

	inst, desc, err := m.cfg.Adapter.Instantiate(d)
	if err != nil {
		d.Unload()
		m.metrics.LoadFailures.Inc()
		return oops.With("artifact", filepath.Base(path)).Wrap(err)
	}

	name := desc.Name
	if name == "" {
		name = inst.Name()
	}
	if name == "" {
		name = trimSuffix(filepath.Base(path))
	}

	m.loaded[key] = &Handle{
		canonical: key,
		source:    path,
		domain:    d,
		instance:  inst,
		name:      name,
		version:   desc.Version,
	}
	m.metrics.Loads.Inc()
	m.metrics.Active.Set(float64(len(m.loaded)))

	if desc.Version != "" {
		if _, err := semver.NewVersion(desc.Version); err != nil {
			m.logger.Warn("plugin version is not valid semver",
				"plugin", name,
				"version", desc.Version)
		}
	}
	m.logger.Info("loaded plugin",
		"plugin", name,
		"version", desc.Version,
		"artifact", filepath.Base(path))
	return nil
}

// Unload immediately tears down the plugin loaded from path. A path with no
// loaded handle is a no-op.
func (m *Manager) Unload(path string) {
	m.stateMu.Lock()
	if m.disposed {
		m.stateMu.Unlock()
		return
	}
	m.stateMu.Unlock()

	key := canonicalPath(path)

	m.regMu.Lock()
	h, ok := m.loaded[key]
	if ok {
		delete(m.loaded, key)
		m.cfg.Adapter.Deactivate(h.instance)
		m.disposeInstance(h.name, h.instance)
		h.domain.Unload()
		m.metrics.Unloads.Inc()
		m.metrics.Active.Set(float64(len(m.loaded)))
	}
	m.regMu.Unlock()

	if ok {
		m.reclaim()
		m.logger.Info("unloaded plugin",
			"plugin", h.name,
			"artifact", filepath.Base(path))
	}
}

// processPendingDisposals disposes every queued instance whose grace
// deadline has passed.
func (m *Manager) processPendingDisposals() {
	m.pendMu.Lock()
	now := m.now()
	var due []pendingDisposal
	remaining := m.pending[:0]
	for _, p := range m.pending {
		if p.deadline.Before(now) || p.deadline.Equal(now) {
			due = append(due, p)
		} else {
			remaining = append(remaining, p)
		}
	}
	m.pending = remaining
	m.pendMu.Unlock()

	for _, p := range due {
		m.disposeInstance(p.instance.Name(), p.instance)
		p.domain.Unload()
		m.metrics.Unloads.Inc()
	}
	if len(due) > 0 {
		m.reclaim()
	}
}

// PendingDisposals reports the queue length (diagnostics and tests).
func (m *Manager) PendingDisposals() int {
	m.pendMu.Lock()
	defer m.pendMu.Unlock()
	return len(m.pending)
}

// disposeInstance runs a plugin's dispose, logging failures without ever
// propagating them: an uncooperative plugin must not block the rest.
func (m *Manager) disposeInstance(name string, inst Instance) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("plugin dispose panicked",
				"plugin", name,
				"panic", r)
		}
	}()
	if err := inst.Dispose(); err != nil {
		errutil.LogError(m.logger, "plugin dispose failed",
			oops.Code(CodeDisposalError).With("plugin", name).Wrap(err))
	}
}

// reclaim runs a collection pass after successful unloads. The child
// process exit has already released OS handles; this drops the host-side
// handle garbage promptly.
func (m *Manager) reclaim() {
	runtime.GC()
}

// Dispose irreversibly shuts the manager down: stop the watcher, dispose
// every loaded instance, then dispose every queued instance regardless of
// deadline. Idempotent.
func (m *Manager) Dispose() {
	m.stateMu.Lock()
	if m.disposed {
		m.stateMu.Unlock()
		return
	}
	m.disposed = true
	m.stateMu.Unlock()

	if m.watcher != nil {
		if err := m.watcher.Close(); err != nil {
			m.logger.Warn("error closing watcher", "error", err)
		}
	}
	m.pumpWG.Wait()
	if m.deb != nil {
		m.deb.Close()
	}
	if m.cancel != nil {
		m.cancel()
	}

	m.regMu.Lock()
	for key, h := range m.loaded {
		m.cfg.Adapter.Deactivate(h.instance)
		m.disposeInstance(h.name, h.instance)
		h.domain.Unload()
		delete(m.loaded, key)
	}
	m.metrics.Active.Set(0)
	m.regMu.Unlock()

	m.pendMu.Lock()
	queued := m.pending
	m.pending = nil
	m.pendMu.Unlock()
	for _, p := range queued {
		m.disposeInstance(p.instance.Name(), p.instance)
		p.domain.Unload()
	}

	m.reclaim()
	m.logger.Info("plugin manager disposed")
}

// trimSuffix strips the artifact extension for a fallback plugin name.
func trimSuffix(base string) string {
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}
