// Package watcher reloads saved config scripts when they change on disk.
//
// A Watcher owns one script file and one schema. Whenever the file changes
// it executes the script into a fresh Config, validates it, diffs it
// against the previous generation, and hands subscribers the new generation
// along with the dotted paths whose values changed. A script that fails to
// load or validate never replaces the current generation; the error is
// logged and the last good config stays in place.
//
// Generations are frozen before they are published, so every consumer reads
// the same immutable snapshot.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/openfroyo/parfait/pkg/config"
	"github.com/openfroyo/parfait/pkg/telemetry"
)

// Update describes one successful reload.
type Update struct {
	// Config is the freshly loaded generation, frozen.
	Config *config.Config

	// Changed lists the dotted paths whose values differ from the previous
	// generation, sorted.
	Changed []string

	// Path is the watched script file.
	Path string
}

// Handler consumes updates. Handlers run on the watcher's reload goroutine,
// so a slow handler delays subsequent reloads.
type Handler func(Update)

// Watcher reloads one config script whenever it changes on disk.
type Watcher struct {
	schema   *config.Schema
	path     string
	rootName string
	cfgName  string
	debounce time.Duration
	logger   *telemetry.Logger

	mu       sync.RWMutex
	current  *config.Config
	handlers map[string]Handler
	started  bool

	fsw *fsnotify.Watcher
}

// Option adjusts a watcher at construction time.
type Option func(*Watcher)

// WithLogger routes watcher events to the given logger. Watchers are
// silent by default.
func WithLogger(l *telemetry.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long the watcher waits after a change before
// reloading, absorbing editor write bursts. The default is 500ms.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithRoot sets the identifier the script binds the config to, forwarded
// to Load. It defaults to "config".
func WithRoot(name string) Option {
	return func(w *Watcher) { w.rootName = name }
}

// WithConfigName names the loaded generations, so their error paths and
// history read naturally.
func WithConfigName(name string) Option {
	return func(w *Watcher) { w.cfgName = name }
}

// New creates a watcher for one script file. Nothing is loaded or watched
// until Start.
func New(schema *config.Schema, path string, opts ...Option) (*Watcher, error) {
	if schema == nil {
		return nil, fmt.Errorf("schema must not be nil")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		schema:   schema,
		path:     abs,
		rootName: "config",
		debounce: 500 * time.Millisecond,
		logger:   telemetry.Nop(),
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.NewComponentLogger("watcher")
	return w, nil
}

// Subscribe registers a handler for future updates and returns a token for
// Unsubscribe. Subscribing is allowed before Start and while watching.
func (w *Watcher) Subscribe(h Handler) string {
	token := uuid.New().String()
	w.mu.Lock()
	w.handlers[token] = h
	w.mu.Unlock()
	return token
}

// Unsubscribe removes the handler registered under token.
func (w *Watcher) Unsubscribe(token string) {
	w.mu.Lock()
	delete(w.handlers, token)
	w.mu.Unlock()
}

// Current returns the latest good generation, or nil before Start.
func (w *Watcher) Current() *config.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start loads the script once and begins watching it. The context bounds
// the watch: canceling it shuts the watcher down. Start fails when the
// initial load fails, so a started watcher always has a current generation;
// a failed Start may be retried.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	w.started = true
	w.mu.Unlock()

	fail := func(err error) error {
		w.mu.Lock()
		w.started = false
		w.mu.Unlock()
		return err
	}

	initial, err := w.load()
	if err != nil {
		return fail(err)
	}
	w.mu.Lock()
	w.current = initial
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fail(fmt.Errorf("failed to create watcher: %w", err))
	}
	w.fsw = fsw

	// Watch the directory rather than the file itself, so editors that
	// replace the file on save keep the watch alive.
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return fail(fmt.Errorf("failed to watch %s: %w", dir, err))
	}

	go w.processEvents(ctx)

	w.logger.WithField("path", w.path).Info("Started watching config file")
	return nil
}

// Stop stops watching. The current generation stays available.
func (w *Watcher) Stop() error {
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// processEvents processes file system events and triggers reloads.
func (w *Watcher) processEvents(ctx context.Context) {
	// Debounce reload events
	var reloadTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if w.fsw != nil {
				_ = w.fsw.Close()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			w.logger.
				WithField("file", event.Name).
				WithField("op", event.Op.String()).
				Debug("Config file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(w.debounce, func() {
				if err := w.reload(); err != nil {
					w.logger.WithError(err).Error("Failed to reload config")
				}
			})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("Watcher error")
		}
	}
}

// reload loads a fresh generation and publishes it. The previous generation
// survives any load or validation failure.
func (w *Watcher) reload() error {
	fresh, err := w.load()
	if err != nil {
		return err
	}

	w.mu.Lock()
	prev := w.current
	w.current = fresh
	handlers := make([]Handler, 0, len(w.handlers))
	for _, h := range w.handlers {
		handlers = append(handlers, h)
	}
	w.mu.Unlock()

	changed := diffPaths(prev, fresh)
	if len(changed) == 0 {
		w.logger.Debug("Reload produced no value changes")
		return nil
	}

	w.logger.WithField("changed", len(changed)).Info("Config reloaded")
	update := Update{Config: fresh, Changed: changed, Path: w.path}
	for _, h := range handlers {
		h(update)
	}
	return nil
}

func (w *Watcher) load() (*config.Config, error) {
	var opts []config.NewOption
	if w.cfgName != "" {
		opts = append(opts, config.WithName(w.cfgName))
	}
	fresh, err := config.New(w.schema, opts...)
	if err != nil {
		return nil, err
	}
	if err := config.LoadFile(w.path, fresh, config.WithRoot(w.rootName)); err != nil {
		return nil, err
	}
	if err := fresh.Validate(); err != nil {
		return nil, fmt.Errorf("reloaded config is invalid: %w", err)
	}
	fresh.Freeze()
	return fresh, nil
}

// diffPaths collects the dotted paths whose values differ between two
// generations, sorted and deduplicated.
func diffPaths(prev, next *config.Config) []string {
	if prev == nil {
		return nil
	}
	seen := make(map[string]struct{})
	config.Compare(prev, next,
		config.WithShortcut(false),
		config.WithReport(func(path, msg string) {
			seen[path] = struct{}{}
		}))
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
