package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"golang.org/x/time/rate"

	"github.com/Iron-Ham/autoproducer/internal/event"
	"github.com/Iron-Ham/autoproducer/internal/logging"
)

// Defaults.
const (
	DefaultDebounce     = 500 * time.Millisecond
	DefaultRestartEvery = 10 * time.Second
)

// DefaultPatterns are the globs watched when none are configured.
var DefaultPatterns = []string{"**.go", "**.yaml"}

// DefaultIgnore are directory names never watched.
var DefaultIgnore = []string{".git", "node_modules", "vendor"}

// Restarter is the part of the orchestrator the watcher drives.
type Restarter interface {
	RequestRestart(reason string) error
	Active() bool
}

// Config describes what to watch.
type Config struct {
	// Roots are the directories watched recursively.
	Roots []string
	// Patterns are globs matched against slash-separated paths relative to
	// their root.
	Patterns []string
	// Ignore holds directory names, or absolute directory paths, to skip.
	Ignore []string
	// Debounce is the quiet period that closes a batch.
	Debounce time.Duration
	// RestartEvery is the minimum time between restart requests.
	RestartEvery time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithBus publishes a ChangeDetectedEvent for every qualifying batch.
func WithBus(b *event.Bus) Option {
	return func(w *Watcher) { w.bus = b }
}

// withBackend replaces the fsnotify constructor.
func withBackend(f func() (*fsnotify.Watcher, error)) Option {
	return func(w *Watcher) { w.newBackend = f }
}

// Watcher turns source changes into restart requests.
type Watcher struct {
	cfg        Config
	patterns   []glob.Glob
	restarter  Restarter
	bus        *event.Bus
	logger     *logging.Logger
	limiter    *rate.Limiter
	newBackend func() (*fsnotify.Watcher, error)

	mu       sync.Mutex
	fs       *fsnotify.Watcher
	started  bool
	degraded bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New validates cfg and creates a Watcher. It does not touch the filesystem
// until Start.
func New(cfg Config, r Restarter, opts ...Option) (*Watcher, error) {
	if r == nil {
		return nil, fmt.Errorf("watcher: restarter is required")
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = DefaultPatterns
	}
	if len(cfg.Ignore) == 0 {
		cfg.Ignore = DefaultIgnore
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.RestartEvery <= 0 {
		cfg.RestartEvery = DefaultRestartEvery
	}

	patterns := make([]glob.Glob, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("watcher: invalid pattern %q: %w", p, err)
		}
		patterns = append(patterns, g)
	}

	w := &Watcher{
		cfg:        cfg,
		patterns:   patterns,
		restarter:  r,
		logger:     logging.NopLogger(),
		limiter:    rate.NewLimiter(rate.Every(cfg.RestartEvery), 1),
		newBackend: fsnotify.NewWatcher,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("watcher")
	return w, nil
}

// Start adds the watches and begins processing events in the background.
// It returns an error only for a root that does not exist; an unavailable
// backend degrades the watcher to a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("watcher: already started")
	}
	w.started = true

	for _, root := range w.cfg.Roots {
		if _, err := os.Stat(root); err != nil {
			close(w.done)
			return fmt.Errorf("watcher: root %s: %w", root, err)
		}
	}

	fs, err := w.newBackend()
	if err != nil {
		w.degraded = true
		close(w.done)
		w.logger.Warn("file watching unavailable, change-triggered restarts disabled", "error", err)
		return nil
	}
	w.fs = fs

	for _, root := range w.cfg.Roots {
		w.watchDirRecursive(root)
	}
	w.logger.Info("watching for source changes",
		"roots", w.cfg.Roots, "patterns", w.cfg.Patterns, "debounce", w.cfg.Debounce)

	go w.watchLoop(ctx)
	return nil
}

// Stop ends event processing and releases the backend. It is idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
}

// Degraded reports whether the watcher fell back to a no-op.
func (w *Watcher) Degraded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.degraded
}

// watchDirRecursive adds dir and every non-ignored subdirectory.
func (w *Watcher) watchDirRecursive(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			w.logger.Debug("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.done)
	defer func() { _ = w.fs.Close() }()

	// many editors emit several events for a single save
	debounce := time.NewTimer(w.cfg.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !w.ignored(ev.Name) {
					w.watchDirRecursive(ev.Name)
					continue
				}
			}
			if !w.Matches(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			debounce.Reset(w.cfg.Debounce)

		case <-debounce.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			pending = make(map[string]struct{})
			sort.Strings(paths)
			w.flush(paths)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// flush handles one debounced batch.
func (w *Watcher) flush(paths []string) {
	if len(paths) == 0 {
		return
	}
	if w.bus != nil {
		w.bus.Publish(event.NewChangeDetectedEvent(paths))
	}

	log := w.logger.With("paths", len(paths), "first", paths[0])
	if !w.restarter.Active() {
		log.Debug("source changed, no active run to restart")
		return
	}
	if !w.limiter.Allow() {
		log.Info("source changed, restart rate-limited")
		return
	}

	reason := "source changed: " + paths[0]
	if len(paths) > 1 {
		reason = fmt.Sprintf("%s (+%d more)", reason, len(paths)-1)
	}
	log.Info("source changed, requesting restart")
	if err := w.restarter.RequestRestart(reason); err != nil {
		log.Error("restart request failed", "error", err)
	}
}

// Matches reports whether path, inside one of the roots, matches a pattern
// and lies outside every ignored directory.
func (w *Watcher) Matches(path string) bool {
	if w.ignored(path) {
		return false
	}
	for _, root := range w.cfg.Roots {
		rel, ok := within(root, path)
		if !ok {
			continue
		}
		for _, g := range w.patterns {
			if g.Match(rel) {
				return true
			}
		}
	}
	return false
}

// ignored checks name entries against the path's components below its root
// and absolute entries against the whole path.
func (w *Watcher) ignored(path string) bool {
	clean := filepath.Clean(path)
	parts := []string{filepath.Base(clean)}
	for _, root := range w.cfg.Roots {
		if rel, ok := within(root, clean); ok {
			parts = strings.Split(rel, "/")
			break
		}
	}

	for _, ig := range w.cfg.Ignore {
		if filepath.IsAbs(ig) {
			ig = filepath.Clean(ig)
			if clean == ig || strings.HasPrefix(clean, ig+string(filepath.Separator)) {
				return true
			}
			continue
		}
		for _, part := range parts {
			if part == ig {
				return true
			}
		}
	}
	return false
}

// within returns path relative to root, slash-separated, if it lies below it.
func within(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
