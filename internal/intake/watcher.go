package intake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docmind/internal/extract"
	"github.com/fyrsmithlabs/docmind/internal/logging"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// DefaultDebounce is how long a file must stay quiet before it is submitted.
const DefaultDebounce = 2 * time.Second

// Watcher submits files written into group directories once they stop
// changing. Hidden files, unsupported extensions and names matched by an
// IgnoreFile are skipped.
type Watcher struct {
	submitter *Submitter
	dataDir   string
	debounce  time.Duration
	logger    *logging.Logger
	onSubmit  func(*Submission)

	watcher *fsnotify.Watcher
	ready   chan struct{}

	mu      sync.Mutex
	timers  map[string]*time.Timer
	watched map[string]bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// OnSubmit is called after every successful submission.
func OnSubmit(fn func(*Submission)) WatcherOption {
	return func(w *Watcher) { w.onSubmit = fn }
}

// NewWatcher creates a Watcher over data_dir.
func NewWatcher(submitter *Submitter, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	w := &Watcher{
		submitter: submitter,
		dataDir:   filepath.Clean(submitter.dataDir),
		debounce:  DefaultDebounce,
		logger:    submitter.logger.Named("watch"),
		watcher:   fw,
		ready:     make(chan struct{}),
		timers:    map[string]*time.Timer{},
		watched:   map[string]bool{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Ready is closed once the initial group directories are watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()

	if err := w.watcher.Add(w.dataDir); err != nil {
		close(w.ready)
		return fmt.Errorf("watching %s: %w", w.dataDir, err)
	}
	if err := w.refresh(ctx); err != nil {
		close(w.ready)
		return err
	}
	close(w.ready)
	w.logger.Info(ctx, "watching for uploads", zap.String("data_dir", w.dataDir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "watcher error", zap.Error(err))
		}
	}
}

// refresh adds a watch for every known group whose directory exists.
func (w *Watcher) refresh(ctx context.Context) error {
	groups, err := w.submitter.registry.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("listing groups: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, g := range groups {
		dir := filepath.Join(w.dataDir, g.Name)
		if w.watched[dir] {
			continue
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn(ctx, "failed to watch group directory", zap.String("group", g.Name), zap.Error(err))
			continue
		}
		w.watched[dir] = true
		w.logger.Debug(ctx, "watching group directory", zap.String("group", g.Name))
	}
	return nil
}

func (w *Watcher) isWatched(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watched[dir]
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	dir := filepath.Dir(event.Name)

	if dir == w.dataDir {
		if event.Has(fsnotify.Create) {
			if err := w.refresh(ctx); err != nil {
				w.logger.Warn(ctx, "failed to refresh group directories", zap.Error(err))
			}
		}
		return
	}
	if filepath.Dir(dir) != w.dataDir {
		return
	}

	group, file := filepath.Base(dir), filepath.Base(event.Name)
	if strings.HasPrefix(file, ".") {
		return
	}
	if _, err := extract.FormatOf(file); err != nil {
		w.logger.Debug(ctx, "ignoring unsupported file", zap.String("group", group), zap.String("file", file))
		return
	}
	if w.ignored(ctx, dir, file) {
		w.logger.Debug(ctx, "ignoring file matched by "+IgnoreFile, zap.String("group", group), zap.String("file", file))
		return
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.schedule(ctx, group, file, event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.cancel(event.Name)
	}
}

// ignored reads the ignore files on every call so edits apply immediately.
func (w *Watcher) ignored(ctx context.Context, groupDir, file string) bool {
	m, err := LoadMatcher(w.dataDir, groupDir)
	if err != nil {
		w.logger.Warn(ctx, "failed to read ignore file", zap.String("dir", groupDir), zap.Error(err))
		return false
	}
	return m.Match(file)
}

func (w *Watcher) schedule(ctx context.Context, group, file, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		sub, err := w.submitter.Submit(ctx, group, file)
		if err != nil {
			w.logger.Warn(ctx, "failed to submit upload",
				zap.String("group", group),
				zap.String("file", file),
				zap.Error(err),
			)
			return
		}
		if w.onSubmit != nil {
			w.onSubmit(sub)
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) close() {
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	_ = w.watcher.Close()
}
