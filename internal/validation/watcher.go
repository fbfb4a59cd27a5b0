package validation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"gdcore/internal/logging"
)

// Watcher monitors config directories and feeds changed XML files through
// the engine's incremental fast path. Rapid save bursts from editors are
// debounced per path.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	engine      *Engine
	onReport    func(path string, report *Report)
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	log         *zap.Logger
}

// NewWatcher creates a watcher over the given roots (each watched
// recursively). onReport receives the incremental report for every changed
// file.
func NewWatcher(engine *Engine, roots []string, onReport func(string, *Report)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:     fsw,
		engine:      engine,
		onReport:    onReport,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		log:         logging.Get(logging.CategoryWatch),
	}

	for _, root := range roots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return fsw.Add(path)
			}
			return nil
		})
		if err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Start begins processing events. Non-blocking; Stop shuts the loop down.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.loop(ctx)
}

// Stop shuts down the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	flushTicker := time.NewTicker(100 * time.Millisecond)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		case <-flushTicker.C:
			w.flushSettled(ctx)
		}
	}
}

// handleEvent queues XML changes for debounced processing. Each event
// pushes the path's settle time out, so a truncate-then-write editor save
// is validated once, after the last write, never mid-burst.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.EqualFold(filepath.Ext(event.Name), ".xml") {
		// New subdirectories join the watch set.
		if event.Op&fsnotify.Create != 0 {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				_ = w.watcher.Add(event.Name)
			}
		}
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// flushSettled validates every queued path whose last event has settled
// past the debounce window.
func (w *Watcher) flushSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, last := range w.debounceMap {
		if now.Sub(last) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		w.validatePath(ctx, path)
	}
}

func (w *Watcher) validatePath(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Deleted between the event and the flush.
			return
		}
		w.log.Warn("changed file unreadable", zap.String("path", path), zap.Error(err))
		return
	}

	report, err := w.engine.ValidateFileChange(ctx, path, data)
	if err != nil {
		w.log.Warn("incremental validation failed",
			zap.String("path", path), zap.Error(err))
		return
	}
	w.log.Debug("incremental validation",
		zap.String("path", path),
		zap.Int("errors", report.Errors),
		zap.Int("warnings", report.Warnings))
	if w.onReport != nil {
		w.onReport(path, report)
	}
}
