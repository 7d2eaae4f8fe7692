package hooks

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dwalleck/cyril/logger"
	"github.com/fsnotify/fsnotify"
)

// Source supplies the registry to use for a call. Callers read it once per
// call so both phases of the call see the same hooks.
type Source interface {
	Registry() *Registry
}

// Static is a Source over a fixed registry.
type Static struct {
	r *Registry
}

// NewStatic wraps r. A nil registry runs no hooks.
func NewStatic(r *Registry) Static { return Static{r: r} }

func (s Static) Registry() *Registry { return s.r }

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before reloading.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads the hooks file when it changes and swaps the live
// registry. A failed reload keeps the previous registry.
type Watcher struct {
	path     string
	opts     Options
	debounce time.Duration
	current  atomic.Pointer[Registry]

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher loads path once and returns a watcher serving that registry.
// The initial load must succeed.
func NewWatcher(path string, opts Options) (*Watcher, error) {
	reg, err := Load(path, opts)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     filepath.Clean(path),
		opts:     opts,
		debounce: DefaultDebounce,
	}
	w.current.Store(reg)
	return w, nil
}

// Registry returns the live registry.
func (w *Watcher) Registry() *Registry { return w.current.Load() }

// Path returns the watched hooks file.
func (w *Watcher) Path() string { return w.path }

// Reload re-reads the hooks file and swaps the registry on success.
func (w *Watcher) Reload() error {
	reg, err := Load(w.path, w.opts)
	if err != nil {
		return err
	}
	w.current.Store(reg)
	return nil
}

// Start begins watching the directory holding the hooks file. Watching the
// directory catches editors that replace the file by rename.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create hooks watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.fsw = fsw
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(ctx, fsw, w.stopCh, w.doneCh)

	logger.WithComponent("hooks").Info("watching hooks file", "path", w.path)
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stopCh, doneCh, fsw := w.stopCh, w.doneCh, w.fsw
	w.fsw = nil
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
	if err := fsw.Close(); err != nil {
		logger.WithComponent("hooks").Error("error closing hooks watcher", "error", err)
	}
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	log := logger.WithComponent("hooks")

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("hooks file event", "op", ev.Op.String())
			pending = time.After(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			log.Error("hooks watcher error", "error", err)

		case <-pending:
			pending = nil
			if err := w.Reload(); err != nil {
				log.Error("hooks reload failed, keeping previous hooks", "error", err)
				continue
			}
			log.Info("hooks reloaded", "count", w.Registry().Len())
		}
	}
}
