package app

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// RasterWatcher watches an image file and invokes a callback once writes to
// it settle. The parent directory is watched so files replaced by rename
// are still seen.
type RasterWatcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	log      logrus.FieldLogger

	mu       sync.Mutex
	onChange func(path string) // Called from the watcher goroutine
	stopCh   chan struct{}
	done     chan struct{}
}

// NewRasterWatcher creates a watcher for path. Symlinks are resolved so the
// real file is watched.
func NewRasterWatcher(path string, debounce time.Duration, log logrus.FieldLogger) (*RasterWatcher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	abs := resolvePath(path)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &RasterWatcher{
		path:     abs,
		debounce: debounce,
		watcher:  fw,
		log:      log.WithField("path", abs),
	}, nil
}

// Path returns the watched file.
func (w *RasterWatcher) Path() string { return w.path }

// Watches reports whether path names the watched file.
func (w *RasterWatcher) Watches(path string) bool {
	return resolvePath(path) == w.path
}

// OnChange sets the callback invoked after the file changes.
func (w *RasterWatcher) OnChange(callback func(path string)) {
	w.mu.Lock()
	w.onChange = callback
	w.mu.Unlock()
}

// Start begins watching in a background goroutine.
func (w *RasterWatcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopCh != nil {
		return
	}
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	go w.watchLoop(w.stopCh, w.done)
}

// Stop ends watching and releases the underlying watcher. It must not be
// called from the OnChange callback.
func (w *RasterWatcher) Stop() {
	w.mu.Lock()
	stopCh, done := w.stopCh, w.done
	w.stopCh = nil
	w.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}
	w.watcher.Close()
}

func (w *RasterWatcher) watchLoop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Stop()
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("File watcher error")

		case <-fire:
			fire = nil
			w.mu.Lock()
			cb := w.onChange
			w.mu.Unlock()
			if cb != nil {
				w.log.Debug("Image file changed")
				cb(w.path)
			}
		}
	}
}

func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}
