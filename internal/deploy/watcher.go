package deploy

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for changes to settle
const DefaultDebounce = 100 * time.Millisecond

// Watcher re-runs a Loader when Go sources or go.mod change. It only
// regenerates the output tree; reloading a running server is up to the
// caller.
type Watcher struct {
	loader    *Loader
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	logger    *zap.Logger
	onBuild   func(*Result, error)
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewWatcher creates a watcher for the loader's source tree. onBuild is
// called after every rebuild.
func NewWatcher(loader *Loader, debounce time.Duration, onBuild func(*Result, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		loader:    loader,
		watcher:   fsw,
		debouncer: NewDebouncer(debounce),
		logger:    loader.logger,
		onBuild:   onBuild,
		stopChan:  make(chan struct{}),
	}
	w.debouncer.SetCallback(w.rebuild)
	return w, nil
}

// Start watches every directory of the source tree
func (w *Watcher) Start() error {
	src, err := filepath.Abs(w.loader.opts.SourceDir)
	if err != nil {
		return err
	}
	out, err := filepath.Abs(w.loader.opts.OutputDir)
	if err != nil {
		return err
	}

	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != src && (p == out || skipDir(d.Name())) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", p, err)
		}
		w.logger.Debug("watching directory", zap.String("dir", p))
		return nil
	})
	if err != nil {
		return err
	}

	w.wg.Add(1)
	go w.watch(out)
	return nil
}

// Stop stops the watcher and waits for its loop to exit
func (w *Watcher) Stop() error {
	select {
	case <-w.stopChan:
		return nil
	default:
		close(w.stopChan)
	}

	w.wg.Wait()
	w.debouncer.Stop()
	return w.watcher.Close()
}

func (w *Watcher) watch(out string) {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event, out)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event, out string) {
	if strings.HasPrefix(event.Name, out) {
		return
	}
	if event.Op&fsnotify.Create == fsnotify.Create {
		// new package directories have to be added explicitly
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !skipDir(info.Name()) {
			if err := w.watcher.Add(event.Name); err == nil {
				w.logger.Debug("watching directory", zap.String("dir", event.Name))
			}
		}
	}
	if !Relevant(event.Name) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.logger.Debug("source changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
	w.debouncer.Add(event.Name)
}

func (w *Watcher) rebuild(files []string) {
	sort.Strings(files)
	w.logger.Info("rebuilding", zap.Strings("changed", files))

	res, err := w.loader.Load(context.Background())
	if err != nil {
		w.logger.Error("rebuild failed", zap.Error(err))
	}
	if w.onBuild != nil {
		w.onBuild(res, err)
	}
}

// Relevant reports whether a changed file can affect the deployment
func Relevant(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || isGenerated(base) {
		return false
	}
	return base == "go.mod" || strings.HasSuffix(base, ".go")
}

// Debouncer collects changed files and calls back once they settle
type Debouncer struct {
	duration time.Duration
	timer    *time.Timer
	files    map[string]struct{}
	mutex    sync.Mutex
	callback func([]string)
	stopped  bool
}

// NewDebouncer creates a new debouncer instance
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
		files:    make(map[string]struct{}),
	}
}

// Add records a file and restarts the quiet period
func (d *Debouncer) Add(file string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}
	d.files[file] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

// flush hands the collected files to the callback outside the lock
func (d *Debouncer) flush() {
	d.mutex.Lock()
	if len(d.files) == 0 || d.stopped {
		d.mutex.Unlock()
		return
	}
	files := make([]string, 0, len(d.files))
	for file := range d.files {
		files = append(files, file)
	}
	d.files = make(map[string]struct{})
	callback := d.callback
	d.mutex.Unlock()

	if callback != nil {
		callback(files)
	}
}

// SetCallback sets the callback function
func (d *Debouncer) SetCallback(callback func([]string)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.callback = callback
}

// Stop cancels a pending flush
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.stopped = true
}
