package teamconfig

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/teamrun/internal/event"
)

// DefaultDebounce is how long a Watcher waits for filesystem activity to
// settle before reloading.
const DefaultDebounce = 100 * time.Millisecond

// ReloadFunc receives the result of each reload. err is non-nil only when
// the directory itself could not be read.
type ReloadFunc func(DirectoryResult, error)

// Watcher reloads a config directory whenever a recognized file in it
// changes. Watching uses the OS filesystem notifications, so the loader
// should be backed by the OS filesystem.
type Watcher struct {
	loader   *Loader
	dir      string
	onReload ReloadFunc
	debounce time.Duration

	fsw       *fsnotify.Watcher
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// Watch starts watching dir. onReload runs on the watcher goroutine.
// A debounce of zero uses DefaultDebounce.
func (l *Loader) Watch(dir string, debounce time.Duration, onReload ReloadFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		loader:   l,
		dir:      dir,
		onReload: onReload,
		debounce: debounce,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(ev.Name)
	if _, ok := FormatForPath(name); !ok {
		return false
	}
	return w.loader.match == nil || w.loader.match.Match(name)
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	// Editors emit several events per save; reload once they settle.
	timer := time.NewTimer(0)
	<-timer.C
	pending := false

	for {
		select {
		case <-w.stopCh:
			timer.Stop()
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			pending = true
			timer.Reset(w.debounce)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.loader.logger.Warn("config watcher error", "dir", w.dir, "error", err.Error())
		}
	}
}

func (w *Watcher) reload() {
	res, err := w.loader.LoadDirectory(w.dir)
	if err == nil {
		w.loader.bus.Publish(event.NewConfigReloadedEvent(w.dir, len(res.Succeeded), len(res.Failed)))
	}
	if w.onReload != nil {
		w.onReload(res, err)
	}
}

// Close stops the watcher and waits for its goroutine to exit. It is safe
// to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopCh)
		err = w.fsw.Close()
		<-w.doneCh
	})
	return err
}
