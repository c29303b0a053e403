package catalog

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change is a debounced modification of a catalog file.
type Change struct {
	File    string // Absolute path
	Removed bool
}

// Watcher monitors a catalog directory and its templates/ subdirectory.
// It only reports changes; the owner decides when to reload and flush.
type Watcher struct {
	Dir     string
	Changes <-chan Change // Read-only external channel

	changes  chan Change // Internal write channel
	done     chan struct{}
	watcher  *fsnotify.Watcher
	debounce time.Duration
}

// NewWatcher creates a watcher for the given catalog directory.
func NewWatcher(dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ch := make(chan Change, 16)
	return &Watcher{
		Dir:      dir,
		Changes:  ch,
		changes:  ch,
		done:     make(chan struct{}),
		watcher:  fw,
		debounce: 100 * time.Millisecond,
	}, nil
}

// Start begins watching. The templates/ subdirectory is watched too when it
// exists.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.Dir); err != nil {
		return err
	}
	// Optional; a catalog without templates is still valid.
	_ = w.watcher.Add(filepath.Join(w.Dir, TemplatesDir))

	go w.loop()
	return nil
}

// Stop closes the watcher and the Changes channel.
func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done
	close(w.changes)
}

func (w *Watcher) loop() {
	defer close(w.done)

	pending := make(map[string]fsnotify.Op)
	last := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				for file, op := range pending {
					w.emit(file, op)
				}
				return
			}
			if !IsCatalogFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[event.Name] = event.Op
				last[event.Name] = time.Now()
			}

		case <-ticker.C:
			now := time.Now()
			for file, op := range pending {
				if now.Sub(last[file]) >= w.debounce {
					w.emit(file, op)
					delete(pending, file)
					delete(last, file)
				}
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are non-fatal.
		}
	}
}

// emit never blocks: a full channel already guarantees the owner will reload.
func (w *Watcher) emit(file string, op fsnotify.Op) {
	select {
	case w.changes <- Change{File: file, Removed: op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename)}:
	default:
	}
}
