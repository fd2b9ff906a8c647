package dataview

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 100 * time.Millisecond

// Watcher keeps an Index current as notes change on disk.
type Watcher struct {
	ix      *Index
	fsw     *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	timers  map[string]*time.Timer
	renamed string // last renamed-away path awaiting its Create
	stopped bool
}

// Watch starts watching the index root recursively.
func (ix *Index) Watch() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		ix:     ix,
		fsw:    fsw,
		done:   make(chan struct{}),
		timers: make(map[string]*time.Timer),
	}
	if err := w.addTree(ix.root); err != nil {
		fsw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.ix.root && w.ix.ignore[d.Name()] {
			return fs.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Log error but continue watching
			w.ix.logger.Warn("dataview: watcher error", "err", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !w.ix.ignore[filepath.Base(ev.Name)] {
				_ = w.addTree(ev.Name)
			}
			return
		}
	}
	if !isNote(ev.Name) {
		return
	}
	rel, err := w.ix.rel(ev.Name)
	if err != nil {
		return
	}

	switch {
	case ev.Op&fsnotify.Rename != 0:
		w.mu.Lock()
		w.renamed = rel
		w.mu.Unlock()
		w.schedule(rel, func() {
			w.mu.Lock()
			if w.renamed == rel {
				w.renamed = ""
			}
			w.mu.Unlock()
			w.ix.Remove(rel)
		})
	case ev.Op&fsnotify.Create != 0:
		w.mu.Lock()
		old := w.renamed
		w.renamed = ""
		if old != "" {
			if t, ok := w.timers[old]; ok {
				t.Stop()
				delete(w.timers, old)
			}
		}
		w.mu.Unlock()
		if old != "" && old != rel {
			w.schedule(rel, func() {
				if err := w.ix.Rename(old, rel); err != nil {
					w.ix.logger.Warn("dataview: rename failed", "from", old, "to", rel, "err", err)
				}
			})
			return
		}
		w.schedule(rel, func() { w.reindex(rel) })
	case ev.Op&fsnotify.Remove != 0:
		w.schedule(rel, func() { w.ix.Remove(rel) })
	case ev.Op&fsnotify.Write != 0:
		w.schedule(rel, func() { w.reindex(rel) })
	}
}

func (w *Watcher) reindex(rel string) {
	if _, err := w.ix.Reindex(rel); err != nil {
		w.ix.logger.Warn("dataview: reindex failed", "path", rel, "err", err)
	}
}

// schedule debounces work per path; editors often write a file several
// times in a row.
func (w *Watcher) schedule(rel string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.timers[rel]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		if w.stopped || w.timers[rel] != t {
			w.mu.Unlock()
			return
		}
		delete(w.timers, rel)
		w.mu.Unlock()
		fn()
	})
	w.timers[rel] = t
}

// Close stops watching and drops pending work.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = nil
	w.mu.Unlock()

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
