package dataview

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marcus/notecards/internal/event"
)

// ChangeKind classifies a metadata change.
type ChangeKind string

const (
	ChangeChanged ChangeKind = "changed"
	ChangeDeleted ChangeKind = "deleted"
	ChangeRenamed ChangeKind = "renamed"
)

// FileRef identifies the note a change applies to.
type FileRef struct {
	Path    string
	OldPath string // set for renames
}

// MetadataChange is published on TopicMetadataChange.
type MetadataChange struct {
	Kind ChangeKind
	File FileRef
}

// Dispatcher topics.
const (
	TopicMetadataChange = "dataview:metadata-change"
	TopicIndexReady     = "dataview:index-ready"
)

// Index holds the metadata of every note under a vault root.
type Index struct {
	root   string
	ignore map[string]bool
	store  *Store
	events *event.Dispatcher
	logger *slog.Logger

	mu    sync.RWMutex
	pages map[string]*Page

	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures an Index.
type Option func(*Index)

// WithStore caches parsed pages in s.
func WithStore(s *Store) Option {
	return func(ix *Index) { ix.store = s }
}

// WithEvents publishes changes on d instead of a private dispatcher.
func WithEvents(d *event.Dispatcher) Option {
	return func(ix *Index) {
		if d != nil {
			ix.events = d
		}
	}
}

// WithLogger sets the index logger.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.logger = l
		}
	}
}

// WithIgnore skips directories with the given base names.
func WithIgnore(names ...string) Option {
	return func(ix *Index) {
		for _, n := range names {
			ix.ignore[n] = true
		}
	}
}

// NewIndex creates an index over root. Call Scan to populate it.
func NewIndex(root string, opts ...Option) *Index {
	ix := &Index{
		root:   root,
		ignore: make(map[string]bool),
		events: event.New(),
		logger: slog.New(slog.DiscardHandler),
		pages:  make(map[string]*Page),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Root returns the vault directory.
func (ix *Index) Root() string {
	return ix.root
}

// IsReady reports whether the initial scan has finished.
func (ix *Index) IsReady() bool {
	select {
	case <-ix.ready:
		return true
	default:
		return false
	}
}

// WaitUntilReady blocks until the initial scan finishes, timeout elapses or
// ctx is done. It reports whether the index is ready.
func (ix *Index) WaitUntilReady(ctx context.Context, timeout time.Duration) bool {
	if ix.IsReady() {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ix.ready:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (ix *Index) markReady() {
	ix.readyOnce.Do(func() {
		close(ix.ready)
		ix.events.Publish(TopicIndexReady, struct{}{})
	})
}

// Scan indexes every note under the root in parallel and marks the index
// ready. Individual unreadable or malformed notes are logged and skipped.
func (ix *Index) Scan(ctx context.Context) error {
	start := time.Now()
	defer ix.markReady()

	var paths []string
	err := filepath.WalkDir(ix.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			ix.logger.Debug("dataview: walk error", "path", p, "err", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != ix.root && ix.ignore[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if isNote(p) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk vault: %w", err)
	}

	var mu sync.Mutex
	pages := make(map[string]*Page, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, abs := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := ix.load(abs)
			if err != nil {
				ix.logger.Warn("dataview: skipping note", "path", abs, "err", err)
				return nil
			}
			mu.Lock()
			pages[p.Path] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("scan vault: %w", err)
	}

	ix.mu.Lock()
	ix.pages = pages
	ix.mu.Unlock()

	ix.pruneStore(pages)
	ix.logger.Info("dataview: index ready", "pages", len(pages), "took", time.Since(start))
	return nil
}

// load reads a note and returns its page, reusing the cached parse when the
// content hash is unchanged.
func (ix *Index) load(abs string) (*Page, error) {
	rel, err := ix.rel(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	if ix.store != nil {
		if h, ok, err := ix.store.Hash(rel); err == nil && ok && h == ContentHash(content) {
			if cached, ok, err := ix.store.Get(rel); err == nil && ok {
				return cached, nil
			}
		}
	}

	p, err := ParsePage(rel, content, info.ModTime())
	if err != nil {
		return nil, err
	}
	if ix.store != nil {
		if err := ix.store.Put(p); err != nil {
			ix.logger.Warn("dataview: cache write failed", "path", rel, "err", err)
		}
	}
	return p, nil
}

func (ix *Index) pruneStore(pages map[string]*Page) {
	if ix.store == nil {
		return
	}
	cached, err := ix.store.Paths()
	if err != nil {
		ix.logger.Warn("dataview: list cache failed", "err", err)
		return
	}
	for _, p := range cached {
		if _, ok := pages[p]; !ok {
			_ = ix.store.Delete(p)
		}
	}
}

// Reindex re-reads one note. It reports whether its metadata changed and
// publishes a changed event when it did.
func (ix *Index) Reindex(relPath string) (bool, error) {
	relPath = filepath.ToSlash(relPath)
	abs := filepath.Join(ix.root, filepath.FromSlash(relPath))

	content, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return ix.Remove(relPath), nil
	}
	if err != nil {
		return false, fmt.Errorf("reindex %s: %w", relPath, err)
	}

	ix.mu.RLock()
	prev, had := ix.pages[relPath]
	ix.mu.RUnlock()
	if had && prev.Hash == ContentHash(content) {
		return false, nil
	}

	p, err := ix.load(abs)
	if err != nil {
		return false, fmt.Errorf("reindex %s: %w", relPath, err)
	}

	ix.mu.Lock()
	ix.pages[relPath] = p
	ix.mu.Unlock()

	ix.publish(ChangeChanged, FileRef{Path: relPath})
	return true, nil
}

// Remove drops a note from the index and reports whether it was present.
func (ix *Index) Remove(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	ix.mu.Lock()
	_, had := ix.pages[relPath]
	delete(ix.pages, relPath)
	ix.mu.Unlock()

	if ix.store != nil {
		_ = ix.store.Delete(relPath)
	}
	if had {
		ix.publish(ChangeDeleted, FileRef{Path: relPath})
	}
	return had
}

// Rename moves a note's metadata to a new path.
func (ix *Index) Rename(oldPath, newPath string) error {
	oldPath = filepath.ToSlash(oldPath)
	newPath = filepath.ToSlash(newPath)

	ix.mu.Lock()
	delete(ix.pages, oldPath)
	ix.mu.Unlock()
	if ix.store != nil {
		_ = ix.store.Delete(oldPath)
	}

	p, err := ix.load(filepath.Join(ix.root, filepath.FromSlash(newPath)))
	if err != nil {
		ix.publish(ChangeDeleted, FileRef{Path: oldPath})
		return fmt.Errorf("rename %s: %w", oldPath, err)
	}
	ix.mu.Lock()
	ix.pages[newPath] = p
	ix.mu.Unlock()

	ix.publish(ChangeRenamed, FileRef{Path: newPath, OldPath: oldPath})
	return nil
}

func (ix *Index) publish(kind ChangeKind, file FileRef) {
	ix.logger.Debug("dataview: metadata change", "kind", kind, "path", file.Path)
	ix.events.Publish(TopicMetadataChange, MetadataChange{Kind: kind, File: file})
}

// OnMetadataChange subscribes fn to metadata changes. The returned function
// unsubscribes.
func (ix *Index) OnMetadataChange(fn func(ChangeKind, FileRef)) func() {
	return event.Subscribe(ix.events, TopicMetadataChange, func(c MetadataChange) {
		fn(c.Kind, c.File)
	})
}

// Page returns the page for a vault-relative path.
func (ix *Index) Page(relPath string) (*Page, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, ok := ix.pages[filepath.ToSlash(relPath)]
	return p, ok
}

// Pages returns every page sorted by path.
func (ix *Index) Pages() []*Page {
	ix.mu.RLock()
	out := make([]*Page, 0, len(ix.pages))
	for _, p := range ix.pages {
		out = append(out, p)
	}
	ix.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (ix *Index) rel(abs string) (string, error) {
	rel, err := filepath.Rel(ix.root, abs)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the vault", abs)
	}
	return filepath.ToSlash(rel), nil
}

func isNote(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".md")
}
