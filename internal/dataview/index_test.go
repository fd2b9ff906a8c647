package dataview

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNote(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0644))
}

func newVault(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeNote(t, root, "projects/alpha.md", "---\nstatus: active\npriority: 2\ntags: [project]\n---\n# Alpha\n")
	writeNote(t, root, "projects/beta.md", "---\nstatus: done\npriority: 1\ntags: [project]\n---\n# Beta\n")
	writeNote(t, root, "projects/gamma.md", "---\nstatus: active\npriority: 3\n---\n#project\n")
	writeNote(t, root, "journal/today.md", "mood:: good\n")
	writeNote(t, root, ".obsidian/config.md", "ignored")
	writeNote(t, root, "readme.txt", "not a note")
	return root
}

type recorder struct {
	mu      sync.Mutex
	changes []MetadataChange
}

func (r *recorder) record(kind ChangeKind, file FileRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, MetadataChange{Kind: kind, File: file})
}

func (r *recorder) snapshot() []MetadataChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MetadataChange(nil), r.changes...)
}

func TestIndex_Scan(t *testing.T) {
	root := newVault(t)
	ix := NewIndex(root, WithIgnore(".obsidian"))

	assert.False(t, ix.IsReady())
	require.NoError(t, ix.Scan(context.Background()))
	assert.True(t, ix.IsReady())

	var paths []string
	for _, p := range ix.Pages() {
		paths = append(paths, p.Path)
	}
	assert.Equal(t, []string{"journal/today.md", "projects/alpha.md", "projects/beta.md", "projects/gamma.md"}, paths)

	p, ok := ix.Page("journal/today.md")
	require.True(t, ok)
	assert.Equal(t, "good", p.Inline["mood"])
}

func TestIndex_WaitUntilReady(t *testing.T) {
	ix := NewIndex(t.TempDir())

	start := time.Now()
	assert.False(t, ix.WaitUntilReady(context.Background(), 30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = ix.Scan(context.Background())
	}()
	assert.True(t, ix.WaitUntilReady(context.Background(), time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, ix.WaitUntilReady(ctx, time.Second), "ready index returns immediately")
}

func TestIndex_ReindexEmitsOnlyOnChange(t *testing.T) {
	root := newVault(t)
	ix := NewIndex(root)
	require.NoError(t, ix.Scan(context.Background()))

	rec := &recorder{}
	unsub := ix.OnMetadataChange(rec.record)
	defer unsub()

	changed, err := ix.Reindex("projects/alpha.md")
	require.NoError(t, err)
	assert.False(t, changed, "unchanged content must not emit")

	writeNote(t, root, "projects/alpha.md", "---\nstatus: done\n---\n")
	changed, err = ix.Reindex("projects/alpha.md")
	require.NoError(t, err)
	assert.True(t, changed)

	p, _ := ix.Page("projects/alpha.md")
	assert.Equal(t, "done", p.Frontmatter["status"])

	require.NoError(t, os.Remove(filepath.Join(root, "projects", "alpha.md")))
	changed, err = ix.Reindex("projects/alpha.md")
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, []MetadataChange{
		{Kind: ChangeChanged, File: FileRef{Path: "projects/alpha.md"}},
		{Kind: ChangeDeleted, File: FileRef{Path: "projects/alpha.md"}},
	}, rec.snapshot())
}

func TestIndex_Rename(t *testing.T) {
	root := newVault(t)
	ix := NewIndex(root)
	require.NoError(t, ix.Scan(context.Background()))

	rec := &recorder{}
	ix.OnMetadataChange(rec.record)

	require.NoError(t, os.Rename(filepath.Join(root, "projects", "beta.md"), filepath.Join(root, "projects", "b.md")))
	require.NoError(t, ix.Rename("projects/beta.md", "projects/b.md"))

	_, ok := ix.Page("projects/beta.md")
	assert.False(t, ok)
	_, ok = ix.Page("projects/b.md")
	assert.True(t, ok)
	assert.Equal(t, []MetadataChange{
		{Kind: ChangeRenamed, File: FileRef{Path: "projects/b.md", OldPath: "projects/beta.md"}},
	}, rec.snapshot())
}

func TestIndex_StoreReusesCachedPages(t *testing.T) {
	root := newVault(t)
	store, err := OpenStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer store.Close()

	first := NewIndex(root, WithStore(store), WithIgnore(".obsidian"))
	require.NoError(t, first.Scan(context.Background()))

	paths, err := store.Paths()
	require.NoError(t, err)
	assert.Len(t, paths, 4)

	// Remove a note between runs; the cache entry must be pruned.
	require.NoError(t, os.Remove(filepath.Join(root, "journal", "today.md")))

	second := NewIndex(root, WithStore(store), WithIgnore(".obsidian"))
	require.NoError(t, second.Scan(context.Background()))

	p, ok := second.Page("projects/alpha.md")
	require.True(t, ok)
	assert.Equal(t, "active", p.Frontmatter["status"])

	paths, err = store.Paths()
	require.NoError(t, err)
	assert.NotContains(t, paths, "journal/today.md")
}

func TestWatcher_ReindexesOnWrite(t *testing.T) {
	root := newVault(t)
	ix := NewIndex(root)
	require.NoError(t, ix.Scan(context.Background()))

	rec := &recorder{}
	ix.OnMetadataChange(rec.record)

	w, err := ix.Watch()
	require.NoError(t, err)
	defer w.Close()

	writeNote(t, root, "projects/gamma.md", "---\nstatus: paused\n---\n")

	require.Eventually(t, func() bool {
		p, ok := ix.Page("projects/gamma.md")
		return ok && p.Frontmatter["status"] == "paused"
	}, 2*time.Second, 20*time.Millisecond)

	changes := rec.snapshot()
	require.NotEmpty(t, changes)
	assert.Equal(t, ChangeChanged, changes[0].Kind)
	assert.Equal(t, "projects/gamma.md", changes[0].File.Path)
}

func TestWatcher_NewDirectory(t *testing.T) {
	root := newVault(t)
	ix := NewIndex(root)
	require.NoError(t, ix.Scan(context.Background()))

	w, err := ix.Watch()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "areas"), 0755))
	time.Sleep(50 * time.Millisecond) // let the watcher add the new directory
	writeNote(t, root, "areas/health.md", "---\nstatus: active\n---\n")

	require.Eventually(t, func() bool {
		_, ok := ix.Page("areas/health.md")
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}
