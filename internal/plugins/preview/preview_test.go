package preview

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/notecards/internal/config"
	"github.com/marcus/notecards/internal/event"
	"github.com/marcus/notecards/internal/plugin"
	"github.com/marcus/notecards/internal/surface"
)

func writeNote(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func testContext(root string) *plugin.Context {
	cfg := config.Default()
	cfg.UI.MarkdownTheme = "notty"
	return &plugin.Context{
		VaultDir: root,
		Config:   cfg,
		Logger:   slog.New(slog.DiscardHandler),
		Events:   event.New(),
		Services: plugin.NewServices(),
	}
}

func TestListNotes(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "b.md", "")
	writeNote(t, root, "a/c.md", "")
	writeNote(t, root, "a/readme.txt", "")
	writeNote(t, root, ".obsidian/x.md", "")
	writeNote(t, root, "node_modules/y.md", "")

	notes, err := ListNotes(root, []string{"node_modules"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a/c.md", "b.md"}
	if strings.Join(notes, ",") != strings.Join(want, ",") {
		t.Errorf("ListNotes = %v, want %v", notes, want)
	}
}

func TestListNotes_EmptyVault(t *testing.T) {
	notes, err := ListNotes(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if notes == nil || len(notes) != 0 {
		t.Errorf("ListNotes = %#v, want empty non-nil slice", notes)
	}
}

func TestPlugin_EmptyListingMessage(t *testing.T) {
	p := New("")
	if err := p.Init(testContext(t.TempDir())); err != nil {
		t.Fatal(err)
	}
	p.Update(notesLoadedMsg{Epoch: p.ctx.Epoch})
	if !strings.Contains(ansi.Strip(p.View(60, 10)), "no notes") {
		t.Error("a loaded listing without notes should report an empty vault")
	}
}

func TestResolveNote(t *testing.T) {
	notes := []string{"daily/today.md", "projects/alpha.md", "alpha.md", "x/dup.md", "y/dup.md"}
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"projects/alpha.md", "projects/alpha.md", true},
		{"projects/alpha", "projects/alpha.md", true},
		{"./daily/today.md", "daily/today.md", true},
		{"today", "daily/today.md", true},
		{"alpha", "alpha.md", true},
		{"dup", "", false},
		{"missing", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolveNote(notes, tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ResolveNote(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRenderer_RunsProcessors(t *testing.T) {
	ctx := testContext(t.TempDir())
	var (
		mu     sync.Mutex
		seen   []plugin.BlockContext
		bodies []string
	)
	err := ctx.RegisterCodeBlockProcessor("cards", func(_ context.Context, src string, el *surface.Element, bc plugin.BlockContext) {
		mu.Lock()
		seen = append(seen, bc)
		bodies = append(bodies, src)
		mu.Unlock()
		el.CreateChild("out", "CARDS-"+strings.TrimSpace(src))
	})
	if err != nil {
		t.Fatal(err)
	}

	note := "---\ntitle: x\n---\n# Heading\n\nSome prose.\n\n```cards\nLIST\n```\n\n```go\nfmt.Println()\n```\n\n```cards\nTABLE a\n```\n"
	r := NewRenderer(ctx, "notty")
	doc, err := r.Render(context.Background(), "n.md", []byte(note), 60, plugin.RenderManual)
	if err != nil {
		t.Fatal(err)
	}

	plain := ansi.Strip(doc.Output)
	for _, want := range []string{"Heading", "Some prose.", "CARDS-LIST", "CARDS-TABLE a", "fmt.Println()"} {
		if !strings.Contains(plain, want) {
			t.Errorf("output missing %q:\n%s", want, plain)
		}
	}
	if strings.Contains(plain, "title: x") {
		t.Error("frontmatter leaked into the preview")
	}
	if len(doc.Blocks) != 2 {
		t.Fatalf("got %d processed blocks, want 2", len(doc.Blocks))
	}
	if seen[0].Index != 0 || seen[1].Index != 1 {
		t.Errorf("block indexes = %d, %d", seen[0].Index, seen[1].Index)
	}
	if seen[0].Reason != plugin.RenderManual || seen[0].SourcePath != "n.md" {
		t.Errorf("block context = %+v", seen[0])
	}
	if bodies[0] != "LIST\n" {
		t.Errorf("block body = %q", bodies[0])
	}
}

func TestRenderer_Canceled(t *testing.T) {
	r := NewRenderer(testContext(t.TempDir()), "notty")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, "n.md", []byte("text\n"), 40, plugin.RenderInitial); err == nil {
		t.Error("expected cancellation error")
	}
}

// drain runs cmd and feeds resulting messages back into the plugin.
func drain(t *testing.T, p *Plugin, cmd tea.Cmd) {
	t.Helper()
	for i := 0; cmd != nil && i < 10; i++ {
		m := cmd()
		if batch, ok := m.(tea.BatchMsg); ok {
			for _, c := range batch {
				drain(t, p, c)
			}
			return
		}
		if m == nil {
			return
		}
		_, cmd = p.Update(m)
	}
}

func TestPlugin_OpensInitialNote(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "# Alpha\n")
	writeNote(t, root, "b.md", "# Beta\n")

	p := New("b")
	if err := p.Init(testContext(root)); err != nil {
		t.Fatal(err)
	}
	drain(t, p, p.Start())

	if got := p.FilePath(); got != "b.md" {
		t.Fatalf("FilePath = %q, want b.md", got)
	}
	if !strings.Contains(ansi.Strip(p.Output()), "Beta") {
		t.Errorf("output = %q", p.Output())
	}

	drain(t, p, p.step(1))
	if got := p.FilePath(); got != "a.md" {
		t.Errorf("after next: %q, want a.md (wraps)", got)
	}
}

func TestPlugin_EmptyVault(t *testing.T) {
	p := New("")
	if err := p.Init(testContext(t.TempDir())); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ansi.Strip(p.View(60, 10)), "loading notes") {
		t.Error("view before the first listing should say loading")
	}
	drain(t, p, p.Start())
	if p.HasNote() {
		t.Error("empty vault should have no open note")
	}
	if !strings.Contains(ansi.Strip(p.View(60, 10)), "no notes") {
		t.Error("empty vault view")
	}
}

func TestPlugin_StaleRenderDiscarded(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "first\n")
	p := New("")
	if err := p.Init(testContext(root)); err != nil {
		t.Fatal(err)
	}
	drain(t, p, p.Start())

	oldMsg := p.render(plugin.RenderAutomatic)()
	writeNote(t, root, "a.md", "second\n")
	newMsg := p.render(plugin.RenderAutomatic)()

	p.Update(newMsg)
	p.Update(oldMsg)
	if out := ansi.Strip(p.Output()); !strings.Contains(out, "second") {
		t.Errorf("older render replaced newer one: %q", out)
	}
}

func TestPlugin_RerenderPreviewSends(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "text\n")
	ctx := testContext(root)
	got := make(chan tea.Msg, 1)
	ctx.Send = func(m tea.Msg) { got <- m }

	p := New("")
	if err := p.Init(ctx); err != nil {
		t.Fatal(err)
	}
	p.RerenderPreview(true, plugin.RenderAutomatic)

	select {
	case m := <-got:
		rm, ok := m.(rerenderMsg)
		if !ok || !rm.Full || rm.Reason != plugin.RenderAutomatic {
			t.Errorf("sent %#v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("RerenderPreview sent nothing")
	}
}

func TestPlugin_PartialRerenderSkipsUnchanged(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "text\n")
	p := New("")
	if err := p.Init(testContext(root)); err != nil {
		t.Fatal(err)
	}
	drain(t, p, p.Start())

	if _, cmd := p.Update(rerenderMsg{Full: false, Reason: plugin.RenderAutomatic}); cmd != nil {
		t.Error("unchanged note re-rendered on a partial request")
	}
	if _, cmd := p.Update(rerenderMsg{Full: true, Reason: plugin.RenderAutomatic}); cmd == nil {
		t.Error("full request must re-render")
	}
}

func TestPlugin_OpenInEditor(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "text\n")
	t.Setenv("EDITOR", "nano")
	p := New("")
	if err := p.Init(testContext(root)); err != nil {
		t.Fatal(err)
	}
	drain(t, p, p.Start())

	m := p.openInEditor()()
	open, ok := m.(plugin.OpenFileMsg)
	if !ok || open.Editor != "nano" || open.Path != filepath.Join(root, "a.md") {
		t.Errorf("openInEditor = %#v", m)
	}
}
