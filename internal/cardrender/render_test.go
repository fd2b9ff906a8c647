package cardrender

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/notecards/internal/blockconfig"
	"github.com/marcus/notecards/internal/dataview"
	"github.com/marcus/notecards/internal/surface"
)

func page(t *testing.T, path, content string) *dataview.Page {
	t.Helper()
	p, err := dataview.ParsePage(path, []byte(content), time.Unix(0, 0))
	if err != nil {
		t.Fatalf("ParsePage(%s): %v", path, err)
	}
	return p
}

func testPages(t *testing.T) dataview.PageList {
	return dataview.PageList{
		page(t, "projects/alpha.md", "---\ntitle: Alpha\nstatus: active\ncover: alpha.png\ntags: [work]\n---\nbody\n"),
		page(t, "projects/beta.md", "---\nstatus: done\n---\nbody #home\n"),
	}
}

func TestCardsFrom_PageList(t *testing.T) {
	on := true
	cfg := blockconfig.RenderConfig{Properties: []string{"status", "missing"}, ImageProperty: "cover", ShowTags: &on}
	cards, err := CardsFrom(testPages(t), cfg)
	if err != nil {
		t.Fatalf("CardsFrom: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("got %d cards, want 2", len(cards))
	}
	if cards[0].Title != "Alpha" || cards[0].Image != "alpha.png" {
		t.Errorf("card 0 = %+v", cards[0])
	}
	if cards[1].Title != "beta" {
		t.Errorf("card 1 title = %q, want file name", cards[1].Title)
	}
	if len(cards[0].Fields) != 1 || cards[0].Fields[0] != (Field{Key: "status", Value: "active"}) {
		t.Errorf("card 0 fields = %+v", cards[0].Fields)
	}
	if len(cards[1].Tags) != 1 || cards[1].Tags[0] != "home" {
		t.Errorf("card 1 tags = %v", cards[1].Tags)
	}
}

func TestCardsFrom_HideTags(t *testing.T) {
	off := false
	cards, err := CardsFrom(testPages(t), blockconfig.RenderConfig{ShowTags: &off})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cards {
		if len(c.Tags) != 0 {
			t.Errorf("%s: tags shown with showTags off", c.Path)
		}
	}
}

func TestCardsFrom_Table(t *testing.T) {
	pages := testPages(t)
	tbl := &dataview.Table{
		Headers: []string{"File", "status", "cover"},
		Rows: []dataview.Row{
			{Page: pages[0], Values: []any{"active", "alpha.png"}},
			{Page: pages[1], Values: []any{"done", nil}},
		},
	}
	cards, err := CardsFrom(tbl, blockconfig.RenderConfig{ImageProperty: "cover"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cards) != 2 {
		t.Fatalf("got %d cards", len(cards))
	}
	if len(cards[0].Fields) != 1 || cards[0].Fields[0].Key != "status" {
		t.Errorf("image column should not repeat as a field: %+v", cards[0].Fields)
	}
}

func TestCardsFrom_Unsupported(t *testing.T) {
	if _, err := CardsFrom("plain", blockconfig.RenderConfig{}); err == nil {
		t.Error("expected error for unsupported value")
	}
}

func TestRenderCards(t *testing.T) {
	r := New()
	el := surface.New("block")
	on := true
	cfg := blockconfig.RenderConfig{Columns: 2, Width: 60, Properties: []string{"status"}, ShowTags: &on}

	if err := r.RenderCards(el, testPages(t), cfg); err != nil {
		t.Fatalf("RenderCards: %v", err)
	}
	grid := el.Find(ClassGrid)
	if grid == nil {
		t.Fatal("no grid element")
	}
	text := grid.PlainText()
	for _, want := range []string{"Alpha", "beta", "status: active", "#work"} {
		if !strings.Contains(text, want) {
			t.Errorf("grid missing %q:\n%s", want, text)
		}
	}
	for _, line := range strings.Split(grid.Render(), "\n") {
		if w := ansi.StringWidth(line); w > 60 {
			t.Errorf("line width %d exceeds 60: %q", w, ansi.Strip(line))
		}
	}
	if c := el.Find(ClassCount); c == nil || !strings.Contains(c.PlainText(), "2 notes") {
		t.Errorf("count element missing or wrong")
	}
}

func TestRenderCards_EmptyUsesMessage(t *testing.T) {
	r := New()
	el := surface.New("block")
	if err := r.RenderCards(el, dataview.PageList{}, blockconfig.RenderConfig{EmptyMessage: "Nothing here"}); err != nil {
		t.Fatal(err)
	}
	empty := el.Find(ClassEmpty)
	if empty == nil || !strings.Contains(empty.PlainText(), "Nothing here") {
		t.Errorf("empty state not rendered: %q", el.PlainText())
	}
}

func TestGrid_CardHeight(t *testing.T) {
	cards := []Card{{
		Title:  "Tall",
		Fields: []Field{{"a", "1"}, {"b", "2"}, {"c", "3"}, {"d", "4"}},
	}}
	out := Grid(cards, blockconfig.RenderConfig{Columns: 1, Width: 40, CardHeight: 3})
	lines := strings.Split(out, "\n")
	// Three content lines plus top and bottom border.
	if len(lines) != 5 {
		t.Errorf("got %d lines, want 5:\n%s", len(lines), ansi.Strip(out))
	}
	if !strings.Contains(ansi.Strip(out), "…") {
		t.Error("truncated card should end with an ellipsis")
	}
}

func TestGrid_NarrowReducesColumns(t *testing.T) {
	cards := []Card{{Title: "a"}, {Title: "b"}, {Title: "c"}}
	out := Grid(cards, blockconfig.RenderConfig{Columns: 6, Width: 30})
	for _, line := range strings.Split(out, "\n") {
		if w := ansi.StringWidth(line); w > 30 {
			t.Errorf("line width %d exceeds 30", w)
		}
	}
}

func TestRenderError(t *testing.T) {
	r := New()
	el := surface.New("block")
	r.RenderError(el, "Query failed: bad syntax", "query: nope")
	if el.Find(ClassError) == nil {
		t.Fatal("no error element")
	}
	if el.Find(ClassSource) != nil {
		t.Error("source shown without debug")
	}

	r.SetDebug(true)
	el = surface.New("block")
	r.RenderError(el, "Query failed: bad syntax", "query: nope")
	src := el.Find(ClassSource)
	if src == nil {
		t.Fatal("debug mode should show the source")
	}
	if !strings.Contains(src.PlainText(), "nope") {
		t.Errorf("source text = %q", src.PlainText())
	}
}

func TestRenderWarning(t *testing.T) {
	el := surface.New("block")
	New().RenderWarning(el, "unknown field x")
	if w := el.Find(ClassWarning); w == nil || !strings.Contains(w.PlainText(), "unknown field x") {
		t.Error("warning not rendered")
	}
}
