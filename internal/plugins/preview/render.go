package preview

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/marcus/notecards/internal/markdown"
	"github.com/marcus/notecards/internal/plugin"
	"github.com/marcus/notecards/internal/styles"
	"github.com/marcus/notecards/internal/surface"
)

const minWrap = 20

// Renderer turns a note into terminal output. Prose goes through glamour;
// fenced blocks with a registered processor are handed to it.
type Renderer struct {
	ctx   *plugin.Context
	theme string

	mu    sync.Mutex
	md    *glamour.TermRenderer
	wrap  int
	mdErr error
}

// NewRenderer creates a renderer using the glamour style theme.
func NewRenderer(ctx *plugin.Context, theme string) *Renderer {
	if !styles.IsValidMarkdownTheme(theme) {
		theme = styles.CurrentMarkdownTheme
	}
	return &Renderer{ctx: ctx, theme: theme}
}

// Block is one processed fenced block of a rendered note.
type Block struct {
	Lang    string
	Index   int
	Line    int
	Element *surface.Element
}

// Document is a rendered note.
type Document struct {
	Path   string
	Output string
	Blocks []Block
}

// Render renders content, the text of the note at path, for width columns.
func (r *Renderer) Render(ctx context.Context, path string, content []byte, width int, reason plugin.RenderReason) (Document, error) {
	doc := Document{Path: path}
	body := string(markdown.StripFrontmatter(content))
	counts := make(map[string]int)

	var parts []string
	for _, seg := range markdown.Split(body) {
		if err := ctx.Err(); err != nil {
			return doc, err
		}
		if seg.Kind == markdown.Prose {
			parts = append(parts, r.prose(seg.Text, width))
			continue
		}

		fn, ok := r.processor(seg.Lang)
		if !ok {
			parts = append(parts, r.prose(fenced(seg), width))
			continue
		}

		idx := counts[seg.Lang]
		counts[seg.Lang]++
		el := surface.New("block-" + seg.Lang)
		fn(ctx, seg.Text, el, plugin.BlockContext{
			SourcePath: path,
			Index:      idx,
			Width:      max(minWrap, width-2),
			Reason:     reason,
		})
		doc.Blocks = append(doc.Blocks, Block{Lang: seg.Lang, Index: idx, Line: seg.Line, Element: el})
		if out := el.Render(); out != "" {
			parts = append(parts, " "+strings.ReplaceAll(out, "\n", "\n "))
		}
	}

	doc.Output = strings.Join(parts, "\n\n")
	return doc, nil
}

func (r *Renderer) processor(lang string) (plugin.CodeBlockProcessor, bool) {
	if r.ctx == nil || lang == "" {
		return nil, false
	}
	return r.ctx.CodeBlockProcessor(lang)
}

func fenced(seg markdown.Segment) string {
	return "```" + seg.Lang + "\n" + seg.Text + "```\n"
}

// prose renders markdown with glamour, falling back to the raw text.
func (r *Renderer) prose(text string, width int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	wrap := max(minWrap, width-4)
	if r.md == nil || r.wrap != wrap {
		r.md, r.mdErr = glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.theme),
			glamour.WithWordWrap(wrap),
			glamour.WithPreservedNewLines(),
		)
		r.wrap = wrap
	}
	if r.mdErr != nil {
		return strings.TrimRight(text, "\n")
	}
	out, err := r.md.Render(text)
	if err != nil {
		return strings.TrimRight(text, "\n")
	}
	return strings.Trim(out, "\n")
}

// RenderFile is Render for callers holding only a path, such as the
// headless render command.
func (r *Renderer) RenderFile(ctx context.Context, path string, read func(string) ([]byte, error), width int) (Document, error) {
	content, err := read(path)
	if err != nil {
		return Document{Path: path}, fmt.Errorf("read %s: %w", path, err)
	}
	return r.Render(ctx, path, content, width, plugin.RenderInitial)
}
