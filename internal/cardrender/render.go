package cardrender

import (
	"bytes"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"github.com/marcus/notecards/internal/blockconfig"
	"github.com/marcus/notecards/internal/styles"
	"github.com/marcus/notecards/internal/surface"
)

// Element classes produced by the renderer.
const (
	ClassGrid    = "cards-grid"
	ClassCount   = "cards-count"
	ClassEmpty   = "cards-empty"
	ClassError   = "cards-error"
	ClassSource  = "cards-error-source"
	ClassWarning = "cards-warning"
)

const (
	defaultWidth = 80
	gap          = 1
	// Border plus horizontal padding of styles.Card.
	cardChrome = 4
)

// Renderer draws cards, empty states and errors into surface elements.
type Renderer struct {
	debug atomic.Bool
}

// New creates a renderer.
func New() *Renderer {
	return &Renderer{}
}

// SetDebug toggles showing block source under errors.
func (r *Renderer) SetDebug(on bool) { r.debug.Store(on) }

// Debug reports whether debug output is on.
func (r *Renderer) Debug() bool { return r.debug.Load() }

// RenderCards renders data as a card grid into el.
func (r *Renderer) RenderCards(el *surface.Element, data any, cfg blockconfig.RenderConfig) error {
	cards, err := CardsFrom(data, cfg)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		r.RenderEmptyState(el, cfg.EmptyMessage)
		return nil
	}

	el.CreateChild(ClassGrid, Grid(cards, cfg))
	noun := "notes"
	if len(cards) == 1 {
		noun = "note"
	}
	el.CreateChild(ClassCount, styles.Muted.Render(strconv.Itoa(len(cards))+" "+noun))
	return nil
}

// Grid lays cards out in rows of cfg.Columns.
func Grid(cards []Card, cfg blockconfig.RenderConfig) string {
	width := cfg.Width
	if width <= 0 {
		width = defaultWidth
	}
	cols := max(1, cfg.Columns)
	// Narrow terminals get fewer columns rather than unreadable cards.
	for cols > 1 && (width-(cols-1)*gap)/cols < 16 {
		cols--
	}
	cardWidth := (width - (cols-1)*gap) / cols
	inner := max(1, cardWidth-cardChrome)

	var rows []string
	for start := 0; start < len(cards); start += cols {
		end := min(start+cols, len(cards))
		cells := make([]string, 0, cols*2)
		for i, c := range cards[start:end] {
			if i > 0 {
				cells = append(cells, strings.Repeat(" ", gap))
			}
			cells = append(cells, renderCard(c, inner, cfg.CardHeight))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderCard(c Card, inner, height int) string {
	lines := []string{styles.CardTitle.Render(fit(c.Title, inner))}
	if c.Image != "" {
		lines = append(lines, styles.CardImage.Render(fit("▣ "+c.Image, inner)))
	}
	for _, f := range c.Fields {
		key := fit(f.Key, inner/2)
		val := fit(f.Value, max(1, inner-runewidth.StringWidth(key)-2))
		lines = append(lines, styles.CardKey.Render(key+": ")+styles.CardValue.Render(val))
	}
	if len(c.Tags) > 0 {
		tags := make([]string, len(c.Tags))
		for i, t := range c.Tags {
			tags[i] = "#" + t
		}
		lines = append(lines, styles.CardTag.Render(fit(strings.Join(tags, " "), inner)))
	}

	if height > 0 && len(lines) > height {
		lines = lines[:height]
		last := ansi.Strip(lines[height-1])
		lines[height-1] = styles.Muted.Render(fit(last+" …", inner))
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return styles.Card.Width(inner + 2).Render(strings.Join(lines, "\n"))
}

// fit truncates plain text to width display columns.
func fit(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// RenderEmptyState renders an explicit empty result message.
func (r *Renderer) RenderEmptyState(el *surface.Element, message string) {
	if message == "" {
		message = "No notes found"
	}
	el.CreateChild(ClassEmpty, styles.BlockEmpty.Render(message))
}

// RenderError renders an in-block error. In debug mode the block source is
// shown below it, highlighted.
func (r *Renderer) RenderError(el *surface.Element, message, source string) {
	el.CreateChild(ClassError, styles.BlockError.Render(message))
	if !r.Debug() || strings.TrimSpace(source) == "" {
		return
	}
	el.CreateChild(ClassSource, highlight(source))
}

// RenderWarning renders a non-fatal diagnostic line.
func (r *Renderer) RenderWarning(el *surface.Element, message string) {
	el.CreateChild(ClassWarning, styles.BlockWarning.Render("! "+message))
}

func highlight(source string) string {
	var buf bytes.Buffer
	if err := quick.Highlight(&buf, source, "yaml", "terminal256", styles.CurrentSyntaxTheme); err != nil {
		return styles.Code.Render(source)
	}
	return strings.TrimRight(buf.String(), "\n")
}
