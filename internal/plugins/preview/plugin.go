// Package preview is the markdown view: it shows one note at a time and runs
// the registered code block processors over its fenced blocks.
package preview

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/notecards/internal/msg"
	"github.com/marcus/notecards/internal/plugin"
	"github.com/marcus/notecards/internal/state"
	"github.com/marcus/notecards/internal/styles"
)

const (
	pluginID   = "preview"
	pluginName = "preview"
	pluginIcon = "V"

	renderTimeout = 30 * time.Second
)

// notesLoadedMsg carries the vault's note list.
type notesLoadedMsg struct {
	Epoch uint64
	Notes []string
	Err   error
}

// GetEpoch implements plugin.EpochMessage.
func (m notesLoadedMsg) GetEpoch() uint64 { return m.Epoch }

// rerenderMsg asks the plugin to render the open note again.
type rerenderMsg struct {
	Full   bool
	Reason plugin.RenderReason
}

// renderedMsg delivers a finished rendering.
type renderedMsg struct {
	Epoch  uint64
	Seq    uint64
	Path   string
	Hash   uint64
	Doc    Document
	Reason plugin.RenderReason
	Err    error
}

// GetEpoch implements plugin.EpochMessage.
func (m renderedMsg) GetEpoch() uint64 { return m.Epoch }

// Plugin shows the open note.
type Plugin struct {
	ctx      *plugin.Context
	focused  bool
	renderer *Renderer
	viewport viewport.Model
	width    int
	height   int

	mu      sync.RWMutex
	note    string
	notes   []string
	loaded  bool // set once the first listing arrived
	initial string

	seq       uint64
	lastHash  uint64
	rendering bool
	doc       Document
	err       error
	restoreY  int
}

// New creates a preview plugin. initial, if set, is opened instead of the
// last viewed note.
func New(initial string) *Plugin {
	return &Plugin{
		initial:  initial,
		viewport: viewport.New(0, 0),
	}
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string { return pluginID }

// Name returns the plugin display name.
func (p *Plugin) Name() string { return pluginName }

// Icon returns the plugin icon character.
func (p *Plugin) Icon() string { return pluginIcon }

// Init prepares the note renderer.
func (p *Plugin) Init(ctx *plugin.Context) error {
	p.ctx = ctx
	p.renderer = NewRenderer(ctx, ctx.Config.UI.MarkdownTheme)
	return nil
}

// Start lists the vault's notes.
func (p *Plugin) Start() tea.Cmd {
	return p.loadNotes()
}

func (p *Plugin) loadNotes() tea.Cmd {
	root := p.ctx.VaultDir
	ignore := p.ctx.Config.Vault.Ignore
	epoch := p.ctx.Epoch
	return func() tea.Msg {
		notes, err := ListNotes(root, ignore)
		return notesLoadedMsg{Epoch: epoch, Notes: notes, Err: err}
	}
}

// Stop remembers the open note and scroll position.
func (p *Plugin) Stop() {
	note := p.FilePath()
	if note == "" {
		return
	}
	state.SetPreviewScroll(note, p.viewport.YOffset)
	if err := state.SetLastNote(note); err != nil && p.ctx.Logger != nil {
		p.ctx.Logger.Warn("preview: save state", "err", err)
	}
}

// FilePath returns the vault-relative path of the open note.
func (p *Plugin) FilePath() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.note
}

// HasNote reports whether a note is open.
func (p *Plugin) HasNote() bool {
	return p.FilePath() != ""
}

// RerenderPreview schedules a new rendering of the open note. It is safe to
// call from any goroutine.
func (p *Plugin) RerenderPreview(full bool, reason plugin.RenderReason) {
	if p.ctx == nil || p.ctx.Send == nil {
		return
	}
	go p.ctx.Send(rerenderMsg{Full: full, Reason: reason})
}

// Output returns the current rendering.
func (p *Plugin) Output() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.doc.Output
}

// Open switches to note and renders it.
func (p *Plugin) Open(note string) tea.Cmd {
	prev := p.FilePath()
	if prev != "" && prev != note {
		state.SetPreviewScroll(prev, p.viewport.YOffset)
	}

	p.mu.Lock()
	p.note = note
	p.lastHash = 0
	p.doc = Document{}
	p.err = nil
	p.mu.Unlock()

	p.restoreY = state.GetPreviewScroll(note)
	p.viewport.SetContent("")
	p.viewport.GotoTop()
	if err := state.SetLastNote(note); err != nil && p.ctx.Logger != nil {
		p.ctx.Logger.Debug("preview: save last note", "err", err)
	}
	return p.render(plugin.RenderInitial)
}

// render starts an asynchronous rendering. Results of older renderings are
// discarded when they arrive.
func (p *Plugin) render(reason plugin.RenderReason) tea.Cmd {
	note := p.FilePath()
	if note == "" || p.renderer == nil {
		return nil
	}
	p.seq++
	p.rendering = true
	seq, epoch := p.seq, p.ctx.Epoch
	width := p.contentWidth()
	abs := filepath.Join(p.ctx.VaultDir, filepath.FromSlash(note))
	r := p.renderer

	return func() tea.Msg {
		content, err := os.ReadFile(abs)
		if err != nil {
			return renderedMsg{Epoch: epoch, Seq: seq, Path: note, Reason: reason, Err: err}
		}
		ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
		defer cancel()
		doc, err := r.Render(ctx, note, content, width, reason)
		return renderedMsg{Epoch: epoch, Seq: seq, Path: note, Hash: xxhash.Sum64(content), Doc: doc, Reason: reason, Err: err}
	}
}

func (p *Plugin) contentWidth() int {
	if p.width <= 0 {
		return 80
	}
	return p.width
}

// Update handles messages.
func (p *Plugin) Update(m tea.Msg) (plugin.Plugin, tea.Cmd) {
	switch m := m.(type) {
	case notesLoadedMsg:
		if plugin.IsStale(p.ctx, m) {
			return p, nil
		}
		if m.Err != nil {
			p.ctx.Logger.Error("preview: list notes", "err", m.Err)
			return p, msg.ShowError("Cannot list notes: "+m.Err.Error(), 4*time.Second)
		}
		p.mu.Lock()
		p.notes = m.Notes
		p.loaded = true
		p.mu.Unlock()
		if p.HasNote() {
			return p, nil
		}
		return p, p.openInitial()

	case rerenderMsg:
		if !p.HasNote() {
			return p, nil
		}
		if !m.Full && !p.changedOnDisk() {
			return p, nil
		}
		return p, p.render(m.Reason)

	case renderedMsg:
		if plugin.IsStale(p.ctx, m) || m.Seq != p.seq || m.Path != p.FilePath() {
			return p, nil
		}
		p.rendering = false
		p.applyRender(m)
		return p, nil

	case tea.WindowSizeMsg:
		widthChanged := m.Width != p.width
		p.width, p.height = m.Width, m.Height
		p.viewport.Width = m.Width
		p.viewport.Height = max(1, m.Height-1)
		if widthChanged && p.HasNote() {
			return p, p.render(plugin.RenderInitial)
		}
		return p, nil

	case tea.KeyMsg:
		if !p.focused {
			return p, nil
		}
		var cmd tea.Cmd
		p.viewport, cmd = p.viewport.Update(m)
		return p, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		p.viewport, cmd = p.viewport.Update(m)
		return p, cmd
	}
	return p, nil
}

func (p *Plugin) openInitial() tea.Cmd {
	p.mu.RLock()
	notes := p.notes
	p.mu.RUnlock()
	if len(notes) == 0 {
		return nil
	}

	if p.initial != "" {
		if note, ok := ResolveNote(notes, p.initial); ok {
			return p.Open(note)
		}
		p.ctx.Logger.Warn("preview: note not found", "note", p.initial)
		return tea.Batch(msg.ShowError("Note not found: "+p.initial, 3*time.Second), p.Open(notes[0]))
	}
	if last, ok := ResolveNote(notes, state.GetLastNote()); ok {
		return p.Open(last)
	}
	return p.Open(notes[0])
}

// changedOnDisk reports whether the open note's bytes differ from the last
// rendering.
func (p *Plugin) changedOnDisk() bool {
	note := p.FilePath()
	content, err := os.ReadFile(filepath.Join(p.ctx.VaultDir, filepath.FromSlash(note)))
	if err != nil {
		return true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return xxhash.Sum64(content) != p.lastHash
}

func (p *Plugin) applyRender(m renderedMsg) {
	p.mu.Lock()
	p.err = m.Err
	if m.Err == nil {
		p.doc = m.Doc
		p.lastHash = m.Hash
	}
	p.mu.Unlock()

	if m.Err != nil {
		p.ctx.Logger.Error("preview: render", "note", m.Path, "err", m.Err)
		p.viewport.SetContent(styles.BlockError.Render("Cannot render " + m.Path + ": " + m.Err.Error()))
		return
	}

	y := p.viewport.YOffset
	p.viewport.SetContent(m.Doc.Output)
	if p.restoreY > 0 {
		y, p.restoreY = p.restoreY, 0
	}
	p.viewport.SetYOffset(y)
	p.ctx.Logger.Debug("preview: rendered", "note", m.Path, "blocks", len(m.Doc.Blocks), "reason", m.Reason)
}

// View renders the note header and the scrolled note.
func (p *Plugin) View(width, height int) string {
	if p.viewport.Width != width || p.viewport.Height != max(1, height-1) {
		p.viewport.Width = width
		p.viewport.Height = max(1, height-1)
	}

	note := p.FilePath()
	var header string
	switch {
	case note == "":
		p.mu.RLock()
		empty := p.loaded && len(p.notes) == 0
		p.mu.RUnlock()
		if empty {
			header = styles.Muted.Render("no notes in " + p.ctx.VaultDir)
		} else {
			header = styles.Muted.Render("loading notes...")
		}
		return lipgloss.NewStyle().Width(width).Height(height).Render(header)
	default:
		pos := fmt.Sprintf(" %d%%", int(p.viewport.ScrollPercent()*100))
		status := ""
		if p.rendering {
			status = styles.StatusPending.Render(" rendering")
		}
		title := ansi.Truncate(note, max(1, width-ansi.StringWidth(pos)-12), "…")
		header = styles.PanelHeader.Render(title) + status + styles.Muted.Render(pos)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, p.viewport.View())
}

// IsFocused returns whether the plugin is focused.
func (p *Plugin) IsFocused() bool { return p.focused }

// SetFocused sets the focus state.
func (p *Plugin) SetFocused(f bool) { p.focused = f }

// FocusContext returns the keymap context.
func (p *Plugin) FocusContext() string { return pluginID }

// Commands returns the available commands.
func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{ID: "next-note", Name: "Next", Description: "Open the next note", Category: plugin.CategoryNavigation, Context: pluginID, Priority: 2, Handler: func() tea.Cmd { return p.step(1) }},
		{ID: "prev-note", Name: "Prev", Description: "Open the previous note", Category: plugin.CategoryNavigation, Context: pluginID, Priority: 2, Handler: func() tea.Cmd { return p.step(-1) }},
		{ID: "reload-note", Name: "Reload", Description: "Reload the note and its note list", Category: plugin.CategoryActions, Context: pluginID, Priority: 3, Handler: p.reload},
		{ID: "copy-path", Name: "Yank", Description: "Copy the note path", Category: plugin.CategoryActions, Context: pluginID, Priority: 4, Handler: p.copyPath},
		{ID: "open-in-editor", Name: "Edit", Description: "Open the note in $EDITOR", Category: plugin.CategoryEdit, Context: pluginID, Priority: 3, Handler: p.openInEditor},
	}
}

// step moves to the note delta positions away, wrapping around.
func (p *Plugin) step(delta int) tea.Cmd {
	p.mu.RLock()
	notes := p.notes
	cur := p.note
	p.mu.RUnlock()
	if len(notes) == 0 {
		return nil
	}
	idx := 0
	for i, n := range notes {
		if n == cur {
			idx = (i + delta + len(notes)) % len(notes)
			break
		}
	}
	return p.Open(notes[idx])
}

func (p *Plugin) reload() tea.Cmd {
	return tea.Batch(p.loadNotes(), p.render(plugin.RenderManual))
}

func (p *Plugin) copyPath() tea.Cmd {
	note := p.FilePath()
	if note == "" {
		return nil
	}
	abs := filepath.Join(p.ctx.VaultDir, filepath.FromSlash(note))
	return func() tea.Msg {
		if err := clipboard.WriteAll(abs); err != nil {
			return msg.ToastMsg{Message: "Copy failed: " + err.Error(), Duration: 2 * time.Second, IsError: true}
		}
		return msg.ToastMsg{Message: "Yanked: " + note, Duration: 2 * time.Second}
	}
}

func (p *Plugin) openInEditor() tea.Cmd {
	note := p.FilePath()
	if note == "" {
		return nil
	}
	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	abs := filepath.Join(p.ctx.VaultDir, filepath.FromSlash(note))
	return func() tea.Msg {
		return plugin.OpenFileMsg{Editor: editor, Path: abs}
	}
}
