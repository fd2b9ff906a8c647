package dataview

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/notecards/internal/msg"
	"github.com/marcus/notecards/internal/plugin"
	"github.com/marcus/notecards/internal/styles"
)

const (
	pluginID   = "dataview"
	pluginName = "dataview"
	pluginIcon = "D"

	// ServiceID is the locator key the index is published under.
	ServiceID = "dataview"

	maxRecent = 12
)

// scanDoneMsg reports the end of the initial scan.
type scanDoneMsg struct {
	Epoch   uint64
	Pages   int
	Watcher *Watcher
	Err     error
}

// GetEpoch implements plugin.EpochMessage.
func (m scanDoneMsg) GetEpoch() uint64 { return m.Epoch }

// changedMsg wakes the view after a metadata change.
type changedMsg struct{}

// Plugin hosts the query engine and a small query console.
type Plugin struct {
	ctx     *plugin.Context
	focused bool

	index   *Index
	store   *Store
	watcher *Watcher
	unsub   func()

	mu      sync.Mutex
	recent  []MetadataChange
	scanErr error

	input     textinput.Model
	inputOpen bool
	output    string
	outputErr bool
}

// New creates a new dataview plugin.
func New() *Plugin {
	ti := textinput.New()
	ti.Placeholder = `LIST FROM #project WHERE status = "active"`
	ti.Prompt = "query> "
	ti.CharLimit = 500
	return &Plugin{input: ti}
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string { return pluginID }

// Name returns the plugin display name.
func (p *Plugin) Name() string { return pluginName }

// Icon returns the plugin icon character.
func (p *Plugin) Icon() string { return pluginIcon }

// Index returns the query engine, nil before Init.
func (p *Plugin) Index() *Index { return p.index }

// Init builds the index and publishes it on the service locator.
func (p *Plugin) Init(ctx *plugin.Context) error {
	p.ctx = ctx
	cfg := ctx.Config.Plugins.Dataview
	if !cfg.Enabled {
		return fmt.Errorf("disabled in config")
	}

	opts := []Option{
		WithEvents(ctx.Events),
		WithLogger(ctx.Logger),
		WithIgnore(ctx.Config.Vault.Ignore...),
	}
	store, err := OpenStore(cfg.CachePath)
	if err != nil {
		// Cache is optional - index without it
		ctx.Logger.Warn("dataview: cache unavailable", "path", cfg.CachePath, "err", err)
	} else {
		p.store = store
		opts = append(opts, WithStore(store))
	}

	p.index = NewIndex(ctx.VaultDir, opts...)
	p.unsub = p.index.OnMetadataChange(p.recordChange)
	ctx.Services.Provide(ServiceID, p.index)
	return nil
}

func (p *Plugin) recordChange(kind ChangeKind, file FileRef) {
	p.mu.Lock()
	p.recent = append([]MetadataChange{{Kind: kind, File: file}}, p.recent...)
	if len(p.recent) > maxRecent {
		p.recent = p.recent[:maxRecent]
	}
	p.mu.Unlock()

	if p.ctx.Send != nil {
		go p.ctx.Send(changedMsg{})
	}
}

// Start runs the initial scan and starts the watcher.
func (p *Plugin) Start() tea.Cmd {
	if p.index == nil {
		return nil
	}
	ix := p.index
	epoch := p.ctx.Epoch
	return func() tea.Msg {
		err := ix.Scan(context.Background())
		if err != nil {
			return scanDoneMsg{Epoch: epoch, Err: err}
		}
		w, err := ix.Watch()
		return scanDoneMsg{Epoch: epoch, Pages: len(ix.Pages()), Watcher: w, Err: err}
	}
}

// Stop closes the watcher and cache.
func (p *Plugin) Stop() {
	if p.unsub != nil {
		p.unsub()
	}
	if p.watcher != nil {
		_ = p.watcher.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
	if p.ctx != nil && p.ctx.Services != nil {
		p.ctx.Services.Remove(ServiceID)
	}
}

// Update handles messages.
func (p *Plugin) Update(m tea.Msg) (plugin.Plugin, tea.Cmd) {
	switch m := m.(type) {
	case scanDoneMsg:
		if plugin.IsStale(p.ctx, m) {
			if m.Watcher != nil {
				_ = m.Watcher.Close()
			}
			return p, nil
		}
		p.watcher = m.Watcher
		p.mu.Lock()
		p.scanErr = m.Err
		p.mu.Unlock()
		if m.Err != nil {
			p.ctx.Logger.Error("dataview: scan failed", "err", m.Err)
			return p, msg.ShowError("Index failed: "+m.Err.Error(), 4*time.Second)
		}
		return p, nil

	case tea.KeyMsg:
		if !p.focused {
			return p, nil
		}
		if p.inputOpen {
			return p.updateInput(m)
		}
	}
	return p, nil
}

func (p *Plugin) updateInput(k tea.KeyMsg) (plugin.Plugin, tea.Cmd) {
	switch k.String() {
	case "esc":
		p.closeInput()
		return p, nil
	case "enter":
		p.runQuery(strings.TrimSpace(p.input.Value()))
		return p, nil
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(k)
	return p, cmd
}

func (p *Plugin) openInput() tea.Cmd {
	p.inputOpen = true
	return p.input.Focus()
}

func (p *Plugin) closeInput() {
	p.inputOpen = false
	p.input.Blur()
}

func (p *Plugin) runQuery(text string) {
	if text == "" {
		return
	}
	q, err := ParseQuery(text)
	if err != nil {
		p.output, p.outputErr = err.Error(), true
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	value, warnings, err := p.index.Run(ctx, q, "")
	if err != nil {
		p.output, p.outputErr = err.Error(), true
		return
	}
	out := FormatResult(value, 0)
	for _, w := range warnings {
		out += "\n" + styles.StatusModified.Render("! "+w)
	}
	p.output, p.outputErr = out, false
}

// ConsumesTextInput reports whether the query input has focus.
func (p *Plugin) ConsumesTextInput() bool { return p.inputOpen }

// View renders index status, the query console and recent changes.
func (p *Plugin) View(width, height int) string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Query engine"))
	b.WriteString("\n")
	switch {
	case p.index == nil:
		b.WriteString(styles.Muted.Render("disabled"))
	case !p.index.IsReady():
		b.WriteString(styles.StatusPending.Render("indexing " + p.ctx.VaultDir + "..."))
	default:
		b.WriteString(styles.StatusCompleted.Render(fmt.Sprintf("%d notes indexed", len(p.index.Pages()))))
		b.WriteString(styles.Muted.Render("  " + p.ctx.VaultDir))
	}
	b.WriteString("\n\n")

	if p.inputOpen {
		b.WriteString(p.input.View())
	} else {
		b.WriteString(styles.Muted.Render("press / to run a query"))
	}
	b.WriteString("\n")
	if p.output != "" {
		if p.outputErr {
			b.WriteString(styles.BlockError.Render(p.output))
		} else {
			b.WriteString(p.output)
		}
		b.WriteString("\n")
	}

	p.mu.Lock()
	recent := append([]MetadataChange(nil), p.recent...)
	p.mu.Unlock()
	if len(recent) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.Subtitle.Render("Recent changes"))
		b.WriteString("\n")
		for _, c := range recent {
			line := fmt.Sprintf("%-8s %s", c.Kind, c.File.Path)
			if c.File.OldPath != "" {
				line += styles.Muted.Render(" (from " + filepath.Base(c.File.OldPath) + ")")
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().Width(width).Height(height).MaxHeight(height).Render(b.String())
}

// IsFocused returns whether the plugin is focused.
func (p *Plugin) IsFocused() bool { return p.focused }

// SetFocused sets the focus state.
func (p *Plugin) SetFocused(f bool) {
	p.focused = f
	if !f {
		p.closeInput()
	}
}

// Commands returns the available commands.
func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{ID: "query", Name: "Query", Description: "Run an ad-hoc query", Category: plugin.CategoryActions, Context: pluginID, Priority: 1, Handler: p.openInput},
		{ID: "rescan", Name: "Rescan", Description: "Re-index the vault", Category: plugin.CategoryActions, Context: pluginID, Priority: 2, Handler: p.rescan},
	}
}

func (p *Plugin) rescan() tea.Cmd {
	if p.index == nil {
		return nil
	}
	ix := p.index
	return func() tea.Msg {
		if err := ix.Scan(context.Background()); err != nil {
			return msg.ToastMsg{Message: "Rescan failed: " + err.Error(), Duration: 3 * time.Second, IsError: true}
		}
		return msg.ToastMsg{Message: fmt.Sprintf("Indexed %d notes", len(ix.Pages())), Duration: 2 * time.Second}
	}
}

// FocusContext returns the keymap context.
func (p *Plugin) FocusContext() string {
	if p.inputOpen {
		return pluginID + "-input"
	}
	return pluginID
}

// Diagnostics reports index health.
func (p *Plugin) Diagnostics() []plugin.Diagnostic {
	if p.index == nil {
		return []plugin.Diagnostic{{ID: "index", Status: "error", Detail: "not initialized"}}
	}
	p.mu.Lock()
	scanErr := p.scanErr
	p.mu.Unlock()

	diags := []plugin.Diagnostic{}
	switch {
	case scanErr != nil:
		diags = append(diags, plugin.Diagnostic{ID: "index", Status: "error", Detail: scanErr.Error()})
	case p.index.IsReady():
		diags = append(diags, plugin.Diagnostic{ID: "index", Status: "ok", Detail: fmt.Sprintf("%d notes", len(p.index.Pages()))})
	default:
		diags = append(diags, plugin.Diagnostic{ID: "index", Status: "warning", Detail: "indexing"})
	}
	if p.store == nil {
		diags = append(diags, plugin.Diagnostic{ID: "cache", Status: "warning", Detail: "no metadata cache"})
	}
	if p.watcher == nil {
		diags = append(diags, plugin.Diagnostic{ID: "watcher", Status: "warning", Detail: "not watching for changes"})
	}
	return diags
}
