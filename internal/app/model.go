// Package app hosts the plugins in a Bubble Tea program.
package app

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/notecards/internal/config"
	"github.com/marcus/notecards/internal/keymap"
	"github.com/marcus/notecards/internal/plugin"
	"github.com/marcus/notecards/internal/state"
	"github.com/marcus/notecards/internal/styles"
)

// ModalKind identifies an app-level modal with explicit priority ordering.
// Lower values = higher priority (checked first for rendering and input routing).
type ModalKind int

const (
	ModalNone        ModalKind = iota // No modal open
	ModalHelp                         // Key binding help
	ModalDiagnostics                  // Plugin health
	ModalQuitConfirm                  // Quit confirmation dialog
)

// activeModal returns the highest-priority open modal.
func (m *Model) activeModal() ModalKind {
	switch {
	case m.showHelp:
		return ModalHelp
	case m.showDiagnostics:
		return ModalDiagnostics
	case m.showQuitConfirm:
		return ModalQuitConfirm
	default:
		return ModalNone
	}
}

// hasModal returns true if any app-level modal is open.
func (m *Model) hasModal() bool {
	return m.activeModal() != ModalNone
}

// App commands handled by the model itself. They are registered without a
// handler so they show up in help.
var appCommands = []keymap.Command{
	{ID: "quit", Name: "Quit"},
	{ID: "next-plugin", Name: "Next tab"},
	{ID: "prev-plugin", Name: "Prev tab"},
	{ID: "toggle-help", Name: "Help"},
	{ID: "toggle-diagnostics", Name: "Diagnostics"},
	{ID: "toggle-footer", Name: "Footer"},
}

// Model is the root Bubble Tea model for notecards.
type Model struct {
	// Configuration
	cfg *config.Config

	// Plugin management
	registry     *plugin.Registry
	activePlugin int

	// Keymap
	keymap        *keymap.Registry
	activeContext string

	// UI state
	width, height   int
	showHelp        bool
	showDiagnostics bool
	showFooter      bool
	showQuitConfirm bool
	help            help.Model
	clock           time.Time

	// Status/toast messages
	statusMsg     string
	statusExpiry  time.Time
	statusIsError bool

	// Error handling
	lastError error

	// Ready state
	ready bool

	version string
}

// New creates the application model. initialPluginID optionally selects the
// focused tab; empty falls back to the last used one, then the first.
func New(reg *plugin.Registry, km *keymap.Registry, cfg *config.Config, version, initialPluginID string) Model {
	if km == nil {
		km = keymap.NewDefault()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	registerCommands(km, reg)
	for context, keys := range cfg.Keymap.Overrides {
		for k, id := range keys {
			km.SetUserOverride(context, k, id)
		}
	}

	if initialPluginID == "" {
		initialPluginID = state.GetActivePlugin()
	}
	activeIdx := 0
	for i, p := range reg.Plugins() {
		if p.ID() == initialPluginID {
			activeIdx = i
			break
		}
	}

	m := Model{
		cfg:           cfg,
		registry:      reg,
		keymap:        km,
		activePlugin:  activeIdx,
		activeContext: keymap.GlobalContext,
		showFooter:    cfg.UI.ShowFooter,
		help:          help.New(),
		clock:         time.Now(),
		version:       version,
	}
	if p := m.ActivePlugin(); p != nil {
		p.SetFocused(true)
		m.activeContext = p.FocusContext()
	}
	return m
}

// registerCommands exposes app and plugin commands to the keymap.
func registerCommands(km *keymap.Registry, reg *plugin.Registry) {
	for _, c := range appCommands {
		km.RegisterCommand(c)
	}
	for i, p := range reg.Plugins() {
		km.RegisterCommand(keymap.Command{ID: fmt.Sprintf("focus-plugin-%d", i+1), Name: p.Name()})
		for _, c := range p.Commands() {
			km.RegisterCommand(keymap.Command{
				ID:          c.ID,
				Name:        c.Name,
				Description: c.Description,
				Context:     c.Context,
				Handler:     c.Handler,
			})
		}
	}
}

// Init initializes the model and returns initial commands.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd()}
	cmds = append(cmds, m.registry.Start()...)
	return tea.Batch(cmds...)
}

// ActivePlugin returns the currently active plugin.
func (m Model) ActivePlugin() plugin.Plugin {
	plugins := m.registry.Plugins()
	if len(plugins) == 0 {
		return nil
	}
	if m.activePlugin >= len(plugins) {
		return plugins[0]
	}
	return plugins[m.activePlugin]
}

// SetActivePlugin sets the active plugin by index and returns a command
// to notify the plugin it has been focused.
func (m *Model) SetActivePlugin(idx int) tea.Cmd {
	plugins := m.registry.Plugins()
	if idx < 0 || idx >= len(plugins) {
		return nil
	}
	if current := m.ActivePlugin(); current != nil {
		current.SetFocused(false)
	}
	m.activePlugin = idx
	next := plugins[idx]
	next.SetFocused(true)
	m.activeContext = next.FocusContext()
	state.SetActivePlugin(next.ID())
	return PluginFocused()
}

// NextPlugin switches to the next plugin.
func (m *Model) NextPlugin() tea.Cmd {
	plugins := m.registry.Plugins()
	if len(plugins) == 0 {
		return nil
	}
	return m.SetActivePlugin((m.activePlugin + 1) % len(plugins))
}

// PrevPlugin switches to the previous plugin.
func (m *Model) PrevPlugin() tea.Cmd {
	plugins := m.registry.Plugins()
	if len(plugins) == 0 {
		return nil
	}
	idx := m.activePlugin - 1
	if idx < 0 {
		idx = len(plugins) - 1
	}
	return m.SetActivePlugin(idx)
}

// FocusPluginByID switches to a plugin by its ID.
func (m *Model) FocusPluginByID(id string) tea.Cmd {
	for i, p := range m.registry.Plugins() {
		if p.ID() == id {
			return m.SetActivePlugin(i)
		}
	}
	return nil
}

// ShowToast displays a temporary status message.
func (m *Model) ShowToast(msg string, duration time.Duration, isError bool) {
	if duration <= 0 {
		duration = 2 * time.Second
	}
	m.statusMsg = msg
	m.statusExpiry = time.Now().Add(duration)
	m.statusIsError = isError
}

// ClearToast clears any expired toast message.
func (m *Model) ClearToast() {
	if m.statusMsg != "" && time.Now().After(m.statusExpiry) {
		m.statusMsg = ""
		m.statusIsError = false
	}
}

// vaultName is shown in the header.
func (m Model) vaultName() string {
	if ctx := m.registry.Context(); ctx != nil && ctx.VaultDir != "" {
		return filepath.Base(ctx.VaultDir)
	}
	return ""
}

// themeName is the configured markdown theme, for diagnostics.
func (m Model) themeName() string {
	return styles.CurrentMarkdownTheme
}
