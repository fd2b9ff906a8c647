package app

import (
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/notecards/internal/keymap"
	"github.com/marcus/notecards/internal/mouse"
	"github.com/marcus/notecards/internal/msg"
	"github.com/marcus/notecards/internal/plugin"
)

const (
	headerHeight = 2 // header line + spacing
	footerHeight = 1
)

// Update handles all messages and returns the updated model and commands.
func (m Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(message)

	case tea.WindowSizeMsg:
		return m.handleResize(message)

	case tea.MouseMsg:
		return m.handleMouse(message)

	case TickMsg:
		m.clock = time.Time(message)
		m.ClearToast()
		return m, tickCmd()

	case msg.ToastMsg:
		if message.IsError {
			m.lastError = errors.New(message.Message)
		}
		m.ShowToast(message.Message, message.Duration, message.IsError)
		return m, nil

	case msg.FocusPluginMsg:
		return m, m.FocusPluginByID(message.PluginID)

	case plugin.OpenFileMsg:
		return m, openInEditor(message)

	case editorClosedMsg:
		if message.Err != nil {
			m.lastError = message.Err
			m.ShowToast("Editor failed: "+message.Err.Error(), 5*time.Second, true)
			return m, nil
		}
		if ctx := m.registry.Context(); ctx != nil && ctx.Workspace != nil {
			if view, ok := ctx.Workspace.ActiveMarkdownView(); ok {
				view.RerenderPreview(false, plugin.RenderInitial)
			}
		}
		return m, nil
	}

	return m, m.broadcast(message)
}

// broadcast forwards msg to ALL plugins, not just the active one, so async
// results reach their plugin even when another tab is focused.
func (m *Model) broadcast(message tea.Msg) tea.Cmd {
	var cmds []tea.Cmd
	for _, p := range m.registry.Plugins() {
		updated, cmd := p.Update(message)
		if updated != nil {
			m.registry.Replace(updated)
		}
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	if !m.hasModal() {
		m.updateContext()
	}
	return tea.Batch(cmds...)
}

// handleResize records the terminal size and hands plugins the content area.
// The first size marks the layout as ready.
func (m Model) handleResize(size tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width, m.height = size.Width, size.Height
	m.help.Width = size.Width

	var cmds []tea.Cmd
	if !m.ready {
		m.ready = true
		if ctx := m.registry.Context(); ctx != nil {
			ctx.FireLayoutReady()
		}
		cmds = append(cmds, m.broadcast(plugin.LayoutReadyMsg{}))
	}
	cmds = append(cmds, m.broadcast(tea.WindowSizeMsg{Width: m.width, Height: m.contentHeight()}))
	return m, tea.Batch(cmds...)
}

func (m Model) contentHeight() int {
	h := m.height - headerHeight
	if m.showFooter {
		h -= footerHeight
	}
	return max(0, h)
}

// openInEditor suspends the program while the editor runs.
func openInEditor(req plugin.OpenFileMsg) tea.Cmd {
	editor := strings.Fields(req.Editor)
	if len(editor) == 0 {
		editor = []string{"vi"}
	}
	args := editor[1:]
	if req.LineNo > 0 {
		args = append(args, "+"+strconv.Itoa(req.LineNo))
	}
	args = append(args, req.Path)
	c := exec.Command(editor[0], args...)
	return tea.ExecProcess(c, func(err error) tea.Msg {
		return editorClosedMsg{Path: req.Path, Err: err}
	})
}

// handleMouse switches tabs on header clicks and hands content-area events
// to the active plugin in content coordinates.
func (m Model) handleMouse(ev tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.hasModal() {
		return m, nil
	}
	a := m.tabHitMap().Resolve(ev)
	if a.Type == mouse.ActionClick && a.Region != nil {
		if idx, ok := a.Region.Data.(int); ok {
			return m, m.SetActivePlugin(idx)
		}
	}
	if ev.Y < headerHeight {
		return m, nil
	}
	p := m.ActivePlugin()
	if p == nil {
		return m, nil
	}
	ev.Y -= headerHeight
	updated, cmd := p.Update(ev)
	if updated != nil {
		m.registry.Replace(updated)
	}
	return m, cmd
}

// handleKeyMsg processes keyboard input.
func (m Model) handleKeyMsg(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := k.String()

	if m.showQuitConfirm {
		switch key {
		case "y", "enter", "ctrl+c":
			return m, tea.Quit
		case "n", "esc", "q":
			m.showQuitConfirm = false
		}
		return m, nil
	}

	// Close modals with escape
	if k.Type == tea.KeyEsc && (m.showHelp || m.showDiagnostics) {
		m.showHelp, m.showDiagnostics = false, false
		m.updateContext()
		return m, nil
	}

	// ctrl+c always takes precedence
	if key == "ctrl+c" {
		m.showQuitConfirm = true
		return m, nil
	}

	// Plugins collecting text get every other key.
	if !m.hasModal() {
		if tc, ok := m.ActivePlugin().(plugin.TextInputConsumer); ok && tc.ConsumesTextInput() {
			return m.forwardKey(k)
		}
	}

	id, bound := m.keymap.CommandFor(key, m.activeContext)
	if bound {
		switch {
		case id == "toggle-help":
			m.showHelp = !m.showHelp
			m.showDiagnostics = false
			return m, nil
		case id == "toggle-diagnostics":
			m.showDiagnostics = !m.showDiagnostics
			m.showHelp = false
			return m, nil
		}
	}

	// If a modal is open, don't process other keys
	if m.hasModal() {
		return m, nil
	}

	if bound {
		switch {
		case id == "quit":
			if isRootContext(m.activeContext) {
				m.showQuitConfirm = true
				return m, nil
			}
		case id == "next-plugin":
			return m, m.NextPlugin()
		case id == "prev-plugin":
			return m, m.PrevPlugin()
		case id == "toggle-footer":
			m.showFooter = !m.showFooter
			return m, m.broadcast(tea.WindowSizeMsg{Width: m.width, Height: m.contentHeight()})
		case strings.HasPrefix(id, "focus-plugin-"):
			if n, err := strconv.Atoi(strings.TrimPrefix(id, "focus-plugin-")); err == nil {
				return m, m.SetActivePlugin(n - 1)
			}
		}
	}

	// Try keymap for context-specific bindings
	if cmd, handled := m.keymap.Handle(k, m.activeContext); handled {
		m.updateContext()
		return m, cmd
	}

	return m.forwardKey(k)
}

// forwardKey hands k to the active plugin.
func (m Model) forwardKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.ActivePlugin()
	if p == nil {
		return m, nil
	}
	updated, cmd := p.Update(k)
	if updated != nil {
		m.registry.Replace(updated)
	}
	m.updateContext()
	return m, cmd
}

// updateContext sets activeContext based on current state.
func (m *Model) updateContext() {
	if p := m.ActivePlugin(); p != nil {
		m.activeContext = p.FocusContext()
	} else {
		m.activeContext = keymap.GlobalContext
	}
}

// isRootContext returns true if the context is a root view where 'q' should quit.
func isRootContext(ctx string) bool {
	switch ctx {
	case keymap.GlobalContext, "":
		return true
	case "preview", "cards", "dataview", "formbind":
		return true
	default:
		return false
	}
}
