package app

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/notecards/internal/mouse"
	"github.com/marcus/notecards/internal/plugin"
	"github.com/marcus/notecards/internal/styles"
	"github.com/marcus/notecards/internal/ui"
)

// View renders the entire application UI.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderContent(m.width, m.contentHeight()))
	if m.showFooter {
		b.WriteString("\n")
		b.WriteString(m.renderFooter())
	}

	bg := b.String()
	switch m.activeModal() {
	case ModalHelp:
		return ui.OverlayModal(bg, ui.Modal("Keys", m.help.FullHelpView(m.keymap.HelpKeyMap(m.activeContext).FullHelp()), 0), m.width, m.height)
	case ModalDiagnostics:
		return ui.OverlayModal(bg, ui.Modal("Diagnostics", m.buildDiagnosticsContent(), 0), m.width, m.height)
	case ModalQuitConfirm:
		body := "Are you sure you want to quit?\n\n" + styles.Muted.Render("y to quit • n to cancel")
		return ui.OverlayModal(bg, ui.Modal("Quit notecards?", body, 0), m.width, m.height)
	}
	return bg
}

// headerParts returns the header's title, tab chips and clock.
func (m Model) headerParts() (title string, tabs []string, clock string) {
	title = styles.BarTitle.Render(" notecards")
	if name := m.vaultName(); name != "" {
		title += styles.Subtitle.Render(" / " + name)
	}
	title += " "

	plugins := m.registry.Plugins()
	tabs = make([]string, len(plugins))
	for i, p := range plugins {
		label := fmt.Sprintf("%d %s", i+1, p.Name())
		if i == m.activePlugin {
			tabs[i] = styles.BarChipActive.Render(label)
		} else {
			tabs[i] = styles.BarChip.Render(label)
		}
	}

	clock = styles.BarText.Render(m.clock.Format("15:04") + " ")
	return title, tabs, clock
}

// headerSpacing is the free space around the centered tab bar.
func (m Model) headerSpacing(title string, tabs []string, clock string) int {
	tabBar := strings.Join(tabs, " ")
	return max(0, m.width-lipgloss.Width(title)-lipgloss.Width(tabBar)-lipgloss.Width(clock))
}

// renderHeader renders the title, plugin tabs and clock.
func (m Model) renderHeader() string {
	title, tabs, clock := m.headerParts()
	spacing := m.headerSpacing(title, tabs, clock)
	header := title + strings.Repeat(" ", spacing/2) + strings.Join(tabs, " ") + strings.Repeat(" ", spacing-spacing/2) + clock
	return styles.Header.Width(m.width).MaxWidth(m.width).Render(header)
}

// tabHitMap returns the clickable tab chips of the current header. Region
// data is the plugin index.
func (m Model) tabHitMap() *mouse.HitMap {
	hm := mouse.NewHitMap()
	title, tabs, clock := m.headerParts()
	x := lipgloss.Width(title) + m.headerSpacing(title, tabs, clock)/2
	for i, t := range tabs {
		w := lipgloss.Width(t)
		hm.AddRect("tab", x, 0, w, 1, i)
		x += w + 1
	}
	return hm
}

// renderContent renders the main content area.
func (m Model) renderContent(width, height int) string {
	if height == 0 {
		return ""
	}
	p := m.ActivePlugin()
	if p == nil {
		msg := "No plugins loaded"
		if n := len(m.registry.Unavailable()); n > 0 {
			msg = fmt.Sprintf("No plugins loaded (%d unavailable, press ! for details)", n)
		}
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, styles.Muted.Render(msg))
	}
	// MaxHeight truncates tall plugin output so the header stays visible.
	return lipgloss.NewStyle().Width(width).Height(height).MaxHeight(height).Render(p.View(width, height))
}

// renderFooter renders the bottom bar with key hints and status.
func (m Model) renderFooter() string {
	var status string
	if m.statusMsg != "" {
		toastStyle := styles.ToastSuccess
		if m.statusIsError {
			toastStyle = styles.ToastError
		}
		status = toastStyle.Render(m.statusMsg)
	}

	available := m.width - lipgloss.Width(status) - 2
	hints := renderHintLineTruncated(m.footerHints(), available)
	spacing := max(0, m.width-lipgloss.Width(hints)-lipgloss.Width(status))
	return styles.Footer.Width(m.width).MaxWidth(m.width).Render(hints + strings.Repeat(" ", spacing) + status)
}

type footerHint struct {
	keys  string
	label string
}

func (m Model) footerHints() []footerHint {
	// Plugin-specific hints first - they're more contextually relevant
	var hints []footerHint
	if p := m.ActivePlugin(); p != nil {
		hints = m.pluginFooterHints(p, m.activeContext)
	}
	hints = append(hints, footerHint{keys: "1-" + fmt.Sprint(len(m.registry.Plugins())), label: "tabs"})
	for _, hint := range []struct{ id, label string }{
		{"refresh-cards", "refresh"},
		{"toggle-help", "help"},
		{"quit", "quit"},
	} {
		if keys := m.keymap.KeysFor("global", hint.id); len(keys) > 0 {
			hints = append(hints, footerHint{keys: keys[0], label: hint.label})
		}
	}
	return hints
}

func (m Model) pluginFooterHints(p plugin.Plugin, context string) []footerHint {
	if context == "" || context == "global" {
		return nil
	}

	type cmdWithPriority struct {
		cmd      plugin.Command
		keys     []string
		priority int
	}
	var cmds []cmdWithPriority
	for _, cmd := range p.Commands() {
		if cmd.Context != context {
			continue
		}
		keys := m.keymap.KeysFor(context, cmd.ID)
		if len(keys) == 0 {
			continue
		}
		priority := cmd.Priority
		if priority == 0 {
			priority = 99
		}
		cmds = append(cmds, cmdWithPriority{cmd, keys, priority})
	}

	// Lower priority value = shown first
	sort.SliceStable(cmds, func(i, j int) bool {
		return cmds[i].priority < cmds[j].priority
	})

	hints := make([]footerHint, 0, len(cmds))
	for _, c := range cmds {
		hints = append(hints, footerHint{keys: strings.Join(c.keys, "/"), label: c.cmd.Name})
	}
	return hints
}

// renderHintLineTruncated joins hints until maxWidth is reached.
func renderHintLineTruncated(hints []footerHint, maxWidth int) string {
	var b strings.Builder
	width := 0
	for i, h := range hints {
		part := styles.KeyHint.Render(h.keys) + " " + styles.Muted.Render(h.label)
		sep := ""
		if i > 0 {
			sep = "  "
		}
		w := lipgloss.Width(sep + part)
		if width+w > maxWidth {
			break
		}
		b.WriteString(sep + part)
		width += w
	}
	return b.String()
}

// buildDiagnosticsContent lists plugin health and runtime settings.
func (m Model) buildDiagnosticsContent() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Plugins"))
	b.WriteString("\n")

	plugins := m.registry.Plugins()
	for _, p := range plugins {
		b.WriteString(fmt.Sprintf("  %s %s: active\n", styles.StatusCompleted.Render("✓"), p.Name()))

		dp, ok := p.(plugin.DiagnosticProvider)
		if !ok {
			continue
		}
		for _, d := range dp.Diagnostics() {
			var icon string
			switch d.Status {
			case "ok":
				icon = styles.StatusCompleted.Render("•")
			case "warning":
				icon = styles.StatusModified.Render("•")
			case "error":
				icon = styles.StatusBlocked.Render("•")
			default:
				icon = styles.Muted.Render("•")
			}
			b.WriteString(fmt.Sprintf("    %s %s: %s\n", icon, d.ID, d.Detail))
		}
	}

	unavail := m.registry.Unavailable()
	ids := make([]string, 0, len(unavail))
	for id := range unavail {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		b.WriteString(fmt.Sprintf("  %s %s: %s\n", styles.StatusBlocked.Render("✗"), id, unavail[id]))
	}
	if len(plugins) == 0 && len(unavail) == 0 {
		b.WriteString(styles.Muted.Render("  No plugins registered"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(styles.Title.Render("System"))
	b.WriteString("\n")
	if ctx := m.registry.Context(); ctx != nil {
		b.WriteString(fmt.Sprintf("  Vault: %s\n", styles.Muted.Render(ctx.VaultDir)))
		if langs := ctx.CodeBlockLanguages(); len(langs) > 0 {
			b.WriteString(fmt.Sprintf("  Blocks: %s\n", styles.Muted.Render(strings.Join(langs, ", "))))
		}
	}
	b.WriteString(fmt.Sprintf("  Theme: %s\n", styles.Muted.Render(m.themeName())))
	if m.version != "" {
		b.WriteString(fmt.Sprintf("  Version: %s\n", styles.Muted.Render(m.version)))
	}
	if m.lastError != nil {
		b.WriteString("\n")
		b.WriteString(styles.StatusBlocked.Render("Last error: " + m.lastError.Error()))
	}
	return strings.TrimRight(b.String(), "\n")
}
