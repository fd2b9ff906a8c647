// Package cards renders ```cards blocks as card grids and keeps them fresh
// as note metadata changes.
package cards

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/notecards/internal/blockconfig"
	"github.com/marcus/notecards/internal/cardrender"
	"github.com/marcus/notecards/internal/config"
	"github.com/marcus/notecards/internal/msg"
	"github.com/marcus/notecards/internal/plugin"
	"github.com/marcus/notecards/internal/styles"
)

const (
	pluginID   = "cards"
	pluginName = "cards"
	pluginIcon = "C"

	// BlockLanguage is the fence info string handled by this plugin.
	BlockLanguage = "cards"

	delayStep = 100 * time.Millisecond
	minDelay  = 100 * time.Millisecond
	maxDelay  = 5 * time.Second

	maxEvents = 10
)

// eventMsg wakes the view after a change event.
type eventMsg struct{}

// Plugin owns the cards processor, refresh controller and event bridge.
type Plugin struct {
	ctx     *plugin.Context
	logger  *slog.Logger
	focused bool

	renderer   *cardrender.Renderer
	processor  *Processor
	controller *Controller
	bridge     *Bridge

	mu     sync.Mutex
	events []ChangeEvent
}

// New creates a new cards plugin.
func New() *Plugin {
	return &Plugin{}
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string { return pluginID }

// Name returns the plugin display name.
func (p *Plugin) Name() string { return pluginName }

// Icon returns the plugin icon character.
func (p *Plugin) Icon() string { return pluginIcon }

// Processor returns the block processor, nil before Init.
func (p *Plugin) Processor() *Processor { return p.processor }

// Controller returns the refresh controller, nil before Init.
func (p *Plugin) Controller() *Controller { return p.controller }

// Bridge returns the event bridge, nil before Init.
func (p *Plugin) Bridge() *Bridge { return p.bridge }

// Init registers the block processor and arms the event bridge for the
// host's layout-ready signal.
func (p *Plugin) Init(ctx *plugin.Context) error {
	p.ctx = ctx
	cfg := ctx.Config.Plugins.Cards
	logger := ctx.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p.logger = logger

	p.renderer = cardrender.New()
	p.processor = NewProcessor(ctx.Services, p.renderer,
		WithReadyTimeout(ctx.Config.Plugins.Dataview.ReadyTimeout),
		WithDefaults(defaultsFrom(cfg)),
		WithProcessorLogger(logger),
	)
	if err := ctx.RegisterCodeBlockProcessor(BlockLanguage, p.processor.Process); err != nil {
		return err
	}

	p.controller = NewController(ctx.Workspace, cfg.RefreshDelay, logger)
	p.bridge = NewBridge(ctx.Services, p.controller.Trigger, cfg.EnableDynamicUpdates, logger)
	p.bridge.Observe(p.recordEvent)
	p.applyDebug(cfg.DebugMode)

	ctx.OnLayoutReady(p.bridge.Start)
	return nil
}

func defaultsFrom(cfg config.CardsPluginConfig) blockconfig.Defaults {
	return blockconfig.Defaults{
		Columns:       cfg.DefaultColumns,
		ImageProperty: cfg.DefaultImageProperty,
		ShowTags:      cfg.DefaultShowTags,
		CardHeight:    cfg.CardHeight,
	}
}

func (p *Plugin) recordEvent(ev ChangeEvent) {
	p.mu.Lock()
	p.events = append([]ChangeEvent{ev}, p.events...)
	if len(p.events) > maxEvents {
		p.events = p.events[:maxEvents]
	}
	p.mu.Unlock()

	if p.ctx.Send != nil {
		go p.ctx.Send(eventMsg{})
	}
}

// Start has nothing to run; the bridge starts on layout-ready.
func (p *Plugin) Start() tea.Cmd { return nil }

// Stop tears down subscriptions and timers.
func (p *Plugin) Stop() {
	if p.bridge != nil {
		p.bridge.Close()
	}
	if p.controller != nil {
		p.controller.Stop()
	}
}

// Update handles messages. eventMsg only needs the redraw it causes.
func (p *Plugin) Update(tea.Msg) (plugin.Plugin, tea.Cmd) {
	return p, nil
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
		{ID: "refresh-cards", Name: "Refresh", Description: "Re-render card blocks in the open note", Category: plugin.CategoryActions, Context: "global", Priority: 1, Handler: p.refreshCmd},
		{ID: "toggle-dynamic-updates", Name: "Auto", Description: "Toggle refreshing on metadata changes", Category: plugin.CategoryView, Context: pluginID, Priority: 2, Handler: p.toggleDynamic},
		{ID: "increase-delay", Name: "Delay+", Description: "Increase the refresh delay", Category: plugin.CategoryView, Context: pluginID, Priority: 3, Handler: func() tea.Cmd { return p.adjustDelay(delayStep) }},
		{ID: "decrease-delay", Name: "Delay-", Description: "Decrease the refresh delay", Category: plugin.CategoryView, Context: pluginID, Priority: 3, Handler: func() tea.Cmd { return p.adjustDelay(-delayStep) }},
		{ID: "toggle-debug", Name: "Debug", Description: "Toggle debug logging and error sources", Category: plugin.CategorySystem, Context: pluginID, Priority: 4, Handler: p.toggleDebug},
	}
}

// refreshCmd is the manual refresh. It always notifies.
func (p *Plugin) refreshCmd() tea.Cmd {
	c := p.controller
	if c == nil {
		return nil
	}
	return func() tea.Msg {
		c.RefreshActiveView(true)
		return nil
	}
}

func (p *Plugin) toggleDynamic() tea.Cmd {
	cfg := &p.ctx.Config.Plugins.Cards
	cfg.EnableDynamicUpdates = !cfg.EnableDynamicUpdates
	p.bridge.SetEnabled(cfg.EnableDynamicUpdates)
	state := "off"
	if cfg.EnableDynamicUpdates {
		state = "on"
	}
	return p.saved("Dynamic updates " + state)
}

func (p *Plugin) adjustDelay(step time.Duration) tea.Cmd {
	cfg := &p.ctx.Config.Plugins.Cards
	d := max(minDelay, min(maxDelay, cfg.RefreshDelay+step))
	if d == cfg.RefreshDelay {
		return nil
	}
	cfg.RefreshDelay = d
	p.controller.SetDelay(d)
	return p.saved("Refresh delay " + d.String())
}

func (p *Plugin) toggleDebug() tea.Cmd {
	cfg := &p.ctx.Config.Plugins.Cards
	cfg.DebugMode = !cfg.DebugMode
	p.applyDebug(cfg.DebugMode)
	state := "off"
	if cfg.DebugMode {
		state = "on"
	}
	return p.saved("Debug mode " + state)
}

func (p *Plugin) applyDebug(on bool) {
	p.renderer.SetDebug(on)
	p.processor.SetDebug(on)
	if p.ctx.LogLevel == nil {
		return
	}
	if on {
		p.ctx.LogLevel.Set(slog.LevelDebug)
	} else {
		p.ctx.LogLevel.Set(slog.LevelInfo)
	}
}

// saved persists the settings and reports the change.
func (p *Plugin) saved(message string) tea.Cmd {
	path := p.ctx.ConfigFile
	if path == "" {
		path = config.ConfigPath()
	}
	if path == "" {
		return msg.ShowToast(message, 2*time.Second)
	}
	if err := config.SaveTo(p.ctx.Config, path); err != nil {
		p.logger.Error("cards: save settings", "path", path, "err", err)
		return msg.ShowError(message+" (not saved: "+err.Error()+")", 3*time.Second)
	}
	return msg.ShowToast(message, 2*time.Second)
}

// View renders refresh status and recent change events.
func (p *Plugin) View(width, height int) string {
	var b strings.Builder
	cfg := p.ctx.Config.Plugins.Cards

	b.WriteString(styles.Title.Render("Card views"))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("%-18s", label)))
		b.WriteString(value)
		b.WriteString("\n")
	}
	row("dynamic updates", onOff(cfg.EnableDynamicUpdates))
	row("refresh delay", p.controller.Delay().String())
	row("debug", onOff(cfg.DebugMode))
	state := styles.StatusCompleted.Render("idle")
	if p.controller.Refreshing() {
		state = styles.StatusPending.Render("refreshing")
	} else if p.controller.Pending() {
		state = styles.StatusPending.Render("pending")
	}
	row("state", state)
	received, forwarded := p.bridge.Stats()
	row("events", fmt.Sprintf("%d received, %d forwarded", received, forwarded))
	row("refreshes", fmt.Sprintf("%d (%d dropped)", p.controller.Refreshes(), p.controller.Dropped()))

	b.WriteString("\n")
	b.WriteString(styles.Subtitle.Render("Sources"))
	b.WriteString("\n")
	regs := p.bridge.Registrations()
	if len(regs) == 0 {
		if p.ctx.LayoutReady() {
			b.WriteString(styles.Muted.Render("none"))
		} else {
			b.WriteString(styles.Muted.Render("waiting for layout"))
		}
		b.WriteString("\n")
	}
	for _, r := range regs {
		b.WriteString("  " + r + "\n")
	}

	p.mu.Lock()
	events := append([]ChangeEvent(nil), p.events...)
	p.mu.Unlock()
	if len(events) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.Subtitle.Render("Recent events"))
		b.WriteString("\n")
		for _, ev := range events {
			b.WriteString("  " + ev.String() + "\n")
		}
	}

	return lipgloss.NewStyle().Width(width).Height(height).MaxHeight(height).Render(b.String())
}

func onOff(on bool) string {
	if on {
		return styles.StatusCompleted.Render("on")
	}
	return styles.Muted.Render("off")
}

// Diagnostics reports which change sources are connected.
func (p *Plugin) Diagnostics() []plugin.Diagnostic {
	if p.bridge == nil {
		return []plugin.Diagnostic{{ID: "bridge", Status: "error", Detail: "not initialized"}}
	}
	regs := p.bridge.Registrations()
	status := "ok"
	detail := strings.Join(regs, ", ")
	switch {
	case !p.ctx.LayoutReady():
		status, detail = "warning", "waiting for layout"
	case len(regs) == 0:
		status, detail = "warning", "no change sources"
	}
	diags := []plugin.Diagnostic{{ID: "bridge", Status: status, Detail: detail}}
	if !p.bridge.Enabled() {
		diags = append(diags, plugin.Diagnostic{ID: "dynamic-updates", Status: "warning", Detail: "disabled"})
	}
	return diags
}
