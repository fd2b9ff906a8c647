package app

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/notecards/internal/config"
	"github.com/marcus/notecards/internal/event"
	"github.com/marcus/notecards/internal/keymap"
	"github.com/marcus/notecards/internal/msg"
	"github.com/marcus/notecards/internal/plugin"
	"github.com/marcus/notecards/internal/state"
)

type stubPlugin struct {
	id       string
	context  string
	focused  bool
	typing   bool
	initErr  error
	received []tea.Msg
	ran      []string
	commands []plugin.Command
}

func newStub(id string) *stubPlugin {
	s := &stubPlugin{id: id, context: id}
	s.commands = []plugin.Command{
		{ID: id + "-action", Name: "Act", Context: id, Priority: 1, Handler: func() tea.Cmd {
			s.ran = append(s.ran, id+"-action")
			return nil
		}},
	}
	return s
}

func (s *stubPlugin) ID() string { return s.id }
func (s *stubPlugin) Name() string { return s.id }
func (s *stubPlugin) Icon() string { return "S" }
func (s *stubPlugin) Init(*plugin.Context) error { return s.initErr }
func (s *stubPlugin) Start() tea.Cmd { return nil }
func (s *stubPlugin) Stop() {}
func (s *stubPlugin) View(width, height int) string { return "view of " + s.id }
func (s *stubPlugin) IsFocused() bool { return s.focused }
func (s *stubPlugin) SetFocused(f bool) { s.focused = f }
func (s *stubPlugin) Commands() []plugin.Command { return s.commands }
func (s *stubPlugin) FocusContext() string { return s.context }
func (s *stubPlugin) ConsumesTextInput() bool { return s.typing }

func (s *stubPlugin) Update(m tea.Msg) (plugin.Plugin, tea.Cmd) {
	s.received = append(s.received, m)
	return s, nil
}

func (s *stubPlugin) keys() []string {
	var out []string
	for _, m := range s.received {
		if k, ok := m.(tea.KeyMsg); ok {
			out = append(out, k.String())
		}
	}
	return out
}

type fakeView struct {
	path     string
	hasNote  bool
	rerender []plugin.RenderReason
}

func (v *fakeView) FilePath() string { return v.path }
func (v *fakeView) HasNote() bool { return v.hasNote }
func (v *fakeView) RerenderPreview(full bool, reason plugin.RenderReason) {
	v.rerender = append(v.rerender, reason)
}

func newTestModel(t *testing.T, plugins ...plugin.Plugin) (Model, *plugin.Context) {
	t.Helper()
	if err := state.InitWithDir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	ctx := &plugin.Context{
		VaultDir: "/tmp/vault",
		Config:   config.Default(),
		Logger:   slog.New(slog.DiscardHandler),
		Events:   event.New(),
		Services: plugin.NewServices(),
	}
	reg := plugin.NewRegistry(ctx)
	for _, p := range plugins {
		if err := reg.Register(p); err != nil {
			t.Fatal(err)
		}
	}
	return New(reg, keymap.NewDefault(), ctx.Config, "test", ""), ctx
}

func press(m Model, keys ...string) (Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var km tea.KeyMsg
		switch k {
		case "esc":
			km = tea.KeyMsg{Type: tea.KeyEsc}
		case "ctrl+c":
			km = tea.KeyMsg{Type: tea.KeyCtrlC}
		case "tab":
			km = tea.KeyMsg{Type: tea.KeyTab}
		case "shift+tab":
			km = tea.KeyMsg{Type: tea.KeyShiftTab}
		default:
			km = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		var next tea.Model
		next, cmd = m.Update(km)
		m = next.(Model)
	}
	return m, cmd
}

func TestHost_ActiveMarkdownView(t *testing.T) {
	h := NewHost(nil)
	if _, ok := h.ActiveMarkdownView(); ok {
		t.Fatal("no view set")
	}
	v := &fakeView{path: "a.md"}
	h.SetMarkdownView(v)
	if _, ok := h.ActiveMarkdownView(); ok {
		t.Fatal("view without a note should not be active")
	}
	v.hasNote = true
	got, ok := h.ActiveMarkdownView()
	if !ok || got.FilePath() != "a.md" {
		t.Fatalf("ActiveMarkdownView = %v, %v", got, ok)
	}
}

func TestHost_NotifySendsToast(t *testing.T) {
	h := NewHost(nil)
	h.Notify("dropped before send is set", time.Second)

	got := make(chan tea.Msg, 1)
	h.SetSend(func(m tea.Msg) { got <- m })
	h.Notify("Card views refreshed", time.Second)

	select {
	case m := <-got:
		toast, ok := m.(msg.ToastMsg)
		if !ok || toast.Message != "Card views refreshed" {
			t.Errorf("sent %#v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("toast not sent")
	}
}

func TestNew_FocusesFirstPlugin(t *testing.T) {
	a, b := newStub("preview"), newStub("cards")
	m, _ := newTestModel(t, a, b)
	if !a.focused || b.focused {
		t.Error("first plugin should be focused")
	}
	if m.activeContext != "preview" {
		t.Errorf("context = %q", m.activeContext)
	}
}

func TestNew_RestoresLastPlugin(t *testing.T) {
	if err := state.InitWithDir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	_ = state.SetActivePlugin("cards")

	a, b := newStub("preview"), newStub("cards")
	ctx := &plugin.Context{Config: config.Default(), Logger: slog.New(slog.DiscardHandler)}
	reg := plugin.NewRegistry(ctx)
	_ = reg.Register(a)
	_ = reg.Register(b)
	m := New(reg, nil, nil, "", "")
	if m.ActivePlugin().ID() != "cards" {
		t.Errorf("active = %s, want cards", m.ActivePlugin().ID())
	}
}

func TestPluginSwitching(t *testing.T) {
	a, b, c := newStub("preview"), newStub("cards"), newStub("dataview")
	m, _ := newTestModel(t, a, b, c)

	m, _ = press(m, "tab")
	if m.ActivePlugin().ID() != "cards" || !b.focused || a.focused {
		t.Fatalf("tab -> %s", m.ActivePlugin().ID())
	}
	m, _ = press(m, "shift+tab", "shift+tab")
	if m.ActivePlugin().ID() != "dataview" {
		t.Fatalf("shift+tab wrap -> %s", m.ActivePlugin().ID())
	}
	m, cmd := press(m, "2")
	if m.ActivePlugin().ID() != "cards" {
		t.Fatalf("2 -> %s", m.ActivePlugin().ID())
	}
	if _, ok := cmd().(plugin.PluginFocusedMsg); !ok {
		t.Error("focus change should send PluginFocusedMsg")
	}
	if state.GetActivePlugin() != "cards" {
		t.Error("active plugin not persisted")
	}

	next, _ := m.Update(msg.FocusPluginMsg{PluginID: "preview"})
	if next.(Model).ActivePlugin().ID() != "preview" {
		t.Error("FocusPluginMsg ignored")
	}
}

func TestFirstResizeFiresLayoutReady(t *testing.T) {
	a := newStub("preview")
	m, ctx := newTestModel(t, a)
	fired := 0
	ctx.OnLayoutReady(func() { fired++ })

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = next.(Model)
	next, _ = m.Update(tea.WindowSizeMsg{Width: 90, Height: 30})
	m = next.(Model)

	if fired != 1 {
		t.Errorf("layout hook ran %d times, want 1", fired)
	}
	var ready int
	var sizes []tea.WindowSizeMsg
	for _, r := range a.received {
		switch r := r.(type) {
		case plugin.LayoutReadyMsg:
			ready++
		case tea.WindowSizeMsg:
			sizes = append(sizes, r)
		}
	}
	if ready != 1 {
		t.Errorf("LayoutReadyMsg delivered %d times", ready)
	}
	if len(sizes) != 2 || sizes[0].Height != 40-headerHeight-footerHeight || sizes[1].Width != 90 {
		t.Errorf("sizes = %+v", sizes)
	}
	if !strings.Contains(m.View(), "view of preview") {
		t.Error("view missing plugin content")
	}
}

func TestKeyRouting(t *testing.T) {
	a := newStub("preview")
	refreshed := 0
	a.commands = append(a.commands, plugin.Command{ID: "refresh-cards", Context: "global", Handler: func() tea.Cmd {
		refreshed++
		return nil
	}})
	m, _ := newTestModel(t, a)
	m.keymap.Bind(keymap.Binding{Key: "x", Command: "preview-action", Context: "preview"})

	m, _ = press(m, "r", "x", "z")
	if refreshed != 1 {
		t.Errorf("global command ran %d times", refreshed)
	}
	if len(a.ran) != 1 || a.ran[0] != "preview-action" {
		t.Errorf("plugin commands ran = %v", a.ran)
	}
	if keys := a.keys(); len(keys) != 1 || keys[0] != "z" {
		t.Errorf("forwarded keys = %v, want [z]", keys)
	}
}

func TestTextInputConsumerGetsKeys(t *testing.T) {
	a := newStub("dataview")
	a.typing = true
	m, _ := newTestModel(t, a)

	m, _ = press(m, "q", "r", "2")
	if m.showQuitConfirm {
		t.Error("q should be typed, not quit")
	}
	if keys := a.keys(); strings.Join(keys, "") != "qr2" {
		t.Errorf("forwarded keys = %v", keys)
	}

	m, _ = press(m, "ctrl+c")
	if !m.showQuitConfirm {
		t.Error("ctrl+c should always ask to quit")
	}
}

func TestQuitConfirm(t *testing.T) {
	m, _ := newTestModel(t, newStub("preview"))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = next.(Model)

	m, _ = press(m, "q")
	if !m.showQuitConfirm {
		t.Fatal("q in a root context should ask to quit")
	}
	if !strings.Contains(m.View(), "Quit notecards?") {
		t.Error("confirm dialog not rendered")
	}
	m, _ = press(m, "n")
	if m.showQuitConfirm {
		t.Fatal("n should cancel")
	}
	m, _ = press(m, "q")
	_, cmd := press(m, "y")
	if cmd == nil {
		t.Fatal("y should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestQuitKeyForwardedInSubContext(t *testing.T) {
	a := newStub("formbind")
	a.context = "formbind-form"
	m, _ := newTestModel(t, a)
	m, _ = press(m, "q")
	if m.showQuitConfirm {
		t.Error("q in a sub-view should not quit")
	}
	if keys := a.keys(); len(keys) != 1 || keys[0] != "q" {
		t.Errorf("forwarded = %v", keys)
	}
}

func TestHelpModalBlocksKeys(t *testing.T) {
	a := newStub("preview")
	m, _ := newTestModel(t, a)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)

	m, _ = press(m, "?")
	if !m.showHelp {
		t.Fatal("? should open help")
	}
	if !strings.Contains(m.View(), "Keys") {
		t.Error("help modal not rendered")
	}
	m, _ = press(m, "z", "tab")
	if len(a.keys()) != 0 || m.ActivePlugin().ID() != "preview" {
		t.Error("keys leaked past the help modal")
	}
	m, _ = press(m, "esc")
	if m.showHelp {
		t.Error("esc should close help")
	}
}

func TestToasts(t *testing.T) {
	m, _ := newTestModel(t, newStub("preview"))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	m = next.(Model)

	next, _ = m.Update(msg.ToastMsg{Message: "Card views refreshed", Duration: time.Hour})
	m = next.(Model)
	if !strings.Contains(m.View(), "Card views refreshed") {
		t.Error("toast not shown")
	}

	m.statusExpiry = time.Now().Add(-time.Second)
	next, _ = m.Update(TickMsg(time.Now()))
	m = next.(Model)
	if m.statusMsg != "" {
		t.Error("expired toast not cleared")
	}

	next, _ = m.Update(msg.ToastMsg{Message: "boom", IsError: true})
	m = next.(Model)
	if !m.statusIsError || m.lastError == nil || m.lastError.Error() != "boom" {
		t.Error("error toast not recorded as last error")
	}
}

func TestEditorClosedRerendersPreview(t *testing.T) {
	m, ctx := newTestModel(t, newStub("preview"))
	host := NewHost(nil)
	view := &fakeView{path: "a.md", hasNote: true}
	host.SetMarkdownView(view)
	ctx.Workspace = host

	next, _ := m.Update(editorClosedMsg{Path: "a.md"})
	m = next.(Model)
	if len(view.rerender) != 1 || view.rerender[0] != plugin.RenderInitial {
		t.Errorf("rerenders = %v", view.rerender)
	}

	next, _ = m.Update(editorClosedMsg{Path: "a.md", Err: errors.New("exit 1")})
	m = next.(Model)
	if !m.statusIsError || len(view.rerender) != 1 {
		t.Error("failed editor should toast and not rerender")
	}
}

func TestDiagnosticsListsUnavailable(t *testing.T) {
	broken := newStub("formbind")
	broken.initErr = errors.New("disabled in config")
	m, _ := newTestModel(t, newStub("preview"), broken)

	out := m.buildDiagnosticsContent()
	for _, want := range []string{"preview: active", "formbind: disabled in config", "Vault: /tmp/vault"} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostics missing %q:\n%s", want, out)
		}
	}
}

func TestFooterHints(t *testing.T) {
	m, _ := newTestModel(t, newStub("preview"))
	m.keymap.Bind(keymap.Binding{Key: "x", Command: "preview-action", Context: "preview"})
	hints := m.footerHints()
	if len(hints) == 0 || hints[0].label != "Act" || hints[0].keys != "x" {
		t.Errorf("hints = %+v", hints)
	}
}

func TestUserOverridesApplied(t *testing.T) {
	a := newStub("preview")
	if err := state.InitWithDir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Keymap.Overrides = map[string]map[string]string{"preview": {"w": "preview-action"}}
	ctx := &plugin.Context{Config: cfg, Logger: slog.New(slog.DiscardHandler)}
	reg := plugin.NewRegistry(ctx)
	_ = reg.Register(a)
	m := New(reg, keymap.NewDefault(), cfg, "", "")

	press(m, "w")
	if len(a.ran) != 1 {
		t.Error("override not applied")
	}
}

func TestMouseClickSwitchesTabAndForwardsContent(t *testing.T) {
	a, b := newStub("preview"), newStub("cards")
	m, _ := newTestModel(t, a, b)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)

	regions := m.tabHitMap().Regions()
	if len(regions) != 2 {
		t.Fatalf("tab regions = %d", len(regions))
	}
	r := regions[1].Rect
	next, _ = m.Update(tea.MouseMsg{X: r.X + 1, Y: 0, Button: tea.MouseButtonLeft, Action: tea.MouseActionPress})
	m = next.(Model)
	if m.ActivePlugin().ID() != "cards" {
		t.Fatalf("click on second tab -> %s", m.ActivePlugin().ID())
	}

	b.received = nil
	_, _ = m.Update(tea.MouseMsg{X: 5, Y: 10, Button: tea.MouseButtonWheelDown, Action: tea.MouseActionPress})
	if len(b.received) != 1 {
		t.Fatalf("active plugin got %d messages", len(b.received))
	}
	if ev := b.received[0].(tea.MouseMsg); ev.Y != 10-headerHeight {
		t.Errorf("content Y = %d, want %d", ev.Y, 10-headerHeight)
	}
	for _, r := range a.received {
		if _, ok := r.(tea.MouseMsg); ok {
			t.Error("inactive plugin received a mouse event")
		}
	}
}
