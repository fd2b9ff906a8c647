package formbind

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/notecards/internal/msg"
	"github.com/marcus/notecards/internal/plugin"
	"github.com/marcus/notecards/internal/styles"
)

const (
	pluginID   = "formbind"
	pluginName = "properties"
	pluginIcon = "P"

	// ServiceID is the locator key the API handle is published under.
	ServiceID = "formbind"
)

type formKind int

const (
	formNone formKind = iota
	formEdit
	formAdd
	formDelete
)

// Plugin edits the frontmatter properties of the open note.
type Plugin struct {
	ctx     *plugin.Context
	focused bool
	binder  *Binder

	note   string
	props  []Property
	cursor int
	err    error

	form      *huh.Form
	kind      formKind
	formKey   string
	formValue string
	confirm   bool
	width     int
}

// New creates a new form-binding plugin.
func New() *Plugin {
	return &Plugin{}
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string { return pluginID }

// Name returns the plugin display name.
func (p *Plugin) Name() string { return pluginName }

// Icon returns the plugin icon character.
func (p *Plugin) Icon() string { return pluginIcon }

// Binder returns the property writer, nil before Init.
func (p *Plugin) Binder() *Binder { return p.binder }

// Init publishes the API handle matching the configured level.
func (p *Plugin) Init(ctx *plugin.Context) error {
	p.ctx = ctx
	cfg := ctx.Config.Plugins.FormBind
	if !cfg.Enabled {
		return fmt.Errorf("disabled in config")
	}
	p.binder = NewBinder(ctx.VaultDir, ctx.Events, ctx.Logger)
	ctx.Services.Provide(ServiceID, p.binder.Handle(cfg.APILevel))
	ctx.Logger.Debug("formbind: ready", "apiLevel", cfg.APILevel)
	return nil
}

// Start begins plugin operation.
func (p *Plugin) Start() tea.Cmd { return nil }

// Stop withdraws the service handle.
func (p *Plugin) Stop() {
	if p.ctx != nil && p.ctx.Services != nil {
		p.ctx.Services.Remove(ServiceID)
	}
}

// Update handles messages.
func (p *Plugin) Update(m tea.Msg) (plugin.Plugin, tea.Cmd) {
	if p.form != nil {
		return p.updateForm(m)
	}

	switch m := m.(type) {
	case plugin.PluginFocusedMsg:
		p.reload()
	case tea.WindowSizeMsg:
		p.width = m.Width
	case tea.KeyMsg:
		if !p.focused {
			return p, nil
		}
		switch m.String() {
		case "j", "down":
			if p.cursor < len(p.props)-1 {
				p.cursor++
			}
		case "k", "up":
			if p.cursor > 0 {
				p.cursor--
			}
		}
	}
	return p, nil
}

func (p *Plugin) reload() {
	p.note, p.props, p.err = "", nil, nil
	if p.ctx.Workspace == nil {
		return
	}
	view, ok := p.ctx.Workspace.ActiveMarkdownView()
	if !ok || view.FilePath() == "" {
		return
	}
	p.note = view.FilePath()
	p.props, p.err = p.binder.Properties(p.note)
	if p.cursor >= len(p.props) {
		p.cursor = max(0, len(p.props)-1)
	}
}

func (p *Plugin) selected() (Property, bool) {
	if p.cursor < 0 || p.cursor >= len(p.props) {
		return Property{}, false
	}
	return p.props[p.cursor], true
}

func (p *Plugin) openEdit() tea.Cmd {
	prop, ok := p.selected()
	if !ok {
		return nil
	}
	p.kind, p.formKey, p.formValue = formEdit, prop.Key, prop.Raw
	p.form = huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(prop.Key).
			Description("YAML value; lists as [a, b]").
			Value(&p.formValue),
	)).WithShowHelp(false)
	return p.form.Init()
}

func (p *Plugin) openAdd() tea.Cmd {
	if p.note == "" {
		return msg.ShowError("No note open", 2*time.Second)
	}
	p.kind, p.formKey, p.formValue = formAdd, "", ""
	p.form = huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Property").
			Value(&p.formKey).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("name is required")
				}
				return nil
			}),
		huh.NewInput().
			Title("Value").
			Value(&p.formValue),
	)).WithShowHelp(false)
	return p.form.Init()
}

func (p *Plugin) openDelete() tea.Cmd {
	prop, ok := p.selected()
	if !ok {
		return nil
	}
	p.kind, p.formKey, p.confirm = formDelete, prop.Key, false
	p.form = huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Delete %q?", prop.Key)).
			Affirmative("Delete").
			Negative("Cancel").
			Value(&p.confirm),
	)).WithShowHelp(false)
	return p.form.Init()
}

func (p *Plugin) updateForm(m tea.Msg) (plugin.Plugin, tea.Cmd) {
	if k, ok := m.(tea.KeyMsg); ok && k.String() == "esc" {
		p.closeForm()
		return p, nil
	}

	model, cmd := p.form.Update(m)
	if f, ok := model.(*huh.Form); ok {
		p.form = f
	}

	switch p.form.State {
	case huh.StateAborted:
		p.closeForm()
		return p, nil
	case huh.StateCompleted:
		result := p.apply()
		p.closeForm()
		p.reload()
		return p, result
	}
	return p, cmd
}

// apply writes the completed form back to the note.
func (p *Plugin) apply() tea.Cmd {
	var err error
	switch p.kind {
	case formEdit, formAdd:
		err = p.binder.SetProperty(p.note, p.formKey, ParseValue(p.formValue))
	case formDelete:
		if !p.confirm {
			return nil
		}
		err = p.binder.DeleteProperty(p.note, p.formKey)
	}
	if err != nil {
		p.ctx.Logger.Error("formbind: write failed", "path", p.note, "key", p.formKey, "err", err)
		return msg.ShowError("Save failed: "+err.Error(), 3*time.Second)
	}
	return msg.ShowToast("Saved "+p.formKey, 1500*time.Millisecond)
}

func (p *Plugin) closeForm() {
	p.form = nil
	p.kind = formNone
}

// ConsumesTextInput reports whether a form has focus.
func (p *Plugin) ConsumesTextInput() bool { return p.form != nil }

// View renders the property list or the open form.
func (p *Plugin) View(width, height int) string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("Properties"))
	if p.note != "" {
		b.WriteString(styles.Muted.Render("  " + p.note))
	}
	b.WriteString("\n\n")

	switch {
	case p.form != nil:
		b.WriteString(p.form.WithWidth(min(width, 60)).View())
	case p.note == "":
		b.WriteString(styles.Muted.Render("Open a note in the preview to edit its properties."))
	case p.err != nil:
		b.WriteString(styles.BlockError.Render(p.err.Error()))
	case len(p.props) == 0:
		b.WriteString(styles.Muted.Render("No properties. Press a to add one."))
	default:
		keyWidth := 0
		for _, prop := range p.props {
			keyWidth = max(keyWidth, ansi.StringWidth(prop.Key))
		}
		for i, prop := range p.props {
			key := prop.Key + strings.Repeat(" ", keyWidth-ansi.StringWidth(prop.Key))
			line := fmt.Sprintf("%s  %s", styles.CardKey.Render(key), prop.Raw)
			line = ansi.Truncate(line, max(width-2, 1), "…")
			if i == p.cursor && p.focused {
				b.WriteString(styles.ListCursor.Render("> "))
				b.WriteString(styles.ListItemSelected.Render(line))
			} else {
				b.WriteString("  ")
				b.WriteString(line)
			}
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
		p.closeForm()
	}
}

// Commands returns the available commands.
func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{ID: "edit-property", Name: "Edit", Description: "Edit the selected property", Category: plugin.CategoryEdit, Context: pluginID, Priority: 1, Handler: p.openEdit},
		{ID: "add-property", Name: "Add", Description: "Add a property", Category: plugin.CategoryEdit, Context: pluginID, Priority: 2, Handler: p.openAdd},
		{ID: "delete-property", Name: "Delete", Description: "Delete the selected property", Category: plugin.CategoryEdit, Context: pluginID, Priority: 3, Handler: p.openDelete},
		{ID: "reload-properties", Name: "Reload", Description: "Re-read the open note", Category: plugin.CategoryView, Context: pluginID, Handler: func() tea.Cmd {
			p.reload()
			return nil
		}},
	}
}

// FocusContext returns the keymap context.
func (p *Plugin) FocusContext() string {
	if p.form != nil {
		return pluginID + "-form"
	}
	return pluginID
}
