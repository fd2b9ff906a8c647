// Package keymap maps key presses to plugin and app commands per focus
// context.
package keymap

import (
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// GlobalContext is consulted after the focused context.
const GlobalContext = "global"

// Binding maps a key to a command in a context.
type Binding struct {
	Key     string
	Command string
	Context string
}

// Command is an action reachable through a binding.
type Command struct {
	ID          string
	Name        string
	Description string
	Context     string
	Handler     func() tea.Cmd
}

// Registry holds bindings and the commands they resolve to.
type Registry struct {
	mu        sync.RWMutex
	commands  map[string]Command
	bindings  map[string][]Binding // context -> bindings
	overrides map[string]string    // context + "\x00" + key -> command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]Command),
		bindings:  make(map[string][]Binding),
		overrides: make(map[string]string),
	}
}

// NewDefault creates a registry preloaded with DefaultBindings.
func NewDefault() *Registry {
	r := NewRegistry()
	for _, b := range DefaultBindings() {
		r.Bind(b)
	}
	return r
}

// Bind adds a binding. A key bound twice in one context keeps the first.
func (r *Registry) Bind(b Binding) {
	if b.Context == "" {
		b.Context = GlobalContext
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.bindings[b.Context] {
		if existing.Key == b.Key {
			return
		}
	}
	r.bindings[b.Context] = append(r.bindings[b.Context], b)
}

// RegisterCommand adds or replaces a command. Commands are keyed by context
// and ID so plugins may reuse IDs in their own contexts.
func (r *Registry) RegisterCommand(cmd Command) {
	if cmd.Context == "" {
		cmd.Context = GlobalContext
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[commandKey(cmd.Context, cmd.ID)] = cmd
}

// SetUserOverride rebinds key in context to command, shadowing defaults.
func (r *Registry) SetUserOverride(context, key, command string) {
	if context == "" {
		context = GlobalContext
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[commandKey(context, key)] = command
}

// GetCommand looks a command up by ID, preferring the global context.
func (r *Registry) GetCommand(id string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[commandKey(GlobalContext, id)]; ok {
		return cmd, true
	}
	for _, cmd := range r.commands {
		if cmd.ID == id {
			return cmd, true
		}
	}
	return Command{}, false
}

// Handle resolves msg in context, then in the global context, and runs the
// command's handler. handled is false when no command is bound to the key.
func (r *Registry) Handle(msg tea.KeyMsg, context string) (cmd tea.Cmd, handled bool) {
	command, ok := r.resolve(msg.String(), context)
	if !ok || command.Handler == nil {
		return nil, false
	}
	return command.Handler(), true
}

// CommandFor returns the command ID bound to key k in context or, failing
// that, in the global context.
func (r *Registry) CommandFor(k, context string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.commandForKey(context, k); ok {
		return id, true
	}
	return r.commandForKey(GlobalContext, k)
}

func (r *Registry) resolve(k, context string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	contexts := []string{context}
	if context != GlobalContext {
		contexts = append(contexts, GlobalContext)
	}
	for _, c := range contexts {
		id, ok := r.commandForKey(c, k)
		if !ok {
			continue
		}
		if cmd, ok := r.commands[commandKey(c, id)]; ok {
			return cmd, true
		}
		if cmd, ok := r.commands[commandKey(GlobalContext, id)]; ok {
			return cmd, true
		}
	}
	return Command{}, false
}

func (r *Registry) commandForKey(context, k string) (string, bool) {
	if id, ok := r.overrides[commandKey(context, k)]; ok {
		return id, true
	}
	for _, b := range r.bindings[context] {
		if b.Key == k {
			return b.Command, true
		}
	}
	return "", false
}

// BindingsForContext returns the effective bindings of one context.
func (r *Registry) BindingsForContext(context string) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Binding
	seen := make(map[string]bool)
	for ck, id := range r.overrides {
		c, k, _ := strings.Cut(ck, "\x00")
		if c == context {
			out = append(out, Binding{Key: k, Command: id, Context: c})
			seen[k] = true
		}
	}
	for _, b := range r.bindings[context] {
		if !seen[b.Key] {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// KeysFor returns the keys bound to command id in context.
func (r *Registry) KeysFor(context, id string) []string {
	var keys []string
	for _, b := range r.BindingsForContext(context) {
		if b.Command == id {
			keys = append(keys, b.Key)
		}
	}
	return keys
}

// HelpKeyMap adapts the bindings of context, plus the global ones, to the
// bubbles help component. Only bindings with a registered command show up.
func (r *Registry) HelpKeyMap(context string) HelpKeyMap {
	var hk HelpKeyMap
	collect := func(c string) []key.Binding {
		var out []key.Binding
		byCmd := make(map[string][]string)
		var order []string
		for _, b := range r.BindingsForContext(c) {
			if _, ok := byCmd[b.Command]; !ok {
				order = append(order, b.Command)
			}
			byCmd[b.Command] = append(byCmd[b.Command], b.Key)
		}
		for _, id := range order {
			cmd, ok := r.lookup(c, id)
			if !ok {
				continue
			}
			label := cmd.Name
			if label == "" {
				label = id
			}
			keys := byCmd[id]
			out = append(out, key.NewBinding(key.WithKeys(keys...), key.WithHelp(strings.Join(keys, "/"), label)))
		}
		return out
	}
	if context != GlobalContext {
		hk.Context = collect(context)
	}
	hk.Global = collect(GlobalContext)
	return hk
}

func (r *Registry) lookup(context, id string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[commandKey(context, id)]; ok {
		return cmd, true
	}
	cmd, ok := r.commands[commandKey(GlobalContext, id)]
	return cmd, ok
}

func commandKey(context, s string) string {
	return context + "\x00" + s
}

// HelpKeyMap implements help.KeyMap.
type HelpKeyMap struct {
	Context []key.Binding
	Global  []key.Binding
}

// ShortHelp lists the focused context's bindings, falling back to global.
func (h HelpKeyMap) ShortHelp() []key.Binding {
	if len(h.Context) > 0 {
		return h.Context
	}
	return h.Global
}

// FullHelp returns one column per context.
func (h HelpKeyMap) FullHelp() [][]key.Binding {
	var cols [][]key.Binding
	if len(h.Context) > 0 {
		cols = append(cols, h.Context)
	}
	if len(h.Global) > 0 {
		cols = append(cols, h.Global)
	}
	return cols
}
