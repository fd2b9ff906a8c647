package plugin

import (
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Registry owns the plugins in tab order.
type Registry struct {
	ctx         *Context
	mu          sync.RWMutex
	plugins     []Plugin
	unavailable map[string]string
}

// NewRegistry creates a registry bound to ctx.
func NewRegistry(ctx *Context) *Registry {
	return &Registry{
		ctx:         ctx,
		unavailable: make(map[string]string),
	}
}

// Context returns the shared plugin context.
func (r *Registry) Context() *Context {
	return r.ctx
}

// Register initializes p and adds it to the registry. A plugin whose Init
// fails or panics is recorded as unavailable instead of aborting startup.
func (r *Registry) Register(p Plugin) error {
	if err := r.safeInit(p); err != nil {
		r.mu.Lock()
		r.unavailable[p.ID()] = err.Error()
		r.mu.Unlock()
		if r.ctx != nil && r.ctx.Logger != nil {
			r.ctx.Logger.Warn("plugin unavailable", "plugin", p.ID(), "err", err)
		}
		return nil
	}

	r.mu.Lock()
	r.plugins = append(r.plugins, p)
	r.mu.Unlock()
	return nil
}

func (r *Registry) safeInit(p Plugin) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("init panicked: %v", rec)
		}
	}()
	return p.Init(r.ctx)
}

// Plugins returns the available plugins in registration order.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Plugin returns the plugin with the given ID.
func (r *Registry) Plugin(id string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plugins {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

// Replace swaps in an updated plugin value returned from Update.
func (r *Registry) Replace(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.plugins {
		if existing.ID() == p.ID() {
			r.plugins[i] = p
			return
		}
	}
}

// Unavailable maps plugin IDs to the reason they failed to initialize.
func (r *Registry) Unavailable() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.unavailable))
	for k, v := range r.unavailable {
		out[k] = v
	}
	return out
}

// Start starts every plugin and collects their startup commands.
func (r *Registry) Start() []tea.Cmd {
	var cmds []tea.Cmd
	for _, p := range r.Plugins() {
		if cmd := p.Start(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

// Stop stops plugins in reverse registration order.
func (r *Registry) Stop() {
	plugins := r.Plugins()
	for i := len(plugins) - 1; i >= 0; i-- {
		plugins[i].Stop()
	}
}
