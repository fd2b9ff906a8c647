package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/notecards/internal/config"
	"github.com/marcus/notecards/internal/event"
	"github.com/marcus/notecards/internal/surface"
)

// Context provides shared resources to plugins.
type Context struct {
	WorkDir    string
	VaultDir   string
	ConfigDir  string
	ConfigFile string // file the settings are saved back to ("" = default location)
	Config     *config.Config
	Logger     *slog.Logger
	LogLevel   *slog.LevelVar // nil when the level is fixed
	Events     *event.Dispatcher
	Services   *Services
	Workspace  Workspace
	Epoch      uint64 // Incremented when the vault changes

	// Send delivers a message into the running program. Nil in headless mode.
	Send func(tea.Msg)

	mu          sync.Mutex
	layoutReady bool
	layoutHooks []func()
	processors  map[string]CodeBlockProcessor
}

// OnLayoutReady registers fn to run once the host finished its first layout
// pass. If that already happened, fn runs immediately.
func (c *Context) OnLayoutReady(fn func()) {
	c.mu.Lock()
	if c.layoutReady {
		c.mu.Unlock()
		fn()
		return
	}
	c.layoutHooks = append(c.layoutHooks, fn)
	c.mu.Unlock()
}

// FireLayoutReady runs the registered layout hooks. Only the first call has
// an effect.
func (c *Context) FireLayoutReady() {
	c.mu.Lock()
	if c.layoutReady {
		c.mu.Unlock()
		return
	}
	c.layoutReady = true
	hooks := c.layoutHooks
	c.layoutHooks = nil
	c.mu.Unlock()

	for _, fn := range hooks {
		c.runHook(fn)
	}
}

func (c *Context) runHook(fn func()) {
	defer func() {
		if r := recover(); r != nil && c.Logger != nil {
			c.Logger.Error("layout-ready hook panicked", "panic", r)
		}
	}()
	fn()
}

// LayoutReady reports whether FireLayoutReady has been called.
func (c *Context) LayoutReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layoutReady
}

// RenderReason says why a block is being rendered.
type RenderReason int

const (
	RenderInitial   RenderReason = iota // note opened
	RenderManual                        // user asked for a refresh
	RenderAutomatic                     // metadata change
)

func (r RenderReason) String() string {
	switch r {
	case RenderInitial:
		return "initial"
	case RenderManual:
		return "manual"
	case RenderAutomatic:
		return "automatic"
	}
	return fmt.Sprintf("RenderReason(%d)", int(r))
}

// BlockContext describes the fenced block handed to a processor.
type BlockContext struct {
	SourcePath string // vault-relative note path
	Index      int    // position among the note's blocks of the same language
	Width      int    // available columns
	Reason     RenderReason
}

// CodeBlockProcessor renders the body of a fenced code block into el.
// Processors report failures inside el; they never return errors.
type CodeBlockProcessor func(ctx context.Context, source string, el *surface.Element, bc BlockContext)

// RegisterCodeBlockProcessor binds fn to fenced blocks tagged lang.
func (c *Context) RegisterCodeBlockProcessor(lang string, fn CodeBlockProcessor) error {
	if lang == "" || fn == nil {
		return fmt.Errorf("register code block processor: empty language or nil processor")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.processors == nil {
		c.processors = make(map[string]CodeBlockProcessor)
	}
	if _, exists := c.processors[lang]; exists {
		return fmt.Errorf("register code block processor: %q already registered", lang)
	}
	c.processors[lang] = fn
	return nil
}

// CodeBlockProcessor returns the processor registered for lang.
func (c *Context) CodeBlockProcessor(lang string) (CodeBlockProcessor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn, ok := c.processors[lang]
	return fn, ok
}

// CodeBlockLanguages lists languages with a registered processor, sorted.
func (c *Context) CodeBlockLanguages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	langs := make([]string, 0, len(c.processors))
	for l := range c.processors {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}
