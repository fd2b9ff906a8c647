package cards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/marcus/notecards/internal/blockconfig"
	"github.com/marcus/notecards/internal/dataview"
	"github.com/marcus/notecards/internal/plugin"
	"github.com/marcus/notecards/internal/surface"
)

// In-block messages.
const (
	MsgEngineUnavailable = "Dataview plugin is not enabled"
	MsgQueryFailedPrefix = "Query failed: "
	MsgNoData            = "Query returned no data"
	MsgNoNotes           = "No notes found"
)

var (
	// ErrEngineUnavailable means no query engine is registered.
	ErrEngineUnavailable = errors.New("query engine unavailable")
	// ErrQueryFailed wraps unsuccessful query executions.
	ErrQueryFailed = errors.New("query failed")
	// ErrNotReady is logged when the engine did not finish indexing in time.
	ErrNotReady = errors.New("query engine not ready")
	// ErrNoData means the query succeeded without a value.
	ErrNoData = errors.New("query returned no data")
)

const (
	defaultReadyTimeout = 5 * time.Second
	maxCachedBlocks     = 256
	warningClass        = "dataview-warning"
)

// QueryEngine is what the processor needs from the query engine.
type QueryEngine interface {
	IsReady() bool
	WaitUntilReady(ctx context.Context, timeout time.Duration) bool
	ExecuteQuery(ctx context.Context, query, origin string, el *surface.Element) (dataview.Result, error)
}

// Renderer draws block output.
type Renderer interface {
	RenderCards(el *surface.Element, data any, cfg blockconfig.RenderConfig) error
	RenderEmptyState(el *surface.Element, message string)
	RenderError(el *surface.Element, message, source string)
	RenderWarning(el *surface.Element, message string)
}

// Processor renders cards blocks.
type Processor struct {
	engine       func() (QueryEngine, bool)
	renderer     Renderer
	logger       *slog.Logger
	readyTimeout time.Duration
	debug        atomic.Bool

	mu       sync.Mutex
	defaults blockconfig.Defaults
	cache    map[uint64]*surface.Element
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithEngine uses a fixed engine instead of the service locator.
func WithEngine(e QueryEngine) ProcessorOption {
	return func(p *Processor) {
		p.engine = func() (QueryEngine, bool) { return e, e != nil }
	}
}

// WithReadyTimeout bounds the wait for the engine's initial index.
func WithReadyTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.readyTimeout = d
		}
	}
}

// WithDefaults sets the card defaults applied to every block.
func WithDefaults(d blockconfig.Defaults) ProcessorOption {
	return func(p *Processor) { p.defaults = d }
}

// WithProcessorLogger sets the logger.
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProcessor creates a processor that looks the query engine up in
// services on every block, so an engine that appears late is picked up.
func NewProcessor(services *plugin.Services, r Renderer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		engine: func() (QueryEngine, bool) {
			return plugin.LookupAs[QueryEngine](services, dataview.ServiceID)
		},
		renderer:     r,
		logger:       slog.New(slog.DiscardHandler),
		readyTimeout: defaultReadyTimeout,
		cache:        make(map[uint64]*surface.Element),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetDebug toggles copying query warnings into blocks.
func (p *Processor) SetDebug(on bool) { p.debug.Store(on) }

// SetDefaults replaces the card defaults.
func (p *Processor) SetDefaults(d blockconfig.Defaults) {
	p.mu.Lock()
	p.defaults = d
	p.mu.Unlock()
}

// Process is the code block processor for cards blocks. Failures are
// rendered into el and logged.
func (p *Processor) Process(ctx context.Context, source string, el *surface.Element, bc plugin.BlockContext) {
	if err := p.Render(ctx, source, el, bc); err != nil {
		p.logger.Debug("cards: block rendered with error",
			"file", bc.SourcePath, "block", bc.Index, "err", err)
	}
}

// Render processes one block into el and returns the condition it rendered,
// if any. It never panics.
func (p *Processor) Render(ctx context.Context, source string, el *surface.Element, bc plugin.BlockContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("cards: block processing panicked",
				"file", bc.SourcePath, "block", bc.Index, "panic", r, "stack", string(debug.Stack()))
			el.Empty()
			p.renderer.RenderError(el, fmt.Sprintf("Card rendering failed: %v", r), source)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	engine, ok := p.engine()
	if !ok {
		p.renderer.RenderError(el, MsgEngineUnavailable, "")
		return ErrEngineUnavailable
	}

	if !engine.IsReady() && !engine.WaitUntilReady(ctx, p.readyTimeout) {
		p.logger.Warn("cards: rendering before the index is ready",
			"file", bc.SourcePath, "timeout", p.readyTimeout, "err", ErrNotReady)
	}

	block, err := blockconfig.Parse(source)
	if err != nil {
		p.renderer.RenderError(el, "Invalid cards block: "+err.Error(), source)
		return err
	}

	p.mu.Lock()
	defaults := p.defaults
	p.mu.Unlock()
	cfg := block.Config.WithDefaults(defaults)
	cfg.Width = bc.Width
	p.logger.Debug("cards: processing block",
		"file", bc.SourcePath, "block", bc.Index, "reason", bc.Reason, "dynamic", cfg.Dynamic())

	key := cacheKey(source, bc)
	if bc.Reason == plugin.RenderAutomatic && !cfg.Dynamic() {
		if cached, ok := p.cached(key); ok {
			replay(el, cached)
			return nil
		}
	}

	res, err := p.execute(ctx, engine, block.Query, bc.SourcePath, el)
	if err != nil {
		p.logger.Error("cards: query execution failed", "file", bc.SourcePath, "block", bc.Index, "err", err)
		p.renderer.RenderError(el, MsgQueryFailedPrefix+err.Error(), source)
		return fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	in := Interpret(res)
	switch in.Outcome {
	case OutcomeFailed:
		p.renderer.RenderError(el, MsgQueryFailedPrefix+in.Message, source)
		return fmt.Errorf("%w: %s", ErrQueryFailed, in.Message)
	case OutcomeNoData:
		p.renderer.RenderError(el, MsgNoData, source)
		return ErrNoData
	case OutcomeEmpty:
		p.renderer.RenderEmptyState(el, cfg.EmptyMessage)
	default:
		if err := p.renderer.RenderCards(el, in.Value, cfg); err != nil {
			p.renderer.RenderError(el, "Card rendering failed: "+err.Error(), source)
			return err
		}
	}

	if !cfg.Dynamic() {
		p.store(key, el)
	}
	return nil
}

// execute runs the query against a scratch element that is always removed.
// Warnings the engine wrote into the scratch are copied in debug mode.
func (p *Processor) execute(ctx context.Context, engine QueryEngine, query, origin string, el *surface.Element) (dataview.Result, error) {
	scratch := surface.NewDetached()
	defer scratch.Remove()

	res, err := engine.ExecuteQuery(ctx, query, origin, scratch)
	for _, c := range scratch.Children() {
		if c.Class() != warningClass {
			continue
		}
		p.logger.Debug("cards: query warning", "file", origin, "warning", c.Text())
		if p.debug.Load() {
			p.renderer.RenderWarning(el, c.Text())
		}
	}
	return res, err
}

func (p *Processor) cached(key uint64) (*surface.Element, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.cache[key]
	return el, ok
}

func (p *Processor) store(key uint64, el *surface.Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.cache) >= maxCachedBlocks {
		clear(p.cache)
	}
	p.cache[key] = el.Clone()
}

// replay copies a cached rendering into el.
func replay(el, cached *surface.Element) {
	el.Empty()
	cp := cached.Clone()
	el.SetText(cp.Text())
	for _, c := range cp.Children() {
		el.AppendChild(c)
	}
}

func cacheKey(source string, bc plugin.BlockContext) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(bc.SourcePath)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.Itoa(bc.Index))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.Itoa(bc.Width))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(source)
	return d.Sum64()
}
