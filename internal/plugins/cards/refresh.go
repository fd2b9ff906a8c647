package cards

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcus/notecards/internal/debounce"
	"github.com/marcus/notecards/internal/plugin"
)

// SettleDelay is how long the controller stays in the refreshing state after
// asking the preview to re-render. The preview renders asynchronously, so
// this is a quiet period rather than a completion signal.
const SettleDelay = 250 * time.Millisecond

// User-facing refresh notifications.
const (
	MsgRefreshed = "Card views refreshed"
	MsgNoView    = "No active markdown view to refresh"
)

const notifyDuration = 2 * time.Second

// RefreshState is the single re-entrancy flag of the refresh controller.
type RefreshState struct {
	refreshing atomic.Bool
}

// TryEnter moves Idle to Refreshing. It reports false when a refresh is
// already running.
func (s *RefreshState) TryEnter() bool {
	return s.refreshing.CompareAndSwap(false, true)
}

// Exit returns to Idle.
func (s *RefreshState) Exit() {
	s.refreshing.Store(false)
}

// Refreshing reports whether a refresh is in progress.
func (s *RefreshState) Refreshing() bool {
	return s.refreshing.Load()
}

// Controller re-renders the active markdown view, at most one refresh at a
// time. Automatic refreshes go through a debouncer so a burst of changes
// produces a single re-render.
type Controller struct {
	ws     plugin.Workspace
	logger *slog.Logger
	settle time.Duration
	state  RefreshState

	mu       sync.Mutex
	debounce *debounce.Debouncer
	timer    *time.Timer
	stopped  bool

	refreshes atomic.Int64
	dropped   atomic.Int64
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithSettleDelay overrides SettleDelay.
func WithSettleDelay(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d >= 0 {
			c.settle = d
		}
	}
}

// NewController creates a controller whose automatic refreshes wait for
// delay of quiet.
func NewController(ws plugin.Workspace, delay time.Duration, logger *slog.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Controller{
		ws:     ws,
		logger: logger,
		settle: SettleDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.debounce = debounce.New(delay, c.automatic)
	return c
}

// automatic is the debounced action. A fire that raced Stop is dropped.
func (c *Controller) automatic() {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return
	}
	c.refresh(false, plugin.RenderAutomatic)
}

// RefreshActiveView asks the active markdown view to re-render every card
// block. notify shows a confirmation; manual refreshes pass true. A call made
// while a refresh is running is dropped. It reports whether a re-render was
// requested.
func (c *Controller) RefreshActiveView(notify bool) bool {
	reason := plugin.RenderAutomatic
	if notify {
		reason = plugin.RenderManual
	}
	return c.refresh(notify, reason)
}

func (c *Controller) refresh(notify bool, reason plugin.RenderReason) bool {
	if !c.state.TryEnter() {
		c.dropped.Add(1)
		c.logger.Debug("cards: refresh already in progress", "reason", reason)
		return false
	}

	var view plugin.MarkdownView
	ok := false
	if c.ws != nil {
		view, ok = c.ws.ActiveMarkdownView()
	}
	if !ok || view == nil {
		if notify && c.ws != nil {
			c.ws.Notify(MsgNoView, notifyDuration)
		}
		c.logger.Debug("cards: no active markdown view")
		c.state.Exit()
		return false
	}

	c.logger.Debug("cards: refreshing", "file", view.FilePath(), "reason", reason)
	view.RerenderPreview(true, reason)
	c.refreshes.Add(1)
	if notify {
		c.ws.Notify(MsgRefreshed, notifyDuration)
	}
	c.scheduleExit()
	return true
}

func (c *Controller) scheduleExit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.settle == 0 {
		c.state.Exit()
		return
	}
	c.timer = time.AfterFunc(c.settle, c.state.Exit)
}

// Trigger requests an automatic refresh after the debounce delay.
func (c *Controller) Trigger() {
	c.mu.Lock()
	d := c.debounce
	c.mu.Unlock()
	d.Trigger()
}

// SetDelay replaces the debouncer. A refresh pending under the old delay is
// cancelled, not carried over.
func (c *Controller) SetDelay(delay time.Duration) {
	next := debounce.New(delay, c.automatic)

	c.mu.Lock()
	old := c.debounce
	c.debounce = next
	if c.stopped {
		next.Stop()
	}
	c.mu.Unlock()

	old.Stop()
}

// Delay returns the current debounce delay.
func (c *Controller) Delay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debounce.Delay()
}

// Pending reports whether an automatic refresh is scheduled.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	d := c.debounce
	c.mu.Unlock()
	return d.Pending()
}

// Refreshing reports whether the controller is inside a refresh.
func (c *Controller) Refreshing() bool {
	return c.state.Refreshing()
}

// Refreshes returns the number of re-renders requested so far.
func (c *Controller) Refreshes() int64 { return c.refreshes.Load() }

// Dropped returns the number of refresh requests rejected by the guard.
func (c *Controller) Dropped() int64 { return c.dropped.Load() }

// Stop cancels pending work and leaves the controller idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopped = true
	d := c.debounce
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	d.Stop()
	c.state.Exit()
}
