package app

import (
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/notecards/internal/msg"
	"github.com/marcus/notecards/internal/plugin"
)

// noteHolder is implemented by views that may have nothing open.
type noteHolder interface {
	HasNote() bool
}

// Host implements plugin.Workspace for the running program. It is safe to
// call from any goroutine.
type Host struct {
	mu     sync.RWMutex
	send   func(tea.Msg)
	view   plugin.MarkdownView
	logger *slog.Logger
}

// NewHost creates a workspace host. Notifications are only logged until
// SetSend is called.
func NewHost(logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Host{logger: logger}
}

// SetSend connects the host to the program's message loop.
func (h *Host) SetSend(fn func(tea.Msg)) {
	h.mu.Lock()
	h.send = fn
	h.mu.Unlock()
}

// Send delivers m to the program without blocking the caller. It is a no-op
// before SetSend.
func (h *Host) Send(m tea.Msg) {
	h.mu.RLock()
	send := h.send
	h.mu.RUnlock()
	if send == nil {
		return
	}
	// Callers may be inside Update; a synchronous Send would deadlock.
	go send(m)
}

// SetMarkdownView sets the view returned by ActiveMarkdownView.
func (h *Host) SetMarkdownView(v plugin.MarkdownView) {
	h.mu.Lock()
	h.view = v
	h.mu.Unlock()
}

// ActiveMarkdownView returns the note preview when it has a note open.
func (h *Host) ActiveMarkdownView() (plugin.MarkdownView, bool) {
	h.mu.RLock()
	v := h.view
	h.mu.RUnlock()
	if v == nil {
		return nil, false
	}
	if nh, ok := v.(noteHolder); ok && !nh.HasNote() {
		return nil, false
	}
	return v, true
}

// Notify shows message as a toast.
func (h *Host) Notify(message string, d time.Duration) {
	h.logger.Info("notice", "message", message)
	h.Send(msg.ToastMsg{Message: message, Duration: d})
}
