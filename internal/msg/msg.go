package msg

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// ToastMsg displays a temporary message.
type ToastMsg struct {
	Message  string
	Duration time.Duration
	IsError  bool // true for error toasts (red), false for success (green)
}

// ShowToast returns a command to show a toast message.
func ShowToast(message string, duration time.Duration) tea.Cmd {
	return func() tea.Msg {
		return ToastMsg{
			Message:  message,
			Duration: duration,
		}
	}
}

// ShowError returns a command to show an error toast.
func ShowError(message string, duration time.Duration) tea.Cmd {
	return func() tea.Msg {
		return ToastMsg{
			Message:  message,
			Duration: duration,
			IsError:  true,
		}
	}
}

// FocusPluginMsg asks the app to switch to the plugin with the given ID.
type FocusPluginMsg struct {
	PluginID string
}

// FocusPlugin returns a command that focuses a plugin tab.
func FocusPlugin(id string) tea.Cmd {
	return func() tea.Msg { return FocusPluginMsg{PluginID: id} }
}
