// Package state persists small pieces of UI state between runs.
package state

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// State holds persistent user preferences.
type State struct {
	// LastNote is the vault-relative path of the note open at exit.
	LastNote string `json:"lastNote,omitempty"`

	// ActivePlugin is the ID of the focused tab at exit.
	ActivePlugin string `json:"activePlugin,omitempty"`

	// PreviewScroll maps note paths to their last viewport offset.
	PreviewScroll map[string]int `json:"previewScroll,omitempty"`
}

var (
	current *State
	mu      sync.RWMutex
	path    string
)

// Init loads state from the default location.
func Init() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	return InitWithDir(filepath.Join(home, ".config", "notecards"))
}

// InitWithDir loads state from a specified directory.
// This is primarily for testing to avoid reading real user state.
func InitWithDir(dir string) error {
	mu.Lock()
	path = filepath.Join(dir, "state.json")
	mu.Unlock()
	return Load()
}

// Load reads state from disk.
func Load() error {
	mu.Lock()
	defer mu.Unlock()

	current = &State{}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil // no state file yet, use defaults
	}
	if err != nil {
		return err
	}

	return json.Unmarshal(data, current)
}

// Save writes state to disk.
func Save() error {
	mu.RLock()
	defer mu.RUnlock()

	if current == nil || path == "" {
		return nil
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetLastNote returns the note that was open at last exit.
func GetLastNote() string {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return ""
	}
	return current.LastNote
}

// SetLastNote saves the currently open note.
func SetLastNote(note string) error {
	mu.Lock()
	if current == nil {
		current = &State{}
	}
	current.LastNote = note
	mu.Unlock()
	return Save()
}

// GetActivePlugin returns the saved focused plugin ID.
func GetActivePlugin() string {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return ""
	}
	return current.ActivePlugin
}

// SetActivePlugin saves the focused plugin ID.
func SetActivePlugin(id string) error {
	mu.Lock()
	if current == nil {
		current = &State{}
	}
	current.ActivePlugin = id
	mu.Unlock()
	return Save()
}

// GetPreviewScroll returns the saved viewport offset for a note.
// Returns 0 if nothing is saved.
func GetPreviewScroll(note string) int {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return 0
	}
	return current.PreviewScroll[note]
}

// SetPreviewScroll records the viewport offset for a note. It does not save;
// callers persist on exit.
func SetPreviewScroll(note string, offset int) {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		current = &State{}
	}
	if current.PreviewScroll == nil {
		current.PreviewScroll = make(map[string]int)
	}
	if offset <= 0 {
		delete(current.PreviewScroll, note)
		return
	}
	current.PreviewScroll[note] = offset
}
