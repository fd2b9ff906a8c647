package state

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

// swap isolates package globals for the duration of a test.
func swap(t *testing.T) {
	t.Helper()
	originalPath := path
	originalCurrent := current
	t.Cleanup(func() {
		path = originalPath
		current = originalCurrent
	})
}

func TestInit(t *testing.T) {
	swap(t)
	tmpDir := t.TempDir()

	// Use InitWithDir to avoid reading real user state
	err := InitWithDir(filepath.Join(tmpDir, ".config", "notecards"))
	if err != nil {
		t.Fatalf("InitWithDir() failed: %v", err)
	}

	if current == nil {
		t.Error("current state should be initialized")
	}
	if GetLastNote() != "" {
		t.Errorf("default LastNote = %q, want empty", GetLastNote())
	}
}

func TestLoad_ExistingFile(t *testing.T) {
	swap(t)
	tmpDir := t.TempDir()
	path = filepath.Join(tmpDir, "state.json")

	data, _ := json.Marshal(State{LastNote: "projects/alpha.md", ActivePlugin: "preview"})
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got := GetLastNote(); got != "projects/alpha.md" {
		t.Errorf("LastNote = %q, want projects/alpha.md", got)
	}
	if got := GetActivePlugin(); got != "preview" {
		t.Errorf("ActivePlugin = %q, want preview", got)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	swap(t)
	tmpDir := t.TempDir()
	path = filepath.Join(tmpDir, "state.json")

	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Load(); err == nil {
		t.Error("Load() should fail on invalid JSON")
	}
}

func TestSetLastNote_Persists(t *testing.T) {
	swap(t)
	tmpDir := t.TempDir()
	if err := InitWithDir(filepath.Join(tmpDir, "nested")); err != nil {
		t.Fatal(err)
	}

	if err := SetLastNote("daily/2026-10-18.md"); err != nil {
		t.Fatalf("SetLastNote() failed: %v", err)
	}

	// Reload from disk
	if err := Load(); err != nil {
		t.Fatal(err)
	}
	if got := GetLastNote(); got != "daily/2026-10-18.md" {
		t.Errorf("LastNote after reload = %q", got)
	}
}

func TestPreviewScroll(t *testing.T) {
	swap(t)
	current = &State{}

	SetPreviewScroll("a.md", 12)
	if got := GetPreviewScroll("a.md"); got != 12 {
		t.Errorf("GetPreviewScroll = %d, want 12", got)
	}
	SetPreviewScroll("a.md", 0)
	if _, ok := current.PreviewScroll["a.md"]; ok {
		t.Error("zero offset should clear the entry")
	}
}

func TestGetters_NilCurrent(t *testing.T) {
	swap(t)
	current = nil

	if GetLastNote() != "" || GetActivePlugin() != "" || GetPreviewScroll("x") != 0 {
		t.Error("getters should return zero values when state is not loaded")
	}
}

func TestConcurrentAccess(t *testing.T) {
	swap(t)
	tmpDir := t.TempDir()
	if err := InitWithDir(tmpDir); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = SetLastNote("note.md")
		}()
		go func() {
			defer wg.Done()
			_ = GetLastNote()
		}()
	}
	wg.Wait()
}
