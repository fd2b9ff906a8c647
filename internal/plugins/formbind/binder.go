package formbind

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcus/notecards/internal/config"
	"github.com/marcus/notecards/internal/event"
)

// Dispatcher topics.
const (
	TopicFileChanged     = "formbind:file-changed"
	TopicPropertyChanged = "formbind:property-changed"
)

// ErrUnknownEvent is returned when subscribing to an event the metadata
// manager does not emit.
var ErrUnknownEvent = errors.New("unknown metadata event")

// PropertyChange is published on TopicPropertyChanged.
type PropertyChange struct {
	Path    string
	Key     string
	Value   any
	Deleted bool
}

// MetadataEvent is delivered to metadata manager listeners.
type MetadataEvent struct {
	Path  string
	Key   string
	Value any
}

// Binder reads and writes note properties and announces every write.
type Binder struct {
	root   string
	events *event.Dispatcher
	logger *slog.Logger
}

// NewBinder creates a binder for the vault at root.
func NewBinder(root string, events *event.Dispatcher, logger *slog.Logger) *Binder {
	if events == nil {
		events = event.New()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Binder{root: root, events: events, logger: logger}
}

func (b *Binder) abs(relPath string) (string, error) {
	abs := filepath.Join(b.root, filepath.FromSlash(relPath))
	rel, err := filepath.Rel(b.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the vault", relPath)
	}
	return abs, nil
}

// Properties returns the frontmatter entries of a note.
func (b *Binder) Properties(relPath string) ([]Property, error) {
	abs, err := b.abs(relPath)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relPath, err)
	}
	return ReadProperties(content)
}

// SetProperty writes key=value into the note's frontmatter.
func (b *Binder) SetProperty(relPath, key string, value any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("set property: empty key")
	}
	abs, err := b.abs(relPath)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("read %s: %w", relPath, err)
	}
	out, err := SetProperty(content, key, value)
	if err != nil {
		return fmt.Errorf("set %s in %s: %w", key, relPath, err)
	}
	if err := writeFileAtomic(abs, out); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}

	b.logger.Debug("formbind: property set", "path", relPath, "key", key)
	b.events.Publish(TopicFileChanged, relPath)
	b.events.Publish(TopicPropertyChanged, PropertyChange{Path: relPath, Key: key, Value: value})
	return nil
}

// DeleteProperty removes key from the note's frontmatter.
func (b *Binder) DeleteProperty(relPath, key string) error {
	abs, err := b.abs(relPath)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("read %s: %w", relPath, err)
	}
	out, existed, err := DeleteProperty(content, key)
	if err != nil {
		return fmt.Errorf("delete %s in %s: %w", key, relPath, err)
	}
	if !existed {
		return nil
	}
	if err := writeFileAtomic(abs, out); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}

	b.logger.Debug("formbind: property deleted", "path", relPath, "key", key)
	b.events.Publish(TopicFileChanged, relPath)
	b.events.Publish(TopicPropertyChanged, PropertyChange{Path: relPath, Key: key, Deleted: true})
	return nil
}

// Handle builds the service handle for an API level. Each level exposes the
// notification mechanisms of the previous one plus its own.
func (b *Binder) Handle(apiLevel string) any {
	legacy := &LegacyAPI{b: b}
	switch apiLevel {
	case config.APILevelLegacy:
		return legacy
	case config.APILevelV1:
		return &V1API{LegacyAPI: legacy}
	default:
		return &V2API{V1API: &V1API{LegacyAPI: legacy}}
	}
}

// LegacyAPI offers per-file change notifications only.
type LegacyAPI struct {
	b *Binder
}

// Binder returns the underlying binder.
func (a *LegacyAPI) Binder() *Binder { return a.b }

// OnFileChanged calls fn with the path of every note whose properties were
// written.
func (a *LegacyAPI) OnFileChanged(fn func(path string)) func() {
	return event.Subscribe(a.b.events, TopicFileChanged, fn)
}

// V1API adds a per-property callback.
type V1API struct {
	*LegacyAPI
}

// OnChange calls fn for every property write or delete. Deletes carry a nil
// value.
func (a *V1API) OnChange(fn func(path, key string, value any)) func() {
	return event.Subscribe(a.b.events, TopicPropertyChanged, func(c PropertyChange) {
		fn(c.Path, c.Key, c.Value)
	})
}

// V2API adds the metadata manager emitter.
type V2API struct {
	*V1API
}

// MetadataManager returns the event emitter for property changes.
func (a *V2API) MetadataManager() *MetadataManager {
	return &MetadataManager{b: a.b}
}

// MetadataManager emits "changed" and "deleted" events per property.
type MetadataManager struct {
	b *Binder
}

// On subscribes fn to the named event.
func (m *MetadataManager) On(name string, fn func(MetadataEvent)) (func(), error) {
	var wantDeleted bool
	switch name {
	case "changed":
	case "deleted":
		wantDeleted = true
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	return event.Subscribe(m.b.events, TopicPropertyChanged, func(c PropertyChange) {
		if c.Deleted != wantDeleted {
			return
		}
		fn(MetadataEvent{Path: c.Path, Key: c.Key, Value: c.Value})
	}), nil
}
