package cards

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/marcus/notecards/internal/dataview"
	"github.com/marcus/notecards/internal/plugin"
	"github.com/marcus/notecards/internal/plugins/formbind"
)

// Change sources.
const (
	SourceQueryEngine = "query-engine"
	SourceFormBinding = "form-binding"
)

// ChangeEvent is a metadata change from either source. Property is empty
// when the source does not say which property changed.
type ChangeEvent struct {
	Source   string
	FilePath string
	Property string
	Value    any
}

// MetadataEvents is the query engine capability the bridge listens to.
type MetadataEvents interface {
	OnMetadataChange(fn func(dataview.ChangeKind, dataview.FileRef)) func()
}

// Form-binding capabilities. A handle may implement any subset.
type (
	fileChangedNotifier interface {
		OnFileChanged(fn func(path string)) func()
	}
	changeNotifier interface {
		OnChange(fn func(path, key string, value any)) func()
	}
	metadataManagerProvider interface {
		MetadataManager() *formbind.MetadataManager
	}
)

// Adapter is one way of subscribing to form-binding changes.
type Adapter struct {
	Name      string
	Available func(handle any) bool
	Register  func(handle any, emit func(ChangeEvent)) (unsubscribe func(), err error)
}

// FormBindAdapters lists every form-binding notification mechanism, lowest
// level first. The bridge registers against each one that is available.
var FormBindAdapters = []Adapter{
	{
		Name: "file-changed",
		Available: func(h any) bool {
			_, ok := h.(fileChangedNotifier)
			return ok
		},
		Register: func(h any, emit func(ChangeEvent)) (func(), error) {
			return h.(fileChangedNotifier).OnFileChanged(func(path string) {
				emit(ChangeEvent{Source: SourceFormBinding, FilePath: path})
			}), nil
		},
	},
	{
		Name: "on-change",
		Available: func(h any) bool {
			_, ok := h.(changeNotifier)
			return ok
		},
		Register: func(h any, emit func(ChangeEvent)) (func(), error) {
			return h.(changeNotifier).OnChange(func(path, key string, value any) {
				emit(ChangeEvent{Source: SourceFormBinding, FilePath: path, Property: key, Value: value})
			}), nil
		},
	},
	{
		Name: "metadata-manager",
		Available: func(h any) bool {
			p, ok := h.(metadataManagerProvider)
			return ok && p.MetadataManager() != nil
		},
		Register: func(h any, emit func(ChangeEvent)) (func(), error) {
			mm := h.(metadataManagerProvider).MetadataManager()
			forward := func(e formbind.MetadataEvent) {
				emit(ChangeEvent{Source: SourceFormBinding, FilePath: e.Path, Property: e.Key, Value: e.Value})
			}
			offChanged, err := mm.On("changed", forward)
			if err != nil {
				return nil, err
			}
			offDeleted, err := mm.On("deleted", forward)
			if err != nil {
				offChanged()
				return nil, err
			}
			return func() { offChanged(); offDeleted() }, nil
		},
	},
}

// Bridge turns query engine and form-binding notifications into refresh
// triggers.
type Bridge struct {
	services *plugin.Services
	trigger  func()
	logger   *slog.Logger
	adapters []Adapter
	enabled  atomic.Bool

	mu            sync.Mutex
	started       bool
	unsubs        []func()
	registrations []string

	received  atomic.Int64
	forwarded atomic.Int64
	observer  func(ChangeEvent)
}

// NewBridge creates a bridge that calls trigger once per qualifying event.
func NewBridge(services *plugin.Services, trigger func(), enabled bool, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Bridge{
		services: services,
		trigger:  trigger,
		logger:   logger,
		adapters: FormBindAdapters,
	}
	b.enabled.Store(enabled)
	return b
}

// SetEnabled turns dynamic updates on or off. Disabled bridges drop events.
func (b *Bridge) SetEnabled(on bool) { b.enabled.Store(on) }

// Enabled reports whether events are forwarded.
func (b *Bridge) Enabled() bool { return b.enabled.Load() }

// Observe sets a callback that sees every event before the enabled check.
// Must be called before Start.
func (b *Bridge) Observe(fn func(ChangeEvent)) { b.observer = fn }

// Start subscribes to both sources. It is meant to run once the host layout
// is ready; later calls do nothing. Missing sources are logged and skipped.
func (b *Bridge) Start() {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	b.registerQueryEngine()
	b.registerFormBind()
}

func (b *Bridge) registerQueryEngine() {
	engine, ok := plugin.LookupAs[MetadataEvents](b.services, dataview.ServiceID)
	if !ok {
		b.logger.Info("cards: query engine not available, metadata events disabled")
		return
	}
	off := engine.OnMetadataChange(func(kind dataview.ChangeKind, file dataview.FileRef) {
		b.handle(ChangeEvent{Source: SourceQueryEngine, FilePath: file.Path, Value: kind})
	})
	b.add("query-engine:metadata-change", off)
}

func (b *Bridge) registerFormBind() {
	handle, ok := b.services.Lookup(formbind.ServiceID)
	if !ok {
		b.logger.Info("cards: form-binding plugin not available, property events disabled")
		return
	}
	registered := 0
	for _, a := range b.adapters {
		if b.tryAdapter(a, handle) {
			registered++
		}
	}
	if registered == 0 {
		b.logger.Warn("cards: form-binding plugin exposes no known change events")
	}
}

// tryAdapter registers one adapter, isolating its failures from the rest.
func (b *Bridge) tryAdapter(a Adapter, handle any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("cards: form-binding adapter panicked", "adapter", a.Name, "panic", r)
			ok = false
		}
	}()

	if !a.Available(handle) {
		b.logger.Debug("cards: form-binding mechanism absent", "adapter", a.Name)
		return false
	}
	off, err := a.Register(handle, b.handle)
	if err != nil {
		b.logger.Warn("cards: form-binding registration failed", "adapter", a.Name, "err", err)
		return false
	}
	b.add("form-binding:"+a.Name, off)
	return true
}

func (b *Bridge) add(name string, off func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if off != nil {
		b.unsubs = append(b.unsubs, off)
	}
	b.registrations = append(b.registrations, name)
	b.logger.Debug("cards: registered change source", "source", name)
}

func (b *Bridge) handle(ev ChangeEvent) {
	b.received.Add(1)
	if b.observer != nil {
		b.observer(ev)
	}
	if !b.enabled.Load() {
		return
	}
	b.forwarded.Add(1)
	b.logger.Debug("cards: change", "source", ev.Source, "file", ev.FilePath, "property", ev.Property)
	b.trigger()
}

// Registrations lists the active subscriptions by name.
func (b *Bridge) Registrations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.registrations...)
}

// Stats returns how many events arrived and how many triggered a refresh.
func (b *Bridge) Stats() (received, forwarded int64) {
	return b.received.Load(), b.forwarded.Load()
}

// Close removes every subscription.
func (b *Bridge) Close() {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.registrations = nil
	b.mu.Unlock()

	for _, off := range unsubs {
		off()
	}
}

func (e ChangeEvent) String() string {
	if e.Property == "" {
		return fmt.Sprintf("%s %s", e.Source, e.FilePath)
	}
	return fmt.Sprintf("%s %s [%s]", e.Source, e.FilePath, e.Property)
}
