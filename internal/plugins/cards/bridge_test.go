package cards

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus/notecards/internal/config"
	"github.com/marcus/notecards/internal/dataview"
	"github.com/marcus/notecards/internal/event"
	"github.com/marcus/notecards/internal/plugin"
	"github.com/marcus/notecards/internal/plugins/formbind"
)

type fakeEngine struct {
	mu  sync.Mutex
	fns map[int]func(dataview.ChangeKind, dataview.FileRef)
	n   int
}

func (e *fakeEngine) OnMetadataChange(fn func(dataview.ChangeKind, dataview.FileRef)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fns == nil {
		e.fns = make(map[int]func(dataview.ChangeKind, dataview.FileRef))
	}
	e.n++
	id := e.n
	e.fns[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.fns, id)
		e.mu.Unlock()
	}
}

func (e *fakeEngine) emit(path string) {
	e.mu.Lock()
	fns := make([]func(dataview.ChangeKind, dataview.FileRef), 0, len(e.fns))
	for _, fn := range e.fns {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(dataview.ChangeChanged, dataview.FileRef{Path: path})
	}
}

func (e *fakeEngine) listeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fns)
}

// newFormBind creates a vault with one note and a binder publishing on d.
func newFormBind(t *testing.T, d *event.Dispatcher) *formbind.Binder {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("---\nstatus: draft\n---\nbody\n"), 0644))
	return formbind.NewBinder(root, d, nil)
}

func TestBridge_RegistersAllSources(t *testing.T) {
	services := plugin.NewServices()
	engine := &fakeEngine{}
	binder := newFormBind(t, event.New())
	services.Provide(dataview.ServiceID, engine)
	services.Provide(formbind.ServiceID, binder.Handle(config.APILevelV2))

	var triggers atomic.Int32
	b := NewBridge(services, func() { triggers.Add(1) }, true, nil)
	b.Start()
	defer b.Close()

	assert.Equal(t, []string{
		"query-engine:metadata-change",
		"form-binding:file-changed",
		"form-binding:on-change",
		"form-binding:metadata-manager",
	}, b.Registrations())

	engine.emit("note.md")
	assert.Equal(t, int32(1), triggers.Load())

	// One write reaches all three form-binding mechanisms.
	require.NoError(t, binder.SetProperty("note.md", "status", "done"))
	assert.Equal(t, int32(4), triggers.Load())

	require.NoError(t, binder.DeleteProperty("note.md", "status"))
	assert.Equal(t, int32(7), triggers.Load())
}

func TestBridge_APILevels(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{config.APILevelLegacy, []string{"form-binding:file-changed"}},
		{config.APILevelV1, []string{"form-binding:file-changed", "form-binding:on-change"}},
		{config.APILevelV2, []string{"form-binding:file-changed", "form-binding:on-change", "form-binding:metadata-manager"}},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			services := plugin.NewServices()
			binder := newFormBind(t, event.New())
			services.Provide(formbind.ServiceID, binder.Handle(tt.level))

			b := NewBridge(services, func() {}, true, nil)
			b.Start()
			defer b.Close()
			assert.Equal(t, tt.want, b.Registrations())
		})
	}
}

func TestBridge_FormBindAbsent(t *testing.T) {
	services := plugin.NewServices()
	engine := &fakeEngine{}
	services.Provide(dataview.ServiceID, engine)

	var triggers atomic.Int32
	b := NewBridge(services, func() { triggers.Add(1) }, true, nil)
	assert.NotPanics(t, b.Start)
	defer b.Close()

	assert.Equal(t, []string{"query-engine:metadata-change"}, b.Registrations())
	engine.emit("a.md")
	assert.Equal(t, int32(1), triggers.Load())
}

func TestBridge_NothingAvailable(t *testing.T) {
	b := NewBridge(plugin.NewServices(), func() {}, true, nil)
	assert.NotPanics(t, b.Start)
	assert.Empty(t, b.Registrations())
	b.Close()
}

func TestBridge_UnknownHandleShape(t *testing.T) {
	services := plugin.NewServices()
	services.Provide(formbind.ServiceID, struct{ Version string }{"0.1"})

	b := NewBridge(services, func() {}, true, nil)
	b.Start()
	assert.Empty(t, b.Registrations())
}

func TestBridge_DisabledDropsEvents(t *testing.T) {
	services := plugin.NewServices()
	engine := &fakeEngine{}
	binder := newFormBind(t, event.New())
	services.Provide(dataview.ServiceID, engine)
	services.Provide(formbind.ServiceID, binder.Handle(config.APILevelV2))

	var triggers atomic.Int32
	b := NewBridge(services, func() { triggers.Add(1) }, false, nil)
	b.Start()
	defer b.Close()

	for i := 0; i < 10; i++ {
		engine.emit("note.md")
	}
	require.NoError(t, binder.SetProperty("note.md", "status", "x"))
	assert.Zero(t, triggers.Load())

	received, forwarded := b.Stats()
	assert.Equal(t, int64(13), received)
	assert.Zero(t, forwarded)

	b.SetEnabled(true)
	engine.emit("note.md")
	assert.Equal(t, int32(1), triggers.Load())
}

func TestBridge_AdapterFailuresIsolated(t *testing.T) {
	services := plugin.NewServices()
	services.Provide(formbind.ServiceID, "handle")

	var triggers atomic.Int32
	b := NewBridge(services, func() { triggers.Add(1) }, true, nil)
	var emit func(ChangeEvent)
	b.adapters = []Adapter{
		{Name: "panics", Available: func(any) bool { panic("probe failed") }},
		{Name: "errors", Available: func(any) bool { return true }, Register: func(any, func(ChangeEvent)) (func(), error) {
			return nil, formbind.ErrUnknownEvent
		}},
		{Name: "works", Available: func(any) bool { return true }, Register: func(_ any, fn func(ChangeEvent)) (func(), error) {
			emit = fn
			return func() {}, nil
		}},
	}

	assert.NotPanics(t, b.Start)
	assert.Equal(t, []string{"form-binding:works"}, b.Registrations())
	require.NotNil(t, emit)
	emit(ChangeEvent{Source: SourceFormBinding, FilePath: "a.md"})
	assert.Equal(t, int32(1), triggers.Load())
}

func TestBridge_StartOnceAndClose(t *testing.T) {
	services := plugin.NewServices()
	engine := &fakeEngine{}
	services.Provide(dataview.ServiceID, engine)

	var triggers atomic.Int32
	b := NewBridge(services, func() { triggers.Add(1) }, true, nil)
	b.Start()
	b.Start()
	assert.Equal(t, 1, engine.listeners())

	b.Close()
	assert.Zero(t, engine.listeners())
	engine.emit("a.md")
	assert.Zero(t, triggers.Load())
}

func TestBridge_LayoutReadyGate(t *testing.T) {
	services := plugin.NewServices()
	engine := &fakeEngine{}
	services.Provide(dataview.ServiceID, engine)
	ctx := &plugin.Context{Services: services}

	b := NewBridge(services, func() {}, true, nil)
	ctx.OnLayoutReady(b.Start)
	assert.Zero(t, engine.listeners(), "bridge registered before layout-ready")

	ctx.FireLayoutReady()
	assert.Equal(t, 1, engine.listeners())
}

// Five query engine events within 50ms with a 300ms delay produce exactly
// one automatic refresh, about 300ms after the fifth event.
func TestBridge_BurstProducesOneRefresh(t *testing.T) {
	root := t.TempDir()
	d := event.New()
	ix := dataview.NewIndex(root, dataview.WithEvents(d))
	services := plugin.NewServices()
	services.Provide(dataview.ServiceID, ix)

	view := &fakeView{path: "note.md"}
	ws := &fakeWorkspace{view: view}
	c := NewController(ws, 300*time.Millisecond, nil)
	defer c.Stop()
	b := NewBridge(services, c.Trigger, true, nil)
	b.Start()
	defer b.Close()

	note := filepath.Join(root, "note.md")
	var last time.Time
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(note, []byte("---\nn: "+string(rune('0'+i))+"\n---\n"), 0644))
		changed, err := ix.Reindex("note.md")
		require.NoError(t, err)
		require.True(t, changed)
		last = time.Now()
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, view.Calls(), "refresh ran before the delay elapsed")

	time.Sleep(250 * time.Millisecond)
	calls := view.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, plugin.RenderAutomatic, calls[0].reason)
	assert.True(t, calls[0].full)
	assert.GreaterOrEqual(t, calls[0].at.Sub(last), 280*time.Millisecond)
	assert.Empty(t, ws.Notices())
}
