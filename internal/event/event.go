// Package event provides the in-process topic dispatcher shared by plugins.
package event

import (
	"fmt"
	"log/slog"
	"sync"
)

// Dispatcher fans published payloads out to topic subscribers. Delivery is
// synchronous on the publishing goroutine; a panicking handler is recovered
// and logged without affecting the other subscribers.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]func(any)
	nextID uint64
	closed bool
	logger *slog.Logger
}

// New creates a dispatcher that discards its diagnostics.
func New() *Dispatcher {
	return NewWithLogger(nil)
}

// NewWithLogger creates a dispatcher that reports handler failures to logger.
func NewWithLogger(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		subs:   make(map[string]map[uint64]func(any)),
		logger: logger,
	}
}

// Subscribe registers a typed handler for topic. Payloads of another type are
// skipped. The returned function removes the subscription and is idempotent.
func Subscribe[T any](d *Dispatcher, topic string, handler func(T)) func() {
	wrapped := func(payload any) {
		typed, ok := payload.(T)
		if !ok {
			d.logger.Debug("event payload type mismatch",
				"topic", topic,
				"got", fmt.Sprintf("%T", payload),
				"want", fmt.Sprintf("%T", *new(T)))
			return
		}
		handler(typed)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return func() {}
	}

	d.nextID++
	id := d.nextID
	if d.subs[topic] == nil {
		d.subs[topic] = make(map[uint64]func(any))
	}
	d.subs[topic][id] = wrapped

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(topic, id) })
	}
}

func (d *Dispatcher) remove(topic string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	topicSubs, ok := d.subs[topic]
	if !ok {
		return
	}
	delete(topicSubs, id)
	if len(topicSubs) == 0 {
		delete(d.subs, topic)
	}
}

// Publish delivers payload to every subscriber of topic.
func (d *Dispatcher) Publish(topic string, payload any) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return
	}
	handlers := make([]func(any), 0, len(d.subs[topic]))
	for _, h := range d.subs[topic] {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()

	for _, h := range handlers {
		d.deliver(topic, h, payload)
	}
}

func (d *Dispatcher) deliver(topic string, h func(any), payload any) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked", "topic", topic, "panic", r)
		}
	}()
	h(payload)
}

// Subscribers returns the number of handlers registered for topic.
func (d *Dispatcher) Subscribers(topic string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[topic])
}

// Close drops all subscriptions. Publishing after Close is a no-op.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.subs = make(map[string]map[uint64]func(any))
}
