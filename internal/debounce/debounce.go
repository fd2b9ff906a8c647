// Package debounce collapses bursts of calls into a single deferred action.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is used when a Debouncer is created with a non-positive delay.
const DefaultDelay = 300 * time.Millisecond

// Debouncer runs an action once a burst of Trigger calls has been quiet for
// the configured delay. Each Trigger restarts the countdown; only the last
// call of a burst results in an execution.
//
// A Debouncer is never reconfigured. Changing the delay means building a new
// one and calling Stop on the old instance, which guarantees that a countdown
// started under the old instance never fires.
type Debouncer struct {
	mu     sync.Mutex
	delay  time.Duration
	action func()
	timer  *time.Timer
	gen    uint64 // bumped on every Trigger/Cancel; stale timers compare against it
	closed bool
}

// New creates a Debouncer that runs action after delay of quiescence.
func New(delay time.Duration, action func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if action == nil {
		action = func() {}
	}
	return &Debouncer{
		delay:  delay,
		action: action,
	}
}

// Trigger schedules the action, cancelling any pending schedule.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// fire runs the action unless a later Trigger or Cancel superseded gen.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	action := d.action
	d.mu.Unlock()

	action()
}

// Cancel drops the pending execution, if any. The Debouncer stays usable.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Stop cancels the pending execution and turns further Trigger calls into
// no-ops. Call it when the Debouncer is being replaced.
func (d *Debouncer) Stop() {
	d.Cancel()

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Pending reports whether an execution is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Delay returns the quiet period.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}
