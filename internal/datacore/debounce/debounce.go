// Package debounce coalesces bursts of triggers into one delayed action.
//
// A Debouncer keeps an explicit timer table keyed by caller-chosen strings so
// owners can cancel a pending action on teardown. Value wraps a single timer
// for the common "settle on the latest value" case.
package debounce

import (
	"sync"
	"time"
)

// Debouncer schedules at most one pending action per key.
type Debouncer struct {
	mu     sync.Mutex
	seq    uint64
	timers map[string]*pendingTimer
}

type pendingTimer struct {
	id    uint64
	timer *time.Timer
}

// New returns an empty debouncer.
func New() *Debouncer {
	return &Debouncer{timers: make(map[string]*pendingTimer)}
}

// Trigger cancels any timer pending under key and schedules action to run
// after delay. Only the last trigger of a burst runs.
func (d *Debouncer) Trigger(key string, delay time.Duration, action func()) {
	if d == nil || action == nil {
		return
	}
	if delay < 0 {
		delay = 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timers == nil {
		d.timers = make(map[string]*pendingTimer)
	}
	if prev, ok := d.timers[key]; ok {
		prev.timer.Stop()
	}
	d.seq++
	id := d.seq
	pending := &pendingTimer{id: id}
	pending.timer = time.AfterFunc(delay, func() {
		d.fire(key, id, action)
	})
	d.timers[key] = pending
}

// fire runs action only when id still owns key. A timer that was stopped
// after its goroutine already started must not run.
func (d *Debouncer) fire(key string, id uint64, action func()) {
	d.mu.Lock()
	current, ok := d.timers[key]
	if !ok || current.id != id {
		d.mu.Unlock()
		return
	}
	delete(d.timers, key)
	d.mu.Unlock()

	action()
}

// Cancel drops the timer pending under key without running it.
func (d *Debouncer) Cancel(key string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if pending, ok := d.timers[key]; ok {
		pending.timer.Stop()
		delete(d.timers, key)
	}
}

// Pending reports whether an action is scheduled under key.
func (d *Debouncer) Pending(key string) bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[key]
	return ok
}

// Stop cancels every pending timer.
func (d *Debouncer) Stop() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, pending := range d.timers {
		pending.timer.Stop()
		delete(d.timers, key)
	}
}
