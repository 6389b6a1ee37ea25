package debounce

import (
	"sync"
	"time"
)

// Value holds the last settled value of a frequently changing input, such as
// a search box. Each instance owns an independent timer.
type Value[T any] struct {
	delay    time.Duration
	onSettle func(T)

	mu      sync.Mutex
	settled T
	latest  T
	timer   *time.Timer
	seq     uint64
}

// NewValue returns a Value that starts settled on initial. onSettle, when
// set, runs after every settle with the new value.
func NewValue[T any](initial T, delay time.Duration, onSettle func(T)) *Value[T] {
	if delay < 0 {
		delay = 0
	}
	return &Value[T]{
		delay:    delay,
		onSettle: onSettle,
		settled:  initial,
		latest:   initial,
	}
}

// Set records v and restarts the quiet period.
func (v *Value[T]) Set(next T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.latest = next
	if v.timer != nil {
		v.timer.Stop()
	}
	v.seq++
	id := v.seq
	v.timer = time.AfterFunc(v.delay, func() {
		v.settle(id)
	})
}

func (v *Value[T]) settle(id uint64) {
	v.mu.Lock()
	if id != v.seq {
		v.mu.Unlock()
		return
	}
	v.settled = v.latest
	v.timer = nil
	value := v.settled
	onSettle := v.onSettle
	v.mu.Unlock()

	if onSettle != nil {
		onSettle(value)
	}
}

// Get returns the last settled value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.settled
}

// Stop drops a pending settle. The settled value is kept.
func (v *Value[T]) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	v.seq++
}
