// Package search debounces free text queries and matches entities against
// them.
package search

import (
	"sync"
	"time"
)

// DefaultInterval is the quiet period before a query is applied.
const DefaultInterval = 300 * time.Millisecond

// Debouncer delivers the last triggered value once no new value arrived for
// the interval. Every Trigger restarts the wait.
//
// fn runs on a timer goroutine and must not call Stop.
type Debouncer[T any] struct {
	interval time.Duration
	fn       func(T)

	// fire serializes deliveries with Stop.
	fire sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	value   T
	seq     uint64
	pending bool
	stopped bool
}

// NewDebouncer creates a debouncer. A non positive interval selects
// DefaultInterval.
func NewDebouncer[T any](interval time.Duration, fn func(T)) *Debouncer[T] {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Debouncer[T]{interval: interval, fn: fn}
}

// Interval returns the quiet period.
func (d *Debouncer[T]) Interval() time.Duration { return d.interval }

// Trigger schedules v, replacing any pending value.
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.seq++
	seq := d.seq
	d.value = v
	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() { d.deliver(seq) })
}

func (d *Debouncer[T]) deliver(seq uint64) {
	d.fire.Lock()
	defer d.fire.Unlock()

	d.mu.Lock()
	if d.stopped || !d.pending || d.seq != seq {
		d.mu.Unlock()
		return
	}
	v := d.value
	d.pending = false
	d.mu.Unlock()

	d.fn(v)
}

// Flush delivers the pending value now. It reports whether one was pending.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if d.stopped || !d.pending {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.mu.Unlock()

	d.deliver(seq)
	return true
}

// Cancel drops the pending value.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

func (d *Debouncer[T]) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	d.pending = false
}

// Pending reports whether a value waits for delivery.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop drops the pending value and ignores later triggers. Once Stop returns
// fn is not called again.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.cancelLocked()
	d.mu.Unlock()

	// wait out a delivery that passed its check before stopped was set
	d.fire.Lock()
	d.fire.Unlock()
}
