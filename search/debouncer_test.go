package search

import (
	"sync"
	"testing"
	"time"
)

type recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

func (r *recorder[T]) record(v T) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

const interval = 20 * time.Millisecond

func TestDebouncer_TrailingEdge(t *testing.T) {
	rec := &recorder[int]{}
	d := NewDebouncer(interval, rec.record)
	defer d.Stop()

	for i := 1; i <= 5; i++ {
		d.Trigger(i)
	}
	if !d.Pending() {
		t.Fatal("expected a pending value")
	}

	time.Sleep(5 * interval)
	got := rec.snapshot()
	if len(got) != 1 || got[0] != 5 {
		t.Errorf("expected [5], got %v", got)
	}
	if d.Pending() {
		t.Error("nothing should be pending after delivery")
	}
}

func TestDebouncer_TriggerRestartsWait(t *testing.T) {
	rec := &recorder[string]{}
	d := NewDebouncer(10*interval, rec.record)
	defer d.Stop()

	d.Trigger("a")
	time.Sleep(5 * interval)
	d.Trigger("b")
	time.Sleep(5 * interval)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("expected the wait to restart, got %v", got)
	}

	time.Sleep(10 * interval)
	if got := rec.snapshot(); len(got) != 1 || got[0] != "b" {
		t.Errorf("expected [b], got %v", got)
	}
}

func TestDebouncer_Flush(t *testing.T) {
	rec := &recorder[string]{}
	d := NewDebouncer(time.Hour, rec.record)
	defer d.Stop()

	if d.Flush() {
		t.Error("flush without a pending value should report false")
	}
	d.Trigger("now")
	if !d.Flush() {
		t.Error("expected flush to deliver")
	}
	if got := rec.snapshot(); len(got) != 1 || got[0] != "now" {
		t.Errorf("expected [now], got %v", got)
	}
}

func TestDebouncer_CancelAndStop(t *testing.T) {
	rec := &recorder[int]{}
	d := NewDebouncer(interval, rec.record)

	d.Trigger(1)
	d.Cancel()
	time.Sleep(3 * interval)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("cancelled value delivered: %v", got)
	}

	d.Trigger(2)
	d.Stop()
	d.Trigger(3)
	time.Sleep(3 * interval)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("delivery after stop: %v", got)
	}
}

func TestNewDebouncer_DefaultInterval(t *testing.T) {
	d := NewDebouncer(0, func(int) {})
	if d.Interval() != DefaultInterval {
		t.Errorf("expected %v, got %v", DefaultInterval, d.Interval())
	}
}
