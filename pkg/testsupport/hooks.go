package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-connector-cache/connector/memory"
	"github.com/goliatone/go-connector-cache/entity"
)

// Match selects backend calls.
type Match func(call memory.Call) bool

// MatchOp selects calls of one kind and operation.
func MatchOp(kind entity.Kind, op memory.Op) Match {
	return func(call memory.Call) bool {
		return call.Kind == kind && call.Op == op
	}
}

// Gate holds matching backend calls until it is opened. Every held call is
// reported on Arrived.
type Gate struct {
	match   Match
	arrived chan memory.Call

	mu     sync.Mutex
	open   chan struct{}
	opened bool
}

// NewGate creates a closed gate.
func NewGate(match Match) *Gate {
	return &Gate{
		match:   match,
		arrived: make(chan memory.Call, 64),
		open:    make(chan struct{}),
	}
}

// Hook is the memory.Hook of the gate.
func (g *Gate) Hook(ctx context.Context, call memory.Call) error {
	if g.match != nil && !g.match(call) {
		return nil
	}

	g.mu.Lock()
	open := g.open
	g.mu.Unlock()

	select {
	case g.arrived <- call:
	default:
	}

	select {
	case <-open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitArrived blocks until a held call arrives or fails the test.
func (g *Gate) WaitArrived(t testing.TB, timeout time.Duration) memory.Call {
	t.Helper()

	select {
	case call := <-g.arrived:
		return call
	case <-time.After(timeout):
		t.Fatalf("no call reached the gate within %v", timeout)
	}
	return memory.Call{}
}

// Open releases every held and future call.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.opened {
		g.opened = true
		close(g.open)
	}
}

// FailN fails the first n matching calls with err.
func FailN(n int, err error, match Match) memory.Hook {
	var mu sync.Mutex
	remaining := n
	return func(ctx context.Context, call memory.Call) error {
		if match != nil && !match(call) {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		if remaining <= 0 {
			return nil
		}
		remaining--
		return err
	}
}

// Chain runs hooks in order and stops at the first error.
func Chain(hooks ...memory.Hook) memory.Hook {
	return func(ctx context.Context, call memory.Call) error {
		for _, hook := range hooks {
			if hook == nil {
				continue
			}
			if err := hook(ctx, call); err != nil {
				return err
			}
		}
		return nil
	}
}

// Eventually polls cond until it holds or fails the test after timeout.
func Eventually(t testing.TB, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v: %s", timeout, msg)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
