package fetcher

import (
	"context"
	"errors"
	"sync"

	"github.com/goliatone/go-connector-cache/cache"
)

// ErrSubscriptionClosed is returned by Wait on a closed subscription.
var ErrSubscriptionClosed = errors.New("fetcher: subscription closed")

// SubscriptionOption configures a Subscription.
type SubscriptionOption func(*Subscription)

// OnChange registers fn for every entry state published after Ensure.
// Calls are serialized and stop after Close.
func OnChange(fn func(cache.Entry)) SubscriptionOption {
	return func(s *Subscription) { s.onChange = fn }
}

// Subscription is a consumer's handle on one scope. It keeps the scope
// referenced until Close.
type Subscription struct {
	orch     *Orchestrator
	key      cache.Key
	scope    cache.Scope
	onChange func(cache.Entry)

	mu          sync.Mutex
	changed     chan struct{}
	closed      bool
	unsubscribe func()
}

func newSubscription(o *Orchestrator, key cache.Key, scope cache.Scope, opts ...SubscriptionOption) *Subscription {
	s := &Subscription{
		orch:    o,
		key:     key,
		scope:   scope,
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Subscription) attach() {
	unsubscribe := s.orch.store.Subscribe(s.key, s.notify)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
}

func (s *Subscription) notify(e cache.Entry) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	close(s.changed)
	s.changed = make(chan struct{})
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(e)
	}
}

// Key returns the scope key.
func (s *Subscription) Key() cache.Key { return s.key }

// Scope returns the subscribed scope.
func (s *Subscription) Scope() cache.Scope { return s.scope }

// Entry returns the current entry of the scope.
func (s *Subscription) Entry() cache.Entry {
	e, _ := s.orch.store.Read(s.key)
	return e
}

// Changed returns a channel closed on the next published entry.
func (s *Subscription) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Wait blocks until the entry settles into success or error, or ctx ends.
func (s *Subscription) Wait(ctx context.Context) (cache.Entry, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return s.Entry(), ErrSubscriptionClosed
		}
		ch := s.changed
		s.mu.Unlock()

		e := s.Entry()
		if e.Settled() {
			return e, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return e, ctx.Err()
		}
	}
}

// Refetch starts a new loading cycle for the scope.
func (s *Subscription) Refetch() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.orch.Refetch(s.scope)
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.changed)
	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
