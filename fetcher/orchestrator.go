package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/goliatone/go-connector-cache/cache"
	"github.com/goliatone/go-connector-cache/connector"
	"github.com/goliatone/go-connector-cache/entity"
)

// Defaults for read retries.
const (
	DefaultRetryDelay = 300 * time.Millisecond
	DefaultMaxRetries = 1
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetryDelay sets the fixed pause before retrying a transient failure.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.retryDelay = d
		}
	}
}

// WithMaxRetries caps automatic retries of a read. Values above one are
// clamped to one.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) {
		switch {
		case n < 0:
			o.maxRetries = 0
		case n > DefaultMaxRetries:
			o.maxRetries = DefaultMaxRetries
		default:
			o.maxRetries = n
		}
	}
}

// WithResponseCache routes remote reads through svc.
func WithResponseCache(svc cache.CacheService) Option {
	return func(o *Orchestrator) { o.responses = svc }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator loads scopes from the connector into the store. At most one
// remote read per key is in flight at any time.
type Orchestrator struct {
	store    *cache.Store
	registry *cache.Registry
	backend  connector.Backend

	responses  cache.CacheService
	retryDelay time.Duration
	maxRetries int
	logger     *zap.Logger

	inflight *xsync.MapOf[cache.Key, *call]
	scopes   *xsync.MapOf[cache.Key, cache.Scope]
}

// call is one loading cycle of a key.
type call struct {
	// before is the entry as it was when the cycle started.
	before     cache.Entry
	generation uint64

	mu      sync.Mutex
	decided bool
	started bool
	// extra holds conditions of loads that attached before the decision.
	extra []loadCondition
}

// attach adds cond to a call not decided yet. It reports whether the caller
// is covered by the call, which is false once the call declined to start.
func (c *call) attach(cond loadCondition) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.decided {
		c.extra = append(c.extra, cond)
		return true
	}
	return c.started
}

// decide settles whether the call starts given the current entry.
func (c *call) decide(current cache.Entry, refs int, cond loadCondition) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decided = true
	if refs == 0 {
		return false
	}
	c.started = cond(current)
	for _, extra := range c.extra {
		if c.started {
			break
		}
		c.started = extra(current)
	}
	c.extra = nil
	return c.started
}

// response is what a remote read produced, as kept in the response cache.
type response struct {
	Items []entity.Entity
	Item  entity.Entity
}

// loadCondition decides, under the key lock, whether a cycle should start.
type loadCondition func(current cache.Entry) bool

var (
	unlessFresh    loadCondition = func(e cache.Entry) bool { return !e.Fresh() }
	always         loadCondition = func(cache.Entry) bool { return true }
	orphanedOrStale loadCondition = func(e cache.Entry) bool { return e.Status == cache.StatusLoading || e.Stale }
)

// New creates an orchestrator.
func New(store *cache.Store, registry *cache.Registry, backend connector.Backend, opts ...Option) *Orchestrator {
	if registry == nil {
		registry = cache.NewRegistry(nil)
	}
	o := &Orchestrator{
		store:      store,
		registry:   registry,
		backend:    backend,
		retryDelay: DefaultRetryDelay,
		maxRetries: DefaultMaxRetries,
		logger:     zap.NewNop(),
		inflight:   xsync.NewMapOf[cache.Key, *call](),
		scopes:     xsync.NewMapOf[cache.Key, cache.Scope](),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Store returns the underlying store.
func (o *Orchestrator) Store() *cache.Store { return o.store }

// Registry returns the key registry.
func (o *Orchestrator) Registry() *cache.Registry { return o.registry }

// Ensure subscribes to scope and starts loading it unless the cached entry is
// fresh or a load for the same key is already running.
func (o *Orchestrator) Ensure(scope cache.Scope, opts ...SubscriptionOption) *Subscription {
	key := o.registry.Key(scope)
	o.scopes.Store(key, scope)

	sub := newSubscription(o, key, scope, opts...)
	sub.attach()

	o.load(key, scope, unlessFresh)
	return sub
}

// Prefetch loads scope and waits for the result without keeping a
// subscription open.
func (o *Orchestrator) Prefetch(ctx context.Context, scope cache.Scope) (cache.Entry, error) {
	sub := o.Ensure(scope)
	defer sub.Close()
	return sub.Wait(ctx)
}

// Refetch starts a new loading cycle for scope even when its entry is fresh.
// Consumers must hold a subscription; unreferenced scopes are not loaded.
func (o *Orchestrator) Refetch(scope cache.Scope) {
	key := o.registry.Key(scope)
	o.scopes.Store(key, scope)
	o.DropResponses(key)
	o.load(key, scope, always)
}

// Invalidate marks matching entries stale, drops their cached responses and
// reloads the ones that still have subscribers. It returns the keys marked
// stale.
func (o *Orchestrator) Invalidate(pred cache.KeyPredicate) []cache.Key {
	keys := o.store.Invalidate(pred)

	var known []cache.Key
	o.scopes.Range(func(key cache.Key, _ cache.Scope) bool {
		if pred == nil || pred(key) {
			known = append(known, key)
		}
		return true
	})
	o.DropResponses(known...)

	for _, key := range keys {
		if o.store.Refs(key) == 0 {
			continue
		}
		if scope, ok := o.scopes.Load(key); ok {
			o.load(key, scope, unlessFresh)
		}
	}

	if len(keys) > 0 {
		o.logger.Debug("scopes invalidated", zap.Int("stale", len(keys)))
	}
	return keys
}

// Reconcile restarts loading for referenced keys left in the loading state
// without a running cycle, as happens when a rollback restores an entry
// captured mid load. Referenced stale keys are reloaded too.
func (o *Orchestrator) Reconcile(keys ...cache.Key) {
	for _, key := range keys {
		if _, running := o.inflight.Load(key); running {
			continue
		}
		if scope, ok := o.scopes.Load(key); ok {
			o.load(key, scope, orphanedOrStale)
		}
	}
}

// CollectGarbage evicts unreferenced entries past the store GC window along
// with their cached responses.
func (o *Orchestrator) CollectGarbage() []cache.Key {
	evicted := o.store.CollectGarbage(o.store.Now())
	for _, key := range evicted {
		o.scopes.Delete(key)
	}
	o.DropResponses(evicted...)
	return evicted
}

// Inflight reports whether a load for key is running.
func (o *Orchestrator) Inflight(key cache.Key) bool {
	_, ok := o.inflight.Load(key)
	return ok
}

// DropResponses deletes the cached remote responses of keys so the next load
// of each reaches the connector.
func (o *Orchestrator) DropResponses(keys ...cache.Key) {
	if o.responses == nil || len(keys) == 0 {
		return
	}
	raw := make([]string, len(keys))
	for i, key := range keys {
		raw[i] = key.String()
	}
	if err := o.responses.InvalidateKeys(context.Background(), raw); err != nil {
		o.logger.Warn("dropping cached responses failed", zap.Error(err))
	}
}

// load starts a cycle for key when none is running, the key has subscribers
// and cond accepts the current entry.
func (o *Orchestrator) load(key cache.Key, scope cache.Scope, cond loadCondition) {
	c, loaded := o.inflight.LoadOrCompute(key, func() *call { return &call{} })
	for loaded {
		if c.attach(cond) {
			o.logger.Debug("attached to in-flight load", zap.String("key", key.String()))
			return
		}
		// the call declined to start and is being removed
		c, loaded = o.inflight.LoadOrCompute(key, func() *call { return &call{} })
	}

	_, started := o.store.Update(key, func(current cache.Entry, refs int) (cache.Entry, bool) {
		if !c.decide(current, refs, cond) {
			o.inflight.Delete(key)
			return current, false
		}
		c.before = current
		next := current.Loading()
		c.generation = next.Generation
		return next, true
	})
	if !started {
		return
	}

	o.logger.Debug("load started", zap.String("key", key.String()))
	go o.run(key, scope, c)
}

// run performs the remote read of one cycle and settles the entry.
func (o *Orchestrator) run(key cache.Key, scope cache.Scope, c *call) {
	ctx := context.Background()
	res, err := o.fetch(ctx, key, scope)

	var again *call
	o.store.Update(key, func(current cache.Entry, refs int) (cache.Entry, bool) {
		o.inflight.Delete(key)

		if current.Generation != c.generation {
			// the response cache may hold what was read before the
			// invalidation; drop it before another cycle can start
			o.DropResponses(key)
		}

		if current.Status != cache.StatusLoading {
			// settled by someone else while the read was running
			if refs == 0 || !current.Stale {
				return current, false
			}
			next := current.Loading()
			again = &call{before: current, generation: next.Generation, decided: true, started: true}
			o.inflight.Store(key, again)
			return next, true
		}

		if refs == 0 {
			// nobody is listening: leave the cycle without applying the result
			current.Status = c.before.Status
			if current.Status == cache.StatusLoading {
				current.Status = cache.StatusIdle
			}
			current.Stale = current.Stale || current.Generation != c.generation
			return current, true
		}

		now := o.store.Now()
		if current.Generation != c.generation {
			// invalidated mid flight: keep what arrived but load again
			before := c.before
			if err == nil {
				current = res.apply(current, now)
				current.Stale = true
				before = current
			}
			next := current.Loading()
			again = &call{before: before, generation: next.Generation, decided: true, started: true}
			o.inflight.Store(key, again)
			return next, true
		}

		if err != nil {
			return current.Failed(err, now), true
		}
		return res.apply(current, now), true
	})

	switch {
	case again != nil:
		o.logger.Debug("reloading after invalidation", zap.String("key", key.String()))
		go o.run(key, scope, again)
	case err != nil:
		o.logger.Warn("load failed", zap.String("key", key.String()), zap.Error(err))
	default:
		o.logger.Debug("load finished", zap.String("key", key.String()))
	}
}

func (r response) apply(e cache.Entry, at time.Time) cache.Entry {
	if e.Key.Operation() == cache.OperationDetail {
		return e.SucceededItem(r.Item, at)
	}
	return e.Succeeded(r.Items, at)
}

// fetch reads through the response cache. The retry runs inside the cached
// function so coalesced callers share it.
func (o *Orchestrator) fetch(ctx context.Context, key cache.Key, scope cache.Scope) (response, error) {
	fetchFn := func(ctx context.Context) (response, error) {
		return o.remoteWithRetry(ctx, key, scope)
	}
	if o.responses == nil {
		return fetchFn(ctx)
	}
	return cache.GetOrFetch(ctx, o.responses, key.String(), cache.FetchFn[response](fetchFn))
}

func (o *Orchestrator) remoteWithRetry(ctx context.Context, key cache.Key, scope cache.Scope) (response, error) {
	res, err := o.remote(ctx, scope)
	for attempt := 0; err != nil && attempt < o.maxRetries && connector.IsTransient(err); attempt++ {
		o.logger.Warn("transient read failure, retrying",
			zap.String("key", key.String()),
			zap.Duration("delay", o.retryDelay),
			zap.Error(err),
		)

		timer := time.NewTimer(o.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return response{}, connector.Normalize(ctx.Err())
		case <-timer.C:
		}

		res, err = o.remote(ctx, scope)
	}
	return res, err
}

func (o *Orchestrator) remote(ctx context.Context, scope cache.Scope) (response, error) {
	api, err := o.backend.API(scope.Kind)
	if err != nil {
		return response{}, connector.Normalize(err)
	}

	switch scope.Operation {
	case cache.OperationList:
		items, err := api.List(ctx, scope.ListParams())
		if err != nil {
			return response{}, connector.Normalize(err)
		}
		if items == nil {
			items = []entity.Entity{}
		}
		return response{Items: items}, nil
	case cache.OperationDetail:
		item, err := api.Get(ctx, scope.ID())
		if err != nil {
			return response{}, connector.Normalize(err)
		}
		return response{Item: item}, nil
	}

	return response{}, connector.ValidationError(
		fmt.Sprintf("unsupported scope operation %q", scope.Operation),
		map[string]any{"kind": scope.Kind.String()},
	)
}
