package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Updater computes the next state of an entry from its current state. It
// runs while the key is locked and must not call back into the Store.
type Updater func(current Entry) Entry

// Snapshot is a point in time copy of one entry, used for rollback.
type Snapshot struct {
	Key     Key
	Entry   Entry
	Existed bool
}

// StoreStats summarizes the store content.
type StoreStats struct {
	Entries     int
	Subscribers int
	ByStatus    map[Status]int
	Stale       int
	Optimistic  int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithShards sets the number of lock shards.
func WithShards(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.numShards = n
		}
	}
}

// WithGCWindow sets how long an unreferenced entry survives before
// CollectGarbage may evict it.
func WithGCWindow(d time.Duration) StoreOption {
	return func(s *Store) { s.gcWindow = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStoreLogger sets the store logger.
func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store owns every cache entry. All reads and writes go through it; writes
// to a key are atomic and subscribers see versions in increasing order.
type Store struct {
	shards    []*storeShard
	numShards int
	gcWindow  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

type storeShard struct {
	mu    sync.Mutex
	slots map[Key]*slot
}

type slot struct {
	entry       Entry
	subscribers map[uint64]*subscriber
	nextSubID   uint64
	releasedAt  time.Time
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	cfg := DefaultStoreConfig()
	s := &Store{
		numShards: cfg.NumShards,
		gcWindow:  cfg.GCWindow,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.shards = make([]*storeShard, s.numShards)
	for i := range s.shards {
		s.shards[i] = &storeShard{slots: make(map[Key]*slot)}
	}
	return s
}

// Now returns the store clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) shard(key Key) *storeShard {
	return s.shards[xxhash.Sum64String(string(key))%uint64(len(s.shards))]
}

// Read returns the entry stored under key.
func (s *Store) Read(key Key) (Entry, bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sl, ok := sh.slots[key]
	if !ok {
		return Entry{Key: key}, false
	}
	return sl.entry.clone(), true
}

// Write applies updater to the entry under key, creating the entry lazily,
// and notifies subscribers with the result.
func (s *Store) Write(key Key, updater Updater) Entry {
	entry, _ := s.Update(key, func(current Entry, _ int) (Entry, bool) {
		return updater(current), true
	})
	return entry
}

// Update is a conditional Write. fn runs with the key locked, sees the
// current entry and its subscriber count, and reports whether its result
// should be stored. When it declines, the current entry is returned and
// nothing is created or published.
func (s *Store) Update(key Key, fn func(current Entry, refs int) (Entry, bool)) (Entry, bool) {
	sh := s.shard(key)
	sh.mu.Lock()

	sl, ok := sh.slots[key]
	prev := Entry{Key: key}
	refs := 0
	if ok {
		prev = sl.entry
		refs = len(sl.subscribers)
	}

	next, write := fn(prev.clone(), refs)
	if !write {
		sh.mu.Unlock()
		return prev.clone(), false
	}

	if !ok {
		sl = &slot{}
		sh.slots[key] = sl
	}
	next.Key = key
	next.Version = prev.Version + 1
	if next.Generation < prev.Generation {
		next.Generation = prev.Generation
	}
	sl.entry = next.clone()
	subs := sl.subscriberList()
	sh.mu.Unlock()

	s.notify(subs, next)
	return next, true
}

// Invalidate marks every matching, non idle entry stale and returns the
// affected keys. Data is never cleared.
func (s *Store) Invalidate(pred KeyPredicate) []Key {
	var keys []Key
	for _, sh := range s.shards {
		type pending struct {
			subs  []*subscriber
			entry Entry
		}
		var notifications []pending

		sh.mu.Lock()
		for key, sl := range sh.slots {
			if pred != nil && !pred(key) {
				continue
			}
			if sl.entry.Status == StatusIdle {
				continue
			}
			sl.entry.Stale = true
			sl.entry.Generation++
			sl.entry.Version++
			keys = append(keys, key)
			notifications = append(notifications, pending{subs: sl.subscriberList(), entry: sl.entry.clone()})
		}
		sh.mu.Unlock()

		for _, n := range notifications {
			s.notify(n.subs, n.entry)
		}
	}

	sortKeys(keys)
	if len(keys) > 0 {
		s.logger.Debug("cache entries invalidated", zap.Int("count", len(keys)))
	}
	return keys
}

// Snapshot copies the entry under key for a later Restore.
func (s *Store) Snapshot(key Key) Snapshot {
	entry, ok := s.Read(key)
	return Snapshot{Key: key, Entry: entry, Existed: ok}
}

// Restore puts a snapshot back. Data, status, error and flags are restored
// exactly; Version and Generation only move forward, and an entry invalidated
// since the snapshot stays stale. A snapshot of a missing
// entry removes the entry again, or resets it to idle while it still has
// subscribers.
func (s *Store) Restore(snap Snapshot) Entry {
	sh := s.shard(snap.Key)
	sh.mu.Lock()

	sl, ok := sh.slots[snap.Key]
	if !ok {
		if !snap.Existed {
			sh.mu.Unlock()
			return Entry{Key: snap.Key}
		}
		sl = &slot{}
		sh.slots[snap.Key] = sl
	}

	prev := sl.entry
	var next Entry
	if snap.Existed {
		next = snap.Entry.clone()
	}
	next.Key = snap.Key
	next.Version = prev.Version + 1
	if next.Generation < prev.Generation {
		// invalidated after the snapshot was taken
		next.Generation = prev.Generation
		next.Stale = true
	}

	if !snap.Existed && len(sl.subscribers) == 0 {
		delete(sh.slots, snap.Key)
		sh.mu.Unlock()
		return next
	}

	sl.entry = next
	subs := sl.subscriberList()
	sh.mu.Unlock()

	s.notify(subs, next)
	return next
}

// Subscribe registers fn for every future state of key. The entry is created
// idle if it does not exist yet. The returned function detaches fn; calling it
// more than once is safe.
func (s *Store) Subscribe(key Key, fn func(Entry)) func() {
	sh := s.shard(key)
	sh.mu.Lock()
	sl, ok := sh.slots[key]
	if !ok {
		sl = &slot{entry: Entry{Key: key}}
		sh.slots[key] = sl
	}
	if sl.subscribers == nil {
		sl.subscribers = make(map[uint64]*subscriber)
	}
	sl.nextSubID++
	id := sl.nextSubID
	sub := &subscriber{fn: fn, last: sl.entry.Version}
	sl.subscribers[id] = sub
	sh.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.detach()
			sh.mu.Lock()
			defer sh.mu.Unlock()
			current, ok := sh.slots[key]
			if !ok || current != sl {
				return
			}
			delete(sl.subscribers, id)
			if len(sl.subscribers) == 0 {
				sl.releasedAt = s.now()
			}
		})
	}
}

// Refs returns the number of subscribers attached to key.
func (s *Store) Refs(key Key) int {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sl, ok := sh.slots[key]; ok {
		return len(sl.subscribers)
	}
	return 0
}

// Keys returns the matching keys in sorted order.
func (s *Store) Keys(pred KeyPredicate) []Key {
	var keys []Key
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key := range sh.slots {
			if pred == nil || pred(key) {
				keys = append(keys, key)
			}
		}
		sh.mu.Unlock()
	}
	sortKeys(keys)
	return keys
}

// Delete removes an entry that has no subscribers.
func (s *Store) Delete(key Key) bool {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sl, ok := sh.slots[key]
	if !ok || len(sl.subscribers) > 0 {
		return false
	}
	delete(sh.slots, key)
	return true
}

// CollectGarbage evicts entries nobody subscribes to once the GC window has
// elapsed since they were released (or last updated when never subscribed).
// Loading entries are kept. It returns the evicted keys.
func (s *Store) CollectGarbage(now time.Time) []Key {
	if s.gcWindow <= 0 {
		return nil
	}

	var evicted []Key
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, sl := range sh.slots {
			if len(sl.subscribers) > 0 || sl.entry.Status == StatusLoading {
				continue
			}
			since := sl.releasedAt
			if since.IsZero() || sl.entry.LastUpdated.After(since) {
				since = sl.entry.LastUpdated
			}
			if now.Sub(since) < s.gcWindow {
				continue
			}
			delete(sh.slots, key)
			evicted = append(evicted, key)
		}
		sh.mu.Unlock()
	}

	sortKeys(evicted)
	if len(evicted) > 0 {
		s.logger.Debug("cache entries collected", zap.Int("count", len(evicted)))
	}
	return evicted
}

// Stats summarizes the store.
func (s *Store) Stats() StoreStats {
	stats := StoreStats{ByStatus: make(map[Status]int)}
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, sl := range sh.slots {
			stats.Entries++
			stats.Subscribers += len(sl.subscribers)
			stats.ByStatus[sl.entry.Status]++
			if sl.entry.Stale {
				stats.Stale++
			}
			if sl.entry.IsOptimistic {
				stats.Optimistic++
			}
		}
		sh.mu.Unlock()
	}
	return stats
}

func (s *Store) notify(subs []*subscriber, entry Entry) {
	for _, sub := range subs {
		sub.deliver(entry.clone())
	}
}

func (sl *slot) subscriberList() []*subscriber {
	if len(sl.subscribers) == 0 {
		return nil
	}
	out := make([]*subscriber, 0, len(sl.subscribers))
	for _, sub := range sl.subscribers {
		out = append(out, sub)
	}
	return out
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
}

// subscriber serializes deliveries to one callback. Entries arrive in
// increasing Version order; a delivery that finds the callback busy is queued
// and only the newest queued entry is delivered. Callbacks may write to the
// store without deadlocking.
type subscriber struct {
	fn func(Entry)

	mu       sync.Mutex
	last     uint64
	pending  *Entry
	running  bool
	detached bool
}

func (sub *subscriber) deliver(entry Entry) {
	sub.mu.Lock()
	if sub.detached || entry.Version <= sub.last {
		sub.mu.Unlock()
		return
	}
	sub.last = entry.Version
	sub.pending = &entry
	if sub.running {
		sub.mu.Unlock()
		return
	}
	sub.running = true

	for {
		next := sub.pending
		sub.pending = nil
		sub.mu.Unlock()

		sub.fn(*next)

		sub.mu.Lock()
		if sub.pending == nil || sub.detached {
			sub.running = false
			sub.mu.Unlock()
			return
		}
	}
}

func (sub *subscriber) detach() {
	sub.mu.Lock()
	sub.detached = true
	sub.pending = nil
	sub.mu.Unlock()
}
