package cache

import (
	"time"

	"github.com/goliatone/go-connector-cache/entity"
)

// Status is the load state of an entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Entry is the cached state of one scope.
//
// List scopes keep their entities in Items, in server order except where the
// optimistic layer appended or removed entities. Detail scopes keep a single
// entity, or nil when absent, in Item.
type Entry struct {
	Key          Key
	Status       Status
	Items        []entity.Entity
	Item         entity.Entity
	Err          error
	LastUpdated  time.Time
	IsOptimistic bool
	// Stale is set by invalidation; data is kept until new data arrives.
	Stale bool
	// Generation increases on every invalidation.
	Generation uint64
	// Version increases on every write.
	Version uint64
}

// HasData reports whether the entry holds any entity data.
func (e Entry) HasData() bool {
	return e.Items != nil || e.Item != nil
}

// Settled reports whether the entry reached a terminal state for its
// current loading cycle.
func (e Entry) Settled() bool {
	return e.Status == StatusSuccess || e.Status == StatusError
}

// Fresh reports whether the entry can be served without a network call.
func (e Entry) Fresh() bool {
	return e.Status == StatusSuccess && !e.Stale
}

// Loading moves the entry into a new loading cycle, keeping last known data.
func (e Entry) Loading() Entry {
	e.Status = StatusLoading
	return e
}

// Succeeded records list data.
func (e Entry) Succeeded(items []entity.Entity, at time.Time) Entry {
	if items == nil {
		items = []entity.Entity{}
	}
	e.Status = StatusSuccess
	e.Items = items
	e.Item = nil
	e.Err = nil
	e.LastUpdated = at
	e.IsOptimistic = false
	e.Stale = false
	return e
}

// SucceededItem records detail data. A nil item means the entity is absent.
func (e Entry) SucceededItem(item entity.Entity, at time.Time) Entry {
	e.Status = StatusSuccess
	e.Item = item
	e.Items = nil
	e.Err = nil
	e.LastUpdated = at
	e.IsOptimistic = false
	e.Stale = false
	return e
}

// Failed records a normalized error. Previously loaded data is kept so
// views can keep rendering it next to the error.
func (e Entry) Failed(err error, at time.Time) Entry {
	e.Status = StatusError
	e.Err = err
	e.LastUpdated = at
	e.IsOptimistic = false
	return e
}

// clone copies the item slice so callers cannot reach the stored backing array.
func (e Entry) clone() Entry {
	if e.Items != nil {
		items := make([]entity.Entity, len(e.Items))
		copy(items, e.Items)
		e.Items = items
	}
	return e
}
