package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-connector-cache/entity"
)

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithInterval sets the debounce interval.
func WithInterval(d time.Duration) FilterOption {
	return func(f *Filter) { f.interval = d }
}

// WithOnChange registers fn for every applied query.
func WithOnChange(fn func(query string)) FilterOption {
	return func(f *Filter) { f.onChange = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) FilterOption {
	return func(f *Filter) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Filter keeps the raw text of a search box and the debounced query derived
// from it. The raw text changes immediately; the query changes once typing
// pauses.
type Filter struct {
	interval  time.Duration
	onChange  func(string)
	logger    *zap.Logger
	debouncer *Debouncer[string]
	stop      func() bool

	mu     sync.Mutex
	raw    string
	query  string
	closed bool
}

// NewFilter creates a filter that closes itself when ctx ends.
func NewFilter(ctx context.Context, opts ...FilterOption) *Filter {
	f := &Filter{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	f.debouncer = NewDebouncer(f.interval, f.apply)
	f.stop = context.AfterFunc(ctx, f.Close)
	return f
}

// OnQueryChange records raw and schedules it as the next query.
func (f *Filter) OnQueryChange(raw string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.raw = raw
	f.mu.Unlock()

	f.debouncer.Trigger(raw)
}

func (f *Filter) apply(raw string) {
	query := Normalize(raw)

	f.mu.Lock()
	if f.closed || query == f.query {
		f.mu.Unlock()
		return
	}
	f.query = query
	fn := f.onChange
	f.mu.Unlock()

	f.logger.Debug("search query applied", zap.String("query", query))
	if fn != nil {
		fn(query)
	}
}

// Raw returns the text as last typed.
func (f *Filter) Raw() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raw
}

// Query returns the applied query.
func (f *Filter) Query() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query
}

// Pending reports whether a typed value has not been applied yet.
func (f *Filter) Pending() bool {
	return f.debouncer.Pending()
}

// Flush applies the pending value without waiting.
func (f *Filter) Flush() {
	f.debouncer.Flush()
}

// Close drops the pending value. No query is applied after Close returns.
func (f *Filter) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	f.debouncer.Stop()
	if f.stop != nil {
		f.stop()
	}
}

// Closed reports whether the filter was closed.
func (f *Filter) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Normalize trims and lower cases a query.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Matches reports whether e contains query, ignoring case, in its id or one
// of its descriptive fields. The empty query matches everything.
func Matches(query string, e entity.Entity) bool {
	query = Normalize(query)
	if query == "" {
		return true
	}
	if e == nil {
		return false
	}
	for _, field := range fields(e) {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// Apply keeps the entities matching query, in order.
func Apply(query string, items []entity.Entity) []entity.Entity {
	if Normalize(query) == "" {
		return items
	}
	out := make([]entity.Entity, 0, len(items))
	for _, item := range items {
		if Matches(query, item) {
			out = append(out, item)
		}
	}
	return out
}

func fields(e entity.Entity) []string {
	switch v := e.(type) {
	case entity.Asset:
		return []string{v.ID, v.Name(), v.Description(), v.ContentType(), v.Version()}
	case entity.PolicyDefinition:
		out := []string{v.ID}
		for _, rules := range [][]entity.Rule{v.Policy.Permissions, v.Policy.Prohibitions, v.Policy.Obligations} {
			for _, r := range rules {
				out = append(out, r.Action.Type)
			}
		}
		return out
	case entity.ContractDefinition:
		return []string{v.ID, v.AccessPolicyID, v.ContractPolicyID}
	}
	return []string{e.EntityID()}
}
