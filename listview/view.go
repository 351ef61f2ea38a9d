// Package listview combines a search filter, a pagination window and a
// fetcher subscription into a browsable list of one entity kind.
package listview

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-connector-cache/cache"
	"github.com/goliatone/go-connector-cache/connector"
	"github.com/goliatone/go-connector-cache/entity"
	"github.com/goliatone/go-connector-cache/fetcher"
	"github.com/goliatone/go-connector-cache/pagination"
	"github.com/goliatone/go-connector-cache/search"
)

// Mode selects where filtering and paging happen.
type Mode int

const (
	// ModeClient loads up to MaxItems once and filters and pages locally.
	ModeClient Mode = iota
	// ModeServer loads one page at a time with the query as a remote filter.
	ModeServer
)

func (m Mode) String() string {
	if m == ModeServer {
		return "server"
	}
	return "client"
}

// DefaultMaxItems bounds the list loaded in client mode.
const DefaultMaxItems = 500

// Snapshot is the renderable state of a view.
type Snapshot struct {
	Status     cache.Status
	Items      []entity.Entity
	Err        error
	Stale      bool
	Raw        string
	Query      string
	Page       int
	PageSize   int
	TotalPages int
	TotalItems int
	Range      []int
}

// Option configures a View.
type Option func(*View)

// WithMode sets the mode.
func WithMode(mode Mode) Option {
	return func(v *View) { v.mode = mode }
}

// WithPageSize sets the initial page size.
func WithPageSize(n int) Option {
	return func(v *View) { v.pageSize = n }
}

// WithMaxItems bounds client mode loads and page sizes.
func WithMaxItems(n int) Option {
	return func(v *View) {
		if n > 0 {
			v.maxItems = n
		}
	}
}

// WithDebounce sets the search debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(v *View) { v.debounce = d }
}

// WithServerFilter sets how a query becomes a remote filter in server mode.
func WithServerFilter(fn func(query string) []entity.Criterion) Option {
	return func(v *View) {
		if fn != nil {
			v.serverFilter = fn
		}
	}
}

// WithOnChange registers fn for every state change of the view. fn must not
// call Close.
func WithOnChange(fn func(Snapshot)) Option {
	return func(v *View) { v.onChange = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(v *View) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// IDFilter matches entities whose id contains query.
func IDFilter(query string) []entity.Criterion {
	if query == "" {
		return nil
	}
	return []entity.Criterion{{
		OperandLeft:  "id",
		Operator:     entity.OperatorLike,
		OperandRight: "%" + query + "%",
	}}
}

// View is a paged, searchable list of one entity kind.
type View struct {
	orch         *fetcher.Orchestrator
	kind         entity.Kind
	mode         Mode
	pageSize     int
	maxItems     int
	debounce     time.Duration
	serverFilter func(string) []entity.Criterion
	onChange     func(Snapshot)
	logger       *zap.Logger
	filter       *search.Filter

	mu     sync.Mutex
	window pagination.Window
	sub    *fetcher.Subscription
	seq    uint64
	closed bool
	stop   func() bool
}

// New opens a view and starts loading its first page. The view closes when
// ctx ends.
func New(ctx context.Context, orch *fetcher.Orchestrator, kind entity.Kind, opts ...Option) *View {
	v := &View{
		orch:         orch,
		kind:         kind,
		maxItems:     DefaultMaxItems,
		serverFilter: IDFilter,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.pageSize = pagination.ClampPageSize(v.pageSize, pagination.PageSizeConfig{
		Default: pagination.DefaultPageSize,
		Max:     v.maxItems,
	})
	v.window = pagination.New(0, v.pageSize, 1)
	v.filter = search.NewFilter(ctx,
		search.WithInterval(v.debounce),
		search.WithOnChange(v.queryChanged),
		search.WithLogger(v.logger),
	)
	stop := context.AfterFunc(ctx, v.Close)
	v.mu.Lock()
	v.stop = stop
	v.mu.Unlock()

	v.resubscribe()
	return v
}

// Search records raw search text. The list follows once typing pauses.
func (v *View) Search(raw string) {
	v.filter.OnQueryChange(raw)
}

// FlushSearch applies pending search text immediately.
func (v *View) FlushSearch() {
	v.filter.Flush()
}

// SetPage moves to page, clamped into the known page count.
func (v *View) SetPage(page int) {
	query := v.filter.Query()
	v.mu.Lock()
	v.window = v.windowLocked(v.entryLocked(), query).WithPage(page)
	v.mu.Unlock()
	v.changed()
}

// SetPageSize changes the page size.
func (v *View) SetPageSize(n int) {
	query := v.filter.Query()
	v.mu.Lock()
	n = pagination.ClampPageSize(n, pagination.PageSizeConfig{Default: pagination.DefaultPageSize, Max: v.maxItems})
	v.window = v.windowLocked(v.entryLocked(), query).WithPageSize(n)
	v.mu.Unlock()
	v.changed()
}

// Refetch reloads the current scope.
func (v *View) Refetch() {
	v.mu.Lock()
	sub := v.sub
	v.mu.Unlock()
	if sub != nil {
		sub.Refetch()
	}
}

// Key returns the key of the scope the view is subscribed to.
func (v *View) Key() cache.Key {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sub == nil {
		return ""
	}
	return v.sub.Key()
}

// Wait blocks until the current scope settles, following scope changes.
func (v *View) Wait(ctx context.Context) (Snapshot, error) {
	for {
		v.mu.Lock()
		sub, closed := v.sub, v.closed
		v.mu.Unlock()
		if closed || sub == nil {
			return v.Snapshot(), fetcher.ErrSubscriptionClosed
		}

		_, err := sub.Wait(ctx)
		if errors.Is(err, fetcher.ErrSubscriptionClosed) {
			continue
		}
		if err != nil {
			return v.Snapshot(), err
		}

		v.mu.Lock()
		current := v.sub
		v.mu.Unlock()
		if current == sub {
			return v.Snapshot(), nil
		}
	}
}

// Snapshot returns the current state of the view.
func (v *View) Snapshot() Snapshot {
	raw, query := v.filter.Raw(), v.filter.Query()

	v.mu.Lock()
	defer v.mu.Unlock()

	e := v.entryLocked()
	w := v.windowLocked(e, query)

	s := Snapshot{
		Status:     e.Status,
		Err:        e.Err,
		Stale:      e.Stale,
		Raw:        raw,
		Query:      query,
		Page:       w.CurrentPage(),
		PageSize:   w.PageSize(),
		TotalPages: w.TotalPages(),
		TotalItems: w.TotalItems(),
		Range:      w.Range(),
	}

	if v.mode == ModeServer {
		s.Items = e.Items
		return s
	}
	filtered := search.Apply(query, e.Items)
	start, end := w.Bounds()
	if start < len(filtered) {
		s.Items = filtered[start:min(end, len(filtered))]
	}
	return s
}

// Close releases the subscription and stops the search filter.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	sub := v.sub
	v.sub = nil
	stop := v.stop
	v.mu.Unlock()

	v.filter.Close()
	if sub != nil {
		sub.Close()
	}
	if stop != nil {
		stop()
	}
}

func (v *View) queryChanged(query string) {
	v.mu.Lock()
	v.window = v.windowLocked(v.entryLocked(), query).WithPage(1)
	v.mu.Unlock()
	v.changed()
}

// changed follows a change of page, page size or query.
func (v *View) changed() {
	if v.mode == ModeServer {
		v.resubscribe()
	}
	v.publish()
}

func (v *View) scopeLocked() cache.Scope {
	if v.mode == ModeServer {
		return cache.ListScope(v.kind, connector.ListParams{
			Limit:  v.window.Limit(),
			Offset: v.window.Offset(),
			Filter: v.serverFilter(v.filter.Query()),
		})
	}
	return cache.ListScope(v.kind, connector.ListParams{Limit: v.maxItems})
}

// resubscribe moves the view to the scope its state calls for.
func (v *View) resubscribe() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	scope := v.scopeLocked()
	key := v.orch.Registry().Key(scope)
	if v.sub != nil && v.sub.Key() == key {
		v.mu.Unlock()
		return
	}
	v.seq++
	seq := v.seq
	v.mu.Unlock()

	sub := v.orch.Ensure(scope, fetcher.OnChange(func(e cache.Entry) { v.entryChanged(seq, e) }))

	v.mu.Lock()
	if v.closed || v.seq != seq {
		v.mu.Unlock()
		sub.Close()
		return
	}
	old := v.sub
	v.sub = sub
	v.mu.Unlock()

	if old != nil {
		old.Close()
	}
	v.logger.Debug("list view scope changed", zap.String("key", key.String()), zap.Stringer("mode", v.mode))
}

func (v *View) entryChanged(seq uint64, e cache.Entry) {
	v.mu.Lock()
	if v.closed || v.seq != seq {
		v.mu.Unlock()
		return
	}
	before := v.window.CurrentPage()
	v.window = v.windowLocked(e, v.filter.Query())
	moved := v.window.CurrentPage() != before
	v.mu.Unlock()

	if moved && v.mode == ModeServer {
		v.resubscribe()
	}
	v.publish()
}

func (v *View) entryLocked() cache.Entry {
	if v.sub == nil {
		return cache.Entry{}
	}
	return v.sub.Entry()
}

// windowLocked recomputes the window total from entry data, which re-clamps
// the page. Entries without data leave the window alone so a first load does
// not reset the page.
func (v *View) windowLocked(e cache.Entry, query string) pagination.Window {
	if e.Items == nil {
		return v.window
	}
	if v.mode == ModeServer {
		if e.Status != cache.StatusSuccess {
			return v.window
		}
		total := v.window.Offset() + len(e.Items)
		if len(e.Items) >= v.window.Limit() {
			total++
		}
		return v.window.WithTotal(total)
	}
	return v.window.WithTotal(len(search.Apply(query, e.Items)))
}

func (v *View) publish() {
	if v.onChange == nil {
		return
	}
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if !closed {
		v.onChange(v.Snapshot())
	}
}
