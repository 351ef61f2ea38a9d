// Package memory is an in-process connector backend. It keeps entities in
// insertion order and is used by the example program and by tests that need a
// remote collaborator with controllable latency and failures.
package memory

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-connector-cache/connector"
	"github.com/goliatone/go-connector-cache/entity"
)

// Op names a remote operation.
type Op string

const (
	OpList   Op = "list"
	OpGet    Op = "get"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Call describes one remote operation as seen by a Hook.
type Call struct {
	Kind entity.Kind
	Op   Op
	ID   string
}

// Hook runs before every operation. A non nil error fails the call; a hook
// may also block to simulate latency.
type Hook func(ctx context.Context, call Call) error

// Option configures a Backend.
type Option func(*Backend)

// WithHook installs a hook that runs before every call.
func WithHook(hook Hook) Option {
	return func(b *Backend) { b.hook = hook }
}

// WithLatency delays every call by d.
func WithLatency(d time.Duration) Option {
	return func(b *Backend) { b.latency = d }
}

// WithLogger sets the logger used for call tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithEntities seeds the backend.
func WithEntities(items ...entity.Entity) Option {
	return func(b *Backend) { b.Seed(items...) }
}

type table struct {
	order []string
	items map[string]entity.Entity
}

// Backend implements connector.Backend in memory.
type Backend struct {
	mu      sync.RWMutex
	tables  map[entity.Kind]*table
	calls   map[Call]int
	hook    Hook
	latency time.Duration
	logger  *zap.Logger
}

var _ connector.Backend = (*Backend)(nil)

// New creates an empty backend for every known entity kind.
func New(opts ...Option) *Backend {
	b := &Backend{
		tables: make(map[entity.Kind]*table),
		calls:  make(map[Call]int),
		logger: zap.NewNop(),
	}
	for _, kind := range entity.Kinds() {
		b.tables[kind] = &table{items: make(map[string]entity.Entity)}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// API returns the kind scoped API.
func (b *Backend) API(kind entity.Kind) (connector.API, error) {
	if _, ok := b.tables[kind]; !ok {
		return nil, connector.UnsupportedKind(kind)
	}
	return &kindAPI{backend: b, kind: kind}, nil
}

// Seed stores entities directly, bypassing hooks and call accounting.
func (b *Backend) Seed(items ...entity.Entity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, item := range items {
		if item == nil {
			continue
		}
		t, ok := b.tables[item.EntityKind()]
		if !ok {
			continue
		}
		if _, exists := t.items[item.EntityID()]; !exists {
			t.order = append(t.order, item.EntityID())
		}
		t.items[item.EntityID()] = item.Clone()
	}
}

// SetHook swaps the hook at runtime.
func (b *Backend) SetHook(hook Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = hook
}

// CallCount returns how many times an operation reached the backend. An
// empty id counts calls for every id.
func (b *Backend) CallCount(kind entity.Kind, op Op) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for call, n := range b.calls {
		if call.Kind == kind && call.Op == op {
			total += n
		}
	}
	return total
}

// Len returns the number of stored entities of a kind.
func (b *Backend) Len(kind entity.Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if t, ok := b.tables[kind]; ok {
		return len(t.order)
	}
	return 0
}

func (b *Backend) enter(ctx context.Context, call Call) error {
	b.mu.Lock()
	b.calls[call]++
	hook := b.hook
	latency := b.latency
	b.mu.Unlock()

	b.logger.Debug("connector call",
		zap.String("kind", call.Kind.String()),
		zap.String("op", string(call.Op)),
		zap.String("id", call.ID),
	)

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return connector.NetworkError(ctx.Err(), "request aborted")
		case <-timer.C:
		}
	}
	if hook != nil {
		if err := hook(ctx, call); err != nil {
			return connector.Normalize(err)
		}
	}
	return nil
}

type kindAPI struct {
	backend *Backend
	kind    entity.Kind
}

func (k *kindAPI) List(ctx context.Context, params connector.ListParams) ([]entity.Entity, error) {
	if err := k.backend.enter(ctx, Call{Kind: k.kind, Op: OpList}); err != nil {
		return nil, err
	}
	if params.Limit < 0 || params.Offset < 0 {
		return nil, connector.RemoteError(http.StatusBadRequest, "limit and offset must be non-negative", map[string]any{
			"limit":  params.Limit,
			"offset": params.Offset,
		})
	}

	k.backend.mu.RLock()
	defer k.backend.mu.RUnlock()
	t := k.backend.tables[k.kind]

	matched := make([]entity.Entity, 0, len(t.order))
	for _, id := range t.order {
		item := t.items[id]
		if matchesFilter(item, params.Filter) {
			matched = append(matched, item)
		}
	}

	if params.Offset >= len(matched) {
		return []entity.Entity{}, nil
	}
	end := len(matched)
	if params.Limit > 0 && params.Offset+params.Limit < end {
		end = params.Offset + params.Limit
	}

	out := make([]entity.Entity, 0, end-params.Offset)
	for _, item := range matched[params.Offset:end] {
		out = append(out, item.Clone())
	}
	return out, nil
}

func (k *kindAPI) Get(ctx context.Context, id string) (entity.Entity, error) {
	if err := k.backend.enter(ctx, Call{Kind: k.kind, Op: OpGet, ID: id}); err != nil {
		return nil, err
	}
	k.backend.mu.RLock()
	defer k.backend.mu.RUnlock()
	item, ok := k.backend.tables[k.kind].items[id]
	if !ok {
		return nil, connector.NotFound(k.kind, id)
	}
	return item.Clone(), nil
}

func (k *kindAPI) Create(ctx context.Context, input entity.Entity) (entity.Entity, error) {
	if input == nil {
		return nil, connector.ValidationError("create input is required", nil)
	}
	if input.EntityKind() != k.kind {
		return nil, connector.ValidationError(fmt.Sprintf("cannot create %s through the %s api", input.EntityKind(), k.kind), nil)
	}
	if err := k.backend.enter(ctx, Call{Kind: k.kind, Op: OpCreate, ID: input.EntityID()}); err != nil {
		return nil, err
	}

	k.backend.mu.Lock()
	defer k.backend.mu.Unlock()
	t := k.backend.tables[k.kind]

	id := input.EntityID()
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := t.items[id]; exists {
		return nil, connector.RemoteError(http.StatusConflict, fmt.Sprintf("%s %q already exists", k.kind, id), map[string]any{"id": id})
	}

	stored := input.WithID(id)
	t.items[id] = stored
	t.order = append(t.order, id)
	return stored.Clone(), nil
}

func (k *kindAPI) Update(ctx context.Context, id string, patch entity.Patch) (entity.Entity, error) {
	if patch == nil {
		return nil, connector.ValidationError("update patch is required", nil)
	}
	if err := k.backend.enter(ctx, Call{Kind: k.kind, Op: OpUpdate, ID: id}); err != nil {
		return nil, err
	}

	k.backend.mu.Lock()
	defer k.backend.mu.Unlock()
	t := k.backend.tables[k.kind]

	current, ok := t.items[id]
	if !ok {
		return nil, connector.NotFound(k.kind, id)
	}
	updated, err := patch.Apply(current)
	if err != nil {
		return nil, connector.RemoteError(http.StatusBadRequest, err.Error(), map[string]any{"id": id})
	}
	t.items[id] = updated
	return updated.Clone(), nil
}

func (k *kindAPI) Delete(ctx context.Context, id string) error {
	if err := k.backend.enter(ctx, Call{Kind: k.kind, Op: OpDelete, ID: id}); err != nil {
		return err
	}

	k.backend.mu.Lock()
	defer k.backend.mu.Unlock()
	t := k.backend.tables[k.kind]

	if _, ok := t.items[id]; !ok {
		return connector.NotFound(k.kind, id)
	}
	if k.kind == entity.KindPolicyDefinition {
		for _, item := range k.backend.tables[entity.KindContractDefinition].items {
			if contract, ok := item.(entity.ContractDefinition); ok && contract.References(id) {
				return connector.RemoteError(http.StatusConflict, fmt.Sprintf("policy %q is referenced by contract %q", id, contract.ID), map[string]any{
					"id":       id,
					"contract": contract.ID,
				})
			}
		}
	}

	delete(t.items, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

func matchesFilter(item entity.Entity, filter []entity.Criterion) bool {
	if len(filter) == 0 {
		return true
	}
	asset, ok := item.(entity.Asset)
	if !ok {
		asset = entity.Asset{ID: item.EntityID()}
	}
	for _, crit := range filter {
		if !crit.Matches(asset) {
			return false
		}
	}
	return true
}
