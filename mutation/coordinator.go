package mutation

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-connector-cache/cache"
	"github.com/goliatone/go-connector-cache/connector"
	"github.com/goliatone/go-connector-cache/entity"
	"github.com/goliatone/go-connector-cache/fetcher"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithProvisionalIDs replaces the provisional id source. The prefix is added
// by the coordinator.
func WithProvisionalIDs(next func() string) Option {
	return func(c *Coordinator) {
		if next != nil {
			c.nextID = next
		}
	}
}

// Coordinator applies mutations optimistically and settles them against the
// connector. Mutations are never retried.
//
// Callers serialize mutations that target the same entity.
type Coordinator struct {
	orch    *fetcher.Orchestrator
	store   *cache.Store
	backend connector.Backend
	logger  *zap.Logger
	nextID  func() string
}

// New creates a coordinator writing through orch's store.
func New(orch *fetcher.Orchestrator, backend connector.Backend, opts ...Option) *Coordinator {
	c := &Coordinator{
		orch:    orch,
		store:   orch.Store(),
		backend: backend,
		logger:  zap.NewNop(),
		nextID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create adds input and returns the entity the connector stored.
func (c *Coordinator) Create(ctx context.Context, kind entity.Kind, input entity.Entity) (entity.Entity, error) {
	return c.Execute(ctx, Create(kind, input))
}

// Update patches the entity id and returns the connector's version of it.
func (c *Coordinator) Update(ctx context.Context, kind entity.Kind, id string, patch entity.Patch) (entity.Entity, error) {
	return c.Execute(ctx, Update(kind, id, patch))
}

// Delete removes the entity id.
func (c *Coordinator) Delete(ctx context.Context, kind entity.Kind, id string) error {
	_, err := c.Execute(ctx, Delete(kind, id))
	return err
}

// Execute runs cmd. On failure every affected entry is restored to its state
// before the optimistic write and the normalized error is returned.
func (c *Coordinator) Execute(ctx context.Context, cmd *Command) (entity.Entity, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	api, err := c.backend.API(cmd.Kind)
	if err != nil {
		return nil, connector.Normalize(err)
	}

	if cmd.Op == OpCreate && cmd.ID == "" {
		cmd.provisional = ProvisionalPrefix + c.nextID()
	}

	registry := c.orch.Registry()
	cmd.snapshot(c.store, cmd.affected(c.store, registry))
	cmd.apply(c.store)

	logger := c.logger.With(
		zap.String("op", string(cmd.Op)),
		zap.String("kind", cmd.Kind.String()),
		zap.String("id", cmd.targetID()),
	)
	logger.Debug("optimistic write applied", zap.Int("scopes", len(cmd.snapshots)))

	result, err := cmd.dispatch(ctx, api)
	if err != nil {
		err = connector.Normalize(err)
		restored := cmd.rollback(c.store)
		c.orch.Reconcile(restored...)
		logger.Warn("mutation rolled back", zap.Error(err))
		return nil, err
	}

	detail := cmd.commit(c.store, registry, result)
	c.orch.DropResponses(detail)

	stale := cache.MatchOperation(cmd.Kind, cache.OperationList)
	if related := cmd.related(); related != nil {
		stale = cache.AnyOf(stale, related)
	}
	keys := c.orch.Invalidate(stale)

	logger.Debug("mutation committed", zap.Int("stale", len(keys)))
	return result, nil
}
