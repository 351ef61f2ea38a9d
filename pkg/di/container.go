package di

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-connector-cache/cache"
	"github.com/goliatone/go-connector-cache/config"
	"github.com/goliatone/go-connector-cache/connector"
	"github.com/goliatone/go-connector-cache/entity"
	"github.com/goliatone/go-connector-cache/fetcher"
	"github.com/goliatone/go-connector-cache/internal/cacheinfra"
	"github.com/goliatone/go-connector-cache/internal/logging"
	"github.com/goliatone/go-connector-cache/listview"
	"github.com/goliatone/go-connector-cache/mutation"
)

// Option configures a Container.
type Option func(*Container)

// WithLogger replaces the logger built from the log section.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) { c.logger = logger }
}

// WithClock overrides the store time source.
func WithClock(now func() time.Time) Option {
	return func(c *Container) { c.now = now }
}

// Container wires the sync core around one connector backend. Every
// component is created once and shared.
type Container struct {
	config  config.Config
	logger  *zap.Logger
	now     func() time.Time
	backend connector.Backend

	keySerializer cache.KeySerializer
	registry      *cache.Registry
	store         *cache.Store
	cacheService  cache.CacheService
	orchestrator  *fetcher.Orchestrator
	coordinator   *mutation.Coordinator
}

// NewContainer validates cfg and builds the components.
func NewContainer(cfg config.Config, backend connector.Backend, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{config: cfg, backend: backend}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		logger, err := logging.New(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		c.logger = logger
	}

	storeOpts := append(cfg.Store.Entries().Options(), cache.WithStoreLogger(c.logger.Named("store")))
	if c.now != nil {
		storeOpts = append(storeOpts, cache.WithClock(c.now))
	}

	c.keySerializer = cache.NewDefaultKeySerializer()
	c.registry = cache.NewRegistry(c.keySerializer)
	c.store = cache.NewStore(storeOpts...)

	fetchOpts := append(cfg.Fetch.Options(), fetcher.WithLogger(c.logger.Named("fetcher")))
	if cfg.Cache.Enabled {
		svc, err := cache.NewCacheService(cfg.Cache.Responses(), cacheinfra.WithLogger(c.logger.Named("responses")))
		if err != nil {
			return nil, err
		}
		c.cacheService = svc
		fetchOpts = append(fetchOpts, fetcher.WithResponseCache(svc))
	}

	c.orchestrator = fetcher.New(c.store, c.registry, backend, fetchOpts...)
	c.coordinator = mutation.New(c.orchestrator, backend, mutation.WithLogger(c.logger.Named("mutation")))

	return c, nil
}

// NewContainerWithDefaults builds a container from config.DefaultConfig.
func NewContainerWithDefaults(backend connector.Backend, opts ...Option) (*Container, error) {
	return NewContainer(config.DefaultConfig(), backend, opts...)
}

// Config returns the configuration the container was built with.
func (c *Container) Config() config.Config { return c.config }

// Logger returns the root logger.
func (c *Container) Logger() *zap.Logger { return c.logger }

// Backend returns the connector backend.
func (c *Container) Backend() connector.Backend { return c.backend }

// KeySerializer returns the serializer behind the key registry.
func (c *Container) KeySerializer() cache.KeySerializer { return c.keySerializer }

// Registry returns the scope key registry.
func (c *Container) Registry() *cache.Registry { return c.registry }

// Store returns the entry store.
func (c *Container) Store() *cache.Store { return c.store }

// CacheService returns the response cache, nil when it is disabled.
func (c *Container) CacheService() cache.CacheService { return c.cacheService }

// Orchestrator returns the fetch orchestrator.
func (c *Container) Orchestrator() *fetcher.Orchestrator { return c.orchestrator }

// Coordinator returns the mutation coordinator.
func (c *Container) Coordinator() *mutation.Coordinator { return c.coordinator }

// NewListView opens a list view configured from the search and pagination
// sections. opts are applied after the configured ones.
func (c *Container) NewListView(ctx context.Context, kind entity.Kind, opts ...listview.Option) *listview.View {
	all := append(c.config.ViewOptions(), listview.WithLogger(c.logger.Named("listview")))
	all = append(all, opts...)
	return listview.New(ctx, c.orchestrator, kind, all...)
}

// RunGC collects unreferenced entries every interval until ctx ends.
func (c *Container) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.config.Store.GCWindow
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := c.orchestrator.CollectGarbage(); len(evicted) > 0 {
				c.logger.Debug("entries collected", zap.Int("count", len(evicted)))
			}
		}
	}
}
