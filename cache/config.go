package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-connector-cache/internal/cacheinfra"
)

// Config exposes the response cache settings.
type Config struct {
	Capacity             int
	NumShards            int
	TTL                  time.Duration
	EvictionPercentage   int
	EarlyRefresh         *EarlyRefreshConfig
	MissingRecordStorage bool
	EvictionInterval     time.Duration
}

// EarlyRefreshConfig mirrors the underlying sturdyc early refresh options.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns the response cache defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewCacheService builds the sturdyc backed response cache.
func NewCacheService(cfg Config, opts ...cacheinfra.Option) (CacheService, error) {
	return cacheinfra.NewResponseCache(cfg.toInternal(), opts...)
}

func (c Config) toInternal() cacheinfra.Config {
	var early *cacheinfra.EarlyRefreshConfig
	if c.EarlyRefresh != nil {
		early = &cacheinfra.EarlyRefreshConfig{
			MinAsyncRefreshTime: c.EarlyRefresh.MinAsyncRefreshTime,
			MaxAsyncRefreshTime: c.EarlyRefresh.MaxAsyncRefreshTime,
			SyncRefreshTime:     c.EarlyRefresh.SyncRefreshTime,
			RetryBaseDelay:      c.EarlyRefresh.RetryBaseDelay,
		}
	}

	return cacheinfra.Config{
		Capacity:             c.Capacity,
		NumShards:            c.NumShards,
		TTL:                  c.TTL,
		EvictionPercentage:   c.EvictionPercentage,
		EarlyRefresh:         early,
		MissingRecordStorage: c.MissingRecordStorage,
		EvictionInterval:     c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	var early *EarlyRefreshConfig
	if cfg.EarlyRefresh != nil {
		early = &EarlyRefreshConfig{
			MinAsyncRefreshTime: cfg.EarlyRefresh.MinAsyncRefreshTime,
			MaxAsyncRefreshTime: cfg.EarlyRefresh.MaxAsyncRefreshTime,
			SyncRefreshTime:     cfg.EarlyRefresh.SyncRefreshTime,
			RetryBaseDelay:      cfg.EarlyRefresh.RetryBaseDelay,
		}
	}

	return Config{
		Capacity:             cfg.Capacity,
		NumShards:            cfg.NumShards,
		TTL:                  cfg.TTL,
		EvictionPercentage:   cfg.EvictionPercentage,
		EarlyRefresh:         early,
		MissingRecordStorage: cfg.MissingRecordStorage,
		EvictionInterval:     cfg.EvictionInterval,
	}
}

// StoreConfig holds the entry store settings.
type StoreConfig struct {
	// NumShards is the number of lock shards keys are spread over.
	NumShards int
	// GCWindow is how long an entry without subscribers is kept. Zero
	// disables collection.
	GCWindow time.Duration
}

// DefaultStoreConfig returns the store defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		NumShards: 32,
		GCWindow:  5 * time.Minute,
	}
}

// Validate checks the store settings.
func (c StoreConfig) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.NumShards, cacheinfra.Positive[int]()...),
		validation.Field(&c.GCWindow, cacheinfra.NonNegative[time.Duration]()...),
	)
	if err != nil {
		return cacheinfra.AsConfigError("Store.", err)
	}
	return nil
}

// Options converts the settings into store options.
func (c StoreConfig) Options() []StoreOption {
	return []StoreOption{WithShards(c.NumShards), WithGCWindow(c.GCWindow)}
}
