// Package config loads console settings from an optional file and CONSOLE_
// prefixed environment variables.
package config

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/viper"

	"github.com/goliatone/go-connector-cache/cache"
	"github.com/goliatone/go-connector-cache/fetcher"
	"github.com/goliatone/go-connector-cache/internal/cacheinfra"
	"github.com/goliatone/go-connector-cache/listview"
	"github.com/goliatone/go-connector-cache/pagination"
	"github.com/goliatone/go-connector-cache/search"
)

// EnvPrefix prefixes every environment override, e.g. CONSOLE_LOG_LEVEL.
const EnvPrefix = "CONSOLE"

// Config is the full console configuration.
type Config struct {
	Cache      CacheConfig      `mapstructure:"cache"`
	Store      StoreConfig      `mapstructure:"store"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Search     SearchConfig     `mapstructure:"search"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Log        LogConfig        `mapstructure:"log"`
}

// CacheConfig holds the response cache settings.
type CacheConfig struct {
	// Enabled routes remote reads through the response cache.
	Enabled              bool          `mapstructure:"enabled"`
	Capacity             int           `mapstructure:"capacity"`
	NumShards            int           `mapstructure:"num_shards"`
	TTL                  time.Duration `mapstructure:"ttl"`
	EvictionPercentage   int           `mapstructure:"eviction_percentage"`
	MissingRecordStorage bool          `mapstructure:"missing_record_storage"`
	EvictionInterval     time.Duration `mapstructure:"eviction_interval"`
}

// StoreConfig holds the entry store settings.
type StoreConfig struct {
	NumShards int           `mapstructure:"num_shards"`
	GCWindow  time.Duration `mapstructure:"gc_window"`
}

// FetchConfig holds the read retry settings.
type FetchConfig struct {
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// SearchConfig holds the search debounce interval.
type SearchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// PaginationConfig holds list view sizes.
type PaginationConfig struct {
	PageSize int `mapstructure:"page_size"`
	MaxItems int `mapstructure:"max_items"`
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the built in settings.
func DefaultConfig() Config {
	responses := cache.DefaultConfig()
	store := cache.DefaultStoreConfig()
	return Config{
		Cache: CacheConfig{
			Enabled:              true,
			Capacity:             responses.Capacity,
			NumShards:            responses.NumShards,
			TTL:                  responses.TTL,
			EvictionPercentage:   responses.EvictionPercentage,
			MissingRecordStorage: responses.MissingRecordStorage,
			EvictionInterval:     responses.EvictionInterval,
		},
		Store: StoreConfig{
			NumShards: store.NumShards,
			GCWindow:  store.GCWindow,
		},
		Fetch: FetchConfig{
			RetryDelay: fetcher.DefaultRetryDelay,
			MaxRetries: fetcher.DefaultMaxRetries,
		},
		Search: SearchConfig{
			Debounce: search.DefaultInterval,
		},
		Pagination: PaginationConfig{
			PageSize: pagination.DefaultPageSize,
			MaxItems: listview.DefaultMaxItems,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Responses converts the section into the response cache config.
func (c CacheConfig) Responses() cache.Config {
	return cache.Config{
		Capacity:             c.Capacity,
		NumShards:            c.NumShards,
		TTL:                  c.TTL,
		EvictionPercentage:   c.EvictionPercentage,
		MissingRecordStorage: c.MissingRecordStorage,
		EvictionInterval:     c.EvictionInterval,
	}
}

// Entries converts the section into the store config.
func (c StoreConfig) Entries() cache.StoreConfig {
	return cache.StoreConfig{NumShards: c.NumShards, GCWindow: c.GCWindow}
}

// Options converts the section into orchestrator options.
func (c FetchConfig) Options() []fetcher.Option {
	return []fetcher.Option{
		fetcher.WithRetryDelay(c.RetryDelay),
		fetcher.WithMaxRetries(c.MaxRetries),
	}
}

// ViewOptions returns the list view options implied by the search and
// pagination sections.
func (c Config) ViewOptions() []listview.Option {
	return []listview.Option{
		listview.WithPageSize(c.Pagination.PageSize),
		listview.WithMaxItems(c.Pagination.MaxItems),
		listview.WithDebounce(c.Search.Debounce),
	}
}

var logLevels = []any{"debug", "info", "warn", "error"}

// Validate checks every section and reports the first invalid field.
func (c Config) Validate() error {
	if c.Cache.Enabled {
		if err := c.Cache.Responses().Validate(); err != nil {
			return prefixed("Cache.", err)
		}
	}

	if err := c.Store.Entries().Validate(); err != nil {
		return err
	}

	fetch := c.Fetch
	err := validation.ValidateStruct(&fetch,
		validation.Field(&fetch.RetryDelay, cacheinfra.NonNegative[time.Duration]()...),
		validation.Field(&fetch.MaxRetries,
			validation.Min(0).Error("must be 0 or 1"),
			validation.Max(fetcher.DefaultMaxRetries).Error("must be 0 or 1"),
		),
	)
	if err != nil {
		return cacheinfra.AsConfigError("Fetch.", err)
	}

	s := c.Search
	if err := validation.ValidateStruct(&s,
		validation.Field(&s.Debounce, cacheinfra.NonNegative[time.Duration]()...),
	); err != nil {
		return cacheinfra.AsConfigError("Search.", err)
	}

	p := c.Pagination
	err = validation.ValidateStruct(&p,
		validation.Field(&p.MaxItems, cacheinfra.Positive[int]()...),
		validation.Field(&p.PageSize,
			append(cacheinfra.Positive[int](), validation.Max(p.MaxItems).Error("must not exceed MaxItems"))...,
		),
	)
	if err != nil {
		return cacheinfra.AsConfigError("Pagination.", err)
	}

	l := c.Log
	if err := validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.Required, validation.In(logLevels...).Error("must be one of debug, info, warn, error")),
	); err != nil {
		return cacheinfra.AsConfigError("Log.", err)
	}

	return nil
}

func prefixed(prefix string, err error) error {
	var cfgErr *cacheinfra.ConfigError
	if errors.As(err, &cfgErr) {
		return &cacheinfra.ConfigError{Field: prefix + cfgErr.Field, Message: cfgErr.Message}
	}
	return err
}

// Load reads the configuration. An empty path uses defaults and environment
// variables only; a missing file at path is an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "reading config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.capacity", d.Cache.Capacity)
	v.SetDefault("cache.num_shards", d.Cache.NumShards)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.eviction_percentage", d.Cache.EvictionPercentage)
	v.SetDefault("cache.missing_record_storage", d.Cache.MissingRecordStorage)
	v.SetDefault("cache.eviction_interval", d.Cache.EvictionInterval)

	v.SetDefault("store.num_shards", d.Store.NumShards)
	v.SetDefault("store.gc_window", d.Store.GCWindow)

	v.SetDefault("fetch.retry_delay", d.Fetch.RetryDelay)
	v.SetDefault("fetch.max_retries", d.Fetch.MaxRetries)

	v.SetDefault("search.debounce", d.Search.Debounce)

	v.SetDefault("pagination.page_size", d.Pagination.PageSize)
	v.SetDefault("pagination.max_items", d.Pagination.MaxItems)

	v.SetDefault("log.level", d.Log.Level)
}
