package cacheinfra

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
	"go.uber.org/zap"
)

// Config holds the sturdyc settings of the response cache.
type Config struct {
	// Capacity is the maximum number of remote responses kept.
	Capacity int

	// NumShards is the number of sturdyc shards.
	NumShards int

	// TTL bounds how long a remote response may be reused.
	TTL time.Duration

	// EvictionPercentage is the share of entries evicted when the cache is
	// full. Must be between 1 and 100.
	EvictionPercentage int

	// EarlyRefresh enables background refreshes of hot keys. Nil disables it.
	EarlyRefresh *EarlyRefreshConfig

	// MissingRecordStorage remembers keys whose fetch returned
	// sturdyc.ErrNotFound.
	MissingRecordStorage bool

	// EvictionInterval is how often expired entries are swept. Zero keeps the
	// sturdyc default.
	EvictionInterval time.Duration
}

// EarlyRefreshConfig mirrors sturdyc.WithEarlyRefreshes.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns the response cache defaults. Responses are reused for
// a short time only and early refreshes are off, so the cache never issues a
// remote call nobody asked for.
func DefaultConfig() Config {
	return Config{
		Capacity:             2048,
		NumShards:            16,
		TTL:                  30 * time.Second,
		EvictionPercentage:   10,
		EarlyRefresh:         nil,
		MissingRecordStorage: false,
		EvictionInterval:     0,
	}
}

// ToSturdycOptions converts the optional settings. Capacity, NumShards, TTL
// and EvictionPercentage go straight to sturdyc.New.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}

	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

const (
	msgPositive    = "must be greater than 0"
	msgNonNegative = "must be non-negative"
)

// Positive is the rule set for settings that must be strictly positive.
func Positive[T int | time.Duration]() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error(msgPositive),
		validation.Min(T(1)).Error(msgPositive),
	}
}

// NonNegative is the rule set for settings that may be zero.
func NonNegative[T int | time.Duration]() []validation.Rule {
	return []validation.Rule{validation.Min(T(0)).Error(msgNonNegative)}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, Positive[int]()...),
		validation.Field(&c.NumShards, Positive[int]()...),
		validation.Field(&c.TTL, Positive[time.Duration]()...),
		validation.Field(&c.EvictionPercentage,
			validation.Required.Error("must be between 1 and 100"),
			validation.Min(1).Error("must be between 1 and 100"),
			validation.Max(100).Error("must be between 1 and 100"),
		),
		validation.Field(&c.EvictionInterval, NonNegative[time.Duration]()...),
	)
	if err != nil {
		return AsConfigError("", err)
	}

	if c.EarlyRefresh != nil {
		er := *c.EarlyRefresh
		err := validation.ValidateStruct(&er,
			validation.Field(&er.MinAsyncRefreshTime, NonNegative[time.Duration]()...),
			validation.Field(&er.MaxAsyncRefreshTime, NonNegative[time.Duration]()...),
			validation.Field(&er.SyncRefreshTime, NonNegative[time.Duration]()...),
			validation.Field(&er.RetryBaseDelay, NonNegative[time.Duration]()...),
		)
		if err != nil {
			return AsConfigError("EarlyRefresh.", err)
		}
	}

	return nil
}

// ConfigError reports the first invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// AsConfigError turns ozzo validation errors into a ConfigError naming the
// first failing field in alphabetical order. Other errors pass through.
func AsConfigError(prefix string, err error) error {
	var errs validation.Errors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}

	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	first := fields[0]
	return &ConfigError{Field: prefix + first, Message: errs[first].Error()}
}

// Option configures a ResponseCache.
type Option func(*ResponseCache)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *ResponseCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// ResponseCache keeps recent remote responses in a sturdyc client.
// Concurrent GetOrFetch calls for one key share a single fetch.
type ResponseCache struct {
	client *sturdyc.Client[any]
	logger *zap.Logger
}

// NewResponseCache validates cfg and builds the sturdyc client.
func NewResponseCache(cfg Config, opts ...Option) (*ResponseCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &ResponseCache{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}

	c.client = sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)
	return c, nil
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// validateFetchFn checks fetchFn has the shape func(context.Context) (T, error).
func validateFetchFn(fetchFn any) error {
	if fetchFn == nil {
		return &ConfigError{Field: "fetchFn", Message: "cannot be nil"}
	}

	fnType := reflect.TypeOf(fetchFn)
	if fnType.Kind() != reflect.Func {
		return &ConfigError{Field: "fetchFn", Message: "must be a function"}
	}
	if fnType.NumIn() != 1 || fnType.NumOut() != 2 {
		return &ConfigError{Field: "fetchFn", Message: "must have signature func(context.Context) (T, error)"}
	}
	if !fnType.In(0).Implements(contextType) {
		return &ConfigError{Field: "fetchFn", Message: "first parameter must be context.Context"}
	}
	if !fnType.Out(1).Implements(errorType) {
		return &ConfigError{Field: "fetchFn", Message: "second return value must be error"}
	}
	return nil
}

// GetOrFetch returns the response cached under key, or runs fetchFn and
// caches its result. Failed fetches are not cached.
func (c *ResponseCache) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	if err := validateFetchFn(fetchFn); err != nil {
		return nil, err
	}

	var fetched atomic.Bool
	value, err := c.client.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		fetched.Store(true)
		return callFetchFn(ctx, fetchFn)
	})

	if err != nil {
		c.logger.Debug("response fetch failed", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	if !fetched.Load() {
		c.logger.Debug("response cache hit", zap.String("key", key))
	}
	return value, nil
}

// callFetchFn invokes a pre-validated fetch function of any result type.
func callFetchFn(ctx context.Context, fetchFn any) (any, error) {
	if fn, ok := fetchFn.(func(context.Context) (any, error)); ok {
		return fn(ctx)
	}

	results := reflect.ValueOf(fetchFn).Call([]reflect.Value{reflect.ValueOf(ctx)})

	var result any
	if v := results[0]; v.IsValid() && v.CanInterface() {
		result = v.Interface()
	}

	var err error
	if v := results[1]; v.IsValid() && !v.IsNil() {
		err = v.Interface().(error)
	}
	return result, err
}

// Delete drops one response.
func (c *ResponseCache) Delete(_ context.Context, key string) error {
	c.client.Delete(key)
	return nil
}

// DeleteByPrefix drops every response whose key starts with prefix.
func (c *ResponseCache) DeleteByPrefix(_ context.Context, prefix string) error {
	deleted := 0
	for _, key := range c.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			c.client.Delete(key)
			deleted++
		}
	}
	if deleted > 0 {
		c.logger.Debug("responses dropped", zap.String("prefix", prefix), zap.Int("count", deleted))
	}
	return nil
}

// InvalidateKeys drops the listed responses.
func (c *ResponseCache) InvalidateKeys(_ context.Context, keys []string) error {
	for _, key := range keys {
		c.client.Delete(key)
	}
	return nil
}
