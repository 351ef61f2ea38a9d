// Package cache holds the cached state of every scope the console shows.
//
// # Scopes and keys
//
// A Scope names one logical view: the kind of entity, the operation (list or
// detail) and its parameters. Registry turns a scope into a Key using the
// KeySerializer, so two scopes with the same parameters share an entry no
// matter the order their maps were filled in:
//
//	reg := cache.NewRegistry(nil)
//	key := reg.Key(cache.ListScope(entity.KindAsset, connector.ListParams{Limit: 10}))
//	// asset::list::map[2]:{limit=10,offset=0}
//
// # Store
//
// Store owns one Entry per key. Writes go through an Updater and are atomic
// per key. Invalidate marks matching entries stale without dropping their
// data, so views keep rendering the last known state while a refetch runs.
// Snapshot and Restore give the mutation layer exact rollback.
//
//	unsubscribe := store.Subscribe(key, func(e cache.Entry) {
//		render(e.Status, e.Items)
//	})
//	defer unsubscribe()
//
// Subscribers receive entries in increasing Version order. A subscriber that
// is still busy when two writes land only sees the newer one.
//
// # Response cache
//
// CacheService sits between the fetch orchestrator and the remote connector.
// The default implementation uses sturdyc, which coalesces identical
// concurrent reads and reuses a response for a short TTL.
//
//	items, err := cache.GetOrFetch(ctx, svc, key.String(), func(ctx context.Context) ([]entity.Entity, error) {
//		return api.List(ctx, params)
//	})
//
// # Key serialization
//
// The default key serializer uses reflection:
//
//   - Basic types: direct string representation
//   - Slices and arrays: recursive serialization of elements
//   - Maps: key-value pairs sorted by serialized key
//   - Structs: exported fields as name:value pairs
//   - Anything else: JSON, falling back to type information
package cache
