// Package fetcher loads scopes from the connector into the cache store.
//
// Ensure returns a Subscription that keeps the scope referenced. A fresh
// entry is served from the store without a remote call; a key that is already
// loading is joined instead of fetched twice. Transient read failures are
// retried once after a fixed delay. When the last subscription of a scope is
// closed before its load finishes, the result is dropped.
//
//	sub := orch.Ensure(cache.ListScope(entity.KindAsset, connector.ListParams{Limit: 10}))
//	defer sub.Close()
//	entry, err := sub.Wait(ctx)
package fetcher
