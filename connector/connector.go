// Package connector describes the remote connector management API the cache
// synchronizes with. The wire format belongs to the implementations; this
// package only fixes the operations and the normalized error shape.
package connector

import (
	"context"

	"github.com/goliatone/go-connector-cache/entity"
)

// ListParams windows a list call. Filter is passed through to backends that
// support server side filtering.
type ListParams struct {
	Limit  int
	Offset int
	Filter []entity.Criterion
}

// API is the per kind surface of the remote connector.
type API interface {
	List(ctx context.Context, params ListParams) ([]entity.Entity, error)
	Get(ctx context.Context, id string) (entity.Entity, error)
	Create(ctx context.Context, input entity.Entity) (entity.Entity, error)
	Update(ctx context.Context, id string, patch entity.Patch) (entity.Entity, error)
	Delete(ctx context.Context, id string) error
}

// Backend resolves the API for an entity kind.
type Backend interface {
	API(kind entity.Kind) (API, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(kind entity.Kind) (API, error)

func (f BackendFunc) API(kind entity.Kind) (API, error) { return f(kind) }

// Apis is a static kind to API table.
type Apis map[entity.Kind]API

func (a Apis) API(kind entity.Kind) (API, error) {
	api, ok := a[kind]
	if !ok || api == nil {
		return nil, UnsupportedKind(kind)
	}
	return api, nil
}
