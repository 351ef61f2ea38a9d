package cache

import (
	"strings"

	"github.com/goliatone/go-connector-cache/connector"
	"github.com/goliatone/go-connector-cache/entity"
)

// Operation names the kind of view a scope describes.
type Operation string

const (
	OperationList   Operation = "list"
	OperationDetail Operation = "detail"
)

// Parameter names used by list and detail scopes.
const (
	ParamLimit  = "limit"
	ParamOffset = "offset"
	ParamFilter = "filter"
	ParamID     = "id"
)

// Params are the scope parameters. Two maps with the same pairs produce the
// same key whatever order they were filled in.
type Params map[string]any

// Int reads an integer parameter.
func (p Params) Int(name string) (int, bool) {
	switch v := p[name].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// String reads a string parameter.
func (p Params) String(name string) (string, bool) {
	v, ok := p[name].(string)
	return v, ok
}

// Scope identifies one logical view of cached data.
type Scope struct {
	Kind      entity.Kind
	Operation Operation
	Params    Params
}

// ListScope builds the scope of a list window.
func ListScope(kind entity.Kind, params connector.ListParams) Scope {
	p := Params{
		ParamLimit:  params.Limit,
		ParamOffset: params.Offset,
	}
	if len(params.Filter) > 0 {
		p[ParamFilter] = params.Filter
	}
	return Scope{Kind: kind, Operation: OperationList, Params: p}
}

// DetailScope builds the scope of a single entity view.
func DetailScope(kind entity.Kind, id string) Scope {
	return Scope{Kind: kind, Operation: OperationDetail, Params: Params{ParamID: id}}
}

// ListParams converts a list scope back into remote call parameters.
func (s Scope) ListParams() connector.ListParams {
	out := connector.ListParams{}
	out.Limit, _ = s.Params.Int(ParamLimit)
	out.Offset, _ = s.Params.Int(ParamOffset)
	if filter, ok := s.Params[ParamFilter].([]entity.Criterion); ok {
		out.Filter = filter
	}
	return out
}

// ID returns the entity id of a detail scope.
func (s Scope) ID() string {
	id, _ := s.Params.String(ParamID)
	return id
}

// Key is the canonical, comparable form of a Scope:
// <kind>::<operation>[::<serialized params>].
type Key string

// Kind returns the entity kind segment of the key.
func (k Key) Kind() entity.Kind {
	parts := strings.SplitN(string(k), KeySeparator, 3)
	return entity.Kind(parts[0])
}

// Operation returns the operation segment of the key.
func (k Key) Operation() Operation {
	parts := strings.SplitN(string(k), KeySeparator, 3)
	if len(parts) < 2 {
		return ""
	}
	return Operation(parts[1])
}

func (k Key) String() string { return string(k) }

// Registry derives keys from scopes.
type Registry struct {
	serializer KeySerializer
}

// NewRegistry creates a registry. A nil serializer selects the default one.
func NewRegistry(serializer KeySerializer) *Registry {
	if serializer == nil {
		serializer = NewDefaultKeySerializer()
	}
	return &Registry{serializer: serializer}
}

// KeyFor derives the key of (kind, operation, params).
func (r *Registry) KeyFor(kind entity.Kind, op Operation, params Params) Key {
	prefix := string(kind) + KeySeparator + string(op)
	if len(params) == 0 {
		return Key(prefix)
	}
	return Key(r.serializer.SerializeKey(prefix, map[string]any(params)))
}

// Key derives the key of a scope.
func (r *Registry) Key(scope Scope) Key {
	return r.KeyFor(scope.Kind, scope.Operation, scope.Params)
}

// KeyPredicate selects cache keys.
type KeyPredicate func(Key) bool

// MatchKind selects every scope of an entity kind.
func MatchKind(kind entity.Kind) KeyPredicate {
	prefix := string(kind) + KeySeparator
	return func(k Key) bool {
		return strings.HasPrefix(string(k), prefix)
	}
}

// MatchOperation selects every scope of a kind and operation.
func MatchOperation(kind entity.Kind, op Operation) KeyPredicate {
	prefix := string(kind) + KeySeparator + string(op)
	return func(k Key) bool {
		return string(k) == prefix || strings.HasPrefix(string(k), prefix+KeySeparator)
	}
}

// MatchKey selects exactly one key.
func MatchKey(key Key) KeyPredicate {
	return func(k Key) bool { return k == key }
}

// AnyOf selects keys matched by at least one predicate.
func AnyOf(preds ...KeyPredicate) KeyPredicate {
	return func(k Key) bool {
		for _, pred := range preds {
			if pred != nil && pred(k) {
				return true
			}
		}
		return false
	}
}
