// Package entity defines the connector entities managed by the console:
// assets, policy definitions and contract definitions.
//
// Entities are treated as immutable values once they are handed to the cache.
// Anything that needs to change an entity works on a Clone and writes the
// clone back through the cache store.
package entity

import "strings"

// Kind tags an entity variant.
type Kind string

const (
	KindAsset              Kind = "asset"
	KindPolicyDefinition   Kind = "policy_definition"
	KindContractDefinition Kind = "contract_definition"
)

// Kinds lists every entity kind the console manages.
func Kinds() []Kind {
	return []Kind{KindAsset, KindPolicyDefinition, KindContractDefinition}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAsset, KindPolicyDefinition, KindContractDefinition:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Entity is implemented by every connector entity variant.
type Entity interface {
	EntityID() string
	EntityKind() Kind
	// Clone returns a deep copy safe to modify.
	Clone() Entity
	// WithID returns a copy carrying the given identifier.
	WithID(id string) Entity
}

// EDCNamespace is the vocabulary prefix connectors use for well known
// property names.
const EDCNamespace = "https://w3id.org/edc/v0.0.1/ns/"

// IndexOf returns the position of the entity with the given id, or -1.
func IndexOf(items []Entity, id string) int {
	for i, item := range items {
		if item != nil && item.EntityID() == id {
			return i
		}
	}
	return -1
}

// localName strips a vocabulary namespace from a property name.
func localName(name string) string {
	if i := strings.LastIndexAny(name, "/#"); i >= 0 && i < len(name)-1 {
		return name[i+1:]
	}
	return name
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
