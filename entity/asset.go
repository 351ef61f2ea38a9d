package entity

import "fmt"

// Well known asset property names.
const (
	PropertyName        = "name"
	PropertyDescription = "description"
	PropertyContentType = "contenttype"
	PropertyVersion     = "version"
)

// DataAddress describes where and how the asset payload is reached.
type DataAddress struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Asset is a data offering registered in the connector.
type Asset struct {
	ID                string         `json:"id"`
	Properties        map[string]any `json:"properties,omitempty"`
	PrivateProperties map[string]any `json:"privateProperties,omitempty"`
	DataAddress       *DataAddress   `json:"dataAddress,omitempty"`
}

var _ Entity = Asset{}

func (a Asset) EntityID() string { return a.ID }

func (a Asset) EntityKind() Kind { return KindAsset }

func (a Asset) Clone() Entity {
	out := Asset{
		ID:                a.ID,
		Properties:        cloneMap(a.Properties),
		PrivateProperties: cloneMap(a.PrivateProperties),
	}
	if a.DataAddress != nil {
		addr := DataAddress{Type: a.DataAddress.Type}
		if a.DataAddress.Properties != nil {
			addr.Properties = make(map[string]string, len(a.DataAddress.Properties))
			for k, v := range a.DataAddress.Properties {
				addr.Properties[k] = v
			}
		}
		out.DataAddress = &addr
	}
	return out
}

func (a Asset) WithID(id string) Entity {
	out := a.Clone().(Asset)
	out.ID = id
	return out
}

// Property returns a property by plain name, accepting namespaced keys too.
func (a Asset) Property(name string) (any, bool) {
	if v, ok := a.Properties[name]; ok {
		return v, true
	}
	if v, ok := a.Properties[EDCNamespace+name]; ok {
		return v, true
	}
	for k, v := range a.Properties {
		if localName(k) == name {
			return v, true
		}
	}
	return nil, false
}

func (a Asset) stringProperty(name string) string {
	v, ok := a.Property(name)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (a Asset) Name() string { return a.stringProperty(PropertyName) }

func (a Asset) Description() string { return a.stringProperty(PropertyDescription) }

func (a Asset) ContentType() string { return a.stringProperty(PropertyContentType) }

func (a Asset) Version() string { return a.stringProperty(PropertyVersion) }
