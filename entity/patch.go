package entity

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// Patch is a partial update for one entity kind. Apply never modifies its
// argument; it returns a merged clone.
type Patch interface {
	PatchKind() Kind
	Apply(current Entity) (Entity, error)
}

// AssetPatch merges properties key by key. A nil value removes the key.
type AssetPatch struct {
	Properties        map[string]any
	PrivateProperties map[string]any
	DataAddress       *DataAddress
}

func (p AssetPatch) PatchKind() Kind { return KindAsset }

func (p AssetPatch) Apply(current Entity) (Entity, error) {
	asset, ok := current.(Asset)
	if !ok {
		return nil, kindMismatch(p.PatchKind(), current)
	}
	out := asset.Clone().(Asset)
	out.Properties = mergeProperties(out.Properties, p.Properties)
	out.PrivateProperties = mergeProperties(out.PrivateProperties, p.PrivateProperties)
	if p.DataAddress != nil {
		out.DataAddress = Asset{DataAddress: p.DataAddress}.Clone().(Asset).DataAddress
	}
	return out, nil
}

// PolicyPatch replaces whole rule lists; nil fields are left untouched.
type PolicyPatch struct {
	Permissions  *[]Rule
	Prohibitions *[]Rule
	Obligations  *[]Rule
}

func (p PolicyPatch) PatchKind() Kind { return KindPolicyDefinition }

func (p PolicyPatch) Apply(current Entity) (Entity, error) {
	policy, ok := current.(PolicyDefinition)
	if !ok {
		return nil, kindMismatch(p.PatchKind(), current)
	}
	out := policy.Clone().(PolicyDefinition)
	if p.Permissions != nil {
		out.Policy.Permissions = cloneRules(*p.Permissions)
	}
	if p.Prohibitions != nil {
		out.Policy.Prohibitions = cloneRules(*p.Prohibitions)
	}
	if p.Obligations != nil {
		out.Policy.Obligations = cloneRules(*p.Obligations)
	}
	return out, nil
}

// ContractPatch replaces the fields it sets.
type ContractPatch struct {
	AccessPolicyID   *string
	ContractPolicyID *string
	AssetsSelector   *[]Criterion
}

func (p ContractPatch) PatchKind() Kind { return KindContractDefinition }

func (p ContractPatch) Apply(current Entity) (Entity, error) {
	contract, ok := current.(ContractDefinition)
	if !ok {
		return nil, kindMismatch(p.PatchKind(), current)
	}
	out := contract.Clone().(ContractDefinition)
	if p.AccessPolicyID != nil {
		out.AccessPolicyID = *p.AccessPolicyID
	}
	if p.ContractPolicyID != nil {
		out.ContractPolicyID = *p.ContractPolicyID
	}
	if p.AssetsSelector != nil {
		out.AssetsSelector = ContractDefinition{AssetsSelector: *p.AssetsSelector}.Clone().(ContractDefinition).AssetsSelector
	}
	return out, nil
}

func mergeProperties(dst, patch map[string]any) map[string]any {
	if len(patch) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = cloneValue(v)
	}
	return dst
}

func kindMismatch(want Kind, got Entity) error {
	gotKind := "nil"
	if got != nil {
		gotKind = got.EntityKind().String()
	}
	return goerrors.New(
		fmt.Sprintf("patch for %s cannot be applied to %s", want, gotKind),
		goerrors.CategoryValidation,
	).WithTextCode("KIND_MISMATCH")
}
