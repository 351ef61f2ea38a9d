package entity

import (
	"reflect"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestAssetPatch_ApplyDoesNotMutateOriginal(t *testing.T) {
	original := Asset{
		ID:         "a1",
		Properties: map[string]any{"name": "Old", "tags": []any{"x"}},
	}

	patched, err := AssetPatch{Properties: map[string]any{"name": "New", "tags": nil}}.Apply(original)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	got := patched.(Asset)
	if got.Name() != "New" {
		t.Errorf("expected patched name New, got %q", got.Name())
	}
	if _, ok := got.Properties["tags"]; ok {
		t.Error("nil patch value should remove the property")
	}
	if original.Name() != "Old" {
		t.Errorf("original asset was mutated: %q", original.Name())
	}
	if !reflect.DeepEqual(original.Properties["tags"], []any{"x"}) {
		t.Errorf("original tags were mutated: %v", original.Properties["tags"])
	}
}

func TestPolicyPatch_ReplacesOnlySetLists(t *testing.T) {
	original := PolicyDefinition{
		ID: "p1",
		Policy: Policy{
			Permissions:  []Rule{{Action: Action{Type: "use"}}},
			Prohibitions: []Rule{{Action: Action{Type: "distribute"}}},
		},
	}
	perms := []Rule{{Action: Action{Type: "read"}}, {Action: Action{Type: "use"}}}

	patched, err := PolicyPatch{Permissions: &perms}.Apply(original)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	got := patched.(PolicyDefinition)
	if len(got.Policy.Permissions) != 2 || got.Policy.Permissions[0].Action.Type != "read" {
		t.Errorf("unexpected permissions: %+v", got.Policy.Permissions)
	}
	if len(got.Policy.Prohibitions) != 1 {
		t.Errorf("prohibitions should be untouched, got %+v", got.Policy.Prohibitions)
	}
	if got.RuleCount() != 3 {
		t.Errorf("expected 3 rules, got %d", got.RuleCount())
	}
}

func TestContractPatch_Apply(t *testing.T) {
	original := ContractDefinition{ID: "c1", AccessPolicyID: "p1", ContractPolicyID: "p2"}
	access := "p9"

	patched, err := ContractPatch{AccessPolicyID: &access}.Apply(original)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	got := patched.(ContractDefinition)
	if got.AccessPolicyID != "p9" || got.ContractPolicyID != "p2" {
		t.Errorf("unexpected contract after patch: %+v", got)
	}
}

func TestPatch_KindMismatch(t *testing.T) {
	_, err := AssetPatch{}.Apply(PolicyDefinition{ID: "p1"})
	if err == nil {
		t.Fatal("expected kind mismatch error")
	}
	if !goerrors.IsValidation(err) {
		t.Errorf("expected validation category, got %v", err)
	}
}

func TestClone_IsDeep(t *testing.T) {
	original := ContractDefinition{
		ID:             "c1",
		AssetsSelector: []Criterion{{OperandLeft: "id", Operator: "in", OperandRight: []any{"a"}}},
	}
	clone := original.Clone().(ContractDefinition)
	clone.AssetsSelector[0].OperandRight.([]any)[0] = "b"

	if original.AssetsSelector[0].OperandRight.([]any)[0] != "a" {
		t.Error("clone shares selector operands with the original")
	}

	renamed := original.WithID("c2")
	if renamed.EntityID() != "c2" || original.ID != "c1" {
		t.Errorf("WithID should not touch the original: %s / %s", renamed.EntityID(), original.ID)
	}
}
