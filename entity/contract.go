package entity

// Criterion selects assets by comparing an asset attribute with a value.
type Criterion struct {
	OperandLeft  string `json:"operandLeft"`
	Operator     string `json:"operator"`
	OperandRight any    `json:"operandRight"`
}

// ContractDefinition links an access policy and a contract policy to the
// assets matched by its selector.
type ContractDefinition struct {
	ID               string      `json:"id"`
	AccessPolicyID   string      `json:"accessPolicyId"`
	ContractPolicyID string      `json:"contractPolicyId"`
	AssetsSelector   []Criterion `json:"assetsSelector,omitempty"`
}

var _ Entity = ContractDefinition{}

func (c ContractDefinition) EntityID() string { return c.ID }

func (c ContractDefinition) EntityKind() Kind { return KindContractDefinition }

func (c ContractDefinition) Clone() Entity {
	out := c
	if c.AssetsSelector != nil {
		out.AssetsSelector = make([]Criterion, len(c.AssetsSelector))
		for i, crit := range c.AssetsSelector {
			crit.OperandRight = cloneValue(crit.OperandRight)
			out.AssetsSelector[i] = crit
		}
	}
	return out
}

func (c ContractDefinition) WithID(id string) Entity {
	out := c.Clone().(ContractDefinition)
	out.ID = id
	return out
}

// References reports whether the contract uses the given policy id as its
// access or contract policy.
func (c ContractDefinition) References(policyID string) bool {
	return policyID != "" && (c.AccessPolicyID == policyID || c.ContractPolicyID == policyID)
}

// Covers reports whether every selector criterion matches the asset. An empty
// selector covers every asset.
func (c ContractDefinition) Covers(a Asset) bool {
	for _, crit := range c.AssetsSelector {
		if !crit.Matches(a) {
			return false
		}
	}
	return true
}

// CoveredAssets filters assets down to the ones the contract covers, keeping
// their order.
func (c ContractDefinition) CoveredAssets(assets []Asset) []Asset {
	var out []Asset
	for _, a := range assets {
		if c.Covers(a) {
			out = append(out, a)
		}
	}
	return out
}
