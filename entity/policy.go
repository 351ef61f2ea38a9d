package entity

// Constraint restricts when a rule applies.
type Constraint struct {
	LeftOperand  string `json:"leftOperand"`
	Operator     string `json:"operator"`
	RightOperand any    `json:"rightOperand"`
}

// Action is either a plain action name (Type only) or a structured descriptor.
type Action struct {
	Type       string      `json:"type"`
	IncludedIn string      `json:"includedIn,omitempty"`
	Constraint *Constraint `json:"constraint,omitempty"`
}

// Rule is a permission, prohibition or obligation.
type Rule struct {
	Action      Action       `json:"action"`
	Constraints []Constraint `json:"constraints,omitempty"`
}

// Policy holds the ordered rule lists of a policy definition.
type Policy struct {
	Permissions  []Rule `json:"permissions,omitempty"`
	Prohibitions []Rule `json:"prohibitions,omitempty"`
	Obligations  []Rule `json:"obligations,omitempty"`
}

// PolicyDefinition is a named usage policy.
type PolicyDefinition struct {
	ID     string `json:"id"`
	Policy Policy `json:"policy"`
}

var _ Entity = PolicyDefinition{}

func (p PolicyDefinition) EntityID() string { return p.ID }

func (p PolicyDefinition) EntityKind() Kind { return KindPolicyDefinition }

func (p PolicyDefinition) Clone() Entity {
	return PolicyDefinition{
		ID: p.ID,
		Policy: Policy{
			Permissions:  cloneRules(p.Policy.Permissions),
			Prohibitions: cloneRules(p.Policy.Prohibitions),
			Obligations:  cloneRules(p.Policy.Obligations),
		},
	}
}

func (p PolicyDefinition) WithID(id string) Entity {
	out := p.Clone().(PolicyDefinition)
	out.ID = id
	return out
}

// RuleCount returns the number of rules across all three lists.
func (p PolicyDefinition) RuleCount() int {
	return len(p.Policy.Permissions) + len(p.Policy.Prohibitions) + len(p.Policy.Obligations)
}

func cloneRules(in []Rule) []Rule {
	if in == nil {
		return nil
	}
	out := make([]Rule, len(in))
	for i, r := range in {
		out[i] = Rule{Action: r.Action}
		if r.Action.Constraint != nil {
			c := cloneConstraint(*r.Action.Constraint)
			out[i].Action.Constraint = &c
		}
		if r.Constraints != nil {
			out[i].Constraints = make([]Constraint, len(r.Constraints))
			for j, c := range r.Constraints {
				out[i].Constraints[j] = cloneConstraint(c)
			}
		}
	}
	return out
}

func cloneConstraint(c Constraint) Constraint {
	c.RightOperand = cloneValue(c.RightOperand)
	return c
}
