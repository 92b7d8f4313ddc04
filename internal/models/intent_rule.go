// internal/models/intent_rule.go
package models

// RuleStatus is the lifecycle status of an intent rule.
type RuleStatus string

const (
	RuleStatusActive   RuleStatus = "active"
	RuleStatusInactive RuleStatus = "inactive"
	// RuleStatusInvalid marks a rule that failed load-time validation.
	// Invalid rules are excluded from matching but kept visible to the
	// admin surface so the corpus can be fixed.
	RuleStatusInvalid RuleStatus = "invalid"
)

// ActionType describes what executing a rule means.
type ActionType string

const (
	ActionTypeQuery        ActionType = "QUERY"
	ActionTypeFunctionCall ActionType = "FUNCTION_CALL"
	ActionTypeAPICall      ActionType = "API_CALL"
)

// RuleCategory selects the response scenario (summary wording, card recipe).
type RuleCategory string

const (
	CategoryInventory RuleCategory = "inventory"
	CategoryTesting   RuleCategory = "testing"
	CategoryTracking  RuleCategory = "tracking"
	CategoryGeneral   RuleCategory = "general"
)

// ParameterSpec describes one positional parameter of a rule template.
type ParameterSpec struct {
	Name string `json:"name"`
	// Type is the semantic entity class used for extraction:
	// "supplier", "material", "factory", or "literal".
	Type string `json:"type"`
	// Hint is an optional extraction hint carried through from the corpus.
	Hint string `json:"hint,omitempty"`
	// Required parameters that cannot be resolved demote the match to
	// AI fallback instead of executing with a gap.
	Required bool `json:"required"`
}

// IntentRule is one entry of the rule corpus: trigger words paired with a
// parameterized query template and the canonical output field list.
// Rules are loaded read-only; the store swaps whole snapshots on reload.
type IntentRule struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Category     RuleCategory    `json:"category"`
	Priority     int             `json:"priority"`
	Status       RuleStatus      `json:"status"`
	TriggerWords []string        `json:"triggerWords"`
	ExampleQuery string          `json:"exampleQuery,omitempty"`
	ActionType   ActionType      `json:"actionType"`
	Template     string          `json:"template"`
	Parameters   []ParameterSpec `json:"parameters"`
	ResultFields []string        `json:"resultFields"`

	// LoadOrder is the position within the loaded snapshot, used as the
	// final deterministic tie-break during matching.
	LoadOrder int `json:"-"`
	// InvalidReason is set when Status == RuleStatusInvalid.
	InvalidReason string `json:"invalidReason,omitempty"`
}

// IsActive reports whether the rule participates in matching.
func (r *IntentRule) IsActive() bool {
	return r.Status == RuleStatusActive
}
