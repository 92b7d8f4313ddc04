// internal/models/result.go
package models

// Row is one result record keyed by column (raw) or canonical field
// (normalized) names.
type Row map[string]interface{}

// Card is a small aggregate statistic rendered alongside the table.
type Card struct {
	Icon     string `json:"icon"`
	Title    string `json:"title"`
	Value    string `json:"value"`
	Subtitle string `json:"subtitle,omitempty"`
}

// ResponseSource tells whether the answer came from a matched rule or
// from AI escalation.
type ResponseSource string

const (
	SourceRule ResponseSource = "rule"
	SourceAI   ResponseSource = "ai"
)

// QueryResult is the per-request outcome. It lives only for the duration
// of one request and is never persisted by the engine.
type QueryResult struct {
	MatchedRuleID string                 `json:"matchedRuleId,omitempty"`
	Category      RuleCategory           `json:"category,omitempty"`
	Parameters    map[string]interface{} `json:"parameters,omitempty"`
	RawColumns    []string               `json:"-"`
	RawRows       []Row                  `json:"-"`
	Rows          []Row                  `json:"rows"`
	Fields        []string               `json:"fields"`
	Cards         []Card                 `json:"cards"`
	Answer        string                 `json:"answer"`
	Summary       string                 `json:"summary"`
	Source        ResponseSource         `json:"source"`
	// Degraded is set when the answer came from AI after a data-source
	// failure; the prompt context carries the flag through.
	Degraded bool `json:"degraded,omitempty"`
}
