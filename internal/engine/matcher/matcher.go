// internal/engine/matcher/matcher.go

// Package matcher scores the active rule corpus against a query and selects
// a winner. Scoring is lexical: each trigger word found as a substring of
// the query contributes its rune length times a fixed weight. Ties break on
// declared priority, then on load order, so results are deterministic for a
// fixed snapshot.
package matcher

import (
	"strings"
	"unicode/utf8"

	enginerrors "scm-assistant/internal/common/errors"
	"scm-assistant/internal/engine/rulestore"
	"scm-assistant/internal/models"
)

// Matcher holds the scoring knobs.
type Matcher struct {
	minScore      int
	triggerWeight int
}

func New(minScore, triggerWeight int) *Matcher {
	if triggerWeight < 1 {
		triggerWeight = 1
	}
	return &Matcher{minScore: minScore, triggerWeight: triggerWeight}
}

// Match is a resolved winner: the rule plus its bound positional arguments.
type Match struct {
	Rule  *models.IntentRule
	Score int
	// Params maps parameter name to bound value, for the response envelope.
	Params map[string]interface{}
	// Args are the values in template placeholder order.
	Args []interface{}
}

// Select scores every active rule and resolves the winner's parameters
// against the extracted entities (session-remembered entities fill gaps).
// Returns NoMatchError when nothing clears the threshold and
// ParameterExtractionError when a required parameter position stays
// unresolved; both escalate to the AI gateway upstream.
func (m *Matcher) Select(snap *rulestore.Snapshot, query string, entities, remembered models.EntitySet) (*Match, error) {
	if snap == nil || len(snap.Active) == 0 {
		return nil, enginerrors.NewNoMatchError("rule corpus is empty")
	}

	var winner *models.IntentRule
	best := 0
	for _, rule := range snap.Active {
		score := m.Score(rule, query)
		switch {
		case score > best:
			best = score
			winner = rule
		case score == best && score > 0:
			if rule.Priority > winner.Priority {
				winner = rule
			}
			// Equal priority: keep the first-loaded rule; Active is in
			// load order so winner already precedes rule.
		}
	}

	if winner == nil || best < m.minScore {
		return nil, enginerrors.NewNoMatchError(query)
	}

	match := &Match{
		Rule:   winner,
		Score:  best,
		Params: make(map[string]interface{}, len(winner.Parameters)),
		Args:   make([]interface{}, 0, len(winner.Parameters)),
	}

	for _, spec := range winner.Parameters {
		value, ok := resolveParameter(spec, entities, remembered)
		if !ok {
			if spec.Required {
				return nil, enginerrors.NewParameterExtractionError(winner.ID, spec.Name)
			}
			value = ""
		}
		match.Params[spec.Name] = value
		match.Args = append(match.Args, value)
	}

	return match, nil
}

// Score computes the trigger-word score of one rule against the query.
func (m *Matcher) Score(rule *models.IntentRule, query string) int {
	lowered := strings.ToLower(query)
	score := 0
	for _, word := range rule.TriggerWords {
		if word == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(word)) {
			score += utf8.RuneCountInString(word) * m.triggerWeight
		}
	}
	return score
}

func resolveParameter(spec models.ParameterSpec, entities, remembered models.EntitySet) (string, bool) {
	switch spec.Type {
	case "literal":
		// Literal parameters carry their value in the extraction hint.
		return spec.Hint, spec.Hint != ""
	case "supplier", "material", "factory":
		class := models.EntityClass(spec.Type)
		if v, ok := entities.Get(class); ok {
			return v, true
		}
		// Follow-up queries fall back to the session's last-referenced
		// entities before demoting to AI.
		if v, ok := remembered.Get(class); ok {
			return v, true
		}
	}
	return "", false
}
