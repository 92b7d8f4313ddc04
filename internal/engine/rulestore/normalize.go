// internal/engine/rulestore/normalize.go
package rulestore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizeTriggerWords folds the serialized trigger-word forms observed in
// the corpus into one canonical ordered set. Accepted forms:
//
//	JSON array:            ["供应商","库存"]
//	JSON-encoded array:    "[\"供应商\",\"库存\"]"
//	delimited string:      "供应商,库存" (also Chinese comma and semicolons)
//
// Duplicates are dropped keeping first occurrence. A form that cannot be
// decoded returns an error so the rule is quarantined at load instead of
// being re-parsed heuristically at match time.
func NormalizeTriggerWords(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("empty trigger words")
	}

	var parts []string
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &parts); err != nil {
			return nil, fmt.Errorf("malformed trigger word array: %w", err)
		}
	} else if strings.HasPrefix(trimmed, `"`) {
		// Doubly encoded: a JSON string holding a JSON array.
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
			return nil, fmt.Errorf("malformed trigger word string: %w", err)
		}
		return NormalizeTriggerWords(inner)
	} else {
		parts = splitDelimited(trimmed)
	}

	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		w := strings.TrimSpace(p)
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no usable trigger words in %q", raw)
	}
	return out, nil
}

func splitDelimited(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ',', '，', ';', '；', '、':
			return true
		}
		return false
	})
}
