// internal/engine/rulestore/schema.go
package rulestore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ruleSchema validates the shape of a raw corpus record before any
// semantic checks run. Records come from an external admin surface, so
// the engine treats them as untrusted input.
const ruleSchema = `{
	"type": "object",
	"required": ["id", "name", "category", "status", "actionType", "template", "parameters", "resultFields"],
	"properties": {
		"id":          {"type": "string", "minLength": 1},
		"name":        {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"category":    {"type": "string", "enum": ["inventory", "testing", "tracking", "general"]},
		"priority":    {"type": "integer"},
		"status":      {"type": "string", "enum": ["active", "inactive"]},
		"actionType":  {"type": "string", "enum": ["QUERY", "FUNCTION_CALL", "API_CALL"]},
		"template":    {"type": "string", "minLength": 1},
		"exampleQuery": {"type": "string"},
		"parameters": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "type"],
				"properties": {
					"name":     {"type": "string", "minLength": 1},
					"type":     {"type": "string", "enum": ["supplier", "material", "factory", "literal"]},
					"hint":     {"type": "string"},
					"required": {"type": "boolean"}
				}
			}
		},
		"resultFields": {
			"type": "array",
			"minItems": 1,
			"items": {"type": "string", "minLength": 1}
		}
	}
}`

var compiledRuleSchema = gojsonschema.NewStringLoader(ruleSchema)

// validateShape runs the JSON-schema check against a decoded record.
func validateShape(doc map[string]interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	result, err := gojsonschema.Validate(compiledRuleSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema violations: %s", strings.Join(msgs, "; "))
}
