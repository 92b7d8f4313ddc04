// internal/engine/rulestore/source.go
package rulestore

import (
	"context"
	"database/sql"
	"fmt"
)

// RawRule is one corpus record exactly as the admin surface stored it.
// Trigger words, parameters and result fields arrive serialized and are
// decoded/normalized by the store at load time.
type RawRule struct {
	ID              string
	Name            string
	Description     string
	Category        string
	Priority        int
	Status          string
	TriggerWords    string // heterogeneous serialized form
	ExampleQuery    string
	ActionType      string
	Template        string
	ParameterSchema string // JSON array of parameter specs
	ResultFields    string // JSON array of canonical field names
}

// Source supplies the raw rule corpus. Implementations must return records
// in a stable order; load order is the final matching tie-break.
type Source interface {
	LoadRules(ctx context.Context) ([]RawRule, error)
}

// PostgresSource loads the corpus from the intent_rules table.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) LoadRules(ctx context.Context) ([]RawRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), category, priority, status,
		       trigger_words, COALESCE(example_query, ''), action_type,
		       template, parameter_schema, result_fields
		FROM intent_rules
		WHERE status IN ('active', 'inactive')
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load intent rules: %w", err)
	}
	defer rows.Close()

	var out []RawRule
	for rows.Next() {
		var r RawRule
		if err := rows.Scan(
			&r.ID, &r.Name, &r.Description, &r.Category, &r.Priority, &r.Status,
			&r.TriggerWords, &r.ExampleQuery, &r.ActionType,
			&r.Template, &r.ParameterSchema, &r.ResultFields,
		); err != nil {
			return nil, fmt.Errorf("scan intent rule: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intent rules: %w", err)
	}
	return out, nil
}

// StaticSource serves a fixed corpus, used by tests and local setups.
type StaticSource struct {
	Rules []RawRule
}

func (s *StaticSource) LoadRules(ctx context.Context) ([]RawRule, error) {
	return s.Rules, nil
}
