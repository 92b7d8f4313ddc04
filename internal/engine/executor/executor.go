// internal/engine/executor/executor.go

// Package executor runs a matched rule's query template against the
// relational store. Parameter values travel only through the driver's bind
// mechanism; user input is never concatenated into SQL text.
package executor

import (
	"context"
	"database/sql"
	"time"

	enginerrors "scm-assistant/internal/common/errors"
	"scm-assistant/internal/common/logger"
	"scm-assistant/internal/engine/rulestore"
	"scm-assistant/internal/models"
)

// Executor executes rule templates on a pooled connection set. The pool
// scopes acquisition per query; rows are always closed on every exit path.
type Executor struct {
	db      *sql.DB
	timeout time.Duration
	logger  logger.Logger
}

func New(db *sql.DB, timeout time.Duration, log logger.Logger) *Executor {
	return &Executor{
		db:      db,
		timeout: timeout,
		logger:  log.WithFields(map[string]interface{}{"component": "executor"}),
	}
}

// Result carries the raw, un-normalized output of one template execution.
type Result struct {
	Columns  []string
	Rows     []models.Row
	Elapsed  time.Duration
	RowCount int
}

// Execute binds args positionally into the rule template and runs it.
// An arity mismatch here means a rule escaped load-time validation; it is
// reported as ParameterMismatch rather than reaching the store. All store
// failures (missing column, type mismatch, connectivity) come back as
// DataSourceError for the caller to route to AI fallback.
func (e *Executor) Execute(ctx context.Context, rule *models.IntentRule, args []interface{}) (*Result, error) {
	placeholders, err := rulestore.CountPlaceholders(rule.Template)
	if err != nil {
		return nil, enginerrors.NewParameterMismatchError(rule.ID, 0, len(args))
	}
	if placeholders != len(args) {
		return nil, enginerrors.NewParameterMismatchError(rule.ID, placeholders, len(args))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, rule.Template, args...)
	if err != nil {
		e.logger.Warn("template execution failed", map[string]interface{}{
			"ruleId": rule.ID,
			"error":  err.Error(),
		})
		return nil, enginerrors.NewDataSourceError(rule.ID, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, enginerrors.NewDataSourceError(rule.ID, err)
	}

	var out []models.Row
	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, enginerrors.NewDataSourceError(rule.ID, err)
		}
		row := make(models.Row, len(columns))
		for i, col := range columns {
			row[col] = cellValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, enginerrors.NewDataSourceError(rule.ID, err)
	}

	return &Result{
		Columns:  columns,
		Rows:     out,
		Elapsed:  time.Since(start),
		RowCount: len(out),
	}, nil
}

// cellValue converts driver byte slices to strings so rows serialize
// cleanly; other driver types pass through.
func cellValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
