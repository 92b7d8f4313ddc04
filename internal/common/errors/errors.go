// internal/common/errors/errors.go

// Package errors provides the standardized error taxonomy for the query
// engine. Every failure class here is request-scoped; none is process-fatal.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// ErrCodeNoMatch: no rule scored above the minimum threshold.
	// Non-fatal, escalates to the AI gateway.
	ErrCodeNoMatch ErrorCode = "NO_MATCH"

	// ErrCodeParameterExtraction: a required entity was absent from the
	// query. Non-fatal, escalates to the AI gateway.
	ErrCodeParameterExtraction ErrorCode = "PARAMETER_EXTRACTION_FAILED"

	// ErrCodeParameterMismatch: template placeholder count disagrees with
	// the declared parameter schema. A corpus defect caught at load time;
	// the rule is quarantined and never reaches a request.
	ErrCodeParameterMismatch ErrorCode = "PARAMETER_MISMATCH"

	// ErrCodeDataSource: query execution failed against the store.
	// Caught per request, escalates to AI with a degraded flag.
	ErrCodeDataSource ErrorCode = "DATA_SOURCE_ERROR"

	ErrCodeAIGatewayTimeout ErrorCode = "AI_GATEWAY_TIMEOUT"
	ErrCodeAIGateway        ErrorCode = "AI_GATEWAY_ERROR"

	ErrCodeRuleCorpusInvalid ErrorCode = "RULE_CORPUS_INVALID"
	ErrCodeSessionStore      ErrorCode = "SESSION_STORE_ERROR"
)

// Sentinel errors for errors.Is checks across package boundaries.
var (
	ErrNoMatch             = errors.New("no rule matched above threshold")
	ErrParameterExtraction = errors.New("required parameter could not be extracted")
	ErrParameterMismatch   = errors.New("template placeholder count does not match parameter schema")
	ErrDataSource          = errors.New("data source query failed")
	ErrAIGatewayTimeout    = errors.New("ai gateway timed out")
	ErrAIGateway           = errors.New("ai gateway request failed")
)

// EngineError is a structured application error.
type EngineError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	wrapped   error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("EngineError[%s]: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.wrapped
}

// Escalates reports whether this error routes the request to the AI gateway.
func (e *EngineError) Escalates() bool {
	switch e.Code {
	case ErrCodeNoMatch, ErrCodeParameterExtraction, ErrCodeDataSource:
		return true
	}
	return false
}

func NewNoMatchError(details string) *EngineError {
	return &EngineError{
		Code:      ErrCodeNoMatch,
		Message:   "no intent rule matched the query",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
		wrapped:   ErrNoMatch,
	}
}

func NewParameterExtractionError(ruleID, param string) *EngineError {
	return &EngineError{
		Code:    ErrCodeParameterExtraction,
		Message: fmt.Sprintf("required parameter %q could not be resolved", param),
		Metadata: map[string]interface{}{
			"ruleId":    ruleID,
			"parameter": param,
		},
		Retryable: false,
		Timestamp: time.Now().UTC(),
		wrapped:   ErrParameterExtraction,
	}
}

func NewParameterMismatchError(ruleID string, placeholders, declared int) *EngineError {
	return &EngineError{
		Code:    ErrCodeParameterMismatch,
		Message: fmt.Sprintf("rule %s declares %d parameters but template has %d placeholders", ruleID, declared, placeholders),
		Metadata: map[string]interface{}{
			"ruleId":       ruleID,
			"placeholders": placeholders,
			"declared":     declared,
		},
		Retryable: false,
		Timestamp: time.Now().UTC(),
		wrapped:   ErrParameterMismatch,
	}
}

func NewDataSourceError(ruleID string, cause error) *EngineError {
	return &EngineError{
		Code:      ErrCodeDataSource,
		Message:   "query execution failed against the data store",
		Details:   cause.Error(),
		Metadata:  map[string]interface{}{"ruleId": ruleID},
		Retryable: true,
		Timestamp: time.Now().UTC(),
		wrapped:   fmt.Errorf("%w: %v", ErrDataSource, cause),
	}
}

func NewAIGatewayTimeoutError(details string) *EngineError {
	return &EngineError{
		Code:      ErrCodeAIGatewayTimeout,
		Message:   "ai gateway did not answer in time",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
		wrapped:   ErrAIGatewayTimeout,
	}
}

func NewAIGatewayError(details string) *EngineError {
	return &EngineError{
		Code:      ErrCodeAIGateway,
		Message:   "ai gateway request failed",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
		wrapped:   ErrAIGateway,
	}
}
