// internal/engine/pipeline/engine.go

// Package pipeline orchestrates one query through the engine:
// extract -> match -> execute -> normalize -> assemble, with AI escalation
// when matching or execution fails. The whole sequence is synchronous per
// request; concurrency comes only from serving many requests at once.
package pipeline

import (
	"context"
	"errors"
	"time"

	enginerrors "scm-assistant/internal/common/errors"
	"scm-assistant/internal/common/logger"
	"scm-assistant/internal/common/observability"
	"scm-assistant/internal/engine/aigateway"
	"scm-assistant/internal/engine/assembler"
	"scm-assistant/internal/engine/executor"
	"scm-assistant/internal/engine/extractor"
	"scm-assistant/internal/engine/matcher"
	"scm-assistant/internal/engine/rulestore"
	"scm-assistant/internal/engine/session"
	"scm-assistant/internal/models"
)

// Mode selects how aggressively a request may use the AI gateway.
type Mode string

const (
	ModeAuto  Mode = "auto"
	ModeBasic Mode = "basic"
	// ModeProfessional runs the multi-step workflow directly.
	ModeProfessional Mode = "professional"
)

// Request is one inbound question.
type Request struct {
	Query     string
	SessionID string
	Mode      Mode
}

// Outcome pairs the result with the session it belongs to and, for
// professional requests, the workflow stage trace.
type Outcome struct {
	Result    *models.QueryResult
	SessionID string
	Stages    []aigateway.Stage
}

// Engine wires the pipeline components together.
type Engine struct {
	rules    *rulestore.Store
	matcher  *matcher.Matcher
	executor *executor.Executor
	sessions *session.Store
	workflow *aigateway.Workflow
	obs      *observability.Observability
	logger   logger.Logger
}

func NewEngine(
	rules *rulestore.Store,
	m *matcher.Matcher,
	exec *executor.Executor,
	sessions *session.Store,
	workflow *aigateway.Workflow,
	obs *observability.Observability,
	log logger.Logger,
) *Engine {
	return &Engine{
		rules:    rules,
		matcher:  m,
		executor: exec,
		sessions: sessions,
		workflow: workflow,
		obs:      obs,
		logger:   log.WithFields(map[string]interface{}{"component": "pipeline"}),
	}
}

// Process runs one request end to end. It never returns an error to the
// caller: every failure class degrades to an AI answer or the apology, so
// the response envelope is always well-formed.
func (e *Engine) Process(ctx context.Context, req Request) *Outcome {
	start := time.Now()
	sess := e.sessions.GetOrCreate(ctx, req.SessionID)
	outcome := &Outcome{SessionID: sess.ID}

	if req.Mode == ModeProfessional {
		result, stages := e.workflow.Run(ctx, req.Query, e.sessionContext(sess, false))
		outcome.Result = result
		outcome.Stages = stages
		e.finish(ctx, req, sess, outcome, nil, start)
		return outcome
	}

	snap := e.rules.Snapshot()
	var entities models.EntitySet
	if snap != nil {
		entities = extractor.Extract(req.Query, snap.Aliases)
	}

	match, err := e.matcher.Select(snap, req.Query, entities, sess.LastSeen)
	if err != nil {
		outcome.Result = e.escalate(ctx, req, sess, err)
		e.finish(ctx, req, sess, outcome, entities, start)
		return outcome
	}

	e.obs.RecordMatch(ctx, match.Rule.ID)

	execResult, err := e.executor.Execute(ctx, match.Rule, match.Args)
	if err != nil {
		outcome.Result = e.escalate(ctx, req, sess, err)
		e.finish(ctx, req, sess, outcome, entities, start)
		return outcome
	}

	plan := snap.Plans[match.Rule.ID]
	result := &models.QueryResult{
		MatchedRuleID: match.Rule.ID,
		Category:      match.Rule.Category,
		Parameters:    match.Params,
		RawColumns:    execResult.Columns,
		RawRows:       execResult.Rows,
		Fields:        plan.Fields(),
		Rows:          plan.Normalize(execResult.Columns, execResult.Rows),
		Source:        models.SourceRule,
	}
	assembler.Assemble(result)

	outcome.Result = result
	e.finish(ctx, req, sess, outcome, entities, start)
	return outcome
}

// Reload swaps in a fresh rule/alias snapshot.
func (e *Engine) Reload(ctx context.Context) (*rulestore.Snapshot, error) {
	return e.rules.Reload(ctx)
}

// Snapshot exposes the current corpus generation for the admin surface.
func (e *Engine) Snapshot() *rulestore.Snapshot {
	return e.rules.Snapshot()
}

// escalate routes a failed rule resolution to the AI gateway. Data-source
// failures carry a degraded flag into the prompt context.
func (e *Engine) escalate(ctx context.Context, req Request, sess *models.QuerySession, cause error) *models.QueryResult {
	degraded := errors.Is(cause, enginerrors.ErrDataSource)
	reason := "no_match"
	switch {
	case errors.Is(cause, enginerrors.ErrParameterExtraction):
		reason = "missing_parameter"
	case degraded:
		reason = "data_source_error"
	case errors.Is(cause, enginerrors.ErrParameterMismatch):
		// Should have been quarantined at load; log loudly, then treat
		// like any other execution failure.
		e.logger.Error("arity mismatch escaped load validation", map[string]interface{}{
			"error": cause.Error(),
		})
		reason = "data_source_error"
		degraded = true
	}

	e.obs.RecordEscalation(ctx, reason)
	e.logger.Info("escalating to ai gateway", map[string]interface{}{
		"reason":    reason,
		"sessionId": sess.ID,
	})

	result := e.workflow.SingleShot(ctx, req.Query, e.sessionContext(sess, degraded))
	result.Degraded = degraded
	return result
}

// sessionContext is the minimal context forwarded to the model.
func (e *Engine) sessionContext(sess *models.QuerySession, degraded bool) map[string]interface{} {
	ctx := map[string]interface{}{}
	if n := len(sess.History); n > 0 {
		recent := make([]string, 0, 3)
		for _, h := range sess.History[max(0, n-3):] {
			recent = append(recent, h.Query)
		}
		ctx["recentQueries"] = recent
	}
	if len(sess.LastSeen) > 0 {
		ctx["lastEntities"] = sess.LastSeen
	}
	if degraded {
		ctx["degraded"] = true
	}
	if len(ctx) == 0 {
		return nil
	}
	return ctx
}

func (e *Engine) finish(ctx context.Context, req Request, sess *models.QuerySession, outcome *Outcome, entities models.EntitySet, start time.Time) {
	result := outcome.Result
	sess.Remember(models.HistoryEntry{
		Query:     req.Query,
		Source:    string(result.Source),
		RuleID:    result.MatchedRuleID,
		RowCount:  len(result.Rows),
		Timestamp: time.Now().UTC(),
	}, entities)
	// Best effort: losing follow-up context never fails the response.
	_ = e.sessions.Save(ctx, sess)

	e.obs.RecordQuery(ctx, string(result.Source), "ok")
	e.obs.RecordDuration(ctx, float64(time.Since(start).Milliseconds()))
}
