// internal/engine/aigateway/workflow.go
package aigateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"scm-assistant/internal/common/logger"
	"scm-assistant/internal/engine/assembler"
	"scm-assistant/internal/models"
)

// StageStatus is the lifecycle state of one workflow stage.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// Stage records one step of the enhanced workflow.
type Stage struct {
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	StartedAt  time.Time   `json:"startedAt,omitempty"`
	FinishedAt time.Time   `json:"finishedAt,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// RetrievedData is the output of the retrieval stage.
type RetrievedData struct {
	Category models.RuleCategory
	Fields   []string
	Rows     []models.Row
}

// Retriever fetches rows from the relevant data sources for a classified
// category. Implemented by the pipeline against Postgres and Elasticsearch.
type Retriever interface {
	Retrieve(ctx context.Context, category models.RuleCategory, query string) (*RetrievedData, error)
}

// Workflow is the multi-step escalation path:
// classify -> retrieve -> analyze -> format.
// A failed stage short-circuits to the best available lower-fidelity output
// instead of aborting the request.
type Workflow struct {
	client    *Client
	retriever Retriever
	logger    logger.Logger
}

func NewWorkflow(client *Client, retriever Retriever, log logger.Logger) *Workflow {
	return &Workflow{
		client:    client,
		retriever: retriever,
		logger:    log.WithFields(map[string]interface{}{"component": "ai-workflow"}),
	}
}

// Run executes the workflow for one query. The returned result is always
// well-formed with Source == SourceAI; the stage list tells how far the
// workflow got.
func (w *Workflow) Run(ctx context.Context, query string, sessCtx map[string]interface{}) (*models.QueryResult, []Stage) {
	stages := []Stage{
		{Name: "classify", Status: StagePending},
		{Name: "retrieve", Status: StagePending},
		{Name: "analyze", Status: StagePending},
		{Name: "format", Status: StagePending},
	}

	// Stage 1: classify.
	classification, err := runStage(&stages[0], func() (*Classification, error) {
		return w.client.Classify(ctx, query)
	})
	if err != nil {
		w.logger.Warn("classification failed, falling back to single shot", map[string]interface{}{
			"error": err.Error(),
		})
		skipRemaining(stages[1:])
		return w.singleShot(ctx, query, sessCtx), stages
	}
	category := models.RuleCategory(classification.Category)

	// Stage 2: retrieve.
	retrieved, err := runStage(&stages[1], func() (*RetrievedData, error) {
		return w.retriever.Retrieve(ctx, category, query)
	})
	if err != nil {
		w.logger.Warn("retrieval failed, answering without data context", map[string]interface{}{
			"category": string(category),
			"error":    err.Error(),
		})
		skipRemaining(stages[2:])
		return w.singleShot(ctx, query, sessCtx), stages
	}

	// Stage 3: analyze.
	analysis, err := runStage(&stages[2], func() (string, error) {
		return w.client.Generate(ctx, GenerateRequest{
			Prompt:  buildAnalysisPrompt(query, retrieved),
			Context: sessCtx,
		})
	})
	if err != nil {
		// Lower-fidelity output: the retrieved table with a mechanical
		// summary, no model commentary.
		w.logger.Warn("analysis failed, formatting retrieved rows directly", map[string]interface{}{
			"error": err.Error(),
		})
		analysis = ""
	}

	// Stage 4: format into the same summary/table/card triple the rule
	// path produces.
	result := formatStage(&stages[3], category, retrieved, analysis)
	return result, stages
}

// singleShot forwards the raw query (plus minimal session context) and
// returns the model text verbatim. Gateway failure here is the terminal
// fallback: the apology.
func (w *Workflow) singleShot(ctx context.Context, query string, sessCtx map[string]interface{}) *models.QueryResult {
	text, err := w.client.Generate(ctx, GenerateRequest{Prompt: query, Context: sessCtx})
	if err != nil {
		text = Apology
	}
	return &models.QueryResult{
		Source:  models.SourceAI,
		Answer:  text,
		Summary: text,
		Fields:  []string{},
		Rows:    []models.Row{},
		Cards:   []models.Card{},
	}
}

// SingleShot is the basic escalation mode used outside the workflow.
func (w *Workflow) SingleShot(ctx context.Context, query string, sessCtx map[string]interface{}) *models.QueryResult {
	return w.singleShot(ctx, query, sessCtx)
}

func runStage[T any](stage *Stage, fn func() (T, error)) (T, error) {
	stage.Status = StageRunning
	stage.StartedAt = time.Now().UTC()

	out, err := fn()

	stage.FinishedAt = time.Now().UTC()
	if err != nil {
		stage.Status = StageFailed
		stage.Error = err.Error()
	} else {
		stage.Status = StageCompleted
	}
	return out, err
}

func skipRemaining(stages []Stage) {
	for i := range stages {
		if stages[i].Status == StagePending {
			stages[i].Status = StageFailed
			stages[i].Error = "skipped: earlier stage failed"
		}
	}
}

func formatStage(stage *Stage, category models.RuleCategory, retrieved *RetrievedData, analysis string) *models.QueryResult {
	stage.Status = StageRunning
	stage.StartedAt = time.Now().UTC()

	result := &models.QueryResult{
		Source:   models.SourceAI,
		Category: category,
		Fields:   retrieved.Fields,
		Rows:     retrieved.Rows,
		Answer:   analysis,
	}
	assembler.Assemble(result)
	if analysis != "" {
		result.Answer = analysis
	}

	stage.Status = StageCompleted
	stage.FinishedAt = time.Now().UTC()
	return result
}

func buildAnalysisPrompt(query string, retrieved *RetrievedData) string {
	rowsJSON, _ := json.MarshalIndent(limitRows(retrieved.Rows, 50), "", "  ")
	return fmt.Sprintf(
		"你是一名供应链数据分析助手。请仅依据提供的数据回答用户问题。\n\n用户问题：%s\n\n场景：%s\n\n数据（JSON）：\n%s",
		query, retrieved.Category, rowsJSON)
}

func limitRows(rows []models.Row, max int) []models.Row {
	if len(rows) <= max {
		return rows
	}
	return rows[:max]
}
