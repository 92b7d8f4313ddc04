// internal/api/server.go

// Package api exposes the query engine over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scm-assistant/internal/common/logger"
	"scm-assistant/internal/engine/aigateway"
	"scm-assistant/internal/engine/pipeline"
	"scm-assistant/internal/models"
)

// QueryRequest is the inbound query contract.
type QueryRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
}

// DataPayload is the summary/table/cards triple.
type DataPayload struct {
	Answer  string        `json:"answer"`
	Table   []models.Row  `json:"table"`
	Cards   []models.Card `json:"cards"`
	Summary string        `json:"summary"`
}

// QueryResponse is the response envelope.
type QueryResponse struct {
	Success       bool              `json:"success"`
	Source        string            `json:"source"`
	MatchedRuleID string            `json:"matchedRuleId,omitempty"`
	SessionID     string            `json:"sessionId"`
	Data          DataPayload       `json:"data"`
	Stages        []aigateway.Stage `json:"stages,omitempty"`
}

// Server holds the HTTP handlers.
type Server struct {
	engine *pipeline.Engine
	logger logger.Logger
}

func NewServer(engine *pipeline.Engine, log logger.Logger) *Server {
	return &Server{
		engine: engine,
		logger: log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/query", s.handleQuery)
		v1.POST("/rules/reload", s.handleReload)
		v1.GET("/rules", s.handleListRules)
	}
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "query is required",
		})
		return
	}

	mode := pipeline.Mode(req.Mode)
	switch mode {
	case pipeline.ModeAuto, pipeline.ModeBasic, pipeline.ModeProfessional:
	case "":
		mode = pipeline.ModeAuto
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "mode must be one of auto, basic, professional",
		})
		return
	}

	outcome := s.engine.Process(c.Request.Context(), pipeline.Request{
		Query:     req.Query,
		SessionID: req.SessionID,
		Mode:      mode,
	})

	result := outcome.Result
	c.JSON(http.StatusOK, QueryResponse{
		Success:       true,
		Source:        string(result.Source),
		MatchedRuleID: result.MatchedRuleID,
		SessionID:     outcome.SessionID,
		Data: DataPayload{
			Answer:  result.Answer,
			Table:   orEmptyRows(result.Rows),
			Cards:   orEmptyCards(result.Cards),
			Summary: result.Summary,
		},
		Stages: outcome.Stages,
	})
}

func (s *Server) handleReload(c *gin.Context) {
	snap, err := s.engine.Reload(c.Request.Context())
	if err != nil {
		s.logger.Error("rule reload failed", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"version":  snap.Version,
		"active":   len(snap.Active),
		"inactive": len(snap.Inactive),
		"invalid":  len(snap.Invalid),
	})
}

// handleListRules exposes the loaded corpus, including quarantined rules,
// for the admin surface.
func (s *Server) handleListRules(c *gin.Context) {
	snap := s.engine.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "rule corpus not loaded",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"version":  snap.Version,
		"loadedAt": snap.LoadedAt,
		"active":   snap.Active,
		"inactive": snap.Inactive,
		"invalid":  snap.Invalid,
	})
}

func orEmptyRows(rows []models.Row) []models.Row {
	if rows == nil {
		return []models.Row{}
	}
	return rows
}

func orEmptyCards(cards []models.Card) []models.Card {
	if cards == nil {
		return []models.Card{}
	}
	return cards
}
