package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scm-assistant/internal/common/config"
	"scm-assistant/internal/common/logger"
	"scm-assistant/internal/common/observability"
	"scm-assistant/internal/engine/aigateway"
	"scm-assistant/internal/engine/executor"
	"scm-assistant/internal/engine/extractor"
	"scm-assistant/internal/engine/matcher"
	"scm-assistant/internal/engine/rulestore"
	"scm-assistant/internal/engine/session"
	"scm-assistant/internal/models"
)

type testHarness struct {
	engine *Engine
	mock   sqlmock.Sqlmock
	llm    *httptest.Server
}

func supplierInventoryRule() rulestore.RawRule {
	return rulestore.RawRule{
		ID:              "rule-inv-1",
		Name:            "supplier inventory lookup",
		Category:        "inventory",
		Priority:        10,
		Status:          "active",
		TriggerWords:    `["供应商","库存"]`,
		ActionType:      "QUERY",
		Template:        "SELECT material_name, batch_no, quantity, status FROM inventory WHERE supplier_name = $1",
		ParameterSchema: `[{"name":"supplier","type":"supplier","required":true}]`,
		ResultFields:    `["material","batch","quantity","status"]`,
	}
}

func aliasSource() *extractor.StaticAliasSource {
	return &extractor.StaticAliasSource{
		Table: &models.AliasTable{
			Version: "test",
			Classes: map[models.EntityClass][]models.AliasEntry{
				models.EntitySupplier: {
					{Canonical: "BOE", Aliases: []string{"BOE", "京东方"}},
				},
			},
		},
	}
}

func newHarness(t *testing.T, rules ...rulestore.RawRule) *testHarness {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/ai/classify-intent":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"category": "inventory", "confidence": 0.9,
			})
		default:
			json.NewEncoder(w).Encode(map[string]string{"text": "AI回答"})
		}
	}))
	t.Cleanup(llm.Close)

	log := logger.NewTestLogger(t)
	store := rulestore.New(&rulestore.StaticSource{Rules: rules}, aliasSource(), log)
	_, err = store.Reload(context.Background())
	require.NoError(t, err)

	client := aigateway.NewClient(config.LLMConfig{
		BaseURL: llm.URL, Timeout: 2000, MaxRetries: 0, MaxTokens: 256,
	}, log)
	retriever := NewDataRetriever(db, nil, "tracking-events", log)
	workflow := aigateway.NewWorkflow(client, retriever, log)
	sessions := session.NewStore(rdb, 30*time.Minute, log)
	exec := executor.New(db, 5*time.Second, log)

	engine := NewEngine(store, matcher.New(2, 1), exec, sessions, workflow,
		&observability.Observability{}, log)

	return &testHarness{engine: engine, mock: mock, llm: llm}
}

// Scenario: alias in query resolves the supplier, the rule matches, the
// executor binds the canonical value, and the table carries exactly the
// rule's declared fields.
func TestProcess_RuleMatchEndToEnd(t *testing.T) {
	h := newHarness(t, supplierInventoryRule())

	rows := sqlmock.NewRows([]string{"material_name", "batch_no", "quantity", "status"}).
		AddRow("LCD面板", "B001", 120, "正常").
		AddRow("触摸屏", "B002", 15, "低库存")
	h.mock.ExpectQuery(`SELECT material_name, batch_no, quantity, status FROM inventory WHERE supplier_name = \$1`).
		WithArgs("BOE").
		WillReturnRows(rows)

	outcome := h.engine.Process(context.Background(), Request{
		Query: "查询BOE供应商库存",
		Mode:  ModeAuto,
	})

	result := outcome.Result
	assert.Equal(t, models.SourceRule, result.Source)
	assert.Equal(t, "rule-inv-1", result.MatchedRuleID)
	assert.Equal(t, map[string]interface{}{"supplier": "BOE"}, result.Parameters)
	assert.Equal(t, []string{"material", "batch", "quantity", "status"}, result.Fields)

	require.Len(t, result.Rows, 2)
	for _, row := range result.Rows {
		assert.Len(t, row, 4)
		for _, f := range result.Fields {
			_, ok := row[f]
			assert.True(t, ok, "missing field %q", f)
		}
	}
	assert.Contains(t, result.Summary, "2 条库存记录")
	assert.NotEmpty(t, result.Cards)
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

// Scenario: no trigger word matches any rule; the request escalates and the
// response source is "ai".
func TestProcess_NoMatchEscalatesToAI(t *testing.T) {
	h := newHarness(t, supplierInventoryRule())

	outcome := h.engine.Process(context.Background(), Request{
		Query: "今天天气怎么样",
		Mode:  ModeAuto,
	})

	result := outcome.Result
	assert.Equal(t, models.SourceAI, result.Source)
	assert.Empty(t, result.MatchedRuleID)
	assert.Equal(t, "AI回答", result.Answer)
	assert.False(t, result.Degraded)
}

// Scenario: the store rejects the query (schema drift); the request
// escalates with the degraded flag and stays well-formed.
func TestProcess_DataSourceErrorEscalatesDegraded(t *testing.T) {
	h := newHarness(t, supplierInventoryRule())

	h.mock.ExpectQuery(`SELECT material_name, batch_no, quantity, status FROM inventory WHERE supplier_name = \$1`).
		WithArgs("BOE").
		WillReturnError(errors.New(`pq: column "batch_no" does not exist`))

	outcome := h.engine.Process(context.Background(), Request{
		Query: "查询BOE供应商库存",
		Mode:  ModeAuto,
	})

	result := outcome.Result
	assert.Equal(t, models.SourceAI, result.Source)
	assert.Equal(t, "AI回答", result.Answer)
	assert.True(t, result.Degraded)
	assert.NotNil(t, result.Rows)
	assert.NotNil(t, result.Cards)
}

func TestProcess_MissingRequiredParameterEscalates(t *testing.T) {
	h := newHarness(t, supplierInventoryRule())

	// Trigger words match but no supplier entity is present anywhere.
	outcome := h.engine.Process(context.Background(), Request{
		Query: "查询供应商库存",
		Mode:  ModeAuto,
	})

	assert.Equal(t, models.SourceAI, outcome.Result.Source)
}

// Follow-up: the second query has no supplier mention, but the session's
// last-seen entity fills the parameter.
func TestProcess_FollowUpUsesSessionEntities(t *testing.T) {
	h := newHarness(t, supplierInventoryRule())

	first := sqlmock.NewRows([]string{"material_name", "batch_no", "quantity", "status"}).
		AddRow("LCD面板", "B001", 120, "正常")
	h.mock.ExpectQuery(`WHERE supplier_name = \$1`).WithArgs("BOE").WillReturnRows(first)

	outcome := h.engine.Process(context.Background(), Request{
		Query: "查询京东方供应商库存",
		Mode:  ModeAuto,
	})
	require.Equal(t, models.SourceRule, outcome.Result.Source)
	sessionID := outcome.SessionID
	require.NotEmpty(t, sessionID)

	second := sqlmock.NewRows([]string{"material_name", "batch_no", "quantity", "status"}).
		AddRow("背光模组", "B009", 60, "正常")
	h.mock.ExpectQuery(`WHERE supplier_name = \$1`).WithArgs("BOE").WillReturnRows(second)

	followUp := h.engine.Process(context.Background(), Request{
		Query:     "那供应商库存还有多少",
		SessionID: sessionID,
		Mode:      ModeAuto,
	})

	assert.Equal(t, models.SourceRule, followUp.Result.Source)
	assert.Equal(t, "BOE", followUp.Result.Parameters["supplier"])
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestProcess_ProfessionalModeRunsWorkflow(t *testing.T) {
	h := newHarness(t, supplierInventoryRule())

	rows := sqlmock.NewRows([]string{"material", "batch", "quantity", "unit", "factory", "status"}).
		AddRow("LCD面板", "B001", 120, "件", "深圳一厂", "正常")
	h.mock.ExpectQuery(`FROM inventory`).WillReturnRows(rows)

	outcome := h.engine.Process(context.Background(), Request{
		Query: "请专业分析库存状况",
		Mode:  ModeProfessional,
	})

	require.Len(t, outcome.Stages, 4)
	assert.Equal(t, models.SourceAI, outcome.Result.Source)
	assert.Equal(t, "AI回答", outcome.Result.Answer)
	assert.Len(t, outcome.Result.Rows, 1)
}

func TestProcess_AlwaysReturnsWellFormedResult(t *testing.T) {
	// Even with an empty corpus and a failing LLM, Process never errors.
	h := newHarness(t)
	h.llm.Close() // gateway unreachable

	outcome := h.engine.Process(context.Background(), Request{
		Query: "查询库存",
		Mode:  ModeAuto,
	})

	result := outcome.Result
	require.NotNil(t, result)
	assert.Equal(t, models.SourceAI, result.Source)
	assert.Equal(t, aigateway.Apology, result.Answer)
}
