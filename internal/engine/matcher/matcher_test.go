package matcher

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enginerrors "scm-assistant/internal/common/errors"
	"scm-assistant/internal/engine/rulestore"
	"scm-assistant/internal/models"
)

func rule(id string, priority int, triggers []string, params ...models.ParameterSpec) *models.IntentRule {
	return &models.IntentRule{
		ID:           id,
		Name:         id,
		Category:     models.CategoryInventory,
		Priority:     priority,
		Status:       models.RuleStatusActive,
		TriggerWords: triggers,
		Template:     "SELECT 1",
		Parameters:   params,
		ResultFields: []string{"material"},
	}
}

func snapshot(rules ...*models.IntentRule) *rulestore.Snapshot {
	snap := &rulestore.Snapshot{}
	for i, r := range rules {
		r.LoadOrder = i
		snap.Active = append(snap.Active, r)
	}
	return snap
}

func TestScore_TriggerWordLength(t *testing.T) {
	m := New(1, 1)
	r := rule("r1", 0, []string{"供应商", "库存"})

	// Both words present: 3 + 2 runes.
	assert.Equal(t, 5, m.Score(r, "查询BOE供应商库存"))
	// One word present.
	assert.Equal(t, 2, m.Score(r, "库存情况"))
	// None present.
	assert.Equal(t, 0, m.Score(r, "今天天气怎么样"))
}

func TestScore_WeightMultiplies(t *testing.T) {
	m := New(1, 10)
	r := rule("r1", 0, []string{"库存"})
	assert.Equal(t, 20, m.Score(r, "库存"))
}

func TestSelect_NoMatchBelowThreshold(t *testing.T) {
	m := New(5, 1)
	snap := snapshot(rule("r1", 0, []string{"库存"})) // scores 2 at most

	_, err := m.Select(snap, "库存", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, enginerrors.ErrNoMatch))
}

func TestSelect_NoTriggerWordsMatch(t *testing.T) {
	m := New(1, 1)
	snap := snapshot(rule("r1", 0, []string{"供应商", "库存"}))

	_, err := m.Select(snap, "今天天气怎么样", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, enginerrors.ErrNoMatch))
}

func TestSelect_PriorityBreaksTie(t *testing.T) {
	m := New(1, 1)
	// Both score identically on "库存"; priority must decide.
	ruleA := rule("rule-a", 10, []string{"库存"})
	ruleB := rule("rule-b", 5, []string{"库存"})
	snap := snapshot(ruleB, ruleA) // lower priority loads first

	match, err := m.Select(snap, "查库存", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "rule-a", match.Rule.ID)
}

func TestSelect_LoadOrderBreaksRemainingTie(t *testing.T) {
	m := New(1, 1)
	first := rule("first", 5, []string{"库存"})
	second := rule("second", 5, []string{"库存"})

	match, err := m.Select(snapshot(first, second), "查库存", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", match.Rule.ID)
}

func TestSelect_Deterministic(t *testing.T) {
	m := New(1, 1)
	snap := snapshot(
		rule("r1", 3, []string{"库存", "供应商"}),
		rule("r2", 3, []string{"库存", "物料"}),
		rule("r3", 7, []string{"批次"}),
	)

	var winner string
	for i := 0; i < 100; i++ {
		match, err := m.Select(snap, "供应商库存物料", nil, nil)
		require.NoError(t, err)
		if winner == "" {
			winner = match.Rule.ID
		}
		assert.Equal(t, winner, match.Rule.ID)
	}
}

func TestSelect_BindsExtractedEntities(t *testing.T) {
	m := New(1, 1)
	snap := snapshot(rule("r1", 0, []string{"库存"},
		models.ParameterSpec{Name: "supplier", Type: "supplier", Required: true}))

	entities := models.EntitySet{
		models.EntitySupplier: {Class: models.EntitySupplier, Canonical: "BOE", Matched: "京东方"},
	}

	match, err := m.Select(snap, "京东方库存", entities, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"BOE"}, match.Args)
	assert.Equal(t, "BOE", match.Params["supplier"])
}

func TestSelect_MissingRequiredParameterDemotes(t *testing.T) {
	m := New(1, 1)
	snap := snapshot(rule("r1", 0, []string{"库存"},
		models.ParameterSpec{Name: "supplier", Type: "supplier", Required: true}))

	_, err := m.Select(snap, "查库存", models.EntitySet{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, enginerrors.ErrParameterExtraction))
}

func TestSelect_SessionEntitiesFillGaps(t *testing.T) {
	m := New(1, 1)
	snap := snapshot(rule("r1", 0, []string{"库存"},
		models.ParameterSpec{Name: "supplier", Type: "supplier", Required: true}))

	remembered := models.EntitySet{
		models.EntitySupplier: {Class: models.EntitySupplier, Canonical: "BOE"},
	}

	// Follow-up question mentions no supplier; the session's last-seen
	// entity fills the slot instead of demoting to AI.
	match, err := m.Select(snap, "那库存呢", nil, remembered)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"BOE"}, match.Args)
}

func TestSelect_OptionalParameterDefaultsEmpty(t *testing.T) {
	m := New(1, 1)
	snap := snapshot(rule("r1", 0, []string{"库存"},
		models.ParameterSpec{Name: "factory", Type: "factory", Required: false}))

	match, err := m.Select(snap, "查库存", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{""}, match.Args)
}

func TestSelect_LiteralParameterFromHint(t *testing.T) {
	m := New(1, 1)
	snap := snapshot(rule("r1", 0, []string{"低库存"},
		models.ParameterSpec{Name: "threshold", Type: "literal", Hint: "100", Required: true}))

	match, err := m.Select(snap, "低库存预警", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"100"}, match.Args)
}

func TestSelect_EmptySnapshot(t *testing.T) {
	m := New(1, 1)

	_, err := m.Select(nil, "查库存", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, enginerrors.ErrNoMatch))
}
