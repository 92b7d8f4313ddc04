package rulestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scm-assistant/internal/common/logger"
	"scm-assistant/internal/engine/extractor"
	"scm-assistant/internal/models"
)

func testAliasSource() *extractor.StaticAliasSource {
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

func validRawRule(id string) RawRule {
	return RawRule{
		ID:              id,
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

func newTestStore(rules ...RawRule) *Store {
	return New(&StaticSource{Rules: rules}, testAliasSource(), logger.NewNoOpLogger())
}

func TestReload_ValidRule(t *testing.T) {
	store := newTestStore(validRawRule("rule-1"))

	snap, err := store.Reload(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Active, 1)
	assert.Empty(t, snap.Invalid)

	rule := snap.Active[0]
	assert.Equal(t, "rule-1", rule.ID)
	assert.Equal(t, []string{"供应商", "库存"}, rule.TriggerWords)
	assert.Equal(t, models.CategoryInventory, rule.Category)
	assert.Equal(t, 0, rule.LoadOrder)
	assert.NotNil(t, snap.Plans["rule-1"])
	assert.Equal(t, "test", snap.Aliases.Version)
}

func TestReload_ArityMismatchQuarantined(t *testing.T) {
	// Two placeholders, one declared parameter: the rule must be excluded
	// from matching, not crash the load.
	bad := validRawRule("rule-bad")
	bad.Template = "SELECT * FROM inventory WHERE supplier_name = $1 AND material_name = $2"

	store := newTestStore(validRawRule("rule-ok"), bad)
	snap, err := store.Reload(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Active, 1)
	assert.Equal(t, "rule-ok", snap.Active[0].ID)

	require.Len(t, snap.Invalid, 1)
	assert.Equal(t, "rule-bad", snap.Invalid[0].ID)
	assert.Equal(t, models.RuleStatusInvalid, snap.Invalid[0].Status)
	assert.Contains(t, snap.Invalid[0].InvalidReason, "placeholders")
}

func TestReload_QuarantineReasons(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RawRule)
		reason string
	}{
		{
			name:   "empty trigger words",
			mutate: func(r *RawRule) { r.TriggerWords = "  " },
			reason: "trigger words",
		},
		{
			name:   "malformed trigger word array",
			mutate: func(r *RawRule) { r.TriggerWords = `["供应商",` },
			reason: "trigger words",
		},
		{
			name:   "malformed parameter schema",
			mutate: func(r *RawRule) { r.ParameterSchema = `{"name":` },
			reason: "parameter schema",
		},
		{
			name:   "empty result fields",
			mutate: func(r *RawRule) { r.ResultFields = `[]` },
			reason: "schema violations",
		},
		{
			name:   "unknown category",
			mutate: func(r *RawRule) { r.Category = "weather" },
			reason: "schema violations",
		},
		{
			name:   "duplicate result field",
			mutate: func(r *RawRule) { r.ResultFields = `["batch","batch"]`; r.Template = "SELECT 1 FROM inventory WHERE x = $1" },
			reason: "duplicate result field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRawRule("rule-x")
			tt.mutate(&raw)

			snap, err := newTestStore(raw).Reload(context.Background())
			require.NoError(t, err)
			assert.Empty(t, snap.Active)
			require.Len(t, snap.Invalid, 1)
			assert.Contains(t, snap.Invalid[0].InvalidReason, tt.reason)
		})
	}
}

func TestReload_InactiveExcluded(t *testing.T) {
	inactive := validRawRule("rule-2")
	inactive.Status = "inactive"

	snap, err := newTestStore(validRawRule("rule-1"), inactive).Reload(context.Background())
	require.NoError(t, err)

	assert.Len(t, snap.Active, 1)
	assert.Len(t, snap.Inactive, 1)
}

func TestReload_SwapsWholesale(t *testing.T) {
	store := newTestStore(validRawRule("rule-1"))

	first, err := store.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)
	assert.Same(t, first, store.Snapshot())

	second, err := store.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Version)
	assert.Same(t, second, store.Snapshot())
	// The old generation is untouched; readers holding it stay consistent.
	assert.Equal(t, int64(1), first.Version)
}

func TestCountPlaceholders(t *testing.T) {
	tests := []struct {
		template string
		want     int
		wantErr  bool
	}{
		{"SELECT 1", 0, false},
		{"SELECT * FROM t WHERE a = $1", 1, false},
		{"SELECT * FROM t WHERE a = $1 AND b = $2 OR a = $1", 2, false},
		{"SELECT * FROM t WHERE a = $1 AND b = $3", 0, true}, // gap
		{"SELECT * FROM t WHERE a = $0", 0, true},
	}

	for _, tt := range tests {
		got, err := CountPlaceholders(tt.template)
		if tt.wantErr {
			assert.Error(t, err, tt.template)
		} else {
			require.NoError(t, err, tt.template)
			assert.Equal(t, tt.want, got, tt.template)
		}
	}
}

func TestNormalizeTriggerWords(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{"json array", `["供应商","库存"]`, []string{"供应商", "库存"}, false},
		{"doubly encoded array", `"[\"供应商\",\"库存\"]"`, []string{"供应商", "库存"}, false},
		{"comma separated", "供应商,库存", []string{"供应商", "库存"}, false},
		{"chinese comma", "供应商，库存", []string{"供应商", "库存"}, false},
		{"mixed delimiters with spaces", "供应商; 库存、 批次", []string{"供应商", "库存", "批次"}, false},
		{"duplicates dropped keeping order", `["库存","供应商","库存"]`, []string{"库存", "供应商"}, false},
		{"empty", "", nil, true},
		{"only delimiters", ",，;", nil, true},
		{"broken json", `["供应商"`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTriggerWords(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
