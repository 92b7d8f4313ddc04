package extractor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scm-assistant/internal/models"
)

func testTable() *models.AliasTable {
	return &models.AliasTable{
		Version: "test",
		Classes: map[models.EntityClass][]models.AliasEntry{
			models.EntitySupplier: {
				{Canonical: "BOE", Aliases: []string{"BOE", "京东方"}},
				{Canonical: "天马微电子", Aliases: []string{"天马微电子", "天马"}},
			},
			models.EntityMaterial: {
				{Canonical: "LCD面板", Aliases: []string{"LCD面板", "液晶面板", "LCD"}},
				{Canonical: "触摸屏", Aliases: []string{"触摸屏", "TP"}},
			},
			models.EntityFactory: {
				{Canonical: "深圳一厂", Aliases: []string{"深圳一厂", "深圳工厂"}},
			},
		},
	}
}

// Every alias embedded verbatim in a query must extract its canonical name.
func TestExtract_EveryAliasResolves(t *testing.T) {
	table := testTable()
	for class, entries := range table.Classes {
		for _, entry := range entries {
			for _, alias := range entry.Aliases {
				query := fmt.Sprintf("查询%s的相关记录", alias)
				got := Extract(query, table)
				e, ok := got[class]
				require.True(t, ok, "alias %q of class %s not extracted", alias, class)
				assert.Equal(t, entry.Canonical, e.Canonical, "alias %q", alias)
			}
		}
	}
}

func TestExtract_LongestAliasWins(t *testing.T) {
	// "天马微电子" contains "天马"; the longer surface form must win even
	// though both entries match.
	got := Extract("天马微电子的库存", testTable())
	e, ok := got[models.EntitySupplier]
	require.True(t, ok)
	assert.Equal(t, "天马微电子", e.Canonical)
	assert.Equal(t, "天马微电子", e.Matched)
}

func TestExtract_CaseInsensitive(t *testing.T) {
	got := Extract("查询boe的lcd库存", testTable())

	supplier, ok := got[models.EntitySupplier]
	require.True(t, ok)
	assert.Equal(t, "BOE", supplier.Canonical)

	material, ok := got[models.EntityMaterial]
	require.True(t, ok)
	assert.Equal(t, "LCD面板", material.Canonical)
}

func TestExtract_CanonicalFallback(t *testing.T) {
	table := &models.AliasTable{
		Classes: map[models.EntityClass][]models.AliasEntry{
			// No aliases at all; only the canonical list can match.
			models.EntitySupplier: {{Canonical: "信利光电"}},
		},
	}
	got := Extract("信利光电最近的来料", table)
	e, ok := got[models.EntitySupplier]
	require.True(t, ok)
	assert.Equal(t, "信利光电", e.Canonical)
}

func TestExtract_MultipleClassesAtOnce(t *testing.T) {
	got := Extract("京东方在深圳一厂的触摸屏库存", testTable())

	assert.Len(t, got, 3)
	supplier, _ := got.Get(models.EntitySupplier)
	material, _ := got.Get(models.EntityMaterial)
	factory, _ := got.Get(models.EntityFactory)
	assert.Equal(t, "BOE", supplier)
	assert.Equal(t, "触摸屏", material)
	assert.Equal(t, "深圳一厂", factory)
}

func TestExtract_NoMatchIsNotAnError(t *testing.T) {
	got := Extract("今天天气怎么样", testTable())
	assert.Empty(t, got)
}

func TestExtract_NilTable(t *testing.T) {
	got := Extract("京东方库存", nil)
	assert.Empty(t, got)
}
