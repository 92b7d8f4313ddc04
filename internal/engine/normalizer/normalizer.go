// internal/engine/normalizer/normalizer.go

// Package normalizer reconciles raw result columns with a rule's canonical
// field list. The fallback chain is an explicit, ordered strategy list:
// direct name match, positional match, synonym lookup, default-empty.
// Normalization never fails; it degrades to empty values so the caller
// always gets a well-formed table.
package normalizer

import (
	"strings"
	"sync"

	"scm-assistant/internal/models"
)

// synonyms groups a canonical field with the store column names it is known
// to appear under. Matching is symmetric: any two terms of one group map to
// each other. Lowercased on both sides.
var synonyms = map[string][]string{
	"supplier":  {"supplier_name", "vendor", "vendor_name", "供应商"},
	"material":  {"material_name", "material_code", "item", "物料"},
	"factory":   {"storage_location", "plant", "site", "工厂"},
	"batch":     {"batch_no", "batch_number", "lot", "lot_no", "批次"},
	"quantity":  {"qty", "stock_qty", "amount", "数量"},
	"status":    {"state", "stock_status", "状态"},
	"result":    {"test_result", "outcome", "检测结果"},
	"date":      {"created_at", "test_date", "record_date", "日期"},
	"station":   {"checkpoint", "stage", "工位"},
	"unit":      {"uom", "单位"},
	"inspector": {"tester", "checked_by", "检验员"},
}

// synonymGroup maps every known term to its group key, so lookup works in
// both directions ("factory" finds "storage_location" and vice versa).
var synonymGroup = func() map[string]string {
	m := make(map[string]string)
	for key, terms := range synonyms {
		m[key] = key
		for _, t := range terms {
			m[t] = key
		}
	}
	return m
}()

// Plan is the precompiled mapping plan for one rule's result_fields.
// Column resolution is memoized per observed column signature, so the
// chain is evaluated once per distinct executor output shape instead of
// per row.
type Plan struct {
	fields []string

	mu    sync.Mutex
	cache map[string][]int // column signature -> per-field column index (-1 = unresolved)
}

// Compile builds the plan for a canonical field list.
func Compile(fields []string) *Plan {
	copied := make([]string, len(fields))
	copy(copied, fields)
	return &Plan{
		fields: copied,
		cache:  make(map[string][]int),
	}
}

// Fields returns the canonical field list in declared order.
func (p *Plan) Fields() []string {
	return p.fields
}

// Normalize produces rows keyed exactly by the plan's fields, in declared
// order semantics: every output row has precisely those keys.
func (p *Plan) Normalize(columns []string, rows []models.Row) []models.Row {
	mapping := p.resolve(columns)

	out := make([]models.Row, 0, len(rows))
	for _, raw := range rows {
		row := make(models.Row, len(p.fields))
		for i, field := range p.fields {
			if idx := mapping[i]; idx >= 0 {
				row[field] = raw[columns[idx]]
			} else {
				row[field] = ""
			}
		}
		out = append(out, row)
	}
	return out
}

func (p *Plan) resolve(columns []string) []int {
	sig := strings.Join(columns, "\x1f")

	p.mu.Lock()
	defer p.mu.Unlock()
	if mapping, ok := p.cache[sig]; ok {
		return mapping
	}

	mapping := computeMapping(p.fields, columns)
	p.cache[sig] = mapping
	return mapping
}

func computeMapping(fields, columns []string) []int {
	lowered := make([]string, len(columns))
	for i, c := range columns {
		lowered[i] = strings.ToLower(c)
	}

	mapping := make([]int, len(fields))
	for i := range mapping {
		mapping[i] = -1
	}
	taken := make([]bool, len(columns))

	// 1. Direct match.
	direct := false
	for i, field := range fields {
		for j, col := range lowered {
			if !taken[j] && col == strings.ToLower(field) {
				mapping[i] = j
				taken[j] = true
				direct = true
				break
			}
		}
	}

	// 2. Positional match, only when cardinality agrees and nothing
	// matched directly.
	if !direct && len(fields) == len(columns) {
		for i := range fields {
			mapping[i] = i
		}
		return mapping
	}

	// 3. Synonym lookup for anything still unresolved.
	for i, field := range fields {
		if mapping[i] >= 0 {
			continue
		}
		group, known := synonymGroup[strings.ToLower(field)]
		if !known {
			continue
		}
		for j, col := range lowered {
			if !taken[j] && synonymGroup[col] == group {
				mapping[i] = j
				taken[j] = true
				break
			}
		}
	}

	// 4. Unresolved fields stay at -1 and default to empty values.
	return mapping
}
