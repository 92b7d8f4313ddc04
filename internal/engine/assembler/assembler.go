// internal/engine/assembler/assembler.go

// Package assembler turns normalized rows into the user-facing response
// triple: a summary sentence, the table itself, and a small set of metric
// cards. The aggregation recipe follows the matched rule's category.
package assembler

import (
	"fmt"
	"sort"
	"strings"

	"scm-assistant/internal/models"
)

// Assemble fills Summary, Answer and Cards on a rule-sourced result.
// Rows and Fields must already be normalized.
func Assemble(result *models.QueryResult) {
	switch result.Category {
	case models.CategoryInventory:
		assembleInventory(result)
	case models.CategoryTesting:
		assembleTesting(result)
	case models.CategoryTracking:
		assembleTracking(result)
	default:
		assembleGeneral(result)
	}
	if result.Answer == "" {
		result.Answer = result.Summary
	}
}

func assembleInventory(r *models.QueryResult) {
	n := len(r.Rows)
	statusField := pickField(r.Fields, "status")
	breakdown := groupCount(r.Rows, statusField)

	summary := fmt.Sprintf("共查询到 %d 条库存记录", n)
	if part := formatBreakdown(breakdown); part != "" {
		summary += "，其中" + part
	}
	r.Summary = summary + "。"

	materials := distinctCount(r.Rows, pickField(r.Fields, "material"))
	batches := distinctCount(r.Rows, pickField(r.Fields, "batch"))
	low := countMatching(r.Rows, statusField, "低库存", "不足", "low")

	r.Cards = []models.Card{
		{Icon: "📦", Title: "记录总数", Value: fmt.Sprintf("%d", n), Subtitle: "库存记录"},
		{Icon: "🧱", Title: "物料种类", Value: fmt.Sprintf("%d", materials)},
		{Icon: "🏷️", Title: "批次数量", Value: fmt.Sprintf("%d", batches)},
	}
	if low > 0 {
		r.Cards = append(r.Cards, models.Card{
			Icon: "⚠️", Title: "低库存", Value: fmt.Sprintf("%d", low), Subtitle: "需要补货",
		})
	}
}

func assembleTesting(r *models.QueryResult) {
	n := len(r.Rows)
	resultField := pickField(r.Fields, "result")
	// Check failure markers first: "不合格" contains "合格" as a substring.
	passed, failed := 0, 0
	for _, row := range r.Rows {
		v := strings.ToLower(stringValue(row[resultField]))
		switch {
		case v == "":
		case containsAny(v, "不合格", "fail", "ng", "reject"):
			failed++
		case containsAny(v, "合格", "pass", "ok"):
			passed++
		}
	}

	rate := 0.0
	if n > 0 {
		rate = float64(passed) / float64(n) * 100
	}

	r.Summary = fmt.Sprintf("共查询到 %d 条检测记录，合格 %d 条，不合格 %d 条，合格率 %.1f%%。",
		n, passed, failed, rate)

	r.Cards = []models.Card{
		{Icon: "🧪", Title: "检测总数", Value: fmt.Sprintf("%d", n)},
		{Icon: "✅", Title: "合格率", Value: fmt.Sprintf("%.1f%%", rate)},
		{Icon: "❌", Title: "不合格", Value: fmt.Sprintf("%d", failed), Subtitle: "需要复检"},
	}
	if materials := distinctCount(r.Rows, pickField(r.Fields, "material")); materials > 0 {
		r.Cards = append(r.Cards, models.Card{
			Icon: "🧱", Title: "涉及物料", Value: fmt.Sprintf("%d", materials),
		})
	}
}

func assembleTracking(r *models.QueryResult) {
	n := len(r.Rows)
	statusField := pickField(r.Fields, "status")
	anomalies := countMatching(r.Rows, statusField, "异常", "anomaly", "abnormal")

	rate := 0.0
	if n > 0 {
		rate = float64(anomalies) / float64(n) * 100
	}

	r.Summary = fmt.Sprintf("共查询到 %d 条追溯记录，异常 %d 条，异常率 %.1f%%。", n, anomalies, rate)

	r.Cards = []models.Card{
		{Icon: "🔍", Title: "追溯记录", Value: fmt.Sprintf("%d", n)},
		{Icon: "⚠️", Title: "异常率", Value: fmt.Sprintf("%.1f%%", rate)},
	}
	if stations := distinctCount(r.Rows, pickField(r.Fields, "station")); stations > 0 {
		r.Cards = append(r.Cards, models.Card{
			Icon: "🏭", Title: "经过工位", Value: fmt.Sprintf("%d", stations),
		})
	}
	if batches := distinctCount(r.Rows, pickField(r.Fields, "batch")); batches > 0 {
		r.Cards = append(r.Cards, models.Card{
			Icon: "🏷️", Title: "涉及批次", Value: fmt.Sprintf("%d", batches),
		})
	}
}

func assembleGeneral(r *models.QueryResult) {
	n := len(r.Rows)
	r.Summary = fmt.Sprintf("共查询到 %d 条记录。", n)
	r.Cards = []models.Card{
		{Icon: "📄", Title: "记录总数", Value: fmt.Sprintf("%d", n)},
	}
	if len(r.Fields) > 0 {
		if d := distinctCount(r.Rows, r.Fields[0]); d > 0 {
			r.Cards = append(r.Cards, models.Card{
				Icon: "🔢", Title: r.Fields[0], Value: fmt.Sprintf("%d", d), Subtitle: "去重计数",
			})
		}
	}
}

// pickField returns the declared field matching the wanted canonical name,
// or the first field containing it, so recipes survive minor naming drift.
func pickField(fields []string, wanted string) string {
	for _, f := range fields {
		if strings.EqualFold(f, wanted) {
			return f
		}
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), wanted) {
			return f
		}
	}
	return ""
}

func distinctCount(rows []models.Row, field string) int {
	if field == "" {
		return 0
	}
	seen := make(map[string]struct{})
	for _, row := range rows {
		v := stringValue(row[field])
		if v == "" {
			continue
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}

func containsAny(v string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(v, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}

func countMatching(rows []models.Row, field string, needles ...string) int {
	if field == "" {
		return 0
	}
	n := 0
	for _, row := range rows {
		v := strings.ToLower(stringValue(row[field]))
		for _, needle := range needles {
			if v != "" && strings.Contains(v, strings.ToLower(needle)) {
				n++
				break
			}
		}
	}
	return n
}

func groupCount(rows []models.Row, field string) map[string]int {
	if field == "" {
		return nil
	}
	out := make(map[string]int)
	for _, row := range rows {
		if v := stringValue(row[field]); v != "" {
			out[v]++
		}
	}
	return out
}

func formatBreakdown(groups map[string]int) string {
	if len(groups) == 0 {
		return ""
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d 条", k, groups[k]))
	}
	return strings.Join(parts, "、")
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
