// internal/engine/rulestore/store.go

// Package rulestore loads the intent-rule corpus into an immutable,
// versioned in-memory snapshot. Reload swaps the whole snapshot atomically;
// readers never observe a partially updated rule set.
package rulestore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"scm-assistant/internal/common/logger"
	"scm-assistant/internal/engine/normalizer"
	"scm-assistant/internal/models"
)

// AliasSource supplies the entity alias artifact alongside the rules so one
// reload swaps both together.
type AliasSource interface {
	LoadAliases() (*models.AliasTable, error)
}

// Snapshot is one immutable generation of the corpus.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	// Active rules in load order; only these participate in matching.
	Active []*models.IntentRule
	// Invalid rules are quarantined corpus defects kept for the admin
	// inspection surface.
	Invalid []*models.IntentRule
	// Inactive rules, also excluded from matching.
	Inactive []*models.IntentRule
	Aliases  *models.AliasTable
	// Plans maps rule id to its precompiled field-mapping plan.
	Plans map[string]*normalizer.Plan
}

// Store holds the current snapshot behind an atomic pointer.
type Store struct {
	source  Source
	aliases AliasSource
	logger  logger.Logger
	current atomic.Pointer[Snapshot]
	version atomic.Int64
}

func New(source Source, aliases AliasSource, log logger.Logger) *Store {
	return &Store{
		source:  source,
		aliases: aliases,
		logger:  log.WithFields(map[string]interface{}{"component": "rulestore"}),
	}
}

// Snapshot returns the current corpus generation. Nil until the first
// successful Reload.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Reload loads and validates the full corpus, then swaps it in wholesale.
// A failed load leaves the previous snapshot in place.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	raws, err := s.source.LoadRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("rule source: %w", err)
	}

	aliases, err := s.aliases.LoadAliases()
	if err != nil {
		return nil, fmt.Errorf("alias source: %w", err)
	}

	snap := &Snapshot{
		Version:  s.version.Add(1),
		LoadedAt: time.Now().UTC(),
		Aliases:  aliases,
		Plans:    make(map[string]*normalizer.Plan),
	}

	for _, raw := range raws {
		rule := s.buildRule(raw)
		switch rule.Status {
		case models.RuleStatusActive:
			rule.LoadOrder = len(snap.Active)
			snap.Active = append(snap.Active, rule)
			snap.Plans[rule.ID] = normalizer.Compile(rule.ResultFields)
		case models.RuleStatusInactive:
			snap.Inactive = append(snap.Inactive, rule)
		default:
			snap.Invalid = append(snap.Invalid, rule)
			s.logger.Warn("rule quarantined", map[string]interface{}{
				"ruleId": rule.ID,
				"reason": rule.InvalidReason,
			})
		}
	}

	s.current.Store(snap)
	s.logger.Info("rule corpus loaded", map[string]interface{}{
		"version":       snap.Version,
		"active":        len(snap.Active),
		"inactive":      len(snap.Inactive),
		"invalid":       len(snap.Invalid),
		"aliasVersion":  aliases.Version,
	})
	return snap, nil
}

// buildRule decodes and validates a single record. Any defect marks the
// rule invalid with a reason; loading never fails the whole corpus over
// one bad record.
func (s *Store) buildRule(raw RawRule) *models.IntentRule {
	rule := &models.IntentRule{
		ID:           raw.ID,
		Name:         raw.Name,
		Description:  raw.Description,
		Category:     models.RuleCategory(raw.Category),
		Priority:     raw.Priority,
		Status:       models.RuleStatus(raw.Status),
		ExampleQuery: raw.ExampleQuery,
		ActionType:   models.ActionType(raw.ActionType),
		Template:     raw.Template,
	}

	invalidate := func(reason string) *models.IntentRule {
		rule.Status = models.RuleStatusInvalid
		rule.InvalidReason = reason
		return rule
	}

	words, err := NormalizeTriggerWords(raw.TriggerWords)
	if err != nil {
		return invalidate(fmt.Sprintf("trigger words: %v", err))
	}
	rule.TriggerWords = words

	var params []models.ParameterSpec
	if raw.ParameterSchema != "" {
		if err := json.Unmarshal([]byte(raw.ParameterSchema), &params); err != nil {
			return invalidate(fmt.Sprintf("parameter schema: %v", err))
		}
	}
	rule.Parameters = params

	var fields []string
	if err := json.Unmarshal([]byte(raw.ResultFields), &fields); err != nil {
		return invalidate(fmt.Sprintf("result fields: %v", err))
	}
	rule.ResultFields = fields

	doc := map[string]interface{}{
		"id":           rule.ID,
		"name":         rule.Name,
		"description":  rule.Description,
		"category":     string(rule.Category),
		"priority":     rule.Priority,
		"status":       raw.Status,
		"actionType":   string(rule.ActionType),
		"template":     rule.Template,
		"exampleQuery": rule.ExampleQuery,
		"parameters":   paramDocs(params),
		"resultFields": fields,
	}
	if err := validateShape(doc); err != nil {
		return invalidate(err.Error())
	}

	placeholders, err := CountPlaceholders(rule.Template)
	if err != nil {
		return invalidate(fmt.Sprintf("template: %v", err))
	}
	if placeholders != len(rule.Parameters) {
		// The arity mismatch class: a corpus defect, never a runtime
		// condition.
		return invalidate(fmt.Sprintf(
			"template has %d placeholders but schema declares %d parameters",
			placeholders, len(rule.Parameters)))
	}

	if seen := dupField(fields); seen != "" {
		return invalidate(fmt.Sprintf("duplicate result field %q", seen))
	}

	return rule
}

func paramDocs(params []models.ParameterSpec) []interface{} {
	out := make([]interface{}, 0, len(params))
	for _, p := range params {
		out = append(out, map[string]interface{}{
			"name":     p.Name,
			"type":     p.Type,
			"hint":     p.Hint,
			"required": p.Required,
		})
	}
	return out
}

func dupField(fields []string) string {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			return f
		}
		seen[f] = struct{}{}
	}
	return ""
}

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// CountPlaceholders counts the positional bind placeholders in a template.
// Indices must form a contiguous 1..n set; gaps or zero indices are template
// defects.
func CountPlaceholders(template string) (int, error) {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return 0, nil
	}

	indices := make(map[int]struct{})
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return 0, fmt.Errorf("bad placeholder $%s", m[1])
		}
		indices[n] = struct{}{}
	}

	sorted := make([]int, 0, len(indices))
	for n := range indices {
		sorted = append(sorted, n)
	}
	sort.Ints(sorted)
	for i, n := range sorted {
		if n != i+1 {
			return 0, fmt.Errorf("placeholder indices not contiguous: missing $%d", i+1)
		}
	}
	return len(sorted), nil
}
