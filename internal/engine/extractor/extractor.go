// internal/engine/extractor/extractor.go

// Package extractor finds canonical business entities in free-text queries
// via alias tables. Matching is lexical: case-insensitive substring search,
// alias lists first, canonical names as fallback, longest surface form
// winning ties. Extraction is independent per entity class.
package extractor

import (
	"strings"
	"unicode/utf8"

	"scm-assistant/internal/models"
)

// Extract scans the query against every entity class of the table.
// A class with no hit simply has no key in the returned set; absence is not
// an error here, it becomes a lower-confidence signal for the matcher.
func Extract(query string, table *models.AliasTable) models.EntitySet {
	result := make(models.EntitySet)
	if table == nil {
		return result
	}

	lowered := strings.ToLower(query)

	for _, class := range models.EntityClasses {
		entries := table.Classes[class]
		if len(entries) == 0 {
			continue
		}
		if e, ok := scanAliases(lowered, class, entries); ok {
			result[class] = e
			continue
		}
		if e, ok := scanCanonicals(lowered, class, entries); ok {
			result[class] = e
		}
	}
	return result
}

// scanAliases checks every alias of every entry; the longest matching alias
// wins regardless of entry order.
func scanAliases(lowered string, class models.EntityClass, entries []models.AliasEntry) (models.ExtractedEntity, bool) {
	var best models.ExtractedEntity
	bestLen := 0
	for _, entry := range entries {
		for _, alias := range entry.Aliases {
			if alias == "" {
				continue
			}
			if !strings.Contains(lowered, strings.ToLower(alias)) {
				continue
			}
			if n := utf8.RuneCountInString(alias); n > bestLen {
				bestLen = n
				best = models.ExtractedEntity{
					Class:     class,
					Canonical: entry.Canonical,
					Matched:   alias,
				}
			}
		}
	}
	return best, bestLen > 0
}

func scanCanonicals(lowered string, class models.EntityClass, entries []models.AliasEntry) (models.ExtractedEntity, bool) {
	var best models.ExtractedEntity
	bestLen := 0
	for _, entry := range entries {
		if !strings.Contains(lowered, strings.ToLower(entry.Canonical)) {
			continue
		}
		if n := utf8.RuneCountInString(entry.Canonical); n > bestLen {
			bestLen = n
			best = models.ExtractedEntity{
				Class:     class,
				Canonical: entry.Canonical,
				Matched:   entry.Canonical,
			}
		}
	}
	return best, bestLen > 0
}
