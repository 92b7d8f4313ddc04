// internal/models/entity.go
package models

// EntityClass is a recognized business entity class.
type EntityClass string

const (
	EntitySupplier EntityClass = "supplier"
	EntityMaterial EntityClass = "material"
	EntityFactory  EntityClass = "factory"
)

// EntityClasses is the fixed extraction order. Extraction is independent
// per class; a query may yield zero, one, or all three.
var EntityClasses = []EntityClass{EntitySupplier, EntityMaterial, EntityFactory}

// AliasEntry maps one canonical entity name to its recognized surface forms,
// most-specific first.
type AliasEntry struct {
	Canonical string   `mapstructure:"canonical" json:"canonical"`
	Aliases   []string `mapstructure:"aliases" json:"aliases"`
}

// AliasTable holds the alias entries for every entity class. It is a
// versioned, externally maintained configuration artifact, immutable at
// request time.
type AliasTable struct {
	Version string                       `mapstructure:"version" json:"version"`
	Classes map[EntityClass][]AliasEntry `mapstructure:"classes" json:"classes"`
}

// ExtractedEntity is one extraction result.
type ExtractedEntity struct {
	Class     EntityClass `json:"class"`
	Canonical string      `json:"canonical"`
	// Matched is the surface form actually found in the query text.
	Matched string `json:"matched"`
}

// EntitySet is the per-class extraction outcome for one query.
// Absent classes simply have no key.
type EntitySet map[EntityClass]ExtractedEntity

// Get returns the canonical name for a class and whether it was extracted.
func (s EntitySet) Get(class EntityClass) (string, bool) {
	e, ok := s[class]
	if !ok {
		return "", false
	}
	return e.Canonical, true
}
