// internal/engine/extractor/aliases.go
package extractor

import (
	"fmt"

	"github.com/spf13/viper"

	"scm-assistant/internal/models"
)

// FileAliasSource reads the versioned alias artifact from a YAML file.
// The artifact is maintained externally; the engine only consumes it.
type FileAliasSource struct {
	Path string
}

func NewFileAliasSource(path string) *FileAliasSource {
	return &FileAliasSource{Path: path}
}

// LoadAliases parses the artifact. Expected shape:
//
//	version: "2026-08-01"
//	classes:
//	  supplier:
//	    - canonical: BOE
//	      aliases: [BOE, 京东方]
//	  material:
//	    - canonical: LCD面板
//	      aliases: [LCD面板, 液晶面板, LCD]
func (s *FileAliasSource) LoadAliases() (*models.AliasTable, error) {
	v := viper.New()
	v.SetConfigFile(s.Path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read alias artifact %s: %w", s.Path, err)
	}

	var table models.AliasTable
	if err := v.Unmarshal(&table); err != nil {
		return nil, fmt.Errorf("decode alias artifact: %w", err)
	}

	if table.Classes == nil {
		table.Classes = make(map[models.EntityClass][]models.AliasEntry)
	}
	for class, entries := range table.Classes {
		for i, e := range entries {
			if e.Canonical == "" {
				return nil, fmt.Errorf("alias artifact: %s entry %d has no canonical name", class, i)
			}
		}
	}
	return &table, nil
}

// StaticAliasSource serves a fixed table, used by tests.
type StaticAliasSource struct {
	Table *models.AliasTable
}

func (s *StaticAliasSource) LoadAliases() (*models.AliasTable, error) {
	return s.Table, nil
}
