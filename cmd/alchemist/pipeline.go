package main

import (
	"fmt"

	"github.com/danchege/Alchemist/internal/ops"
	"github.com/danchege/Alchemist/internal/store"
	"github.com/spf13/viper"
)

// Pipeline is a cleaning recipe read from YAML or JSON:
//
//	operations:
//	  - type: remove_duplicates
//	  - type: clean_text
//	    columns: [name, city]
//	    text_operations: [trim_whitespace, normalize_case]
//	    case_type: title
//	view:
//	  filter: {column: city, operator: equals, value: NY}
//	large_file_operations: [remove_duplicates, clean_text]
type Pipeline struct {
	Operations []ops.Operation `mapstructure:"operations"`

	// View, when set, restricts the exported rows.
	View *store.View `mapstructure:"view"`

	// LargeFileOperations overrides the operations allowed on files
	// staged in SQLite.
	LargeFileOperations []string `mapstructure:"large_file_operations"`
}

// loadPipeline reads and validates a pipeline file. The format follows
// the file extension.
func loadPipeline(path string) (*Pipeline, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read pipeline: %w", err)
	}

	var p Pipeline
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	if len(p.Operations) == 0 {
		return nil, fmt.Errorf("pipeline %s has no operations", path)
	}
	if err := ops.ValidateAll(p.Operations); err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", path, err)
	}
	return &p, nil
}

// LargeFileKinds parses LargeFileOperations. Nil selects the store
// defaults.
func (p *Pipeline) LargeFileKinds() ([]ops.Kind, error) {
	if len(p.LargeFileOperations) == 0 {
		return nil, nil
	}
	kinds := make([]ops.Kind, 0, len(p.LargeFileOperations))
	for _, name := range p.LargeFileOperations {
		k, err := ops.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
