// Package schema describes the columns of the transaction events table.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

//go:embed transactions.toml
var embedded string

// Column is one column of the events table.
type Column struct {
	Name        string `toml:"name"`
	Type        string `toml:"type"`
	Description string `toml:"description"`
}

// Schema is an immutable, ordered column set.
type Schema struct {
	Table   string   `toml:"table"`
	Columns []Column `toml:"columns"`

	index map[string]int
}

var (
	defaultOnce   sync.Once
	defaultSchema *Schema
)

// Default returns the embedded transactions schema.
func Default() *Schema {
	defaultOnce.Do(func() {
		s, err := Parse(embedded)
		if err != nil {
			panic(fmt.Sprintf("schema: embedded definition is invalid: %v", err))
		}
		defaultSchema = s
	})
	return defaultSchema
}

// Load reads a schema from a TOML file, or returns Default when path is empty.
func Load(path string) (*Schema, error) {
	if path == "" {
		return Default(), nil
	}
	var s Schema
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("failed to decode schema file %s: %w", path, err)
	}
	return s.finish()
}

// Parse decodes a TOML schema document.
func Parse(doc string) (*Schema, error) {
	var s Schema
	if _, err := toml.Decode(doc, &s); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	return s.finish()
}

func (s *Schema) finish() (*Schema, error) {
	if s.Table == "" {
		s.Table = "transactions"
	}
	if len(s.Columns) == 0 {
		return nil, errors.New("schema has no columns")
	}
	s.index = make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if _, dup := s.index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		s.Columns[i].Name = name
		s.index[name] = i
	}
	return s, nil
}

// Has reports whether name is a real column.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[strings.ToLower(name)]
	return ok
}

// Names returns column names in schema order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Nearest returns the real column closest to name by edit distance, if any
// is close enough to be a plausible typo.
func (s *Schema) Nearest(name string) (string, bool) {
	name = strings.ToLower(name)
	best, bestDist := "", -1
	for _, c := range s.Columns {
		d := fuzzy.LevenshteinDistance(name, c.Name)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c.Name, d
		}
	}
	limit := len(name) / 3
	if limit < 2 {
		limit = 2
	}
	if bestDist < 0 || bestDist > limit {
		return "", false
	}
	return best, true
}

// PromptBlock renders the columns as an indented JSON object for model prompts,
// keeping schema order.
func (s *Schema) PromptBlock() string {
	var b strings.Builder
	b.WriteString("{\n")
	for i, c := range s.Columns {
		fmt.Fprintf(&b, "  %q: %q", c.Name, c.Type+" - "+c.Description)
		if i < len(s.Columns)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("}")
	return b.String()
}
