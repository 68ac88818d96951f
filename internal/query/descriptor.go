package query

import (
	"sort"

	"github.com/MingChen0919/elastic-search/internal/domain"
)

const (
	DefaultShards    = 5
	DefaultReplicas  = 0
	DefaultTokenizer = "standard"
)

// FieldMapping maps a document field to an engine type.
type FieldMapping struct {
	Name string
	Type string
}

// Analyzer is the custom analyzer of an index.
type Analyzer struct {
	Tokenizer string
	Filters   []string
}

// IndexDescriptor describes an index to be created.
type IndexDescriptor struct {
	Name     string
	Shards   int
	Replicas int
	Analyzer Analyzer
	Fields   []FieldMapping
}

// DescriptorBuilder assembles an IndexDescriptor.
type DescriptorBuilder struct {
	d IndexDescriptor
}

// NewIndexDescriptor starts a descriptor with default shards, replicas and tokenizer.
func NewIndexDescriptor(name string) *DescriptorBuilder {
	return &DescriptorBuilder{d: IndexDescriptor{
		Name:     name,
		Shards:   DefaultShards,
		Replicas: DefaultReplicas,
		Analyzer: Analyzer{Tokenizer: DefaultTokenizer},
	}}
}

func (b *DescriptorBuilder) Shards(n int) *DescriptorBuilder {
	b.d.Shards = n
	return b
}

func (b *DescriptorBuilder) Replicas(n int) *DescriptorBuilder {
	b.d.Replicas = n
	return b
}

func (b *DescriptorBuilder) Tokenizer(name string) *DescriptorBuilder {
	if name != "" {
		b.d.Analyzer.Tokenizer = name
	}
	return b
}

// TokenFilters appends token filters in the order they are applied.
func (b *DescriptorBuilder) TokenFilters(names ...string) *DescriptorBuilder {
	for _, n := range names {
		if n != "" {
			b.d.Analyzer.Filters = append(b.d.Analyzer.Filters, n)
		}
	}
	return b
}

// Field adds a field mapping. An empty type defaults to text.
func (b *DescriptorBuilder) Field(name, typ string) *DescriptorBuilder {
	if typ == "" {
		typ = "text"
	}
	b.d.Fields = append(b.d.Fields, FieldMapping{Name: name, Type: typ})
	return b
}

// Build validates and returns the descriptor.
func (b *DescriptorBuilder) Build() (*IndexDescriptor, error) {
	d := b.d
	if d.Name == "" {
		return nil, domain.ConfigurationError("index descriptor has no name")
	}
	if d.Shards < 1 {
		return nil, domain.ConfigurationError("index %s: shards must be positive, got %d", d.Name, d.Shards)
	}
	if d.Replicas < 0 {
		return nil, domain.ConfigurationError("index %s: replicas must not be negative, got %d", d.Name, d.Replicas)
	}
	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name == "" {
			return nil, domain.ConfigurationError("index %s: field with empty name", d.Name)
		}
		if seen[f.Name] {
			return nil, domain.ConfigurationError("index %s: duplicate field %q", d.Name, f.Name)
		}
		seen[f.Name] = true
	}
	d.Analyzer.Filters = append([]string(nil), d.Analyzer.Filters...)
	d.Fields = append([]FieldMapping(nil), d.Fields...)
	return &d, nil
}

// Body renders the create-index body. The analyzer is named after the index
// and is the default analyzer of every text field.
func (d *IndexDescriptor) Body() map[string]any {
	filters := d.Analyzer.Filters
	if filters == nil {
		filters = []string{}
	}
	props := make(map[string]any, len(d.Fields))
	for _, f := range d.Fields {
		props[f.Name] = fieldBody(f, d.Name)
	}
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   d.Shards,
			"number_of_replicas": d.Replicas,
			"analysis": map[string]any{
				"analyzer": map[string]any{
					d.Name: map[string]any{
						"type":      "custom",
						"tokenizer": d.Analyzer.Tokenizer,
						"filter":    filters,
					},
				},
			},
		},
		"mappings": map[string]any{
			"properties": props,
		},
	}
}

func fieldBody(f FieldMapping, analyzer string) map[string]any {
	switch f.Type {
	case "text", "string":
		return map[string]any{
			"type":     "text",
			"analyzer": analyzer,
			"fields":   map[string]any{"raw": map[string]any{"type": "keyword"}},
		}
	case "keyword":
		return map[string]any{
			"type":   "keyword",
			"fields": map[string]any{"raw": map[string]any{"type": "keyword"}},
		}
	default:
		return map[string]any{
			"type":   f.Type,
			"fields": map[string]any{"raw": map[string]any{"type": f.Type}},
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
