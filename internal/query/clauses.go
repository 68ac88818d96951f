package query

import "strings"

// Clause is a single engine query clause, e.g. {"query_string": {...}}.
type Clause = map[string]any

const (
	// DefaultFragmentSize is the highlight fragment size used for full text search.
	DefaultFragmentSize = 150
	// DefaultFrom and DefaultSize form the window used when none is given.
	DefaultFrom = 0
	DefaultSize = 1000
	// MaxSize caps the page size of a single request.
	MaxSize = 10000
	// MaxResultWindow bounds from+size and the total reported by pagination.
	MaxResultWindow = 1000000
)

// Field names holding the category of a document in each kind of index.
const (
	WebsiteCategoryField = "type"
	EntityCategoryField  = "bundle_label"
)

// FreeText builds a query_string clause over targetField. Terms are
// combined with AND.
func FreeText(text, targetField string) Clause {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return Clause{
		"query_string": map[string]any{
			"default_field":    targetField,
			"query":            SanitizeQueryText(text),
			"default_operator": "AND",
		},
	}
}

// FieldQuery builds a query_string clause matching value against field.
// Empty field or value yields no clause.
func FieldQuery(field, value string) Clause {
	if field == "" {
		return nil
	}
	return FreeText(value, field)
}

// CategoryFilter builds the clause restricting results to a category. The
// field queried depends on which kinds of index are present: website
// indices store it in "type", entity indices in "bundle_label".
func CategoryFilter(category string, caps Capabilities) Clause {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil
	}
	qs := map[string]any{
		"query":            `"` + strings.ReplaceAll(category, `"`, "") + `"`,
		"default_operator": "AND",
	}
	switch {
	case caps.HasWebsiteIndex && caps.HasEntityIndex:
		qs["fields"] = []string{WebsiteCategoryField, EntityCategoryField}
	case caps.HasEntityIndex:
		qs["default_field"] = EntityCategoryField
	case caps.HasWebsiteIndex:
		qs["default_field"] = WebsiteCategoryField
	default:
		return nil
	}
	return Clause{"query_string": qs}
}

// HighlightField configures highlighting of one field.
type HighlightField struct {
	Name         string
	FragmentSize int
	PreTags      []string
	PostTags     []string
}

// Highlight is the highlight section of a search request.
type Highlight struct {
	PreTags  []string
	PostTags []string
	Fields   []HighlightField
}

// ContentHighlight highlights a single full text field using <em><b> tags.
// A non-positive fragmentSize falls back to DefaultFragmentSize.
func ContentHighlight(field string, fragmentSize int) *Highlight {
	if field == "" {
		return nil
	}
	if fragmentSize <= 0 {
		fragmentSize = DefaultFragmentSize
	}
	return &Highlight{
		PreTags:  []string{"<em><b>"},
		PostTags: []string{"</b></em>"},
		Fields:   []HighlightField{{Name: field, FragmentSize: fragmentSize}},
	}
}

// TableHighlight highlights every given field with its own tag pair, as used
// when rendering a result table.
func TableHighlight(fields []string) *Highlight {
	h := &Highlight{}
	for _, f := range fields {
		if f == "" {
			continue
		}
		h.Fields = append(h.Fields, HighlightField{
			Name:     f,
			PreTags:  []string{"<em>", "<strong>"},
			PostTags: []string{"</em>", "</strong>"},
		})
	}
	if len(h.Fields) == 0 {
		return nil
	}
	return h
}

// Body renders the highlight section.
func (h *Highlight) Body() map[string]any {
	if h == nil || len(h.Fields) == 0 {
		return nil
	}
	fields := make(map[string]any, len(h.Fields))
	for _, f := range h.Fields {
		spec := map[string]any{}
		if f.FragmentSize > 0 {
			spec["fragment_size"] = f.FragmentSize
		}
		if len(f.PreTags) > 0 {
			spec["pre_tags"] = f.PreTags
		}
		if len(f.PostTags) > 0 {
			spec["post_tags"] = f.PostTags
		}
		fields[f.Name] = spec
	}
	body := map[string]any{"fields": fields}
	if len(h.PreTags) > 0 {
		body["pre_tags"] = h.PreTags
	}
	if len(h.PostTags) > 0 {
		body["post_tags"] = h.PostTags
	}
	return body
}

func (h *Highlight) clone() *Highlight {
	if h == nil {
		return nil
	}
	c := &Highlight{
		PreTags:  append([]string(nil), h.PreTags...),
		PostTags: append([]string(nil), h.PostTags...),
		Fields:   make([]HighlightField, len(h.Fields)),
	}
	copy(c.Fields, h.Fields)
	return c
}

// SortSpec orders results by a field.
type SortSpec struct {
	Field string
	Order string
}

// Sort orders on the unanalyzed "raw" sub-field of field so ordering is
// exact and lexical. Direction is ascending unless it is exactly "desc".
func Sort(field, direction string) *SortSpec {
	if field == "" {
		return nil
	}
	order := "asc"
	if direction == "desc" {
		order = "desc"
	}
	return &SortSpec{Field: field + ".raw", Order: order}
}

// Body renders the sort entry.
func (s SortSpec) Body() map[string]any {
	return map[string]any{s.Field: s.Order}
}

// Window returns the (from, size) pair of a request. With fewer than two
// values it returns (DefaultFrom, DefaultSize). Out of range values are
// clamped rather than rejected.
func Window(pair ...int) (from, size int) {
	if len(pair) < 2 {
		return DefaultFrom, DefaultSize
	}
	from, size = pair[0], pair[1]
	if from < 0 {
		from = 0
	}
	if size < 1 {
		size = 1
	}
	if size > MaxSize {
		size = MaxSize
	}
	return from, size
}
