package query

import (
	"github.com/MingChen0919/elastic-search/internal/domain"
)

// Request is an immutable search request. It is produced by a Builder and
// handed explicitly to the gateway; With* methods return modified copies.
type Request struct {
	indices   []string
	docType   string
	must      []Clause
	should    []Clause
	highlight *Highlight
	sort      []SortSpec
	from      int
	size      int
}

// Indices returns the target indices in order.
func (r *Request) Indices() []string { return append([]string(nil), r.indices...) }

// Type returns the optional document type.
func (r *Request) Type() string { return r.docType }

// From returns the offset of the first hit.
func (r *Request) From() int { return r.from }

// Size returns the number of hits requested.
func (r *Request) Size() int { return r.size }

// HasHighlight reports whether the request asks for highlighted fragments.
func (r *Request) HasHighlight() bool { return r.highlight != nil && len(r.highlight.Fields) > 0 }

// Validate checks the structural invariants required before execution.
func (r *Request) Validate() error {
	if r == nil {
		return domain.StateError("search request has not been built")
	}
	if len(r.indices) == 0 {
		return domain.ConfigurationError("search request has no target index")
	}
	for _, idx := range r.indices {
		if idx == "" {
			return domain.ConfigurationError("search request has an empty index name")
		}
	}
	if r.from+r.size > MaxResultWindow {
		return domain.InputRejected("result window from=%d size=%d exceeds %d", r.from, r.size, MaxResultWindow)
	}
	return nil
}

// WithWindow returns a copy of the request with a new from/size window,
// clamped the same way as Window.
func (r *Request) WithWindow(from, size int) *Request {
	c := r.clone()
	c.from, c.size = Window(from, size)
	return c
}

// Body renders the full search body.
func (r *Request) Body() map[string]any {
	body := map[string]any{
		"from":  r.from,
		"size":  r.size,
		"query": r.queryBody(),
	}
	if h := r.highlight.Body(); h != nil {
		body["highlight"] = h
	}
	if len(r.sort) > 0 {
		sorts := make([]map[string]any, 0, len(r.sort))
		for _, s := range r.sort {
			sorts = append(sorts, s.Body())
		}
		body["sort"] = sorts
	}
	return body
}

// CountBody renders the body for a count call. Window, highlight and sort
// are dropped so the count does not depend on pagination.
func (r *Request) CountBody() map[string]any {
	return map[string]any{"query": r.queryBody()}
}

func (r *Request) queryBody() map[string]any {
	if len(r.must) == 0 && len(r.should) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}
	b := map[string]any{}
	if len(r.must) > 0 {
		b["must"] = r.must
	}
	if len(r.should) > 0 {
		b["should"] = r.should
		if len(r.must) == 0 {
			b["minimum_should_match"] = 1
		}
	}
	return map[string]any{"bool": b}
}

func (r *Request) clone() *Request {
	return &Request{
		indices:   append([]string(nil), r.indices...),
		docType:   r.docType,
		must:      append([]Clause(nil), r.must...),
		should:    append([]Clause(nil), r.should...),
		highlight: r.highlight.clone(),
		sort:      append([]SortSpec(nil), r.sort...),
		from:      r.from,
		size:      r.size,
	}
}

// Builder accumulates search criteria. Nil clauses and empty values are
// ignored so optional input degrades to no clause.
type Builder struct {
	req Request
}

// NewBuilder starts a request over the given indices with the default window.
func NewBuilder(indices ...string) *Builder {
	b := &Builder{}
	b.req.from, b.req.size = Window()
	return b.Indices(indices...)
}

// Indices appends target indices.
func (b *Builder) Indices(indices ...string) *Builder {
	b.req.indices = append(b.req.indices, indices...)
	return b
}

// Type sets the document type.
func (b *Builder) Type(t string) *Builder {
	b.req.docType = t
	return b
}

// Must adds a clause every hit has to match.
func (b *Builder) Must(c Clause) *Builder {
	if len(c) > 0 {
		b.req.must = append(b.req.must, c)
	}
	return b
}

// Should adds a clause of which at least one has to match.
func (b *Builder) Should(c Clause) *Builder {
	if len(c) > 0 {
		b.req.should = append(b.req.should, c)
	}
	return b
}

// Where requires field to match value.
func (b *Builder) Where(field, value string) *Builder {
	return b.Must(FieldQuery(field, value))
}

// OrWhere adds field matching value as an alternative.
func (b *Builder) OrWhere(field, value string) *Builder {
	return b.Should(FieldQuery(field, value))
}

// Highlight sets the highlight section.
func (b *Builder) Highlight(h *Highlight) *Builder {
	b.req.highlight = h.clone()
	return b
}

// SortBy adds a sort on the raw sub-field of field.
func (b *Builder) SortBy(field, direction string) *Builder {
	if s := Sort(field, direction); s != nil {
		b.req.sort = append(b.req.sort, *s)
	}
	return b
}

// Window sets the from/size window. See Window for defaults and clamping.
func (b *Builder) Window(pair ...int) *Builder {
	b.req.from, b.req.size = Window(pair...)
	return b
}

// Build returns the request. The builder may keep being used afterwards
// without affecting the returned value.
func (b *Builder) Build() *Request {
	return b.req.clone()
}

// WebsiteSearch builds the full text search over the website and entity
// indices. When indices is empty the indices present according to caps are
// searched, falling back to the website index.
func WebsiteSearch(terms, category string, caps Capabilities, indices []string, window ...int) *Request {
	if len(indices) == 0 {
		indices = caps.Indices()
	}
	if len(indices) == 0 {
		indices = []string{WebsiteIndex}
	}
	return NewBuilder(indices...).
		Must(FreeText(terms, "content")).
		Must(CategoryFilter(category, caps)).
		Highlight(ContentHighlight("content", DefaultFragmentSize)).
		Window(window...).
		Build()
}

// TableOptions controls the shape of a single index table search.
type TableOptions struct {
	Type            string
	SortField       string
	SortDirection   string
	HighlightFields []string
	Window          []int
}

// TableSearch builds a search over one index from field/value criteria.
// Criteria with empty values are skipped.
func TableSearch(index string, criteria map[string]string, opts TableOptions) *Request {
	b := NewBuilder(index).Type(opts.Type)
	for _, field := range sortedKeys(criteria) {
		b.Where(field, criteria[field])
	}
	if len(opts.HighlightFields) > 0 {
		b.Highlight(TableHighlight(opts.HighlightFields))
	}
	b.SortBy(opts.SortField, opts.SortDirection)
	return b.Window(opts.Window...).Build()
}
