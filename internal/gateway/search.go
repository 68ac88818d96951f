package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MingChen0919/elastic-search/internal/domain"
	"github.com/MingChen0919/elastic-search/internal/query"
)

// HighlightField is the synthetic result field holding merged highlights.
const HighlightField = "highlight"

// highlightJoiner separates fragments of one field in the merged highlight.
const highlightJoiner = "..."

// Result is the _source of one hit, plus the merged highlight when the hit
// carried any.
type Result = map[string]any

// Search executes req and returns the _source of every hit. Highlight
// fragments are merged into a single string under the "highlight" field:
// fragments of a field are joined with "..." and fields are concatenated in
// the order the engine returned them.
func (g *Gateway) Search(ctx context.Context, req *query.Request) ([]Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req.Body())
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	var results []Result
	err = g.observe("search", func() error {
		resp, err := g.client.Search(ctx, req.Indices(), req.Type(), body)
		if err != nil {
			return err
		}
		results = make([]Result, 0, len(resp.Hits.Hits))
		for _, raw := range resp.Hits.Hits {
			r, err := shapeHit(raw)
			if err != nil {
				return err
			}
			results = append(results, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Count returns the number of documents matching req. The window,
// highlight and sort of req do not take part.
func (g *Gateway) Count(ctx context.Context, req *query.Request) (int, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	body, err := json.Marshal(req.CountBody())
	if err != nil {
		return 0, fmt.Errorf("encoding count request: %w", err)
	}
	var n int
	err = g.observe("count", func() error {
		var err error
		n, err = g.client.Count(ctx, req.Indices(), req.Type(), body)
		return err
	})
	return n, err
}

// Page is one page of results.
type Page struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Page    int      `json:"page"`  // 1-based
	Pages   int      `json:"pages"` // ceil(Total / PerPage)
	Pager   Pager    `json:"pager"`
}

// Paginate counts req, picks the current page with pc and returns that page.
// The total is capped at query.MaxResultWindow and perPage may not exceed
// query.MaxSize.
func (g *Gateway) Paginate(ctx context.Context, req *query.Request, perPage int, pc PageComputer) (*Page, error) {
	if perPage <= 0 || perPage > query.MaxSize {
		return nil, domain.InputRejected("per page must be between 1 and %d, got %d", query.MaxSize, perPage)
	}
	if pc == nil {
		pc = RequestedPage(0)
	}
	total, err := g.Count(ctx, req)
	if err != nil {
		return nil, err
	}
	total = min(total, query.MaxResultWindow)

	current := max(pc.CurrentPage(total, perPage), 0)
	from := perPage * current
	size := perPage
	if from+size > query.MaxResultWindow {
		size = max(query.MaxResultWindow-from, 1)
	}

	results, err := g.Search(ctx, req.WithWindow(from, size))
	if err != nil {
		return nil, err
	}
	pages := pageCount(total, perPage)
	return &Page{
		Results: results,
		Total:   total,
		Page:    current + 1,
		Pages:   pages,
		Pager:   newPager(current, pages, perPage, total),
	}, nil
}

// WebResults is the response of SearchWebIndices.
type WebResults struct {
	Count   int      `json:"count"`
	Results []Result `json:"results"`
}

// SearchWebIndices runs a full text search over whichever of the website and
// entities indices exist and returns at most size results with the total count.
func (g *Gateway) SearchWebIndices(ctx context.Context, terms string, size int, category string) (*WebResults, error) {
	caps, err := g.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	indices := caps.Indices()
	if len(indices) == 0 {
		return nil, domain.ConfigurationError("neither the %s nor the %s index exists", query.WebsiteIndex, query.EntitiesIndex)
	}
	req := query.WebsiteSearch(terms, category, caps, indices, 0, size)
	count, err := g.Count(ctx, req)
	if err != nil {
		return nil, err
	}
	results, err := g.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return &WebResults{Count: count, Results: results}, nil
}

type hit struct {
	Source    map[string]any  `json:"_source"`
	Highlight json.RawMessage `json:"highlight"`
}

func shapeHit(raw json.RawMessage) (Result, error) {
	var h hit
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("decoding hit: %w", err)
	}
	r := h.Source
	if r == nil {
		r = make(Result)
	}
	if len(h.Highlight) > 0 && !bytes.Equal(h.Highlight, []byte("null")) {
		merged, err := mergeHighlight(h.Highlight)
		if err != nil {
			return nil, err
		}
		r[HighlightField] = merged
	}
	return r, nil
}

// mergeHighlight walks the highlight object in document order, since a Go
// map would lose the field order the engine returned.
func mergeHighlight(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return "", fmt.Errorf("decoding highlight: %w", err)
	}
	var b strings.Builder
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return "", fmt.Errorf("decoding highlight field: %w", err)
		}
		var fragments []string
		if err := dec.Decode(&fragments); err != nil {
			return "", fmt.Errorf("decoding highlight fragments: %w", err)
		}
		b.WriteString(strings.Join(fragments, highlightJoiner))
	}
	return b.String(), nil
}

func isUnavailable(err error) bool {
	return errors.Is(err, domain.ErrEngineUnavailable)
}
