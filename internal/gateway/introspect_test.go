package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/MingChen0919/elastic-search/internal/backend"
	"github.com/MingChen0919/elastic-search/internal/backend/backendtest"
	"github.com/MingChen0919/elastic-search/internal/domain"
)

func TestListIndices(t *testing.T) {
	mem := backendtest.NewMemory("website", "entities", "gene_search_index", ".esgate-locks")
	g := New(mem)
	ctx := context.Background()

	got, err := g.ListIndices(ctx, "")
	if err != nil {
		t.Fatalf("ListIndices: %v", err)
	}
	want := []string{"entities", "gene_search_index", "website"}
	if len(got) != len(want) {
		t.Fatalf("indices=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("indices=%v, want %v", got, want)
		}
	}

	got, err = g.ListIndices(ctx, "*,-gene*")
	if err != nil {
		t.Fatalf("ListIndices pattern: %v", err)
	}
	if len(got) != 2 || got[0] != "entities" || got[1] != "website" {
		t.Fatalf("filtered indices=%v, want [entities website]", got)
	}
}

func TestGetIndexFields(t *testing.T) {
	mem := backendtest.NewMemory("genes")
	mem.Put("genes", "1", map[string]any{"uniquename": "g", "organism_genus": "Fraxinus", "annotations": ""})
	g := New(mem)
	ctx := context.Background()

	fields, err := g.GetIndexFields(ctx, "genes")
	if err != nil {
		t.Fatalf("GetIndexFields: %v", err)
	}
	want := []string{"annotations", "organism_genus", "uniquename"}
	if len(fields) != 3 {
		t.Fatalf("fields=%v, want %v", fields, want)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Fatalf("fields=%v, want %v", fields, want)
		}
	}

	missing, err := g.GetIndexFields(ctx, "nope")
	if err != nil {
		t.Fatalf("missing index: %v", err)
	}
	if missing == nil || len(missing) != 0 {
		t.Fatalf("missing index fields=%v, want empty list", missing)
	}
}

func TestIndexMappingProperties_Typed(t *testing.T) {
	var m indexMapping
	raw := `{"mappings":{"zzz":{"properties":{"z":{}}},"_default_":{"properties":{"a":{},"b":{}}}}}`
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatal(err)
	}
	props := m.properties()
	if len(props) != 2 {
		t.Fatalf("properties=%v, want the _default_ type's", props)
	}
}

type countingClient struct {
	*backendtest.Memory
	mappingCalls int
}

func (c *countingClient) GetMapping(ctx context.Context, index string) (json.RawMessage, error) {
	c.mappingCalls++
	return c.Memory.GetMapping(ctx, index)
}

func TestCapabilities_Cached(t *testing.T) {
	cc := &countingClient{Memory: backendtest.NewMemory("website")}
	g := New(cc, WithCapabilityTTL(time.Hour))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		caps, err := g.Capabilities(ctx)
		if err != nil {
			t.Fatalf("Capabilities: %v", err)
		}
		if !caps.HasWebsiteIndex || caps.HasEntityIndex {
			t.Fatalf("caps=%+v, want website only", caps)
		}
	}
	if cc.mappingCalls != 1 {
		t.Fatalf("mapping calls=%d, want 1", cc.mappingCalls)
	}

	g.InvalidateCapabilities()
	if _, err := g.Capabilities(ctx); err != nil {
		t.Fatal(err)
	}
	if cc.mappingCalls != 2 {
		t.Fatalf("mapping calls after invalidate=%d, want 2", cc.mappingCalls)
	}
}

func TestCapabilities_EngineDown(t *testing.T) {
	mem := backendtest.NewMemory()
	mem.Errors = map[string]error{"get_mapping": &backend.HTTPStatusError{StatusCode: 503, URL: "x"}}
	g := New(mem)
	if _, err := g.Capabilities(context.Background()); !errors.Is(err, domain.ErrEngineUnavailable) {
		t.Fatalf("err=%v, want ErrEngineUnavailable", err)
	}
}

type fakeLister struct {
	types, labels []string
	err           error
}

func (f fakeLister) NodeTypes(context.Context) ([]string, error)    { return f.types, f.err }
func (f fakeLister) BundleLabels(context.Context) ([]string, error) { return f.labels, f.err }

func TestCategories(t *testing.T) {
	lister := fakeLister{types: []string{"page", "article"}, labels: []string{"mRNA", "Gene"}}
	ctx := context.Background()

	both := New(backendtest.NewMemory("website", "entities"))
	tests := []struct {
		version int
		want    []string
	}{
		{0, []string{"Gene", "article", "mRNA", "page"}},
		{2, []string{"article", "page"}},
		{3, []string{"Gene", "mRNA"}},
	}
	for _, tt := range tests {
		got, err := both.Categories(ctx, lister, tt.version)
		if err != nil {
			t.Fatalf("version %d: %v", tt.version, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("version %d: categories=%v, want %v", tt.version, got, tt.want)
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Fatalf("version %d: categories=%v, want %v", tt.version, got, tt.want)
			}
		}
	}

	websiteOnly := New(backendtest.NewMemory("website"))
	got, err := websiteOnly.Categories(ctx, lister, 0)
	if err != nil || len(got) != 2 {
		t.Fatalf("website only: %v, %v", got, err)
	}

	failing := New(backendtest.NewMemory("website"))
	if _, err := failing.Categories(ctx, fakeLister{err: errors.New("db down")}, 0); err == nil {
		t.Fatal("expected lister error")
	}
}

func TestGetIndexSettingsAndMappings(t *testing.T) {
	g := New(backendtest.NewMemory("genes"))
	ctx := context.Background()

	if _, err := g.GetIndexSettings(ctx, ""); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err=%v, want ErrConfiguration", err)
	}
	raw, err := g.GetIndexSettings(ctx, "genes")
	if err != nil || len(raw) == 0 {
		t.Fatalf("GetIndexSettings=%s, %v", raw, err)
	}
	if _, err := g.GetIndexMappings(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}
