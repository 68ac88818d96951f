package query

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MingChen0919/elastic-search/internal/domain"
)

func TestSanitizeQueryText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"kinase", "kinase"},
		{"a+b-c", "a b c"},
		{`GO:0001`, `GO\:0001`},
		{`a\+b`, "a b"},
		{`a\\b`, "a b"},
		{`trailing\`, "trailing"},
		{`x\:y`, `x\:y`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeQueryText(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeQueryText_Idempotent(t *testing.T) {
	inputs := []string{
		`GO:0001 + kinase`, `a\\\:b`, `--x--`, `\\\\`, `a:b:c`, `p\-q`, `::\`, "plain words",
	}
	for _, in := range inputs {
		once := SanitizeQueryText(in)
		assert.Equal(t, once, SanitizeQueryText(once), "input %q", in)
		assert.NotContains(t, once, "+")
		assert.NotContains(t, once, "-")
		for i := 0; i < len(once); i++ {
			if once[i] == ':' {
				require.True(t, i > 0 && once[i-1] == '\\', "unescaped ':' in %q", once)
			}
			if once[i] == '\\' {
				require.True(t, i+1 < len(once) && once[i+1] == ':', "stray '\\' in %q", once)
			}
		}
	}
}

func TestFreeText(t *testing.T) {
	c := FreeText("GO:1 kinase", "content")
	qs := c["query_string"].(map[string]any)
	assert.Equal(t, "AND", qs["default_operator"])
	assert.Equal(t, "content", qs["default_field"])
	assert.Equal(t, `GO\:1 kinase`, qs["query"])

	assert.Nil(t, FreeText("   ", "content"))
}

func TestCategoryFilter(t *testing.T) {
	both := CategoryFilter("Gene", Capabilities{HasWebsiteIndex: true, HasEntityIndex: true})
	qs := both["query_string"].(map[string]any)
	assert.Equal(t, []string{"type", "bundle_label"}, qs["fields"])
	assert.NotContains(t, qs, "default_field")
	assert.Equal(t, `"Gene"`, qs["query"])

	web := CategoryFilter("page", Capabilities{HasWebsiteIndex: true})
	assert.Equal(t, "type", web["query_string"].(map[string]any)["default_field"])

	ent := CategoryFilter("mRNA", Capabilities{HasEntityIndex: true})
	assert.Equal(t, "bundle_label", ent["query_string"].(map[string]any)["default_field"])

	assert.Nil(t, CategoryFilter("", Capabilities{HasWebsiteIndex: true}))
	assert.Nil(t, CategoryFilter("Gene", Capabilities{}))
}

func TestHighlight(t *testing.T) {
	h := ContentHighlight("content", 0).Body()
	assert.Equal(t, []string{"<em><b>"}, h["pre_tags"])
	fields := h["fields"].(map[string]any)
	assert.Equal(t, DefaultFragmentSize, fields["content"].(map[string]any)["fragment_size"])

	th := TableHighlight([]string{"name", "", "uniquename"}).Body()
	tf := th["fields"].(map[string]any)
	assert.Len(t, tf, 2)
	assert.Equal(t, []string{"</em>", "</strong>"}, tf["name"].(map[string]any)["post_tags"])

	assert.Nil(t, TableHighlight(nil))
}

func TestSort(t *testing.T) {
	assert.Equal(t, &SortSpec{Field: "name.raw", Order: "asc"}, Sort("name", ""))
	assert.Equal(t, "asc", Sort("name", "DESC").Order)
	assert.Equal(t, "desc", Sort("name", "desc").Order)
	assert.Nil(t, Sort("", "desc"))
}

func TestWindow(t *testing.T) {
	from, size := Window()
	assert.Equal(t, 0, from)
	assert.Equal(t, 1000, size)

	from, size = Window(5)
	assert.Equal(t, 0, from)
	assert.Equal(t, 1000, size)

	from, size = Window(-3, 50000)
	assert.Equal(t, 0, from)
	assert.Equal(t, MaxSize, size)

	_, size = Window(10, 0)
	assert.Equal(t, 1, size)
}

func TestBuilder_Body(t *testing.T) {
	req := NewBuilder("genes").
		Type("genes").
		Where("name", "abc").
		Where("organism", "").
		OrWhere("uniquename", "x").
		Highlight(TableHighlight([]string{"name"})).
		SortBy("name", "desc").
		Window(20, 10).
		Build()

	require.NoError(t, req.Validate())
	body := req.Body()
	assert.Equal(t, 20, body["from"])
	assert.Equal(t, 10, body["size"])
	b := body["query"].(map[string]any)["bool"].(map[string]any)
	assert.Len(t, b["must"], 1)
	assert.Len(t, b["should"], 1)
	assert.Contains(t, body, "highlight")
	assert.Equal(t, []map[string]any{{"name.raw": "desc"}}, body["sort"])

	_, err := json.Marshal(body)
	require.NoError(t, err)
}

func TestBuilder_MatchAllWhenNoClauses(t *testing.T) {
	req := NewBuilder("website").Build()
	assert.Equal(t, map[string]any{"match_all": map[string]any{}}, req.Body()["query"])
}

func TestRequest_CountBodyDropsWindow(t *testing.T) {
	req := NewBuilder("website").Where("content", "x").Highlight(ContentHighlight("content", 0)).Window(30, 10).Build()
	cb := req.CountBody()
	assert.Len(t, cb, 1)
	assert.Contains(t, cb, "query")
}

func TestRequest_Immutable(t *testing.T) {
	b := NewBuilder("a")
	first := b.Build()
	b.Where("f", "v").Indices("b")
	assert.Equal(t, []string{"a"}, first.Indices())

	moved := first.WithWindow(100, 5)
	assert.Equal(t, 0, first.From())
	assert.Equal(t, 100, moved.From())
	assert.Equal(t, 5, moved.Size())
}

func TestRequest_Validate(t *testing.T) {
	var nilReq *Request
	assert.ErrorIs(t, nilReq.Validate(), domain.ErrState)

	assert.ErrorIs(t, NewBuilder().Build().Validate(), domain.ErrConfiguration)
	assert.ErrorIs(t, NewBuilder("").Build().Validate(), domain.ErrConfiguration)

	far := NewBuilder("a").Window(MaxResultWindow, 10).Build()
	assert.ErrorIs(t, far.Validate(), domain.ErrInputRejected)
}

func TestWebsiteSearch(t *testing.T) {
	caps := Capabilities{HasWebsiteIndex: true, HasEntityIndex: true}
	req := WebsiteSearch("kinase", "Gene", caps, nil, 0, 10)
	assert.Equal(t, []string{"website", "entities"}, req.Indices())
	assert.True(t, req.HasHighlight())
	must := req.Body()["query"].(map[string]any)["bool"].(map[string]any)["must"].([]Clause)
	assert.Len(t, must, 2)

	fallback := WebsiteSearch("x", "", Capabilities{}, nil)
	assert.Equal(t, []string{"website"}, fallback.Indices())
}

func TestTableSearch(t *testing.T) {
	req := TableSearch("genes", map[string]string{"organism": "Arabidopsis", "name": "", "uniquename": "AT1"},
		TableOptions{SortField: "uniquename", HighlightFields: []string{"uniquename"}, Window: []int{0, 25}})
	body := req.Body()
	must := body["query"].(map[string]any)["bool"].(map[string]any)["must"].([]Clause)
	require.Len(t, must, 2)
	first := must[0]["query_string"].(map[string]any)
	assert.Equal(t, "organism", first["default_field"])
	assert.Equal(t, 25, body["size"])
}

func TestCapabilitiesFrom(t *testing.T) {
	c := CapabilitiesFrom([]string{"genes", "entities"})
	assert.False(t, c.HasWebsiteIndex)
	assert.True(t, c.HasEntityIndex)
	assert.Equal(t, []string{"entities"}, c.Indices())
}

func TestIndexDescriptor(t *testing.T) {
	d, err := NewIndexDescriptor("genes").
		TokenFilters("lowercase", "asciifolding").
		Field("uniquename", "text").
		Field("seqlen", "integer").
		Build()
	require.NoError(t, err)
	assert.Equal(t, DefaultShards, d.Shards)
	assert.Equal(t, DefaultReplicas, d.Replicas)

	body := d.Body()
	settings := body["settings"].(map[string]any)
	assert.Equal(t, 5, settings["number_of_shards"])
	an := settings["analysis"].(map[string]any)["analyzer"].(map[string]any)["genes"].(map[string]any)
	assert.Equal(t, "standard", an["tokenizer"])
	assert.Equal(t, []string{"lowercase", "asciifolding"}, an["filter"])

	props := body["mappings"].(map[string]any)["properties"].(map[string]any)
	un := props["uniquename"].(map[string]any)
	assert.Equal(t, "keyword", un["fields"].(map[string]any)["raw"].(map[string]any)["type"])
	sl := props["seqlen"].(map[string]any)
	assert.Equal(t, "integer", sl["fields"].(map[string]any)["raw"].(map[string]any)["type"])
}

func TestIndexDescriptor_Invalid(t *testing.T) {
	_, err := NewIndexDescriptor("").Build()
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewIndexDescriptor("x").Shards(0).Build()
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewIndexDescriptor("x").Field("a", "text").Field("a", "keyword").Build()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "duplicate"))
}
