package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneIndexDescriptor(t *testing.T) {
	d, err := GeneIndexDescriptor("gene_search_index", 5, 0)
	require.NoError(t, err)

	body := d.Body()
	props := body["mappings"].(map[string]any)["properties"].(map[string]any)
	assert.Contains(t, props, "uniquename")
	assert.Contains(t, props, "blast_hit_descriptions")
	assert.Equal(t, "integer", props["feature_id"].(map[string]any)["type"])

	analyzer := body["settings"].(map[string]any)["analysis"].(map[string]any)["analyzer"].(map[string]any)
	assert.Contains(t, analyzer, "gene_search_index")
}

func TestGeneIndexDescriptor_Invalid(t *testing.T) {
	_, err := GeneIndexDescriptor("", 5, 0)
	assert.Error(t, err)
	_, err = GeneIndexDescriptor("gene_search_index", 0, 0)
	assert.Error(t, err)
}
