package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MingChen0919/elastic-search/internal/domain"
	"github.com/MingChen0919/elastic-search/internal/metrics"
	"github.com/MingChen0919/elastic-search/internal/query"
	"github.com/MingChen0919/elastic-search/internal/util"
)

// ListIndices returns the sorted names of the indices in the engine,
// without hidden (dot-prefixed) ones. A non-empty pattern keeps only names
// matching the wildcard.
func (g *Gateway) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	mappings, err := g.mappings(ctx, "")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(mappings))
	for name := range mappings {
		if strings.HasPrefix(name, ".") {
			continue
		}
		if pattern != "" && !util.MatchWildcard(pattern, name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// GetIndexSettings returns the raw settings of index.
func (g *Gateway) GetIndexSettings(ctx context.Context, index string) (json.RawMessage, error) {
	if index == "" {
		return nil, domain.ConfigurationError("index name is required")
	}
	var raw json.RawMessage
	err := g.observe("get_settings", func() error {
		var err error
		raw, err = g.client.GetSettings(ctx, index)
		return err
	})
	return raw, err
}

// GetIndexMappings returns the raw mappings of index.
func (g *Gateway) GetIndexMappings(ctx context.Context, index string) (json.RawMessage, error) {
	if index == "" {
		return nil, domain.ConfigurationError("index name is required")
	}
	var raw json.RawMessage
	err := g.observe("get_mapping", func() error {
		var err error
		raw, err = g.client.GetMapping(ctx, index)
		return err
	})
	return raw, err
}

// GetIndexFields returns the sorted top level field names of index. An
// index whose mapping cannot be found yields an empty list.
func (g *Gateway) GetIndexFields(ctx context.Context, index string) ([]string, error) {
	mappings, err := g.mappings(ctx, index)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	m, ok := mappings[index]
	if !ok {
		return []string{}, nil
	}
	props := m.properties()
	fields := make([]string, 0, len(props))
	for f := range props {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields, nil
}

// Capabilities reports which of the website and entities indices exist.
// The answer is cached for the configured TTL.
func (g *Gateway) Capabilities(ctx context.Context) (query.Capabilities, error) {
	if c, ok := g.caps.Get(capabilityKey); ok {
		metrics.CapabilityCacheTotal.WithLabelValues("hit").Inc()
		return c, nil
	}
	metrics.CapabilityCacheTotal.WithLabelValues("miss").Inc()
	indices, err := g.ListIndices(ctx, "")
	if err != nil {
		return query.Capabilities{}, fmt.Errorf("resolving index capabilities: %w", err)
	}
	c := query.CapabilitiesFrom(indices)
	g.caps.Add(capabilityKey, c)
	return c, nil
}

// InvalidateCapabilities drops the cached capabilities.
func (g *Gateway) InvalidateCapabilities() {
	g.caps.Remove(capabilityKey)
}

// CategoryLister lists the category labels stored in the source database.
type CategoryLister interface {
	NodeTypes(ctx context.Context) ([]string, error)
	BundleLabels(ctx context.Context) ([]string, error)
}

// Categories returns the sorted categories that can be used to filter a web
// search: node types when the website index exists and bundle labels when
// the entities index exists. version 2 or 3 restricts the result to one of
// the two; 0 means both.
func (g *Gateway) Categories(ctx context.Context, lister CategoryLister, version int) ([]string, error) {
	caps, err := g.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	if caps.HasWebsiteIndex && (version == 0 || version == 2) {
		types, err := lister.NodeTypes(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing node types: %w", err)
		}
		out = append(out, types...)
	}
	if caps.HasEntityIndex && (version == 0 || version == 3) {
		labels, err := lister.BundleLabels(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing bundle labels: %w", err)
		}
		out = append(out, labels...)
	}
	sort.Strings(out)
	return out, nil
}

// indexMapping is one entry of a _mapping response. Typeless engines put
// properties directly under mappings, older ones under a type name.
type indexMapping struct {
	Mappings map[string]json.RawMessage `json:"mappings"`
}

func (m indexMapping) properties() map[string]json.RawMessage {
	var props map[string]json.RawMessage
	if raw, ok := m.Mappings["properties"]; ok {
		if json.Unmarshal(raw, &props) == nil {
			return props
		}
	}
	types := make([]string, 0, len(m.Mappings))
	for t := range m.Mappings {
		types = append(types, t)
	}
	sort.Strings(types)
	// Prefer _default_, then the first type by name.
	sort.SliceStable(types, func(i, j int) bool { return types[i] == "_default_" && types[j] != "_default_" })
	for _, t := range types {
		var typed struct {
			Properties map[string]json.RawMessage `json:"properties"`
		}
		if json.Unmarshal(m.Mappings[t], &typed) == nil && typed.Properties != nil {
			return typed.Properties
		}
	}
	return nil
}

func (g *Gateway) mappings(ctx context.Context, index string) (map[string]indexMapping, error) {
	var raw json.RawMessage
	err := g.observe("get_mapping", func() error {
		var err error
		raw, err = g.client.GetMapping(ctx, index)
		return err
	})
	if err != nil {
		return nil, err
	}
	var out map[string]indexMapping
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding mappings: %w", err)
	}
	return out, nil
}
