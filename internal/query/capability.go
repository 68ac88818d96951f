package query

// Names of the indices that hold website content and Tripal entities.
const (
	WebsiteIndex  = "website"
	EntitiesIndex = "entities"
)

// Capabilities describes which kinds of index are present in the engine.
// It is resolved once per request build and passed to clause builders.
type Capabilities struct {
	HasWebsiteIndex bool
	HasEntityIndex  bool
}

// CapabilitiesFrom derives the capability descriptor from an index listing.
func CapabilitiesFrom(indices []string) Capabilities {
	var c Capabilities
	for _, name := range indices {
		switch name {
		case WebsiteIndex:
			c.HasWebsiteIndex = true
		case EntitiesIndex:
			c.HasEntityIndex = true
		}
	}
	return c
}

// Indices returns the searchable web indices in a stable order.
func (c Capabilities) Indices() []string {
	var out []string
	if c.HasWebsiteIndex {
		out = append(out, WebsiteIndex)
	}
	if c.HasEntityIndex {
		out = append(out, EntitiesIndex)
	}
	return out
}
