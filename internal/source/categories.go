package source

import "context"

// Categories reads the category labels of website and entity documents
// from the Drupal tables.
type Categories struct {
	src Source
}

func NewCategories(src Source) *Categories {
	return &Categories{src: src}
}

// NodeTypes returns the distinct node types.
func (c *Categories) NodeTypes(ctx context.Context) ([]string, error) {
	return c.src.Strings(ctx, "SELECT DISTINCT(type) FROM node")
}

// BundleLabels returns the distinct Tripal bundle labels.
func (c *Categories) BundleLabels(ctx context.Context) ([]string, error) {
	return c.src.Strings(ctx, "SELECT DISTINCT(label) FROM tripal_bundle")
}
