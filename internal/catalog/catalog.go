// Package catalog provides read-only access to the product catalog.
//
// Products are owned by the storefront; this API only reads them to
// validate purchases and assemble download manifests. A product is either
// a plain download ("default") or a bundle whose file set is the union of
// its children's files.
package catalog

import (
	"context"
	"errors"
)

// Errors
var (
	ErrProductNotFound = errors.New("product not found")
	ErrEmptyBundle     = errors.New("bundle has no published children")
)

// Product types
const (
	TypeDefault = "default"
	TypeBundle  = "bundle"
)

// Product statuses
const (
	StatusPublished = "publish"
	StatusDraft     = "draft"
)

// File is a single downloadable file attached to a product.
type File struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"` // storage path the signed URL resolves to
}

// Product is a catalog entry.
type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`   // "default" or "bundle"
	Status      string  `json:"status"` // "publish" or "draft"
	Price       string  `json:"price"`  // decimal string, e.g. "25.00"
	Licensing   bool    `json:"licensing"`
	BundleItems []int64 `json:"bundleItems,omitempty"`
	Files       []File  `json:"files,omitempty"`
}

// Published reports whether the product is live and purchasable.
func (p *Product) Published() bool {
	return p.Status == StatusPublished
}

// FileSet is the resolved downloadable content for one product,
// carrying its own id and name so bundles stay attributable per child.
type FileSet struct {
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Licensing   bool   `json:"licensing"`
	Files       []File `json:"files"`
}

// Store reads products.
type Store interface {
	Get(ctx context.Context, id int64) (*Product, error)
}

// Catalog wraps the store with bundle resolution.
type Catalog struct {
	store Store
}

// New creates a catalog over the given store.
func New(store Store) *Catalog {
	return &Catalog{store: store}
}

// Get returns the product with the given id.
func (c *Catalog) Get(ctx context.Context, id int64) (*Product, error) {
	return c.store.Get(ctx, id)
}

// ResolveFiles expands a product into per-product file sets. A default
// product yields one set (its own files); a bundle yields one set per
// published child. A bundle that expands to nothing is a catalog
// misconfiguration and returns ErrEmptyBundle rather than an empty slice.
func (c *Catalog) ResolveFiles(ctx context.Context, p *Product) ([]FileSet, error) {
	if p.Type != TypeBundle {
		return []FileSet{{
			ProductID:   p.ID,
			ProductName: p.Name,
			Licensing:   p.Licensing,
			Files:       p.Files,
		}}, nil
	}

	var sets []FileSet
	for _, childID := range p.BundleItems {
		child, err := c.store.Get(ctx, childID)
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				continue // stale bundle reference, skip
			}
			return nil, err
		}
		if !child.Published() {
			continue
		}
		sets = append(sets, FileSet{
			ProductID:   child.ID,
			ProductName: child.Name,
			Licensing:   child.Licensing,
			Files:       child.Files,
		})
	}
	if len(sets) == 0 {
		return nil, ErrEmptyBundle
	}
	return sets, nil
}
