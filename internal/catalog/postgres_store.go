package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed catalog store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get loads a product and its files.
func (p *PostgresStore) Get(ctx context.Context, id int64) (*Product, error) {
	prod := &Product{}
	var bundleItems []int64
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, type, status, price::TEXT, licensing, COALESCE(bundle_items, '{}')
		FROM products WHERE id = $1
	`, id).Scan(&prod.ID, &prod.Name, &prod.Type, &prod.Status, &prod.Price,
		&prod.Licensing, pq.Array(&bundleItems))
	if err == sql.ErrNoRows {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	prod.BundleItems = bundleItems

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, path FROM product_files
		WHERE product_id = $1 ORDER BY position, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query product files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.Name, &f.Path); err != nil {
			return nil, err
		}
		prod.Files = append(prod.Files, f)
	}
	return prod, rows.Err()
}
