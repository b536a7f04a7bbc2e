package directory

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

// NewPostgresStore creates a new PostgreSQL-backed directory store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetPrincipalByKey looks up a principal by exact public key match.
func (p *PostgresStore) GetPrincipalByKey(ctx context.Context, key string) (*Principal, error) {
	pr := &Principal{}
	var caps []string
	err := p.db.QueryRowContext(ctx, `
		SELECT id, email, public_key, capabilities, created_at
		FROM principals WHERE public_key = $1
	`, key).Scan(&pr.ID, &pr.Email, &pr.PublicKey, pq.Array(&caps), &pr.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query principal: %w", err)
	}
	for _, c := range caps {
		pr.Capabilities = append(pr.Capabilities, Capability(c))
	}
	return pr, nil
}

// GetCustomerByEmail looks up a customer by email (case-insensitive).
func (p *PostgresStore) GetCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	c := &Customer{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, external, created_at
		FROM customers WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.External, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query customer: %w", err)
	}
	return c, nil
}

// CreateCustomer inserts a new customer. A unique index on LOWER(email)
// turns concurrent creates into ErrCustomerExists for the loser.
func (p *PostgresStore) CreateCustomer(ctx context.Context, c *Customer) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO customers (email, first_name, last_name, credential, external, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, c.Email, c.FirstName, c.LastName, c.Credential, c.External, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrCustomerExists
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}
