// Package directory resolves caller credentials and customer identities.
//
// Two kinds of records live here:
//   - Principals: operator-issued API identities looked up by public key.
//     A principal may hold capabilities such as "manage_payments".
//   - Customers: store users attached to payments, found or created by
//     email at purchase time.
package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/reaktivstudios/external-purchase-api/internal/idgen"
)

// Errors
var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrCustomerNotFound  = errors.New("customer not found")
	ErrCustomerExists    = errors.New("customer already exists")
)

// Capability is a named permission a principal may hold.
type Capability string

// CapManagePayments is required for every transaction type this API serves.
const CapManagePayments Capability = "manage_payments"

// Principal is an authenticated API caller.
type Principal struct {
	ID           int64        `json:"id"`
	Email        string       `json:"email"`
	PublicKey    string       `json:"-"`
	Capabilities []Capability `json:"capabilities"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// Has reports whether the principal holds the given capability.
func (p *Principal) Has(cap Capability) bool {
	for _, c := range p.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Customer is a store user a payment is attributed to.
type Customer struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Credential string    `json:"-"`      // generated password hash material, never returned
	External   bool      `json:"-"`      // created through this API, welcome email suppressed
	CreatedAt  time.Time `json:"createdAt"`
}

// Store persists principals and customers.
type Store interface {
	GetPrincipalByKey(ctx context.Context, key string) (*Principal, error)
	GetCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	CreateCustomer(ctx context.Context, c *Customer) error
}

// Directory wraps the store with resolution logic.
type Directory struct {
	store Store
}

// New creates a directory over the given store.
func New(store Store) *Directory {
	return &Directory{store: store}
}

// ResolveKey maps an opaque public key to a principal. The match is exact
// and case-sensitive. An empty key resolves to nothing rather than erroring;
// the validator owns turning "no principal" into a rejection.
func (d *Directory) ResolveKey(ctx context.Context, key string) (*Principal, error) {
	if key == "" {
		return nil, ErrPrincipalNotFound
	}
	return d.store.GetPrincipalByKey(ctx, key)
}

// FindOrCreateCustomer resolves a customer by email, creating one when
// absent. Created customers get a generated strong random credential and
// are flagged external so the usual welcome notification stays quiet.
//
// Concurrent purchases for the same email race on the insert; a loser that
// hits ErrCustomerExists re-reads and returns the winner's record.
func (d *Directory) FindOrCreateCustomer(ctx context.Context, email, first, last string) (*Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := d.store.GetCustomerByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrCustomerNotFound) {
		return nil, err
	}

	c := &Customer{
		Email:      email,
		FirstName:  first,
		LastName:   last,
		Credential: idgen.Hex(24),
		External:   true,
		CreatedAt:  time.Now(),
	}
	if err := d.store.CreateCustomer(ctx, c); err != nil {
		if errors.Is(err, ErrCustomerExists) {
			return d.store.GetCustomerByEmail(ctx, email)
		}
		return nil, err
	}
	return c, nil
}
