// Package ledger stores payment records for externally-sourced sales.
//
// Lifecycle:
//  1. A purchase inserts a payment in state "pending"
//  2. The payment transitions to "complete", which bumps sales/earnings
//  3. A refund transitions it to "refunded" (terminal)
//
// Refunded is a one-way door: the ledger never moves a refunded payment
// back to any other state.
package ledger

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrInvalidTransition = errors.New("invalid payment status transition")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Payment statuses
const (
	StatusPending  = "pending"
	StatusComplete = "complete"
	StatusRefunded = "refunded"
)

// GatewayExternal tags payments created through this API.
const GatewayExternal = "external"

// LineItem is one cart row on a payment.
type LineItem struct {
	Name       string `json:"name"`
	ID         int64  `json:"id"`
	ItemNumber int64  `json:"item_number"`
	Price      string `json:"price"`
	Quantity   int    `json:"quantity"`
	Tax        string `json:"tax"`
}

// License is a key issued for one product on one payment.
type License struct {
	ProductID int64  `json:"productId"`
	Key       string `json:"key"`
}

// CustomerInfo is the customer snapshot frozen onto the payment.
type CustomerInfo struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Discount  string `json:"discount"`
}

// Payment is a single ledger record.
type Payment struct {
	ID          int64             `json:"id"`
	Status      string            `json:"status"`
	Total       string            `json:"total"`
	Currency    string            `json:"currency"`
	PurchaseKey string            `json:"purchaseKey"`
	Gateway     string            `json:"gateway"`
	ProductID   int64             `json:"productId"` // the product (or bundle) purchased
	Customer    CustomerInfo      `json:"customer"`
	Cart        []LineItem        `json:"cart"`
	Licenses    []License         `json:"licenses,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"` // auxiliary, e.g. source_name/source_url
	CreatedAt   time.Time         `json:"createdAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	RefundedAt  *time.Time        `json:"refundedAt,omitempty"`
}

// LicenseFor returns the license key issued for a product, if any.
func (p *Payment) LicenseFor(productID int64) (string, bool) {
	for _, l := range p.Licenses {
		if l.ProductID == productID {
			return l.Key, true
		}
	}
	return "", false
}

// Stats are the running sale counters bumped when a payment completes.
type Stats struct {
	ProductID int64  `json:"productId"`
	Sales     int64  `json:"sales"`
	Earnings  string `json:"earnings"`
}

// Store persists payments.
type Store interface {
	// Insert writes a new pending payment and assigns its id.
	Insert(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id int64) (*Payment, error)
	// Complete transitions pending -> complete and bumps per-product stats.
	// Completing a refunded payment is ErrInvalidTransition.
	Complete(ctx context.Context, id int64, at time.Time) error
	// Refund transitions to refunded and stamps the refund time. The
	// transition re-executes if called again; idempotence is the caller's
	// concern.
	Refund(ctx context.Context, id int64, at time.Time) error
	// SetMeta attaches auxiliary metadata without touching the core record.
	SetMeta(ctx context.Context, id int64, key, value string) error
	GetStats(ctx context.Context, productID int64) (*Stats, error)
}

// Ledger wraps a store with transition rules.
type Ledger struct {
	store Store
}

// New creates a ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// CreatePending inserts a new payment, forcing pending status. Every
// payment enters the ledger through here; there is no way to create one
// already complete.
func (l *Ledger) CreatePending(ctx context.Context, p *Payment) error {
	if _, ok := ParseAmount(p.Total); !ok {
		return ErrInvalidAmount
	}
	p.Status = StatusPending
	if p.Gateway == "" {
		p.Gateway = GatewayExternal
	}
	return l.store.Insert(ctx, p)
}

// Complete finalizes a pending payment. This is the step that feeds
// sales/earnings accounting downstream.
func (l *Ledger) Complete(ctx context.Context, id int64) error {
	return l.store.Complete(ctx, id, time.Now())
}

// Refund marks a payment refunded with the current timestamp.
func (l *Ledger) Refund(ctx context.Context, id int64) error {
	return l.store.Refund(ctx, id, time.Now())
}

// Get returns a payment by id.
func (l *Ledger) Get(ctx context.Context, id int64) (*Payment, error) {
	return l.store.Get(ctx, id)
}

// SetMeta attaches auxiliary metadata to a payment.
func (l *Ledger) SetMeta(ctx context.Context, id int64, key, value string) error {
	return l.store.SetMeta(ctx, id, key, value)
}

// GetStats returns running sale counters for a product.
func (l *Ledger) GetStats(ctx context.Context, productID int64) (*Stats, error) {
	return l.store.GetStats(ctx, productID)
}
