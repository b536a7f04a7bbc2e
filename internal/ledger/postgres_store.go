package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed payment store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert writes the payment row plus its cart items and licenses in one
// transaction, assigning the generated id.
func (p *PostgresStore) Insert(ctx context.Context, pay *Payment) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO payments (status, total, currency, purchase_key, gateway, product_id,
			customer_id, customer_email, customer_first, customer_last, customer_discount, created_at)
		VALUES ($1, $2::NUMERIC(12,2), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, pay.Status, pay.Total, pay.Currency, pay.PurchaseKey, pay.Gateway, pay.ProductID,
		pay.Customer.ID, pay.Customer.Email, pay.Customer.FirstName, pay.Customer.LastName,
		pay.Customer.Discount, pay.CreatedAt).Scan(&pay.ID)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	for _, item := range pay.Cart {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payment_items (payment_id, name, product_id, item_number, price, quantity, tax)
			VALUES ($1, $2, $3, $4, $5::NUMERIC(12,2), $6, $7::NUMERIC(12,2))
		`, pay.ID, item.Name, item.ID, item.ItemNumber, item.Price, item.Quantity, item.Tax)
		if err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
	}

	for _, lic := range pay.Licenses {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payment_licenses (payment_id, product_id, license_key)
			VALUES ($1, $2, $3)
		`, pay.ID, lic.ProductID, lic.Key)
		if err != nil {
			return fmt.Errorf("insert license: %w", err)
		}
	}

	return tx.Commit()
}

// Get loads a payment with its cart, licenses, and metadata.
func (p *PostgresStore) Get(ctx context.Context, id int64) (*Payment, error) {
	pay := &Payment{}
	var completedAt, refundedAt sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT id, status, total::TEXT, currency, purchase_key, gateway, product_id,
			customer_id, customer_email, customer_first, customer_last, customer_discount,
			created_at, completed_at, refunded_at
		FROM payments WHERE id = $1
	`, id).Scan(&pay.ID, &pay.Status, &pay.Total, &pay.Currency, &pay.PurchaseKey,
		&pay.Gateway, &pay.ProductID, &pay.Customer.ID, &pay.Customer.Email,
		&pay.Customer.FirstName, &pay.Customer.LastName, &pay.Customer.Discount,
		&pay.CreatedAt, &completedAt, &refundedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payment: %w", err)
	}
	if completedAt.Valid {
		pay.CompletedAt = &completedAt.Time
	}
	if refundedAt.Valid {
		pay.RefundedAt = &refundedAt.Time
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT name, product_id, item_number, price::TEXT, quantity, tax::TEXT
		FROM payment_items WHERE payment_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.Name, &item.ID, &item.ItemNumber, &item.Price, &item.Quantity, &item.Tax); err != nil {
			return nil, err
		}
		pay.Cart = append(pay.Cart, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	licRows, err := p.db.QueryContext(ctx, `
		SELECT product_id, license_key FROM payment_licenses
		WHERE payment_id = $1 ORDER BY product_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query licenses: %w", err)
	}
	defer licRows.Close()
	for licRows.Next() {
		var lic License
		if err := licRows.Scan(&lic.ProductID, &lic.Key); err != nil {
			return nil, err
		}
		pay.Licenses = append(pay.Licenses, lic)
	}
	if err := licRows.Err(); err != nil {
		return nil, err
	}

	metaRows, err := p.db.QueryContext(ctx, `
		SELECT key, value FROM payment_meta WHERE payment_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query meta: %w", err)
	}
	defer metaRows.Close()
	for metaRows.Next() {
		var k, v string
		if err := metaRows.Scan(&k, &v); err != nil {
			return nil, err
		}
		if pay.Meta == nil {
			pay.Meta = make(map[string]string)
		}
		pay.Meta[k] = v
	}
	return pay, metaRows.Err()
}

// Complete transitions pending -> complete and bumps per-product stats.
// The WHERE clause refuses refunded rows so a refund can never be undone
// by a late completion.
func (p *PostgresStore) Complete(ctx context.Context, id int64, at time.Time) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status, total string
	var productID int64
	err = tx.QueryRowContext(ctx, `
		SELECT status, total::TEXT, product_id FROM payments
		WHERE id = $1 FOR UPDATE
	`, id).Scan(&status, &total, &productID)
	if err == sql.ErrNoRows {
		return ErrPaymentNotFound
	}
	if err != nil {
		return fmt.Errorf("lock payment: %w", err)
	}
	if status == StatusRefunded {
		return ErrInvalidTransition
	}
	if status == StatusComplete {
		return tx.Commit() // already done, stats were bumped then
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE payments SET status = $2, completed_at = $3 WHERE id = $1
	`, id, StatusComplete, at)
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO product_stats (product_id, sales, earnings)
		VALUES ($1, 1, $2::NUMERIC(14,2))
		ON CONFLICT (product_id) DO UPDATE SET
			sales    = product_stats.sales + 1,
			earnings = product_stats.earnings + $2::NUMERIC(14,2)
	`, productID, total)
	if err != nil {
		return fmt.Errorf("update stats: %w", err)
	}

	return tx.Commit()
}

// Refund marks the payment refunded. Re-running the transition is allowed.
func (p *PostgresStore) Refund(ctx context.Context, id int64, at time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE payments SET status = $2, refunded_at = $3 WHERE id = $1
	`, id, StatusRefunded, at)
	if err != nil {
		return fmt.Errorf("refund payment: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// SetMeta upserts one auxiliary metadata key.
func (p *PostgresStore) SetMeta(ctx context.Context, id int64, key, value string) error {
	result, err := p.db.ExecContext(ctx, `
		INSERT INTO payment_meta (payment_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (payment_id, key) DO UPDATE SET value = $3
	`, id, key, value)
	if err != nil {
		return fmt.Errorf("set meta: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// GetStats returns running sale counters for a product.
func (p *PostgresStore) GetStats(ctx context.Context, productID int64) (*Stats, error) {
	st := &Stats{ProductID: productID}
	err := p.db.QueryRowContext(ctx, `
		SELECT sales, earnings::TEXT FROM product_stats WHERE product_id = $1
	`, productID).Scan(&st.Sales, &st.Earnings)
	if err == sql.ErrNoRows {
		return &Stats{ProductID: productID, Earnings: "0.00"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}
