package auditlog

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed audit log store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, e *Entry) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO external_log (time, type, info)
		VALUES ($1, $2, $3)
		RETURNING id
	`, e.Time, e.Type, e.Info).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close(ctx context.Context, id int64, typ string, transID int64, result bool, errorCode string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE external_log
		SET type = $2, trans_id = $3, result = $4, error = $5, closed = TRUE
		WHERE id = $1
	`, id, typ, transID, result, errorCode)
	if err != nil {
		return fmt.Errorf("close log entry: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrEntryNotFound
	}
	return nil
}
