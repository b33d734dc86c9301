package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore keeps sealed blobs in bank.sealed_values
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore initializes a new Postgres-backed store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the table if it does not exist
func (r *PostgresStore) Migrate(ctx context.Context) error {
	query := `
		CREATE SCHEMA IF NOT EXISTS bank;
		CREATE TABLE IF NOT EXISTS bank.sealed_values (
			account_id TEXT NOT NULL,
			slot       TEXT NOT NULL,
			blob       BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (account_id, slot)
		)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to migrate sealed_values: %w", err)
	}
	return nil
}

// Put upserts the blob for the slot
func (r *PostgresStore) Put(ctx context.Context, account, slot string, blob []byte) error {
	query := `
		INSERT INTO bank.sealed_values (account_id, slot, blob, created_at, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (account_id, slot)
		DO UPDATE SET blob = EXCLUDED.blob, updated_at = CURRENT_TIMESTAMP`
	if _, err := r.db.ExecContext(ctx, query, account, slot, blob); err != nil {
		return fmt.Errorf("failed to store %s: %w", slot, err)
	}
	return nil
}

// Get retrieves the blob for the slot
func (r *PostgresStore) Get(ctx context.Context, account, slot string) ([]byte, bool, error) {
	var blob []byte
	query := `
		SELECT blob
		FROM bank.sealed_values
		WHERE account_id = $1 AND slot = $2`
	err := r.db.QueryRowContext(ctx, query, account, slot).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load %s: %w", slot, err)
	}
	return blob, true, nil
}
