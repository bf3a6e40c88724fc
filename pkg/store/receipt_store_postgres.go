package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sonate-labs/sonate/core/pkg/contracts"

	_ "github.com/lib/pq"
)

// PostgresReceiptStore persists receipts in Postgres, mirroring the SQLite
// store's payload-plus-index layout for multi-node deployments.
type PostgresReceiptStore struct {
	db *sql.DB
}

// NewPostgresReceiptStore wraps an open Postgres handle and ensures the schema.
func NewPostgresReceiptStore(db *sql.DB) (*PostgresReceiptStore, error) {
	s := &PostgresReceiptStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenPostgresReceiptStore connects using a lib/pq connection string.
func OpenPostgresReceiptStore(dsn string) (*PostgresReceiptStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	return NewPostgresReceiptStore(db)
}

func (s *PostgresReceiptStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS trust_receipts (
		id TEXT NOT NULL,
		tenant TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL,
		version TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		previous_hash TEXT NOT NULL,
		chain_hash TEXT NOT NULL,
		chain_length INTEGER NOT NULL,
		payload JSONB NOT NULL,
		PRIMARY KEY (tenant, id)
	);
	CREATE INDEX IF NOT EXISTS idx_trust_receipts_session
		ON trust_receipts (tenant, session_id, chain_length)`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("store: postgres migrate: %w", err)
	}
	return nil
}

// Save inserts a receipt; duplicate ids within a tenant are rejected.
func (s *PostgresReceiptStore) Save(ctx context.Context, r *contracts.TrustReceipt, tenant string) error {
	if r == nil {
		return errors.New("store: nil receipt")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: receipt marshal: %w", err)
	}

	query := `INSERT INTO trust_receipts (
		id, tenant, session_id, version, timestamp, previous_hash, chain_hash, chain_length, payload
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = s.db.ExecContext(ctx, query,
		r.ID, tenant, r.SessionID, r.Version, r.Timestamp,
		r.Chain.PreviousHash, r.Chain.ChainHash, r.Chain.ChainLength, string(payload),
	)
	if err != nil {
		return fmt.Errorf("store: insert receipt: %w", err)
	}
	return nil
}

// GetBySession returns the session chain ordered by chain_length.
func (s *PostgresReceiptStore) GetBySession(ctx context.Context, sessionID, tenant string) ([]*contracts.TrustReceipt, error) {
	query := `
		SELECT payload FROM trust_receipts
		WHERE tenant = $1 AND session_id = $2
		ORDER BY chain_length ASC`
	rows, err := s.db.QueryContext(ctx, query, tenant, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: query session: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var receipts []*contracts.TrustReceipt
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("store: scan receipt: %w", err)
		}
		var r contracts.TrustReceipt
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("store: receipt unmarshal: %w", err)
		}
		receipts = append(receipts, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate receipts: %w", err)
	}
	return receipts, nil
}

// GetLastForSession returns the chain head for appending, or (nil, nil).
func (s *PostgresReceiptStore) GetLastForSession(ctx context.Context, sessionID, tenant string) (*contracts.TrustReceipt, error) {
	query := `
		SELECT payload FROM trust_receipts
		WHERE tenant = $1 AND session_id = $2
		ORDER BY chain_length DESC
		LIMIT 1`
	var payload []byte
	err := s.db.QueryRowContext(ctx, query, tenant, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: query chain head: %w", err)
	}
	var r contracts.TrustReceipt
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("store: receipt unmarshal: %w", err)
	}
	return &r, nil
}
