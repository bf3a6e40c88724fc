package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sonate-labs/sonate/core/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteReceiptStore persists receipts in SQLite. The full receipt JSON is
// stored verbatim next to the indexed chain columns, so reads reproduce the
// exact signed bytes.
type SQLiteReceiptStore struct {
	db *sql.DB
}

// NewSQLiteReceiptStore wraps an open SQLite handle and ensures the schema.
func NewSQLiteReceiptStore(db *sql.DB) (*SQLiteReceiptStore, error) {
	s := &SQLiteReceiptStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteReceiptStore opens (or creates) a SQLite database at path.
// Use ":memory:" for tests.
func OpenSQLiteReceiptStore(path string) (*SQLiteReceiptStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	return NewSQLiteReceiptStore(db)
}

func (s *SQLiteReceiptStore) migrate() error {
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
		payload JSON NOT NULL,
		PRIMARY KEY (tenant, id)
	);
	CREATE INDEX IF NOT EXISTS idx_trust_receipts_session
		ON trust_receipts (tenant, session_id, chain_length);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("store: sqlite migrate: %w", err)
	}
	return nil
}

// Save inserts a receipt; duplicate ids within a tenant are rejected.
func (s *SQLiteReceiptStore) Save(ctx context.Context, r *contracts.TrustReceipt, tenant string) error {
	if r == nil {
		return errors.New("store: nil receipt")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: receipt marshal: %w", err)
	}

	query := `INSERT INTO trust_receipts (
		id, tenant, session_id, version, timestamp, previous_hash, chain_hash, chain_length, payload
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
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
func (s *SQLiteReceiptStore) GetBySession(ctx context.Context, sessionID, tenant string) ([]*contracts.TrustReceipt, error) {
	query := `
		SELECT payload FROM trust_receipts
		WHERE tenant = ? AND session_id = ?
		ORDER BY chain_length ASC`
	rows, err := s.db.QueryContext(ctx, query, tenant, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: query session: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var receipts []*contracts.TrustReceipt
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("store: scan receipt: %w", err)
		}
		var r contracts.TrustReceipt
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
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
func (s *SQLiteReceiptStore) GetLastForSession(ctx context.Context, sessionID, tenant string) (*contracts.TrustReceipt, error) {
	query := `
		SELECT payload FROM trust_receipts
		WHERE tenant = ? AND session_id = ?
		ORDER BY chain_length DESC
		LIMIT 1`
	var payload string
	err := s.db.QueryRowContext(ctx, query, tenant, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: query chain head: %w", err)
	}
	var r contracts.TrustReceipt
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("store: receipt unmarshal: %w", err)
	}
	return &r, nil
}
