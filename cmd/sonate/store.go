package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/sonate-labs/sonate/core/pkg/config"
	"github.com/sonate-labs/sonate/core/pkg/store"
)

// openReceiptStore selects the receipt store from configuration:
// SONATE_DATABASE_URL picks Postgres, otherwise SQLite at
// SONATE_SQLITE_PATH. The caller owns the returned handle.
func openReceiptStore(cfg *config.Config) (store.ReceiptStore, *sql.DB, error) {
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		s, err := store.NewPostgresReceiptStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, db, nil
	}

	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	s, err := store.NewSQLiteReceiptStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return s, db, nil
}
