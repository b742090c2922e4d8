package cooldown

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps cooldowns in a single SQLite table. The file is
// human-inspectable with the sqlite3 CLI and survives process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the cooldown database at dbPath with WAL
// mode and initializes the schema.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cooldown sqlite open: %w", err)
	}

	// Single writer, mirrors the scan cycle's serialized cooldown writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS cooldowns (
			symbol TEXT    NOT NULL PRIMARY KEY,
			expiry INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cooldown sqlite schema: %w", err)
	}

	log.Printf("[cooldown] opened sqlite store at %s", dbPath)
	return &SQLiteStore{db: db}, nil
}

// Load reads all cooldown entries. Any read failure is treated as an empty
// store and logged: fail-open to "not cooling down".
func (s *SQLiteStore) Load(ctx context.Context) map[string]time.Time {
	cooldowns := make(map[string]time.Time)

	rows, err := s.db.QueryContext(ctx, `SELECT symbol, expiry FROM cooldowns`)
	if err != nil {
		log.Printf("[cooldown] WARNING: sqlite load failed, treating store as empty (duplicate alerts possible): %v", err)
		return cooldowns
	}
	defer rows.Close()

	for rows.Next() {
		var symbol string
		var expiry int64
		if err := rows.Scan(&symbol, &expiry); err != nil {
			log.Printf("[cooldown] WARNING: sqlite scan failed, treating store as empty: %v", err)
			return make(map[string]time.Time)
		}
		cooldowns[symbol] = time.Unix(expiry, 0).UTC()
	}
	if err := rows.Err(); err != nil {
		log.Printf("[cooldown] WARNING: sqlite read failed, treating store as empty: %v", err)
		return make(map[string]time.Time)
	}
	return cooldowns
}

// Save replaces the whole table with the given map in one transaction.
// The commit is durable before Save returns; a concurrent Load never sees a
// partially written state.
func (s *SQLiteStore) Save(ctx context.Context, cooldowns map[string]time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cooldown sqlite begin: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM cooldowns`); err != nil {
		tx.Rollback()
		return fmt.Errorf("cooldown sqlite clear: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO cooldowns (symbol, expiry) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("cooldown sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for symbol, expiry := range cooldowns {
		if _, err := stmt.Exec(symbol, expiry.Unix()); err != nil {
			tx.Rollback()
			return fmt.Errorf("cooldown sqlite insert %s: %w", symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cooldown sqlite commit: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for health probes.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
