package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the registry in a SQLite table
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at path and runs the schema migration
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "open", Path: path, Err: fmt.Errorf("set WAL mode: %w", err)}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "open", Path: path, Err: fmt.Errorf("migrate: %w", err)}
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS hubs (
			address TEXT PRIMARY KEY,
			name    TEXT NOT NULL DEFAULT ''
		)
	`)
	return err
}

func (s *SQLiteStore) ReadAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT address, name FROM hubs")
	if err != nil {
		return nil, &PersistenceError{Op: "read", Path: s.path, Err: err}
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var addr, name string
		if err := rows.Scan(&addr, &name); err != nil {
			return nil, &PersistenceError{Op: "read", Path: s.path, Err: err}
		}
		names[addr] = name
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "read", Path: s.path, Err: err}
	}
	return names, nil
}

// WriteAll clears the table and inserts names in one transaction
func (s *SQLiteStore) WriteAll(ctx context.Context, names map[string]string) error {
	if err := s.writeAll(ctx, names); err != nil {
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

func (s *SQLiteStore) writeAll(ctx context.Context, names map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM hubs"); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO hubs (address, name) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for addr, name := range names {
		if _, err := stmt.ExecContext(ctx, addr, name); err != nil {
			return fmt.Errorf("insert %s: %w", addr, err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
