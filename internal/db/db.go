package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/tgienger/taskdesk/internal/remote"
)

//go:embed schema.sql
var schema string

// DB wraps the database connection. It implements remote.Backend with every
// query filtered by the owning user's id.
type DB struct {
	*sql.DB
}

var _ remote.Backend = (*DB)(nil)

// New opens the database at path and initializes the schema
func New(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// now returns the timestamp written to created_at/updated_at columns.
// Sub-second precision keeps newest-first ordering stable.
func now() time.Time {
	return time.Now().UTC()
}

// GetSetting retrieves a setting value by key
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting sets a setting value
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// DeleteSetting removes a setting
func (db *DB) DeleteSetting(ctx context.Context, key string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key)
	return err
}

// storeError converts a driver error into the remote error taxonomy
func storeError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return &remote.RemoteError{Message: err.Error(), Err: err}
	}

	code := sqliteErr.ExtendedCode.Error()
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		code = remote.CodeUniqueViolation
	case sqlite3.ErrConstraintForeignKey:
		code = remote.CodeForeignKeyViolation
	case sqlite3.ErrConstraintCheck:
		code = remote.CodeCheckViolation
	case sqlite3.ErrConstraintNotNull:
		code = remote.CodeNotNullViolation
	}
	return &remote.RemoteError{Code: code, Message: sqliteErr.Error(), Err: err}
}

// affectedOrNotFound turns a zero-row write into a NotFoundError
func affectedOrNotFound(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeError(err)
	}
	if n == 0 {
		return &remote.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}
