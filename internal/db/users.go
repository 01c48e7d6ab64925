package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// User is an identity record with its password hash
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
}

// CreateUser inserts a user. A duplicate email yields a RemoteError with
// the unique violation code.
func (db *DB) CreateUser(ctx context.Context, u User) (*User, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, now())
	if err != nil {
		return nil, storeError(err)
	}
	return db.GetUser(ctx, u.ID)
}

// GetUser retrieves a user by ID; it returns nil, nil when there is none
func (db *DB) GetUser(ctx context.Context, id string) (*User, error) {
	return db.getUser(ctx, "SELECT id, email, password_hash, first_name, last_name, created_at FROM users WHERE id = ?", id)
}

// GetUserByEmail retrieves a user by email (case-insensitive); it returns nil, nil when there is none
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return db.getUser(ctx, "SELECT id, email, password_hash, first_name, last_name, created_at FROM users WHERE email = ?", email)
}

func (db *DB) getUser(ctx context.Context, query string, arg any) (*User, error) {
	u := &User{}
	err := db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err)
	}
	return u, nil
}

// UpdateUserName changes a user's first and last name
func (db *DB) UpdateUserName(ctx context.Context, id, firstName, lastName string) error {
	res, err := db.ExecContext(ctx, "UPDATE users SET first_name = ?, last_name = ? WHERE id = ?", firstName, lastName, id)
	if err != nil {
		return storeError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError(err)
	}
	if n == 0 {
		return fmt.Errorf("user %s not found", id)
	}
	return nil
}
