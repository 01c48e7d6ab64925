package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tgienger/taskdesk/internal/models"
	"github.com/tgienger/taskdesk/internal/remote"
)

const employeeColumns = `id, user_id, first_name, last_name, email, phone, role, joined_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (*models.Employee, error) {
	e := &models.Employee{}
	err := row.Scan(&e.ID, &e.OwnerID, &e.FirstName, &e.LastName, &e.Email, &e.Phone, &e.Role, &e.JoinedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// InsertEmployee creates a new employee owned by ownerID
func (db *DB) InsertEmployee(ctx context.Context, ownerID string, e models.NewEmployee) (*models.Employee, error) {
	ts := now()
	joined := e.JoinedAt
	if joined.IsZero() {
		joined = ts
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO employees (user_id, first_name, last_name, email, phone, role, joined_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ownerID, e.FirstName, e.LastName, e.Email, e.Phone, e.Role, joined.UTC(), ts, ts)
	if err != nil {
		return nil, storeError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, storeError(err)
	}

	return db.GetEmployee(ctx, ownerID, id)
}

// GetEmployee retrieves an employee by ID
func (db *DB) GetEmployee(ctx context.Context, ownerID string, id int64) (*models.Employee, error) {
	e, err := scanEmployee(db.QueryRowContext(ctx, `
		SELECT `+employeeColumns+`
		FROM employees WHERE id = ? AND user_id = ?
	`, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, &remote.NotFoundError{Entity: "employee", ID: id}
	}
	if err != nil {
		return nil, storeError(err)
	}
	return e, nil
}

// ListEmployees returns the owner's employees, newest first
func (db *DB) ListEmployees(ctx context.Context, ownerID string) ([]models.Employee, error) {
	return db.queryEmployees(ctx, `
		SELECT `+employeeColumns+`
		FROM employees WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, ownerID)
}

// AllEmployees returns every employee regardless of owner
func (db *DB) AllEmployees(ctx context.Context) ([]models.Employee, error) {
	return db.queryEmployees(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY id`)
}

func (db *DB) queryEmployees(ctx context.Context, query string, args ...any) ([]models.Employee, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError(err)
	}
	defer rows.Close()

	employees := []models.Employee{}
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, storeError(err)
		}
		employees = append(employees, *e)
	}
	return employees, storeError(rows.Err())
}

// UpdateEmployee applies the fields set in p and returns the updated row
func (db *DB) UpdateEmployee(ctx context.Context, ownerID string, id int64, p models.EmployeePatch) (*models.Employee, error) {
	if p.IsEmpty() {
		return db.GetEmployee(ctx, ownerID, id)
	}

	var sets []string
	var args []any
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if p.FirstName != nil {
		add("first_name", *p.FirstName)
	}
	if p.LastName != nil {
		add("last_name", *p.LastName)
	}
	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.Phone != nil {
		add("phone", *p.Phone)
	}
	if p.Role != nil {
		add("role", *p.Role)
	}
	if p.JoinedAt != nil {
		add("joined_at", p.JoinedAt.UTC())
	}
	add("updated_at", now())
	args = append(args, id, ownerID)

	result, err := db.ExecContext(ctx,
		"UPDATE employees SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?",
		args...)
	if err != nil {
		return nil, storeError(err)
	}
	if err := affectedOrNotFound(result, "employee", id); err != nil {
		return nil, err
	}

	return db.GetEmployee(ctx, ownerID, id)
}

// DeleteEmployee deletes an employee and, through the foreign key cascade, all its tasks
func (db *DB) DeleteEmployee(ctx context.Context, ownerID string, id int64) error {
	result, err := db.ExecContext(ctx, "DELETE FROM employees WHERE id = ? AND user_id = ?", id, ownerID)
	if err != nil {
		return storeError(err)
	}
	return affectedOrNotFound(result, "employee", id)
}
