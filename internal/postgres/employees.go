package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tgienger/taskdesk/internal/models"
)

const employeeColumns = `id, user_id, first_name, last_name, email, phone, role, joined_at, created_at`

func scanEmployee(row pgx.Row) (*models.Employee, error) {
	e := &models.Employee{}
	err := row.Scan(&e.ID, &e.OwnerID, &e.FirstName, &e.LastName, &e.Email, &e.Phone, &e.Role, &e.JoinedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListEmployees returns the owner's employees, newest first
func (s *Store) ListEmployees(ctx context.Context, ownerID string) ([]models.Employee, error) {
	return s.queryEmployees(ctx, `
		SELECT `+employeeColumns+` FROM employees
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, ownerID)
}

// AllEmployees returns every employee regardless of owner
func (s *Store) AllEmployees(ctx context.Context) ([]models.Employee, error) {
	return s.queryEmployees(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY id`)
}

func (s *Store) queryEmployees(ctx context.Context, query string, args ...any) ([]models.Employee, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

// GetEmployee retrieves an employee by ID
func (s *Store) GetEmployee(ctx context.Context, ownerID string, id int64) (*models.Employee, error) {
	e, err := scanEmployee(s.pool.QueryRow(ctx, `
		SELECT `+employeeColumns+` FROM employees WHERE id = $1 AND user_id = $2
	`, id, ownerID))
	if err != nil {
		return nil, rowError(err, "employee", id)
	}
	return e, nil
}

// InsertEmployee creates an employee owned by ownerID
func (s *Store) InsertEmployee(ctx context.Context, ownerID string, e models.NewEmployee) (*models.Employee, error) {
	joined := e.JoinedAt
	if joined.IsZero() {
		joined = time.Now()
	}
	created, err := scanEmployee(s.pool.QueryRow(ctx, `
		INSERT INTO employees (user_id, first_name, last_name, email, phone, role, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+employeeColumns,
		ownerID, e.FirstName, e.LastName, e.Email, e.Phone, e.Role, joined,
	))
	if err != nil {
		return nil, storeError(err)
	}
	return created, nil
}

// UpdateEmployee applies the fields set in p
func (s *Store) UpdateEmployee(ctx context.Context, ownerID string, id int64, p models.EmployeePatch) (*models.Employee, error) {
	if p.IsEmpty() {
		return s.GetEmployee(ctx, ownerID, id)
	}

	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
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
		add("joined_at", *p.JoinedAt)
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id, ownerID)

	query := fmt.Sprintf("UPDATE employees SET %s WHERE id = $%d AND user_id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args)-1, len(args), employeeColumns)
	updated, err := scanEmployee(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, rowError(err, "employee", id)
	}
	return updated, nil
}

// DeleteEmployee deletes an employee; tasks assigned to it go with it
func (s *Store) DeleteEmployee(ctx context.Context, ownerID string, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM employees WHERE id = $1 AND user_id = $2", id, ownerID)
	if err != nil {
		return storeError(err)
	}
	if tag.RowsAffected() == 0 {
		return rowError(pgx.ErrNoRows, "employee", id)
	}
	return nil
}
