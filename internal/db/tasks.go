package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/tgienger/taskdesk/internal/models"
	"github.com/tgienger/taskdesk/internal/remote"
)

const taskColumns = `id, user_id, title, description, status, priority, due_date, assigned_to, parent_task_id, extended_data, created_at`

func scanTask(row rowScanner) (*models.TaskRecord, error) {
	t := &models.TaskRecord{}
	var extended []byte
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.DueDate, &t.AssignedTo, &t.ParentTaskID, &extended, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if extended != nil {
		t.ExtendedData = json.RawMessage(extended)
	}
	return t, nil
}

// nullableJSON maps an absent payload to SQL NULL
func nullableJSON(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}

// checkTaskRefs verifies that the assignee and parent task, when set, belong
// to ownerID. The foreign keys alone can't see user_id.
func (db *DB) checkTaskRefs(ctx context.Context, ownerID string, assignee, parent *int64) error {
	refs := []struct {
		id    *int64
		query string
		what  string
	}{
		{assignee, "SELECT 1 FROM employees WHERE id = ? AND user_id = ?", "assigned employee"},
		{parent, "SELECT 1 FROM tasks WHERE id = ? AND user_id = ?", "parent task"},
	}
	for _, ref := range refs {
		if ref.id == nil {
			continue
		}
		var exists int
		err := db.QueryRowContext(ctx, ref.query, *ref.id, ownerID).Scan(&exists)
		if err == sql.ErrNoRows {
			return &remote.RemoteError{Code: remote.CodeForeignKeyViolation, Message: ref.what + " does not exist"}
		}
		if err != nil {
			return storeError(err)
		}
	}
	return nil
}

// InsertTask creates a new task owned by ownerID. Empty status and
// priority fall back to the column defaults.
func (db *DB) InsertTask(ctx context.Context, ownerID string, t models.NewTask, extended json.RawMessage) (*models.TaskRecord, error) {
	status := t.Status
	if status == "" {
		status = models.StatusTodo
	}
	priority := t.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	ts := now()

	if err := db.checkTaskRefs(ctx, ownerID, &t.AssignedTo, t.ParentTaskID); err != nil {
		return nil, err
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO tasks (user_id, title, description, status, priority, due_date, assigned_to, parent_task_id, extended_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ownerID, t.Title, t.Description, status, priority, t.DueDate, t.AssignedTo, t.ParentTaskID, nullableJSON(extended), ts, ts)
	if err != nil {
		return nil, storeError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, storeError(err)
	}

	return db.GetTask(ctx, ownerID, id)
}

// GetTask retrieves a task by ID
func (db *DB) GetTask(ctx context.Context, ownerID string, id int64) (*models.TaskRecord, error) {
	t, err := scanTask(db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks WHERE id = ? AND user_id = ?
	`, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, &remote.NotFoundError{Entity: "task", ID: id}
	}
	if err != nil {
		return nil, storeError(err)
	}
	return t, nil
}

// ListTasks returns the owner's tasks, newest first, optionally only those
// assigned to one employee
func (db *DB) ListTasks(ctx context.Context, ownerID string, assignee *int64) ([]models.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []any{ownerID}

	if assignee != nil {
		query += " AND assigned_to = ?"
		args = append(args, *assignee)
	}

	query += " ORDER BY created_at DESC, id DESC"
	return db.queryTasks(ctx, query, args...)
}

// AllTasks returns every task regardless of owner
func (db *DB) AllTasks(ctx context.Context) ([]models.TaskRecord, error) {
	return db.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
}

func (db *DB) queryTasks(ctx context.Context, query string, args ...any) ([]models.TaskRecord, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError(err)
	}
	defer rows.Close()

	tasks := []models.TaskRecord{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, storeError(err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, storeError(rows.Err())
}

// UpdateTask applies the columns set in p. A non-nil extended payload
// replaces extended_data entirely.
func (db *DB) UpdateTask(ctx context.Context, ownerID string, id int64, p models.TaskCorePatch, extended json.RawMessage) (*models.TaskRecord, error) {
	if p.IsEmpty() && extended == nil {
		return db.GetTask(ctx, ownerID, id)
	}

	if err := db.checkTaskRefs(ctx, ownerID, p.AssignedTo, p.ParentTaskID); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.Priority != nil {
		add("priority", string(*p.Priority))
	}
	if p.DueDate != nil {
		add("due_date", *p.DueDate)
	}
	if p.AssignedTo != nil {
		add("assigned_to", *p.AssignedTo)
	}
	if p.ParentTaskID != nil {
		add("parent_task_id", *p.ParentTaskID)
	}
	if extended != nil {
		add("extended_data", string(extended))
	}
	add("updated_at", now())
	args = append(args, id, ownerID)

	result, err := db.ExecContext(ctx,
		"UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?",
		args...)
	if err != nil {
		return nil, storeError(err)
	}
	if err := affectedOrNotFound(result, "task", id); err != nil {
		return nil, err
	}

	return db.GetTask(ctx, ownerID, id)
}

// DeleteTask deletes a task
func (db *DB) DeleteTask(ctx context.Context, ownerID string, id int64) error {
	result, err := db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ? AND user_id = ?", id, ownerID)
	if err != nil {
		return storeError(err)
	}
	return affectedOrNotFound(result, "task", id)
}
