package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/tgienger/taskdesk/internal/models"
	"github.com/tgienger/taskdesk/internal/remote"
)

const taskColumns = `id, user_id, title, description, status, priority, due_date, assigned_to, parent_task_id, extended_data, created_at`

func scanTask(row pgx.Row) (*models.TaskRecord, error) {
	t := &models.TaskRecord{}
	var status, priority string
	var extended []byte
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &status, &priority,
		&t.DueDate, &t.AssignedTo, &t.ParentTaskID, &extended, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	t.Priority = models.Priority(priority)
	if extended != nil {
		t.ExtendedData = json.RawMessage(extended)
	}
	return t, nil
}

// jsonParam maps an absent payload to NULL
func jsonParam(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}

// ListTasks returns the owner's tasks, newest first, optionally filtered by assignee
func (s *Store) ListTasks(ctx context.Context, ownerID string, assignee *int64) ([]models.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`
	args := []any{ownerID}
	if assignee != nil {
		args = append(args, *assignee)
		query += " AND assigned_to = $2"
	}
	query += " ORDER BY created_at DESC, id DESC"
	return s.queryTasks(ctx, query, args...)
}

// AllTasks returns every task regardless of owner
func (s *Store) AllTasks(ctx context.Context) ([]models.TaskRecord, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]models.TaskRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

// GetTask retrieves a task by ID
func (s *Store) GetTask(ctx context.Context, ownerID string, id int64) (*models.TaskRecord, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND user_id = $2
	`, id, ownerID))
	if err != nil {
		return nil, rowError(err, "task", id)
	}
	return t, nil
}

// checkTaskRefs verifies that the assignee and parent task, when set, belong
// to ownerID
func (s *Store) checkTaskRefs(ctx context.Context, ownerID string, assignee, parent *int64) error {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT ($2::bigint IS NULL OR EXISTS (SELECT 1 FROM employees WHERE id = $2::bigint AND user_id = $1::text))
		   AND ($3::bigint IS NULL OR EXISTS (SELECT 1 FROM tasks WHERE id = $3::bigint AND user_id = $1::text))
	`, ownerID, assignee, parent).Scan(&ok)
	if err != nil {
		return storeError(err)
	}
	if !ok {
		return &remote.RemoteError{Code: remote.CodeForeignKeyViolation, Message: "assigned employee or parent task does not exist"}
	}
	return nil
}

// InsertTask creates a task owned by ownerID. The insert only happens when
// the assignee and parent task belong to the same owner.
func (s *Store) InsertTask(ctx context.Context, ownerID string, t models.NewTask, extended json.RawMessage) (*models.TaskRecord, error) {
	status := t.Status
	if status == "" {
		status = models.StatusTodo
	}
	priority := t.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	created, err := scanTask(s.pool.QueryRow(ctx, `
		INSERT INTO tasks (user_id, title, description, status, priority, due_date, assigned_to, parent_task_id, extended_data)
		SELECT $1::text, $2::text, $3::text, $4::text, $5::text, $6::text, $7::bigint, $8::bigint, $9::jsonb
		WHERE EXISTS (SELECT 1 FROM employees WHERE id = $7::bigint AND user_id = $1::text)
		  AND ($8::bigint IS NULL OR EXISTS (SELECT 1 FROM tasks WHERE id = $8::bigint AND user_id = $1::text))
		RETURNING `+taskColumns,
		ownerID, t.Title, t.Description, string(status), string(priority), t.DueDate, t.AssignedTo, t.ParentTaskID, jsonParam(extended),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &remote.RemoteError{Code: remote.CodeForeignKeyViolation, Message: "assigned employee or parent task does not exist"}
	}
	if err != nil {
		return nil, storeError(err)
	}
	return created, nil
}

// UpdateTask applies the columns set in p; a non-nil payload replaces extended_data
func (s *Store) UpdateTask(ctx context.Context, ownerID string, id int64, p models.TaskCorePatch, extended json.RawMessage) (*models.TaskRecord, error) {
	if p.IsEmpty() && extended == nil {
		return s.GetTask(ctx, ownerID, id)
	}

	if err := s.checkTaskRefs(ctx, ownerID, p.AssignedTo, p.ParentTaskID); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	add := func(column, cast string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d%s", column, len(args), cast))
	}
	if p.Title != nil {
		add("title", "", *p.Title)
	}
	if p.Description != nil {
		add("description", "", *p.Description)
	}
	if p.Status != nil {
		add("status", "", string(*p.Status))
	}
	if p.Priority != nil {
		add("priority", "", string(*p.Priority))
	}
	if p.DueDate != nil {
		add("due_date", "", *p.DueDate)
	}
	if p.AssignedTo != nil {
		add("assigned_to", "", *p.AssignedTo)
	}
	if p.ParentTaskID != nil {
		add("parent_task_id", "", *p.ParentTaskID)
	}
	if extended != nil {
		add("extended_data", "::jsonb", string(extended))
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id, ownerID)

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = $%d AND user_id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args)-1, len(args), taskColumns)
	updated, err := scanTask(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, rowError(err, "task", id)
	}
	return updated, nil
}

// DeleteTask deletes a task
func (s *Store) DeleteTask(ctx context.Context, ownerID string, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1 AND user_id = $2", id, ownerID)
	if err != nil {
		return storeError(err)
	}
	if tag.RowsAffected() == 0 {
		return rowError(pgx.ErrNoRows, "task", id)
	}
	return nil
}
