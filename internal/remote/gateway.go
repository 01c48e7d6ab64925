package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tgienger/taskdesk/internal/codec"
	"github.com/tgienger/taskdesk/internal/models"
)

// Backend is a row-scoped table store. Every method filters by ownerID;
// implementations never return rows that belong to another owner.
//
// Single-row methods return *NotFoundError when no row matches and
// *RemoteError when the store rejects the request.
type Backend interface {
	ListEmployees(ctx context.Context, ownerID string) ([]models.Employee, error)
	GetEmployee(ctx context.Context, ownerID string, id int64) (*models.Employee, error)
	InsertEmployee(ctx context.Context, ownerID string, e models.NewEmployee) (*models.Employee, error)
	UpdateEmployee(ctx context.Context, ownerID string, id int64, p models.EmployeePatch) (*models.Employee, error)
	DeleteEmployee(ctx context.Context, ownerID string, id int64) error

	// ListTasks returns all tasks, or only those assigned to *assignee when non-nil
	ListTasks(ctx context.Context, ownerID string, assignee *int64) ([]models.TaskRecord, error)
	GetTask(ctx context.Context, ownerID string, id int64) (*models.TaskRecord, error)
	InsertTask(ctx context.Context, ownerID string, t models.NewTask, extended json.RawMessage) (*models.TaskRecord, error)
	// UpdateTask replaces extended_data with extended when it is non-nil
	UpdateTask(ctx context.Context, ownerID string, id int64, p models.TaskCorePatch, extended json.RawMessage) (*models.TaskRecord, error)
	DeleteTask(ctx context.Context, ownerID string, id int64) error
}

// PrincipalSource reports the currently signed-in principal
type PrincipalSource interface {
	CurrentPrincipal() (models.Principal, bool)
}

// PrincipalFunc adapts a function to PrincipalSource
type PrincipalFunc func() (models.Principal, bool)

func (f PrincipalFunc) CurrentPrincipal() (models.Principal, bool) { return f() }

// Gateway translates domain operations into backend queries scoped to the
// current principal. It performs no retries; errors propagate unchanged.
type Gateway struct {
	backend    Backend
	principals PrincipalSource
	log        *slog.Logger
}

// NewGateway creates a gateway over backend
func NewGateway(backend Backend, principals PrincipalSource, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{backend: backend, principals: principals, log: log}
}

type principalKey struct{}

// WithPrincipal pins gateway calls made with the returned context to p,
// regardless of who the PrincipalSource reports
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal pinned by WithPrincipal
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(models.Principal)
	return p, ok
}

func (g *Gateway) owner(ctx context.Context, op string) (string, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		p, ok = g.principals.CurrentPrincipal()
	}
	if !ok || p.ID == "" {
		return "", &AuthRequiredError{Op: op}
	}
	return p.ID, nil
}

// ListEmployees returns the principal's employees, newest first
func (g *Gateway) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	owner, err := g.owner(ctx, "list employees")
	if err != nil {
		return nil, err
	}
	return g.backend.ListEmployees(ctx, owner)
}

// GetEmployee fetches a single employee
func (g *Gateway) GetEmployee(ctx context.Context, id int64) (*models.Employee, error) {
	owner, err := g.owner(ctx, "get employee")
	if err != nil {
		return nil, err
	}
	return g.backend.GetEmployee(ctx, owner, id)
}

// CreateEmployee inserts an employee owned by the current principal
func (g *Gateway) CreateEmployee(ctx context.Context, e models.NewEmployee) (*models.Employee, error) {
	owner, err := g.owner(ctx, "create employee")
	if err != nil {
		return nil, err
	}
	created, err := g.backend.InsertEmployee(ctx, owner, e)
	if err != nil {
		g.log.Debug("create employee rejected", "owner", owner, "email", e.Email, "error", err)
		return nil, err
	}
	return created, nil
}

// UpdateEmployee applies a partial update and returns the stored row
func (g *Gateway) UpdateEmployee(ctx context.Context, id int64, p models.EmployeePatch) (*models.Employee, error) {
	owner, err := g.owner(ctx, "update employee")
	if err != nil {
		return nil, err
	}
	return g.backend.UpdateEmployee(ctx, owner, id, p)
}

// DeleteEmployee removes an employee; the backend cascades to its tasks
func (g *Gateway) DeleteEmployee(ctx context.Context, id int64) error {
	owner, err := g.owner(ctx, "delete employee")
	if err != nil {
		return err
	}
	return g.backend.DeleteEmployee(ctx, owner, id)
}

// ListTasks returns the principal's tasks with extended data merged, newest first
func (g *Gateway) ListTasks(ctx context.Context) ([]models.Task, error) {
	owner, err := g.owner(ctx, "list tasks")
	if err != nil {
		return nil, err
	}
	records, err := g.backend.ListTasks(ctx, owner, nil)
	if err != nil {
		return nil, err
	}
	return g.decodeList(records), nil
}

// decodeList decodes a listing; a row with a malformed payload is kept with
// no extended fields
func (g *Gateway) decodeList(records []models.TaskRecord) []models.Task {
	tasks, err := codec.DecodeAll(records)
	if err != nil {
		g.log.Warn("ignoring malformed extended_data", "error", err)
	}
	return tasks
}

// GetTask fetches a single task with extended data merged
func (g *Gateway) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	owner, err := g.owner(ctx, "get task")
	if err != nil {
		return nil, err
	}
	rec, err := g.backend.GetTask(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	return decodeOne(rec)
}

// GetTasksByAssignee returns the tasks assigned to employeeID, newest first
func (g *Gateway) GetTasksByAssignee(ctx context.Context, employeeID int64) ([]models.Task, error) {
	owner, err := g.owner(ctx, "list tasks by assignee")
	if err != nil {
		return nil, err
	}
	records, err := g.backend.ListTasks(ctx, owner, &employeeID)
	if err != nil {
		return nil, err
	}
	return g.decodeList(records), nil
}

// CreateTask inserts a task owned by the current principal
func (g *Gateway) CreateTask(ctx context.Context, t models.NewTask) (*models.Task, error) {
	owner, err := g.owner(ctx, "create task")
	if err != nil {
		return nil, err
	}
	core, extended, err := codec.EncodeNew(t)
	if err != nil {
		return nil, err
	}
	rec, err := g.backend.InsertTask(ctx, owner, core, extended)
	if err != nil {
		g.log.Debug("create task rejected", "owner", owner, "title", t.Title, "error", err)
		return nil, err
	}
	return decodeOne(rec)
}

// UpdateTask applies a partial update. Extended fields in p replace the
// stored extended payload as a single group.
func (g *Gateway) UpdateTask(ctx context.Context, id int64, p models.TaskPatch) (*models.Task, error) {
	owner, err := g.owner(ctx, "update task")
	if err != nil {
		return nil, err
	}
	core, extended, err := codec.EncodePatch(p)
	if err != nil {
		return nil, err
	}
	rec, err := g.backend.UpdateTask(ctx, owner, id, core, extended)
	if err != nil {
		return nil, err
	}
	return decodeOne(rec)
}

// DeleteTask removes a task
func (g *Gateway) DeleteTask(ctx context.Context, id int64) error {
	owner, err := g.owner(ctx, "delete task")
	if err != nil {
		return err
	}
	return g.backend.DeleteTask(ctx, owner, id)
}

func decodeOne(rec *models.TaskRecord) (*models.Task, error) {
	t, err := codec.Decode(*rec)
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", rec.ID, err)
	}
	return &t, nil
}
