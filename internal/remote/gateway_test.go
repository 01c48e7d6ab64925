package remote_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/taskdesk/internal/db"
	"github.com/tgienger/taskdesk/internal/models"
	"github.com/tgienger/taskdesk/internal/remote"
)

type principalBox struct {
	p  models.Principal
	ok bool
}

func (b *principalBox) CurrentPrincipal() (models.Principal, bool) { return b.p, b.ok }

func newGateway(t *testing.T) (*remote.Gateway, *principalBox) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	box := &principalBox{p: models.Principal{ID: "user-1", Email: "lead@example.com"}, ok: true}
	return remote.NewGateway(database, box, nil), box
}

func TestGatewayRequiresPrincipal(t *testing.T) {
	gw, box := newGateway(t)
	box.ok = false
	ctx := context.Background()

	_, err := gw.ListEmployees(ctx)
	assert.ErrorIs(t, err, remote.ErrAuthRequired)

	_, err = gw.CreateTask(ctx, models.NewTask{Title: "x"})
	var authErr *remote.AuthRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "create task", authErr.Op)

	assert.ErrorIs(t, gw.DeleteTask(ctx, 1), remote.ErrAuthRequired)
}

func TestGatewayStampsOwner(t *testing.T) {
	gw, box := newGateway(t)
	ctx := context.Background()

	e, err := gw.CreateEmployee(ctx, models.NewEmployee{FirstName: "Rahul", LastName: "Sharma", Email: "rahul@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "user-1", e.OwnerID)

	// A different principal sees nothing
	box.p = models.Principal{ID: "user-2"}
	employees, err := gw.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Empty(t, employees)

	_, err = gw.GetEmployee(ctx, e.ID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestGatewayPinnedPrincipalWins(t *testing.T) {
	gw, box := newGateway(t)
	pinned := remote.WithPrincipal(context.Background(), box.p)

	// The source has moved on, the pinned call still writes for user-1
	box.p = models.Principal{ID: "user-2"}
	e, err := gw.CreateEmployee(pinned, models.NewEmployee{FirstName: "Rahul", Email: "rahul@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "user-1", e.OwnerID)

	employees, err := gw.ListEmployees(context.Background())
	require.NoError(t, err)
	assert.Empty(t, employees)

	// Pinning works even when nobody is signed in
	box.ok = false
	employees, err = gw.ListEmployees(pinned)
	require.NoError(t, err)
	assert.Len(t, employees, 1)
}

func TestGatewayListSurvivesMalformedPayload(t *testing.T) {
	database, err := db.New(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	gw := remote.NewGateway(database, &principalBox{p: models.Principal{ID: "user-1"}, ok: true}, nil)
	ctx := context.Background()

	e, err := gw.CreateEmployee(ctx, models.NewEmployee{FirstName: "Ananya", Email: "ananya@example.com"})
	require.NoError(t, err)
	for _, title := range []string{"broken", "fine"} {
		_, err := gw.CreateTask(ctx, models.NewTask{
			Title: title, DueDate: "2025-11-28", AssignedTo: e.ID,
			Extended: models.Extended{DependsOn: &[]int64{1}},
		})
		require.NoError(t, err)
	}
	_, err = database.ExecContext(ctx, `UPDATE tasks SET extended_data = '{"comments":' WHERE title = 'broken'`)
	require.NoError(t, err)

	tasks, err := gw.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		if task.Title == "broken" {
			assert.True(t, task.Extended.IsZero())
		} else {
			assert.Equal(t, []int64{1}, task.Dependencies())
		}
	}
}

func TestGatewayTaskExtendedFields(t *testing.T) {
	gw, _ := newGateway(t)
	ctx := context.Background()

	e, err := gw.CreateEmployee(ctx, models.NewEmployee{FirstName: "Ananya", Email: "ananya@example.com"})
	require.NoError(t, err)

	created, err := gw.CreateTask(ctx, models.NewTask{
		Title:      "Write test cases",
		Status:     models.StatusTodo,
		Priority:   models.PriorityMedium,
		DueDate:    "2025-11-28",
		AssignedTo: e.ID,
		Extended: models.Extended{
			Subtasks: &[]models.Subtask{{Title: "login flow"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.Subtask{{Title: "login flow"}}, created.SubtaskList())

	updated, err := gw.UpdateTask(ctx, created.ID, models.TaskPatch{Extended: models.Extended{
		Comments: &[]models.TaskComment{{Content: "hi"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, []models.TaskComment{{Content: "hi"}}, updated.CommentList())
	// The payload was replaced as a group, so subtasks are gone
	assert.Nil(t, updated.Subtasks)

	fetched, err := gw.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Extended, fetched.Extended)

	byAssignee, err := gw.GetTasksByAssignee(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, byAssignee, 1)
	assert.Equal(t, []models.TaskComment{{Content: "hi"}}, byAssignee[0].CommentList())
}

func TestGatewayUpdateMissingEmployee(t *testing.T) {
	gw, _ := newGateway(t)
	role := "QA"
	_, err := gw.UpdateEmployee(context.Background(), 404, models.EmployeePatch{Role: &role})

	var nf *remote.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(404), nf.ID)
}
