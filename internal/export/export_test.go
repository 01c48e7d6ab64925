package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/taskdesk/internal/models"
)

type snapshot struct {
	employees []models.Employee
	tasks     []models.Task
}

func (s snapshot) Employees() []models.Employee { return s.employees }
func (s snapshot) Tasks() []models.Task         { return s.tasks }

func task(id int64, title string, status models.TaskStatus, assignee int64) models.Task {
	return models.Task{TaskCore: models.TaskCore{
		ID: id, Title: title, Status: status, Priority: models.PriorityMedium,
		DueDate: "2025-11-28", AssignedTo: assignee,
	}}
}

func fixture() snapshot {
	joined := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	return snapshot{
		employees: []models.Employee{
			{ID: 1, FirstName: "Rahul", LastName: "Sharma", Email: "rahul@example.com", Role: "Developer", JoinedAt: joined},
			{ID: 2, FirstName: "Priya", LastName: "Patel", Email: "priya@example.com", Role: "Designer"},
		},
		tasks: []models.Task{
			task(10, "Build dashboard, charts", models.StatusDone, 1),
			task(11, "Write tests", models.StatusInProgress, 1),
			task(12, "Fix login", models.StatusTodo, 1),
			task(13, "Orphan", models.StatusTodo, 99),
		},
	}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestFileName(t *testing.T) {
	now := time.Date(2025, 11, 3, 22, 10, 0, 0, time.UTC)
	assert.Equal(t, "tasks-2025-11-03.csv", FileName(KindTasks, now))
	assert.Equal(t, "productivity-report-2025-11-03.csv", FileName(KindReport, now))
}

func TestEmployees(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Employees(&buf, fixture()))

	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"First Name", "Last Name", "Email", "Role", "Phone", "Joined At"}, rows[0])
	assert.Equal(t, []string{"Rahul", "Sharma", "rahul@example.com", "Developer", "", "2025-01-15T09:00:00Z"}, rows[1])
	assert.Equal(t, "", rows[2][5])
}

func TestTasks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Tasks(&buf, fixture()))

	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 5)
	assert.Equal(t, "Build dashboard, charts", rows[1][0])
	assert.Equal(t, "Rahul Sharma", rows[1][5])
	assert.Equal(t, "Unassigned", rows[4][5])
}

func TestReport(t *testing.T) {
	report := BuildReport(fixture())
	require.Len(t, report, 2)
	assert.Equal(t, ReportRow{
		Employee: "Rahul Sharma", Role: "Developer",
		Total: 3, Completed: 1, InProgress: 1, Todo: 1, CompletionRate: 33,
	}, report[0])
	assert.Equal(t, 0, report[1].CompletionRate)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, KindReport, fixture()))
	rows := readCSV(t, buf.Bytes())
	assert.Equal(t, []string{"Rahul Sharma", "Developer", "3", "1", "1", "1", "33%"}, rows[1])
	assert.Equal(t, "0%", rows[2][6])
}

func TestCompletionRateRounds(t *testing.T) {
	src := snapshot{
		employees: []models.Employee{{ID: 1, FirstName: "A"}},
		tasks: []models.Task{
			task(1, "a", models.StatusDone, 1),
			task(2, "b", models.StatusDone, 1),
			task(3, "c", models.StatusTodo, 1),
		},
	}
	assert.Equal(t, 67, BuildReport(src)[0].CompletionRate)
}

func TestWriteUnknownKind(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, Kind("pdf"), fixture()))
}
