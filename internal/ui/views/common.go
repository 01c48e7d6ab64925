package views

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/taskdesk/internal/models"
	"github.com/tgienger/taskdesk/internal/remote"
	"github.com/tgienger/taskdesk/internal/state"
	"github.com/tgienger/taskdesk/internal/ui/styles"
)

// Store is the part of state.Store the views use
type Store interface {
	Employees() []models.Employee
	Tasks() []models.Task
	EmployeeByID(id int64) (models.Employee, bool)
	TaskByID(id int64) (models.Task, bool)
	TasksByEmployee(employeeID int64) []models.Task
	DependencyCandidates(taskID int64) []models.Task
	Stats() state.Stats
	Principal() (models.Principal, bool)
	Loading() bool
	LoadErr() error
	Load(ctx context.Context) error

	AddEmployee(ctx context.Context, e models.NewEmployee) (models.Employee, error)
	UpdateEmployee(ctx context.Context, id int64, p models.EmployeePatch) (models.Employee, error)
	DeleteEmployee(ctx context.Context, id int64) error
	AddTask(ctx context.Context, t models.NewTask) (models.Task, error)
	UpdateTask(ctx context.Context, id int64, p models.TaskPatch) (models.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

var _ Store = (*state.Store)(nil)

// mutationTimeout bounds a single remote write started from the UI
const mutationTimeout = 30 * time.Second

// DataChanged is sent after the store changed; views re-read their rows
type DataChanged struct{}

// ErrorMsg reports a failed store operation to the user
type ErrorMsg struct {
	Err error
}

// mutate runs fn against the store off the UI goroutine
func mutate(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			return ErrorMsg{Err: err}
		}
		return DataChanged{}
	}
}

// Reload reloads the store
func Reload(store Store) tea.Cmd {
	return mutate(store.Load)
}

// clamp returns val clamped between minVal and maxVal
func clamp(val, minVal, maxVal int) int {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

// renderError formats err for the status line
func renderError(s *styles.Styles, err error) string {
	if err == nil {
		return ""
	}
	return s.StatusError.Render(remote.Describe(err))
}

// renderConfirm draws a centered yes/no prompt
func renderConfirm(s *styles.Styles, width, height int, title, detail string) string {
	contentWidth := styles.ContentWidth(width)

	content := lipgloss.JoinVertical(lipgloss.Center,
		s.Title.Foreground(styles.Current.Error).Render(title),
		"",
		s.TitleMuted.Render(detail),
		"",
		lipgloss.JoinHorizontal(lipgloss.Center,
			s.ButtonPrimary.Render(" Y - Yes "),
			"  ",
			s.Button.Render(" N - No "),
		),
	)

	centered := lipgloss.Place(contentWidth, height,
		lipgloss.Center, lipgloss.Center,
		content,
	)
	return styles.CenterView(centered, width, height)
}

// renderHelpPopup draws the keyboard shortcut overlay
func renderHelpPopup(s *styles.Styles, width, height int, lines []string) string {
	contentWidth := styles.ContentWidth(width)

	items := append([]string{s.Title.Render("Keyboard Shortcuts"), ""}, lines...)
	items = append(items, "", s.TitleMuted.Render("Press any key to close"))
	content := lipgloss.JoinVertical(lipgloss.Left, items...)

	centered := lipgloss.Place(contentWidth, height,
		lipgloss.Center, lipgloss.Center,
		s.Panel.Render(content),
	)
	return styles.CenterView(centered, width, height)
}
