package ui

import (
	"context"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tgienger/taskdesk/internal/models"
	"github.com/tgienger/taskdesk/internal/session"
	"github.com/tgienger/taskdesk/internal/ui/views"
)

// Currently active view
type View int

const (
	ViewLogin View = iota
	ViewEmployees
	ViewTasks
)

// pollInterval is how often the app checks for loads it did not start,
// such as scheduled refreshes
const pollInterval = 2 * time.Second

// Store is the domain store as seen by the app
type Store interface {
	views.Store
	LoadedAt() time.Time
}

// Session is the session controller as seen by the app
type Session interface {
	views.Session
	SignOut(ctx context.Context) error
	State() session.State
	OnChange(fn func(session.State))
}

// Settings persists small UI preferences
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

type authChanged struct{}

type pollTick struct{}

type App struct {
	store    Store
	session  Session
	settings Settings

	authCh   chan struct{}
	loadedAt time.Time

	currentView  View
	login        *views.LoginView
	employeeList *views.EmployeeListView
	taskList     *views.TaskListView
	width        int
	height       int
}

// Creates a new application. settings may be nil.
func NewApp(store Store, sess Session, settings Settings) *App {
	a := &App{
		store:        store,
		session:      sess,
		settings:     settings,
		authCh:       make(chan struct{}, 1),
		login:        views.NewLoginView(sess),
		employeeList: views.NewEmployeeListView(store),
	}
	// Coalesce notifications; the app re-reads State() on receipt
	sess.OnChange(func(session.State) {
		select {
		case a.authCh <- struct{}{}:
		default:
		}
	})
	return a
}

func (a *App) waitForAuth() tea.Cmd {
	return func() tea.Msg {
		<-a.authCh
		return authChanged{}
	}
}

func poll() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollTick{} })
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.waitForAuth(), poll(), a.syncAuth())
}

func (a *App) resize() tea.Cmd {
	return func() tea.Msg {
		return tea.WindowSizeMsg{Width: a.width, Height: a.height}
	}
}

// syncAuth switches views to match the session state
func (a *App) syncAuth() tea.Cmd {
	if a.session.State() != session.Authenticated {
		if a.currentView != ViewLogin {
			a.currentView = ViewLogin
			a.taskList = nil
			a.login.Reset()
		}
		return a.login.Init()
	}
	if a.currentView != ViewLogin {
		return nil
	}

	a.currentView = ViewEmployees
	a.employeeList = views.NewEmployeeListView(a.store)
	cmds := []tea.Cmd{a.employeeList.Init(), a.resize(), views.Reload(a.store)}

	// Reopen the last employee like the last session left it
	if id, ok := a.lastEmployee(); ok {
		if e, found := a.store.EmployeeByID(id); found {
			cmds = append(cmds, a.openTasks(&e))
		} else {
			cmds = append(cmds, a.reopenAfterLoad(id))
		}
	}
	return tea.Batch(cmds...)
}

type reopenEmployee struct {
	id int64
}

// reopenAfterLoad waits for the initial load before reopening an employee
func (a *App) reopenAfterLoad(id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.store.Load(ctx); err != nil {
			return views.ErrorMsg{Err: err}
		}
		return reopenEmployee{id: id}
	}
}

func (a *App) settingKey() (string, bool) {
	p, ok := a.store.Principal()
	if !ok || a.settings == nil {
		return "", false
	}
	return "last_employee_id:" + p.ID, true
}

func (a *App) lastEmployee() (int64, bool) {
	k, ok := a.settingKey()
	if !ok {
		return 0, false
	}
	v, err := a.settings.GetSetting(context.Background(), k)
	if err != nil || v == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	return id, err == nil
}

func (a *App) rememberEmployee(e *models.Employee) {
	k, ok := a.settingKey()
	if !ok {
		return
	}
	v := ""
	if e != nil {
		v = strconv.FormatInt(e.ID, 10)
	}
	_ = a.settings.SetSetting(context.Background(), k, v)
}

func (a *App) openTasks(e *models.Employee) tea.Cmd {
	a.currentView = ViewTasks
	a.taskList = views.NewTaskListView(a.store, e)
	a.rememberEmployee(e)

	return tea.Batch(a.taskList.Init(), a.resize())
}

func (a *App) signOut() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.session.SignOut(ctx); err != nil {
			return views.ErrorMsg{Err: err}
		}
		return nil
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		// The login and employee views persist, keep them sized
		a.login.Update(msg)
		a.employeeList.Update(msg)
		if a.taskList != nil {
			a.taskList.Update(msg)
		}
		return a, nil

	case authChanged:
		return a, tea.Batch(a.syncAuth(), a.waitForAuth())

	case pollTick:
		if t := a.store.LoadedAt(); !t.Equal(a.loadedAt) {
			a.loadedAt = t
			return a, tea.Batch(poll(), func() tea.Msg { return views.DataChanged{} })
		}
		return a, poll()

	case reopenEmployee:
		if a.currentView != ViewEmployees {
			return a, nil
		}
		if e, ok := a.store.EmployeeByID(msg.id); ok {
			return a, a.openTasks(&e)
		}
		return a, nil

	case views.SelectedEmployee:
		e := msg.Employee
		return a, a.openTasks(&e)

	case views.ShowAllTasks:
		return a, a.openTasks(nil)

	case views.BackToEmployees:
		a.currentView = ViewEmployees
		a.taskList = nil
		a.rememberEmployee(nil)
		return a, tea.Batch(a.employeeList.Init(), a.resize())

	case views.SignOutRequested:
		return a, a.signOut()

	case views.DataChanged:
		a.loadedAt = a.store.LoadedAt()
		// Both lists read from the store; keep the hidden one current too
		a.employeeList.Update(msg)
		if a.taskList != nil {
			a.taskList.Update(msg)
		}
		return a, nil
	}

	var cmd tea.Cmd
	switch a.currentView {
	case ViewLogin:
		_, cmd = a.login.Update(msg)
	case ViewEmployees:
		_, cmd = a.employeeList.Update(msg)
	case ViewTasks:
		_, cmd = a.taskList.Update(msg)
	}

	return a, cmd
}

func (a *App) View() string {
	switch a.currentView {
	case ViewLogin:
		return a.login.View()
	case ViewTasks:
		if a.taskList != nil {
			return a.taskList.View()
		}
	}
	return a.employeeList.View()
}
