package views

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/taskdesk/internal/models"
	"github.com/tgienger/taskdesk/internal/ui/keys"
	"github.com/tgienger/taskdesk/internal/ui/styles"
)

type employeeItem struct {
	employee models.Employee
	open     int // tasks not done
}

func (i employeeItem) Title() string { return i.employee.FullName() }
func (i employeeItem) Description() string {
	role := i.employee.Role
	if role == "" {
		role = "No role"
	}
	return fmt.Sprintf("%s • %s • %d open", role, i.employee.Email, i.open)
}
func (i employeeItem) FilterValue() string {
	return i.employee.FullName() + " " + i.employee.Email + " " + i.employee.Role
}

type employeeDelegate struct {
	styles *styles.Styles
	width  int
}

func (d employeeDelegate) Height() int                               { return 2 }
func (d employeeDelegate) Spacing() int                              { return 1 }
func (d employeeDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d employeeDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	e, ok := item.(employeeItem)
	if !ok {
		return
	}

	selected := index == m.Index()
	width := max(d.width-4, 20)

	var titleStyle, descStyle lipgloss.Style
	if selected {
		titleStyle = d.styles.ListSelected.Width(width)
		descStyle = d.styles.ListSelected.Foreground(styles.Current.ForegroundDim).Width(width)
	} else {
		titleStyle = d.styles.ListItem.Width(width)
		descStyle = d.styles.ListItem.Foreground(styles.Current.ForegroundDim).Width(width)
	}

	fmt.Fprintf(w, "%s\n%s", titleStyle.Render(e.Title()), descStyle.Render(e.Description()))
}

// SelectedEmployee opens the task list filtered to one employee
type SelectedEmployee struct {
	Employee models.Employee
}

// ShowAllTasks opens the task list for every employee
type ShowAllTasks struct{}

// SignOutRequested asks the app to end the session
type SignOutRequested struct{}

// employee form fields, in focus order
const (
	fieldFirstName = iota
	fieldLastName
	fieldEmail
	fieldRole
	fieldPhone
	fieldSubmit
)

// EmployeeListView lists the signed-in user's employees
type EmployeeListView struct {
	store    Store
	list     list.Model
	delegate *employeeDelegate
	styles   *styles.Styles
	keys     keys.KeyMap
	width    int
	height   int
	err      error

	// create/edit form
	editing  bool
	editID   int64 // 0 when creating
	inputs   []textinput.Model
	focusIdx int

	confirmingDelete bool
	deleteTarget     models.Employee

	showHelpPopup bool
}

// NewEmployeeListView creates the employee list
func NewEmployeeListView(store Store) *EmployeeListView {
	s := styles.NewStyles()

	placeholders := []string{"First name", "Last name", "Email", "Role (optional)", "Phone (optional)"}
	inputs := make([]textinput.Model, len(placeholders))
	for i, p := range placeholders {
		in := textinput.New()
		in.Placeholder = p
		in.CharLimit = 100
		inputs[i] = in
	}

	delegate := &employeeDelegate{styles: s, width: 80}

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = "Employees"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = s.Title
	l.SetShowHelp(false)

	return &EmployeeListView{
		store:    store,
		list:     l,
		delegate: delegate,
		styles:   s,
		keys:     keys.DefaultKeyMap(),
		inputs:   inputs,
	}
}

func (v *EmployeeListView) Init() tea.Cmd {
	v.refreshItems()
	return nil
}

// refreshItems re-reads employees from the store
func (v *EmployeeListView) refreshItems() {
	employees := v.store.Employees()
	items := make([]list.Item, len(employees))
	for i, e := range employees {
		open := 0
		for _, t := range v.store.TasksByEmployee(e.ID) {
			if t.Status != models.StatusDone {
				open++
			}
		}
		items[i] = employeeItem{employee: e, open: open}
	}
	v.list.SetItems(items)
}

func (v *EmployeeListView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		contentWidth := styles.ContentWidth(msg.Width)
		v.delegate.width = contentWidth
		v.list.SetSize(contentWidth-4, msg.Height-8)
		return v, nil

	case DataChanged:
		v.err = nil
		v.refreshItems()
		return v, nil

	case ErrorMsg:
		v.err = msg.Err
		return v, nil

	case tea.KeyMsg:
		if v.showHelpPopup {
			v.showHelpPopup = false
			return v, nil
		}
		if v.confirmingDelete {
			return v.updateConfirmDelete(msg)
		}
		if v.editing {
			return v.updateEditing(msg)
		}
		// Let the list own keys while the filter prompt is open
		if v.list.FilterState() == list.Filtering {
			break
		}

		switch {
		case key.Matches(msg, v.keys.Quit):
			return v, tea.Quit
		case key.Matches(msg, v.keys.New):
			v.startForm(nil)
			return v, textinput.Blink
		case key.Matches(msg, v.keys.Edit):
			if item, ok := v.list.SelectedItem().(employeeItem); ok {
				v.startForm(&item.employee)
				return v, textinput.Blink
			}
		case key.Matches(msg, v.keys.Help):
			v.showHelpPopup = true
			return v, nil
		case key.Matches(msg, v.keys.Tasks):
			return v, func() tea.Msg { return ShowAllTasks{} }
		case key.Matches(msg, v.keys.Refresh):
			return v, Reload(v.store)
		case key.Matches(msg, v.keys.SignOut):
			return v, func() tea.Msg { return SignOutRequested{} }
		case key.Matches(msg, v.keys.Enter):
			if item, ok := v.list.SelectedItem().(employeeItem); ok {
				return v, func() tea.Msg { return SelectedEmployee{Employee: item.employee} }
			}
		case key.Matches(msg, v.keys.Delete):
			if item, ok := v.list.SelectedItem().(employeeItem); ok {
				v.confirmingDelete = true
				v.deleteTarget = item.employee
				return v, nil
			}
		}
	}

	var cmd tea.Cmd
	v.list, cmd = v.list.Update(msg)
	return v, cmd
}

func (v *EmployeeListView) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		v.confirmingDelete = false
		id := v.deleteTarget.ID
		return v, mutate(func(ctx context.Context) error {
			return v.store.DeleteEmployee(ctx, id)
		})
	case "n", "N", "esc":
		v.confirmingDelete = false
	}
	return v, nil
}

func (v *EmployeeListView) startForm(e *models.Employee) {
	v.editing = true
	v.focusIdx = fieldFirstName
	v.editID = 0
	for i := range v.inputs {
		v.inputs[i].Reset()
	}
	if e != nil {
		v.editID = e.ID
		v.inputs[fieldFirstName].SetValue(e.FirstName)
		v.inputs[fieldLastName].SetValue(e.LastName)
		v.inputs[fieldEmail].SetValue(e.Email)
		v.inputs[fieldRole].SetValue(e.Role)
		v.inputs[fieldPhone].SetValue(e.Phone)
	}
	v.updateFocus()
}

func (v *EmployeeListView) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		v.editing = false
		return v, nil

	case key.Matches(msg, v.keys.Save):
		return v, v.save()

	case msg.String() == "shift+tab":
		v.focusIdx = (v.focusIdx + fieldSubmit) % (fieldSubmit + 1)
		v.updateFocus()
		return v, nil

	case key.Matches(msg, v.keys.Tab):
		v.focusIdx = (v.focusIdx + 1) % (fieldSubmit + 1)
		v.updateFocus()
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		if v.focusIdx < fieldSubmit {
			v.focusIdx++
			v.updateFocus()
			return v, nil
		}
		return v, v.save()
	}

	var cmd tea.Cmd
	if v.focusIdx < fieldSubmit {
		v.inputs[v.focusIdx], cmd = v.inputs[v.focusIdx].Update(msg)
	}
	return v, cmd
}

func (v *EmployeeListView) updateFocus() {
	for i := range v.inputs {
		v.inputs[i].Blur()
	}
	if v.focusIdx < fieldSubmit {
		v.inputs[v.focusIdx].Focus()
	}
}

func (v *EmployeeListView) value(field int) string {
	return strings.TrimSpace(v.inputs[field].Value())
}

// save validates the form and starts the remote write
func (v *EmployeeListView) save() tea.Cmd {
	first, email := v.value(fieldFirstName), v.value(fieldEmail)
	if first == "" || email == "" {
		v.err = fmt.Errorf("first name and email are required")
		return nil
	}
	v.editing = false

	if v.editID == 0 {
		e := models.NewEmployee{
			FirstName: first,
			LastName:  v.value(fieldLastName),
			Email:     email,
			Role:      v.value(fieldRole),
			Phone:     v.value(fieldPhone),
		}
		return mutate(func(ctx context.Context) error {
			_, err := v.store.AddEmployee(ctx, e)
			return err
		})
	}

	id := v.editID
	last, role, phone := v.value(fieldLastName), v.value(fieldRole), v.value(fieldPhone)
	patch := models.EmployeePatch{FirstName: &first, LastName: &last, Email: &email, Role: &role, Phone: &phone}
	return mutate(func(ctx context.Context) error {
		_, err := v.store.UpdateEmployee(ctx, id, patch)
		return err
	})
}

// View renders the view
func (v *EmployeeListView) View() string {
	if v.showHelpPopup {
		return v.renderHelpPopup()
	}
	if v.confirmingDelete {
		open := len(v.store.TasksByEmployee(v.deleteTarget.ID))
		return renderConfirm(v.styles, v.width, v.height,
			"Delete Employee?",
			fmt.Sprintf("%s and their %d task(s) will be removed.", v.deleteTarget.FullName(), open))
	}
	if v.editing {
		return v.renderForm()
	}

	var b strings.Builder
	b.WriteString(v.renderStats())
	b.WriteString("\n")
	if len(v.list.Items()) == 0 {
		b.WriteString(v.renderEmpty())
	} else {
		b.WriteString(v.list.View())
	}
	if v.err != nil {
		b.WriteString("\n" + renderError(v.styles, v.err))
	}
	b.WriteString("\n" + v.renderHelp())
	return styles.CenterView(b.String(), v.width, v.height)
}

func (v *EmployeeListView) renderStats() string {
	s := v.styles
	st := v.store.Stats()

	badge := func(label string, n int, color lipgloss.Color) string {
		return s.Badge.Foreground(color).Render(fmt.Sprintf("%s %d", label, n))
	}

	user := ""
	if p, ok := v.store.Principal(); ok {
		user = s.TitleMuted.Render(p.Email)
	}
	loading := ""
	if v.store.Loading() {
		loading = s.TitleMuted.Render(" loading…")
	}

	return lipgloss.JoinHorizontal(lipgloss.Center,
		badge("Employees", st.TotalEmployees, styles.Current.Primary),
		badge("Tasks", st.TotalTasks, styles.Current.Secondary),
		badge("To Do", st.Todo, styles.StatusColor(models.StatusTodo)),
		badge("In Progress", st.InProgress, styles.StatusColor(models.StatusInProgress)),
		badge("Done", st.Done, styles.StatusColor(models.StatusDone)),
		user, loading,
	)
}

func (v *EmployeeListView) renderEmpty() string {
	s := v.styles
	return lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render("No Employees"),
		"",
		s.TitleMuted.Render("Press 'n' to add your first employee"),
	)
}

func (v *EmployeeListView) renderForm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	inputWidth := clamp(contentWidth-6, 20, 50)

	title := "New Employee"
	if v.editID != 0 {
		title = "Edit Employee"
	}

	labels := []string{"First name:", "Last name:", "Email:", "Role:", "Phone:"}
	rows := []string{s.Title.Render(title), ""}
	for i, label := range labels {
		style := s.Input
		if v.focusIdx == i {
			style = s.InputFocused
		}
		rows = append(rows, label, style.Width(inputWidth).Render(v.inputs[i].View()))
	}

	btnStyle := s.Button
	if v.focusIdx == fieldSubmit {
		btnStyle = s.ButtonFocused
	}
	rows = append(rows, "", btnStyle.Render(" Save "))
	if v.err != nil {
		rows = append(rows, renderError(s, v.err))
	}
	rows = append(rows, "", s.TitleMuted.Render("Tab: next • Ctrl+S: save • Esc: cancel"))

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *EmployeeListView) renderHelp() string {
	contentWidth := styles.ContentWidth(v.width)
	if contentWidth > 0 && contentWidth < 50 {
		return v.styles.Help.Render(v.styles.HelpKey.Render("?") + " help")
	}
	return v.styles.Help.Render(
		fmt.Sprintf("%s tasks • %s new • %s edit • %s del • %s all tasks • %s refresh • %s quit",
			v.styles.HelpKey.Render("↵"),
			v.styles.HelpKey.Render("n"),
			v.styles.HelpKey.Render("e"),
			v.styles.HelpKey.Render("d"),
			v.styles.HelpKey.Render("t"),
			v.styles.HelpKey.Render("r"),
			v.styles.HelpKey.Render("q"),
		),
	)
}

func (v *EmployeeListView) renderHelpPopup() string {
	s := v.styles
	return renderHelpPopup(s, v.width, v.height, []string{
		s.HelpKey.Render("↵") + "      employee's tasks",
		s.HelpKey.Render("n") + "      new employee",
		s.HelpKey.Render("e") + "      edit employee",
		s.HelpKey.Render("d") + "      delete employee",
		s.HelpKey.Render("/") + "      filter",
		s.HelpKey.Render("t") + "      all tasks",
		s.HelpKey.Render("r") + "      refresh",
		s.HelpKey.Render("ctrl+o") + " sign out",
		s.HelpKey.Render("q") + "      quit",
	})
}
