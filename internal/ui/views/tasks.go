package views

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/taskdesk/internal/models"
	"github.com/tgienger/taskdesk/internal/ui/keys"
	"github.com/tgienger/taskdesk/internal/ui/styles"
)

// FocusArea represents which part of the UI has focus
type FocusArea int

const (
	FocusBackButton FocusArea = iota
	FocusSearchInput
	FocusStatusFilter
	FocusTaskList
)

// task form fields, in focus order
const (
	taskFieldTitle = iota
	taskFieldDesc
	taskFieldPriority
	taskFieldDue
	taskFieldAssignee
	taskFieldSubmit
)

// BackToEmployees signals to go back to the employee list
type BackToEmployees struct{}

// TaskListView shows tasks, optionally only those of one employee
type TaskListView struct {
	store    Store
	employee *models.Employee // nil = all employees
	tasks    []models.Task    // visible rows after search and filter
	styles   *styles.Styles
	keys     keys.KeyMap
	err      error

	width  int
	height int

	focus        FocusArea
	cursor       int
	scrollY      int
	searchInput  textinput.Model
	statusFilter *models.TaskStatus // nil = all

	// create/edit form
	editing      bool
	editID       int64 // 0 when creating
	editTitle    textinput.Model
	editDesc     textarea.Model
	editDue      textinput.Model
	editPriority models.Priority
	editAssignee int // index into employees
	employees    []models.Employee
	editFocusIdx int

	// detail view
	viewingTask         bool
	viewTaskID          int64
	commentInput        textarea.Model
	commentInputFocused bool
	subtaskCursor       int

	// dependency picker
	pickingDeps bool
	candidates  []models.Task
	depCursor   int

	confirmingDelete bool
	deleteTargetID   int64
	deleteTargetName string

	showHelpPopup bool
}

// NewTaskListView creates a task list. A nil employee shows every task.
func NewTaskListView(store Store, employee *models.Employee) *TaskListView {
	s := styles.NewStyles()

	search := textinput.New()
	search.Placeholder = "Search..."
	search.CharLimit = 100

	editTitle := textinput.New()
	editTitle.Placeholder = "Task title"
	editTitle.CharLimit = 200

	editDesc := textarea.New()
	editDesc.Placeholder = "Description"
	editDesc.CharLimit = 1000
	editDesc.SetWidth(50)
	editDesc.SetHeight(3)
	editDesc.ShowLineNumbers = false

	editDue := textinput.New()
	editDue.Placeholder = "YYYY-MM-DD"
	editDue.CharLimit = 10

	commentInput := textarea.New()
	commentInput.Placeholder = "Add a comment..."
	commentInput.CharLimit = 2000
	commentInput.SetWidth(50)
	commentInput.SetHeight(3)
	commentInput.ShowLineNumbers = false

	return &TaskListView{
		store:        store,
		employee:     employee,
		styles:       s,
		keys:         keys.DefaultKeyMap(),
		focus:        FocusTaskList,
		searchInput:  search,
		editTitle:    editTitle,
		editDesc:     editDesc,
		editDue:      editDue,
		commentInput: commentInput,
	}
}

// Init initializes the view
func (v *TaskListView) Init() tea.Cmd {
	v.refreshTasks()
	return nil
}

// refreshTasks re-reads rows from the store and applies search and filter
func (v *TaskListView) refreshTasks() {
	var tasks []models.Task
	if v.employee != nil {
		if _, ok := v.store.EmployeeByID(v.employee.ID); !ok {
			tasks = nil
		} else {
			tasks = v.store.TasksByEmployee(v.employee.ID)
		}
	} else {
		tasks = v.store.Tasks()
	}

	search := strings.ToLower(strings.TrimSpace(v.searchInput.Value()))
	v.tasks = slices.DeleteFunc(tasks, func(t models.Task) bool {
		if v.statusFilter != nil && t.Status != *v.statusFilter {
			return true
		}
		if search == "" {
			return false
		}
		desc := ""
		if t.Description != nil {
			desc = *t.Description
		}
		return !strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(desc), search)
	})

	if v.cursor >= len(v.tasks) {
		v.cursor = max(0, len(v.tasks)-1)
	}
	// The viewed task may have been deleted elsewhere
	if v.viewingTask {
		if _, ok := v.store.TaskByID(v.viewTaskID); !ok {
			v.viewingTask = false
		}
	}
}

func (v *TaskListView) selected() (models.Task, bool) {
	if len(v.tasks) == 0 || v.cursor >= len(v.tasks) {
		return models.Task{}, false
	}
	return v.tasks[v.cursor], true
}

// Update handles messages
func (v *TaskListView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		contentWidth := styles.ContentWidth(v.width)
		inputWidth := clamp(contentWidth-10, 20, 50)
		v.editDesc.SetWidth(inputWidth)
		v.commentInput.SetWidth(inputWidth)
		return v, nil

	case DataChanged:
		v.err = nil
		v.refreshTasks()
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
		if v.pickingDeps {
			return v.updatePickingDeps(msg)
		}
		if v.viewingTask {
			return v.updateViewingTask(msg)
		}
		return v.updateNormal(msg)
	}

	return v, nil
}

func (v *TaskListView) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Don't process hotkeys while typing a search
	if v.focus == FocusSearchInput {
		switch {
		case key.Matches(msg, v.keys.Back), key.Matches(msg, v.keys.Enter):
			v.searchInput.Blur()
			v.focus = FocusTaskList
			return v, nil
		default:
			var cmd tea.Cmd
			v.searchInput, cmd = v.searchInput.Update(msg)
			v.refreshTasks()
			return v, cmd
		}
	}

	switch {
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit

	case key.Matches(msg, v.keys.Back):
		return v, func() tea.Msg { return BackToEmployees{} }

	case key.Matches(msg, v.keys.Tab):
		v.cycleFocus(1)
		return v, nil

	case msg.String() == "shift+tab":
		v.cycleFocus(-1)
		return v, nil

	case key.Matches(msg, v.keys.Search):
		v.focus = FocusSearchInput
		v.searchInput.Focus()
		return v, textinput.Blink

	case key.Matches(msg, v.keys.Filter):
		v.cycleStatusFilter()
		return v, nil

	case key.Matches(msg, v.keys.Help):
		v.showHelpPopup = true
		return v, nil

	case key.Matches(msg, v.keys.Refresh):
		return v, Reload(v.store)

	case key.Matches(msg, v.keys.Up):
		if v.focus == FocusTaskList && v.cursor > 0 {
			v.cursor--
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.Down):
		if v.focus == FocusTaskList && v.cursor < len(v.tasks)-1 {
			v.cursor++
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		switch v.focus {
		case FocusBackButton:
			return v, func() tea.Msg { return BackToEmployees{} }
		case FocusStatusFilter:
			v.cycleStatusFilter()
			return v, nil
		}
		if task, ok := v.selected(); ok {
			v.openTask(task.ID)
		}
		return v, nil

	case key.Matches(msg, v.keys.New):
		if err := v.startForm(nil); err != nil {
			v.err = err
			return v, nil
		}
		return v, textinput.Blink

	case key.Matches(msg, v.keys.Edit):
		if task, ok := v.selected(); ok {
			if err := v.startForm(&task); err != nil {
				v.err = err
				return v, nil
			}
			return v, textinput.Blink
		}

	case key.Matches(msg, v.keys.Status):
		if task, ok := v.selected(); ok {
			return v, v.advanceStatus(task)
		}

	case key.Matches(msg, v.keys.Delete):
		if task, ok := v.selected(); ok {
			v.confirmingDelete = true
			v.deleteTargetID = task.ID
			v.deleteTargetName = task.Title
		}
		return v, nil
	}

	return v, nil
}

func (v *TaskListView) cycleFocus(dir int) {
	v.searchInput.Blur()
	v.focus = FocusArea((int(v.focus) + dir + 4) % 4)
	if v.focus == FocusSearchInput {
		v.searchInput.Focus()
	}
}

// cycleStatusFilter steps through all → todo → in-progress → done → all
func (v *TaskListView) cycleStatusFilter() {
	switch {
	case v.statusFilter == nil:
		s := models.Statuses[0]
		v.statusFilter = &s
	case *v.statusFilter == models.StatusDone:
		v.statusFilter = nil
	default:
		s := v.statusFilter.Next()
		v.statusFilter = &s
	}
	v.cursor, v.scrollY = 0, 0
	v.refreshTasks()
}

func (v *TaskListView) ensureVisible() {
	visibleItems := v.visibleItems()
	if v.cursor < v.scrollY {
		v.scrollY = v.cursor
	} else if v.cursor >= v.scrollY+visibleItems {
		v.scrollY = v.cursor - visibleItems + 1
	}
}

// visibleItems is how many 3-line task rows fit on screen
func (v *TaskListView) visibleItems() int {
	return max((v.height-12)/3, 1)
}

func (v *TaskListView) advanceStatus(task models.Task) tea.Cmd {
	next := task.Status.Next()
	id := task.ID
	return mutate(func(ctx context.Context) error {
		_, err := v.store.UpdateTask(ctx, id, models.TaskPatch{
			TaskCorePatch: models.TaskCorePatch{Status: &next},
		})
		return err
	})
}

func (v *TaskListView) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		v.confirmingDelete = false
		v.viewingTask = false
		id := v.deleteTargetID
		return v, mutate(func(ctx context.Context) error {
			return v.store.DeleteTask(ctx, id)
		})
	case "n", "N", "esc":
		v.confirmingDelete = false
	}
	return v, nil
}

// startForm opens the task form, prefilled from task when editing
func (v *TaskListView) startForm(task *models.Task) error {
	v.employees = v.store.Employees()
	if len(v.employees) == 0 {
		return errors.New("add an employee before creating tasks")
	}

	v.editing = true
	v.editFocusIdx = taskFieldTitle
	v.editID = 0
	v.editTitle.Reset()
	v.editDesc.Reset()
	v.editDue.SetValue(time.Now().AddDate(0, 0, 7).Format(time.DateOnly))
	v.editPriority = models.PriorityMedium
	v.editAssignee = 0
	if v.employee != nil {
		v.editAssignee = max(slices.IndexFunc(v.employees, func(e models.Employee) bool { return e.ID == v.employee.ID }), 0)
	}

	if task != nil {
		v.editID = task.ID
		v.editTitle.SetValue(task.Title)
		if task.Description != nil {
			v.editDesc.SetValue(*task.Description)
		}
		v.editDue.SetValue(task.DueDate)
		v.editPriority = task.Priority
		if i := slices.IndexFunc(v.employees, func(e models.Employee) bool { return e.ID == task.AssignedTo }); i >= 0 {
			v.editAssignee = i
		}
	}
	v.updateEditFocus()
	return nil
}

func (v *TaskListView) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		v.editing = false
		return v, nil

	case key.Matches(msg, v.keys.Save):
		return v, v.saveTask()

	case msg.String() == "shift+tab":
		v.editFocusIdx = (v.editFocusIdx + taskFieldSubmit) % (taskFieldSubmit + 1)
		v.updateEditFocus()
		return v, nil

	case key.Matches(msg, v.keys.Tab):
		v.editFocusIdx = (v.editFocusIdx + 1) % (taskFieldSubmit + 1)
		v.updateEditFocus()
		return v, nil
	}

	switch v.editFocusIdx {
	case taskFieldPriority:
		switch msg.String() {
		case "left", "h":
			v.editPriority = cyclePriority(v.editPriority, -1)
		case "right", "l", " ":
			v.editPriority = cyclePriority(v.editPriority, 1)
		case "enter":
			v.editFocusIdx++
			v.updateEditFocus()
		}
		return v, nil

	case taskFieldAssignee:
		switch msg.String() {
		case "left", "h":
			v.editAssignee = (v.editAssignee + len(v.employees) - 1) % len(v.employees)
		case "right", "l", " ":
			v.editAssignee = (v.editAssignee + 1) % len(v.employees)
		case "enter":
			v.editFocusIdx++
			v.updateEditFocus()
		}
		return v, nil

	case taskFieldSubmit:
		if key.Matches(msg, v.keys.Enter) {
			return v, v.saveTask()
		}
		return v, nil
	}

	if key.Matches(msg, v.keys.Enter) && v.editFocusIdx != taskFieldDesc {
		v.editFocusIdx++
		v.updateEditFocus()
		return v, nil
	}

	var cmd tea.Cmd
	switch v.editFocusIdx {
	case taskFieldTitle:
		v.editTitle, cmd = v.editTitle.Update(msg)
	case taskFieldDesc:
		v.editDesc, cmd = v.editDesc.Update(msg)
	case taskFieldDue:
		v.editDue, cmd = v.editDue.Update(msg)
	}
	return v, cmd
}

func cyclePriority(p models.Priority, dir int) models.Priority {
	i := slices.Index(models.Priorities, p)
	if i < 0 {
		i = 1
	}
	n := len(models.Priorities)
	return models.Priorities[(i+dir+n)%n]
}

func (v *TaskListView) updateEditFocus() {
	v.editTitle.Blur()
	v.editDesc.Blur()
	v.editDue.Blur()

	switch v.editFocusIdx {
	case taskFieldTitle:
		v.editTitle.Focus()
	case taskFieldDesc:
		v.editDesc.Focus()
	case taskFieldDue:
		v.editDue.Focus()
	}
}

// saveTask validates the form and starts the remote write
func (v *TaskListView) saveTask() tea.Cmd {
	title := strings.TrimSpace(v.editTitle.Value())
	if title == "" {
		v.err = errors.New("title is required")
		return nil
	}
	due := strings.TrimSpace(v.editDue.Value())
	if _, err := time.Parse(time.DateOnly, due); err != nil {
		v.err = fmt.Errorf("due date must look like %s", time.DateOnly)
		return nil
	}
	var desc *string
	if d := strings.TrimSpace(v.editDesc.Value()); d != "" {
		desc = &d
	}
	priority := v.editPriority
	assignee := v.employees[v.editAssignee].ID
	v.editing = false
	v.err = nil

	if v.editID == 0 {
		nt := models.NewTask{
			Title:       title,
			Description: desc,
			Status:      models.StatusTodo,
			Priority:    priority,
			DueDate:     due,
			AssignedTo:  assignee,
		}
		return mutate(func(ctx context.Context) error {
			_, err := v.store.AddTask(ctx, nt)
			return err
		})
	}

	if desc == nil {
		empty := ""
		desc = &empty
	}
	id := v.editID
	patch := models.TaskPatch{TaskCorePatch: models.TaskCorePatch{
		Title:       &title,
		Description: desc,
		Priority:    &priority,
		DueDate:     &due,
		AssignedTo:  &assignee,
	}}
	return mutate(func(ctx context.Context) error {
		_, err := v.store.UpdateTask(ctx, id, patch)
		return err
	})
}

func (v *TaskListView) openTask(id int64) {
	v.viewingTask = true
	v.viewTaskID = id
	v.subtaskCursor = 0
	v.commentInputFocused = false
	v.commentInput.Reset()
}

func (v *TaskListView) updateViewingTask(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	task, ok := v.store.TaskByID(v.viewTaskID)
	if !ok {
		v.viewingTask = false
		return v, nil
	}

	if v.commentInputFocused {
		switch {
		case key.Matches(msg, v.keys.Back):
			v.commentInputFocused = false
			v.commentInput.Blur()
			return v, nil
		case key.Matches(msg, v.keys.Save):
			return v, v.submitComment(task)
		default:
			var cmd tea.Cmd
			v.commentInput, cmd = v.commentInput.Update(msg)
			return v, cmd
		}
	}

	subtasks := task.SubtaskList()
	switch {
	case key.Matches(msg, v.keys.Back):
		v.viewingTask = false
		return v, nil
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit
	case key.Matches(msg, v.keys.Edit):
		v.viewingTask = false
		if err := v.startForm(&task); err != nil {
			v.err = err
			return v, nil
		}
		return v, textinput.Blink
	case key.Matches(msg, v.keys.Delete):
		v.confirmingDelete = true
		v.deleteTargetID = task.ID
		v.deleteTargetName = task.Title
		return v, nil
	case key.Matches(msg, v.keys.Status):
		return v, v.advanceStatus(task)
	case key.Matches(msg, v.keys.Comment):
		v.commentInputFocused = true
		v.commentInput.Focus()
		return v, textarea.Blink
	case key.Matches(msg, v.keys.Depends):
		v.pickingDeps = true
		v.depCursor = 0
		v.candidates = v.store.DependencyCandidates(task.ID)
		return v, nil
	case key.Matches(msg, v.keys.Up):
		if v.subtaskCursor > 0 {
			v.subtaskCursor--
		}
		return v, nil
	case key.Matches(msg, v.keys.Down):
		if v.subtaskCursor < len(subtasks)-1 {
			v.subtaskCursor++
		}
		return v, nil
	case key.Matches(msg, v.keys.Toggle):
		if v.subtaskCursor < len(subtasks) {
			return v, v.toggleSubtask(task, v.subtaskCursor)
		}
	}
	return v, nil
}

// submitComment appends a comment. Extended data is written back as one group.
func (v *TaskListView) submitComment(task models.Task) tea.Cmd {
	content := strings.TrimSpace(v.commentInput.Value())
	if content == "" {
		return nil
	}

	comment := models.TaskComment{
		TaskID:    task.ID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if p, ok := v.store.Principal(); ok {
		comment.UserID = p.ID
		comment.AuthorName = strings.TrimSpace(p.FirstName + " " + p.LastName)
		if comment.AuthorName == "" {
			comment.AuthorName = p.Email
		}
	}
	comments := append(slices.Clone(task.CommentList()), comment)
	ext := task.Extended.Clone()
	ext.Comments = &comments

	v.commentInput.Reset()
	v.commentInputFocused = false
	v.commentInput.Blur()

	id := task.ID
	return mutate(func(ctx context.Context) error {
		_, err := v.store.UpdateTask(ctx, id, models.TaskPatch{Extended: ext})
		return err
	})
}

func (v *TaskListView) toggleSubtask(task models.Task, i int) tea.Cmd {
	subtasks := slices.Clone(task.SubtaskList())
	subtasks[i].Completed = !subtasks[i].Completed
	ext := task.Extended.Clone()
	ext.Subtasks = &subtasks
	id := task.ID
	return mutate(func(ctx context.Context) error {
		_, err := v.store.UpdateTask(ctx, id, models.TaskPatch{Extended: ext})
		return err
	})
}

func (v *TaskListView) updatePickingDeps(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		v.pickingDeps = false
		return v, nil
	case key.Matches(msg, v.keys.Up):
		if v.depCursor > 0 {
			v.depCursor--
		}
		return v, nil
	case key.Matches(msg, v.keys.Down):
		if v.depCursor < len(v.candidates)-1 {
			v.depCursor++
		}
		return v, nil
	case key.Matches(msg, v.keys.Enter), key.Matches(msg, v.keys.Toggle):
		if v.depCursor >= len(v.candidates) {
			return v, nil
		}
		task, ok := v.store.TaskByID(v.viewTaskID)
		if !ok {
			v.pickingDeps = false
			return v, nil
		}
		deps := append(slices.Clone(task.Dependencies()), v.candidates[v.depCursor].ID)
		ext := task.Extended.Clone()
		ext.DependsOn = &deps
		v.pickingDeps = false
		id := task.ID
		return v, mutate(func(ctx context.Context) error {
			_, err := v.store.UpdateTask(ctx, id, models.TaskPatch{Extended: ext})
			return err
		})
	}
	return v, nil
}

// View renders the view
func (v *TaskListView) View() string {
	if v.showHelpPopup {
		return v.renderHelpPopup()
	}
	if v.confirmingDelete {
		return renderConfirm(v.styles, v.width, v.height, "Delete Task?", fmt.Sprintf("%q will be removed.", v.deleteTargetName))
	}
	if v.editing {
		return v.renderEditForm()
	}
	if v.pickingDeps {
		return v.renderDependencyPicker()
	}
	if v.viewingTask {
		return v.renderTaskView()
	}

	var b strings.Builder
	b.WriteString(v.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(v.renderTaskList())
	if v.err != nil {
		b.WriteString("\n" + renderError(v.styles, v.err))
	}
	b.WriteString("\n")
	b.WriteString(v.renderHelp())

	return styles.CenterView(b.String(), v.width, v.height)
}

func (v *TaskListView) renderHeader() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	isNarrow := contentWidth < 60

	searchStyle := s.Input
	if v.focus == FocusSearchInput {
		searchStyle = s.InputFocused
	}
	searchWidth := clamp(contentWidth-8, 10, 30)
	searchBox := searchStyle.Width(searchWidth).Render(v.searchInput.View())

	filterStyle := s.Button
	if v.focus == FocusStatusFilter {
		filterStyle = s.ButtonFocused
	}
	filterLabel := "All"
	if v.statusFilter != nil {
		filterLabel = styles.StatusLabel(*v.statusFilter)
	}
	if !isNarrow {
		filterLabel = "Status: " + filterLabel
	}
	filterBtn := filterStyle.Render(filterLabel + " ▼")

	titleText := "All Tasks"
	if v.employee != nil {
		titleText = v.employee.FullName() + "'s Tasks"
	}
	title := s.Title.Render(titleText)

	var header string
	if isNarrow {
		header = lipgloss.JoinVertical(lipgloss.Left, searchBox, filterBtn)
	} else {
		backStyle := s.Button
		if v.focus == FocusBackButton {
			backStyle = s.ButtonFocused
		}
		header = lipgloss.JoinHorizontal(lipgloss.Center,
			backStyle.Render("← Employees"), "  ", searchBox, "  ", filterBtn,
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, header)
}

func (v *TaskListView) renderTaskList() string {
	s := v.styles

	if len(v.tasks) == 0 {
		return s.TitleMuted.Render("No tasks. Press 'n' to create one.")
	}

	var items []string
	endIdx := min(v.scrollY+v.visibleItems(), len(v.tasks))
	for i := v.scrollY; i < endIdx; i++ {
		items = append(items, v.renderTaskItem(v.tasks[i], i == v.cursor && v.focus == FocusTaskList))
	}
	return lipgloss.JoinVertical(lipgloss.Left, items...)
}

func (v *TaskListView) assigneeName(id int64) string {
	if e, ok := v.store.EmployeeByID(id); ok {
		return e.FullName()
	}
	return "Unassigned"
}

func (v *TaskListView) renderTaskItem(task models.Task, selected bool) string {
	s := v.styles
	width := max(styles.ContentWidth(v.width)-4, 20)

	status := lipgloss.NewStyle().Foreground(styles.StatusColor(task.Status)).Render("● " + styles.StatusLabel(task.Status))
	priority := lipgloss.NewStyle().Foreground(styles.PriorityColor(task.Priority)).Render(string(task.Priority))
	meta := fmt.Sprintf("%s  %s  due %s", status, priority, task.DueDate)
	if v.employee == nil {
		meta += "  " + v.assigneeName(task.AssignedTo)
	}
	if n := len(task.CommentList()); n > 0 {
		meta += fmt.Sprintf("  💬 %d", n)
	}

	lineStyle := s.ListItem.Width(width)
	if selected {
		lineStyle = s.ListSelected.Width(width)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lineStyle.Render(task.Title), lineStyle.Render(meta)) + "\n"
}

func (v *TaskListView) renderEditForm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	inputWidth := clamp(contentWidth-6, 20, 50)

	fieldStyle := func(idx int) lipgloss.Style {
		if v.editFocusIdx == idx {
			return s.InputFocused
		}
		return s.Input
	}

	title := "New Task"
	if v.editID != 0 {
		title = "Edit Task"
	}

	assignee := ""
	if v.editAssignee < len(v.employees) {
		assignee = v.employees[v.editAssignee].FullName()
	}

	btnStyle := s.Button
	if v.editFocusIdx == taskFieldSubmit {
		btnStyle = s.ButtonFocused
	}

	rows := []string{
		s.Title.Render(title),
		"",
		"Title:",
		fieldStyle(taskFieldTitle).Width(inputWidth).Render(v.editTitle.View()),
		"Description:",
		fieldStyle(taskFieldDesc).Render(v.editDesc.View()),
		"Priority:",
		fieldStyle(taskFieldPriority).Width(inputWidth).Render("◀ " + string(v.editPriority) + " ▶"),
		"Due date:",
		fieldStyle(taskFieldDue).Width(inputWidth).Render(v.editDue.View()),
		"Assigned to:",
		fieldStyle(taskFieldAssignee).Width(inputWidth).Render("◀ " + assignee + " ▶"),
		"",
		btnStyle.Render(" Save "),
	}
	if v.err != nil {
		rows = append(rows, renderError(s, v.err))
	}
	rows = append(rows, "", s.TitleMuted.Render("Tab: next • ←/→: change • Ctrl+S: save • Esc: cancel"))

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *TaskListView) renderDependencyPicker() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	var items []string
	for i, t := range v.candidates {
		style := s.ListItem
		if i == v.depCursor {
			style = s.ListSelected
		}
		items = append(items, style.Render(t.Title))
	}
	if len(items) == 0 {
		items = append(items, s.TitleMuted.Render("No tasks available"))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render("Add Dependency"),
		"",
		lipgloss.JoinVertical(lipgloss.Left, items...),
		"",
		s.TitleMuted.Render("Enter: add • Esc: cancel"),
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		s.Panel.Render(content),
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *TaskListView) renderHelp() string {
	contentWidth := styles.ContentWidth(v.width)
	if contentWidth > 0 && contentWidth < 50 {
		return v.styles.Help.Render(v.styles.HelpKey.Render("?") + " help")
	}
	return v.styles.Help.Render(
		fmt.Sprintf("%s view • %s edit • %s new • %s status • %s del • %s search • %s filter • %s back • %s quit",
			v.styles.HelpKey.Render("↵"),
			v.styles.HelpKey.Render("e"),
			v.styles.HelpKey.Render("n"),
			v.styles.HelpKey.Render("s"),
			v.styles.HelpKey.Render("d"),
			v.styles.HelpKey.Render("/"),
			v.styles.HelpKey.Render("f"),
			v.styles.HelpKey.Render("esc"),
			v.styles.HelpKey.Render("q"),
		),
	)
}

func (v *TaskListView) renderHelpPopup() string {
	s := v.styles
	return renderHelpPopup(s, v.width, v.height, []string{
		s.HelpKey.Render("↵") + "      view task",
		s.HelpKey.Render("e") + "      edit task",
		s.HelpKey.Render("n") + "      new task",
		s.HelpKey.Render("s") + "      next status",
		s.HelpKey.Render("d") + "      delete task",
		s.HelpKey.Render("/") + "      search",
		s.HelpKey.Render("f") + "      filter by status",
		s.HelpKey.Render("r") + "      refresh",
		s.HelpKey.Render("esc") + "    back",
		s.HelpKey.Render("q") + "      quit",
	})
}

func (v *TaskListView) renderTaskView() string {
	task, ok := v.store.TaskByID(v.viewTaskID)
	if !ok {
		return ""
	}

	s := v.styles
	textWidth := clamp(styles.ContentWidth(v.width)-10, 20, 70)
	v.commentInput.SetWidth(clamp(textWidth, 20, 50))
	labelStyle := s.TitleMuted
	text := lipgloss.NewStyle().Width(textWidth)

	descText := s.TitleMuted.Render("No description")
	if task.Description != nil && *task.Description != "" {
		descText = *task.Description
	}

	var deps []string
	for _, id := range task.Dependencies() {
		if t, ok := v.store.TaskByID(id); ok {
			deps = append(deps, "• "+t.Title)
		}
	}
	depsText := s.TitleMuted.Render("None")
	if len(deps) > 0 {
		depsText = strings.Join(deps, "\n")
	}

	var subtaskLines []string
	for i, st := range task.SubtaskList() {
		box := "[ ]"
		if st.Completed {
			box = "[x]"
		}
		style := s.ListItem
		if i == v.subtaskCursor {
			style = s.ListSelected
		}
		subtaskLines = append(subtaskLines, style.Render(box+" "+st.Title))
	}
	subtasksText := s.TitleMuted.Render("No subtasks")
	if len(subtaskLines) > 0 {
		subtasksText = lipgloss.JoinVertical(lipgloss.Left, subtaskLines...)
	}

	commentsContent := s.TitleMuted.Render("No comments yet")
	if comments := task.CommentList(); len(comments) > 0 {
		var lines []string
		for _, c := range comments {
			header := c.CreatedAt.Local().Format("Jan 2, 2006 3:04 PM")
			if c.AuthorName != "" {
				header = c.AuthorName + " • " + header
			}
			lines = append(lines, lipgloss.JoinVertical(lipgloss.Left,
				s.TitleMuted.Render(header),
				text.Render(c.Content),
			))
		}
		commentsContent = lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	commentInputStyle := s.Input
	if v.commentInputFocused {
		commentInputStyle = s.InputFocused
	}

	var helpText string
	if v.commentInputFocused {
		helpText = s.Help.Render(fmt.Sprintf("%s submit • %s cancel",
			s.HelpKey.Render("ctrl+s"),
			s.HelpKey.Render("esc"),
		))
	} else {
		helpText = s.Help.Render(fmt.Sprintf("%s edit • %s status • %s comment • %s depends on • %s subtask • %s delete • %s back",
			s.HelpKey.Render("e"),
			s.HelpKey.Render("s"),
			s.HelpKey.Render("c"),
			s.HelpKey.Render("p"),
			s.HelpKey.Render("space"),
			s.HelpKey.Render("d"),
			s.HelpKey.Render("esc"),
		))
	}

	status := lipgloss.NewStyle().Foreground(styles.StatusColor(task.Status)).Render(styles.StatusLabel(task.Status))
	priority := lipgloss.NewStyle().Foreground(styles.PriorityColor(task.Priority)).Render(string(task.Priority))

	content := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.MarginBottom(1).Render(task.Title),
		labelStyle.Render("Status / Priority / Due"),
		fmt.Sprintf("%s  %s  %s", status, priority, task.DueDate),
		"",
		labelStyle.Render("Assigned to"),
		v.assigneeName(task.AssignedTo),
		"",
		labelStyle.Render("Description"),
		text.Render(descText),
		"",
		labelStyle.Render("Depends on"),
		depsText,
		"",
		labelStyle.Render("Subtasks"),
		subtasksText,
		"",
		labelStyle.Render("Comments"),
		commentsContent,
		"",
		commentInputStyle.Render(v.commentInput.View()),
		renderError(s, v.err),
		helpText,
	)

	padded := lipgloss.NewStyle().Padding(1, 2).Render(content)
	return styles.CenterView(padded, v.width, v.height)
}
