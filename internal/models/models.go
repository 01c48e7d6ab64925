package models

import (
	"encoding/json"
	"time"
)

// TaskStatus is the workflow state of a task
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in-progress"
	StatusDone       TaskStatus = "done"
)

// Statuses lists every status in display order
var Statuses = []TaskStatus{StatusTodo, StatusInProgress, StatusDone}

// Valid reports whether s is a known status
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Next returns the status that follows s, wrapping around after done
func (s TaskStatus) Next() TaskStatus {
	switch s {
	case StatusTodo:
		return StatusInProgress
	case StatusInProgress:
		return StatusDone
	}
	return StatusTodo
}

// Priority is the urgency of a task
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists every priority from lowest to highest
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Principal is the authenticated user that owns employees and tasks
type Principal struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Session is an authenticated session issued by the identity provider
type Session struct {
	AccessToken string    `json:"access_token"`
	Principal   Principal `json:"user"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuthEvent is an identity provider notification
type AuthEvent string

const (
	EventSignedIn    AuthEvent = "SIGNED_IN"
	EventSignedOut   AuthEvent = "SIGNED_OUT"
	EventUserUpdated AuthEvent = "USER_UPDATED"
)

// Employee represents a team member tasks can be assigned to
type Employee struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
	CreatedAt time.Time `json:"created_at"`
	OwnerID   string    `json:"user_id"`
}

// FullName returns "First Last"
func (e Employee) FullName() string {
	if e.LastName == "" {
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// NewEmployee holds the fields supplied when creating an employee.
// A zero JoinedAt is filled in by the store with the insert time.
type NewEmployee struct {
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}

// EmployeePatch is a partial employee update; nil fields are left unchanged
type EmployeePatch struct {
	FirstName *string    `json:"first_name,omitempty"`
	LastName  *string    `json:"last_name,omitempty"`
	Email     *string    `json:"email,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	Role      *string    `json:"role,omitempty"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p EmployeePatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil &&
		p.Phone == nil && p.Role == nil && p.JoinedAt == nil
}

// TaskComment is a comment on a task
type TaskComment struct {
	ID         int64     `json:"id,omitempty"`
	TaskID     int64     `json:"task_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	AuthorName string    `json:"author_name,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
}

// TaskAttachment references an uploaded file
type TaskAttachment struct {
	ID         int64     `json:"id,omitempty"`
	TaskID     int64     `json:"task_id,omitempty"`
	Filename   string    `json:"filename"`
	FileURL    string    `json:"file_url"`
	FileSize   int64     `json:"file_size"`
	UploadedAt time.Time `json:"uploaded_at,omitzero"`
	UploadedBy string    `json:"uploaded_by,omitempty"`
}

// Subtask is a checklist item under a task
type Subtask struct {
	ID           int64     `json:"id,omitempty"`
	ParentTaskID int64     `json:"parent_task_id,omitempty"`
	Title        string    `json:"title"`
	Completed    bool      `json:"completed"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
}

// TaskTemplate is a reusable task blueprint referenced by Extended.TemplateID
type TaskTemplate struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Priority       Priority  `json:"priority"`
	EstimatedHours float64   `json:"estimated_hours,omitempty"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// TaskCore holds the task attributes stored as first-class columns
type TaskCore struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Description  *string    `json:"description"`
	Status       TaskStatus `json:"status"`
	Priority     Priority   `json:"priority"`
	DueDate      string     `json:"due_date"`
	AssignedTo   int64      `json:"assigned_to"`
	CreatedAt    time.Time  `json:"created_at"`
	ParentTaskID *int64     `json:"parent_task_id"`
	OwnerID      string     `json:"user_id"`
}

// Extended holds the task attributes carried in the extended_data column.
// A nil field is absent; a pointer to an empty slice is present and empty.
type Extended struct {
	Comments    *[]TaskComment    `json:"comments,omitempty"`
	Attachments *[]TaskAttachment `json:"attachments,omitempty"`
	Subtasks    *[]Subtask        `json:"subtasks,omitempty"`
	DependsOn   *[]int64          `json:"depends_on,omitempty"`
	TemplateID  *int64            `json:"template_id,omitempty"`
}

// IsZero reports whether no extended field is present
func (e Extended) IsZero() bool {
	return e.Comments == nil && e.Attachments == nil && e.Subtasks == nil &&
		e.DependsOn == nil && e.TemplateID == nil
}

// CommentList returns the comments, or nil when absent
func (e Extended) CommentList() []TaskComment {
	if e.Comments == nil {
		return nil
	}
	return *e.Comments
}

// AttachmentList returns the attachments, or nil when absent
func (e Extended) AttachmentList() []TaskAttachment {
	if e.Attachments == nil {
		return nil
	}
	return *e.Attachments
}

// SubtaskList returns the subtasks, or nil when absent
func (e Extended) SubtaskList() []Subtask {
	if e.Subtasks == nil {
		return nil
	}
	return *e.Subtasks
}

// Dependencies returns the ids this task depends on, or nil when absent
func (e Extended) Dependencies() []int64 {
	if e.DependsOn == nil {
		return nil
	}
	return *e.DependsOn
}

// Clone returns a deep copy so callers can't mutate shared slices
func (e Extended) Clone() Extended {
	var out Extended
	if e.Comments != nil {
		c := append([]TaskComment(nil), *e.Comments...)
		if c == nil {
			c = []TaskComment{}
		}
		out.Comments = &c
	}
	if e.Attachments != nil {
		a := append([]TaskAttachment(nil), *e.Attachments...)
		if a == nil {
			a = []TaskAttachment{}
		}
		out.Attachments = &a
	}
	if e.Subtasks != nil {
		s := append([]Subtask(nil), *e.Subtasks...)
		if s == nil {
			s = []Subtask{}
		}
		out.Subtasks = &s
	}
	if e.DependsOn != nil {
		d := append([]int64(nil), *e.DependsOn...)
		if d == nil {
			d = []int64{}
		}
		out.DependsOn = &d
	}
	if e.TemplateID != nil {
		id := *e.TemplateID
		out.TemplateID = &id
	}
	return out
}

// Task is the logical task record: core columns merged with extended data
type Task struct {
	TaskCore
	Extended
}

// Clone returns a deep copy of the task
func (t Task) Clone() Task {
	out := Task{TaskCore: t.TaskCore, Extended: t.Extended.Clone()}
	if t.Description != nil {
		d := *t.Description
		out.Description = &d
	}
	if t.ParentTaskID != nil {
		p := *t.ParentTaskID
		out.ParentTaskID = &p
	}
	return out
}

// TaskRecord is a task row as stored, with extended data still encoded
type TaskRecord struct {
	TaskCore
	ExtendedData json.RawMessage `json:"extended_data"`
}

// NewTask holds the fields supplied when creating a task
type NewTask struct {
	Title        string     `json:"title"`
	Description  *string    `json:"description,omitempty"`
	Status       TaskStatus `json:"status"`
	Priority     Priority   `json:"priority"`
	DueDate      string     `json:"due_date"`
	AssignedTo   int64      `json:"assigned_to"`
	ParentTaskID *int64     `json:"parent_task_id,omitempty"`
	Extended
}

// TaskCorePatch is a partial update of the task columns; nil fields are left unchanged
type TaskCorePatch struct {
	Title        *string     `json:"title,omitempty"`
	Description  *string     `json:"description,omitempty"`
	Status       *TaskStatus `json:"status,omitempty"`
	Priority     *Priority   `json:"priority,omitempty"`
	DueDate      *string     `json:"due_date,omitempty"`
	AssignedTo   *int64      `json:"assigned_to,omitempty"`
	ParentTaskID *int64      `json:"parent_task_id,omitempty"`
}

// IsEmpty reports whether the patch changes no column
func (p TaskCorePatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.DueDate == nil && p.AssignedTo == nil && p.ParentTaskID == nil
}

// TaskPatch is a partial task update. Any extended field that is set
// replaces the whole stored extended payload.
type TaskPatch struct {
	TaskCorePatch
	Extended
}
