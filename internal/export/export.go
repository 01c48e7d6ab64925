// Package export writes CSV snapshots of the loaded employees and tasks.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/tgienger/taskdesk/internal/models"
)

// Kind names an export and prefixes its file name
type Kind string

const (
	KindTasks     Kind = "tasks"
	KindEmployees Kind = "employees"
	KindReport    Kind = "productivity-report"
)

// Source provides the rows to export; *state.Store implements it
type Source interface {
	Employees() []models.Employee
	Tasks() []models.Task
}

// FileName returns "<kind>-YYYY-MM-DD.csv" for the given day
func FileName(kind Kind, now time.Time) string {
	return fmt.Sprintf("%s-%s.csv", kind, now.Format(time.DateOnly))
}

// Write dispatches to the exporter for kind
func Write(w io.Writer, kind Kind, src Source) error {
	switch kind {
	case KindTasks:
		return Tasks(w, src)
	case KindEmployees:
		return Employees(w, src)
	case KindReport:
		return Report(w, src)
	default:
		return fmt.Errorf("unknown export %q", kind)
	}
}

// Employees writes one row per employee
func Employees(w io.Writer, src Source) error {
	rows := [][]string{{"First Name", "Last Name", "Email", "Role", "Phone", "Joined At"}}
	for _, e := range src.Employees() {
		rows = append(rows, []string{e.FirstName, e.LastName, e.Email, e.Role, e.Phone, formatTime(e.JoinedAt)})
	}
	return writeAll(w, rows)
}

// Tasks writes one row per task with the assignee's name
func Tasks(w io.Writer, src Source) error {
	names := map[int64]string{}
	for _, e := range src.Employees() {
		names[e.ID] = e.FullName()
	}

	rows := [][]string{{"Title", "Description", "Status", "Priority", "Due Date", "Assigned To", "Created At"}}
	for _, t := range src.Tasks() {
		assignee, ok := names[t.AssignedTo]
		if !ok {
			assignee = "Unassigned"
		}
		var description string
		if t.Description != nil {
			description = *t.Description
		}
		rows = append(rows, []string{
			t.Title, description, string(t.Status), string(t.Priority),
			t.DueDate, assignee, formatTime(t.CreatedAt),
		})
	}
	return writeAll(w, rows)
}

// ReportRow is one employee's productivity summary
type ReportRow struct {
	Employee       string
	Role           string
	Total          int
	Completed      int
	InProgress     int
	Todo           int
	CompletionRate int // percent, rounded
}

// BuildReport computes the productivity summary for each employee
func BuildReport(src Source) []ReportRow {
	tasks := src.Tasks()
	var out []ReportRow
	for _, e := range src.Employees() {
		row := ReportRow{Employee: e.FullName(), Role: e.Role}
		for _, t := range tasks {
			if t.AssignedTo != e.ID {
				continue
			}
			row.Total++
			switch t.Status {
			case models.StatusDone:
				row.Completed++
			case models.StatusInProgress:
				row.InProgress++
			case models.StatusTodo:
				row.Todo++
			}
		}
		if row.Total > 0 {
			row.CompletionRate = (row.Completed*200 + row.Total) / (row.Total * 2)
		}
		out = append(out, row)
	}
	return out
}

// Report writes the productivity summary
func Report(w io.Writer, src Source) error {
	rows := [][]string{{"Employee", "Role", "Total Tasks", "Completed", "In Progress", "To Do", "Completion Rate"}}
	for _, r := range BuildReport(src) {
		rows = append(rows, []string{
			r.Employee, r.Role,
			strconv.Itoa(r.Total), strconv.Itoa(r.Completed), strconv.Itoa(r.InProgress), strconv.Itoa(r.Todo),
			strconv.Itoa(r.CompletionRate) + "%",
		})
	}
	return writeAll(w, rows)
}

func writeAll(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
