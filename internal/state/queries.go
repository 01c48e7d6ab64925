package state

import (
	"slices"

	"github.com/tgienger/taskdesk/internal/models"
)

// Employees returns a copy of the employee collection
func (s *Store) Employees() []models.Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.employees)
}

// Tasks returns a deep copy of the task collection
func (s *Store) Tasks() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTasks(s.tasks)
}

// EmployeeByID looks up an employee in memory
func (s *Store) EmployeeByID(id int64) (models.Employee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.employees {
		if e.ID == id {
			return e, true
		}
	}
	return models.Employee{}, false
}

// TaskByID looks up a task in memory
func (s *Store) TaskByID(id int64) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t.Clone(), true
		}
	}
	return models.Task{}, false
}

// TasksByEmployee returns the in-memory tasks assigned to an employee
func (s *Store) TasksByEmployee(employeeID int64) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Task{}
	for _, t := range s.tasks {
		if t.AssignedTo == employeeID {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Stats summarizes the loaded collections
type Stats struct {
	TotalEmployees int `json:"total_employees"`
	TotalTasks     int `json:"total_tasks"`
	Todo           int `json:"todo"`
	InProgress     int `json:"in_progress"`
	Done           int `json:"done"`
}

// Stats counts employees and tasks by status
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{TotalEmployees: len(s.employees), TotalTasks: len(s.tasks)}
	for _, t := range s.tasks {
		switch t.Status {
		case models.StatusTodo:
			st.Todo++
		case models.StatusInProgress:
			st.InProgress++
		case models.StatusDone:
			st.Done++
		}
	}
	return st
}

// DependencyCandidates lists the tasks that could be added as dependencies
// of taskID: every other task that isn't already a dependency and doesn't
// itself depend on taskID. Longer cycles are not detected.
func (s *Store) DependencyCandidates(taskID int64) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var current []int64
	for _, t := range s.tasks {
		if t.ID == taskID {
			current = t.Dependencies()
			break
		}
	}

	out := []models.Task{}
	for _, t := range s.tasks {
		if t.ID == taskID || slices.Contains(current, t.ID) || slices.Contains(t.Dependencies(), taskID) {
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

func cloneTasks(tasks []models.Task) []models.Task {
	out := make([]models.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
