// Package state holds the in-memory view of the signed-in principal's
// employees and tasks and keeps it in step with the remote store.
//
// Every mutation goes to the remote store first; memory changes only after
// the remote write succeeds. A failed call leaves memory exactly as it was
// and returns the gateway's error unchanged.
package state

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tgienger/taskdesk/internal/models"
	"github.com/tgienger/taskdesk/internal/remote"
)

// Gateway is the subset of remote.Gateway the store depends on
type Gateway interface {
	ListEmployees(ctx context.Context) ([]models.Employee, error)
	CreateEmployee(ctx context.Context, e models.NewEmployee) (*models.Employee, error)
	UpdateEmployee(ctx context.Context, id int64, p models.EmployeePatch) (*models.Employee, error)
	DeleteEmployee(ctx context.Context, id int64) error

	ListTasks(ctx context.Context) ([]models.Task, error)
	CreateTask(ctx context.Context, t models.NewTask) (*models.Task, error)
	UpdateTask(ctx context.Context, id int64, p models.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

var _ Gateway = (*remote.Gateway)(nil)

// defaultLoadTimeout bounds one shared fetch
const defaultLoadTimeout = 30 * time.Second

// loadCall is one in-flight fetch; concurrent callers for the same epoch
// share it. It runs detached from any caller's context and is cancelled
// when the epoch moves on.
type loadCall struct {
	epoch  uint64
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

// Store is the authoritative in-memory cache for one application session.
// Construct it once and hand it to every consumer.
type Store struct {
	gw          Gateway
	log         *slog.Logger
	loadTimeout time.Duration

	mu        sync.RWMutex
	employees []models.Employee
	tasks     []models.Task
	principal *models.Principal
	// epoch changes on every sign-in/sign-out; results fetched under an
	// older epoch are never committed
	epoch    uint64
	inflight *loadCall
	loadErr  error
	loadedAt time.Time
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for load and mutation outcomes
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithLoadTimeout bounds how long a shared fetch may run
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.loadTimeout = d
		}
	}
}

// New creates an empty, signed-out store
func New(gw Gateway, opts ...Option) *Store {
	s := &Store{
		gw:          gw,
		log:         slog.Default(),
		loadTimeout: defaultLoadTimeout,
		employees:   []models.Employee{},
		tasks:       []models.Task{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignedIn records p as the current principal. Switching to a different
// principal drops the previous principal's data.
func (s *Store) SignedIn(p models.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.principal != nil && s.principal.ID == p.ID {
		s.principal = &p
		return
	}
	s.principal = &p
	s.reset()
}

// SignedOut forgets the principal and clears both collections immediately
func (s *Store) SignedOut() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.principal = nil
	s.reset()
}

// reset starts a new epoch: the running fetch is abandoned and both
// collections are emptied. Callers hold s.mu.
func (s *Store) reset() {
	s.epoch++
	if s.inflight != nil {
		s.inflight.cancel()
		s.inflight = nil
	}
	s.employees = []models.Employee{}
	s.tasks = []models.Task{}
	s.loadErr = nil
	s.loadedAt = time.Time{}
}

// Principal returns the current principal, if any
func (s *Store) Principal() (models.Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil {
		return models.Principal{}, false
	}
	return *s.principal, true
}

// Authenticated reports whether a principal is signed in
func (s *Store) Authenticated() bool {
	_, ok := s.Principal()
	return ok
}

// Load fetches employees and tasks concurrently and replaces both
// collections. On failure the previous collections are kept and the error
// is returned and remembered (see LoadErr). If the principal signs out or
// changes while the fetch is running, the result is discarded and Load
// returns nil.
//
// Callers arriving while a fetch is running join it. The fetch itself is
// not tied to ctx: a caller that gives up returns ctx.Err() while the fetch
// continues for the others.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.principal == nil {
		s.mu.Unlock()
		return &remote.AuthRequiredError{Op: "load"}
	}
	call := s.inflight
	if call == nil || call.epoch != s.epoch {
		call = s.startLoad(ctx, *s.principal)
	}
	s.mu.Unlock()

	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startLoad registers a new fetch for the current epoch. Callers hold s.mu.
func (s *Store) startLoad(ctx context.Context, p models.Principal) *loadCall {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
	fctx = remote.WithPrincipal(fctx, p)
	call := &loadCall{epoch: s.epoch, done: make(chan struct{}), cancel: cancel}
	s.inflight = call
	go s.fetch(fctx, call, p.ID)
	return call
}

func (s *Store) fetch(ctx context.Context, call *loadCall, principalID string) {
	defer call.cancel()

	var employees []models.Employee
	var tasks []models.Task
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		employees, err = s.gw.ListEmployees(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = s.gw.ListTasks(gctx)
		return err
	})
	err := g.Wait()

	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		close(call.done)
	}()
	if s.inflight == call {
		s.inflight = nil
	}

	if s.epoch != call.epoch || s.principal == nil || s.principal.ID != principalID {
		s.log.Debug("discarding stale load", "principal", principalID)
		return
	}
	if err != nil {
		s.loadErr = err
		call.err = err
		s.log.Error("failed to load data", "principal", principalID, "error", err)
		return
	}

	if employees == nil {
		employees = []models.Employee{}
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	s.employees = employees
	s.tasks = tasks
	s.loadErr = nil
	s.loadedAt = time.Now()
	s.log.Info("loaded data", "principal", principalID, "employees", len(employees), "tasks", len(tasks))
}

// Loading reports whether a load is in flight
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inflight != nil
}

// LoadErr returns the error of the last load, or nil if it succeeded
func (s *Store) LoadErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// LoadedAt returns when data was last loaded; zero if never
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// begin checks that a principal is signed in and returns the epoch the
// mutation runs under, with ctx pinned to that principal so the remote
// write can't land under whoever signs in next
func (s *Store) begin(ctx context.Context, op string) (context.Context, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil {
		return ctx, 0, &remote.AuthRequiredError{Op: op}
	}
	return remote.WithPrincipal(ctx, *s.principal), s.epoch, nil
}

// commit applies a local change after a successful remote write. It waits
// for a load running under the same epoch so the load's wholesale
// replacement can't erase the change, and drops the change entirely if the
// epoch moved on.
func (s *Store) commit(ctx context.Context, epoch uint64, apply func()) bool {
	for {
		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			return false
		}
		call := s.inflight
		if call == nil || call.epoch != epoch {
			apply()
			s.mu.Unlock()
			return true
		}
		s.mu.Unlock()

		select {
		case <-call.done:
		case <-ctx.Done():
			// Stop waiting; apply now and let the load race
			s.mu.Lock()
			ok := s.epoch == epoch
			if ok {
				apply()
			}
			s.mu.Unlock()
			return ok
		}
	}
}

// AddEmployee creates an employee remotely, then adds it locally
func (s *Store) AddEmployee(ctx context.Context, e models.NewEmployee) (models.Employee, error) {
	ctx, epoch, err := s.begin(ctx, "add employee")
	if err != nil {
		return models.Employee{}, err
	}

	created, err := s.gw.CreateEmployee(ctx, e)
	if err != nil {
		s.log.Warn("failed to add employee", "email", e.Email, "error", err)
		return models.Employee{}, err
	}

	s.commit(ctx, epoch, func() {
		s.employees = upsertEmployee(s.employees, *created)
	})
	s.log.Info("employee added", "id", created.ID)
	return *created, nil
}

// UpdateEmployee updates an employee remotely, then replaces it locally
func (s *Store) UpdateEmployee(ctx context.Context, id int64, p models.EmployeePatch) (models.Employee, error) {
	ctx, epoch, err := s.begin(ctx, "update employee")
	if err != nil {
		return models.Employee{}, err
	}

	updated, err := s.gw.UpdateEmployee(ctx, id, p)
	if err != nil {
		s.log.Warn("failed to update employee", "id", id, "error", err)
		return models.Employee{}, err
	}

	s.commit(ctx, epoch, func() {
		s.employees = upsertEmployee(s.employees, *updated)
	})
	return *updated, nil
}

// DeleteEmployee deletes an employee remotely, then removes it and every
// task assigned to it locally, mirroring the remote cascade
func (s *Store) DeleteEmployee(ctx context.Context, id int64) error {
	ctx, epoch, err := s.begin(ctx, "delete employee")
	if err != nil {
		return err
	}

	if err := s.gw.DeleteEmployee(ctx, id); err != nil {
		s.log.Warn("failed to delete employee", "id", id, "error", err)
		return err
	}

	s.commit(ctx, epoch, func() {
		s.employees = slices.DeleteFunc(slices.Clone(s.employees), func(e models.Employee) bool {
			return e.ID == id
		})
		s.tasks = slices.DeleteFunc(slices.Clone(s.tasks), func(t models.Task) bool {
			return t.AssignedTo == id
		})
	})
	s.log.Info("employee deleted", "id", id)
	return nil
}

// AddTask creates a task remotely, then adds it locally
func (s *Store) AddTask(ctx context.Context, t models.NewTask) (models.Task, error) {
	ctx, epoch, err := s.begin(ctx, "add task")
	if err != nil {
		return models.Task{}, err
	}

	created, err := s.gw.CreateTask(ctx, t)
	if err != nil {
		s.log.Warn("failed to add task", "title", t.Title, "error", err)
		return models.Task{}, err
	}

	s.commit(ctx, epoch, func() {
		s.tasks = upsertTask(s.tasks, created.Clone())
	})
	s.log.Info("task added", "id", created.ID)
	return *created, nil
}

// UpdateTask updates a task remotely, then replaces it locally with the
// stored version. Extended fields in p replace the whole extended group.
func (s *Store) UpdateTask(ctx context.Context, id int64, p models.TaskPatch) (models.Task, error) {
	ctx, epoch, err := s.begin(ctx, "update task")
	if err != nil {
		return models.Task{}, err
	}

	updated, err := s.gw.UpdateTask(ctx, id, p)
	if err != nil {
		s.log.Warn("failed to update task", "id", id, "error", err)
		return models.Task{}, err
	}

	s.commit(ctx, epoch, func() {
		s.tasks = upsertTask(s.tasks, updated.Clone())
	})
	return *updated, nil
}

// DeleteTask deletes a task remotely, then removes it locally
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	ctx, epoch, err := s.begin(ctx, "delete task")
	if err != nil {
		return err
	}

	if err := s.gw.DeleteTask(ctx, id); err != nil {
		s.log.Warn("failed to delete task", "id", id, "error", err)
		return err
	}

	s.commit(ctx, epoch, func() {
		s.tasks = slices.DeleteFunc(slices.Clone(s.tasks), func(t models.Task) bool {
			return t.ID == id
		})
	})
	return nil
}

// upsertEmployee replaces the employee with e's id, or appends e.
// The input slice is never modified.
func upsertEmployee(list []models.Employee, e models.Employee) []models.Employee {
	out := slices.Clone(list)
	if i := slices.IndexFunc(out, func(x models.Employee) bool { return x.ID == e.ID }); i >= 0 {
		out[i] = e
		return out
	}
	return append(out, e)
}

// upsertTask replaces the task with t's id, or appends t.
// The input slice is never modified.
func upsertTask(list []models.Task, t models.Task) []models.Task {
	out := slices.Clone(list)
	if i := slices.IndexFunc(out, func(x models.Task) bool { return x.ID == t.ID }); i >= 0 {
		out[i] = t
		return out
	}
	return append(out, t)
}
