package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/taskdesk/internal/models"
	"github.com/tgienger/taskdesk/internal/remote"
)

// fakeGateway is an in-memory remote store with failure injection
type fakeGateway struct {
	mu        sync.Mutex
	nextID    int64
	employees map[int64]models.Employee
	tasks     map[int64]models.Task

	fail      error         // returned by every call when set
	listGate  chan struct{} // when set, list calls block until it is closed
	listCalls int

	beforeCreate func()   // runs at the start of CreateEmployee
	writers      []string // principal pinned on each CreateEmployee
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		employees: map[int64]models.Employee{},
		tasks:     map[int64]models.Task{},
	}
}

func (f *fakeGateway) wait(ctx context.Context) error {
	f.mu.Lock()
	gate := f.listGate
	f.listCalls++
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeGateway) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	out := []models.Employee{}
	for _, e := range f.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeGateway) CreateEmployee(ctx context.Context, e models.NewEmployee) (*models.Employee, error) {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	f.mu.Lock()
	if p, ok := remote.PrincipalFromContext(ctx); ok {
		f.writers = append(f.writers, p.ID)
	}
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	for _, existing := range f.employees {
		if existing.Email == e.Email {
			return nil, &remote.RemoteError{Code: remote.CodeUniqueViolation, Message: "duplicate email"}
		}
	}
	f.nextID++
	created := models.Employee{ID: f.nextID, FirstName: e.FirstName, LastName: e.LastName, Email: e.Email, Role: e.Role}
	f.employees[created.ID] = created
	return &created, nil
}

func (f *fakeGateway) UpdateEmployee(_ context.Context, id int64, p models.EmployeePatch) (*models.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	e, ok := f.employees[id]
	if !ok {
		return nil, &remote.NotFoundError{Entity: "employee", ID: id}
	}
	if p.Role != nil {
		e.Role = *p.Role
	}
	if p.FirstName != nil {
		e.FirstName = *p.FirstName
	}
	f.employees[id] = e
	return &e, nil
}

func (f *fakeGateway) DeleteEmployee(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	if _, ok := f.employees[id]; !ok {
		return &remote.NotFoundError{Entity: "employee", ID: id}
	}
	delete(f.employees, id)
	for tid, t := range f.tasks {
		if t.AssignedTo == id {
			delete(f.tasks, tid)
		}
	}
	return nil
}

func (f *fakeGateway) ListTasks(ctx context.Context) ([]models.Task, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	out := []models.Task{}
	for _, t := range f.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeGateway) CreateTask(_ context.Context, nt models.NewTask) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	if _, ok := f.employees[nt.AssignedTo]; !ok {
		return nil, &remote.RemoteError{Code: remote.CodeForeignKeyViolation, Message: "assigned employee does not exist"}
	}
	f.nextID++
	t := models.Task{
		TaskCore: models.TaskCore{
			ID: f.nextID, Title: nt.Title, Description: nt.Description, Status: nt.Status,
			Priority: nt.Priority, DueDate: nt.DueDate, AssignedTo: nt.AssignedTo,
		},
		Extended: nt.Extended.Clone(),
	}
	f.tasks[t.ID] = t
	out := t.Clone()
	return &out, nil
}

func (f *fakeGateway) UpdateTask(_ context.Context, id int64, p models.TaskPatch) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil, &remote.NotFoundError{Entity: "task", ID: id}
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if !p.Extended.IsZero() {
		t.Extended = p.Extended.Clone()
	}
	f.tasks[id] = t
	out := t.Clone()
	return &out, nil
}

func (f *fakeGateway) DeleteTask(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	if _, ok := f.tasks[id]; !ok {
		return &remote.NotFoundError{Entity: "task", ID: id}
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeGateway) setFail(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

var alice = models.Principal{ID: "user-a", Email: "alice@example.com"}

func newSignedInStore(t *testing.T) (*Store, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway()
	s := New(gw)
	s.SignedIn(alice)
	return s, gw
}

func ids[T any](items []T, id func(T) int64) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, id(it))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func employeeID(e models.Employee) int64 { return e.ID }
func taskID(t models.Task) int64         { return t.ID }

// assertConsistent checks that memory holds exactly what the remote holds
func assertConsistent(t *testing.T, s *Store, gw *fakeGateway) {
	t.Helper()
	ctx := context.Background()
	remoteEmployees, err := gw.ListEmployees(ctx)
	require.NoError(t, err)
	remoteTasks, err := gw.ListTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids(remoteEmployees, employeeID), ids(s.Employees(), employeeID))
	assert.Equal(t, ids(remoteTasks, taskID), ids(s.Tasks(), taskID))
}

func addEmployee(t *testing.T, s *Store, name string) models.Employee {
	t.Helper()
	e, err := s.AddEmployee(context.Background(), models.NewEmployee{FirstName: name, Email: name + "@example.com"})
	require.NoError(t, err)
	return e
}

func addTask(t *testing.T, s *Store, title string, assignee int64) models.Task {
	t.Helper()
	task, err := s.AddTask(context.Background(), models.NewTask{
		Title: title, Status: models.StatusTodo, Priority: models.PriorityMedium,
		DueDate: "2025-11-28", AssignedTo: assignee,
	})
	require.NoError(t, err)
	return task
}

func TestNewStoreIsEmptyAndSignedOut(t *testing.T) {
	s := New(newFakeGateway())
	assert.False(t, s.Authenticated())
	assert.NotNil(t, s.Employees())
	assert.Empty(t, s.Employees())
	assert.Empty(t, s.Tasks())
	assert.False(t, s.Loading())
	assert.True(t, s.LoadedAt().IsZero())
}

func TestMutationsRequirePrincipal(t *testing.T) {
	gw := newFakeGateway()
	s := New(gw)
	ctx := context.Background()

	_, err := s.AddEmployee(ctx, models.NewEmployee{FirstName: "x", Email: "x@example.com"})
	assert.ErrorIs(t, err, remote.ErrAuthRequired)
	assert.ErrorIs(t, s.DeleteTask(ctx, 1), remote.ErrAuthRequired)
	assert.ErrorIs(t, s.Load(ctx), remote.ErrAuthRequired)

	// Nothing reached the remote
	assert.Empty(t, gw.employees)
	assert.Zero(t, gw.listCalls)
}

func TestConsistencyAfterMutationSequence(t *testing.T) {
	s, gw := newSignedInStore(t)
	ctx := context.Background()

	rahul := addEmployee(t, s, "rahul")
	priya := addEmployee(t, s, "priya")
	t1 := addTask(t, s, "Build dashboard", rahul.ID)
	addTask(t, s, "Write tests", priya.ID)
	assertConsistent(t, s, gw)

	role := "Lead"
	updated, err := s.UpdateEmployee(ctx, priya.ID, models.EmployeePatch{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, "Lead", updated.Role)
	got, ok := s.EmployeeByID(priya.ID)
	require.True(t, ok)
	assert.Equal(t, "Lead", got.Role)

	inProgress := models.StatusInProgress
	_, err = s.UpdateTask(ctx, t1.ID, models.TaskPatch{TaskCorePatch: models.TaskCorePatch{Status: &inProgress}})
	require.NoError(t, err)
	task, ok := s.TaskByID(t1.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusInProgress, task.Status)

	require.NoError(t, s.DeleteTask(ctx, t1.ID))
	_, ok = s.TaskByID(t1.ID)
	assert.False(t, ok)
	assertConsistent(t, s, gw)

	// A full reload agrees with the incremental state
	require.NoError(t, s.Load(ctx))
	assertConsistent(t, s, gw)
	assert.NoError(t, s.LoadErr())
	assert.False(t, s.LoadedAt().IsZero())
}

func TestDeleteEmployeeCascades(t *testing.T) {
	for n := 0; n <= 4; n++ {
		t.Run(fmt.Sprintf("%d tasks", n), func(t *testing.T) {
			s, gw := newSignedInStore(t)
			target := addEmployee(t, s, "target")
			other := addEmployee(t, s, "other")
			for i := 0; i < n; i++ {
				addTask(t, s, fmt.Sprintf("task %d", i), target.ID)
			}
			kept := addTask(t, s, "kept", other.ID)

			require.NoError(t, s.DeleteEmployee(context.Background(), target.ID))

			assert.Empty(t, s.TasksByEmployee(target.ID))
			_, ok := s.EmployeeByID(target.ID)
			assert.False(t, ok)
			assert.Equal(t, []int64{kept.ID}, ids(s.Tasks(), taskID))
			assertConsistent(t, s, gw)
		})
	}
}

func TestDeleteEmployeeTwice(t *testing.T) {
	s, gw := newSignedInStore(t)
	ctx := context.Background()
	e := addEmployee(t, s, "rahul")
	other := addEmployee(t, s, "priya")
	addTask(t, s, "kept", other.ID)

	require.NoError(t, s.DeleteEmployee(ctx, e.ID))
	before := s.Tasks()

	err := s.DeleteEmployee(ctx, e.ID)
	var nf *remote.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, e.ID, nf.ID)
	assert.Equal(t, before, s.Tasks())
	assertConsistent(t, s, gw)
}

func TestFailedMutationsLeaveMemoryUntouched(t *testing.T) {
	s, gw := newSignedInStore(t)
	ctx := context.Background()
	e := addEmployee(t, s, "rahul")
	task := addTask(t, s, "Build dashboard", e.ID)

	employees, tasks := s.Employees(), s.Tasks()
	boom := &remote.RemoteError{Code: "08006", Message: "connection failure"}
	gw.setFail(boom)

	_, err := s.AddEmployee(ctx, models.NewEmployee{FirstName: "x", Email: "x@example.com"})
	assert.Same(t, boom, errorAs(t, err))
	role := "QA"
	_, err = s.UpdateEmployee(ctx, e.ID, models.EmployeePatch{Role: &role})
	assert.Same(t, boom, errorAs(t, err))
	assert.Same(t, boom, errorAs(t, s.DeleteEmployee(ctx, e.ID)))
	_, err = s.AddTask(ctx, models.NewTask{Title: "x", AssignedTo: e.ID})
	assert.Same(t, boom, errorAs(t, err))
	done := models.StatusDone
	_, err = s.UpdateTask(ctx, task.ID, models.TaskPatch{TaskCorePatch: models.TaskCorePatch{Status: &done}})
	assert.Same(t, boom, errorAs(t, err))
	assert.Same(t, boom, errorAs(t, s.DeleteTask(ctx, task.ID)))

	assert.Equal(t, employees, s.Employees())
	assert.Equal(t, tasks, s.Tasks())

	// A failed load keeps the previous collections and remembers the error
	assert.Same(t, boom, errorAs(t, s.Load(ctx)))
	assert.Same(t, boom, errorAs(t, s.LoadErr()))
	assert.Equal(t, employees, s.Employees())
	assert.Equal(t, tasks, s.Tasks())

	gw.setFail(nil)
	require.NoError(t, s.Load(ctx))
	assert.NoError(t, s.LoadErr())
}

func errorAs(t *testing.T, err error) *remote.RemoteError {
	t.Helper()
	var re *remote.RemoteError
	require.True(t, errors.As(err, &re), "expected *remote.RemoteError, got %v", err)
	return re
}

func TestUniqueViolationPropagates(t *testing.T) {
	s, _ := newSignedInStore(t)
	addEmployee(t, s, "rahul")

	_, err := s.AddEmployee(context.Background(), models.NewEmployee{FirstName: "Rahul", Email: "rahul@example.com"})
	assert.Equal(t, remote.CodeUniqueViolation, errorAs(t, err).Code)
	assert.Len(t, s.Employees(), 1)
}

func TestLoadAddSignOutScenario(t *testing.T) {
	gw := newFakeGateway()
	ctx := context.Background()

	// Seed the remote directly
	seed := New(gw)
	seed.SignedIn(alice)
	var employees []models.Employee
	for i := 0; i < 5; i++ {
		employees = append(employees, addEmployee(t, seed, fmt.Sprintf("emp%d", i)))
	}
	for i := 0; i < 8; i++ {
		addTask(t, seed, fmt.Sprintf("task %d", i), employees[i%5].ID)
	}

	s := New(gw)
	s.SignedIn(alice)
	require.NoError(t, s.Load(ctx))
	assert.Len(t, s.Employees(), 5)
	assert.Len(t, s.Tasks(), 8)

	created := addTask(t, s, "ninth", employees[0].ID)
	assert.Len(t, s.Tasks(), 9)
	got, ok := s.TaskByID(created.ID)
	require.True(t, ok)
	assert.Equal(t, "ninth", got.Title)

	s.SignedOut()
	assert.False(t, s.Authenticated())
	assert.Empty(t, s.Employees())
	assert.Empty(t, s.Tasks())
}

func TestCommentUpdateReplacesGroup(t *testing.T) {
	s, _ := newSignedInStore(t)
	ctx := context.Background()
	e := addEmployee(t, s, "rahul")
	task := addTask(t, s, "Review", e.ID)

	first := []models.TaskComment{{Content: "first"}}
	_, err := s.UpdateTask(ctx, task.ID, models.TaskPatch{Extended: models.Extended{Comments: &first}})
	require.NoError(t, err)

	// Two writers each send the full list; the last commit wins
	a := []models.TaskComment{{Content: "first"}, {Content: "from a"}}
	b := []models.TaskComment{{Content: "first"}, {Content: "from b"}}
	_, err = s.UpdateTask(ctx, task.ID, models.TaskPatch{Extended: models.Extended{Comments: &a}})
	require.NoError(t, err)
	_, err = s.UpdateTask(ctx, task.ID, models.TaskPatch{Extended: models.Extended{Comments: &b}})
	require.NoError(t, err)

	got, ok := s.TaskByID(task.ID)
	require.True(t, ok)
	assert.Equal(t, b, got.CommentList())
}

func TestSnapshotsAreCopies(t *testing.T) {
	s, _ := newSignedInStore(t)
	e := addEmployee(t, s, "rahul")
	comments := []models.TaskComment{{Content: "c"}}
	task, err := s.AddTask(context.Background(), models.NewTask{
		Title: "t", AssignedTo: e.ID, Extended: models.Extended{Comments: &comments},
	})
	require.NoError(t, err)

	tasks := s.Tasks()
	(*tasks[0].Comments)[0].Content = "mutated"
	tasks[0].Title = "mutated"

	got, _ := s.TaskByID(task.ID)
	assert.Equal(t, "t", got.Title)
	assert.Equal(t, "c", got.CommentList()[0].Content)
}

func TestLoadDiscardedAfterSignOut(t *testing.T) {
	gw := newFakeGateway()
	s := New(gw)
	s.SignedIn(alice)
	addEmployee(t, s, "rahul")

	gw.listGate = make(chan struct{})
	errc := make(chan error, 1)
	go func() { errc <- s.Load(context.Background()) }()

	require.Eventually(t, s.Loading, time.Second, 5*time.Millisecond)
	s.SignedOut()
	close(gw.listGate)

	require.NoError(t, <-errc)
	assert.Empty(t, s.Employees())
	assert.Empty(t, s.Tasks())
	assert.False(t, s.Authenticated())
	assert.False(t, s.Loading())
}

func TestLoadDiscardedAfterPrincipalSwitch(t *testing.T) {
	gw := newFakeGateway()
	s := New(gw)
	s.SignedIn(alice)
	addEmployee(t, s, "rahul")

	gw.listGate = make(chan struct{})
	errc := make(chan error, 1)
	go func() { errc <- s.Load(context.Background()) }()
	require.Eventually(t, s.Loading, time.Second, 5*time.Millisecond)

	s.SignedIn(models.Principal{ID: "user-b"})
	close(gw.listGate)

	require.NoError(t, <-errc)
	assert.Empty(t, s.Employees())
	p, ok := s.Principal()
	require.True(t, ok)
	assert.Equal(t, "user-b", p.ID)
}

func TestSignedInSamePrincipalKeepsData(t *testing.T) {
	s, _ := newSignedInStore(t)
	addEmployee(t, s, "rahul")

	renamed := alice
	renamed.FirstName = "Alice"
	s.SignedIn(renamed)

	assert.Len(t, s.Employees(), 1)
	p, _ := s.Principal()
	assert.Equal(t, "Alice", p.FirstName)
}

func TestMutationDuringLoadSurvives(t *testing.T) {
	gw := newFakeGateway()
	s := New(gw)
	s.SignedIn(alice)
	e := addEmployee(t, s, "rahul")

	gw.listGate = make(chan struct{})
	errc := make(chan error, 1)
	go func() { errc <- s.Load(context.Background()) }()
	require.Eventually(t, s.Loading, time.Second, 5*time.Millisecond)

	added := make(chan models.Task, 1)
	go func() {
		task, err := s.AddTask(context.Background(), models.NewTask{Title: "late", AssignedTo: e.ID})
		if err == nil {
			added <- task
		}
		close(added)
	}()

	// The commit waits for the load
	select {
	case <-added:
		t.Fatal("commit finished while load was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gw.listGate)
	require.NoError(t, <-errc)
	task, ok := <-added
	require.True(t, ok)

	_, found := s.TaskByID(task.ID)
	assert.True(t, found)
	assertConsistent(t, s, gw)
}

func TestConcurrentLoadsShareResult(t *testing.T) {
	s, gw := newSignedInStore(t)
	addEmployee(t, s, "rahul")
	gw.listGate = make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Load(context.Background())
		}(i)
	}
	require.Eventually(t, s.Loading, time.Second, 5*time.Millisecond)
	close(gw.listGate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, s.Employees(), 1)
}

func TestMutationKeepsPrincipalAcrossSwitch(t *testing.T) {
	s, gw := newSignedInStore(t)
	gw.beforeCreate = func() { s.SignedIn(models.Principal{ID: "user-b"}) }

	_, err := s.AddEmployee(context.Background(), models.NewEmployee{FirstName: "rahul", Email: "rahul@example.com"})
	require.NoError(t, err)

	assert.Equal(t, []string{alice.ID}, gw.writers)
	assert.Empty(t, s.Employees())
}

func TestJoinedLoadOutlivesFirstCaller(t *testing.T) {
	s, gw := newSignedInStore(t)
	addEmployee(t, s, "rahul")
	gw.listGate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- s.Load(ctx) }()
	require.Eventually(t, s.Loading, time.Second, 5*time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- s.Load(context.Background()) }()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(gw.listGate)
	require.NoError(t, <-second)
	assert.NoError(t, s.LoadErr())
	assert.Len(t, s.Employees(), 1)
}

func TestSharedLoadTimesOut(t *testing.T) {
	gw := newFakeGateway()
	s := New(gw, WithLoadTimeout(20*time.Millisecond))
	s.SignedIn(alice)
	gw.listGate = make(chan struct{})
	defer close(gw.listGate)

	err := s.Load(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, s.LoadErr(), context.DeadlineExceeded)
}

func TestStats(t *testing.T) {
	s, _ := newSignedInStore(t)
	ctx := context.Background()
	e := addEmployee(t, s, "rahul")
	addEmployee(t, s, "priya")
	a := addTask(t, s, "a", e.ID)
	b := addTask(t, s, "b", e.ID)
	addTask(t, s, "c", e.ID)

	inProgress, done := models.StatusInProgress, models.StatusDone
	_, err := s.UpdateTask(ctx, a.ID, models.TaskPatch{TaskCorePatch: models.TaskCorePatch{Status: &inProgress}})
	require.NoError(t, err)
	_, err = s.UpdateTask(ctx, b.ID, models.TaskPatch{TaskCorePatch: models.TaskCorePatch{Status: &done}})
	require.NoError(t, err)

	assert.Equal(t, Stats{TotalEmployees: 2, TotalTasks: 3, Todo: 1, InProgress: 1, Done: 1}, s.Stats())
}

func TestDependencyCandidates(t *testing.T) {
	s, _ := newSignedInStore(t)
	ctx := context.Background()
	e := addEmployee(t, s, "rahul")
	a := addTask(t, s, "a", e.ID)
	b := addTask(t, s, "b", e.ID)
	c := addTask(t, s, "c", e.ID)
	d := addTask(t, s, "d", e.ID)

	// a depends on b; c depends on a
	_, err := s.UpdateTask(ctx, a.ID, models.TaskPatch{Extended: models.Extended{DependsOn: &[]int64{b.ID}}})
	require.NoError(t, err)
	_, err = s.UpdateTask(ctx, c.ID, models.TaskPatch{Extended: models.Extended{DependsOn: &[]int64{a.ID}}})
	require.NoError(t, err)

	assert.Equal(t, []int64{d.ID}, ids(s.DependencyCandidates(a.ID), taskID))
	// a already depends on b, so it is not offered
	assert.Equal(t, []int64{c.ID, d.ID}, ids(s.DependencyCandidates(b.ID), taskID))
}
