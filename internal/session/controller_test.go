package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/taskdesk/internal/models"
)

type fakeProvider struct {
	mu          sync.Mutex
	current     *models.Session
	currentErr  error
	subscribers map[int]func(models.AuthEvent, *models.Session)
	nextSub     int
	signInErr   error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{subscribers: map[int]func(models.AuthEvent, *models.Session){}}
}

func (f *fakeProvider) emit(event models.AuthEvent, sess *models.Session) {
	f.mu.Lock()
	f.current = sess
	subs := make([]func(models.AuthEvent, *models.Session), 0, len(f.subscribers))
	for _, fn := range f.subscribers {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(event, sess)
	}
}

func (f *fakeProvider) SignUp(ctx context.Context, email, password, firstName, lastName string) (*models.Session, error) {
	return f.SignIn(ctx, email, password)
}

func (f *fakeProvider) SignIn(_ context.Context, email, _ string) (*models.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	sess := &models.Session{AccessToken: "tok", Principal: models.Principal{ID: "id-" + email, Email: email}}
	f.emit(models.EventSignedIn, sess)
	return sess, nil
}

func (f *fakeProvider) SignOut(context.Context) error {
	f.emit(models.EventSignedOut, nil)
	return nil
}

func (f *fakeProvider) CurrentSession(context.Context) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.currentErr
}

func (f *fakeProvider) Subscribe(fn func(models.AuthEvent, *models.Session)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.subscribers[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.subscribers, id)
		f.mu.Unlock()
	}
}

type fakeStore struct {
	mu        sync.Mutex
	principal *models.Principal
	loads     int
	signOuts  int
	loadErr   error
}

func (s *fakeStore) SignedIn(p models.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = &p
}

func (s *fakeStore) SignedOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = nil
	s.signOuts++
}

func (s *fakeStore) Load(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return s.loadErr
}

func (s *fakeStore) counts() (loads, signOuts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads, s.signOuts
}

func TestStartWithoutSession(t *testing.T) {
	provider, store := newFakeProvider(), &fakeStore{}
	c := New(provider, store, nil)

	var seen []State
	c.OnChange(func(s State) { seen = append(seen, s) })

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	c.Wait()

	assert.Equal(t, Anonymous, c.State())
	assert.Equal(t, []State{Authenticating, Anonymous}, seen)
	loads, _ := store.counts()
	assert.Zero(t, loads)
}

func TestStartWithExistingSession(t *testing.T) {
	provider, store := newFakeProvider(), &fakeStore{}
	provider.current = &models.Session{Principal: models.Principal{ID: "u1", Email: "a@example.com"}}
	c := New(provider, store, nil)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	c.Wait()

	assert.Equal(t, Authenticated, c.State())
	p, ok := c.Principal()
	require.True(t, ok)
	assert.Equal(t, "u1", p.ID)
	loads, _ := store.counts()
	assert.Equal(t, 1, loads)
}

func TestStartSessionLookupFails(t *testing.T) {
	provider, store := newFakeProvider(), &fakeStore{}
	provider.currentErr = errors.New("settings unreadable")
	c := New(provider, store, nil)

	err := c.Start(context.Background())
	defer c.Stop()
	assert.Error(t, err)
	assert.Equal(t, Anonymous, c.State())
}

func TestSignInLoadsOnce(t *testing.T) {
	provider, store := newFakeProvider(), &fakeStore{}
	c := New(provider, store, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	ctx := context.Background()

	require.NoError(t, c.SignIn(ctx, "a@example.com", "pw"))
	c.Wait()
	assert.Equal(t, Authenticated, c.State())

	// A repeated event for the same principal doesn't reload
	sess, _ := provider.CurrentSession(ctx)
	provider.emit(models.EventUserUpdated, sess)
	c.Wait()
	loads, _ := store.counts()
	assert.Equal(t, 1, loads)

	// A different principal does
	require.NoError(t, c.SignIn(ctx, "b@example.com", "pw"))
	c.Wait()
	loads, _ = store.counts()
	assert.Equal(t, 2, loads)
	p, _ := c.Principal()
	assert.Equal(t, "id-b@example.com", p.ID)
}

func TestSignOutClearsStore(t *testing.T) {
	provider, store := newFakeProvider(), &fakeStore{}
	c := New(provider, store, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	ctx := context.Background()

	require.NoError(t, c.SignIn(ctx, "a@example.com", "pw"))
	c.Wait()
	require.NoError(t, c.SignOut(ctx))

	assert.Equal(t, Anonymous, c.State())
	_, ok := c.Principal()
	assert.False(t, ok)
	assert.Nil(t, store.principal)
	loads, _ := store.counts()
	assert.Equal(t, 1, loads)
}

func TestSignInFailureKeepsState(t *testing.T) {
	provider, store := newFakeProvider(), &fakeStore{}
	provider.signInErr = errors.New("invalid credentials")
	c := New(provider, store, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	err := c.SignIn(context.Background(), "a@example.com", "bad")
	assert.EqualError(t, err, "invalid credentials")
	assert.Equal(t, Anonymous, c.State())
}

func TestLoadFailureStaysAuthenticated(t *testing.T) {
	provider, store := newFakeProvider(), &fakeStore{loadErr: errors.New("network down")}
	c := New(provider, store, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.NoError(t, c.SignIn(context.Background(), "a@example.com", "pw"))
	c.Wait()
	assert.Equal(t, Authenticated, c.State())
}

func TestStopUnsubscribes(t *testing.T) {
	provider, store := newFakeProvider(), &fakeStore{}
	c := New(provider, store, nil)
	require.NoError(t, c.Start(context.Background()))
	c.Stop()

	provider.emit(models.EventSignedIn, &models.Session{Principal: models.Principal{ID: "u1"}})
	c.Wait()
	assert.Equal(t, Anonymous, c.State())
	assert.Empty(t, provider.subscribers)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "anonymous", Anonymous.String())
	assert.Equal(t, "authenticating", Authenticating.String())
	assert.Equal(t, "authenticated", Authenticated.String())
}
