// Package session drives the domain store from identity provider
// notifications: sign-in loads data once, sign-out clears it.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tgienger/taskdesk/internal/models"
)

// State is the authentication state of the application
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Provider is an identity provider
type Provider interface {
	SignUp(ctx context.Context, email, password, firstName, lastName string) (*models.Session, error)
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	SignOut(ctx context.Context) error
	CurrentSession(ctx context.Context) (*models.Session, error)
	// Subscribe registers fn for auth events and returns a function that
	// removes it. A nil session means signed out.
	Subscribe(fn func(models.AuthEvent, *models.Session)) func()
}

// Store is the part of state.Store the controller drives
type Store interface {
	SignedIn(p models.Principal)
	SignedOut()
	Load(ctx context.Context) error
}

// Controller tracks the session and keeps the store in step with it
type Controller struct {
	provider Provider
	store    Store
	log      *slog.Logger

	// transition serializes state changes
	transition sync.Mutex

	mu          sync.RWMutex
	state       State
	principal   *models.Principal
	listeners   []func(State)
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc

	loads sync.WaitGroup
}

// New creates a controller in the Anonymous state
func New(provider Provider, store Store, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{provider: provider, store: store, log: log}
}

// Start resolves the existing session, if any, and subscribes to provider
// events until Stop is called. Loads run in the background against a
// context derived from ctx.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.setState(Authenticating, nil)

	sess, err := c.provider.CurrentSession(ctx)
	if err != nil {
		c.log.Error("failed to resolve session", "error", err)
		c.signedOut()
	} else {
		c.handle(models.EventSignedIn, sess)
	}

	unsubscribe := c.provider.Subscribe(c.handle)
	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
	return err
}

// Stop unsubscribes from the provider and cancels background loads
func (c *Controller) Stop() {
	c.mu.Lock()
	unsubscribe, cancel := c.unsubscribe, c.cancel
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until every load triggered so far has finished
func (c *Controller) Wait() {
	c.loads.Wait()
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Principal returns the signed-in principal, if any
func (c *Controller) Principal() (models.Principal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.principal == nil {
		return models.Principal{}, false
	}
	return *c.principal, true
}

// OnChange registers fn to be called after every state transition
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// SignIn asks the provider to sign in. The state changes when the provider
// reports the new session.
func (c *Controller) SignIn(ctx context.Context, email, password string) error {
	_, err := c.provider.SignIn(ctx, email, password)
	return err
}

// SignUp registers a new account with the provider
func (c *Controller) SignUp(ctx context.Context, email, password, firstName, lastName string) error {
	_, err := c.provider.SignUp(ctx, email, password, firstName, lastName)
	return err
}

// SignOut asks the provider to end the session
func (c *Controller) SignOut(ctx context.Context) error {
	return c.provider.SignOut(ctx)
}

func (c *Controller) handle(event models.AuthEvent, sess *models.Session) {
	if sess == nil || event == models.EventSignedOut {
		c.signedOut()
		return
	}
	c.signedIn(sess.Principal)
}

func (c *Controller) signedIn(p models.Principal) {
	c.transition.Lock()
	defer c.transition.Unlock()

	c.mu.RLock()
	same := c.state == Authenticated && c.principal != nil && c.principal.ID == p.ID
	c.mu.RUnlock()

	c.store.SignedIn(p)
	c.setState(Authenticated, &p)
	if same {
		return
	}
	c.log.Info("signed in", "principal", p.ID, "email", p.Email)
	c.load()
}

func (c *Controller) signedOut() {
	c.transition.Lock()
	defer c.transition.Unlock()

	c.mu.RLock()
	was := c.state
	c.mu.RUnlock()

	c.store.SignedOut()
	c.setState(Anonymous, nil)
	if was == Authenticated {
		c.log.Info("signed out")
	}
}

func (c *Controller) load() {
	c.mu.RLock()
	ctx := c.ctx
	c.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	c.loads.Add(1)
	go func() {
		defer c.loads.Done()
		if err := c.store.Load(ctx); err != nil {
			c.log.Error("initial load failed", "error", err)
		}
	}()
}

func (c *Controller) setState(s State, p *models.Principal) {
	c.mu.Lock()
	c.state = s
	c.principal = p
	listeners := append(([]func(State))(nil), c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}
