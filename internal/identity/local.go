// Package identity is a local identity provider: accounts live in the
// users table, passwords are bcrypt hashes and the current session is kept
// in the settings table so it survives restarts.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tgienger/taskdesk/internal/db"
	"github.com/tgienger/taskdesk/internal/models"
	"github.com/tgienger/taskdesk/internal/remote"
)

const sessionKey = "session"

// MinPasswordLength is the shortest password SignUp accepts
const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidEmail       = errors.New("email address is invalid")
)

// UserStore persists accounts and settings; *db.DB implements it
type UserStore interface {
	CreateUser(ctx context.Context, u db.User) (*db.User, error)
	GetUser(ctx context.Context, id string) (*db.User, error)
	GetUserByEmail(ctx context.Context, email string) (*db.User, error)
	UpdateUserName(ctx context.Context, id, firstName, lastName string) error
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

var _ UserStore = (*db.DB)(nil)

type subscriber struct {
	id int
	fn func(models.AuthEvent, *models.Session)
}

// Local implements session.Provider and remote.PrincipalSource
type Local struct {
	users UserStore
	log   *slog.Logger
	cost  int

	mu      sync.RWMutex
	current *models.Session
	loaded  bool
	subs    []subscriber
	nextSub int
}

// Option configures a Local provider
type Option func(*Local)

// WithLogger sets the provider's logger
func WithLogger(log *slog.Logger) Option {
	return func(l *Local) { l.log = log }
}

// WithHashCost sets the bcrypt cost; tests use bcrypt.MinCost
func WithHashCost(cost int) Option {
	return func(l *Local) { l.cost = cost }
}

// NewLocal creates a provider over users
func NewLocal(users UserStore, opts ...Option) *Local {
	l := &Local{users: users, log: slog.Default(), cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SignUp creates an account and signs it in
func (l *Local) SignUp(ctx context.Context, email, password, firstName, lastName string) (*models.Session, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := l.users.CreateUser(ctx, db.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
	})
	if err != nil {
		var re *remote.RemoteError
		if errors.As(err, &re) && re.Code == remote.CodeUniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	l.log.Info("account created", "user", u.ID, "email", u.Email)

	return l.startSession(ctx, u)
}

// SignIn checks the credentials and starts a session
func (l *Local) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	u, err := l.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return l.startSession(ctx, u)
}

// SignOut ends the current session. Signing out without a session is a no-op.
func (l *Local) SignOut(ctx context.Context) error {
	if err := l.users.DeleteSetting(ctx, sessionKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	l.mu.Lock()
	had := l.current != nil
	l.current = nil
	l.loaded = true
	l.mu.Unlock()

	if had {
		l.emit(models.EventSignedOut, nil)
	}
	return nil
}

// CurrentSession returns the active session, restoring a persisted one on
// first use. It returns nil when nobody is signed in.
func (l *Local) CurrentSession(ctx context.Context) (*models.Session, error) {
	l.mu.RLock()
	if l.loaded {
		sess := l.current
		l.mu.RUnlock()
		return copySession(sess), nil
	}
	l.mu.RUnlock()

	raw, err := l.users.GetSetting(ctx, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var sess *models.Session
	if raw != "" {
		var stored models.Session
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			l.log.Warn("discarding unreadable session", "error", err)
		} else if u, err := l.users.GetUser(ctx, stored.Principal.ID); err != nil {
			return nil, fmt.Errorf("read session user: %w", err)
		} else if u != nil {
			stored.Principal = principalOf(u)
			sess = &stored
		}
	}

	l.mu.Lock()
	if !l.loaded {
		l.current = sess
		l.loaded = true
	}
	sess = l.current
	l.mu.Unlock()
	return copySession(sess), nil
}

// CurrentPrincipal reports the signed-in principal without touching storage
func (l *Local) CurrentPrincipal() (models.Principal, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return models.Principal{}, false
	}
	return l.current.Principal, true
}

// UpdateProfile changes the signed-in user's name
func (l *Local) UpdateProfile(ctx context.Context, firstName, lastName string) (*models.Session, error) {
	l.mu.RLock()
	cur := copySession(l.current)
	l.mu.RUnlock()
	if cur == nil {
		return nil, &remote.AuthRequiredError{Op: "update profile"}
	}

	firstName, lastName = strings.TrimSpace(firstName), strings.TrimSpace(lastName)
	if err := l.users.UpdateUserName(ctx, cur.Principal.ID, firstName, lastName); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	cur.Principal.FirstName = firstName
	cur.Principal.LastName = lastName
	if err := l.persist(ctx, cur); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = cur
	l.mu.Unlock()

	l.emit(models.EventUserUpdated, copySession(cur))
	return copySession(cur), nil
}

// Subscribe registers fn for auth events and returns its removal func
func (l *Local) Subscribe(fn func(models.AuthEvent, *models.Session)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	l.subs = append(l.subs, subscriber{id: id, fn: fn})

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, s := range l.subs {
			if s.id == id {
				l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
				return
			}
		}
	}
}

func (l *Local) startSession(ctx context.Context, u *db.User) (*models.Session, error) {
	sess := &models.Session{
		AccessToken: uuid.NewString(),
		Principal:   principalOf(u),
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.persist(ctx, sess); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = sess
	l.loaded = true
	l.mu.Unlock()

	l.log.Info("session started", "user", u.ID)
	l.emit(models.EventSignedIn, copySession(sess))
	return copySession(sess), nil
}

func (l *Local) persist(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := l.users.SetSetting(ctx, sessionKey, string(data)); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// emit calls subscribers outside the lock so they may call back in
func (l *Local) emit(event models.AuthEvent, sess *models.Session) {
	l.mu.RLock()
	subs := append([]subscriber(nil), l.subs...)
	l.mu.RUnlock()
	for _, s := range subs {
		s.fn(event, sess)
	}
}

func principalOf(u *db.User) models.Principal {
	return models.Principal{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}

func copySession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
