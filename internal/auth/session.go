package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/joescharf/issueboard/internal/models"
)

// SessionFile is the name of the persisted session inside the state dir.
const SessionFile = "session.yaml"

type sessionData struct {
	UID   string `yaml:"uid"`
	Email string `yaml:"email"`
	Token string `yaml:"token"`
}

// Session holds the signed-in user of the local CLI and notifies
// subscribers when it changes.
type Session struct {
	auth *Authenticator
	path string

	mu        sync.Mutex
	data      *sessionData
	listeners map[int]func(*models.User)
	nextID    int
}

// OpenSession loads the session stored in stateDir. A missing file means
// signed out.
func OpenSession(a *Authenticator, stateDir string) (*Session, error) {
	s := &Session{
		auth:      a,
		path:      filepath.Join(stateDir, SessionFile),
		listeners: make(map[int]func(*models.User)),
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	var data sessionData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", s.path, err)
	}
	if data.Token != "" {
		s.data = &data
	}
	return s, nil
}

// Path returns the session file location.
func (s *Session) Path() string { return s.path }

// CurrentUser returns the signed-in user, or nil when signed out or the
// stored token no longer verifies.
func (s *Session) CurrentUser() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Session) currentLocked() *models.User {
	if s.data == nil {
		return nil
	}
	user, err := s.auth.Tokens().Verify(s.data.Token)
	if err != nil {
		return nil
	}
	return user
}

// Token returns the stored session token, empty when signed out.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return ""
	}
	return s.data.Token
}

// SignIn authenticates and persists the session.
func (s *Session) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	user, token, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return user, s.set(&sessionData{UID: user.UID, Email: user.Email, Token: token}, user)
}

// SignUp creates an account and signs it in.
func (s *Session) SignUp(ctx context.Context, email, password string) (*models.User, error) {
	user, token, err := s.auth.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return user, s.set(&sessionData{UID: user.UID, Email: user.Email, Token: token}, user)
}

// SignOut clears the session. Signing out while signed out is a no-op.
func (s *Session) SignOut() error {
	s.mu.Lock()
	if s.data == nil {
		s.mu.Unlock()
		return nil
	}
	s.data = nil
	err := os.Remove(s.path)
	listeners := s.snapshotLocked()
	s.mu.Unlock()

	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	notify(listeners, nil)
	return nil
}

// OnChange registers fn to be called after every sign-in and sign-out with
// the new user (nil when signed out). The returned func unsubscribes.
func (s *Session) OnChange(fn func(*models.User)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) set(data *sessionData, user *models.User) error {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	s.mu.Lock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("write session: %w", err)
	}
	s.data = data
	listeners := s.snapshotLocked()
	s.mu.Unlock()

	notify(listeners, user)
	return nil
}

func (s *Session) snapshotLocked() []func(*models.User) {
	out := make([]func(*models.User), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

// Listeners run outside the lock so they may call back into the session.
func notify(listeners []func(*models.User), user *models.User) {
	for _, fn := range listeners {
		fn(user)
	}
}
