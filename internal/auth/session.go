// Package auth manages the session token and the signed-in user.
package auth

import (
	"context"
	"sync"

	"github.com/kimhsiao/hostelhub/client/internal/api"
	apperrors "github.com/kimhsiao/hostelhub/client/internal/errors"
	"github.com/kimhsiao/hostelhub/client/internal/logging"
	"github.com/kimhsiao/hostelhub/client/internal/models"
	"github.com/kimhsiao/hostelhub/client/internal/storage"
	"github.com/kimhsiao/hostelhub/client/internal/validation"
)

// Messages stored when authentication fails without a server message.
const (
	MsgLoginFailed        = "Login failed"
	MsgRegistrationFailed = "Registration failed"
	MsgSessionExpired     = "Authentication failed. Please login again."
	MsgAdminRequired      = "Admin access required"
)

// Session owns the bearer token and the current user. The token is persisted
// under storage.KeyToken and installed on the API client; any 401 answer to
// an authenticated request signs the session out.
type Session struct {
	client *api.Client
	store  storage.Storage

	mu    sync.RWMutex
	token string
	user  *models.User
	err   string
}

// NewSession restores a persisted token, if any, and hooks the client's 401 handling.
func NewSession(client *api.Client, store storage.Storage) (*Session, error) {
	s := &Session{client: client, store: store}

	token, ok, err := store.Get(storage.KeyToken)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read session token", err)
	}
	if ok {
		s.token = token
		client.SetToken(token)
	}

	client.OnUnauthorized(func() {
		logging.Warn("Session rejected by server, signing out", nil)
		s.forceLogout()
	})
	return s, nil
}

// Login signs in with email and password.
func (s *Session) Login(ctx context.Context, email, password string) error {
	creds := models.Credentials{Email: email, Password: password}
	if err := validation.Credentials(creds); err != nil {
		return err
	}
	res, err := s.client.Login(ctx, creds)
	if err != nil {
		return s.fail(err, MsgLoginFailed)
	}
	return s.establish(res)
}

// Register creates an account and signs in with it.
func (s *Session) Register(ctx context.Context, name, email, password string) error {
	reg := models.Registration{Name: name, Email: email, Password: password}
	if err := validation.Registration(reg); err != nil {
		return err
	}
	res, err := s.client.Register(ctx, reg)
	if err != nil {
		return s.fail(err, MsgRegistrationFailed)
	}
	return s.establish(res)
}

// LoadUser fetches the user the stored token belongs to. Without a token it
// does nothing. If the server rejects the token the session is signed out.
func (s *Session) LoadUser(ctx context.Context) error {
	if !s.IsAuthenticated() {
		return nil
	}
	u, err := s.client.Me(ctx)
	if err != nil {
		logging.Error("Error loading user", err)
		s.forceLogout()
		return apperrors.Wrap(apperrors.ErrAuthFailed, MsgSessionExpired, err)
	}

	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	return nil
}

// Logout forgets the token and the user.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.err = ""
	s.mu.Unlock()

	s.client.SetToken("")
	if err := s.store.Remove(storage.KeyToken); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to remove session token", err)
	}
	return nil
}

// IsAuthenticated reports whether a token is held.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// Token returns the bearer token.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the signed-in user, or nil before LoadUser, Login or Register.
func (s *Session) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// IsAdmin reports whether the signed-in user is an admin.
func (s *Session) IsAdmin() bool {
	return s.User().IsAdmin()
}

// RequireAdmin returns a permission error unless the signed-in user is an admin.
func (s *Session) RequireAdmin() error {
	if !s.IsAdmin() {
		return apperrors.New(apperrors.ErrPermission, MsgAdminRequired)
	}
	return nil
}

// Err returns the last authentication error message.
func (s *Session) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// ClearError drops the last authentication error message.
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = ""
}

func (s *Session) establish(res *api.AuthResult) error {
	if err := s.store.Set(storage.KeyToken, res.Token); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to persist session token", err)
	}
	s.client.SetToken(res.Token)

	s.mu.Lock()
	s.token = res.Token
	s.user = res.User
	s.err = ""
	s.mu.Unlock()

	if res.User != nil {
		logging.Info("Signed in", map[string]interface{}{"user_id": res.User.ID, "role": res.User.Role})
	}
	return nil
}

func (s *Session) fail(err error, fallback string) error {
	s.mu.Lock()
	s.err = apperrors.Message(err, fallback)
	s.mu.Unlock()
	return err
}

func (s *Session) forceLogout() {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.err = MsgSessionExpired
	s.mu.Unlock()

	s.client.SetToken("")
	if err := s.store.Remove(storage.KeyToken); err != nil {
		logging.Error("Failed to remove session token", err)
	}
}
