// Package users provides account administration for admins.
package users

import (
	"context"
	"sync"

	"github.com/kimhsiao/hostelhub/client/internal/api"
	apperrors "github.com/kimhsiao/hostelhub/client/internal/errors"
	"github.com/kimhsiao/hostelhub/client/internal/models"
)

// Messages stored when a request fails without a server message.
const (
	MsgFetchUsers    = "Error fetching users"
	MsgUpdateRole    = "Error updating user role"
	MsgDeleteUser    = "Error deleting user"
	MsgOwnAccount    = "You cannot delete your own account"
	MsgOwnRole       = "You cannot change your own role"
	MsgRoleIsInvalid = "Role must be user or admin"
)

// CurrentUser returns the signed-in user. *auth.Session's User method fits.
type CurrentUser func() *models.User

// Service lists, re-roles and deletes accounts, keeping a local copy of the
// list in step with successful changes.
type Service struct {
	client *api.Client
	me     CurrentUser

	mu    sync.RWMutex
	users []models.User
	err   string
}

// NewService creates a Service.
func NewService(client *api.Client, me CurrentUser) *Service {
	return &Service{client: client, me: me, users: []models.User{}}
}

// List fetches every account.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	users, err := s.client.ListUsers(ctx)
	if err != nil {
		return nil, s.fail(err, MsgFetchUsers)
	}
	s.mu.Lock()
	s.users = users
	s.err = ""
	s.mu.Unlock()
	return s.Users(), nil
}

// ChangeRole sets the role of account id.
func (s *Service) ChangeRole(ctx context.Context, id models.ID, role models.Role) error {
	if !role.Valid() {
		return apperrors.Validation(apperrors.FieldErrors{"role": MsgRoleIsInvalid})
	}
	if s.isSelf(id) {
		return apperrors.Validation(apperrors.FieldErrors{"id": MsgOwnRole})
	}
	if err := s.client.UpdateUserRole(ctx, id, role); err != nil {
		return s.fail(err, MsgUpdateRole)
	}

	s.mu.Lock()
	for i := range s.users {
		if s.users[i].ID == id {
			s.users[i].Role = role
		}
	}
	s.err = ""
	s.mu.Unlock()
	return nil
}

// Delete removes account id.
func (s *Service) Delete(ctx context.Context, id models.ID) error {
	if s.isSelf(id) {
		return apperrors.Validation(apperrors.FieldErrors{"id": MsgOwnAccount})
	}
	if err := s.client.DeleteUser(ctx, id); err != nil {
		return s.fail(err, MsgDeleteUser)
	}

	s.mu.Lock()
	kept := s.users[:0]
	for _, u := range s.users {
		if u.ID != id {
			kept = append(kept, u)
		}
	}
	s.users = kept
	s.err = ""
	s.mu.Unlock()
	return nil
}

// Users returns the last fetched list with local changes applied.
func (s *Service) Users() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.User{}, s.users...)
}

// Err returns the last error message.
func (s *Service) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Service) isSelf(id models.ID) bool {
	if s.me == nil {
		return false
	}
	me := s.me()
	return me != nil && me.ID == id
}

func (s *Service) fail(err error, fallback string) error {
	s.mu.Lock()
	s.err = apperrors.Message(err, fallback)
	s.mu.Unlock()
	return err
}
