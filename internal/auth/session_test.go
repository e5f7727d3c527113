package auth

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/hostelhub/client/internal/api"
	apperrors "github.com/kimhsiao/hostelhub/client/internal/errors"
	"github.com/kimhsiao/hostelhub/client/internal/models"
	"github.com/kimhsiao/hostelhub/client/internal/storage"
	"github.com/kimhsiao/hostelhub/client/internal/testutil/fakeapi"
)

func newSession(t *testing.T) (*Session, *api.Client, *storage.MemoryStorage, *fakeapi.Server) {
	t.Helper()
	srv := fakeapi.New()
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.APIURL())
	mem := storage.NewMemoryStorage()
	s, err := NewSession(client, mem)
	require.NoError(t, err)
	return s, client, mem, srv
}

func TestLogin(t *testing.T) {
	s, client, mem, _ := newSession(t)

	require.NoError(t, s.Login(context.Background(), fakeapi.AdminEmail, fakeapi.AdminPassword))
	assert.True(t, s.IsAuthenticated())
	assert.True(t, s.IsAdmin())
	assert.NoError(t, s.RequireAdmin())

	token, ok, _ := mem.Get(storage.KeyToken)
	assert.True(t, ok)
	assert.Equal(t, token, client.Token())
}

func TestLogin_failure(t *testing.T) {
	s, _, _, _ := newSession(t)

	err := s.Login(context.Background(), fakeapi.AdminEmail, "nope")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", s.Err())
	assert.False(t, s.IsAuthenticated())

	s.ClearError()
	assert.Empty(t, s.Err())
}

func TestLogin_validationBeforeNetwork(t *testing.T) {
	s, _, _, srv := newSession(t)

	err := s.Login(context.Background(), "not-an-email", "")
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	assert.Empty(t, srv.Calls())
}

func TestRegister(t *testing.T) {
	s, _, _, srv := newSession(t)
	ctx := context.Background()

	err := s.Register(ctx, "Bo", "bo@example.com", "123")
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	assert.Empty(t, srv.Calls())

	require.NoError(t, s.Register(ctx, "Bo", "bo@example.com", "secret1"))
	assert.Equal(t, "bo@example.com", s.User().Email)
	assert.False(t, s.IsAdmin())
	assert.True(t, apperrors.Is(s.RequireAdmin(), apperrors.ErrPermission))

	require.NoError(t, s.Logout())
	err = s.Register(ctx, "Bo", "bo@example.com", "secret1")
	require.Error(t, err)
	assert.Equal(t, "User already exists", s.Err())
}

func TestRestoreAndLoadUser(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	mem := storage.NewMemoryStorage()
	mem.Set(storage.KeyToken, fakeapi.TokenFor(fakeapi.AdminID))

	client := api.NewClient(srv.APIURL())
	s, err := NewSession(client, mem)
	require.NoError(t, err)
	assert.True(t, s.IsAuthenticated())
	assert.Nil(t, s.User())

	require.NoError(t, s.LoadUser(context.Background()))
	assert.Equal(t, models.RoleAdmin, s.User().Role)
}

func TestLoadUser_rejectedToken(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	mem := storage.NewMemoryStorage()
	mem.Set(storage.KeyToken, "stale")

	s, err := NewSession(api.NewClient(srv.APIURL()), mem)
	require.NoError(t, err)

	err = s.LoadUser(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrAuthFailed))
	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, MsgSessionExpired, s.Err())
	_, ok, _ := mem.Get(storage.KeyToken)
	assert.False(t, ok)
}

func TestLoadUser_withoutToken(t *testing.T) {
	s, _, _, srv := newSession(t)
	require.NoError(t, s.LoadUser(context.Background()))
	assert.Empty(t, srv.Calls())
}

func TestUnauthorizedElsewhereSignsOut(t *testing.T) {
	s, client, mem, srv := newSession(t)
	ctx := context.Background()
	require.NoError(t, s.Login(ctx, fakeapi.AdminEmail, fakeapi.AdminPassword))

	srv.Fail("GET", "/hostels", http.StatusUnauthorized, "Token expired", 1)
	_, err := client.ListHostels(ctx)
	require.Error(t, err)

	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, client.Token())
	assert.Equal(t, MsgSessionExpired, s.Err())
	_, ok, _ := mem.Get(storage.KeyToken)
	assert.False(t, ok)
}

func TestLogout(t *testing.T) {
	s, client, mem, _ := newSession(t)
	require.NoError(t, s.Login(context.Background(), fakeapi.AdminEmail, fakeapi.AdminPassword))

	require.NoError(t, s.Logout())
	assert.False(t, s.IsAuthenticated())
	assert.Nil(t, s.User())
	assert.Empty(t, client.Token())
	_, ok, _ := mem.Get(storage.KeyToken)
	assert.False(t, ok)
}
