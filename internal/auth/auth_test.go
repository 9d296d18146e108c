package auth

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battery-passport/internal/domain"
	"battery-passport/internal/storage"
)

func newTestSession(t *testing.T) (*Session, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewSession(store, zerolog.Nop()), store
}

// TestLoginLogout verifies the session round trip through blob storage.
func TestLoginLogout(t *testing.T) {
	session, store := newTestSession(t)
	ctx := context.Background()

	user, err := session.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	_, err = session.Login(ctx, " Garage ")
	require.NoError(t, err)

	raw, ok, err := store.Get(ctx, StorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"role":"garage"}`, raw)

	user, err = session.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, domain.RoleGarage, user.Role)

	require.NoError(t, session.Logout(ctx))
	user, err = session.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
}

// TestLoginRejectsUnknownRole checks only dashboard roles can sign in.
func TestLoginRejectsUnknownRole(t *testing.T) {
	session, store := newTestSession(t)

	_, err := session.Login(context.Background(), "owner")
	require.Error(t, err)

	_, ok, err := store.Get(context.Background(), StorageKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestCurrentToleratesCorruptState verifies bad stored data reads as signed out.
func TestCurrentToleratesCorruptState(t *testing.T) {
	session, store := newTestSession(t)
	ctx := context.Background()

	for _, raw := range []string{"{not-json", `{"role":"admin"}`, "   "} {
		require.NoError(t, store.Set(ctx, StorageKey, raw))
		user, err := session.Current(ctx)
		require.NoError(t, err, raw)
		assert.Nil(t, user, raw)
	}
}

// TestAuthorize covers the three route guard outcomes.
func TestAuthorize(t *testing.T) {
	garage := &domain.User{Role: domain.RoleGarage}
	recycler := &domain.User{Role: domain.RoleRecycler}

	assert.Equal(t, Decision{RedirectTo: PathLogin}, Authorize(nil, nil))
	assert.Equal(t, Decision{Allowed: true}, Authorize(garage, nil))
	assert.Equal(t, Decision{RedirectTo: PathHome}, Authorize(recycler, []domain.Role{domain.RoleGarage}))
	assert.Equal(t, Decision{Allowed: true}, Authorize(recycler, []domain.Role{domain.RoleGarage, domain.RoleRecycler}))
}

// TestAuthorizePath checks the route table and public paths.
func TestAuthorizePath(t *testing.T) {
	garage := &domain.User{Role: domain.RoleGarage}

	assert.True(t, AuthorizePath(garage, PathBatteryInfo).Allowed)
	assert.Equal(t, PathHome, AuthorizePath(garage, PathRecommendations).RedirectTo)
	assert.True(t, AuthorizePath(garage, PathBatteryStatus).Allowed)
	assert.Equal(t, PathLogin, AuthorizePath(nil, PathBatteryStatus).RedirectTo)
	assert.True(t, AuthorizePath(nil, PathLogin).Allowed)
}

// TestHomePath verifies each role lands on its own page.
func TestHomePath(t *testing.T) {
	assert.Equal(t, PathBatteryInfo, HomePath(domain.RoleGarage))
	assert.Equal(t, PathRecommendations, HomePath(domain.RoleRecycler))
	assert.Equal(t, PathHome, HomePath("unknown"))
}
