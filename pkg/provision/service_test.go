package provision

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/authn"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

func newTestService(store UserStore, mapping RoleMapping) *Service {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	svc := NewService(store, mapping, logger)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func testClaims() *authn.IdentityClaims {
	return &authn.IdentityClaims{
		Subject:     "idp|user-1",
		Email:       "alice@example.com",
		DisplayName: "Alice Example",
		Groups:      []string{"idp-staff"},
	}
}

func TestProvisionCreatesNewUser(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, RoleMapping{"idp-admins": RoleAdmin})

	user, err := svc.Provision(context.Background(), testClaims())
	require.NoError(t, err)

	assert.NotEmpty(t, user.LocalID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "Alice Example", user.DisplayName)
	assert.Equal(t, RoleUser, user.Role)
	assert.Equal(t, "idp|user-1", user.ExternalSubject)
	assert.Equal(t, user.CreatedAt, user.UpdatedAt)
	assert.Equal(t, user.CreatedAt, user.LastLoginAt)

	stored, err := store.FindBySubject(context.Background(), "idp|user-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, user.LocalID, stored.LocalID)
}

func TestProvisionIsIdempotentForSameSubject(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, nil)

	first, err := svc.Provision(context.Background(), testClaims())
	require.NoError(t, err)

	second, err := svc.Provision(context.Background(), testClaims())
	require.NoError(t, err)

	assert.Equal(t, first.LocalID, second.LocalID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestProvisionRefreshesMutableAttributes(t *testing.T) {
	store := NewMemoryStore()
	mapping := RoleMapping{"idp-admins": RoleAdmin}
	svc := newTestService(store, mapping)

	first, err := svc.Provision(context.Background(), testClaims())
	require.NoError(t, err)
	assert.Equal(t, RoleUser, first.Role)

	// The provider promotes the user and changes their display name.
	claims := testClaims()
	claims.DisplayName = "Alice A. Example"
	claims.Groups = []string{"idp-admins"}
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }

	second, err := svc.Provision(context.Background(), claims)
	require.NoError(t, err)

	assert.Equal(t, first.LocalID, second.LocalID)
	assert.Equal(t, RoleAdmin, second.Role)
	assert.Equal(t, "Alice A. Example", second.DisplayName)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.LastLoginAt.After(first.LastLoginAt))
}

func TestProvisionAdoptsExistingAccountByEmail(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, nil)

	// An account created before subject tracking has no external subject.
	legacy := &UserRecord{
		LocalID:     "legacy-id",
		Email:       "alice@example.com",
		DisplayName: "Alice",
		Role:        RoleAdmin,
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Create(context.Background(), legacy))

	user, err := svc.Provision(context.Background(), testClaims())
	require.NoError(t, err)

	assert.Equal(t, "legacy-id", user.LocalID)
	assert.Equal(t, "idp|user-1", user.ExternalSubject)

	// Subsequent logins resolve by subject.
	again, err := svc.Provision(context.Background(), testClaims())
	require.NoError(t, err)
	assert.Equal(t, "legacy-id", again.LocalID)
}

func TestProvisionRejectsMissingClaims(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, nil)

	noSubject := testClaims()
	noSubject.Subject = ""
	_, err := svc.Provision(context.Background(), noSubject)
	assert.ErrorIs(t, err, ErrProvisioning)

	noEmail := testClaims()
	noEmail.Email = ""
	_, err = svc.Provision(context.Background(), noEmail)
	assert.ErrorIs(t, err, ErrProvisioning)
}

func TestProvisionFallsBackToEmailForDisplayName(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, nil)

	claims := testClaims()
	claims.DisplayName = ""

	user, err := svc.Provision(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.DisplayName)
}

func TestMemoryStoreEnforcesUniqueness(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &UserRecord{
		LocalID:         "u1",
		Email:           "alice@example.com",
		ExternalSubject: "idp|user-1",
	}))

	err := store.Create(ctx, &UserRecord{
		LocalID:         "u2",
		Email:           "alice@example.com",
		ExternalSubject: "idp|user-2",
	})
	assert.Error(t, err)

	err = store.Create(ctx, &UserRecord{
		LocalID:         "u3",
		Email:           "bob@example.com",
		ExternalSubject: "idp|user-1",
	})
	assert.Error(t, err)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &UserRecord{
		LocalID:         "u1",
		Email:           "alice@example.com",
		ExternalSubject: "idp|user-1",
		Role:            RoleUser,
	}))

	fetched, err := store.FindByID(ctx, "u1")
	require.NoError(t, err)
	fetched.Role = RoleAdmin

	again, err := store.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, again.Role)
}
