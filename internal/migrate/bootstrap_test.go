package migrate

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/verdant-crm/verdant/internal/accounts"
	"github.com/verdant-crm/verdant/internal/audit"
	"github.com/verdant-crm/verdant/internal/rbac"
	"github.com/verdant-crm/verdant/internal/shared"
)

// userStore is an in-memory accounts.RepositoryPort. Bootstrap only reads,
// so the transactional methods are inert.
type userStore struct {
	users []accounts.User
}

func (s *userStore) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	return fn(ctx, &userStoreTx{})
}

func (s *userStore) GetUser(ctx context.Context, id uuid.UUID) (accounts.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return accounts.User{}, shared.ErrNotFound
}

func (s *userStore) ListUsers(ctx context.Context) ([]accounts.User, error) {
	users := append([]accounts.User{}, s.users...)
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (s *userStore) IsLocked(ctx context.Context, id uuid.UUID) (bool, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return false, err
	}
	return u.IsLocked, nil
}

func (s *userStore) EarliestUser(ctx context.Context) (accounts.User, error) {
	users, _ := s.ListUsers(ctx)
	if len(users) == 0 {
		return accounts.User{}, shared.ErrNotFound
	}
	return users[0], nil
}

type userStoreTx struct{}

func (t *userStoreTx) GetUserForUpdate(ctx context.Context, id uuid.UUID) (accounts.User, error) {
	return accounts.User{}, shared.ErrNotFound
}

func (t *userStoreTx) CreateUser(ctx context.Context, user accounts.User) (accounts.User, error) {
	return user, nil
}

func (t *userStoreTx) DeleteUser(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func (t *userStoreTx) SetLock(ctx context.Context, id uuid.UUID, by uuid.UUID, at time.Time) (bool, error) {
	return false, nil
}

func (t *userStoreTx) ClearLock(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func (t *userStoreTx) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

func (t *userStoreTx) RecordAudit(ctx context.Context, entry audit.Entry) error {
	return nil
}

func demoUser(email string, createdAt time.Time) accounts.User {
	return accounts.User{ID: uuid.New(), Email: email, IsActive: true, CreatedAt: createdAt}
}

func seedSuperAdmin(t *testing.T, roles *rbac.Service) rbac.Role {
	t.Helper()
	role, err := roles.UpsertRole(context.Background(), rbac.RoleInput{
		Name:        "Super Admin",
		Description: "Full access to every module",
		Permissions: rbac.AllPermissionKeys(),
	})
	require.NoError(t, err)
	return role
}

func TestBootstrapBindsEarliestUser(t *testing.T) {
	ctx := context.Background()
	store := newRoleStore()
	roles := rbac.NewService(store, nil, nil)
	admin := seedSuperAdmin(t, roles)

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	earliest := demoUser("first@verdant.local", base)
	later := demoUser("second@verdant.local", base.Add(time.Hour))
	users := accounts.NewService(&userStore{users: []accounts.User{later, earliest}}, nil)

	require.NoError(t, Bootstrap(ctx, users, roles, "Super Admin", nil))

	// A second boot sees the binding and changes nothing.
	require.NoError(t, Bootstrap(ctx, users, roles, "Super Admin", nil))

	bindings, err := roles.BindingsFor(ctx, earliest.ID)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	require.Equal(t, admin.ID, bindings[0].RoleID)

	laterBindings, err := roles.BindingsFor(ctx, later.ID)
	require.NoError(t, err)
	require.Empty(t, laterBindings)
}

func TestBootstrapNoUsersIsNoop(t *testing.T) {
	store := newRoleStore()
	roles := rbac.NewService(store, nil, nil)
	seedSuperAdmin(t, roles)
	users := accounts.NewService(&userStore{}, nil)

	require.NoError(t, Bootstrap(context.Background(), users, roles, "Super Admin", nil))
	require.Empty(t, store.bindings)
}

func TestBootstrapNeutralizedByExistingBinding(t *testing.T) {
	ctx := context.Background()
	store := newRoleStore()
	roles := rbac.NewService(store, nil, nil)
	seedSuperAdmin(t, roles)

	viewer, err := roles.UpsertRole(ctx, rbac.RoleInput{
		Name:        "Viewer",
		Permissions: []string{"customers:read"},
	})
	require.NoError(t, err)

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	earliest := demoUser("first@verdant.local", base)
	holder := demoUser("second@verdant.local", base.Add(time.Hour))
	users := accounts.NewService(&userStore{users: []accounts.User{earliest, holder}}, nil)

	// Any binding at all means the deployment already has an administrator
	// path; bootstrap must not mint another.
	require.NoError(t, roles.Assign(ctx, holder.ID, viewer.ID))
	require.NoError(t, Bootstrap(ctx, users, roles, "Super Admin", nil))

	require.Len(t, store.bindings, 1)
	bindings, err := roles.BindingsFor(ctx, earliest.ID)
	require.NoError(t, err)
	require.Empty(t, bindings)
}

func TestBootstrapMissingRole(t *testing.T) {
	store := newRoleStore()
	roles := rbac.NewService(store, nil, nil)
	users := accounts.NewService(&userStore{users: []accounts.User{
		demoUser("first@verdant.local", time.Now().UTC()),
	}}, nil)

	err := Bootstrap(context.Background(), users, roles, "Super Admin", nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
