package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verdant-crm/verdant/internal/shared"
)

func TestCatalogCoversExpectedKeys(t *testing.T) {
	expected := []string{
		"customers:read", "customers:write", "customers:delete",
		"deals:read", "deals:write", "deals:delete",
		"inventory:read", "inventory:write", "inventory:delete",
		"items:read", "warehouses:delete", "stock_movements:read",
		"team:read", "team:manage_roles",
		"expenses:approve", "inventory:manage_warehouses",
		"shipping:write", "notifications:read",
		"api:access", "api:admin",
	}
	for _, key := range expected {
		require.True(t, Known(key), "catalog missing %s", key)
	}
}

func TestCatalogEntriesAreWellFormed(t *testing.T) {
	seen := make(map[string]bool)
	for _, entry := range AllPermissions() {
		require.False(t, seen[entry.Key], "duplicate catalog key %s", entry.Key)
		seen[entry.Key] = true
		require.Regexp(t, `^[a-z_]+:[a-z_]+$`, entry.Key)
		require.NotEmpty(t, entry.Name)
		require.NotEmpty(t, entry.Category)
	}
	require.Len(t, AllPermissionKeys(), len(AllPermissions()))
}

func TestValidateKeys(t *testing.T) {
	require.NoError(t, ValidateKeys([]string{"items:read", "team:manage_roles"}))
	require.NoError(t, ValidateKeys(nil))

	err := ValidateKeys([]string{"Items:Read"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	err = ValidateKeys([]string{"spaceships:launch"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	err = ValidateKeys([]string{"no-colon"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestSetHelpers(t *testing.T) {
	require.Equal(t, []string{"a:b", "c:d"}, normalizeSet([]string{"c:d", "a:b", "a:b"}))
	require.Equal(t, []string{}, normalizeSet(nil))

	union := unionSets([]string{"a:b"}, []string{"a:b", "c:d"})
	require.Equal(t, []string{"a:b", "c:d"}, union)
	require.True(t, setsEqual(union, unionSets(union, []string{"c:d"})))
}
