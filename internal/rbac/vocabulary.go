package rbac

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/verdant-crm/verdant/internal/shared"
)

// CatalogEntry describes one permission key for administrative UIs.
type CatalogEntry struct {
	Key         string
	Name        string
	Description string
	Category    string
}

// Permission keys follow the resource:action convention. Keys are never
// removed from the catalog; retiring a capability is a role edit.
var keyPattern = regexp.MustCompile(`^[a-z_]+:[a-z_]+$`)

var catalog = buildCatalog()

func buildCatalog() []CatalogEntry {
	type resource struct {
		key      string
		label    string
		category string
	}
	resources := []resource{
		{"customers", "Customers", "Customer Management"},
		{"deals", "Deals", "Customer Management"},
		{"activities", "Activities", "Customer Management"},
		{"inventory", "Inventory", "Inventory Management"},
		{"items", "Items", "Inventory Management"},
		{"warehouses", "Warehouses", "Inventory Management"},
		{"stock_movements", "Stock Movements", "Inventory Management"},
		{"team", "Team", "Team Management"},
		{"expenses", "Expenses", "Expense Tracking"},
		{"shipping", "Shipments", "Shipping Tracking"},
		{"notifications", "Notifications", "Notifications"},
		{"api", "API", "API Access"},
	}
	actions := []struct {
		key   string
		label string
	}{
		{"read", "View"},
		{"write", "Manage"},
		{"delete", "Delete"},
	}

	var entries []CatalogEntry
	for _, r := range resources {
		for _, a := range actions {
			entries = append(entries, CatalogEntry{
				Key:         r.key + ":" + a.key,
				Name:        fmt.Sprintf("%s %s", a.label, r.label),
				Description: fmt.Sprintf("%s %s records", a.label, r.label),
				Category:    r.category,
			})
		}
	}
	entries = append(entries,
		CatalogEntry{Key: "team:manage_roles", Name: "Manage Roles", Description: "Create, edit, and assign roles and permissions", Category: "Team Management"},
		CatalogEntry{Key: "expenses:approve", Name: "Approve Expenses", Description: "Approve submitted expense records", Category: "Expense Tracking"},
		CatalogEntry{Key: "inventory:manage_warehouses", Name: "Manage Warehouses", Description: "Create and edit warehouse locations", Category: "Inventory Management"},
		CatalogEntry{Key: "api:access", Name: "API Access", Description: "Access API endpoints for integration", Category: "API Access"},
		CatalogEntry{Key: "api:admin", Name: "API Administration", Description: "Manage API keys and administrative functions", Category: "API Access"},
	)
	return entries
}

var known = func() map[string]CatalogEntry {
	m := make(map[string]CatalogEntry, len(catalog))
	for _, entry := range catalog {
		m[entry.Key] = entry
	}
	return m
}()

// AllPermissions returns the full permission catalog.
func AllPermissions() []CatalogEntry {
	result := make([]CatalogEntry, len(catalog))
	copy(result, catalog)
	return result
}

// AllPermissionKeys returns every key in the catalog as a permission set.
func AllPermissionKeys() []string {
	keys := make([]string, 0, len(catalog))
	for _, entry := range catalog {
		keys = append(keys, entry.Key)
	}
	return normalizeSet(keys)
}

// Known reports whether the key exists in the catalog.
func Known(key string) bool {
	_, ok := known[key]
	return ok
}

// ValidateKeys checks format and catalog membership for every key. New
// capabilities enter through catalog additions, not ad hoc strings.
func ValidateKeys(keys []string) error {
	for _, key := range keys {
		if !keyPattern.MatchString(key) {
			return fmt.Errorf("%w: malformed permission key %q", shared.ErrInvalidInput, key)
		}
		if !Known(key) {
			return fmt.Errorf("%w: unknown permission key %q", shared.ErrInvalidInput, key)
		}
	}
	return nil
}

// NewValidator returns a validator with the custom permission rule registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
		key := fl.Field().String()
		return keyPattern.MatchString(key) && Known(key)
	})
	return v
}
