package rbac

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Role is a named, flat set of permissions assignable to users. Name is the
// immutable natural key; renaming is not supported.
type Role struct {
	ID          uuid.UUID
	Name        string
	Description string
	Permissions []string
	IsActive    bool
	CreatedBy   *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasPermission reports whether the role grants the permission.
func (r Role) HasPermission(permission string) bool {
	for _, p := range r.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Binding associates one user with one role, with assignment provenance.
// At most one binding exists per (user, role) pair.
type Binding struct {
	UserID     uuid.UUID
	RoleID     uuid.UUID
	AssignedAt time.Time
	AssignedBy *uuid.UUID
}

// RoleInput declares a role for UpsertRole. Permissions are validated against
// the vocabulary and normalised to set semantics before persisting.
type RoleInput struct {
	Name        string   `validate:"required,min=2,max=100"`
	Description string   `validate:"max=500"`
	Permissions []string `validate:"dive,permission"`
}

// normalizeSet deduplicates and sorts permission keys. Storage order is
// irrelevant; sorting makes equality comparisons and fixtures stable.
func normalizeSet(permissions []string) []string {
	if len(permissions) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(permissions))
	result := make([]string, 0, len(permissions))
	for _, p := range permissions {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		result = append(result, p)
	}
	sort.Strings(result)
	return result
}

// unionSets returns the set union of two permission lists.
func unionSets(a, b []string) []string {
	return normalizeSet(append(append([]string{}, a...), b...))
}

// setsEqual compares two normalised permission sets.
func setsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
