package rbac

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/verdant-crm/verdant/internal/audit"
	"github.com/verdant-crm/verdant/internal/shared"
)

// RepositoryPort defines data access for roles and bindings.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	EffectivePermissions(ctx context.Context, roleIDs []uuid.UUID) ([]string, error)
	RolesFor(ctx context.Context, userID uuid.UUID) ([]Role, error)
	BindingsFor(ctx context.Context, userID uuid.UUID) ([]Binding, error)
	UserPermissions(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// TxRepository is the transactional slice of the repository. Every mutation
// and its audit record share one transaction.
type TxRepository interface {
	GetRoleByNameForUpdate(ctx context.Context, name string) (Role, error)
	UpsertRole(ctx context.Context, role Role) (Role, error)
	UpdateRolePermissions(ctx context.Context, roleID uuid.UUID, permissions []string) (Role, error)
	SetRoleActive(ctx context.Context, name string, active bool) (Role, error)
	InsertBinding(ctx context.Context, binding Binding) (bool, error)
	DeleteBinding(ctx context.Context, userID, roleID uuid.UUID) (bool, error)
	RecordAudit(ctx context.Context, entry audit.Entry) error
}

// Invalidator drops cached effective permission sets after a mutation.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service is the role registry and binding store.
type Service struct {
	repo     RepositoryPort
	cache    Invalidator
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds a Service instance. cache and logger may be nil.
func NewService(repo RepositoryPort, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, validate: NewValidator(), logger: logger}
}

// UpsertRole creates the role or fully replaces the description and
// permission set of the existing role with the same name. This is the
// declarative "set this role to exactly X" path; incremental grants go
// through MergePermissions.
func (s *Service) UpsertRole(ctx context.Context, input RoleInput) (Role, error) {
	if err := s.validate.Struct(input); err != nil {
		return Role{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if err := ValidateKeys(input.Permissions); err != nil {
		return Role{}, err
	}
	perms := normalizeSet(input.Permissions)

	var stored Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prior, err := tx.GetRoleByNameForUpdate(ctx, input.Name)
		created := shared.IsNotFound(err)
		if err != nil && !created {
			return err
		}

		role := Role{ID: uuid.New(), Name: input.Name, Description: input.Description, Permissions: perms}
		if actor, ok := shared.ActorFromContext(ctx); ok {
			role.CreatedBy = &actor.UserID
		}
		stored, err = tx.UpsertRole(ctx, role)
		if err != nil {
			return err
		}

		entry := s.newEntry(ctx, audit.ActionUpdate, audit.ResourceRole, &stored.ID)
		entry.NewValues = roleValues(stored)
		if created {
			entry.Action = audit.ActionCreate
		} else {
			entry.OldValues = roleValues(prior)
		}
		return tx.RecordAudit(ctx, entry)
	})
	if err != nil {
		return Role{}, err
	}
	s.invalidate(ctx)
	return stored, nil
}

// MergePermissions unions additional permissions into an existing role. The
// union is a true set merge, so repeating the call with the same input is a
// no-op; it never removes a previously granted permission. The role must
// already exist.
func (s *Service) MergePermissions(ctx context.Context, name string, additional []string) (Role, error) {
	if err := ValidateKeys(additional); err != nil {
		return Role{}, err
	}

	var (
		stored  Role
		changed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prior, err := tx.GetRoleByNameForUpdate(ctx, name)
		if err != nil {
			return err
		}
		merged := unionSets(prior.Permissions, additional)
		if setsEqual(prior.Permissions, merged) {
			stored = prior
			return nil
		}
		changed = true
		stored, err = tx.UpdateRolePermissions(ctx, prior.ID, merged)
		if err != nil {
			return err
		}

		entry := s.newEntry(ctx, audit.ActionMergePermissions, audit.ResourceRole, &stored.ID)
		entry.OldValues = map[string]any{"permissions": prior.Permissions}
		entry.NewValues = map[string]any{"permissions": stored.Permissions}
		return tx.RecordAudit(ctx, entry)
	})
	if err != nil {
		return Role{}, err
	}
	if changed {
		s.invalidate(ctx)
	}
	return stored, nil
}

// Deactivate flips the role inactive; permissions are untouched and the role
// remains for audit history, but the evaluator treats its bindings as
// granting nothing.
func (s *Service) Deactivate(ctx context.Context, name string) (Role, error) {
	return s.setActive(ctx, name, false, audit.ActionDeactivate)
}

// Reactivate flips the role back to active.
func (s *Service) Reactivate(ctx context.Context, name string) (Role, error) {
	return s.setActive(ctx, name, true, audit.ActionReactivate)
}

func (s *Service) setActive(ctx context.Context, name string, active bool, action string) (Role, error) {
	var stored Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prior, err := tx.GetRoleByNameForUpdate(ctx, name)
		if err != nil {
			return err
		}
		if prior.IsActive == active {
			stored = prior
			return nil
		}
		stored, err = tx.SetRoleActive(ctx, name, active)
		if err != nil {
			return err
		}
		entry := s.newEntry(ctx, action, audit.ResourceRole, &stored.ID)
		entry.OldValues = map[string]any{"is_active": prior.IsActive}
		entry.NewValues = map[string]any{"is_active": stored.IsActive}
		return tx.RecordAudit(ctx, entry)
	})
	if err != nil {
		return Role{}, err
	}
	s.invalidate(ctx)
	return stored, nil
}

// GetRole fetches a role by name.
func (s *Service) GetRole(ctx context.Context, name string) (Role, error) {
	return s.repo.GetRoleByName(ctx, name)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// EffectivePermissions returns the union of permission sets over the given
// active roles. Pure read; inactive roles contribute nothing.
func (s *Service) EffectivePermissions(ctx context.Context, roleIDs []uuid.UUID) ([]string, error) {
	return s.repo.EffectivePermissions(ctx, roleIDs)
}

// Assign binds a role to a user. Assigning an existing binding succeeds
// without touching the original provenance.
func (s *Service) Assign(ctx context.Context, userID, roleID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		binding := NewBinding(userID, roleID, nil)
		if actor, ok := shared.ActorFromContext(ctx); ok {
			binding.AssignedBy = &actor.UserID
		}
		inserted, err := tx.InsertBinding(ctx, binding)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		entry := s.newEntry(ctx, audit.ActionAssign, audit.ResourceUserRole, &roleID)
		entry.NewValues = map[string]any{"user_id": userID.String(), "role_id": roleID.String()}
		return tx.RecordAudit(ctx, entry)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Revoke removes a binding; revoking a non-existent binding is a no-op.
func (s *Service) Revoke(ctx context.Context, userID, roleID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		deleted, err := tx.DeleteBinding(ctx, userID, roleID)
		if err != nil {
			return err
		}
		if !deleted {
			return nil
		}
		entry := s.newEntry(ctx, audit.ActionRevoke, audit.ResourceUserRole, &roleID)
		entry.OldValues = map[string]any{"user_id": userID.String(), "role_id": roleID.String()}
		return tx.RecordAudit(ctx, entry)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// RolesFor returns the active roles bound to a user.
func (s *Service) RolesFor(ctx context.Context, userID uuid.UUID) ([]Role, error) {
	return s.repo.RolesFor(ctx, userID)
}

// BindingsFor returns all bindings of a user with provenance.
func (s *Service) BindingsFor(ctx context.Context, userID uuid.UUID) ([]Binding, error) {
	return s.repo.BindingsFor(ctx, userID)
}

func (s *Service) newEntry(ctx context.Context, action, resourceType string, resourceID *uuid.UUID) audit.Entry {
	entry := audit.Entry{Action: action, ResourceType: resourceType, ResourceID: resourceID}
	if actor, ok := shared.ActorFromContext(ctx); ok {
		actorID := actor.UserID
		entry.ActorID = &actorID
		entry.IPAddress = actor.IPAddress
		entry.UserAgent = actor.UserAgent
	}
	return entry
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("rbac: cache invalidation failed", slog.Any("error", err))
	}
}

func roleValues(role Role) map[string]any {
	return map[string]any{
		"name":        role.Name,
		"description": role.Description,
		"permissions": role.Permissions,
		"is_active":   role.IsActive,
	}
}
