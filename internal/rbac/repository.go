package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdant-crm/verdant/internal/audit"
	"github.com/verdant-crm/verdant/internal/platform/db"
	"github.com/verdant-crm/verdant/internal/shared"
)

const roleColumns = `id, name, description, permissions, is_active, created_by, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for roles and bindings.
type Repository struct {
	pool     *pgxpool.Pool
	recorder *audit.Recorder
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, recorder: audit.NewRecorder()}
}

// WithTx runs fn inside a transaction. Audit records written through the
// transactional repository commit or roll back with the mutation.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, recorder: r.recorder})
	})
}

// GetRoleByName fetches a role by its natural key.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name)
	return scanRole(row)
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// EffectivePermissions returns the deduplicated union of permission sets over
// the given roles, ignoring inactive ones.
func (r *Repository) EffectivePermissions(ctx context.Context, roleIDs []uuid.UUID) ([]string, error) {
	if len(roleIDs) == 0 {
		return []string{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT jsonb_array_elements_text(permissions)
		FROM roles
		WHERE id = ANY($1) AND is_active = true`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// RolesFor returns the active roles bound to a user.
func (r *Repository) RolesFor(ctx context.Context, userID uuid.UUID) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name, r.description, r.permissions, r.is_active, r.created_by, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND r.is_active = true
		ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// BindingsFor returns all bindings of a user with provenance, including
// bindings to inactive roles.
func (r *Repository) BindingsFor(ctx context.Context, userID uuid.UUID) ([]Binding, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, role_id, assigned_at, assigned_by
		FROM user_roles
		WHERE user_id = $1
		ORDER BY assigned_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []Binding
	for rows.Next() {
		var b Binding
		if err := rows.Scan(&b.UserID, &b.RoleID, &b.AssignedAt, &b.AssignedBy); err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

// UserPermissions resolves the effective permission set of a user across all
// active bound roles. The DISTINCT guarantees set semantics regardless of the
// stored array contents.
func (r *Repository) UserPermissions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT jsonb_array_elements_text(r.permissions)
		FROM roles r
		JOIN user_roles ur ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND r.is_active = true`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

type txRepository struct {
	tx       pgx.Tx
	recorder *audit.Recorder
}

// GetRoleByNameForUpdate locks the role row for the remainder of the
// transaction so read-modify-write merges never lose an update.
func (t *txRepository) GetRoleByNameForUpdate(ctx context.Context, name string) (Role, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1 FOR UPDATE`, name)
	return scanRole(row)
}

// UpsertRole inserts the role or fully replaces description and permissions
// of the existing role with the same name.
func (t *txRepository) UpsertRole(ctx context.Context, role Role) (Role, error) {
	permsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return Role{}, err
	}
	row := t.tx.QueryRow(ctx, `
		INSERT INTO roles (id, name, description, permissions, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, $5, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description,
		    permissions = EXCLUDED.permissions,
		    updated_at = NOW()
		RETURNING `+roleColumns,
		role.ID, role.Name, role.Description, permsJSON, role.CreatedBy)
	stored, err := scanRole(row)
	if err != nil {
		return Role{}, shared.MapPgError(err)
	}
	return stored, nil
}

// UpdateRolePermissions writes a merged permission set.
func (t *txRepository) UpdateRolePermissions(ctx context.Context, roleID uuid.UUID, permissions []string) (Role, error) {
	permsJSON, err := json.Marshal(permissions)
	if err != nil {
		return Role{}, err
	}
	row := t.tx.QueryRow(ctx, `
		UPDATE roles SET permissions = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+roleColumns, roleID, permsJSON)
	return scanRole(row)
}

// SetRoleActive flips is_active without touching permissions.
func (t *txRepository) SetRoleActive(ctx context.Context, name string, active bool) (Role, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE roles SET is_active = $2, updated_at = NOW()
		WHERE name = $1
		RETURNING `+roleColumns, name, active)
	return scanRole(row)
}

// InsertBinding creates the binding unless it already exists. The reported
// bool is false when the pair was already bound; existing provenance is never
// overwritten.
func (t *txRepository) InsertBinding(ctx context.Context, binding Binding) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, assigned_at, assigned_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, role_id) DO NOTHING`,
		binding.UserID, binding.RoleID, binding.AssignedAt, binding.AssignedBy)
	if err != nil {
		return false, shared.MapPgError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteBinding removes the binding; deleting a missing binding is a no-op.
func (t *txRepository) DeleteBinding(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RecordAudit appends an audit entry on this transaction.
func (t *txRepository) RecordAudit(ctx context.Context, entry audit.Entry) error {
	return t.recorder.Record(ctx, t.tx, entry)
}

func scanRole(row pgx.Row) (Role, error) {
	var (
		role      Role
		permsJSON []byte
	)
	err := row.Scan(&role.ID, &role.Name, &role.Description, &permsJSON,
		&role.IsActive, &role.CreatedBy, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	if err != nil {
		return Role{}, err
	}
	if len(permsJSON) > 0 {
		var perms []string
		if err := json.Unmarshal(permsJSON, &perms); err != nil {
			return Role{}, err
		}
		role.Permissions = normalizeSet(perms)
	} else {
		role.Permissions = []string{}
	}
	role.CreatedAt = role.CreatedAt.UTC()
	role.UpdatedAt = role.UpdatedAt.UTC()
	return role, nil
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func collectPermissions(rows pgx.Rows) ([]string, error) {
	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return normalizeSet(perms), nil
}

// NewBinding builds a binding stamped with the current time.
func NewBinding(userID, roleID uuid.UUID, assignedBy *uuid.UUID) Binding {
	return Binding{UserID: userID, RoleID: roleID, AssignedAt: time.Now().UTC(), AssignedBy: assignedBy}
}
