package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdant-crm/verdant/internal/audit"
	"github.com/verdant-crm/verdant/internal/platform/db"
	"github.com/verdant-crm/verdant/internal/shared"
)

const userColumns = `id, email, password_hash, first_name, last_name, is_active, is_locked, last_login, locked_at, locked_by, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for user accounts.
type Repository struct {
	pool     *pgxpool.Pool
	recorder *audit.Recorder
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, recorder: audit.NewRecorder()}
}

// WithTx runs fn inside a transaction; audit records share it.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, recorder: r.recorder})
	})
}

// GetUser fetches a user by id.
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// ListUsers returns all users ordered by creation time.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// IsLocked answers the evaluator's lock precondition with a single-column
// read, verifying the lock invariant on the way.
func (r *Repository) IsLocked(ctx context.Context, id uuid.UUID) (bool, error) {
	var (
		isLocked bool
		lockedAt *time.Time
		lockedBy *uuid.UUID
	)
	err := r.pool.QueryRow(ctx, `SELECT is_locked, locked_at, locked_by FROM users WHERE id = $1`, id).
		Scan(&isLocked, &lockedAt, &lockedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, shared.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	probe := User{ID: id, IsLocked: isLocked, LockedAt: lockedAt, LockedBy: lockedBy}
	if err := probe.CheckLockInvariant(); err != nil {
		return false, err
	}
	return isLocked, nil
}

// EarliestUser returns the first-created user, if any.
func (r *Repository) EarliestUser(ctx context.Context) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id LIMIT 1`)
	return scanUser(row)
}

type txRepository struct {
	tx       pgx.Tx
	recorder *audit.Recorder
}

// GetUserForUpdate locks the user row for the remainder of the transaction.
func (t *txRepository) GetUserForUpdate(ctx context.Context, id uuid.UUID) (User, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	return scanUser(row)
}

// CreateUser inserts a new account; a new account starts unlocked.
func (t *txRepository) CreateUser(ctx context.Context, user User) (User, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, is_active, is_locked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, true, false, NOW(), NOW())
		RETURNING `+userColumns,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName)
	stored, err := scanUser(row)
	if err != nil {
		return User{}, shared.MapPgError(err)
	}
	return stored, nil
}

// DeleteUser removes an account; bindings cascade with it.
func (t *txRepository) DeleteUser(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetLock writes all three lock fields in one statement. The is_locked guard
// makes re-locking a no-op that preserves the original provenance.
func (t *txRepository) SetLock(ctx context.Context, id uuid.UUID, by uuid.UUID, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE users SET is_locked = true, locked_at = $2, locked_by = $3, updated_at = NOW()
		WHERE id = $1 AND is_locked = false`, id, at, by)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ClearLock atomically clears all three lock fields.
func (t *txRepository) ClearLock(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE users SET is_locked = false, locked_at = NULL, locked_by = NULL, updated_at = NOW()
		WHERE id = $1 AND is_locked = true`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// TouchLastLogin stamps a successful authentication.
func (t *txRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE users SET last_login = $2, updated_at = NOW() WHERE id = $1`, id, at)
	return err
}

// RecordAudit appends an audit entry on this transaction.
func (t *txRepository) RecordAudit(ctx context.Context, entry audit.Entry) error {
	return t.recorder.Record(ctx, t.tx, entry)
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName,
		&user.IsActive, &user.IsLocked, &user.LastLogin, &user.LockedAt, &user.LockedBy,
		&user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if err := user.CheckLockInvariant(); err != nil {
		return User{}, err
	}
	return user, nil
}
