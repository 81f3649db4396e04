package rbac

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/verdant-crm/verdant/internal/shared"
)

// PermissionSource resolves a user's effective permission set.
type PermissionSource interface {
	UserPermissions(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// LockChecker answers whether an account is locked. A locked account is
// denied everything regardless of role bindings.
type LockChecker interface {
	IsLocked(ctx context.Context, userID uuid.UUID) (bool, error)
}

// PermissionCacher caches effective permission sets between evaluations.
type PermissionCacher interface {
	Get(ctx context.Context, userID uuid.UUID) ([]string, bool, error)
	Set(ctx context.Context, userID uuid.UUID, permissions []string) error
}

// Evaluator answers allow/deny for (user, permission) pairs. It is
// deterministic for fixed role, binding, and lock state.
type Evaluator struct {
	source PermissionSource
	locks  LockChecker
	cache  PermissionCacher
	logger *slog.Logger
}

// NewEvaluator builds an Evaluator. cache and logger may be nil.
func NewEvaluator(source PermissionSource, locks LockChecker, cache PermissionCacher, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{source: source, locks: locks, cache: cache, logger: logger}
}

// Authorize reports whether the user holds the required permission. The lock
// check dominates: a locked user is denied before permissions are consulted.
// A missing user or empty effective set denies; only hard storage errors are
// returned, everything else fails closed.
func (e *Evaluator) Authorize(ctx context.Context, userID uuid.UUID, required string) (bool, error) {
	locked, err := e.locks.IsLocked(ctx, userID)
	if err != nil {
		if e.failsClosed(userID, err) {
			return false, nil
		}
		return false, err
	}
	if locked {
		return false, nil
	}

	perms, err := e.effective(ctx, userID)
	if err != nil {
		if e.failsClosed(userID, err) {
			return false, nil
		}
		return false, err
	}
	for _, p := range perms {
		if p == required {
			return true, nil
		}
	}
	return false, nil
}

// AuthorizeAny allows when the user holds at least one of the permissions.
func (e *Evaluator) AuthorizeAny(ctx context.Context, userID uuid.UUID, required []string) (bool, error) {
	for _, perm := range required {
		allowed, err := e.Authorize(ctx, userID, perm)
		if err != nil {
			return false, err
		}
		if allowed {
			return true, nil
		}
	}
	return false, nil
}

// AuthorizeAll allows only when the user holds every permission.
func (e *Evaluator) AuthorizeAll(ctx context.Context, userID uuid.UUID, required []string) (bool, error) {
	if len(required) == 0 {
		return false, nil
	}
	for _, perm := range required {
		allowed, err := e.Authorize(ctx, userID, perm)
		if err != nil {
			return false, err
		}
		if !allowed {
			return false, nil
		}
	}
	return true, nil
}

// PermissionsFor exposes the resolved effective set for host applications
// that render capability-dependent views.
func (e *Evaluator) PermissionsFor(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return e.effective(ctx, userID)
}

func (e *Evaluator) effective(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if e.cache != nil {
		perms, ok, err := e.cache.Get(ctx, userID)
		if err != nil {
			e.logger.Warn("rbac: permission cache read failed", slog.Any("error", err))
		} else if ok {
			return perms, nil
		}
	}
	perms, err := e.source.UserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if err := e.cache.Set(ctx, userID, perms); err != nil {
			e.logger.Warn("rbac: permission cache write failed", slog.Any("error", err))
		}
	}
	return perms, nil
}

// failsClosed classifies evaluation failures that collapse into a deny for
// end-user facing checks. Hard storage errors propagate so callers can
// distinguish "denied" from "evaluation failed".
func (e *Evaluator) failsClosed(userID uuid.UUID, err error) bool {
	if errors.Is(err, shared.ErrInvariantViolation) {
		e.logger.Error("rbac: lock state invariant violation", slog.String("user_id", userID.String()), slog.Any("error", err))
		return true
	}
	return errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrLocked)
}
