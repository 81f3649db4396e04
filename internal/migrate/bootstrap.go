package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/verdant-crm/verdant/internal/accounts"
	"github.com/verdant-crm/verdant/internal/rbac"
	"github.com/verdant-crm/verdant/internal/shared"
)

// Bootstrap binds the earliest-created user to the named full-privilege role
// when at least one user exists and no role assignment does. Runs at every
// startup; once any binding exists it does nothing, so a deployment can never
// end up in an unrecoverable zero-admin state.
func Bootstrap(ctx context.Context, users *accounts.Service, roles *rbac.Service, roleName string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	all, err := users.List(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: list users: %w", err)
	}
	if len(all) == 0 {
		return nil
	}

	for _, user := range all {
		bindings, err := roles.BindingsFor(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("bootstrap: list bindings: %w", err)
		}
		if len(bindings) > 0 {
			return nil
		}
	}

	role, err := roles.GetRole(ctx, roleName)
	if err != nil {
		if shared.IsNotFound(err) {
			return fmt.Errorf("bootstrap: role %q not defined: %w", roleName, err)
		}
		return err
	}

	earliest := all[0]
	if err := roles.Assign(ctx, earliest.ID, role.ID); err != nil {
		return fmt.Errorf("bootstrap: assign %q to %s: %w", roleName, earliest.Email, err)
	}
	logger.Info("bootstrap admin assigned",
		slog.String("user", earliest.Email),
		slog.String("role", roleName))
	return nil
}
