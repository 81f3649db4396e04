package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdant-crm/verdant/internal/platform/db"
	"github.com/verdant-crm/verdant/internal/rbac"
)

// Deps are the collaborators migration steps may use. Schema steps run DDL on
// the step transaction; role steps go through the registry primitives so
// permission changes are set merges, never raw concatenation.
type Deps struct {
	Pool   *pgxpool.Pool
	Roles  *rbac.Service
	Logger *slog.Logger
}

// Step is one named, idempotent transformation. Names are recorded in
// schema_migrations; an applied step is never run again.
type Step struct {
	Name string
	Run  func(ctx context.Context, tx pgx.Tx, deps Deps) error
}

// Runner applies pending steps in declaration order.
type Runner struct {
	deps  Deps
	steps []Step
}

// NewRunner constructs a runner over the given steps.
func NewRunner(deps Deps, steps []Step) *Runner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Runner{deps: deps, steps: steps}
}

// Up applies every pending step. Each step runs in its own transaction
// together with its bookkeeping row. Steps that call the registry commit
// through the registry's own transactions; those primitives are idempotent,
// so a crash between the registry commit and the bookkeeping commit is
// repaired by the rerun.
func (r *Runner) Up(ctx context.Context) error {
	if err := r.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return err
	}
	for _, step := range r.steps {
		if applied[step.Name] {
			continue
		}
		err := db.WithTx(ctx, r.deps.Pool, func(tx pgx.Tx) error {
			if err := step.Run(ctx, tx, r.deps); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name, applied_at) VALUES ($1, NOW())`, step.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("migrate: apply %s: %w", step.Name, err)
		}
		r.deps.Logger.Info("migration applied", slog.String("step", step.Name))
	}
	return nil
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.deps.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("migrate: ensure bookkeeping table: %w", err)
	}
	return nil
}

func (r *Runner) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := r.deps.Pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("migrate: list applied: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
