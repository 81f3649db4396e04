package migrate

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/verdant-crm/verdant/internal/rbac"
)

// Steps returns the ordered migration history. Append only: a released step
// is never edited, a mistake is corrected by a later step.
func Steps() []Step {
	return []Step{
		{Name: "0001_users", Run: execDDL(ddlUsers)},
		{Name: "0002_rbac", Run: execDDL(ddlRBAC)},
		{Name: "0003_crm", Run: execDDL(ddlCRM)},
		{Name: "0004_inventory", Run: execDDL(ddlInventory)},
		{Name: "0005_expenses", Run: execDDL(ddlExpenses)},
		{Name: "0006_seed_roles", Run: seedRoles},
		{Name: "0007_notifications_read", Run: grantNotifications},
		{Name: "0008_shipping_module", Run: grantShipping},
		{Name: "0009_expense_approval", Run: grantExpenseApproval},
	}
}

func execDDL(ddl string) func(context.Context, pgx.Tx, Deps) error {
	return func(ctx context.Context, tx pgx.Tx, _ Deps) error {
		_, err := tx.Exec(ctx, ddl)
		return err
	}
}

const ddlUsers = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT true,
	is_locked BOOLEAN NOT NULL DEFAULT false,
	last_login TIMESTAMPTZ,
	locked_at TIMESTAMPTZ,
	locked_by UUID REFERENCES users (id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT users_lock_fields_agree CHECK (
		(is_locked AND locked_at IS NOT NULL AND locked_by IS NOT NULL)
		OR (NOT is_locked AND locked_at IS NULL AND locked_by IS NULL)
	)
);
`

const ddlRBAC = `
CREATE TABLE IF NOT EXISTS roles (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	permissions JSONB NOT NULL DEFAULT '[]'::jsonb,
	is_active BOOLEAN NOT NULL DEFAULT true,
	created_by UUID REFERENCES users (id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_roles (
	user_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	role_id UUID NOT NULL REFERENCES roles (id) ON DELETE CASCADE,
	assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	assigned_by UUID REFERENCES users (id),
	PRIMARY KEY (user_id, role_id)
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id UUID PRIMARY KEY,
	user_id UUID REFERENCES users (id) ON DELETE SET NULL,
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id UUID,
	old_values JSONB,
	new_values JSONB,
	ip_address TEXT,
	user_agent TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs (user_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs (resource_type, resource_id);
CREATE INDEX IF NOT EXISTS idx_user_roles_role_id ON user_roles (role_id);
`

const ddlCRM = `
CREATE TABLE IF NOT EXISTS customers (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT,
	phone TEXT,
	company TEXT,
	notes TEXT,
	created_by UUID REFERENCES users (id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS contacts (
	id UUID PRIMARY KEY,
	customer_id UUID NOT NULL REFERENCES customers (id) ON DELETE CASCADE,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	email TEXT,
	phone TEXT,
	title TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS deals (
	id UUID PRIMARY KEY,
	customer_id UUID NOT NULL REFERENCES customers (id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	stage TEXT NOT NULL DEFAULT 'lead',
	value_cents BIGINT NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT 'USD',
	expected_close DATE,
	created_by UUID REFERENCES users (id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS activities (
	id UUID PRIMARY KEY,
	deal_id UUID REFERENCES deals (id) ON DELETE CASCADE,
	customer_id UUID REFERENCES customers (id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	subject TEXT NOT NULL,
	notes TEXT,
	due_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	created_by UUID REFERENCES users (id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const ddlInventory = `
CREATE TABLE IF NOT EXISTS warehouses (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	location TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS items (
	id UUID PRIMARY KEY,
	sku TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	description TEXT,
	unit_price_cents BIGINT NOT NULL DEFAULT 0,
	quantity BIGINT NOT NULL DEFAULT 0,
	warehouse_id UUID REFERENCES warehouses (id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS stock_movements (
	id UUID PRIMARY KEY,
	item_id UUID NOT NULL REFERENCES items (id) ON DELETE CASCADE,
	warehouse_id UUID REFERENCES warehouses (id),
	movement_type TEXT NOT NULL,
	quantity BIGINT NOT NULL,
	note TEXT,
	created_by UUID REFERENCES users (id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const ddlExpenses = `
CREATE TABLE IF NOT EXISTS expenses (
	id UUID PRIMARY KEY,
	description TEXT NOT NULL,
	category TEXT NOT NULL,
	amount_cents BIGINT NOT NULL,
	currency TEXT NOT NULL DEFAULT 'USD',
	incurred_on DATE NOT NULL,
	status TEXT NOT NULL DEFAULT 'submitted',
	submitted_by UUID REFERENCES users (id),
	approved_by UUID REFERENCES users (id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// seedRoles declares the base role set. UpsertRole is a full replace by name,
// so rerunning after a crash converges on the same state.
func seedRoles(ctx context.Context, _ pgx.Tx, deps Deps) error {
	roles := []rbac.RoleInput{
		{
			Name:        "Super Admin",
			Description: "Full access to every module",
			Permissions: rbac.AllPermissionKeys(),
		},
		{
			Name:        "Operations Manager",
			Description: "Runs day-to-day customer and inventory operations",
			Permissions: []string{
				"customers:read", "customers:write",
				"deals:read", "deals:write",
				"activities:read", "activities:write",
				"inventory:read", "inventory:write", "inventory:manage_warehouses",
				"items:read", "items:write",
				"warehouses:read", "warehouses:write",
				"stock_movements:read", "stock_movements:write",
				"team:read",
			},
		},
		{
			Name:        "Sales Representative",
			Description: "Works customers, deals, and activities",
			Permissions: []string{
				"customers:read", "customers:write",
				"deals:read", "deals:write",
				"activities:read", "activities:write",
				"items:read",
			},
		},
		{
			Name:        "Inventory Clerk",
			Description: "Posts stock movements and maintains items",
			Permissions: []string{
				"inventory:read", "inventory:write",
				"items:read", "items:write",
				"warehouses:read",
				"stock_movements:read", "stock_movements:write",
			},
		},
		{
			Name:        "Accountant",
			Description: "Tracks and reviews expenses",
			Permissions: []string{
				"expenses:read", "expenses:write",
				"customers:read", "deals:read",
			},
		},
		{
			Name:        "API Integration",
			Description: "Machine account for external integrations",
			Permissions: []string{
				"api:access",
				"customers:read", "deals:read", "items:read", "stock_movements:read",
			},
		},
		{
			Name:        "Viewer",
			Description: "Read-only access across business modules",
			Permissions: []string{
				"customers:read", "deals:read", "activities:read",
				"inventory:read", "items:read", "warehouses:read",
				"stock_movements:read", "expenses:read",
			},
		},
	}
	for _, input := range roles {
		if _, err := deps.Roles.UpsertRole(ctx, input); err != nil {
			return err
		}
	}
	return nil
}

// grantNotifications retrofits notifications:read onto roles that predate the
// notifications module. Additive merge; rerunning changes nothing.
func grantNotifications(ctx context.Context, _ pgx.Tx, deps Deps) error {
	for _, name := range []string{"Operations Manager", "Sales Representative", "Inventory Clerk", "Accountant", "Viewer"} {
		if _, err := deps.Roles.MergePermissions(ctx, name, []string{"notifications:read"}); err != nil {
			return err
		}
	}
	return nil
}

// grantShipping adds the shipping module capabilities introduced after the
// base roles were defined.
func grantShipping(ctx context.Context, _ pgx.Tx, deps Deps) error {
	grants := []struct {
		role  string
		perms []string
	}{
		{"Operations Manager", []string{"shipping:read", "shipping:write", "shipping:delete"}},
		{"Sales Representative", []string{"shipping:read"}},
		{"Inventory Clerk", []string{"shipping:read", "shipping:write"}},
		{"Viewer", []string{"shipping:read"}},
	}
	for _, g := range grants {
		if _, err := deps.Roles.MergePermissions(ctx, g.role, g.perms); err != nil {
			return err
		}
	}
	return nil
}

// grantExpenseApproval introduces the expense approval capability.
func grantExpenseApproval(ctx context.Context, _ pgx.Tx, deps Deps) error {
	_, err := deps.Roles.MergePermissions(ctx, "Accountant", []string{"expenses:approve"})
	return err
}
