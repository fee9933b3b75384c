package pgx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lborres/portal/core"
)

func (a *Adapter) PermissionsForRole(ctx context.Context, role core.Role) ([]string, error) {
	query := `SELECT p.name
	          FROM public.role_permissions rp
	          JOIN public.permissions p ON p.id = rp.permission_id
	          WHERE rp.role = $1
	          ORDER BY p.name`

	rows, err := a.db.Query(ctx, query, role.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query role permissions: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan role permissions: %w", err)
	}
	return names, nil
}

func (a *Adapter) AllPermissions(ctx context.Context) ([]string, error) {
	rows, err := a.db.Query(ctx, `SELECT name FROM public.permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan permissions: %w", err)
	}
	return names, nil
}
