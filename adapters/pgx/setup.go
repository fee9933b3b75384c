package pgx

import (
	"context"
	"fmt"
	"time"

	"github.com/lborres/portal/core"
)

// Ping checks that the profile table is reachable, not just the server.
func (a *Adapter) Ping(ctx context.Context) error {
	var n int
	if err := a.db.QueryRow(ctx, `SELECT count(*) FROM (SELECT 1 FROM public.user_profiles LIMIT 1) t`).Scan(&n); err != nil {
		return fmt.Errorf("failed to query user_profiles: %w", err)
	}
	return nil
}

func (a *Adapter) HasFirmSettings(ctx context.Context) (bool, error) {
	var exists bool
	if err := a.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM public.firm_settings)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check firm settings: %w", err)
	}
	return exists, nil
}

func (a *Adapter) CreateFirmSettings(ctx context.Context, settings *core.FirmSettings) error {
	query := `INSERT INTO public.firm_settings (firm_name, primary_color, secondary_color)
	          VALUES ($1, $2, $3)
	          RETURNING id::text, created_at`

	err := a.db.QueryRow(ctx, query,
		settings.FirmName, settings.PrimaryColor, settings.SecondaryColor,
	).Scan(&settings.ID, &settings.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert firm settings: %w", err)
	}
	return nil
}

func (a *Adapter) CountPermissions(ctx context.Context) (int, error) {
	var count int
	if err := a.db.QueryRow(ctx, `SELECT count(*) FROM public.permissions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count permissions: %w", err)
	}
	return count, nil
}

// Record inserts an audit entry.
func (a *Adapter) Record(ctx context.Context, entry core.AuditEntry) error {
	query := `INSERT INTO public.audit_logs (user_id, action, details, created_at)
	          VALUES ($1, $2, $3, $4)`

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := a.db.Exec(ctx, query, entry.UserID, entry.Action, entry.Details, createdAt); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}
