package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lborres/portal/core"
)

// SetupValidator checks that the backing store is reachable and holds the
// data the portal needs, seeding firm defaults when missing.
type SetupValidator struct {
	store  core.SetupStore
	logger *slog.Logger
}

func NewSetupValidator(store core.SetupStore, logger *slog.Logger) *SetupValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SetupValidator{store: store, logger: logger.With("component", "setup")}
}

func (v *SetupValidator) CheckConnection(ctx context.Context) error {
	if v.store == nil {
		return core.ErrSetupStoreRequired
	}
	if err := v.store.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}
	return nil
}

// EnsureDefaultData inserts the default firm settings when none exist and
// counts the permission catalogue. It does not seed permissions; those come
// from migrations.
func (v *SetupValidator) EnsureDefaultData(ctx context.Context) (seeded bool, permissions int, err error) {
	if v.store == nil {
		return false, 0, core.ErrSetupStoreRequired
	}

	exists, err := v.store.HasFirmSettings(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("failed to check firm settings: %w", err)
	}
	if !exists {
		settings := core.DefaultFirmSettings()
		if err := v.store.CreateFirmSettings(ctx, &settings); err != nil {
			return false, 0, fmt.Errorf("failed to create firm settings: %w", err)
		}
		v.logger.Info("created default firm settings", "firm_name", settings.FirmName)
	}

	permissions, err = v.store.CountPermissions(ctx)
	if err != nil {
		return true, 0, fmt.Errorf("failed to count permissions: %w", err)
	}
	if permissions == 0 {
		v.logger.Warn("permission catalogue is empty, run migrations to seed it")
	}
	return true, permissions, nil
}

// Validate runs CheckConnection then EnsureDefaultData. The report is
// returned alongside any error so callers can show partial progress.
func (v *SetupValidator) Validate(ctx context.Context) (*core.SetupReport, error) {
	report := &core.SetupReport{}

	if err := v.CheckConnection(ctx); err != nil {
		v.logger.Error("setup validation failed", "step", "connection", "error", err)
		return report, err
	}
	report.Connected = true

	seeded, count, err := v.EnsureDefaultData(ctx)
	report.FirmSettingsSeeded = seeded
	report.PermissionCount = count
	if err != nil {
		v.logger.Error("setup validation failed", "step", "default_data", "error", err)
		return report, err
	}

	v.logger.Info("setup validated", "permissions", count)
	return report, nil
}
