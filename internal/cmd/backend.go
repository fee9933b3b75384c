package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lborres/portal"
	amqpadapter "github.com/lborres/portal/adapters/amqp"
	"github.com/lborres/portal/adapters/gotrue"
	"github.com/lborres/portal/adapters/memory"
	pgxadapter "github.com/lborres/portal/adapters/pgx"
	redisadapter "github.com/lborres/portal/adapters/redis"
	"github.com/lborres/portal/core"
	"github.com/lborres/portal/internal/config"
	"github.com/lborres/portal/pkg/cache"
	"github.com/lborres/portal/services"
)

// backend holds the adapters selected by the configuration.
type backend struct {
	auth        core.AuthClient
	gotrue      *gotrue.Client // nil in demo mode
	profiles    core.ProfileStore
	permissions core.PermissionStore
	setup       core.SetupStore
	audit       core.AuditSink
	cache       core.PermissionCache

	closers []func() error
}

func buildBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *backend, err error) {
	b := &backend{}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	if cfg.DemoMode() {
		logger.Warn("PORTAL_AUTH_URL not set, running in demo mode with an in-memory auth client")
		b.auth = memory.NewAuthClient(memory.WithLogger(logger))
	} else {
		gt, err := gotrue.New(gotrue.Config{
			URL:           cfg.AuthURL,
			APIKey:        cfg.AuthAPIKey,
			JWTSecret:     cfg.AuthJWTSecret,
			Timeout:       cfg.AuthTimeout,
			RefreshMargin: cfg.RefreshMargin,
			Logger:        logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create auth client: %w", err)
		}
		b.auth = gt
		b.gotrue = gt
	}

	var sinks services.AuditSinks
	if cfg.HasDatabase() {
		pool, err := pgxadapter.Connect(ctx, cfg.DatabaseDSN(), logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })

		store := pgxadapter.New(pool)
		b.profiles = store
		b.permissions = store
		b.setup = store
		sinks = append(sinks, store)
	} else {
		logger.Warn("no database configured, profiles and permissions are kept in memory")
		perms := memory.NewPermissionStore()
		b.profiles = memory.NewProfileStore()
		b.permissions = perms
		b.setup = memory.NewSetupStore(perms)
		sinks = append(sinks, &memory.AuditLog{})
	}

	if cfg.AMQPURL != "" {
		pub := amqpadapter.New(amqpadapter.Dial(cfg.AMQPURL), logger)
		b.closers = append(b.closers, pub.Close)
		sinks = append(sinks, pub)
	}
	b.audit = sinks

	if cfg.RedisURL != "" {
		rdb, err := redisadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, rdb.Close)
		b.cache = redisadapter.New(rdb, redisadapter.WithTTL(cfg.CacheTTL))
	} else {
		b.cache = cache.NewInMemoryCache(cfg.CacheConfig())
	}

	return b, nil
}

// portalConfig assembles the portal.Config for b. http may be nil.
func (b *backend) portalConfig(cfg *config.Config, http core.HTTPAdapter, logger *slog.Logger) portal.Config {
	sessionConfig := cfg.SessionConfig()
	permissionConfig := cfg.PermissionConfig()
	return portal.Config{
		AuthClient:       b.auth,
		Profiles:         b.profiles,
		Permissions:      b.permissions,
		HTTP:             http,
		CacheAdapter:     b.cache,
		Audit:            b.audit,
		Setup:            b.setup,
		SessionConfig:    &sessionConfig,
		PermissionConfig: &permissionConfig,
		Logger:           logger,
		BasePath:         cfg.BasePath,
	}
}

// Close releases connections in reverse order of acquisition.
func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
