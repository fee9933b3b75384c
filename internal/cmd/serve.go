package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lborres/portal"
	fiberadapter "github.com/lborres/portal/adapters/fiber"
)

const autoRefreshInterval = 15 * time.Second

func newServeCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API on PORTAL_PORT.

Besides the auth routes under PORTAL_BASE_PATH the server exposes
/metrics for Prometheus and /livez, /readyz health probes. SIGINT or
SIGTERM drains connections for up to PORTAL_SHUTDOWN_TIMEOUT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), rt)
		},
	}
}

// newApp builds the fiber app with everything except the portal routes.
func newApp(p func() *portal.Portal) *fiber.App {
	app := fiber.New(fiber.Config{AppName: "portald"})
	app.Use(recoverer.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time}|${requestid}|${status}|${latency}|${method}|${path}|${error}\n",
		TimeFormat: "2006/01/02 15:04:05",
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get(healthcheck.LivenessEndpoint, healthcheck.New())
	app.Get(healthcheck.ReadinessEndpoint, healthcheck.New(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			inst := p()
			if inst == nil {
				return false
			}
			return inst.Setup.CheckConnection(c.Context()) == nil
		},
	}))
	return app
}

// startPortal seeds firm settings and checks the permission catalogue before
// the session manager resolves the first profile.
func startPortal(ctx context.Context, p *portal.Portal, log *slog.Logger) {
	if report, err := p.ValidateSetup(ctx); err != nil || !report.OK() {
		log.Warn("setup validation failed, permissions may be empty", "error", err)
	}
	p.Start(ctx)
}

func runServe(ctx context.Context, rt *runtime) error {
	cfg, log := rt.cfg, rt.logger

	b, err := buildBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("failed to close backend", "error", err)
		}
	}()

	var p *portal.Portal
	app := newApp(func() *portal.Portal { return p })

	p, err = portal.New(b.portalConfig(cfg, fiberadapter.New(app), log))
	if err != nil {
		return fmt.Errorf("failed to create portal: %w", err)
	}
	defer p.Close()

	startPortal(ctx, p, log)

	if b.gotrue != nil {
		go b.gotrue.StartAutoRefresh(ctx, autoRefreshInterval)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	log.Info("portald listening",
		"addr", addr,
		"base_path", cfg.BasePath,
		"demo", cfg.DemoMode(),
	)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
