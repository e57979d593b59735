package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clearskydns/zonesync/internal/config"
	"github.com/clearskydns/zonesync/internal/health"
	"github.com/clearskydns/zonesync/internal/metrics"
	"github.com/clearskydns/zonesync/pkg/docstore"
	"github.com/clearskydns/zonesync/pkg/provider"
	"github.com/clearskydns/zonesync/pkg/zone"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciliation loop with health and metrics endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(parent context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.SetBuildInfo(Version, runtime.Version())
	logger.Info("zonesync starting",
		slog.String("version", Version),
		slog.String("build_date", BuildDate),
		slog.String("go_version", runtime.Version()),
		slog.Bool("dry_run", cfg.DryRun),
		slog.Duration("interval", cfg.ReconcileInterval))

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	providers, err := buildProviders(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := health.New(cfg.ServerPort, health.WithLogger(logger))
	for _, p := range providers {
		srv.RegisterChecker(p.Name(), p.Ping)
	}
	srv.RegisterChecker("source", func(ctx context.Context) error {
		_, err := store.List(ctx)
		return err
	})
	if err := srv.Start(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	// First reconciliation happens immediately; failures are logged and
	// retried on the next tick rather than killing the daemon.
	runLoop(ctx, cfg, logger, store, providers, srv)

	logger.Info("zonesync stopping")
	return nil
}

func runLoop(ctx context.Context, cfg *config.Config, logger *slog.Logger, store docstore.Store, providers map[zone.ProviderKind]provider.Provider, srv *health.Server) {
	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		if err := reconcileOnce(ctx, cfg, logger, store, providers, srv); err != nil && ctx.Err() == nil {
			logger.Error("reconciliation run failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// reconcileOnce reloads zone documents and runs a full reconciliation.
// Documents are re-read every cycle so edits take effect without restarts.
func reconcileOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger, store docstore.Store, providers map[zone.ProviderKind]provider.Provider, srv *health.Server) error {
	reg, err := zone.Load(ctx, store, zone.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("loading zone documents: %w", err)
	}

	rec, err := buildReconciler(ctx, cfg, logger, reg, providers, cfg.DryRun)
	if err != nil {
		return err
	}

	result, err := rec.Reconcile(ctx)
	if err != nil {
		return err
	}

	srv.SetLastRun(health.RunStatus{
		Time:     result.EndTime,
		Duration: result.Duration().String(),
		DryRun:   result.DryRun,
		Zones:    result.ZonesReconciled,
		Created:  result.CreatedCount(),
		Updated:  result.UpdatedCount(),
		Deleted:  result.DeletedCount(),
		Failed:   result.FailedCount(),
	})

	if cfg.DelegationCheck && !cfg.DryRun {
		checkDelegation(ctx, cfg, logger, result)
	}
	return nil
}
