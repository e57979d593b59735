package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/clearskydns/zonesync/internal/config"
	"github.com/clearskydns/zonesync/internal/delegation"
	"github.com/clearskydns/zonesync/internal/reconciler"
	"github.com/clearskydns/zonesync/pkg/zone"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the changes a reconciliation would make, without applying them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, true)
		},
	}
}

func newApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Reconcile provider state with the declared zones once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, false)
		},
	}
}

// runOnce performs a single reconciliation. Plan forces dry-run regardless
// of configuration; apply follows the configured dry_run setting.
func runOnce(cmd *cobra.Command, forceDryRun bool) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	dryRun := forceDryRun || cfg.DryRun

	ctx := cmd.Context()
	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	reg, err := zone.Load(ctx, store, zone.WithLogger(logger))
	if err != nil {
		return err
	}

	providers, err := buildProviders(ctx, cfg, logger)
	if err != nil {
		return err
	}

	rec, err := buildReconciler(ctx, cfg, logger, reg, providers, dryRun)
	if err != nil {
		return err
	}

	result, err := rec.Reconcile(ctx)
	if result != nil {
		fmt.Fprint(cmd.OutOrStdout(), result.Summary())
	}
	if err != nil {
		return err
	}

	if cfg.DelegationCheck && !dryRun {
		checkDelegation(ctx, cfg, logger, result)
	}
	if result.HasErrors() {
		return fmt.Errorf("%d action(s) failed", result.FailedCount())
	}
	return nil
}

// checkDelegation probes public DNS for each reconciled zone and warns when
// the delegation does not match the provider's nameservers. Advisory only.
func checkDelegation(ctx context.Context, cfg *config.Config, logger *slog.Logger, result *reconciler.Result) {
	prober := delegation.NewProber(delegation.WithResolver(cfg.Resolver))
	for providerName, zones := range result.ZoneNameservers {
		for zoneName, expected := range zones {
			delegated, err := prober.Lookup(ctx, zoneName)
			if err != nil {
				logger.Warn("delegation probe failed",
					slog.String("zone", zoneName),
					slog.String("error", err.Error()))
				continue
			}
			if !delegation.Matches(delegated, expected) {
				logger.Warn("public delegation does not match provider nameservers",
					slog.String("zone", zoneName),
					slog.String("provider", providerName),
					slog.Any("delegated", delegated),
					slog.Any("expected", expected))
			}
		}
	}
}
