package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/clearskydns/zonesync/internal/config"
	"github.com/clearskydns/zonesync/internal/reconciler"
	"github.com/clearskydns/zonesync/internal/registrar"
	"github.com/clearskydns/zonesync/pkg/docstore"
	"github.com/clearskydns/zonesync/pkg/provider"
	"github.com/clearskydns/zonesync/pkg/zone"
	"github.com/clearskydns/zonesync/providers/cloudflare"
	"github.com/clearskydns/zonesync/providers/route53"
)

// loadRuntime resolves configuration and the logger from flags, the config
// file, and environment variables, and installs the logger as default.
func loadRuntime(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("ZONESYNC_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	// Flags win over file and environment.
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// buildStore creates the zone document store. The returned cleanup closes
// any open connections and is safe to call on a nil-op store.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (docstore.Store, func(), error) {
	switch cfg.Source.Type {
	case "sftp":
		store, err := docstore.NewSFTPStore(&docstore.SFTPConfig{
			Host:           cfg.Source.Host,
			Port:           cfg.Source.Port,
			User:           cfg.Source.User,
			Dir:            cfg.Source.RemoteDir,
			KeyFile:        cfg.Source.KeyFile,
			Password:       cfg.Source.Password,
			KnownHostsFile: cfg.Source.KnownHostsFile,
			Timeout:        cfg.Source.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := store.Connect(ctx); err != nil {
			return nil, nil, err
		}
		logger.Info("connected to sftp document store",
			slog.String("host", cfg.Source.Host),
			slog.String("dir", cfg.Source.RemoteDir))
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := docstore.NewLocal(cfg.Source.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

// buildProviders constructs provider clients for every configured backend.
func buildProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger) (map[zone.ProviderKind]provider.Provider, error) {
	providers := make(map[zone.ProviderKind]provider.Provider)

	if cfg.Route53 != nil {
		p, err := route53.NewFromConfig(ctx, route53.Config{
			Region:          cfg.Route53.Region,
			AccessKeyID:     cfg.Route53.AccessKeyID,
			SecretAccessKey: cfg.Route53.SecretAccessKey,
		}, route53.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("building route53 provider: %w", err)
		}
		providers[zone.ProviderRoute53] = p
	}

	if cfg.Cloudflare != nil {
		client := cloudflare.NewClient(cfg.Cloudflare.APIToken,
			cloudflare.WithClientLogger(logger),
			cloudflare.WithAPIEndpoint(cfg.Cloudflare.APIURL))
		providers[zone.ProviderCloudflare] = cloudflare.New(client, cfg.Cloudflare.AccountID,
			cloudflare.WithLogger(logger))
	}

	return providers, nil
}

// buildReconciler wires the registry, providers, and optional registrar sync
// into a configured Reconciler.
func buildReconciler(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg *zone.Registry, providers map[zone.ProviderKind]provider.Provider, dryRun bool) (*reconciler.Reconciler, error) {
	opts := []reconciler.Option{
		reconciler.WithLogger(logger),
		reconciler.WithDryRun(dryRun),
		reconciler.WithConcurrency(cfg.Concurrency),
	}

	if cfg.RegistrarSync {
		api, err := route53.NewRegistrarFromConfig(ctx, route53.Config{
			AccessKeyID:     cfg.Route53.AccessKeyID,
			SecretAccessKey: cfg.Route53.SecretAccessKey,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("building registrar client: %w", err)
		}
		opts = append(opts, reconciler.WithRegistrar(registrar.New(api,
			registrar.WithLogger(logger),
			registrar.WithDryRun(dryRun))))
	}

	return reconciler.New(reg, providers, opts...), nil
}
