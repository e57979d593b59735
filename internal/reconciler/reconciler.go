package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clearskydns/zonesync/internal/compile"
	"github.com/clearskydns/zonesync/internal/metrics"
	"github.com/clearskydns/zonesync/internal/registrar"
	"github.com/clearskydns/zonesync/pkg/provider"
	"github.com/clearskydns/zonesync/pkg/zone"
)

// DefaultConcurrency is the number of zones reconciled in parallel per
// provider when no limit is configured.
const DefaultConcurrency = 4

// Reconciler drives full reconciliation runs: compile the registry into
// desired provider state, diff against live state zone by zone, and apply
// the minimal change set. It holds no state between runs.
type Reconciler struct {
	registry    *zone.Registry
	providers   map[zone.ProviderKind]provider.Provider
	registrar   *registrar.Synchronizer
	logger      *slog.Logger
	dryRun      bool
	concurrency int
	retry       provider.RetryPolicy
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger for reconciliation progress.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDryRun plans changes without applying them.
func WithDryRun(dryRun bool) Option {
	return func(r *Reconciler) {
		r.dryRun = dryRun
	}
}

// WithConcurrency limits how many zones are reconciled in parallel per
// provider.
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRegistrar enables registrar delegation sync for zones served by the
// nameserver-hosting provider.
func WithRegistrar(sync *registrar.Synchronizer) Option {
	return func(r *Reconciler) {
		r.registrar = sync
	}
}

// WithRetryPolicy overrides the per-operation retry policy.
func WithRetryPolicy(policy provider.RetryPolicy) Option {
	return func(r *Reconciler) {
		r.retry = policy
	}
}

// New creates a Reconciler over the given registry and providers. The
// providers map is keyed by kind; zones declaring a provider with no
// registered implementation fail at reconcile time.
func New(registry *zone.Registry, providers map[zone.ProviderKind]provider.Provider, opts ...Option) *Reconciler {
	r := &Reconciler{
		registry:    registry,
		providers:   providers,
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
		retry:       provider.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile performs one full run. Compilation errors abort the run before
// any provider call; apply-phase errors are isolated per record and reported
// through the returned Result. The returned error is non-nil only for
// whole-run failures (compile errors, missing providers, context
// cancellation).
func (r *Reconciler) Reconcile(ctx context.Context) (*Result, error) {
	result := NewResult(r.dryRun)
	start := time.Now()

	out, err := compile.Compile(r.registry)
	if err != nil {
		metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("compiling zone documents: %w", err)
	}

	metrics.ZonesManaged.WithLabelValues(string(zone.ProviderRoute53)).Set(float64(len(out.Route53)))
	metrics.ZonesManaged.WithLabelValues(string(zone.ProviderCloudflare)).Set(float64(len(out.Cloudflare)))

	// Tunnel ingress configuration goes first: a tunnel CNAME that resolves
	// before its ingress rule exists serves errors.
	failedTunnels, err := r.applyTunnelConfigs(ctx, out, result)
	if err != nil {
		result.Complete()
		metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
		return result, err
	}

	// Hostnames routed through a tunnel whose configuration failed keep the
	// same dependency edge under failure: their CNAMEs are withheld for this
	// run rather than published without routing behind them.
	skipHosts := make(map[string]struct{})
	for _, h := range out.Tunnels.Hosts() {
		if _, failed := failedTunnels[h.TunnelID]; failed {
			skipHosts[h.Hostname] = struct{}{}
		}
	}

	if err := r.reconcileProvider(ctx, zone.ProviderCloudflare, out.Cloudflare, skipHosts, result); err != nil {
		result.Complete()
		metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
		return result, err
	}
	if err := r.reconcileProvider(ctx, zone.ProviderRoute53, out.Route53, nil, result); err != nil {
		result.Complete()
		metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
		return result, err
	}

	if err := r.syncRegistrar(ctx, out, result); err != nil {
		result.Complete()
		metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
		return result, err
	}

	result.SetTunnelRoutes(out.Tunnels.Hosts())
	result.Complete()

	metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	if result.HasErrors() {
		metrics.ReconciliationsTotal.WithLabelValues("partial").Inc()
	} else {
		metrics.ReconciliationsTotal.WithLabelValues("success").Inc()
	}

	r.logger.Info("reconciliation complete",
		slog.Int("zones", result.ZonesReconciled),
		slog.Int("created", result.CreatedCount()),
		slog.Int("updated", result.UpdatedCount()),
		slog.Int("deleted", result.DeletedCount()),
		slog.Int("failed", result.FailedCount()),
		slog.Bool("dry_run", r.dryRun),
		slog.Duration("duration", result.Duration()))

	return result, nil
}

// applyTunnelConfigs pushes ingress routing for every tunnel and returns
// the IDs of tunnels whose configuration could not be applied.
func (r *Reconciler) applyTunnelConfigs(ctx context.Context, out *compile.Output, result *Result) (map[string]struct{}, error) {
	ids := out.Tunnels.TunnelIDs()
	if len(ids) == 0 {
		return nil, nil
	}

	p, ok := r.providers[zone.ProviderCloudflare]
	if !ok {
		return nil, fmt.Errorf("tunnel routes declared but no %s provider is configured", zone.ProviderCloudflare)
	}
	tc, ok := p.(provider.TunnelConfigurer)
	if !ok {
		return nil, fmt.Errorf("provider %s does not support tunnel ingress configuration", p.Name())
	}

	failed := make(map[string]struct{})
	for _, tunnelID := range ids {
		rules := out.Tunnels.Rules(tunnelID)
		action := Action{
			Type:     ActionTunnelConfig,
			Status:   StatusSuccess,
			Provider: p.Name(),
			Key:      tunnelID,
			DryRun:   r.dryRun,
		}
		if r.dryRun {
			r.logger.Info("would apply tunnel ingress configuration",
				slog.String("tunnel_id", tunnelID),
				slog.Int("rules", len(rules)))
			result.AddAction(action)
			continue
		}
		err := provider.Retry(ctx, r.retry, func(ctx context.Context) error {
			return tc.ApplyTunnelConfig(ctx, tunnelID, rules)
		})
		if err != nil {
			failed[tunnelID] = struct{}{}
			action.Status = StatusFailed
			action.Error = err.Error()
			r.logger.Error("tunnel ingress configuration failed",
				slog.String("tunnel_id", tunnelID),
				slog.String("error", err.Error()))
		} else {
			r.logger.Info("applied tunnel ingress configuration",
				slog.String("tunnel_id", tunnelID),
				slog.Int("rules", len(rules)))
		}
		result.AddAction(action)
	}
	return failed, nil
}

func (r *Reconciler) reconcileProvider(ctx context.Context, kind zone.ProviderKind, desired map[string][]provider.Record, skipHosts map[string]struct{}, result *Result) error {
	if len(desired) == 0 {
		return nil
	}
	p, ok := r.providers[kind]
	if !ok {
		return fmt.Errorf("zones declare provider %s but it is not configured", kind)
	}

	zones := make([]string, 0, len(desired))
	for name := range desired {
		zones = append(zones, name)
	}
	sort.Strings(zones)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, zoneName := range zones {
		g.Go(func() error {
			return r.reconcileZone(gctx, p, zoneName, desired[zoneName], skipHosts, result)
		})
	}
	return g.Wait()
}

// reconcileZone diffs and applies one provider+zone pair. Record-level
// failures are recorded on the result and do not stop the remaining records
// in the zone; only context cancellation propagates as an error.
func (r *Reconciler) reconcileZone(ctx context.Context, p provider.Provider, zoneName string, desired []provider.Record, skipHosts map[string]struct{}, result *Result) error {
	logger := r.logger.With(
		slog.String("provider", p.Name()),
		slog.String("zone", zoneName))

	info, live, err := r.loadZone(ctx, p, zoneName, result)
	if err != nil {
		result.AddAction(Action{
			Type:     ActionZoneFetch,
			Status:   StatusFailed,
			Provider: p.Name(),
			Zone:     zoneName,
			Key:      zoneName,
			Error:    err.Error(),
			DryRun:   r.dryRun,
		})
		logger.Error("zone unavailable", slog.String("error", err.Error()))
		return ctx.Err()
	}
	if len(info.Nameservers) > 0 {
		result.AddZoneNameservers(p.Name(), zoneName, info.Nameservers)
	}

	diff := Compare(live, desired)
	result.AddZone()

	if !diff.HasChanges() {
		logger.Debug("zone in sync",
			slog.Int("records", len(diff.Unchanged)))
		return nil
	}

	logger.Info("zone drift detected",
		slog.Int("create", len(diff.ToCreate)),
		slog.Int("update", len(diff.ToUpdate)),
		slog.Int("delete", len(diff.ToDelete)),
		slog.Int("unchanged", len(diff.Unchanged)))

	for _, rec := range diff.ToCreate {
		if r.skipTunnelHost(skipHosts, ActionCreate, p, zoneName, rec, result, logger) {
			continue
		}
		r.applyRecord(ctx, p, zoneName, ActionCreate, rec, result, logger)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	for _, pair := range diff.ToUpdate {
		// Carry the live record's provider-side ID so the update targets
		// the right object.
		rec := pair.Desired
		rec.ProviderID = pair.Live.ProviderID
		if r.skipTunnelHost(skipHosts, ActionUpdate, p, zoneName, rec, result, logger) {
			continue
		}
		r.applyRecord(ctx, p, zoneName, ActionUpdate, rec, result, logger)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	for _, rec := range diff.ToDelete {
		r.applyRecord(ctx, p, zoneName, ActionDelete, rec, result, logger)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// loadZone fetches zone info and live records. Under dry-run a missing zone
// is planned as a create and treated as empty rather than created.
func (r *Reconciler) loadZone(ctx context.Context, p provider.Provider, zoneName string, result *Result) (provider.ZoneInfo, []provider.Record, error) {
	if r.dryRun {
		info, err := p.GetZone(ctx, zoneName)
		if provider.IsZoneNotFound(err) {
			result.AddAction(Action{
				Type:     ActionCreateZone,
				Status:   StatusSuccess,
				Provider: p.Name(),
				Zone:     zoneName,
				Key:      zoneName,
				DryRun:   true,
			})
			return provider.ZoneInfo{}, nil, nil
		}
		if err != nil {
			return provider.ZoneInfo{}, nil, err
		}
		live, err := p.ListRecords(ctx, zoneName)
		return info, live, err
	}

	existing, err := p.GetZone(ctx, zoneName)
	if err == nil {
		live, err := p.ListRecords(ctx, zoneName)
		return existing, live, err
	}
	if !provider.IsZoneNotFound(err) {
		return provider.ZoneInfo{}, nil, err
	}

	info, err := p.EnsureZone(ctx, zoneName)
	if err != nil {
		return provider.ZoneInfo{}, nil, err
	}
	result.AddAction(Action{
		Type:     ActionCreateZone,
		Status:   StatusSuccess,
		Provider: p.Name(),
		Zone:     zoneName,
		Key:      zoneName,
	})
	// A freshly created zone has no managed records.
	return info, nil, nil
}

// skipTunnelHost withholds a tunnel-backed CNAME whose ingress configuration
// failed this run: the hostname must not resolve ahead of the routing behind
// it. Deletes are unaffected.
func (r *Reconciler) skipTunnelHost(skipHosts map[string]struct{}, op ActionType, p provider.Provider, zoneName string, rec provider.Record, result *Result, logger *slog.Logger) bool {
	if rec.Type != zone.TypeCNAME {
		return false
	}
	if _, ok := skipHosts[rec.Name]; !ok {
		return false
	}
	result.AddAction(Action{
		Type:       op,
		Status:     StatusSkipped,
		Provider:   p.Name(),
		Zone:       zoneName,
		Key:        rec.Key,
		RecordType: rec.Type,
		Error:      "tunnel ingress configuration failed",
		DryRun:     r.dryRun,
	})
	logger.Warn("withholding tunnel hostname until its ingress configuration applies",
		slog.String("key", rec.Key))
	return true
}

func (r *Reconciler) applyRecord(ctx context.Context, p provider.Provider, zoneName string, op ActionType, rec provider.Record, result *Result, logger *slog.Logger) {
	action := Action{
		Type:       op,
		Status:     StatusSuccess,
		Provider:   p.Name(),
		Zone:       zoneName,
		Key:        rec.Key,
		RecordType: rec.Type,
		DryRun:     r.dryRun,
	}

	if r.dryRun {
		logger.Info("would "+string(op)+" record",
			slog.String("key", rec.Key),
			slog.String("type", rec.Type))
		result.AddAction(action)
		return
	}

	err := provider.Retry(ctx, r.retry, func(ctx context.Context) error {
		switch op {
		case ActionCreate:
			return p.CreateRecord(ctx, zoneName, rec)
		case ActionUpdate:
			return p.UpdateRecord(ctx, zoneName, rec)
		case ActionDelete:
			return p.DeleteRecord(ctx, zoneName, rec)
		default:
			return fmt.Errorf("unknown operation %q", op)
		}
	})
	if err != nil {
		action.Status = StatusFailed
		action.Error = err.Error()
		metrics.RecordsFailedTotal.WithLabelValues(p.Name(), string(op)).Inc()
		logger.Error("record "+string(op)+" failed",
			slog.String("key", rec.Key),
			slog.String("type", rec.Type),
			slog.String("error", err.Error()))
		result.AddAction(action)
		return
	}

	switch op {
	case ActionCreate:
		metrics.RecordsCreatedTotal.WithLabelValues(p.Name()).Inc()
	case ActionUpdate:
		metrics.RecordsUpdatedTotal.WithLabelValues(p.Name()).Inc()
	case ActionDelete:
		metrics.RecordsDeletedTotal.WithLabelValues(p.Name()).Inc()
	}
	logger.Info("record "+string(op)+"d",
		slog.String("key", rec.Key),
		slog.String("type", rec.Type))
	result.AddAction(action)
}

// syncRegistrar aligns registered-domain delegation with the apex NS values
// declared in each route53 zone document. A zone without a declared apex NS
// is assumed to be registered elsewhere and is left alone.
func (r *Reconciler) syncRegistrar(ctx context.Context, out *compile.Output, result *Result) error {
	if r.registrar == nil || len(out.RegistrarNS) == 0 {
		return nil
	}

	zones := make([]string, 0, len(out.RegistrarNS))
	for name := range out.RegistrarNS {
		zones = append(zones, name)
	}
	sort.Strings(zones)

	for _, zoneName := range zones {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ns := out.RegistrarNS[zoneName]
		action := Action{
			Type:     ActionRegistrarSync,
			Provider: string(zone.ProviderRoute53),
			Zone:     zoneName,
			Key:      zoneName,
			DryRun:   r.dryRun,
		}
		changed, err := r.registrar.Sync(ctx, zoneName, ns)
		switch {
		case err != nil:
			action.Status = StatusFailed
			action.Error = err.Error()
		case changed:
			action.Status = StatusSuccess
		default:
			action.Status = StatusSkipped
		}
		if err == nil {
			result.AddRegistrarNameservers(zoneName, ns)
		}
		result.AddAction(action)
	}
	return nil
}
