package cloudflare

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/clearskydns/zonesync/pkg/provider"
	"github.com/clearskydns/zonesync/pkg/zone"
)

// ProviderName is the name used in logs, metrics, and results.
const ProviderName = "cloudflare"

// Provider implements the zonesync provider interface against the
// Cloudflare API.
type Provider struct {
	client    *Client
	accountID string
	logger    *slog.Logger

	mu      sync.Mutex
	zoneIDs map[string]string
}

// Compile-time interface checks.
var (
	_ provider.Provider         = (*Provider)(nil)
	_ provider.TunnelConfigurer = (*Provider)(nil)
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Provider. accountID is required for zone creation and
// tunnel ingress configuration.
func New(client *Client, accountID string, opts ...Option) *Provider {
	p := &Provider{
		client:    client,
		accountID: accountID,
		logger:    slog.Default(),
		zoneIDs:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// Kind returns the provider kind.
func (p *Provider) Kind() zone.ProviderKind { return zone.ProviderCloudflare }

// Ping checks API connectivity and token validity.
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.VerifyToken(ctx)
}

// GetZone looks up an existing zone without creating it.
func (p *Provider) GetZone(ctx context.Context, zoneName string) (provider.ZoneInfo, error) {
	z, err := p.client.FindZone(ctx, zoneName)
	if err != nil {
		return provider.ZoneInfo{}, err
	}
	if z == nil {
		return provider.ZoneInfo{}, fmt.Errorf("zone %s: %w", zoneName, provider.ErrZoneNotFound)
	}
	p.cacheZoneID(zoneName, z.ID)
	return provider.ZoneInfo{ID: z.ID, Nameservers: z.NameServers}, nil
}

// EnsureZone returns the zone, creating it under the account when absent.
func (p *Provider) EnsureZone(ctx context.Context, zoneName string) (provider.ZoneInfo, error) {
	info, err := p.GetZone(ctx, zoneName)
	if err == nil {
		return info, nil
	}
	if !provider.IsZoneNotFound(err) {
		return provider.ZoneInfo{}, err
	}
	if p.accountID == "" {
		return provider.ZoneInfo{}, fmt.Errorf("zone %s does not exist and no account ID is configured to create it", zoneName)
	}

	z, err := p.client.CreateZone(ctx, p.accountID, zoneName)
	if err != nil {
		return provider.ZoneInfo{}, err
	}
	p.cacheZoneID(zoneName, z.ID)
	return provider.ZoneInfo{ID: z.ID, Nameservers: z.NameServers}, nil
}

// ListRecords returns managed live records with identity keys assigned.
// Cloudflare stores one object per value, so live records of the same name
// and type are ordered deterministically (priority, then content) and keyed
// by position.
func (p *Provider) ListRecords(ctx context.Context, zoneName string) ([]provider.Record, error) {
	zoneID, err := p.zoneID(ctx, zoneName)
	if err != nil {
		return nil, err
	}

	raw, err := p.client.ListRecords(ctx, zoneID)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]dnsRecord)
	var groupOrder []string
	for _, rec := range raw {
		// NS and SOA are never managed.
		if rec.Type == zone.TypeNS || rec.Type == zone.TypeSOA {
			continue
		}
		gk := provider.RelativeName(zoneName, rec.Name) + "\x00" + rec.Type
		if _, seen := groups[gk]; !seen {
			groupOrder = append(groupOrder, gk)
		}
		groups[gk] = append(groups[gk], rec)
	}
	sort.Strings(groupOrder)

	var records []provider.Record
	for _, gk := range groupOrder {
		group := groups[gk]
		sort.Slice(group, func(i, j int) bool {
			pi, pj := priorityOf(group[i]), priorityOf(group[j])
			if pi != pj {
				return pi < pj
			}
			return group[i].Content < group[j].Content
		})
		for i, rec := range group {
			records = append(records, provider.Record{
				Key:        provider.IndexedKey(zoneName, rec.Name, rec.Type, i),
				Zone:       zoneName,
				Name:       rec.Name,
				Type:       rec.Type,
				TTL:        rec.TTL,
				Values:     []string{rec.Content},
				Priority:   rec.Priority,
				Proxied:    rec.Proxied,
				ProviderID: rec.ID,
			})
		}
	}
	return records, nil
}

// CreateRecord creates one DNS record. Desired cloudflare records carry
// exactly one value.
func (p *Provider) CreateRecord(ctx context.Context, zoneName string, rec provider.Record) error {
	zoneID, err := p.zoneID(ctx, zoneName)
	if err != nil {
		return provider.WrapApply(ProviderName, zoneName, rec.Key, "create", err)
	}
	id, err := p.client.CreateRecord(ctx, zoneID, toRequest(rec))
	if err != nil {
		return provider.WrapApply(ProviderName, zoneName, rec.Key, "create", err)
	}
	p.logger.Debug("created record",
		slog.String("zone", zoneName),
		slog.String("key", rec.Key),
		slog.String("record_id", id))
	return nil
}

// UpdateRecord fully replaces the live record the key is bound to.
func (p *Provider) UpdateRecord(ctx context.Context, zoneName string, rec provider.Record) error {
	if rec.ProviderID == "" {
		return provider.WrapApply(ProviderName, zoneName, rec.Key, "update",
			fmt.Errorf("record %s: %w", rec.Key, provider.ErrRecordNotFound))
	}
	zoneID, err := p.zoneID(ctx, zoneName)
	if err != nil {
		return provider.WrapApply(ProviderName, zoneName, rec.Key, "update", err)
	}
	if err := p.client.ReplaceRecord(ctx, zoneID, rec.ProviderID, toRequest(rec)); err != nil {
		return provider.WrapApply(ProviderName, zoneName, rec.Key, "update", err)
	}
	return nil
}

// DeleteRecord removes the live record.
func (p *Provider) DeleteRecord(ctx context.Context, zoneName string, rec provider.Record) error {
	if rec.ProviderID == "" {
		return provider.WrapApply(ProviderName, zoneName, rec.Key, "delete",
			fmt.Errorf("record %s: %w", rec.Key, provider.ErrRecordNotFound))
	}
	zoneID, err := p.zoneID(ctx, zoneName)
	if err != nil {
		return provider.WrapApply(ProviderName, zoneName, rec.Key, "delete", err)
	}
	if err := p.client.DeleteRecord(ctx, zoneID, rec.ProviderID); err != nil {
		return provider.WrapApply(ProviderName, zoneName, rec.Key, "delete", err)
	}
	return nil
}

// ApplyTunnelConfig replaces the tunnel's remote ingress routing.
func (p *Provider) ApplyTunnelConfig(ctx context.Context, tunnelID string, rules []provider.IngressRule) error {
	if p.accountID == "" {
		return fmt.Errorf("tunnel %s: ingress configuration requires an account ID", tunnelID)
	}
	apiRules := make([]ingressRule, len(rules))
	for i, r := range rules {
		apiRules[i] = ingressRule{Hostname: r.Hostname, Service: r.Service}
	}
	return p.client.PutTunnelConfig(ctx, p.accountID, tunnelID, apiRules)
}

func (p *Provider) zoneID(ctx context.Context, zoneName string) (string, error) {
	p.mu.Lock()
	id, ok := p.zoneIDs[zoneName]
	p.mu.Unlock()
	if ok {
		return id, nil
	}

	info, err := p.GetZone(ctx, zoneName)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (p *Provider) cacheZoneID(zoneName, id string) {
	p.mu.Lock()
	p.zoneIDs[zoneName] = id
	p.mu.Unlock()
}

func toRequest(rec provider.Record) recordRequest {
	content := ""
	if len(rec.Values) > 0 {
		content = rec.Values[0]
	}
	return recordRequest{
		Type:     rec.Type,
		Name:     rec.Name,
		Content:  content,
		TTL:      rec.TTL,
		Proxied:  rec.Proxied,
		Priority: rec.Priority,
	}
}

func priorityOf(rec dnsRecord) int {
	if rec.Priority == nil {
		return 0
	}
	return *rec.Priority
}
