// Package provider defines the canonical record model and the interface both
// DNS provider implementations satisfy.
package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/clearskydns/zonesync/pkg/zone"
)

// Record is the canonical engine-internal record, used for both desired
// state (compiled from zone documents) and live state (read from a provider
// API). Key is the join key between the two; it must be stable across runs.
type Record struct {
	// Key is the identity key, unique within a provider+zone scope.
	Key string

	// Zone is the owning zone name.
	Zone string

	// Name is the fully qualified record name (bare zone name at the apex).
	Name string

	// Type is the DNS record type (never NS or SOA).
	Type string

	// TTL in seconds. Proxied cloudflare records always carry TTL 1.
	TTL int

	// Values holds the record content. Route53 records carry the full
	// multi-value set; cloudflare records carry exactly one value.
	Values []string

	// Priority is the cloudflare-side priority for MX/SRV records.
	Priority *int

	// Proxied marks a record as proxied through the cloudflare edge.
	Proxied bool

	// Routing is the route53 routing policy, nil for simple routing.
	Routing zone.RoutingPolicy

	// SetIdentifier distinguishes same-name/type route53 records under
	// different routing policies.
	SetIdentifier string

	// ProviderID is the provider's own identifier for a live record. Empty
	// on desired records.
	ProviderID string
}

// IngressRule routes one hostname through a tunnel to an origin service.
// An empty Hostname marks the mandatory trailing catch-all rule.
type IngressRule struct {
	Hostname string
	Service  string
}

// CatchAllService is the service of the mandatory trailing ingress rule;
// unmatched traffic is explicitly rejected rather than falling through.
const CatchAllService = "http_status:404"

// ZoneInfo describes a provider-side zone.
type ZoneInfo struct {
	// ID is the provider's zone identifier.
	ID string

	// Nameservers are the nameservers the provider assigned to the zone.
	Nameservers []string
}

// Provider is the interface both DNS backends implement. NS and SOA records
// are invisible through this interface: ListRecords never returns them and
// the engine never writes them.
type Provider interface {
	// Name returns the provider name for logging and metrics.
	Name() string

	// Kind returns the provider kind this instance serves.
	Kind() zone.ProviderKind

	// Ping checks connectivity and credentials.
	Ping(ctx context.Context) error

	// GetZone looks up an existing provider zone. It returns an error
	// wrapping ErrZoneNotFound when the zone does not exist.
	GetZone(ctx context.Context, zoneName string) (ZoneInfo, error)

	// EnsureZone returns the provider zone, creating it when absent.
	EnsureZone(ctx context.Context, zoneName string) (ZoneInfo, error)

	// ListRecords returns all live managed records in the zone, with
	// identity keys assigned and NS/SOA excluded.
	ListRecords(ctx context.Context, zoneName string) ([]Record, error)

	// CreateRecord creates a new record.
	CreateRecord(ctx context.Context, zoneName string, rec Record) error

	// UpdateRecord replaces a live record's content with rec. This is a
	// full value replace; DNS records have no partial-update semantics.
	UpdateRecord(ctx context.Context, zoneName string, rec Record) error

	// DeleteRecord removes a live record.
	DeleteRecord(ctx context.Context, zoneName string, rec Record) error
}

// TunnelConfigurer is implemented by providers that manage tunnel ingress
// routing. Ingress configuration must be applied before the CNAME records
// that make a tunnel externally reachable.
type TunnelConfigurer interface {
	ApplyTunnelConfig(ctx context.Context, tunnelID string, rules []IngressRule) error
}

// RecordKey derives the route53-style identity key:
// zone_name + "_" + name + "_" + type, extended with the set identifier when
// present. Name is relativized against the zone first so documents using
// short names and FQDNs produce the same key.
func RecordKey(zoneName, name, rtype, setID string) string {
	key := zoneName + "_" + RelativeName(zoneName, name) + "_" + rtype
	if setID != "" {
		key += "_" + setID
	}
	return key
}

// IndexedKey derives the cloudflare-style identity key with a positional
// value index, because one declared record with N values becomes N live
// records there.
func IndexedKey(zoneName, name, rtype string, index int) string {
	return fmt.Sprintf("%s_%s_%s_%d", zoneName, RelativeName(zoneName, name), rtype, index)
}

// RelativeName reduces a record name to its canonical in-zone form: the bare
// zone name at the apex, the relative label otherwise.
func RelativeName(zoneName, name string) string {
	name = strings.TrimSuffix(name, ".")
	if name == zoneName {
		return zoneName
	}
	if rel, ok := strings.CutSuffix(name, "."+zoneName); ok {
		return rel
	}
	return name
}

// RecordEquals reports whether two records are logically equal for diffing:
// content, TTL, priority, proxied flag, and routing policy. Keys and
// provider IDs are not compared.
func RecordEquals(a, b Record) bool {
	if a.TTL != b.TTL || a.Proxied != b.Proxied {
		return false
	}
	if !priorityEquals(a.Priority, b.Priority) {
		return false
	}
	if !zone.PoliciesEqual(a.Routing, b.Routing) {
		return false
	}
	return valuesEqual(a.Values, b.Values)
}

func priorityEquals(a, b *int) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// valuesEqual compares value sets order-insensitively; multi-value record
// sets have no meaningful order.
func valuesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
