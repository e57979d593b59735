// Package zone defines the zone document model and the registry that loads
// and indexes zone definitions from a document store.
package zone

import (
	"fmt"
	"strings"
)

// ProviderKind identifies a DNS provider backend.
type ProviderKind string

const (
	// ProviderRoute53 is AWS Route53 (authoritative DNS + registrar).
	ProviderRoute53 ProviderKind = "route53"

	// ProviderCloudflare is Cloudflare DNS (proxy/tunnel capable).
	ProviderCloudflare ProviderKind = "cloudflare"
)

// SupportedProviders lists all provider kinds accepted in zone documents.
var SupportedProviders = []ProviderKind{ProviderRoute53, ProviderCloudflare}

// Record types understood by the engine. TUNNEL is a synthetic type that
// expands into a proxied CNAME plus tunnel ingress routing.
const (
	TypeA      = "A"
	TypeAAAA   = "AAAA"
	TypeCNAME  = "CNAME"
	TypeMX     = "MX"
	TypeTXT    = "TXT"
	TypeNS     = "NS"
	TypeSOA    = "SOA"
	TypeSRV    = "SRV"
	TypeCAA    = "CAA"
	TypePTR    = "PTR"
	TypeTunnel = "TUNNEL"
)

var knownTypes = map[string]bool{
	TypeA: true, TypeAAAA: true, TypeCNAME: true, TypeMX: true,
	TypeTXT: true, TypeNS: true, TypeSOA: true, TypeSRV: true,
	TypeCAA: true, TypePTR: true, TypeTunnel: true,
}

// IsKnownType reports whether t is a record type the engine understands.
func IsKnownType(t string) bool {
	return knownTypes[strings.ToUpper(t)]
}

// Definition is a fully decoded and validated zone document.
type Definition struct {
	// ZoneName is the zone apex FQDN without trailing dot (unique key).
	ZoneName string

	// Providers is the non-empty set of providers hosting this zone.
	Providers []ProviderKind

	// Tunnels holds zone-scoped tunnel definitions keyed by tunnel name.
	// Entries shadow same-named global tunnels within this zone only.
	Tunnels map[string]Tunnel

	// Records is the ordered record sequence as declared in the document.
	Records []Record

	// Document is the source document name, kept for error reporting.
	Document string
}

// HasProvider reports whether the zone targets the given provider.
func (d *Definition) HasProvider(kind ProviderKind) bool {
	for _, p := range d.Providers {
		if p == kind {
			return true
		}
	}
	return false
}

// Apex reports whether name refers to the zone apex.
func (d *Definition) Apex(name string) bool {
	return name == d.ZoneName
}

// FQDN renders a record name as a fully qualified name within the zone.
// The apex name is rendered as the bare zone name; names already ending in
// the zone suffix pass through unchanged.
func (d *Definition) FQDN(name string) string {
	if name == d.ZoneName || strings.HasSuffix(name, "."+d.ZoneName) {
		return name
	}
	return name + "." + d.ZoneName
}

// Tunnel maps a symbolic tunnel name to a provider tunnel ID.
type Tunnel struct {
	Name     string
	TunnelID string
}

// Record is a single declared DNS record. Exactly one payload variant is
// populated, consistent with Type.
type Record struct {
	Name string
	Type string
	TTL  int

	// Payload is the record content: plain values, MX entries, or a tunnel
	// reference. Selected by Type at decode time.
	Payload Payload

	// SetIdentifier distinguishes multiple records of the same name/type
	// under different routing policies (route53 only).
	SetIdentifier string

	// Routing is the resolved routing policy, nil for simple routing
	// (route53 only).
	Routing RoutingPolicy

	// Proxied requests proxying through the CDN edge (cloudflare only).
	Proxied bool
}

// Payload is the closed set of record content variants.
type Payload interface {
	payload()
}

// Values is the common payload form: one or more literal record values.
type Values []string

func (Values) payload() {}

// MXEntry is a single mail exchanger with explicit priority.
type MXEntry struct {
	Priority int
	Value    string
}

// MXEntries is the structured MX payload form.
type MXEntries []MXEntry

func (MXEntries) payload() {}

// TunnelRef is the payload of a TUNNEL record: a symbolic tunnel name and
// the origin service the tunnel should route this hostname to.
type TunnelRef struct {
	Name    string
	Service string
}

func (TunnelRef) payload() {}

// RoutingPolicy is the closed set of route53 routing policy variants.
// A nil RoutingPolicy means simple routing.
type RoutingPolicy interface {
	// PolicyKey returns a canonical string form used for diffing. Two
	// policies are equal iff their keys are equal.
	PolicyKey() string
}

// WeightedPolicy routes a proportion of traffic by relative weight.
type WeightedPolicy struct {
	Weight int64
}

// PolicyKey implements RoutingPolicy.
func (p WeightedPolicy) PolicyKey() string {
	return fmt.Sprintf("weighted:%d", p.Weight)
}

// LatencyPolicy routes to the named AWS region with lowest latency.
type LatencyPolicy struct {
	Region string
}

// PolicyKey implements RoutingPolicy.
func (p LatencyPolicy) PolicyKey() string {
	return "latency:" + p.Region
}

// GeolocationPolicy routes by resolver location. At most one of the three
// scopes is typically set; route53 matches most-specific first.
type GeolocationPolicy struct {
	Continent   string
	Country     string
	Subdivision string
}

// PolicyKey implements RoutingPolicy.
func (p GeolocationPolicy) PolicyKey() string {
	return fmt.Sprintf("geolocation:%s/%s/%s", p.Continent, p.Country, p.Subdivision)
}

// FailoverPolicy marks a record as the primary or secondary in a failover
// pair. Role is "PRIMARY" or "SECONDARY".
type FailoverPolicy struct {
	Role string
}

// PolicyKey implements RoutingPolicy.
func (p FailoverPolicy) PolicyKey() string {
	return "failover:" + p.Role
}

// MultivaluePolicy enables multivalue answer routing.
type MultivaluePolicy struct{}

// PolicyKey implements RoutingPolicy.
func (p MultivaluePolicy) PolicyKey() string {
	return "multivalue"
}

// PoliciesEqual compares two routing policies, treating nil as simple routing.
func PoliciesEqual(a, b RoutingPolicy) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.PolicyKey() == b.PolicyKey()
}
