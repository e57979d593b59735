package compile

import (
	"fmt"

	"github.com/clearskydns/zonesync/pkg/provider"
	"github.com/clearskydns/zonesync/pkg/zone"
)

// TunnelDomain is the suffix of the CNAME target every tunnel-backed
// hostname points at.
const TunnelDomain = "cfargotunnel.com"

// TunnelHost describes one hostname routed through a tunnel, exposed for
// observability output.
type TunnelHost struct {
	Hostname   string
	TunnelName string
	TunnelID   string
	Service    string
}

// TunnelPlan accumulates ingress routes per tunnel ID across all zones.
// Tunnels defined in the global registry may be shared between zones, so
// the plan spans the whole run; Finalize appends the mandatory catch-all
// rule once per tunnel after every zone has been processed.
type TunnelPlan struct {
	order     []string
	rules     map[string][]provider.IngressRule
	hosts     []TunnelHost
	finalized bool
}

// NewTunnelPlan creates an empty tunnel plan.
func NewTunnelPlan() *TunnelPlan {
	return &TunnelPlan{rules: make(map[string][]provider.IngressRule)}
}

// addRoute appends an ingress rule to a tunnel's ordered rule list.
func (p *TunnelPlan) addRoute(t zone.Tunnel, hostname, service string) {
	if _, ok := p.rules[t.TunnelID]; !ok {
		p.order = append(p.order, t.TunnelID)
	}
	p.rules[t.TunnelID] = append(p.rules[t.TunnelID], provider.IngressRule{
		Hostname: hostname,
		Service:  service,
	})
	p.hosts = append(p.hosts, TunnelHost{
		Hostname:   hostname,
		TunnelName: t.Name,
		TunnelID:   t.TunnelID,
		Service:    service,
	})
}

// Finalize appends the catch-all rule to every tunnel's rule list. Calling
// Finalize more than once is a no-op, so the catch-all appears exactly once
// regardless of how many hostnames route through a tunnel.
func (p *TunnelPlan) Finalize() {
	if p.finalized {
		return
	}
	for _, id := range p.order {
		p.rules[id] = append(p.rules[id], provider.IngressRule{Service: provider.CatchAllService})
	}
	p.finalized = true
}

// TunnelIDs returns the distinct tunnel IDs in first-seen order.
func (p *TunnelPlan) TunnelIDs() []string {
	return p.order
}

// Rules returns the ordered ingress rules for a tunnel ID.
func (p *TunnelPlan) Rules(tunnelID string) []provider.IngressRule {
	return p.rules[tunnelID]
}

// Hosts returns every tunnel-routed hostname for observability output.
func (p *TunnelPlan) Hosts() []TunnelHost {
	return p.hosts
}

// expandTunnel resolves a TUNNEL record against the two-level tunnel
// registry and emits its derived artifacts: the proxied CNAME pointing at
// the tunnel's edge hostname, and an ingress route on the tunnel plan.
func expandTunnel(def *zone.Definition, reg *zone.Registry, plan *TunnelPlan, rec zone.Record) (provider.Record, error) {
	ref, ok := rec.Payload.(zone.TunnelRef)
	if !ok {
		return provider.Record{}, fmt.Errorf("zone %s: record %s: TUNNEL record without tunnel payload",
			def.ZoneName, rec.Name)
	}

	tunnel, ok := reg.LookupTunnel(def, ref.Name)
	if !ok {
		return provider.Record{}, &zone.UnknownTunnelError{
			ZoneName: def.ZoneName,
			Record:   rec.Name,
			Tunnel:   ref.Name,
		}
	}

	hostname := def.FQDN(rec.Name)
	plan.addRoute(tunnel, hostname, ref.Service)

	return provider.Record{
		Key:     provider.IndexedKey(def.ZoneName, rec.Name, zone.TypeCNAME, 0),
		Zone:    def.ZoneName,
		Name:    hostname,
		Type:    zone.TypeCNAME,
		TTL:     ProxiedTTL,
		Values:  []string{tunnel.TunnelID + "." + TunnelDomain},
		Proxied: true,
	}, nil
}
