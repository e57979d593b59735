// Package compile turns zone definitions into canonical per-provider record
// sets: it normalizes record payloads, resolves routing policies and
// proxy/TTL rules, and expands tunnel records into their derived artifacts.
package compile

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/clearskydns/zonesync/pkg/provider"
	"github.com/clearskydns/zonesync/pkg/zone"
)

// Output is the complete desired state for one reconciliation run, keyed by
// zone name per provider. It is derived fresh each run and discarded after
// diffing.
type Output struct {
	Route53    map[string][]provider.Record
	Cloudflare map[string][]provider.Record
	Tunnels    *TunnelPlan

	// RegistrarNS maps zone name to the apex NS values declared in the zone
	// document. A declared apex NS marks the domain as registered through
	// route53; its values drive the registrar delegation update verbatim.
	// Zones without a declared apex NS are assumed externally registered.
	RegistrarNS map[string][]string
}

// Compile builds the desired state for every declared zone. All
// configuration errors across all zones are collected and returned joined;
// any error here blocks the run before a single apply.
func Compile(reg *zone.Registry) (*Output, error) {
	out := &Output{
		Route53:     make(map[string][]provider.Record),
		Cloudflare:  make(map[string][]provider.Record),
		Tunnels:     NewTunnelPlan(),
		RegistrarNS: make(map[string][]string),
	}

	var errs []error
	for kind, defs := range reg.Partition() {
		for _, def := range defs {
			switch kind {
			case zone.ProviderRoute53:
				records := Route53Records(def)
				if dup := duplicateKeys(def, records); len(dup) > 0 {
					errs = append(errs, dup...)
					continue
				}
				out.Route53[def.ZoneName] = records
				if ns := ApexNameservers(def); len(ns) > 0 {
					out.RegistrarNS[def.ZoneName] = ns
				}
			case zone.ProviderCloudflare:
				records, err := CloudflareRecords(def, reg, out.Tunnels)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if dup := duplicateKeys(def, records); len(dup) > 0 {
					errs = append(errs, dup...)
					continue
				}
				out.Cloudflare[def.ZoneName] = records
			}
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	out.Tunnels.Finalize()
	return out, nil
}

// Route53Records compiles the canonical route53 record set for a zone.
// NS and SOA are never managed; TUNNEL records are cloudflare artifacts and
// are skipped here. MX payloads are re-serialized into route53's native
// "priority value" multi-value wire format.
func Route53Records(def *zone.Definition) []provider.Record {
	var records []provider.Record

	for _, rec := range def.Records {
		switch rec.Type {
		case zone.TypeNS, zone.TypeSOA, zone.TypeTunnel:
			continue
		}

		out := provider.Record{
			Key:           provider.RecordKey(def.ZoneName, rec.Name, rec.Type, rec.SetIdentifier),
			Zone:          def.ZoneName,
			Name:          def.FQDN(rec.Name),
			Type:          rec.Type,
			TTL:           rec.TTL,
			SetIdentifier: rec.SetIdentifier,
			Routing:       rec.Routing,
		}

		switch payload := rec.Payload.(type) {
		case zone.Values:
			out.Values = append([]string(nil), payload...)
		case zone.MXEntries:
			for _, mx := range payload {
				out.Values = append(out.Values, fmt.Sprintf("%d %s", mx.Priority, mx.Value))
			}
		}

		records = append(records, out)
	}

	return records
}

// ApexNameservers returns the NS values declared at the zone apex, in
// declaration order. These never become hosted-zone records; they drive the
// registrar delegation update instead.
func ApexNameservers(def *zone.Definition) []string {
	var servers []string
	for _, rec := range def.Records {
		if rec.Type != zone.TypeNS {
			continue
		}
		if provider.RelativeName(def.ZoneName, rec.Name) != def.ZoneName {
			continue
		}
		if values, ok := rec.Payload.(zone.Values); ok {
			servers = append(servers, values...)
		}
	}
	return servers
}

// CloudflareRecords compiles the canonical cloudflare record set for a zone
// and registers tunnel routes on the shared tunnel plan. Each declared value
// becomes its own record because the cloudflare API takes one object per
// value; MX values carry a split priority, TXT values are quoted.
func CloudflareRecords(def *zone.Definition, reg *zone.Registry, plan *TunnelPlan) ([]provider.Record, error) {
	var records []provider.Record
	var errs []error

	for _, rec := range def.Records {
		switch rec.Type {
		case zone.TypeNS, zone.TypeSOA:
			continue
		case zone.TypeTunnel:
			tunnelRec, err := expandTunnel(def, reg, plan, rec)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			records = append(records, tunnelRec)
			continue
		}

		proxied, ttl, err := resolveProxy(def, rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		values := expandValues(rec)
		// Live listings order a record's objects by (priority, content)
		// before assigning positional keys; the desired side uses the same
		// order so a value set that is merely declared out of order still
		// keys identically to its live counterpart.
		sort.Slice(values, func(i, j int) bool {
			pi, pj := priorityOrZero(values[i].priority), priorityOrZero(values[j].priority)
			if pi != pj {
				return pi < pj
			}
			return values[i].content < values[j].content
		})

		for i, value := range values {
			records = append(records, provider.Record{
				Key:      provider.IndexedKey(def.ZoneName, rec.Name, rec.Type, i),
				Zone:     def.ZoneName,
				Name:     def.FQDN(rec.Name),
				Type:     rec.Type,
				TTL:      ttl,
				Values:   []string{value.content},
				Priority: value.priority,
				Proxied:  proxied,
			})
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return records, nil
}

// duplicateKeys reports identity-key collisions within one compiled zone.
// Identity keys must be unique within a provider+zone scope; two declared
// records reducing to the same key would shadow each other in the differ,
// so a collision is a configuration error.
func duplicateKeys(def *zone.Definition, records []provider.Record) []error {
	seen := make(map[string]struct{}, len(records))
	var errs []error
	for _, rec := range records {
		if _, dup := seen[rec.Key]; dup {
			errs = append(errs, &zone.DuplicateRecordError{
				Document: def.Document,
				ZoneName: def.ZoneName,
				Key:      rec.Key,
			})
			continue
		}
		seen[rec.Key] = struct{}{}
	}
	return errs
}

func priorityOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// resolveProxy computes the effective proxied flag and TTL for a cloudflare
// record. Only A, AAAA, and CNAME may be proxied; a proxied record's TTL is
// forced to the provider's automatic sentinel regardless of the declared
// value.
func resolveProxy(def *zone.Definition, rec zone.Record) (bool, int, error) {
	if !rec.Proxied {
		return false, rec.TTL, nil
	}

	switch rec.Type {
	case zone.TypeA, zone.TypeAAAA, zone.TypeCNAME:
		return true, ProxiedTTL, nil
	default:
		return false, 0, &zone.UnsupportedProxyTypeError{
			ZoneName: def.ZoneName,
			Record:   rec.Name,
			Type:     rec.Type,
		}
	}
}

// ProxiedTTL is cloudflare's required TTL sentinel for proxied records.
const ProxiedTTL = 1

// expandedValue is one cloudflare API object worth of record content.
type expandedValue struct {
	content  string
	priority *int
}

// expandValues flattens a record payload into per-object values. Both MX
// input forms normalize to explicit priority+target pairs; pre-encoded
// "priority value" strings are split.
func expandValues(rec zone.Record) []expandedValue {
	switch payload := rec.Payload.(type) {
	case zone.MXEntries:
		out := make([]expandedValue, 0, len(payload))
		for _, mx := range payload {
			prio := mx.Priority
			out = append(out, expandedValue{content: mx.Value, priority: &prio})
		}
		return out
	case zone.Values:
		out := make([]expandedValue, 0, len(payload))
		for _, v := range payload {
			switch rec.Type {
			case zone.TypeMX:
				prio, target := splitMXValue(v)
				out = append(out, expandedValue{content: target, priority: prio})
			case zone.TypeTXT:
				out = append(out, expandedValue{content: quoteTXT(v)})
			default:
				out = append(out, expandedValue{content: v})
			}
		}
		return out
	default:
		return nil
	}
}

// splitMXValue parses the pre-encoded "priority value" MX form. A value
// without a leading integer passes through with no priority; the provider
// rejects it at apply time with the record key attached.
func splitMXValue(v string) (*int, string) {
	prioStr, target, found := strings.Cut(strings.TrimSpace(v), " ")
	if !found {
		return nil, v
	}
	prio, err := strconv.Atoi(prioStr)
	if err != nil {
		return nil, v
	}
	return &prio, strings.TrimSpace(target)
}

// quoteTXT wraps TXT content in quote characters as the cloudflare content
// format requires. Already quoted values pass through, so normalization
// stays idempotent.
func quoteTXT(v string) string {
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		return v
	}
	return `"` + v + `"`
}
