package zone

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// document mirrors the on-disk zone document shape with decode-friendly
// types. Both YAML and TOML documents decode into it.
type document struct {
	ZoneName  string                    `yaml:"zone_name" toml:"zone_name"`
	Provider  *string                   `yaml:"provider" toml:"provider"`
	Providers []string                  `yaml:"providers" toml:"providers"`
	Tunnels   map[string]documentTunnel `yaml:"tunnels" toml:"tunnels"`
	Records   []documentRecord          `yaml:"records" toml:"records"`
}

type documentTunnel struct {
	TunnelID string `yaml:"tunnel_id" toml:"tunnel_id"`
}

type documentRecord struct {
	Name          string            `yaml:"name" toml:"name"`
	Type          string            `yaml:"type" toml:"type"`
	TTL           int               `yaml:"ttl" toml:"ttl"`
	Values        []string          `yaml:"values" toml:"values"`
	MXRecords     []documentMX      `yaml:"mx_records" toml:"mx_records"`
	SetIdentifier string            `yaml:"set_identifier" toml:"set_identifier"`
	RoutingPolicy *documentRouting  `yaml:"routing_policy" toml:"routing_policy"`
	Proxied       *bool             `yaml:"proxied" toml:"proxied"`
	Tunnel        *documentTunnelRef `yaml:"tunnel" toml:"tunnel"`
}

type documentMX struct {
	Priority int    `yaml:"priority" toml:"priority"`
	Value    string `yaml:"value" toml:"value"`
}

type documentRouting struct {
	Type        string `yaml:"type" toml:"type"`
	Weight      *int64 `yaml:"weight" toml:"weight"`
	Region      string `yaml:"region" toml:"region"`
	Continent   string `yaml:"continent" toml:"continent"`
	Country     string `yaml:"country" toml:"country"`
	Subdivision string `yaml:"subdivision" toml:"subdivision"`
	Role        string `yaml:"role" toml:"role"`
}

type documentTunnelRef struct {
	Name    string `yaml:"name" toml:"name"`
	Service string `yaml:"service" toml:"service"`
}

// DecodeDefinition parses a single zone document. The format is selected by
// the document name extension: .yml/.yaml or .toml. All validation errors in
// the document are collected and returned joined, so a broken document
// reports every problem at once.
func DecodeDefinition(name string, data []byte) (*Definition, error) {
	var doc document
	switch strings.ToLower(path.Ext(name)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%s: decoding YAML: %w", name, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%s: decoding TOML: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported document extension", name)
	}

	return buildDefinition(name, &doc)
}

// buildDefinition validates the raw document and converts it to the typed
// model.
func buildDefinition(name string, doc *document) (*Definition, error) {
	var errs []error

	if doc.ZoneName == "" {
		errs = append(errs, NewMissingFieldError(name, "zone_name"))
	}
	if doc.Records == nil {
		errs = append(errs, NewMissingFieldError(name, "records"))
	}

	providers, perr := resolveProviders(name, doc)
	if perr != nil {
		errs = append(errs, perr)
	}

	def := &Definition{
		ZoneName:  doc.ZoneName,
		Providers: providers,
		Document:  name,
	}

	if len(doc.Tunnels) > 0 {
		def.Tunnels = make(map[string]Tunnel, len(doc.Tunnels))
		for tname, t := range doc.Tunnels {
			if t.TunnelID == "" {
				errs = append(errs, &FieldError{
					Document: name,
					Field:    "tunnels." + tname + ".tunnel_id",
					Message:  "required but not set",
				})
				continue
			}
			def.Tunnels[tname] = Tunnel{Name: tname, TunnelID: t.TunnelID}
		}
	}

	for i, dr := range doc.Records {
		rec, rerrs := buildRecord(name, i, dr)
		if len(rerrs) > 0 {
			errs = append(errs, rerrs...)
			continue
		}
		def.Records = append(def.Records, rec)
	}

	// Cross-field checks that need the provider set.
	if len(providers) > 0 {
		errs = append(errs, checkProviderConsistency(name, def)...)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return def, nil
}

// resolveProviders enforces that exactly one of provider/providers is given
// and maps the values to ProviderKind. An empty singular value defaults to
// route53.
func resolveProviders(name string, doc *document) ([]ProviderKind, error) {
	singular := doc.Provider != nil
	plural := len(doc.Providers) > 0

	switch {
	case singular && plural:
		return nil, &FieldError{
			Document: name,
			Field:    "provider",
			Message:  "provider and providers are mutually exclusive",
		}
	case !singular && !plural:
		return nil, &FieldError{
			Document: name,
			Field:    "provider",
			Message:  "one of provider or providers is required",
		}
	case singular:
		v := strings.ToLower(strings.TrimSpace(*doc.Provider))
		if v == "" {
			return []ProviderKind{ProviderRoute53}, nil
		}
		kind, err := parseProvider(name, "provider", v)
		if err != nil {
			return nil, err
		}
		return []ProviderKind{kind}, nil
	default:
		kinds := make([]ProviderKind, 0, len(doc.Providers))
		seen := make(map[ProviderKind]bool)
		for _, v := range doc.Providers {
			kind, err := parseProvider(name, "providers", strings.ToLower(strings.TrimSpace(v)))
			if err != nil {
				return nil, err
			}
			if seen[kind] {
				continue
			}
			seen[kind] = true
			kinds = append(kinds, kind)
		}
		return kinds, nil
	}
}

func parseProvider(document, field, value string) (ProviderKind, error) {
	for _, p := range SupportedProviders {
		if value == string(p) {
			return p, nil
		}
	}
	return "", &FieldError{
		Document: document,
		Field:    field,
		Value:    value,
		Message:  "unsupported provider (supported: cloudflare, route53)",
	}
}

// buildRecord validates a single record entry and selects its payload
// variant by type.
func buildRecord(docName string, idx int, dr documentRecord) (Record, []error) {
	var errs []error
	field := func(f string) string { return fmt.Sprintf("records[%d].%s", idx, f) }

	rtype := strings.ToUpper(strings.TrimSpace(dr.Type))
	if rtype == "" {
		errs = append(errs, NewMissingFieldError(docName, field("type")))
	} else if !IsKnownType(rtype) {
		errs = append(errs, &FieldError{
			Document: docName, Field: field("type"), Value: dr.Type,
			Message: "unknown record type",
		})
	}
	if dr.Name == "" {
		errs = append(errs, NewMissingFieldError(docName, field("name")))
	}

	rec := Record{
		Name:          dr.Name,
		Type:          rtype,
		TTL:           dr.TTL,
		SetIdentifier: dr.SetIdentifier,
	}
	if dr.Proxied != nil {
		rec.Proxied = *dr.Proxied
	}

	// Exactly one payload form, consistent with the record type.
	switch {
	case rtype == TypeTunnel:
		if dr.Tunnel == nil || dr.Tunnel.Name == "" {
			errs = append(errs, NewMissingFieldError(docName, field("tunnel.name")))
		} else if dr.Tunnel.Service == "" {
			errs = append(errs, NewMissingFieldError(docName, field("tunnel.service")))
		} else {
			rec.Payload = TunnelRef{Name: dr.Tunnel.Name, Service: dr.Tunnel.Service}
		}
		if len(dr.Values) > 0 || len(dr.MXRecords) > 0 {
			errs = append(errs, &FieldError{
				Document: docName, Field: field("values"),
				Message: "TUNNEL records take a tunnel block, not values",
			})
		}
	case rtype == TypeMX && len(dr.MXRecords) > 0:
		if len(dr.Values) > 0 {
			errs = append(errs, &FieldError{
				Document: docName, Field: field("values"),
				Message: "values and mx_records are mutually exclusive",
			})
		}
		entries := make(MXEntries, 0, len(dr.MXRecords))
		for _, mx := range dr.MXRecords {
			if mx.Value == "" {
				errs = append(errs, NewMissingFieldError(docName, field("mx_records.value")))
				continue
			}
			entries = append(entries, MXEntry{Priority: mx.Priority, Value: mx.Value})
		}
		rec.Payload = entries
	default:
		if dr.Tunnel != nil {
			errs = append(errs, &FieldError{
				Document: docName, Field: field("tunnel"),
				Message: "tunnel block is only valid on TUNNEL records",
			})
		}
		if len(dr.Values) == 0 {
			errs = append(errs, NewMissingFieldError(docName, field("values")))
		} else {
			rec.Payload = Values(dr.Values)
		}
	}

	if dr.RoutingPolicy != nil {
		policy, err := buildRoutingPolicy(docName, field("routing_policy"), dr.RoutingPolicy)
		if err != nil {
			errs = append(errs, err)
		} else {
			rec.Routing = policy
		}
	}

	return rec, errs
}

// buildRoutingPolicy converts the loose routing_policy block into a closed
// variant. Unrecognized policy types are rejected here rather than silently
// degrading to simple routing.
func buildRoutingPolicy(docName, field string, dr *documentRouting) (RoutingPolicy, error) {
	switch strings.ToLower(dr.Type) {
	case "weighted":
		if dr.Weight == nil {
			return nil, NewMissingFieldError(docName, field+".weight")
		}
		return WeightedPolicy{Weight: *dr.Weight}, nil
	case "latency":
		if dr.Region == "" {
			return nil, NewMissingFieldError(docName, field+".region")
		}
		return LatencyPolicy{Region: dr.Region}, nil
	case "geolocation":
		if dr.Continent == "" && dr.Country == "" && dr.Subdivision == "" {
			return nil, &FieldError{
				Document: docName, Field: field,
				Message: "geolocation policy needs continent, country, or subdivision",
			}
		}
		return GeolocationPolicy{
			Continent:   dr.Continent,
			Country:     dr.Country,
			Subdivision: dr.Subdivision,
		}, nil
	case "failover":
		role := strings.ToUpper(dr.Role)
		if role != "PRIMARY" && role != "SECONDARY" {
			return nil, &FieldError{
				Document: docName, Field: field + ".role", Value: dr.Role,
				Message: "failover role must be PRIMARY or SECONDARY",
			}
		}
		return FailoverPolicy{Role: role}, nil
	case "multivalue":
		return MultivaluePolicy{}, nil
	case "":
		return nil, NewMissingFieldError(docName, field+".type")
	default:
		return nil, &FieldError{
			Document: docName, Field: field + ".type", Value: dr.Type,
			Message: "unrecognized routing policy type",
		}
	}
}

// checkProviderConsistency validates provider-conditional fields against the
// zone's provider set. Routing policies require route53; tunnels require
// cloudflare.
func checkProviderConsistency(docName string, def *Definition) []error {
	var errs []error

	hasR53 := def.HasProvider(ProviderRoute53)
	hasCF := def.HasProvider(ProviderCloudflare)

	for i, rec := range def.Records {
		if rec.Routing != nil && !hasR53 {
			errs = append(errs, &FieldError{
				Document: docName,
				Field:    fmt.Sprintf("records[%d].routing_policy", i),
				Message:  "routing policies require the route53 provider",
			})
		}
		if rec.Type == TypeTunnel && !hasCF {
			errs = append(errs, &FieldError{
				Document: docName,
				Field:    fmt.Sprintf("records[%d]", i),
				Message:  "TUNNEL records require the cloudflare provider",
			})
		}
	}
	if len(def.Tunnels) > 0 && !hasCF {
		errs = append(errs, &FieldError{
			Document: docName,
			Field:    "tunnels",
			Message:  "tunnel definitions require the cloudflare provider",
		})
	}

	return errs
}

// SmellWarnings returns non-fatal configuration smells for a definition,
// currently proxied=true on a zone that never reaches cloudflare.
func SmellWarnings(def *Definition) []string {
	var warnings []string
	if def.HasProvider(ProviderCloudflare) {
		return nil
	}
	for i, rec := range def.Records {
		if rec.Proxied {
			warnings = append(warnings, fmt.Sprintf(
				"%s: records[%d]: proxied has no effect without the cloudflare provider",
				def.Document, i))
		}
	}
	return warnings
}
