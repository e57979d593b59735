package zone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/clearskydns/zonesync/pkg/docstore"
)

// TunnelRegistryDocument is the base name of the repository-wide tunnel
// registry document (any supported extension).
const TunnelRegistryDocument = "tunnels"

// Registry indexes all zone definitions by zone name, together with the
// global tunnel registry. It is read-only after Load and safe to share
// across parallel reconciliation workers.
type Registry struct {
	zones         map[string]*Definition
	order         []string
	globalTunnels map[string]Tunnel
	warnings      []string
}

// LoadOption is a functional option for Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger used while loading documents.
func WithLogger(logger *slog.Logger) LoadOption {
	return func(o *loadOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Load reads every zone document from the store and builds the registry.
// All configuration errors across all documents are collected and returned
// joined; a registry is only returned when every document is valid.
func Load(ctx context.Context, store docstore.Store, opts ...LoadOption) (*Registry, error) {
	options := loadOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.logger

	names, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating zone documents: %w", err)
	}

	reg := &Registry{
		zones:         make(map[string]*Definition),
		globalTunnels: make(map[string]Tunnel),
	}

	var errs []error
	for _, name := range names {
		data, err := store.Read(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if isTunnelRegistry(name) {
			tunnels, terr := decodeTunnelRegistry(name, data)
			if terr != nil {
				errs = append(errs, terr)
				continue
			}
			reg.globalTunnels = tunnels
			logger.Debug("loaded global tunnel registry",
				slog.String("document", name),
				slog.Int("tunnels", len(tunnels)),
			)
			continue
		}

		def, derr := DecodeDefinition(name, data)
		if derr != nil {
			errs = append(errs, derr)
			continue
		}

		if existing, ok := reg.zones[def.ZoneName]; ok {
			errs = append(errs, &DuplicateZoneError{
				ZoneName: def.ZoneName,
				Document: name,
				Existing: existing.Document,
			})
			continue
		}

		if base := documentBase(name); base != def.ZoneName {
			reg.warnings = append(reg.warnings, fmt.Sprintf(
				"%s: document name does not match zone_name %q", name, def.ZoneName))
		}
		reg.warnings = append(reg.warnings, SmellWarnings(def)...)

		reg.zones[def.ZoneName] = def
		reg.order = append(reg.order, def.ZoneName)

		logger.Debug("loaded zone document",
			slog.String("document", name),
			slog.String("zone", def.ZoneName),
			slog.Int("records", len(def.Records)),
		)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	sort.Strings(reg.order)

	for _, w := range reg.warnings {
		logger.Warn(w)
	}

	return reg, nil
}

// Zone returns the definition for a zone name.
func (r *Registry) Zone(name string) (*Definition, bool) {
	def, ok := r.zones[name]
	return def, ok
}

// Zones returns all definitions sorted by zone name.
func (r *Registry) Zones() []*Definition {
	defs := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.zones[name])
	}
	return defs
}

// Len returns the number of declared zones.
func (r *Registry) Len() int {
	return len(r.zones)
}

// Warnings returns non-fatal configuration smells found during Load.
func (r *Registry) Warnings() []string {
	return r.warnings
}

// Partition splits the declared zones into per-provider subsets. A zone
// declared for both providers appears in both subsets; this is the supported
// mechanism for zero-downtime provider migration.
func (r *Registry) Partition() map[ProviderKind][]*Definition {
	parts := make(map[ProviderKind][]*Definition)
	for _, def := range r.Zones() {
		for _, kind := range def.Providers {
			parts[kind] = append(parts[kind], def)
		}
	}
	return parts
}

// LookupTunnel resolves a tunnel name for a zone: the zone-scoped registry
// is consulted first, then the global one. Zone-scoped entries shadow global
// entries of the same name within that zone only.
func (r *Registry) LookupTunnel(def *Definition, name string) (Tunnel, bool) {
	if def != nil {
		if t, ok := def.Tunnels[name]; ok {
			return t, true
		}
	}
	t, ok := r.globalTunnels[name]
	return t, ok
}

// GlobalTunnels returns the repository-wide tunnel registry.
func (r *Registry) GlobalTunnels() map[string]Tunnel {
	return r.globalTunnels
}

// isTunnelRegistry reports whether a document name is the global tunnel
// registry rather than a zone document.
func isTunnelRegistry(name string) bool {
	return documentBase(name) == TunnelRegistryDocument
}

// documentBase strips the document extension.
func documentBase(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

// tunnelRegistryDoc mirrors the global tunnel registry document:
// a mapping of tunnel name to {tunnel_id}.
type tunnelRegistryDoc struct {
	Tunnels map[string]documentTunnel `yaml:"tunnels" toml:"tunnels"`
}

func decodeTunnelRegistry(name string, data []byte) (map[string]Tunnel, error) {
	var doc tunnelRegistryDoc
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

	tunnels := make(map[string]Tunnel, len(doc.Tunnels))
	for tname, t := range doc.Tunnels {
		if t.TunnelID == "" {
			return nil, &FieldError{
				Document: name,
				Field:    "tunnels." + tname + ".tunnel_id",
				Message:  "required but not set",
			}
		}
		tunnels[tname] = Tunnel{Name: tname, TunnelID: t.TunnelID}
	}
	return tunnels, nil
}
