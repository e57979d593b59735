// Package registrar keeps registered-domain delegation in step with the
// authoritative nameservers of a hosted zone.
package registrar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// API is the registrar surface the synchronizer drives. Implementations
// talk to a domain registration service.
type API interface {
	// GetNameservers returns the delegation set currently registered for
	// the domain.
	GetNameservers(ctx context.Context, domain string) ([]string, error)
	// UpdateNameservers replaces the registered delegation set.
	UpdateNameservers(ctx context.Context, domain string, nameservers []string) error
}

// Synchronizer compares a zone's authoritative nameservers against the
// registrar's delegation and updates the registrar when they differ. It
// never modifies records inside the hosted zone itself.
type Synchronizer struct {
	api    API
	logger *slog.Logger
	dryRun bool
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger used for sync decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDryRun makes Sync report intended changes without applying them.
func WithDryRun(dryRun bool) Option {
	return func(s *Synchronizer) {
		s.dryRun = dryRun
	}
}

// New creates a Synchronizer over the given registrar API.
func New(api API, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		api:    api,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync ensures the registrar delegation for domain matches the zone's
// nameservers. It returns true when an update was made (or would have
// been made under dry-run).
func (s *Synchronizer) Sync(ctx context.Context, domain string, zoneNameservers []string) (bool, error) {
	if len(zoneNameservers) == 0 {
		return false, fmt.Errorf("no nameservers provided for domain %s", domain)
	}

	current, err := s.api.GetNameservers(ctx, domain)
	if err != nil {
		return false, fmt.Errorf("fetching registered nameservers for %s: %w", domain, err)
	}

	if NameserversEqual(current, zoneNameservers) {
		s.logger.Debug("registrar delegation already current",
			slog.String("domain", domain),
			slog.Int("nameservers", len(current)))
		return false, nil
	}

	if s.dryRun {
		s.logger.Info("would update registrar delegation",
			slog.String("domain", domain),
			slog.String("current", strings.Join(current, ",")),
			slog.String("desired", strings.Join(zoneNameservers, ",")))
		return true, nil
	}

	if err := s.api.UpdateNameservers(ctx, domain, zoneNameservers); err != nil {
		return false, fmt.Errorf("updating registered nameservers for %s: %w", domain, err)
	}

	s.logger.Info("updated registrar delegation",
		slog.String("domain", domain),
		slog.String("nameservers", strings.Join(zoneNameservers, ",")))
	return true, nil
}

// NameserversEqual reports whether two delegation sets name the same
// servers, ignoring order, case, and trailing dots.
func NameserversEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, ns := range a {
		seen[normalizeNS(ns)]++
	}
	for _, ns := range b {
		key := normalizeNS(ns)
		seen[key]--
		if seen[key] < 0 {
			return false
		}
	}
	return true
}

func normalizeNS(ns string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(ns), "."))
}
