package reconciler

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clearskydns/zonesync/internal/compile"
)

// ActionType represents the type of reconciliation action.
type ActionType string

const (
	// ActionCreate indicates a record will be/was created.
	ActionCreate ActionType = "create"
	// ActionUpdate indicates a record will be/was updated (value replace).
	ActionUpdate ActionType = "update"
	// ActionDelete indicates a record will be/was deleted (drift correction).
	ActionDelete ActionType = "delete"
	// ActionCreateZone indicates a missing provider zone will be/was created.
	ActionCreateZone ActionType = "create-zone"
	// ActionZoneFetch indicates loading a zone's live state from the
	// provider.
	ActionZoneFetch ActionType = "zone-fetch"
	// ActionTunnelConfig indicates a tunnel's ingress routing was applied.
	ActionTunnelConfig ActionType = "tunnel-config"
	// ActionRegistrarSync indicates a registrar nameserver update.
	ActionRegistrarSync ActionType = "registrar-sync"
)

// ActionStatus represents the outcome of an action.
type ActionStatus string

const (
	// StatusSuccess indicates the action completed (or would, in dry-run).
	StatusSuccess ActionStatus = "success"
	// StatusFailed indicates the action failed.
	StatusFailed ActionStatus = "failed"
	// StatusSkipped indicates the action was not needed.
	StatusSkipped ActionStatus = "skipped"
)

// Action represents a single reconciliation step against a provider.
type Action struct {
	Type     ActionType
	Status   ActionStatus
	Provider string
	Zone     string

	// Key is the record identity key, or the tunnel ID / domain name for
	// non-record actions.
	Key string

	// RecordType is the DNS type for record actions.
	RecordType string

	// Error holds the reason when Status is failed or skipped.
	Error string

	// DryRun indicates the action was planned but not executed.
	DryRun bool
}

// String returns a human-readable representation of the action.
func (a Action) String() string {
	status := string(a.Status)
	if a.DryRun && a.Status == StatusSuccess {
		status = "plan"
	}
	s := fmt.Sprintf("[%s] %s %s %s (%s)", status, a.Type, a.Zone, a.Key, a.Provider)
	if a.Error != "" {
		s += ": " + a.Error
	}
	return s
}

// Result holds the outcome of a full reconciliation run, including the
// observability outputs: per-provider zone nameservers, registrar
// nameservers, and tunnel routes. Safe for concurrent use by the parallel
// zone workers.
type Result struct {
	mu sync.Mutex

	StartTime time.Time
	EndTime   time.Time
	DryRun    bool

	// ZonesReconciled is the number of (provider, zone) pairs processed.
	ZonesReconciled int

	// Actions contains all actions taken (or planned in dry-run).
	Actions []Action

	// ZoneNameservers maps provider name → zone → assigned nameservers.
	ZoneNameservers map[string]map[string][]string

	// RegistrarNameservers maps domain → registrar-configured nameservers.
	RegistrarNameservers map[string][]string

	// TunnelRoutes lists every tunnel-routed hostname.
	TunnelRoutes []compile.TunnelHost
}

// NewResult creates an empty Result with the start time set to now.
func NewResult(dryRun bool) *Result {
	return &Result{
		StartTime:            time.Now(),
		DryRun:               dryRun,
		ZoneNameservers:      make(map[string]map[string][]string),
		RegistrarNameservers: make(map[string][]string),
	}
}

// Complete marks the run as finished.
func (r *Result) Complete() {
	r.EndTime = time.Now()
}

// Duration returns the total run duration.
func (r *Result) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// AddAction records an action.
func (r *Result) AddAction(action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	action.DryRun = r.DryRun
	r.Actions = append(r.Actions, action)
}

// AddZoneNameservers records a provider's assigned nameservers for a zone.
func (r *Result) AddZoneNameservers(providerName, zoneName string, nameservers []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ZoneNameservers[providerName] == nil {
		r.ZoneNameservers[providerName] = make(map[string][]string)
	}
	r.ZoneNameservers[providerName][zoneName] = nameservers
}

// AddRegistrarNameservers records the registrar delegation for a domain.
func (r *Result) AddRegistrarNameservers(domain string, nameservers []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RegistrarNameservers[domain] = nameservers
}

// SetTunnelRoutes records the tunnel hostname mapping.
func (r *Result) SetTunnelRoutes(routes []compile.TunnelHost) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TunnelRoutes = routes
}

// AddZone counts one reconciled (provider, zone) pair.
func (r *Result) AddZone() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ZonesReconciled++
}

func (r *Result) countByType(t ActionType, status ActionStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.Actions {
		if a.Type == t && a.Status == status {
			n++
		}
	}
	return n
}

// CreatedCount returns the number of records created.
func (r *Result) CreatedCount() int { return r.countByType(ActionCreate, StatusSuccess) }

// UpdatedCount returns the number of records updated.
func (r *Result) UpdatedCount() int { return r.countByType(ActionUpdate, StatusSuccess) }

// DeletedCount returns the number of records deleted.
func (r *Result) DeletedCount() int { return r.countByType(ActionDelete, StatusSuccess) }

// Failed returns all failed actions.
func (r *Result) Failed() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	var failed []Action
	for _, a := range r.Actions {
		if a.Status == StatusFailed {
			failed = append(failed, a)
		}
	}
	return failed
}

// FailedCount returns the number of failed actions.
func (r *Result) FailedCount() int { return len(r.Failed()) }

// HasErrors reports whether any action failed. A run with errors is
// reported non-zero so operators are alerted, even though other records
// converged.
func (r *Result) HasErrors() bool { return r.FailedCount() > 0 }

// Summary returns a human-readable summary of the run, including the
// observability mappings.
func (r *Result) Summary() string {
	var sb strings.Builder

	mode := "applied"
	if r.DryRun {
		mode = "plan"
	}

	fmt.Fprintf(&sb, "Reconciliation complete (%s) in %s\n", mode, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&sb, "  Zones reconciled: %d\n", r.ZonesReconciled)
	fmt.Fprintf(&sb, "  Records created: %d\n", r.CreatedCount())
	fmt.Fprintf(&sb, "  Records updated: %d\n", r.UpdatedCount())
	fmt.Fprintf(&sb, "  Records deleted: %d\n", r.DeletedCount())

	if failed := r.Failed(); len(failed) > 0 {
		fmt.Fprintf(&sb, "  Failed: %d\n", len(failed))
		for _, a := range failed {
			fmt.Fprintf(&sb, "    - %s\n", a.String())
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.ZoneNameservers) > 0 {
		fmt.Fprintf(&sb, "  Zone nameservers:\n")
		for _, providerName := range sortedKeys(r.ZoneNameservers) {
			zones := r.ZoneNameservers[providerName]
			for _, zoneName := range sortedKeys(zones) {
				fmt.Fprintf(&sb, "    %s %s: %s\n", providerName, zoneName, strings.Join(zones[zoneName], ", "))
			}
		}
	}
	if len(r.RegistrarNameservers) > 0 {
		fmt.Fprintf(&sb, "  Registrar nameservers:\n")
		for _, domain := range sortedKeys(r.RegistrarNameservers) {
			fmt.Fprintf(&sb, "    %s: %s\n", domain, strings.Join(r.RegistrarNameservers[domain], ", "))
		}
	}
	if len(r.TunnelRoutes) > 0 {
		fmt.Fprintf(&sb, "  Tunnel routes:\n")
		for _, h := range r.TunnelRoutes {
			fmt.Fprintf(&sb, "    %s -> %s (%s, %s)\n", h.Hostname, h.Service, h.TunnelName, h.TunnelID)
		}
	}

	return sb.String()
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
