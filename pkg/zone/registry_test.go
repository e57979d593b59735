package zone

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
)

// fakeStore is an in-memory document store for registry tests.
type fakeStore struct {
	docs map[string]string
}

func (s *fakeStore) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(s.docs))
	for name := range s.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *fakeStore) Read(ctx context.Context, name string) ([]byte, error) {
	doc, ok := s.docs[name]
	if !ok {
		return nil, fmt.Errorf("no such document: %s", name)
	}
	return []byte(doc), nil
}

func TestLoad(t *testing.T) {
	store := &fakeStore{docs: map[string]string{
		"example.com.yml": `
zone_name: example.com
providers: [route53, cloudflare]
records:
  - name: example.com
    type: A
    ttl: 300
    values: ["192.0.2.1"]
`,
		"example.org.toml": `
zone_name = "example.org"
provider = "route53"
records = []
`,
		"tunnels.yml": `
tunnels:
  web:
    tunnel_id: global-tunnel-id
`,
	}}

	reg, err := Load(context.Background(), store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reg.Len() != 2 {
		t.Errorf("expected 2 zones, got %d", reg.Len())
	}
	if _, ok := reg.Zone("example.com"); !ok {
		t.Error("example.com not registered")
	}
	if _, ok := reg.Zone("example.org"); !ok {
		t.Error("example.org not registered")
	}
	// The tunnel registry document is not a zone.
	if _, ok := reg.Zone("tunnels"); ok {
		t.Error("tunnels document registered as a zone")
	}
	if got := reg.GlobalTunnels()["web"].TunnelID; got != "global-tunnel-id" {
		t.Errorf("global tunnel not loaded: %q", got)
	}
}

func TestLoad_DuplicateZone(t *testing.T) {
	store := &fakeStore{docs: map[string]string{
		"a.yml": "zone_name: example.com\nprovider: route53\nrecords: []\n",
		"b.yml": "zone_name: example.com\nprovider: route53\nrecords: []\n",
	}}

	_, err := Load(context.Background(), store)
	if err == nil || !strings.Contains(err.Error(), "already declared") {
		t.Errorf("expected duplicate zone error, got: %v", err)
	}
	if !IsConfiguration(err) {
		t.Errorf("expected configuration error, got: %v", err)
	}
}

func TestLoad_CollectsAllErrors(t *testing.T) {
	store := &fakeStore{docs: map[string]string{
		"one.yml": "provider: route53\nrecords: []\n",
		"two.yml": "zone_name: two.example\nprovider: gandi\nrecords: []\n",
	}}

	_, err := Load(context.Background(), store)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "zone_name") {
		t.Errorf("missing first document's error: %v", err)
	}
	if !strings.Contains(err.Error(), "unsupported provider") {
		t.Errorf("missing second document's error: %v", err)
	}
}

func TestLoad_TunnelRegistryUnsupportedExtension(t *testing.T) {
	store := &fakeStore{docs: map[string]string{
		"tunnels.json": `{"tunnels": {"web": {"tunnel_id": "tid-1"}}}`,
	}}

	_, err := Load(context.Background(), store)
	if err == nil || !strings.Contains(err.Error(), "unsupported document extension") {
		t.Errorf("expected unsupported extension error, got: %v", err)
	}
}

func TestLoad_FilenameMismatchWarning(t *testing.T) {
	store := &fakeStore{docs: map[string]string{
		"prod-zone.yml": "zone_name: example.com\nprovider: route53\nrecords: []\n",
	}}

	reg, err := Load(context.Background(), store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	warnings := reg.Warnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "does not match zone_name") {
		t.Errorf("expected filename mismatch warning, got: %v", warnings)
	}
}

func TestRegistry_Partition(t *testing.T) {
	store := &fakeStore{docs: map[string]string{
		"a.example.yml":    "zone_name: a.example\nprovider: route53\nrecords: []\n",
		"b.example.yml":    "zone_name: b.example\nprovider: cloudflare\nrecords: []\n",
		"both.example.yml": "zone_name: both.example\nproviders: [route53, cloudflare]\nrecords: []\n",
	}}

	reg, err := Load(context.Background(), store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parts := reg.Partition()
	if got := len(parts[ProviderRoute53]); got != 2 {
		t.Errorf("expected 2 route53 zones, got %d", got)
	}
	if got := len(parts[ProviderCloudflare]); got != 2 {
		t.Errorf("expected 2 cloudflare zones, got %d", got)
	}
}

func TestRegistry_LookupTunnel(t *testing.T) {
	store := &fakeStore{docs: map[string]string{
		"example.com.yml": `
zone_name: example.com
provider: cloudflare
tunnels:
  web:
    tunnel_id: zone-scoped-id
records: []
`,
		"other.example.yml": "zone_name: other.example\nprovider: cloudflare\nrecords: []\n",
		"tunnels.yml": `
tunnels:
  web:
    tunnel_id: global-id
  api:
    tunnel_id: api-id
`,
	}}

	reg, err := Load(context.Background(), store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	withLocal, _ := reg.Zone("example.com")
	withoutLocal, _ := reg.Zone("other.example")

	// Zone-scoped entry shadows the global one of the same name.
	if tun, ok := reg.LookupTunnel(withLocal, "web"); !ok || tun.TunnelID != "zone-scoped-id" {
		t.Errorf("expected zone-scoped tunnel, got %+v ok=%v", tun, ok)
	}
	// Other zones fall through to the global registry.
	if tun, ok := reg.LookupTunnel(withoutLocal, "web"); !ok || tun.TunnelID != "global-id" {
		t.Errorf("expected global tunnel, got %+v ok=%v", tun, ok)
	}
	if tun, ok := reg.LookupTunnel(withLocal, "api"); !ok || tun.TunnelID != "api-id" {
		t.Errorf("expected global api tunnel, got %+v ok=%v", tun, ok)
	}
	if _, ok := reg.LookupTunnel(withLocal, "missing"); ok {
		t.Error("expected lookup miss for unknown tunnel")
	}
}
