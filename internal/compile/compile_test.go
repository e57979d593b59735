package compile

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/clearskydns/zonesync/pkg/provider"
	"github.com/clearskydns/zonesync/pkg/zone"
)

// memStore feeds zone documents to the registry loader in tests.
type memStore map[string]string

func (s memStore) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s memStore) Read(ctx context.Context, name string) ([]byte, error) {
	return []byte(s[name]), nil
}

func loadRegistry(t *testing.T, docs memStore) *zone.Registry {
	t.Helper()
	reg, err := zone.Load(context.Background(), docs)
	if err != nil {
		t.Fatalf("loading registry: %v", err)
	}
	return reg
}

func recordByKey(t *testing.T, records []provider.Record, key string) provider.Record {
	t.Helper()
	for _, rec := range records {
		if rec.Key == key {
			return rec
		}
	}
	t.Fatalf("record %q not found in %d records", key, len(records))
	return provider.Record{}
}

func TestRoute53Records_MXSerialization(t *testing.T) {
	reg := loadRegistry(t, memStore{"example.com.yml": `
zone_name: example.com
provider: route53
records:
  - name: example.com
    type: MX
    ttl: 3600
    mx_records:
      - priority: 10
        value: mail1.example.com
      - priority: 20
        value: mail2.example.com
  - name: legacy
    type: MX
    ttl: 3600
    values: ["10 mail1.example.com", "20 mail2.example.com"]
`})

	def, _ := reg.Zone("example.com")
	records := Route53Records(def)

	apex := recordByKey(t, records, "example.com_example.com_MX")
	legacy := recordByKey(t, records, "example.com_legacy_MX")

	want := []string{"10 mail1.example.com", "20 mail2.example.com"}
	for _, rec := range []provider.Record{apex, legacy} {
		if len(rec.Values) != 2 || rec.Values[0] != want[0] || rec.Values[1] != want[1] {
			t.Errorf("record %s: expected %v, got %v", rec.Key, want, rec.Values)
		}
	}
	// Both declaration forms compile to identical wire values.
	if !provider.RecordEquals(apex, legacy) {
		t.Error("structured and string MX forms should compile identically")
	}
}

func TestRoute53Records_SkipsUnmanagedTypes(t *testing.T) {
	reg := loadRegistry(t, memStore{"example.com.yml": `
zone_name: example.com
providers: [route53, cloudflare]
records:
  - name: example.com
    type: NS
    ttl: 172800
    values: ["ns1.example.com"]
  - name: example.com
    type: SOA
    ttl: 900
    values: ["ns1.example.com hostmaster.example.com 1 7200 900 1209600 86400"]
  - name: app
    type: TUNNEL
    tunnel:
      name: web
      service: http://localhost:80
  - name: example.com
    type: A
    ttl: 300
    values: ["192.0.2.1"]
`, "tunnels.yml": "tunnels:\n  web:\n    tunnel_id: tid-1\n"})

	def, _ := reg.Zone("example.com")
	records := Route53Records(def)

	if len(records) != 1 || records[0].Type != "A" {
		t.Fatalf("expected only the A record, got %+v", records)
	}
}

func TestRoute53Records_RoutingPassthrough(t *testing.T) {
	reg := loadRegistry(t, memStore{"example.com.yml": `
zone_name: example.com
provider: route53
records:
  - name: api
    type: A
    ttl: 60
    values: ["192.0.2.1"]
    set_identifier: us-west
    routing_policy:
      type: latency
      region: us-west-2
`})

	def, _ := reg.Zone("example.com")
	records := Route53Records(def)

	rec := recordByKey(t, records, "example.com_api_A_us-west")
	if rec.SetIdentifier != "us-west" {
		t.Errorf("set identifier lost: %+v", rec)
	}
	if rec.Routing == nil || rec.Routing.PolicyKey() != "latency:us-west-2" {
		t.Errorf("routing policy lost: %+v", rec.Routing)
	}
	if rec.Name != "api.example.com" {
		t.Errorf("expected FQDN name, got %q", rec.Name)
	}
}

func TestCloudflareRecords_ValueExpansion(t *testing.T) {
	reg := loadRegistry(t, memStore{"example.com.yml": `
zone_name: example.com
provider: cloudflare
records:
  - name: example.com
    type: A
    ttl: 300
    values: ["192.0.2.1", "192.0.2.2"]
`})

	def, _ := reg.Zone("example.com")
	records, err := CloudflareRecords(def, reg, NewTunnelPlan())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records (one per value), got %d", len(records))
	}
	first := recordByKey(t, records, "example.com_example.com_A_0")
	second := recordByKey(t, records, "example.com_example.com_A_1")
	if first.Values[0] != "192.0.2.1" || second.Values[0] != "192.0.2.2" {
		t.Errorf("positional values wrong: %v / %v", first.Values, second.Values)
	}
}

func TestCloudflareRecords_ValueOrderCanonical(t *testing.T) {
	reg := loadRegistry(t, memStore{"example.com.yml": `
zone_name: example.com
provider: cloudflare
records:
  - name: example.com
    type: A
    ttl: 300
    values: ["192.0.2.2", "192.0.2.1"]
  - name: example.com
    type: MX
    ttl: 3600
    mx_records:
      - priority: 20
        value: mail2.example.com
      - priority: 10
        value: mail1.example.com
`})

	def, _ := reg.Zone("example.com")
	records, err := CloudflareRecords(def, reg, NewTunnelPlan())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Positional keys follow (priority, content) order, not declaration
	// order, so they line up with live listings and the zone converges.
	first := recordByKey(t, records, "example.com_example.com_A_0")
	second := recordByKey(t, records, "example.com_example.com_A_1")
	if first.Values[0] != "192.0.2.1" || second.Values[0] != "192.0.2.2" {
		t.Errorf("values keyed in declaration order instead of content order: %v / %v",
			first.Values, second.Values)
	}

	mx0 := recordByKey(t, records, "example.com_example.com_MX_0")
	if mx0.Priority == nil || *mx0.Priority != 10 || mx0.Values[0] != "mail1.example.com" {
		t.Errorf("lowest MX priority must take position 0, got %v %v", mx0.Priority, mx0.Values)
	}
}

func TestCompile_DuplicateRecordKeys(t *testing.T) {
	reg := loadRegistry(t, memStore{
		"example.com.yml": `
zone_name: example.com
provider: route53
records:
  - name: www
    type: A
    ttl: 300
    values: ["192.0.2.1"]
  - name: www
    type: A
    ttl: 600
    values: ["192.0.2.2"]
`,
		"cf.example.yml": `
zone_name: cf.example
provider: cloudflare
records:
  - name: www
    type: A
    ttl: 300
    values: ["192.0.2.1"]
  - name: www
    type: A
    ttl: 300
    values: ["192.0.2.2"]
`,
	})

	_, err := Compile(reg)
	if err == nil {
		t.Fatal("expected error for records colliding on an identity key")
	}
	if !zone.IsConfiguration(err) {
		t.Errorf("expected configuration error, got: %v", err)
	}
	for _, want := range []string{"example.com.yml", "example.com_www_A", "cf.example_www_A_0"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestCloudflareRecords_MXNormalization(t *testing.T) {
	reg := loadRegistry(t, memStore{"example.com.yml": `
zone_name: example.com
provider: cloudflare
records:
  - name: example.com
    type: MX
    ttl: 3600
    values: ["10 mail1.example.com"]
  - name: alt
    type: MX
    ttl: 3600
    mx_records:
      - priority: 10
        value: mail1.example.com
`})

	def, _ := reg.Zone("example.com")
	records, err := CloudflareRecords(def, reg, NewTunnelPlan())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stringForm := recordByKey(t, records, "example.com_example.com_MX_0")
	structForm := recordByKey(t, records, "example.com_alt_MX_0")

	for _, rec := range []provider.Record{stringForm, structForm} {
		if rec.Values[0] != "mail1.example.com" {
			t.Errorf("record %s: expected bare target, got %v", rec.Key, rec.Values)
		}
		if rec.Priority == nil || *rec.Priority != 10 {
			t.Errorf("record %s: expected split priority 10, got %v", rec.Key, rec.Priority)
		}
	}
}

func TestCloudflareRecords_TXTQuoting(t *testing.T) {
	reg := loadRegistry(t, memStore{"example.com.yml": `
zone_name: example.com
provider: cloudflare
records:
  - name: example.com
    type: TXT
    ttl: 300
    values: ['v=spf1 -all', '"already quoted"']
`})

	def, _ := reg.Zone("example.com")
	records, err := CloudflareRecords(def, reg, NewTunnelPlan())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Positions follow content order of the quoted values.
	if got := recordByKey(t, records, "example.com_example.com_TXT_1").Values[0]; got != `"v=spf1 -all"` {
		t.Errorf("expected quoted TXT, got %q", got)
	}
	// Quoting is idempotent.
	if got := recordByKey(t, records, "example.com_example.com_TXT_0").Values[0]; got != `"already quoted"` {
		t.Errorf("expected already-quoted value untouched, got %q", got)
	}
}

func TestCloudflareRecords_ProxiedTTL(t *testing.T) {
	reg := loadRegistry(t, memStore{"example.com.yml": `
zone_name: example.com
provider: cloudflare
records:
  - name: www
    type: CNAME
    ttl: 300
    values: ["example.com"]
    proxied: true
  - name: plain
    type: A
    ttl: 300
    values: ["192.0.2.1"]
`})

	def, _ := reg.Zone("example.com")
	records, err := CloudflareRecords(def, reg, NewTunnelPlan())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	proxied := recordByKey(t, records, "example.com_www_CNAME_0")
	if !proxied.Proxied || proxied.TTL != ProxiedTTL {
		t.Errorf("proxied record should carry TTL %d, got %+v", ProxiedTTL, proxied)
	}
	plain := recordByKey(t, records, "example.com_plain_A_0")
	if plain.Proxied || plain.TTL != 300 {
		t.Errorf("plain record changed unexpectedly: %+v", plain)
	}
}

func TestCloudflareRecords_ProxyTypeRestriction(t *testing.T) {
	reg := loadRegistry(t, memStore{"example.com.yml": `
zone_name: example.com
provider: cloudflare
records:
  - name: example.com
    type: TXT
    ttl: 300
    values: ["token"]
    proxied: true
`})

	def, _ := reg.Zone("example.com")
	_, err := CloudflareRecords(def, reg, NewTunnelPlan())
	if err == nil || !strings.Contains(err.Error(), "cannot be proxied") {
		t.Errorf("expected proxy type error, got: %v", err)
	}
	if !zone.IsConfiguration(err) {
		t.Errorf("expected configuration error, got: %v", err)
	}
}

func TestCompile_TunnelExpansion(t *testing.T) {
	reg := loadRegistry(t, memStore{
		"example.com.yml": `
zone_name: example.com
provider: cloudflare
records:
  - name: app
    type: TUNNEL
    tunnel:
      name: web
      service: http://localhost:8080
  - name: admin
    type: TUNNEL
    tunnel:
      name: web
      service: http://localhost:9090
`,
		"tunnels.yml": "tunnels:\n  web:\n    tunnel_id: tid-web\n",
	})

	out, err := Compile(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records := out.Cloudflare["example.com"]
	if len(records) != 2 {
		t.Fatalf("expected 2 CNAME records, got %d", len(records))
	}
	cname := recordByKey(t, records, "example.com_app_CNAME_0")
	if cname.Type != zone.TypeCNAME {
		t.Errorf("expected CNAME, got %s", cname.Type)
	}
	if cname.Values[0] != "tid-web.cfargotunnel.com" {
		t.Errorf("expected tunnel edge target, got %v", cname.Values)
	}
	if !cname.Proxied || cname.TTL != ProxiedTTL {
		t.Errorf("tunnel CNAME must be proxied with TTL %d: %+v", ProxiedTTL, cname)
	}

	// Ingress rules in declaration order, catch-all exactly once, last.
	rules := out.Tunnels.Rules("tid-web")
	if len(rules) != 3 {
		t.Fatalf("expected 3 ingress rules, got %+v", rules)
	}
	if rules[0].Hostname != "app.example.com" || rules[0].Service != "http://localhost:8080" {
		t.Errorf("first rule wrong: %+v", rules[0])
	}
	if rules[1].Hostname != "admin.example.com" {
		t.Errorf("second rule wrong: %+v", rules[1])
	}
	last := rules[2]
	if last.Hostname != "" || last.Service != provider.CatchAllService {
		t.Errorf("expected trailing catch-all, got %+v", last)
	}
}

func TestTunnelPlan_FinalizeIdempotent(t *testing.T) {
	plan := NewTunnelPlan()
	plan.addRoute(zone.Tunnel{Name: "web", TunnelID: "tid"}, "app.example.com", "http://localhost:80")

	plan.Finalize()
	plan.Finalize()

	rules := plan.Rules("tid")
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules after double finalize, got %d", len(rules))
	}
	if rules[1].Service != provider.CatchAllService {
		t.Errorf("expected catch-all last, got %+v", rules[1])
	}
}

func TestCompile_UnknownTunnel(t *testing.T) {
	reg := loadRegistry(t, memStore{"example.com.yml": `
zone_name: example.com
provider: cloudflare
records:
  - name: app
    type: TUNNEL
    tunnel:
      name: missing
      service: http://localhost:8080
`})

	_, err := Compile(reg)
	if err == nil || !strings.Contains(err.Error(), `unknown tunnel "missing"`) {
		t.Errorf("expected unknown tunnel error, got: %v", err)
	}
}

func TestCompile_ApexNameservers(t *testing.T) {
	reg := loadRegistry(t, memStore{
		"example.com.yml": `
zone_name: example.com
provider: route53
records:
  - name: example.com
    type: NS
    ttl: 172800
    values: ["ns1.foo.test", "ns2.foo.test"]
  - name: sub
    type: NS
    ttl: 172800
    values: ["ns1.elsewhere.test"]
  - name: www
    type: A
    ttl: 300
    values: ["192.0.2.1"]
`,
		"external.com.yml": `
zone_name: external.com
provider: route53
records:
  - name: www
    type: A
    ttl: 300
    values: ["192.0.2.2"]
`,
	})

	out, err := Compile(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Only the apex NS values drive registrar delegation; the subdomain
	// delegation NS does not.
	ns := out.RegistrarNS["example.com"]
	if len(ns) != 2 || ns[0] != "ns1.foo.test" || ns[1] != "ns2.foo.test" {
		t.Errorf("unexpected registrar nameservers: %v", ns)
	}
	if _, ok := out.RegistrarNS["external.com"]; ok {
		t.Error("zone without apex NS must have no registrar entry")
	}

	// NS records never enter the hosted-zone record set.
	for _, rec := range out.Route53["example.com"] {
		if rec.Type == zone.TypeNS {
			t.Errorf("NS record leaked into desired state: %+v", rec)
		}
	}
}

func TestCompile_DualProviderZone(t *testing.T) {
	reg := loadRegistry(t, memStore{"example.com.yml": `
zone_name: example.com
providers: [route53, cloudflare]
records:
  - name: example.com
    type: A
    ttl: 300
    values: ["192.0.2.1", "192.0.2.2"]
`})

	out, err := Compile(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// One route53 record set carries both values; cloudflare gets one
	// record per value.
	r53 := out.Route53["example.com"]
	if len(r53) != 1 || len(r53[0].Values) != 2 {
		t.Errorf("route53 compilation wrong: %+v", r53)
	}
	cf := out.Cloudflare["example.com"]
	if len(cf) != 2 {
		t.Errorf("cloudflare compilation wrong: %+v", cf)
	}
}
