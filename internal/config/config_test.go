package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ZONESYNC_CLOUDFLARE_API_TOKEN", "cf-token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("logging defaults wrong: %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.ReconcileInterval != 5*time.Minute {
		t.Errorf("interval default wrong: %v", cfg.ReconcileInterval)
	}
	if cfg.Concurrency != 4 || cfg.ServerPort != 8080 {
		t.Errorf("concurrency/port defaults wrong: %d/%d", cfg.Concurrency, cfg.ServerPort)
	}
	if cfg.Source.Type != "local" || cfg.Source.Dir != "/etc/zonesync/zones" {
		t.Errorf("source defaults wrong: %+v", cfg.Source)
	}
	if cfg.Cloudflare == nil || cfg.Cloudflare.APIToken != "cf-token" {
		t.Errorf("env token should enable cloudflare: %+v", cfg.Cloudflare)
	}
	if cfg.Route53 != nil {
		t.Errorf("route53 should stay disabled: %+v", cfg.Route53)
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: debug
  format: text
reconciler:
  interval: 90s
  dry_run: true
  concurrency: 8
source:
  type: local
  dir: /data/zones
route53:
  region: eu-west-1
cloudflare:
  api_token: file-token
  account_id: acct-1
registrar:
  sync: true
delegation:
  check: true
  resolver: 9.9.9.9:53
server:
  port: 9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Errorf("logging not applied: %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.ReconcileInterval != 90*time.Second || !cfg.DryRun || cfg.Concurrency != 8 {
		t.Errorf("reconciler section not applied: %v/%v/%d", cfg.ReconcileInterval, cfg.DryRun, cfg.Concurrency)
	}
	if cfg.Source.Dir != "/data/zones" {
		t.Errorf("source dir not applied: %q", cfg.Source.Dir)
	}
	if cfg.Route53 == nil || cfg.Route53.Region != "eu-west-1" {
		t.Errorf("route53 section not applied: %+v", cfg.Route53)
	}
	if cfg.Cloudflare == nil || cfg.Cloudflare.APIToken != "file-token" || cfg.Cloudflare.AccountID != "acct-1" {
		t.Errorf("cloudflare section not applied: %+v", cfg.Cloudflare)
	}
	if !cfg.RegistrarSync || !cfg.DelegationCheck || cfg.Resolver != "9.9.9.9:53" {
		t.Errorf("registrar/delegation not applied: %v/%v/%q", cfg.RegistrarSync, cfg.DelegationCheck, cfg.Resolver)
	}
	if cfg.ServerPort != 9090 {
		t.Errorf("server port not applied: %d", cfg.ServerPort)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: warn
cloudflare:
  api_token: file-token
`)
	t.Setenv("ZONESYNC_LOG_LEVEL", "debug")
	t.Setenv("ZONESYNC_CLOUDFLARE_API_TOKEN", "env-token")
	t.Setenv("ZONESYNC_DRY_RUN", "yes")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("env should win over file, got level %q", cfg.LogLevel)
	}
	if cfg.Cloudflare.APIToken != "env-token" {
		t.Errorf("env should win over file, got token %q", cfg.Cloudflare.APIToken)
	}
	if !cfg.DryRun {
		t.Error("DRY_RUN=yes not applied")
	}
}

func TestLoad_SecretFile(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(secretPath, []byte("  secret-token\n"), 0o600); err != nil {
		t.Fatalf("writing secret: %v", err)
	}
	t.Setenv("ZONESYNC_CLOUDFLARE_API_TOKEN_FILE", secretPath)
	t.Setenv("ZONESYNC_CLOUDFLARE_API_TOKEN", "direct-token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Cloudflare.APIToken != "secret-token" {
		t.Errorf("secret file should win and be trimmed, got %q", cfg.Cloudflare.APIToken)
	}
}

func TestLoad_AggregatesValidationErrors(t *testing.T) {
	t.Setenv("ZONESYNC_LOG_LEVEL", "loud")
	t.Setenv("ZONESYNC_LOG_FORMAT", "xml")
	t.Setenv("ZONESYNC_CONCURRENCY", "0")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected validation errors")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Errors) < 4 {
		t.Errorf("expected at least 4 aggregated errors (level, format, concurrency, provider), got %v", verr.Errors)
	}
	for _, want := range []string{"log level", "log format", "concurrency", "at least one provider"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q: %v", want, err)
		}
	}
}

func TestLoad_SFTPValidation(t *testing.T) {
	t.Setenv("ZONESYNC_CLOUDFLARE_API_TOKEN", "cf-token")
	t.Setenv("ZONESYNC_SOURCE_TYPE", "sftp")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected sftp validation errors")
	}
	for _, want := range []string{"host is required", "user is required", "remote_dir is required", "key_file or password"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q: %v", want, err)
		}
	}

	t.Setenv("ZONESYNC_SFTP_HOST", "sftp.example.com")
	t.Setenv("ZONESYNC_SFTP_USER", "sync")
	t.Setenv("ZONESYNC_SFTP_DIR", "/zones")
	t.Setenv("ZONESYNC_SFTP_KEY_FILE", "/etc/zonesync/key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Source.Host != "sftp.example.com" || cfg.Source.Port != 22 {
		t.Errorf("sftp source not applied: %+v", cfg.Source)
	}
}

func TestLoad_RegistrarRequiresRoute53(t *testing.T) {
	t.Setenv("ZONESYNC_CLOUDFLARE_API_TOKEN", "cf-token")
	t.Setenv("ZONESYNC_REGISTRAR_SYNC", "true")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "registrar sync requires the route53 provider") {
		t.Errorf("expected registrar/route53 coupling error, got: %v", err)
	}
}

func TestLoad_CredentialPairValidation(t *testing.T) {
	t.Setenv("ZONESYNC_AWS_ACCESS_KEY_ID", "AKIA123")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "must be set together") {
		t.Errorf("expected credential pair error, got: %v", err)
	}
}

func TestLoad_UnknownFileField(t *testing.T) {
	path := writeConfigFile(t, "loggging:\n  level: debug\n")

	_, err := Load(path)
	if err == nil {
		t.Error("misspelled config keys should be rejected")
	}
}

func TestInterpolateEnvVars(t *testing.T) {
	t.Setenv("ZONE_DIR", "/srv/zones")

	tests := []struct {
		in   string
		want string
	}{
		{"${ZONE_DIR}", "/srv/zones"},
		{"${ZONE_DIR:-/fallback}", "/srv/zones"},
		{"${UNSET_VAR_12345:-/fallback}", "/fallback"},
		{"${UNSET_VAR_12345}", ""},
		{"prefix-${ZONE_DIR}-suffix", "prefix-/srv/zones-suffix"},
		{"no vars here", "no vars here"},
	}

	for _, tt := range tests {
		if got := InterpolateEnvVars(tt.in); got != tt.want {
			t.Errorf("InterpolateEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_FileInterpolation(t *testing.T) {
	t.Setenv("ZONES_PATH", "/srv/zones")
	path := writeConfigFile(t, `
source:
  type: local
  dir: ${ZONES_PATH:-/etc/zonesync/zones}
cloudflare:
  api_token: ${CF_TOKEN_UNSET_999:-fallback-token}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Source.Dir != "/srv/zones" {
		t.Errorf("interpolation not applied to source dir: %q", cfg.Source.Dir)
	}
	if cfg.Cloudflare.APIToken != "fallback-token" {
		t.Errorf("default not applied to token: %q", cfg.Cloudflare.APIToken)
	}
}

func TestParseBool(t *testing.T) {
	truthy := []string{"true", "TRUE", "1", "yes", "on", " On "}
	for _, s := range truthy {
		if !parseBool(s, false) {
			t.Errorf("parseBool(%q) should be true", s)
		}
	}
	falsy := []string{"false", "0", "no", "OFF"}
	for _, s := range falsy {
		if parseBool(s, true) {
			t.Errorf("parseBool(%q) should be false", s)
		}
	}
	if !parseBool("garbage", true) || parseBool("garbage", false) {
		t.Error("unparseable input should return the default")
	}
}
