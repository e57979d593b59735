// Package config handles loading and validation of zonesync configuration
// from a YAML file and ZONESYNC_* environment variables. Environment
// variables always override file values; secrets additionally support the
// _FILE suffix for Docker secrets.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Configuration defaults.
const (
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultReconcileInterval = 5 * time.Minute
	DefaultConcurrency       = 4
	DefaultServerPort        = 8080
	DefaultSourceType        = "local"
	DefaultSourceDir         = "/etc/zonesync/zones"
	DefaultSFTPPort          = 22
	DefaultSFTPTimeout       = 30 * time.Second
	DefaultAWSRegion         = "us-east-1"
	DefaultResolver          = "1.1.1.1:53"
)

// Config is the complete runtime configuration.
type Config struct {
	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// Reconciler behavior
	DryRun            bool
	ReconcileInterval time.Duration
	Concurrency       int

	// Zone document source
	Source SourceConfig

	// Provider credentials; a nil section disables that provider.
	Route53    *Route53Config
	Cloudflare *CloudflareConfig

	// Registrar delegation sync (route53domains).
	RegistrarSync bool

	// Delegation probing (advisory NS checks against public DNS).
	DelegationCheck bool
	Resolver        string

	// Health/metrics server
	ServerPort int
}

// SourceConfig selects where zone documents are read from.
type SourceConfig struct {
	Type string // local, sftp

	// Local source
	Dir string

	// SFTP source
	Host           string
	Port           int
	User           string
	RemoteDir      string
	KeyFile        string
	Password       string
	KnownHostsFile string
	Timeout        time.Duration
}

// Route53Config holds AWS credentials and settings. Empty AccessKeyID means
// the AWS SDK default credential chain is used.
type Route53Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// CloudflareConfig holds cloudflare API credentials. AccountID is required
// when tunnel ingress configuration is in use.
type CloudflareConfig struct {
	APIToken  string
	AccountID string
	APIURL    string // override for testing, empty means the public API
}

// ValidationError aggregates every configuration problem found during load
// so operators can fix them in one pass.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration error: %s", e.Errors[0])
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Load builds the runtime configuration: file values first (when path is
// non-empty), then environment overrides, then validation. It fails fast,
// returning a ValidationError listing every problem.
func Load(path string) (*Config, error) {
	cfg := defaults()

	var errs []string
	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, &ValidationError{Errors: []string{"config file: " + err.Error()}}
		}
		errs = append(errs, fileCfg.apply(cfg)...)
	}

	errs = append(errs, applyEnv(cfg)...)
	errs = append(errs, validate(cfg)...)

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		LogLevel:          DefaultLogLevel,
		LogFormat:         DefaultLogFormat,
		ReconcileInterval: DefaultReconcileInterval,
		Concurrency:       DefaultConcurrency,
		ServerPort:        DefaultServerPort,
		Resolver:          DefaultResolver,
		Source: SourceConfig{
			Type:    DefaultSourceType,
			Dir:     DefaultSourceDir,
			Port:    DefaultSFTPPort,
			Timeout: DefaultSFTPTimeout,
		},
	}
}

func validate(cfg *Config) []string {
	var errs []string

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log level: invalid value %q (must be debug, info, warn, or error)", cfg.LogLevel))
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log format: invalid value %q (must be json or text)", cfg.LogFormat))
	}

	if cfg.ReconcileInterval < time.Second {
		errs = append(errs, "reconcile interval: must be at least 1s")
	}
	if cfg.Concurrency < 1 {
		errs = append(errs, "concurrency: must be at least 1")
	}
	if cfg.ServerPort < 1 || cfg.ServerPort > 65535 {
		errs = append(errs, fmt.Sprintf("server port: must be between 1 and 65535, got %d", cfg.ServerPort))
	}

	switch cfg.Source.Type {
	case "local":
		if cfg.Source.Dir == "" {
			errs = append(errs, "source: dir is required for the local source")
		}
	case "sftp":
		if cfg.Source.Host == "" {
			errs = append(errs, "source: host is required for the sftp source")
		}
		if cfg.Source.User == "" {
			errs = append(errs, "source: user is required for the sftp source")
		}
		if cfg.Source.RemoteDir == "" {
			errs = append(errs, "source: remote_dir is required for the sftp source")
		}
		if cfg.Source.KeyFile == "" && cfg.Source.Password == "" {
			errs = append(errs, "source: sftp requires key_file or password")
		}
		if cfg.Source.Port < 1 || cfg.Source.Port > 65535 {
			errs = append(errs, fmt.Sprintf("source: invalid sftp port %d", cfg.Source.Port))
		}
	default:
		errs = append(errs, fmt.Sprintf("source: unknown type %q (must be local or sftp)", cfg.Source.Type))
	}

	if cfg.Cloudflare != nil && cfg.Cloudflare.APIToken == "" {
		errs = append(errs, "cloudflare: api_token is required")
	}
	if cfg.Route53 != nil {
		if cfg.Route53.Region == "" {
			cfg.Route53.Region = DefaultAWSRegion
		}
		if (cfg.Route53.AccessKeyID == "") != (cfg.Route53.SecretAccessKey == "") {
			errs = append(errs, "route53: access_key_id and secret_access_key must be set together")
		}
	}
	if cfg.RegistrarSync && cfg.Route53 == nil {
		errs = append(errs, "registrar sync requires the route53 provider to be configured")
	}
	if cfg.Route53 == nil && cfg.Cloudflare == nil {
		errs = append(errs, "at least one provider (route53 or cloudflare) must be configured")
	}

	return errs
}
