package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML configuration file structure. Pointer fields
// distinguish unset from zero so environment overrides and defaults compose
// correctly.
type FileConfig struct {
	Logging    *FileLoggingConfig    `yaml:"logging,omitempty"`
	Reconciler *FileReconcilerConfig `yaml:"reconciler,omitempty"`
	Source     *FileSourceConfig     `yaml:"source,omitempty"`
	Route53    *FileRoute53Config    `yaml:"route53,omitempty"`
	Cloudflare *FileCloudflareConfig `yaml:"cloudflare,omitempty"`
	Registrar  *FileRegistrarConfig  `yaml:"registrar,omitempty"`
	Delegation *FileDelegationConfig `yaml:"delegation,omitempty"`
	Server     *FileServerConfig     `yaml:"server,omitempty"`
}

// FileLoggingConfig holds logging settings.
type FileLoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // json, text
}

// FileReconcilerConfig holds reconciliation settings.
type FileReconcilerConfig struct {
	Interval    string `yaml:"interval,omitempty"` // Go duration format ("5m", "90s")
	DryRun      *bool  `yaml:"dry_run,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
}

// FileSourceConfig selects the zone document source.
type FileSourceConfig struct {
	Type string `yaml:"type,omitempty"` // local, sftp
	Dir  string `yaml:"dir,omitempty"`

	Host           string `yaml:"host,omitempty"`
	Port           int    `yaml:"port,omitempty"`
	User           string `yaml:"user,omitempty"`
	RemoteDir      string `yaml:"remote_dir,omitempty"`
	KeyFile        string `yaml:"key_file,omitempty"`
	Password       string `yaml:"password,omitempty"`
	KnownHostsFile string `yaml:"known_hosts_file,omitempty"`
	Timeout        string `yaml:"timeout,omitempty"`
}

// FileRoute53Config holds AWS settings.
type FileRoute53Config struct {
	Region          string `yaml:"region,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// FileCloudflareConfig holds cloudflare settings.
type FileCloudflareConfig struct {
	APIToken  string `yaml:"api_token,omitempty"`
	AccountID string `yaml:"account_id,omitempty"`
	APIURL    string `yaml:"api_url,omitempty"`
}

// FileRegistrarConfig holds registrar sync settings.
type FileRegistrarConfig struct {
	Sync *bool `yaml:"sync,omitempty"`
}

// FileDelegationConfig holds delegation probe settings.
type FileDelegationConfig struct {
	Check    *bool  `yaml:"check,omitempty"`
	Resolver string `yaml:"resolver,omitempty"`
}

// FileServerConfig holds health/metrics server settings.
type FileServerConfig struct {
	Port int `yaml:"port,omitempty"`
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable
// values, supporting ${VAR:-default} for defaults.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 3 {
			defaultValue = groups[2]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// LoadFile reads and parses the YAML config file, interpolating ${VAR}
// references in string fields.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg FileConfig
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.interpolateEnvVars()
	return &cfg, nil
}

func (c *FileConfig) interpolateEnvVars() {
	if c.Logging != nil {
		c.Logging.Level = InterpolateEnvVars(c.Logging.Level)
		c.Logging.Format = InterpolateEnvVars(c.Logging.Format)
	}
	if c.Reconciler != nil {
		c.Reconciler.Interval = InterpolateEnvVars(c.Reconciler.Interval)
	}
	if c.Source != nil {
		c.Source.Dir = InterpolateEnvVars(c.Source.Dir)
		c.Source.Host = InterpolateEnvVars(c.Source.Host)
		c.Source.User = InterpolateEnvVars(c.Source.User)
		c.Source.RemoteDir = InterpolateEnvVars(c.Source.RemoteDir)
		c.Source.KeyFile = InterpolateEnvVars(c.Source.KeyFile)
		c.Source.Password = InterpolateEnvVars(c.Source.Password)
		c.Source.KnownHostsFile = InterpolateEnvVars(c.Source.KnownHostsFile)
	}
	if c.Route53 != nil {
		c.Route53.Region = InterpolateEnvVars(c.Route53.Region)
		c.Route53.AccessKeyID = InterpolateEnvVars(c.Route53.AccessKeyID)
		c.Route53.SecretAccessKey = InterpolateEnvVars(c.Route53.SecretAccessKey)
	}
	if c.Cloudflare != nil {
		c.Cloudflare.APIToken = InterpolateEnvVars(c.Cloudflare.APIToken)
		c.Cloudflare.AccountID = InterpolateEnvVars(c.Cloudflare.AccountID)
		c.Cloudflare.APIURL = InterpolateEnvVars(c.Cloudflare.APIURL)
	}
	if c.Delegation != nil {
		c.Delegation.Resolver = InterpolateEnvVars(c.Delegation.Resolver)
	}
}

// apply merges file values into the runtime config, returning any
// conversion errors.
func (c *FileConfig) apply(cfg *Config) []string {
	var errs []string

	if c.Logging != nil {
		if c.Logging.Level != "" {
			cfg.LogLevel = strings.ToLower(c.Logging.Level)
		}
		if c.Logging.Format != "" {
			cfg.LogFormat = strings.ToLower(c.Logging.Format)
		}
	}

	if c.Reconciler != nil {
		if c.Reconciler.Interval != "" {
			d, err := time.ParseDuration(c.Reconciler.Interval)
			if err != nil {
				errs = append(errs, fmt.Sprintf("reconciler.interval: invalid duration %q", c.Reconciler.Interval))
			} else {
				cfg.ReconcileInterval = d
			}
		}
		if c.Reconciler.DryRun != nil {
			cfg.DryRun = *c.Reconciler.DryRun
		}
		if c.Reconciler.Concurrency > 0 {
			cfg.Concurrency = c.Reconciler.Concurrency
		}
	}

	if c.Source != nil {
		if c.Source.Type != "" {
			cfg.Source.Type = strings.ToLower(c.Source.Type)
		}
		if c.Source.Dir != "" {
			cfg.Source.Dir = c.Source.Dir
		}
		if c.Source.Host != "" {
			cfg.Source.Host = c.Source.Host
		}
		if c.Source.Port > 0 {
			cfg.Source.Port = c.Source.Port
		}
		if c.Source.User != "" {
			cfg.Source.User = c.Source.User
		}
		if c.Source.RemoteDir != "" {
			cfg.Source.RemoteDir = c.Source.RemoteDir
		}
		if c.Source.KeyFile != "" {
			cfg.Source.KeyFile = c.Source.KeyFile
		}
		if c.Source.Password != "" {
			cfg.Source.Password = c.Source.Password
		}
		if c.Source.KnownHostsFile != "" {
			cfg.Source.KnownHostsFile = c.Source.KnownHostsFile
		}
		if c.Source.Timeout != "" {
			d, err := time.ParseDuration(c.Source.Timeout)
			if err != nil {
				errs = append(errs, fmt.Sprintf("source.timeout: invalid duration %q", c.Source.Timeout))
			} else {
				cfg.Source.Timeout = d
			}
		}
	}

	if c.Route53 != nil {
		cfg.Route53 = &Route53Config{
			Region:          c.Route53.Region,
			AccessKeyID:     c.Route53.AccessKeyID,
			SecretAccessKey: c.Route53.SecretAccessKey,
		}
	}
	if c.Cloudflare != nil {
		cfg.Cloudflare = &CloudflareConfig{
			APIToken:  c.Cloudflare.APIToken,
			AccountID: c.Cloudflare.AccountID,
			APIURL:    c.Cloudflare.APIURL,
		}
	}
	if c.Registrar != nil && c.Registrar.Sync != nil {
		cfg.RegistrarSync = *c.Registrar.Sync
	}
	if c.Delegation != nil {
		if c.Delegation.Check != nil {
			cfg.DelegationCheck = *c.Delegation.Check
		}
		if c.Delegation.Resolver != "" {
			cfg.Resolver = c.Delegation.Resolver
		}
	}
	if c.Server != nil && c.Server.Port > 0 {
		cfg.ServerPort = c.Server.Port
	}

	return errs
}
