package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is the prefix for all zonesync environment variables.
const EnvPrefix = "ZONESYNC_"

func getEnv(key string) string {
	return os.Getenv(EnvPrefix + key)
}

// getEnvOrFile retrieves a secret from either KEY or KEY_FILE (Docker
// secrets pattern). The file takes precedence; its contents are trimmed.
func getEnvOrFile(key string) string {
	if filePath := os.Getenv(EnvPrefix + key + "_FILE"); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
		// Unreadable secret file falls through to the direct value.
	}
	return os.Getenv(EnvPrefix + key)
}

// parseBool parses a boolean string, returning defaultValue on failure.
// Accepts true/false, 1/0, yes/no, on/off (case-insensitive).
func parseBool(s string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// applyEnv overlays ZONESYNC_* environment variables onto cfg. Env vars win
// over file values.
func applyEnv(cfg *Config) []string {
	var errs []string

	if v := getEnv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getEnv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v := getEnv("DRY_RUN"); v != "" {
		cfg.DryRun = parseBool(v, cfg.DryRun)
	}
	if v := getEnv("RECONCILE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ZONESYNC_RECONCILE_INTERVAL: invalid duration %q (use format like 90s, 5m)", v))
		} else {
			cfg.ReconcileInterval = d
		}
	}
	if v := getEnv("CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ZONESYNC_CONCURRENCY: invalid integer %q", v))
		} else {
			cfg.Concurrency = n
		}
	}
	if v := getEnv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ZONESYNC_SERVER_PORT: invalid integer %q", v))
		} else {
			cfg.ServerPort = port
		}
	}

	errs = append(errs, applySourceEnv(cfg)...)
	applyProviderEnv(cfg)

	if v := getEnv("REGISTRAR_SYNC"); v != "" {
		cfg.RegistrarSync = parseBool(v, cfg.RegistrarSync)
	}
	if v := getEnv("DELEGATION_CHECK"); v != "" {
		cfg.DelegationCheck = parseBool(v, cfg.DelegationCheck)
	}
	if v := getEnv("RESOLVER"); v != "" {
		cfg.Resolver = v
	}

	return errs
}

func applySourceEnv(cfg *Config) []string {
	var errs []string

	if v := getEnv("SOURCE_TYPE"); v != "" {
		cfg.Source.Type = strings.ToLower(v)
	}
	if v := getEnv("SOURCE_DIR"); v != "" {
		cfg.Source.Dir = v
	}
	if v := getEnv("SFTP_HOST"); v != "" {
		cfg.Source.Host = v
	}
	if v := getEnv("SFTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ZONESYNC_SFTP_PORT: invalid integer %q", v))
		} else {
			cfg.Source.Port = port
		}
	}
	if v := getEnv("SFTP_USER"); v != "" {
		cfg.Source.User = v
	}
	if v := getEnv("SFTP_DIR"); v != "" {
		cfg.Source.RemoteDir = v
	}
	if v := getEnv("SFTP_KEY_FILE"); v != "" {
		cfg.Source.KeyFile = v
	}
	if v := getEnvOrFile("SFTP_PASSWORD"); v != "" {
		cfg.Source.Password = v
	}
	if v := getEnv("SFTP_KNOWN_HOSTS_FILE"); v != "" {
		cfg.Source.KnownHostsFile = v
	}

	return errs
}

// applyProviderEnv overlays provider credentials. Setting a credential via
// env enables the provider even without a file section.
func applyProviderEnv(cfg *Config) {
	region := getEnv("AWS_REGION")
	accessKey := getEnvOrFile("AWS_ACCESS_KEY_ID")
	secretKey := getEnvOrFile("AWS_SECRET_ACCESS_KEY")
	route53 := getEnv("ROUTE53_ENABLED")
	if region != "" || accessKey != "" || secretKey != "" || parseBool(route53, false) {
		if cfg.Route53 == nil {
			cfg.Route53 = &Route53Config{}
		}
		if region != "" {
			cfg.Route53.Region = region
		}
		if accessKey != "" {
			cfg.Route53.AccessKeyID = accessKey
		}
		if secretKey != "" {
			cfg.Route53.SecretAccessKey = secretKey
		}
	}

	token := getEnvOrFile("CLOUDFLARE_API_TOKEN")
	account := getEnv("CLOUDFLARE_ACCOUNT_ID")
	apiURL := getEnv("CLOUDFLARE_API_URL")
	if token != "" || account != "" {
		if cfg.Cloudflare == nil {
			cfg.Cloudflare = &CloudflareConfig{}
		}
		if token != "" {
			cfg.Cloudflare.APIToken = token
		}
		if account != "" {
			cfg.Cloudflare.AccountID = account
		}
		if apiURL != "" {
			cfg.Cloudflare.APIURL = apiURL
		}
	}
}
