// Package httputil provides the shared HTTP client used by zonesync API
// clients.
package httputil

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies zonesync to provider APIs.
	DefaultUserAgent = "zonesync/1.0"
)

// ClientConfig contains configuration for creating an HTTP client.
type ClientConfig struct {
	// Timeout is the HTTP client timeout. Defaults to 30 seconds.
	Timeout time.Duration

	// UserAgent overrides the User-Agent header. Defaults to
	// DefaultUserAgent.
	UserAgent string

	// Logger enables debug logging of requests and responses.
	Logger *slog.Logger
}

// userAgentTransport sets the User-Agent header and optionally logs each
// exchange at debug level.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
	logger    *slog.Logger
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	if t.logger != nil {
		t.logger.Debug("HTTP request",
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()))
	}

	resp, err := t.base.RoundTrip(req)

	if t.logger != nil && resp != nil {
		t.logger.Debug("HTTP response",
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()),
			slog.Int("status", resp.StatusCode))
	}

	return resp, err
}

// NewClient creates an HTTP client with the specified configuration. A nil
// cfg uses defaults.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &userAgentTransport{
			base:      http.DefaultTransport,
			userAgent: userAgent,
			logger:    cfg.Logger,
		},
	}
}

// DefaultClient returns a new HTTP client with default settings.
func DefaultClient() *http.Client {
	return NewClient(nil)
}
