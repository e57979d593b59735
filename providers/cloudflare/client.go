// Package cloudflare implements the zonesync provider interface for
// Cloudflare DNS, including tunnel ingress configuration.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/clearskydns/zonesync/pkg/httputil"
	"github.com/clearskydns/zonesync/pkg/provider"
)

// DefaultAPIEndpoint is the base URL for Cloudflare API v4.
const DefaultAPIEndpoint = "https://api.cloudflare.com/client/v4"

// recordsPerPage is the page size used when listing DNS records.
const recordsPerPage = 100

// apiError represents an error from the Cloudflare API.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// resultInfo carries pagination state in list responses.
type resultInfo struct {
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
}

// apiResponse is the standard Cloudflare API response wrapper.
type apiResponse struct {
	Success    bool            `json:"success"`
	Errors     []apiError      `json:"errors"`
	Result     json.RawMessage `json:"result"`
	ResultInfo *resultInfo     `json:"result_info,omitempty"`
}

// zoneResult represents a zone from the Cloudflare API.
type zoneResult struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	NameServers []string `json:"name_servers"`
}

// dnsRecord represents a DNS record from the Cloudflare API.
type dnsRecord struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	TTL      int    `json:"ttl"`
	Proxied  bool   `json:"proxied"`
	Priority *int   `json:"priority,omitempty"`
}

// recordRequest is the request body for creating or replacing a DNS record.
type recordRequest struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	TTL      int    `json:"ttl"`
	Proxied  bool   `json:"proxied"`
	Priority *int   `json:"priority,omitempty"`
}

// ingressRule is one routing rule in a tunnel configuration.
type ingressRule struct {
	Hostname string `json:"hostname,omitempty"`
	Service  string `json:"service"`
}

// tunnelConfigRequest replaces a tunnel's remote configuration.
type tunnelConfigRequest struct {
	Config struct {
		Ingress []ingressRule `json:"ingress"`
	} `json:"config"`
}

// createZoneRequest creates a zone under an account.
type createZoneRequest struct {
	Name    string `json:"name"`
	Account struct {
		ID string `json:"id"`
	} `json:"account"`
}

// Client is a Cloudflare API client.
type Client struct {
	apiEndpoint string
	token       string
	httpClient  *http.Client
	logger      *slog.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClientLogger sets a custom logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAPIEndpoint sets a custom API endpoint (useful for testing).
func WithAPIEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		if endpoint != "" {
			c.apiEndpoint = endpoint
		}
	}
}

// NewClient creates a new Cloudflare API client.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		apiEndpoint: DefaultAPIEndpoint,
		token:       token,
		httpClient:  httputil.DefaultClient(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// doRequest performs one API request and classifies failures: rate limits
// and server errors are transient, auth failures and rejected payloads map
// to the engine's sentinel errors so retry logic can tell them apart.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*apiResponse, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiEndpoint+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w: %w", provider.ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.classifyError(resp.StatusCode, respBody)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parsing response JSON: %w", err)
	}
	if !apiResp.Success {
		if len(apiResp.Errors) > 0 {
			return nil, fmt.Errorf("API error: %s (code: %d)", apiResp.Errors[0].Message, apiResp.Errors[0].Code)
		}
		return nil, fmt.Errorf("API request failed with unknown error")
	}
	return &apiResp, nil
}

func (c *Client) classifyError(status int, body []byte) error {
	detail := fmt.Sprintf("status %d", status)
	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err == nil && len(apiResp.Errors) > 0 {
		detail = fmt.Sprintf("%s (code: %d, status %d)", apiResp.Errors[0].Message, apiResp.Errors[0].Code, status)
	}

	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("API error: %s: %w", detail, provider.ErrTransient)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("API error: %s: %w", detail, provider.ErrUnauthorized)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("API error: %s: %w", detail, provider.ErrValidation)
	default:
		return fmt.Errorf("API error: %s", detail)
	}
}

// VerifyToken checks the API token via the lightweight verify endpoint.
func (c *Client) VerifyToken(ctx context.Context) error {
	if _, err := c.doRequest(ctx, http.MethodGet, "/user/tokens/verify", nil); err != nil {
		return fmt.Errorf("verifying token: %w", err)
	}
	return nil
}

// FindZone looks up a zone by exact name. Returns nil when absent.
func (c *Client) FindZone(ctx context.Context, zoneName string) (*zoneResult, error) {
	params := url.Values{}
	params.Set("name", zoneName)

	resp, err := c.doRequest(ctx, http.MethodGet, "/zones?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("looking up zone %s: %w", zoneName, err)
	}

	var zones []zoneResult
	if err := json.Unmarshal(resp.Result, &zones); err != nil {
		return nil, fmt.Errorf("parsing zones response: %w", err)
	}
	if len(zones) == 0 {
		return nil, nil
	}
	return &zones[0], nil
}

// CreateZone creates a zone under the given account.
func (c *Client) CreateZone(ctx context.Context, accountID, zoneName string) (*zoneResult, error) {
	req := createZoneRequest{Name: zoneName}
	req.Account.ID = accountID

	resp, err := c.doRequest(ctx, http.MethodPost, "/zones", req)
	if err != nil {
		return nil, fmt.Errorf("creating zone %s: %w", zoneName, err)
	}

	var created zoneResult
	if err := json.Unmarshal(resp.Result, &created); err != nil {
		return nil, fmt.Errorf("parsing zone response: %w", err)
	}

	c.logger.Info("created zone",
		slog.String("zone", zoneName),
		slog.String("zone_id", created.ID))
	return &created, nil
}

// ListRecords returns every DNS record in the zone, following pagination.
func (c *Client) ListRecords(ctx context.Context, zoneID string) ([]dnsRecord, error) {
	var all []dnsRecord
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("per_page", strconv.Itoa(recordsPerPage))
		params.Set("page", strconv.Itoa(page))

		path := fmt.Sprintf("/zones/%s/dns_records?%s", zoneID, params.Encode())
		resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, fmt.Errorf("listing records: %w", err)
		}

		var records []dnsRecord
		if err := json.Unmarshal(resp.Result, &records); err != nil {
			return nil, fmt.Errorf("parsing records response: %w", err)
		}
		all = append(all, records...)

		if resp.ResultInfo == nil || resp.ResultInfo.Page >= resp.ResultInfo.TotalPages {
			break
		}
	}

	c.logger.Debug("listed records",
		slog.String("zone_id", zoneID),
		slog.Int("count", len(all)))
	return all, nil
}

// CreateRecord creates a DNS record and returns its ID.
func (c *Client) CreateRecord(ctx context.Context, zoneID string, req recordRequest) (string, error) {
	path := fmt.Sprintf("/zones/%s/dns_records", zoneID)
	resp, err := c.doRequest(ctx, http.MethodPost, path, req)
	if err != nil {
		return "", fmt.Errorf("creating record: %w", err)
	}

	var created dnsRecord
	if err := json.Unmarshal(resp.Result, &created); err != nil {
		return "", fmt.Errorf("parsing record response: %w", err)
	}
	return created.ID, nil
}

// ReplaceRecord fully replaces a record's content by ID.
func (c *Client) ReplaceRecord(ctx context.Context, zoneID, recordID string, req recordRequest) error {
	path := fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, recordID)
	if _, err := c.doRequest(ctx, http.MethodPut, path, req); err != nil {
		return fmt.Errorf("replacing record: %w", err)
	}
	return nil
}

// DeleteRecord deletes a DNS record by ID.
func (c *Client) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	path := fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, recordID)
	if _, err := c.doRequest(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// PutTunnelConfig replaces a tunnel's remote ingress configuration.
func (c *Client) PutTunnelConfig(ctx context.Context, accountID, tunnelID string, rules []ingressRule) error {
	var req tunnelConfigRequest
	req.Config.Ingress = rules

	path := fmt.Sprintf("/accounts/%s/cfd_tunnel/%s/configurations", accountID, tunnelID)
	if _, err := c.doRequest(ctx, http.MethodPut, path, req); err != nil {
		return fmt.Errorf("configuring tunnel %s: %w", tunnelID, err)
	}

	c.logger.Info("applied tunnel configuration",
		slog.String("tunnel_id", tunnelID),
		slog.Int("rules", len(rules)))
	return nil
}
