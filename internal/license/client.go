package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Default network budgets. Both are finite so a hanging server always
// collapses to the offline outcome instead of stalling the host.
const (
	defaultConnectTimeout = 5 * time.Second
	defaultRequestTimeout = 15 * time.Second
)

// StatusResponse is the authority's connectivity handshake.
type StatusResponse struct {
	ServerTime            time.Time `json:"serverTime"`
	OfflineToleranceHours int       `json:"offlineToleranceHours"`
}

// ActivateRequest is the activation payload sent to the authority.
type ActivateRequest struct {
	LicenseKey string `json:"licenseKey"`
	HardwareID string `json:"hardwareId"`
	DeviceName string `json:"deviceName,omitempty"`
}

// ActivateResponse is the authority's answer to an activation attempt.
type ActivateResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	License *LicenseDetails `json:"license,omitempty"`
}

// LicenseDetails carries server-side license metadata returned on
// activation.
type LicenseDetails struct {
	ActivationID string     `json:"activationId"`
	ProductCode  string     `json:"productCode"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// ValidateResponse is the authority's verdict for a hardware ID.
type ValidateResponse struct {
	Valid                 bool      `json:"valid"`
	Activated             bool      `json:"activated"`
	Revoked               bool      `json:"revoked"`
	Reason                string    `json:"reason,omitempty"`
	OfflineToleranceHours int       `json:"offlineToleranceHours"`
	ServerTime            time.Time `json:"serverTime"`
}

// serverError is the authority's structured error body.
type serverError struct {
	Message string `json:"message"`
}

// Client talks to the remote license authority. Connection refusals,
// DNS failures and timeouts all collapse to ErrServerOffline; callers
// only ever distinguish reachable from not reachable.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom http.Client, mainly for tests.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithTimeouts overrides the connect and total-request timeouts.
func WithTimeouts(connect, total time.Duration) ClientOption {
	return func(c *Client) {
		c.http = &http.Client{
			Timeout: total,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connect}).DialContext,
			},
		}
	}
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL: baseURL,
		logger:  logger.With(slog.String("component", "license_client")),
		http: &http.Client{
			Timeout: defaultRequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: defaultConnectTimeout}).DialContext,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckConnection probes the authority and returns its clock and the
// offline tolerance it grants.
func (c *Client) CheckConnection(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/license/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Activate asks the authority to bind the key to the hardware ID.
func (c *Client) Activate(ctx context.Context, key, hardwareID, deviceName string) (*ActivateResponse, error) {
	req := ActivateRequest{
		LicenseKey: key,
		HardwareID: hardwareID,
		DeviceName: deviceName,
	}
	var resp ActivateResponse
	if err := c.do(ctx, http.MethodPost, "/api/license/activate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Validate fetches a fresh verdict for the hardware ID.
func (c *Client) Validate(ctx context.Context, hardwareID string) (*ValidateResponse, error) {
	path := "/api/license/validate/" + url.PathEscape(hardwareID)
	var resp ValidateResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("license server unreachable",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %s %s", ErrServerOffline, method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		var srvErr serverError
		if json.Unmarshal(b, &srvErr) == nil && srvErr.Message != "" {
			return fmt.Errorf("%w: %s", ErrServerRejected, srvErr.Message)
		}
		return fmt.Errorf("%w: HTTP %d", ErrServerRejected, resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
