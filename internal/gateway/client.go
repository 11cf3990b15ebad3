// Package gateway wraps the external WhatsApp automation gateway's REST
// API. One method per endpoint, apikey header on every request, fixed
// timeout, no retries: retry policy belongs to callers.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config holds the gateway connection settings. Injected explicitly so no
// package-level state is consulted at request time.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is an HTTP client for the WhatsApp gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// APIError carries the HTTP status and body of a failed gateway call plus
// enough context to log it.
type APIError struct {
	Operation  string
	Instance   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway %s failed for instance %q: status %d: %s", e.Operation, e.Instance, e.StatusCode, e.Body)
}

// NewClient creates a gateway client. A missing API key is a configuration
// error and fails here rather than on the first unauthenticated request.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway: base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("gateway: API key is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (c *Client) do(ctx context.Context, operation, method, path, instance string, query url.Values, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("gateway %s: failed to marshal request: %w", operation, err)
		}
		body = bytes.NewReader(data)
	}

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return fmt.Errorf("gateway %s: failed to create request: %w", operation, err)
	}
	req.Header.Set("apikey", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s failed for instance %q: %w", operation, instance, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gateway %s: failed to read response: %w", operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Operation:  operation,
			Instance:   instance,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("gateway %s: failed to decode response: %w", operation, err)
		}
	}
	return nil
}

// InstanceState is the gateway-reported state of one instance.
type InstanceState struct {
	InstanceName string `json:"instanceName"`
	State        string `json:"state"`
}

// ConnectionStateResponse wraps the connectionState endpoint response.
// Some gateway versions include a fresh QR payload while pairing.
type ConnectionStateResponse struct {
	Instance InstanceState `json:"instance"`
	QRCode   *QRCode       `json:"qrcode,omitempty"`
}

// QRCode is the pairing payload returned by create/connect calls. Base64
// may be a bare base64 string or a full data URI depending on the gateway
// version.
type QRCode struct {
	Code   string `json:"code,omitempty"`
	Base64 string `json:"base64,omitempty"`
}

// CreateInstanceResponse is the create endpoint response.
type CreateInstanceResponse struct {
	Instance InstanceState `json:"instance"`
	QRCode   *QRCode       `json:"qrcode,omitempty"`
}

// FetchedInstance is one entry of the fetchInstances listing.
type FetchedInstance struct {
	Instance struct {
		InstanceName     string `json:"instanceName"`
		ConnectionStatus string `json:"connectionStatus"`
	} `json:"instance"`
}

// CreateInstance creates a gateway-side instance for the given name.
func (c *Client) CreateInstance(ctx context.Context, instance string) (*CreateInstanceResponse, error) {
	payload := map[string]interface{}{
		"instanceName": instance,
		"qrcode":       true,
	}
	var out CreateInstanceResponse
	if err := c.do(ctx, "create instance", http.MethodPost, "/instance/create", instance, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConnectInstance starts pairing and returns a fresh QR payload.
func (c *Client) ConnectInstance(ctx context.Context, instance string) (*QRCode, error) {
	var out QRCode
	if err := c.do(ctx, "connect instance", http.MethodGet, "/instance/connect/"+url.PathEscape(instance), instance, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConnectionState fetches the instance's current connection state.
func (c *Client) ConnectionState(ctx context.Context, instance string) (*ConnectionStateResponse, error) {
	var out ConnectionStateResponse
	if err := c.do(ctx, "connection state", http.MethodGet, "/instance/connectionState/"+url.PathEscape(instance), instance, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchInstances lists instances, optionally filtered by name.
func (c *Client) FetchInstances(ctx context.Context, instance string) ([]FetchedInstance, error) {
	query := url.Values{}
	if instance != "" {
		query.Set("instanceName", instance)
	}
	var out []FetchedInstance
	if err := c.do(ctx, "fetch instances", http.MethodGet, "/instance/fetchInstances", instance, query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteInstance removes the gateway-side instance.
func (c *Client) DeleteInstance(ctx context.Context, instance string) error {
	return c.do(ctx, "delete instance", http.MethodDelete, "/instance/delete/"+url.PathEscape(instance), instance, nil, nil, nil)
}

// LogoutInstance logs the instance out of WhatsApp without deleting it.
func (c *Client) LogoutInstance(ctx context.Context, instance string) error {
	return c.do(ctx, "logout instance", http.MethodDelete, "/instance/logout/"+url.PathEscape(instance), instance, nil, nil, nil)
}
