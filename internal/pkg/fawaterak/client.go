package fawaterak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNotConfigured is returned when the gateway credentials are missing.
	// Every payment operation fails fast on it instead of calling upstream.
	ErrNotConfigured = errors.New("fawaterak is not configured")

	// ErrInvoiceCreation is returned when the upstream call fails or the
	// response carries no usable redirect URL.
	ErrInvoiceCreation = errors.New("fawaterak invoice creation failed")
)

// Endpoints the checkout widget is known to call. CreateInvoice accepts either;
// anything else falls back to EndpointCreateInvoiceLink.
const (
	EndpointCreateInvoiceLink = "/createInvoiceLink"
	EndpointInvoiceInitPay    = "/invoiceInitPay"
)

// Config holds Fawaterak API configuration
type Config struct {
	BaseURL     string // e.g. https://staging.fawaterk.com/api/v2
	APIKey      string
	ProviderKey string
	Timeout     time.Duration
}

// Client talks to the Fawaterak invoice API
type Client struct {
	httpClient *http.Client
	config     Config
}

// InvoiceResult is the normalized outcome of an invoice-creation call.
// Raw keeps the gateway's own response so handlers can pass it through
// unchanged to the checkout widget.
type InvoiceResult struct {
	InvoiceKey string
	InvoiceURL string
	Raw        map[string]interface{}
}

// NewClient creates a Fawaterak API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
	}
}

// Configured reports whether the client has the credentials it needs.
func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.config.APIKey) != "" && strings.TrimSpace(c.config.BaseURL) != ""
}

// APIKey exposes the shared key for webhook signature verification.
func (c *Client) APIKey() string { return c.config.APIKey }

// ProviderKey exposes the provider key for plugin hash generation.
func (c *Client) ProviderKey() string { return c.config.ProviderKey }

// CreateInvoice posts an invoice payload to the gateway and normalizes the
// response. The payload is forwarded verbatim: the widget builds it and the
// gateway validates it, so the client does not re-model its fields.
func (c *Client) CreateInvoice(ctx context.Context, endpoint string, payload json.RawMessage) (*InvoiceResult, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if endpoint != EndpointInvoiceInitPay {
		endpoint = EndpointCreateInvoiceLink
	}

	body, status, err := c.post(ctx, endpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvoiceCreation, err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: upstream status %d, body: %s", ErrInvoiceCreation, status, truncate(body, 500))
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrInvoiceCreation, err)
	}

	result := &InvoiceResult{
		InvoiceKey: extractString(raw, invoiceKeyPaths),
		InvoiceURL: extractString(raw, invoiceURLPaths),
		Raw:        raw,
	}
	if result.InvoiceURL == "" {
		return nil, fmt.Errorf("%w: no invoice URL in response", ErrInvoiceCreation)
	}
	return result, nil
}

// GetPaymentMethods fetches the methods the merchant account may charge with.
func (c *Client) GetPaymentMethods(ctx context.Context) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/getPaymentmethods"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fawaterak api call failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fawaterak api call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fawaterak api call failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fawaterak api returned non-2xx status: %d, body: %s", resp.StatusCode, truncate(body, 500))
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload []byte) ([]byte, int, error) {
	url := strings.TrimRight(c.config.BaseURL, "/") + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func truncate(b []byte, max int) string {
	if len(b) > max {
		return string(b[:max]) + "...<truncated>"
	}
	return string(b)
}
