package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/profclems/catchhook/protocol"
)

// ErrNotFound is returned when the capture server has no request with the given id
var ErrNotFound = errors.New("request not found")

// StatusError is returned for any non-2xx response from the capture server
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %s: %s", e.Status, e.Body)
	}
	return "HTTP " + e.Status
}

// Unwrap lets errors.Is(err, ErrNotFound) match 404 responses
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// TLSConfig holds the TLS options for talking to an HTTPS capture server
type TLSConfig struct {
	InsecureSkip bool   // Skip server certificate verification
	CertFile     string // Client certificate file (for mTLS)
	KeyFile      string // Client key file (for mTLS)
	CAFile       string // CA certificate for server verification
}

func (t TLSConfig) enabled() bool {
	return t.InsecureSkip || t.CertFile != "" || t.CAFile != ""
}

// build creates a TLS configuration for connecting to the capture server
func (t TLSConfig) build() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.InsecureSkip,
	}

	// Load client certificate if provided (for mTLS)
	if t.CertFile != "" && t.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if t.CAFile != "" {
		caCert, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caPool
	}

	return tlsConfig, nil
}

// APIConfig configures an API client
type APIConfig struct {
	BaseURL    string
	TLS        TLSConfig
	HTTPClient *http.Client // optional, overrides TLS
}

// API talks to the capture server's read endpoints
type API struct {
	baseURL string
	http    *http.Client
}

// NewAPI creates a client for the capture server at cfg.BaseURL.
// No request timeout is set; the transport defaults apply.
func NewAPI(cfg APIConfig) (*API, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, errors.New("capture server URL is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
		if cfg.TLS.enabled() {
			tlsConfig, err := cfg.TLS.build()
			if err != nil {
				return nil, fmt.Errorf("failed to create TLS config: %w", err)
			}
			transport := http.DefaultTransport.(*http.Transport).Clone()
			transport.TLSClientConfig = tlsConfig
			httpClient.Transport = transport
		}
	}

	return &API{baseURL: base, http: httpClient}, nil
}

// BaseURL returns the normalized capture server URL
func (a *API) BaseURL() string {
	return a.baseURL
}

// WebhookURL returns the URL third parties should send webhooks to
func (a *API) WebhookURL() string {
	return a.baseURL + "/webhook"
}

// Latest fetches the most recent captured requests, newest first
func (a *API) Latest(ctx context.Context) ([]protocol.Request, error) {
	var resp protocol.LatestResponse
	if err := a.getJSON(ctx, "/latest", &resp); err != nil {
		return nil, err
	}
	if resp.Items == nil {
		return []protocol.Request{}, nil
	}
	return resp.Items, nil
}

// Request fetches a single captured request by id
func (a *API) Request(ctx context.Context, id uint64) (*protocol.Request, error) {
	var req protocol.Request
	if err := a.getJSON(ctx, "/req/"+strconv.FormatUint(id, 10), &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Health checks that the capture server is up
func (a *API) Health(ctx context.Context) error {
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := a.getJSON(ctx, "/health", &resp); err != nil {
		return err
	}
	if !resp.OK {
		return errors.New("capture server reported unhealthy")
	}
	return nil
}

func (a *API) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Code:   resp.StatusCode,
			Status: resp.Status,
			Body:   strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
