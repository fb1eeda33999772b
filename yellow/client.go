package yellow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"yellowsdk/internal/logging"
)

const (
	// DefaultServer is the production API endpoint.
	DefaultServer = "https://api.yellowpay.co"

	// Version is reported to the server in the API-Version header.
	Version = "0.3.0"

	invoicePath = "/v1/invoice/"
)

// Header names used by the signing scheme.
const (
	HeaderKey      = "API-Key"
	HeaderNonce    = "API-Nonce"
	HeaderSign     = "API-Sign"
	HeaderPlatform = "API-Platform"
	HeaderVersion  = "API-Version"
)

// Config holds everything a Client needs. It is copied by NewClient and never
// read again, so later changes to a Config have no effect on a built Client.
type Config struct {
	Server    string // scheme and host, e.g. "https://api.yellowpay.co"
	APIKey    string
	APISecret string

	// HTTPClient defaults to a client with a 30s timeout and the system
	// certificate pool.
	HTTPClient *http.Client

	// Now is the clock nonces are derived from. Defaults to time.Now.
	Now func() time.Time

	// Platform overrides the API-Platform diagnostic header.
	Platform string
}

// ConfigFromEnv builds a Config from YELLOW_SERVER, YELLOW_API_KEY and
// YELLOW_API_SECRET. YELLOW_SERVER names a host and is always reached over
// HTTPS; when unset the production host is used.
func ConfigFromEnv() Config {
	cfg := Config{
		Server:    DefaultServer,
		APIKey:    strings.TrimSpace(os.Getenv("YELLOW_API_KEY")),
		APISecret: strings.TrimSpace(os.Getenv("YELLOW_API_SECRET")),
	}
	if host := strings.TrimSpace(os.Getenv("YELLOW_SERVER")); host != "" {
		cfg.Server = "https://" + host
	}
	return cfg
}

// Client issues signed requests against the invoice API. It holds no mutable
// state and is safe for concurrent use; see NonceAt for the ordering caveat.
type Client struct {
	server     string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	now        func() time.Time
	platform   string
}

// NewClient validates cfg and returns a Client bound to it.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.APISecret == "" {
		return nil, fmt.Errorf("api secret is required")
	}

	server := strings.TrimRight(cfg.Server, "/")
	if server == "" {
		server = DefaultServer
	}
	if _, err := url.Parse(server); err != nil {
		return nil, fmt.Errorf("invalid server %q: %w", cfg.Server, err)
	}

	c := &Client{
		server:     server,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: cfg.HTTPClient,
		now:        cfg.Now,
		platform:   cfg.Platform,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.platform == "" {
		c.platform = defaultPlatform()
	}
	return c, nil
}

func defaultPlatform() string {
	return fmt.Sprintf("%s %s - Go %s", runtime.GOOS, runtime.GOARCH, strings.TrimPrefix(runtime.Version(), "go"))
}

// Server returns the base endpoint the client targets.
func (c *Client) Server() string {
	return c.server
}

// CreateInvoice creates an invoice from fields. The client does not check for
// required fields; a missing base_ccy or base_price comes back as an *APIError.
func (c *Client) CreateInvoice(ctx context.Context, fields *Fields) (Invoice, error) {
	u := c.server + invoicePath

	if fields == nil {
		fields = &Fields{}
	}
	body, err := fields.MarshalJSON()
	if err != nil {
		return nil, &RequestError{Method: http.MethodPost, URL: u, Err: fmt.Errorf("failed to marshal fields: %w", err)}
	}

	inv, err := c.do(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, err
	}
	logging.Yellow.Printf("created invoice %s (status %s)", inv.ID(), inv.Status())
	return inv, nil
}

// QueryInvoice fetches the current state of the invoice with the given id.
func (c *Client) QueryInvoice(ctx context.Context, invoiceID string) (Invoice, error) {
	u := c.server + invoicePath + url.PathEscape(invoiceID)
	if invoiceID == "" {
		return nil, &RequestError{Method: http.MethodGet, URL: u, Err: ErrMissingInvoiceID}
	}
	return c.do(ctx, http.MethodGet, u, nil)
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) (Invoice, error) {
	req, err := c.newRequest(ctx, method, u, body)
	if err != nil {
		return nil, &RequestError{Method: method, URL: u, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Yellow.Printf("%s %s failed: %v", method, u, err)
		return nil, &RequestError{Method: method, URL: u, Err: err}
	}
	defer resp.Body.Close()

	inv, err := handleResponse(resp)
	if err != nil {
		logging.Yellow.Printf("%s %s: %v", method, u, err)
		return nil, err
	}
	return inv, nil
}

// newRequest builds a request signed over nonce+u+body. A nil body is signed
// as the empty string and no request body is sent.
func (c *Client) newRequest(ctx context.Context, method, u string, body []byte) (*http.Request, error) {
	nonce := NonceAt(c.now())
	signature := ComputeSignature(u, string(body), nonce, c.apiSecret)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderKey, c.apiKey)
	req.Header.Set(HeaderNonce, strconv.FormatInt(nonce, 10))
	req.Header.Set(HeaderSign, signature)
	req.Header.Set(HeaderPlatform, c.platform)
	req.Header.Set(HeaderVersion, Version)
	return req, nil
}
