package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"gastos/internal/core"
	applog "gastos/internal/log"
	ports "gastos/internal/sheets"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultRange is read when no range is configured.
const DefaultRange = "Sheet1!A1:Z100"

// Environment variables read by NewFromEnv.
const (
	EnvAPIKey        = "GOOGLE_SHEETS_API_KEY"
	EnvSpreadsheetID = "GOOGLE_SHEETS_SPREADSHEET_ID"
	EnvRange         = "GOOGLE_SHEETS_RANGE"
	EnvEndpoint      = "GOOGLE_SHEETS_ENDPOINT"
)

// Config holds what the client needs to read one range with an API key.
type Config struct {
	APIKey        string
	SpreadsheetID string
	Range         string
	// Endpoint overrides the API base URL (tests, proxies). Must end with "/".
	Endpoint string
	// HTTPClient replaces the pooled client. The API key is added on top of it.
	HTTPClient *http.Client
}

type Client struct {
	svc           *gsheet.Service
	apiKey        string
	spreadsheetID string
	rng           string
}

// Ensure interface conformance
var (
	_ ports.ValuesReader = (*Client)(nil)
	_ ports.Describer    = (*Client)(nil)
)

// NewFromEnv creates a client from GOOGLE_SHEETS_* environment variables.
// Missing key or spreadsheet id are reported by ReadValues, not here.
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, Config{
		APIKey:        strings.TrimSpace(os.Getenv(EnvAPIKey)),
		SpreadsheetID: strings.TrimSpace(os.Getenv(EnvSpreadsheetID)),
		Range:         strings.TrimSpace(os.Getenv(EnvRange)),
		Endpoint:      strings.TrimSpace(os.Getenv(EnvEndpoint)),
	})
}

// New creates a Sheets client authenticated by a static API key.
func New(ctx context.Context, cfg Config) (*Client, error) {
	rng := strings.TrimSpace(cfg.Range)
	if rng == "" {
		rng = DefaultRange
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClientWithPooling()
	}
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	keyed := *httpClient
	keyed.Transport = &transport.APIKey{Key: cfg.APIKey, Transport: base}

	opts := []goption.ClientOption{goption.WithHTTPClient(&keyed)}
	if ep := strings.TrimSpace(cfg.Endpoint); ep != "" {
		if !strings.HasSuffix(ep, "/") {
			ep += "/"
		}
		opts = append(opts, goption.WithEndpoint(ep))
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.DebugContext(ctx, "Google Sheets client created",
		applog.FieldComponent, applog.ComponentSheets,
		"spreadsheet_id", cfg.SpreadsheetID,
		"range", rng,
		"has_api_key", cfg.APIKey != "")

	return &Client{
		svc:           svc,
		apiKey:        cfg.APIKey,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		rng:           rng,
	}, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// Describe implements sheets.Describer.
func (c *Client) Describe() string {
	return fmt.Sprintf("sheets:%s/%s", c.spreadsheetID, c.rng)
}

// Range returns the cell range expression the client reads.
func (c *Client) Range() string {
	return c.rng
}

// ReadValues issues a single GET on the values endpoint for the configured range.
func (c *Client) ReadValues(ctx context.Context) ([][]string, error) {
	if c.apiKey == "" {
		return nil, &core.ConfigError{Setting: "Google Sheets API key", Env: EnvAPIKey}
	}
	if c.spreadsheetID == "" {
		return nil, &core.ConfigError{Setting: "Google Sheets Spreadsheet ID", Env: EnvSpreadsheetID}
	}
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.rng).Context(ctx).Do()
	if err != nil {
		return nil, transportError(err)
	}
	return ports.ToTable(resp.Values), nil
}

// transportError extracts the API's own message when there is one and falls
// back to the HTTP status text.
func transportError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := strings.TrimSpace(gerr.Message)
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", gerr.Code)
		}
		return &core.TransportError{StatusCode: gerr.Code, Message: msg, Err: err}
	}
	return &core.TransportError{Message: err.Error(), Err: err}
}
