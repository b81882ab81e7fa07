// Package sportmonks implements the Sportmonks fixture provider, the
// second opinion used by the sports consensus alongside TheSportsDB. It is
// also the only provider that reports per-player statistics.
package sportmonks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

const defaultTimeout = 8 * time.Second

// fixtureIncludes pulls scores, teams, and player statistics in one call.
const fixtureIncludes = "scores,participants,league,season,venue,statistics,statistics.player,statistics.type,statistics.team"

// Config holds client construction parameters. The provider is enabled only
// when APIToken is set.
type Config struct {
	APIToken   string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is the REST client for the Sportmonks API.
type Client struct {
	apiToken   string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a Sportmonks client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiToken:   cfg.APIToken,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    timeout,
		httpClient: httpClient,
	}
}

// Name identifies the provider in source lists and logs.
func (c *Client) Name() string { return "sportmonks" }

// Enabled reports whether an API token is configured.
func (c *Client) Enabled() bool { return c.apiToken != "" }

// FetchEvent looks up a single fixture by ID. It returns (nil, nil) when
// the fixture does not exist.
func (c *Client) FetchEvent(ctx context.Context, eventID string) (*domain.CanonicalEvent, error) {
	if !c.Enabled() {
		return nil, domain.ErrProviderDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("api_token", c.apiToken)
	params.Set("include", fixtureIncludes)
	params.Set("timezone", "UTC")

	path := fmt.Sprintf("/fixtures/%s?%s", url.PathEscape(eventID), params.Encode())
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("sportmonks: fixture %s: %w", eventID, err)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("sportmonks: fixture %s: decode envelope: %w", eventID, domain.ErrDecode)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, nil
	}

	ev, err := decodeFixture(envelope.Data)
	if err != nil {
		return nil, fmt.Errorf("sportmonks: fixture %s: %w", eventID, err)
	}
	return ev, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}
