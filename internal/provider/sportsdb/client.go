// Package sportsdb implements the TheSportsDB event provider. It is the
// only provider with a league schedule endpoint, so it also feeds fixture
// discovery for the sports automation.
package sportsdb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

const defaultTimeout = 8 * time.Second

// Config holds client construction parameters. The provider is enabled only
// when APIKey is set.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is the REST client for TheSportsDB JSON API.
type Client struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a TheSportsDB client.
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
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    timeout,
		httpClient: httpClient,
	}
}

// Name identifies the provider in source lists and logs.
func (c *Client) Name() string { return "thesportsdb" }

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// FetchEvent looks up a single event by its TheSportsDB ID. It returns
// (nil, nil) when the event does not exist.
func (c *Client) FetchEvent(ctx context.Context, eventID string) (*domain.CanonicalEvent, error) {
	if !c.Enabled() {
		return nil, domain.ErrProviderDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("id", eventID)

	body, err := c.doGet(ctx, "/lookupevent.php?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("sportsdb: lookup event %s: %w", eventID, err)
	}

	events, err := decodeEventsPayload(body)
	if err != nil {
		return nil, fmt.Errorf("sportsdb: lookup event %s: %w", eventID, err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// FetchUpcoming returns the next scheduled events for a league, capped at
// limit.
func (c *Client) FetchUpcoming(ctx context.Context, leagueID string, limit int) ([]domain.CanonicalEvent, error) {
	if !c.Enabled() {
		return nil, domain.ErrProviderDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("id", leagueID)

	body, err := c.doGet(ctx, "/eventsnextleague.php?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("sportsdb: next events league %s: %w", leagueID, err)
	}

	events, err := decodeEventsPayload(body)
	if err != nil {
		return nil, fmt.Errorf("sportsdb: next events league %s: %w", leagueID, err)
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	full := fmt.Sprintf("%s/%s%s", c.baseURL, url.PathEscape(c.apiKey), path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
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
