// Package coingecko implements the CoinGecko price provider.
package coingecko

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

const defaultTimeout = 10 * time.Second

// Config holds client construction parameters. HTTPClient may be supplied
// to stub transport in tests; when nil a default client is used.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Enabled    bool
	HTTPClient *http.Client
}

// Client is the REST client for the CoinGecko public API. No credential is
// required.
type Client struct {
	baseURL    string
	timeout    time.Duration
	enabled    bool
	httpClient *http.Client
}

// New creates a CoinGecko client.
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
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    timeout,
		enabled:    cfg.Enabled,
		httpClient: httpClient,
	}
}

// Name identifies the provider in source lists and logs.
func (c *Client) Name() string { return "coingecko" }

// Enabled reports whether the provider should be consulted.
func (c *Client) Enabled() bool { return c.enabled }

// SpotPrice returns the current USD price for the asset.
func (c *Client) SpotPrice(ctx context.Context, asset domain.AssetConfig) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("ids", asset.CoingeckoID)
	params.Set("vs_currencies", "usd")

	body, err := c.doGet(ctx, "/simple/price?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("coingecko: spot price %s: %w", asset.Symbol, err)
	}

	// Shape: {"bitcoin":{"usd":65000.12}}
	var payload map[string]map[string]float64
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("coingecko: decode spot price: %w", domain.ErrDecode)
	}
	quote, ok := payload[asset.CoingeckoID]
	if !ok {
		return 0, fmt.Errorf("coingecko: spot price %s: %w", asset.Symbol, domain.ErrDecode)
	}
	price, ok := quote["usd"]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("coingecko: spot price %s: %w", asset.Symbol, domain.ErrDecode)
	}
	return price, nil
}

// DailyHigh returns the maximum observed USD price over the given UTC day,
// derived from the market-chart range endpoint.
func (c *Client) DailyHigh(ctx context.Context, asset domain.AssetConfig, day time.Time) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("from", fmt.Sprintf("%d", start.Unix()))
	params.Set("to", fmt.Sprintf("%d", end.Unix()))

	path := fmt.Sprintf("/coins/%s/market_chart/range?%s", url.PathEscape(asset.CoingeckoID), params.Encode())
	body, err := c.doGet(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("coingecko: daily high %s: %w", asset.Symbol, err)
	}

	// Shape: {"prices":[[ms,price],...]}
	var payload struct {
		Prices [][2]float64 `json:"prices"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("coingecko: decode daily high: %w", domain.ErrDecode)
	}
	if len(payload.Prices) == 0 {
		return 0, fmt.Errorf("coingecko: daily high %s: empty series: %w", asset.Symbol, domain.ErrDecode)
	}

	high := 0.0
	for _, point := range payload.Prices {
		if point[1] > high {
			high = point[1]
		}
	}
	if high <= 0 {
		return 0, fmt.Errorf("coingecko: daily high %s: %w", asset.Symbol, domain.ErrDecode)
	}
	return high, nil
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
