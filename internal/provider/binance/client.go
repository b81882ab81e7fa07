// Package binance implements the Binance price provider.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Config holds client construction parameters.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Enabled    bool
	HTTPClient *http.Client
}

// Client is the REST client for the Binance public market data API. No
// credential is required.
type Client struct {
	baseURL    string
	timeout    time.Duration
	enabled    bool
	httpClient *http.Client
}

// New creates a Binance client.
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
func (c *Client) Name() string { return "binance" }

// Enabled reports whether the provider should be consulted.
func (c *Client) Enabled() bool { return c.enabled }

// SpotPrice returns the current USDT ticker price for the asset.
func (c *Client) SpotPrice(ctx context.Context, asset domain.AssetConfig) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("symbol", asset.BinanceSymbol)

	body, err := c.doGet(ctx, "/api/v3/ticker/price?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("binance: spot price %s: %w", asset.Symbol, err)
	}

	// Shape: {"symbol":"BTCUSDT","price":"65000.12000000"}
	var payload struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("binance: decode spot price: %w", domain.ErrDecode)
	}
	price, err := strconv.ParseFloat(payload.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("binance: spot price %s: %w", asset.Symbol, domain.ErrDecode)
	}
	return price, nil
}

// DailyHigh returns the maximum high across the day's hourly klines.
func (c *Client) DailyHigh(ctx context.Context, asset domain.AssetConfig, day time.Time) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	params := url.Values{}
	params.Set("symbol", asset.BinanceSymbol)
	params.Set("interval", "1h")
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("limit", "24")

	body, err := c.doGet(ctx, "/api/v3/klines?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("binance: daily high %s: %w", asset.Symbol, err)
	}

	// Each kline is a mixed-type array; index 2 is the high as a string.
	var klines [][]any
	if err := json.Unmarshal(body, &klines); err != nil {
		return 0, fmt.Errorf("binance: decode klines: %w", domain.ErrDecode)
	}
	if len(klines) == 0 {
		return 0, fmt.Errorf("binance: daily high %s: empty series: %w", asset.Symbol, domain.ErrDecode)
	}

	high := 0.0
	for _, k := range klines {
		if len(k) < 3 {
			continue
		}
		raw, ok := k[2].(string)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if v > high {
			high = v
		}
	}
	if high <= 0 {
		return 0, fmt.Errorf("binance: daily high %s: %w", asset.Symbol, domain.ErrDecode)
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
