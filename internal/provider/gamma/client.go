// Package gamma implements the Polymarket Gamma volume feed. The sports
// automation uses active-market volumes as a popularity signal when
// deciding which fixtures deserve a market.
package gamma

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

const (
	defaultTimeout = 10 * time.Second
	// feedLimit bounds one page of the feed; popularity ranking only needs
	// the head of the volume distribution.
	feedLimit = 500
)

// Config holds client construction parameters.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is the REST client for the Gamma markets endpoint.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a Gamma client.
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
		httpClient: httpClient,
	}
}

// apiMarket is the subset of the Gamma market shape the ranker needs.
// Volume fields arrive as either numbers or numeric strings.
type apiMarket struct {
	Question  string     `json:"question"`
	Slug      string     `json:"slug"`
	Volume    flexNumber `json:"volume"`
	VolumeNum flexNumber `json:"volumeNum"`
}

// ActiveMarkets returns question, slug, and volume for currently open
// markets.
func (c *Client) ActiveMarkets(ctx context.Context) ([]domain.MarketVolume, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(feedLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/markets?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("gamma: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gamma: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("gamma: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gamma: unexpected status %d", resp.StatusCode)
	}

	var markets []apiMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("gamma: decode markets: %w", domain.ErrDecode)
	}

	out := make([]domain.MarketVolume, 0, len(markets))
	for _, m := range markets {
		volume := float64(m.Volume)
		if volume == 0 {
			volume = float64(m.VolumeNum)
		}
		out = append(out, domain.MarketVolume{
			Question: m.Question,
			Slug:     m.Slug,
			Volume:   volume,
		})
	}
	return out, nil
}

// flexNumber decodes JSON numbers that may be quoted.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(string(data), `"`)
	if trimmed == "" || trimmed == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		*f = 0
		return nil // tolerate junk volumes, the signal is best-effort
	}
	*f = flexNumber(v)
	return nil
}
