package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

var btc = domain.AssetConfig{Symbol: "BTC", CoingeckoID: "bitcoin", BinanceSymbol: "BTCUSDT"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, Enabled: true, HTTPClient: srv.Client()})
}

func TestSpotPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		w.Write([]byte(`{"bitcoin":{"usd":65123.42}}`))
	})

	price, err := c.SpotPrice(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, 65123.42, price)
}

func TestSpotPriceRejectsMissingAsset(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := c.SpotPrice(context.Background(), btc)
	assert.ErrorIs(t, err, domain.ErrDecode)
}

func TestSpotPriceRejectsMalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>down</html>`))
	})

	_, err := c.SpotPrice(context.Background(), btc)
	assert.ErrorIs(t, err, domain.ErrDecode)
}

func TestDailyHigh(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/bitcoin/market_chart/range", r.URL.Path)
		w.Write([]byte(`{"prices":[[1756339200000,64000.1],[1756342800000,66500.9],[1756346400000,65750.0]]}`))
	})

	high, err := c.DailyHigh(context.Background(), btc, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 66500.9, high)
}

func TestDailyHighEmptySeries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prices":[]}`))
	})

	_, err := c.DailyHigh(context.Background(), btc, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, domain.ErrDecode)
}
