package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memSender records deliveries in order.
type memSender struct {
	name   string
	titles []string
	err    error
}

func (s *memSender) Send(_ context.Context, title, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	return nil
}

func (s *memSender) Name() string { return s.name }

func TestNotifierFiltersEvents(t *testing.T) {
	sender := &memSender{name: "mem"}
	n := NewNotifier([]Sender{sender}, []string{EventMarketSettled}, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventMarketCreated, "created", "m"))
	require.NoError(t, n.Notify(context.Background(), EventMarketSettled, "settled", "m"))

	assert.Equal(t, []string{"settled"}, sender.titles)
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	sender := &memSender{name: "mem"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventCycleError, "err", "m"))
	assert.Equal(t, []string{"err"}, sender.titles)
}

func TestNotifierPartialFailure(t *testing.T) {
	broken := &memSender{name: "broken", err: errors.New("boom")}
	working := &memSender{name: "working"}
	n := NewNotifier([]Sender{broken, working}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "title", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	// The failing sender must not block the working one.
	assert.Equal(t, []string{"title"}, working.titles)
}

func TestTelegramSenderPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken123/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewTelegramSender("token123", "chat42").WithHTTPClient(srv.Client(), srv.URL)
	require.NoError(t, sender.Send(context.Background(), "Market created", "details"))

	assert.Equal(t, "chat42", got["chat_id"])
	assert.Equal(t, "*Market created*\ndetails", got["text"])
}

func TestTelegramSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender := NewTelegramSender("token123", "chat42").WithHTTPClient(srv.Client(), srv.URL)
	err := sender.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestDiscordSenderPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL).WithHTTPClient(srv.Client())
	require.NoError(t, sender.Send(context.Background(), "Market settled", "details"))

	assert.Equal(t, "**Market settled**\ndetails", got["content"])
}

func TestEventsAdapter(t *testing.T) {
	sender := &memSender{name: "mem"}
	events := NewEvents(NewNotifier([]Sender{sender}, nil, testLogger()))

	market := domain.Market{
		Title:    "BTC daily high on 2026-08-29",
		Slug:     "crypto-btc-daily-high-2026-08-29",
		Category: "crypto",
		Schedule: domain.Schedule{CloseAt: time.Date(2026, 8, 29, 23, 59, 59, 0, time.UTC)},
		Settlement: &domain.Settlement{
			TxRef: "auto:crypto:crypto-btc-daily-high-2026-08-29:1787054400000",
		},
	}

	events.MarketCreated(context.Background(), market)
	events.MarketSettled(context.Background(), market, domain.Outcome{Label: "$100 to $105"})
	events.CycleError(context.Background(), "crypto_automation", errors.New("boom"))

	assert.Equal(t, []string{"Market created", "Market settled", "Automation error"}, sender.titles)
}
