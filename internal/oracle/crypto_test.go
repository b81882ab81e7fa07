package oracle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oraclebot/internal/crypto"
	"github.com/alanyoungcy/oraclebot/internal/domain"
)

// memSnapshotStore is an in-memory SnapshotStore for oracle tests.
type memSnapshotStore struct {
	snaps []domain.Snapshot
	fail  error
}

func (s *memSnapshotStore) Insert(_ context.Context, snap domain.Snapshot) error {
	if s.fail != nil {
		return s.fail
	}
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *memSnapshotStore) Latest(_ context.Context, kind domain.SnapshotKind, subjectKey string) (domain.Snapshot, error) {
	matches := s.matching(kind, subjectKey)
	if len(matches) == 0 {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return matches[0], nil
}

func (s *memSnapshotStore) List(_ context.Context, kind domain.SnapshotKind, subjectKey string, limit int) ([]domain.Snapshot, error) {
	matches := s.matching(kind, subjectKey)
	if limit < len(matches) {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *memSnapshotStore) ListOlderThan(_ context.Context, cutoff, cursor time.Time, limit int) ([]domain.Snapshot, error) {
	var out []domain.Snapshot
	for _, snap := range s.snaps {
		if snap.CreatedAt.Before(cutoff) && snap.CreatedAt.After(cursor) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memSnapshotStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []domain.Snapshot
	var removed int64
	for _, snap := range s.snaps {
		if snap.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, snap)
	}
	s.snaps = kept
	return removed, nil
}

func (s *memSnapshotStore) matching(kind domain.SnapshotKind, subjectKey string) []domain.Snapshot {
	var out []domain.Snapshot
	for _, snap := range s.snaps {
		if snap.Kind == kind && snap.SubjectKey == subjectKey {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// stubPriceProvider returns fixed prices or errors.
type stubPriceProvider struct {
	name    string
	enabled bool
	spot    float64
	spotErr error
	high    float64
	highErr error
}

func (p *stubPriceProvider) Name() string  { return p.name }
func (p *stubPriceProvider) Enabled() bool { return p.enabled }

func (p *stubPriceProvider) SpotPrice(context.Context, domain.AssetConfig) (float64, error) {
	return p.spot, p.spotErr
}

func (p *stubPriceProvider) DailyHigh(context.Context, domain.AssetConfig, time.Time) (float64, error) {
	return p.high, p.highErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCryptoOracle(t *testing.T, store *memSnapshotStore, providers ...PriceProvider) *CryptoOracle {
	t.Helper()
	signer, err := crypto.NewSigner("test-secret")
	require.NoError(t, err)
	o := NewCryptoOracle(providers, store, signer, "oraclebot", testLogger())
	return o.WithClock(func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) })
}

func TestAggregatedPriceMean(t *testing.T) {
	o := newCryptoOracle(t, &memSnapshotStore{},
		&stubPriceProvider{name: "coingecko", enabled: true, spot: 42000},
		&stubPriceProvider{name: "binance", enabled: true, spot: 42100},
	)

	agg, err := o.AggregatedPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 42050.0, agg.PriceUSD)
	assert.False(t, agg.Fallback)
	require.Len(t, agg.Sources, 2)
}

func TestAggregatedPriceSkipsFailingAndDisabledProviders(t *testing.T) {
	o := newCryptoOracle(t, &memSnapshotStore{},
		&stubPriceProvider{name: "coingecko", enabled: true, spotErr: errors.New("timeout")},
		&stubPriceProvider{name: "binance", enabled: false, spot: 99999},
		&stubPriceProvider{name: "backup", enabled: true, spot: 42000},
	)

	agg, err := o.AggregatedPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 42000.0, agg.PriceUSD)
	require.Len(t, agg.Sources, 1)
	assert.Equal(t, "backup", agg.Sources[0].Source)
}

func TestAggregatedPriceFallback(t *testing.T) {
	o := newCryptoOracle(t, &memSnapshotStore{},
		&stubPriceProvider{name: "coingecko", enabled: true, spotErr: errors.New("down")},
	)

	agg, err := o.AggregatedPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, agg.Fallback)
	assert.Equal(t, 65000.0, agg.PriceUSD)
	require.Len(t, agg.Sources, 1)
	assert.Equal(t, "fallback:last-known-good", agg.Sources[0].Source)
}

func TestAggregatedPriceUnknownAsset(t *testing.T) {
	o := newCryptoOracle(t, &memSnapshotStore{})
	_, err := o.AggregatedPrice(context.Background(), "DOGE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDailyHighTakesMaxAcrossProviders(t *testing.T) {
	o := newCryptoOracle(t, &memSnapshotStore{},
		&stubPriceProvider{name: "coingecko", enabled: true, high: 43400},
		&stubPriceProvider{name: "binance", enabled: true, high: 43500},
	)

	res, err := o.DailyHigh(context.Background(), "BTC", time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 43500.0, res.PriceUSD)
	require.Len(t, res.Sources, 2)
}

func TestDailyHighExhaustedHasNoFallback(t *testing.T) {
	o := newCryptoOracle(t, &memSnapshotStore{},
		&stubPriceProvider{name: "coingecko", enabled: true, highErr: errors.New("down")},
		&stubPriceProvider{name: "binance", enabled: true, highErr: errors.New("down")},
	)

	_, err := o.DailyHigh(context.Background(), "BTC", time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, domain.ErrAggregationExhausted)
}

func TestPublishQuote(t *testing.T) {
	store := &memSnapshotStore{}
	o := newCryptoOracle(t, store,
		&stubPriceProvider{name: "coingecko", enabled: true, spot: 3400},
	)

	snap, err := o.PublishQuote(context.Background(), "ETH", nil, "ops")
	require.NoError(t, err)

	assert.Equal(t, domain.SnapshotKindCrypto, snap.Kind)
	assert.Equal(t, "ETH", snap.SubjectKey)
	assert.Equal(t, "ops", snap.PublishedBy)
	assert.Equal(t, "crypto.quote", snap.Payload["type"])
	assert.Equal(t, 3400.0, snap.Payload["priceUsd"])
	assert.NotEmpty(t, snap.Signature)
	require.Len(t, store.snaps, 1)
}

func TestPublishQuoteOverrideTakesPriority(t *testing.T) {
	store := &memSnapshotStore{}
	o := newCryptoOracle(t, store,
		&stubPriceProvider{name: "coingecko", enabled: true, spot: 3400},
	)

	override := 3555.5
	snap, err := o.PublishQuote(context.Background(), "ETH", &override, "ops")
	require.NoError(t, err)

	assert.Equal(t, 3555.5, snap.Payload["priceUsd"])
	sources, ok := snap.Payload["sources"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, sources)
	first, ok := sources[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "manual:override", first["source"])
}

func TestPublishComputed(t *testing.T) {
	store := &memSnapshotStore{}
	o := newCryptoOracle(t, store)

	snap, err := o.PublishComputed(context.Background(), ComputedQuote{
		AssetSymbol: "BTC",
		PriceUSD:    42000,
		SourceTag:   "automation:daily-baseline",
		Metadata:    map[string]any{"targetDate": "2026-08-29"},
	})
	require.NoError(t, err)

	assert.Equal(t, "automation:daily-baseline", snap.SourceTag)
	assert.Equal(t, "oraclebot", snap.PublishedBy)
	meta, ok := snap.Payload["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2026-08-29", meta["targetDate"])
}

func TestLatestAndListClamp(t *testing.T) {
	store := &memSnapshotStore{}
	o := newCryptoOracle(t, store,
		&stubPriceProvider{name: "coingecko", enabled: true, spot: 150},
	)

	for i := 0; i < 3; i++ {
		_, err := o.PublishQuote(context.Background(), "SOL", nil, "ops")
		require.NoError(t, err)
	}

	latest, err := o.Latest(context.Background(), "sol")
	require.NoError(t, err)
	assert.Equal(t, "SOL", latest.SubjectKey)

	snaps, err := o.List(context.Background(), "SOL", 2)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	// Oversized limits clamp instead of erroring.
	snaps, err = o.List(context.Background(), "SOL", 10_000)
	require.NoError(t, err)
	assert.Len(t, snaps, 3)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 25, clampLimit(0, 25))
	assert.Equal(t, 25, clampLimit(-5, 25))
	assert.Equal(t, 40, clampLimit(40, 25))
	assert.Equal(t, 200, clampLimit(500, 25))
}
