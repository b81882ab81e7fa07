// Package oracle publishes signed snapshots of external observations: crypto
// prices and sports event states. Publishing is the only write path into the
// snapshot log.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/oraclebot/internal/crypto"
	"github.com/alanyoungcy/oraclebot/internal/domain"
)

const (
	defaultCryptoHistory = 25
	maxHistoryLimit      = 200
)

// PriceProvider is one upstream price source. Implementations must honor
// the context and return an error rather than a guessed price.
type PriceProvider interface {
	Name() string
	Enabled() bool
	SpotPrice(ctx context.Context, asset domain.AssetConfig) (float64, error)
	DailyHigh(ctx context.Context, asset domain.AssetConfig, day time.Time) (float64, error)
}

// SourceQuote is one provider's contribution to an aggregate.
type SourceQuote struct {
	Source   string
	PriceUSD float64
}

// PriceAggregate is the combined view across providers. Fallback marks
// aggregates built from the last-known-good table because no live source
// answered.
type PriceAggregate struct {
	AssetSymbol string
	PriceUSD    float64
	Sources     []SourceQuote
	ObservedAt  time.Time
	Fallback    bool
}

// DailyHighResult is the observed daily high across providers. Unlike spot
// aggregation it never falls back: settlement must not guess.
type DailyHighResult struct {
	AssetSymbol string
	PriceUSD    float64
	Sources     []SourceQuote
	ObservedAt  time.Time
}

// ComputedQuote publishes a price the caller already aggregated, used by
// the automation to pin the exact baseline a market was built from.
type ComputedQuote struct {
	AssetSymbol string
	PriceUSD    float64
	SourceTag   string
	Metadata    map[string]any
	PublishedBy string
	ObservedAt  time.Time
}

// CryptoOracle aggregates spot prices and daily highs and publishes signed
// crypto.quote snapshots.
type CryptoOracle struct {
	providers []PriceProvider
	store     domain.SnapshotStore
	signer    *crypto.Signer
	publisher string
	logger    *slog.Logger
	now       func() time.Time
}

// NewCryptoOracle creates a crypto oracle over the given providers.
func NewCryptoOracle(providers []PriceProvider, store domain.SnapshotStore, signer *crypto.Signer, publisher string, logger *slog.Logger) *CryptoOracle {
	return &CryptoOracle{
		providers: providers,
		store:     store,
		signer:    signer,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "crypto_oracle")),
		now:       time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (o *CryptoOracle) WithClock(now func() time.Time) *CryptoOracle {
	o.now = now
	return o
}

// AggregatedPrice collects spot quotes from every enabled provider and
// returns their mean. When no provider answers, the asset's last-known-good
// price is used and the aggregate is marked as a fallback; an asset without
// a fallback yields ErrAggregationExhausted.
func (o *CryptoOracle) AggregatedPrice(ctx context.Context, symbol string) (PriceAggregate, error) {
	asset, ok := domain.AssetBySymbol(symbol)
	if !ok {
		return PriceAggregate{}, fmt.Errorf("oracle: unknown asset %q: %w", symbol, domain.ErrNotFound)
	}

	quotes := o.collectSpotQuotes(ctx, asset)
	agg := PriceAggregate{
		AssetSymbol: asset.Symbol,
		Sources:     quotes,
		ObservedAt:  o.now().UTC(),
	}

	if len(quotes) == 0 {
		if asset.FallbackPriceUSD <= 0 {
			return PriceAggregate{}, fmt.Errorf("oracle: aggregate %s: %w", asset.Symbol, domain.ErrAggregationExhausted)
		}
		o.logger.WarnContext(ctx, "all price sources unavailable, using fallback",
			slog.String("asset", asset.Symbol),
			slog.Float64("fallback_usd", asset.FallbackPriceUSD),
		)
		agg.PriceUSD = asset.FallbackPriceUSD
		agg.Fallback = true
		agg.Sources = []SourceQuote{{Source: "fallback:last-known-good", PriceUSD: asset.FallbackPriceUSD}}
		return agg, nil
	}

	sum := 0.0
	for _, q := range quotes {
		sum += q.PriceUSD
	}
	agg.PriceUSD = sum / float64(len(quotes))
	return agg, nil
}

// DailyHigh returns the maximum daily-high across providers for the given
// UTC day. No provider data means ErrAggregationExhausted; there is no
// fallback on the settlement path.
func (o *CryptoOracle) DailyHigh(ctx context.Context, symbol string, day time.Time) (DailyHighResult, error) {
	asset, ok := domain.AssetBySymbol(symbol)
	if !ok {
		return DailyHighResult{}, fmt.Errorf("oracle: unknown asset %q: %w", symbol, domain.ErrNotFound)
	}

	var quotes []SourceQuote
	for _, p := range o.providers {
		if !p.Enabled() {
			continue
		}
		high, err := p.DailyHigh(ctx, asset, day)
		if err != nil {
			o.logger.WarnContext(ctx, "daily high source failed",
				slog.String("provider", p.Name()),
				slog.String("asset", asset.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		quotes = append(quotes, SourceQuote{Source: p.Name(), PriceUSD: high})
	}
	if len(quotes) == 0 {
		return DailyHighResult{}, fmt.Errorf("oracle: daily high %s: %w", asset.Symbol, domain.ErrAggregationExhausted)
	}

	high := quotes[0].PriceUSD
	for _, q := range quotes[1:] {
		if q.PriceUSD > high {
			high = q.PriceUSD
		}
	}
	return DailyHighResult{
		AssetSymbol: asset.Symbol,
		PriceUSD:    high,
		Sources:     quotes,
		ObservedAt:  o.now().UTC(),
	}, nil
}

// PublishQuote aggregates and publishes a signed quote snapshot. A non-nil
// override takes priority over the aggregated price; the live quotes are
// still recorded as secondary sources.
func (o *CryptoOracle) PublishQuote(ctx context.Context, symbol string, override *float64, publishedBy string) (domain.Snapshot, error) {
	agg, err := o.AggregatedPrice(ctx, symbol)
	if err != nil {
		if override == nil {
			return domain.Snapshot{}, err
		}
		asset, ok := domain.AssetBySymbol(symbol)
		if !ok {
			return domain.Snapshot{}, err
		}
		agg = PriceAggregate{AssetSymbol: asset.Symbol, ObservedAt: o.now().UTC()}
	}

	if override != nil {
		agg.PriceUSD = *override
		agg.Sources = append([]SourceQuote{{Source: "manual:override", PriceUSD: *override}}, agg.Sources...)
		agg.Fallback = false
	}

	return o.publish(ctx, agg, "manual", nil, publishedBy)
}

// PublishComputed publishes a price the caller already derived, tagged with
// its origin.
func (o *CryptoOracle) PublishComputed(ctx context.Context, quote ComputedQuote) (domain.Snapshot, error) {
	observedAt := quote.ObservedAt
	if observedAt.IsZero() {
		observedAt = o.now().UTC()
	}
	agg := PriceAggregate{
		AssetSymbol: quote.AssetSymbol,
		PriceUSD:    quote.PriceUSD,
		ObservedAt:  observedAt,
	}
	publishedBy := quote.PublishedBy
	if publishedBy == "" {
		publishedBy = o.publisher
	}
	return o.publish(ctx, agg, quote.SourceTag, quote.Metadata, publishedBy)
}

// Latest returns the newest quote snapshot for an asset.
func (o *CryptoOracle) Latest(ctx context.Context, symbol string) (domain.Snapshot, error) {
	snap, err := o.store.Latest(ctx, domain.SnapshotKindCrypto, normalizeSymbol(symbol))
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("oracle: latest %s: %w", symbol, err)
	}
	return snap, nil
}

// List returns recent quote snapshots, newest first. The limit defaults to
// 25 and is clamped to 200.
func (o *CryptoOracle) List(ctx context.Context, symbol string, limit int) ([]domain.Snapshot, error) {
	snaps, err := o.store.List(ctx, domain.SnapshotKindCrypto, normalizeSymbol(symbol), clampLimit(limit, defaultCryptoHistory))
	if err != nil {
		return nil, fmt.Errorf("oracle: list %s: %w", symbol, err)
	}
	return snaps, nil
}

// ---- Internal helpers ----

func (o *CryptoOracle) collectSpotQuotes(ctx context.Context, asset domain.AssetConfig) []SourceQuote {
	var quotes []SourceQuote
	for _, p := range o.providers {
		if !p.Enabled() {
			continue
		}
		price, err := p.SpotPrice(ctx, asset)
		if err != nil {
			o.logger.WarnContext(ctx, "price source failed",
				slog.String("provider", p.Name()),
				slog.String("asset", asset.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		quotes = append(quotes, SourceQuote{Source: p.Name(), PriceUSD: price})
	}
	return quotes
}

func (o *CryptoOracle) publish(ctx context.Context, agg PriceAggregate, sourceTag string, metadata map[string]any, publishedBy string) (domain.Snapshot, error) {
	sources := make([]any, 0, len(agg.Sources))
	for _, q := range agg.Sources {
		sources = append(sources, map[string]any{
			"source":   q.Source,
			"priceUsd": q.PriceUSD,
		})
	}
	payloadMeta := map[string]any{}
	for k, v := range metadata {
		payloadMeta[k] = v
	}
	if agg.Fallback {
		payloadMeta["fallback"] = true
	}

	payload := map[string]any{
		"type":        "crypto.quote",
		"assetSymbol": agg.AssetSymbol,
		"priceUsd":    agg.PriceUSD,
		"timestamp":   agg.ObservedAt.Format(time.RFC3339),
		"sources":     sources,
		"metadata":    payloadMeta,
	}

	signature, err := o.signer.Sign(payload)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("oracle: sign quote %s: %w", agg.AssetSymbol, err)
	}

	snap := domain.Snapshot{
		ID:          uuid.NewString(),
		Kind:        domain.SnapshotKindCrypto,
		SourceTag:   sourceTag,
		SubjectKey:  agg.AssetSymbol,
		Payload:     payload,
		Signature:   signature,
		PublishedBy: publishedBy,
		ObservedAt:  agg.ObservedAt,
		CreatedAt:   o.now().UTC(),
	}
	if err := o.store.Insert(ctx, snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("oracle: persist quote %s: %w", agg.AssetSymbol, err)
	}

	o.logger.InfoContext(ctx, "quote published",
		slog.String("asset", agg.AssetSymbol),
		slog.Float64("price_usd", agg.PriceUSD),
		slog.String("source_tag", sourceTag),
		slog.Bool("fallback", agg.Fallback),
	)
	return snap, nil
}

func normalizeSymbol(symbol string) string {
	if asset, ok := domain.AssetBySymbol(symbol); ok {
		return asset.Symbol
	}
	return symbol
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
