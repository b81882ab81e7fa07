package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/oraclebot/internal/domain"
	"github.com/alanyoungcy/oraclebot/internal/oracle"
)

// Daily-high bucket geometry around the baseline price B. The first bucket
// is open below, the last open above; interior buckets are half-open so
// every price lands in exactly one.
var cryptoBuckets = []struct {
	lowMult  float64 // 0 = unbounded below
	highMult float64 // 0 = unbounded above
	prior    float64
}{
	{0, 0.95, 0.12},
	{0.95, 1.00, 0.28},
	{1.00, 1.05, 0.28},
	{1.05, 1.10, 0.22},
	{1.10, 0, 0.10},
}

const (
	cryptoCategory       = "crypto"
	cryptoOpenLeadTime   = 24 * time.Hour
	cryptoMinOpenDelay   = 5 * time.Minute
	cryptoLockBeforeEnd  = 10 * time.Minute // lock at 23:50 UTC
	cryptoSourceBaseline = "automation:daily-baseline"
	cryptoSourceHigh     = "automation:daily-high"
)

// CryptoConfig drives the daily-high scheduler.
type CryptoConfig struct {
	Interval      time.Duration
	HorizonDays   int
	DisputeWindow time.Duration
	Liquidity     float64
	Assets        []domain.AssetConfig
}

// CryptoScheduler periodically ensures one daily-high market exists per
// tracked asset and upcoming day, and settles matured markets from the
// observed daily high.
type CryptoScheduler struct {
	markets  MarketClient
	oracle   PriceOracle
	notifier Notifier
	clock    Clock
	cfg      CryptoConfig
	logger   *slog.Logger
	running  atomic.Bool
}

// NewCryptoScheduler creates a crypto scheduler. A nil notifier disables
// notifications; a nil clock uses wall time.
func NewCryptoScheduler(markets MarketClient, priceOracle PriceOracle, notifier Notifier, clock Clock, cfg CryptoConfig, logger *slog.Logger) *CryptoScheduler {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if clock == nil {
		clock = SystemClock()
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 2
	}
	if cfg.DisputeWindow <= 0 {
		cfg.DisputeWindow = 6 * time.Hour
	}
	if cfg.Liquidity <= 0 {
		cfg.Liquidity = 1600
	}
	if len(cfg.Assets) == 0 {
		cfg.Assets = domain.TrackedAssets
	}
	return &CryptoScheduler{
		markets:  markets,
		oracle:   priceOracle,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "crypto_automation")),
	}
}

// Run executes one cycle immediately and then on every interval tick until
// the context is canceled. Cancellation is a clean shutdown.
func (s *CryptoScheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "crypto automation started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Int("horizon_days", s.cfg.HorizonDays),
		slog.Int("assets", len(s.cfg.Assets)),
	)

	s.TriggerCycle(ctx, "startup")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "crypto automation stopped")
			return nil
		case <-ticker.C:
			s.TriggerCycle(ctx, "interval")
		}
	}
}

// TriggerCycle runs one cycle unless a cycle is already in flight, in which
// case the trigger is skipped, never queued. It reports whether the cycle
// ran.
func (s *CryptoScheduler) TriggerCycle(ctx context.Context, reason string) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.WarnContext(ctx, "cycle already in flight, skipping trigger",
			slog.String("reason", reason),
		)
		return false
	}
	defer s.running.Store(false)

	s.runCycle(ctx, reason)
	return true
}

// runCycle does the ensure and resolve phases sequentially. Per-item
// failures are logged and never abort the cycle.
func (s *CryptoScheduler) runCycle(ctx context.Context, reason string) {
	now := s.clock.Now().UTC()
	start := time.Now()

	created := s.ensureMarkets(ctx, now)
	settled := s.resolveMarkets(ctx, now)

	s.logger.InfoContext(ctx, "crypto cycle complete",
		slog.String("reason", reason),
		slog.Int("created", created),
		slog.Int("settled", settled),
		slog.Duration("elapsed", time.Since(start)),
	)
}

// ---- Ensure phase ----

func (s *CryptoScheduler) ensureMarkets(ctx context.Context, now time.Time) int {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	created := 0
	for _, asset := range s.cfg.Assets {
		for offset := 1; offset <= s.cfg.HorizonDays; offset++ {
			target := dayStart.AddDate(0, 0, offset)
			ok, err := s.ensureMarket(ctx, asset, target, now)
			if err != nil {
				s.logger.ErrorContext(ctx, "ensure market failed",
					slog.String("asset", asset.Symbol),
					slog.String("target", target.Format("2006-01-02")),
					slog.String("error", err.Error()),
				)
				s.notifier.CycleError(ctx, "crypto_automation", err)
				continue
			}
			if ok {
				created++
			}
		}
	}
	return created
}

// ensureMarket creates the daily-high market for one asset and day if it
// does not exist yet. The baseline snapshot is published before the market
// so the market always references signed oracle data.
func (s *CryptoScheduler) ensureMarket(ctx context.Context, asset domain.AssetConfig, target, now time.Time) (bool, error) {
	slug := cryptoSlug(asset.Symbol, target)

	_, err := s.markets.GetBySlug(ctx, slug)
	switch {
	case err == nil:
		return false, nil // idempotent: already exists
	case !errors.Is(err, domain.ErrNotFound):
		return false, fmt.Errorf("lookup %s: %w", slug, err)
	}

	agg, err := s.oracle.AggregatedPrice(ctx, asset.Symbol)
	if err != nil {
		return false, fmt.Errorf("baseline %s: %w", slug, err)
	}

	sources := make([]any, 0, len(agg.Sources))
	for _, q := range agg.Sources {
		sources = append(sources, q.Source)
	}
	snap, err := s.oracle.PublishComputed(ctx, oracle.ComputedQuote{
		AssetSymbol: asset.Symbol,
		PriceUSD:    agg.PriceUSD,
		SourceTag:   cryptoSourceBaseline,
		Metadata: map[string]any{
			"targetDate": target.Format("2006-01-02"),
			"sources":    sources,
			"fallback":   agg.Fallback,
		},
		ObservedAt: agg.ObservedAt,
	})
	if err != nil {
		return false, fmt.Errorf("publish baseline %s: %w", slug, err)
	}

	schedule := cryptoSchedule(target, now, s.cfg.DisputeWindow)
	targetDate := target
	spec := domain.CreateMarketSpec{
		Slug:  slug,
		Title: fmt.Sprintf("%s daily high on %s", asset.Symbol, target.Format("2006-01-02")),
		Description: fmt.Sprintf(
			"Where will the %s (%s) daily high land on %s (UTC)? Baseline price at creation: $%s.",
			asset.Name, asset.Symbol, target.Format("2006-01-02"), formatUSD(agg.PriceUSD),
		),
		Category: cryptoCategory,
		Tags: []string{
			"crypto",
			"asset:" + strings.ToLower(asset.Symbol),
			"target:" + target.Format("2006-01-02"),
			"auto",
			"daily-high",
		},
		OracleID: "crypto:" + strings.ToLower(asset.Symbol),
		Schedule: schedule,
		Outcomes: buildPriceBuckets(agg.PriceUSD, s.cfg.Liquidity),
		Liquidity: domain.LiquidityPool{
			TokenSymbol:    "USDC",
			TotalLiquidity: s.cfg.Liquidity,
			FeeBps:         200,
			ProviderCount:  1,
		},
		Context: &domain.AutomationContext{
			AssetSymbol: asset.Symbol,
			TargetDate:  &targetDate,
		},
		Workflow: []domain.WorkflowStep{
			{
				Type:        "baseline-published",
				Status:      "completed",
				Description: "Baseline quote signed and recorded",
				Metadata: map[string]any{
					"snapshotId": snap.ID,
					"signature":  snap.Signature,
				},
			},
			{
				Type:        "settle-daily-high",
				Status:      "pending",
				Description: "Settle from the observed daily high after the dispute window",
				TriggersAt:  &schedule.FreezeEndAt,
			},
		},
	}

	market, err := s.markets.Create(ctx, spec)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return false, nil // lost a race, the market exists
		}
		return false, fmt.Errorf("create %s: %w", slug, err)
	}

	s.logger.InfoContext(ctx, "daily-high market created",
		slog.String("slug", slug),
		slog.Float64("baseline_usd", agg.PriceUSD),
		slog.Bool("fallback", agg.Fallback),
	)
	s.notifier.MarketCreated(ctx, market)
	return true, nil
}

// ---- Resolve phase ----

func (s *CryptoScheduler) resolveMarkets(ctx context.Context, now time.Time) int {
	markets, err := s.markets.FindEligible(ctx, cryptoCategory, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "eligible market query failed", slog.String("error", err.Error()))
		s.notifier.CycleError(ctx, "crypto_automation", err)
		return 0
	}

	settled := 0
	for _, market := range markets {
		if err := s.resolveMarket(ctx, market, now); err != nil {
			s.logger.ErrorContext(ctx, "settle market failed",
				slog.String("slug", market.Slug),
				slog.String("error", err.Error()),
			)
			s.notifier.CycleError(ctx, "crypto_automation", err)
			continue
		}
		settled++
	}
	return settled
}

func (s *CryptoScheduler) resolveMarket(ctx context.Context, market domain.Market, now time.Time) error {
	mctx := ResolveContext(market)
	if mctx == nil || mctx.AssetSymbol == "" || mctx.TargetDate == nil {
		return fmt.Errorf("market %s: no automation context", market.Slug)
	}

	high, err := s.oracle.DailyHigh(ctx, mctx.AssetSymbol, *mctx.TargetDate)
	if err != nil {
		// No observed high means no settlement this cycle; the market is
		// retried until a source answers.
		return fmt.Errorf("market %s: %w", market.Slug, err)
	}

	winner := matchRangeOutcome(market.Outcomes, high.PriceUSD)
	if winner == nil {
		return fmt.Errorf("market %s: high %.2f: %w", market.Slug, high.PriceUSD, domain.ErrNoOutcomeMatch)
	}

	sources := make([]any, 0, len(high.Sources))
	for _, q := range high.Sources {
		sources = append(sources, q.Source)
	}
	if _, err := s.oracle.PublishComputed(ctx, oracle.ComputedQuote{
		AssetSymbol: mctx.AssetSymbol,
		PriceUSD:    high.PriceUSD,
		SourceTag:   cryptoSourceHigh,
		Metadata: map[string]any{
			"targetDate": mctx.TargetDate.Format("2006-01-02"),
			"marketSlug": market.Slug,
			"sources":    sources,
		},
		ObservedAt: high.ObservedAt,
	}); err != nil {
		return fmt.Errorf("market %s: publish high: %w", market.Slug, err)
	}

	req := domain.SettleRequest{
		OutcomeID: winner.ID,
		TxRef:     fmt.Sprintf("auto:crypto:%s:%d", market.Slug, now.UnixMilli()),
		Notes:     fmt.Sprintf("Observed daily high $%s", formatUSD(high.PriceUSD)),
	}
	if err := s.markets.Settle(ctx, market.ID, req); err != nil {
		return fmt.Errorf("market %s: %w", market.Slug, err)
	}

	s.logger.InfoContext(ctx, "daily-high market settled",
		slog.String("slug", market.Slug),
		slog.Float64("high_usd", high.PriceUSD),
		slog.String("outcome", winner.Label),
	)
	s.notifier.MarketSettled(ctx, market, *winner)
	return nil
}

// ---- Internal helpers ----

func cryptoSlug(symbol string, target time.Time) string {
	return fmt.Sprintf("crypto-%s-daily-high-%s", strings.ToLower(symbol), target.Format("2006-01-02"))
}

// cryptoSchedule derives the trading timeline for a daily-high market.
// Trading opens a day ahead (never less than five minutes from now), locks
// ten minutes before day end, closes one second before midnight, and the
// dispute window runs from close.
func cryptoSchedule(target, now time.Time, disputeWindow time.Duration) domain.Schedule {
	closeAt := target.Add(24*time.Hour - time.Second)

	openAt := target.Add(-cryptoOpenLeadTime).Add(cryptoMinOpenDelay)
	if earliest := now.Add(cryptoMinOpenDelay); openAt.Before(earliest) {
		openAt = earliest
	}

	return domain.Schedule{
		OpenAt:        openAt,
		TradingLockAt: target.Add(24*time.Hour - cryptoLockBeforeEnd),
		CloseAt:       closeAt,
		FreezeStartAt: closeAt,
		FreezeEndAt:   closeAt.Add(disputeWindow),
	}
}

// buildPriceBuckets renders the bucket geometry into concrete outcomes
// around the baseline price.
func buildPriceBuckets(baseline, totalLiquidity float64) []domain.Outcome {
	outcomes := make([]domain.Outcome, 0, len(cryptoBuckets))
	for _, bucket := range cryptoBuckets {
		outcome := domain.Outcome{
			Kind:               domain.OutcomeKindRange,
			ImpliedProbability: bucket.prior,
			Liquidity:          totalLiquidity * bucket.prior,
			Bounds:             &domain.PriceBounds{},
		}
		switch {
		case bucket.lowMult == 0:
			high := baseline * bucket.highMult
			outcome.Bounds.MaxExclusive = &high
			outcome.Label = fmt.Sprintf("Below $%s", formatUSD(high))
		case bucket.highMult == 0:
			low := baseline * bucket.lowMult
			outcome.Bounds.MinInclusive = &low
			outcome.Label = fmt.Sprintf("$%s or above", formatUSD(low))
		default:
			low := baseline * bucket.lowMult
			high := baseline * bucket.highMult
			outcome.Bounds.MinInclusive = &low
			outcome.Bounds.MaxExclusive = &high
			outcome.Label = fmt.Sprintf("$%s to $%s", formatUSD(low), formatUSD(high))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// matchRangeOutcome returns the first range outcome whose bounds contain
// the value, or nil when none do. No match means no settlement: the engine
// never guesses.
func matchRangeOutcome(outcomes []domain.Outcome, value float64) *domain.Outcome {
	for i := range outcomes {
		outcome := &outcomes[i]
		if outcome.Kind != domain.OutcomeKindRange || outcome.Bounds == nil {
			continue
		}
		if outcome.Bounds.Contains(value) {
			return outcome
		}
	}
	return nil
}

// formatUSD renders a price with thousands separators and up to two
// decimals ("61,750" or "0.45").
func formatUSD(v float64) string {
	whole := strconv.FormatFloat(v, 'f', -1, 64)
	frac := ""
	if dot := strings.IndexByte(whole, '.'); dot >= 0 {
		frac = whole[dot:]
		if len(frac) > 3 {
			frac = frac[:3]
		}
		whole = whole[:dot]
	}
	if len(whole) > 3 {
		var b strings.Builder
		lead := len(whole) % 3
		if lead > 0 {
			b.WriteString(whole[:lead])
		}
		for i := lead; i < len(whole); i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(whole[i : i+3])
		}
		whole = b.String()
	}
	return whole + frac
}
