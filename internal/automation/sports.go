package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

const (
	sportsCategory       = "sports"
	sportsOpenLeadTime   = 48 * time.Hour
	sportsMinOpenDelay   = 5 * time.Minute
	sportsLockBefore     = 10 * time.Minute
	sportsCloseBefore    = time.Minute
	sportsFetchPerLeague = 25 // fixtures pulled per league before ranking and capping
)

// outcomePriors are the creation-time implied probabilities per sport, in
// home/away/draw/cancel order.
var outcomePriors = map[string][4]float64{
	"soccer":     {0.44, 0.33, 0.18, 0.05},
	"basketball": {0.52, 0.41, 0.05, 0.02},
	"hockey":     {0.48, 0.40, 0.10, 0.02},
}

// EventRanker orders fixtures by expected interest. A nil ranker keeps the
// provider order.
type EventRanker interface {
	Rank(ctx context.Context, events []domain.CanonicalEvent) []domain.CanonicalEvent
}

// SportsConfig drives the fixture scheduler.
type SportsConfig struct {
	Interval      time.Duration
	LookaheadDays int
	DisputeWindow time.Duration
	Liquidity     float64
	Leagues       []domain.LeagueConfig
}

// SportsScheduler periodically creates winner markets for upcoming fixtures
// of the tracked leagues and settles them from the consensus final score.
type SportsScheduler struct {
	markets  MarketClient
	oracle   EventOracle
	ranker   EventRanker
	notifier Notifier
	clock    Clock
	cfg      SportsConfig
	logger   *slog.Logger
	running  atomic.Bool
}

// NewSportsScheduler creates a sports scheduler. Nil ranker, notifier, and
// clock fall back to provider order, no notifications, and wall time.
func NewSportsScheduler(markets MarketClient, eventOracle EventOracle, ranker EventRanker, notifier Notifier, clock Clock, cfg SportsConfig, logger *slog.Logger) *SportsScheduler {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if clock == nil {
		clock = SystemClock()
	}
	if cfg.LookaheadDays <= 0 {
		cfg.LookaheadDays = 14
	}
	if cfg.DisputeWindow <= 0 {
		cfg.DisputeWindow = 6 * time.Hour
	}
	if cfg.Liquidity <= 0 {
		cfg.Liquidity = 1800
	}
	if len(cfg.Leagues) == 0 {
		cfg.Leagues = domain.TrackedLeagues
	}
	return &SportsScheduler{
		markets:  markets,
		oracle:   eventOracle,
		ranker:   ranker,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "sports_automation")),
	}
}

// Run executes one cycle immediately and then on every interval tick until
// the context is canceled. Cancellation is a clean shutdown.
func (s *SportsScheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "sports automation started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Int("lookahead_days", s.cfg.LookaheadDays),
		slog.Int("leagues", len(s.cfg.Leagues)),
	)

	s.TriggerCycle(ctx, "startup")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sports automation stopped")
			return nil
		case <-ticker.C:
			s.TriggerCycle(ctx, "interval")
		}
	}
}

// TriggerCycle runs one cycle unless a cycle is already in flight, in which
// case the trigger is skipped, never queued. It reports whether the cycle
// ran.
func (s *SportsScheduler) TriggerCycle(ctx context.Context, reason string) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.WarnContext(ctx, "cycle already in flight, skipping trigger",
			slog.String("reason", reason),
		)
		return false
	}
	defer s.running.Store(false)

	now := s.clock.Now().UTC()
	start := time.Now()

	created := s.ensureMarkets(ctx, now)
	settled := s.resolveMarkets(ctx, now)

	s.logger.InfoContext(ctx, "sports cycle complete",
		slog.String("reason", reason),
		slog.Int("created", created),
		slog.Int("settled", settled),
		slog.Duration("elapsed", time.Since(start)),
	)
	return true
}

// ---- Ensure phase ----

func (s *SportsScheduler) ensureMarkets(ctx context.Context, now time.Time) int {
	created := 0
	horizon := now.AddDate(0, 0, s.cfg.LookaheadDays)

	for _, league := range s.cfg.Leagues {
		events, err := s.oracle.UpcomingEvents(ctx, league.SportsDBID, sportsFetchPerLeague)
		if err != nil {
			s.logger.ErrorContext(ctx, "fixture listing failed",
				slog.String("league", league.Key),
				slog.String("error", err.Error()),
			)
			s.notifier.CycleError(ctx, "sports_automation", err)
			continue
		}

		candidates := events[:0:0]
		for _, ev := range events {
			if ev.EventID == "" || ev.StartsAt == nil {
				continue
			}
			if ev.StartsAt.Before(now) || ev.StartsAt.After(horizon) {
				continue
			}
			candidates = append(candidates, ev)
		}
		if s.ranker != nil {
			candidates = s.ranker.Rank(ctx, candidates)
		}

		// MaxMarkets caps new creations per cycle, not total open markets:
		// an already-existing fixture does not consume the budget.
		budget := league.MaxMarkets
		for _, ev := range candidates {
			if budget <= 0 {
				break
			}
			ok, err := s.ensureMarket(ctx, league, ev, now)
			if err != nil {
				s.logger.ErrorContext(ctx, "ensure fixture market failed",
					slog.String("league", league.Key),
					slog.String("event_id", ev.EventID),
					slog.String("error", err.Error()),
				)
				s.notifier.CycleError(ctx, "sports_automation", err)
				continue
			}
			if ok {
				created++
				budget--
			}
		}
	}
	return created
}

func (s *SportsScheduler) ensureMarket(ctx context.Context, league domain.LeagueConfig, ev domain.CanonicalEvent, now time.Time) (bool, error) {
	slug := sportsSlug(league.Key, ev.EventID)

	_, err := s.markets.GetBySlug(ctx, slug)
	switch {
	case err == nil:
		return false, nil // idempotent: already exists
	case !errors.Is(err, domain.ErrNotFound):
		return false, fmt.Errorf("lookup %s: %w", slug, err)
	}

	home, away := TeamsFromEvent(ev)
	if home == "" || away == "" {
		return false, fmt.Errorf("event %s: cannot determine teams from %q", ev.EventID, ev.Headline)
	}

	ev.Sport = league.Sport
	ev.League = league.Key
	snap, err := s.oracle.PublishEvent(ctx, ev, "automation:fixture", "")
	if err != nil {
		return false, fmt.Errorf("publish fixture %s: %w", slug, err)
	}

	schedule := sportsSchedule(*ev.StartsAt, now, s.cfg.DisputeWindow)
	spec := domain.CreateMarketSpec{
		Slug:     slug,
		Title:    fmt.Sprintf("%s: %s vs %s", league.Name, home, away),
		Category: sportsCategory,
		Description: fmt.Sprintf(
			"Who wins %s vs %s (%s, %s)? Settles from the reconciled final score.",
			home, away, league.Name, ev.StartsAt.Format("2006-01-02 15:04 MST"),
		),
		Tags: []string{
			"sports",
			league.Sport,
			"league:" + league.Key,
			"event:" + ev.EventID,
			"auto",
		},
		OracleID: "sports:" + ev.EventID,
		Schedule: schedule,
		Outcomes: sportsOutcomes(league.Sport, home, away, s.cfg.Liquidity),
		Liquidity: domain.LiquidityPool{
			TokenSymbol:    "USDC",
			TotalLiquidity: s.cfg.Liquidity,
			FeeBps:         200,
			ProviderCount:  1,
		},
		Context: &domain.AutomationContext{
			EventID: ev.EventID,
			League:  league.Key,
			Sport:   league.Sport,
		},
		Workflow: []domain.WorkflowStep{
			{
				Type:        "fixture-published",
				Status:      "completed",
				Description: "Fixture snapshot signed and recorded",
				Metadata: map[string]any{
					"snapshotId": snap.ID,
					"signature":  snap.Signature,
				},
			},
			{
				Type:        "settle-final-score",
				Status:      "pending",
				Description: "Settle from the consensus final score after the dispute window",
				TriggersAt:  &schedule.FreezeEndAt,
			},
		},
	}

	market, err := s.markets.Create(ctx, spec)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return false, nil
		}
		return false, fmt.Errorf("create %s: %w", slug, err)
	}

	s.logger.InfoContext(ctx, "fixture market created",
		slog.String("slug", slug),
		slog.String("league", league.Key),
		slog.String("headline", ev.Headline),
		slog.Time("starts_at", *ev.StartsAt),
	)
	s.notifier.MarketCreated(ctx, market)
	return true, nil
}

// ---- Resolve phase ----

func (s *SportsScheduler) resolveMarkets(ctx context.Context, now time.Time) int {
	markets, err := s.markets.FindEligible(ctx, sportsCategory, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "eligible market query failed", slog.String("error", err.Error()))
		s.notifier.CycleError(ctx, "sports_automation", err)
		return 0
	}

	settled := 0
	for _, market := range markets {
		ok, err := s.resolveMarket(ctx, market, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "settle fixture market failed",
				slog.String("slug", market.Slug),
				slog.String("error", err.Error()),
			)
			s.notifier.CycleError(ctx, "sports_automation", err)
			continue
		}
		if ok {
			settled++
		}
	}
	return settled
}

// resolveMarket settles one eligible fixture market, returning false with a
// nil error when the event is simply not conclusive yet.
func (s *SportsScheduler) resolveMarket(ctx context.Context, market domain.Market, now time.Time) (bool, error) {
	mctx := ResolveContext(market)
	if mctx == nil || mctx.EventID == "" {
		return false, fmt.Errorf("market %s: no automation context", market.Slug)
	}

	consensus, _, err := s.oracle.SyncEvent(ctx, mctx.EventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventUnavailable) {
			s.logger.WarnContext(ctx, "no source reports the event, retrying next cycle",
				slog.String("slug", market.Slug),
				slog.String("event_id", mctx.EventID),
			)
			return false, nil
		}
		return false, fmt.Errorf("market %s: %w", market.Slug, err)
	}

	if !consensus.Status.Terminal() {
		s.logger.InfoContext(ctx, "event not concluded yet",
			slog.String("slug", market.Slug),
			slog.String("event_id", mctx.EventID),
			slog.String("status", string(consensus.Status)),
		)
		return false, nil
	}

	winner, notes, err := classifyFinal(market, mctx.Sport, consensus)
	if err != nil {
		return false, fmt.Errorf("market %s: %w", market.Slug, err)
	}
	if winner == nil {
		// Conclusive status but no usable result (a final report that
		// carries no score at all). Left for the operator.
		s.logger.WarnContext(ctx, "no settleable outcome, leaving market open",
			slog.String("slug", market.Slug),
			slog.String("event_id", mctx.EventID),
			slog.String("detail", notes),
		)
		return false, nil
	}

	req := domain.SettleRequest{
		OutcomeID: winner.ID,
		TxRef:     fmt.Sprintf("auto:sports:%s:%d", market.Slug, now.UnixMilli()),
		Notes:     notes,
	}
	if err := s.markets.Settle(ctx, market.ID, req); err != nil {
		return false, fmt.Errorf("market %s: %w", market.Slug, err)
	}

	s.logger.InfoContext(ctx, "fixture market settled",
		slog.String("slug", market.Slug),
		slog.String("event_id", mctx.EventID),
		slog.String("outcome", winner.Label),
	)
	s.notifier.MarketSettled(ctx, market, *winner)
	return true, nil
}

// classifyFinal maps a concluded consensus event onto one of the market's
// outcomes. The rules, in priority order: a canceled event settles the
// cancel outcome; a non-soccer event where any provider signals overtime
// settles the overtime outcome regardless of which side won; otherwise the
// higher score wins; a level score settles the draw-slot outcome for every
// sport.
func classifyFinal(market domain.Market, sport string, ev *domain.ConsensusEvent) (*domain.Outcome, string, error) {
	if ev.Status == domain.EventStatusCanceled {
		outcome := matchKindOutcome(market.Outcomes, domain.OutcomeKindCancel, "")
		if outcome == nil {
			return nil, "", fmt.Errorf("canceled event: %w", domain.ErrNoOutcomeMatch)
		}
		return outcome, "Event canceled or postponed", nil
	}

	if ev.Score == nil {
		return nil, "final status without a score", nil
	}
	score := *ev.Score
	notes := fmt.Sprintf("Final score %d-%d", score.Home, score.Away)
	if score.Period != "" {
		notes += " (" + score.Period + ")"
	}

	if sport != "soccer" && ev.Overtime() {
		outcome := matchKindOutcome(market.Outcomes, domain.OutcomeKindDraw, "")
		if outcome == nil {
			return nil, "", fmt.Errorf("overtime result: %w", domain.ErrNoOutcomeMatch)
		}
		return outcome, notes, nil
	}

	switch {
	case score.Home > score.Away:
		outcome := matchKindOutcome(market.Outcomes, domain.OutcomeKindHome, "")
		if outcome == nil {
			return nil, "", fmt.Errorf("home win: %w", domain.ErrNoOutcomeMatch)
		}
		return outcome, notes, nil
	case score.Away > score.Home:
		outcome := matchKindOutcome(market.Outcomes, domain.OutcomeKindAway, "")
		if outcome == nil {
			return nil, "", fmt.Errorf("away win: %w", domain.ErrNoOutcomeMatch)
		}
		return outcome, notes, nil
	default:
		outcome := matchKindOutcome(market.Outcomes, domain.OutcomeKindDraw, "")
		if outcome == nil {
			return nil, "", fmt.Errorf("level score: %w", domain.ErrNoOutcomeMatch)
		}
		return outcome, notes, nil
	}
}

// ---- Internal helpers ----

func sportsSlug(leagueKey, eventID string) string {
	return fmt.Sprintf("sports-%s-%s", leagueKey, eventID)
}

// sportsSchedule derives the trading timeline for a fixture market. Trading
// opens two days ahead (never less than five minutes from now), locks ten
// minutes before kickoff, closes one minute before, and the dispute window
// covers the event itself plus the configured margin.
func sportsSchedule(startsAt, now time.Time, disputeWindow time.Duration) domain.Schedule {
	openAt := startsAt.Add(-sportsOpenLeadTime)
	if earliest := now.Add(sportsMinOpenDelay); openAt.Before(earliest) {
		openAt = earliest
	}
	return domain.Schedule{
		OpenAt:        openAt,
		TradingLockAt: startsAt.Add(-sportsLockBefore),
		CloseAt:       startsAt.Add(-sportsCloseBefore),
		FreezeStartAt: startsAt,
		FreezeEndAt:   startsAt.Add(disputeWindow),
	}
}

// sportsOutcomes builds the winner outcomes for one fixture. Soccer gets a
// regulation draw; overtime sports get an "extra time" outcome in the draw
// slot instead.
func sportsOutcomes(sport, home, away string, totalLiquidity float64) []domain.Outcome {
	priors, ok := outcomePriors[sport]
	if !ok {
		priors = outcomePriors["soccer"]
	}

	drawLabel := "Game goes to overtime"
	if sport == "soccer" {
		drawLabel = "Draw (90 minutes)"
	}

	return []domain.Outcome{
		{
			Kind:               domain.OutcomeKindHome,
			Label:              home + " wins",
			Team:               home,
			ImpliedProbability: priors[0],
			Liquidity:          totalLiquidity * priors[0],
		},
		{
			Kind:               domain.OutcomeKindAway,
			Label:              away + " wins",
			Team:               away,
			ImpliedProbability: priors[1],
			Liquidity:          totalLiquidity * priors[1],
		},
		{
			Kind:               domain.OutcomeKindDraw,
			Label:              drawLabel,
			ImpliedProbability: priors[2],
			Liquidity:          totalLiquidity * priors[2],
		},
		{
			Kind:               domain.OutcomeKindCancel,
			Label:              "Event canceled or postponed",
			ImpliedProbability: priors[3],
			Liquidity:          totalLiquidity * priors[3],
		},
	}
}

// matchKindOutcome returns the first outcome of the given kind (and team,
// when non-empty), or nil.
func matchKindOutcome(outcomes []domain.Outcome, kind domain.OutcomeKind, team string) *domain.Outcome {
	for i := range outcomes {
		outcome := &outcomes[i]
		if outcome.Kind != kind {
			continue
		}
		if team != "" && !strings.EqualFold(outcome.Team, team) {
			continue
		}
		return outcome
	}
	return nil
}
