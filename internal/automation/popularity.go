package automation

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

// VolumeFeed lists active external markets with their traded volume.
type VolumeFeed interface {
	ActiveMarkets(ctx context.Context) ([]domain.MarketVolume, error)
}

// PopularityRanker orders fixtures by the traded volume of matching markets
// on an external feed. The signal is cosmetic: it only decides which
// fixtures get a market first when a league produces more candidates than
// the per-cycle cap.
type PopularityRanker struct {
	feed   VolumeFeed
	cache  domain.VolumeCache
	logger *slog.Logger
}

// NewPopularityRanker creates a ranker. cache may be nil, in which case the
// feed is queried every cycle.
func NewPopularityRanker(feed VolumeFeed, cache domain.VolumeCache, logger *slog.Logger) *PopularityRanker {
	return &PopularityRanker{
		feed:   feed,
		cache:  cache,
		logger: logger.With(slog.String("component", "popularity_ranker")),
	}
}

// Rank returns the events sorted by descending popularity score. Ties and
// unmatched fixtures keep their incoming (kickoff) order. When the feed is
// unavailable the input is returned unchanged: ranking is best-effort and
// never blocks market creation.
func (r *PopularityRanker) Rank(ctx context.Context, events []domain.CanonicalEvent) []domain.CanonicalEvent {
	if len(events) < 2 {
		return events
	}

	volumes := r.loadVolumes(ctx)
	if len(volumes) == 0 {
		return events
	}

	scores := make([]float64, len(events))
	for i, ev := range events {
		scores[i] = scoreEvent(ev, volumes)
	}

	order := make([]int, len(events))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	ranked := make([]domain.CanonicalEvent, len(events))
	for i, idx := range order {
		ranked[i] = events[idx]
	}
	return ranked
}

// loadVolumes serves the cached feed when present, otherwise fetches and
// caches it. Cache failures degrade to a direct fetch; fetch failures
// degrade to no signal.
func (r *PopularityRanker) loadVolumes(ctx context.Context) []domain.MarketVolume {
	if r.cache != nil {
		cached, err := r.cache.Get(ctx)
		if err != nil {
			r.logger.WarnContext(ctx, "volume cache read failed", slog.String("error", err.Error()))
		} else if len(cached) > 0 {
			return cached
		}
	}

	if r.feed == nil {
		return nil
	}
	fetched, err := r.feed.ActiveMarkets(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "volume feed unavailable, skipping popularity ranking",
			slog.String("error", err.Error()),
		)
		return nil
	}

	if r.cache != nil && len(fetched) > 0 {
		if err := r.cache.Set(ctx, fetched); err != nil {
			r.logger.WarnContext(ctx, "volume cache write failed", slog.String("error", err.Error()))
		}
	}
	return fetched
}

// scoreEvent sums the volume of feed markets that mention either team.
func scoreEvent(ev domain.CanonicalEvent, volumes []domain.MarketVolume) float64 {
	home, away := TeamsFromEvent(ev)
	homeKey := normalizeTeam(home)
	awayKey := normalizeTeam(away)
	if homeKey == "" && awayKey == "" {
		return 0
	}

	total := 0.0
	for _, mv := range volumes {
		haystack := strings.ToLower(mv.Question + " " + mv.Slug)
		if (homeKey != "" && strings.Contains(haystack, homeKey)) ||
			(awayKey != "" && strings.Contains(haystack, awayKey)) {
			total += mv.Volume
		}
	}
	return total
}

// TeamsFromEvent extracts the home and away team names. Provider metadata
// wins; fixtures that only carry a headline are split on the usual
// separators, where "@" flips the order (away at home).
func TeamsFromEvent(ev domain.CanonicalEvent) (home, away string) {
	if ev.Metadata != nil {
		h, _ := ev.Metadata["homeTeam"].(string)
		a, _ := ev.Metadata["awayTeam"].(string)
		if h != "" && a != "" {
			return h, a
		}
	}

	headline := strings.TrimSpace(ev.Headline)
	for _, sep := range []string{" vs ", " Vs ", " VS ", " v ", " V "} {
		if left, right, found := strings.Cut(headline, sep); found {
			return strings.TrimSpace(left), strings.TrimSpace(right)
		}
	}
	if left, right, found := strings.Cut(headline, " @ "); found {
		return strings.TrimSpace(right), strings.TrimSpace(left)
	}
	return "", ""
}

// normalizeTeam lowercases a team name and strips club-form suffixes so
// "Arsenal FC" matches feed questions that just say "Arsenal".
func normalizeTeam(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	for len(fields) > 0 {
		switch fields[len(fields)-1] {
		case "fc", "cf", "afc", "sc", "bc", "club":
			fields = fields[:len(fields)-1]
		default:
			return strings.Join(fields, " ")
		}
	}
	return ""
}
