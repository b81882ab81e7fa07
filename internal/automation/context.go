package automation

import (
	"strings"
	"time"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

// ResolveContext recovers the automation inputs a market was created from.
// Markets created by this engine carry a structured context record; older
// markets are reconstructed from their tags (and, for the sport, the slug).
// Returns nil when nothing usable can be recovered.
func ResolveContext(market domain.Market) *domain.AutomationContext {
	if ctx := market.Context; ctx != nil {
		if ctx.AssetSymbol != "" || ctx.EventID != "" {
			return ctx
		}
	}
	return contextFromTags(market)
}

// contextFromTags is the legacy path: markets created before the context
// column existed encoded their inputs as tags like "asset:BTC",
// "target:2026-08-29", "event:603310", "league:nba".
func contextFromTags(market domain.Market) *domain.AutomationContext {
	ctx := &domain.AutomationContext{}
	for _, tag := range market.Tags {
		key, value, found := strings.Cut(tag, ":")
		if !found || value == "" {
			continue
		}
		switch strings.ToLower(key) {
		case "asset":
			ctx.AssetSymbol = strings.ToUpper(value)
		case "target":
			if t, err := time.ParseInLocation("2006-01-02", value, time.UTC); err == nil {
				ctx.TargetDate = &t
			}
		case "event":
			ctx.EventID = value
		case "league":
			ctx.League = strings.ToLower(value)
		}
	}

	if ctx.League != "" {
		if league, ok := domain.LeagueByKey(ctx.League); ok {
			ctx.Sport = league.Sport
		}
	}
	if ctx.Sport == "" && ctx.EventID != "" {
		ctx.Sport = sportFromSlug(market.Slug)
	}

	if ctx.AssetSymbol == "" && ctx.EventID == "" {
		return nil
	}
	return ctx
}

// sportFromSlug detects the sport for legacy sports slugs of the form
// sports-{league}-{eventID}.
func sportFromSlug(slug string) string {
	for _, league := range domain.TrackedLeagues {
		if strings.HasPrefix(slug, "sports-"+league.Key+"-") {
			return league.Sport
		}
	}
	return ""
}
