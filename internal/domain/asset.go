package domain

import "strings"

// AssetConfig describes one crypto asset the automation tracks, with the
// per-provider identifiers needed to query it.
type AssetConfig struct {
	Symbol        string
	Name          string
	CoingeckoID   string
	BinanceSymbol string
	// FallbackPriceUSD is the last-known-good price used when every live
	// source is unavailable during market creation.
	FallbackPriceUSD float64
}

// TrackedAssets is the fixed set of assets daily-high markets are created
// for, in creation order.
var TrackedAssets = []AssetConfig{
	{Symbol: "BTC", Name: "Bitcoin", CoingeckoID: "bitcoin", BinanceSymbol: "BTCUSDT", FallbackPriceUSD: 65000},
	{Symbol: "ETH", Name: "Ethereum", CoingeckoID: "ethereum", BinanceSymbol: "ETHUSDT", FallbackPriceUSD: 3400},
	{Symbol: "SOL", Name: "Solana", CoingeckoID: "solana", BinanceSymbol: "SOLUSDT", FallbackPriceUSD: 150},
	{Symbol: "FLOW", Name: "Flow", CoingeckoID: "flow", BinanceSymbol: "FLOWUSDT", FallbackPriceUSD: 0.45},
}

// AssetBySymbol looks up a tracked asset, case-insensitively.
func AssetBySymbol(symbol string) (AssetConfig, bool) {
	for _, a := range TrackedAssets {
		if strings.EqualFold(a.Symbol, symbol) {
			return a, true
		}
	}
	return AssetConfig{}, false
}

// LeagueConfig describes one sports league the automation follows.
type LeagueConfig struct {
	Key        string // short key used in slugs and tags, e.g. "nba"
	Name       string
	SportsDBID string // TheSportsDB numeric league ID
	Sport      string // soccer, basketball, hockey
	MaxMarkets int    // per-cycle cap on new markets for this league
}

// TrackedLeagues is the fixed set of leagues fixture markets are created
// for, in creation order.
var TrackedLeagues = []LeagueConfig{
	{Key: "ucl", Name: "UEFA Champions League", SportsDBID: "4480", Sport: "soccer", MaxMarkets: 4},
	{Key: "epl", Name: "Premier League", SportsDBID: "4328", Sport: "soccer", MaxMarkets: 2},
	{Key: "nba", Name: "NBA", SportsDBID: "4387", Sport: "basketball", MaxMarkets: 3},
	{Key: "nhl", Name: "NHL", SportsDBID: "4380", Sport: "hockey", MaxMarkets: 2},
}

// LeagueByKey looks up a tracked league by its short key.
func LeagueByKey(key string) (LeagueConfig, bool) {
	for _, l := range TrackedLeagues {
		if strings.EqualFold(l.Key, key) {
			return l, true
		}
	}
	return LeagueConfig{}, false
}
