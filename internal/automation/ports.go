// Package automation runs the periodic market lifecycle: creating markets
// for upcoming observable events and settling them once the oracle reports
// a conclusive result and the dispute window has elapsed.
package automation

import (
	"context"
	"time"

	"github.com/alanyoungcy/oraclebot/internal/domain"
	"github.com/alanyoungcy/oraclebot/internal/oracle"
)

// MarketClient is the slice of the market service the schedulers consume.
type MarketClient interface {
	Create(ctx context.Context, spec domain.CreateMarketSpec) (domain.Market, error)
	GetBySlug(ctx context.Context, slug string) (domain.Market, error)
	Settle(ctx context.Context, marketID string, req domain.SettleRequest) error
	FindEligible(ctx context.Context, category string, now time.Time) ([]domain.Market, error)
}

// PriceOracle is the crypto oracle surface the crypto scheduler consumes.
type PriceOracle interface {
	AggregatedPrice(ctx context.Context, symbol string) (oracle.PriceAggregate, error)
	DailyHigh(ctx context.Context, symbol string, day time.Time) (oracle.DailyHighResult, error)
	PublishComputed(ctx context.Context, quote oracle.ComputedQuote) (domain.Snapshot, error)
}

// EventOracle is the sports oracle surface the sports scheduler consumes.
type EventOracle interface {
	SyncEvent(ctx context.Context, eventID string) (*domain.ConsensusEvent, domain.Snapshot, error)
	PublishEvent(ctx context.Context, ev domain.CanonicalEvent, sourceTag, publishedBy string) (domain.Snapshot, error)
	UpcomingEvents(ctx context.Context, leagueID string, limit int) ([]domain.CanonicalEvent, error)
}

// Notifier receives automation lifecycle events. Implementations must not
// block the cycle; delivery failures are theirs to log.
type Notifier interface {
	MarketCreated(ctx context.Context, market domain.Market)
	MarketSettled(ctx context.Context, market domain.Market, outcome domain.Outcome)
	CycleError(ctx context.Context, component string, err error)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) MarketCreated(context.Context, domain.Market)                  {}
func (NopNotifier) MarketSettled(context.Context, domain.Market, domain.Outcome) {}
func (NopNotifier) CycleError(context.Context, string, error)                    {}
