package automation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/oraclebot/internal/domain"
	"github.com/alanyoungcy/oraclebot/internal/oracle"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedClock returns the same instant on every call.
type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

// fakeMarkets is an in-memory MarketClient.
type fakeMarkets struct {
	mu      sync.Mutex
	markets map[string]*domain.Market // by ID

	createErr error
	settleErr error
}

func newFakeMarkets() *fakeMarkets {
	return &fakeMarkets{markets: map[string]*domain.Market{}}
}

func (f *fakeMarkets) Create(_ context.Context, spec domain.CreateMarketSpec) (domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return domain.Market{}, f.createErr
	}
	for _, m := range f.markets {
		if m.Slug == spec.Slug {
			return domain.Market{}, domain.ErrAlreadyExists
		}
	}
	market := domain.Market{
		ID:          uuid.NewString(),
		Slug:        spec.Slug,
		Title:       spec.Title,
		Description: spec.Description,
		Category:    spec.Category,
		Tags:        spec.Tags,
		OracleID:    spec.OracleID,
		State:       domain.MarketStateOpen,
		Schedule:    spec.Schedule,
		Outcomes:    spec.Outcomes,
		Liquidity:   spec.Liquidity,
		Context:     spec.Context,
		Workflow:    spec.Workflow,
	}
	for i := range market.Outcomes {
		market.Outcomes[i].ID = uuid.NewString()
		market.Outcomes[i].Index = i
	}
	clone := market
	f.markets[market.ID] = &clone
	return market, nil
}

func (f *fakeMarkets) GetBySlug(_ context.Context, slug string) (domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.markets {
		if m.Slug == slug {
			return *m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (f *fakeMarkets) Settle(_ context.Context, marketID string, req domain.SettleRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settleErr != nil {
		return f.settleErr
	}
	m, ok := f.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Settlement != nil {
		return domain.ErrAlreadyExists
	}
	m.Settlement = &domain.Settlement{OutcomeID: req.OutcomeID, TxRef: req.TxRef, Notes: req.Notes}
	m.State = domain.MarketStateSettled
	return nil
}

func (f *fakeMarkets) FindEligible(_ context.Context, category string, now time.Time) ([]domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Market
	for _, m := range f.markets {
		if m.Category != category || m.Settlement != nil {
			continue
		}
		if m.Schedule.FreezeEndAt.After(now) {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeMarkets) bySlug(slug string) *domain.Market {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.markets {
		if m.Slug == slug {
			return m
		}
	}
	return nil
}

func (f *fakeMarkets) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.markets)
}

// fakePriceOracle serves canned aggregates and daily highs per symbol.
type fakePriceOracle struct {
	spot      map[string]float64
	spotErr   map[string]error
	highs     map[string]float64 // key "SYM:2006-01-02"
	highErr   map[string]error
	published []oracle.ComputedQuote
}

func newFakePriceOracle() *fakePriceOracle {
	return &fakePriceOracle{
		spot:    map[string]float64{},
		spotErr: map[string]error{},
		highs:   map[string]float64{},
		highErr: map[string]error{},
	}
}

func (f *fakePriceOracle) AggregatedPrice(_ context.Context, symbol string) (oracle.PriceAggregate, error) {
	if err := f.spotErr[symbol]; err != nil {
		return oracle.PriceAggregate{}, err
	}
	price, ok := f.spot[symbol]
	if !ok {
		return oracle.PriceAggregate{}, domain.ErrAggregationExhausted
	}
	return oracle.PriceAggregate{
		AssetSymbol: symbol,
		PriceUSD:    price,
		Sources:     []oracle.SourceQuote{{Source: "coingecko", PriceUSD: price}},
	}, nil
}

func (f *fakePriceOracle) DailyHigh(_ context.Context, symbol string, day time.Time) (oracle.DailyHighResult, error) {
	key := symbol + ":" + day.Format("2006-01-02")
	if err := f.highErr[key]; err != nil {
		return oracle.DailyHighResult{}, err
	}
	high, ok := f.highs[key]
	if !ok {
		return oracle.DailyHighResult{}, fmt.Errorf("daily high %s: %w", key, domain.ErrAggregationExhausted)
	}
	return oracle.DailyHighResult{
		AssetSymbol: symbol,
		PriceUSD:    high,
		Sources:     []oracle.SourceQuote{{Source: "binance", PriceUSD: high}},
	}, nil
}

func (f *fakePriceOracle) PublishComputed(_ context.Context, quote oracle.ComputedQuote) (domain.Snapshot, error) {
	f.published = append(f.published, quote)
	return domain.Snapshot{ID: uuid.NewString(), Signature: "sig"}, nil
}

// fakeEventOracle serves canned consensus events and fixture lists.
type fakeEventOracle struct {
	events   map[string]*domain.ConsensusEvent
	syncErr  map[string]error
	upcoming map[string][]domain.CanonicalEvent // by league ID
	listErr  error
}

func newFakeEventOracle() *fakeEventOracle {
	return &fakeEventOracle{
		events:   map[string]*domain.ConsensusEvent{},
		syncErr:  map[string]error{},
		upcoming: map[string][]domain.CanonicalEvent{},
	}
}

func (f *fakeEventOracle) SyncEvent(_ context.Context, eventID string) (*domain.ConsensusEvent, domain.Snapshot, error) {
	if err := f.syncErr[eventID]; err != nil {
		return nil, domain.Snapshot{}, err
	}
	ev, ok := f.events[eventID]
	if !ok {
		return nil, domain.Snapshot{}, domain.ErrEventUnavailable
	}
	return ev, domain.Snapshot{ID: uuid.NewString()}, nil
}

func (f *fakeEventOracle) PublishEvent(_ context.Context, ev domain.CanonicalEvent, _, _ string) (domain.Snapshot, error) {
	return domain.Snapshot{ID: uuid.NewString(), Signature: "sig"}, nil
}

func (f *fakeEventOracle) UpcomingEvents(_ context.Context, leagueID string, _ int) ([]domain.CanonicalEvent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.upcoming[leagueID], nil
}

// recordingNotifier captures lifecycle events.
type recordingNotifier struct {
	mu      sync.Mutex
	created []string // slugs
	settled []string // slugs
	errors  []error
}

func (n *recordingNotifier) MarketCreated(_ context.Context, market domain.Market) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, market.Slug)
}

func (n *recordingNotifier) MarketSettled(_ context.Context, market domain.Market, _ domain.Outcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.settled = append(n.settled, market.Slug)
}

func (n *recordingNotifier) CycleError(_ context.Context, _ string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, err)
}
