package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

// memMarketStore is an in-memory MarketStore for service tests.
type memMarketStore struct {
	markets map[string]*domain.Market // by ID
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{markets: map[string]*domain.Market{}}
}

func (s *memMarketStore) Insert(_ context.Context, market domain.Market) error {
	for _, existing := range s.markets {
		if existing.Slug == market.Slug {
			return domain.ErrAlreadyExists
		}
	}
	clone := market
	s.markets[market.ID] = &clone
	return nil
}

func (s *memMarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	if m, ok := s.markets[id]; ok {
		return *m, nil
	}
	return domain.Market{}, domain.ErrNotFound
}

func (s *memMarketStore) GetBySlug(_ context.Context, slug string) (domain.Market, error) {
	for _, m := range s.markets {
		if m.Slug == slug {
			return *m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (s *memMarketStore) Find(_ context.Context, filter domain.MarketFilter) ([]domain.Market, error) {
	var out []domain.Market
	for _, m := range s.markets {
		if filter.Category != "" && m.Category != filter.Category {
			continue
		}
		if filter.State != "" && m.State != filter.State {
			continue
		}
		if filter.Unsettled && m.Settlement != nil {
			continue
		}
		if filter.FreezeEndedBy != nil && m.Schedule.FreezeEndAt.After(*filter.FreezeEndedBy) {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (s *memMarketStore) SetSettlement(_ context.Context, marketID string, settlement domain.Settlement) error {
	m, ok := s.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Settlement != nil {
		return domain.ErrAlreadyExists
	}
	m.Settlement = &settlement
	m.State = domain.MarketStateSettled
	return nil
}

func newService(store domain.MarketStore) *MarketService {
	svc := NewMarketService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc.WithClock(func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) })
}

func sampleSpec(slug string) domain.CreateMarketSpec {
	return domain.CreateMarketSpec{
		Slug:     slug,
		Title:    "BTC daily high 2026-08-29",
		Category: "crypto",
		Outcomes: []domain.Outcome{
			{Label: "Below 61,750", Kind: domain.OutcomeKindRange},
			{Label: "61,750 or above", Kind: domain.OutcomeKindRange},
		},
	}
}

func TestCreateAssignsIdentity(t *testing.T) {
	svc := newService(newMemMarketStore())

	market, err := svc.Create(context.Background(), sampleSpec("crypto-btc-daily-high-2026-08-29"))
	require.NoError(t, err)

	assert.NotEmpty(t, market.ID)
	assert.Equal(t, domain.MarketStateDraft, market.State)
	require.Len(t, market.Outcomes, 2)
	assert.NotEmpty(t, market.Outcomes[0].ID)
	assert.Equal(t, 0, market.Outcomes[0].Index)
	assert.Equal(t, 1, market.Outcomes[1].Index)
	assert.NotEqual(t, market.Outcomes[0].ID, market.Outcomes[1].ID)
}

func TestCreateDuplicateSlug(t *testing.T) {
	svc := newService(newMemMarketStore())

	_, err := svc.Create(context.Background(), sampleSpec("crypto-btc-daily-high-2026-08-29"))
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), sampleSpec("crypto-btc-daily-high-2026-08-29"))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestCreateRequiresTwoOutcomes(t *testing.T) {
	svc := newService(newMemMarketStore())

	spec := sampleSpec("crypto-btc-daily-high-2026-08-29")
	spec.Outcomes = spec.Outcomes[:1]
	_, err := svc.Create(context.Background(), spec)
	require.Error(t, err)
}

func TestSettleOnce(t *testing.T) {
	store := newMemMarketStore()
	svc := newService(store)

	market, err := svc.Create(context.Background(), sampleSpec("crypto-btc-daily-high-2026-08-29"))
	require.NoError(t, err)

	req := domain.SettleRequest{
		OutcomeID: market.Outcomes[1].ID,
		TxRef:     "auto:crypto:crypto-btc-daily-high-2026-08-29:1787054400000",
	}
	require.NoError(t, svc.Settle(context.Background(), market.ID, req))

	settled, err := svc.GetByID(context.Background(), market.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStateSettled, settled.State)
	require.NotNil(t, settled.Settlement)
	assert.Equal(t, market.Outcomes[1].ID, settled.Settlement.OutcomeID)

	// Settling twice is rejected.
	err = svc.Settle(context.Background(), market.ID, req)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestSettleUnknownOutcome(t *testing.T) {
	svc := newService(newMemMarketStore())

	market, err := svc.Create(context.Background(), sampleSpec("crypto-btc-daily-high-2026-08-29"))
	require.NoError(t, err)

	err = svc.Settle(context.Background(), market.ID, domain.SettleRequest{OutcomeID: "bogus"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindEligible(t *testing.T) {
	store := newMemMarketStore()
	svc := newService(store)

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	eligible, err := svc.Create(context.Background(), sampleSpec("crypto-btc-daily-high-2026-08-26"))
	require.NoError(t, err)
	frozen, err := svc.Create(context.Background(), sampleSpec("crypto-btc-daily-high-2026-08-27"))
	require.NoError(t, err)

	// Eligible: closed, freeze elapsed.
	store.markets[eligible.ID].State = domain.MarketStateClosed
	store.markets[eligible.ID].Schedule.FreezeEndAt = now.Add(-time.Hour)
	// Not eligible: still inside the dispute window.
	store.markets[frozen.ID].State = domain.MarketStateClosed
	store.markets[frozen.ID].Schedule.FreezeEndAt = now.Add(2 * time.Hour)

	found, err := svc.FindEligible(context.Background(), "crypto", now)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, eligible.ID, found[0].ID)
}
