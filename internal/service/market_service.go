// Package service implements the market lifecycle operations the automation
// drives: creation, settlement, and eligibility queries.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

// MarketService creates, settles, and queries markets over the persistent
// store. It deliberately owns no pricing logic; outcome probabilities and
// liquidity splits arrive fully formed from the caller.
type MarketService struct {
	store  domain.MarketStore
	logger *slog.Logger
	now    func() time.Time
}

// NewMarketService creates a MarketService.
func NewMarketService(store domain.MarketStore, logger *slog.Logger) *MarketService {
	return &MarketService{
		store:  store,
		logger: logger.With(slog.String("component", "market_service")),
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *MarketService) WithClock(now func() time.Time) *MarketService {
	s.now = now
	return s
}

// Create validates the spec, assigns IDs, and persists the market in draft
// state. Slugs are unique: creating an existing slug fails with
// ErrAlreadyExists and changes nothing.
func (s *MarketService) Create(ctx context.Context, spec domain.CreateMarketSpec) (domain.Market, error) {
	if spec.Slug == "" {
		return domain.Market{}, errors.New("market_service: create: slug is required")
	}
	if spec.Title == "" {
		return domain.Market{}, errors.New("market_service: create: title is required")
	}
	if len(spec.Outcomes) < 2 {
		return domain.Market{}, fmt.Errorf("market_service: create %s: at least two outcomes required", spec.Slug)
	}

	_, err := s.store.GetBySlug(ctx, spec.Slug)
	switch {
	case err == nil:
		return domain.Market{}, fmt.Errorf("market_service: create %s: %w", spec.Slug, domain.ErrAlreadyExists)
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Market{}, fmt.Errorf("market_service: create %s: lookup: %w", spec.Slug, err)
	}

	now := s.now().UTC()
	market := domain.Market{
		ID:          uuid.NewString(),
		Slug:        spec.Slug,
		Title:       spec.Title,
		Description: spec.Description,
		Category:    spec.Category,
		Tags:        spec.Tags,
		OracleID:    spec.OracleID,
		State:       domain.MarketStateDraft,
		Schedule:    spec.Schedule,
		Liquidity:   spec.Liquidity,
		Context:     spec.Context,
		Workflow:    spec.Workflow,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	market.Outcomes = make([]domain.Outcome, len(spec.Outcomes))
	for i, outcome := range spec.Outcomes {
		outcome.ID = uuid.NewString()
		outcome.Index = i
		market.Outcomes[i] = outcome
	}

	if err := s.store.Insert(ctx, market); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create %s: %w", spec.Slug, err)
	}

	s.logger.InfoContext(ctx, "market created",
		slog.String("market_id", market.ID),
		slog.String("slug", market.Slug),
		slog.String("category", market.Category),
		slog.Int("outcomes", len(market.Outcomes)),
	)
	return market, nil
}

// GetBySlug returns a market by its slug.
func (s *MarketService) GetBySlug(ctx context.Context, slug string) (domain.Market, error) {
	market, err := s.store.GetBySlug(ctx, slug)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %s: %w", slug, err)
	}
	return market, nil
}

// GetByID returns a market by its ID.
func (s *MarketService) GetByID(ctx context.Context, id string) (domain.Market, error) {
	market, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get id %s: %w", id, err)
	}
	return market, nil
}

// Settle resolves a market to one of its outcomes. A market settles at most
// once; a second settlement fails with ErrAlreadyExists.
func (s *MarketService) Settle(ctx context.Context, marketID string, req domain.SettleRequest) error {
	market, err := s.store.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("market_service: settle %s: %w", marketID, err)
	}
	if market.Settlement != nil {
		return fmt.Errorf("market_service: settle %s: %w", marketID, domain.ErrAlreadyExists)
	}

	found := false
	for _, outcome := range market.Outcomes {
		if outcome.ID == req.OutcomeID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("market_service: settle %s: outcome %s: %w", marketID, req.OutcomeID, domain.ErrNotFound)
	}

	settlement := domain.Settlement{
		OutcomeID: req.OutcomeID,
		TxRef:     req.TxRef,
		Notes:     req.Notes,
		SettledAt: s.now().UTC(),
	}
	if err := s.store.SetSettlement(ctx, marketID, settlement); err != nil {
		return fmt.Errorf("market_service: settle %s: %w", marketID, err)
	}

	s.logger.InfoContext(ctx, "market settled",
		slog.String("market_id", marketID),
		slog.String("slug", market.Slug),
		slog.String("outcome_id", req.OutcomeID),
		slog.String("tx_ref", req.TxRef),
	)
	return nil
}

// FindEligible returns unsettled markets in a category whose dispute window
// has fully elapsed. Eligibility is purely time-based: the freeze window
// ending implies trading has closed, and the engine does not depend on a
// state column another system transitions.
func (s *MarketService) FindEligible(ctx context.Context, category string, now time.Time) ([]domain.Market, error) {
	markets, err := s.store.Find(ctx, domain.MarketFilter{
		Category:      category,
		FreezeEndedBy: &now,
		Unsettled:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("market_service: find eligible %s: %w", category, err)
	}
	return markets, nil
}
