package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

const pgUniqueViolation = "23505"

// MarketStore implements domain.MarketStore using PostgreSQL. A market spans
// three tables: the market row, its outcomes, and an optional settlement.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Insert stores a market and its outcomes atomically. A slug collision maps
// to ErrAlreadyExists so creation stays idempotent under concurrent cycles.
func (s *MarketStore) Insert(ctx context.Context, m domain.Market) error {
	workflow, err := json.Marshal(m.Workflow)
	if err != nil {
		return fmt.Errorf("postgres: encode workflow %s: %w", m.Slug, err)
	}

	var (
		ctxAsset, ctxEvent, ctxLeague, ctxSport string
		ctxTarget                               *time.Time
	)
	if m.Context != nil {
		ctxAsset = m.Context.AssetSymbol
		ctxTarget = m.Context.TargetDate
		ctxEvent = m.Context.EventID
		ctxLeague = m.Context.League
		ctxSport = m.Context.Sport
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin insert market %s: %w", m.Slug, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const marketQuery = `
		INSERT INTO markets (
			id, slug, title, description, category, tags, oracle_id, state,
			open_at, trading_lock_at, close_at, freeze_start_at, freeze_end_at,
			liquidity_token, liquidity_total, liquidity_fee_bps, liquidity_providers,
			ctx_asset_symbol, ctx_target_date, ctx_event_id, ctx_league, ctx_sport,
			workflow, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20, $21, $22,
			$23, $24, $25
		)`

	_, err = tx.Exec(ctx, marketQuery,
		m.ID, m.Slug, m.Title, m.Description, m.Category, m.Tags, m.OracleID, string(m.State),
		m.Schedule.OpenAt, m.Schedule.TradingLockAt, m.Schedule.CloseAt,
		m.Schedule.FreezeStartAt, m.Schedule.FreezeEndAt,
		m.Liquidity.TokenSymbol, m.Liquidity.TotalLiquidity, m.Liquidity.FeeBps, m.Liquidity.ProviderCount,
		ctxAsset, ctxTarget, ctxEvent, ctxLeague, ctxSport,
		workflow, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert market %s: %w", m.Slug, err)
	}

	const outcomeQuery = `
		INSERT INTO market_outcomes (
			id, market_id, idx, label, kind,
			min_exclusive, min_inclusive, max_exclusive, max_inclusive,
			team, implied_probability, liquidity, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	for _, o := range m.Outcomes {
		var minEx, minIn, maxEx, maxIn *float64
		if o.Bounds != nil {
			minEx, minIn = o.Bounds.MinExclusive, o.Bounds.MinInclusive
			maxEx, maxIn = o.Bounds.MaxExclusive, o.Bounds.MaxInclusive
		}
		var metadata []byte
		if o.Metadata != nil {
			if metadata, err = json.Marshal(o.Metadata); err != nil {
				return fmt.Errorf("postgres: encode outcome metadata %s/%d: %w", m.Slug, o.Index, err)
			}
		}
		if _, err := tx.Exec(ctx, outcomeQuery,
			o.ID, m.ID, o.Index, o.Label, string(o.Kind),
			minEx, minIn, maxEx, maxIn,
			o.Team, o.ImpliedProbability, o.Liquidity, metadata,
		); err != nil {
			return fmt.Errorf("postgres: insert outcome %s/%d: %w", m.Slug, o.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit insert market %s: %w", m.Slug, err)
	}
	return nil
}

// GetByID retrieves a market with its outcomes and settlement.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	return s.getOne(ctx, `WHERE m.id = $1`, id)
}

// GetBySlug retrieves a market by its slug.
func (s *MarketStore) GetBySlug(ctx context.Context, slug string) (domain.Market, error) {
	return s.getOne(ctx, `WHERE m.slug = $1`, slug)
}

// Find returns markets matching the filter, oldest freeze end first.
func (s *MarketStore) Find(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets m
		LEFT JOIN market_settlements st ON st.market_id = m.id
		WHERE TRUE`
	args := []any{}

	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND m.category = $%d", len(args))
	}
	if filter.State != "" {
		args = append(args, string(filter.State))
		query += fmt.Sprintf(" AND m.state = $%d", len(args))
	}
	if filter.SlugPrefix != "" {
		args = append(args, filter.SlugPrefix+"%")
		query += fmt.Sprintf(" AND m.slug LIKE $%d", len(args))
	}
	if filter.FreezeEndedBy != nil {
		args = append(args, *filter.FreezeEndedBy)
		query += fmt.Sprintf(" AND m.freeze_end_at <= $%d", len(args))
	}
	if filter.Unsettled {
		query += " AND st.market_id IS NULL"
	}

	query += " ORDER BY m.freeze_end_at ASC, m.slug ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: find markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: find markets rows: %w", err)
	}

	for i := range markets {
		if err := s.attachOutcomes(ctx, &markets[i]); err != nil {
			return nil, err
		}
	}
	return markets, nil
}

// SetSettlement records the settlement and transitions the market to the
// settled state. A second settlement attempt fails with ErrAlreadyExists.
func (s *MarketStore) SetSettlement(ctx context.Context, marketID string, settlement domain.Settlement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin settle %s: %w", marketID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
		INSERT INTO market_settlements (market_id, outcome_id, tx_ref, notes, settled_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.Exec(ctx, query,
		marketID, settlement.OutcomeID, settlement.TxRef, settlement.Notes, settlement.SettledAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert settlement %s: %w", marketID, err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE markets SET state = $1, updated_at = NOW() WHERE id = $2`,
		string(domain.MarketStateSettled), marketID,
	)
	if err != nil {
		return fmt.Errorf("postgres: settle market %s: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit settle %s: %w", marketID, err)
	}
	return nil
}

// ---- Internal helpers ----

const marketCols = `m.id, m.slug, m.title, m.description, m.category, m.tags,
	m.oracle_id, m.state,
	m.open_at, m.trading_lock_at, m.close_at, m.freeze_start_at, m.freeze_end_at,
	m.liquidity_token, m.liquidity_total, m.liquidity_fee_bps, m.liquidity_providers,
	m.ctx_asset_symbol, m.ctx_target_date, m.ctx_event_id, m.ctx_league, m.ctx_sport,
	m.workflow, m.created_at, m.updated_at,
	st.outcome_id, st.tx_ref, st.notes, st.settled_at`

func (s *MarketStore) getOne(ctx context.Context, where string, arg any) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets m
		 LEFT JOIN market_settlements st ON st.market_id = m.id `+where, arg)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %v: %w", arg, err)
	}
	if err := s.attachOutcomes(ctx, &m); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m         domain.Market
		state     string
		ctxAsset  string
		ctxTarget *time.Time
		ctxEvent  string
		ctxLeague string
		ctxSport  string
		workflow  []byte

		stOutcomeID *string
		stTxRef     *string
		stNotes     *string
		stSettledAt *time.Time
	)
	err := row.Scan(
		&m.ID, &m.Slug, &m.Title, &m.Description, &m.Category, &m.Tags,
		&m.OracleID, &state,
		&m.Schedule.OpenAt, &m.Schedule.TradingLockAt, &m.Schedule.CloseAt,
		&m.Schedule.FreezeStartAt, &m.Schedule.FreezeEndAt,
		&m.Liquidity.TokenSymbol, &m.Liquidity.TotalLiquidity,
		&m.Liquidity.FeeBps, &m.Liquidity.ProviderCount,
		&ctxAsset, &ctxTarget, &ctxEvent, &ctxLeague, &ctxSport,
		&workflow, &m.CreatedAt, &m.UpdatedAt,
		&stOutcomeID, &stTxRef, &stNotes, &stSettledAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	m.State = domain.MarketState(state)
	if ctxAsset != "" || ctxEvent != "" {
		m.Context = &domain.AutomationContext{
			AssetSymbol: ctxAsset,
			TargetDate:  ctxTarget,
			EventID:     ctxEvent,
			League:      ctxLeague,
			Sport:       ctxSport,
		}
	}
	if len(workflow) > 0 {
		if err := json.Unmarshal(workflow, &m.Workflow); err != nil {
			return domain.Market{}, fmt.Errorf("decode workflow: %w", err)
		}
	}
	if stOutcomeID != nil {
		m.Settlement = &domain.Settlement{OutcomeID: *stOutcomeID}
		if stTxRef != nil {
			m.Settlement.TxRef = *stTxRef
		}
		if stNotes != nil {
			m.Settlement.Notes = *stNotes
		}
		if stSettledAt != nil {
			m.Settlement.SettledAt = *stSettledAt
		}
	}
	return m, nil
}

func (s *MarketStore) attachOutcomes(ctx context.Context, m *domain.Market) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id, idx, label, kind,
			min_exclusive, min_inclusive, max_exclusive, max_inclusive,
			team, implied_probability, liquidity, metadata
		 FROM market_outcomes WHERE market_id = $1 ORDER BY idx ASC`, m.ID)
	if err != nil {
		return fmt.Errorf("postgres: load outcomes %s: %w", m.Slug, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o            domain.Outcome
			kind         string
			minEx, minIn *float64
			maxEx, maxIn *float64
			metadata     []byte
		)
		if err := rows.Scan(
			&o.ID, &o.Index, &o.Label, &kind,
			&minEx, &minIn, &maxEx, &maxIn,
			&o.Team, &o.ImpliedProbability, &o.Liquidity, &metadata,
		); err != nil {
			return fmt.Errorf("postgres: scan outcome %s: %w", m.Slug, err)
		}
		o.Kind = domain.OutcomeKind(kind)
		if minEx != nil || minIn != nil || maxEx != nil || maxIn != nil {
			o.Bounds = &domain.PriceBounds{
				MinExclusive: minEx, MinInclusive: minIn,
				MaxExclusive: maxEx, MaxInclusive: maxIn,
			}
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &o.Metadata); err != nil {
				return fmt.Errorf("postgres: decode outcome metadata %s: %w", m.Slug, err)
			}
		}
		m.Outcomes = append(m.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: outcome rows %s: %w", m.Slug, err)
	}
	return nil
}
