package domain

import "time"

// MarketState represents the lifecycle state of a market.
type MarketState string

const (
	MarketStateDraft    MarketState = "draft"
	MarketStateOpen     MarketState = "open"
	MarketStateClosed   MarketState = "closed"
	MarketStateSettled  MarketState = "settled"
	MarketStateCanceled MarketState = "canceled"
)

// OutcomeKind classifies how an outcome is resolved. Resolution matches on
// the kind and typed bounds, never on the display label.
type OutcomeKind string

const (
	OutcomeKindRange  OutcomeKind = "range" // numeric interval over an observed value
	OutcomeKindHome   OutcomeKind = "home"
	OutcomeKindAway   OutcomeKind = "away"
	OutcomeKindDraw   OutcomeKind = "draw"
	OutcomeKindCancel OutcomeKind = "cancel"
)

// PriceBounds is a half-open (or closed) numeric interval. Nil fields are
// unbounded on that side. At most one of the Min pair and one of the Max
// pair is set.
type PriceBounds struct {
	MinExclusive *float64
	MinInclusive *float64
	MaxExclusive *float64
	MaxInclusive *float64
}

// Contains reports whether v falls inside the interval. Exclusive bounds
// are strict; a value exactly on an exclusive max belongs to the next
// bucket up.
func (b PriceBounds) Contains(v float64) bool {
	if b.MinExclusive != nil && !(v > *b.MinExclusive) {
		return false
	}
	if b.MinInclusive != nil && !(v >= *b.MinInclusive) {
		return false
	}
	if b.MaxExclusive != nil && !(v < *b.MaxExclusive) {
		return false
	}
	if b.MaxInclusive != nil && !(v <= *b.MaxInclusive) {
		return false
	}
	return true
}

// Outcome is one tradable result of a market.
type Outcome struct {
	ID                 string
	Index              int
	Label              string
	Kind               OutcomeKind
	Bounds             *PriceBounds // set for range outcomes
	Team               string       // set for home/away outcomes
	ImpliedProbability float64
	Liquidity          float64
	Metadata           map[string]any
}

// Schedule holds the trading timeline of a market. The freeze window is the
// dispute period between event conclusion and earliest settlement.
type Schedule struct {
	OpenAt        time.Time
	TradingLockAt time.Time
	CloseAt       time.Time
	FreezeStartAt time.Time
	FreezeEndAt   time.Time
}

// AutomationContext carries the structured inputs an automated market was
// created from, so resolution never has to re-derive them from tags or the
// slug.
type AutomationContext struct {
	AssetSymbol string     // crypto markets
	TargetDate  *time.Time // crypto markets: UTC day whose high is measured
	EventID     string     // sports markets
	League      string
	Sport       string
}

// WorkflowStep is one entry of the market's automation workflow, recorded
// for operators rather than executed by the engine.
type WorkflowStep struct {
	Type        string
	Status      string
	Description string
	TriggersAt  *time.Time
	Metadata    map[string]any
}

// LiquidityPool describes the synthetic pool seeded at creation.
type LiquidityPool struct {
	TokenSymbol    string
	TotalLiquidity float64
	FeeBps         int
	ProviderCount  int
}

// Settlement records the resolved outcome of a market.
type Settlement struct {
	OutcomeID string
	TxRef     string
	Notes     string
	SettledAt time.Time
}

// Market is a prediction market tracked by the engine.
type Market struct {
	ID          string
	Slug        string
	Title       string
	Description string
	Category    string
	Tags        []string
	OracleID    string
	State       MarketState
	Schedule    Schedule
	Outcomes    []Outcome
	Liquidity   LiquidityPool
	Context     *AutomationContext
	Workflow    []WorkflowStep
	Settlement  *Settlement
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateMarketSpec is the input to market creation. IDs are assigned by the
// service; outcome Index is taken from slice position.
type CreateMarketSpec struct {
	Slug        string
	Title       string
	Description string
	Category    string
	Tags        []string
	OracleID    string
	Schedule    Schedule
	Outcomes    []Outcome
	Liquidity   LiquidityPool
	Context     *AutomationContext
	Workflow    []WorkflowStep
}

// SettleRequest resolves a market to one of its outcomes.
type SettleRequest struct {
	OutcomeID string
	TxRef     string
	Notes     string
}

// MarketFilter narrows market queries. Zero fields are ignored.
type MarketFilter struct {
	Category       string
	State          MarketState
	SlugPrefix     string
	FreezeEndedBy  *time.Time // freeze window ended at or before this instant
	Unsettled      bool
	Limit          int
}

// MarketVolume is one row of the external volume feed used for popularity
// ranking of sports fixtures.
type MarketVolume struct {
	Question string
	Slug     string
	Volume   float64
}
