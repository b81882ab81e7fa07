package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

// Automation event types, usable in the notifier's event filter config.
const (
	EventMarketCreated = "market_created"
	EventMarketSettled = "market_settled"
	EventCycleError    = "cycle_error"
)

// Events adapts the channel notifier to the automation lifecycle callbacks.
// Delivery failures are logged by the underlying notifier and never
// propagated: notifications must not affect the cycle outcome.
type Events struct {
	notifier *Notifier
}

// NewEvents creates the automation-facing adapter.
func NewEvents(notifier *Notifier) *Events {
	return &Events{notifier: notifier}
}

// MarketCreated announces a newly created market.
func (e *Events) MarketCreated(ctx context.Context, market domain.Market) {
	message := fmt.Sprintf("%s\nSlug: %s\nCategory: %s\nCloses: %s",
		market.Title, market.Slug, market.Category,
		market.Schedule.CloseAt.UTC().Format(time.RFC3339),
	)
	_ = e.notifier.Notify(ctx, EventMarketCreated, "Market created", message)
}

// MarketSettled announces a settled market and its winning outcome.
func (e *Events) MarketSettled(ctx context.Context, market domain.Market, outcome domain.Outcome) {
	message := fmt.Sprintf("%s\nSlug: %s\nOutcome: %s",
		market.Title, market.Slug, outcome.Label,
	)
	if market.Settlement != nil && market.Settlement.TxRef != "" {
		message += "\nTx: " + market.Settlement.TxRef
	}
	_ = e.notifier.Notify(ctx, EventMarketSettled, "Market settled", message)
}

// CycleError reports a failure inside an automation cycle.
func (e *Events) CycleError(ctx context.Context, component string, err error) {
	message := fmt.Sprintf("Component: %s\nError: %v", component, err)
	_ = e.notifier.Notify(ctx, EventCycleError, "Automation error", message)
}
