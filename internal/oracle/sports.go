package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/oraclebot/internal/consensus"
	"github.com/alanyoungcy/oraclebot/internal/crypto"
	"github.com/alanyoungcy/oraclebot/internal/domain"
)

const defaultSportsHistory = 20

// EventProvider is one upstream sports data source. FetchEvent returns
// (nil, nil) when the provider simply does not know the event.
type EventProvider interface {
	Name() string
	Enabled() bool
	FetchEvent(ctx context.Context, eventID string) (*domain.CanonicalEvent, error)
}

// ScheduleProvider lists upcoming fixtures for a league. Only TheSportsDB
// implements this today.
type ScheduleProvider interface {
	Enabled() bool
	FetchUpcoming(ctx context.Context, leagueID string, limit int) ([]domain.CanonicalEvent, error)
}

// SportsOracle reconciles event providers and publishes signed sports.event
// snapshots.
type SportsOracle struct {
	providers []EventProvider
	schedule  ScheduleProvider
	store     domain.SnapshotStore
	signer    *crypto.Signer
	publisher string
	logger    *slog.Logger
	now       func() time.Time
}

// NewSportsOracle creates a sports oracle. schedule may be nil when no
// schedule-capable provider is configured; UpcomingEvents then returns
// nothing.
func NewSportsOracle(providers []EventProvider, schedule ScheduleProvider, store domain.SnapshotStore, signer *crypto.Signer, publisher string, logger *slog.Logger) *SportsOracle {
	return &SportsOracle{
		providers: providers,
		schedule:  schedule,
		store:     store,
		signer:    signer,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "sports_oracle")),
		now:       time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (o *SportsOracle) WithClock(now func() time.Time) *SportsOracle {
	o.now = now
	return o
}

// SyncEvent queries every enabled provider for the event, reconciles their
// views, publishes the consensus as a signed snapshot, and returns both.
// When no provider answers it returns ErrEventUnavailable and publishes
// nothing.
func (o *SportsOracle) SyncEvent(ctx context.Context, eventID string) (*domain.ConsensusEvent, domain.Snapshot, error) {
	var reports []domain.CanonicalEvent
	for _, p := range o.providers {
		if !p.Enabled() {
			continue
		}
		ev, err := p.FetchEvent(ctx, eventID)
		if err != nil {
			o.logger.WarnContext(ctx, "event source failed",
				slog.String("provider", p.Name()),
				slog.String("event_id", eventID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ev == nil {
			continue
		}
		reports = append(reports, *ev)
	}
	if len(reports) == 0 {
		return nil, domain.Snapshot{}, fmt.Errorf("oracle: sync event %s: %w", eventID, domain.ErrEventUnavailable)
	}

	merged, err := consensus.Aggregate(reports)
	if err != nil {
		return nil, domain.Snapshot{}, fmt.Errorf("oracle: sync event %s: %w", eventID, err)
	}
	merged.EventID = eventID

	snap, err := o.publishConsensus(ctx, merged, "automation:sync", o.publisher)
	if err != nil {
		return nil, domain.Snapshot{}, err
	}

	if merged.StatusDisagreement || merged.ScoreDisagreement {
		o.logger.WarnContext(ctx, "providers disagree on event",
			slog.String("event_id", eventID),
			slog.Bool("status_disagreement", merged.StatusDisagreement),
			slog.Bool("score_disagreement", merged.ScoreDisagreement),
		)
	}
	return merged, snap, nil
}

// PublishEvent publishes one provider view (or a manually constructed
// event) without consensus, e.g. for operator corrections.
func (o *SportsOracle) PublishEvent(ctx context.Context, ev domain.CanonicalEvent, sourceTag, publishedBy string) (domain.Snapshot, error) {
	merged := &domain.ConsensusEvent{CanonicalEvent: ev}
	if ev.Source != "" {
		merged.Sources = []domain.SourceReport{{
			Provider: ev.Source,
			Status:   ev.Status,
			Score:    ev.Score,
			Metadata: ev.Metadata,
		}}
	}
	if publishedBy == "" {
		publishedBy = o.publisher
	}
	return o.publishConsensus(ctx, merged, sourceTag, publishedBy)
}

// UpcomingEvents lists upcoming fixtures for a league. A missing or
// disabled schedule provider yields an empty list, not an error.
func (o *SportsOracle) UpcomingEvents(ctx context.Context, leagueID string, limit int) ([]domain.CanonicalEvent, error) {
	if o.schedule == nil || !o.schedule.Enabled() {
		return nil, nil
	}
	events, err := o.schedule.FetchUpcoming(ctx, leagueID, limit)
	if err != nil {
		return nil, fmt.Errorf("oracle: upcoming events league %s: %w", leagueID, err)
	}
	return events, nil
}

// Latest returns the newest snapshot for an event.
func (o *SportsOracle) Latest(ctx context.Context, eventID string) (domain.Snapshot, error) {
	snap, err := o.store.Latest(ctx, domain.SnapshotKindSports, eventID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("oracle: latest event %s: %w", eventID, err)
	}
	return snap, nil
}

// List returns recent snapshots for an event, newest first. The limit
// defaults to 20 and is clamped to 200.
func (o *SportsOracle) List(ctx context.Context, eventID string, limit int) ([]domain.Snapshot, error) {
	snaps, err := o.store.List(ctx, domain.SnapshotKindSports, eventID, clampLimit(limit, defaultSportsHistory))
	if err != nil {
		return nil, fmt.Errorf("oracle: list event %s: %w", eventID, err)
	}
	return snaps, nil
}

// ---- Internal helpers ----

func (o *SportsOracle) publishConsensus(ctx context.Context, merged *domain.ConsensusEvent, sourceTag, publishedBy string) (domain.Snapshot, error) {
	observedAt := o.now().UTC()
	payload := eventPayload(merged, observedAt)

	signature, err := o.signer.Sign(payload)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("oracle: sign event %s: %w", merged.EventID, err)
	}

	snap := domain.Snapshot{
		ID:          uuid.NewString(),
		Kind:        domain.SnapshotKindSports,
		SourceTag:   sourceTag,
		SubjectKey:  merged.EventID,
		Payload:     payload,
		Signature:   signature,
		PublishedBy: publishedBy,
		ObservedAt:  observedAt,
		CreatedAt:   observedAt,
	}
	if err := o.store.Insert(ctx, snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("oracle: persist event %s: %w", merged.EventID, err)
	}

	o.logger.InfoContext(ctx, "event published",
		slog.String("event_id", merged.EventID),
		slog.String("status", string(merged.Status)),
		slog.String("source_tag", sourceTag),
	)
	return snap, nil
}

// eventPayload renders the consensus into the signed wire shape.
func eventPayload(merged *domain.ConsensusEvent, observedAt time.Time) map[string]any {
	metadata := map[string]any{}
	for k, v := range merged.Metadata {
		metadata[k] = v
	}

	sources := make([]any, 0, len(merged.Sources))
	for _, src := range merged.Sources {
		entry := map[string]any{
			"provider": src.Provider,
			"status":   string(src.Status),
		}
		if src.Score != nil {
			entry["score"] = scorePayload(src.Score)
		}
		sources = append(sources, entry)
	}
	if len(sources) > 0 {
		metadata["sources"] = sources
		metadata["statusDisagreement"] = merged.StatusDisagreement
		metadata["scoreDisagreement"] = merged.ScoreDisagreement
	}

	if len(merged.Players) > 0 {
		players := make([]any, 0, len(merged.Players))
		for _, p := range merged.Players {
			stats := map[string]any{}
			for k, v := range p.Stats {
				stats[k] = v
			}
			players = append(players, map[string]any{
				"playerId":   p.PlayerID,
				"playerName": p.PlayerName,
				"teamName":   p.TeamName,
				"stats":      stats,
			})
		}
		metadata["players"] = players
	}

	payload := map[string]any{
		"type":      "sports.event",
		"eventId":   merged.EventID,
		"status":    string(merged.Status),
		"league":    merged.League,
		"sport":     merged.Sport,
		"headline":  merged.Headline,
		"metadata":  metadata,
		"updatedAt": observedAt.Format(time.RFC3339),
	}
	if merged.StartsAt != nil {
		payload["startsAt"] = merged.StartsAt.UTC().Format(time.RFC3339)
	}
	if merged.Score != nil {
		payload["score"] = scorePayload(merged.Score)
	}
	return payload
}

func scorePayload(score *domain.Score) map[string]any {
	out := map[string]any{
		"home": score.Home,
		"away": score.Away,
	}
	if score.Period != "" {
		out["period"] = score.Period
	}
	return out
}
