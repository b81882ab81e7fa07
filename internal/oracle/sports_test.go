package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oraclebot/internal/crypto"
	"github.com/alanyoungcy/oraclebot/internal/domain"
)

// stubEventProvider returns a fixed event view or an error.
type stubEventProvider struct {
	name    string
	enabled bool
	event   *domain.CanonicalEvent
	err     error

	upcoming    []domain.CanonicalEvent
	upcomingErr error
}

func (p *stubEventProvider) Name() string  { return p.name }
func (p *stubEventProvider) Enabled() bool { return p.enabled }

func (p *stubEventProvider) FetchEvent(context.Context, string) (*domain.CanonicalEvent, error) {
	return p.event, p.err
}

func (p *stubEventProvider) FetchUpcoming(context.Context, string, int) ([]domain.CanonicalEvent, error) {
	return p.upcoming, p.upcomingErr
}

func newSportsOracle(t *testing.T, store *memSnapshotStore, schedule ScheduleProvider, providers ...EventProvider) *SportsOracle {
	t.Helper()
	signer, err := crypto.NewSigner("test-secret")
	require.NoError(t, err)
	o := NewSportsOracle(providers, schedule, store, signer, "oraclebot", testLogger())
	return o.WithClock(func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) })
}

func finalEvent(source string, home, away int) *domain.CanonicalEvent {
	return &domain.CanonicalEvent{
		EventID: "603310",
		Source:  source,
		Status:  domain.EventStatusFinal,
		Sport:   "soccer",
		League:  "Premier League",
		Score:   &domain.Score{Home: home, Away: away, Final: true},
	}
}

func TestSyncEventPublishesConsensus(t *testing.T) {
	store := &memSnapshotStore{}
	o := newSportsOracle(t, store, nil,
		&stubEventProvider{name: "thesportsdb", enabled: true, event: finalEvent("thesportsdb", 2, 1)},
		&stubEventProvider{name: "sportmonks", enabled: true, event: finalEvent("sportmonks", 2, 1)},
	)

	merged, snap, err := o.SyncEvent(context.Background(), "603310")
	require.NoError(t, err)

	assert.Equal(t, domain.EventStatusFinal, merged.Status)
	require.NotNil(t, merged.Score)
	assert.Equal(t, 2, merged.Score.Home)
	assert.False(t, merged.ScoreDisagreement)

	assert.Equal(t, domain.SnapshotKindSports, snap.Kind)
	assert.Equal(t, "603310", snap.SubjectKey)
	assert.Equal(t, "sports.event", snap.Payload["type"])
	assert.NotEmpty(t, snap.Signature)

	meta, ok := snap.Payload["metadata"].(map[string]any)
	require.True(t, ok)
	sources, ok := meta["sources"].([]any)
	require.True(t, ok)
	assert.Len(t, sources, 2)
	assert.Equal(t, false, meta["scoreDisagreement"])

	require.Len(t, store.snaps, 1)
}

func TestSyncEventSkipsFailedAndUnknownProviders(t *testing.T) {
	store := &memSnapshotStore{}
	o := newSportsOracle(t, store, nil,
		&stubEventProvider{name: "thesportsdb", enabled: true, err: errors.New("timeout")},
		&stubEventProvider{name: "sportmonks", enabled: true, event: nil}, // not found
		&stubEventProvider{name: "backup", enabled: true, event: finalEvent("backup", 1, 0)},
	)

	merged, _, err := o.SyncEvent(context.Background(), "603310")
	require.NoError(t, err)
	require.Len(t, merged.Sources, 1)
	assert.Equal(t, "backup", merged.Sources[0].Provider)
}

func TestSyncEventNoProviders(t *testing.T) {
	store := &memSnapshotStore{}
	o := newSportsOracle(t, store, nil,
		&stubEventProvider{name: "thesportsdb", enabled: true, err: errors.New("down")},
		&stubEventProvider{name: "sportmonks", enabled: false, event: finalEvent("sportmonks", 2, 1)},
	)

	_, _, err := o.SyncEvent(context.Background(), "603310")
	assert.ErrorIs(t, err, domain.ErrEventUnavailable)
	assert.Empty(t, store.snaps)
}

func TestSyncEventDisagreementFlagsInPayload(t *testing.T) {
	store := &memSnapshotStore{}
	o := newSportsOracle(t, store, nil,
		&stubEventProvider{name: "thesportsdb", enabled: true, event: finalEvent("thesportsdb", 2, 1)},
		&stubEventProvider{name: "sportmonks", enabled: true, event: &domain.CanonicalEvent{
			EventID: "603310",
			Source:  "sportmonks",
			Status:  domain.EventStatusLive,
			Score:   &domain.Score{Home: 2, Away: 2},
		}},
	)

	merged, snap, err := o.SyncEvent(context.Background(), "603310")
	require.NoError(t, err)
	assert.True(t, merged.StatusDisagreement)
	assert.True(t, merged.ScoreDisagreement)
	// Finalized 2-1 wins over the live 2-2.
	require.NotNil(t, merged.Score)
	assert.Equal(t, 1, merged.Score.Away)

	meta := snap.Payload["metadata"].(map[string]any)
	assert.Equal(t, true, meta["statusDisagreement"])
	assert.Equal(t, true, meta["scoreDisagreement"])
}

func TestPublishEventManual(t *testing.T) {
	store := &memSnapshotStore{}
	o := newSportsOracle(t, store, nil)

	snap, err := o.PublishEvent(context.Background(), *finalEvent("manual", 3, 0), "manual", "ops")
	require.NoError(t, err)
	assert.Equal(t, "manual", snap.SourceTag)
	assert.Equal(t, "ops", snap.PublishedBy)
	score, ok := snap.Payload["score"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, score["home"])
}

func TestUpcomingEvents(t *testing.T) {
	schedule := &stubEventProvider{
		name:    "thesportsdb",
		enabled: true,
		upcoming: []domain.CanonicalEvent{
			{EventID: "1", Status: domain.EventStatusScheduled},
			{EventID: "2", Status: domain.EventStatusScheduled},
		},
	}
	o := newSportsOracle(t, &memSnapshotStore{}, schedule)

	events, err := o.UpcomingEvents(context.Background(), "4328", 5)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestUpcomingEventsWithoutScheduleProvider(t *testing.T) {
	o := newSportsOracle(t, &memSnapshotStore{}, nil)
	events, err := o.UpcomingEvents(context.Background(), "4328", 5)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestListEventHistory(t *testing.T) {
	store := &memSnapshotStore{}
	o := newSportsOracle(t, store, nil,
		&stubEventProvider{name: "thesportsdb", enabled: true, event: finalEvent("thesportsdb", 2, 1)},
	)

	_, _, err := o.SyncEvent(context.Background(), "603310")
	require.NoError(t, err)

	snaps, err := o.List(context.Background(), "603310", 0)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)

	latest, err := o.Latest(context.Background(), "603310")
	require.NoError(t, err)
	assert.Equal(t, "603310", latest.SubjectKey)
}
