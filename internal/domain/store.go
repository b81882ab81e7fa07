package domain

import (
	"context"
	"time"
)

// SnapshotStore persists the append-only oracle snapshot log.
type SnapshotStore interface {
	Insert(ctx context.Context, snap Snapshot) error
	// Latest returns the most recent snapshot for a subject.
	Latest(ctx context.Context, kind SnapshotKind, subjectKey string) (Snapshot, error)
	// List returns up to limit snapshots for a subject, newest first.
	List(ctx context.Context, kind SnapshotKind, subjectKey string, limit int) ([]Snapshot, error)
	// ListOlderThan pages snapshots created before cutoff and strictly
	// after the cursor, oldest first. A zero cursor starts from the
	// beginning.
	ListOlderThan(ctx context.Context, cutoff, cursor time.Time, limit int) ([]Snapshot, error)
	// DeleteOlderThan prunes snapshots created before cutoff and returns
	// the number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// MarketStore persists markets, their outcomes, and settlements.
type MarketStore interface {
	Insert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetBySlug(ctx context.Context, slug string) (Market, error)
	Find(ctx context.Context, filter MarketFilter) ([]Market, error)
	// SetSettlement records the settlement and transitions the market to
	// the settled state. It fails with ErrAlreadyExists if a settlement is
	// already recorded.
	SetSettlement(ctx context.Context, marketID string, settlement Settlement) error
}

// VolumeCache caches the external volume feed between automation cycles.
type VolumeCache interface {
	Get(ctx context.Context) ([]MarketVolume, error)
	Set(ctx context.Context, markets []MarketVolume) error
}
