package domain

import "time"

// SnapshotKind partitions the oracle snapshot log by payload family.
type SnapshotKind string

const (
	SnapshotKindCrypto SnapshotKind = "crypto"
	SnapshotKindSports SnapshotKind = "sports"
)

// Snapshot is one signed, immutable oracle observation. Snapshots are
// append-only: corrections are published as new snapshots, never as updates.
type Snapshot struct {
	ID          string
	Kind        SnapshotKind
	SourceTag   string // e.g. "automation:daily-baseline", "manual"
	SubjectKey  string // asset symbol for crypto, event ID for sports
	Payload     map[string]any
	Signature   string // hex HMAC-SHA256 over the canonical payload
	PublishedBy string
	ObservedAt  time.Time
	CreatedAt   time.Time
}
