package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given connection
// pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotCols = `id, kind, source_tag, subject_key, payload, signature,
	published_by, observed_at, created_at`

// Insert appends one snapshot to the log.
func (s *SnapshotStore) Insert(ctx context.Context, snap domain.Snapshot) error {
	payload, err := json.Marshal(snap.Payload)
	if err != nil {
		return fmt.Errorf("postgres: encode snapshot payload %s: %w", snap.ID, err)
	}

	const query = `
		INSERT INTO oracle_snapshots (
			id, kind, source_tag, subject_key, payload, signature,
			published_by, observed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.pool.Exec(ctx, query,
		snap.ID, string(snap.Kind), snap.SourceTag, snap.SubjectKey,
		payload, snap.Signature, snap.PublishedBy, snap.ObservedAt, snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// Latest returns the most recent snapshot for a subject.
func (s *SnapshotStore) Latest(ctx context.Context, kind domain.SnapshotKind, subjectKey string) (domain.Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+snapshotCols+` FROM oracle_snapshots
		 WHERE kind = $1 AND subject_key = $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		string(kind), subjectKey,
	)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("postgres: latest snapshot %s/%s: %w", kind, subjectKey, err)
	}
	return snap, nil
}

// List returns up to limit snapshots for a subject, newest first.
func (s *SnapshotStore) List(ctx context.Context, kind domain.SnapshotKind, subjectKey string, limit int) ([]domain.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotCols+` FROM oracle_snapshots
		 WHERE kind = $1 AND subject_key = $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3`,
		string(kind), subjectKey, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots %s/%s: %w", kind, subjectKey, err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

// ListOlderThan pages snapshots created before cutoff and strictly after
// the cursor, oldest first.
func (s *SnapshotStore) ListOlderThan(ctx context.Context, cutoff, cursor time.Time, limit int) ([]domain.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotCols+` FROM oracle_snapshots
		 WHERE created_at < $1 AND created_at > $2
		 ORDER BY created_at ASC, id ASC
		 LIMIT $3`,
		cutoff, cursor, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

// DeleteOlderThan prunes snapshots created before cutoff.
func (s *SnapshotStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM oracle_snapshots WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// ---- Internal helpers ----

func scanSnapshot(row pgx.Row) (domain.Snapshot, error) {
	var snap domain.Snapshot
	var kind string
	var payload []byte
	err := row.Scan(
		&snap.ID, &kind, &snap.SourceTag, &snap.SubjectKey,
		&payload, &snap.Signature, &snap.PublishedBy,
		&snap.ObservedAt, &snap.CreatedAt,
	)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.Kind = domain.SnapshotKind(kind)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &snap.Payload); err != nil {
			return domain.Snapshot{}, fmt.Errorf("decode payload: %w", err)
		}
	}
	return snap, nil
}

func collectSnapshots(rows pgx.Rows) ([]domain.Snapshot, error) {
	var snaps []domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: snapshot rows: %w", err)
	}
	return snaps, nil
}
