package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

// memSnapshots holds snapshots in creation order.
type memSnapshots struct {
	snaps   []domain.Snapshot
	deleted int64
}

func (s *memSnapshots) Insert(context.Context, domain.Snapshot) error { return nil }

func (s *memSnapshots) Latest(context.Context, domain.SnapshotKind, string) (domain.Snapshot, error) {
	return domain.Snapshot{}, domain.ErrNotFound
}

func (s *memSnapshots) List(context.Context, domain.SnapshotKind, string, int) ([]domain.Snapshot, error) {
	return nil, nil
}

func (s *memSnapshots) ListOlderThan(_ context.Context, cutoff, cursor time.Time, limit int) ([]domain.Snapshot, error) {
	var out []domain.Snapshot
	for _, snap := range s.snaps {
		if snap.CreatedAt.Before(cutoff) && snap.CreatedAt.After(cursor) {
			out = append(out, snap)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memSnapshots) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []domain.Snapshot
	for _, snap := range s.snaps {
		if snap.CreatedAt.Before(cutoff) {
			s.deleted++
			continue
		}
		kept = append(kept, snap)
	}
	s.snaps = kept
	return s.deleted, nil
}

// memBlob records uploads and serves Exists from them.
type memBlob struct {
	objects map[string][]byte
}

func newMemBlob() *memBlob { return &memBlob{objects: map[string][]byte{}} }

func (b *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.objects[path] = buf
	return nil
}

func (b *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, data := range b.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(data))})
		}
	}
	return infos, nil
}

func (b *memBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := b.objects[path]
	return ok, nil
}

func snapshotAt(id string, createdAt time.Time) domain.Snapshot {
	return domain.Snapshot{
		ID:         id,
		Kind:       domain.SnapshotKindCrypto,
		SubjectKey: "BTC",
		Payload:    map[string]any{"priceUsd": 61750.0},
		CreatedAt:  createdAt,
	}
}

func newTestArchiver(store *memSnapshots, blob *memBlob, cfg Config, now time.Time) *Archiver {
	a := New(store, blob, blob, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return a.WithClock(func() time.Time { return now })
}

func TestRunArchivesAndPrunes(t *testing.T) {
	now := time.Date(2026, 8, 28, 3, 0, 0, 0, time.UTC)
	store := &memSnapshots{}
	for i, age := range []int{200, 150, 100} {
		store.snaps = append(store.snaps, snapshotAt(
			string(rune('a'+i)), now.AddDate(0, 0, -age),
		))
	}
	store.snaps = append(store.snaps, snapshotAt("fresh", now.AddDate(0, 0, -10)))
	blob := newMemBlob()

	arch := newTestArchiver(store, blob, Config{RetentionDays: 90, BatchSize: 2, Prune: true}, now)
	require.NoError(t, arch.Run(context.Background()))

	// Two batches of size 2 and 1, old rows pruned, fresh row kept.
	assert.Len(t, blob.objects, 2)
	assert.EqualValues(t, 3, store.deleted)
	require.Len(t, store.snaps, 1)
	assert.Equal(t, "fresh", store.snaps[0].ID)

	// Every uploaded line is valid JSON with the snapshot fields intact.
	total := 0
	for _, data := range blob.objects {
		for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
			var snap domain.Snapshot
			require.NoError(t, json.Unmarshal(line, &snap))
			assert.Equal(t, "BTC", snap.SubjectKey)
			total++
		}
	}
	assert.Equal(t, 3, total)
}

func TestRunWithoutPruneKeepsRows(t *testing.T) {
	now := time.Date(2026, 8, 28, 3, 0, 0, 0, time.UTC)
	store := &memSnapshots{snaps: []domain.Snapshot{snapshotAt("a", now.AddDate(0, 0, -120))}}
	blob := newMemBlob()

	arch := newTestArchiver(store, blob, Config{RetentionDays: 90}, now)
	require.NoError(t, arch.Run(context.Background()))

	assert.Len(t, blob.objects, 1)
	assert.Len(t, store.snaps, 1)
	assert.Zero(t, store.deleted)
}

func TestRunNothingToArchive(t *testing.T) {
	now := time.Date(2026, 8, 28, 3, 0, 0, 0, time.UTC)
	store := &memSnapshots{snaps: []domain.Snapshot{snapshotAt("a", now.AddDate(0, 0, -1))}}
	blob := newMemBlob()

	arch := newTestArchiver(store, blob, Config{RetentionDays: 90, Prune: true}, now)
	require.NoError(t, arch.Run(context.Background()))

	assert.Empty(t, blob.objects)
	assert.Len(t, store.snaps, 1)
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 8, 28, 2, 30, 0, 0, time.UTC)

	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 28, 3, 0, 0, 0, time.UTC), next)

	// Already past today's trigger: roll to tomorrow.
	next, err = nextCronTime("0 3 * * *", time.Date(2026, 8, 28, 4, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 29, 3, 0, 0, 0, time.UTC), next)

	// Monthly on the 1st.
	next, err = nextCronTime("0 3 1 * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC), next)

	// Value lists.
	next, err = nextCronTime("0,30 * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 28, 3, 0, 0, 0, time.UTC), next)

	_, err = nextCronTime("not a cron", after)
	assert.Error(t, err)
}
