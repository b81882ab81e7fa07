// Package archive moves aged oracle snapshots from the database to blob
// cold storage as newline-delimited JSON, optionally pruning the archived
// rows afterwards.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

const defaultBatchSize = 1000

// Config drives the snapshot archiver.
type Config struct {
	RetentionDays int
	BatchSize     int
	// Prune deletes archived rows after every batch of a run has been
	// uploaded and verified.
	Prune bool
}

// Archiver pages old snapshots out of the store and uploads them in
// date-partitioned JSONL batches.
type Archiver struct {
	store  domain.SnapshotStore
	writer domain.BlobWriter
	reader domain.BlobReader // optional, used to verify uploads before pruning
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Archiver. reader may be nil; pruning then proceeds without
// the existence check.
func New(store domain.SnapshotStore, writer domain.BlobWriter, reader domain.BlobReader, cfg Config, logger *slog.Logger) *Archiver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	return &Archiver{
		store:  store,
		writer: writer,
		reader: reader,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "snapshot_archiver")),
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (a *Archiver) WithClock(now func() time.Time) *Archiver {
	a.now = now
	return a
}

// Run executes a single archive pass: every snapshot older than the
// retention cutoff is uploaded in creation order, then the archived range
// is pruned if configured.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.now().UTC().Add(-time.Duration(a.cfg.RetentionDays) * 24 * time.Hour)
	a.logger.InfoContext(ctx, "archive run started",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.cfg.RetentionDays),
	)

	var (
		cursor   time.Time
		archived int
		lastPath string
	)
	for {
		batch, err := a.store.ListOlderThan(ctx, cutoff, cursor, a.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("archive: page snapshots before %v: %w", cutoff, err)
		}
		if len(batch) == 0 {
			break
		}

		path, err := a.uploadBatch(ctx, batch)
		if err != nil {
			return err
		}
		archived += len(batch)
		lastPath = path
		cursor = batch[len(batch)-1].CreatedAt

		a.logger.InfoContext(ctx, "batch archived",
			slog.String("path", path),
			slog.Int("count", len(batch)),
		)
	}

	if archived == 0 {
		a.logger.InfoContext(ctx, "nothing to archive")
		return nil
	}

	if a.cfg.Prune {
		if err := a.prune(ctx, cutoff, lastPath); err != nil {
			return err
		}
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int("archived", archived),
		slog.Bool("pruned", a.cfg.Prune),
	)
	return nil
}

// RunCron runs archive passes on a 5-field cron schedule
// ("minute hour day-of-month month day-of-week") until the context is
// canceled.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, a.now().UTC())
		if err != nil {
			return fmt.Errorf("archive: parse cron %q: %w", cronExpr, err)
		}

		a.logger.InfoContext(ctx, "archiver waiting for next trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", time.Until(next)),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.InfoContext(ctx, "archiver cron stopped")
			return nil
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ---- Internal helpers ----

// uploadBatch serializes one batch to JSONL and uploads it, keyed by the
// creation date and nanosecond of the first snapshot so reruns of the same
// range overwrite rather than duplicate.
func (a *Archiver) uploadBatch(ctx context.Context, batch []domain.Snapshot) (string, error) {
	first := batch[0].CreatedAt.UTC()
	path := fmt.Sprintf("archive/snapshots/%s/%d.jsonl", first.Format("2006-01-02"), first.UnixNano())

	buf, err := marshalJSONL(batch)
	if err != nil {
		return "", fmt.Errorf("archive: encode batch %s: %w", path, err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("archive: upload batch %s: %w", path, err)
	}
	return path, nil
}

// prune deletes the archived rows, first verifying the final uploaded
// object is really there when a reader is available.
func (a *Archiver) prune(ctx context.Context, cutoff time.Time, lastPath string) error {
	if a.reader != nil {
		ok, err := a.reader.Exists(ctx, lastPath)
		if err != nil {
			return fmt.Errorf("archive: verify %s: %w", lastPath, err)
		}
		if !ok {
			return fmt.Errorf("archive: uploaded object %s not found, refusing to prune", lastPath)
		}
	}

	deleted, err := a.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: prune before %v: %w", cutoff, err)
	}
	a.logger.InfoContext(ctx, "snapshots pruned", slog.Int64("deleted", deleted))
	return nil
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
