package service

import (
	"context"

	"github.com/tempusgeo/TempusGeo-Server/internal/client"
	"github.com/tempusgeo/TempusGeo-Server/internal/metrics"
	"github.com/tempusgeo/TempusGeo-Server/internal/storage/disk"
	"go.uber.org/zap"
)

// ReconcileService runs the startup reconciliation protocol: compare the
// local write-time metadata against the archive's, and restore the entire
// local tree from the remote snapshot when the remote is strictly newer.
// Local storage is volatile (redeploys can wipe or roll it back) while the
// archive is the durable system of record; the timestamp comparison is the
// only signal that keeps a stale remote snapshot from clobbering fresher
// local writes.
type ReconcileService struct {
	disk    *disk.Store
	cache   *CacheService
	archive *client.ArchiveClient
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewReconcileService creates the reconciler.
func NewReconcileService(
	diskStore *disk.Store,
	cache *CacheService,
	archive *client.ArchiveClient,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		disk:    diskStore,
		cache:   cache,
		archive: archive,
		logger:  logger,
		metrics: m,
	}
}

// Run executes the protocol once, synchronously, before any other component
// goes live. Restored reports whether the local tree was overwritten. An
// unreachable archive degrades to pure local operation and never blocks
// startup.
func (r *ReconcileService) Run(ctx context.Context) (restored bool) {
	localTime := r.disk.LastWriteTime()

	snapshot, err := r.archive.FetchSnapshot(ctx)
	if err != nil {
		r.logger.Warn("archive unreachable, skipping reconciliation",
			zap.Int64("local_time", localTime),
			zap.Error(err))
		r.record("skipped")
		return false
	}

	remoteTime := snapshot.Metadata.LastWriteTime
	if localTime > 0 && localTime >= remoteTime {
		r.logger.Info("local data is fresh, skipping restore",
			zap.Int64("local_time", localTime),
			zap.Int64("remote_time", remoteTime))
		r.record("skipped")
		return false
	}

	r.logger.Info("remote snapshot is newer, restoring local tree",
		zap.Int64("local_time", localTime),
		zap.Int64("remote_time", remoteTime),
		zap.Int("files", len(snapshot.Files)))

	restoredFiles := 0
	for _, file := range snapshot.Files {
		if err := r.disk.RestoreFile(file.Path, file.Content); err != nil {
			// Individual file failures are logged and skipped, not fatal.
			r.logger.Error("restore failed for file",
				zap.String("path", file.Path),
				zap.Error(err))
			continue
		}
		restoredFiles++
	}

	// Everything cached before the restore may now be stale; reload happens
	// during warmup.
	r.cache.Flush()

	if err := r.disk.SetLastWriteTime(remoteTime); err != nil {
		r.logger.Error("failed to persist restored metadata", zap.Error(err))
	}

	r.logger.Info("restore complete",
		zap.Int("restored_files", restoredFiles),
		zap.Int64("last_write_time", remoteTime))
	r.record("restored")
	return true
}

func (r *ReconcileService) record(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordReconcileOutcome(outcome)
	}
}
