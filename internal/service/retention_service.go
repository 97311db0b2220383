package service

import (
	"context"
	"time"

	"github.com/tempusgeo/TempusGeo-Server/internal/metrics"
	"github.com/tempusgeo/TempusGeo-Server/internal/storage/disk"
	"go.uber.org/zap"
)

// RetentionService deletes on-disk month shards that have aged out of the
// hot window, evicting them from the in-process cache as well. This is the
// only place local data is permanently discarded. The sweeper assumes the
// archive already holds the aged-out periods; it does not verify that
// before deleting (known data-loss gap, kept as-is).
type RetentionService struct {
	store   *StoreService
	disk    *disk.Store
	cache   *CacheService
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRetentionService creates the retention sweeper.
func NewRetentionService(
	store *StoreService,
	diskStore *disk.Store,
	cache *CacheService,
	m *metrics.Metrics,
	logger *zap.Logger,
) *RetentionService {
	return &RetentionService{
		store:   store,
		disk:    diskStore,
		cache:   cache,
		logger:  logger,
		metrics: m,
	}
}

// Run sweeps on the given interval until the context is cancelled.
func (r *RetentionService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			r.SweepOnce()
		}
	}
}

// SweepOnce deletes every non-hot shard for every tenant, returning the
// number of shards removed.
func (r *RetentionService) SweepOnce() int {
	swept := 0

	for _, tenant := range r.store.ListTenants() {
		mu := r.store.lockTenant(tenant.ID)
		mu.Lock()
		for _, p := range r.disk.ListShardPeriods(tenant.ID) {
			if r.store.IsHot(p.Year, p.Month) {
				continue
			}
			if err := r.disk.DeleteShard(tenant.ID, p.Year, p.Month); err != nil {
				r.logger.Error("sweep failed for shard",
					zap.String("tenant_id", tenant.ID),
					zap.String("period", p.String()),
					zap.Error(err))
				continue
			}
			r.cache.InvalidateShard(ShardKey(tenant.ID, p.Year, p.Month))
			if r.metrics != nil {
				r.metrics.RecordSweptShard()
			}
			swept++
		}
		mu.Unlock()
	}

	if swept > 0 {
		r.logger.Info("retention sweep complete", zap.Int("swept_shards", swept))
	}
	return swept
}
