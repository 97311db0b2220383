package service

import (
	"fmt"
	"sync"

	"github.com/tempusgeo/TempusGeo-Server/internal/model"
)

// CacheService mirrors loaded tenant configs and month shards in memory to
// avoid redundant disk reads. It never owns data independently: every cached
// value is reproducible from disk (or the cold tier), and mutations persist
// before they become visible here. Eviction only happens through explicit
// invalidation (writes, retention sweep, restore reload).
type CacheService struct {
	mu      sync.RWMutex
	configs map[string]*model.TenantConfig
	shards  map[string]model.MonthShard
}

// NewCacheService creates an empty cache.
func NewCacheService() *CacheService {
	return &CacheService{
		configs: make(map[string]*model.TenantConfig),
		shards:  make(map[string]model.MonthShard),
	}
}

// ShardKey builds the cache key for a (tenant, year, month) shard.
func ShardKey(tenantID string, year, month int) string {
	return fmt.Sprintf("%s/%d/%d", tenantID, year, month)
}

// GetConfig returns the cached config for a tenant, if present.
func (c *CacheService) GetConfig(tenantID string) (*model.TenantConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.configs[tenantID]
	return cfg, ok
}

// PutConfig caches a tenant config.
func (c *CacheService) PutConfig(cfg *model.TenantConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs[cfg.TenantID] = cfg
}

// GetShard returns the cached shard for a key, if present.
func (c *CacheService) GetShard(key string) (model.MonthShard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	shard, ok := c.shards[key]
	return shard, ok
}

// PutShard caches a month shard.
func (c *CacheService) PutShard(key string, shard model.MonthShard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shards[key] = shard
}

// InvalidateShard drops a shard entry.
func (c *CacheService) InvalidateShard(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.shards, key)
}

// InvalidateTenant drops the config entry for a tenant.
func (c *CacheService) InvalidateTenant(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.configs, tenantID)
}

// Flush drops every cached entry. Used after a full-tree restore and by
// tests asserting disk round-trips.
func (c *CacheService) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = make(map[string]*model.TenantConfig)
	c.shards = make(map[string]model.MonthShard)
}

// Len returns the number of cached configs and shards.
func (c *CacheService) Len() (configs, shards int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.configs), len(c.shards)
}
