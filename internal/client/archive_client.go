// Package client implements the cold-tier client for the remote archival
// service.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tempusgeo/TempusGeo-Server/internal/metrics"
	"github.com/tempusgeo/TempusGeo-Server/internal/model"
	"github.com/tempusgeo/TempusGeo-Server/internal/util"
	"go.uber.org/zap"
)

// ArchiveConfig holds archive client configuration.
type ArchiveConfig struct {
	BaseURL         string
	FetchTimeout    time.Duration
	SnapshotTimeout time.Duration
	CacheTTL        time.Duration
}

// DefaultArchiveConfig returns the archive client defaults: a short timeout
// for per-month fetches, a long one for the full snapshot, and a one hour
// read cache for archived periods.
func DefaultArchiveConfig(baseURL string) *ArchiveConfig {
	return &ArchiveConfig{
		BaseURL:         baseURL,
		FetchTimeout:    5 * time.Second,
		SnapshotTimeout: 30 * time.Second,
		CacheTTL:        time.Hour,
	}
}

// cacheEntry is one cached cold-tier read.
type cacheEntry struct {
	data      model.MonthShard
	fetchedAt time.Time
}

// ArchiveClient fetches archived month shards and full snapshots from the
// remote archival service. Per-period reads are cached with a bounded TTL;
// archived data does not change again, so stale-but-bounded is acceptable.
type ArchiveClient struct {
	cfg     *ArchiveConfig
	httpc   *http.Client
	clock   util.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewArchiveClient creates a new archive client.
func NewArchiveClient(cfg *ArchiveConfig, clock util.Clock, m *metrics.Metrics, logger *zap.Logger) *ArchiveClient {
	return &ArchiveClient{
		cfg:     cfg,
		httpc:   &http.Client{},
		clock:   clock,
		logger:  logger,
		metrics: m,
		cache:   make(map[string]cacheEntry),
	}
}

// FetchPeriod returns the archived shard for (tenant, year, month).
// Failures degrade to an empty shard rather than an error: archival
// unavailability must not break the hot-path UI.
func (c *ArchiveClient) FetchPeriod(ctx context.Context, tenantID string, year, month int) model.MonthShard {
	key := fmt.Sprintf("%s/%d/%d", tenantID, year, month)

	c.mu.Lock()
	if entry, ok := c.cache[key]; ok && c.clock.Now().Sub(entry.fetchedAt) < c.cfg.CacheTTL {
		c.mu.Unlock()
		c.recordFetch("cached")
		return entry.data
	}
	c.mu.Unlock()

	shard, err := c.fetchRemote(ctx, tenantID, year, month)
	if err != nil {
		c.logger.Warn("archive fetch failed, returning empty shard",
			zap.String("tenant_id", tenantID),
			zap.Int("year", year),
			zap.Int("month", month),
			zap.Error(err))
		c.recordFetch("failed")
		return model.MonthShard{}
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{data: shard, fetchedAt: c.clock.Now()}
	c.mu.Unlock()

	c.recordFetch("remote")
	return shard
}

// fetchRemote issues the per-period GET request.
func (c *ArchiveClient) fetchRemote(ctx context.Context, tenantID string, year, month int) (model.MonthShard, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/archive/%s/%d/%d", c.cfg.BaseURL, tenantID, year, month)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read archive response: %w", err)
	}

	shard := model.MonthShard{}
	if err := json.Unmarshal(body, &shard); err != nil {
		return nil, fmt.Errorf("parse archive response: %w", err)
	}
	if shard == nil {
		shard = model.MonthShard{}
	}
	return shard, nil
}

// FetchSnapshot requests the full backup/restore payload, including the
// archive's own last write time. Errors are returned to the caller; the
// reconciler treats them as a skip, never a fatal condition.
func (c *ArchiveClient) FetchSnapshot(ctx context.Context) (*model.ArchiveSnapshotData, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SnapshotTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/snapshot", nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot returned status %d", resp.StatusCode)
	}

	var envelope model.ArchiveSnapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("parse snapshot response: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("snapshot request unsuccessful")
	}
	return &envelope.Data, nil
}

// InvalidateCache drops every cached period. Used by tests.
func (c *ArchiveClient) InvalidateCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

func (c *ArchiveClient) recordFetch(outcome string) {
	if c.metrics != nil {
		c.metrics.RecordArchiveFetch(outcome)
	}
}
