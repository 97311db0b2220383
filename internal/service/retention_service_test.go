package service_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tempusgeo/TempusGeo-Server/internal/model"
	"github.com/tempusgeo/TempusGeo-Server/internal/service"
	"go.uber.org/zap"
)

func TestSweepDeletesColdShards(t *testing.T) {
	env := setupStore(t, "")
	_, err := env.store.RegisterTenant("Acme", "", "pw")
	require.NoError(t, err)

	// Clock frozen at 2025-03: hot window is {2025-03, 2025-02}.
	shards := []model.Period{
		{Year: 2025, Month: 3},
		{Year: 2025, Month: 2},
		{Year: 2025, Month: 1},
		{Year: 2024, Month: 12},
	}
	for _, p := range shards {
		require.NoError(t, env.store.SaveShard("1001", p.Year, p.Month, model.MonthShard{"alice": {}}))
	}

	retention := service.NewRetentionService(env.store, env.disk, env.cache, nil, zap.NewNop())
	swept := retention.SweepOnce()
	assert.Equal(t, 2, swept)

	// No on-disk file remains for any non-hot period.
	for _, p := range shards {
		path := filepath.Join(env.disk.DataDir(), "companies", "1001", strconv.Itoa(p.Year), strconv.Itoa(p.Month)+".json")
		_, err := os.Stat(path)
		if env.store.IsHot(p.Year, p.Month) {
			assert.NoError(t, err, "hot shard %s must survive", p)
		} else {
			assert.True(t, os.IsNotExist(err), "cold shard %s must be deleted", p)
		}
	}

	// Cache entries for swept periods are gone too.
	_, ok := env.cache.GetShard(service.ShardKey("1001", 2025, 1))
	assert.False(t, ok)
	_, ok = env.cache.GetShard(service.ShardKey("1001", 2024, 12))
	assert.False(t, ok)
	_, ok = env.cache.GetShard(service.ShardKey("1001", 2025, 3))
	assert.True(t, ok)
}

func TestSweepIsIdempotent(t *testing.T) {
	env := setupStore(t, "")
	_, err := env.store.RegisterTenant("Acme", "", "pw")
	require.NoError(t, err)
	require.NoError(t, env.store.SaveShard("1001", 2024, 6, model.MonthShard{}))

	retention := service.NewRetentionService(env.store, env.disk, env.cache, nil, zap.NewNop())
	assert.Equal(t, 1, retention.SweepOnce())
	assert.Equal(t, 0, retention.SweepOnce())
}
