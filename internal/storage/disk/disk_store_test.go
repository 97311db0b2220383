package disk

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tempusgeo/TempusGeo-Server/internal/model"
	"github.com/tempusgeo/TempusGeo-Server/internal/util"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, *util.FakeClock) {
	t.Helper()
	clock := util.NewFakeClock(time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC))
	store, err := NewStore(t.TempDir(), clock, zap.NewNop())
	require.NoError(t, err)
	return store, clock
}

func TestNewStoreRequiresDataDir(t *testing.T) {
	_, err := NewStore("", util.SystemClock{}, zap.NewNop())
	assert.Error(t, err)
}

func TestLoadShardMissingYieldsEmpty(t *testing.T) {
	store, _ := newTestStore(t)
	shard := store.LoadShard("1001", 2025, 3)
	require.NotNil(t, shard)
	assert.Empty(t, shard)
}

func TestShardRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	start := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	end := start.Add(8 * time.Hour)
	shard := model.MonthShard{
		"alice": {{Start: &start, End: &end, Location: "HQ"}},
		"bob":   {{Start: &start}},
	}

	require.NoError(t, store.SaveShard("1001", 2025, 3, shard))

	loaded := store.LoadShard("1001", 2025, 3)
	assert.Equal(t, shard, loaded)
}

func TestMalformedShardYieldsEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	path := filepath.Join(store.DataDir(), "companies", "1001", "2025", "3.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	shard := store.LoadShard("1001", 2025, 3)
	assert.Empty(t, shard)
}

func TestTenantConfigDefaultsOnFirstAccess(t *testing.T) {
	store, _ := newTestStore(t)

	cfg := store.LoadTenantConfig("1001")
	assert.Equal(t, "1001", cfg.TenantID)
	assert.NotNil(t, cfg.Settings)
	assert.Empty(t, cfg.Settings)

	cfg.Settings["geofence"] = []any{map[string]any{"lat": 1.0, "lng": 2.0}}
	require.NoError(t, store.SaveTenantConfig(cfg))

	reloaded := store.LoadTenantConfig("1001")
	assert.Contains(t, reloaded.Settings, "geofence")
}

func TestMetadataAdvancesOnMutation(t *testing.T) {
	store, clock := newTestStore(t)
	assert.Zero(t, store.LastWriteTime())

	require.NoError(t, store.SaveShard("1001", 2025, 3, model.MonthShard{}))
	first := store.LastWriteTime()
	assert.Equal(t, clock.Now().UnixMilli(), first)

	clock.Advance(time.Minute)
	require.NoError(t, store.SaveTenants([]*model.Tenant{}))
	assert.Greater(t, store.LastWriteTime(), first)
}

func TestMetadataSurvivesReopen(t *testing.T) {
	clock := util.NewFakeClock(time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC))
	dir := t.TempDir()

	store, err := NewStore(dir, clock, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.SetLastWriteTime(12345))

	reopened, err := NewStore(dir, clock, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, int64(12345), reopened.LastWriteTime())
}

func TestListShardPeriods(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.SaveShard("1001", 2025, 3, model.MonthShard{}))
	require.NoError(t, store.SaveShard("1001", 2024, 12, model.MonthShard{}))
	require.NoError(t, store.SaveShard("1001", 2025, 1, model.MonthShard{}))
	// config.json must not be mistaken for a shard
	require.NoError(t, store.SaveTenantConfig(model.DefaultTenantConfig("1001")))

	periods := store.ListShardPeriods("1001")
	assert.Equal(t, []model.Period{{Year: 2024, Month: 12}, {Year: 2025, Month: 1}, {Year: 2025, Month: 3}}, periods)

	assert.Empty(t, store.ListShardPeriods("9999"))
}

func TestSnapshotWalksTree(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.SaveShard("1001", 2025, 3, model.MonthShard{"alice": {}}))
	require.NoError(t, store.SaveTenants([]*model.Tenant{{ID: "1001", Name: "Acme"}}))

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, store.LastWriteTime(), snap.LastWriteTime)

	paths := make(map[string]json.RawMessage)
	for _, f := range snap.Files {
		paths[f.Path] = f.Content
	}
	assert.Contains(t, paths, "clients.json")
	assert.Contains(t, paths, "metadata.json")
	assert.Contains(t, paths, "companies/1001/2025/3.json")

	var shard model.MonthShard
	require.NoError(t, json.Unmarshal(paths["companies/1001/2025/3.json"], &shard))
	assert.Contains(t, shard, "alice")
}

func TestSnapshotDoesNotMutate(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.SaveShard("1001", 2025, 3, model.MonthShard{}))
	before := store.LastWriteTime()

	_, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, before, store.LastWriteTime())
}

func TestRestoreFile(t *testing.T) {
	store, _ := newTestStore(t)

	content := []byte(`{"alice":[]}`)
	require.NoError(t, store.RestoreFile("companies/1001/2025/2.json", content))

	shard := store.LoadShard("1001", 2025, 2)
	assert.Contains(t, shard, "alice")
}

func TestRestoreFileRejectsEscapingPaths(t *testing.T) {
	store, _ := newTestStore(t)

	assert.Error(t, store.RestoreFile("../evil.json", []byte("{}")))
	assert.Error(t, store.RestoreFile("/etc/evil.json", []byte("{}")))
	assert.Error(t, store.RestoreFile(".", []byte("{}")))
}

func TestTenantIDSequenceRoundTrip(t *testing.T) {
	store, clock := newTestStore(t)

	assert.Equal(t, 0, store.LoadNextTenantID())

	before := store.LastWriteTime()
	clock.Advance(time.Second)
	require.NoError(t, store.SaveNextTenantID(1003))
	assert.Equal(t, 1003, store.LoadNextTenantID())
	assert.Greater(t, store.LastWriteTime(), before)

	reopened, err := NewStore(store.DataDir(), clock, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1003, reopened.LoadNextTenantID())
}

func TestDeleteTenantTree(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.SaveShard("1001", 2025, 3, model.MonthShard{}))
	require.NoError(t, store.SaveTenantConfig(model.DefaultTenantConfig("1001")))

	require.NoError(t, store.DeleteTenantTree("1001"))
	_, err := os.Stat(filepath.Join(store.DataDir(), "companies", "1001"))
	assert.True(t, os.IsNotExist(err))

	// Deleting a tenant that never wrote anything is not an error.
	require.NoError(t, store.DeleteTenantTree("9999"))
}
