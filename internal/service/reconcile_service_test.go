package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tempusgeo/TempusGeo-Server/internal/client"
	"github.com/tempusgeo/TempusGeo-Server/internal/model"
	"github.com/tempusgeo/TempusGeo-Server/internal/service"
	"go.uber.org/zap"
)

// archiveFixture serves a fixed snapshot payload.
func archiveFixture(t *testing.T, remoteTime int64, files []model.SnapshotFile) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/snapshot" {
			http.NotFound(w, r)
			return
		}
		resp := model.ArchiveSnapshotResponse{
			Success: true,
			Data: model.ArchiveSnapshotData{
				Files:    files,
				Metadata: model.Metadata{LastWriteTime: remoteTime},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newReconciler(env *testEnv, archiveURL string) *service.ReconcileService {
	archive := client.NewArchiveClient(client.DefaultArchiveConfig(archiveURL), env.clock, nil, zap.NewNop())
	return service.NewReconcileService(env.disk, env.cache, archive, nil, zap.NewNop())
}

func TestReconcileSkipsWhenLocalIsFresh(t *testing.T) {
	remoteFiles := []model.SnapshotFile{
		{Path: "companies/1001/2025/3.json", Content: json.RawMessage(`{"mallory":[]}`)},
	}
	srv := archiveFixture(t, 50, remoteFiles)
	defer srv.Close()

	env := setupStore(t, "")
	require.NoError(t, env.disk.SaveShard("1001", 2025, 3, model.MonthShard{"alice": {}}))
	require.NoError(t, env.disk.SetLastWriteTime(100))

	restored := newReconciler(env, srv.URL).Run(context.Background())
	assert.False(t, restored)

	// Local files untouched, metadata unchanged.
	assert.Equal(t, int64(100), env.disk.LastWriteTime())
	shard := env.disk.LoadShard("1001", 2025, 3)
	assert.Contains(t, shard, "alice")
	assert.NotContains(t, shard, "mallory")
}

func TestReconcileRestoresWhenLocalIsEmpty(t *testing.T) {
	remoteFiles := []model.SnapshotFile{
		{Path: "clients.json", Content: json.RawMessage(`[{"id":"1001","name":"Acme"}]`)},
		{Path: "companies/1001/2025/2.json", Content: json.RawMessage(`{"alice":[]}`)},
	}
	srv := archiveFixture(t, 200, remoteFiles)
	defer srv.Close()

	env := setupStore(t, "")
	require.Zero(t, env.disk.LastWriteTime())

	restored := newReconciler(env, srv.URL).Run(context.Background())
	assert.True(t, restored)

	assert.Equal(t, int64(200), env.disk.LastWriteTime())
	tenants := env.disk.LoadTenants()
	require.Len(t, tenants, 1)
	assert.Equal(t, "Acme", tenants[0].Name)
	assert.Contains(t, env.disk.LoadShard("1001", 2025, 2), "alice")
}

func TestReconcileRestoresWhenRemoteIsNewer(t *testing.T) {
	remoteFiles := []model.SnapshotFile{
		{Path: "companies/1001/2025/3.json", Content: json.RawMessage(`{"alice":[],"bob":[]}`)},
	}
	srv := archiveFixture(t, 150, remoteFiles)
	defer srv.Close()

	env := setupStore(t, "")
	require.NoError(t, env.disk.SaveShard("1001", 2025, 3, model.MonthShard{"alice": {}}))
	require.NoError(t, env.disk.SetLastWriteTime(100))

	restored := newReconciler(env, srv.URL).Run(context.Background())
	assert.True(t, restored)

	assert.Equal(t, int64(150), env.disk.LastWriteTime())
	shard := env.disk.LoadShard("1001", 2025, 3)
	assert.Contains(t, shard, "bob")
}

func TestReconcileSkipsWhenArchiveUnreachable(t *testing.T) {
	env := setupStore(t, "")
	require.NoError(t, env.disk.SetLastWriteTime(100))

	restored := newReconciler(env, "http://127.0.0.1:1").Run(context.Background())
	assert.False(t, restored)
	assert.Equal(t, int64(100), env.disk.LastWriteTime())
}

func TestReconcileFlushesCacheAfterRestore(t *testing.T) {
	remoteFiles := []model.SnapshotFile{
		{Path: "companies/1001/2025/3.json", Content: json.RawMessage(`{"carol":[]}`)},
	}
	srv := archiveFixture(t, 500, remoteFiles)
	defer srv.Close()

	env := setupStore(t, "")
	require.NoError(t, env.store.SaveShard("1001", 2025, 3, model.MonthShard{"alice": {}}))
	require.NoError(t, env.disk.SetLastWriteTime(100))

	restored := newReconciler(env, srv.URL).Run(context.Background())
	require.True(t, restored)

	// The cached pre-restore shard must be gone; the next read comes from
	// the restored file.
	shard := env.store.GetShard("1001", 2025, 3)
	assert.Contains(t, shard, "carol")
	assert.NotContains(t, shard, "alice")
}

func TestReconcileSkipsFilesThatEscapeDataDir(t *testing.T) {
	outside := filepath.Join(os.TempDir(), fmt.Sprintf("escape-%d.json", os.Getpid()))
	defer os.Remove(outside)

	remoteFiles := []model.SnapshotFile{
		{Path: "../escape.json", Content: json.RawMessage(`{}`)},
		{Path: "clients.json", Content: json.RawMessage(`[]`)},
	}
	srv := archiveFixture(t, 300, remoteFiles)
	defer srv.Close()

	env := setupStore(t, "")
	restored := newReconciler(env, srv.URL).Run(context.Background())
	assert.True(t, restored)
	assert.Equal(t, int64(300), env.disk.LastWriteTime())
}
