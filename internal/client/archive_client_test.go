package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tempusgeo/TempusGeo-Server/internal/client"
	"github.com/tempusgeo/TempusGeo-Server/internal/util"
	"go.uber.org/zap"
)

func newClient(t *testing.T, baseURL string) (*client.ArchiveClient, *util.FakeClock) {
	t.Helper()
	clock := util.NewFakeClock(time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC))
	c := client.NewArchiveClient(client.DefaultArchiveConfig(baseURL), clock, nil, zap.NewNop())
	return c, clock
}

func TestFetchPeriodCachesWithinTTL(t *testing.T) {
	remoteCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remoteCalls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"alice":[]}`))
	}))
	defer srv.Close()

	c, clock := newClient(t, srv.URL)
	ctx := context.Background()

	first := c.FetchPeriod(ctx, "1001", 2024, 6)
	second := c.FetchPeriod(ctx, "1001", 2024, 6)
	assert.Equal(t, 1, remoteCalls, "second fetch within TTL must be served from cache")
	assert.Equal(t, first, second)

	// Fifty-nine minutes later the entry is still fresh.
	clock.Advance(59 * time.Minute)
	c.FetchPeriod(ctx, "1001", 2024, 6)
	assert.Equal(t, 1, remoteCalls)

	// Past the TTL the client goes remote again.
	clock.Advance(2 * time.Minute)
	c.FetchPeriod(ctx, "1001", 2024, 6)
	assert.Equal(t, 2, remoteCalls)
}

func TestFetchPeriodDistinctKeys(t *testing.T) {
	remoteCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remoteCalls++
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := newClient(t, srv.URL)
	ctx := context.Background()

	c.FetchPeriod(ctx, "1001", 2024, 6)
	c.FetchPeriod(ctx, "1001", 2024, 7)
	c.FetchPeriod(ctx, "1002", 2024, 6)
	assert.Equal(t, 3, remoteCalls)
}

func TestFetchPeriodFailureReturnsEmpty(t *testing.T) {
	c, _ := newClient(t, "http://127.0.0.1:1")
	shard := c.FetchPeriod(context.Background(), "1001", 2024, 6)
	require.NotNil(t, shard)
	assert.Empty(t, shard)
}

func TestFetchPeriodBadStatusReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newClient(t, srv.URL)
	shard := c.FetchPeriod(context.Background(), "1001", 2024, 6)
	assert.Empty(t, shard)
}

func TestFetchPeriodFailureIsNotCached(t *testing.T) {
	remoteCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remoteCalls++
		if remoteCalls == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"bob":[]}`))
	}))
	defer srv.Close()

	c, _ := newClient(t, srv.URL)
	ctx := context.Background()

	assert.Empty(t, c.FetchPeriod(ctx, "1001", 2024, 6))
	shard := c.FetchPeriod(ctx, "1001", 2024, 6)
	assert.Equal(t, 2, remoteCalls)
	assert.Contains(t, shard, "bob")
}

func TestFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/snapshot", r.URL.Path)
		w.Write([]byte(`{"success":true,"data":{"files":[{"path":"clients.json","content":[]}],"metadata":{"lastWriteTime":42}}}`))
	}))
	defer srv.Close()

	c, _ := newClient(t, srv.URL)
	data, err := c.FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), data.Metadata.LastWriteTime)
	require.Len(t, data.Files, 1)
	assert.Equal(t, "clients.json", data.Files[0].Path)
}

func TestFetchSnapshotErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"unsuccessful envelope", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":false}`))
		}},
		{"bad status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{{{`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c, _ := newClient(t, srv.URL)
			_, err := c.FetchSnapshot(context.Background())
			assert.Error(t, err)
		})
	}
}
