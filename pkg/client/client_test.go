package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/statvault/pkg/archive"
	"github.com/nicktill/statvault/pkg/config"
	"github.com/nicktill/statvault/pkg/server"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Backend = "memory"

	clock := clockwork.NewFakeClockAt(epoch)
	comps, err := server.Initialize(context.Background(), cfg, clock, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { comps.Close() })

	srv := httptest.NewServer(server.New(server.Deps{
		Store:  comps.Store,
		Engine: comps.Engine,
		Clock:  clock,
	}).Handler())
	t.Cleanup(srv.Close)

	c, err := New(Config{Endpoint: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func scores(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = map[string]any{
			"playerId":  "p1",
			"score":     float64(i * 10),
			"timestamp": float64(epoch.Add(-time.Duration(i) * time.Hour).UnixMilli()),
		}
	}
	return out
}

func TestClient_RoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	res, err := c.Archive(ctx, "statistics", scores(5), archive.Options{Tags: []string{"weekly"}})
	require.NoError(t, err)
	require.True(t, res.Success)

	rec, err := c.Get(ctx, res.ArchiveID)
	require.NoError(t, err)
	assert.Equal(t, "statistics", rec.DataType)
	assert.Contains(t, rec.Tags, "weekly")

	found, err := c.Search(ctx, archive.Query{DataType: "statistics"})
	require.NoError(t, err)
	require.Equal(t, 1, found.Total)
	assert.Equal(t, res.ArchiveID, found.Results[0].ArchiveID)

	restored, err := c.Restore(ctx, res.ArchiveID, archive.RestoreOptions{})
	require.NoError(t, err)
	assert.True(t, restored.Success)
	assert.NotNil(t, restored.Data)

	st, err := c.ArchiveStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ArchiveCount)

	_, err = c.CompressionStats(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, res.ArchiveID))
	_, err = c.Get(ctx, res.ArchiveID)
	assert.True(t, IsNotFound(err))
}

func TestClient_Errors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Restore(ctx, "missing", archive.RestoreOptions{})
	require.True(t, IsNotFound(err))

	_, err = c.Archive(ctx, "", scores(1), archive.Options{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.NotEmpty(t, apiErr.Code)
}

func TestClient_SendsAPIKey(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL + "/", APIKey: "secret"})
	require.NoError(t, err)
	require.NoError(t, c.Delete(context.Background(), "x"))
	assert.Equal(t, "Bearer secret", got)
}

func TestNew_InvalidEndpoint(t *testing.T) {
	_, err := New(Config{Endpoint: "not a url"})
	require.Error(t, err)
}
