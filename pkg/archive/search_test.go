package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	var sessionIDs []string
	for i := 0; i < 3; i++ {
		res, err := f.store.Archive(ctx, sessionRecords(3, f.clock.Now()), "sessions", noCompress())
		require.NoError(t, err)
		sessionIDs = append(sessionIDs, res.ArchiveID)
		f.clock.Advance(time.Hour)
	}
	stats, err := f.store.Archive(ctx, map[string]any{"totals": []any{1.0, 2.0}}, "statistics", noCompress())
	require.NoError(t, err)

	t.Run("by type ranked by recency", func(t *testing.T) {
		got := f.store.Search(Query{DataType: "sessions"})
		require.Equal(t, 3, got.Total)
		require.Equal(t, []string{sessionIDs[2], sessionIDs[1], sessionIDs[0]}, hitIDs(got))
		for _, h := range got.Results {
			require.Greater(t, h.Score, 140.0)
		}
	})

	t.Run("no filter", func(t *testing.T) {
		got := f.store.Search(Query{})
		require.Equal(t, 4, got.Total)
		require.Equal(t, stats.ArchiveID, got.Results[0].ArchiveID)
	})

	t.Run("limit", func(t *testing.T) {
		got := f.store.Search(Query{Limit: 2})
		require.Equal(t, 4, got.Total)
		require.Len(t, got.Results, 2)
	})

	t.Run("tags use and semantics", func(t *testing.T) {
		got := f.store.Search(Query{Tags: []string{"array", "recent"}})
		require.Equal(t, 3, got.Total)

		got = f.store.Search(Query{Tags: []string{"array", "statistics"}})
		require.Zero(t, got.Total)
	})

	t.Run("text is case insensitive", func(t *testing.T) {
		got := f.store.Search(Query{Text: "STATIS"})
		require.Equal(t, []string{stats.ArchiveID}, hitIDs(got))
	})

	t.Run("date range overlap", func(t *testing.T) {
		got := f.store.Search(Query{DateRange: &TimeRange{Start: epoch.Add(90 * time.Minute)}})
		require.Equal(t, []string{sessionIDs[2]}, hitIDs(got))

		got = f.store.Search(Query{DateRange: &TimeRange{End: epoch.Add(-time.Hour)}})
		require.Zero(t, got.Total)
	})

	t.Run("size bounds", func(t *testing.T) {
		got := f.store.Search(Query{MaxSize: stats.ArchivedSize})
		require.Equal(t, []string{stats.ArchiveID}, hitIDs(got))

		got = f.store.Search(Query{MinSize: stats.ArchivedSize + 1})
		require.Equal(t, 3, got.Total)
	})
}

func TestRelevance(t *testing.T) {
	now := epoch
	r := &Record{DataType: "sessions", RecordCount: 5000, CreatedAt: now.Add(-10 * day)}

	require.InDelta(t, 90.0, relevance(r, Query{}, now), 1e-9)
	require.InDelta(t, 140.0, relevance(r, Query{DataType: "sessions"}, now), 1e-9)
	require.InDelta(t, 95.0, relevance(r, Query{PreferLarger: true}, now), 1e-9)

	ancient := &Record{DataType: "sessions", CreatedAt: now.Add(-400 * day)}
	require.Zero(t, relevance(ancient, Query{}, now))
}

func hitIDs(res SearchResult) []string {
	ids := make([]string, 0, len(res.Results))
	for _, h := range res.Results {
		ids = append(ids, h.ArchiveID)
	}
	return ids
}

func TestSearch_ReturnsCopies(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	res, err := f.store.Archive(ctx, sessionRecords(3, epoch), "sessions", Options{Tags: []string{"ranked"}})
	require.NoError(t, err)

	got := f.store.Search(Query{Tags: []string{"ranked"}})
	require.Equal(t, 1, got.Total)
	got.Results[0].Metadata.Tags[0] = "mutated"
	got.Results[0].Metadata.Tags = append(got.Results[0].Metadata.Tags, "extra")

	rec, ok := f.store.Get(res.ArchiveID)
	require.True(t, ok)
	require.Equal(t, res.Metadata.Tags, rec.Tags)
	require.Equal(t, 1, f.store.Search(Query{Tags: []string{"ranked"}}).Total)
}
