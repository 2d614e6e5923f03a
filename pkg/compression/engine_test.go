package compression

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nicktill/statvault/pkg/codec"
	archerr "github.com/nicktill/statvault/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, cfg Config, opts ...Option) (*Engine, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	opts = append([]Option{WithClock(clock)}, opts...)
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, clock
}

func sessions(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = map[string]any{
			"sessionId": fmt.Sprintf("session-%04d", i),
			"score":     float64(1000 + i%97),
			"level":     fmt.Sprintf("level-%d", i%5),
			"playTime":  float64(60 + i%30),
		}
	}
	return out
}

type profile struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

func TestCompress_Effective(t *testing.T) {
	e, _ := newEngine(t, DefaultConfig())
	data := sessions(500)

	res, err := e.Compress(context.Background(), data, "sessions", Options{})
	require.NoError(t, err)
	require.True(t, res.Compressed)
	require.Empty(t, res.Reason)
	require.Equal(t, codec.SizeOf(data), res.Info.OriginalSize)
	require.Less(t, res.Info.CompressionRatio, 0.7)
	require.Len(t, res.Info.Stages, 2)
	require.Equal(t, codec.KindSummary, res.Info.Stages[0].Algorithm)
	require.True(t, res.Info.Stages[0].Applied)
	require.False(t, res.Info.Stages[1].Applied)
	require.Equal(t, 1, res.Info.Layers())
	require.False(t, res.Info.Lossless())

	require.NotNil(t, res.Metadata)
	require.Equal(t, "sessions", res.Metadata.DataType)
	require.Equal(t, []codec.Kind{codec.KindSummary, codec.KindSampling}, res.Metadata.Strategies)
	require.Regexp(t, `^sessions_\d+_[0-9a-f]{8}$`, res.Metadata.ID)

	payload, ok := codec.Parse(res.Data)
	require.True(t, ok)
	require.Equal(t, codec.TypeObjectArraySummary, payload.PayloadType())
}

func TestCompress_IneffectiveReturnsOriginal(t *testing.T) {
	e, _ := newEngine(t, DefaultConfig())
	data := &profile{Name: "ada", Level: 3}

	res, err := e.Compress(context.Background(), data, "achievements", Options{})
	require.NoError(t, err)
	require.False(t, res.Compressed)
	require.Equal(t, ReasonIneffective, res.Reason)
	require.Same(t, data, res.Data)
	require.Nil(t, res.Metadata)
	require.Greater(t, res.Info.CompressionRatio, 0.7)
}

func TestCompress_InvalidData(t *testing.T) {
	e, _ := newEngine(t, DefaultConfig())

	_, err := e.Compress(context.Background(), nil, "sessions", Options{})
	require.True(t, archerr.HasCode(err, archerr.CodeArchiveDataInvalid))

	_, err = e.Compress(context.Background(), map[string]any{"fn": func() {}}, "sessions", Options{})
	require.True(t, archerr.IsInvalidInput(err))
}

type explodingCodec struct{}

func (explodingCodec) Kind() codec.Kind { return "explode" }

func (explodingCodec) Encode(any, codec.Options) (any, error) {
	return nil, errors.New("codec blew up")
}

func TestCompress_StageFailureIsAbsorbed(t *testing.T) {
	registry := codec.NewRegistry(explodingCodec{}, codec.SummaryCodec{})
	e, _ := newEngine(t, DefaultConfig(), WithRegistry(registry))

	res, err := e.Compress(context.Background(), sessions(600), "sessions", Options{
		Strategy: []codec.Kind{"explode", "missing", codec.KindSummary},
	})
	require.NoError(t, err)
	require.True(t, res.Compressed)
	require.Len(t, res.Info.Stages, 3)

	failed := res.Info.Stages[0]
	require.Contains(t, failed.Error, "codec blew up")
	require.Equal(t, 1.0, failed.Ratio)
	require.Equal(t, failed.OriginalSize, failed.CompressedSize)
	require.False(t, failed.Applied)

	require.NotEmpty(t, res.Info.Stages[1].Error)
	require.Empty(t, res.Info.Stages[2].Error)
	require.Less(t, res.Info.Stages[2].Ratio, 1.0)
	require.True(t, res.Info.Stages[2].Applied)
}

func TestCompress_QueuedJobsResolveInOrder(t *testing.T) {
	e, clock := newEngine(t, DefaultConfig())
	ctx := context.Background()

	first := e.CompressAsync(ctx, sessions(500), "sessions", Options{})
	second := e.CompressAsync(ctx, sessions(600), "sessions", Options{})

	r1, err := first.Wait(ctx)
	require.NoError(t, err)
	clock.Advance(time.Second)
	r2, err := second.Wait(ctx)
	require.NoError(t, err)

	require.True(t, r1.Compressed)
	require.True(t, r2.Compressed)
	require.False(t, r2.Metadata.CreatedAt.Before(r1.Metadata.CreatedAt))

	stats := e.Statistics()
	require.Equal(t, 2, stats.TotalCompressed)
	require.Equal(t, 2, stats.MetadataCount)
	require.InDelta(t, (r1.Info.CompressionRatio+r2.Info.CompressionRatio)/2, stats.AverageRatio, 1e-9)
	require.Equal(t, 0, stats.QueueLength)
}

func TestCompress_HistoryLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryLimit = 2
	e, _ := newEngine(t, cfg)

	for i := 0; i < 3; i++ {
		_, err := e.Compress(context.Background(), sessions(150), "sessions", Options{})
		require.NoError(t, err)
	}
	require.Len(t, e.History(), 2)
	require.Equal(t, 2, e.Statistics().HistoryCount)
}

func TestUpdateConfig(t *testing.T) {
	e, _ := newEngine(t, DefaultConfig())
	ctx := context.Background()

	strict := 0.01
	cfg, err := e.UpdateConfig(ctx, Patch{
		EffectivenessThreshold: &strict,
		Strategies:             map[string][]codec.Kind{"custom": {codec.KindDictionary}},
	})
	require.NoError(t, err)
	require.Equal(t, 0.01, cfg.EffectivenessThreshold)
	require.Equal(t, []codec.Kind{codec.KindDictionary}, cfg.Strategies["custom"])
	require.Equal(t, []codec.Kind{codec.KindSummary}, cfg.Strategies["achievements"])

	res, err := e.Compress(ctx, sessions(500), "sessions", Options{})
	require.NoError(t, err)
	require.False(t, res.Compressed)

	bad := 2.0
	_, err = e.UpdateConfig(ctx, Patch{EffectivenessThreshold: &bad})
	require.True(t, archerr.IsInvalidInput(err))
	require.Equal(t, 0.01, e.Config().EffectivenessThreshold)
}

func TestMaintenance_PrunesOldMetadata(t *testing.T) {
	e, clock := newEngine(t, DefaultConfig())
	ctx := context.Background()

	old, err := e.Compress(ctx, sessions(500), "sessions", Options{})
	require.NoError(t, err)

	clock.Advance(1090 * 24 * time.Hour)
	recent, err := e.Compress(ctx, sessions(500), "sessions", Options{})
	require.NoError(t, err)

	clock.Advance(10 * 24 * time.Hour)
	removed, err := e.Maintenance(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, ok := e.Metadata(old.Metadata.ID)
	require.False(t, ok)
	_, ok = e.Metadata(recent.Metadata.ID)
	require.True(t, ok)
}

func TestDecompress(t *testing.T) {
	e, _ := newEngine(t, DefaultConfig())

	payload, err := codec.ToGeneric(&codec.Delta{
		Type:        codec.TypeDelta,
		DeltaFields: []string{"score"},
		Data:        []any{map[string]any{"score": 1.0}, map[string]any{"score": 2.0}},
	})
	require.NoError(t, err)

	out, err := e.Decompress(payload, nil)
	require.NoError(t, err)
	require.Equal(t, []any{map[string]any{"score": 1.0}, map[string]any{"score": 3.0}}, out)

	plain := map[string]any{"score": 5.0}
	out, err = e.Decompress(plain, nil)
	require.NoError(t, err)
	require.Equal(t, plain, out)
}

func TestDecompress_StopsAtAppliedLayers(t *testing.T) {
	e, _ := newEngine(t, DefaultConfig())
	ctx := context.Background()

	long := "a-long-repeated-inventory-item-name"
	samples := make([]any, 40)
	for i := range samples {
		samples[i] = long
	}
	data := map[string]any{
		"type":    "sampled_data",
		"samples": samples,
		"owner":   "player-one-with-a-long-name",
	}

	res, err := e.Compress(ctx, data, "statistics", Options{Strategy: []codec.Kind{codec.KindDictionary}})
	require.NoError(t, err)
	require.True(t, res.Compressed)
	require.Equal(t, 1, res.Info.Layers())
	require.True(t, res.Info.Lossless())

	out, err := e.Decompress(res.Data, res.Metadata)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestClosedEngine(t *testing.T) {
	e, err := New(DefaultConfig())
	require.NoError(t, err)
	e.Close()

	_, err = e.Compress(context.Background(), sessions(10), "sessions", Options{})
	require.True(t, archerr.HasCode(err, archerr.CodeEngineClosed))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EffectivenessThreshold = 0
	cfg.Strategies["broken"] = []codec.Kind{"zip"}
	_, err := New(cfg)
	require.Error(t, err)
}
