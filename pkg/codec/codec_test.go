package codec

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func records(n int, build func(i int) map[string]any) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = build(i)
	}
	return out
}

func TestSummaryNumeric(t *testing.T) {
	out, err := SummaryCodec{}.Encode([]any{1.0, 2.0, 3.0, 4.0, 5.0}, Options{})
	require.NoError(t, err)

	s, ok := out.(*NumericSummary)
	require.True(t, ok)
	require.Equal(t, 5, s.Count)
	require.Equal(t, 15.0, s.Sum)
	require.Equal(t, 3.0, s.Mean)
	require.Equal(t, 3.0, s.Median)
	require.Equal(t, 1.0, s.Min)
	require.Equal(t, 5.0, s.Max)
	require.InDelta(t, 1.41421, s.StandardDeviation, 1e-4)
	require.Equal(t, 2.0, s.Percentiles.P25)
	require.Equal(t, 5.0, s.Percentiles.P95)
}

func TestSummaryObjectArray(t *testing.T) {
	base := fixedNow.UnixMilli()
	data := records(200, func(i int) map[string]any {
		return map[string]any{
			"score":     float64(i),
			"player":    fmt.Sprintf("p%d", i),
			"timestamp": float64(base + int64(i)*1000),
			"note":      nil,
		}
	})

	out, err := SummaryCodec{}.Encode(data, Options{})
	require.NoError(t, err)

	s, ok := out.(*ObjectArraySummary)
	require.True(t, ok)
	require.Equal(t, 200, s.Count)
	require.Len(t, s.Sample, objectSampleSize)

	score := s.Fields["score"]
	require.Equal(t, "number", score.Type)
	require.Equal(t, 200, score.Count)
	require.NotNil(t, score.Statistics)
	require.Equal(t, 199.0, score.Statistics.Max)

	player := s.Fields["player"]
	require.Equal(t, "string", player.Type)
	require.Len(t, player.UniqueValues, maxUniqueStrings)
	require.Nil(t, player.Statistics)

	require.Equal(t, "null", s.Fields["note"].Type)

	require.NotNil(t, s.DateRange)
	require.Equal(t, base, s.DateRange.Start)
	require.Equal(t, base+199_000, s.DateRange.End)
	require.Equal(t, int64(199_000), s.DateRange.Span)
}

func TestSummaryShapes(t *testing.T) {
	t.Run("mixed array", func(t *testing.T) {
		out, err := SummaryCodec{}.Encode([]any{"a", 1.0, "a", true}, Options{})
		require.NoError(t, err)
		s, ok := out.(*ArraySummary)
		require.True(t, ok)
		require.Equal(t, 4, s.Length)
		require.Len(t, s.UniqueValues, 3)
	})

	t.Run("keyed object", func(t *testing.T) {
		out, err := SummaryCodec{}.Encode(map[string]any{
			"level":  "forest",
			"scores": []any{10.0, 20.0},
		}, Options{})
		require.NoError(t, err)
		s, ok := out.(*ObjectSummary)
		require.True(t, ok)
		require.Equal(t, 2, s.Keys)
		require.Equal(t, "forest", s.Fields["level"])
		require.IsType(t, &NumericSummary{}, s.Fields["scores"])
	})

	t.Run("scalars pass through", func(t *testing.T) {
		for _, in := range []any{"text", 4.0, nil, []any{}} {
			out, err := SummaryCodec{}.Encode(in, Options{})
			require.NoError(t, err)
			require.Equal(t, in, out)
		}
	})
}

func TestSampling(t *testing.T) {
	data := records(10, func(i int) map[string]any {
		return map[string]any{"score": float64(i)}
	})

	c := NewSamplingCodec(clockAt(fixedNow), 1)
	out, err := c.Encode(data, Options{MaxSamples: 2, SampleRate: 0.5})
	require.NoError(t, err)

	s, ok := out.(*Sampled)
	require.True(t, ok)
	require.LessOrEqual(t, s.SampleCount, 2)
	require.Equal(t, 10, s.OriginalCount)
	require.Equal(t, float64(s.SampleCount)/10, s.SampleRate)
	require.Equal(t, "strategic", s.SamplingStrategy)
}

func TestSampling_NotApplicable(t *testing.T) {
	c := NewSamplingCodec(clockAt(fixedNow), 1)

	small := []any{1.0, 2.0, 3.0}
	out, err := c.Encode(small, Options{})
	require.NoError(t, err)
	require.Equal(t, small, out)

	obj := map[string]any{"a": 1.0}
	out, err = c.Encode(obj, Options{})
	require.NoError(t, err)
	require.Equal(t, obj, out)
}

func TestSampling_KeepsImportantRecords(t *testing.T) {
	data := records(100, func(i int) map[string]any {
		return map[string]any{"score": 1.0, "id": float64(i)}
	})
	data[57] = map[string]any{"score": 1e9, "id": 57.0}

	c := NewSamplingCodec(clockAt(fixedNow), 42)
	out, err := c.Encode(data, Options{})
	require.NoError(t, err)

	s := out.(*Sampled)
	require.Equal(t, 10, s.SampleCount)
	require.Contains(t, s.Samples, data[57])
}

func TestAggregation(t *testing.T) {
	hour := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	data := []any{
		map[string]any{"timestamp": float64(hour.Add(5 * time.Minute).UnixMilli()), "score": 10.0},
		map[string]any{"timestamp": float64(hour.Add(35 * time.Minute).UnixMilli()), "score": 30.0},
		map[string]any{"timestamp": float64(hour.Add(65 * time.Minute).UnixMilli()), "score": 5.0, "accuracy": 0.5},
		map[string]any{"score": 1.0},
	}

	out, err := AggregationCodec{}.Encode(data, Options{})
	require.NoError(t, err)

	a, ok := out.(*Aggregated)
	require.True(t, ok)
	require.Equal(t, PeriodHour, a.AggregationPeriod)
	require.Equal(t, 4, a.OriginalCount)
	require.Equal(t, 3, a.AggregatedCount)

	first := a.Data[0]
	require.Equal(t, "2024-01-01T12", first.Period)
	require.Equal(t, 2, first.Count)
	require.Equal(t, FieldStats{Count: 2, Sum: 40, Average: 20, Min: 10, Max: 30, Median: 20}, first.Fields["score"])

	second := a.Data[1]
	require.Equal(t, "2024-01-01T13", second.Period)
	require.Equal(t, 0.5, second.Fields["accuracy"].Average)

	require.Equal(t, undatedPeriod, a.Data[2].Period)
}

func TestPeriodKey(t *testing.T) {
	ts := time.Date(2024, 1, 3, 17, 45, 0, 0, time.UTC) // Wednesday

	tests := []struct {
		period Period
		want   string
	}{
		{PeriodHour, "2024-01-03T17"},
		{PeriodDay, "2024-01-03"},
		{PeriodWeek, "2023-12-31"},
		{PeriodMonth, "2024-01"},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			require.Equal(t, tt.want, periodKey(ts, tt.period))
		})
	}
}

func TestDelta(t *testing.T) {
	data := []any{
		map[string]any{"score": 100.0, "timestamp": 1000.0, "level": "a"},
		map[string]any{"score": 150.0, "timestamp": 2000.0, "level": "b"},
		map[string]any{"score": "n/a", "timestamp": 3500.0},
		map[string]any{"score": 120.0, "timestamp": 4000.0},
	}

	out, err := DeltaCodec{}.Encode(data, Options{})
	require.NoError(t, err)

	d := out.(*Delta)
	require.Equal(t, []string{"score", "timestamp"}, d.DeltaFields)
	require.Equal(t, data[0], d.Data[0])
	require.Equal(t, map[string]any{"score": 50.0, "timestamp": 1000.0, "level": "b"}, d.Data[1])
	require.Equal(t, "n/a", d.Data[2].(map[string]any)["score"])
	require.Equal(t, 120.0, d.Data[3].(map[string]any)["score"])

	require.Equal(t, data, decodeDelta(d))
}

func TestDictionary(t *testing.T) {
	data := map[string]any{
		"players": []any{"long-player-name", "long-player-name", "short"},
		"hash":    "#tag",
		"token":   "#0",
	}

	out, err := DictionaryCodec{}.Encode(data, Options{})
	require.NoError(t, err)

	d := out.(*Dictionary)
	require.Equal(t, map[string]string{"#0": "long-player-name"}, d.Dictionary)

	encoded := d.Data.(map[string]any)
	require.Equal(t, []any{"#0", "#0", "short"}, encoded["players"])
	require.Equal(t, "##tag", encoded["hash"])
	require.Equal(t, "##0", encoded["token"])

	require.Equal(t, data, decodeDictionary(d))
}

func TestDictionary_UnknownTokenIsLiteral(t *testing.T) {
	got := decodeDictionary(&Dictionary{Data: []any{"#9", "#0"}, Dictionary: map[string]string{"#0": "long-player-name"}})
	require.Equal(t, []any{"#9", "long-player-name"}, got)
}

func TestDictionary_TokensFollowKeyOrder(t *testing.T) {
	data := map[string]any{
		"delta":   "fourth-long-value",
		"alpha":   "first-long-value",
		"charlie": "third-long-value",
		"bravo":   "second-long-value",
	}

	first, err := DictionaryCodec{}.Encode(data, Options{})
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"#0": "first-long-value",
		"#1": "second-long-value",
		"#2": "third-long-value",
		"#3": "fourth-long-value",
	}, first.(*Dictionary).Dictionary)

	want, err := Marshal(first)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := DictionaryCodec{}.Encode(data, Options{})
		require.NoError(t, err)
		got, err := Marshal(again)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestUnwrap_DecodedDataIsNotReparsed(t *testing.T) {
	data := map[string]any{
		"type":    "sampled_data",
		"samples": []any{"long-sample-value", "long-sample-value"},
	}
	out, err := DictionaryCodec{}.Encode(data, Options{})
	require.NoError(t, err)
	stored, err := ToGeneric(out)
	require.NoError(t, err)

	restored, err := Unwrap(stored, 1)
	require.NoError(t, err)
	require.Equal(t, data, restored)

	untouched, err := Unwrap(stored, 0)
	require.NoError(t, err)
	require.Equal(t, stored, untouched)
}

func TestRestoreFromGeneric(t *testing.T) {
	data := []any{
		map[string]any{"score": 1.0, "name": "a-very-long-name"},
		map[string]any{"score": 4.0, "name": "a-very-long-name"},
	}

	deltaOut, err := DeltaCodec{}.Encode(data, Options{DeltaFields: []string{"score"}})
	require.NoError(t, err)
	generic, err := ToGeneric(deltaOut)
	require.NoError(t, err)

	dictOut, err := DictionaryCodec{}.Encode(generic, Options{})
	require.NoError(t, err)
	stored, err := ToGeneric(dictOut)
	require.NoError(t, err)

	restored, decoded, err := Restore(stored)
	require.NoError(t, err)
	require.True(t, decoded)
	require.Equal(t, data, restored)
}

func TestRestore_PlainData(t *testing.T) {
	data := map[string]any{"type": "custom", "value": 1.0}
	restored, decoded, err := Restore(data)
	require.NoError(t, err)
	require.False(t, decoded)
	require.Equal(t, data, restored)
}

func TestRestore_SummaryIsTerminal(t *testing.T) {
	out, err := SummaryCodec{}.Encode([]any{1.0, 2.0}, Options{})
	require.NoError(t, err)
	stored, err := ToGeneric(out)
	require.NoError(t, err)

	restored, decoded, err := Restore(stored)
	require.NoError(t, err)
	require.True(t, decoded)
	require.Equal(t, "numeric_summary", restored.(map[string]any)["type"])
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Delta ")
	require.NoError(t, err)
	require.Equal(t, KindDelta, k)

	_, err = ParseKind("gzip")
	require.Error(t, err)

	p, err := ParsePeriod("WEEK")
	require.NoError(t, err)
	require.Equal(t, PeriodWeek, p)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(clockAt(fixedNow), 7)
	require.Equal(t, []Kind{KindAggregation, KindDelta, KindDictionary, KindSampling, KindSummary}, r.Kinds())

	c, ok := r.Get(KindSummary)
	require.True(t, ok)
	require.Equal(t, KindSummary, c.Kind())
}

func TestExtractTimestamps(t *testing.T) {
	ms := fixedNow.UnixMilli()
	data := map[string]any{
		"timestamp": float64(ms),
		"playTime":  120.0,
		"nested": []any{
			map[string]any{"date": fixedNow.Add(time.Hour).Format(time.RFC3339)},
		},
	}

	stamps := ExtractTimestamps(data)
	require.Len(t, stamps, 2)
	require.True(t, HasTimeSeriesShape(data))
	require.False(t, HasTimeSeriesShape([]any{data}))
}
