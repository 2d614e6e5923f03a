package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	archerr "github.com/nicktill/statvault/pkg/errors"
)

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		redact bool
		want   any
	}{
		{
			name: "drops null array elements",
			in:   []any{1.0, nil, map[string]any{"a": []any{nil, "x"}}},
			want: []any{1.0, map[string]any{"a": []any{"x"}}},
		},
		{
			name: "strips internal fields recursively",
			in: map[string]any{
				"score":      1.0,
				"_tempState": "x",
				"nested":     map[string]any{"_cacheHit": true, "keep": "y"},
			},
			want: map[string]any{"score": 1.0, "nested": map[string]any{"keep": "y"}},
		},
		{
			name:   "redacts sensitive names case-insensitively",
			in:     map[string]any{"user": "ada", "API_KEY": "k", "privateNote": "n", "sessionToken": "t"},
			redact: true,
			want:   map[string]any{"user": "ada"},
		},
		{
			name: "keeps sensitive names unless asked",
			in:   map[string]any{"secret": "s"},
			want: map[string]any{"secret": "s"},
		},
		{
			name: "converts structs",
			in:   struct{ Score int }{Score: 3},
			want: map[string]any{"Score": 3.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Preprocess(tt.in, tt.redact)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

type node struct {
	Next *node
}

func TestPreprocess_Rejects(t *testing.T) {
	selfMap := map[string]any{}
	selfMap["self"] = selfMap

	selfSlice := []any{nil}
	selfSlice[0] = selfSlice

	loop := &node{}
	loop.Next = loop

	var nilMap map[string]any

	for name, in := range map[string]any{
		"nil":         nil,
		"nil map":     nilMap,
		"cyclic map":  selfMap,
		"cyclic list": selfSlice,
		"cyclic ptr":  loop,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Preprocess(in, false)
			require.True(t, archerr.HasCode(err, archerr.CodeArchiveDataInvalid))
		})
	}
}

func TestPreprocess_SharedReferenceIsNotACycle(t *testing.T) {
	shared := map[string]any{"score": 1.0}
	got, err := Preprocess([]any{shared, shared}, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestRecordCount(t *testing.T) {
	require.Equal(t, 3, RecordCount([]any{1.0, 2.0, 3.0}))
	require.Equal(t, 5, RecordCount(map[string]any{"a": []any{1.0, 2.0}, "b": []any{1.0, 2.0, 3.0}, "c": 1.0}))
	require.Equal(t, 0, RecordCount(map[string]any{"c": 1.0}))
	require.Equal(t, 1, RecordCount("scalar"))
}

func TestTags(t *testing.T) {
	now := epoch
	large := make([]any, 1001)

	require.Equal(t, []string{"sessions"}, Tags(map[string]any{}, "sessions", nil, now))
	require.Equal(t, []string{"sessions", "array", "large"}, Tags(large, "sessions", nil, now))

	for age, want := range map[time.Duration]string{
		6 * day:   "recent",
		20 * day:  "current",
		60 * day:  "old",
		120 * day: "ancient",
	} {
		dates := &DateRange{Start: now.Add(-age), End: now.Add(-age), Count: 1}
		require.Equal(t, []string{"events", want}, Tags(nil, "events", dates, now))
	}
}

func TestExtractDateRange(t *testing.T) {
	require.Nil(t, ExtractDateRange([]any{map[string]any{"score": 1.0}}))

	first := epoch.Add(-time.Hour)
	got := ExtractDateRange([]any{
		map[string]any{"timestamp": float64(epoch.UnixMilli())},
		map[string]any{"date": first.Format(time.RFC3339)},
		map[string]any{"meta": map[string]any{"timestamp": float64(epoch.Add(time.Hour).UnixMilli())}},
	})
	require.NotNil(t, got)
	require.True(t, got.Start.Equal(first))
	require.True(t, got.End.Equal(epoch.Add(time.Hour)))
	require.Equal(t, 3, got.Count)
}

func TestSizeCategory(t *testing.T) {
	require.Equal(t, "tiny", SizeCategory(1023))
	require.Equal(t, "small", SizeCategory(1024))
	require.Equal(t, "medium", SizeCategory(1024*1024))
	require.Equal(t, "large", SizeCategory(10*1024*1024))
	require.Equal(t, "huge", SizeCategory(100*1024*1024))
}

func TestValidateDataType(t *testing.T) {
	require.NoError(t, validateDataType("timeSeriesData"))
	for _, bad := range []string{"", "a_b", "a b", "meta", "backup"} {
		require.Error(t, validateDataType(bad), bad)
	}
}

func TestMergeTags(t *testing.T) {
	require.Equal(t, []string{"sessions", "array", "vip"},
		mergeTags([]string{"sessions", "array"}, []string{"vip", "", "array"}))
}
