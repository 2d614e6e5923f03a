package compression

import (
	"github.com/nicktill/statvault/pkg/codec"
)

const (
	// LargeDatasetBytes triggers aggregation ahead of the default pipeline.
	LargeDatasetBytes = 10 * 1024 * 1024
	// LongArrayLength triggers sampling ahead of the default pipeline.
	LongArrayLength = 10000
)

var fallbackStrategy = []codec.Kind{codec.KindSummary}

// SelectStrategy picks the codec pipeline for a dataset of the given
// serialized size. The returned slice is always a fresh copy.
func SelectStrategy(strategies map[string][]codec.Kind, data any, dataType string, size int) []codec.Kind {
	base, ok := strategies[dataType]
	if !ok || len(base) == 0 {
		base = fallbackStrategy
	}
	pipeline := append([]codec.Kind(nil), base...)

	if size > LargeDatasetBytes {
		pipeline = prepend(pipeline, codec.KindAggregation)
	}

	if items, ok := data.([]any); ok && len(items) > LongArrayLength {
		pipeline = prepend(pipeline, codec.KindSampling)
	} else if codec.HasTimeSeriesShape(data) {
		pipeline = prepend(pipeline, codec.KindDelta)
	}

	return pipeline
}

func prepend(pipeline []codec.Kind, k codec.Kind) []codec.Kind {
	return append([]codec.Kind{k}, pipeline...)
}
