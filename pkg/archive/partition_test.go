package archive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartition_Age(t *testing.T) {
	cfg := DefaultConfig()
	oldRec := map[string]any{"id": "a", "timestamp": float64(epoch.Add(-100 * day).UnixMilli())}
	newRec := map[string]any{"id": "b", "createdAt": float64(epoch.Add(-10 * day).UnixMilli())}
	undated := map[string]any{"id": "c"}

	split := Partition([]any{oldRec, newRec, undated}, PartitionAge, cfg, epoch)
	require.Equal(t, []any{oldRec}, split.Archive)
	require.Equal(t, []any{newRec, undated}, split.Keep)

	obj := map[string]any{"totals": 1.0}
	split = Partition(obj, PartitionAge, cfg, epoch)
	require.Equal(t, obj, split.Archive)
	require.Nil(t, split.Keep)
}

func TestPartition_Size(t *testing.T) {
	cfg := DefaultConfig()

	// Each item serializes to 11 bytes; the array to 121.
	items := make([]any, 10)
	for i := range items {
		items[i] = strings.Repeat(string(rune('a'+i)), 9)
	}

	cfg.MaxActiveSize = 1000
	split := Partition(items, PartitionSize, cfg, epoch)
	require.Nil(t, split.Archive)
	require.Equal(t, items, split.Keep)

	// 80 of 100 bytes stay active: the newest seven items.
	cfg.MaxActiveSize = 100
	split = Partition(items, PartitionSize, cfg, epoch)
	require.Equal(t, items[:3], split.Archive)
	require.Equal(t, items[3:], split.Keep)
}

func TestPartition_KeepAll(t *testing.T) {
	data := []any{1.0, 2.0}
	for _, s := range []PartitionStrategy{PartitionFrequency, PartitionImportance} {
		split := Partition(data, s, DefaultConfig(), epoch)
		require.Nil(t, split.Archive)
		require.Equal(t, data, split.Keep)
	}
}

func TestParsePartitionStrategy(t *testing.T) {
	s, err := ParsePartitionStrategy("size")
	require.NoError(t, err)
	require.Equal(t, PartitionSize, s)

	_, err = ParsePartitionStrategy("random")
	require.Error(t, err)
}
