package archive

import (
	"fmt"
	"time"

	"github.com/nicktill/statvault/pkg/codec"
)

// PartitionStrategy decides which part of a dataset moves to the archive.
type PartitionStrategy string

const (
	PartitionAge        PartitionStrategy = "age"
	PartitionSize       PartitionStrategy = "size"
	PartitionFrequency  PartitionStrategy = "frequency"
	PartitionImportance PartitionStrategy = "importance"
)

func ParsePartitionStrategy(s string) (PartitionStrategy, error) {
	switch p := PartitionStrategy(s); p {
	case PartitionAge, PartitionSize, PartitionFrequency, PartitionImportance:
		return p, nil
	}
	return "", fmt.Errorf("unknown partition strategy %q", s)
}

// Split is the outcome of Partition. Either side may be nil.
type Split struct {
	Archive any `json:"archive"`
	Keep    any `json:"keep"`
}

// keptShare of MaxActiveSize stays active under the size strategy.
const keptShare = 0.8

// Partition splits generic data into an archived part and a kept part.
func Partition(data any, strategy PartitionStrategy, cfg Config, now time.Time) Split {
	switch strategy {
	case PartitionAge:
		return partitionByAge(data, now.Add(-time.Duration(cfg.ActiveDays)*24*time.Hour))
	case PartitionSize:
		return partitionBySize(data, cfg.MaxActiveSize)
	}
	// Frequency and importance have no usage signal to go on and keep
	// everything active.
	return Split{Keep: data}
}

func partitionByAge(data any, cutoff time.Time) Split {
	arr, ok := data.([]any)
	if !ok {
		return Split{Archive: data}
	}
	var old, recent []any
	for _, item := range arr {
		ts, ok := recordTimestamp(item)
		if ok && ts.Before(cutoff) {
			old = append(old, item)
		} else {
			recent = append(recent, item)
		}
	}
	return Split{Archive: nilIfEmpty(old), Keep: nilIfEmpty(recent)}
}

// partitionBySize keeps the newest (trailing) records while they fit in the
// kept share of maxActive.
func partitionBySize(data any, maxActive int) Split {
	if codec.SizeOf(data) <= maxActive {
		return Split{Keep: data}
	}
	arr, ok := data.([]any)
	if !ok {
		return Split{Archive: data}
	}

	budget := int(float64(maxActive) * keptShare)
	kept := 0
	keepMask := make([]bool, len(arr))
	for i := len(arr) - 1; i >= 0; i-- {
		size := codec.SizeOf(arr[i])
		if kept+size <= budget {
			keepMask[i] = true
			kept += size
		}
	}

	var archive, keep []any
	for i, item := range arr {
		if keepMask[i] {
			keep = append(keep, item)
		} else {
			archive = append(archive, item)
		}
	}
	return Split{Archive: nilIfEmpty(archive), Keep: nilIfEmpty(keep)}
}

func recordTimestamp(item any) (time.Time, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		return time.Time{}, false
	}
	for _, key := range []string{"timestamp", "date", "createdAt"} {
		if ts, ok := codec.TimestampValue(obj[key]); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

func nilIfEmpty(items []any) any {
	if len(items) == 0 {
		return nil
	}
	return items
}
