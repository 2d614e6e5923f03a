package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nicktill/statvault/pkg/codec"
	archerr "github.com/nicktill/statvault/pkg/errors"
)

const largeArrayLength = 1000

// Recency tag thresholds, measured from the end of an archive's date range.
const (
	recentAge  = 7 * 24 * time.Hour
	currentAge = 30 * 24 * time.Hour
	oldAge     = 90 * 24 * time.Hour
)

// validateDataType rejects names that would break id parsing or collide with
// the metadata and backup key prefixes.
func validateDataType(dataType string) error {
	switch {
	case dataType == "":
		return archerr.New(archerr.CodeArchiveDataInvalid, "data type is required")
	case strings.ContainsAny(dataType, "_ /"):
		return archerr.New(archerr.CodeArchiveDataInvalid, "data type must not contain '_', '/' or spaces",
			archerr.FieldDataType(dataType))
	case dataType == "meta" || dataType == "backup":
		return archerr.New(archerr.CodeArchiveDataInvalid, "data type is reserved",
			archerr.FieldDataType(dataType))
	}
	return nil
}

func newArchiveID(dataType string, at time.Time) string {
	return fmt.Sprintf("%s_%d_%s", dataType, at.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
}

// RecordCount is the array length for arrays, the summed length of
// array-valued fields for keyed objects and 1 for anything else.
func RecordCount(data any) int {
	switch t := data.(type) {
	case []any:
		return len(t)
	case map[string]any:
		count := 0
		for _, v := range t {
			if arr, ok := v.([]any); ok {
				count += len(arr)
			}
		}
		return count
	}
	return 1
}

// ExtractDateRange spans every timestamp found in data, or returns nil.
func ExtractDateRange(data any) *DateRange {
	stamps := codec.ExtractTimestamps(data)
	if len(stamps) == 0 {
		return nil
	}
	r := &DateRange{Start: stamps[0], End: stamps[0], Count: len(stamps)}
	for _, ts := range stamps[1:] {
		if ts.Before(r.Start) {
			r.Start = ts
		}
		if ts.After(r.End) {
			r.End = ts
		}
	}
	return r
}

// Tags derives search tags from the shape and age of data.
func Tags(data any, dataType string, dates *DateRange, now time.Time) []string {
	tags := []string{dataType}
	if arr, ok := data.([]any); ok {
		tags = append(tags, "array")
		if len(arr) > largeArrayLength {
			tags = append(tags, "large")
		}
	}
	if dates != nil {
		switch age := now.Sub(dates.End); {
		case age < recentAge:
			tags = append(tags, "recent")
		case age < currentAge:
			tags = append(tags, "current")
		case age < oldAge:
			tags = append(tags, "old")
		default:
			tags = append(tags, "ancient")
		}
	}
	return tags
}

func mergeTags(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, t := range append(append([]string(nil), base...), extra...) {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
