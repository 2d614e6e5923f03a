package codec

import (
	"sort"
	"time"
)

// undatedPeriod collects records that carry no usable timestamp.
const undatedPeriod = "undated"

// AggregationCodec folds an array of records into per-period buckets. Only
// bucket-level statistics survive.
type AggregationCodec struct{}

func (AggregationCodec) Kind() Kind { return KindAggregation }

func (AggregationCodec) Encode(data any, opts Options) (any, error) {
	items, ok := asArray(data)
	if !ok || len(items) == 0 {
		return data, nil
	}
	opts = opts.withDefaults()

	type bucket struct {
		count  int
		fields map[string]*accumulator
	}
	buckets := make(map[string]*bucket)

	for _, item := range items {
		record, ok := asObject(item)
		if !ok {
			continue
		}

		key := undatedPeriod
		if ts, ok := recordTime(record); ok {
			key = periodKey(ts, opts.Period)
		}

		b, ok := buckets[key]
		if !ok {
			b = &bucket{fields: make(map[string]*accumulator)}
			buckets[key] = b
		}
		b.count++

		for _, field := range opts.AggregationFields {
			v, ok := asNumber(record[field])
			if !ok {
				continue
			}
			acc, ok := b.fields[field]
			if !ok {
				acc = &accumulator{}
				b.fields[field] = acc
			}
			acc.add(v)
		}
	}

	if len(buckets) == 0 {
		return data, nil
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Bucket, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		fields := make(map[string]FieldStats, len(b.fields))
		for name, acc := range b.fields {
			fields[name] = acc.fieldStats()
		}
		out = append(out, Bucket{Period: k, Count: b.count, Fields: fields})
	}

	return &Aggregated{
		Type:              TypeAggregated,
		AggregationPeriod: opts.Period,
		AggregationFields: opts.AggregationFields,
		OriginalCount:     len(items),
		AggregatedCount:   len(out),
		Data:              out,
	}, nil
}

// recordTime prefers the "timestamp" field and falls back to any other
// time-like field.
func recordTime(record map[string]any) (time.Time, bool) {
	if ts, ok := TimestampValue(record["timestamp"]); ok {
		return ts, true
	}
	keys := make([]string, 0, len(record))
	for k := range record {
		if IsTimeKey(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if ts, ok := TimestampValue(record[k]); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

// periodKey formats the start of the UTC period containing t. Weeks start on
// Sunday.
func periodKey(t time.Time, p Period) string {
	t = t.UTC()
	switch p {
	case PeriodDay:
		return t.Format("2006-01-02")
	case PeriodWeek:
		return weekStart(t).Format("2006-01-02")
	case PeriodMonth:
		return t.Format("2006-01")
	default:
		return roundToHour(t).Format("2006-01-02T15")
	}
}

func roundToHour(t time.Time) time.Time {
	return time.Date(
		t.Year(), t.Month(), t.Day(),
		t.Hour(), 0, 0, 0,
		t.Location(),
	)
}

func weekStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -int(day.Weekday()))
}
