package codec

import (
	"sort"
	"time"
)

const (
	objectSampleSize     = 100
	arraySampleSize      = 10
	maxUniqueStrings     = 50
	maxUniqueStringLen   = 100
	maxArrayUniqueValues = 100
)

// SummaryCodec replaces a dataset with descriptive statistics. It is lossy:
// decoding returns the summary itself.
type SummaryCodec struct{}

func (SummaryCodec) Kind() Kind { return KindSummary }

func (SummaryCodec) Encode(data any, _ Options) (any, error) {
	return summarize(data), nil
}

func summarize(data any) any {
	switch v := data.(type) {
	case []any:
		if len(v) == 0 {
			return data
		}
		if nums, ok := numericSlice(v); ok {
			return summarizeNumbers(nums)
		}
		if objs, ok := objectSlice(v); ok {
			return summarizeObjects(objs)
		}
		return summarizeArray(v)
	case map[string]any:
		return summarizeObject(v)
	}
	return data
}

func numericSlice(items []any) ([]float64, bool) {
	nums := make([]float64, 0, len(items))
	for _, item := range items {
		n, ok := asNumber(item)
		if !ok {
			return nil, false
		}
		nums = append(nums, n)
	}
	return nums, true
}

func objectSlice(items []any) ([]map[string]any, bool) {
	objs := make([]map[string]any, 0, len(items))
	for _, item := range items {
		obj, ok := asObject(item)
		if !ok {
			return nil, false
		}
		objs = append(objs, obj)
	}
	return objs, true
}

type fieldCollector struct {
	kind    string
	count   int
	numbers []float64
	seen    map[string]struct{}
	unique  []string
}

func summarizeObjects(records []map[string]any) *ObjectArraySummary {
	collectors := make(map[string]*fieldCollector)
	for _, record := range records {
		for key, value := range record {
			fc, ok := collectors[key]
			if !ok {
				fc = &fieldCollector{seen: make(map[string]struct{})}
				collectors[key] = fc
			}
			fc.count++

			kind := typeName(value)
			if value != nil {
				switch {
				case fc.kind == "":
					fc.kind = kind
				case fc.kind != kind:
					fc.kind = "mixed"
				}
			}

			if n, ok := asNumber(value); ok {
				fc.numbers = append(fc.numbers, n)
			}
			if s, ok := value.(string); ok && len(s) < maxUniqueStringLen && len(fc.unique) < maxUniqueStrings {
				if _, dup := fc.seen[s]; !dup {
					fc.seen[s] = struct{}{}
					fc.unique = append(fc.unique, s)
				}
			}
		}
	}

	fields := make(map[string]FieldSummary, len(collectors))
	for key, fc := range collectors {
		kind := fc.kind
		if kind == "" {
			kind = "null"
		}
		fs := FieldSummary{Type: kind, Count: fc.count, UniqueValues: fc.unique}
		if len(fc.numbers) > 0 {
			fs.Statistics = summarizeNumbers(fc.numbers)
		}
		fields[key] = fs
	}

	sampleLen := min(objectSampleSize, len(records))
	sample := make([]any, sampleLen)
	for i := 0; i < sampleLen; i++ {
		sample[i] = records[i]
	}

	out := &ObjectArraySummary{
		Type:   TypeObjectArraySummary,
		Count:  len(records),
		Fields: fields,
		Sample: sample,
	}

	generic := make([]any, len(records))
	for i, r := range records {
		generic[i] = r
	}
	if span, ok := spanOf(ExtractTimestamps(generic)); ok {
		out.DateRange = span
	}
	return out
}

func spanOf(stamps []time.Time) (*DateSpan, bool) {
	if len(stamps) == 0 {
		return nil, false
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	start := stamps[0].UnixMilli()
	end := stamps[len(stamps)-1].UnixMilli()
	return &DateSpan{Start: start, End: end, Span: end - start}, true
}

func summarizeArray(items []any) *ArraySummary {
	sampleLen := min(arraySampleSize, len(items))
	sample := make([]any, sampleLen)
	copy(sample, items[:sampleLen])

	seen := make(map[string]struct{})
	unique := make([]any, 0)
	for _, item := range items {
		if len(unique) >= maxArrayUniqueValues {
			break
		}
		raw, err := Marshal(item)
		if err != nil {
			continue
		}
		if _, dup := seen[string(raw)]; dup {
			continue
		}
		seen[string(raw)] = struct{}{}
		unique = append(unique, item)
	}

	return &ArraySummary{
		Type:         TypeArraySummary,
		Length:       len(items),
		Sample:       sample,
		UniqueValues: unique,
	}
}

// summarizeObject summarizes the array-valued fields of a keyed object and
// keeps scalar fields as they are.
func summarizeObject(obj map[string]any) *ObjectSummary {
	fields := make(map[string]any, len(obj))
	for key, value := range obj {
		switch v := value.(type) {
		case []any, map[string]any:
			fields[key] = summarize(v)
		default:
			fields[key] = value
		}
	}
	return &ObjectSummary{Type: TypeObjectSummary, Keys: len(obj), Fields: fields}
}
