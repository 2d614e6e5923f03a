package codec

import (
	json "github.com/goccy/go-json"
)

// PayloadType is the discriminator written into every encoded payload.
type PayloadType string

const (
	TypeNumericSummary     PayloadType = "numeric_summary"
	TypeObjectArraySummary PayloadType = "object_array_summary"
	TypeArraySummary       PayloadType = "array_summary"
	TypeObjectSummary      PayloadType = "object_summary"
	TypeSampled            PayloadType = "sampled_data"
	TypeAggregated         PayloadType = "aggregated_data"
	TypeDelta              PayloadType = "delta_compressed"
	TypeDictionary         PayloadType = "dictionary_compressed"
	TypePassthrough        PayloadType = "passthrough"
)

// Payload is the closed set of encoded shapes a codec can produce.
type Payload interface {
	PayloadType() PayloadType
}

// Percentiles holds the order statistics of a numeric summary.
type Percentiles struct {
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type NumericSummary struct {
	Type              PayloadType `json:"type"`
	Count             int         `json:"count"`
	Sum               float64     `json:"sum"`
	Mean              float64     `json:"mean"`
	Median            float64     `json:"median"`
	Min               float64     `json:"min"`
	Max               float64     `json:"max"`
	StandardDeviation float64     `json:"standardDeviation"`
	Percentiles       Percentiles `json:"percentiles"`
}

// FieldSummary describes one field across an array of records.
type FieldSummary struct {
	Type         string          `json:"type"`
	Count        int             `json:"count"`
	Statistics   *NumericSummary `json:"statistics,omitempty"`
	UniqueValues []string        `json:"uniqueValues,omitempty"`
}

// DateSpan is the range of Unix-millisecond timestamps seen in summarized data.
type DateSpan struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
	Span  int64 `json:"span"`
}

type ObjectArraySummary struct {
	Type      PayloadType             `json:"type"`
	Count     int                     `json:"count"`
	Fields    map[string]FieldSummary `json:"fields"`
	Sample    []any                   `json:"sample"`
	DateRange *DateSpan               `json:"dateRange,omitempty"`
}

type ArraySummary struct {
	Type         PayloadType `json:"type"`
	Length       int         `json:"length"`
	Sample       []any       `json:"sample"`
	UniqueValues []any       `json:"uniqueValues"`
}

// ObjectSummary summarizes a keyed object field by field.
type ObjectSummary struct {
	Type   PayloadType    `json:"type"`
	Keys   int            `json:"keys"`
	Fields map[string]any `json:"fields"`
}

type Sampled struct {
	Type             PayloadType `json:"type"`
	OriginalCount    int         `json:"originalCount"`
	SampleCount      int         `json:"sampleCount"`
	SampleRate       float64     `json:"sampleRate"`
	SamplingStrategy string      `json:"samplingStrategy"`
	Samples          []any       `json:"samples"`
}

// FieldStats is the per-field aggregate of one time bucket.
type FieldStats struct {
	Count   int     `json:"count"`
	Sum     float64 `json:"sum"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Median  float64 `json:"median"`
}

// Bucket is one aggregation period.
type Bucket struct {
	Period string                `json:"period"`
	Count  int                   `json:"count"`
	Fields map[string]FieldStats `json:"fields"`
}

type Aggregated struct {
	Type              PayloadType `json:"type"`
	AggregationPeriod Period      `json:"aggregationPeriod"`
	AggregationFields []string    `json:"aggregationFields"`
	OriginalCount     int         `json:"originalCount"`
	AggregatedCount   int         `json:"aggregatedCount"`
	Data              []Bucket    `json:"data"`
}

type Delta struct {
	Type          PayloadType `json:"type"`
	DeltaFields   []string    `json:"deltaFields"`
	OriginalCount int         `json:"originalCount"`
	Data          []any       `json:"data"`
}

type Dictionary struct {
	Type       PayloadType       `json:"type"`
	Data       any               `json:"data"`
	Dictionary map[string]string `json:"dictionary"`
}

// Passthrough wraps data that was stored without any codec applied.
type Passthrough struct {
	Type PayloadType `json:"type"`
	Data any         `json:"data"`
}

func (*NumericSummary) PayloadType() PayloadType     { return TypeNumericSummary }
func (*ObjectArraySummary) PayloadType() PayloadType { return TypeObjectArraySummary }
func (*ArraySummary) PayloadType() PayloadType       { return TypeArraySummary }
func (*ObjectSummary) PayloadType() PayloadType      { return TypeObjectSummary }
func (*Sampled) PayloadType() PayloadType            { return TypeSampled }
func (*Aggregated) PayloadType() PayloadType         { return TypeAggregated }
func (*Delta) PayloadType() PayloadType              { return TypeDelta }
func (*Dictionary) PayloadType() PayloadType         { return TypeDictionary }
func (*Passthrough) PayloadType() PayloadType        { return TypePassthrough }

func newPayload(t PayloadType) Payload {
	switch t {
	case TypeNumericSummary:
		return &NumericSummary{}
	case TypeObjectArraySummary:
		return &ObjectArraySummary{}
	case TypeArraySummary:
		return &ArraySummary{}
	case TypeObjectSummary:
		return &ObjectSummary{}
	case TypeSampled:
		return &Sampled{}
	case TypeAggregated:
		return &Aggregated{}
	case TypeDelta:
		return &Delta{}
	case TypeDictionary:
		return &Dictionary{}
	case TypePassthrough:
		return &Passthrough{}
	}
	return nil
}

// Parse recognizes an encoded payload by its type field. Values that are
// already a Payload are returned as is.
func Parse(v any) (Payload, bool) {
	if p, ok := v.(Payload); ok {
		return p, true
	}
	obj, ok := asObject(v)
	if !ok {
		return nil, false
	}
	tag, ok := obj["type"].(string)
	if !ok {
		return nil, false
	}
	p := newPayload(PayloadType(tag))
	if p == nil {
		return nil, false
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, false
	}
	return p, true
}
