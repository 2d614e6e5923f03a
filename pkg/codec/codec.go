// Package codec implements the statistical reductions applied to archived
// datasets. Every encoder produces a typed Payload tagged with a "type"
// discriminator, and Decode dispatches on that tag alone.
//
// Codecs operate on the generic JSON model (see ToGeneric). When a codec does
// not apply to the shape it is given, it returns its input unchanged.
package codec

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind names a codec.
type Kind string

const (
	KindSummary     Kind = "summary"
	KindSampling    Kind = "sampling"
	KindAggregation Kind = "aggregation"
	KindDelta       Kind = "delta"
	KindDictionary  Kind = "dictionary"
)

// Lossless reports whether decoding a payload of this kind reproduces the
// encoder's input exactly.
func (k Kind) Lossless() bool {
	return k == KindDelta || k == KindDictionary
}

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSummary, KindSampling, KindAggregation, KindDelta, KindDictionary:
		return k, nil
	}
	return "", fmt.Errorf("unknown codec %q", s)
}

// Period is an aggregation bucket width.
type Period string

const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodHour, PeriodDay, PeriodWeek, PeriodMonth:
		return p, nil
	}
	return "", fmt.Errorf("unknown aggregation period %q", s)
}

// Options tunes the codecs. Zero values fall back to the defaults.
type Options struct {
	SampleRate        float64
	MaxSamples        int
	Period            Period
	AggregationFields []string
	DeltaFields       []string
}

const (
	DefaultSampleRate = 0.1
	DefaultMaxSamples = 1000
)

// DefaultOptions returns the codec settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		SampleRate:        DefaultSampleRate,
		MaxSamples:        DefaultMaxSamples,
		Period:            PeriodHour,
		AggregationFields: []string{"score", "playTime", "accuracy"},
		DeltaFields:       []string{"score", "timestamp"},
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SampleRate <= 0 {
		o.SampleRate = def.SampleRate
	}
	if o.MaxSamples <= 0 {
		o.MaxSamples = def.MaxSamples
	}
	if o.Period == "" {
		o.Period = def.Period
	}
	if len(o.AggregationFields) == 0 {
		o.AggregationFields = def.AggregationFields
	}
	if len(o.DeltaFields) == 0 {
		o.DeltaFields = def.DeltaFields
	}
	return o
}

// Codec is a single reduction step.
type Codec interface {
	Kind() Kind
	// Encode returns a Payload, or data itself when the codec does not apply.
	Encode(data any, opts Options) (any, error)
}

// Registry maps codec kinds to implementations.
type Registry struct {
	codecs map[Kind]Codec
}

// NewRegistry creates a registry holding the given codecs. Later codecs
// replace earlier ones of the same kind.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[Kind]Codec, len(codecs))}
	for _, c := range codecs {
		r.Register(c)
	}
	return r
}

// DefaultRegistry registers every built-in codec. now drives the sampling
// recency score; seed makes the sampling jitter reproducible.
func DefaultRegistry(now func() time.Time, seed uint64) *Registry {
	return NewRegistry(
		SummaryCodec{},
		NewSamplingCodec(now, seed),
		AggregationCodec{},
		DeltaCodec{},
		DictionaryCodec{},
	)
}

func (r *Registry) Register(c Codec) {
	r.codecs[c.Kind()] = c
}

func (r *Registry) Get(k Kind) (Codec, bool) {
	c, ok := r.codecs[k]
	return c, ok
}

// Kinds lists registered codec kinds in name order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.codecs))
	for k := range r.codecs {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
