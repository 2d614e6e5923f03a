package compression

import (
	"fmt"

	"github.com/nicktill/statvault/pkg/codec"
	archerr "github.com/nicktill/statvault/pkg/errors"
)

// Config tunes the compression engine.
type Config struct {
	// EffectivenessThreshold is the largest final/original size ratio that
	// still counts as worthwhile compression.
	EffectivenessThreshold float64

	// Codec holds the default codec options.
	Codec codec.Options

	// Strategies maps a data type to its default codec pipeline. Data types
	// not listed fall back to [summary].
	Strategies map[string][]codec.Kind

	// HistoryLimit caps the number of remembered results.
	HistoryLimit int

	// QueueSize is the number of compression jobs that may wait for the worker.
	QueueSize int

	// MetadataRetentionDays prunes compression metadata during maintenance.
	MetadataRetentionDays int
}

// DefaultStrategies returns the built-in pipeline table.
func DefaultStrategies() map[string][]codec.Kind {
	return map[string][]codec.Kind{
		"sessions":       {codec.KindSummary, codec.KindSampling},
		"timeSeriesData": {codec.KindAggregation, codec.KindDelta},
		"achievements":   {codec.KindSummary},
		"statistics":     {codec.KindDictionary, codec.KindSummary},
	}
}

func DefaultConfig() Config {
	return Config{
		EffectivenessThreshold: 0.7,
		Codec:                  codec.DefaultOptions(),
		Strategies:             DefaultStrategies(),
		HistoryLimit:           100,
		QueueSize:              256,
		MetadataRetentionDays:  1095,
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() []error {
	var errs []error
	if c.EffectivenessThreshold <= 0 || c.EffectivenessThreshold > 1 {
		errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid,
			"compression: effectiveness threshold must be in (0, 1], got %v", c.EffectivenessThreshold))
	}
	if c.Codec.SampleRate < 0 || c.Codec.SampleRate > 1 {
		errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid,
			"compression: sample rate must be in [0, 1], got %v", c.Codec.SampleRate))
	}
	if c.Codec.MaxSamples < 0 {
		errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid,
			"compression: max samples must not be negative, got %d", c.Codec.MaxSamples))
	}
	if c.Codec.Period != "" {
		if _, err := codec.ParsePeriod(string(c.Codec.Period)); err != nil {
			errs = append(errs, archerr.Wrap(err, archerr.CodeConfigValidateInvalid, "compression: aggregation period"))
		}
	}
	for dataType, kinds := range c.Strategies {
		if len(kinds) == 0 {
			errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid,
				"compression: strategy for %q is empty", dataType))
		}
		for _, k := range kinds {
			if _, err := codec.ParseKind(string(k)); err != nil {
				errs = append(errs, archerr.Wrap(err, archerr.CodeConfigValidateInvalid,
					fmt.Sprintf("compression: strategy for %q", dataType)))
			}
		}
	}
	if c.HistoryLimit < 0 {
		errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid,
			"compression: history limit must not be negative, got %d", c.HistoryLimit))
	}
	if c.MetadataRetentionDays < 0 {
		errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid,
			"compression: metadata retention must not be negative, got %d", c.MetadataRetentionDays))
	}
	return errs
}

// Patch is a partial update applied by UpdateConfig. Nil fields are left
// unchanged.
type Patch struct {
	EffectivenessThreshold *float64                `json:"effectivenessThreshold,omitempty"`
	SampleRate             *float64                `json:"sampleRate,omitempty"`
	MaxSamples             *int                    `json:"maxSamples,omitempty"`
	AggregationPeriod      *codec.Period           `json:"aggregationPeriod,omitempty"`
	AggregationFields      []string                `json:"aggregationFields,omitempty"`
	DeltaFields            []string                `json:"deltaFields,omitempty"`
	Strategies             map[string][]codec.Kind `json:"strategies,omitempty"`
	HistoryLimit           *int                    `json:"historyLimit,omitempty"`
}

// Apply returns a copy of c with the patch applied. Strategy entries are
// merged per data type.
func (p Patch) Apply(c Config) Config {
	out := c
	out.Strategies = make(map[string][]codec.Kind, len(c.Strategies))
	for k, v := range c.Strategies {
		out.Strategies[k] = append([]codec.Kind(nil), v...)
	}

	if p.EffectivenessThreshold != nil {
		out.EffectivenessThreshold = *p.EffectivenessThreshold
	}
	if p.SampleRate != nil {
		out.Codec.SampleRate = *p.SampleRate
	}
	if p.MaxSamples != nil {
		out.Codec.MaxSamples = *p.MaxSamples
	}
	if p.AggregationPeriod != nil {
		out.Codec.Period = *p.AggregationPeriod
	}
	if len(p.AggregationFields) > 0 {
		out.Codec.AggregationFields = append([]string(nil), p.AggregationFields...)
	}
	if len(p.DeltaFields) > 0 {
		out.Codec.DeltaFields = append([]string(nil), p.DeltaFields...)
	}
	for k, v := range p.Strategies {
		out.Strategies[k] = append([]codec.Kind(nil), v...)
	}
	if p.HistoryLimit != nil {
		out.HistoryLimit = *p.HistoryLimit
	}
	return out
}
