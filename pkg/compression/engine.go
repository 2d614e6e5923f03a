// Package compression runs codec pipelines over datasets. The Engine owns a
// single worker: concurrent Compress calls queue up and run one at a time.
package compression

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/nicktill/statvault/pkg/codec"
	archerr "github.com/nicktill/statvault/pkg/errors"
	"github.com/nicktill/statvault/pkg/jobqueue"
	"github.com/nicktill/statvault/pkg/logging"
	"github.com/nicktill/statvault/pkg/metrics"
)

// ReasonIneffective marks a result whose compressed form was discarded.
const ReasonIneffective = "ineffective_compression"

// StageInfo records one codec step of a pipeline.
type StageInfo struct {
	Algorithm      codec.Kind    `json:"algorithm"`
	OriginalSize   int           `json:"originalSize"`
	CompressedSize int           `json:"compressedSize"`
	Ratio          float64       `json:"ratio"`
	ProcessingTime time.Duration `json:"processingTime"`
	Error          string        `json:"error,omitempty"`
	// Applied is set when the codec wrapped its input in a payload. Codecs
	// that find nothing to do return their input unchanged.
	Applied bool `json:"applied,omitempty"`
}

// Info summarizes a whole pipeline run.
type Info struct {
	OriginalSize     int           `json:"originalSize"`
	FinalSize        int           `json:"finalSize"`
	CompressionRatio float64       `json:"compressionRatio"`
	CompressionTime  time.Duration `json:"compressionTime"`
	Stages           []StageInfo   `json:"stages"`
}

// Layers is the number of payloads wrapped around the original data.
func (i Info) Layers() int {
	n := 0
	for _, st := range i.Stages {
		if st.Applied {
			n++
		}
	}
	return n
}

// Lossless reports whether every applied stage decodes exactly.
func (i Info) Lossless() bool {
	for _, st := range i.Stages {
		if st.Applied && !st.Algorithm.Lossless() {
			return false
		}
	}
	return true
}

// Metadata describes a successful compression.
type Metadata struct {
	ID         string       `json:"id"`
	DataType   string       `json:"dataType"`
	Strategies []codec.Kind `json:"strategies"`
	Info       Info         `json:"compressionInfo"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// Result is the outcome of Compress. When Compressed is false, Data is the
// caller's original value and must be stored as is.
type Result struct {
	Data       any       `json:"data"`
	Compressed bool      `json:"compressed"`
	Reason     string    `json:"reason,omitempty"`
	Metadata   *Metadata `json:"metadata,omitempty"`
	Info       Info      `json:"info"`
}

// Options overrides engine defaults for one call.
type Options struct {
	// Strategy replaces the selected pipeline when non-empty.
	Strategy []codec.Kind
	// Codec overrides the configured codec options when set.
	Codec *codec.Options
}

// Engine compresses datasets one at a time.
type Engine struct {
	logger   *zap.Logger
	clock    clockwork.Clock
	registry *codec.Registry
	metrics  *metrics.Collectors
	queue    *jobqueue.Queue

	mu       sync.RWMutex
	cfg      Config
	stats    totals
	history  []Result
	metadata map[string]*Metadata
}

type totals struct {
	compressed   int
	totalSaved   int64
	averageRatio float64
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(l) }
}

func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithRegistry(r *codec.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

func WithMetrics(m *metrics.Collectors) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine and starts its worker. Call Close to stop it.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, archerr.Wrap(errors.Join(errs...), archerr.CodeConfigValidateInvalid, "invalid compression config")
	}

	e := &Engine{
		logger:   zap.NewNop(),
		clock:    clockwork.NewRealClock(),
		cfg:      cfg,
		metadata: make(map[string]*Metadata),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = codec.DefaultRegistry(e.clock.Now, uint64(e.clock.Now().UnixNano()))
	}
	e.queue = jobqueue.New("compression", cfg.QueueSize, func(n int) {
		e.metrics.QueueDepth(metrics.QueueCompression, n)
	})
	return e, nil
}

// Close waits for queued compressions to finish and stops the worker.
func (e *Engine) Close() {
	e.queue.Close()
}

// Compress runs the codec pipeline over data. ctx bounds only the time spent
// waiting for the worker.
func (e *Engine) Compress(ctx context.Context, data any, dataType string, opts Options) (*Result, error) {
	return jobqueue.Do(ctx, e.queue, func(context.Context) (*Result, error) {
		return e.compress(data, dataType, opts)
	})
}

// CompressAsync enqueues a compression and returns a handle to its result.
func (e *Engine) CompressAsync(ctx context.Context, data any, dataType string, opts Options) *jobqueue.Pending[*Result] {
	return jobqueue.Submit(ctx, e.queue, func(context.Context) (*Result, error) {
		return e.compress(data, dataType, opts)
	})
}

func (e *Engine) compress(data any, dataType string, opts Options) (*Result, error) {
	if data == nil {
		return nil, archerr.New(archerr.CodeArchiveDataInvalid, "cannot compress nil data",
			archerr.FieldDataType(dataType))
	}

	e.mu.RLock()
	cfg := e.cfg
	e.mu.RUnlock()

	start := e.clock.Now()

	generic, err := codec.ToGeneric(data)
	if err != nil {
		return nil, archerr.Wrap(err, archerr.CodeArchiveDataInvalid, "data is not serializable",
			archerr.FieldDataType(dataType))
	}
	originalSize := codec.SizeOf(generic)

	pipeline := opts.Strategy
	if len(pipeline) == 0 {
		pipeline = SelectStrategy(cfg.Strategies, generic, dataType, originalSize)
	}
	codecOpts := cfg.Codec
	if opts.Codec != nil {
		codecOpts = *opts.Codec
	}

	current := generic
	stages := make([]StageInfo, 0, len(pipeline))
	for _, kind := range pipeline {
		var stage StageInfo
		current, stage = e.runStage(kind, current, codecOpts)
		stages = append(stages, stage)
	}

	finalSize := codec.SizeOf(current)
	info := Info{
		OriginalSize:     originalSize,
		FinalSize:        finalSize,
		CompressionRatio: ratio(finalSize, originalSize),
		CompressionTime:  e.clock.Since(start),
		Stages:           stages,
	}

	if info.CompressionRatio > cfg.EffectivenessThreshold {
		e.logger.Debug("compression ineffective",
			zap.String("data_type", dataType),
			zap.Float64("ratio", info.CompressionRatio),
		)
		res := &Result{Data: data, Compressed: false, Reason: ReasonIneffective, Info: info}
		e.record(res, cfg)
		e.metrics.ObserveCompression(dataType, "ineffective", info.CompressionRatio, info.CompressionTime)
		return res, nil
	}

	meta := &Metadata{
		ID:         fmt.Sprintf("%s_%d_%s", dataType, start.UnixMilli(), uuid.NewString()[:8]),
		DataType:   dataType,
		Strategies: append([]codec.Kind(nil), pipeline...),
		Info:       info,
		CreatedAt:  start,
	}
	res := &Result{Data: current, Compressed: true, Metadata: meta, Info: info}
	e.record(res, cfg)

	e.metrics.ObserveCompression(dataType, "compressed", info.CompressionRatio, info.CompressionTime)
	e.metrics.BytesSaved(originalSize - finalSize)
	e.logger.Debug("compressed dataset",
		zap.String("data_type", dataType),
		zap.Any("strategy", pipeline),
		zap.Float64("ratio", info.CompressionRatio),
	)
	return res, nil
}

// runStage applies one codec. A failing codec passes its input through and
// the failure is recorded on the stage.
func (e *Engine) runStage(kind codec.Kind, input any, opts codec.Options) (any, StageInfo) {
	start := e.clock.Now()
	inSize := codec.SizeOf(input)
	stage := StageInfo{Algorithm: kind, OriginalSize: inSize, CompressedSize: inSize, Ratio: 1}

	fail := func(err error) (any, StageInfo) {
		err = archerr.Wrap(err, archerr.CodeCodecStageFailure, "codec stage failed",
			archerr.Field("algorithm", string(kind)))
		stage.Error = err.Error()
		stage.ProcessingTime = e.clock.Since(start)
		e.metrics.StageFailed(string(kind))
		e.logger.Warn("codec stage failed",
			zap.String("algorithm", string(kind)),
			zap.Error(err),
		)
		return input, stage
	}

	c, ok := e.registry.Get(kind)
	if !ok {
		return fail(archerr.New(archerr.CodeCodecUnknownAlgorithm, "no codec registered"))
	}

	out, err := safeEncode(c, input, opts)
	if err != nil {
		return fail(err)
	}
	_, applied := out.(codec.Payload)
	out, err = codec.ToGeneric(out)
	if err != nil {
		return fail(err)
	}

	stage.CompressedSize = codec.SizeOf(out)
	stage.Ratio = ratio(stage.CompressedSize, inSize)
	stage.ProcessingTime = e.clock.Since(start)
	stage.Applied = applied
	return out, stage
}

func safeEncode(c codec.Codec, input any, opts codec.Options) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("codec %s panicked: %v", c.Kind(), r)
		}
	}()
	return c.Encode(input, opts)
}

func ratio(compressed, original int) float64 {
	if original == 0 {
		return 1
	}
	return float64(compressed) / float64(original)
}

// Decompress reverses a stored payload. With metadata, exactly the layers the
// pipeline applied are unwrapped; without it the payload is unwrapped by its
// type discriminators. Values without a recognizable discriminator are
// returned unchanged.
func (e *Engine) Decompress(payload any, meta *Metadata) (any, error) {
	var (
		out any
		err error
	)
	if meta != nil {
		out, err = codec.Unwrap(payload, meta.Info.Layers())
	} else {
		out, _, err = codec.Restore(payload)
	}
	if err != nil {
		return nil, archerr.Wrap(err, archerr.CodeCodecPayloadInvalid, "decompress payload")
	}
	return out, nil
}
