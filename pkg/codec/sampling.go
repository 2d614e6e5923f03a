package codec

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

const (
	// importanceShare is the fraction of sample slots given to the highest
	// scoring records instead of strided picks.
	importanceShare = 0.2
	dayMillis       = 86_400_000
)

// SamplingCodec keeps a strided subset of an array plus its most important
// records.
type SamplingCodec struct {
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSamplingCodec(now func() time.Time, seed uint64) *SamplingCodec {
	if now == nil {
		now = time.Now
	}
	return &SamplingCodec{
		now: now,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (*SamplingCodec) Kind() Kind { return KindSampling }

func (s *SamplingCodec) Encode(data any, opts Options) (any, error) {
	items, ok := asArray(data)
	if !ok {
		return data, nil
	}
	opts = opts.withDefaults()

	n := len(items)
	size := int(math.Floor(float64(n) * opts.SampleRate))
	if size > opts.MaxSamples {
		size = opts.MaxSamples
	}
	if size <= 0 || size >= n {
		return data, nil
	}

	indices := s.strided(n, size)

	// Replace the leading slots with the highest scoring records that were
	// not already picked.
	important := int(math.Floor(float64(size) * importanceShare))
	if important > 0 {
		picked := make(map[int]struct{}, len(indices))
		for _, idx := range indices {
			picked[idx] = struct{}{}
		}
		nowMillis := float64(s.now().UnixMilli())
		slot := 0
		for _, idx := range rankByImportance(items, nowMillis) {
			if slot >= important {
				break
			}
			if _, dup := picked[idx]; dup {
				continue
			}
			delete(picked, indices[slot])
			indices[slot] = idx
			picked[idx] = struct{}{}
			slot++
		}
	}

	samples := make([]any, len(indices))
	for i, idx := range indices {
		samples[i] = items[idx]
	}

	return &Sampled{
		Type:             TypeSampled,
		OriginalCount:    n,
		SampleCount:      len(samples),
		SampleRate:       float64(len(samples)) / float64(n),
		SamplingStrategy: "strategic",
		Samples:          samples,
	}, nil
}

// strided picks one index per stride of width n/size, jittered within it.
func (s *SamplingCodec) strided(n, size int) []int {
	interval := n / size
	indices := make([]int, 0, size)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < size; i++ {
		idx := i*interval + s.rng.IntN(interval)
		if idx >= n {
			idx = n - 1
		}
		indices = append(indices, idx)
	}
	return indices
}

// rankByImportance orders record indices by score descending. Records that
// are not objects score zero.
func rankByImportance(items []any, nowMillis float64) []int {
	scores := make([]float64, len(items))
	for i, item := range items {
		scores[i] = importance(item, nowMillis)
	}
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	return order
}

func importance(item any, nowMillis float64) float64 {
	obj, ok := asObject(item)
	if !ok {
		return 0
	}
	var score float64
	if v, ok := asNumber(obj["score"]); ok {
		score += v / 10000
	}
	if v, ok := asNumber(obj["timestamp"]); ok {
		score += (v - nowMillis + dayMillis) / dayMillis
	}
	if v, ok := asNumber(obj["maxCombo"]); ok {
		score += v / 100
	}
	return score
}
