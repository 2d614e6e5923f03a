package codec

// DeltaCodec stores numeric fields of consecutive records as differences.
// The first record is kept verbatim. Decoding is exact up to float rounding.
type DeltaCodec struct{}

func (DeltaCodec) Kind() Kind { return KindDelta }

func (DeltaCodec) Encode(data any, opts Options) (any, error) {
	items, ok := asArray(data)
	if !ok || len(items) == 0 {
		return data, nil
	}
	fields := opts.withDefaults().DeltaFields

	out := make([]any, len(items))
	out[0] = items[0]
	for i := 1; i < len(items); i++ {
		out[i] = applyDelta(items[i], items[i-1], fields, subtract)
	}

	return &Delta{
		Type:          TypeDelta,
		DeltaFields:   fields,
		OriginalCount: len(items),
		Data:          out,
	}, nil
}

func subtract(current, previous float64) float64 { return current - previous }
func add(current, previous float64) float64      { return current + previous }

// applyDelta combines each numeric delta field of record with the same field
// of prev. A missing or non-numeric previous value counts as zero.
func applyDelta(record, prev any, fields []string, op func(a, b float64) float64) any {
	obj, ok := asObject(record)
	if !ok {
		return record
	}
	prevObj, _ := asObject(prev)

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, field := range fields {
		current, ok := asNumber(obj[field])
		if !ok {
			continue
		}
		previous, _ := asNumber(prevObj[field])
		out[field] = op(current, previous)
	}
	return out
}

func decodeDelta(p *Delta) []any {
	out := make([]any, len(p.Data))
	for i, item := range p.Data {
		if i == 0 {
			out[i] = item
			continue
		}
		out[i] = applyDelta(item, out[i-1], p.DeltaFields, add)
	}
	return out
}
