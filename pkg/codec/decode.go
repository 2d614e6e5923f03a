package codec

import (
	"fmt"
)

// maxDecodeDepth bounds nested payload unwrapping.
const maxDecodeDepth = 16

// Decode reverses one payload. Summary and aggregation payloads are their own
// permanent form and decode to themselves.
func Decode(p Payload) (any, error) {
	switch v := p.(type) {
	case *NumericSummary, *ObjectArraySummary, *ArraySummary, *ObjectSummary:
		return v, nil
	case *Aggregated:
		return v, nil
	case *Sampled:
		return v.Samples, nil
	case *Delta:
		return decodeDelta(v), nil
	case *Dictionary:
		return decodeDictionary(v), nil
	case *Passthrough:
		return v.Data, nil
	case nil:
		return nil, fmt.Errorf("nil payload")
	default:
		return nil, fmt.Errorf("unsupported payload type %q", p.PayloadType())
	}
}

// Restore unwraps v until no further reversible payload remains and returns
// the result in generic form. decoded is false when v carried no recognizable
// payload. Use Unwrap when the number of encoded layers is known: Restore
// cannot tell a decoded dataset from a payload if the dataset itself carries
// a payload type tag.
func Restore(v any) (result any, decoded bool, err error) {
	return unwrap(v, maxDecodeDepth)
}

// Unwrap decodes at most layers payloads, outermost first, and returns the
// result in generic form. Data below the last layer is never interpreted.
func Unwrap(v any, layers int) (any, error) {
	result, _, err := unwrap(v, min(layers, maxDecodeDepth))
	return result, err
}

func unwrap(v any, layers int) (result any, decoded bool, err error) {
	current := v
	for depth := 0; depth < layers; depth++ {
		p, ok := Parse(current)
		if !ok {
			break
		}
		decoded = true
		next, err := Decode(p)
		if err != nil {
			return nil, decoded, err
		}
		current = next
		if terminal(p) {
			break
		}
	}

	result, err = ToGeneric(current)
	if err != nil {
		return nil, decoded, err
	}
	return result, decoded, nil
}

// terminal payloads end unwrapping. Passthrough data is the caller's own and
// is never interpreted.
func terminal(p Payload) bool {
	switch p.(type) {
	case *NumericSummary, *ObjectArraySummary, *ArraySummary, *ObjectSummary, *Aggregated, *Passthrough:
		return true
	}
	return false
}
