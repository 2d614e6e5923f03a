package archive

import (
	"reflect"
	"strings"

	"github.com/nicktill/statvault/pkg/codec"
	archerr "github.com/nicktill/statvault/pkg/errors"
)

var (
	internalPrefixes = []string{"_temp", "_cache"}
	sensitiveWords   = []string{"password", "token", "key", "secret", "private"}
)

// Preprocess cleans a dataset before it is archived: null array elements are
// dropped, internal scratch fields are stripped and, when redact is set,
// fields with sensitive names are removed. The result is in the generic JSON
// model. Nil input and cyclic structures are rejected.
func Preprocess(data any, redact bool) (any, error) {
	if isNil(data) {
		return nil, archerr.New(archerr.CodeArchiveDataInvalid, "data is nil")
	}
	if err := checkCycles(data); err != nil {
		return nil, err
	}
	generic, err := codec.ToGeneric(data)
	if err != nil {
		return nil, archerr.Wrap(err, archerr.CodeArchiveDataInvalid, "data is not serializable")
	}
	return clean(generic, redact), nil
}

func clean(v any, redact bool) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			out = append(out, clean(item, redact))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, value := range t {
			if hasAnyPrefix(key, internalPrefixes) {
				continue
			}
			if redact && isSensitive(key) {
				continue
			}
			out[key] = clean(value, redact)
		}
		return out
	}
	return v
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, w := range sensitiveWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// checkCycles walks maps, slices and pointers and fails on the first value
// that contains itself.
func checkCycles(v any) error {
	type visit struct {
		ptr uintptr
		typ reflect.Type
	}
	onPath := make(map[visit]bool)

	var walk func(rv reflect.Value) bool
	walk = func(rv reflect.Value) bool {
		for rv.Kind() == reflect.Interface {
			if rv.IsNil() {
				return false
			}
			rv = rv.Elem()
		}
		switch rv.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice:
			if rv.IsNil() {
				return false
			}
			key := visit{ptr: rv.Pointer(), typ: rv.Type()}
			if rv.Kind() == reflect.Slice && rv.Len() == 0 {
				return false
			}
			if onPath[key] {
				return true
			}
			onPath[key] = true
			defer delete(onPath, key)
		}

		switch rv.Kind() {
		case reflect.Pointer:
			return walk(rv.Elem())
		case reflect.Map:
			iter := rv.MapRange()
			for iter.Next() {
				if walk(iter.Value()) {
					return true
				}
			}
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				if walk(rv.Index(i)) {
					return true
				}
			}
		case reflect.Struct:
			for i := 0; i < rv.NumField(); i++ {
				if rv.Type().Field(i).IsExported() && walk(rv.Field(i)) {
					return true
				}
			}
		}
		return false
	}

	if walk(reflect.ValueOf(v)) {
		return archerr.New(archerr.CodeArchiveDataInvalid, "data contains circular references")
	}
	return nil
}
