package codec

import (
	"sort"
	"strconv"
	"strings"
)

const (
	// minInternLength is the length a string must exceed to be interned.
	minInternLength = 10
	tokenPrefix     = "#"
)

// DictionaryCodec interns long strings as "#<n>" tokens. Short literal
// strings that begin with the token prefix are escaped by doubling it, so a
// token can never be mistaken for a literal.
type DictionaryCodec struct{}

func (DictionaryCodec) Kind() Kind { return KindDictionary }

func (DictionaryCodec) Encode(data any, _ Options) (any, error) {
	d := &interner{
		tokens:     make(map[string]string),
		dictionary: make(map[string]string),
	}
	return &Dictionary{
		Type:       TypeDictionary,
		Data:       d.walk(data),
		Dictionary: d.dictionary,
	}, nil
}

type interner struct {
	next       int
	tokens     map[string]string // value -> token
	dictionary map[string]string // token -> value
}

func (d *interner) walk(v any) any {
	switch n := v.(type) {
	case string:
		return d.intern(n)
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = d.walk(item)
		}
		return out
	case map[string]any:
		// Sorted keys keep token numbering stable for equal inputs.
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(n))
		for _, k := range keys {
			out[k] = d.walk(n[k])
		}
		return out
	}
	return v
}

func (d *interner) intern(s string) string {
	if len(s) <= minInternLength {
		if strings.HasPrefix(s, tokenPrefix) {
			return tokenPrefix + s
		}
		return s
	}
	if token, ok := d.tokens[s]; ok {
		return token
	}
	token := tokenPrefix + strconv.Itoa(d.next)
	d.next++
	d.tokens[s] = token
	d.dictionary[token] = s
	return token
}

func decodeDictionary(p *Dictionary) any {
	var walk func(v any) any
	walk = func(v any) any {
		switch n := v.(type) {
		case string:
			return lookupToken(n, p.Dictionary)
		case []any:
			out := make([]any, len(n))
			for i, item := range n {
				out[i] = walk(item)
			}
			return out
		case map[string]any:
			out := make(map[string]any, len(n))
			for k, item := range n {
				out[k] = walk(item)
			}
			return out
		}
		return v
	}
	return walk(p.Data)
}

// lookupToken resolves a token or an escaped literal. Unknown tokens are
// returned as literal strings.
func lookupToken(s string, dictionary map[string]string) string {
	if !strings.HasPrefix(s, tokenPrefix) {
		return s
	}
	if strings.HasPrefix(s, tokenPrefix+tokenPrefix) {
		return s[len(tokenPrefix):]
	}
	if value, ok := dictionary[s]; ok {
		return value
	}
	return s
}
