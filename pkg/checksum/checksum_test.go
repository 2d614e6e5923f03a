package checksum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOf_KeyOrderIndependent(t *testing.T) {
	for _, h := range []Hasher{XXHash{}, Rolling{}} {
		t.Run(h.Name(), func(t *testing.T) {
			a, err := Of(h, map[string]any{"a": 1.0, "b": []any{"x", "y"}})
			require.NoError(t, err)
			b, err := Of(h, map[string]any{"b": []any{"x", "y"}, "a": 1.0})
			require.NoError(t, err)
			require.Equal(t, a, b)

			c, err := Of(h, map[string]any{"a": 2.0, "b": []any{"x", "y"}})
			require.NoError(t, err)
			require.NotEqual(t, a, c)
		})
	}
}

func TestRolling_Known(t *testing.T) {
	// 'a'*31 + 'b' = 97*31 + 98
	require.Equal(t, "2e9", Rolling{}.Sum([]byte("ab")))
	require.Equal(t, "0", Rolling{}.Sum(nil))
}

func TestXXHash_Width(t *testing.T) {
	require.Len(t, XXHash{}.Sum([]byte("statvault")), 16)
}

func TestByName(t *testing.T) {
	h, err := ByName("rolling32")
	require.NoError(t, err)
	require.Equal(t, "rolling32", h.Name())

	h, err = ByName("")
	require.NoError(t, err)
	require.Equal(t, "xxhash64", h.Name())

	_, err = ByName("md5")
	require.Error(t, err)
}

func TestOf_Unserializable(t *testing.T) {
	_, err := Of(XXHash{}, map[string]any{"fn": func() {}})
	require.Error(t, err)
}
