// Package checksum computes drift-detection checksums over archived datasets.
// The hashes are fast and non-cryptographic: they flag accidental corruption
// and offer no protection against deliberate collisions.
package checksum

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/nicktill/statvault/pkg/codec"
)

// Hasher turns serialized bytes into a printable digest.
type Hasher interface {
	Name() string
	Sum(data []byte) string
}

// XXHash is the default hasher (64-bit xxHash, hex encoded).
type XXHash struct{}

func (XXHash) Name() string { return "xxhash64" }

func (XXHash) Sum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// Rolling is the 32-bit multiply-by-31 rolling hash, printed in base 36.
type Rolling struct{}

func (Rolling) Name() string { return "rolling32" }

func (Rolling) Sum(data []byte) string {
	var h int32
	for _, b := range data {
		h = h*31 + int32(b)
	}
	return strconv.FormatInt(int64(h), 36)
}

// Default returns the hasher used when none is configured.
func Default() Hasher { return XXHash{} }

// ByName resolves a hasher from configuration.
func ByName(name string) (Hasher, error) {
	switch name {
	case "", "xxhash64", "xxhash":
		return XXHash{}, nil
	case "rolling32", "rolling":
		return Rolling{}, nil
	}
	return nil, fmt.Errorf("unknown checksum algorithm %q", name)
}

// Of hashes the canonical serialization of v.
func Of(h Hasher, v any) (string, error) {
	raw, err := codec.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("serialize for checksum: %w", err)
	}
	return h.Sum(raw), nil
}
