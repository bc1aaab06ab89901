// Package random provides splittable random keys. A Key is an immutable
// seed from which independent child keys and sampling sources are derived,
// so a whole simulation can be replayed from a single top-level seed.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/rand"
)

// Domain tags keep Split and Fold derivations from colliding.
const (
	tagSplitLeft  uint64 = 0x5e1f
	tagSplitRight uint64 = 0x5e20
	tagFold       uint64 = 0xf01d
)

// Key identifies one random stream.
type Key struct {
	seed uint64
}

// NewKey returns the key for a fixed seed.
func NewKey(seed uint64) Key {
	return Key{seed: seed}
}

// EntropyKey returns a key seeded from the operating system entropy pool.
// Use it when reproducibility is not wanted.
func EntropyKey() (Key, error) {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return Key{}, fmt.Errorf("failed to read entropy: %w", err)
	}
	return Key{seed: binary.LittleEndian.Uint64(buf[:])}, nil
}

// Seed returns the raw seed, mainly for logging.
func (k Key) Seed() uint64 {
	return k.seed
}

// Split derives two independent keys. The usual pattern is
//
//	key, sub := key.Split()
//
// where key is carried forward and sub is consumed.
func (k Key) Split() (Key, Key) {
	return Key{seed: k.derive(tagSplitLeft, 0)}, Key{seed: k.derive(tagSplitRight, 0)}
}

// Fold derives a key bound to data, e.g. a run index.
func (k Key) Fold(data uint64) Key {
	return Key{seed: k.derive(tagFold, data)}
}

// Source returns a fresh sampling source positioned at the start of the stream.
func (k Key) Source() rand.Source {
	return rand.NewSource(k.seed)
}

func (k Key) derive(tag, data uint64) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], k.seed)
	binary.LittleEndian.PutUint64(buf[8:16], tag)
	binary.LittleEndian.PutUint64(buf[16:24], data)
	return xxhash.Sum64(buf[:])
}
