// Package entropy provides the random streams that drive every stochastic
// outcome in the simulation. One Source is owned by a population and passed
// into each creature's outcome resolution.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// Source produces uniform floats in [0, 1).
type Source interface {
	Float() float64
}

// Seeded is a deterministic Source backed by math/rand.
// Not safe for concurrent use; give each population its own.
type Seeded struct {
	rng  *mrand.Rand
	seed int64
}

// NewSeeded creates a deterministic source from the given seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{
		rng:  mrand.New(mrand.NewSource(seed)),
		seed: seed,
	}
}

// Float returns the next value in [0, 1).
func (s *Seeded) Float() float64 {
	return s.rng.Float64()
}

// Seed returns the seed the source was created with.
func (s *Seeded) Seed() int64 {
	return s.seed
}

// Fixed always returns the same value. Used to pin outcomes in tests.
type Fixed float64

// Float returns the fixed value.
func (f Fixed) Float() float64 {
	return float64(f)
}

// Sequence replays a list of values in order and then keeps returning the
// last one. An empty sequence returns 0.
type Sequence struct {
	values []float64
	pos    int
}

// NewSequence creates a source replaying values.
func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

// Float returns the next value of the sequence.
func (s *Sequence) Float() float64 {
	if len(s.values) == 0 {
		return 0
	}
	if s.pos >= len(s.values) {
		return s.values[len(s.values)-1]
	}
	v := s.values[s.pos]
	s.pos++
	return v
}

// Drawn reports how many values have been consumed so far.
func (s *Sequence) Drawn() int {
	return s.pos
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Should never happen.
		return 0.5
	}
	// 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Crypto is a non-deterministic Source backed by crypto/rand.
type Crypto struct{}

// Float returns a crypto/rand float in [0, 1).
func (Crypto) Float() float64 {
	return cryptoRandFloat()
}
