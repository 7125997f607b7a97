// Package bloom provides the membership filters the manifest keeps per
// archived chunk, so lookups by component skip chunks that cannot match.
package bloom

import (
	"fmt"
	"math"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Filter is a bloom filter over byte strings. It has no false negatives.
type Filter struct {
	mu        sync.RWMutex
	bits      []uint64
	numHashes uint64
	count     uint64
}

// New creates a filter of at least numBits bits using numHashes hashes.
func New(numBits, numHashes int) *Filter {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}
	return &Filter{
		bits:      make([]uint64, (numBits+63)/64),
		numHashes: uint64(numHashes),
	}
}

// NewWithEstimates sizes a filter for expectedItems at the target false
// positive rate.
func NewWithEstimates(expectedItems int, targetFPR float64) *Filter {
	return New(OptimalParameters(expectedItems, targetFPR))
}

// OptimalParameters returns m = -n ln(p) / ln(2)^2 bits and k = (m/n) ln(2)
// hashes, with defaults for out-of-range input.
func OptimalParameters(expectedItems int, targetFPR float64) (numBits, numHashes int) {
	if expectedItems <= 0 {
		expectedItems = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	n := float64(expectedItems)
	m := -n * math.Log(targetFPR) / (math.Ln2 * math.Ln2)
	k := (m / n) * math.Ln2

	return max(int(math.Ceil(m)), 64), max(int(math.Ceil(k)), 1)
}

// Add adds item to the filter.
func (f *Filter) Add(item []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	h1, h2 := murmur3.Sum128(item)
	n := f.numBits()
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % n
		f.bits[pos/64] |= 1 << (pos % 64)
	}
	f.count++
}

// AddString adds s to the filter.
func (f *Filter) AddString(s string) {
	f.Add([]byte(s))
}

// Contains reports whether item may have been added.
func (f *Filter) Contains(item []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	h1, h2 := murmur3.Sum128(item)
	n := f.numBits()
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % n
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// ContainsString reports whether s may have been added.
func (f *Filter) ContainsString(s string) bool {
	return f.Contains([]byte(s))
}

// Merge adds every item of other to f. Both filters must have the same
// shape.
func (f *Filter) Merge(other *Filter) error {
	other.mu.RLock()
	defer other.mu.RUnlock()
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.bits) != len(other.bits) || f.numHashes != other.numHashes {
		return fmt.Errorf("bloom: cannot merge a %d-bit/%d-hash filter into a %d-bit/%d-hash one",
			len(other.bits)*64, other.numHashes, len(f.bits)*64, f.numHashes)
	}
	for i, w := range other.bits {
		f.bits[i] |= w
	}
	f.count += other.count
	return nil
}

func (f *Filter) numBits() uint64 {
	return uint64(len(f.bits)) * 64
}

// NumBits returns the number of bits in the filter.
func (f *Filter) NumBits() int {
	return len(f.bits) * 64
}

// NumHashes returns the number of hash functions used.
func (f *Filter) NumHashes() int {
	return int(f.numHashes)
}

// Count returns the number of items added.
func (f *Filter) Count() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// FalsePositiveRate estimates (1 - e^(-kn/m))^k from the current count.
func (f *Filter) FalsePositiveRate() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.count == 0 {
		return 0
	}
	k := float64(f.numHashes)
	n := float64(f.count)
	m := float64(f.numBits())
	return math.Pow(1-math.Exp(-k*n/m), k)
}
