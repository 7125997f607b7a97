package bloom

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/snappy"
)

const headerSize = 24

// MarshalBinary encodes the filter as a 24-byte little-endian header
// (bits, hashes, count) followed by the snappy-compressed bit array.
func (f *Filter) MarshalBinary() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	raw := make([]byte, len(f.bits)*8)
	for i, w := range f.bits {
		binary.LittleEndian.PutUint64(raw[i*8:], w)
	}
	compressed := snappy.Encode(nil, raw)

	buf := make([]byte, headerSize+len(compressed))
	binary.LittleEndian.PutUint64(buf[0:8], f.numBits())
	binary.LittleEndian.PutUint64(buf[8:16], f.numHashes)
	binary.LittleEndian.PutUint64(buf[16:24], f.count)
	copy(buf[headerSize:], compressed)
	return buf, nil
}

// UnmarshalBinary decodes the output of MarshalBinary into f.
func (f *Filter) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return errors.New("bloom: serialized data too short")
	}
	numBits := binary.LittleEndian.Uint64(data[0:8])
	numHashes := binary.LittleEndian.Uint64(data[8:16])
	count := binary.LittleEndian.Uint64(data[16:24])
	if numBits == 0 || numBits%64 != 0 || numHashes == 0 {
		return fmt.Errorf("bloom: invalid filter parameters (%d bits, %d hashes)", numBits, numHashes)
	}

	raw, err := snappy.Decode(nil, data[headerSize:])
	if err != nil {
		return fmt.Errorf("bloom: snappy decompress failed: %w", err)
	}
	numWords := numBits / 64
	if uint64(len(raw)) != numWords*8 {
		return fmt.Errorf("bloom: expected %d bytes of bits, got %d", numWords*8, len(raw))
	}

	bits := make([]uint64, numWords)
	for i := range bits {
		bits[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.bits = bits
	f.numHashes = numHashes
	f.count = count
	return nil
}

// Decode returns the filter encoded in data.
func Decode(data []byte) (*Filter, error) {
	f := &Filter{}
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return f, nil
}
