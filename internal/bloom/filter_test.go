package bloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_NoFalseNegatives(t *testing.T) {
	f := NewWithEstimates(500, 0.01)
	for i := 0; i < 500; i++ {
		f.AddString(fmt.Sprintf("/entity/%d:example.MyPoint", i))
	}
	for i := 0; i < 500; i++ {
		assert.True(t, f.ContainsString(fmt.Sprintf("/entity/%d:example.MyPoint", i)))
	}
	assert.Equal(t, uint64(500), f.Count())

	falsePositives := 0
	for i := 0; i < 10000; i++ {
		if f.ContainsString(fmt.Sprintf("/other/%d", i)) {
			falsePositives++
		}
	}
	assert.Less(t, falsePositives, 500, "false positive rate far above target")
	assert.Greater(t, f.FalsePositiveRate(), 0.0)
}

func TestOptimalParameters(t *testing.T) {
	bits, hashes := OptimalParameters(1000, 0.01)
	assert.Equal(t, 9586, bits)
	assert.Equal(t, 7, hashes)

	bits, hashes = OptimalParameters(0, 2)
	assert.Equal(t, 9586, bits, "defaults apply")
	assert.Equal(t, 7, hashes)

	bits, _ = OptimalParameters(1, 0.5)
	assert.Equal(t, 64, bits, "at least one word")
}

func TestFilter_Merge(t *testing.T) {
	a := New(2048, 5)
	b := New(2048, 5)
	a.AddString("a")
	b.AddString("b")

	require.NoError(t, a.Merge(b))
	assert.True(t, a.ContainsString("a"))
	assert.True(t, a.ContainsString("b"))
	assert.Equal(t, uint64(2), a.Count())

	assert.Error(t, a.Merge(New(1024, 5)))
	assert.Error(t, a.Merge(New(2048, 3)))
}

func TestFilter_Serialization(t *testing.T) {
	f := New(4096, 4)
	for _, s := range []string{"x", "y", "z"} {
		f.AddString(s)
	}

	data, err := f.MarshalBinary()
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, f.NumBits(), got.NumBits())
	assert.Equal(t, f.NumHashes(), got.NumHashes())
	assert.Equal(t, f.Count(), got.Count())
	for _, s := range []string{"x", "y", "z"} {
		assert.True(t, got.ContainsString(s))
	}
}

func TestDecode_Rejects(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.Error(t, err)

	data, err := New(128, 2).MarshalBinary()
	require.NoError(t, err)

	truncated := append([]byte(nil), data[:headerSize]...)
	_, err = Decode(truncated)
	assert.Error(t, err, "empty bit array")

	corrupt := append([]byte(nil), data...)
	corrupt[8] = 0
	_, err = Decode(corrupt)
	assert.Error(t, err, "zero hashes")
}
