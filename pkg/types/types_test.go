package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityPath_Normalization(t *testing.T) {
	assert.Equal(t, EntityPath("/this/that"), ParseEntityPath("this/that"))
	assert.Equal(t, EntityPath("/this/that"), ParseEntityPath("//this//that/"))
	assert.Equal(t, RootEntityPath, ParseEntityPath(""))
	assert.Equal(t, RootEntityPath, ParseEntityPath("/"))
	assert.Equal(t, EntityPath("/a/b/c"), NewEntityPath("a", "", "b", " c "))
}

func TestEntityPath_Hierarchy(t *testing.T) {
	p := ParseEntityPath("/world/robot/arm")

	assert.Equal(t, []string{"world", "robot", "arm"}, p.Parts())
	assert.Equal(t, ParseEntityPath("/world/robot"), p.Parent())
	assert.Equal(t, RootEntityPath, ParseEntityPath("/world").Parent())
	assert.Equal(t, ParseEntityPath("/world/robot/arm/joint"), p.Join("joint"))

	assert.True(t, p.IsDescendantOf(ParseEntityPath("/world")))
	assert.True(t, p.IsDescendantOf(RootEntityPath))
	assert.False(t, p.IsDescendantOf(p))
	assert.False(t, ParseEntityPath("/worldwide").IsDescendantOf(ParseEntityPath("/world")))
	assert.True(t, p.StartsWith(p))
}

func TestEntityPath_Hash(t *testing.T) {
	assert.Equal(t, ParseEntityPath("a/b").Hash(), ParseEntityPath("/a/b/").Hash())
	assert.NotEqual(t, ParseEntityPath("a/b").Hash(), ParseEntityPath("a/c").Hash())
}

func TestTimeRange(t *testing.T) {
	r := NewTimeRange(3, 6)
	assert.True(t, r.Contains(3))
	assert.True(t, r.Contains(6))
	assert.False(t, r.Contains(7))
	assert.True(t, r.Intersects(NewTimeRange(6, 10)))
	assert.False(t, r.Intersects(NewTimeRange(7, 10)))

	assert.True(t, EmptyTimeRange.IsEmpty())
	assert.False(t, EmptyTimeRange.Intersects(EverythingTimeRange))
	assert.Equal(t, r, EmptyTimeRange.Union(r))
	assert.Equal(t, NewTimeRange(1, 6), r.Union(NewTimeRange(1, 2)))
	assert.False(t, EverythingTimeRange.Contains(TimeIntStatic))
}

func TestTimeType_RoundTrip(t *testing.T) {
	for _, tt := range []TimeType{TimeTypeSequence, TimeTypeDurationNs, TimeTypeTimestampNs} {
		parsed, err := ParseTimeType(tt.String())
		require.NoError(t, err)
		assert.Equal(t, tt, parsed)

		fromArrow, ok := TimeTypeFromArrow(tt.ArrowDataType())
		require.True(t, ok)
		assert.Equal(t, tt, fromArrow)
	}

	_, err := ParseTimeType("bogus")
	assert.ErrorIs(t, err, ErrInvalidTimeType)
}

func TestComponentDescriptor_String(t *testing.T) {
	d := NewComponentDescriptor("example.MyPoint")
	assert.Equal(t, "example.MyPoint", d.String())
	assert.False(t, d.IsTagged())

	tagged := d.WithArchetype("example.MyPoints", "points")
	assert.Equal(t, "example.MyPoints:example.MyPoint#points", tagged.String())
	assert.True(t, tagged.IsTagged())

	assert.True(t, d.Less(tagged), "untagged descriptors sort first")
	assert.Equal(t, d, ComponentDescriptor{ComponentName: " example.MyPoint "}.Normalized())
}
