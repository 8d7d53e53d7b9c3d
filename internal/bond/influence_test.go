package bond

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformWeighsEverythingEqually(t *testing.T) {
	var in Influence = Uniform{}
	assert.Equal(t, 1.0, in.Weight(0, 0, 0))
	assert.Equal(t, 1.0, in.Weight(3, -4, 12))
}

func TestInverseDistanceWeight(t *testing.T) {
	var in Influence = InverseDistance{}
	assert.InDelta(t, 0.2, in.Weight(3, 4, 0), 1e-15)
	assert.Equal(t, 1.0, in.Weight(0, 0, 1))
	assert.Equal(t, 0.0, in.Weight(0, 0, 0), "a zero separation must not divide by zero")
}

func TestParseInfluence(t *testing.T) {
	in, err := ParseInfluence("uniform")
	require.NoError(t, err)
	assert.IsType(t, Uniform{}, in)

	in, err = ParseInfluence("")
	require.NoError(t, err)
	assert.IsType(t, Uniform{}, in)

	in, err = ParseInfluence("inverse-distance")
	require.NoError(t, err)
	assert.IsType(t, InverseDistance{}, in)

	_, err = ParseInfluence("gaussian")
	assert.Error(t, err)
}

func TestFatalErrorHelpers(t *testing.T) {
	dup := NewDuplicateBondError(2, 17, 4)
	assert.True(t, IsDuplicateBond(dup))
	assert.False(t, IsAllocFailed(dup))
	assert.Equal(t, 2, dup.Rank)
	assert.Equal(t, int64(17), dup.Tag)
	assert.Contains(t, dup.Error(), "DUPLICATE_BOND")

	alloc := NewAllocError("too big")
	assert.True(t, IsAllocFailed(alloc))
	assert.False(t, IsSerializationMismatch(alloc))

	ser := NewSerializationError("short record")
	assert.True(t, IsSerializationMismatch(ser))
	assert.False(t, IsDuplicateBond(ser))

	assert.False(t, IsDuplicateBond(nil))
	assert.False(t, IsDuplicateBond(assert.AnError))
}
