package bond

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeCompactsTombstones(t *testing.T) {
	src := newSizedStore(t, 1, 4)
	require.NoError(t, src.AppendBond(0, 11, 1.0))
	require.NoError(t, src.AppendBond(0, 12, 1.5))
	require.NoError(t, src.AppendBond(0, 13, 2.0))
	require.NoError(t, src.Break(0, 1))
	src.AddVinter(0, 3.0)
	src.AddWvolume(0, 2.5)

	words := src.AppendExchange(0, nil)
	// Count word, two surviving pairs, vinter, wvolume.
	require.Len(t, words, 1+2*2+2)
	assert.Equal(t, 2.0, words[0])

	dst := newSizedStore(t, 2, 4)
	n, err := dst.UnpackExchange(1, words)
	require.NoError(t, err)
	assert.Equal(t, len(words), n)
	assert.Equal(t, 2, dst.Count(1))
	assert.Equal(t, []int64{11, 13}, dst.PartnerRow(1))
	assert.Equal(t, []float64{1.0, 2.0}, dst.R0Row(1))
	assert.Equal(t, 3.0, dst.Vinter(1))
	assert.Equal(t, 2.5, dst.Wvolume(1))
}

func TestUnpackExchangeOverwritesStaleSlot(t *testing.T) {
	src := newSizedStore(t, 1, 2)
	require.NoError(t, src.AppendBond(0, 11, 1.0))
	words := src.AppendExchange(0, nil)

	dst := newSizedStore(t, 1, 2)
	require.NoError(t, dst.AppendBond(0, 91, 9.0))
	require.NoError(t, dst.AppendBond(0, 92, 9.0))
	dst.AddVinter(0, 9.0)

	_, err := dst.UnpackExchange(0, words)
	require.NoError(t, err)
	assert.Equal(t, []int64{11}, dst.PartnerRow(0))
	assert.Equal(t, 0.0, dst.Vinter(0))
}

func TestUnpackExchangeRejectsCorruption(t *testing.T) {
	dst := newSizedStore(t, 1, 2)

	_, err := dst.UnpackExchange(0, nil)
	assert.True(t, IsSerializationMismatch(err), "empty record: %v", err)

	// More bonds than the agreed bound: growth is collective and precedes
	// any exchange, so this is corruption rather than a resize request.
	_, err = dst.UnpackExchange(0, []float64{3, 11, 1, 12, 1, 13, 1, 0, 0})
	assert.True(t, IsSerializationMismatch(err), "over-bound record: %v", err)

	// Declared count runs past the buffer.
	_, err = dst.UnpackExchange(0, []float64{2, 11, 1})
	assert.True(t, IsSerializationMismatch(err), "truncated record: %v", err)

	_, err = dst.UnpackExchange(0, []float64{-1, 0, 0})
	assert.True(t, IsSerializationMismatch(err), "negative count: %v", err)
}

func TestRestartKeepsTombstones(t *testing.T) {
	src := newSizedStore(t, 1, 3)
	require.NoError(t, src.AppendBond(0, 11, 1.0))
	require.NoError(t, src.AppendBond(0, 12, 1.5))
	require.NoError(t, src.AppendBond(0, 13, 2.0))
	require.NoError(t, src.Break(0, 1))
	src.AddVinter(0, 3.0)
	src.AddWvolume(0, 2.5)

	words := src.AppendRestart(0, nil)
	require.Len(t, words, 2*3+4)
	assert.Equal(t, float64(2*3+4), words[0])
	assert.LessOrEqual(t, len(words), src.MaxRestartWords())

	dst := newSizedStore(t, 1, 3)
	n, err := dst.UnpackRestart(0, words)
	require.NoError(t, err)
	assert.Equal(t, len(words), n)
	assert.Equal(t, 3, dst.Count(0))
	assert.Equal(t, []int64{11, 0, 13}, dst.PartnerRow(0), "the tombstone must survive a checkpoint")
	assert.Equal(t, 3.0, dst.Vinter(0))
	assert.Equal(t, 2.5, dst.Wvolume(0))
}

func TestUnpackRestartRejectsCorruption(t *testing.T) {
	dst := newSizedStore(t, 1, 2)

	_, err := dst.UnpackRestart(0, []float64{6})
	assert.True(t, IsSerializationMismatch(err), "missing header: %v", err)

	// Length word disagreeing with the bond count.
	_, err = dst.UnpackRestart(0, []float64{7, 1, 11, 1, 0, 0, 0})
	assert.True(t, IsSerializationMismatch(err), "bad length: %v", err)

	// Count past the agreed bound.
	_, err = dst.UnpackRestart(0, []float64{10, 3, 11, 1, 12, 1, 13, 1, 0, 0})
	assert.True(t, IsSerializationMismatch(err), "over-bound: %v", err)

	// Declared length past the buffer.
	_, err = dst.UnpackRestart(0, []float64{6, 1, 11, 1})
	assert.True(t, IsSerializationMismatch(err), "truncated: %v", err)
}

func TestGlobalHeaderRoundTrip(t *testing.T) {
	src := newSizedStore(t, 1, 7)
	src.built = true

	words := src.AppendGlobalHeader(nil)
	require.Equal(t, []float64{1, 7}, words)

	dst := NewStore()
	require.NoError(t, dst.GrowTo(4))
	require.NoError(t, dst.ApplyGlobalHeader(words))
	assert.True(t, dst.Built())
	assert.Equal(t, 7, dst.MaxPartner(), "the header must grow the bound before records arrive")

	unbuilt := NewStore()
	require.NoError(t, unbuilt.ApplyGlobalHeader([]float64{0, 1}))
	assert.False(t, unbuilt.Built())
}

func TestApplyGlobalHeaderRejectsCorruption(t *testing.T) {
	s := NewStore()
	assert.True(t, IsSerializationMismatch(s.ApplyGlobalHeader([]float64{1})))
	assert.True(t, IsSerializationMismatch(s.ApplyGlobalHeader([]float64{1, 2, 3})))
	assert.True(t, IsSerializationMismatch(s.ApplyGlobalHeader([]float64{1, 0})))
}

func TestApplyGlobalHeaderHonorsBudget(t *testing.T) {
	s := NewStore(WithMemoryBudget(bytesFor(4, 2)))
	require.NoError(t, s.GrowTo(4))

	err := s.ApplyGlobalHeader([]float64{1, 50})
	require.Error(t, err)
	assert.True(t, IsAllocFailed(err))
}
