package checkpoint

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmkoller/peridyn/internal/bond"
	"github.com/tmkoller/peridyn/internal/particle"
	"github.com/tmkoller/peridyn/internal/testutil"
)

// restartFixture builds three bonded particles on a line, with one bond
// already broken, the way a run looks mid-flight.
func restartFixture(t *testing.T) (*particle.Store, *bond.Store) {
	t.Helper()
	ps := particle.NewStore()
	bs := bond.NewStore()
	require.NoError(t, ps.Register(bs))

	require.NoError(t, testutil.Fill(ps, testutil.Line(3, 1.0)))
	require.NoError(t, bs.GrowBound(2))

	require.NoError(t, bs.AppendBond(0, 2, 1.0))
	require.NoError(t, bs.AppendBond(1, 1, 1.0))
	require.NoError(t, bs.AppendBond(1, 3, 1.0))
	require.NoError(t, bs.AppendBond(2, 2, 1.0))
	require.NoError(t, bs.Break(1, 0))

	for slot := 0; slot < 3; slot++ {
		bs.AddVinter(slot, float64(slot)+0.5)
		bs.SetWvolume(slot, float64(slot)*2)
	}
	return ps, bs
}

func TestStreamRoundTrip(t *testing.T) {
	ps, bs := restartFixture(t)

	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, 0, 2, ps, bs))

	ps2 := particle.NewStore()
	bs2 := bond.NewStore()
	require.NoError(t, ps2.Register(bs2))

	hdr, err := ReadStream(bytes.NewReader(buf.Bytes()), ps2, bs2)
	require.NoError(t, err)
	assert.Equal(t, Header{Version: 1, Rank: 0, Ranks: 2, Particles: 3}, hdr)

	require.Equal(t, 3, ps2.Nlocal())
	assert.Equal(t, ps.Tags(), ps2.Tags())
	assert.Equal(t, ps.X(), ps2.X())
	assert.Equal(t, ps.Vfrac(), ps2.Vfrac())

	// The global header restores the agreed bound before any record, so
	// the widest row fits.
	assert.Equal(t, 2, bs2.MaxPartner())

	// Rows come back verbatim: the tombstone survives, nothing compacts.
	assert.Equal(t, []int64{0, 3}, bs2.PartnerRow(1))
	assert.Equal(t, []float64{1.0, 1.0}, bs2.R0Row(1))
	assert.Equal(t, 1, bs2.LiveBonds(1))
	assert.Equal(t, []int64{2}, bs2.PartnerRow(0))

	for slot := 0; slot < 3; slot++ {
		assert.Equal(t, bs.Vinter(slot), bs2.Vinter(slot))
		assert.Equal(t, bs.Wvolume(slot), bs2.Wvolume(slot))
	}
}

func TestStreamCarriesBuiltFlag(t *testing.T) {
	ps, bs := restartFixture(t)
	require.NoError(t, bs.ApplyGlobalHeader([]float64{1, 2}))
	require.True(t, bs.Built())

	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, 0, 1, ps, bs))

	ps2 := particle.NewStore()
	bs2 := bond.NewStore()
	require.NoError(t, ps2.Register(bs2))

	_, err := ReadStream(bytes.NewReader(buf.Bytes()), ps2, bs2)
	require.NoError(t, err)
	assert.True(t, bs2.Built())
}

func TestPeekHeaderSkipsGlobals(t *testing.T) {
	ps, bs := restartFixture(t)

	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, 0, 2, ps, bs))

	// The peek needs no stores and no handler registration.
	hdr, err := PeekHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, Header{Version: 1, Rank: 0, Ranks: 2, Particles: 3}, hdr)
}

func TestPeekHeaderRejectsTruncation(t *testing.T) {
	ps, bs := restartFixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, 0, 1, ps, bs))

	_, err := PeekHeader(bytes.NewReader(buf.Bytes()[:30]))
	assert.Error(t, err)
}

func TestWriteStreamRejectsBadRank(t *testing.T) {
	ps := particle.NewStore()
	assert.Error(t, WriteStream(&bytes.Buffer{}, 2, 2, ps))
	assert.Error(t, WriteStream(&bytes.Buffer{}, -1, 1, ps))
	assert.Error(t, WriteStream(&bytes.Buffer{}, 0, 0, ps))
}

func TestReadStreamRejectsBadMagic(t *testing.T) {
	ps, bs := restartFixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, 0, 1, ps, bs))

	raw := buf.Bytes()
	raw[0] = 'X'
	_, err := ReadStream(bytes.NewReader(raw), particle.NewStore())
	assert.ErrorIs(t, err, ErrStreamCorrupt)
}

func TestReadStreamRejectsGlobalCountMismatch(t *testing.T) {
	ps, bs := restartFixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, 0, 1, ps, bs))

	_, err := ReadStream(bytes.NewReader(buf.Bytes()), particle.NewStore())
	assert.ErrorIs(t, err, ErrStreamCorrupt)
}

func TestReadStreamRejectsOversizedRecord(t *testing.T) {
	// Written with a bond handler, read without one: the records carry
	// more words than the reader's layout allows.
	ps, _ := restartFixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, 0, 1, ps))

	_, err := ReadStream(bytes.NewReader(buf.Bytes()), particle.NewStore())
	assert.ErrorIs(t, err, ErrStreamCorrupt)
}

func TestReadStreamRejectsTruncation(t *testing.T) {
	ps, bs := restartFixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, 0, 1, ps, bs))

	raw := buf.Bytes()
	ps2 := particle.NewStore()
	bs2 := bond.NewStore()
	require.NoError(t, ps2.Register(bs2))

	_, err := ReadStream(bytes.NewReader(raw[:len(raw)-9]), ps2, bs2)
	assert.Error(t, err)
}
