package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/tmkoller/peridyn/internal/particle"
)

// ErrStreamCorrupt marks a stream whose framing disagrees with its
// contents.
var ErrStreamCorrupt = errors.New("checkpoint: stream corrupt")

// streamMagic opens every checkpoint stream.
var streamMagic = [4]byte{'P', 'D', 'R', '1'}

// streamVersion is bumped whenever the layout changes.
const streamVersion = 1

// maxGlobalWords caps one global header so a corrupt length word cannot
// drive an absurd allocation.
const maxGlobalWords = 1 << 20

// Global is run-level handler state carried outside any particle record,
// such as the bond table's shared partner bound. Globals are written
// before the particle records and applied before any record is unpacked,
// so handlers are already sized when the first record arrives.
type Global interface {
	AppendGlobalHeader(buf []float64) []float64
	ApplyGlobalHeader(words []float64) error
}

// Header identifies one partition's stream.
type Header struct {
	Version   int
	Rank      int
	Ranks     int
	Particles int
}

// readFixedHeader consumes the magic and the fixed words, returning the
// partially filled header and the global section count.
func readFixedHeader(r io.Reader) (Header, int, error) {
	var hdr Header
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return hdr, 0, fmt.Errorf("reading stream magic: %w", err)
	}
	if magic != streamMagic {
		return hdr, 0, fmt.Errorf("%w: bad magic %q", ErrStreamCorrupt, magic[:])
	}
	var fixed [4]uint32
	if err := binary.Read(r, binary.LittleEndian, &fixed); err != nil {
		return hdr, 0, fmt.Errorf("reading stream header: %w", err)
	}
	hdr.Version = int(fixed[0])
	hdr.Rank = int(fixed[1])
	hdr.Ranks = int(fixed[2])
	if hdr.Version != streamVersion {
		return hdr, 0, fmt.Errorf("%w: version %d, want %d", ErrStreamCorrupt, hdr.Version, streamVersion)
	}
	return hdr, int(fixed[3]), nil
}

// PeekHeader decodes a stream's identity without restoring anything: the
// fixed header plus the particle count, skipping the global sections by
// their length words. Inspection tools use it to describe archives they
// have no stores for.
func PeekHeader(r io.Reader) (Header, error) {
	hdr, nglobals, err := readFixedHeader(r)
	if err != nil {
		return hdr, err
	}
	for i := 0; i < nglobals; i++ {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return hdr, fmt.Errorf("reading global %d length: %w", i, err)
		}
		if n > maxGlobalWords {
			return hdr, fmt.Errorf("%w: global %d declares %d words", ErrStreamCorrupt, i, n)
		}
		if _, err := io.CopyN(io.Discard, r, int64(n)*8); err != nil {
			return hdr, fmt.Errorf("skipping global %d: %w", i, err)
		}
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return hdr, fmt.Errorf("reading particle count: %w", err)
	}
	hdr.Particles = int(count)
	return hdr, nil
}

// WriteStream serializes one partition: magic and header, each global's
// header words, then one framed record per locally owned particle.
// Ghosts are never written; they are rebuilt after restore.
func WriteStream(w io.Writer, rank, ranks int, ps *particle.Store, globals ...Global) error {
	if rank < 0 || ranks < 1 || rank >= ranks {
		return fmt.Errorf("checkpoint: rank %d outside partition count %d", rank, ranks)
	}
	if _, err := w.Write(streamMagic[:]); err != nil {
		return fmt.Errorf("writing stream magic: %w", err)
	}
	fixed := []uint32{streamVersion, uint32(rank), uint32(ranks), uint32(len(globals))}
	if err := binary.Write(w, binary.LittleEndian, fixed); err != nil {
		return fmt.Errorf("writing stream header: %w", err)
	}

	for i, g := range globals {
		words := g.AppendGlobalHeader(nil)
		if err := binary.Write(w, binary.LittleEndian, uint32(len(words))); err != nil {
			return fmt.Errorf("writing global %d length: %w", i, err)
		}
		if err := binary.Write(w, binary.LittleEndian, words); err != nil {
			return fmt.Errorf("writing global %d: %w", i, err)
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(ps.Nlocal())); err != nil {
		return fmt.Errorf("writing particle count: %w", err)
	}
	buf := make([]float64, 0, ps.MaxRestartWords())
	for slot := 0; slot < ps.Nlocal(); slot++ {
		buf = ps.AppendRestart(slot, buf[:0])
		if err := binary.Write(w, binary.LittleEndian, buf); err != nil {
			return fmt.Errorf("writing record for slot %d: %w", slot, err)
		}
	}
	return nil
}

// ReadStream restores one partition into ps, which must be empty and
// must have the same handlers registered, in the same order, as when the
// stream was written.
func ReadStream(r io.Reader, ps *particle.Store, globals ...Global) (Header, error) {
	hdr, nglobals, err := readFixedHeader(r)
	if err != nil {
		return hdr, err
	}
	if nglobals != len(globals) {
		return hdr, fmt.Errorf("%w: stream carries %d globals, reader expects %d",
			ErrStreamCorrupt, nglobals, len(globals))
	}

	for i, g := range globals {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return hdr, fmt.Errorf("reading global %d length: %w", i, err)
		}
		if n > maxGlobalWords {
			return hdr, fmt.Errorf("%w: global %d declares %d words", ErrStreamCorrupt, i, n)
		}
		words := make([]float64, n)
		if err := binary.Read(r, binary.LittleEndian, words); err != nil {
			return hdr, fmt.Errorf("reading global %d: %w", i, err)
		}
		if err := g.ApplyGlobalHeader(words); err != nil {
			return hdr, fmt.Errorf("applying global %d: %w", i, err)
		}
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return hdr, fmt.Errorf("reading particle count: %w", err)
	}
	hdr.Particles = int(count)

	// Globals are applied, so the per-record bound is final.
	maxWords := ps.MaxRestartWords()
	record := make([]float64, 0, maxWords)
	for i := 0; i < hdr.Particles; i++ {
		var frame float64
		if err := binary.Read(r, binary.LittleEndian, &frame); err != nil {
			return hdr, fmt.Errorf("reading record %d frame: %w", i, err)
		}
		total := int(frame)
		if total < 1 || total > maxWords {
			return hdr, fmt.Errorf("%w: record %d declares %d words, bound is %d",
				ErrStreamCorrupt, i, total, maxWords)
		}
		record = append(record[:0], frame)
		rest := record[1:total]
		if err := binary.Read(r, binary.LittleEndian, rest[:total-1]); err != nil {
			return hdr, fmt.Errorf("reading record %d: %w", i, err)
		}
		if _, err := ps.UnpackRestartRecord(record[:total]); err != nil {
			return hdr, fmt.Errorf("unpacking record %d: %w", i, err)
		}
	}
	return hdr, nil
}
