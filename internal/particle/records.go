package particle

import (
	"errors"
	"fmt"
)

// ErrRecordCorrupt marks a migration or checkpoint record whose declared
// layout disagrees with its contents.
var ErrRecordCorrupt = errors.New("particle: record corrupt")

// baseWords is the fixed word count of the base particle record:
// tag, type, x0, x (three words each), vfrac.
const baseWords = 9

// AppendExchange appends the full migration record for slot: a leading
// total length word, the base particle fields, then every handler's
// migration payload in registration order.
func (s *Store) AppendExchange(slot int, buf []float64) []float64 {
	start := len(buf)
	buf = append(buf, 0)
	buf = s.appendBase(slot, buf)
	for _, h := range s.handlers {
		buf = h.AppendExchange(slot, buf)
	}
	buf[start] = float64(len(buf) - start)
	return buf
}

// UnpackArrivals consumes migrated particle records from words, appending
// each as a new local particle and fanning the handler payloads out in
// registration order. It returns the number of particles added.
func (s *Store) UnpackArrivals(words []float64) (int, error) {
	added := 0
	for off := 0; off < len(words); {
		n, err := s.unpackOne(words[off:], false)
		if err != nil {
			return added, err
		}
		off += n
		added++
	}
	return added, nil
}

// AppendRestart appends the full checkpoint record for slot: a leading
// total length word, the base particle fields, then every handler's
// checkpoint record in registration order.
func (s *Store) AppendRestart(slot int, buf []float64) []float64 {
	start := len(buf)
	buf = append(buf, 0)
	buf = s.appendBase(slot, buf)
	for _, h := range s.handlers {
		buf = h.AppendRestart(slot, buf)
	}
	buf[start] = float64(len(buf) - start)
	return buf
}

// UnpackRestartRecord consumes one checkpoint record from the front of
// words, appending the particle as a new local. It returns the number of
// words consumed.
func (s *Store) UnpackRestartRecord(words []float64) (int, error) {
	return s.unpackOne(words, true)
}

// MaxRestartWords bounds the checkpoint record size for one particle:
// the frame word, the base fields, and every handler's own bound.
func (s *Store) MaxRestartWords() int {
	n := 1 + baseWords
	for _, h := range s.handlers {
		n += h.MaxRestartWords()
	}
	return n
}

func (s *Store) appendBase(slot int, buf []float64) []float64 {
	return append(buf,
		float64(s.tags[slot]),
		float64(s.types[slot]),
		s.x0[slot][0], s.x0[slot][1], s.x0[slot][2],
		s.x[slot][0], s.x[slot][1], s.x[slot][2],
		s.vfrac[slot],
	)
}

func (s *Store) unpackOne(words []float64, restart bool) (int, error) {
	if len(words) < 1+baseWords {
		return 0, fmt.Errorf("%w: %d words left, need at least %d for a particle record",
			ErrRecordCorrupt, len(words), 1+baseWords)
	}
	total := int(words[0])
	if total < 1+baseWords || total > len(words) {
		return 0, fmt.Errorf("%w: declared record length %d outside [%d,%d]",
			ErrRecordCorrupt, total, 1+baseWords, len(words))
	}
	tag := int64(words[1])
	typ := int(words[2])
	x0 := [3]float64{words[3], words[4], words[5]}
	x := [3]float64{words[6], words[7], words[8]}
	vfrac := words[9]
	slot, err := s.AddLocal(tag, typ, x0, x, vfrac)
	if err != nil {
		return 0, err
	}
	off := 1 + baseWords
	for _, h := range s.handlers {
		var n int
		if restart {
			n, err = h.UnpackRestart(slot, words[off:total])
		} else {
			n, err = h.UnpackExchange(slot, words[off:total])
		}
		if err != nil {
			return 0, err
		}
		off += n
	}
	if off != total {
		return 0, fmt.Errorf("%w: record for tag %d declared %d words, handlers consumed %d",
			ErrRecordCorrupt, tag, total, off)
	}
	return total, nil
}
