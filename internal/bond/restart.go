package bond

import "fmt"

// AppendRestart writes the checkpoint record for slot: the record length
// in words (counting the length word itself), the row length, the raw
// (partner tag, reference separation) pairs tombstones included, then
// vinter and wvolume. Checkpoints preserve rows verbatim; compaction
// belongs to migration alone.
func (s *Store) AppendRestart(slot int, buf []float64) []float64 {
	n := s.count[slot]
	buf = append(buf, float64(2*n+4), float64(n))
	base := slot * s.maxPartner
	for k := 0; k < n; k++ {
		buf = append(buf, float64(s.partner[base+k]), s.r0[base+k])
	}
	return append(buf, s.vinter[slot], s.wvolume[slot])
}

// UnpackRestart reads one checkpoint record into slot and returns the
// words consumed. ApplyGlobalHeader must have grown the bound first.
func (s *Store) UnpackRestart(slot int, words []float64) (int, error) {
	if len(words) < 2 {
		return 0, NewSerializationError("checkpoint record is missing its header words")
	}
	length, n := int(words[0]), int(words[1])
	if length != 2*n+4 {
		return 0, NewSerializationError(fmt.Sprintf(
			"checkpoint record declares %d words for %d bonds, want %d", length, n, 2*n+4))
	}
	if n < 0 || n > s.maxPartner {
		return 0, NewSerializationError(fmt.Sprintf(
			"checkpoint record declares %d bonds, agreed bound is %d", n, s.maxPartner))
	}
	if len(words) < length {
		return 0, NewSerializationError(fmt.Sprintf(
			"checkpoint record declares %d words, only %d are present", length, len(words)))
	}
	base := slot * s.maxPartner
	for k := 0; k < n; k++ {
		s.partner[base+k] = int64(words[2+2*k])
		s.r0[base+k] = words[3+2*k]
	}
	s.count[slot] = n
	s.vinter[slot] = words[2+2*n]
	s.wvolume[slot] = words[3+2*n]
	return length, nil
}

// MaxRestartWords bounds the checkpoint record for one slot at the
// current bound.
func (s *Store) MaxRestartWords() int { return 2*s.maxPartner + 4 }

// AppendGlobalHeader emits the whole-partition header words: the built
// flag and the agreed partner bound.
func (s *Store) AppendGlobalHeader(buf []float64) []float64 {
	flag := 0.0
	if s.built {
		flag = 1.0
	}
	return append(buf, flag, float64(s.maxPartner))
}

// ApplyGlobalHeader restores the whole-partition state. It grows the
// bound before any per-particle record is read, so every record the
// stream carries already fits.
func (s *Store) ApplyGlobalHeader(words []float64) error {
	if len(words) != 2 {
		return NewSerializationError(fmt.Sprintf("global header has %d words, want 2", len(words)))
	}
	bound := int(words[1])
	if bound < 1 {
		return NewSerializationError(fmt.Sprintf("global header carries bound %d, want at least 1", bound))
	}
	if err := s.GrowBound(bound); err != nil {
		return err
	}
	s.built = words[0] != 0
	return nil
}
