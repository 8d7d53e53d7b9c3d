package bond

import "fmt"

// AppendExchange writes the migration record for slot: the surviving bond
// count, a (partner tag, reference separation) pair per intact bond, then
// vinter and wvolume. Tombstones are dropped here and nowhere else, so a
// particle arrives on its new owner with a dense row.
func (s *Store) AppendExchange(slot int, buf []float64) []float64 {
	head := len(buf)
	buf = append(buf, 0)
	base := slot * s.maxPartner
	live := 0
	for k := 0; k < s.count[slot]; k++ {
		if s.partner[base+k] == 0 {
			continue
		}
		buf = append(buf, float64(s.partner[base+k]), s.r0[base+k])
		live++
	}
	buf[head] = float64(live)
	return append(buf, s.vinter[slot], s.wvolume[slot])
}

// UnpackExchange reads one migration record into slot and returns the
// words consumed. The record must fit the agreed bound: bound growth is
// collective and precedes any exchange, so an oversized record is
// corruption, not a resize request.
func (s *Store) UnpackExchange(slot int, words []float64) (int, error) {
	if len(words) < 1 {
		return 0, NewSerializationError("migration record is missing its bond count")
	}
	n := int(words[0])
	if n < 0 || n > s.maxPartner {
		return 0, NewSerializationError(fmt.Sprintf(
			"migration record declares %d bonds, agreed bound is %d", n, s.maxPartner))
	}
	need := 1 + 2*n + 2
	if len(words) < need {
		return 0, NewSerializationError(fmt.Sprintf(
			"migration record declares %d bonds but only %d of %d words are present",
			n, len(words), need))
	}
	base := slot * s.maxPartner
	for k := 0; k < n; k++ {
		s.partner[base+k] = int64(words[1+2*k])
		s.r0[base+k] = words[2+2*k]
	}
	s.count[slot] = n
	s.vinter[slot] = words[1+2*n]
	s.wvolume[slot] = words[2+2*n]
	return need, nil
}
