// Package testutil provides deterministic fixtures for tests that
// assemble particle configurations by hand.
package testutil

import "sync"

// TagSequence is a thread-safe monotonic source of particle tags.
//
// Unlike real tags, which a configuration fixes up front, test tags are
// handed out as fixtures grow. Reset allows the same fixture builder to
// run repeatedly with identical numbering.
type TagSequence struct {
	mu   sync.Mutex
	last int64
}

// NewTagSequence creates a sequence starting at 0; the first Next
// returns 1, the smallest valid tag.
func NewTagSequence() *TagSequence {
	return &TagSequence{}
}

// Next returns the next tag.
func (s *TagSequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	return s.last
}

// Current returns the most recently issued tag without advancing.
func (s *TagSequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Reset rewinds the sequence so the next tag is 1 again.
func (s *TagSequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = 0
}
