package simconnect

import "sync/atomic"

// Sequence hands out increasing ids. It is safe for concurrent use.
//
// With a non-zero ceiling, the id equal to the ceiling is handed out and
// the counter then resets to zero, so the following id is 1 again.
// A zero ceiling means the counter only wraps on uint32 overflow.
type Sequence struct {
	n       atomic.Uint32
	ceiling uint32
}

// NewSequence creates a sequence whose first id is 1.
func NewSequence(ceiling uint32) *Sequence {
	return &Sequence{ceiling: ceiling}
}

// Next returns the next id.
func (s *Sequence) Next() uint32 {
	for {
		cur := s.n.Load()
		next := cur + 1
		store := next
		if s.ceiling != 0 && next >= s.ceiling {
			store = 0
		}
		if s.n.CompareAndSwap(cur, store) {
			return next
		}
	}
}
