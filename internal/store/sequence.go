package store

import "sync/atomic"

// Sequence hands out increasing ids starting at 1. Safe for concurrent use.
type Sequence struct {
	n atomic.Int64
}

// Next returns the next id.
func (s *Sequence) Next() int64 { return s.n.Add(1) }

// Last returns the most recently issued id, or 0.
func (s *Sequence) Last() int64 { return s.n.Load() }
