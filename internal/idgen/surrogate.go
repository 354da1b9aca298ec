package idgen

import "sync/atomic"

// SurrogateSequence is a monotonic, in-process allocator for types.ID values.
// Real SQL backends (internal/storage/dolt) use the engine's own
// AUTO_INCREMENT column instead; this sequence exists for backends — notably
// internal/storage/memory — that have no database identity column to lean
// on, matching spec.md Design Notes' "surrogate ids as the single source of
// identity" guidance.
type SurrogateSequence struct {
	next int64
}

// Next returns the next surrogate id, starting at 1.
func (s *SurrogateSequence) Next() int64 {
	return atomic.AddInt64(&s.next, 1)
}
