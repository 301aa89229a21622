package image

import (
	"sync/atomic"
)

// Store publishes process-image snapshots for external readers (the
// control-plane collaborator, tests) without ever blocking the cycle
// thread. It uses a seqlock: the publisher bumps an odd sequence
// number, copies the new snapshot, then bumps back to even. Readers
// retry if they observe an odd sequence or a sequence change across
// their read, matching the double-buffered seqlock design the
// original runtime used for its I/O image.
//
// Only the cycle thread may call Publish. Any number of goroutines may
// call Snapshot concurrently.
type Store struct {
	seq  atomic.Uint64
	data [2][Size]byte
	slot atomic.Uint32
}

// NewStore returns a Store holding a zeroed image.
func NewStore() *Store {
	return &Store{}
}

// Publish makes b the new externally-visible snapshot.
func (s *Store) Publish(b [Size]byte) {
	s.seq.Add(1) // now odd: write in progress
	next := 1 - s.slot.Load()
	s.data[next] = b
	s.slot.Store(next)
	s.seq.Add(1) // now even: write complete
}

// Snapshot returns a consistent copy of the most recently published
// image. It never blocks; it spins briefly only if it races a publish.
func (s *Store) Snapshot() [Size]byte {
	for {
		seq1 := s.seq.Load()
		if seq1&1 != 0 {
			continue
		}
		slot := s.slot.Load()
		data := s.data[slot]
		seq2 := s.seq.Load()
		if seq1 == seq2 {
			return data
		}
	}
}
