// Package acquire runs the background frame reader and hands its output to the
// tick consumer through a single-element mailbox.
package acquire

import (
	"sync/atomic"
	"time"
)

// Frame is one complete frame as received from the source.
// Frames are immutable once stored.
type Frame struct {
	Seq      uint64    // 1 for the first stored frame, incremented per store
	Data     []byte    // exactly one frame of bytes
	Received time.Time // wall clock at store time
}

// Slot holds the most recent frame.
//
// Store overwrites the previous frame whether or not it was read; Load never
// clears it. Readers always observe a complete frame because every Store
// publishes a fresh copy through an atomic pointer.
// Frames dropped by an overwrite show up as gaps in Seq.
type Slot struct {
	current atomic.Pointer[Frame]
	written atomic.Uint64
	now     func() time.Time
}

// NewSlot creates an empty slot.
func NewSlot() *Slot {
	return &Slot{now: time.Now}
}

// Store publishes a copy of data as the latest frame.
func (s *Slot) Store(data []byte) Frame {
	seq := s.written.Add(1)
	f := &Frame{
		Seq:      seq,
		Data:     append([]byte(nil), data...),
		Received: s.now(),
	}
	s.current.Store(f)
	return *f
}

// Load returns the latest frame. ok is false until the first Store.
// The returned Data must not be modified.
func (s *Slot) Load() (Frame, bool) {
	f := s.current.Load()
	if f == nil {
		return Frame{}, false
	}
	return *f, true
}

// Written returns the number of frames stored so far.
func (s *Slot) Written() uint64 {
	return s.written.Load()
}
