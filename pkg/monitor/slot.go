package monitor

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Frame is a captured image with its capture time and sequence number.
// The receiver of a Frame owns Mat and must Close it.
type Frame struct {
	Mat gocv.Mat
	At  time.Time
	Seq uint64
}

// FrameSlot is a single-frame mailbox between the capture goroutine and
// the consumer. Publishing over an unconsumed frame replaces it: the
// stale Mat is closed and counted as dropped. The consumer always gets
// the newest frame.
type FrameSlot struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *Frame
	closed bool

	seq     uint64
	dropped uint64
	onDrop  func()
}

// NewFrameSlot creates an empty slot. onDrop, if set, is called for every
// overwritten frame.
func NewFrameSlot(onDrop func()) *FrameSlot {
	s := &FrameSlot{onDrop: onDrop}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish stores mat as the newest frame. After Close it closes mat and
// returns false.
func (s *FrameSlot) Publish(mat gocv.Mat, at time.Time) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		mat.Close()
		return false
	}

	stale := s.frame
	s.seq++
	s.frame = &Frame{Mat: mat, At: at, Seq: s.seq}
	if stale != nil {
		s.dropped++
	}
	s.mu.Unlock()

	s.cond.Signal()

	if stale != nil {
		stale.Mat.Close()
		if s.onDrop != nil {
			s.onDrop()
		}
	}
	return true
}

// Next blocks until a frame is available and takes it. A frame published
// before Close is still delivered; after that Next returns false.
func (s *FrameSlot) Next() (*Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.frame == nil && !s.closed {
		s.cond.Wait()
	}
	if s.frame == nil {
		return nil, false
	}

	f := s.frame
	s.frame = nil
	return f, true
}

// Close stops accepting frames and wakes the consumer. It is safe to call
// more than once.
func (s *FrameSlot) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Dropped returns how many frames were overwritten before consumption.
func (s *FrameSlot) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Published returns how many frames were accepted.
func (s *FrameSlot) Published() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
