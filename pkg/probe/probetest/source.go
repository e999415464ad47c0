// Package probetest provides a scripted probe.Source for tests.
package probetest

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/itohio/gocal/pkg/probe"
)

var _ probe.Source = (*Source)(nil)

// Source replays frames queued with Push.
// ReadFrame returns probe.ErrTimeout when nothing is queued within the read timeout.
type Source struct {
	readTimeout time.Duration
	frames      chan []byte

	mu         sync.Mutex
	connected  bool
	closes     int
	connectErr error
	endErr     error
	hold       chan struct{}
}

// New creates a disconnected source.
func New(readTimeout time.Duration) *Source {
	return &Source{
		readTimeout: readTimeout,
		frames:      make(chan []byte, 4096),
	}
}

// FailConnect makes the next Connect fail with err.
func (s *Source) FailConnect(err error) {
	s.mu.Lock()
	s.connectErr = err
	s.mu.Unlock()
}

// Push queues a frame carrying v.
func (s *Source) Push(values ...float32) {
	for _, v := range values {
		s.frames <- probe.EncodeFrame(v)
	}
}

// PushRaw queues raw frame bytes.
func (s *Source) PushRaw(frame []byte) {
	s.frames <- append([]byte(nil), frame...)
}

// End makes ReadFrame return err (io.EOF if nil) once the queue is drained.
// Push must not be called afterwards.
func (s *Source) End(err error) {
	if err == nil {
		err = io.EOF
	}
	s.mu.Lock()
	s.endErr = err
	s.mu.Unlock()
	close(s.frames)
}

// Hold makes ReadFrame block, ignoring the read timeout, until Release.
func (s *Source) Hold() {
	s.mu.Lock()
	s.hold = make(chan struct{})
	s.mu.Unlock()
}

// Release unblocks readers stuck in Hold.
func (s *Source) Release() {
	s.mu.Lock()
	if s.hold != nil {
		close(s.hold)
		s.hold = nil
	}
	s.mu.Unlock()
}

// Closes returns how many times Close was called.
func (s *Source) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *Source) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr != nil {
		return fmt.Errorf("%w: %w", probe.ErrConnection, s.connectErr)
	}
	s.connected = true
	return nil
}

func (s *Source) ReadFrame(buf []byte) error {
	s.mu.Lock()
	connected, hold := s.connected, s.hold
	s.mu.Unlock()

	if !connected {
		return probe.ErrNotConnected
	}
	if hold != nil {
		<-hold
		return probe.ErrTimeout
	}

	timer := time.NewTimer(s.readTimeout)
	defer timer.Stop()

	select {
	case f, ok := <-s.frames:
		if !ok {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.endErr
		}
		if len(f) != len(buf) {
			return fmt.Errorf("frame of %d bytes, buffer of %d", len(f), len(buf))
		}
		copy(buf, f)
		return nil
	case <-timer.C:
		return probe.ErrTimeout
	}
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.closes++
	return nil
}

func (s *Source) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
