package acquire

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/gocal/pkg/probe"
)

var (
	// ErrNoData is returned when no frame arrived within the first-data wait.
	ErrNoData = errors.New("no data received")
	// ErrShutdownTimeout is returned when the reader did not exit within the stop timeout.
	ErrShutdownTimeout = errors.New("acquisition shutdown timed out")
	// ErrAlreadyStarted is returned by Start on a loop that was started before.
	ErrAlreadyStarted = errors.New("acquisition already started")
)

// Loop reads frames from a Source into a Slot on its own goroutine.
//
// The loop checks its stop flag between reads. A read that times out is not an
// error; the flag is simply re-checked. Any other read error ends the loop and
// is reported by Err and Wait.
//
// The Loop never closes the Source. The owner must call Stop and only close the
// Source once Stop returned nil.
type Loop struct {
	src       probe.Source
	slot      *Slot
	frameSize int

	stop    atomic.Bool
	started atomic.Bool

	done      chan struct{}
	first     chan struct{}
	firstOnce sync.Once

	mu  sync.Mutex
	err error
}

// NewLoop creates a loop that reads frameSize-byte frames from src into slot.
func NewLoop(src probe.Source, slot *Slot, frameSize int) *Loop {
	return &Loop{
		src:       src,
		slot:      slot,
		frameSize: frameSize,
		done:      make(chan struct{}),
		first:     make(chan struct{}),
	}
}

// Start launches the reader goroutine. A loop can be started once.
func (l *Loop) Start() error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go l.run()
	return nil
}

func (l *Loop) run() {
	defer close(l.done)

	buf := make([]byte, l.frameSize)
	for !l.stop.Load() {
		err := l.src.ReadFrame(buf)
		if err != nil {
			if errors.Is(err, probe.ErrTimeout) {
				continue
			}
			if l.stop.Load() {
				return
			}
			log.Printf("acquire: reader stopped: %v", err)
			l.setErr(fmt.Errorf("read frame: %w", err))
			return
		}

		l.slot.Store(buf)
		l.firstOnce.Do(func() { close(l.first) })
	}
}

func (l *Loop) setErr(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

// Err returns the error that ended the loop, or nil.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Done is closed when the reader goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// FirstData is closed when the first frame has been stored.
func (l *Loop) FirstData() <-chan struct{} {
	return l.first
}

// WaitFirstData blocks until the first frame arrives.
// It returns ErrNoData after timeout, the loop error if the reader died first,
// or ctx.Err() if ctx is cancelled.
func (l *Loop) WaitFirstData(ctx context.Context, timeout time.Duration) error {
	select {
	case <-l.first:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.first:
		return nil
	case <-l.done:
		select {
		case <-l.first:
			return nil
		default:
		}
		if err := l.Err(); err != nil {
			return err
		}
		return ErrNoData
	case <-timer.C:
		return fmt.Errorf("%w within %v", ErrNoData, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop asks the reader to exit and waits up to timeout for it.
// On ErrShutdownTimeout the reader may still be blocked in ReadFrame, so the
// Source must not be closed.
func (l *Loop) Stop(timeout time.Duration) error {
	l.stop.Store(true)
	if !l.started.Load() {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrShutdownTimeout, timeout)
	}
}

// Wait blocks until the reader exits and returns its error.
func (l *Loop) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
