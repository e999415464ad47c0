package probe

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/gocal/pkg/config"
)

// DefaultBufferSize is the number of frames the mock instrument can hold
// before it starts dropping new ones.
const DefaultBufferSize = 64

// Mock simulates a calorimeter for testing and development.
type Mock struct {
	cfg         *config.MockConfig
	sentinel    float32
	readTimeout time.Duration

	frames    chan []byte
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	done      chan struct{}

	// Simulation state
	startTime   time.Time
	sentSignal  bool
	temperature float64
}

// NewMock creates a new mocked instrument instance.
func NewMock(cfg *config.MockConfig, sentinel float32, readTimeout time.Duration) *Mock {
	if cfg == nil {
		cfg = &config.MockConfig{
			StartTemperature: 60,
			Ambient:          20,
			TimeConstant:     120 * time.Second,
			NoiseLevel:       0.05,
			SentinelAfter:    2 * time.Second,
			SampleRate:       50 * time.Millisecond,
		}
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	return &Mock{
		cfg:         cfg,
		sentinel:    sentinel,
		readTimeout: readTimeout,
	}
}

// Connect simulates connecting to the instrument.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.frames = make(chan []byte, DefaultBufferSize)
	m.done = make(chan struct{})
	m.connected = true
	m.startTime = time.Now()
	m.sentSignal = false
	m.temperature = m.cfg.StartTemperature

	go m.generateFrames(m.ctx, m.frames, m.done)

	return nil
}

// Close stops the mocked instrument.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.connected = false
	done := m.done
	m.mu.Unlock()

	<-done
	return nil
}

// IsConnected returns whether the instrument is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// ReadFrame returns the next simulated frame.
func (m *Mock) ReadFrame(buf []byte) error {
	m.mu.RLock()
	frames := m.frames
	ctx := m.ctx
	connected := m.connected
	m.mu.RUnlock()

	if !connected {
		return ErrNotConnected
	}
	if len(buf) != FrameSize {
		return fmt.Errorf("mock frames are %d bytes, got buffer of %d", FrameSize, len(buf))
	}

	timer := time.NewTimer(m.readTimeout)
	defer timer.Stop()

	select {
	case frame := <-frames:
		copy(buf, frame)
		return nil
	case <-ctx.Done():
		return ErrNotConnected
	case <-timer.C:
		return ErrTimeout
	}
}

// generateFrames emits one frame per sample period.
func (m *Mock) generateFrames(ctx context.Context, out chan<- []byte, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			select {
			case out <- EncodeFrame(m.nextReading(now)):
			default:
				// Instrument over-run, frame lost
			}
		}
	}
}

// nextReading returns the next reading: the sentinel once SentinelAfter has
// elapsed, otherwise the simulated water temperature.
func (m *Mock) nextReading(now time.Time) float32 {
	elapsed := now.Sub(m.startTime)
	if !m.sentSignal && elapsed >= m.cfg.SentinelAfter {
		m.sentSignal = true
		return m.sentinel
	}

	m.temperature = coolStep(m.temperature, m.cfg.Ambient, m.cfg.SampleRate, m.cfg.TimeConstant)

	noise := (math.Sin(float64(elapsed.Nanoseconds())*0.001) +
		math.Cos(float64(elapsed.Nanoseconds())*0.0013)) *
		m.cfg.NoiseLevel * 0.5

	return float32(m.temperature + noise)
}

// coolStep advances Newtonian cooling by one step of dt.
func coolStep(temp, ambient float64, dt, tau time.Duration) float64 {
	if tau <= 0 {
		return ambient
	}
	alpha := dt.Seconds() / tau.Seconds()
	if alpha > 1 {
		alpha = 1
	}
	return temp + alpha*(ambient-temp)
}
