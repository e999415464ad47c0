package probe

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the rate the calorimeter firmware talks at.
	DefaultBaudRate = 9600
	// DefaultReadTimeout bounds each blocking read.
	DefaultReadTimeout = 4 * time.Second
	// FrameSize is the length of one frame: a little-endian float32.
	FrameSize = 4
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// port is the subset of serial.Port used by Serial.
type port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// opener opens a port; replaced in tests.
type opener func(name string, mode *serial.Mode) (port, error)

func openSerial(name string, mode *serial.Mode) (port, error) {
	return serial.Open(name, mode)
}

// Serial represents a connection to the calorimeter over a serial port.
type Serial struct {
	port        string
	baudRate    int
	readTimeout time.Duration
	settle      time.Duration
	open        opener

	conn      port
	mu        sync.RWMutex
	connected bool

	// pending holds the head of a frame cut short by a read timeout.
	// Only the reader touches it.
	pending []byte
}

// New creates a new Serial instance with the specified port, baud rate, read
// timeout and settle delay. Zero values select the defaults; the read timeout
// is always finite.
func New(name string, baudRate int, readTimeout, settle time.Duration) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	return &Serial{
		port:        name,
		baudRate:    baudRate,
		readTimeout: readTimeout,
		settle:      settle,
		open:        openSerial,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect opens the serial port, applies the read timeout, waits for the
// instrument to settle and discards anything buffered before that.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	mode := &serial.Mode{
		BaudRate: d.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	conn, err := d.open(d.port, mode)
	if err != nil {
		return fmt.Errorf("%w: open %s at %d baud: %v", ErrConnection, d.port, d.baudRate, err)
	}

	if err := conn.SetReadTimeout(d.readTimeout); err != nil {
		conn.Close()
		return fmt.Errorf("%w: set read timeout on %s: %v", ErrConnection, d.port, err)
	}

	if d.settle > 0 {
		time.Sleep(d.settle)
	}
	if err := conn.ResetInputBuffer(); err != nil {
		log.Printf("Failed to reset input buffer on %s: %v", d.port, err)
	}

	d.conn = conn
	d.connected = true
	d.pending = d.pending[:0]

	return nil
}

// Close closes the serial port.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	err := d.conn.Close()
	d.conn = nil
	d.connected = false
	if err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", d.port, err)
	}
	return nil
}

// IsConnected returns whether the port is currently open.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// ReadFrame reads exactly len(buf) bytes.
// A timeout before the first byte returns ErrTimeout. A stall in the middle of
// a frame also returns ErrTimeout, but the bytes already read are kept and the
// next call completes that frame, so the stream stays aligned.
func (d *Serial) ReadFrame(buf []byte) error {
	d.mu.RLock()
	conn := d.conn
	d.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	got := copy(buf, d.pending)
	d.pending = d.pending[:0]

	for got < len(buf) {
		n, err := conn.Read(buf[got:])
		if err != nil {
			return fmt.Errorf("failed to read from %s: %w", d.port, err)
		}
		if n == 0 {
			if got > 0 {
				d.pending = append(d.pending, buf[:got]...)
			}
			return ErrTimeout
		}
		got += n
	}

	return nil
}

// EncodeFrame encodes a reading the way the firmware sends it.
func EncodeFrame(v float32) []byte {
	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(buf, math32.Float32bits(v))
	return buf
}
