package probe

import "errors"

var (
	// ErrConnection is returned when the transport cannot be opened.
	ErrConnection = errors.New("connection failed")
	// ErrTimeout is returned by ReadFrame when no byte arrived within the read timeout.
	ErrTimeout = errors.New("read timeout")
	// ErrNotConnected is returned when reading from a source that is not connected.
	ErrNotConnected = errors.New("not connected")
)

// Source defines the interface for frame sources (real or mocked).
type Source interface {
	Connect() error
	// ReadFrame blocks until len(buf) bytes have been read.
	// It returns ErrTimeout if the transport read timeout expired before
	// the first byte of the frame arrived.
	ReadFrame(buf []byte) error
	Close() error
	IsConnected() bool
}

// Ensure Serial implements Source.
var _ Source = (*Serial)(nil)

// Ensure Mock implements Source.
var _ Source = (*Mock)(nil)
