package sample

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/chewxy/math32"
)

// FrameSize is the number of bytes in one frame.
const FrameSize = 4

// ErrDecode is returned for frames that cannot be turned into a reading.
var ErrDecode = errors.New("decode error")

// Sample represents one processed reading.
type Sample struct {
	Elapsed      float64 // s since the current trial started, 0 while idle
	FilteredTemp float64 // °C after smoothing
	Value        float64 // Cooling power, 0 unless a trial is running
}

// Decode interprets a frame as a little-endian float32 rounded to 2 decimals.
func Decode(frame []byte) (float64, error) {
	if len(frame) != FrameSize {
		return 0, fmt.Errorf("%w: expected %d bytes, got %d", ErrDecode, FrameSize, len(frame))
	}

	v := math32.Float32frombits(binary.LittleEndian.Uint32(frame))
	if math32.IsNaN(v) || math32.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: non-finite payload %x", ErrDecode, frame)
	}

	return Round2(float64(v)), nil
}

// Round2 rounds to 2 decimal places.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
