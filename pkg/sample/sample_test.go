package sample

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(v float32) []byte {
	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   []byte
		want    float64
		wantErr bool
	}{
		{"integer", frame(25), 25, false},
		{"rounded", frame(21.3456), 21.35, false},
		{"float32 noise removed", frame(21.3), 21.3, false},
		{"negative", frame(-4.125), -4.13, false},
		{"sentinel", frame(-99), -99, false},
		{"zero", frame(0), 0, false},
		{"short frame", []byte{1, 2, 3}, 0, true},
		{"long frame", []byte{1, 2, 3, 4, 5}, 0, true},
		{"empty frame", nil, 0, true},
		{"nan", frame(float32(math.NaN())), 0, true},
		{"inf", frame(float32(math.Inf(1))), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.frame)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDecode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.234, 1.23},
		{1.235, 1.24},
		{-1.234, -1.23},
		{12.5, 12.5},
		{21.25, 21.25},
		{0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Round2(tt.in), "Round2(%v)", tt.in)
	}
}

func TestCoolingPower(t *testing.T) {
	tests := []struct {
		name                                  string
		temp, baseline, mass, c, elapsed, sgn float64
		want                                  float64
	}{
		{"warming, positive divisor", 25, 20, 100, 4.179, 2, 1, 1044.75},
		{"warming, negative divisor", 25, 20, 100, 4.179, 2, -1, -1044.75},
		{"cooling reported positive", 15, 20, 100, 4.179, 2, -1, 1044.75},
		{"no change", 20, 20, 100, 4.179, 2, -1, 0},
		{"rounded", 20.1, 20, 37, 4.179, 3, -1, -5.15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CoolingPower(tt.temp, tt.baseline, tt.mass, tt.c, tt.elapsed, tt.sgn)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "unknown", Phase(7).String())
}

func defaultParams() Params {
	return Params{
		Mass:           100,
		SpecificHeat:   4.179,
		BaselineWindow: 0.2,
		Sentinel:       -99,
		ElapsedSign:    -1,
	}
}

func TestProcessor_SmoothingRecurrence(t *testing.T) {
	p := NewProcessor(defaultParams())
	now := time.Now()

	var got []float64
	for _, v := range []float32{10, 20, 30} {
		res, err := p.Process(frame(v), now)
		require.NoError(t, err)
		got = append(got, res.FilteredTemp)
	}

	assert.Equal(t, []float64{5, 12.5, 21.25}, got)
}

func TestProcessor_IdleReportsNoPower(t *testing.T) {
	p := NewProcessor(defaultParams())
	now := time.Now()

	for i, v := range []float32{30, 28, 26} {
		res, err := p.Process(frame(v), now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.False(t, res.Reset)
		assert.Zero(t, res.Value)
		assert.Zero(t, res.Elapsed)
	}
	assert.Equal(t, Idle, p.State().Phase)
}

func TestProcessor_SentinelReset(t *testing.T) {
	p := NewProcessor(defaultParams())
	t0 := time.Now()

	_, err := p.Process(frame(40), t0)
	require.NoError(t, err)
	assert.Equal(t, float64(20), p.Filtered())

	resetAt := t0.Add(5 * time.Second)
	res, err := p.Process(frame(-99), resetAt)
	require.NoError(t, err)
	assert.True(t, res.Reset)
	assert.Equal(t, float64(-99), res.Raw)
	assert.Equal(t, Sample{}, res.Sample)

	state := p.State()
	assert.Equal(t, Running, state.Phase)
	assert.Equal(t, resetAt, state.StartTime)
	assert.Zero(t, p.Filtered(), "filter accumulator cleared")

	res, err = p.Process(frame(30), resetAt.Add(100*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, res.Reset)
	assert.Equal(t, 0.1, res.Elapsed)
	assert.Equal(t, float64(15), res.FilteredTemp)
}

func TestProcessor_SecondSentinelRestartsClock(t *testing.T) {
	p := NewProcessor(defaultParams())
	t0 := time.Now()

	_, err := p.Process(frame(-99), t0)
	require.NoError(t, err)
	res, err := p.Process(frame(30), t0.Add(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, float64(10), res.Elapsed)

	t1 := t0.Add(20 * time.Second)
	_, err = p.Process(frame(-99), t1)
	require.NoError(t, err)
	assert.Equal(t, Running, p.State().Phase)
	assert.Equal(t, t1, p.State().StartTime)

	res, err = p.Process(frame(30), t1.Add(50*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 0.05, res.Elapsed)
}

func TestProcessor_BaselineCapture(t *testing.T) {
	p := NewProcessor(defaultParams())
	t0 := time.Now()

	_, err := p.Process(frame(-99), t0)
	require.NoError(t, err)

	// Inside the window the baseline follows the filter; last one wins.
	_, err = p.Process(frame(20), t0.Add(100*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, float64(10), p.State().Baseline)

	_, err = p.Process(frame(20), t0.Add(200*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, float64(15), p.State().Baseline)

	// Outside the window the baseline is frozen.
	res, err := p.Process(frame(20), t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, float64(15), p.State().Baseline)
	assert.Equal(t, 17.5, res.FilteredTemp)
	// (17.5-15)*100*4.179/(2*-1)
	assert.Equal(t, -522.38, res.Value)
}

func TestProcessor_ValueFormula(t *testing.T) {
	params := defaultParams()
	p := NewProcessor(params)
	t0 := time.Now()

	_, err := p.Process(frame(-99), t0)
	require.NoError(t, err)

	// Drive the filter to a known state: baseline 20 captured inside the window.
	p.filtered = 40
	_, err = p.Process(frame(0), t0.Add(100*time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, float64(20), p.State().Baseline)

	// filtered = (20+30)/2 = 25 at t=2s -> |value| = 5*100*4.179/2 = 1044.75
	res, err := p.Process(frame(30), t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, float64(25), res.FilteredTemp)
	assert.Equal(t, float64(2), res.Elapsed)
	assert.Equal(t, -1044.75, res.Value)
}

func TestProcessor_ValueFormula_PositiveSign(t *testing.T) {
	params := defaultParams()
	params.ElapsedSign = 1
	p := NewProcessor(params)
	t0 := time.Now()

	_, err := p.Process(frame(-99), t0)
	require.NoError(t, err)
	p.filtered = 40
	_, err = p.Process(frame(0), t0.Add(100*time.Millisecond))
	require.NoError(t, err)

	res, err := p.Process(frame(30), t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1044.75, res.Value)
}

func TestProcessor_ZeroElapsed(t *testing.T) {
	p := NewProcessor(defaultParams())
	t0 := time.Now()

	_, err := p.Process(frame(-99), t0)
	require.NoError(t, err)

	// 4ms rounds to 0.00 s: no division, zero power
	res, err := p.Process(frame(50), t0.Add(4*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, float64(0), res.Elapsed)
	assert.Equal(t, float64(0), res.Value)
	assert.False(t, math.IsNaN(res.Value))
	assert.False(t, math.IsInf(res.Value, 0))
	assert.Equal(t, float64(25), p.State().Baseline)
}

func TestProcessor_DecodeError(t *testing.T) {
	p := NewProcessor(defaultParams())
	_, err := p.Process(frame(10), time.Now())
	require.NoError(t, err)

	_, err = p.Process([]byte{1, 2}, time.Now())
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, float64(5), p.Filtered(), "failed frame must not touch the filter")
}

func TestProcessor_InitialBaseline(t *testing.T) {
	params := defaultParams()
	params.InitialBaseline = 21.5
	p := NewProcessor(params)
	assert.Equal(t, 21.5, p.State().Baseline)
	assert.Equal(t, Idle, p.State().Phase)
}

func TestProcessor_DefaultSign(t *testing.T) {
	params := defaultParams()
	params.ElapsedSign = 0
	p := NewProcessor(params)
	assert.Equal(t, float64(-1), p.params.ElapsedSign)
}
