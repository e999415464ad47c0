package meter

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/itohio/gocal/pkg/acquire"
	"github.com/itohio/gocal/pkg/config"
	"github.com/itohio/gocal/pkg/probe"
	"github.com/itohio/gocal/pkg/sample"
	"github.com/itohio/gocal/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

func newTestMeter(t *testing.T, channels int, mutate func(*config.Config)) (*Meter, *acquire.Slot) {
	t.Helper()
	cfg := config.Default()
	cfg.Session.Channels = channels
	cfg.Session.StartTemperature = 20
	cfg.Display.Capacity = 8
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	slot := acquire.NewSlot()
	return New(cfg, slot, session.NewMetadata(cfg.Session, t0)), slot
}

func store(slot *acquire.Slot, v float32) {
	slot.Store(probe.EncodeFrame(v))
}

func TestNew(t *testing.T) {
	m, _ := newTestMeter(t, 2, nil)
	w := m.Windows()
	assert.Equal(t, make([]float64, 8), w.Values)
	assert.Equal(t, make([]float64, 8), w.Temps)
	assert.Zero(t, m.LogLen())
	assert.Equal(t, sample.Idle, m.State().Phase)

	single, _ := newTestMeter(t, 1, nil)
	assert.Nil(t, single.Windows().Temps)
	assert.Equal(t, float64(20), single.State().Baseline)
}

func TestTick_NoData(t *testing.T) {
	m, _ := newTestMeter(t, 2, nil)
	called := false
	m.OnUpdate(func(Reading, Windows) { called = true })

	r, err := m.Tick(t0)
	require.NoError(t, err)
	assert.False(t, r.Fresh)
	assert.Equal(t, sample.Idle, r.Phase)
	assert.False(t, called)
	assert.Zero(t, m.LogLen())
}

func TestTick_TrialSequence(t *testing.T) {
	m, slot := newTestMeter(t, 2, nil)

	store(slot, -99)
	r, err := m.Tick(t0)
	require.NoError(t, err)
	assert.True(t, r.Reset)
	assert.True(t, r.Fresh)
	assert.Equal(t, sample.Running, r.Phase)
	assert.Equal(t, 1, m.LogLen())

	store(slot, 10)
	r, err = m.Tick(t0.Add(100 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 5.0, r.FilteredTemp)
	assert.Equal(t, 0.1, r.Elapsed)
	assert.InDelta(t, 0, r.Value, 1e-9)
	assert.Equal(t, 5.0, m.State().Baseline)

	store(slot, 20)
	r, err = m.Tick(t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 12.5, r.FilteredTemp)
	assert.Equal(t, 1.0, r.Elapsed)
	assert.Equal(t, -3134.25, r.Value)
	assert.Equal(t, uint64(3), r.Seq)

	w := m.Windows()
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 0, -3134.25}, w.Values)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 5, 12.5}, w.Temps)

	want := []session.Row{
		session.MarkerRow(),
		{Value: 0, FilteredTemp: 5, Elapsed: 0.1},
		{Value: -3134.25, FilteredTemp: 12.5, Elapsed: 1},
	}
	got := m.Freeze().Rows()
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b float64) bool { return a == b })); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, Stats{Processed: 3, Resets: 1}, m.Stats())
}

// The trial clock runs on tick times. Frames stored long before the tick
// still measure elapsed time from the tick that saw the sentinel.
func TestTick_ElapsedFollowsTickClock(t *testing.T) {
	m, slot := newTestMeter(t, 2, nil)

	store(slot, -99)
	f, ok := slot.Load()
	require.True(t, ok)
	require.False(t, f.Received.Equal(t0))

	_, err := m.Tick(t0)
	require.NoError(t, err)
	assert.Equal(t, t0, m.State().StartTime)

	store(slot, 30)
	r, err := m.Tick(t0.Add(1500 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1.5, r.Elapsed)
}

func TestTick_DuplicateFrame(t *testing.T) {
	m, slot := newTestMeter(t, 2, nil)

	var readings []Reading
	m.OnUpdate(func(r Reading, w Windows) { readings = append(readings, r) })

	store(slot, 30)
	first, err := m.Tick(t0)
	require.NoError(t, err)
	require.True(t, first.Fresh)

	dup, err := m.Tick(t0.Add(100 * time.Millisecond))
	require.NoError(t, err)
	assert.False(t, dup.Fresh)
	assert.Equal(t, first.FilteredTemp, dup.FilteredTemp)
	assert.Equal(t, first.Seq, dup.Seq)

	// Shown twice, logged once
	assert.Len(t, readings, 2)
	assert.Equal(t, 1, m.LogLen())
	assert.Equal(t, uint64(1), m.Stats().Duplicates)
	assert.Equal(t, 15.0, m.proc.Filtered())
}

func TestTick_ReprocessStale(t *testing.T) {
	m, slot := newTestMeter(t, 2, func(c *config.Config) {
		c.Acquisition.ReprocessStale = true
	})

	store(slot, 30)
	_, err := m.Tick(t0)
	require.NoError(t, err)
	r, err := m.Tick(t0.Add(100 * time.Millisecond))
	require.NoError(t, err)

	assert.True(t, r.Fresh)
	assert.Equal(t, 22.5, r.FilteredTemp)
	assert.Equal(t, 2, m.LogLen())
	assert.Zero(t, m.Stats().Duplicates)
}

func TestTick_SkippedFrames(t *testing.T) {
	m, slot := newTestMeter(t, 2, nil)

	store(slot, 1)
	store(slot, 2)
	store(slot, 3)
	r, err := m.Tick(t0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r.Skipped)
	assert.Equal(t, 1.5, r.FilteredTemp)

	store(slot, 4)
	r, err = m.Tick(t0.Add(time.Second))
	require.NoError(t, err)
	assert.Zero(t, r.Skipped)

	stats := m.Stats()
	assert.Equal(t, uint64(2), stats.Skipped)
	assert.Equal(t, uint64(2), stats.Processed)
	assert.Equal(t, slot.Written(), stats.Processed+stats.Skipped)
}

func TestTick_DecodeError(t *testing.T) {
	m, slot := newTestMeter(t, 2, nil)

	slot.Store([]byte{0x00, 0x00, 0xc0, 0x7f}) // NaN
	_, err := m.Tick(t0)
	assert.ErrorIs(t, err, sample.ErrDecode)
	assert.Zero(t, m.LogLen())

	// Not retried on the next tick
	_, err = m.Tick(t0.Add(100 * time.Millisecond))
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), m.Stats().DecodeErrors)
	assert.Equal(t, uint64(1), m.Stats().Duplicates)

	store(slot, 8)
	r, err := m.Tick(t0.Add(200 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 4.0, r.FilteredTemp)
}

func TestTick_SingleChannelBaseline(t *testing.T) {
	m, slot := newTestMeter(t, 1, nil)

	store(slot, -99)
	_, err := m.Tick(t0)
	require.NoError(t, err)

	// First sample lands after the baseline window, so the start temperature stays
	store(slot, 10)
	r, err := m.Tick(t0.Add(500 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 12537.0, r.Value)
	assert.Nil(t, m.Windows().Temps)
	assert.Equal(t, 12537.0, m.Windows().Values[7])
}

func TestTick_Idle(t *testing.T) {
	m, slot := newTestMeter(t, 2, nil)

	store(slot, 40)
	r, err := m.Tick(t0.Add(5 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, sample.Idle, r.Phase)
	assert.Zero(t, r.Elapsed)
	assert.Zero(t, r.Value)
	assert.Equal(t, 20.0, r.FilteredTemp)
}

func TestFreeze(t *testing.T) {
	m, slot := newTestMeter(t, 2, nil)

	calls := 0
	m.OnUpdate(func(Reading, Windows) { calls++ })

	store(slot, 10)
	_, err := m.Tick(t0)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	frozen := m.Freeze()
	assert.Equal(t, 1, frozen.Len())

	store(slot, 20)
	_, err = m.Tick(t0.Add(time.Second))
	assert.ErrorIs(t, err, session.ErrFrozen)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, frozen.Len())
}

func TestOnUpdate_ReceivesCopies(t *testing.T) {
	m, slot := newTestMeter(t, 2, nil)

	var got Windows
	m.OnUpdate(func(r Reading, w Windows) {
		got = w
		w.Values[0] = 1000
	})

	store(slot, 10)
	_, err := m.Tick(t0)
	require.NoError(t, err)

	assert.Equal(t, float64(1000), got.Values[0])
	assert.Equal(t, float64(0), m.Windows().Values[0])
	assert.Equal(t, 5.0, got.Temps[7])
}
