package meter

import (
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/itohio/gocal/pkg/acquire"
	"github.com/itohio/gocal/pkg/config"
	"github.com/itohio/gocal/pkg/probe"
	"github.com/itohio/gocal/pkg/probe/probetest"
	"github.com/itohio/gocal/pkg/sample"
	"github.com/itohio/gocal/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// coolingCurve returns n readings decaying from 60 toward 20 °C.
func coolingCurve(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(20 + 40*math.Exp(-float64(i)/50))
	}
	return out
}

// TestTick_NoLossCorrespondence feeds one frame per tick and checks that the
// log holds exactly one row per frame, equal to running the processor directly.
func TestTick_NoLossCorrespondence(t *testing.T) {
	const n = 200
	m, slot := newTestMeter(t, 2, nil)
	cfg := config.Default()

	ref := sample.NewProcessor(sample.Params{
		Mass:           cfg.Session.WaterMass,
		SpecificHeat:   cfg.Measurement.SpecificHeat,
		BaselineWindow: cfg.Measurement.BaselineWindow,
		Sentinel:       cfg.Measurement.Sentinel,
		ElapsedSign:    cfg.Measurement.ElapsedSign,
	})

	frames := append([]float32{-99}, coolingCurve(n-1)...)
	want := make([]session.Row, 0, n)

	for i, v := range frames {
		now := t0.Add(time.Duration(i) * 50 * time.Millisecond)

		res := ref.Apply(sample.Round2(float64(v)), now)
		if res.Reset {
			want = append(want, session.MarkerRow())
		} else {
			want = append(want, session.Row{Value: res.Value, FilteredTemp: res.FilteredTemp, Elapsed: res.Elapsed})
		}

		store(slot, v)
		r, err := m.Tick(now)
		require.NoError(t, err)
		require.True(t, r.Fresh)
	}

	got := m.Freeze().Rows()
	require.Len(t, got, n)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}

	stats := m.Stats()
	assert.Equal(t, uint64(n), stats.Processed)
	assert.Zero(t, stats.Skipped)
	assert.Zero(t, stats.Duplicates)
}

// TestTick_LossyAccounting writes several frames between ticks. Every stored
// frame is either processed or counted as skipped.
func TestTick_LossyAccounting(t *testing.T) {
	m, slot := newTestMeter(t, 2, nil)

	store(slot, -99)
	_, err := m.Tick(t0)
	require.NoError(t, err)

	curve := coolingCurve(90)
	for i := 0; i < len(curve); i += 3 {
		store(slot, curve[i])
		store(slot, curve[i+1])
		store(slot, curve[i+2])
		r, err := m.Tick(t0.Add(time.Duration(i+1) * 100 * time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, uint64(2), r.Skipped)
	}

	stats := m.Stats()
	assert.Equal(t, slot.Written(), stats.Processed+stats.Skipped)
	assert.Equal(t, uint64(31), stats.Processed)
	assert.Equal(t, int(stats.Processed), m.LogLen())
}

// TestTick_SlowConsumerLogsProducedFrames runs the reader goroutine against a
// source that produces faster than the meter ticks. Frames are lost, but every
// processed reading must carry a value the source actually produced.
func TestTick_SlowConsumerLogsProducedFrames(t *testing.T) {
	const n = 400
	m, slot := newTestMeter(t, 2, nil)

	src := probetest.New(20 * time.Millisecond)
	require.NoError(t, src.Connect())
	loop := acquire.NewLoop(src, slot, probe.FrameSize)

	produced := make(map[float64]bool, n+1)
	produced[-99] = true
	values := make([]float32, n)
	for i := range values {
		// quarter degrees are exact in float32 and survive rounding
		values[i] = 20 + float32(i)*0.25
		produced[float64(values[i])] = true
	}

	var mu sync.Mutex
	var raws []float64
	m.OnUpdate(func(r Reading, _ Windows) {
		if !r.Fresh {
			return
		}
		mu.Lock()
		raws = append(raws, r.Raw)
		mu.Unlock()
	})

	require.NoError(t, loop.Start())
	go func() {
		src.Push(-99)
		for _, v := range values {
			src.Push(v)
			time.Sleep(200 * time.Microsecond)
		}
		src.End(nil)
	}()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(5 * time.Second)
ticks:
	for {
		select {
		case now := <-ticker.C:
			_, err := m.Tick(now)
			require.NoError(t, err)
		case <-loop.Done():
			break ticks
		case <-deadline:
			t.Fatal("reader did not finish")
		}
	}
	// pick up the frame left in the slot
	_, err := m.Tick(time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, loop.Err(), io.EOF)

	written := slot.Written()
	assert.Equal(t, uint64(n+1), written)

	stats := m.Stats()
	assert.Less(t, uint64(m.LogLen()), written, "slow ticks must lose frames")
	assert.Equal(t, int(stats.Processed), m.LogLen())
	assert.Equal(t, written, stats.Processed+stats.Skipped)
	assert.Zero(t, stats.DecodeErrors)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, raws, m.LogLen())
	for _, raw := range raws {
		assert.True(t, produced[raw], "raw %v was never produced", raw)
	}
	assert.Equal(t, float64(values[n-1]), raws[len(raws)-1], "last produced frame is processed")
}
