package meter

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itohio/gocal/pkg/acquire"
	"github.com/itohio/gocal/pkg/probe"
	"github.com/itohio/gocal/pkg/probe/probetest"
	"github.com/itohio/gocal/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMeter_GracefulShutdown_NoCallbacksAfterFreeze ticks while the reader runs,
// freezes the meter and checks that no callbacks follow.
func TestMeter_GracefulShutdown_NoCallbacksAfterFreeze(t *testing.T) {
	m, slot := newTestMeter(t, 2, nil)

	var calls atomic.Int64
	m.OnUpdate(func(Reading, Windows) { calls.Add(1) })

	src := probetest.New(5 * time.Millisecond)
	require.NoError(t, src.Connect())
	src.Push(-99)
	src.Push(coolingCurve(50)...)

	loop := acquire.NewLoop(src, slot, probe.FrameSize)
	require.NoError(t, loop.Start())

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				if _, err := m.Tick(now); err != nil {
					assert.ErrorIs(t, err, session.ErrFrozen)
					return
				}
			}
		}
	}()

	assert.Eventually(t, func() bool { return calls.Load() > 5 }, 2*time.Second, time.Millisecond)

	require.NoError(t, loop.Stop(time.Second))
	require.NoError(t, src.Close())

	frozen := m.Freeze()
	rows := frozen.Len()

	// let a callback already past the shutdown check finish
	time.Sleep(10 * time.Millisecond)
	count := calls.Load()

	time.Sleep(20 * time.Millisecond)
	close(stop)
	wg.Wait()

	assert.Equal(t, count, calls.Load(), "no callbacks after Freeze")
	assert.Equal(t, rows, frozen.Len())
	assert.LessOrEqual(t, uint64(rows), slot.Written())
}
