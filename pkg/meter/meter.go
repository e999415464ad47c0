package meter

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/itohio/gocal/pkg/acquire"
	"github.com/itohio/gocal/pkg/config"
	"github.com/itohio/gocal/pkg/ring"
	"github.com/itohio/gocal/pkg/sample"
	"github.com/itohio/gocal/pkg/session"
)

var _ TickConsumer = (*Meter)(nil)

// Reading is what one tick produced.
type Reading struct {
	Elapsed      float64 // s since trial start
	Value        float64 // Cooling power
	FilteredTemp float64 // °C
	Raw          float64 // decoded reading of the frame
	Phase        sample.Phase
	Seq          uint64 // sequence number of the frame shown
	Fresh        bool   // the frame was processed during this tick
	Reset        bool   // the frame was the trial-start sentinel
	Skipped      uint64 // frames overwritten in the slot before this one was seen
}

// Windows are the ring buffer contents, oldest first.
// Temps is nil for single-channel sessions.
type Windows struct {
	Values []float64
	Temps  []float64
}

// Stats counts what the consumer has seen.
type Stats struct {
	Processed    uint64 // frames run through the processor (including resets)
	Duplicates   uint64 // ticks that found an already processed frame
	Skipped      uint64 // frames overwritten before any tick saw them
	DecodeErrors uint64
	Resets       uint64
}

// TickConsumer drains the shared slot on a periodic tick.
type TickConsumer interface {
	Tick(now time.Time) (Reading, error)
	Windows() Windows
	Stats() Stats
	OnUpdate(func(r Reading, w Windows))
}

// Meter processes the latest frame on every tick, feeds the display windows,
// appends to the session log and notifies subscribers.
//
// Tick must be called from a single goroutine. Accessors and OnUpdate are safe
// to call from others.
type Meter struct {
	slot           *acquire.Slot
	proc           *sample.Processor
	log            *session.Log
	dual           bool
	reprocessStale bool

	mu       sync.RWMutex
	values   *ring.Buffer
	temps    *ring.Buffer // nil for single-channel sessions
	lastSeq  uint64
	last     Reading
	stats    Stats
	shutdown bool // set by Freeze, stops ticks and callbacks

	callbacks []func(r Reading, w Windows)
	cbMu      sync.RWMutex
}

// New creates a Meter reading from slot.
// Single-channel sessions start with the session's start temperature as baseline.
func New(cfg *config.Config, slot *acquire.Slot, meta session.Metadata) *Meter {
	params := sample.Params{
		Mass:           meta.WaterMass,
		SpecificHeat:   cfg.Measurement.SpecificHeat,
		BaselineWindow: cfg.Measurement.BaselineWindow,
		Sentinel:       cfg.Measurement.Sentinel,
		ElapsedSign:    cfg.Measurement.ElapsedSign,
	}
	if !meta.Dual() {
		params.InitialBaseline = meta.StartTemperature
	}

	m := &Meter{
		slot:           slot,
		proc:           sample.NewProcessor(params),
		log:            session.NewLog(),
		dual:           meta.Dual(),
		reprocessStale: cfg.Acquisition.ReprocessStale,
		values:         ring.New(cfg.Display.Capacity),
	}
	if m.dual {
		m.temps = ring.New(cfg.Display.Capacity)
	}
	return m
}

// Tick takes the frame currently in the slot and advances the pipeline.
//
// A frame that was already processed is shown again but not processed or
// logged again, unless stale reprocessing is enabled. A reset appends exactly
// one marker row and nothing to the windows. Decode errors are returned and the
// frame is not retried on the next tick.
func (m *Meter) Tick(now time.Time) (Reading, error) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return Reading{}, session.ErrFrozen
	}

	reading, notify, err := m.tick(now)
	m.mu.Unlock()

	if notify {
		m.notifyCallbacks(reading)
	}
	return reading, err
}

// tick runs with mu held.
func (m *Meter) tick(now time.Time) (Reading, bool, error) {
	f, ok := m.slot.Load()
	if !ok {
		return Reading{Phase: m.proc.State().Phase}, false, nil
	}

	if f.Seq == m.lastSeq && !m.reprocessStale {
		m.stats.Duplicates++
		r := m.last
		r.Fresh = false
		r.Reset = false
		r.Skipped = 0
		return r, true, nil
	}

	var skipped uint64
	if f.Seq > m.lastSeq+1 {
		skipped = f.Seq - m.lastSeq - 1
		m.stats.Skipped += skipped
	}
	m.lastSeq = f.Seq

	// Trial time follows the tick clock, not the frame's arrival stamp.
	res, err := m.proc.Process(f.Data, now)
	if err != nil {
		m.stats.DecodeErrors++
		log.Printf("meter: dropping frame %d: %v", f.Seq, err)
		return Reading{}, false, fmt.Errorf("frame %d: %w", f.Seq, err)
	}
	m.stats.Processed++

	r := Reading{
		Elapsed:      res.Elapsed,
		Value:        res.Value,
		FilteredTemp: res.FilteredTemp,
		Raw:          res.Raw,
		Phase:        m.proc.State().Phase,
		Seq:          f.Seq,
		Fresh:        true,
		Reset:        res.Reset,
		Skipped:      skipped,
	}

	if res.Reset {
		m.stats.Resets++
		if err := m.log.AppendMarker(); err != nil {
			return r, false, err
		}
	} else {
		m.values.Push(res.Value)
		if m.temps != nil {
			m.temps.Push(res.FilteredTemp)
		}
		if err := m.log.Append(session.Row{Value: res.Value, FilteredTemp: res.FilteredTemp, Elapsed: res.Elapsed}); err != nil {
			return r, false, err
		}
	}

	m.last = r
	return r, true, nil
}

// Freeze stops the meter and hands over the session log.
// No ticks are processed and no callbacks are sent afterwards.
func (m *Meter) Freeze() *session.Frozen {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = true
	return m.log.Freeze()
}

// Windows returns copies of the display windows.
func (m *Meter) Windows() Windows {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.windows()
}

func (m *Meter) windows() Windows {
	w := Windows{Values: m.values.Snapshot(nil)}
	if m.temps != nil {
		w.Temps = m.temps.Snapshot(nil)
	}
	return w
}

// Stats returns the consumer counters.
func (m *Meter) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Last returns the most recent reading.
func (m *Meter) Last() Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// State returns the trial state.
func (m *Meter) State() sample.TrialState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.proc.State()
}

// LogLen returns the number of session log rows.
func (m *Meter) LogLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.log.Len()
}

// OnUpdate registers a callback invoked after every tick that found a frame.
// The callback receives its own copies and should return quickly.
func (m *Meter) OnUpdate(callback func(r Reading, w Windows)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// notifyCallbacks copies the windows under the read lock and calls the
// callbacks without holding any lock.
func (m *Meter) notifyCallbacks(r Reading) {
	m.mu.RLock()
	if m.shutdown {
		m.mu.RUnlock()
		return
	}
	w := m.windows()
	m.mu.RUnlock()

	m.cbMu.RLock()
	callbacks := make([]func(r Reading, w Windows), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(r, w)
		}
	}
}
