// Package experiment wires the reader, the tick consumer and the exporter into
// one session lifecycle.
package experiment

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/itohio/gocal/pkg/acquire"
	"github.com/itohio/gocal/pkg/config"
	"github.com/itohio/gocal/pkg/export"
	"github.com/itohio/gocal/pkg/meter"
	"github.com/itohio/gocal/pkg/probe"
	"github.com/itohio/gocal/pkg/session"
)

// Experiment owns one acquisition session.
type Experiment struct {
	cfg      *config.Config
	src      probe.Source
	meta     session.Metadata
	slot     *acquire.Slot
	meter    *meter.Meter
	exporter *export.Exporter

	mu   sync.Mutex
	loop *acquire.Loop
	errs chan error

	closeOnce sync.Once
	frozen    *session.Frozen
	closeErr  error
}

// New creates an experiment reading from src.
func New(cfg *config.Config, src probe.Source, meta session.Metadata) *Experiment {
	slot := acquire.NewSlot()
	return &Experiment{
		cfg:      cfg,
		src:      src,
		meta:     meta,
		slot:     slot,
		meter:    meter.New(cfg, slot, meta),
		exporter: export.New(cfg),
		errs:     make(chan error, 1),
	}
}

// Meter returns the tick consumer, e.g. to register display callbacks.
func (e *Experiment) Meter() *meter.Meter {
	return e.meter
}

// Metadata returns the session metadata.
func (e *Experiment) Metadata() session.Metadata {
	return e.meta
}

// Start connects the source, launches the reader and waits for the first frame.
// On error the reader is stopped and the source closed.
func (e *Experiment) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.loop != nil {
		e.mu.Unlock()
		return acquire.ErrAlreadyStarted
	}

	if err := e.src.Connect(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}

	loop := acquire.NewLoop(e.src, e.slot, e.cfg.Acquisition.FrameSize)
	if err := loop.Start(); err != nil {
		e.mu.Unlock()
		e.src.Close()
		return err
	}
	e.loop = loop
	e.mu.Unlock()

	go func() {
		<-loop.Done()
		if err := loop.Err(); err != nil {
			e.errs <- err
		}
	}()

	if err := loop.WaitFirstData(ctx, e.cfg.Acquisition.FirstDataTimeout); err != nil {
		if serr := e.stop(); serr != nil {
			log.Printf("experiment: %v", serr)
		}
		return err
	}

	log.Printf("experiment: receiving data, trial %s", e.meta.TrialID)
	return nil
}

// Tick processes the latest frame. It is meant to be called periodically from
// the display goroutine.
func (e *Experiment) Tick(now time.Time) (meter.Reading, error) {
	return e.meter.Tick(now)
}

// Errors reports a reader that died with an error. At most one error is sent.
func (e *Experiment) Errors() <-chan error {
	return e.errs
}

// Close stops the reader, closes the source once the reader has exited and
// freezes the session log. Calling Close again returns the same result.
func (e *Experiment) Close() (*session.Frozen, error) {
	e.closeOnce.Do(func() {
		e.closeErr = e.stop()
		e.frozen = e.meter.Freeze()
		log.Printf("experiment: closed with %d rows (%+v)", e.frozen.Len(), e.meter.Stats())
	})
	return e.frozen, e.closeErr
}

// stop joins the reader before closing the source. If the reader does not exit
// in time the source is left open.
func (e *Experiment) stop() error {
	e.mu.Lock()
	loop := e.loop
	e.mu.Unlock()

	if loop != nil {
		if err := loop.Stop(e.cfg.Acquisition.ShutdownTimeout); err != nil {
			return fmt.Errorf("stop reader: %w", err)
		}
	}

	if e.src.IsConnected() {
		if err := e.src.Close(); err != nil {
			return fmt.Errorf("close source: %w", err)
		}
	}
	return nil
}

// Export writes the frozen log using the configured storage sink.
func (e *Experiment) Export(frozen *session.Frozen) ([]string, error) {
	return e.exporter.Export(frozen, e.meta)
}
