package experiment

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/itohio/gocal/pkg/sample"
)

const headlessLogInterval = time.Second

// RunHeadless drives an experiment without a GUI until ctx is cancelled or the
// reader fails. The session is then closed and, if save is set, exported.
func RunHeadless(ctx context.Context, exp *Experiment, interval time.Duration, save bool) error {
	if err := exp.Start(ctx); err != nil {
		exp.Close()
		return err
	}

	var runErr error
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastLog time.Time
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-exp.Errors():
			runErr = err
			break loop
		case now := <-ticker.C:
			r, err := exp.Tick(now)
			if err != nil {
				log.Printf("headless: %v", err)
				continue
			}
			if r.Reset {
				log.Printf("headless: trial started (frame %d)", r.Seq)
				continue
			}
			if r.Fresh && r.Phase == sample.Running && now.Sub(lastLog) >= headlessLogInterval {
				log.Printf("Timer (s) = %.2f  value = %.2f  temperature = %.2f", r.Elapsed, r.Value, r.FilteredTemp)
				lastLog = now
			}
		}
	}

	frozen, closeErr := exp.Close()
	if !save {
		return errors.Join(runErr, closeErr)
	}

	files, exportErr := exp.Export(frozen)
	for _, f := range files {
		log.Printf("headless: saved %s", f)
	}
	return errors.Join(runErr, closeErr, exportErr)
}
