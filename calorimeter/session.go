package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gocal/pkg/config"
	"github.com/itohio/gocal/pkg/experiment"
	"github.com/itohio/gocal/pkg/meter"
	"github.com/itohio/gocal/pkg/scope"
	"github.com/itohio/gocal/pkg/session"
	"github.com/itohio/gocal/pkg/telemetry"
)

// appState holds the application state. Fields are only touched on the fyne goroutine.
type appState struct {
	cfg         *config.Config
	configPath  string
	window      fyne.Window
	scopeWidget *scope.ScopeWidget
	connectBtn  *widget.Button
	settingsBtn *widget.Button
	statusLabel *widget.Label
	useMock     bool

	exp      *experiment.Experiment // nil when no session runs
	pub      *telemetry.Publisher
	stopTick chan struct{}
	busy     bool // connecting or closing
}

// createToolbar creates the toolbar with the Connect and Settings buttons and a status line.
func createToolbar(state *appState) fyne.CanvasObject {
	state.connectBtn = widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.settingsBtn = widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})
	state.statusLabel = widget.NewLabel("Disconnected")

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(state.connectBtn, state.settingsBtn),
		nil,
		state.statusLabel,
	)
}

// handleConnect starts a session or closes the running one.
func handleConnect(state *appState) {
	if state.busy {
		return
	}
	if state.exp != nil {
		closeSession(state, nil)
		return
	}

	meta := session.NewMetadata(state.cfg.Session, time.Now())
	exp := experiment.New(state.cfg, newSource(state.cfg, state.useMock), meta)

	// Ticks run on the fyne goroutine, so the scope can be updated directly.
	exp.Meter().OnUpdate(func(r meter.Reading, w meter.Windows) {
		state.scopeWidget.Update(r, w)
	})

	state.busy = true
	state.settingsBtn.Disable()
	state.statusLabel.SetText("Waiting for data...")

	go func() {
		err := exp.Start(context.Background())
		fyne.Do(func() {
			state.busy = false
			if err != nil {
				exp.Close()
				state.settingsBtn.Enable()
				state.statusLabel.SetText("Disconnected")
				dialog.ShowError(fmt.Errorf("failed to start session: %w", err), state.window)
				return
			}

			state.exp = exp
			state.pub = attachTelemetry(state.cfg, exp)
			state.connectBtn.SetIcon(theme.LogoutIcon())
			state.statusLabel.SetText(sessionStatus(meta, state.useMock))
			state.stopTick = make(chan struct{})
			go runTicker(state, exp, state.stopTick)
		})
	}()
}

// runTicker schedules a tick on the fyne goroutine every display interval until
// stop is closed. A dead reader closes the session.
func runTicker(state *appState, exp *experiment.Experiment, stop <-chan struct{}) {
	ticker := time.NewTicker(state.cfg.Display.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case err := <-exp.Errors():
			fyne.Do(func() {
				if state.exp != exp {
					return
				}
				dialog.ShowError(fmt.Errorf("acquisition stopped: %w", err), state.window)
				closeSession(state, nil)
			})
			return
		case now := <-ticker.C:
			fyne.Do(func() {
				if state.exp != exp {
					return
				}
				if _, err := exp.Tick(now); err != nil {
					log.Printf("Tick: %v", err)
				}
			})
		}
	}
}

// closeSession stops the session and asks whether to save it.
// done, if set, runs once the user has answered.
func closeSession(state *appState, done func()) {
	exp := state.exp
	if exp == nil || state.busy {
		if done != nil && exp == nil {
			done()
		}
		return
	}

	close(state.stopTick)
	state.busy = true
	state.statusLabel.SetText("Closing...")

	go func() {
		frozen, err := exp.Close()
		fyne.Do(func() {
			state.busy = false
			state.exp = nil
			if state.pub != nil {
				state.pub.Close()
				state.pub = nil
			}
			state.connectBtn.SetIcon(theme.LoginIcon())
			state.settingsBtn.Enable()
			state.statusLabel.SetText("Disconnected")

			if err != nil {
				dialog.ShowError(err, state.window)
			}

			if !state.cfg.Session.SaveOnClose {
				if done != nil {
					done()
				}
				return
			}

			msg := fmt.Sprintf("Save %d rows of trial %s?", frozen.Len(), exp.Metadata().TrialID)
			dialog.ShowConfirm("Save session", msg, func(ok bool) {
				if ok {
					saveSession(state, exp, frozen)
				}
				if done != nil {
					done()
				}
			}, state.window)
		})
	}()
}

func saveSession(state *appState, exp *experiment.Experiment, frozen *session.Frozen) {
	files, err := exp.Export(frozen)
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	dialog.ShowInformation("Saved", strings.Join(files, "\n"), state.window)
}

// handleWindowClose closes a running session before quitting.
func handleWindowClose(state *appState) {
	var once sync.Once
	quit := func() { once.Do(state.window.Close) }

	if state.exp == nil {
		quit()
		return
	}
	closeSession(state, quit)
}

func sessionStatus(meta session.Metadata, mock bool) string {
	src := "serial"
	if mock {
		src = "mock"
	}
	if meta.Dual() {
		return fmt.Sprintf("Trial %s, %.0f g, %s psi (%s)", meta.TrialID, meta.WaterMass, meta.StartPressure, src)
	}
	return fmt.Sprintf("Trial %s, %.0f g, %.1f °C (%s)", meta.TrialID, meta.WaterMass, meta.StartTemperature, src)
}
