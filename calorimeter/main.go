package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"github.com/itohio/gocal/pkg/config"
	"github.com/itohio/gocal/pkg/experiment"
	"github.com/itohio/gocal/pkg/probe"
	"github.com/itohio/gocal/pkg/scope"
	"github.com/itohio/gocal/pkg/session"
	"github.com/itohio/gocal/pkg/telemetry"
)

// options holds the command line.
type options struct {
	configPath  string
	port        string
	baud        int
	mock        bool
	headless    bool
	list        bool
	save        bool
	trial       string
	mass        float64
	pressure    string
	temperature float64
	channels    int

	set map[string]bool // flags given explicitly
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, error) {
	o := &options{}
	fs.StringVar(&o.configPath, "config", "config.yaml", "Configuration file path")
	fs.StringVar(&o.port, "p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
	fs.IntVar(&o.baud, "b", probe.DefaultBaudRate, "Baud rate override")
	fs.BoolVar(&o.mock, "mock", false, "Use simulated calorimeter instead of serial port")
	fs.BoolVar(&o.headless, "headless", false, "Run without GUI until interrupted")
	fs.BoolVar(&o.list, "list", false, "List serial ports and exit")
	fs.BoolVar(&o.save, "save", true, "Save the session on close")
	fs.StringVar(&o.trial, "trial", "", "Trial ID")
	fs.Float64Var(&o.mass, "mass", 0, "Water mass (g)")
	fs.StringVar(&o.pressure, "pressure", "", "Starting pressure (psi), dual channel sessions")
	fs.Float64Var(&o.temperature, "temperature", 0, "Starting temperature (°C), single channel sessions")
	fs.IntVar(&o.channels, "channels", 0, "Channels per session (1 or 2)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// apply overrides configuration with explicitly given flags.
func (o *options) apply(cfg *config.Config) error {
	if o.set["p"] {
		cfg.Serial.Port = o.port
	}
	if o.set["b"] {
		cfg.Serial.BaudRate = o.baud
	}
	if o.set["save"] {
		cfg.Session.SaveOnClose = o.save
	}
	if o.set["trial"] {
		cfg.Session.TrialID = o.trial
	}
	if o.set["mass"] {
		cfg.Session.WaterMass = o.mass
	}
	if o.set["pressure"] {
		cfg.Session.StartPressure = o.pressure
	}
	if o.set["temperature"] {
		cfg.Session.StartTemperature = o.temperature
	}
	if o.set["channels"] {
		cfg.Session.Channels = o.channels
	}
	return cfg.Validate()
}

// newSource returns the simulated or the serial calorimeter.
func newSource(cfg *config.Config, mock bool) probe.Source {
	if mock {
		return probe.NewMock(&cfg.Mock, float32(cfg.Measurement.Sentinel), cfg.Serial.ReadTimeout)
	}
	return probe.New(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.ReadTimeout, cfg.Acquisition.SettleDelay)
}

// attachTelemetry mirrors readings to MQTT when enabled. Failing to connect is
// not fatal for the session.
func attachTelemetry(cfg *config.Config, exp *experiment.Experiment) *telemetry.Publisher {
	if !cfg.MQTT.Enabled {
		return nil
	}
	pub, err := telemetry.New(cfg.MQTT, exp.Metadata())
	if err != nil {
		log.Printf("Telemetry disabled: %v", err)
		return nil
	}
	pub.Attach(exp.Meter())
	return pub
}

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	if opts.list {
		listPorts()
		return
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := opts.apply(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if opts.headless {
		if err := runHeadless(cfg, opts.mock); err != nil {
			log.Fatalf("Session failed: %v", err)
		}
		return
	}

	application := app.NewWithID("com.itohio.gocal")

	window := application.NewWindow("Calorimetry")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: opts.configPath,
		window:     window,
		useMock:    opts.mock,
	}
	state.scopeWidget = scope.New(cfg, cfg.Session.Channels >= 2)

	toolbar := createToolbar(state)
	content := container.NewBorder(toolbar, nil, nil, nil, state.scopeWidget)

	window.SetContent(content)
	window.SetCloseIntercept(func() { handleWindowClose(state) })
	window.ShowAndRun()
}

func listPorts() {
	ports, err := probe.Ports()
	if err != nil {
		log.Fatalf("Failed to list serial ports: %v", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return
	}
	for _, p := range ports {
		if p.Description != "" && p.Description != p.Name {
			fmt.Printf("%s (%s)\n", p.Name, p.Description)
		} else {
			fmt.Println(p.Name)
		}
	}
}

func runHeadless(cfg *config.Config, mock bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	exp := experiment.New(cfg, newSource(cfg, mock), session.NewMetadata(cfg.Session, time.Now()))
	if pub := attachTelemetry(cfg, exp); pub != nil {
		defer pub.Close()
	}

	log.Printf("Waiting for data (trial %s), press Ctrl+C to finish", cfg.Session.TrialID)
	return experiment.RunHeadless(ctx, exp, cfg.Display.TickInterval, cfg.Session.SaveOnClose)
}
