package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Session     SessionConfig     `yaml:"session"`
	Display     DisplayConfig     `yaml:"display"`
	Measurement MeasurementConfig `yaml:"measurement"`
	Export      ExportConfig      `yaml:"export"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"` // Must be finite so the reader can observe stop requests
}

// AcquisitionConfig controls the background frame reader.
type AcquisitionConfig struct {
	FrameSize        int           `yaml:"frame_size"`         // Bytes per frame (one float32)
	SettleDelay      time.Duration `yaml:"settle_delay"`       // Wait after open before flushing the input buffer
	FirstDataTimeout time.Duration `yaml:"first_data_timeout"` // Bounded wait for the first frame
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`   // Bounded wait for the reader to exit
	ReprocessStale   bool          `yaml:"reprocess_stale"`    // Feed already-seen frames through the processor again
}

// SessionConfig holds the experiment metadata.
// Single-channel sessions record a starting temperature, dual-channel sessions a starting pressure.
type SessionConfig struct {
	Channels         int     `yaml:"channels"`
	WaterMass        float64 `yaml:"water_mass"`        // g
	StartTemperature float64 `yaml:"start_temperature"` // °C
	StartPressure    string  `yaml:"start_pressure"`    // psi, kept verbatim for the file name
	TrialID          string  `yaml:"trial_id"`
	SaveOnClose      bool    `yaml:"save_on_close"`
	OutputDir        string  `yaml:"output_dir"`
}

// DisplayConfig contains live window parameters.
type DisplayConfig struct {
	Capacity     int           `yaml:"capacity"`      // Ring buffer length per channel
	TickInterval time.Duration `yaml:"tick_interval"` // Period of the display tick
	MaxPoints    int           `yaml:"max_points"`    // Points drawn per line after downsampling
}

// MeasurementConfig contains the physics constants.
type MeasurementConfig struct {
	SpecificHeat   float64 `yaml:"specific_heat"`   // J/(g·°C)
	BaselineWindow float64 `yaml:"baseline_window"` // seconds after reset used for baseline capture
	RollingWindow  int     `yaml:"rolling_window"`  // samples in the export rolling mean
	Sentinel       float64 `yaml:"sentinel"`        // raw value that starts a trial
	ElapsedSign    float64 `yaml:"elapsed_sign"`    // -1 reports cooling as positive power
}

// ExportConfig contains storage sink options.
type ExportConfig struct {
	DateFormat string `yaml:"date_format"`
	Plot       bool   `yaml:"plot"`
	Metadata   bool   `yaml:"metadata"`
}

// MQTTConfig contains live telemetry options.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// MockConfig contains mock instrument configuration.
type MockConfig struct {
	StartTemperature float64       `yaml:"start_temperature"` // °C at connect
	Ambient          float64       `yaml:"ambient"`           // °C the sample cools toward
	TimeConstant     time.Duration `yaml:"time_constant"`     // Cooling time constant
	NoiseLevel       float64       `yaml:"noise_level"`       // °C
	SentinelAfter    time.Duration `yaml:"sentinel_after"`    // Delay before the trial start frame
	SampleRate       time.Duration `yaml:"sample_rate"`       // Frame period
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:        "/dev/ttyACM0",
			BaudRate:    9600,
			ReadTimeout: 4 * time.Second,
		},
		Acquisition: AcquisitionConfig{
			FrameSize:        4,
			SettleDelay:      time.Second,
			FirstDataTimeout: 10 * time.Second,
			ShutdownTimeout:  6 * time.Second,
		},
		Session: SessionConfig{
			Channels:      2,
			WaterMass:     100,
			StartPressure: "0",
			TrialID:       "1",
			SaveOnClose:   true,
			OutputDir:     ".",
		},
		Display: DisplayConfig{
			Capacity:     2000,
			TickInterval: 100 * time.Millisecond,
			MaxPoints:    1000,
		},
		Measurement: MeasurementConfig{
			SpecificHeat:   4.179,
			BaselineWindow: 0.2,
			RollingWindow:  5,
			Sentinel:       -99,
			ElapsedSign:    -1,
		},
		Export: ExportConfig{
			DateFormat: "Jan-02-2006",
			Plot:       true,
			Metadata:   true,
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Broker:   "tcp://localhost:1883",
			ClientID: "gocal",
			Topic:    "calorimetry",
			QoS:      0,
		},
		Mock: MockConfig{
			StartTemperature: 60,
			Ambient:          20,
			TimeConstant:     120 * time.Second,
			NoiseLevel:       0.05,
			SentinelAfter:    2 * time.Second,
			SampleRate:       50 * time.Millisecond,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Session.Channels != 1 && c.Session.Channels != 2 {
		return fmt.Errorf("invalid channel count %d: must be 1 or 2", c.Session.Channels)
	}
	if c.Session.WaterMass < 0 {
		return fmt.Errorf("invalid water mass %g: must not be negative", c.Session.WaterMass)
	}
	if c.Serial.ReadTimeout <= 0 {
		return fmt.Errorf("invalid read timeout %v: must be finite and positive", c.Serial.ReadTimeout)
	}
	if c.Acquisition.FirstDataTimeout <= 0 {
		return fmt.Errorf("invalid first data timeout %v: must be positive", c.Acquisition.FirstDataTimeout)
	}
	if c.Acquisition.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout %v: must be positive", c.Acquisition.ShutdownTimeout)
	}
	// A reader blocked in a read only sees the stop flag once the read times out.
	if c.Acquisition.ShutdownTimeout <= c.Serial.ReadTimeout {
		return fmt.Errorf("invalid shutdown timeout %v: must exceed the read timeout %v",
			c.Acquisition.ShutdownTimeout, c.Serial.ReadTimeout)
	}
	if c.Acquisition.FrameSize != 4 {
		return fmt.Errorf("invalid frame size %d: frames carry one float32", c.Acquisition.FrameSize)
	}
	if c.Display.Capacity <= 0 {
		return fmt.Errorf("invalid display capacity %d", c.Display.Capacity)
	}
	if c.Display.TickInterval <= 0 {
		return fmt.Errorf("invalid tick interval %v", c.Display.TickInterval)
	}
	if c.Measurement.ElapsedSign != 1 && c.Measurement.ElapsedSign != -1 {
		return fmt.Errorf("invalid elapsed sign %g: must be 1 or -1", c.Measurement.ElapsedSign)
	}
	if c.Measurement.RollingWindow <= 0 {
		return fmt.Errorf("invalid rolling window %d", c.Measurement.RollingWindow)
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = def.Serial.ReadTimeout
	}

	if c.Acquisition.FrameSize == 0 {
		c.Acquisition.FrameSize = def.Acquisition.FrameSize
	}
	if c.Acquisition.FirstDataTimeout == 0 {
		c.Acquisition.FirstDataTimeout = def.Acquisition.FirstDataTimeout
	}
	if c.Acquisition.ShutdownTimeout == 0 {
		c.Acquisition.ShutdownTimeout = def.Acquisition.ShutdownTimeout
	}

	if c.Session.Channels == 0 {
		c.Session.Channels = def.Session.Channels
	}
	if c.Session.OutputDir == "" {
		c.Session.OutputDir = def.Session.OutputDir
	}

	if c.Display.Capacity == 0 {
		c.Display.Capacity = def.Display.Capacity
	}
	if c.Display.TickInterval == 0 {
		c.Display.TickInterval = def.Display.TickInterval
	}
	if c.Display.MaxPoints == 0 {
		c.Display.MaxPoints = def.Display.MaxPoints
	}

	if c.Measurement.SpecificHeat == 0 {
		c.Measurement.SpecificHeat = def.Measurement.SpecificHeat
	}
	if c.Measurement.BaselineWindow == 0 {
		c.Measurement.BaselineWindow = def.Measurement.BaselineWindow
	}
	if c.Measurement.RollingWindow == 0 {
		c.Measurement.RollingWindow = def.Measurement.RollingWindow
	}
	if c.Measurement.Sentinel == 0 {
		c.Measurement.Sentinel = def.Measurement.Sentinel
	}
	if c.Measurement.ElapsedSign == 0 {
		c.Measurement.ElapsedSign = def.Measurement.ElapsedSign
	}

	if c.Export.DateFormat == "" {
		c.Export.DateFormat = def.Export.DateFormat
	}

	if c.MQTT.Topic == "" {
		c.MQTT.Topic = def.MQTT.Topic
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}

	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
	if c.Mock.TimeConstant == 0 {
		c.Mock.TimeConstant = def.Mock.TimeConstant
	}
}
