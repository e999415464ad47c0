package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/itohio/gocal/pkg/config"
)

// Metadata describes one experiment session.
type Metadata struct {
	ID               uuid.UUID `yaml:"id"`
	Date             time.Time `yaml:"date"`
	TrialID          string    `yaml:"trial_id"`
	Channels         int       `yaml:"channels"`
	WaterMass        float64   `yaml:"water_mass"`
	StartTemperature float64   `yaml:"start_temperature,omitempty"`
	StartPressure    string    `yaml:"start_pressure,omitempty"`
}

// NewMetadata builds session metadata from configuration.
func NewMetadata(cfg config.SessionConfig, date time.Time) Metadata {
	m := Metadata{
		ID:        uuid.New(),
		Date:      date,
		TrialID:   cfg.TrialID,
		Channels:  cfg.Channels,
		WaterMass: cfg.WaterMass,
	}
	if m.Dual() {
		m.StartPressure = cfg.StartPressure
	} else {
		m.StartTemperature = cfg.StartTemperature
	}
	return m
}

// Dual reports whether the session logs both cooling power and temperature windows
// and is identified by its starting pressure.
func (m Metadata) Dual() bool {
	return m.Channels >= 2
}

// FileBase returns the export file name without extension:
// {date}_Calorimetry_{trial} for single-channel sessions and
// {date}_Calorimetry_{trial}_{pressure}psi for dual-channel ones.
func (m Metadata) FileBase(dateFormat string) string {
	var b strings.Builder
	b.WriteString(m.Date.Format(dateFormat))
	b.WriteString("_Calorimetry_")
	b.WriteString(sanitize(m.TrialID))
	if m.Dual() {
		fmt.Fprintf(&b, "_%spsi", sanitize(m.StartPressure))
	}
	return b.String()
}

// sanitize keeps user-entered identifiers from escaping the output directory.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, s)
}
