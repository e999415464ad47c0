package scope

import (
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gocal/pkg/config"
	"github.com/itohio/gocal/pkg/meter"
	"github.com/itohio/gocal/pkg/ring"
)

var (
	valueColor = color.RGBA{R: 230, G: 40, B: 40, A: 255} // red
	tempColor  = color.RGBA{R: 0, G: 220, B: 220, A: 255} // cyan
	textColor  = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

// channel is one plotted window with its own Y scale.
type channel struct {
	label      string
	unit       string
	color      color.Color
	points     []float64 // downsampled for display
	current    float64
	yMin, yMax float64
}

// ScopeWidget plots the live display windows.
type ScopeWidget struct {
	widget.BaseWidget

	maxPoints int
	dual      bool

	// Data (protected by mu)
	mu       sync.RWMutex
	channels []*channel
	reading  meter.Reading
}

// New creates a ScopeWidget for a one or two channel session.
func New(cfg *config.Config, dual bool) *ScopeWidget {
	s := &ScopeWidget{
		maxPoints: cfg.Display.MaxPoints,
		dual:      dual,
		channels: []*channel{
			{label: "Cooling Power", color: valueColor, yMin: 0, yMax: 1},
		},
	}
	if dual {
		s.channels = append(s.channels, &channel{label: "Temperature", unit: "°C", color: tempColor, yMin: 0, yMax: 1})
	}
	for _, ch := range s.channels {
		ch.points = make([]float64, 0, s.maxPoints)
	}
	s.ExtendBaseWidget(s)
	s.Refresh()
	return s
}

// Update replaces the plotted windows.
// It must be called on the fyne goroutine (e.g. from a meter callback via fyne.Do).
func (s *ScopeWidget) Update(r meter.Reading, w meter.Windows) {
	s.mu.Lock()
	s.reading = r
	s.setChannel(0, w.Values, r.Value)
	if s.dual {
		s.setChannel(1, w.Temps, r.FilteredTemp)
	}
	s.mu.Unlock()

	s.Refresh()
}

func (s *ScopeWidget) setChannel(i int, values []float64, current float64) {
	ch := s.channels[i]
	ch.points = ring.Downsample(ch.points, values, s.maxPoints)
	ch.current = current
	ch.yMin, ch.yMax = autoScale(ch.points)
}

// Reading returns the last reading shown.
func (s *ScopeWidget) Reading() meter.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reading
}

// autoScale returns the value range with a 10% margin.
func autoScale(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 1
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	span := hi - lo
	if span == 0 {
		span = 1
	}
	margin := span * 0.1
	return lo - margin, hi + margin
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	background := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:      s,
		background: background,
		objects:    []fyne.CanvasObject{background},
	}
}
