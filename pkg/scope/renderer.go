package scope

import (
	"image/color"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
)

const (
	marginLeft   = float32(70)
	marginRight  = float32(20)
	marginTop    = float32(30)
	marginBottom = float32(20)
	panelGap     = float32(25)
)

var gridColor = color.RGBA{R: 40, G: 40, B: 40, A: 255}

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope      *ScopeWidget
	background *canvas.Rectangle
	objects    []fyne.CanvasObject
	lastSize   fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.background.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// panel is a snapshot of one channel taken under the widget lock.
type panel struct {
	label      string
	unit       string
	color      color.Color
	points     []float64
	current    float64
	yMin, yMax float64
}

// Refresh redraws every panel.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	reading := r.scope.reading
	panels := make([]panel, len(r.scope.channels))
	for i, ch := range r.scope.channels {
		panels[i] = panel{
			label:   ch.label,
			unit:    ch.unit,
			color:   ch.color,
			points:  append([]float64(nil), ch.points...),
			current: ch.current,
			yMin:    ch.yMin,
			yMax:    ch.yMax,
		}
	}
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.background}

	timer := canvas.NewText("Timer (s) = "+formatFloat(reading.Elapsed, 2), textColor)
	timer.TextSize = 14
	timer.Move(fyne.NewPos(marginLeft, 6))
	r.objects = append(r.objects, timer)

	plotWidth := size.Width - marginLeft - marginRight
	n := float32(len(panels))
	panelHeight := (size.Height - marginTop - marginBottom - panelGap*(n-1)) / n
	if plotWidth <= 0 || panelHeight <= 0 {
		return
	}

	for i, p := range panels {
		y := marginTop + float32(i)*(panelHeight+panelGap)
		r.drawGrid(marginLeft, y, plotWidth, panelHeight, p)
		r.drawLine(marginLeft, y, plotWidth, panelHeight, p)
		r.drawLabel(marginLeft, y, p)
	}
}

// drawGrid draws the oscilloscope-style grid with Y labels.
func (r *scopeRenderer) drawGrid(plotX, plotY, plotWidth, plotHeight float32, p panel) {
	numHLines := 4
	for i := range numHLines + 1 {
		y := plotY + float32(i)*plotHeight/float32(numHLines)
		line := canvas.NewLine(gridColor)
		line.Position1 = fyne.NewPos(plotX, y)
		line.Position2 = fyne.NewPos(plotX+plotWidth, y)
		line.StrokeWidth = 1
		r.objects = append(r.objects, line)

		value := p.yMax - float64(i)*(p.yMax-p.yMin)/float64(numHLines)
		text := canvas.NewText(formatFloat(value, 2), color.RGBA{R: 150, G: 150, B: 150, A: 255})
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(plotX-5, y-6))
		r.objects = append(r.objects, text)
	}

	numVLines := 10
	for i := range numVLines + 1 {
		x := plotX + float32(i)*plotWidth/float32(numVLines)
		line := canvas.NewLine(gridColor)
		line.Position1 = fyne.NewPos(x, plotY)
		line.Position2 = fyne.NewPos(x, plotY+plotHeight)
		line.StrokeWidth = 1
		r.objects = append(r.objects, line)
	}
}

// drawLine draws the window oldest to newest across the full width.
func (r *scopeRenderer) drawLine(plotX, plotY, plotWidth, plotHeight float32, p panel) {
	if len(p.points) < 2 {
		return
	}

	span := p.yMax - p.yMin
	step := plotWidth / float32(len(p.points)-1)
	prev := fyne.NewPos(plotX, plotY+plotHeight-float32((p.points[0]-p.yMin)/span)*plotHeight)
	for i := 1; i < len(p.points); i++ {
		cur := fyne.NewPos(plotX+float32(i)*step, plotY+plotHeight-float32((p.points[i]-p.yMin)/span)*plotHeight)
		line := canvas.NewLine(p.color)
		line.Position1 = prev
		line.Position2 = cur
		line.StrokeWidth = 1.5
		r.objects = append(r.objects, line)
		prev = cur
	}
}

// drawLabel shows the channel name and its current value.
func (r *scopeRenderer) drawLabel(plotX, plotY float32, p panel) {
	label := p.label + " = " + formatFloat(p.current, 2)
	if p.unit != "" {
		label += " " + p.unit
	}
	text := canvas.NewText(label, p.color)
	text.TextSize = 12
	text.Move(fyne.NewPos(plotX+10, plotY+4))
	r.objects = append(r.objects, text)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

func formatFloat(v float64, decimals int) string {
	return strconv.FormatFloat(v, 'f', decimals, 64)
}
