package export

import (
	"fmt"

	"github.com/itohio/gocal/pkg/session"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// trials splits rows at marker rows. Rows logged before the first marker form
// their own segment.
func trials(rows []Row) [][]Row {
	var out [][]Row
	var cur []Row
	for _, r := range rows {
		if (session.Row{Value: r.Value, FilteredTemp: r.FilteredTemp, Elapsed: r.Elapsed}).IsMarker() {
			if len(cur) > 0 {
				out = append(out, cur)
			}
			cur = nil
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// WritePlot renders one line per trial of y(row) over elapsed time and saves it as PNG.
func WritePlot(path, title, yLabel string, rows []Row, y func(Row) float64) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())

	for i, segment := range trials(rows) {
		pts := make(plotter.XYs, 0, len(segment))
		for _, r := range segment {
			pts = append(pts, plotter.XY{X: r.Elapsed, Y: y(r)})
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("trial %d line: %w", i+1, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("trial %d", i+1), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
