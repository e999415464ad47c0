// Package export turns a frozen session log into files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/itohio/gocal/pkg/session"
	"gonum.org/v1/gonum/stat"
)

// Row is one exported line: the logged sample plus trailing means.
// Undefined means are NaN.
type Row struct {
	Value        float64
	Elapsed      float64
	FilteredTemp float64
	MeanValue    float64
	MeanTemp     float64
}

// RollingMean returns the trailing mean of xs over window samples.
// The first window-1 entries are NaN.
func RollingMean(xs []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(xs))
	for i := range xs {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = stat.Mean(xs[i-window+1:i+1], nil)
	}
	return out
}

// Build attaches rolling means to the log rows.
// Marker rows take part in the means like any other row.
// MeanTemp is only computed for dual-channel sessions and is NaN otherwise.
func Build(rows []session.Row, dual bool, window int) []Row {
	values := make([]float64, len(rows))
	temps := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = r.Value
		temps[i] = r.FilteredTemp
	}

	meanValues := RollingMean(values, window)
	var meanTemps []float64
	if dual {
		meanTemps = RollingMean(temps, window)
	}

	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{
			Value:        r.Value,
			Elapsed:      r.Elapsed,
			FilteredTemp: r.FilteredTemp,
			MeanValue:    meanValues[i],
			MeanTemp:     math.NaN(),
		}
		if dual {
			out[i].MeanTemp = meanTemps[i]
		}
	}
	return out
}

// Header returns the CSV header for a session variant.
func Header(dual bool) []string {
	h := []string{"Cooling Power", "Time", "Temperature", "Average Cooling Power"}
	if dual {
		h = append(h, "Average Temperature")
	}
	return h
}

// WriteCSV writes the header and rows. Undefined means are written as empty cells.
func WriteCSV(w io.Writer, rows []Row, dual bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(dual)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(Header(dual)))
	for i, r := range rows {
		record[0] = formatFloat(r.Value)
		record[1] = formatFloat(r.Elapsed)
		record[2] = formatFloat(r.FilteredTemp)
		record[3] = formatFloat(r.MeanValue)
		if dual {
			record[4] = formatFloat(r.MeanTemp)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
