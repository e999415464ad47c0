package session

import "errors"

// MarkerValue fills every column of a trial-start row.
const MarkerValue = 999999

// ErrFrozen is returned when appending to a log that has been handed over for export.
var ErrFrozen = errors.New("session log is frozen")

// Row is one logged sample.
type Row struct {
	Value        float64 // Cooling power
	FilteredTemp float64 // °C
	Elapsed      float64 // s
}

// MarkerRow returns the row inserted when a trial starts.
func MarkerRow() Row {
	return Row{Value: MarkerValue, FilteredTemp: MarkerValue, Elapsed: MarkerValue}
}

// IsMarker reports whether r is a trial-start marker.
func (r Row) IsMarker() bool {
	return r == MarkerRow()
}

// Log is the append-only record of a session.
// It has a single writer (the tick consumer). Freeze hands the rows over to
// the exporter; after that the log rejects appends.
type Log struct {
	rows   []Row
	frozen bool
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{rows: make([]Row, 0, 1024)}
}

// Append adds a sample row.
func (l *Log) Append(r Row) error {
	if l.frozen {
		return ErrFrozen
	}
	l.rows = append(l.rows, r)
	return nil
}

// AppendMarker adds a trial-start marker row.
func (l *Log) AppendMarker() error {
	return l.Append(MarkerRow())
}

// Len returns the number of rows.
func (l *Log) Len() int {
	return len(l.rows)
}

// Last returns the most recent row.
func (l *Log) Last() (Row, bool) {
	if len(l.rows) == 0 {
		return Row{}, false
	}
	return l.rows[len(l.rows)-1], true
}

// Freeze stops further appends and returns a read-only view of the rows.
// Calling Freeze again returns a view of the same rows.
func (l *Log) Freeze() *Frozen {
	l.frozen = true
	return &Frozen{rows: l.rows}
}

// Frozen is the read-only log handed to the exporter.
type Frozen struct {
	rows []Row
}

// Len returns the number of rows.
func (f *Frozen) Len() int {
	return len(f.rows)
}

// Rows returns a copy of the rows.
func (f *Frozen) Rows() []Row {
	result := make([]Row, len(f.rows))
	copy(result, f.rows)
	return result
}
