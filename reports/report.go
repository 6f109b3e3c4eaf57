// Package reports defines decrypted location reports and the merge, dedupe,
// and GPX export operations shared by the Apple and Google fetch paths.
package reports

import "time"

// Source identifies which network produced a location report.
type Source string

const (
	SourceApple  Source = "apple"
	SourceGoogle Source = "google"
)

// Location is a single decrypted location report. Timestamp is unix seconds;
// Datetime carries the same instant in RFC 3339 for human-readable output.
//
// Confidence and Status are only set by Apple reports; Altitude, Accuracy and
// IsOwn only by Google reports. Counter is the Apple key rotation counter the
// report was decrypted under.
type Location struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Timestamp  int64   `json:"timestamp"`
	Datetime   string  `json:"datetime,omitempty"`
	Confidence int     `json:"confidence,omitempty"`
	Status     int     `json:"status,omitempty"`
	Counter    int64   `json:"counter,omitempty"`
	Altitude   int     `json:"altitude,omitempty"`
	Accuracy   float64 `json:"accuracy,omitempty"`
	IsOwn      bool    `json:"is_own_report,omitempty"`
	Source     Source  `json:"source,omitempty"`
	DeviceName string  `json:"device_name,omitempty"`
	MapsURL    string  `json:"maps_url,omitempty"`
}

// Stamp sets the report timestamp together with its derived RFC 3339 form.
func (l *Location) Stamp(ts int64) {
	l.Timestamp = ts
	l.Datetime = time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

// Time returns the report timestamp as a time.Time in UTC.
func (l Location) Time() time.Time {
	return time.Unix(l.Timestamp, 0).UTC()
}

// Valid reports whether the coordinates are within range.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}
