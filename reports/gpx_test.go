package reports

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToGPX_Document(t *testing.T) {
	apple := Location{Lat: 37.7749, Lon: -122.4194, Confidence: 77, Source: SourceApple}
	apple.Stamp(1735690000)
	google := Location{Lat: 51.5074, Lon: -0.1278, Accuracy: 12.5, Altitude: 52, Source: SourceGoogle}
	google.Stamp(1735690100)

	got := ToGPX([]Location{apple, google}, "")

	want := `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="gps-tracker-tools"
     xmlns="http://www.topografix.com/GPX/1/1">
  <metadata><name>GPS Tracker</name></metadata>
  <trk>
    <name>GPS Tracker</name>
    <trkseg>
      <trkpt lat="37.7749000" lon="-122.4194000">
        <time>2025-01-01T00:06:40Z</time>
        <cmt>apple</cmt>
        <hdop>77</hdop>
      </trkpt>
      <trkpt lat="51.5074000" lon="-0.1278000">
        <ele>52</ele>
        <time>2025-01-01T00:08:20Z</time>
        <cmt>google</cmt>
        <hdop>12.5</hdop>
      </trkpt>
    </trkseg>
  </trk>
</gpx>
`
	require.Equal(t, want, got)
}

func TestToGPX_CustomName(t *testing.T) {
	got := ToGPX(nil, "bike tag")
	require.Contains(t, got, "<metadata><name>bike tag</name></metadata>")
	require.Contains(t, got, "<name>bike tag</name>")
}

func TestToGPX_EmitsBothPrecisionFields(t *testing.T) {
	l := Location{Lat: 1, Lon: 2, Confidence: 50, Accuracy: 8}
	l.Stamp(1735690000)

	got := ToGPX([]Location{l}, "")

	require.Equal(t, 2, strings.Count(got, "<hdop>"))
	require.Contains(t, got, "<hdop>50</hdop>")
	require.Contains(t, got, "<hdop>8</hdop>")
}

func TestLocation_Stamp(t *testing.T) {
	var l Location
	l.Stamp(1735690000)

	require.Equal(t, int64(1735690000), l.Timestamp)
	require.Equal(t, "2025-01-01T00:06:40Z", l.Datetime)
	require.Equal(t, "2025-01-01T00:06:40Z", l.Time().Format("2006-01-02T15:04:05Z"))
}

func TestLocation_Valid(t *testing.T) {
	require.True(t, Location{Lat: 37.7749, Lon: -122.4194}.Valid())
	require.True(t, Location{}.Valid())
	require.False(t, Location{Lat: 91}.Valid())
	require.False(t, Location{Lon: -181}.Valid())
}
