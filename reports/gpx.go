package reports

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTrackName is used when no track name is given for GPX export.
const DefaultTrackName = "GPS Tracker"

// ToGPX renders the reports as a single-track GPX 1.1 document. Apple
// confidence and Google accuracy are both exported as <hdop> so that GPX
// viewers render a precision circle; altitude becomes <ele> and the source
// network a point comment.
func ToGPX(locs []Location, name string) string {
	if name == "" {
		name = DefaultTrackName
	}
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<gpx version=\"1.1\" creator=\"gps-tracker-tools\"\n")
	b.WriteString("     xmlns=\"http://www.topografix.com/GPX/1/1\">\n")
	fmt.Fprintf(&b, "  <metadata><name>%s</name></metadata>\n", name)
	b.WriteString("  <trk>\n")
	fmt.Fprintf(&b, "    <name>%s</name>\n", name)
	b.WriteString("    <trkseg>\n")
	for _, l := range locs {
		fmt.Fprintf(&b, "      <trkpt lat=\"%.7f\" lon=\"%.7f\">\n", l.Lat, l.Lon)
		if l.Altitude != 0 {
			fmt.Fprintf(&b, "        <ele>%d</ele>\n", l.Altitude)
		}
		ts := time.Unix(l.Timestamp, 0).UTC().Format(time.RFC3339)
		fmt.Fprintf(&b, "        <time>%s</time>\n", ts)
		if l.Source != "" {
			fmt.Fprintf(&b, "        <cmt>%s</cmt>\n", l.Source)
		}
		if l.Confidence > 0 {
			fmt.Fprintf(&b, "        <hdop>%d</hdop>\n", l.Confidence)
		}
		if l.Accuracy > 0 {
			fmt.Fprintf(&b, "        <hdop>%s</hdop>\n", strconv.FormatFloat(l.Accuracy, 'g', -1, 64))
		}
		b.WriteString("      </trkpt>\n")
	}
	b.WriteString("    </trkseg>\n")
	b.WriteString("  </trk>\n")
	b.WriteString("</gpx>\n")
	return b.String()
}
