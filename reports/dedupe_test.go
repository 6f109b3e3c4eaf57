package reports

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHaversine_KnownDistances(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"same point", 37.7749, -122.4194, 37.7749, -122.4194, 0},
		{"one degree longitude at equator", 0, 0, 0, 1, 111194.92664455874},
		{"paris to london", 48.8566, 2.3522, 51.5074, -0.1278, 343556.06034104165},
		{"ten meters north", 37.7749, -122.4194, 37.77499, -122.4194, 10.007543398026467},
		{"sixty meters north", 37.7749, -122.4194, 37.77544, -122.4194, 60.04526038815881},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.want, Haversine(tc.lat1, tc.lon1, tc.lat2, tc.lon2), 1e-6)
		})
	}
}

func report(counter int64, ts int64, lat, lon float64, confidence int) Location {
	l := Location{Lat: lat, Lon: lon, Counter: counter, Confidence: confidence}
	l.Stamp(ts)
	return l
}

func TestDedupe_MergesNearbyReports(t *testing.T) {
	// Ten meters apart, same counter: merged into the higher-confidence one.
	locs := []Location{
		report(5, 1735690000, 37.7749, -122.4194, 40),
		report(5, 1735690060, 37.77499, -122.4194, 90),
	}

	out := Dedupe(locs, DefaultDedupeRadius)

	require.Len(t, out, 1)
	require.Equal(t, 90, out[0].Confidence)
	require.Equal(t, int64(1735690060), out[0].Timestamp)
}

func TestDedupe_KeepsDistantReports(t *testing.T) {
	// Sixty meters apart exceeds the default radius: both survive.
	locs := []Location{
		report(5, 1735690000, 37.7749, -122.4194, 40),
		report(5, 1735690060, 37.77544, -122.4194, 90),
	}

	out := Dedupe(locs, DefaultDedupeRadius)

	require.Len(t, out, 2)
	require.Equal(t, int64(1735690000), out[0].Timestamp)
	require.Equal(t, int64(1735690060), out[1].Timestamp)
}

func TestDedupe_SurvivorPerCounter(t *testing.T) {
	// Two sightings in period 5 close together plus one in period 6: the
	// period-5 pair collapses to its higher-confidence member.
	locs := []Location{
		report(5, 1735690000, 37.7749, -122.4194, 7),
		report(5, 1735690120, 37.77499, -122.4194, 3),
		report(6, 1735690900, 37.7749, -122.4194, 5),
	}

	out := Dedupe(locs, DefaultDedupeRadius)

	require.Len(t, out, 2)
	require.Equal(t, int64(5), out[0].Counter)
	require.Equal(t, 7, out[0].Confidence)
	require.Equal(t, int64(6), out[1].Counter)
}

func TestDedupe_KeepsKilometerApartReports(t *testing.T) {
	// Roughly a kilometer apart in the same period: never merged.
	locs := []Location{
		report(5, 1735690000, 37.7749, -122.4194, 40),
		report(5, 1735690060, 37.7839, -122.4194, 90),
	}

	out := Dedupe(locs, DefaultDedupeRadius)
	require.Len(t, out, 2)
}

func TestDedupe_SeparatesCounters(t *testing.T) {
	// Same spot across two rotation periods stays two points.
	locs := []Location{
		report(6, 1735690900, 37.7749, -122.4194, 40),
		report(5, 1735690000, 37.7749, -122.4194, 90),
	}

	out := Dedupe(locs, DefaultDedupeRadius)

	require.Len(t, out, 2)
	require.Equal(t, int64(5), out[0].Counter)
	require.Equal(t, int64(6), out[1].Counter)
}

func TestDedupe_BucketsUncounteredByTimestamp(t *testing.T) {
	mk := func(ts int64, lat float64, acc float64) Location {
		l := Location{Lat: lat, Lon: -122.4194, Accuracy: acc}
		l.Stamp(ts)
		return l
	}
	locs := []Location{
		// Same 15-minute bucket, ten meters apart: merged.
		mk(1735690000, 37.7749, 12.5),
		mk(1735690060, 37.77499, 3),
		// Next bucket, same spot: kept.
		mk(1735690900, 37.7749, 5),
	}

	out := Dedupe(locs, DefaultDedupeRadius)

	require.Len(t, out, 2)
	require.Equal(t, int64(1735690000), out[0].Timestamp)
	require.Equal(t, int64(1735690900), out[1].Timestamp)
}

func TestDedupe_SortsByTimestamp(t *testing.T) {
	locs := []Location{
		report(7, 1735691800, 37.80, -122.40, 10),
		report(5, 1735690000, 37.77, -122.42, 10),
		report(6, 1735690900, 37.78, -122.41, 10),
	}

	out := Dedupe(locs, DefaultDedupeRadius)

	require.Len(t, out, 3)
	for i := 1; i < len(out); i++ {
		require.LessOrEqual(t, out[i-1].Timestamp, out[i].Timestamp)
	}
}

func TestDedupe_Empty(t *testing.T) {
	require.Empty(t, Dedupe(nil, DefaultDedupeRadius))
}
