package reports

import (
	"math"
	"sort"
)

// DefaultDedupeRadius is the merge radius in meters used when deduplicating
// reports for the same rotation period.
const DefaultDedupeRadius = 50.0

const earthRadiusM = 6371000

// Haversine returns the great-circle distance between two points in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Dedupe merges reports that fall within radiusM meters of each other during
// the same rotation period, keeping the highest-confidence report of each
// cluster. Distinct locations within a period are preserved. Reports without
// a counter are grouped by 15-minute timestamp bucket. The result is sorted
// by timestamp.
func Dedupe(locs []Location, radiusM float64) []Location {
	byPeriod := make(map[int64][]Location)
	for _, l := range locs {
		key := l.Counter
		if key == 0 {
			key = l.Timestamp / 900
		}
		byPeriod[key] = append(byPeriod[key], l)
	}

	keys := make([]int64, 0, len(byPeriod))
	for k := range byPeriod {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var result []Location
	for _, k := range keys {
		group := byPeriod[k]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Confidence > group[j].Confidence
		})

		var clusters [][]Location
		for _, l := range group {
			merged := false
			for i, cluster := range clusters {
				ref := cluster[0]
				if Haversine(ref.Lat, ref.Lon, l.Lat, l.Lon) < radiusM {
					clusters[i] = append(cluster, l)
					merged = true
					break
				}
			}
			if !merged {
				clusters = append(clusters, []Location{l})
			}
		}

		// Groups are confidence-sorted, so the first member of each
		// cluster is its representative.
		for _, cluster := range clusters {
			result = append(result, cluster[0])
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})
	return result
}
