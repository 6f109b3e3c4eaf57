package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/Enter-tainer/gps-tracker/reports"
)

// ListFilter narrows a List call. Zero values mean "no constraint".
type ListFilter struct {
	Since  int64
	Source reports.Source
	Limit  int
}

// Store persists decrypted track points. Save is idempotent: points already
// stored are skipped and the returned count covers new points only.
type Store interface {
	Save(ctx context.Context, locs []reports.Location) (int, error)
	List(ctx context.Context, filter ListFilter) ([]reports.Location, error)
	Latest(ctx context.Context, source reports.Source) (*reports.Location, error)
	Devices(ctx context.Context) ([]DeviceSummary, error)
	Close() error
}

// fingerprint identifies a stored point. The counter participates so
// same-spot sightings in adjacent rotation periods stay distinct rows.
func fingerprint(l *reports.Location) string {
	h := sha3.New256()
	fmt.Fprintf(h, "%s|%d|%d|%d|%d",
		l.Source, l.Timestamp,
		int64(math.Round(l.Lat*1e7)), int64(math.Round(l.Lon*1e7)),
		l.Counter)
	return hex.EncodeToString(h.Sum(nil))
}

// InMemoryStore implements Store without a database. Useful for tests and
// one-off runs where persistence across restarts does not matter.
type InMemoryStore struct {
	mu     sync.RWMutex
	points map[string]reports.Location
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{points: make(map[string]reports.Location)}
}

// Save stores the new points and reports how many were not seen before.
func (s *InMemoryStore) Save(ctx context.Context, locs []reports.Location) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := 0
	for _, loc := range locs {
		fp := fingerprint(&loc)
		if _, exists := s.points[fp]; exists {
			continue
		}
		s.points[fp] = loc
		stored++
	}
	return stored, nil
}

// List returns matching points sorted by timestamp.
func (s *InMemoryStore) List(ctx context.Context, filter ListFilter) ([]reports.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]reports.Location, 0, len(s.points))
	for _, loc := range s.points {
		if loc.Timestamp < filter.Since {
			continue
		}
		if filter.Source != "" && loc.Source != filter.Source {
			continue
		}
		result = append(result, loc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp < result[j].Timestamp })

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Latest returns the most recent point for the source, or nil when the
// store holds none. An empty source matches any.
func (s *InMemoryStore) Latest(ctx context.Context, source reports.Source) (*reports.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *reports.Location
	for _, loc := range s.points {
		if source != "" && loc.Source != source {
			continue
		}
		if latest == nil || loc.Timestamp > latest.Timestamp {
			l := loc
			latest = &l
		}
	}
	return latest, nil
}

// Devices summarizes the devices seen in the store, most recent first.
func (s *InMemoryStore) Devices(ctx context.Context) ([]DeviceSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type deviceKey struct {
		source reports.Source
		name   string
	}
	byDevice := make(map[deviceKey]*DeviceSummary)
	for _, loc := range s.points {
		key := deviceKey{source: loc.Source, name: loc.DeviceName}
		summary, ok := byDevice[key]
		if !ok {
			summary = &DeviceSummary{Source: loc.Source, Name: loc.DeviceName}
			byDevice[key] = summary
		}
		summary.Count++
		if loc.Timestamp > summary.LastSeen {
			summary.LastSeen = loc.Timestamp
		}
	}

	result := make([]DeviceSummary, 0, len(byDevice))
	for _, summary := range byDevice {
		result = append(result, *summary)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LastSeen > result[j].LastSeen })
	return result, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
