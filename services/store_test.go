package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Enter-tainer/gps-tracker/reports"
)

func storedLocation(source reports.Source, device string, ts int64, lat, lon float64) reports.Location {
	loc := reports.Location{Lat: lat, Lon: lon, Source: source, DeviceName: device}
	loc.Stamp(ts)
	return loc
}

func TestInMemoryStore_SaveIsIdempotent(t *testing.T) {
	store := NewInMemoryStore()
	defer store.Close()

	locs := []reports.Location{
		storedLocation(reports.SourceApple, "", 1000, 37.7749, -122.4194),
		storedLocation(reports.SourceGoogle, "Pixel Tag", 2000, 48.8584, 2.2945),
	}

	stored, err := store.Save(context.Background(), locs)
	require.NoError(t, err)
	require.Equal(t, 2, stored)

	stored, err = store.Save(context.Background(), locs)
	require.NoError(t, err)
	require.Zero(t, stored)

	all, err := store.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, int64(1000), all[0].Timestamp)
	require.Equal(t, int64(2000), all[1].Timestamp)
}

func TestInMemoryStore_ListFilters(t *testing.T) {
	store := NewInMemoryStore()
	defer store.Close()

	_, err := store.Save(context.Background(), []reports.Location{
		storedLocation(reports.SourceApple, "", 1000, 37.7749, -122.4194),
		storedLocation(reports.SourceApple, "", 2000, 37.7750, -122.4195),
		storedLocation(reports.SourceGoogle, "Pixel Tag", 3000, 48.8584, 2.2945),
	})
	require.NoError(t, err)

	since, err := store.List(context.Background(), ListFilter{Since: 1500})
	require.NoError(t, err)
	require.Len(t, since, 2)

	apple, err := store.List(context.Background(), ListFilter{Source: reports.SourceApple})
	require.NoError(t, err)
	require.Len(t, apple, 2)

	limited, err := store.List(context.Background(), ListFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, int64(1000), limited[0].Timestamp)
}

func TestInMemoryStore_Latest(t *testing.T) {
	store := NewInMemoryStore()
	defer store.Close()

	latest, err := store.Latest(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, latest)

	_, err = store.Save(context.Background(), []reports.Location{
		storedLocation(reports.SourceApple, "", 1000, 37.7749, -122.4194),
		storedLocation(reports.SourceApple, "", 2000, 37.7750, -122.4195),
		storedLocation(reports.SourceGoogle, "Pixel Tag", 3000, 48.8584, 2.2945),
	})
	require.NoError(t, err)

	latest, err = store.Latest(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, int64(3000), latest.Timestamp)

	latest, err = store.Latest(context.Background(), reports.SourceApple)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, int64(2000), latest.Timestamp)
}

func TestInMemoryStore_Devices(t *testing.T) {
	store := NewInMemoryStore()
	defer store.Close()

	_, err := store.Save(context.Background(), []reports.Location{
		storedLocation(reports.SourceGoogle, "Pixel Tag", 1000, 48.8584, 2.2945),
		storedLocation(reports.SourceGoogle, "Pixel Tag", 2000, 48.8585, 2.2946),
		storedLocation(reports.SourceApple, "", 3000, 37.7749, -122.4194),
	})
	require.NoError(t, err)

	devices, err := store.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)

	// Most recently seen first.
	require.Equal(t, reports.SourceApple, devices[0].Source)
	require.Equal(t, int64(3000), devices[0].LastSeen)
	require.Equal(t, 1, devices[0].Count)

	require.Equal(t, "Pixel Tag", devices[1].Name)
	require.Equal(t, 2, devices[1].Count)
	require.Equal(t, int64(2000), devices[1].LastSeen)
}

func TestFingerprint_CounterKeepsPeriodsDistinct(t *testing.T) {
	a := storedLocation(reports.SourceApple, "", 1000, 37.7749, -122.4194)
	a.Counter = 5

	b := a
	require.Equal(t, fingerprint(&a), fingerprint(&b))

	b.Counter = 6
	require.NotEqual(t, fingerprint(&a), fingerprint(&b))
}
