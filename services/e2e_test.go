package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/Enter-tainer/gps-tracker/findmy"
	"github.com/Enter-tainer/gps-tracker/fmdn"
	"github.com/Enter-tainer/gps-tracker/testutil"
)

// getAPI fetches a JSON document from the API over HTTP.
func getAPI(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// startTestAPI mounts the read-only API on a real HTTP listener.
func startTestAPI(t *testing.T, cfg *APIConfig) *httptest.Server {
	t.Helper()

	api := NewAPIService(cfg)
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

// TestE2E_PollAndServe runs the whole owner pipeline: sealed reports on both
// upstream networks, a poller persisting decrypted points into a store, and
// the read-only API serving them over HTTP.
func TestE2E_PollAndServe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}

	now := time.Now().Unix()

	// A sealed Apple report for the accessory's current rotation period.
	acc := testutil.TestAccessory(now - 3600)
	keys, err := findmy.DeriveKeys(acc.MasterKey, acc.SymmetricKey, 0, findmy.CounterAt(now, acc.Epoch))
	require.NoError(t, err)
	target := keys[len(keys)-1]

	appleSealed, err := testutil.SealAppleReport(target.X,
		testutil.WithAppleCoordinates(37.7749, -122.4194),
		testutil.WithAppleTimestamp(now-60),
		testutil.WithAppleConfidence(80),
	)
	require.NoError(t, err)

	anisette := newAnisetteServer(t)
	defer anisette.Close()
	gateway := newAppleGateway(t, map[string][]byte{target.HashedAdvKey(): appleSealed})
	defer gateway.Close()

	// A sealed Google report listed by the nova fixture.
	ident := testutil.TestIdentity()
	googleSealed, listTS, err := testutil.SealGoogleReport(ident.EIK,
		testutil.WithGoogleCoordinates(48.8584, 2.2945),
		testutil.WithGoogleTimestamp(now-120),
	)
	require.NoError(t, err)

	nova := newNovaServer(t, testutil.BuildDeviceListResponse(fmdn.Device{
		Name:         "Pixel Tag",
		RawLocations: [][]byte{googleSealed},
		Timestamps:   []int64{listTS},
	}))
	defer nova.Close()

	fetcher, err := NewFetcher(&FetcherConfig{
		Accessory: acc,
		Identity:  ident,
		Apple:     newTestAppleClient(t, anisette.URL, gateway.URL),
		Google:    newTestGoogleClient(t, nova.URL),
	})
	require.NoError(t, err)

	store := NewInMemoryStore()
	poller := NewPoller(&PollerConfig{
		Fetcher:  fetcher,
		Store:    store,
		Interval: time.Hour,
	})

	ts := startTestAPI(t, &APIConfig{
		Store:     store,
		Accessory: acc,
		Identity:  ident,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		poller.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// The immediate poll on startup decrypts one point per network.
	var locs LocationsResponse
	require.Eventually(t, func() bool {
		if err := getAPI(ts.URL+"/api/v1/locations", &locs); err != nil {
			return false
		}
		return locs.Count == 2
	}, 5*time.Second, 25*time.Millisecond, "poller should persist a point per network")

	require.NoError(t, getAPI(ts.URL+"/api/v1/locations?source=apple", &locs))
	require.Equal(t, 1, locs.Count)
	require.InDelta(t, 37.7749, locs.Locations[0].Lat, 1e-6)
	require.InDelta(t, -122.4194, locs.Locations[0].Lon, 1e-6)
	require.Equal(t, 80, locs.Locations[0].Confidence)

	require.NoError(t, getAPI(ts.URL+"/api/v1/locations?source=google", &locs))
	require.Equal(t, 1, locs.Count)
	require.Equal(t, "Pixel Tag", locs.Locations[0].DeviceName)

	// Both networks show up as devices, the named tag and the unnamed
	// accessory.
	var devices DevicesResponse
	require.NoError(t, getAPI(ts.URL+"/api/v1/devices", &devices))
	require.Len(t, devices.Devices, 2)

	names := make(map[string]int)
	for _, d := range devices.Devices {
		names[d.Name] = d.Count
	}
	require.Equal(t, 1, names["Pixel Tag"])

	// Upcoming identifiers for both schemes come from the same API.
	var keyResp KeysResponse
	require.NoError(t, getAPI(ts.URL+"/api/v1/keys?scheme=apple&count=2", &keyResp))
	require.Len(t, keyResp.Keys, 2)
	require.Len(t, keyResp.Keys[0].HashedAdvKey, 44)

	require.NoError(t, getAPI(ts.URL+"/api/v1/keys?scheme=google&count=2", &keyResp))
	require.Len(t, keyResp.Keys, 2)
	require.Len(t, keyResp.Keys[0].EphemeralID, 40)
}

// TestE2E_RepollAddsNoDuplicates verifies a second poll over unchanged
// upstream data leaves the store as it was.
func TestE2E_RepollAddsNoDuplicates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}

	poller, store, listCalls := setupTestPoller(t)
	ts := startTestAPI(t, &APIConfig{Store: store, Identity: testutil.TestIdentity()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		poller.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	var locs LocationsResponse
	require.Eventually(t, func() bool {
		return getAPI(ts.URL+"/api/v1/locations", &locs) == nil && locs.Count == 1
	}, 5*time.Second, 25*time.Millisecond)

	poller.RequestPoll()
	require.Eventually(t, func() bool {
		return listCalls.Load() == 2
	}, 5*time.Second, 25*time.Millisecond)

	require.NoError(t, getAPI(ts.URL+"/api/v1/locations", &locs))
	require.Equal(t, 1, locs.Count)
}
