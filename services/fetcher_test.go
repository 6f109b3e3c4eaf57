package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Enter-tainer/gps-tracker/findmy"
	"github.com/Enter-tainer/gps-tracker/fmdn"
	"github.com/Enter-tainer/gps-tracker/reports"
	"github.com/Enter-tainer/gps-tracker/testutil"
)

// newAppleGateway serves the sealed payloads registered for specific hashed
// key ids, empty result sets for everything else.
func newAppleGateway(t *testing.T, payloads map[string][]byte) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req fetchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var results []RawReport
		for _, id := range req.Search[0].IDs {
			if sealed, ok := payloads[id]; ok {
				results = append(results, RawReport{
					ID:      id,
					Payload: base64.StdEncoding.EncodeToString(sealed),
				})
			}
		}
		json.NewEncoder(w).Encode(&fetchResponse{Results: results})
	}))
}

func newTestAppleClient(t *testing.T, anisetteURL, gatewayURL string) *AppleClient {
	t.Helper()

	client, err := NewAppleClient(&AppleConfig{
		Auth:            &AppleAuth{DSID: "12345", SearchPartyToken: "token"},
		AnisetteURL:     anisetteURL,
		GatewayURL:      gatewayURL,
		RequestInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

func newTestGoogleClient(t *testing.T, novaURL string) *GoogleClient {
	t.Helper()

	client, err := NewGoogleClient(&GoogleConfig{
		TokenCachePath: writeTokenCache(t, &TokenCache{ADMToken: "adm-token"}),
		NovaURL:        novaURL,
	})
	require.NoError(t, err)
	return client
}

func TestNewFetcher_RequiresSource(t *testing.T) {
	_, err := NewFetcher(&FetcherConfig{})
	require.ErrorIs(t, err, ErrNoKeyMaterial)

	// Key material without a client is not enough.
	_, err = NewFetcher(&FetcherConfig{Accessory: testutil.TestAccessory(0)})
	require.ErrorIs(t, err, ErrNoKeyMaterial)
}

func TestFetcher_FetchMergesSources(t *testing.T) {
	now := time.Now().Unix()

	acc := testutil.TestAccessory(now - 3600)
	keys, err := findmy.DeriveKeys(acc.MasterKey, acc.SymmetricKey, 0, findmy.CounterAt(now, acc.Epoch))
	require.NoError(t, err)
	target := keys[len(keys)-1]

	sealed, err := testutil.SealAppleReport(target.X,
		testutil.WithAppleCoordinates(37.7749, -122.4194),
		testutil.WithAppleTimestamp(now-60),
		testutil.WithAppleConfidence(77),
	)
	require.NoError(t, err)

	anisette := newAnisetteServer(t)
	defer anisette.Close()
	gateway := newAppleGateway(t, map[string][]byte{target.HashedAdvKey(): sealed})
	defer gateway.Close()

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

	result, err := fetcher.Fetch(context.Background(), 24)
	require.NoError(t, err)
	require.Equal(t, 2, result.Raw)
	require.Zero(t, result.FailedBatches)
	require.Len(t, result.Locations, 2)

	bySource := make(map[reports.Source]reports.Location)
	for _, loc := range result.Locations {
		bySource[loc.Source] = loc
	}

	apple := bySource[reports.SourceApple]
	require.InDelta(t, 37.7749, apple.Lat, 1e-6)
	require.InDelta(t, -122.4194, apple.Lon, 1e-6)
	require.Equal(t, 77, apple.Confidence)
	require.Equal(t, target.Counter, apple.Counter)
	require.Contains(t, apple.MapsURL, "maps.google.com/maps?q=")

	google := bySource[reports.SourceGoogle]
	require.InDelta(t, 48.8584, google.Lat, 1e-6)
	require.Equal(t, "Pixel Tag", google.DeviceName)
}

func TestFetcher_PartialFailureKeepsOtherSource(t *testing.T) {
	// Anisette down kills the whole Apple path.
	anisette := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer anisette.Close()

	now := time.Now().Unix()
	ident := testutil.TestIdentity()
	sealed, listTS, err := testutil.SealGoogleReport(ident.EIK, testutil.WithGoogleTimestamp(now))
	require.NoError(t, err)

	nova := newNovaServer(t, testutil.BuildDeviceListResponse(fmdn.Device{
		Name:         "Pixel Tag",
		RawLocations: [][]byte{sealed},
		Timestamps:   []int64{listTS},
	}))
	defer nova.Close()

	fetcher, err := NewFetcher(&FetcherConfig{
		Accessory: testutil.TestAccessory(now - 3600),
		Identity:  ident,
		Apple:     newTestAppleClient(t, anisette.URL, "http://127.0.0.1:1"),
		Google:    newTestGoogleClient(t, nova.URL),
	})
	require.NoError(t, err)

	result, err := fetcher.Fetch(context.Background(), 24)
	require.NoError(t, err)
	require.Len(t, result.Locations, 1)
	require.Equal(t, reports.SourceGoogle, result.Locations[0].Source)
}

func TestFetcher_AllSourcesFailing(t *testing.T) {
	nova := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
	}))
	defer nova.Close()

	fetcher, err := NewFetcher(&FetcherConfig{
		Identity: testutil.TestIdentity(),
		Google:   newTestGoogleClient(t, nova.URL),
	})
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background(), 24)
	require.ErrorIs(t, err, ErrRemoteUnavailable)
}

func TestFetcher_DropsOutOfRangePoints(t *testing.T) {
	now := time.Now().Unix()
	ident := testutil.TestIdentity()

	sealed, listTS, err := testutil.SealGoogleReport(ident.EIK,
		testutil.WithGoogleCoordinates(95, 10),
		testutil.WithGoogleTimestamp(now),
	)
	require.NoError(t, err)

	nova := newNovaServer(t, testutil.BuildDeviceListResponse(fmdn.Device{
		RawLocations: [][]byte{sealed},
		Timestamps:   []int64{listTS},
	}))
	defer nova.Close()

	fetcher, err := NewFetcher(&FetcherConfig{
		Identity: ident,
		Google:   newTestGoogleClient(t, nova.URL),
	})
	require.NoError(t, err)

	result, err := fetcher.Fetch(context.Background(), 24)
	require.NoError(t, err)
	require.Equal(t, 1, result.Raw)
	require.Empty(t, result.Locations)
}

func TestFetcher_DedupesWithinPeriod(t *testing.T) {
	now := time.Now().Unix()
	ident := testutil.TestIdentity()

	// Two sightings a couple of meters apart in the same period.
	first, firstTS, err := testutil.SealGoogleReport(ident.EIK,
		testutil.WithGoogleCoordinates(37.77490, -122.41940),
		testutil.WithGoogleTimestamp(now),
	)
	require.NoError(t, err)
	second, secondTS, err := testutil.SealGoogleReport(ident.EIK,
		testutil.WithGoogleCoordinates(37.77492, -122.41941),
		testutil.WithGoogleTimestamp(now),
	)
	require.NoError(t, err)

	nova := newNovaServer(t, testutil.BuildDeviceListResponse(fmdn.Device{
		Name:         "Pixel Tag",
		RawLocations: [][]byte{first, second},
		Timestamps:   []int64{firstTS, secondTS},
	}))
	defer nova.Close()

	fetcher, err := NewFetcher(&FetcherConfig{
		Identity: ident,
		Google:   newTestGoogleClient(t, nova.URL),
	})
	require.NoError(t, err)

	result, err := fetcher.Fetch(context.Background(), 24)
	require.NoError(t, err)
	require.Equal(t, 2, result.Raw)
	require.Len(t, result.Locations, 1)
}

func TestFetcher_FutureEpochReturnsEmpty(t *testing.T) {
	acc := testutil.TestAccessory(time.Now().Unix() + 7200)

	// The window ends before the epoch, so no request goes out and the
	// unreachable endpoints never matter.
	fetcher, err := NewFetcher(&FetcherConfig{
		Accessory: acc,
		Apple:     newTestAppleClient(t, "http://127.0.0.1:1", "http://127.0.0.1:1"),
	})
	require.NoError(t, err)

	result, err := fetcher.FetchApple(context.Background(), 24)
	require.NoError(t, err)
	require.Zero(t, result.Raw)
	require.Empty(t, result.Locations)
}
