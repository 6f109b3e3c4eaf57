package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/Enter-tainer/gps-tracker/fmdn"
	"github.com/Enter-tainer/gps-tracker/testutil"
)

// setupTestPoller wires a poller to a single-device nova fixture and an
// in-memory store. The returned counter tracks upstream list requests.
func setupTestPoller(t *testing.T) (*Poller, *InMemoryStore, *atomic.Int64) {
	t.Helper()

	ident := testutil.TestIdentity()
	sealed, listTS, err := testutil.SealGoogleReport(ident.EIK,
		testutil.WithGoogleTimestamp(time.Now().Unix()),
	)
	require.NoError(t, err)

	response := testutil.BuildDeviceListResponse(fmdn.Device{
		Name:         "Pixel Tag",
		RawLocations: [][]byte{sealed},
		Timestamps:   []int64{listTS},
	})

	listCalls := atomic.NewInt64(0)
	nova := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		listCalls.Inc()
		w.Write(response)
	}))
	t.Cleanup(nova.Close)

	fetcher, err := NewFetcher(&FetcherConfig{
		Identity: ident,
		Google:   newTestGoogleClient(t, nova.URL),
	})
	require.NoError(t, err)

	store := NewInMemoryStore()
	poller := NewPoller(&PollerConfig{
		Fetcher: fetcher,
		Store:   store,

		// Long enough that only the immediate poll and explicit
		// requests run during the test.
		Interval: time.Hour,
	})
	return poller, store, listCalls
}

func TestPoller_RunStoresPoints(t *testing.T) {
	poller, store, _ := setupTestPoller(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		poller.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		locs, err := store.List(context.Background(), ListFilter{})
		return err == nil && len(locs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestPoller_RequestPoll(t *testing.T) {
	poller, _, listCalls := setupTestPoller(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		poller.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return listCalls.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	poller.RequestPoll()
	require.Eventually(t, func() bool {
		return listCalls.Load() == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestPoller_RequestPollDoesNotBlock(t *testing.T) {
	poller, _, _ := setupTestPoller(t)

	// Nothing is draining the channel; extra requests must be dropped.
	poller.RequestPoll()
	poller.RequestPoll()
	poller.RequestPoll()
}
