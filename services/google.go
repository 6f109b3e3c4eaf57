package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Enter-tainer/gps-tracker/fmdn"
	"github.com/Enter-tainer/gps-tracker/metrics"
	"github.com/Enter-tainer/gps-tracker/reports"
	"github.com/Enter-tainer/gps-tracker/wire"
)

const (
	novaListDevicesURL = "https://android.googleapis.com/nova/nbe_list_devices"
	spotServiceURL     = "https://spot-pa.googleapis.com/google.internal.spot.v1.SpotService"

	// User agents the upstream endpoints expect. Nova sees the device
	// manager app, Spot sees the play services gRPC stack.
	novaUserAgent = "fmd/20006320; gzip"
	spotUserAgent = "com.google.android.gms/244433022 grpc-java-cronet/1.69.0-SNAPSHOT"
)

// GoogleConfig configures the device network client.
type GoogleConfig struct {
	// TokenCachePath points at the provisioning token cache. Empty means
	// the conventional location under the user's config directory.
	TokenCachePath string

	NovaURL        string
	SpotURL        string
	RequestTimeout time.Duration

	Log *slog.Logger
}

// GoogleClient lists tracked devices and downloads their sealed location
// reports from the device network.
type GoogleClient struct {
	cfg        *GoogleConfig
	tokens     *TokenCache
	httpClient *http.Client
	log        *slog.Logger
}

// NewGoogleClient creates a device network client. The token cache must
// exist and carry an adm_token; there is no interactive login here.
func NewGoogleClient(cfg *GoogleConfig) (*GoogleClient, error) {
	if cfg.TokenCachePath == "" {
		cfg.TokenCachePath = DefaultTokenCachePath()
	}
	if cfg.NovaURL == "" {
		cfg.NovaURL = novaListDevicesURL
	}
	if cfg.SpotURL == "" {
		cfg.SpotURL = spotServiceURL
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	tokens, err := LoadTokenCache(cfg.TokenCachePath)
	if err != nil {
		return nil, err
	}
	if _, err := tokens.RequireADM(); err != nil {
		return nil, err
	}

	return &GoogleClient{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		log:        cfg.Log,
	}, nil
}

// ListDevices downloads and parses the owner's device list.
func (c *GoogleClient) ListDevices(ctx context.Context) ([]fmdn.Device, error) {
	token, err := c.tokens.RequireADM()
	if err != nil {
		return nil, err
	}

	// Request message: {1: {1: 2, 3: request uuid}}.
	var inner []byte
	inner = wire.AppendVarintField(inner, 1, 2)
	inner = wire.AppendStringField(inner, 3, uuid.NewString())
	body := wire.AppendBytesField(nil, 1, inner)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.NovaURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("User-Agent", novaUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return nil, fmt.Errorf("%w: device list returned %d: %s", ErrRemoteUnavailable, resp.StatusCode, respBody)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return fmdn.ParseDeviceList(raw), nil
}

// FetchLocations lists devices and opens every sealed report the identity
// key can decrypt. Reports that fail to open are skipped; devices whose
// report list lacks a timestamp fall back to the current time. The second
// return value is the number of sealed reports seen before decryption.
func (c *GoogleClient) FetchLocations(ctx context.Context, eik fmdn.IdentityKey) ([]reports.Location, int, error) {
	devices, err := c.ListDevices(ctx)
	metrics.RecordFetch(string(reports.SourceGoogle), err)
	if err != nil {
		return nil, 0, err
	}

	var (
		locations []reports.Location
		sealed    int
	)
	for _, device := range devices {
		name := device.Name
		if name == "" {
			name = "Unknown"
		}

		sealed += len(device.RawLocations)
		metrics.RecordReportsFetched(string(reports.SourceGoogle), len(device.RawLocations))
		for i, raw := range device.RawLocations {
			listTS := time.Now().Unix()
			if i < len(device.Timestamps) {
				listTS = device.Timestamps[i]
			}

			loc, err := fmdn.DecryptLocationReport(eik, raw, listTS)
			if err != nil {
				metrics.RecordDecryptFailure(string(reports.SourceGoogle))
				c.log.Debug("skipping undecryptable report", "device", name, "err", err)
				continue
			}
			metrics.RecordReportDecrypted(string(reports.SourceGoogle))

			loc.DeviceName = name
			locations = append(locations, *loc)
		}
	}
	return locations, sealed, nil
}

// InvokeSpot sends one unary gRPC request to the Spot service over plain
// HTTP. The response is unframed and returned as raw message bytes.
func (c *GoogleClient) InvokeSpot(ctx context.Context, method string, payload []byte) ([]byte, error) {
	token, err := c.tokens.RequireSpot()
	if err != nil {
		return nil, err
	}

	url := c.cfg.SpotURL + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(wire.Frame(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", spotUserAgent)
	req.Header.Set("Content-Type", "application/grpc")
	req.Header.Set("Te", "trailers")
	req.Header.Set("Grpc-Accept-Encoding", "gzip")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrRemoteUnavailable, method, resp.StatusCode, respBody)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Trailers are only populated once the body has been read.
	if status := resp.Trailer.Get("Grpc-Status"); status != "" && status != "0" {
		return nil, fmt.Errorf("%s failed with grpc-status %s: %s", method, status, resp.Trailer.Get("Grpc-Message"))
	}

	return wire.Unframe(body)
}
