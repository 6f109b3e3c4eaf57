package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/Enter-tainer/gps-tracker/metrics"
	"github.com/Enter-tainer/gps-tracker/reports"
)

const (
	appleGatewayURL    = "https://gateway.icloud.com/acsnservice/fetch"
	defaultAnisetteURL = "http://localhost:6969"

	// fetchBatchSize is the gateway's per-request id limit.
	fetchBatchSize = 10
)

// anisetteHeaderNames are the machine-data headers forwarded to the gateway.
// The anisette server returns a larger set; the rest is ignored.
var anisetteHeaderNames = []string{"X-Apple-I-MD", "X-Apple-I-MD-M"}

// AppleConfig configures the Find My gateway client.
type AppleConfig struct {
	Auth        *AppleAuth
	AnisetteURL string
	GatewayURL  string

	// RequestInterval paces gateway requests. Defaults to one second,
	// matching what the gateway tolerates without throttling.
	RequestInterval time.Duration
	RequestTimeout  time.Duration

	Log *slog.Logger
}

// AppleClient downloads sealed location reports from the Find My gateway.
type AppleClient struct {
	cfg        *AppleConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

// NewAppleClient creates a gateway client. The auth credentials are
// mandatory; everything else has defaults.
func NewAppleClient(cfg *AppleConfig) (*AppleClient, error) {
	if cfg.Auth == nil {
		return nil, fmt.Errorf("%w: apple auth credentials", ErrNoKeyMaterial)
	}
	if cfg.AnisetteURL == "" {
		cfg.AnisetteURL = defaultAnisetteURL
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = appleGatewayURL
	}
	if cfg.RequestInterval == 0 {
		cfg.RequestInterval = time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	return &AppleClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
		log:        cfg.Log,
	}, nil
}

// AnisetteHeaders fetches one-time machine data headers from the local
// anisette server. Without these the gateway rejects every request, so a
// failure here is returned rather than skipped.
func (c *AppleClient) AnisetteHeaders(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AnisetteURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anisette server at %s: %w", c.cfg.AnisetteURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: anisette server returned %d", ErrRemoteUnavailable, resp.StatusCode)
	}

	var all map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil, fmt.Errorf("decoding anisette response: %w", err)
	}

	headers := make(map[string]string, len(anisetteHeaderNames))
	for _, name := range anisetteHeaderNames {
		if v, ok := all[name]; ok {
			headers[name] = v
		}
	}
	return headers, nil
}

// FetchRawReports downloads the sealed reports published for ids within the
// last hours. IDs are sent in batches of ten; a failing batch is logged,
// counted, and skipped so one bad response does not lose the whole window.
func (c *AppleClient) FetchRawReports(ctx context.Context, ids []string, hours int) ([]RawReport, int, error) {
	headers, err := c.AnisetteHeaders(ctx)
	if err != nil {
		return nil, 0, err
	}

	now := time.Now()
	startDate := now.Add(-time.Duration(hours) * time.Hour).UnixMilli()
	endDate := now.UnixMilli()

	var (
		results []RawReport
		failed  int
	)
	for i := 0; i < len(ids); i += fetchBatchSize {
		batch := ids[i:min(i+fetchBatchSize, len(ids))]

		if err := c.limiter.Wait(ctx); err != nil {
			return results, failed, err
		}

		batchResults, err := c.fetchBatch(ctx, headers, batch, startDate, endDate)
		metrics.RecordFetch(string(reports.SourceApple), err)
		if err != nil {
			c.log.Warn("report fetch batch failed", "err", err, "ids", len(batch))
			failed++
			continue
		}
		results = append(results, batchResults...)
	}

	metrics.RecordReportsFetched(string(reports.SourceApple), len(results))
	return results, failed, nil
}

func (c *AppleClient) fetchBatch(ctx context.Context, headers map[string]string, ids []string, startDate, endDate int64) ([]RawReport, error) {
	body, err := json.Marshal(&fetchRequest{
		Search: []fetchQuery{{StartDate: startDate, EndDate: endDate, IDs: ids}},
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.cfg.Auth.DSID, c.cfg.Auth.SearchPartyToken)
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return nil, fmt.Errorf("%w: gateway returned %d: %s", ErrRemoteUnavailable, resp.StatusCode, respBody)
	}

	var fr fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("decoding gateway response: %w", err)
	}
	return fr.Results, nil
}
