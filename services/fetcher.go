package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Enter-tainer/gps-tracker/findmy"
	"github.com/Enter-tainer/gps-tracker/fmdn"
	"github.com/Enter-tainer/gps-tracker/metrics"
	"github.com/Enter-tainer/gps-tracker/reports"
)

// FetcherConfig wires key material to the upstream clients. A source is
// enabled when both its key material and its client are set.
type FetcherConfig struct {
	Accessory *findmy.Accessory
	Identity  *fmdn.Identity

	Apple  *AppleClient
	Google *GoogleClient

	// DedupeRadius in meters; zero means reports.DefaultDedupeRadius.
	DedupeRadius float64

	Log *slog.Logger
}

// Result is the output of one fetch pass.
type Result struct {
	// Locations are the decrypted points. After Fetch they are also
	// range-filtered and deduplicated.
	Locations []reports.Location

	// Raw counts sealed reports pulled from upstream, including ones
	// that failed to decrypt.
	Raw int

	// FailedBatches counts gateway batches that were skipped.
	FailedBatches int
}

func (r *Result) merge(other *Result) {
	r.Locations = append(r.Locations, other.Locations...)
	r.Raw += other.Raw
	r.FailedBatches += other.FailedBatches
}

// Fetcher runs the full pipeline for both location networks: derive the
// identifiers active in the window, download sealed reports, decrypt, and
// clean up the point set.
type Fetcher struct {
	cfg *FetcherConfig
	log *slog.Logger
}

// NewFetcher validates that at least one source is fully configured.
func NewFetcher(cfg *FetcherConfig) (*Fetcher, error) {
	appleEnabled := cfg.Accessory != nil && cfg.Apple != nil
	googleEnabled := cfg.Identity != nil && cfg.Google != nil
	if !appleEnabled && !googleEnabled {
		return nil, fmt.Errorf("%w: need an accessory with an apple client or an identity with a google client", ErrNoKeyMaterial)
	}
	if cfg.DedupeRadius == 0 {
		cfg.DedupeRadius = reports.DefaultDedupeRadius
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Fetcher{cfg: cfg, log: cfg.Log}, nil
}

// Fetch pulls from every enabled source, drops points with out-of-range
// coordinates, and deduplicates per rotation period. One source failing does
// not lose the other's points; an error is returned only when every enabled
// source failed.
func (f *Fetcher) Fetch(ctx context.Context, hours int) (*Result, error) {
	combined := &Result{}
	var errs []error
	sources := 0

	if f.cfg.Accessory != nil && f.cfg.Apple != nil {
		sources++
		res, err := f.FetchApple(ctx, hours)
		if err != nil {
			f.log.Error("apple fetch failed", "err", err)
			errs = append(errs, fmt.Errorf("apple: %w", err))
		} else {
			combined.merge(res)
		}
	}

	if f.cfg.Identity != nil && f.cfg.Google != nil {
		sources++
		res, err := f.FetchGoogle(ctx)
		if err != nil {
			f.log.Error("google fetch failed", "err", err)
			errs = append(errs, fmt.Errorf("google: %w", err))
		} else {
			combined.merge(res)
		}
	}

	if len(errs) == sources {
		return nil, errors.Join(errs...)
	}

	valid := combined.Locations[:0]
	for _, loc := range combined.Locations {
		if loc.Valid() {
			valid = append(valid, loc)
		} else {
			f.log.Warn("dropping out-of-range point", "lat", loc.Lat, "lon", loc.Lon, "source", loc.Source)
		}
	}
	combined.Locations = reports.Dedupe(valid, f.cfg.DedupeRadius)
	return combined, nil
}

// FetchApple derives every key active in the last hours, downloads their
// sealed reports, and decrypts them. The window start is clamped to the
// accessory epoch so counters never go negative.
func (f *Fetcher) FetchApple(ctx context.Context, hours int) (*Result, error) {
	acc := f.cfg.Accessory
	if acc == nil || f.cfg.Apple == nil {
		return nil, fmt.Errorf("%w: apple accessory and client", ErrNoKeyMaterial)
	}

	now := time.Now().Unix()
	start := now - int64(hours)*3600
	if start < acc.Epoch {
		start = acc.Epoch
	}
	from := findmy.CounterAt(start, acc.Epoch)
	to := findmy.CounterAt(now, acc.Epoch)
	if to < from {
		// Accessory epoch lies in the future; nothing can have reported yet.
		return &Result{}, nil
	}

	keys, err := findmy.DeriveKeys(acc.MasterKey, acc.SymmetricKey, from, to)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	byID := make(map[string]*findmy.DerivedKey, len(keys))
	for _, key := range keys {
		id := key.HashedAdvKey()
		ids = append(ids, id)
		byID[id] = key
	}
	f.log.Info("querying report gateway", "keys", len(keys), "fromCounter", from, "toCounter", to)

	raw, failed, err := f.cfg.Apple.FetchRawReports(ctx, ids, hours)
	if err != nil {
		return nil, err
	}

	res := &Result{Raw: len(raw), FailedBatches: failed}
	for _, report := range raw {
		key, ok := byID[report.ID]
		if !ok {
			continue
		}
		payload, err := base64.StdEncoding.DecodeString(report.Payload)
		if err != nil {
			metrics.RecordDecryptFailure(string(reports.SourceApple))
			continue
		}
		loc, err := findmy.DecryptReport(payload, key.D)
		if err != nil {
			metrics.RecordDecryptFailure(string(reports.SourceApple))
			f.log.Debug("skipping undecryptable report", "id", report.ID, "err", err)
			continue
		}
		metrics.RecordReportDecrypted(string(reports.SourceApple))

		loc.Counter = key.Counter
		loc.MapsURL = mapsURL(loc.Lat, loc.Lon)
		res.Locations = append(res.Locations, *loc)
	}
	return res, nil
}

// FetchGoogle downloads and decrypts every report in the owner's device
// list. The device network has no report window parameter, so this always
// returns whatever the list currently carries.
func (f *Fetcher) FetchGoogle(ctx context.Context) (*Result, error) {
	if f.cfg.Identity == nil || f.cfg.Google == nil {
		return nil, fmt.Errorf("%w: google identity and client", ErrNoKeyMaterial)
	}

	locations, sealed, err := f.cfg.Google.FetchLocations(ctx, f.cfg.Identity.EIK)
	if err != nil {
		return nil, err
	}
	return &Result{Locations: locations, Raw: sealed}, nil
}

func mapsURL(lat, lon float64) string {
	return fmt.Sprintf("https://maps.google.com/maps?q=%v,%v", lat, lon)
}
