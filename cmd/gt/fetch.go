package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/Enter-tainer/gps-tracker/cmd/common"
	"github.com/Enter-tainer/gps-tracker/findmy"
	"github.com/Enter-tainer/gps-tracker/fmdn"
	"github.com/Enter-tainer/gps-tracker/reports"
	"github.com/Enter-tainer/gps-tracker/services"
)

// runFetch queries Apple and/or Google, merges the results, and dedupes
// across sources. One network failing does not lose the other's points.
func runFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	var (
		source      string
		findmyKeys  string
		fmdnKeys    string
		hours       int
		authPath    string
		anisetteURL string
		tokenCache  string
		gpxPath     string
		output      string
	)
	fs.StringVar(&source, "source", "both", "Location source: apple, google, or both")
	fs.StringVar(&findmyKeys, "findmy-keys", "", "Apple Find My key material JSON file")
	fs.StringVar(&fmdnKeys, "fmdn-keys", "", "Google FMDN EIK JSON file")
	fs.IntVar(&hours, "H", 24, "Hours to look back")
	fs.IntVar(&hours, "hours", 24, "Hours to look back")
	fs.StringVar(&authPath, "auth", services.DefaultAuthPath(), "Apple auth.json path")
	fs.StringVar(&anisetteURL, "anisette-url", "", "Anisette v3 server URL")
	fs.StringVar(&tokenCache, "token-cache", services.DefaultTokenCachePath(), "Google token cache path")
	fs.StringVar(&gpxPath, "gpx", "", "Export results as GPX file")
	fs.StringVar(&output, "o", "", "Save results to JSON file")
	fs.StringVar(&output, "output", "", "Save results to JSON file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if source != "apple" && source != "google" && source != "both" {
		return fmt.Errorf("invalid source %q: must be apple, google, or both", source)
	}
	if findmyKeys == "" && fmdnKeys == "" {
		return errors.New("at least one of --findmy-keys and --fmdn-keys is required")
	}

	ctx := context.Background()
	var all []reports.Location

	if source == "apple" || source == "both" {
		if findmyKeys == "" {
			if source == "apple" {
				return errors.New("--findmy-keys is required for Apple source")
			}
		} else {
			fmt.Println("=== Fetching Apple Find My reports ===")
			locs, err := fetchAppleLeg(ctx, findmyKeys, authPath, anisetteURL, hours)
			switch {
			case errors.Is(err, errAuthNotFound):
				return err
			case err != nil:
				fmt.Fprintf(os.Stderr, "Apple fetch failed: %v\n", err)
			case len(locs) > 0:
				all = append(all, locs...)
				fmt.Fprintf(os.Stderr, "Apple: %d locations\n", len(locs))
			}
		}
	}

	if source == "google" || source == "both" {
		if fmdnKeys == "" {
			if source == "google" {
				return errors.New("--fmdn-keys is required for Google source")
			}
		} else {
			fmt.Println("\n=== Fetching Google FMDN reports ===")
			locs, err := fetchGoogleLeg(ctx, fmdnKeys, tokenCache)
			switch {
			case err != nil:
				fmt.Fprintf(os.Stderr, "Google fetch failed: %v\n", err)
			case len(locs) > 0:
				all = append(all, locs...)
				fmt.Fprintf(os.Stderr, "Google: %d locations\n", len(locs))
			}
		}
	}

	if len(all) == 0 {
		fmt.Println("\nNo location reports found from any source.")
		return nil
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp < all[j].Timestamp })
	deduped := reports.Dedupe(all, reports.DefaultDedupeRadius)

	fmt.Println("\n=== Combined Results ===")
	fmt.Printf("Total: %d raw -> %d deduped\n", len(all), len(deduped))
	for _, loc := range deduped {
		src := string(loc.Source)
		if src == "" {
			src = "?"
		}
		dt := loc.Datetime
		if dt == "" {
			dt = "?"
		}
		fmt.Printf("  [%-6s] %s  (%.6f, %.6f)\n", src, dt, loc.Lat, loc.Lon)
	}

	if output != "" {
		if err := common.SaveJSON(deduped, output); err != nil {
			return err
		}
		fmt.Printf("\nResults saved to %s\n", output)
	}
	if gpxPath != "" {
		if err := common.WriteGPX(deduped, gpxPath, false); err != nil {
			return err
		}
	}
	return nil
}

func fetchAppleLeg(ctx context.Context, keyfile, authPath, anisetteURL string, hours int) ([]reports.Location, error) {
	acc, err := findmy.LoadAccessory(keyfile)
	if err != nil {
		return nil, err
	}
	return runFindMyFetch(ctx, acc, authPath, anisetteURL, hours, "", "")
}

func fetchGoogleLeg(ctx context.Context, keyfile, tokenCachePath string) ([]reports.Location, error) {
	ident, err := fmdn.LoadIdentity(keyfile)
	if err != nil {
		return nil, err
	}
	return runFMDNFetch(ctx, ident, tokenCachePath, "", "")
}
