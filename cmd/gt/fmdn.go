package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Enter-tainer/gps-tracker/cmd/common"
	"github.com/Enter-tainer/gps-tracker/fmdn"
	"github.com/Enter-tainer/gps-tracker/reports"
	"github.com/Enter-tainer/gps-tracker/services"
)

const fmdnUsage = `gt fmdn - Google Find My Device tools

Usage:
  gt fmdn generate [--mnemonic] [-o FILE]         Generate a random EIK
  gt fmdn restore  [-o FILE] WORD...              Restore an EIK from its recovery phrase
  gt fmdn keys     -k FILE [-H HOURS]             Derive and display EID sequence
  gt fmdn key-ids  -k FILE [-H HOURS] [-o FILE]   Precompute truncated key IDs for API upload
  gt fmdn fetch    -k FILE [options]              Fetch and decrypt location reports from Google
`

func runFMDN(args []string) error {
	if len(args) < 1 {
		fmt.Fprint(os.Stderr, fmdnUsage)
		os.Exit(1)
	}
	switch args[0] {
	case "generate":
		return fmdnGenerate(args[1:])
	case "restore":
		return fmdnRestore(args[1:])
	case "keys":
		return fmdnKeys(args[1:])
	case "key-ids":
		return fmdnKeyIDs(args[1:])
	case "fetch":
		return fmdnFetch(args[1:])
	default:
		fmt.Fprint(os.Stderr, fmdnUsage)
		return fmt.Errorf("unknown fmdn command %q", args[0])
	}
}

// printIdentity writes the identity JSON to stdout and optionally saves it.
func printIdentity(ident *fmdn.Identity, output string) error {
	data, err := json.MarshalIndent(ident, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	if output != "" {
		if err := ident.Save(output); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "\nSaved to %s\n", output)
	}
	return nil
}

func fmdnGenerate(args []string) error {
	fs := flag.NewFlagSet("fmdn generate", flag.ExitOnError)
	var output string
	fs.StringVar(&output, "o", "", "Save JSON to file")
	fs.StringVar(&output, "output", "", "Save JSON to file")
	mnemonic := fs.Bool("mnemonic", false, "Also print a BIP-39 recovery phrase for the EIK")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ident, err := fmdn.GenerateIdentity()
	if err != nil {
		return err
	}
	if err := printIdentity(ident, output); err != nil {
		return err
	}
	if *mnemonic {
		phrase, err := ident.EIK.Mnemonic()
		if err != nil {
			return err
		}
		fmt.Printf("\nRecovery phrase:\n  %s\n", phrase)
	}
	return nil
}

func fmdnRestore(args []string) error {
	fs := flag.NewFlagSet("fmdn restore", flag.ExitOnError)
	var output string
	fs.StringVar(&output, "o", "", "Save JSON to file")
	fs.StringVar(&output, "output", "", "Save JSON to file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fmt.Fprint(os.Stderr, fmdnUsage)
		return errors.New("restore needs the 24-word recovery phrase")
	}

	eik, err := fmdn.IdentityKeyFromMnemonic(strings.Join(fs.Args(), " "))
	if err != nil {
		return fmt.Errorf("recovery phrase: %w", err)
	}
	return printIdentity(&fmdn.Identity{EIK: eik}, output)
}

func fmdnKeys(args []string) error {
	fs := flag.NewFlagSet("fmdn keys", flag.ExitOnError)
	var keyfile string
	fs.StringVar(&keyfile, "k", "", "EIK JSON file")
	fs.StringVar(&keyfile, "keys", "", "EIK JSON file")
	var hours int
	fs.IntVar(&hours, "H", 24, "Hours back")
	fs.IntVar(&hours, "hours", 24, "Hours back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if keyfile == "" {
		return errors.New("-k/--keys is required")
	}

	ident, err := fmdn.LoadIdentity(keyfile)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	startTS := fmdn.MaskTimestamp(now - int64(hours)*3600)
	endTS := now + 3600

	fmt.Printf("EIK: %s\n", ident.EIK)
	fmt.Printf("Time range: %dh back + 1h forward\n", hours)
	fmt.Printf("Rotation period: %ds\n", fmdn.EIDRotationSecs)
	fmt.Println()
	fmt.Printf("%8s  %10s  %-23s  %-40s  %4s\n", "Counter", "Timestamp", "UTC Time", "EID (hex)", "HF")
	fmt.Println(strings.Repeat("-", 95))

	counter := 0
	for ts := startTS; ts <= endTS; ts += fmdn.EIDRotationSecs {
		eph, err := fmdn.ComputeEphemeralID(ident.EIK, ts, fmdn.DefaultBatteryFlags)
		if err != nil {
			return err
		}
		utc := time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05")
		marker := ""
		if now >= ts && now-ts < fmdn.EIDRotationSecs {
			marker = " <-- now"
		}
		fmt.Printf("%8d  %10d  %s  %s  0x%02x%s\n", counter, ts, utc, eph, eph.HashedFlags, marker)
		counter++
	}
	return nil
}

// keyIDRow is one precomputed truncated identifier in the export.
type keyIDRow struct {
	Timestamp int64  `json:"timestamp"`
	UTC       string `json:"utc"`
	KeyID     string `json:"key_id"`
}

// keyIDExport is the provisioning upload format: every truncated EID the
// beacon will broadcast over the covered window.
type keyIDExport struct {
	EIK    string     `json:"eik"`
	Start  string     `json:"start"`
	End    string     `json:"end"`
	Count  int        `json:"count"`
	KeyIDs []keyIDRow `json:"key_ids"`
}

func fmdnKeyIDs(args []string) error {
	fs := flag.NewFlagSet("fmdn key-ids", flag.ExitOnError)
	var keyfile string
	fs.StringVar(&keyfile, "k", "", "EIK JSON file")
	fs.StringVar(&keyfile, "keys", "", "EIK JSON file")
	var hours int
	fs.IntVar(&hours, "H", 96, "Hours forward")
	fs.IntVar(&hours, "hours", 96, "Hours forward")
	var output string
	fs.StringVar(&output, "o", "", "Save JSON to file")
	fs.StringVar(&output, "output", "", "Save JSON to file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if keyfile == "" {
		return errors.New("-k/--keys is required")
	}

	ident, err := fmdn.LoadIdentity(keyfile)
	if err != nil {
		return err
	}

	// Start 3 hours before now, matching the upload window the service
	// grants for already-broadcast identifiers.
	now := time.Now().Unix()
	startTS := fmdn.MaskTimestamp(now - 3*3600)
	endTS := now + int64(hours)*3600

	const stampLayout = "2006-01-02T15:04:05Z"
	var rows []keyIDRow
	for ts := startTS; ts <= endTS; ts += fmdn.EIDRotationSecs {
		eph, err := fmdn.ComputeEphemeralID(ident.EIK, ts, fmdn.DefaultBatteryFlags)
		if err != nil {
			return err
		}
		rows = append(rows, keyIDRow{
			Timestamp: ts,
			UTC:       time.Unix(ts, 0).UTC().Format(stampLayout),
			KeyID:     fmt.Sprintf("%x", eph.TruncatedID()),
		})
	}

	export := keyIDExport{
		EIK:    ident.EIK.String(),
		Start:  time.Unix(startTS, 0).UTC().Format(stampLayout),
		End:    time.Unix(endTS, 0).UTC().Format(stampLayout),
		Count:  len(rows),
		KeyIDs: rows,
	}

	if output != "" {
		if err := common.SaveJSON(export, output); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %d key IDs to %s\n", len(rows), output)
		return nil
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func fmdnFetch(args []string) error {
	fs := flag.NewFlagSet("fmdn fetch", flag.ExitOnError)
	var keyfile string
	fs.StringVar(&keyfile, "k", "", "EIK JSON file")
	fs.StringVar(&keyfile, "keys", "", "EIK JSON file")
	var hours int
	fs.IntVar(&hours, "H", 24, "Hours to look back")
	fs.IntVar(&hours, "hours", 24, "Hours to look back")
	var (
		tokenCache string
		output     string
		gpxPath    string
	)
	fs.StringVar(&tokenCache, "token-cache", services.DefaultTokenCachePath(), "Path to token cache file")
	fs.StringVar(&output, "o", "", "Save results to JSON file")
	fs.StringVar(&output, "output", "", "Save results to JSON file")
	fs.StringVar(&gpxPath, "gpx", "", "Also export results as GPX file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if keyfile == "" {
		return errors.New("-k/--keys is required")
	}

	ident, err := fmdn.LoadIdentity(keyfile)
	if err != nil {
		return err
	}
	_, err = runFMDNFetch(context.Background(), ident, tokenCache, output, gpxPath)
	return err
}

// runFMDNFetch is the body of "gt fmdn fetch", reused by the unified fetch
// command with empty save paths. The device network has no report window:
// every sealed report in the owner's device list is tried against the EIK.
func runFMDNFetch(ctx context.Context, ident *fmdn.Identity, tokenCachePath, output, gpxPath string) ([]reports.Location, error) {
	fmt.Fprintln(os.Stderr, "Authenticating with Google...")
	client, err := services.NewGoogleClient(&services.GoogleConfig{TokenCachePath: tokenCachePath})
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(os.Stderr, "Listing devices...")
	devices, err := client.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "Found %d device(s).\n", len(devices))

	var locs []reports.Location
	for _, device := range devices {
		name := device.Name
		if name == "" {
			name = "Unknown"
		}
		fmt.Fprintf(os.Stderr, "  Device: %s\n", name)

		if len(device.RawLocations) == 0 {
			fmt.Fprintln(os.Stderr, "    No location reports.")
			continue
		}
		fmt.Fprintf(os.Stderr, "    %d location report(s).\n", len(device.RawLocations))

		for i, raw := range device.RawLocations {
			listTS := time.Now().Unix()
			if i < len(device.Timestamps) {
				listTS = device.Timestamps[i]
			}
			loc, err := fmdn.DecryptLocationReport(ident.EIK, raw, listTS)
			if err != nil {
				continue
			}
			loc.DeviceName = name
			locs = append(locs, *loc)
		}
	}

	if len(locs) == 0 {
		fmt.Fprintln(os.Stderr, "\nNo locations could be decrypted with the provided EIK.")
		fmt.Fprintln(os.Stderr, "Possible causes:")
		fmt.Fprintln(os.Stderr, "  - EIK doesn't match any registered device")
		fmt.Fprintln(os.Stderr, "  - No recent crowdsourced reports available")
		fmt.Fprintln(os.Stderr, "No location reports found.")
		return nil, nil
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].Timestamp < locs[j].Timestamp })

	fmt.Printf("\n%d locations decoded:\n\n", len(locs))
	for _, loc := range locs {
		accuracy := "?"
		if loc.Accuracy > 0 {
			accuracy = strconv.FormatFloat(loc.Accuracy, 'g', -1, 64)
		}
		fmt.Printf("  %s  (%.6f, %.6f)  accuracy=%s\n", loc.Datetime, loc.Lat, loc.Lon, accuracy)
		fmt.Printf("    https://maps.google.com/maps?q=%v,%v\n", loc.Lat, loc.Lon)
	}

	if output != "" {
		if err := common.SaveJSON(locs, output); err != nil {
			return nil, err
		}
		fmt.Printf("\nResults saved to %s\n", output)
	}
	if gpxPath != "" {
		if err := common.WriteGPX(locs, gpxPath, true); err != nil {
			return nil, err
		}
	}
	return locs, nil
}
