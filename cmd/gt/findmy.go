package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/Enter-tainer/gps-tracker/cmd/common"
	"github.com/Enter-tainer/gps-tracker/findmy"
	"github.com/Enter-tainer/gps-tracker/reports"
	"github.com/Enter-tainer/gps-tracker/services"
)

const findmyUsage = `gt findmy - Apple Find My tools

Usage:
  gt findmy generate [-o FILE]                        Generate fresh key material
  gt findmy keys     -k FILE [-H HOURS]               Derive and display rolling keys
  gt findmy fetch    -k FILE [-H HOURS] [options]     Fetch and decrypt location reports
  gt findmy gpx      [-o FILE] [--all] INPUT          Convert JSON report file to GPX
`

// errAuthNotFound aborts even the multi-source fetch: without gateway
// credentials the Apple leg can never succeed.
var errAuthNotFound = errors.New("auth.json not found")

func runFindMy(args []string) error {
	if len(args) < 1 {
		fmt.Fprint(os.Stderr, findmyUsage)
		os.Exit(1)
	}
	switch args[0] {
	case "generate":
		return findmyGenerate(args[1:])
	case "keys":
		return findmyKeys(args[1:])
	case "fetch":
		return findmyFetch(args[1:])
	case "gpx":
		return findmyGPX(args[1:])
	default:
		fmt.Fprint(os.Stderr, findmyUsage)
		return fmt.Errorf("unknown findmy command %q", args[0])
	}
}

// keyMaterialFlags is the flag set shared by the keys and fetch subcommands:
// either a keyfile or the three raw values.
type keyMaterialFlags struct {
	keyfile      string
	privateKey   string
	symmetricKey string
	epoch        int64
}

func (k *keyMaterialFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&k.keyfile, "k", "", "JSON file with private_key, symmetric_key, epoch")
	fs.StringVar(&k.keyfile, "keyfile", "", "JSON file with private_key, symmetric_key, epoch")
	fs.StringVar(&k.privateKey, "private-key", "", "Master private key (56 hex chars, 28 bytes)")
	fs.StringVar(&k.symmetricKey, "symmetric-key", "", "Initial symmetric key SK_0 (64 hex chars, 32 bytes)")
	fs.Int64Var(&k.epoch, "epoch", 0, "Epoch unix timestamp")
}

func (k *keyMaterialFlags) load() (*findmy.Accessory, error) {
	return common.ResolveAccessory(k.keyfile, k.privateKey, k.symmetricKey, k.epoch)
}

func findmyGenerate(args []string) error {
	fs := flag.NewFlagSet("findmy generate", flag.ExitOnError)
	var output string
	fs.StringVar(&output, "o", "", "Output JSON file path")
	fs.StringVar(&output, "output", "", "Output JSON file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	acc, err := findmy.GenerateAccessory()
	if err != nil {
		return err
	}

	if output != "" {
		if err := acc.Save(output); err != nil {
			return err
		}
		fmt.Printf("Keys written to %s\n", output)
	} else {
		data, err := json.MarshalIndent(acc, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}

	fmt.Println("\nProvision these to firmware via BLE:")
	fmt.Printf("  private_key  : %s\n", acc.MasterKey)
	fmt.Printf("  symmetric_key: %s\n", acc.SymmetricKey)
	fmt.Printf("  epoch        : %d\n", acc.Epoch)

	initial, err := findmy.DeriveKeyAt(acc.MasterKey, acc.SymmetricKey, 0)
	if err != nil {
		return err
	}
	fmt.Printf("\nInitial public key x (counter=0): %x\n", initial.X)
	fmt.Printf("  Hashed adv key: %s\n", initial.HashedAdvKey())
	fmt.Printf("  BLE address   : %s\n", initial.BLEAddress())
	return nil
}

func findmyKeys(args []string) error {
	fs := flag.NewFlagSet("findmy keys", flag.ExitOnError)
	var km keyMaterialFlags
	km.register(fs)
	var hours int
	fs.IntVar(&hours, "H", 24, "Hours to look back")
	fs.IntVar(&hours, "hours", 24, "Hours to look back")
	if err := fs.Parse(args); err != nil {
		return err
	}

	acc, err := km.load()
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	start := now - 3600*int64(hours)
	if start < acc.Epoch {
		start = acc.Epoch
	}
	from := findmy.CounterAt(start, acc.Epoch)
	to := findmy.CounterAt(now, acc.Epoch)

	epochDT := time.Unix(acc.Epoch, 0).UTC().Format(time.RFC3339)
	fmt.Printf("Epoch: %d (%s)\n", acc.Epoch, epochDT)
	fmt.Printf("Counter range: %d - %d\n", from, to)
	fmt.Printf("Keys to derive: %d\n", to-from+1)
	fmt.Println()

	if to < from {
		return nil
	}
	keys, err := findmy.DeriveKeys(acc.MasterKey, acc.SymmetricKey, from, to)
	if err != nil {
		return err
	}
	for _, key := range keys {
		slot := time.Unix(findmy.SlotTime(key.Counter, acc.Epoch), 0).UTC()
		hash := key.HashedAdvKey()
		fmt.Printf("  [%4d] %s  addr=%s  hash=%s...\n",
			key.Counter, slot.Format("2006-01-02 15:04 UTC"), key.BLEAddress(), hash[:12])
	}
	return nil
}

func findmyFetch(args []string) error {
	fs := flag.NewFlagSet("findmy fetch", flag.ExitOnError)
	var km keyMaterialFlags
	km.register(fs)
	var (
		hours       int
		authPath    string
		anisetteURL string
		output      string
		gpxPath     string
	)
	fs.IntVar(&hours, "H", 24, "Hours to look back")
	fs.IntVar(&hours, "hours", 24, "Hours to look back")
	fs.StringVar(&authPath, "auth", services.DefaultAuthPath(), "Path to auth.json")
	fs.StringVar(&anisetteURL, "anisette-url", "", "Anisette v3 server URL")
	fs.StringVar(&output, "o", "", "Save results to JSON file")
	fs.StringVar(&output, "output", "", "Save results to JSON file")
	fs.StringVar(&gpxPath, "gpx", "", "Also export results as GPX file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	acc, err := km.load()
	if err != nil {
		return err
	}
	_, err = runFindMyFetch(context.Background(), acc, authPath, anisetteURL, hours, output, gpxPath)
	return err
}

// runFindMyFetch is the body of "gt findmy fetch", reused by the unified
// fetch command with empty save paths. It derives the window's rolling keys,
// pulls sealed reports from the gateway, decrypts what belongs to the
// accessory, and prints the decoded points.
func runFindMyFetch(ctx context.Context, acc *findmy.Accessory, authPath, anisetteURL string, hours int, output, gpxPath string) ([]reports.Location, error) {
	if authPath == "" {
		authPath = services.DefaultAuthPath()
	}
	if _, err := os.Stat(authPath); err != nil {
		return nil, fmt.Errorf("%w at %s\nGenerate it using the FindMy project's authentication flow:\n  https://github.com/biemster/FindMy",
			errAuthNotFound, authPath)
	}
	auth, err := services.LoadAppleAuth(authPath)
	if err != nil {
		return nil, err
	}
	client, err := services.NewAppleClient(&services.AppleConfig{
		Auth:        auth,
		AnisetteURL: anisetteURL,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	start := now - 3600*int64(hours)
	if start < acc.Epoch {
		start = acc.Epoch
	}
	from := findmy.CounterAt(start, acc.Epoch)
	to := findmy.CounterAt(now, acc.Epoch)
	if to < from {
		return nil, nil
	}

	fmt.Printf("Deriving %d keys (counter %d-%d)...\n", to-from+1, from, to)
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

	batches := (len(ids) + 9) / 10
	fmt.Printf("Querying Apple with %d key hashes in %d batches...\n", len(ids), batches)

	raw, _, err := client.FetchRawReports(ctx, ids, hours)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Received %d raw reports.\n", len(raw))

	var locs []reports.Location
	for _, report := range raw {
		key, ok := byID[report.ID]
		if !ok {
			continue
		}
		loc, err := decodeRawReport(report.Payload, key)
		if err != nil {
			continue
		}
		locs = append(locs, *loc)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].Timestamp < locs[j].Timestamp })

	fmt.Printf("\n%d locations decoded:\n\n", len(locs))
	for _, loc := range locs {
		fmt.Printf("  %s  (%.6f, %.6f)  conf=%d  counter=%d\n",
			loc.Datetime, loc.Lat, loc.Lon, loc.Confidence, loc.Counter)
		fmt.Printf("    %s\n", loc.MapsURL)
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

// decodeRawReport opens one sealed gateway report under its rotation key.
func decodeRawReport(payload string, key *findmy.DerivedKey) (*reports.Location, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	loc, err := findmy.DecryptReport(data, key.D)
	if err != nil {
		return nil, err
	}
	loc.Counter = key.Counter
	loc.MapsURL = fmt.Sprintf("https://maps.google.com/maps?q=%v,%v", loc.Lat, loc.Lon)
	return loc, nil
}

func findmyGPX(args []string) error {
	fs := flag.NewFlagSet("findmy gpx", flag.ExitOnError)
	var output string
	fs.StringVar(&output, "o", "", "Output GPX file (default: stdout)")
	fs.StringVar(&output, "output", "", "Output GPX file (default: stdout)")
	all := fs.Bool("all", false, "Include all reports (don't dedupe by counter)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprint(os.Stderr, findmyUsage)
		return errors.New("gpx needs an input JSON file from 'fetch -o'")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	var locs []reports.Location
	if err := json.Unmarshal(data, &locs); err != nil {
		return err
	}

	if *all {
		sort.Slice(locs, func(i, j int) bool { return locs[i].Timestamp < locs[j].Timestamp })
	} else {
		original := len(locs)
		locs = reports.Dedupe(locs, reports.DefaultDedupeRadius)
		if len(locs) != original {
			fmt.Fprintf(os.Stderr, "Deduped %d reports -> %d points\n", original, len(locs))
		}
	}

	gpx := reports.ToGPX(locs, "")
	if output != "" {
		if err := os.WriteFile(output, []byte(gpx), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "GPX written to %s\n", output)
	} else {
		fmt.Print(gpx)
	}
	return nil
}
