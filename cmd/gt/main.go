// Command gt is the owner-side toolkit for the tracker: key generation,
// rolling identifier inspection, and location report fetching for both the
// Apple Find My and Google Find My Device networks.
//
// # Commands
//
// fetch: unified location fetch across both networks, with cross-source
// merge, dedupe, and GPX export.
//
//	go run ./cmd/gt fetch --findmy-keys keys.json --fmdn-keys eik.json --gpx track.gpx
//
// findmy: Apple Find My tools. Generate accessory key material, inspect the
// rolling key schedule, fetch and decrypt reports, convert saved results to
// GPX.
//
//	go run ./cmd/gt findmy generate -o keys.json
//	go run ./cmd/gt findmy fetch -k keys.json -H 24
//
// fmdn: Google Find My Device Network tools. Generate or restore an
// identity key, inspect the EID schedule, precompute truncated key IDs,
// fetch and decrypt reports.
//
//	go run ./cmd/gt fmdn generate --mnemonic -o eik.json
//	go run ./cmd/gt fmdn keys -k eik.json -H 24
package main

import (
	"fmt"
	"os"
)

const usage = `gt - GPS Tracker Tools, unified CLI

Usage:
  gt fetch  [options]    Unified location fetch (Apple + Google)
  gt findmy <command>    Apple Find My tools
  gt fmdn   <command>    Google Find My Device tools

Examples:
  gt fetch --findmy-keys keys.json --fmdn-keys eik.json --gpx track.gpx
  gt findmy fetch -k keys.json -H 24 --gpx track.gpx
  gt fmdn keys -k eik.json -H 24
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "fetch":
		err = runFetch(os.Args[2:])
	case "findmy":
		err = runFindMy(os.Args[2:])
	case "fmdn":
		err = runFMDN(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
