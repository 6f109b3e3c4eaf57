// Package cmd provides the CLI commands for the gps-tracker toolkit.
//
// # Commands
//
// gt: Owner-side toolkit. Generates accessory key material, inspects the
// rolling identifier schedules, fetches and decrypts location reports from
// the Apple Find My and Google Find My Device networks, and exports results
// as JSON or GPX.
//
//	go run ./cmd/gt findmy generate -o keys.json
//	go run ./cmd/gt fetch --findmy-keys keys.json --fmdn-keys eik.json --gpx track.gpx
//
// trackerd: Long-running daemon. Polls the configured networks on an
// interval, persists deduplicated points to PostgreSQL or memory, and serves
// the collected track plus the current key schedule over an HTTP API.
//
//	go run ./cmd/trackerd -config trackerd.yaml
//
// # Configuration
//
// gt is configured entirely through flags. trackerd reads a YAML file via
// the -config flag; see the trackerd command documentation for the format.
//
// Both networks need out-of-band credentials: Apple fetching requires an
// anisette server and an auth.json with a search party token, Google
// fetching requires a token cache holding an adm_token. Neither credential
// flow is implemented here.
package cmd
