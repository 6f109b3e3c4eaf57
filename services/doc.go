/*
# Tracker Services Package

The services package connects the key-derivation and report-decryption
packages to the upstream location networks and to local storage.

## Overview

This package provides the operational half of the tracker toolkit:
- HTTP clients for both report networks
- A unified fetch pipeline producing clean, deduplicated track points
- Pluggable persistence (in-memory or PostgreSQL)
- A background poller and a small read-only HTTP API

## Components

### Upstream clients

1. **AppleClient** (`apple.go`)
   - Fetches sealed reports from the Find My gateway
   - Obtains one-time request headers from a local anisette server
   - Batches hashed advertisement keys (10 per request, 1 rps)

2. **GoogleClient** (`google.go`)
   - Lists devices via the Nova endpoint and decrypts their sealed
     reports with the owner's identity key
   - Carries a gRPC-over-HTTP invoker for the Spot service
   - Reads bearer tokens from the provisioning token cache (`tokens.go`)

### Pipeline

The **Fetcher** (`fetcher.go`) runs both clients, tags each point with
its source, drops out-of-range coordinates, and deduplicates per
rotation period. The **Poller** (`poller.go`) runs the fetcher on a
ticker and persists new points through a **Store** (`store.go`,
`postgres_store.go`).

### HTTP API

**APIService** (`http_api.go`) registers read-only routes on a chi
router:
- `GET /api/v1/locations?hours=&source=` - stored track points
- `GET /api/v1/devices` - devices seen in the store
- `GET /api/v1/keys?scheme=&count=` - upcoming rolling identifiers

## Usage

```go
fetcher, err := services.NewFetcher(&services.FetcherConfig{
    Accessory: accessory,
    Identity:  identity,
    Apple:     appleClient,
    Google:    googleClient,
    Log:       log,
})

poller := services.NewPoller(&services.PollerConfig{
    Fetcher:     fetcher,
    Store:       store,
    Interval:    15 * time.Minute,
    WindowHours: 24,
    Log:         log,
})
go poller.Run(ctx)
```

## Security Notes

- Master secrets never leave the process; only derived public
  identifiers are sent upstream
- Report payloads are decrypted locally after download
- Store fingerprints are hashes of already-public coordinates
*/
package services
