// Package common holds constants shared across gps-tracker services and commands.
package common

// PackageName identifies this service in metrics and logs.
const PackageName = "gps_tracker"

// Version is set at build time via -ldflags.
var Version = "dev"
