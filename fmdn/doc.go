// Package fmdn implements the owner side of the Google Find My Device
// Network scheme: ephemeral identifier (EID) computation, the key hierarchy
// rooted in the ephemeral identity key (EIK), and location report
// decryption.
//
// # Ephemeral identifiers
//
// A beacon rotates its identifier every 1024 seconds. The timestamp is
// masked to the rotation boundary, expanded into a 32-byte block, and
// encrypted with AES-256 under the EIK. The result, reduced mod the
// SECP160R1 group order, is the rotation scalar r; the EID is the 20-byte
// x-coordinate of r*G.
//
// # Location reports
//
// Crowdsourced reports are sealed by finder devices against the beacon's
// current EID point: the finder publishes its own public key x-coordinate
// alongside an AES-EAX ciphertext keyed from the ECDH secret. Own-device
// reports are sealed with AES-GCM under SHA-256 of the EIK directly.
package fmdn
